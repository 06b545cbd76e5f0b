package receiving

import (
	"database/sql"

	"partsdesk/internal/fulfillment"
	"partsdesk/internal/websocket"
)

// Handler holds dependencies for receiving handlers.
type Handler struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	Engine *fulfillment.Engine
}
