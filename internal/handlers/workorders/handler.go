package workorders

import (
	"database/sql"

	"partsdesk/internal/fulfillment"
	"partsdesk/internal/websocket"
)

// Handler holds dependencies for work order handlers.
type Handler struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	Engine *fulfillment.Engine
}
