package procurement

import (
	"database/sql"

	"partsdesk/internal/websocket"
)

// Handler holds dependencies for procurement handlers.
type Handler struct {
	DB         *sql.DB
	Hub        *websocket.Hub
	NextIDFunc func(prefix, table string, digits int) string
}
