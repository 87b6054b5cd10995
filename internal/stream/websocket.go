package stream

import (
	"net/http"

	"chaincalc/internal/observability"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades HTTP requests to WebSocket connections and pushes a
// snapshot to each client after every engine change.
type Handler struct {
	hub      *Hub
	initial  func() any
	upgrader websocket.Upgrader
}

// NewHandler builds a WebSocket handler over hub. initial supplies the
// payload sent once right after a client connects.
func NewHandler(hub *Hub, initial func() any) *Handler {
	return &Handler{
		hub:     hub,
		initial: initial,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /calculator/stream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerWithTrace(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := observability.NewRequestID()
	updates := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info("stream client connected", zap.String("client_id", clientID))

	if err := conn.WriteJSON(h.initial()); err != nil {
		return
	}

	// The read loop drains client frames and detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("stream client read error",
						zap.String("client_id", clientID),
						zap.Error(err),
					)
				}
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
