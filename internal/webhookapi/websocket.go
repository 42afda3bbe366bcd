package webhookapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"plexanibridge/internal/bus"
)

// Hub relays bus.Bus events to every connected WebSocket client. One
// Hub serves every profile; clients receive the full event stream
// rather than joining a per-room feed, since an operator dashboard
// wants the whole picture. A read/write pump split per connection,
// broadcasting the sync engine's own event bus rather than relaying
// between clients.
type Hub struct {
	bus      *bus.Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsOutbound   = 128
)

// NewHub builds a Hub relaying events published on b.
func NewHub(b *bus.Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		bus:    b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Every origin is accepted. The stream route sits outside
			// the bearer-auth group, so no token is checked either.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) handleStream(c *gin.Context) {
	s.hub.serve(c.Writer, c.Request)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	h.logger.Info("websocket connected", "conn_id", connID)
	defer h.logger.Info("websocket disconnected", "conn_id", connID)

	sub := h.bus.Subscribe()
	defer sub.Unsubscribe()

	outbound := make(chan []byte, wsOutbound)
	done := make(chan struct{})

	go h.writePump(conn, outbound, done)
	go h.readPump(conn, done)

	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			frame, err := json.Marshal(event)
			if err != nil {
				continue
			}
			select {
			case outbound <- frame:
			default:
				// outbound is full; drop the oldest queued frame to
				// make room rather than block the bus publisher.
				select {
				case <-outbound:
				default:
				}
				select {
				case outbound <- frame:
				default:
				}
			}
		}
	}
}

// readPump drains and discards any client frames (this stream is
// server-to-client only) purely to drive the ping/pong keepalive and
// notice a closed connection.
func (h *Hub) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, outbound <-chan []byte, done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case frame, ok := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
