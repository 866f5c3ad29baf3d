package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashdeck/hashdeck/internal/events"
	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/pkg/debug"
)

// Connection timing values
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Observers are expected on the same host; the dashboard origin is
		// not validated here
		return true
	},
}

// SnapshotSource seeds a newly connected observer with current state
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// Handler upgrades observer connections and streams bus events to them.
// A new observer receives a point-in-time snapshot first, then the live
// stream; events from before the connection are never replayed.
type Handler struct {
	bus      *events.Bus
	snapshot SnapshotSource
}

// NewHandler creates an observer WebSocket handler
func NewHandler(bus *events.Bus, snapshot SnapshotSource) *Handler {
	return &Handler{bus: bus, snapshot: snapshot}
}

// ServeWS handles one observer connection
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error("Failed to upgrade observer connection from %s: %v", r.RemoteAddr, err)
		return
	}

	observerID := uuid.NewString()
	debug.Info("Observer %s connected from %s", observerID, r.RemoteAddr)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(models.NewEvent(models.EventSnapshot, "", h.snapshot.Snapshot())); err != nil {
		debug.Error("Observer %s: failed to send snapshot: %v", observerID, err)
		conn.Close()
		return
	}

	ch := h.bus.Subscribe(observerID)

	go h.writePump(observerID, conn, ch)
	go h.readPump(observerID, conn)
}

// writePump forwards bus events to the observer until the connection or
// the subscription ends.
func (h *Handler) writePump(observerID string, conn *websocket.Conn, ch <-chan models.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.bus.Unsubscribe(observerID)
		conn.Close()
		debug.Info("Observer %s write pump closed", observerID)
	}()

	for {
		select {
		case event, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				debug.Info("Observer %s write failed: %v", observerID, err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				debug.Info("Observer %s ping failed: %v", observerID, err)
				return
			}
		}
	}
}

// readPump drains the connection to detect disconnects. Observers are
// read-only; control requests arrive over HTTP.
func (h *Handler) readPump(observerID string, conn *websocket.Conn) {
	defer func() {
		h.bus.Unsubscribe(observerID)
		conn.Close()
	}()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				debug.Info("Observer %s closed unexpectedly: %v", observerID, err)
			}
			return
		}
	}
}
