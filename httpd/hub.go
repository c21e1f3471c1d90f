package httpd

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lumenisola/obsidian-full-calendar/types"
)

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 10 * time.Second
	// pingPeriod paces keepalive pings on otherwise idle sockets.
	pingPeriod = 30 * time.Second
	// sendBuffer is the per-client frame backlog before frames drop.
	sendBuffer = 64
)

// frame is one live update pushed to connected widgets.
type frame struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Event   *types.Event `json:"event,omitempty"`
	Message string       `json:"message,omitempty"`
}

// client is one connected widget socket.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans calendar updates out to every connected widget. It is the
// engine's listener: callbacks arrive holding the engine lock, so they
// only enqueue onto buffered per-client channels and never block.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[string]*client
}

// NewHub creates a hub admitting sockets from the given origins. "*"
// admits every origin.
func NewHub(allowedOrigins []string, log zerolog.Logger) *Hub {
	h := &Hub{
		log:     log,
		clients: make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}
	return h
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// Serve upgrades one request to a widget socket and keeps it fed until
// either side closes.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug().Err(err).Msg("websocket upgrade rejected")
		return
	}
	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()
	h.log.Debug().Str("client", cl.id).Msg("widget connected")

	go h.writePump(cl)
	go h.readPump(cl)
}

// Clients returns the number of connected widgets.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every widget.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	for _, cl := range clients {
		close(cl.send)
	}
}

// --- engine.Listener implementation ---

// EventRemoved broadcasts an eventRemoved frame.
func (h *Hub) EventRemoved(id string) {
	h.broadcast(frame{Type: "eventRemoved", ID: id})
}

// EventUpserted broadcasts an eventUpserted frame.
func (h *Hub) EventUpserted(ev types.Event) {
	h.broadcast(frame{Type: "eventUpserted", ID: ev.ID, Event: &ev})
}

// Notice broadcasts a user-facing notice frame.
func (h *Hub) Notice(message string) {
	h.broadcast(frame{Type: "notice", Message: message})
}

func (h *Hub) broadcast(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Error().Err(err).Str("type", f.Type).Msg("frame marshal failed")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cl := range h.clients {
		select {
		case cl.send <- data:
		default:
			// The client is not draining its backlog; it will catch up
			// on its next full refresh.
			h.log.Warn().Str("client", cl.id).Str("type", f.Type).Msg("frame dropped")
		}
	}
}

// writePump owns all writes to one socket, frames and pings both, and
// closes the socket when the send channel is closed.
func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case data, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the socket so control frames are processed and a
// client close is noticed promptly. Widgets send nothing else.
func (h *Hub) readPump(cl *client) {
	defer h.drop(cl)
	cl.conn.SetReadLimit(512)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl.id]; ok {
		delete(h.clients, cl.id)
		close(cl.send)
	}
	h.mu.Unlock()
	h.log.Debug().Str("client", cl.id).Msg("widget disconnected")
}
