package remote

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhle/kanban-board/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Watchers never send data; anything larger than this is abuse.
	maxMessageSize = 4096

	sendBuffer = 16
)

// Message types sent on a watch connection.
const (
	MessageSnapshot = "snapshot"
	MessageError    = "error"
)

// Message is the envelope for everything sent on a watch connection.
type Message struct {
	Type     string        `json:"type"`
	Snapshot *WireSnapshot `json:"snapshot,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// WireSnapshot is a store.Snapshot as sent to remote clients.
type WireSnapshot struct {
	Path    string         `json:"path"`
	Data    map[string]any `json:"data"`
	Exists  bool           `json:"exists"`
	Version int64          `json:"version"`
}

func toWire(s store.Snapshot) *WireSnapshot {
	return &WireSnapshot{Path: s.Path, Data: s.Data, Exists: s.Exists, Version: s.Version}
}

func (w *WireSnapshot) snapshot() store.Snapshot {
	data := w.Data
	if data == nil {
		data = map[string]any{}
	}
	return store.Snapshot{Path: w.Path, Data: data, Exists: w.Exists, Version: w.Version}
}

// watchConn is one websocket connection following one document.
type watchConn struct {
	hub  *Hub
	conn *websocket.Conn
	path string
	send chan []byte
}

// push queues a snapshot. A connection that cannot keep up is dropped;
// the client reconnects and receives the current state.
func (c *watchConn) push(s store.Snapshot) {
	payload, err := json.Marshal(Message{Type: MessageSnapshot, Snapshot: toWire(s)})
	if err != nil {
		c.hub.log.Error("encoding snapshot", "path", c.path, "error", err)
		return
	}
	c.hub.deliver(c, payload)
}

// readPump discards inbound frames and detects disconnects.
func (c *watchConn) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("watch connection error", "path", c.path, "error", err)
			}
			return
		}
	}
}

// writePump sends queued messages and keepalive pings.
func (c *watchConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type delivery struct {
	conn    *watchConn
	payload []byte
}

// Hub tracks open watch connections and owns their send channels.
type Hub struct {
	log        *slog.Logger
	conns      map[*watchConn]bool
	register   chan *watchConn
	unregister chan *watchConn
	deliveries chan delivery
	count      chan chan int
	stop       chan struct{}
}

// NewHub creates a hub. Run must be started before connections register.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log,
		conns:      make(map[*watchConn]bool),
		register:   make(chan *watchConn),
		unregister: make(chan *watchConn),
		deliveries: make(chan delivery, 64),
		count:      make(chan chan int),
		stop:       make(chan struct{}),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *watchConn) {
	select {
	case h.register <- c:
	case <-h.stop:
	}
}

// Unregister removes a connection and closes its send channel.
func (h *Hub) Unregister(c *watchConn) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

func (h *Hub) deliver(c *watchConn, payload []byte) {
	select {
	case h.deliveries <- delivery{conn: c, payload: payload}:
	case <-h.stop:
	}
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.stop:
		return 0
	}
}

// Stop ends Run and closes every connection's send channel.
func (h *Hub) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	defer func() {
		for c := range h.conns {
			close(c.send)
			delete(h.conns, c)
			watchConnections.Dec()
		}
	}()

	for {
		select {
		case <-h.stop:
			return
		case c := <-h.register:
			h.conns[c] = true
			watchConnections.Inc()
			h.log.Debug("watch connected", "path", c.path)
		case c := <-h.unregister:
			if _, ok := h.conns[c]; ok {
				delete(h.conns, c)
				close(c.send)
				watchConnections.Dec()
				h.log.Debug("watch disconnected", "path", c.path)
			}
		case d := <-h.deliveries:
			if !h.conns[d.conn] {
				continue
			}
			select {
			case d.conn.send <- d.payload:
				snapshotsPushed.Inc()
			default:
				h.log.Warn("watch send buffer full, dropping connection", "path", d.conn.path)
				close(d.conn.send)
				delete(h.conns, d.conn)
				watchConnections.Dec()
			}
		case reply := <-h.count:
			reply <- len(h.conns)
		}
	}
}
