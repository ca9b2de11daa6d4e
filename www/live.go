package www

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lineflow/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// LiveMessage is one frame of the live feed.
type LiveMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans engine events out to websocket clients. Slow clients are
// dropped rather than blocking the event bus.
type Hub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
}

type liveClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*liveClient]struct{})}
}

// Attach subscribes the hub to the engine events it forwards and returns
// the matching unsubscribe func.
func (h *Hub) Attach(bus *engine.EventBus) func() {
	id := bus.SubscribeTypes(func(evt engine.Event) {
		switch ev := evt.Payload.(type) {
		case engine.SnapshotEvent:
			if ev.Diff.HasChanges {
				h.Broadcast("diff", ev.Diff)
			}
			h.Broadcast("snapshot", ev.Snapshot)
		case engine.AlertRaisedEvent:
			h.Broadcast("alert", ev.Alert)
		case engine.AlertChangedEvent:
			h.Broadcast("alert", ev.Alert)
		case engine.StockAlertEvent:
			h.Broadcast("stock", ev)
		case engine.StockCorrectedEvent:
			h.Broadcast("stock", ev)
		case engine.RunStartedEvent:
			h.Broadcast("order", ev)
		case engine.OrderFinishedEvent:
			h.Broadcast("order", ev)
		case engine.RobotStateEvent:
			h.Broadcast("robot", ev.Robot)
		}
	}, engine.EventSnapshot, engine.EventAlertRaised, engine.EventAlertChanged,
		engine.EventStockAlert, engine.EventStockCorrected,
		engine.EventRunStarted, engine.EventOrderFinished, engine.EventRobotState)
	return func() { bus.Unsubscribe(id) }
}

func (h *Hub) Broadcast(kind string, payload any) {
	msg, err := json.Marshal(LiveMessage{Type: kind, Payload: payload})
	if err != nil {
		log.Printf("live: marshal %s: %v", kind, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Printf("live: client %s too slow, dropping", c.conn.RemoteAddr())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// sendTo queues a message for one client. A full buffer drops it.
func (h *Hub) sendTo(c *liveClient, kind string, payload any) {
	msg, err := json.Marshal(LiveMessage{Type: kind, Payload: payload})
	if err != nil {
		log.Printf("live: marshal %s: %v", kind, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) add(conn *websocket.Conn) (*liveClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &liveClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) remove(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// handleLive upgrades the request and greets the client with the current
// snapshot before streaming events.
func (h *Handlers) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}
	c, ok := h.hub.add(conn)
	if !ok {
		conn.Close()
		return
	}
	snap, ok := h.engine.Snapshot()
	if !ok {
		snap = h.engine.Refresh()
	}
	h.hub.sendTo(c, "snapshot", snap)

	go c.writePump()
	c.readPump()
}

// readPump discards client frames; it exists to process pongs and notice
// disconnects.
func (c *liveClient) readPump() {
	defer func() {
		c.hub.remove(c)
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
				log.Printf("live: read: %v", err)
			}
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
