package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// sendBuffer is the per-client outbound queue. A client that falls
	// this far behind is dropped rather than allowed to stall the hub.
	sendBuffer = 16
)

// Client is one WebSocket watcher of a single advertisement.
type Client struct {
	advertisementID int64
	conn            *websocket.Conn
	send            chan []byte
}

type broadcast struct {
	advertisementID int64
	payload         []byte
}

// Hub routes bid updates to the WebSocket clients watching each
// advertisement. All subscriber state is owned by the Run goroutine.
type Hub struct {
	logger *slog.Logger

	register   chan *Client
	unregister chan *Client
	broadcasts chan broadcast

	// done is closed when Run exits so senders never block on a hub
	// that stopped draining its channels.
	done chan struct{}

	subscribers map[int64]map[*Client]struct{}
}

// NewHub creates a Hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcasts:  make(chan broadcast, 256),
		done:        make(chan struct{}),
		subscribers: make(map[int64]map[*Client]struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.subscribers {
				for c := range clients {
					close(c.send)
				}
			}
			return
		case c := <-h.register:
			clients, ok := h.subscribers[c.advertisementID]
			if !ok {
				clients = make(map[*Client]struct{})
				h.subscribers[c.advertisementID] = clients
			}
			clients[c] = struct{}{}
		case c := <-h.unregister:
			clients, ok := h.subscribers[c.advertisementID]
			if !ok {
				continue
			}
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				if len(clients) == 0 {
					delete(h.subscribers, c.advertisementID)
				}
			}
		case b := <-h.broadcasts:
			for c := range h.subscribers[b.advertisementID] {
				select {
				case c.send <- b.payload:
				default:
					// Slow client, drop it so others keep receiving.
					delete(h.subscribers[b.advertisementID], c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast sends payload to every client watching the advertisement.
// Messages sent after shutdown are discarded.
func (h *Hub) Broadcast(advertisementID int64, payload []byte) {
	select {
	case h.broadcasts <- broadcast{advertisementID: advertisementID, payload: payload}:
	case <-h.done:
	}
}

// add registers the client, reporting false when the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove unregisters the client; a no-op after shutdown, where Run already
// closed every send queue.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades the request to a WebSocket connection subscribed to the
// advertisement's bid updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, advertisementID int64) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrading websocket: %w", err)
	}

	c := &Client{
		advertisementID: advertisementID,
		conn:            conn,
		send:            make(chan []byte, sendBuffer),
	}
	if !h.add(c) {
		conn.Close()
		return fmt.Errorf("hub is shut down")
	}

	go c.writePump()
	go c.readPump(h)
	return nil
}

// writePump moves messages from the send queue to the connection and keeps
// it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// readPump drains inbound frames so control messages are processed, and
// unregisters the client when the connection drops.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// HubPublisher broadcasts updates directly to an in-process Hub. It is the
// single-replica path used when Redis is not configured.
type HubPublisher struct {
	hub *Hub
}

// NewHubPublisher creates a HubPublisher.
func NewHubPublisher(hub *Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) PublishBidUpdate(_ context.Context, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshaling bid update: %w", err)
	}
	p.hub.Broadcast(update.AdvertisementID, payload)
	return nil
}
