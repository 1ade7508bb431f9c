package display

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	completeWait   = 5 * time.Second
)

// Inbound message types sent by displays.
const (
	msgComplete  = "complete"
	msgPing      = "ping"
	msgHeartbeat = "heartbeat"
)

// inbound is a display → server message.
type inbound struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id,omitempty"`
}

var clientIDCounter atomic.Uint64

// Client is one connected display.
type Client struct {
	id      uint64
	hub     *Hub
	backend Backend
	conn    *websocket.Conn
	send    chan Frame
	logger  *zap.Logger
}

func newClient(hub *Hub, backend Backend, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := clientIDCounter.Add(1)
	return &Client{
		id:      id,
		hub:     hub,
		backend: backend,
		conn:    conn,
		send:    make(chan Frame, 16),
		logger:  logger.With(zap.Uint64("client_id", id)),
	}
}

// reply queues a frame for this client only, if it is still registered.
func (c *Client) reply(f Frame) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- f:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case msgPing:
			c.reply(Frame{Type: FramePong})
		case msgComplete:
			c.complete(msg.ItemID)
		case msgHeartbeat:
			// Sent while an item is on screen; keeps its row from going stale.
			if msg.ItemID == "" {
				c.reply(errorFrame("item_id is required"))
				continue
			}
			c.hub.sighted(msg.ItemID)
		default:
			c.reply(errorFrame("unknown message type"))
		}
	}
}

func (c *Client) complete(itemID string) {
	if itemID == "" {
		c.reply(errorFrame("item_id is required"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), completeWait)
	defer cancel()

	err := c.backend.Complete(ctx, itemID)
	switch {
	case err == nil:
		c.logger.Info("display completed item", zap.String("item_id", itemID))
	case errors.Is(err, domain.ErrNotPlaying), errors.Is(err, domain.ErrNotFound):
		// Another display (or the sweeper) got there first.
		c.logger.Debug("completion ignored", zap.String("item_id", itemID), zap.Error(err))
	default:
		c.logger.Error("completion failed", zap.String("item_id", itemID), zap.Error(err))
		c.reply(errorFrame("completion failed"))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				c.logger.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Gateway upgrades display connections and attaches them to the hub.
type Gateway struct {
	hub      *Hub
	backend  Backend
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewGateway builds the /ws/display handler. An empty allowedOrigins list
// accepts any origin.
func NewGateway(hub *Hub, backend Backend, allowedOrigins []string, logger *zap.Logger) *Gateway {
	g := &Gateway{hub: hub, backend: backend, logger: logger}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(allowedOrigins, logger),
	}
	return g
}

func originChecker(allowed []string, logger *zap.Logger) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		logger.Warn("display connection rejected", zap.String("origin", origin))
		return false
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Resolve the current frame before upgrading so a failure can still be
	// reported over plain HTTP.
	current, err := g.backend.CurrentFrame(r.Context())
	if err != nil {
		g.logger.Error("could not load current frame", zap.Error(err))
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(g.hub, g.backend, conn, g.logger)
	if current != nil {
		c.send <- *current
	}
	if !g.hub.join(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
