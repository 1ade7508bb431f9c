package display

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/feed"
)

// Backend is what the gateway needs from the queue service.
type Backend interface {
	// CurrentFrame returns the play frame for the item playing right now,
	// or nil when nothing is playing.
	CurrentFrame(ctx context.Context) (*Frame, error)
	FrameFor(ctx context.Context, item *domain.QueueItem) (Frame, error)
	// Complete performs the conditional playing → completed transition.
	Complete(ctx context.Context, itemID string) error
}

// Stage reports the item the queue snapshot last showed as playing.
type Stage interface {
	Playing() *domain.QueueItem
}

const (
	// announcedMemory is how many recently announced item ids Forward keeps
	// to suppress repeat play frames from lagging snapshots.
	announcedMemory = 32
	// sightingTTL bounds how long a display heartbeat is remembered.
	sightingTTL     = time.Minute
)

// Hub fans frames out to every connected display.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Frame
	register   chan *Client
	unregister chan *Client
	resync     chan struct{}
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger

	sightingsMu sync.Mutex
	sightings   map[string]time.Time

	onClients func(n int)
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Frame, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		resync:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		logger:     logger,
		sightings:  make(map[string]time.Time),
		onClients:  func(int) {},
	}
}

// OnClientCount installs a callback fired with the client count whenever a
// display connects or disconnects.
func (h *Hub) OnClientCount(fn func(n int)) {
	if fn != nil {
		h.onClients = fn
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			n := h.closeAll()
			h.logger.Info("display hub stopped", zap.Int("clients_closed", n))
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.onClients(n)
			h.logger.Info("display connected", zap.Uint64("client_id", c.id), zap.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.onClients(n)
			h.logger.Info("display disconnected", zap.Uint64("client_id", c.id), zap.Int("total_clients", n))

		case f := <-h.broadcast:
			h.broadcastToClients(f)
		}
	}
}

// Broadcast queues a frame for every client. It never blocks; when the
// broadcast buffer is full the frame is dropped.
func (h *Hub) Broadcast(f Frame) {
	select {
	case h.broadcast <- f:
	default:
		h.logger.Warn("broadcast buffer full, dropping frame",
			zap.String("type", string(f.Type)), zap.String("item_id", f.ItemID))
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Resync asks Forward to compare the stage with what displays were last
// told. It never blocks; call it after every queue snapshot.
func (h *Hub) Resync() {
	select {
	case h.resync <- struct{}{}:
	default:
	}
}

// Forward turns queue changes into frames: a row becoming playing produces
// a play frame, a fresh completion produces a complete frame. Play frames
// come from change events and from the stage on every Resync, so displays
// keep receiving work while the change feed is down. Each item is announced
// once. Blocks until ctx is cancelled or the subscription closes.
func (h *Hub) Forward(ctx context.Context, f feed.Feed, stage Stage, backend Backend) {
	events := f.Subscribe(ctx, feed.Filter{Table: feed.QueueTable, Op: feed.OpUpdate})
	announced := newRecentIDs(announcedMemory)

	play := func(item *domain.QueueItem) {
		if announced.has(item.ID) {
			return
		}
		frame, err := backend.FrameFor(ctx, item)
		if err != nil {
			h.logger.Error("could not render play frame", zap.String("item_id", item.ID), zap.Error(err))
			return
		}
		announced.add(item.ID)
		h.Broadcast(frame)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch {
			case e.New != nil && e.New.Status == domain.StatusPlaying &&
				(e.Old == nil || e.Old.Status != domain.StatusPlaying):
				play(e.New)
			case e.IsFreshCompletion():
				h.Broadcast(completeFrame(e.New.ID))
			}
		case <-h.resync:
			if item := stage.Playing(); item != nil {
				play(item)
			}
		}
	}
}

// sighted records a display reporting itemID as on screen.
func (h *Hub) sighted(itemID string) {
	now := time.Now()
	h.sightingsMu.Lock()
	defer h.sightingsMu.Unlock()
	for id, at := range h.sightings {
		if now.Sub(at) > sightingTTL {
			delete(h.sightings, id)
		}
	}
	h.sightings[itemID] = now
}

// Vouched reports whether any display reported itemID as on screen within
// the last window.
func (h *Hub) Vouched(itemID string, within time.Duration) bool {
	h.sightingsMu.Lock()
	defer h.sightingsMu.Unlock()
	at, ok := h.sightings[itemID]
	return ok && time.Since(at) <= within
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) broadcastToClients(f Frame) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var slow []*Client
	for _, c := range clients {
		select {
		case c.send <- f:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		close(c.send)
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if len(slow) > 0 {
		h.onClients(n)
		h.logger.Warn("dropped slow displays", zap.Int("dropped", len(slow)))
	}
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.onClients(0)
	return n
}

// recentIDs is a fixed-size ring of item ids.
type recentIDs struct {
	ids  []string
	next int
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{ids: make([]string, 0, n)}
}

func (r *recentIDs) has(id string) bool {
	return slices.Contains(r.ids, id)
}

func (r *recentIDs) add(id string) {
	if len(r.ids) < cap(r.ids) {
		r.ids = append(r.ids, id)
		return
	}
	r.ids[r.next] = id
	r.next = (r.next + 1) % len(r.ids)
}
