package display_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/display"
	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/feed"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestRender(t *testing.T) {
	item := &domain.QueueItem{ID: "q1", Username: strPtr("kyle"), Count: intPtr(5)}

	tests := []struct {
		name  string
		alert domain.Alert
		check func(t *testing.T, body display.Body)
	}{
		{
			name:  "gift",
			alert: domain.Alert{Kind: domain.KindGift, Slug: "subs", Message: "{username} gifted {count} subs"},
			check: func(t *testing.T, body display.Body) {
				g, ok := body.(display.GiftFrame)
				if !ok {
					t.Fatalf("expected GiftFrame, got %T", body)
				}
				if g.Message != "kyle gifted 5 subs" || g.Count != 5 || g.Username != "kyle" {
					t.Fatalf("unexpected gift frame %+v", g)
				}
			},
		},
		{
			name:  "media",
			alert: domain.Alert{Kind: domain.KindMedia, Slug: "horn", Message: "HONK", MediaURL: strPtr("https://cdn.example.com/horn.webm")},
			check: func(t *testing.T, body display.Body) {
				m, ok := body.(display.MediaFrame)
				if !ok {
					t.Fatalf("expected MediaFrame, got %T", body)
				}
				if m.MediaURL != "https://cdn.example.com/horn.webm" {
					t.Fatalf("unexpected media url %q", m.MediaURL)
				}
			},
		},
		{
			name:  "text",
			alert: domain.Alert{Kind: domain.KindText, Slug: "hi", Message: "hello {username}"},
			check: func(t *testing.T, body display.Body) {
				x, ok := body.(display.TextFrame)
				if !ok || x.Message != "hello kyle" {
					t.Fatalf("unexpected text frame %#v", body)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := display.Render(item, &tc.alert)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Type != display.FramePlay || f.ItemID != "q1" || f.Alert.Kind != tc.alert.Kind {
				t.Fatalf("unexpected envelope %+v", f)
			}
			tc.check(t, f.Alert.Body)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	item := &domain.QueueItem{ID: "q1"}

	_, err := display.Render(item, &domain.Alert{Kind: "confetti"})
	if !errors.Is(err, domain.ErrUnknownAlertKind) {
		t.Fatalf("expected ErrUnknownAlertKind, got %v", err)
	}
	_, err = display.Render(item, &domain.Alert{Kind: domain.KindMedia})
	if !errors.Is(err, domain.ErrInvalidMediaURL) {
		t.Fatalf("expected ErrInvalidMediaURL, got %v", err)
	}
}

func TestRender_GiftCountDefaultsToOne(t *testing.T) {
	f, err := display.Render(&domain.QueueItem{ID: "q1"}, &domain.Alert{Kind: domain.KindGift, Message: "{username} x{count}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g := f.Alert.Body.(display.GiftFrame)
	if g.Count != 1 || g.Message != "Someone x1" {
		t.Fatalf("unexpected defaults %+v", g)
	}
}

type fakeBackend struct {
	mu        sync.Mutex
	current   *display.Frame
	completed []string
	done      chan string
}

func (b *fakeBackend) CurrentFrame(context.Context) (*display.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, nil
}

func (b *fakeBackend) FrameFor(_ context.Context, item *domain.QueueItem) (display.Frame, error) {
	return display.Render(item, &domain.Alert{Kind: domain.KindText, Message: "now playing"})
}

func (b *fakeBackend) Complete(_ context.Context, itemID string) error {
	b.mu.Lock()
	b.completed = append(b.completed, itemID)
	b.mu.Unlock()
	b.done <- itemID
	return nil
}

type fakeStage struct {
	mu   sync.Mutex
	item *domain.QueueItem
}

func (s *fakeStage) Playing() *domain.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.item
}

func (s *fakeStage) set(item *domain.QueueItem) {
	s.mu.Lock()
	s.item = item
	s.mu.Unlock()
}

type testEnv struct {
	hub     *display.Hub
	backend *fakeBackend
	server  *httptest.Server
	cancel  context.CancelFunc
}

func newEnv(t *testing.T, origins []string) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := display.NewHub(zap.NewNop())
	go hub.Run(ctx)

	backend := &fakeBackend{done: make(chan string, 4)}
	srv := httptest.NewServer(display.NewGateway(hub, backend, origins, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testEnv{hub: hub, backend: backend, server: srv, cancel: cancel}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(time.Second)
	for e.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func TestGateway_SendsCurrentFrameOnConnect(t *testing.T) {
	env := newEnv(t, nil)
	f, _ := display.Render(&domain.QueueItem{ID: "live"}, &domain.Alert{Kind: domain.KindText, Message: "hi"})
	env.backend.current = &f

	conn := env.dial(t)
	m := readFrame(t, conn)
	if m["type"] != "play" || m["item_id"] != "live" {
		t.Fatalf("unexpected first frame %v", m)
	}
}

func TestGateway_BroadcastAndPing(t *testing.T) {
	env := newEnv(t, nil)
	conn := env.dial(t)

	env.hub.Broadcast(display.Frame{Type: display.FrameComplete, ItemID: "a"})
	if m := readFrame(t, conn); m["type"] != "complete" || m["item_id"] != "a" {
		t.Fatalf("unexpected broadcast %v", m)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := readFrame(t, conn); m["type"] != "pong" {
		t.Fatalf("expected pong, got %v", m)
	}

	if err := conn.WriteJSON(map[string]string{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := readFrame(t, conn); m["type"] != "error" {
		t.Fatalf("expected error frame, got %v", m)
	}
}

func TestGateway_CompleteMessage(t *testing.T) {
	env := newEnv(t, nil)
	conn := env.dial(t)

	if err := conn.WriteJSON(map[string]string{"type": "complete", "item_id": "q7"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case id := <-env.backend.done:
		if id != "q7" {
			t.Fatalf("completed %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backend never saw the completion")
	}
}

func TestGateway_RejectsUnknownOrigin(t *testing.T) {
	env := newEnv(t, []string{"https://obs.local"})
	url := "ws" + strings.TrimPrefix(env.server.URL, "http")

	header := map[string][]string{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected handshake to be rejected")
	}

	header = map[string][]string{"Origin": {"https://obs.local"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	_ = conn.Close()
}

func TestHub_ForwardsFeedEvents(t *testing.T) {
	env := newEnv(t, nil)
	conn := env.dial(t)

	broker := feed.NewBroker(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Forward(ctx, broker, &fakeStage{}, env.backend)
	waitForForwarder(t, broker)

	now := time.Now()
	broker.Publish(feed.ChangeEvent{
		Table: feed.QueueTable, Op: feed.OpUpdate,
		Old: &domain.QueueItem{ID: "a", Status: domain.StatusPending},
		New: &domain.QueueItem{ID: "a", Status: domain.StatusPlaying},
	})
	broker.Publish(feed.ChangeEvent{
		Table: feed.QueueTable, Op: feed.OpUpdate,
		Old: &domain.QueueItem{ID: "a", Status: domain.StatusPlaying},
		New: &domain.QueueItem{ID: "a", Status: domain.StatusCompleted, CompletedAt: &now},
	})

	if m := readFrame(t, conn); m["type"] != "play" || m["item_id"] != "a" {
		t.Fatalf("expected play frame, got %v", m)
	}
	if m := readFrame(t, conn); m["type"] != "complete" || m["item_id"] != "a" {
		t.Fatalf("expected complete frame, got %v", m)
	}
}

func waitForForwarder(t *testing.T, broker *feed.Broker) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for broker.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("forwarder never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_ResyncAnnouncesStageWithoutFeed(t *testing.T) {
	env := newEnv(t, nil)
	conn := env.dial(t)

	// The broker never publishes, as when the change feed is down.
	broker := feed.NewBroker(zap.NewNop())
	stage := &fakeStage{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Forward(ctx, broker, stage, env.backend)
	waitForForwarder(t, broker)

	stage.set(&domain.QueueItem{ID: "a", Status: domain.StatusPlaying})
	env.hub.Resync()
	if m := readFrame(t, conn); m["type"] != "play" || m["item_id"] != "a" {
		t.Fatalf("expected play frame for a, got %v", m)
	}

	// A repeat snapshot, or a late change event, must not replay a.
	env.hub.Resync()
	broker.Publish(feed.ChangeEvent{
		Table: feed.QueueTable, Op: feed.OpUpdate,
		Old: &domain.QueueItem{ID: "a", Status: domain.StatusPending},
		New: &domain.QueueItem{ID: "a", Status: domain.StatusPlaying},
	})
	stage.set(&domain.QueueItem{ID: "b", Status: domain.StatusPlaying})
	time.Sleep(20 * time.Millisecond)
	env.hub.Resync()
	if m := readFrame(t, conn); m["type"] != "play" || m["item_id"] != "b" {
		t.Fatalf("expected play frame for b next, got %v", m)
	}
}

func TestGateway_HeartbeatVouchesForItem(t *testing.T) {
	env := newEnv(t, nil)
	conn := env.dial(t)

	if env.hub.Vouched("a", time.Minute) {
		t.Fatal("nothing reported yet")
	}
	if err := conn.WriteJSON(map[string]string{"type": "heartbeat", "item_id": "a"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !env.hub.Vouched("a", time.Minute) {
		if time.Now().After(deadline) {
			t.Fatal("display heartbeat never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if env.hub.Vouched("b", time.Minute) {
		t.Fatal("heartbeat for a must not vouch for b")
	}
	time.Sleep(20 * time.Millisecond)
	if env.hub.Vouched("a", 10*time.Millisecond) {
		t.Fatal("an old heartbeat must fall outside a short window")
	}

	if err := conn.WriteJSON(map[string]string{"type": "heartbeat"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := readFrame(t, conn); m["type"] != "error" {
		t.Fatalf("expected error frame for heartbeat without item, got %v", m)
	}
}
