package service_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/display"
	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/feed"
	"github.com/tnjtools/alertqueue/internal/queue"
	"github.com/tnjtools/alertqueue/internal/ratelimiter"
	"github.com/tnjtools/alertqueue/internal/repository"
	"github.com/tnjtools/alertqueue/internal/service"
	"github.com/tnjtools/alertqueue/internal/worker"
)

func readDisplayFrame(t *testing.T, conn *websocket.Conn) display.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read display frame: %v", err)
	}
	var f struct {
		Type   display.FrameType `json:"type"`
		ItemID string            `json:"item_id"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return display.Frame{Type: f.Type, ItemID: f.ItemID}
}

// TestDisplayHandoff_WithoutChangeFeed runs the whole stack with a broker
// that never publishes. The poll timer alone must move the queue, and the
// connected display must still be told about every item it has to play.
func TestDisplayHandoff_WithoutChangeFeed(t *testing.T) {
	qr := repository.NewMockQueueRepository()
	ar := repository.NewMockAlertRepository(giftAlert, textAlert)
	broker := feed.NewBroker(zap.NewNop())
	hub := display.NewHub(zap.NewNop())

	reader := queue.NewReader(qr, zap.NewNop())
	reader.OnSnapshot(func(domain.StatusCounts) { hub.Resync() })

	pool := worker.NewPool(worker.Settings{
		InstanceID:         "studio",
		PollInterval:       50 * time.Millisecond,
		HeartbeatInterval:  20 * time.Millisecond,
		StaleAfter:         10 * time.Second,
		SweepInterval:      time.Hour,
		CompletionDebounce: 50 * time.Millisecond,
	}, qr, reader, broker, hub, zap.NewNop(), worker.MetricHooks{})
	svc := service.NewQueueService(ar, qr, reader, pool.Coordinator(), ratelimiter.New(0), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go hub.Forward(ctx, broker, reader, svc)
	pool.Start(ctx)

	srv := httptest.NewServer(display.NewGateway(hub, svc, nil, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		pool.Wait()
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("display never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a, err := svc.Trigger(ctx, "hello", domain.TriggerRequest{})
	if err != nil {
		t.Fatalf("trigger a: %v", err)
	}
	if f := readDisplayFrame(t, conn); f.Type != display.FramePlay || f.ItemID != a.ID {
		t.Fatalf("expected play frame for %s, got %+v", a.ID, f)
	}

	b, err := svc.Trigger(ctx, "hello", domain.TriggerRequest{})
	if err != nil {
		t.Fatalf("trigger b: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "complete", "item_id": a.ID}); err != nil {
		t.Fatalf("write complete: %v", err)
	}
	if f := readDisplayFrame(t, conn); f.Type != display.FramePlay || f.ItemID != b.ID {
		t.Fatalf("expected play frame for %s, got %+v", b.ID, f)
	}

	item, err := svc.GetItem(ctx, a.ID)
	if err != nil || item.Status != domain.StatusCompleted {
		t.Fatalf("expected a completed, got %+v / %v", item, err)
	}
}
