package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/feed"
	"github.com/tnjtools/alertqueue/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
// Using a custom registry keeps tests isolated and avoids global state.
type Metrics struct {
	Advancements   *prometheus.CounterVec
	Heartbeats     *prometheus.CounterVec
	Recovered      *prometheus.CounterVec
	Triggers       *prometheus.CounterVec
	FeedEvents     *prometheus.CounterVec
	FeedReconnects prometheus.Counter
	FeedDrops      prometheus.Counter
	QueueItems     *prometheus.GaugeVec
	DisplayClients prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Advancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertqueue_advancements_total",
			Help: "Advancement attempts by outcome (advanced, busy, empty, lost_race, in_flight, error).",
		}, []string{"outcome"}),

		Heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertqueue_heartbeats_total",
			Help: "Heartbeat writes for the playing item owned by this instance.",
		}, []string{"result"}),

		Recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertqueue_recovered_items_total",
			Help: "Playing items force-completed by startup recovery or the staleness sweep.",
		}, []string{"reason"}),

		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertqueue_triggers_total",
			Help: "Accepted alert triggers by alert slug.",
		}, []string{"alert"}),

		FeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertqueue_feed_events_total",
			Help: "Change feed notifications received, by operation.",
		}, []string{"op"}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertqueue_feed_reconnects_total",
			Help: "Successful change feed reconnections.",
		}),

		FeedDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertqueue_feed_dropped_events_total",
			Help: "Change events dropped for subscribers that fell behind.",
		}),

		QueueItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertqueue_items",
			Help: "Queue rows by status in the latest snapshot.",
		}, []string{"status"}),

		DisplayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertqueue_display_clients",
			Help: "Connected display surfaces.",
		}),
	}

	reg.MustRegister(
		m.Advancements,
		m.Heartbeats,
		m.Recovered,
		m.Triggers,
		m.FeedEvents,
		m.FeedReconnects,
		m.FeedDrops,
		m.QueueItems,
		m.DisplayClients,
	)

	return m
}

// WorkerHooks returns the callbacks expected by worker.MetricHooks.
// Centralises the prometheus calls so the worker package stays import-free.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnAdvance: func(outcome string) {
			m.Advancements.WithLabelValues(outcome).Inc()
		},
		OnHeartbeat: func(ok bool) {
			result := "ok"
			if !ok {
				result = "error"
			}
			m.Heartbeats.WithLabelValues(result).Inc()
		},
		OnRecovered: func(reason string, n int) {
			m.Recovered.WithLabelValues(reason).Add(float64(n))
		},
	}
}

// FeedHooks returns the callbacks for feed.Listener.SetHooks.
func (m *Metrics) FeedHooks() (onEvent func(feed.Op), onReconnect func()) {
	onEvent = func(op feed.Op) {
		m.FeedEvents.WithLabelValues(string(op)).Inc()
	}
	onReconnect = m.FeedReconnects.Inc
	return
}

// ObserveCounts publishes a snapshot's per-status counts.
func (m *Metrics) ObserveCounts(c domain.StatusCounts) {
	m.QueueItems.WithLabelValues(string(domain.StatusPending)).Set(float64(c.Pending))
	m.QueueItems.WithLabelValues(string(domain.StatusPlaying)).Set(float64(c.Playing))
	m.QueueItems.WithLabelValues(string(domain.StatusCompleted)).Set(float64(c.Completed))
}

func (m *Metrics) ObserveTrigger(slug string) {
	m.Triggers.WithLabelValues(slug).Inc()
}

func (m *Metrics) ObserveDisplayClients(n int) {
	m.DisplayClients.Set(float64(n))
}
