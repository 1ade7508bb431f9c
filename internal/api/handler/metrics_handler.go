package handler

import (
	"net/http"

	"github.com/tnjtools/alertqueue/internal/domain"
)

// CountsSource is satisfied by *service.QueueService.
type CountsSource interface {
	Counts() domain.StatusCounts
}

// ClientCounter is satisfied by *display.Hub.
type ClientCounter interface {
	ClientCount() int
}

// MetricsHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics are available at /metrics via promhttp and are
// separate from this endpoint.
type MetricsHandler struct {
	counts   CountsSource
	displays ClientCounter
}

func NewMetricsHandler(counts CountsSource, displays ClientCounter) *MetricsHandler {
	return &MetricsHandler{counts: counts, displays: displays}
}

// GetMetrics handles GET /api/v1/metrics
//
// @Summary  Queue status snapshot
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	c := h.counts.Counts()
	respondJSON(w, http.StatusOK, map[string]any{
		"queue": map[string]int{
			"pending":   c.Pending,
			"playing":   c.Playing,
			"completed": c.Completed,
			"total":     c.Pending + c.Playing + c.Completed,
		},
		"display_clients": h.displays.ClientCount(),
	})
}
