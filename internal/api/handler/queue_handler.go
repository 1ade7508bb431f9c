package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/tnjtools/alertqueue/internal/api/middleware"
	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/service"
)

// QueueHandler exposes the queue snapshot and the manual controls.
type QueueHandler struct {
	svc    *service.QueueService
	logger *zap.Logger
}

func NewQueueHandler(svc *service.QueueService, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/queue
//
// @Summary  Queue snapshot in processing order
// @Tags     queue
// @Produce  json
// @Param    fresh  query     bool  false  "Refetch from the store before answering"
// @Success  200    {object}  map[string]any
// @Router   /api/v1/queue [get]
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Queue(r.Context(), r.URL.Query().Get("fresh") == "true")
	if err != nil {
		h.logger.Error("queue read failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":   items,
		"counts": domain.CountByStatus(items),
	})
}

// Current handles GET /api/v1/queue/current. data is null when nothing
// is playing.
func (h *QueueHandler) Current(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"data": h.svc.Current()})
}

// GetByID handles GET /api/v1/queue/{id}
func (h *QueueHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// Advance handles POST /api/v1/queue/advance
//
// @Summary  Run one advancement attempt now
// @Tags     queue
// @Produce  json
// @Success  200  {object}  worker.Result
// @Failure  500  {object}  map[string]string
// @Router   /api/v1/queue/advance [post]
func (h *QueueHandler) Advance(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Advance(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Complete handles POST /api/v1/queue/{id}/complete
//
// @Summary  Mark the playing item completed
// @Tags     queue
// @Param    id   path  string  true  "Queue item id"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/queue/{id}/complete [post]
func (h *QueueHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Complete(r.Context(), id); err != nil {
		h.logger.Info("complete rejected",
			zap.String("item_id", id),
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
