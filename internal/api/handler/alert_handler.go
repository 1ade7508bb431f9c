package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/tnjtools/alertqueue/internal/api/middleware"
	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/service"
)

// AlertHandler serves alert definitions and the trigger entry points.
type AlertHandler struct {
	svc    *service.QueueService
	logger *zap.Logger
}

func NewAlertHandler(svc *service.QueueService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/alerts
//
// @Summary  Create an alert definition
// @Tags     alerts
// @Accept   json
// @Produce  json
// @Param    body  body      domain.CreateAlertRequest  true  "Alert definition"
// @Success  201   {object}  domain.Alert
// @Failure  409   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/alerts [post]
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := h.svc.CreateAlert(r.Context(), req)
	if err != nil {
		h.logger.Warn("create alert failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// List handles GET /api/v1/alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.ListAlerts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  alerts,
		"total": len(alerts),
	})
}

// Get handles GET /api/v1/alerts/{slug}
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAlert(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// Trigger handles POST /api/v1/alerts/{slug}/trigger
//
// @Summary  Enqueue an alert
// @Tags     alerts
// @Accept   json
// @Produce  json
// @Param    slug  path      string                 true   "Alert slug"
// @Param    body  body      domain.TriggerRequest  false  "Submitter details"
// @Success  201   {object}  domain.QueueItem
// @Failure  404   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Failure  429   {object}  map[string]string
// @Router   /api/v1/alerts/{slug}/trigger [post]
func (h *AlertHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req domain.TriggerRequest
	// An empty body is a valid anonymous trigger.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.trigger(w, r, req)
}

// TriggerQuery handles GET /api/v1/alerts/{slug}/trigger?username=&count=
// for chat bots that can only issue GET requests.
func (h *AlertHandler) TriggerQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req domain.TriggerRequest
	if q.Has("username") {
		name := q.Get("username")
		req.Username = &name
	}
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			mapError(w, domain.ErrInvalidCount)
			return
		}
		req.Count = &n
	}
	h.trigger(w, r, req)
}

func (h *AlertHandler) trigger(w http.ResponseWriter, r *http.Request, req domain.TriggerRequest) {
	slug := chi.URLParam(r, "slug")
	item, err := h.svc.Trigger(r.Context(), slug, req)
	if err != nil {
		h.logger.Warn("trigger failed",
			zap.String("slug", slug),
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}
