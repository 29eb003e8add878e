package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/internal/inventory/service"
	"github.com/stocklot/stocklot-backend/pkg/httputil"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	service   *service.AlertService
	scheduler *service.Scheduler
	logger    *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc *service.AlertService, sched *service.Scheduler, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service:   svc,
		scheduler: sched,
		logger:    log,
	}
}

// ListActive returns unresolved alerts ordered by priority
func (h *AlertHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	alerts, err := h.service.ListActive(r.Context(), tenantID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alerts)
}

// List lists alerts with pagination
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var status *repository.AlertStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := repository.AlertStatus(s)
		status = &st
	}

	alerts, total, err := h.service.List(r.Context(), tenantID, status, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Acknowledge marks an alert as seen
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.service.Acknowledge(r.Context(), tenantID, id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Snooze silences an alert until a deadline
func (h *AlertHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	var req struct {
		Until time.Time `json:"until" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Snooze(r.Context(), tenantID, id, req.Until); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Resolve manually closes an alert
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.service.Resolve(r.Context(), tenantID, id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Sweep runs the lifecycle sweep and alert scan for the tenant on demand
func (h *AlertHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	lcStats, scanStats, err := h.scheduler.RunOnce(r.Context(), tenantID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"lifecycle": lcStats,
		"alerts":    scanStats,
	})
}
