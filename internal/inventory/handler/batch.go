package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/service"
	"github.com/stocklot/stocklot-backend/pkg/httputil"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service  *service.InventoryService
	executor *service.Executor
	logger   *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.InventoryService, exec *service.Executor, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service:  svc,
		executor: exec,
		logger:   log,
	}
}

// ListByItem lists an item's active batches
func (h *BatchHandler) ListByItem(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	itemID := chi.URLParam(r, "id")

	batches, err := h.service.ListBatches(r.Context(), tenantID, itemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Intake receives a new batch for an item
func (h *BatchHandler) Intake(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	itemID := chi.URLParam(r, "id")

	var req struct {
		Quantity    decimal.Decimal `json:"quantity" validate:"required"`
		Unit        string          `json:"unit"`
		UnitCost    decimal.Decimal `json:"unit_cost"`
		ExpiryDate  *time.Time      `json:"expiry_date"`
		SupplierRef *string         `json:"supplier_ref"`
		Reference   *string         `json:"reference"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.Intake(r.Context(), tenantID, service.IntakeRequest{
		ItemID:      itemID,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		UnitCost:    req.UnitCost,
		ExpiryDate:  req.ExpiryDate,
		SupplierRef: req.SupplierRef,
		Reference:   req.Reference,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// Correct reconciles a batch against a physical count
func (h *BatchHandler) Correct(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	batchID := chi.URLParam(r, "id")

	var req struct {
		Counted decimal.Decimal `json:"counted"`
		Reason  *string         `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	rec, err := h.executor.Correct(r.Context(), tenantID, service.CorrectionRequest{
		BatchID: batchID,
		Counted: req.Counted,
		Reason:  req.Reason,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rec)
}

// Wastage discards stock from an item
func (h *BatchHandler) Wastage(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	itemID := chi.URLParam(r, "id")

	var req struct {
		Quantity decimal.Decimal `json:"quantity" validate:"required"`
		Unit     string          `json:"unit"`
		BatchID  string          `json:"batch_id"`
		Reason   *string         `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.RecordWastage(r.Context(), tenantID, service.WastageRequest{
		ItemID:   itemID,
		Quantity: req.Quantity,
		Unit:     req.Unit,
		BatchID:  req.BatchID,
		Reason:   req.Reason,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
