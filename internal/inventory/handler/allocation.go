package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/internal/inventory/service"
	"github.com/stocklot/stocklot-backend/pkg/httputil"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// AllocationHandler handles allocation planning and consumption endpoints
type AllocationHandler struct {
	allocator *service.Allocator
	executor  *service.Executor
	logger    *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(alloc *service.Allocator, exec *service.Executor, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		allocator: alloc,
		executor:  exec,
		logger:    log,
	}
}

// Suggest returns a batch allocation plan without touching stock
func (h *AllocationHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	itemID := chi.URLParam(r, "id")

	var req struct {
		Quantity decimal.Decimal `json:"quantity" validate:"required"`
		Unit     string          `json:"unit"`
		BatchID  string          `json:"batch_id"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	var result *service.AllocationResult
	var err error
	if req.BatchID != "" {
		result, err = h.allocator.SuggestFromBatch(r.Context(), tenantID, itemID, req.BatchID, req.Quantity, req.Unit)
	} else {
		result, err = h.allocator.Suggest(r.Context(), tenantID, itemID, req.Quantity, req.Unit)
	}
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// SuggestProduct returns an allocation plan over a product's prepared
// batches without touching stock
func (h *AllocationHandler) SuggestProduct(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	productID := chi.URLParam(r, "id")

	var req struct {
		Quantity decimal.Decimal `json:"quantity" validate:"required"`
		Unit     string          `json:"unit"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.allocator.SuggestProduct(r.Context(), tenantID, productID, req.Quantity, req.Unit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// ConsumeProduct executes a consumption against a product's prepared stock
func (h *AllocationHandler) ConsumeProduct(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	productID := chi.URLParam(r, "id")

	var req struct {
		Quantity  decimal.Decimal `json:"quantity" validate:"required"`
		Unit      string          `json:"unit"`
		Kind      string          `json:"kind"`
		Reference *string         `json:"reference"`
		Note      *string         `json:"note"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	kind := repository.MovementKind(req.Kind)
	if req.Kind == "" {
		kind = repository.MovementSale
	}

	result, err := h.executor.ExecuteProduct(r.Context(), tenantID, service.ProductConsumeRequest{
		ProductID: productID,
		Quantity:  req.Quantity,
		Unit:      req.Unit,
		Kind:      kind,
		Reference: req.Reference,
		Note:      req.Note,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Consume executes a consumption against an item
func (h *AllocationHandler) Consume(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	itemID := chi.URLParam(r, "id")

	var req struct {
		Quantity  decimal.Decimal `json:"quantity" validate:"required"`
		Unit      string          `json:"unit"`
		Kind      string          `json:"kind"`
		BatchID   string          `json:"batch_id"`
		Reference *string         `json:"reference"`
		Note      *string         `json:"note"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	kind := repository.MovementKind(req.Kind)
	if req.Kind == "" {
		kind = repository.MovementSale
	}

	result, err := h.executor.Execute(r.Context(), tenantID, service.ConsumeRequest{
		ItemID:           itemID,
		Quantity:         req.Quantity,
		Unit:             req.Unit,
		Kind:             kind,
		PreferredBatchID: req.BatchID,
		Reference:        req.Reference,
		Note:             req.Note,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
