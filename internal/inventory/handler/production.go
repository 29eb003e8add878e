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

// ProductionHandler handles product and production endpoints
type ProductionHandler struct {
	service *service.ProductionService
	logger  *logger.Logger
}

// NewProductionHandler creates a new production handler
func NewProductionHandler(svc *service.ProductionService, log *logger.Logger) *ProductionHandler {
	return &ProductionHandler{
		service: svc,
		logger:  log,
	}
}

// CreateProduct registers a semi-finished product
func (h *ProductionHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req struct {
		Name           string          `json:"name" validate:"required"`
		Unit           string          `json:"unit" validate:"required"`
		Yield          decimal.Decimal `json:"yield" validate:"required"`
		ShelfLifeHours *int            `json:"shelf_life_hours"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	product := &repository.Product{
		Name:           req.Name,
		Unit:           req.Unit,
		Yield:          req.Yield,
		ShelfLifeHours: req.ShelfLifeHours,
	}
	if err := h.service.CreateProduct(r.Context(), tenantID, product); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, product)
}

// GetProduct returns a product with its recipe
func (h *ProductionHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	product, lines, err := h.service.GetProduct(r.Context(), tenantID, id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"product": product,
		"recipe":  lines,
	})
}

// AddRecipeLine appends an ingredient to a product's recipe
func (h *ProductionHandler) AddRecipeLine(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	productID := chi.URLParam(r, "id")

	var req struct {
		ItemID   string          `json:"item_id" validate:"required"`
		Quantity decimal.Decimal `json:"quantity" validate:"required"`
		Unit     string          `json:"unit" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	line := &repository.RecipeLine{
		ProductID: productID,
		ItemID:    req.ItemID,
		Quantity:  req.Quantity,
		Unit:      req.Unit,
	}
	if err := h.service.AddRecipeLine(r.Context(), tenantID, line); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, line)
}

// Produce runs a production of a product
func (h *ProductionHandler) Produce(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	productID := chi.URLParam(r, "id")

	var req struct {
		Quantity decimal.Decimal `json:"quantity" validate:"required"`
		Note     *string         `json:"note"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Produce(r.Context(), tenantID, service.ProduceRequest{
		ProductID: productID,
		Quantity:  req.Quantity,
		Note:      req.Note,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}
