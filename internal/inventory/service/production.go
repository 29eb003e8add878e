package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/database"
	"github.com/stocklot/stocklot-backend/pkg/errors"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// ProduceRequest runs a production of a semi-finished product
type ProduceRequest struct {
	ProductID string
	Quantity  decimal.Decimal
	Note      *string
}

// ProduceResult reports the created batch and the ingredient draws
type ProduceResult struct {
	Batch       *repository.DerivedBatch `json:"batch"`
	Consumption []ConsumeResult          `json:"consumption"`
}

// ProductionService turns ingredients into derived batches. An entire run
// is one transaction: every ingredient draw succeeds or the run leaves no
// trace. Recipe lines arrive ordered by ingredient ID, so concurrent runs
// lock items in a stable order and cannot deadlock each other.
type ProductionService struct {
	db      *database.DB
	recipes *repository.RecipeRepository
	derived *repository.DerivedBatchRepository
	exec    *Executor
	pub     *events.Publisher
	clk     clock.Clock
	log     *logger.Logger
}

// NewProductionService creates a new production service
func NewProductionService(
	db *database.DB,
	recipes *repository.RecipeRepository,
	derived *repository.DerivedBatchRepository,
	exec *Executor,
	pub *events.Publisher,
	clk clock.Clock,
	log *logger.Logger,
) *ProductionService {
	return &ProductionService{
		db:      db,
		recipes: recipes,
		derived: derived,
		exec:    exec,
		pub:     pub,
		clk:     clk,
		log:     log.WithComponent("production"),
	}
}

// CreateProduct registers a semi-finished product
func (s *ProductionService) CreateProduct(ctx context.Context, tenantID string, product *repository.Product) error {
	if !product.Yield.IsPositive() {
		return errors.BadRequest("yield must be positive")
	}
	product.IsActive = true
	return s.recipes.CreateProduct(ctx, tenantID, product)
}

// GetProduct gets a product with its recipe lines
func (s *ProductionService) GetProduct(ctx context.Context, tenantID, id string) (*repository.Product, []*repository.RecipeLine, error) {
	product, err := s.recipes.GetProduct(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	lines, err := s.recipes.ListLines(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	return product, lines, nil
}

// AddRecipeLine appends an ingredient to a product's recipe
func (s *ProductionService) AddRecipeLine(ctx context.Context, tenantID string, line *repository.RecipeLine) error {
	if !line.Quantity.IsPositive() {
		return errors.BadRequest("quantity must be positive")
	}
	if _, err := s.recipes.GetProduct(ctx, tenantID, line.ProductID); err != nil {
		return err
	}
	return s.recipes.AddLine(ctx, tenantID, line)
}

// Produce consumes a product's ingredients at the requested scale and
// creates the derived batch. Ingredient quantities scale linearly with the
// requested output over the recipe yield.
func (s *ProductionService) Produce(ctx context.Context, tenantID string, req ProduceRequest) (*ProduceResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, errors.BadRequest("quantity must be positive")
	}

	product, err := s.recipes.GetProduct(ctx, tenantID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, errors.BadRequest("product is inactive")
	}
	if !product.Yield.IsPositive() {
		return nil, errors.BadRequest("product has no yield defined")
	}

	lines, err := s.recipes.ListLines(ctx, tenantID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.BadRequest("product has no recipe")
	}

	scale := req.Quantity.Div(product.Yield)
	producedAt := s.clk.Now()

	result := &ProduceResult{Consumption: make([]ConsumeResult, 0, len(lines))}
	var movements []*repository.TransactionRecord

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		totalCost := decimal.Zero

		for _, line := range lines {
			consumed, recs, err := s.exec.consume(ctx, tenantID, ConsumeRequest{
				ItemID:   line.ItemID,
				Quantity: line.Quantity.Mul(scale),
				Unit:     line.Unit,
				Kind:     repository.MovementPreparation,
				Note:     req.Note,
			})
			if err != nil {
				return err
			}
			result.Consumption = append(result.Consumption, *consumed)
			movements = append(movements, recs...)
			totalCost = totalCost.Add(consumed.TotalCost)
		}

		batch := &repository.DerivedBatch{
			ProductID:         product.ID,
			BatchNumber:       repository.DerivedBatchNumber(product.Name, producedAt),
			QuantityProduced:  req.Quantity,
			QuantityRemaining: req.Quantity,
			Unit:              product.Unit,
			TotalCost:         totalCost,
			ProducedAt:        producedAt,
			IsActive:          true,
		}
		if product.ShelfLifeHours != nil {
			expiry := producedAt.Add(time.Duration(*product.ShelfLifeHours) * time.Hour)
			batch.ExpiryDate = &expiry
		}

		if err := s.derived.Create(ctx, tenantID, batch); err != nil {
			return err
		}
		result.Batch = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range movements {
		s.pub.StockMovement(ctx, tenantID, rec)
	}
	s.pub.BatchProduced(ctx, tenantID, result.Batch)

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("product_id", product.ID).
		Str("batch_number", result.Batch.BatchNumber).
		Str("quantity", req.Quantity.String()).
		Str("total_cost", result.Batch.TotalCost.String()).
		Msg("production run completed")

	return result, nil
}
