package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/lifecycle"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/internal/inventory/units"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/database"
	"github.com/stocklot/stocklot-backend/pkg/errors"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// ConsumeRequest asks the executor to draw stock from an item
type ConsumeRequest struct {
	ItemID           string
	Quantity         decimal.Decimal
	Unit             string
	Kind             repository.MovementKind
	PreferredBatchID string
	Reference        *string
	Note             *string
}

// ConsumedLine records one batch draw performed by the executor
type ConsumedLine struct {
	BatchID     string          `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// ConsumeResult is the outcome of an executed consumption
type ConsumeResult struct {
	ItemID    string          `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
	Lines     []ConsumedLine  `json:"lines"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// Executor performs stock consumption atomically. All batch decrements,
// the item aggregate decrement and the ledger writes commit together or
// not at all. Unlike the allocator, a shortage here is an error.
type Executor struct {
	db      *database.DB
	items   *repository.ItemRepository
	batches *repository.BatchRepository
	derived *repository.DerivedBatchRepository
	recipes *repository.RecipeRepository
	ledger  *repository.LedgerRepository
	pub     *events.Publisher
	clk     clock.Clock
	log     *logger.Logger
}

// NewExecutor creates a new consumption executor
func NewExecutor(
	db *database.DB,
	items *repository.ItemRepository,
	batches *repository.BatchRepository,
	derived *repository.DerivedBatchRepository,
	recipes *repository.RecipeRepository,
	ledger *repository.LedgerRepository,
	pub *events.Publisher,
	clk clock.Clock,
	log *logger.Logger,
) *Executor {
	return &Executor{
		db:      db,
		items:   items,
		batches: batches,
		derived: derived,
		recipes: recipes,
		ledger:  ledger,
		pub:     pub,
		clk:     clk,
		log:     log.WithComponent("executor"),
	}
}

// Execute consumes stock from an item following expiry order. When the item
// carries no batches at all the aggregate quantity is consumed directly,
// guarded by the item-level expiry date.
func (e *Executor) Execute(ctx context.Context, tenantID string, req ConsumeRequest) (*ConsumeResult, error) {
	if !req.Kind.Valid() {
		return nil, errors.BadRequest("unknown movement kind: " + string(req.Kind))
	}
	if !req.Quantity.IsPositive() {
		return nil, errors.BadRequest("quantity must be positive")
	}

	var result *ConsumeResult
	var movements []*repository.TransactionRecord

	err := e.db.Transaction(ctx, func(ctx context.Context) error {
		var err error
		result, movements, err = e.consume(ctx, tenantID, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range movements {
		e.pub.StockMovement(ctx, tenantID, rec)
	}

	e.log.Info().
		Str("tenant_id", tenantID).
		Str("item_id", req.ItemID).
		Str("quantity", result.Quantity.String()).
		Str("kind", string(req.Kind)).
		Int("batches", len(result.Lines)).
		Msg("stock consumed")

	return result, nil
}

// consume runs the consumption inside the enclosing transaction. The
// production service reuses it so a whole run commits atomically.
func (e *Executor) consume(ctx context.Context, tenantID string, req ConsumeRequest) (*ConsumeResult, []*repository.TransactionRecord, error) {
	item, err := e.items.LockForUpdate(ctx, tenantID, req.ItemID)
	if err != nil {
		return nil, nil, err
	}

	qty := req.Quantity
	if req.Unit != "" && req.Unit != item.Unit {
		qty, err = units.Convert(qty, req.Unit, item.Unit)
		if err != nil {
			return nil, nil, err
		}
	}

	batches, err := e.batches.ListAllocatable(ctx, tenantID, req.ItemID)
	if err != nil {
		return nil, nil, err
	}

	if len(batches) == 0 {
		return e.consumeStandalone(ctx, tenantID, item, qty, req)
	}

	if req.PreferredBatchID != "" {
		batches = promoteBatch(batches, req.PreferredBatchID)
	}

	plan := allocate(batches, qty, e.clk.Now(), item.FreshThresholdDays)
	if !plan.CanFulfill {
		return nil, nil, errors.InsufficientStock(item.Name, item.Unit, qty, plan.TotalAvailable)
	}

	result := &ConsumeResult{
		ItemID:    item.ID,
		Quantity:  qty,
		Unit:      item.Unit,
		Lines:     make([]ConsumedLine, 0, len(plan.Suggestions)),
		TotalCost: decimal.Zero,
	}
	var movements []*repository.TransactionRecord

	for _, s := range plan.Suggestions {
		if _, err := e.batches.LockForUpdate(ctx, tenantID, s.BatchID); err != nil {
			return nil, nil, err
		}
		ok, err := e.batches.DecrementRemaining(ctx, tenantID, s.BatchID, s.Quantity)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			// another transaction drained the batch after planning
			return nil, nil, errors.InsufficientStock(item.Name, item.Unit, qty, plan.TotalAvailable.Sub(s.Quantity))
		}

		batchID := s.BatchID
		rec := &repository.TransactionRecord{
			ItemID:    item.ID,
			BatchID:   &batchID,
			Kind:      req.Kind,
			Quantity:  s.Quantity.Neg(),
			Unit:      item.Unit,
			UnitCost:  s.UnitCost,
			Reference: req.Reference,
			Note:      req.Note,
		}
		if err := e.ledger.Append(ctx, tenantID, rec); err != nil {
			return nil, nil, err
		}
		movements = append(movements, rec)

		result.Lines = append(result.Lines, ConsumedLine{
			BatchID:     s.BatchID,
			BatchNumber: s.BatchNumber,
			Quantity:    s.Quantity,
			UnitCost:    s.UnitCost,
		})
		result.TotalCost = result.TotalCost.Add(s.Quantity.Mul(s.UnitCost))
	}

	ok, err := e.items.DecrementQuantity(ctx, tenantID, item.ID, qty)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errors.InsufficientStock(item.Name, item.Unit, qty, item.CurrentQuantity)
	}

	return result, movements, nil
}

// consumeStandalone draws from the item aggregate when no batches exist.
// Expiry is checked against the item-level date.
func (e *Executor) consumeStandalone(ctx context.Context, tenantID string, item *repository.StockItem, qty decimal.Decimal, req ConsumeRequest) (*ConsumeResult, []*repository.TransactionRecord, error) {
	if item.ExpiryDate != nil {
		if days := lifecycle.DaysUntilExpiry(*item.ExpiryDate, e.clk.Now()); days < 0 {
			return nil, nil, errors.ExpiredStock(item.Name, -days)
		}
	}

	ok, err := e.items.DecrementQuantity(ctx, tenantID, item.ID, qty)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errors.InsufficientStock(item.Name, item.Unit, qty, item.CurrentQuantity)
	}

	rec := &repository.TransactionRecord{
		ItemID:    item.ID,
		Kind:      req.Kind,
		Quantity:  qty.Neg(),
		Unit:      item.Unit,
		UnitCost:  item.UnitCost,
		Reference: req.Reference,
		Note:      req.Note,
	}
	if err := e.ledger.Append(ctx, tenantID, rec); err != nil {
		return nil, nil, err
	}

	result := &ConsumeResult{
		ItemID:    item.ID,
		Quantity:  qty,
		Unit:      item.Unit,
		Lines:     []ConsumedLine{},
		TotalCost: qty.Mul(item.UnitCost),
	}
	return result, []*repository.TransactionRecord{rec}, nil
}

// ProductConsumeRequest draws prepared stock from a product's batches
type ProductConsumeRequest struct {
	ProductID string
	Quantity  decimal.Decimal
	Unit      string
	Kind      repository.MovementKind
	Reference *string
	Note      *string
}

// ExecuteProduct consumes prepared stock from a product's derived batches
// in expiry order. Each ledger entry references the product and the batch
// it drew from.
func (e *Executor) ExecuteProduct(ctx context.Context, tenantID string, req ProductConsumeRequest) (*ConsumeResult, error) {
	if !req.Kind.Valid() {
		return nil, errors.BadRequest("unknown movement kind: " + string(req.Kind))
	}
	if !req.Quantity.IsPositive() {
		return nil, errors.BadRequest("quantity must be positive")
	}

	product, err := e.recipes.GetProduct(ctx, tenantID, req.ProductID)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	if req.Unit != "" && req.Unit != product.Unit {
		qty, err = units.Convert(qty, req.Unit, product.Unit)
		if err != nil {
			return nil, err
		}
	}

	var result *ConsumeResult
	var movements []*repository.TransactionRecord

	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		batches, err := e.derived.ListAllocatable(ctx, tenantID, req.ProductID)
		if err != nil {
			return err
		}

		plan := allocate(derivedBatchViews(batches), qty, e.clk.Now(), derivedFreshThresholdDays)
		if !plan.CanFulfill {
			return errors.InsufficientStock(product.Name, product.Unit, qty, plan.TotalAvailable)
		}

		result = &ConsumeResult{
			ItemID:    product.ID,
			Quantity:  qty,
			Unit:      product.Unit,
			Lines:     make([]ConsumedLine, 0, len(plan.Suggestions)),
			TotalCost: decimal.Zero,
		}

		for _, s := range plan.Suggestions {
			if _, err := e.derived.LockForUpdate(ctx, tenantID, s.BatchID); err != nil {
				return err
			}
			ok, err := e.derived.DecrementRemaining(ctx, tenantID, s.BatchID, s.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return errors.InsufficientStock(product.Name, product.Unit, qty, plan.TotalAvailable.Sub(s.Quantity))
			}

			batchID := s.BatchID
			rec := &repository.TransactionRecord{
				ItemID:    product.ID,
				BatchID:   &batchID,
				Kind:      req.Kind,
				Quantity:  s.Quantity.Neg(),
				Unit:      product.Unit,
				UnitCost:  s.UnitCost,
				Reference: req.Reference,
				Note:      req.Note,
			}
			if err := e.ledger.Append(ctx, tenantID, rec); err != nil {
				return err
			}
			movements = append(movements, rec)

			result.Lines = append(result.Lines, ConsumedLine{
				BatchID:     s.BatchID,
				BatchNumber: s.BatchNumber,
				Quantity:    s.Quantity,
				UnitCost:    s.UnitCost,
			})
			result.TotalCost = result.TotalCost.Add(s.Quantity.Mul(s.UnitCost))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range movements {
		e.pub.StockMovement(ctx, tenantID, rec)
	}

	e.log.Info().
		Str("tenant_id", tenantID).
		Str("product_id", product.ID).
		Str("quantity", qty.String()).
		Str("kind", string(req.Kind)).
		Int("batches", len(result.Lines)).
		Msg("prepared stock consumed")

	return result, nil
}

// CorrectionRequest adjusts a batch's remaining quantity to a counted value
type CorrectionRequest struct {
	BatchID string
	Counted decimal.Decimal
	Reason  *string
}

// Correct reconciles a batch against a physical count. The delta is applied
// to the batch and the item aggregate, and an adjustment entry is appended
// so the ledger still sums to the on-hand quantity.
func (e *Executor) Correct(ctx context.Context, tenantID string, req CorrectionRequest) (*repository.TransactionRecord, error) {
	if req.Counted.IsNegative() {
		return nil, errors.BadRequest("counted quantity cannot be negative")
	}

	var rec *repository.TransactionRecord

	err := e.db.Transaction(ctx, func(ctx context.Context) error {
		batch, err := e.batches.LockForUpdate(ctx, tenantID, req.BatchID)
		if err != nil {
			return err
		}
		if req.Counted.GreaterThan(batch.QuantityReceived) {
			return errors.BadRequest("counted quantity exceeds quantity received")
		}
		if _, err := e.items.LockForUpdate(ctx, tenantID, batch.ItemID); err != nil {
			return err
		}

		delta := req.Counted.Sub(batch.QuantityRemaining)
		if delta.IsZero() {
			return errors.BadRequest("counted quantity matches recorded quantity")
		}

		if delta.IsPositive() {
			if err := e.batches.AddRemaining(ctx, tenantID, batch.ID, delta); err != nil {
				return err
			}
			if err := e.items.IncrementQuantity(ctx, tenantID, batch.ItemID, delta); err != nil {
				return err
			}
		} else {
			ok, err := e.batches.DecrementRemaining(ctx, tenantID, batch.ID, delta.Neg())
			if err != nil {
				return err
			}
			if !ok {
				return errors.ConcurrentModification("batch")
			}
			ok, err = e.items.DecrementQuantity(ctx, tenantID, batch.ItemID, delta.Neg())
			if err != nil {
				return err
			}
			if !ok {
				return errors.ConcurrentModification("item")
			}
		}

		batchID := batch.ID
		rec = &repository.TransactionRecord{
			ItemID:   batch.ItemID,
			BatchID:  &batchID,
			Kind:     repository.MovementAdjustment,
			Quantity: delta,
			Unit:     batch.Unit,
			UnitCost: batch.UnitCost,
			Note:     req.Reason,
		}
		return e.ledger.Append(ctx, tenantID, rec)
	})
	if err != nil {
		return nil, err
	}

	e.pub.StockMovement(ctx, tenantID, rec)

	e.log.Info().
		Str("tenant_id", tenantID).
		Str("batch_id", req.BatchID).
		Str("delta", rec.Quantity.String()).
		Msg("batch corrected")

	return rec, nil
}
