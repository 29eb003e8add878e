package service

import (
	"context"
	"time"

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

// IntakeRequest receives a new batch of stock
type IntakeRequest struct {
	ItemID      string
	Quantity    decimal.Decimal
	Unit        string
	UnitCost    decimal.Decimal
	ExpiryDate  *time.Time
	SupplierRef *string
	Reference   *string
}

// WastageRequest discards stock
type WastageRequest struct {
	ItemID   string
	Quantity decimal.Decimal
	Unit     string
	BatchID  string
	Reason   *string
}

// InventoryService covers item management and stock intake. Consumption
// goes through the Executor; this service only ever adds stock.
type InventoryService struct {
	db      *database.DB
	items   *repository.ItemRepository
	batches *repository.BatchRepository
	ledger  *repository.LedgerRepository
	exec    *Executor
	pub     *events.Publisher
	clk     clock.Clock
	log     *logger.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	db *database.DB,
	items *repository.ItemRepository,
	batches *repository.BatchRepository,
	ledger *repository.LedgerRepository,
	exec *Executor,
	pub *events.Publisher,
	clk clock.Clock,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		db:      db,
		items:   items,
		batches: batches,
		ledger:  ledger,
		exec:    exec,
		pub:     pub,
		clk:     clk,
		log:     log.WithComponent("inventory"),
	}
}

// CreateItem creates a stock item. A positive starting quantity becomes an
// opening batch so the ledger accounts for it from day one.
func (s *InventoryService) CreateItem(ctx context.Context, tenantID string, item *repository.StockItem) error {
	opening := item.CurrentQuantity
	if opening.IsNegative() {
		return errors.BadRequest("starting quantity cannot be negative")
	}

	return s.db.Transaction(ctx, func(ctx context.Context) error {
		item.IsActive = true
		if err := s.items.Create(ctx, tenantID, item); err != nil {
			return err
		}
		if opening.IsZero() {
			return nil
		}

		number, err := s.batches.NextBatchNumber(ctx, tenantID, item.ID)
		if err != nil {
			return err
		}
		batch := &repository.Batch{
			ItemID:            item.ID,
			BatchNumber:       number,
			QuantityReceived:  opening,
			QuantityRemaining: opening,
			Unit:              item.Unit,
			UnitCost:          item.UnitCost,
			ExpiryDate:        item.ExpiryDate,
			IsActive:          true,
		}
		if batch.ExpiryDate != nil {
			stage := string(lifecycle.Classify(*batch.ExpiryDate, s.clk.Now(), item.FreshThresholdDays))
			batch.LifecycleStage = &stage
		}
		if err := s.batches.Create(ctx, tenantID, batch); err != nil {
			return err
		}

		batchID := batch.ID
		return s.ledger.Append(ctx, tenantID, &repository.TransactionRecord{
			ItemID:   item.ID,
			BatchID:  &batchID,
			Kind:     repository.MovementPurchase,
			Quantity: opening,
			Unit:     item.Unit,
			UnitCost: item.UnitCost,
		})
	})
}

// GetItem gets a stock item
func (s *InventoryService) GetItem(ctx context.Context, tenantID, id string) (*repository.StockItem, error) {
	return s.items.GetByID(ctx, tenantID, id)
}

// ListItems lists stock items with pagination
func (s *InventoryService) ListItems(ctx context.Context, tenantID string, page, perPage int) ([]*repository.StockItem, int64, error) {
	return s.items.List(ctx, tenantID, page, perPage)
}

// UpdateItem updates an item's attributes. Unit changes are only allowed
// between compatible units and convert the on-hand quantities.
func (s *InventoryService) UpdateItem(ctx context.Context, tenantID string, item *repository.StockItem) error {
	current, err := s.items.GetByID(ctx, tenantID, item.ID)
	if err != nil {
		return err
	}
	if item.Unit != current.Unit && !units.Compatible(current.Unit, item.Unit) {
		return errors.IncompatibleUnits(current.Unit, item.Unit)
	}

	return s.db.Transaction(ctx, func(ctx context.Context) error {
		if item.Unit != current.Unit {
			converted, err := units.Convert(current.CurrentQuantity, current.Unit, item.Unit)
			if err != nil {
				return err
			}
			if err := s.items.SetQuantity(ctx, tenantID, item.ID, converted); err != nil {
				return err
			}
		}
		return s.items.Update(ctx, tenantID, item)
	})
}

// DeleteItem retires an item
func (s *InventoryService) DeleteItem(ctx context.Context, tenantID, id string) error {
	return s.items.SoftDelete(ctx, tenantID, id)
}

// ListBatches returns an item's active batches
func (s *InventoryService) ListBatches(ctx context.Context, tenantID, itemID string) ([]*repository.Batch, error) {
	if _, err := s.items.GetByID(ctx, tenantID, itemID); err != nil {
		return nil, err
	}
	return s.batches.ListActiveByItem(ctx, tenantID, itemID)
}

// Intake receives a batch of stock. Quantities arriving in a different
// unit are converted to the item's unit before storage, with the unit
// cost rescaled so total value is preserved.
func (s *InventoryService) Intake(ctx context.Context, tenantID string, req IntakeRequest) (*repository.Batch, error) {
	if !req.Quantity.IsPositive() {
		return nil, errors.BadRequest("quantity must be positive")
	}
	if req.UnitCost.IsNegative() {
		return nil, errors.BadRequest("unit cost cannot be negative")
	}

	item, err := s.items.GetByID(ctx, tenantID, req.ItemID)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	cost := req.UnitCost
	if req.Unit != "" && req.Unit != item.Unit {
		qty, err = units.Convert(req.Quantity, req.Unit, item.Unit)
		if err != nil {
			return nil, err
		}
		cost = req.UnitCost.Mul(req.Quantity).Div(qty)
	}

	var batch *repository.Batch
	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		number, err := s.batches.NextBatchNumber(ctx, tenantID, item.ID)
		if err != nil {
			return err
		}

		batch = &repository.Batch{
			ItemID:            item.ID,
			BatchNumber:       number,
			QuantityReceived:  qty,
			QuantityRemaining: qty,
			Unit:              item.Unit,
			UnitCost:          cost,
			ExpiryDate:        req.ExpiryDate,
			SupplierRef:       req.SupplierRef,
			IsActive:          true,
		}
		if req.ExpiryDate != nil {
			stage := string(lifecycle.Classify(*req.ExpiryDate, s.clk.Now(), item.FreshThresholdDays))
			batch.LifecycleStage = &stage
		}
		if err := s.batches.Create(ctx, tenantID, batch); err != nil {
			return err
		}

		if err := s.items.IncrementQuantity(ctx, tenantID, item.ID, qty); err != nil {
			return err
		}

		batchID := batch.ID
		return s.ledger.Append(ctx, tenantID, &repository.TransactionRecord{
			ItemID:    item.ID,
			BatchID:   &batchID,
			Kind:      repository.MovementPurchase,
			Quantity:  qty,
			Unit:      item.Unit,
			UnitCost:  cost,
			Reference: req.Reference,
		})
	})
	if err != nil {
		return nil, err
	}

	s.pub.StockMovement(ctx, tenantID, &repository.TransactionRecord{
		ItemID:   item.ID,
		BatchID:  &batch.ID,
		Kind:     repository.MovementPurchase,
		Quantity: qty,
		Unit:     item.Unit,
	})

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("item_id", item.ID).
		Str("batch_number", batch.BatchNumber).
		Str("quantity", qty.String()).
		Msg("batch received")

	return batch, nil
}

// RecordWastage discards stock through the executor so batches, aggregate
// and ledger stay consistent
func (s *InventoryService) RecordWastage(ctx context.Context, tenantID string, req WastageRequest) (*ConsumeResult, error) {
	return s.exec.Execute(ctx, tenantID, ConsumeRequest{
		ItemID:           req.ItemID,
		Quantity:         req.Quantity,
		Unit:             req.Unit,
		Kind:             repository.MovementWastage,
		PreferredBatchID: req.BatchID,
		Note:             req.Reason,
	})
}

// History returns an item's recent ledger entries
func (s *InventoryService) History(ctx context.Context, tenantID, itemID string, limit int) ([]*repository.TransactionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if _, err := s.items.GetByID(ctx, tenantID, itemID); err != nil {
		return nil, err
	}
	return s.ledger.ListByItem(ctx, tenantID, itemID, limit)
}
