package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/lifecycle"
	"github.com/stocklot/stocklot-backend/pkg/database"
	"github.com/stocklot/stocklot-backend/pkg/errors"
)

// Batch is a received lot of a stock item. QuantityRemaining only ever
// moves down through the consumption executor; QuantityReceived is fixed
// at intake.
type Batch struct {
	ID                string          `db:"id" json:"id"`
	TenantID          string          `db:"tenant_id" json:"-"`
	ItemID            string          `db:"item_id" json:"item_id"`
	BatchNumber       string          `db:"batch_number" json:"batch_number"`
	QuantityReceived  decimal.Decimal `db:"quantity_received" json:"quantity_received"`
	QuantityRemaining decimal.Decimal `db:"quantity_remaining" json:"quantity_remaining"`
	Unit              string          `db:"unit" json:"unit"`
	UnitCost          decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	ExpiryDate        *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	LifecycleStage    *string         `db:"lifecycle_stage" json:"lifecycle_stage,omitempty"`
	SupplierRef       *string         `db:"supplier_ref" json:"supplier_ref,omitempty"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Stage returns the batch's persisted lifecycle stage, or empty when the
// batch has no expiry date and is never classified.
func (b *Batch) Stage() lifecycle.Stage {
	if b.LifecycleStage == nil {
		return ""
	}
	return lifecycle.Stage(*b.LifecycleStage)
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// NextBatchNumber allocates the next sequential batch number for an item.
// Must run inside a transaction so concurrent intakes serialize on the
// sequence row.
func (r *BatchRepository) NextBatchNumber(ctx context.Context, tenantID, itemID string) (string, error) {
	var seq int64
	query := `
		INSERT INTO batch_sequences (tenant_id, item_id, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, item_id)
		DO UPDATE SET last_value = batch_sequences.last_value + 1
		RETURNING last_value
	`
	if err := r.db.QueryRowxContext(ctx, query, tenantID, itemID).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("BATCH-%06d", seq), nil
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, tenantID string, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	batch.TenantID = tenantID

	query := `
		INSERT INTO stock_batches (
			id, tenant_id, item_id, batch_number, quantity_received,
			quantity_remaining, unit, unit_cost, expiry_date, lifecycle_stage,
			supplier_ref, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.TenantID, batch.ItemID, batch.BatchNumber,
		batch.QuantityReceived, batch.QuantityRemaining, batch.Unit,
		batch.UnitCost, batch.ExpiryDate, batch.LifecycleStage,
		batch.SupplierRef, batch.IsActive,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, tenantID, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM stock_batches WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &batch, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListAllocatable returns active batches of an item with stock remaining,
// ordered earliest-expiry-first with no-expiry batches last, ties broken
// by receipt order. This ordering is the contract the allocator depends on.
func (r *BatchRepository) ListAllocatable(ctx context.Context, tenantID, itemID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE tenant_id = $1 AND item_id = $2 AND is_active = true AND quantity_remaining > 0
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID, itemID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListActiveByItem returns all active batches of an item regardless of
// remaining quantity
func (r *BatchRepository) ListActiveByItem(ctx context.Context, tenantID, itemID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE tenant_id = $1 AND item_id = $2 AND is_active = true
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID, itemID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListPerishableActive returns all active batches carrying an expiry date,
// for the lifecycle sweep
func (r *BatchRepository) ListPerishableActive(ctx context.Context, tenantID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE tenant_id = $1 AND is_active = true AND expiry_date IS NOT NULL
		ORDER BY expiry_date ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListExpiringWithin returns active batches with stock remaining whose
// expiry falls on or before the horizon
func (r *BatchRepository) ListExpiringWithin(ctx context.Context, tenantID string, horizon time.Time) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE tenant_id = $1 AND is_active = true AND quantity_remaining > 0
			AND expiry_date IS NOT NULL AND expiry_date <= $2
		ORDER BY expiry_date ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID, horizon); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListEmptyActive returns active batches that have been fully drawn down
func (r *BatchRepository) ListEmptyActive(ctx context.Context, tenantID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE tenant_id = $1 AND is_active = true AND quantity_remaining <= 0
		ORDER BY updated_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID); err != nil {
		return nil, err
	}
	return batches, nil
}

// LockForUpdate acquires a row lock on the batch for the duration of the
// enclosing transaction
func (r *BatchRepository) LockForUpdate(ctx context.Context, tenantID, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM stock_batches WHERE tenant_id = $1 AND id = $2 FOR UPDATE NOWAIT`
	if err := r.db.GetContext(ctx, &batch, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return &batch, nil
}

// DecrementRemaining decrements a batch's remaining quantity with the
// non-negativity guard in the statement. Zero rows affected means the
// batch no longer holds enough stock.
func (r *BatchRepository) DecrementRemaining(ctx context.Context, tenantID, id string, qty decimal.Decimal) (bool, error) {
	query := `
		UPDATE stock_batches
		SET quantity_remaining = quantity_remaining - $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND quantity_remaining >= $3
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, qty)
	if err != nil {
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// AddRemaining returns quantity to a batch. Used by corrections; the
// remaining amount is capped at the received amount.
func (r *BatchRepository) AddRemaining(ctx context.Context, tenantID, id string, qty decimal.Decimal) error {
	query := `
		UPDATE stock_batches
		SET quantity_remaining = LEAST(quantity_remaining + $3, quantity_received), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, qty)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// SetStage persists a lifecycle stage transition
func (r *BatchRepository) SetStage(ctx context.Context, tenantID, id string, stage lifecycle.Stage) error {
	query := `UPDATE stock_batches SET lifecycle_stage = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, string(stage))
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// Deactivate retires a batch
func (r *BatchRepository) Deactivate(ctx context.Context, tenantID, id string) error {
	query := `UPDATE stock_batches SET is_active = false, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, tenantID, id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}
