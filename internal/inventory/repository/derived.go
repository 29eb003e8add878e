package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/pkg/database"
	"github.com/stocklot/stocklot-backend/pkg/errors"
)

// DerivedBatch is an in-house produced lot of a semi-finished product.
// Its expiry is computed from the recipe's shelf life at production time
// and its total cost is the summed cost of the consumed ingredients.
type DerivedBatch struct {
	ID                string          `db:"id" json:"id"`
	TenantID          string          `db:"tenant_id" json:"-"`
	ProductID         string          `db:"product_id" json:"product_id"`
	BatchNumber       string          `db:"batch_number" json:"batch_number"`
	QuantityProduced  decimal.Decimal `db:"quantity_produced" json:"quantity_produced"`
	QuantityRemaining decimal.Decimal `db:"quantity_remaining" json:"quantity_remaining"`
	Unit              string          `db:"unit" json:"unit"`
	TotalCost         decimal.Decimal `db:"total_cost" json:"total_cost"`
	ProducedAt        time.Time       `db:"produced_at" json:"produced_at"`
	ExpiryDate        *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// DerivedBatchNumber builds the batch number for a production run from the
// product name and the production timestamp. The prefix is the upper-cased
// first word of the product name.
func DerivedBatchNumber(productName string, producedAt time.Time) string {
	prefix := productName
	if i := strings.IndexAny(prefix, " \t"); i > 0 {
		prefix = prefix[:i]
	}
	prefix = strings.ToUpper(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, prefix))
	if prefix == "" {
		prefix = "BATCH"
	}
	return fmt.Sprintf("SF_%s_%s", prefix, producedAt.Format("20060102150405"))
}

// DerivedBatchRepository handles produced batch persistence
type DerivedBatchRepository struct {
	db *database.DB
}

// NewDerivedBatchRepository creates a new derived batch repository
func NewDerivedBatchRepository(db *database.DB) *DerivedBatchRepository {
	return &DerivedBatchRepository{db: db}
}

// Create creates a produced batch
func (r *DerivedBatchRepository) Create(ctx context.Context, tenantID string, batch *DerivedBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	batch.TenantID = tenantID

	query := `
		INSERT INTO derived_batches (
			id, tenant_id, product_id, batch_number, quantity_produced,
			quantity_remaining, unit, total_cost, produced_at, expiry_date, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.TenantID, batch.ProductID, batch.BatchNumber,
		batch.QuantityProduced, batch.QuantityRemaining, batch.Unit,
		batch.TotalCost, batch.ProducedAt, batch.ExpiryDate, batch.IsActive,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
}

// GetByID gets a produced batch by ID
func (r *DerivedBatchRepository) GetByID(ctx context.Context, tenantID, id string) (*DerivedBatch, error) {
	var batch DerivedBatch
	query := `SELECT * FROM derived_batches WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &batch, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("derived batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListAllocatable returns active produced batches of a product with stock
// remaining, in the same earliest-expiry-first order the allocator expects
func (r *DerivedBatchRepository) ListAllocatable(ctx context.Context, tenantID, productID string) ([]*DerivedBatch, error) {
	var batches []*DerivedBatch
	query := `
		SELECT * FROM derived_batches
		WHERE tenant_id = $1 AND product_id = $2 AND is_active = true AND quantity_remaining > 0
		ORDER BY expiry_date ASC NULLS LAST, produced_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, tenantID, productID); err != nil {
		return nil, err
	}
	return batches, nil
}

// LockForUpdate acquires a row lock on the produced batch
func (r *DerivedBatchRepository) LockForUpdate(ctx context.Context, tenantID, id string) (*DerivedBatch, error) {
	var batch DerivedBatch
	query := `SELECT * FROM derived_batches WHERE tenant_id = $1 AND id = $2 FOR UPDATE NOWAIT`
	if err := r.db.GetContext(ctx, &batch, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("derived batch")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return &batch, nil
}

// DecrementRemaining decrements a produced batch's remaining quantity with
// the guard in the statement
func (r *DerivedBatchRepository) DecrementRemaining(ctx context.Context, tenantID, id string, qty decimal.Decimal) (bool, error) {
	query := `
		UPDATE derived_batches
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
