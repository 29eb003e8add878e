package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/pkg/database"
	"github.com/stocklot/stocklot-backend/pkg/errors"
)

// StockItem is a trackable material or product. CurrentQuantity is the
// aggregate on-hand amount in the item's canonical unit; it is mutated only
// by the consumption executor and intake paths.
type StockItem struct {
	ID                       string          `db:"id" json:"id"`
	TenantID                 string          `db:"tenant_id" json:"-"`
	Name                     string          `db:"name" json:"name"`
	Unit                     string          `db:"unit" json:"unit"`
	CurrentQuantity          decimal.Decimal `db:"current_quantity" json:"current_quantity"`
	ReorderPoint             decimal.Decimal `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity          decimal.Decimal `db:"reorder_quantity" json:"reorder_quantity"`
	UnitCost                 decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	IsPerishable             bool            `db:"is_perishable" json:"is_perishable"`
	FreshThresholdDays       int             `db:"fresh_threshold_days" json:"fresh_threshold_days"`
	NearExpiryThresholdDays  int             `db:"near_expiry_threshold_days" json:"near_expiry_threshold_days"`
	ExpiryAlertThresholdDays int             `db:"expiry_alert_threshold_days" json:"expiry_alert_threshold_days"`
	// ExpiryDate applies to standalone stock tracked without batches
	ExpiryDate *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// ItemRepository handles stock item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create creates a new stock item
func (r *ItemRepository) Create(ctx context.Context, tenantID string, item *StockItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.TenantID = tenantID

	query := `
		INSERT INTO stock_items (
			id, tenant_id, name, unit, current_quantity, reorder_point,
			reorder_quantity, unit_cost, is_perishable, fresh_threshold_days,
			near_expiry_threshold_days, expiry_alert_threshold_days, expiry_date, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		item.ID, item.TenantID, item.Name, item.Unit, item.CurrentQuantity,
		item.ReorderPoint, item.ReorderQuantity, item.UnitCost, item.IsPerishable,
		item.FreshThresholdDays, item.NearExpiryThresholdDays,
		item.ExpiryAlertThresholdDays, item.ExpiryDate, item.IsActive,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

// GetByID gets an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, tenantID, id string) (*StockItem, error) {
	var item StockItem
	query := `SELECT * FROM stock_items WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &item, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// GetActive lists all active items for a tenant
func (r *ItemRepository) GetActive(ctx context.Context, tenantID string) ([]*StockItem, error) {
	var items []*StockItem
	query := `SELECT * FROM stock_items WHERE tenant_id = $1 AND is_active = true ORDER BY name`
	if err := r.db.SelectContext(ctx, &items, query, tenantID); err != nil {
		return nil, err
	}
	return items, nil
}

// List lists items with pagination
func (r *ItemRepository) List(ctx context.Context, tenantID string, page, perPage int) ([]*StockItem, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_items WHERE tenant_id = $1 AND is_active = true`
	if err := r.db.GetContext(ctx, &total, countQuery, tenantID); err != nil {
		return nil, 0, err
	}

	var items []*StockItem
	query := `
		SELECT * FROM stock_items
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY name
		LIMIT $2 OFFSET $3
	`
	offset := (page - 1) * perPage
	if err := r.db.SelectContext(ctx, &items, query, tenantID, perPage, offset); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// ListTenantIDs returns every tenant with active stock. The background
// sweeps iterate over this set.
func (r *ItemRepository) ListTenantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	query := `SELECT DISTINCT tenant_id FROM stock_items WHERE is_active = true`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}

// Update updates an item's mutable attributes
func (r *ItemRepository) Update(ctx context.Context, tenantID string, item *StockItem) error {
	query := `
		UPDATE stock_items SET
			name = $3, unit = $4, reorder_point = $5, reorder_quantity = $6,
			unit_cost = $7, is_perishable = $8, fresh_threshold_days = $9,
			near_expiry_threshold_days = $10, expiry_alert_threshold_days = $11,
			expiry_date = $12, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		tenantID, item.ID, item.Name, item.Unit, item.ReorderPoint,
		item.ReorderQuantity, item.UnitCost, item.IsPerishable,
		item.FreshThresholdDays, item.NearExpiryThresholdDays,
		item.ExpiryAlertThresholdDays, item.ExpiryDate,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("item")
	}

	return nil
}

// SoftDelete marks an item inactive. Items are never hard-deleted while
// batches reference them.
func (r *ItemRepository) SoftDelete(ctx context.Context, tenantID, id string) error {
	query := `UPDATE stock_items SET is_active = false, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, tenantID, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("item")
	}

	return nil
}

// LockForUpdate acquires a row lock on the item for the duration of the
// enclosing transaction. NOWAIT surfaces contention instead of queueing,
// mapped to ConcurrentModification by the caller.
func (r *ItemRepository) LockForUpdate(ctx context.Context, tenantID, id string) (*StockItem, error) {
	var item StockItem
	query := `SELECT * FROM stock_items WHERE tenant_id = $1 AND id = $2 FOR UPDATE NOWAIT`
	if err := r.db.GetContext(ctx, &item, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return &item, nil
}

// DecrementQuantity decrements the aggregate quantity with a non-negativity
// guard enforced in the statement itself. Zero rows affected means the
// decrement would have gone negative.
func (r *ItemRepository) DecrementQuantity(ctx context.Context, tenantID, id string, qty decimal.Decimal) (bool, error) {
	query := `
		UPDATE stock_items
		SET current_quantity = current_quantity - $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND current_quantity >= $3
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, qty)
	if err != nil {
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// IncrementQuantity increments the aggregate quantity (intake, correction)
func (r *ItemRepository) IncrementQuantity(ctx context.Context, tenantID, id string, qty decimal.Decimal) error {
	query := `
		UPDATE stock_items
		SET current_quantity = current_quantity + $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, qty)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("item")
	}
	return nil
}

// SetQuantity overwrites the aggregate quantity. Used by the correction
// path after re-deriving the aggregate from batch remainders.
func (r *ItemRepository) SetQuantity(ctx context.Context, tenantID, id string, qty decimal.Decimal) error {
	query := `UPDATE stock_items SET current_quantity = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, qty)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("item")
	}
	return nil
}
