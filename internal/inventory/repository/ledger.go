package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/pkg/database"
)

// MovementKind classifies a ledger entry
type MovementKind string

const (
	MovementPurchase    MovementKind = "PURCHASE"
	MovementPreparation MovementKind = "PREPARATION"
	MovementAdjustment  MovementKind = "ADJUSTMENT"
	MovementSale        MovementKind = "SALE"
	MovementWastage     MovementKind = "WASTAGE"
)

// Valid reports whether the kind is one of the known movements
func (k MovementKind) Valid() bool {
	switch k {
	case MovementPurchase, MovementPreparation, MovementAdjustment, MovementSale, MovementWastage:
		return true
	}
	return false
}

// TransactionRecord is an append-only ledger entry. Quantity is signed:
// positive for stock in, negative for stock out. Records are never updated
// or deleted; corrections append compensating entries.
type TransactionRecord struct {
	ID         string          `db:"id" json:"id"`
	TenantID   string          `db:"tenant_id" json:"-"`
	ItemID     string          `db:"item_id" json:"item_id"`
	BatchID    *string         `db:"batch_id" json:"batch_id,omitempty"`
	Kind       MovementKind    `db:"kind" json:"kind"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	Unit       string          `db:"unit" json:"unit"`
	UnitCost   decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	TotalValue decimal.Decimal `db:"total_value" json:"total_value"`
	Reference  *string         `db:"reference" json:"reference,omitempty"`
	Note       *string         `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// LedgerRepository handles the stock movement ledger
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append writes a ledger entry. TotalValue is derived here so every entry
// carries quantity * unit cost regardless of caller.
func (r *LedgerRepository) Append(ctx context.Context, tenantID string, rec *TransactionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.TenantID = tenantID
	rec.TotalValue = rec.Quantity.Mul(rec.UnitCost)

	query := `
		INSERT INTO stock_ledger (
			id, tenant_id, item_id, batch_id, kind, quantity, unit,
			unit_cost, total_value, reference, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	return r.db.QueryRowxContext(ctx, query,
		rec.ID, rec.TenantID, rec.ItemID, rec.BatchID, rec.Kind,
		rec.Quantity, rec.Unit, rec.UnitCost, rec.TotalValue,
		rec.Reference, rec.Note,
	).Scan(&rec.CreatedAt)
}

// ListByItem returns the newest ledger entries for an item
func (r *LedgerRepository) ListByItem(ctx context.Context, tenantID, itemID string, limit int) ([]*TransactionRecord, error) {
	var records []*TransactionRecord
	query := `
		SELECT * FROM stock_ledger
		WHERE tenant_id = $1 AND item_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	if err := r.db.SelectContext(ctx, &records, query, tenantID, itemID, limit); err != nil {
		return nil, err
	}
	return records, nil
}

// SumByItem returns the signed sum of all ledger quantities for an item.
// For a consistent history this equals the item's current quantity.
func (r *LedgerRepository) SumByItem(ctx context.Context, tenantID, itemID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	query := `SELECT COALESCE(SUM(quantity), 0) FROM stock_ledger WHERE tenant_id = $1 AND item_id = $2`
	if err := r.db.GetContext(ctx, &sum, query, tenantID, itemID); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}
