package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/pkg/database"
	"github.com/stocklot/stocklot-backend/pkg/errors"
)

// AlertKind classifies an alert
type AlertKind string

const (
	AlertLowStock      AlertKind = "LOW_STOCK"
	AlertOutOfStock    AlertKind = "OUT_OF_STOCK"
	AlertExpiryWarning AlertKind = "EXPIRY_WARNING"
	AlertBatchEmpty    AlertKind = "BATCH_EMPTY"
)

// AlertStatus is the alert lifecycle state
type AlertStatus string

const (
	AlertActive       AlertStatus = "ACTIVE"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertSnoozed      AlertStatus = "SNOOZED"
	AlertResolved     AlertStatus = "RESOLVED"
)

// AlertPriority ranks alert urgency
type AlertPriority string

const (
	PriorityMedium   AlertPriority = "medium"
	PriorityHigh     AlertPriority = "high"
	PriorityCritical AlertPriority = "critical"
)

// Alert is a condition raised by the scanner. One live alert exists per
// (kind, item, batch) triple; the scanner updates expiry alerts in place
// as the day count shrinks rather than stacking duplicates.
type Alert struct {
	ID           string        `db:"id" json:"id"`
	TenantID     string        `db:"tenant_id" json:"-"`
	Kind         AlertKind     `db:"kind" json:"kind"`
	Status       AlertStatus   `db:"status" json:"status"`
	Priority     AlertPriority `db:"priority" json:"priority"`
	ItemID       *string       `db:"item_id" json:"item_id,omitempty"`
	BatchID      *string       `db:"batch_id" json:"batch_id,omitempty"`
	Message      string        `db:"message" json:"message"`
	Hint         *string       `db:"hint" json:"hint,omitempty"`
	// observed value and the threshold it crossed, so callers can decide
	// programmatically instead of parsing the message
	CurrentValue   *decimal.Decimal `db:"current_value" json:"current_value,omitempty"`
	ThresholdValue *decimal.Decimal `db:"threshold_value" json:"threshold_value,omitempty"`
	SnoozedUntil *time.Time    `db:"snoozed_until" json:"snoozed_until,omitempty"`
	ResolvedAt   *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create creates a new alert
func (r *AlertRepository) Create(ctx context.Context, tenantID string, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	alert.TenantID = tenantID
	if alert.Status == "" {
		alert.Status = AlertActive
	}

	query := `
		INSERT INTO stock_alerts (
			id, tenant_id, kind, status, priority, item_id, batch_id, message,
			hint, current_value, threshold_value
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		alert.ID, alert.TenantID, alert.Kind, alert.Status, alert.Priority,
		alert.ItemID, alert.BatchID, alert.Message, alert.Hint,
		alert.CurrentValue, alert.ThresholdValue,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, tenantID, id string) (*Alert, error) {
	var alert Alert
	query := `SELECT * FROM stock_alerts WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &alert, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &alert, nil
}

// FindExisting returns the live alert for a (kind, item, batch) triple in
// any of the given statuses, or nil when none exists. Snoozed alerts count
// as live for dedup purposes.
func (r *AlertRepository) FindExisting(ctx context.Context, tenantID string, kind AlertKind, itemID, batchID *string, statuses []AlertStatus) (*Alert, error) {
	raw := make([]string, len(statuses))
	for i, s := range statuses {
		raw[i] = string(s)
	}

	var alert Alert
	query := `
		SELECT * FROM stock_alerts
		WHERE tenant_id = $1 AND kind = $2
			AND item_id IS NOT DISTINCT FROM $3
			AND batch_id IS NOT DISTINCT FROM $4
			AND status = ANY($5)
		ORDER BY created_at DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &alert, query, tenantID, string(kind), itemID, batchID, pq.Array(raw)); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

// UpdateInPlace refreshes an existing alert's message, priority and
// observed value without changing its identity or status
func (r *AlertRepository) UpdateInPlace(ctx context.Context, tenantID, id string, priority AlertPriority, message string, current *decimal.Decimal) error {
	query := `
		UPDATE stock_alerts SET priority = $3, message = $4, current_value = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, priority, message, current)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// Acknowledge moves an active alert to acknowledged
func (r *AlertRepository) Acknowledge(ctx context.Context, tenantID, id string) error {
	return r.transition(ctx, tenantID, id, AlertAcknowledged, nil)
}

// Snooze silences an alert until the given time
func (r *AlertRepository) Snooze(ctx context.Context, tenantID, id string, until time.Time) error {
	return r.transition(ctx, tenantID, id, AlertSnoozed, &until)
}

// Resolve closes an alert
func (r *AlertRepository) Resolve(ctx context.Context, tenantID, id string) error {
	query := `
		UPDATE stock_alerts
		SET status = $3, resolved_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status <> $3
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, AlertResolved)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

func (r *AlertRepository) transition(ctx context.Context, tenantID, id string, status AlertStatus, snoozedUntil *time.Time) error {
	query := `
		UPDATE stock_alerts
		SET status = $3, snoozed_until = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, status, snoozedUntil)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// ListActive returns unresolved alerts, reviving snoozes whose deadline has
// passed. Ordered critical-first, newest within a priority.
func (r *AlertRepository) ListActive(ctx context.Context, tenantID string, now time.Time) ([]*Alert, error) {
	wake := `
		UPDATE stock_alerts SET status = $2, snoozed_until = NULL, updated_at = NOW()
		WHERE tenant_id = $1 AND status = $3 AND snoozed_until <= $4
	`
	if _, err := r.db.ExecContext(ctx, wake, tenantID, AlertActive, AlertSnoozed, now); err != nil {
		return nil, err
	}

	var alerts []*Alert
	query := `
		SELECT * FROM stock_alerts
		WHERE tenant_id = $1 AND status IN ($2, $3)
		ORDER BY
			CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 ELSE 2 END,
			created_at DESC
	`
	if err := r.db.SelectContext(ctx, &alerts, query, tenantID, AlertActive, AlertAcknowledged); err != nil {
		return nil, err
	}
	return alerts, nil
}

// ListLive returns every unresolved alert including snoozed ones. The
// scanner uses this set for dedup and resolution.
func (r *AlertRepository) ListLive(ctx context.Context, tenantID string) ([]*Alert, error) {
	var alerts []*Alert
	query := `
		SELECT * FROM stock_alerts
		WHERE tenant_id = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at ASC
	`
	if err := r.db.SelectContext(ctx, &alerts, query, tenantID, AlertActive, AlertAcknowledged, AlertSnoozed); err != nil {
		return nil, err
	}
	return alerts, nil
}

// List lists alerts with pagination, optionally filtered by status
func (r *AlertRepository) List(ctx context.Context, tenantID string, status *AlertStatus, page, perPage int) ([]*Alert, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_alerts WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)`
	if err := r.db.GetContext(ctx, &total, countQuery, tenantID, status); err != nil {
		return nil, 0, err
	}

	var alerts []*Alert
	query := `
		SELECT * FROM stock_alerts
		WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	offset := (page - 1) * perPage
	if err := r.db.SelectContext(ctx, &alerts, query, tenantID, status, perPage, offset); err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}
