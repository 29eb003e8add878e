package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/lifecycle"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// liveStatuses are the alert states that suppress duplicate creation.
// Snoozed alerts still dedup; silencing an alert must not respawn it.
var liveStatuses = []repository.AlertStatus{
	repository.AlertActive,
	repository.AlertAcknowledged,
	repository.AlertSnoozed,
}

// ScanStats summarizes one alert scan
type ScanStats struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Resolved int `json:"resolved"`
}

// AlertScanner evaluates alert conditions across a tenant's stock and
// reconciles the alert table: raising new alerts, refreshing expiry
// countdowns in place, and resolving alerts whose condition cleared.
// Notifications go out exactly once, on creation.
type AlertScanner struct {
	items   *repository.ItemRepository
	batches *repository.BatchRepository
	alerts  *repository.AlertRepository
	recipes *repository.RecipeRepository
	pub     *events.Publisher
	clk     clock.Clock
	log     *logger.Logger

	defaultExpiryThresholdDays int
}

// NewAlertScanner creates a new alert scanner
func NewAlertScanner(
	items *repository.ItemRepository,
	batches *repository.BatchRepository,
	alerts *repository.AlertRepository,
	recipes *repository.RecipeRepository,
	pub *events.Publisher,
	clk clock.Clock,
	defaultExpiryThresholdDays int,
	log *logger.Logger,
) *AlertScanner {
	return &AlertScanner{
		items:                      items,
		batches:                    batches,
		alerts:                     alerts,
		recipes:                    recipes,
		pub:                        pub,
		clk:                        clk,
		log:                        log.WithComponent("alert-scanner"),
		defaultExpiryThresholdDays: defaultExpiryThresholdDays,
	}
}

// Sweep runs all alert rules for a tenant, then resolves stale alerts
func (s *AlertScanner) Sweep(ctx context.Context, tenantID string) (*ScanStats, error) {
	stats := &ScanStats{}

	items, err := s.items.GetActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	itemsByID := make(map[string]*repository.StockItem, len(items))
	for _, item := range items {
		itemsByID[item.ID] = item
	}

	for _, item := range items {
		if err := s.scanStockLevel(ctx, tenantID, item, stats); err != nil {
			s.log.Error().Err(err).Str("item_id", item.ID).Msg("stock level scan failed")
		}
	}

	if err := s.scanExpiry(ctx, tenantID, itemsByID, stats); err != nil {
		s.log.Error().Err(err).Msg("expiry scan failed")
	}

	if err := s.scanEmptyBatches(ctx, tenantID, stats); err != nil {
		s.log.Error().Err(err).Msg("empty batch scan failed")
	}

	if err := s.resolveStale(ctx, tenantID, itemsByID, stats); err != nil {
		s.log.Error().Err(err).Msg("alert resolution failed")
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("resolved", stats.Resolved).
		Msg("alert sweep completed")

	return stats, nil
}

func (s *AlertScanner) scanStockLevel(ctx context.Context, tenantID string, item *repository.StockItem, stats *ScanStats) error {
	switch {
	case !item.CurrentQuantity.IsPositive():
		hint := ""
		if names, err := s.recipes.AffectedProductNames(ctx, tenantID, item.ID); err == nil && len(names) > 0 {
			hint = "affects: " + strings.Join(names, ", ")
		}
		return s.raise(ctx, tenantID, &repository.Alert{
			Kind:           repository.AlertOutOfStock,
			Priority:       repository.PriorityCritical,
			ItemID:         &item.ID,
			Message:        fmt.Sprintf("%s is out of stock", item.Name),
			CurrentValue:   decRef(item.CurrentQuantity),
			ThresholdValue: decRef(item.ReorderPoint),
		}, hint, stats)

	// strictly below the reorder point; sitting exactly on it is fine
	case item.CurrentQuantity.LessThan(item.ReorderPoint):
		msg := fmt.Sprintf("%s is low: %s %s on hand, reorder point %s",
			item.Name, item.CurrentQuantity.String(), item.Unit, item.ReorderPoint.String())
		hint := ""
		if item.ReorderQuantity.IsPositive() {
			hint = fmt.Sprintf("reorder %s %s", item.ReorderQuantity.String(), item.Unit)
		}
		return s.raise(ctx, tenantID, &repository.Alert{
			Kind:           repository.AlertLowStock,
			Priority:       repository.PriorityMedium,
			ItemID:         &item.ID,
			Message:        msg,
			CurrentValue:   decRef(item.CurrentQuantity),
			ThresholdValue: decRef(item.ReorderPoint),
		}, hint, stats)
	}
	return nil
}

func (s *AlertScanner) scanExpiry(ctx context.Context, tenantID string, items map[string]*repository.StockItem, stats *ScanStats) error {
	now := s.clk.Now()

	batches, err := s.batches.ListPerishableActive(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, b := range batches {
		if !b.QuantityRemaining.IsPositive() {
			continue
		}
		item, ok := items[b.ItemID]
		if !ok {
			continue
		}

		threshold := item.ExpiryAlertThresholdDays
		if threshold <= 0 {
			threshold = s.defaultExpiryThresholdDays
		}

		days := lifecycle.DaysUntilExpiry(*b.ExpiryDate, now)
		if days > threshold {
			continue
		}

		priority := repository.PriorityHigh
		if days <= 1 {
			priority = repository.PriorityCritical
		}
		var msg string
		if days < 0 {
			msg = fmt.Sprintf("batch %s of %s expired %d days ago (%s %s remaining)",
				b.BatchNumber, item.Name, -days, b.QuantityRemaining.String(), b.Unit)
		} else {
			msg = fmt.Sprintf("batch %s of %s expires in %d days (%s %s remaining)",
				b.BatchNumber, item.Name, days, b.QuantityRemaining.String(), b.Unit)
		}

		batchID := b.ID
		itemID := b.ItemID
		daysLeft := decimal.NewFromInt(int64(days))

		existing, err := s.alerts.FindExisting(ctx, tenantID, repository.AlertExpiryWarning, &itemID, &batchID, liveStatuses)
		if err != nil {
			return err
		}
		if existing != nil {
			// countdown moved on; refresh the open alert, never notify again
			if existing.Message != msg || existing.Priority != priority {
				if err := s.alerts.UpdateInPlace(ctx, tenantID, existing.ID, priority, msg, &daysLeft); err != nil {
					return err
				}
				stats.Updated++
			}
			continue
		}
		if days < 0 {
			// expiry already passed without a warning ever being raised;
			// the lifecycle sweep owns expired stock from here
			continue
		}

		if err := s.create(ctx, tenantID, &repository.Alert{
			Kind:           repository.AlertExpiryWarning,
			Priority:       priority,
			ItemID:         &itemID,
			BatchID:        &batchID,
			Message:        msg,
			CurrentValue:   &daysLeft,
			ThresholdValue: decRef(decimal.NewFromInt(int64(threshold))),
		}, "use or discard before expiry", stats); err != nil {
			return err
		}
	}
	return nil
}

func (s *AlertScanner) scanEmptyBatches(ctx context.Context, tenantID string, stats *ScanStats) error {
	batches, err := s.batches.ListEmptyActive(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, b := range batches {
		batchID := b.ID
		itemID := b.ItemID
		if err := s.raise(ctx, tenantID, &repository.Alert{
			Kind:         repository.AlertBatchEmpty,
			Priority:     repository.PriorityMedium,
			ItemID:       &itemID,
			BatchID:      &batchID,
			Message:      fmt.Sprintf("batch %s is fully consumed", b.BatchNumber),
			CurrentValue: decRef(b.QuantityRemaining),
		}, "archive the batch", stats); err != nil {
			return err
		}
	}
	return nil
}

// raise creates the alert unless a live one already exists for the same
// (kind, item, batch) triple
func (s *AlertScanner) raise(ctx context.Context, tenantID string, alert *repository.Alert, hint string, stats *ScanStats) error {
	existing, err := s.alerts.FindExisting(ctx, tenantID, alert.Kind, alert.ItemID, alert.BatchID, liveStatuses)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.create(ctx, tenantID, alert, hint, stats)
}

// create persists the alert. The created event fires here and only here,
// so notification goes out exactly once per alert.
func (s *AlertScanner) create(ctx context.Context, tenantID string, alert *repository.Alert, hint string, stats *ScanStats) error {
	if hint != "" {
		alert.Hint = &hint
	}
	if err := s.alerts.Create(ctx, tenantID, alert); err != nil {
		return err
	}
	stats.Created++

	s.pub.AlertCreated(ctx, tenantID, alert, hint)
	return nil
}

func decRef(d decimal.Decimal) *decimal.Decimal { return &d }

// resolveStale closes live alerts whose condition no longer holds
func (s *AlertScanner) resolveStale(ctx context.Context, tenantID string, items map[string]*repository.StockItem, stats *ScanStats) error {
	live, err := s.alerts.ListLive(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, alert := range live {
		cleared, err := s.conditionCleared(ctx, tenantID, alert, items)
		if err != nil {
			s.log.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to evaluate alert condition")
			continue
		}
		if !cleared {
			continue
		}
		if err := s.alerts.Resolve(ctx, tenantID, alert.ID); err != nil {
			return err
		}
		stats.Resolved++
		s.pub.AlertResolved(ctx, tenantID, alert.ID)
	}
	return nil
}

func (s *AlertScanner) conditionCleared(ctx context.Context, tenantID string, alert *repository.Alert, items map[string]*repository.StockItem) (bool, error) {
	switch alert.Kind {
	case repository.AlertOutOfStock:
		if alert.ItemID == nil {
			return true, nil
		}
		item, ok := items[*alert.ItemID]
		if !ok {
			return true, nil
		}
		return item.CurrentQuantity.IsPositive(), nil

	case repository.AlertLowStock:
		if alert.ItemID == nil {
			return true, nil
		}
		item, ok := items[*alert.ItemID]
		if !ok {
			return true, nil
		}
		// back at or above the reorder point clears the alert
		return item.CurrentQuantity.GreaterThanOrEqual(item.ReorderPoint), nil

	case repository.AlertExpiryWarning:
		if alert.BatchID == nil {
			return true, nil
		}
		batch, err := s.batches.GetByID(ctx, tenantID, *alert.BatchID)
		if err != nil {
			return true, nil
		}
		return !batch.IsActive || !batch.QuantityRemaining.IsPositive(), nil

	case repository.AlertBatchEmpty:
		if alert.BatchID == nil {
			return true, nil
		}
		batch, err := s.batches.GetByID(ctx, tenantID, *alert.BatchID)
		if err != nil {
			return true, nil
		}
		return !batch.IsActive || batch.QuantityRemaining.IsPositive(), nil
	}
	return false, nil
}
