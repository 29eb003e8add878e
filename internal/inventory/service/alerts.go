package service

import (
	"context"
	"time"

	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/errors"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// AlertService exposes alert queries and manual state transitions
type AlertService struct {
	alerts *repository.AlertRepository
	pub    *events.Publisher
	clk    clock.Clock
	log    *logger.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(alerts *repository.AlertRepository, pub *events.Publisher, clk clock.Clock, log *logger.Logger) *AlertService {
	return &AlertService{
		alerts: alerts,
		pub:    pub,
		clk:    clk,
		log:    log.WithComponent("alerts"),
	}
}

// ListActive returns unresolved alerts ordered by priority
func (s *AlertService) ListActive(ctx context.Context, tenantID string) ([]*repository.Alert, error) {
	return s.alerts.ListActive(ctx, tenantID, s.clk.Now())
}

// List lists alerts with pagination and an optional status filter
func (s *AlertService) List(ctx context.Context, tenantID string, status *repository.AlertStatus, page, perPage int) ([]*repository.Alert, int64, error) {
	return s.alerts.List(ctx, tenantID, status, page, perPage)
}

// Acknowledge marks an alert as seen. Acknowledged alerts stay visible but
// keep suppressing duplicates.
func (s *AlertService) Acknowledge(ctx context.Context, tenantID, id string) error {
	return s.alerts.Acknowledge(ctx, tenantID, id)
}

// Snooze silences an alert until the given time. The deadline must be in
// the future.
func (s *AlertService) Snooze(ctx context.Context, tenantID, id string, until time.Time) error {
	if !until.After(s.clk.Now()) {
		return errors.BadRequest("snooze deadline must be in the future")
	}
	return s.alerts.Snooze(ctx, tenantID, id, until)
}

// Resolve manually closes an alert
func (s *AlertService) Resolve(ctx context.Context, tenantID, id string) error {
	if err := s.alerts.Resolve(ctx, tenantID, id); err != nil {
		return err
	}
	s.pub.AlertResolved(ctx, tenantID, id)
	s.log.Info().Str("tenant_id", tenantID).Str("alert_id", id).Msg("alert resolved manually")
	return nil
}
