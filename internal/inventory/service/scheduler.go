package service

import (
	"context"
	"time"

	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// Scheduler periodically runs the lifecycle sweep and alert scan for every
// tenant with active stock. One tenant failing never stops the others.
type Scheduler struct {
	items     *repository.ItemRepository
	lifecycle *LifecycleSweeper
	scanner   *AlertScanner
	interval  time.Duration
	log       *logger.Logger

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a new background scheduler
func NewScheduler(items *repository.ItemRepository, lifecycle *LifecycleSweeper, scanner *AlertScanner, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		items:     items,
		lifecycle: lifecycle,
		scanner:   scanner,
		interval:  interval,
		log:       log.WithComponent("scheduler"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. An initial sweep runs
// immediately so a restarted service does not wait a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		s.runAll(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runAll(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight sweep to finish
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce sweeps a single tenant on demand
func (s *Scheduler) RunOnce(ctx context.Context, tenantID string) (*SweepStats, *ScanStats, error) {
	lcStats, err := s.lifecycle.Sweep(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	scanStats, err := s.scanner.Sweep(ctx, tenantID)
	if err != nil {
		return lcStats, nil, err
	}
	return lcStats, scanStats, nil
}

func (s *Scheduler) runAll(ctx context.Context) {
	tenants, err := s.items.ListTenantIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list tenants for sweep")
		return
	}

	for _, tenantID := range tenants {
		if _, _, err := s.RunOnce(ctx, tenantID); err != nil {
			s.log.Error().Err(err).Str("tenant_id", tenantID).Msg("sweep failed")
		}
	}
}
