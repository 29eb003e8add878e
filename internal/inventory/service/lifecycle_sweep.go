package service

import (
	"context"

	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/lifecycle"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// SweepStats summarizes one lifecycle sweep
type SweepStats struct {
	Scanned     int `json:"scanned"`
	Transitions int `json:"transitions"`
}

// LifecycleSweeper reclassifies batches as their expiry dates approach.
// Stages only persist on change, so repeated sweeps over a stable set of
// batches write nothing.
type LifecycleSweeper struct {
	items   *repository.ItemRepository
	batches *repository.BatchRepository
	pub     *events.Publisher
	clk     clock.Clock
	log     *logger.Logger
}

// NewLifecycleSweeper creates a new lifecycle sweeper
func NewLifecycleSweeper(items *repository.ItemRepository, batches *repository.BatchRepository, pub *events.Publisher, clk clock.Clock, log *logger.Logger) *LifecycleSweeper {
	return &LifecycleSweeper{
		items:   items,
		batches: batches,
		pub:     pub,
		clk:     clk,
		log:     log.WithComponent("lifecycle-sweep"),
	}
}

// Sweep classifies every perishable batch of a tenant against the current
// date and persists the transitions
func (s *LifecycleSweeper) Sweep(ctx context.Context, tenantID string) (*SweepStats, error) {
	items, err := s.items.GetActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	thresholds := make(map[string]int, len(items))
	for _, item := range items {
		thresholds[item.ID] = item.FreshThresholdDays
	}

	batches, err := s.batches.ListPerishableActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	stats := &SweepStats{Scanned: len(batches)}

	for _, b := range batches {
		threshold, ok := thresholds[b.ItemID]
		if !ok {
			continue
		}

		stage := lifecycle.Classify(*b.ExpiryDate, now, threshold)
		if b.Stage() == stage {
			continue
		}

		if err := s.batches.SetStage(ctx, tenantID, b.ID, stage); err != nil {
			s.log.Error().Err(err).Str("batch_id", b.ID).Msg("failed to persist stage transition")
			continue
		}
		stats.Transitions++

		from := ""
		if b.LifecycleStage != nil {
			from = *b.LifecycleStage
		}
		s.pub.StageChanged(ctx, tenantID, b.ID, from, string(stage))

		s.log.Info().
			Str("tenant_id", tenantID).
			Str("batch_id", b.ID).
			Str("batch_number", b.BatchNumber).
			Str("from", from).
			Str("to", string(stage)).
			Msg("batch stage changed")
	}

	return stats, nil
}
