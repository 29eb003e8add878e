package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/lifecycle"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/internal/inventory/units"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/logger"
)

// Warning codes attached to allocation results
const (
	WarnPartialFulfillment = "PARTIAL_FULFILLMENT"
	WarnNearExpiry         = "NEAR_EXPIRY"
	WarnExpiredSkipped     = "EXPIRED_SKIPPED"
	WarnNoBatches          = "NO_BATCHES"
)

// BatchSuggestion is one line of an allocation plan: draw Quantity from
// the given batch. Rank is the draw order, 1 first.
type BatchSuggestion struct {
	BatchID         string          `json:"batch_id"`
	BatchNumber     string          `json:"batch_number"`
	Rank            int             `json:"rank"`
	Quantity        decimal.Decimal `json:"quantity"`
	Remaining       decimal.Decimal `json:"remaining_after"`
	Unit            string          `json:"unit"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	DaysUntilExpiry *int            `json:"days_until_expiry,omitempty"`
	Stage           lifecycle.Stage `json:"stage,omitempty"`
	Reason          string          `json:"reason"`
}

// AllocationWarning flags a condition the caller should surface. Warnings
// never fail the allocation; shortage is an outcome, not an error.
type AllocationWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	BatchID string `json:"batch_id,omitempty"`
}

// AllocationResult is a FEFO/FIFO allocation plan for a requested
// quantity. Every quantity on it is expressed in the caller's unit.
type AllocationResult struct {
	ItemID            string              `json:"item_id"`
	RequiredQty       decimal.Decimal     `json:"required_quantity"`
	Unit              string              `json:"unit"`
	Suggestions       []BatchSuggestion   `json:"suggestions"`
	QuantityAllocated decimal.Decimal     `json:"quantity_allocated"`
	TotalAvailable    decimal.Decimal     `json:"total_available"`
	CanFulfill        bool                `json:"can_fulfill"`
	Shortage          decimal.Decimal     `json:"shortage"`
	Warnings          []AllocationWarning `json:"warnings,omitempty"`
}

// Allocator builds batch consumption plans. Picking order is earliest
// expiry first with no-expiry batches last, receipt order breaking ties;
// expired batches are skipped and excluded from availability.
type Allocator struct {
	items   *repository.ItemRepository
	batches *repository.BatchRepository
	derived *repository.DerivedBatchRepository
	recipes *repository.RecipeRepository
	clk     clock.Clock
	log     *logger.Logger
}

// NewAllocator creates a new allocator
func NewAllocator(
	items *repository.ItemRepository,
	batches *repository.BatchRepository,
	derived *repository.DerivedBatchRepository,
	recipes *repository.RecipeRepository,
	clk clock.Clock,
	log *logger.Logger,
) *Allocator {
	return &Allocator{
		items:   items,
		batches: batches,
		derived: derived,
		recipes: recipes,
		clk:     clk,
		log:     log.WithComponent("allocator"),
	}
}

// Suggest builds an allocation plan for the required quantity of an item.
// The requested unit may differ from the item's unit; it is converted
// before allocation and the plan is converted back before returning, so
// the caller always reads quantities in the unit it asked in.
func (a *Allocator) Suggest(ctx context.Context, tenantID, itemID string, required decimal.Decimal, unit string) (*AllocationResult, error) {
	return a.suggest(ctx, tenantID, itemID, "", required, unit)
}

// SuggestFromBatch builds a plan that draws from the preferred batch first,
// then falls back to expiry order for any remainder. An expired or empty
// preferred batch is skipped like any other.
func (a *Allocator) SuggestFromBatch(ctx context.Context, tenantID, itemID, preferredBatchID string, required decimal.Decimal, unit string) (*AllocationResult, error) {
	return a.suggest(ctx, tenantID, itemID, preferredBatchID, required, unit)
}

func (a *Allocator) suggest(ctx context.Context, tenantID, itemID, preferredBatchID string, required decimal.Decimal, unit string) (*AllocationResult, error) {
	item, err := a.items.GetByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}

	requestUnit := unit
	if requestUnit == "" {
		requestUnit = item.Unit
	}
	qty := required
	if requestUnit != item.Unit {
		qty, err = units.Convert(required, requestUnit, item.Unit)
		if err != nil {
			return nil, err
		}
	}

	batches, err := a.batches.ListAllocatable(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}

	if preferredBatchID != "" {
		batches = promoteBatch(batches, preferredBatchID)
	}

	result := allocate(batches, qty, a.clk.Now(), item.FreshThresholdDays)
	result.ItemID = itemID
	if err := convertResult(result, item.Unit, requestUnit); err != nil {
		return nil, err
	}
	result.Unit = requestUnit

	if !result.CanFulfill {
		a.log.Debug().
			Str("tenant_id", tenantID).
			Str("item_id", itemID).
			Str("required", required.String()).
			Str("available", result.TotalAvailable.String()).
			Msg("allocation short of requirement")
	}

	return result, nil
}

// derivedFreshThresholdDays is the near-expiry window applied to prepared
// batches, which carry shelf lives measured in hours.
const derivedFreshThresholdDays = 1

// SuggestProduct builds an allocation plan over a product's prepared
// batches. They rank and draw exactly like raw-stock batches.
func (a *Allocator) SuggestProduct(ctx context.Context, tenantID, productID string, required decimal.Decimal, unit string) (*AllocationResult, error) {
	product, err := a.recipes.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	requestUnit := unit
	if requestUnit == "" {
		requestUnit = product.Unit
	}
	qty := required
	if requestUnit != product.Unit {
		qty, err = units.Convert(required, requestUnit, product.Unit)
		if err != nil {
			return nil, err
		}
	}

	derived, err := a.derived.ListAllocatable(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	result := allocate(derivedBatchViews(derived), qty, a.clk.Now(), derivedFreshThresholdDays)
	result.ItemID = productID
	if err := convertResult(result, product.Unit, requestUnit); err != nil {
		return nil, err
	}
	result.Unit = requestUnit
	return result, nil
}

// convertResult rescales every quantity on the result from the stored
// unit into the unit the caller asked in
func convertResult(result *AllocationResult, from, to string) error {
	if from == to {
		return nil
	}
	var err error
	if result.RequiredQty, err = units.Convert(result.RequiredQty, from, to); err != nil {
		return err
	}
	if result.QuantityAllocated, err = units.Convert(result.QuantityAllocated, from, to); err != nil {
		return err
	}
	if result.TotalAvailable, err = units.Convert(result.TotalAvailable, from, to); err != nil {
		return err
	}
	if result.Shortage, err = units.Convert(result.Shortage, from, to); err != nil {
		return err
	}
	for i := range result.Suggestions {
		s := &result.Suggestions[i]
		if s.Quantity, err = units.Convert(s.Quantity, from, to); err != nil {
			return err
		}
		if s.Remaining, err = units.Convert(s.Remaining, from, to); err != nil {
			return err
		}
		s.Unit = to
	}
	return nil
}

// derivedBatchViews adapts prepared batches to the shape the allocation
// walk works on. Unit cost is the production cost spread over the yield.
func derivedBatchViews(derived []*repository.DerivedBatch) []*repository.Batch {
	views := make([]*repository.Batch, 0, len(derived))
	for _, d := range derived {
		unitCost := decimal.Zero
		if d.QuantityProduced.IsPositive() {
			unitCost = d.TotalCost.Div(d.QuantityProduced)
		}
		views = append(views, &repository.Batch{
			ID:                d.ID,
			ItemID:            d.ProductID,
			BatchNumber:       d.BatchNumber,
			QuantityReceived:  d.QuantityProduced,
			QuantityRemaining: d.QuantityRemaining,
			Unit:              d.Unit,
			UnitCost:          unitCost,
			ExpiryDate:        d.ExpiryDate,
			IsActive:          d.IsActive,
			CreatedAt:         d.ProducedAt,
		})
	}
	return views
}

// promoteBatch moves the batch with the given ID to the front, keeping the
// relative order of the rest
func promoteBatch(batches []*repository.Batch, id string) []*repository.Batch {
	for i, b := range batches {
		if b.ID == id {
			reordered := make([]*repository.Batch, 0, len(batches))
			reordered = append(reordered, b)
			reordered = append(reordered, batches[:i]...)
			reordered = append(reordered, batches[i+1:]...)
			return reordered
		}
	}
	return batches
}

// allocate walks the batches in the given order and assigns quantity
// greedily. Expired batches contribute nothing to availability. The input
// order is preserved, so callers control FEFO vs preferred-batch policy.
func allocate(batches []*repository.Batch, required decimal.Decimal, now time.Time, freshThresholdDays int) *AllocationResult {
	result := &AllocationResult{
		RequiredQty:       required,
		Suggestions:       []BatchSuggestion{},
		QuantityAllocated: decimal.Zero,
		TotalAvailable:    decimal.Zero,
		Shortage:          decimal.Zero,
	}

	if len(batches) == 0 {
		result.Shortage = required
		result.Warnings = append(result.Warnings, AllocationWarning{
			Code:    WarnNoBatches,
			Message: "no batches with remaining stock",
		})
		return result
	}

	remaining := required
	for _, b := range batches {
		stage := lifecycle.Stage("")
		var days *int
		if b.ExpiryDate != nil {
			d := lifecycle.DaysUntilExpiry(*b.ExpiryDate, now)
			days = &d
			stage = lifecycle.Classify(*b.ExpiryDate, now, freshThresholdDays)
		}

		if stage == lifecycle.StageExpired {
			result.Warnings = append(result.Warnings, AllocationWarning{
				Code:    WarnExpiredSkipped,
				Message: fmt.Sprintf("batch %s expired %d days ago, excluded from allocation", b.BatchNumber, -*days),
				BatchID: b.ID,
			})
			continue
		}

		result.TotalAvailable = result.TotalAvailable.Add(b.QuantityRemaining)

		if remaining.IsZero() {
			continue
		}

		take := decimal.Min(remaining, b.QuantityRemaining)
		remaining = remaining.Sub(take)

		reason := "earliest expiry"
		if b.ExpiryDate == nil {
			reason = "no expiry, oldest receipt"
		} else if stage == lifecycle.StageNearExpiry {
			reason = "nearing expiry, use first"
			result.Warnings = append(result.Warnings, AllocationWarning{
				Code:    WarnNearExpiry,
				Message: fmt.Sprintf("batch %s expires in %d days", b.BatchNumber, *days),
				BatchID: b.ID,
			})
		}

		result.QuantityAllocated = result.QuantityAllocated.Add(take)
		result.Suggestions = append(result.Suggestions, BatchSuggestion{
			BatchID:         b.ID,
			BatchNumber:     b.BatchNumber,
			Rank:            len(result.Suggestions) + 1,
			Quantity:        take,
			Remaining:       b.QuantityRemaining.Sub(take),
			Unit:            b.Unit,
			UnitCost:        b.UnitCost,
			ExpiryDate:      b.ExpiryDate,
			DaysUntilExpiry: days,
			Stage:           stage,
			Reason:          reason,
		})
	}

	result.CanFulfill = remaining.IsZero()
	if !result.CanFulfill {
		result.Shortage = remaining
		result.Warnings = append(result.Warnings, AllocationWarning{
			Code: WarnPartialFulfillment,
			Message: fmt.Sprintf("only %s of %s available, short %s",
				result.TotalAvailable.String(), required.String(), remaining.String()),
		})
	}

	return result
}
