package service

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/lifecycle"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/logger"
	"github.com/stocklot/stocklot-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allocNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func batchIn(id, number string, remaining string, expiryDays *int, createdAt time.Time) *repository.Batch {
	var expiry *time.Time
	if expiryDays != nil {
		expiry = testutil.DaysFrom(allocNow, *expiryDays)
	}
	b := testutil.BatchFixture("item-1", number, dec(remaining), expiry)
	b.ID = id
	b.UnitCost = dec("2")
	b.CreatedAt = createdAt
	b.UpdatedAt = createdAt
	return b
}

func days(n int) *int { return &n }

func TestAllocate_SplitsAcrossBatchesInExpiryOrder(t *testing.T) {
	// B1 expires in 1 day with 5 on hand, B2 in 10 days with 20
	batches := []*repository.Batch{
		batchIn("b1", "BATCH-000001", "5", days(1), allocNow.AddDate(0, 0, -5)),
		batchIn("b2", "BATCH-000002", "20", days(10), allocNow.AddDate(0, 0, -2)),
	}

	result := allocate(batches, dec("8"), allocNow, 3)

	require.True(t, result.CanFulfill)
	require.Len(t, result.Suggestions, 2)

	assert.Equal(t, "b1", result.Suggestions[0].BatchID)
	assert.Equal(t, 1, result.Suggestions[0].Rank)
	assert.True(t, dec("5").Equal(result.Suggestions[0].Quantity))
	assert.Equal(t, lifecycle.StageNearExpiry, result.Suggestions[0].Stage)
	assert.True(t, result.Suggestions[0].Remaining.IsZero())

	assert.Equal(t, "b2", result.Suggestions[1].BatchID)
	assert.Equal(t, 2, result.Suggestions[1].Rank)
	assert.True(t, dec("3").Equal(result.Suggestions[1].Quantity))
	assert.True(t, dec("17").Equal(result.Suggestions[1].Remaining))

	assert.True(t, dec("8").Equal(result.QuantityAllocated))
	assert.True(t, dec("25").Equal(result.TotalAvailable))
	assert.True(t, result.Shortage.IsZero())

	// the near-expiry draw is flagged
	var codes []string
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarnNearExpiry)
	assert.NotContains(t, codes, WarnPartialFulfillment)
}

func TestAllocate_PartialFulfillmentReportsShortage(t *testing.T) {
	batches := []*repository.Batch{
		batchIn("b1", "BATCH-000001", "5", days(5), allocNow.AddDate(0, 0, -1)),
	}

	result := allocate(batches, dec("12"), allocNow, 3)

	assert.False(t, result.CanFulfill)
	assert.True(t, dec("7").Equal(result.Shortage))
	require.Len(t, result.Suggestions, 1)
	assert.True(t, dec("5").Equal(result.Suggestions[0].Quantity))

	var codes []string
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarnPartialFulfillment)
}

func TestAllocate_ExpiredBatchesExcludedFromAvailability(t *testing.T) {
	batches := []*repository.Batch{
		batchIn("expired", "BATCH-000001", "50", days(-2), allocNow.AddDate(0, 0, -20)),
		batchIn("fresh", "BATCH-000002", "6", days(8), allocNow.AddDate(0, 0, -1)),
	}

	result := allocate(batches, dec("10"), allocNow, 3)

	assert.False(t, result.CanFulfill)
	// expired stock contributes nothing even though 50 units sit in it
	assert.True(t, dec("6").Equal(result.TotalAvailable))
	assert.True(t, dec("4").Equal(result.Shortage))
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, "fresh", result.Suggestions[0].BatchID)

	var codes []string
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarnExpiredSkipped)
}

func TestAllocate_NoExpiryBatchesDrawLast(t *testing.T) {
	// repository ordering puts no-expiry batches after dated ones
	batches := []*repository.Batch{
		batchIn("dated", "BATCH-000001", "4", days(6), allocNow.AddDate(0, 0, -1)),
		batchIn("undated", "BATCH-000002", "10", nil, allocNow.AddDate(0, 0, -30)),
	}

	result := allocate(batches, dec("6"), allocNow, 3)

	require.True(t, result.CanFulfill)
	require.Len(t, result.Suggestions, 2)
	assert.Equal(t, "dated", result.Suggestions[0].BatchID)
	assert.Equal(t, "undated", result.Suggestions[1].BatchID)
	assert.True(t, dec("2").Equal(result.Suggestions[1].Quantity))
	assert.Equal(t, "no expiry, oldest receipt", result.Suggestions[1].Reason)
	assert.Empty(t, result.Suggestions[1].Stage)
}

func TestAllocate_NoBatches(t *testing.T) {
	result := allocate(nil, dec("3"), allocNow, 3)

	assert.False(t, result.CanFulfill)
	assert.True(t, dec("3").Equal(result.Shortage))
	assert.Empty(t, result.Suggestions)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, WarnNoBatches, result.Warnings[0].Code)
}

func TestAllocate_ZeroRequiredStillReportsAvailability(t *testing.T) {
	batches := []*repository.Batch{
		batchIn("b1", "BATCH-000001", "5", days(5), allocNow),
	}

	result := allocate(batches, decimal.Zero, allocNow, 3)

	assert.True(t, result.CanFulfill)
	assert.Empty(t, result.Suggestions)
	assert.True(t, dec("5").Equal(result.TotalAvailable))
}

func TestPromoteBatch(t *testing.T) {
	batches := []*repository.Batch{
		batchIn("a", "BATCH-000001", "1", days(1), allocNow),
		batchIn("b", "BATCH-000002", "1", days(2), allocNow),
		batchIn("c", "BATCH-000003", "1", days(3), allocNow),
	}

	reordered := promoteBatch(batches, "c")
	require.Len(t, reordered, 3)
	assert.Equal(t, "c", reordered[0].ID)
	assert.Equal(t, "a", reordered[1].ID)
	assert.Equal(t, "b", reordered[2].ID)

	// unknown ID leaves the order untouched
	same := promoteBatch(batches, "missing")
	assert.Equal(t, "a", same[0].ID)
}

func newAllocator(m *testutil.MockDB) *Allocator {
	return NewAllocator(
		repository.NewItemRepository(m.DB),
		repository.NewBatchRepository(m.DB),
		repository.NewDerivedBatchRepository(m.DB),
		repository.NewRecipeRepository(m.DB),
		clock.At(allocNow),
		logger.Nop(),
	)
}

func TestSuggest_RoundTripsToRequestedUnit(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	a := newAllocator(m)

	// item and batch are stored in kg; the caller asks in gm
	expiry := allocNow.AddDate(0, 0, 10)
	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND id = \$2`).
		WillReturnRows(plainItemRows("kg", "2"))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND item_id = \$2 AND is_active = true`).
		WillReturnRows(batchRows([]driver.Value{
			"b1", tenantID, "item-1", "BATCH-000001", "2", "2", "kg", "2", &expiry, true, allocNow, allocNow,
		}))

	result, err := a.Suggest(context.Background(), tenantID, "item-1", dec("500"), "gm")
	require.NoError(t, err)

	assert.Equal(t, "gm", result.Unit)
	assert.True(t, dec("500").Equal(result.RequiredQty))
	assert.True(t, dec("500").Equal(result.QuantityAllocated))
	assert.True(t, dec("2000").Equal(result.TotalAvailable))
	assert.True(t, result.Shortage.IsZero())

	require.Len(t, result.Suggestions, 1)
	s := result.Suggestions[0]
	assert.Equal(t, 1, s.Rank)
	assert.Equal(t, "gm", s.Unit)
	assert.True(t, dec("500").Equal(s.Quantity))
	assert.True(t, dec("1500").Equal(s.Remaining))

	m.ExpectationsWereMet(t)
}

func TestAllocate_PreferredBatchFirstThenExpiryOrder(t *testing.T) {
	batches := []*repository.Batch{
		batchIn("early", "BATCH-000001", "5", days(1), allocNow),
		batchIn("late", "BATCH-000002", "5", days(9), allocNow),
	}

	result := allocate(promoteBatch(batches, "late"), dec("8"), allocNow, 3)

	require.True(t, result.CanFulfill)
	require.Len(t, result.Suggestions, 2)
	assert.Equal(t, "late", result.Suggestions[0].BatchID)
	assert.True(t, dec("5").Equal(result.Suggestions[0].Quantity))
	assert.Equal(t, "early", result.Suggestions[1].BatchID)
	assert.True(t, dec("3").Equal(result.Suggestions[1].Quantity))
}
