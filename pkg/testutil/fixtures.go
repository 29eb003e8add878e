package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
)

// TestTenantID is the tenant used across fixtures
const TestTenantID = "tenant-test"

// Qty builds a decimal from a string, panicking on bad input. Test-only.
func Qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ItemFixture builds a stock item with sensible defaults
func ItemFixture(name, unit string, quantity decimal.Decimal) *repository.StockItem {
	now := time.Now()
	return &repository.StockItem{
		ID:                       uuid.New().String(),
		TenantID:                 TestTenantID,
		Name:                     name,
		Unit:                     unit,
		CurrentQuantity:          quantity,
		ReorderPoint:             Qty("10"),
		ReorderQuantity:          Qty("50"),
		UnitCost:                 Qty("2.5"),
		IsPerishable:             true,
		FreshThresholdDays:       3,
		NearExpiryThresholdDays:  3,
		ExpiryAlertThresholdDays: 3,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

// BatchFixture builds a batch for an item. A nil expiry models a
// non-perishable batch.
func BatchFixture(itemID, number string, remaining decimal.Decimal, expiry *time.Time) *repository.Batch {
	now := time.Now()
	return &repository.Batch{
		ID:                uuid.New().String(),
		TenantID:          TestTenantID,
		ItemID:            itemID,
		BatchNumber:       number,
		QuantityReceived:  remaining,
		QuantityRemaining: remaining,
		Unit:              "gm",
		UnitCost:          Qty("1"),
		ExpiryDate:        expiry,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// DaysFromNow returns a pointer to a timestamp n whole days from now
func DaysFromNow(n int) *time.Time {
	t := time.Now().AddDate(0, 0, n)
	return &t
}

// DaysFrom returns a pointer to a timestamp n whole days from base
func DaysFrom(base time.Time, n int) *time.Time {
	t := base.AddDate(0, 0, n)
	return &t
}
