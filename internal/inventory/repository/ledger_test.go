package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAppend_DerivesTotalValue(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	repo := repository.NewLedgerRepository(m.DB)

	m.Mock.ExpectQuery(`INSERT INTO stock_ledger`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))

	rec := &repository.TransactionRecord{
		ItemID:   "item-1",
		Kind:     repository.MovementSale,
		Quantity: dec("-4"),
		Unit:     "gm",
		UnitCost: dec("2.5"),
	}
	require.NoError(t, repo.Append(context.Background(), testutil.TestTenantID, rec))

	assert.NotEmpty(t, rec.ID)
	assert.True(t, dec("-10").Equal(rec.TotalValue))
	assert.False(t, rec.CreatedAt.IsZero())

	m.ExpectationsWereMet(t)
}

func TestSumByItem(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	repo := repository.NewLedgerRepository(m.DB)

	m.Mock.ExpectQuery(`SELECT COALESCE\(SUM\(quantity\), 0\) FROM stock_ledger`).
		WillReturnRows(testutil.MockRows("coalesce").AddRow("42.5"))

	sum, err := repo.SumByItem(context.Background(), testutil.TestTenantID, "item-1")
	require.NoError(t, err)
	assert.True(t, dec("42.5").Equal(sum))

	m.ExpectationsWereMet(t)
}

func TestMovementKindValid(t *testing.T) {
	assert.True(t, repository.MovementPurchase.Valid())
	assert.True(t, repository.MovementPreparation.Valid())
	assert.True(t, repository.MovementAdjustment.Valid())
	assert.True(t, repository.MovementSale.Valid())
	assert.True(t, repository.MovementWastage.Valid())
	assert.False(t, repository.MovementKind("BORROW").Valid())
	assert.False(t, repository.MovementKind("").Valid())
}
