package service

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/errors"
	"github.com/stocklot/stocklot-backend/pkg/logger"
	"github.com/stocklot/stocklot-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "tenant-test"

func newExecutor(m *testutil.MockDB) *Executor {
	log := logger.Nop()
	return NewExecutor(
		m.DB,
		repository.NewItemRepository(m.DB),
		repository.NewBatchRepository(m.DB),
		repository.NewDerivedBatchRepository(m.DB),
		repository.NewRecipeRepository(m.DB),
		repository.NewLedgerRepository(m.DB),
		events.NewPublisher(nil, log),
		clock.At(allocNow),
		log,
	)
}

func itemRows(quantity string, expiry *time.Time) *sqlmock.Rows {
	return testutil.MockRows(
		"id", "tenant_id", "name", "unit", "current_quantity", "unit_cost",
		"fresh_threshold_days", "expiry_date", "is_active", "created_at", "updated_at",
	).AddRow("item-1", tenantID, "Flour", "gm", quantity, "2", 3, expiry, true, allocNow, allocNow)
}

func batchRows(rows ...[]driver.Value) *sqlmock.Rows {
	r := testutil.MockRows(
		"id", "tenant_id", "item_id", "batch_number", "quantity_received",
		"quantity_remaining", "unit", "unit_cost", "expiry_date", "is_active",
		"created_at", "updated_at",
	)
	for _, row := range rows {
		r.AddRow(row...)
	}
	return r
}

func batchRow(id, number, remaining string, expiry *time.Time) []driver.Value {
	return []driver.Value{id, tenantID, "item-1", number, remaining, remaining, "gm", "2", expiry, true, allocNow, allocNow}
}

func TestExecute_ConsumesBatchesInExpiryOrder(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	soon := allocNow.AddDate(0, 0, 2)
	later := allocNow.AddDate(0, 0, 9)

	m.ExpectBegin()
	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(itemRows("25", nil))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND item_id = \$2 AND is_active = true AND quantity_remaining > 0`).
		WillReturnRows(batchRows(
			batchRow("b1", "BATCH-000001", "5", &soon),
			batchRow("b2", "BATCH-000002", "20", &later),
		))

	// first draw empties b1
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(batchRows(batchRow("b1", "BATCH-000001", "5", &soon)))
	m.Mock.ExpectExec(`UPDATE stock_batches\s+SET quantity_remaining = quantity_remaining - \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.Mock.ExpectQuery(`INSERT INTO stock_ledger`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(allocNow))

	// second draw takes the remainder from b2
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(batchRows(batchRow("b2", "BATCH-000002", "20", &later)))
	m.Mock.ExpectExec(`UPDATE stock_batches\s+SET quantity_remaining = quantity_remaining - \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.Mock.ExpectQuery(`INSERT INTO stock_ledger`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(allocNow))

	m.Mock.ExpectExec(`UPDATE stock_items\s+SET current_quantity = current_quantity - \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	result, err := exec.Execute(context.Background(), tenantID, ConsumeRequest{
		ItemID:   "item-1",
		Quantity: dec("8"),
		Kind:     repository.MovementSale,
	})
	require.NoError(t, err)

	require.Len(t, result.Lines, 2)
	assert.Equal(t, "b1", result.Lines[0].BatchID)
	assert.True(t, dec("5").Equal(result.Lines[0].Quantity))
	assert.Equal(t, "b2", result.Lines[1].BatchID)
	assert.True(t, dec("3").Equal(result.Lines[1].Quantity))
	assert.True(t, dec("16").Equal(result.TotalCost))

	m.ExpectationsWereMet(t)
}

func TestExecute_ShortageRollsBack(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	soon := allocNow.AddDate(0, 0, 2)

	m.ExpectBegin()
	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(itemRows("5", nil))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND item_id = \$2`).
		WillReturnRows(batchRows(batchRow("b1", "BATCH-000001", "5", &soon)))
	m.ExpectRollback()

	_, err := exec.Execute(context.Background(), tenantID, ConsumeRequest{
		ItemID:   "item-1",
		Quantity: dec("12"),
		Kind:     repository.MovementSale,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	m.ExpectationsWereMet(t)
}

func TestExecute_GuardedDecrementConflictRollsBack(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	soon := allocNow.AddDate(0, 0, 2)

	m.ExpectBegin()
	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(itemRows("5", nil))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND item_id = \$2`).
		WillReturnRows(batchRows(batchRow("b1", "BATCH-000001", "5", &soon)))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(batchRows(batchRow("b1", "BATCH-000001", "5", &soon)))
	// a concurrent transaction drained the batch between planning and the
	// guarded update
	m.Mock.ExpectExec(`UPDATE stock_batches\s+SET quantity_remaining = quantity_remaining - \$3`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	m.ExpectRollback()

	_, err := exec.Execute(context.Background(), tenantID, ConsumeRequest{
		ItemID:   "item-1",
		Quantity: dec("5"),
		Kind:     repository.MovementSale,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	m.ExpectationsWereMet(t)
}

func TestExecute_StandaloneFallback(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	m.ExpectBegin()
	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(itemRows("40", nil))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND item_id = \$2`).
		WillReturnRows(batchRows())
	m.Mock.ExpectExec(`UPDATE stock_items\s+SET current_quantity = current_quantity - \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.Mock.ExpectQuery(`INSERT INTO stock_ledger`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(allocNow))
	m.ExpectCommit()

	result, err := exec.Execute(context.Background(), tenantID, ConsumeRequest{
		ItemID:   "item-1",
		Quantity: dec("15"),
		Kind:     repository.MovementPreparation,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Lines)
	assert.True(t, dec("30").Equal(result.TotalCost))

	m.ExpectationsWereMet(t)
}

func TestExecute_StandaloneExpiredItemFails(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	expired := allocNow.AddDate(0, 0, -3)

	m.ExpectBegin()
	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(itemRows("40", &expired))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND item_id = \$2`).
		WillReturnRows(batchRows())
	m.ExpectRollback()

	_, err := exec.Execute(context.Background(), tenantID, ConsumeRequest{
		ItemID:   "item-1",
		Quantity: dec("5"),
		Kind:     repository.MovementSale,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExpiredStock))

	m.ExpectationsWereMet(t)
}

func derivedRow(id, number, produced, remaining, totalCost string, expiry *time.Time) []driver.Value {
	return []driver.Value{id, tenantID, "prod-1", number, produced, remaining, "ml", totalCost, allocNow, expiry, true, allocNow, allocNow}
}

func derivedRows(rows ...[]driver.Value) *sqlmock.Rows {
	r := testutil.MockRows(
		"id", "tenant_id", "product_id", "batch_number", "quantity_produced",
		"quantity_remaining", "unit", "total_cost", "produced_at", "expiry_date",
		"is_active", "created_at", "updated_at",
	)
	for _, row := range rows {
		r.AddRow(row...)
	}
	return r
}

func TestExecuteProduct_DrawsFromDerivedBatchesInExpiryOrder(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	soon := allocNow.Add(12 * time.Hour)
	later := allocNow.Add(36 * time.Hour)

	m.Mock.ExpectQuery(`SELECT \* FROM products WHERE tenant_id = \$1 AND id = \$2`).
		WillReturnRows(productRows("1000", 48))

	m.ExpectBegin()
	m.Mock.ExpectQuery(`SELECT \* FROM derived_batches\s+WHERE tenant_id = \$1 AND product_id = \$2 AND is_active = true AND quantity_remaining > 0`).
		WillReturnRows(derivedRows(
			derivedRow("d1", "SF_TOMATO_20250614120000", "500", "500", "1000", &soon),
			derivedRow("d2", "SF_TOMATO_20250615090000", "1000", "1000", "1000", &later),
		))

	// the earlier-expiring run empties first
	m.Mock.ExpectQuery(`SELECT \* FROM derived_batches WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(derivedRows(derivedRow("d1", "SF_TOMATO_20250614120000", "500", "500", "1000", &soon)))
	m.Mock.ExpectExec(`UPDATE derived_batches\s+SET quantity_remaining = quantity_remaining - \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.Mock.ExpectQuery(`INSERT INTO stock_ledger`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(allocNow))

	m.Mock.ExpectQuery(`SELECT \* FROM derived_batches WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(derivedRows(derivedRow("d2", "SF_TOMATO_20250615090000", "1000", "1000", "1000", &later)))
	m.Mock.ExpectExec(`UPDATE derived_batches\s+SET quantity_remaining = quantity_remaining - \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.Mock.ExpectQuery(`INSERT INTO stock_ledger`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(allocNow))
	m.ExpectCommit()

	result, err := exec.ExecuteProduct(context.Background(), tenantID, ProductConsumeRequest{
		ProductID: "prod-1",
		Quantity:  dec("800"),
		Kind:      repository.MovementSale,
	})
	require.NoError(t, err)

	require.Len(t, result.Lines, 2)
	assert.Equal(t, "d1", result.Lines[0].BatchID)
	assert.True(t, dec("500").Equal(result.Lines[0].Quantity))
	assert.Equal(t, "d2", result.Lines[1].BatchID)
	assert.True(t, dec("300").Equal(result.Lines[1].Quantity))
	// 500 at production cost 2 plus 300 at cost 1
	assert.True(t, dec("1300").Equal(result.TotalCost))

	m.ExpectationsWereMet(t)
}

func TestExecuteProduct_ShortageRollsBack(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	soon := allocNow.Add(12 * time.Hour)

	m.Mock.ExpectQuery(`SELECT \* FROM products WHERE tenant_id = \$1 AND id = \$2`).
		WillReturnRows(productRows("1000", 48))

	m.ExpectBegin()
	m.Mock.ExpectQuery(`SELECT \* FROM derived_batches\s+WHERE tenant_id = \$1 AND product_id = \$2`).
		WillReturnRows(derivedRows(derivedRow("d1", "SF_TOMATO_20250614120000", "100", "100", "200", &soon)))
	m.ExpectRollback()

	_, err := exec.ExecuteProduct(context.Background(), tenantID, ProductConsumeRequest{
		ProductID: "prod-1",
		Quantity:  dec("800"),
		Kind:      repository.MovementSale,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	m.ExpectationsWereMet(t)
}

func TestCorrect_RejectsCountAboveReceived(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	m.ExpectBegin()
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WillReturnRows(testutil.MockRows(
			"id", "tenant_id", "item_id", "batch_number", "quantity_received",
			"quantity_remaining", "unit", "unit_cost", "is_active", "created_at", "updated_at",
		).AddRow("b1", tenantID, "item-1", "BATCH-000001", "10", "4", "gm", "2", true, allocNow, allocNow))
	m.ExpectRollback()

	// a count above what the batch ever held cannot be reconciled
	_, err := exec.Correct(context.Background(), tenantID, CorrectionRequest{
		BatchID: "b1",
		Counted: dec("12"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	m.ExpectationsWereMet(t)
}

func TestExecute_RejectsBadRequests(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	exec := newExecutor(m)

	_, err := exec.Execute(context.Background(), tenantID, ConsumeRequest{
		ItemID:   "item-1",
		Quantity: dec("-1"),
		Kind:     repository.MovementSale,
	})
	require.Error(t, err)

	_, err = exec.Execute(context.Background(), tenantID, ConsumeRequest{
		ItemID:   "item-1",
		Quantity: dec("1"),
		Kind:     repository.MovementKind("BORROW"),
	})
	require.Error(t, err)

	m.ExpectationsWereMet(t)
}
