package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/logger"
	"github.com/stocklot/stocklot-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSweeper(m *testutil.MockDB) *LifecycleSweeper {
	log := logger.Nop()
	return NewLifecycleSweeper(
		repository.NewItemRepository(m.DB),
		repository.NewBatchRepository(m.DB),
		events.NewPublisher(nil, log),
		clock.At(allocNow),
		log,
	)
}

func activeItemRows() *sqlmock.Rows {
	return testutil.MockRows("id", "tenant_id", "name", "unit", "fresh_threshold_days", "is_active").
		AddRow("item-1", tenantID, "Flour", "gm", 3, true)
}

func TestSweep_PersistsOnlyChangedStages(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newSweeper(m)

	stillFresh := allocNow.AddDate(0, 0, 10)
	nowNear := allocNow.AddDate(0, 0, 2)

	batchRows := testutil.MockRows(
		"id", "tenant_id", "item_id", "batch_number", "quantity_received",
		"quantity_remaining", "unit", "unit_cost", "expiry_date",
		"lifecycle_stage", "is_active", "created_at", "updated_at",
	).
		AddRow("b-fresh", tenantID, "item-1", "BATCH-000001", "10", "10", "gm", "1", stillFresh, "FRESH", true, allocNow, allocNow).
		AddRow("b-near", tenantID, "item-1", "BATCH-000002", "10", "10", "gm", "1", nowNear, "FRESH", true, allocNow, allocNow)

	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND is_active = true`).
		WillReturnRows(activeItemRows())
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND is_active = true AND expiry_date IS NOT NULL`).
		WillReturnRows(batchRows)

	// only the batch that crossed the threshold is written
	m.Mock.ExpectExec(`UPDATE stock_batches SET lifecycle_stage = \$3`).
		WithArgs(tenantID, "b-near", "NEAR_EXPIRY").
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats, err := s.Sweep(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Transitions)

	m.ExpectationsWereMet(t)
}

func TestSweep_ExpiredBatchTransitions(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newSweeper(m)

	expired := allocNow.AddDate(0, 0, -1)

	batchRows := testutil.MockRows(
		"id", "tenant_id", "item_id", "batch_number", "quantity_received",
		"quantity_remaining", "unit", "unit_cost", "expiry_date",
		"lifecycle_stage", "is_active", "created_at", "updated_at",
	).
		AddRow("b1", tenantID, "item-1", "BATCH-000001", "10", "4", "gm", "1", expired, "NEAR_EXPIRY", true, allocNow, allocNow)

	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND is_active = true`).
		WillReturnRows(activeItemRows())
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND is_active = true AND expiry_date IS NOT NULL`).
		WillReturnRows(batchRows)
	m.Mock.ExpectExec(`UPDATE stock_batches SET lifecycle_stage = \$3`).
		WithArgs(tenantID, "b1", "EXPIRED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats, err := s.Sweep(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Transitions)

	m.ExpectationsWereMet(t)
}

func TestSweep_NoTransitionsWritesNothing(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newSweeper(m)

	near := allocNow.AddDate(0, 0, 2)

	batchRows := testutil.MockRows(
		"id", "tenant_id", "item_id", "batch_number", "quantity_received",
		"quantity_remaining", "unit", "unit_cost", "expiry_date",
		"lifecycle_stage", "is_active", "created_at", "updated_at",
	).
		AddRow("b1", tenantID, "item-1", "BATCH-000001", "10", "4", "gm", "1", near, "NEAR_EXPIRY", true, allocNow, allocNow)

	m.Mock.ExpectQuery(`SELECT \* FROM stock_items WHERE tenant_id = \$1 AND is_active = true`).
		WillReturnRows(activeItemRows())
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND is_active = true AND expiry_date IS NOT NULL`).
		WillReturnRows(batchRows)

	stats, err := s.Sweep(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Transitions)

	m.ExpectationsWereMet(t)
}
