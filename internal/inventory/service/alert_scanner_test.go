package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/events"
	"github.com/stocklot/stocklot-backend/internal/inventory/repository"
	"github.com/stocklot/stocklot-backend/pkg/clock"
	"github.com/stocklot/stocklot-backend/pkg/logger"
	"github.com/stocklot/stocklot-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScanner(m *testutil.MockDB) *AlertScanner {
	log := logger.Nop()
	return NewAlertScanner(
		repository.NewItemRepository(m.DB),
		repository.NewBatchRepository(m.DB),
		repository.NewAlertRepository(m.DB),
		repository.NewRecipeRepository(m.DB),
		events.NewPublisher(nil, log),
		clock.At(allocNow),
		3,
		log,
	)
}

// scanItems is the item map handed to the expiry scan, keyed the way Sweep
// builds it
func scanItems() map[string]*repository.StockItem {
	item := testutil.ItemFixture("Flour", "gm", dec("100"))
	item.ID = "item-1"
	return map[string]*repository.StockItem{item.ID: item}
}

func alertRows() *sqlmock.Rows {
	return testutil.MockRows(
		"id", "tenant_id", "kind", "status", "priority", "message", "created_at", "updated_at",
	)
}

func perishableRows(expiry time.Time, remaining, stage string) *sqlmock.Rows {
	rows := testutil.MockRows(
		"id", "tenant_id", "item_id", "batch_number", "quantity_received",
		"quantity_remaining", "unit", "unit_cost", "expiry_date",
		"lifecycle_stage", "is_active", "created_at", "updated_at",
	)
	var stagePtr interface{}
	if stage != "" {
		stagePtr = stage
	}
	rows.AddRow("b1", tenantID, "item-1", "BATCH-000001", remaining, remaining,
		"gm", "2", expiry, stagePtr, true, allocNow, allocNow)
	return rows
}

func TestRaise_CreatesAlertAndCountsIt(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	m.Mock.ExpectQuery(`SELECT \* FROM stock_alerts`).
		WillReturnRows(alertRows())
	m.Mock.ExpectQuery(`INSERT INTO stock_alerts`).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(allocNow, allocNow))

	itemID := "item-1"
	stats := &ScanStats{}
	err := s.raise(context.Background(), tenantID, &repository.Alert{
		Kind:     repository.AlertLowStock,
		Priority: repository.PriorityMedium,
		ItemID:   &itemID,
		Message:  "Flour is low",
	}, "reorder 50 gm", stats)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	m.ExpectationsWereMet(t)
}

func TestRaise_SuppressesDuplicateWhileAlertIsLive(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	// a snoozed alert still counts as live
	m.Mock.ExpectQuery(`SELECT \* FROM stock_alerts`).
		WillReturnRows(alertRows().AddRow(
			"alert-1", tenantID, "LOW_STOCK", "SNOOZED", "medium", "Flour is low", allocNow, allocNow,
		))

	itemID := "item-1"
	stats := &ScanStats{}
	err := s.raise(context.Background(), tenantID, &repository.Alert{
		Kind:     repository.AlertLowStock,
		Priority: repository.PriorityMedium,
		ItemID:   &itemID,
		Message:  "Flour is low",
	}, "", stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)

	m.ExpectationsWereMet(t)
}

func TestScanExpiry_RefreshesExistingAlertInPlace(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	// batch now expires tomorrow; the open alert still says three days
	expiry := allocNow.AddDate(0, 0, 1)
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND is_active = true AND expiry_date IS NOT NULL`).
		WillReturnRows(perishableRows(expiry, "5", "NEAR_EXPIRY"))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_alerts`).
		WillReturnRows(alertRows().AddRow(
			"alert-1", tenantID, "EXPIRY_WARNING", "ACTIVE", "high",
			"batch BATCH-000001 of Flour expires in 3 days (5 gm remaining)", allocNow, allocNow,
		))
	m.Mock.ExpectExec(`UPDATE stock_alerts SET priority = \$3, message = \$4`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats := &ScanStats{}
	err := s.scanExpiry(context.Background(), tenantID, scanItems(), stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 1, stats.Updated)

	m.ExpectationsWereMet(t)
}

func TestScanExpiry_CriticalWithinOneDay(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	expiry := allocNow.AddDate(0, 0, 1)
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND is_active = true AND expiry_date IS NOT NULL`).
		WillReturnRows(perishableRows(expiry, "5", ""))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_alerts`).
		WillReturnRows(alertRows())
	m.Mock.ExpectQuery(`INSERT INTO stock_alerts`).
		WithArgs(sqlmock.AnyArg(), tenantID, "EXPIRY_WARNING", "ACTIVE", "critical",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(allocNow, allocNow))

	stats := &ScanStats{}
	err := s.scanExpiry(context.Background(), tenantID, scanItems(), stats)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	m.ExpectationsWereMet(t)
}

func TestScanExpiry_OutsideThresholdCreatesNothing(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	expiry := allocNow.AddDate(0, 0, 10)
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND is_active = true AND expiry_date IS NOT NULL`).
		WillReturnRows(perishableRows(expiry, "5", ""))

	stats := &ScanStats{}
	err := s.scanExpiry(context.Background(), tenantID, scanItems(), stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 0, stats.Updated)

	m.ExpectationsWereMet(t)
}

func TestScanStockLevel_OutOfStockIncludesAffectedProducts(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	m.Mock.ExpectQuery(`SELECT DISTINCT p\.name FROM products p`).
		WillReturnRows(testutil.MockRows("name").AddRow("Pizza Dough").AddRow("Pasta"))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_alerts`).
		WillReturnRows(alertRows())
	m.Mock.ExpectQuery(`INSERT INTO stock_alerts`).
		WithArgs(sqlmock.AnyArg(), tenantID, "OUT_OF_STOCK", "ACTIVE", "critical",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "Flour is out of stock", "affects: Pizza Dough, Pasta",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(allocNow, allocNow))

	item := testutil.ItemFixture("Flour", "gm", decimal.Zero)
	item.ID = "item-1"
	stats := &ScanStats{}
	err := s.scanStockLevel(context.Background(), tenantID, item, stats)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	m.ExpectationsWereMet(t)
}

func TestScanStockLevel_AtReorderPointRaisesNothing(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	// exactly on the reorder point is not low yet, so no queries run
	item := testutil.ItemFixture("Flour", "gm", dec("10"))
	item.ID = "item-1"
	stats := &ScanStats{}
	err := s.scanStockLevel(context.Background(), tenantID, item, stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)

	m.ExpectationsWereMet(t)
}

func TestScanExpiry_AlreadyExpiredCreatesNothing(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	// expiry passed two days ago and no warning was ever raised; the
	// lifecycle sweep handles expired stock, so no alert appears now
	expiry := allocNow.AddDate(0, 0, -2)
	m.Mock.ExpectQuery(`SELECT \* FROM stock_batches\s+WHERE tenant_id = \$1 AND is_active = true AND expiry_date IS NOT NULL`).
		WillReturnRows(perishableRows(expiry, "5", "EXPIRED"))
	m.Mock.ExpectQuery(`SELECT \* FROM stock_alerts`).
		WillReturnRows(alertRows())

	stats := &ScanStats{}
	err := s.scanExpiry(context.Background(), tenantID, scanItems(), stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 0, stats.Updated)

	m.ExpectationsWereMet(t)
}

func TestResolveStale_ClosesAlertsWhoseConditionCleared(t *testing.T) {
	m := testutil.NewMockDB(t)
	defer m.Close()
	s := newScanner(m)

	// the item is back at 100 gm, so both stock-level alerts are stale
	itemID := "item-1"
	live := testutil.MockRows(
		"id", "tenant_id", "kind", "status", "priority", "item_id", "message", "created_at", "updated_at",
	).AddRow(
		"alert-1", tenantID, "OUT_OF_STOCK", "ACTIVE", "critical", itemID, "Flour is out of stock", allocNow, allocNow,
	).AddRow(
		"alert-2", tenantID, "LOW_STOCK", "ACTIVE", "medium", itemID, "Flour is low", allocNow, allocNow,
	)
	m.Mock.ExpectQuery(`SELECT \* FROM stock_alerts\s+WHERE tenant_id = \$1 AND status IN`).
		WillReturnRows(live)
	m.Mock.ExpectExec(`UPDATE stock_alerts\s+SET status = \$3, resolved_at = NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.Mock.ExpectExec(`UPDATE stock_alerts\s+SET status = \$3, resolved_at = NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats := &ScanStats{}
	err := s.resolveStale(context.Background(), tenantID, scanItems(), stats)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Resolved)

	m.ExpectationsWereMet(t)
}
