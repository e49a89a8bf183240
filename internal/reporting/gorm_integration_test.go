package reporting

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mystore/backend/internal/syncwire"
)

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := os.Getenv("MYSTORE_TEST_REPORTING_DATABASE_URL")
	if dsn == "" {
		t.Skip("set MYSTORE_TEST_REPORTING_DATABASE_URL to run reporting postgres test")
	}
	store, err := OpenGorm(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGormMergeReceiptIsAdditive(t *testing.T) {
	store := newGormStore(t)
	ctx := t.Context()
	stamp := time.Now().UnixNano() % 1_000_000_000

	product := shirt()
	product.Barcode = fmt.Sprintf("29%011d", stamp)
	created, _, err := store.UpsertProducts(ctx, []syncwire.Product{product})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	receipt := sampleReceipt()
	receipt.LocalReceiptID = stamp
	receipt.ReceiptNumber = fmt.Sprintf("RCPT%d", stamp)
	receipt.Sales = receipt.Sales[:1]
	receipt.Sales[0].LocalSaleID = stamp
	receipt.Sales[0].ProductBarcode = product.Barcode
	receipt.Payment.LocalPaymentID = stamp

	first, err := store.MergeReceipt(ctx, receipt)
	require.NoError(t, err)
	assert.True(t, first.ReceiptCreated)
	assert.Equal(t, 1, first.NewSales)
	assert.Equal(t, 1, first.NewPayments)

	second, err := store.MergeReceipt(ctx, receipt)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{}, second)

	var sales []Sale
	require.NoError(t, store.db.Where("local_sale_id = ?", stamp).Find(&sales).Error)
	require.Len(t, sales, 1)
	require.NotNil(t, sales[0].PaymentID)

	unknown := receipt
	unknown.LocalReceiptID = stamp + 1
	unknown.Sales = []syncwire.Sale{{LocalSaleID: stamp + 1, ProductBarcode: "0000000000000", Quantity: 1}}
	unknown.Payment = nil
	_, err = store.MergeReceipt(ctx, unknown)
	assert.ErrorIs(t, err, ErrUnresolvedProduct)

	var count int64
	require.NoError(t, store.db.Model(&Receipt{}).Where("local_receipt_id = ?", stamp+1).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, store.RecordSync(ctx, SyncMetadata{SyncType: SyncTypeReceipts, LastSyncTime: time.Now().UTC(), SyncStatus: SyncSuccess, RecordsSynced: 1}))
	require.NoError(t, store.RecordSync(ctx, SyncMetadata{SyncType: SyncTypeReceipts, LastSyncTime: time.Now().UTC(), SyncStatus: SyncFailed, ErrorMessage: "boom"}))
	rows, err := store.ListSyncMetadata(ctx)
	require.NoError(t, err)
	var receiptsRows int
	for _, row := range rows {
		if row.SyncType == SyncTypeReceipts {
			receiptsRows++
			assert.Equal(t, SyncFailed, row.SyncStatus)
		}
	}
	assert.Equal(t, 1, receiptsRows)
}

func TestGormAggregatesUpsertAndResolve(t *testing.T) {
	store := newGormStore(t)
	ctx := t.Context()
	stamp := time.Now().UnixNano() % 1_000_000_000
	shop := fmt.Sprintf("Shop %d", stamp)

	inventory := syncwire.InventoryRequest{Items: []syncwire.InventoryItem{{LocalProductID: stamp, Brand: "Zara", Quantity: 12, Location: "ABUJA", Shop: shop}}}
	result, err := store.ApplyAggregate(ctx, inventory)
	require.NoError(t, err)
	assert.Equal(t, AggregateResult{Created: 1}, result)
	inventory.Items[0].Quantity = 3
	result, err = store.ApplyAggregate(ctx, inventory)
	require.NoError(t, err)
	assert.Equal(t, AggregateResult{Updated: 1}, result)

	var snapshot InventorySnapshot
	require.NoError(t, store.db.Where("product_id = ?", stamp).First(&snapshot).Error)
	assert.Equal(t, 3, snapshot.Quantity)

	daily := syncwire.SalesDailyRequest{Days: []syncwire.DailySales{{Date: "2025-11-03", Category: "Shirt", Shop: shop, Location: "ABUJA", TotalUnitsSold: 2}}}
	result, err = store.ApplyAggregate(ctx, daily)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	daily.Days[0].TotalUnitsSold = 4
	result, err = store.ApplyAggregate(ctx, daily)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	top := syncwire.TopProductsRequest{PeriodType: "weekly", PeriodStart: "2025-11-13", PeriodEnd: "2025-11-20", Products: []syncwire.TopProduct{{Brand: shop, UnitsSold: 4, Rank: 1}}}
	for range 2 {
		_, err = store.ApplyAggregate(ctx, top)
		require.NoError(t, err)
	}
	var ranked int64
	require.NoError(t, store.db.Model(&TopSellingProduct{}).Where("brand = ?", shop).Count(&ranked).Error)
	assert.Equal(t, int64(1), ranked)

	alert := syncwire.StockAlert{LocalProductID: stamp, Brand: "Zara", Location: "ABUJA", CurrentQuantity: 3, AlertLevel: syncwire.AlertCritical}
	result, err = store.ApplyAggregate(ctx, syncwire.StockAlertsRequest{Alerts: []syncwire.StockAlert{alert}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	result, err = store.ApplyAggregate(ctx, syncwire.StockAlertsRequest{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Resolved, 1)

	var stored LowStockAlert
	require.NoError(t, store.db.Where("product_id = ?", stamp).First(&stored).Error)
	assert.True(t, stored.IsResolved)
	assert.NotNil(t, stored.ResolvedDate)
}
