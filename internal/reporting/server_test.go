package reporting

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"mystore/backend/internal/syncwire"
)

const (
	testSecret   = "reporting-test-secret-0123456789abcdef"
	testUser     = "oem-sync"
	testPassword = "sync-pass-2025"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	hash, err := HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	issuer, err := NewTokenIssuer(testSecret, time.Hour, testUser, hash)
	require.NoError(t, err)
	return issuer
}

func newTestRouter(t *testing.T) (*gin.Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewServer(store, newIssuer(t), Options{}).Router(), store
}

func send(t *testing.T, router http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func obtainToken(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := send(t, router, http.MethodPost, syncwire.TokenPath, "", syncwire.TokenRequest{Username: testUser, Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp syncwire.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Access)
	return resp.Access
}

func shirt() syncwire.Product {
	return syncwire.Product{
		Barcode:      "2000000000015",
		Brand:        "Zara",
		Category:     "Shirt",
		Size:         "M",
		Color:        "Navy",
		Quantity:     10,
		Location:     "ABUJA",
		Shop:         "Wuse II",
		Price:        decimal.NewFromInt(5000),
		SellingPrice: decimal.NewFromInt(5000),
	}
}

func sampleReceipt() syncwire.Receipt {
	date := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	return syncwire.Receipt{
		LocalReceiptID: 7,
		ReceiptNumber:  "RCPT007/11/2025",
		Date:           &date,
		DeliveryCost:   decimal.NewFromInt(1500),
		Sales: []syncwire.Sale{
			{LocalSaleID: 11, ProductBarcode: "2000000000015", ProductBrand: "Zara", Quantity: 2, TotalPrice: decimal.NewFromInt(10000), SaleDate: &date},
			{LocalSaleID: 12, ProductBrand: "Zara", ProductCategory: "Shirt", ProductSize: "M", ProductColor: "Navy", ProductLocation: "ABUJA", Quantity: 1, TotalPrice: decimal.NewFromInt(5000), SaleDate: &date},
		},
		Payment: &syncwire.Payment{
			LocalPaymentID: 21,
			PaymentStatus:  "completed",
			TotalAmount:    decimal.NewFromInt(15500),
			TotalPaid:      decimal.NewFromInt(15500),
			DiscountAmount: decimal.NewFromInt(1000),
			PaymentMethods: []syncwire.PaymentMethod{
				{Method: "cash", Amount: decimal.NewFromInt(10000)},
				{Method: "pos_moniepoint", Amount: decimal.NewFromInt(5500)},
			},
		},
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := send(t, router, http.MethodPost, syncwire.TokenPath, "", syncwire.TokenRequest{Username: testUser, Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = send(t, router, http.MethodPost, syncwire.TokenPath, "", map[string]string{"username": testUser})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := send(t, router, http.MethodPost, syncwire.ReceiptsPath, "", syncwire.ReceiptsRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = send(t, router, http.MethodGet, syncwire.StatusPath, "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenIsUnauthorized(t *testing.T) {
	issuer := newIssuer(t)
	issued := time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }
	token, err := issuer.Issue(testUser, testPassword)
	require.NoError(t, err)

	issuer.now = func() time.Time { return issued.Add(2 * time.Hour) }
	router := NewServer(NewMemoryStore(), issuer, Options{}).Router()
	rec := send(t, router, http.MethodGet, "/sync/counts/", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHashPasswordKeepsExistingHash(t *testing.T) {
	hash, err := HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	again, err := HashPassword(hash, bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	_, err = NewTokenIssuer("short", time.Hour, testUser, hash)
	assert.Error(t, err)
}

func TestProductUpsertCountsCreatedAndUpdated(t *testing.T) {
	router, store := newTestRouter(t)
	token := obtainToken(t, router)

	noBarcode := shirt()
	noBarcode.Barcode = ""
	noBarcode.Size = "L"

	rec := send(t, router, http.MethodPost, syncwire.ProductsPath, token, syncwire.ProductsRequest{Products: []syncwire.Product{shirt(), noBarcode}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first syncwire.ProductsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Updated)

	changed := shirt()
	changed.Quantity = 4
	noBarcode.Quantity = 1
	rec = send(t, router, http.MethodPost, syncwire.ProductsPath, token, syncwire.ProductsRequest{Products: []syncwire.Product{changed, noBarcode}})
	require.Equal(t, http.StatusOK, rec.Code)
	var second syncwire.ProductsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, second.Total)

	counts, err := store.Counts(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Products)
	assert.Equal(t, 4, store.products[0].Quantity)
}

func TestEmptyProductListIsBadRequest(t *testing.T) {
	router, _ := newTestRouter(t)
	token := obtainToken(t, router)

	rec := send(t, router, http.MethodPost, syncwire.ProductsPath, token, syncwire.ProductsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missingBrand := shirt()
	missingBrand.Brand = ""
	rec = send(t, router, http.MethodPost, syncwire.ProductsPath, token, syncwire.ProductsRequest{Products: []syncwire.Product{missingBrand}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRepeatedReceiptPushAddsNothing(t *testing.T) {
	router, store := newTestRouter(t)
	token := obtainToken(t, router)
	require.Equal(t, http.StatusOK, send(t, router, http.MethodPost, syncwire.ProductsPath, token, syncwire.ProductsRequest{Products: []syncwire.Product{shirt()}}).Code)

	payload := syncwire.ReceiptsRequest{Receipts: []syncwire.Receipt{sampleReceipt()}}
	rec := send(t, router, http.MethodPost, syncwire.ReceiptsPath, token, payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first syncwire.ReceiptsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, 1, first.Synced)
	assert.Equal(t, 2, first.NewSales)
	assert.Equal(t, 1, first.NewPayments)

	before, err := store.Counts(t.Context())
	require.NoError(t, err)
	assert.Equal(t, Counts{Products: 1, Receipts: 1, Sales: 2, Payments: 1, PaymentMethods: 2}, before)

	rec = send(t, router, http.MethodPost, syncwire.ReceiptsPath, token, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	var second syncwire.ReceiptsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, 1, second.Synced)
	assert.Zero(t, second.NewSales)
	assert.Zero(t, second.NewPayments)

	after, err := store.Counts(t.Context())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	receipt := store.receipts[7]
	require.NotNil(t, receipt)
	assert.True(t, receipt.Subtotal.Equal(decimal.NewFromInt(15000)))
	assert.True(t, receipt.Total.Equal(decimal.NewFromInt(15500)), receipt.Total.String())
}

func TestUnresolvedProductWritesNothing(t *testing.T) {
	router, store := newTestRouter(t)
	token := obtainToken(t, router)
	require.Equal(t, http.StatusOK, send(t, router, http.MethodPost, syncwire.ProductsPath, token, syncwire.ProductsRequest{Products: []syncwire.Product{shirt()}}).Code)

	receipt := sampleReceipt()
	receipt.Sales = append(receipt.Sales, syncwire.Sale{
		LocalSaleID:    13,
		ProductBarcode: "9999999999999",
		ProductBrand:   "Unknown",
		Quantity:       1,
		TotalPrice:     decimal.NewFromInt(2000),
	})
	rec := send(t, router, http.MethodPost, syncwire.ReceiptsPath, token, syncwire.ReceiptsRequest{Receipts: []syncwire.Receipt{receipt}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	counts, err := store.Counts(t.Context())
	require.NoError(t, err)
	assert.Zero(t, counts.Receipts)
	assert.Zero(t, counts.Sales)
	assert.Zero(t, counts.Payments)

	meta, err := store.ListSyncMetadata(t.Context())
	require.NoError(t, err)
	var receiptsMeta *SyncMetadata
	for i := range meta {
		if meta[i].SyncType == SyncTypeReceipts {
			receiptsMeta = &meta[i]
		}
	}
	require.NotNil(t, receiptsMeta)
	assert.Equal(t, SyncFailed, receiptsMeta.SyncStatus)
	assert.Contains(t, receiptsMeta.ErrorMessage, "9999999999999")
}

func TestReceiptBindingFailuresAreBadRequest(t *testing.T) {
	router, _ := newTestRouter(t)
	token := obtainToken(t, router)

	receipt := sampleReceipt()
	receipt.Sales[0].LocalSaleID = 0
	rec := send(t, router, http.MethodPost, syncwire.ReceiptsPath, token, syncwire.ReceiptsRequest{Receipts: []syncwire.Receipt{receipt}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, router, http.MethodPost, syncwire.ReceiptsPath, token, syncwire.ReceiptsRequest{})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsLatestSyncPerType(t *testing.T) {
	router, _ := newTestRouter(t)
	token := obtainToken(t, router)

	rec := send(t, router, http.MethodGet, syncwire.StatusPath, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, send(t, router, http.MethodPost, syncwire.ProductsPath, token, syncwire.ProductsRequest{Products: []syncwire.Product{shirt()}}).Code)
	require.Equal(t, http.StatusOK, send(t, router, http.MethodPost, syncwire.ReceiptsPath, token, syncwire.ReceiptsRequest{Receipts: []syncwire.Receipt{sampleReceipt()}}).Code)
	require.Equal(t, http.StatusOK, send(t, router, http.MethodPost, syncwire.ProductsPath, token, syncwire.ProductsRequest{Products: []syncwire.Product{shirt()}}).Code)

	rec = send(t, router, http.MethodGet, syncwire.StatusPath, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		SyncStatus []syncwire.SyncStatus `json:"sync_status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.SyncStatus, 2)
	assert.Equal(t, SyncTypeProducts, body.SyncStatus[0].SyncType)
	assert.Equal(t, 1, body.SyncStatus[0].RecordsSynced)
	assert.True(t, body.SyncStatus[0].Healthy)
	assert.Equal(t, SyncTypeReceipts, body.SyncStatus[1].SyncType)
}

func TestLaterPushAddsMissingPaymentAndLinksSales(t *testing.T) {
	store := NewMemoryStore()
	ctx := t.Context()
	_, _, err := store.UpsertProducts(ctx, []syncwire.Product{shirt()})
	require.NoError(t, err)

	unpaid := sampleReceipt()
	unpaid.Payment = nil
	result, err := store.MergeReceipt(ctx, unpaid)
	require.NoError(t, err)
	assert.True(t, result.ReceiptCreated)
	assert.Equal(t, 2, result.NewSales)
	assert.Zero(t, result.NewPayments)

	result, err = store.MergeReceipt(ctx, sampleReceipt())
	require.NoError(t, err)
	assert.False(t, result.ReceiptCreated)
	assert.Zero(t, result.NewSales)
	assert.Equal(t, 1, result.NewPayments)

	for _, sale := range store.sales {
		require.NotNil(t, sale.PaymentID)
		assert.Equal(t, store.payments[21].ID, *sale.PaymentID)
	}
	for _, method := range store.payments[21].Methods {
		assert.Equal(t, "completed", method.Status)
	}
}

func TestMergeReceiptRejectsMissingKeys(t *testing.T) {
	store := NewMemoryStore()
	receipt := sampleReceipt()
	receipt.ReceiptNumber = "  "
	_, err := store.MergeReceipt(t.Context(), receipt)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	receipt = sampleReceipt()
	receipt.Payment.LocalPaymentID = 0
	_, err = store.MergeReceipt(t.Context(), receipt)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
