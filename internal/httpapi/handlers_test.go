package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/service"
	"mystore/backend/internal/store/memory"
)

const (
	mdPassword      = "md-pass-2025"
	cashierPassword = "cashier-pass"
)

// newTestAPI builds a full API over an in-memory store with one md, one
// cashier and one product in stock.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	ctx := context.Background()
	for _, u := range []struct{ name, password, role string }{
		{"adaeze", mdPassword, "md"},
		{"tunde", cashierPassword, "cashier"},
	} {
		if err := repo.CreateUser(ctx, domain.UserAccount{
			Username: u.name, Password: mustHashPassword(t, u.password), Role: u.role, Active: true, CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if _, err := repo.CreateProduct(ctx, domain.Product{
		Brand: "Zara", Category: "Shirt", Size: "M", Color: "Navy",
		Price: decimal.NewFromInt(5000), SellingPrice: decimal.NewFromInt(5000), Quantity: 10, Location: domain.LocationAbuja,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	svc := service.New(repo, service.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	return New(svc, auth, "*", nil)
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

type client struct {
	t     *testing.T
	api   *API
	token string
	csrf  string
}

func newClient(t *testing.T, api *API, username string, password string) *client {
	return &client{t: t, api: api, token: login(t, api, username, password), csrf: fetchCSRFToken(t, api)}
}

func (c *client) do(method string, path string, payload any, out any) int {
	c.t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-CSRF-Token", c.csrf)
	rec := httptest.NewRecorder()
	c.api.Handler().ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec.Code
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	payload, _ := json.Marshal(map[string]string{"username": "adaeze", "password": "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "tunde", cashierPassword)

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if code := cashier.do(http.MethodGet, "/api/v1/products?location=abuja&in_stock=true", nil, &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(body.Products) != 1 || body.Products[0].Barcode == "" {
		t.Fatalf("expected one barcoded product, got %+v", body.Products)
	}
}

func TestCashierCannotCreateProducts(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "tunde", cashierPassword)

	code := cashier.do(http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{
		Brand: "Nike", Category: "Sneakers", Size: "43", Color: "Black", Location: "ABUJA",
	}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestCheckoutReturnAndStoreCreditOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "tunde", cashierPassword)
	md := newClient(t, api, "adaeze", mdPassword)

	var customer struct {
		Customer domain.Customer `json:"customer"`
	}
	if code := cashier.do(http.MethodPost, "/api/v1/customers", domain.CustomerCreateRequest{Name: "Ngozi Okeke"}, &customer); code != http.StatusCreated {
		t.Fatalf("create customer: %d", code)
	}
	customerID := customer.Customer.ID

	var bundle domain.ReceiptBundle
	code := cashier.do(http.MethodPost, "/api/v1/checkout", map[string]any{
		"customer_id": customerID,
		"items":       []map[string]any{{"product_id": 1, "quantity": 3, "discount_amount": "1000"}},
		"payments":    []map[string]any{{"method": "cash", "amount": "14000"}},
	}, &bundle)
	if code != http.StatusCreated {
		t.Fatalf("checkout: %d", code)
	}
	if !bundle.Receipt.Total.Equal(decimal.NewFromInt(14000)) || bundle.Payment.Status != domain.PaymentCompleted {
		t.Fatalf("unexpected checkout %s %s", bundle.Receipt.Total, bundle.Payment.Status)
	}

	var created struct {
		Return domain.Return `json:"return"`
	}
	code = cashier.do(http.MethodPost, "/api/v1/returns", map[string]any{
		"receipt_id":    bundle.Receipt.ID,
		"return_reason": "wrong_size",
		"items":         []map[string]any{{"sale_id": bundle.Sales[0].ID, "quantity": 1, "restock_to_inventory": true}},
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create return: %d", code)
	}
	returnPath := fmt.Sprintf("/api/v1/returns/%d", created.Return.ID)

	if code := cashier.do(http.MethodPost, returnPath+"/approve", nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected cashier approval to be 403, got %d", code)
	}
	if code := md.do(http.MethodPost, returnPath+"/complete", map[string]any{"refund_type": "store_credit"}, nil); code != http.StatusConflict {
		t.Fatalf("expected completing a pending return to be 409, got %d", code)
	}
	if code := md.do(http.MethodPost, returnPath+"/approve", nil, nil); code != http.StatusOK {
		t.Fatalf("approve: %d", code)
	}

	var result domain.CompleteReturnResult
	if code := md.do(http.MethodPost, returnPath+"/complete", map[string]any{"refund_type": "store_credit"}, &result); code != http.StatusOK {
		t.Fatalf("complete: %d", code)
	}
	if result.StoreCredit == nil || !result.StoreCredit.OriginalAmount.Equal(decimal.RequireFromString("4666.66")) {
		t.Fatalf("expected a 4666.66 store credit, got %+v", result.StoreCredit)
	}

	var again domain.CompleteReturnResult
	if code := md.do(http.MethodPost, returnPath+"/complete", map[string]any{"refund_type": "store_credit"}, &again); code != http.StatusOK {
		t.Fatalf("second complete: %d", code)
	}
	if !again.AlreadyCompleted || again.StoreCredit.CreditNumber != result.StoreCredit.CreditNumber {
		t.Fatalf("expected second completion to report the same credit")
	}

	var credits struct {
		StoreCredits []domain.StoreCredit `json:"store_credits"`
		Available    decimal.Decimal      `json:"available"`
	}
	if code := cashier.do(http.MethodGet, fmt.Sprintf("/api/v1/customers/%d/store-credits", customerID), nil, &credits); code != http.StatusOK {
		t.Fatalf("list credits: %d", code)
	}
	if len(credits.StoreCredits) != 1 || !credits.Available.Equal(decimal.RequireFromString("4666.66")) {
		t.Fatalf("expected one credit worth 4666.66, got %d worth %s", len(credits.StoreCredits), credits.Available)
	}

	if code := cashier.do(http.MethodPost, "/api/v1/store-credits/redeem", map[string]any{
		"customer_id": customerID, "receipt_id": bundle.Receipt.ID, "amount": "100",
	}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected redeeming against a settled receipt to be 400, got %d", code)
	}

	var next domain.ReceiptBundle
	if code := cashier.do(http.MethodPost, "/api/v1/checkout", map[string]any{
		"customer_id": customerID,
		"items":       []map[string]any{{"product_id": 1, "quantity": 1}},
	}, &next); code != http.StatusCreated {
		t.Fatalf("second checkout: %d", code)
	}
	redeemNext := func(customer int64, amount string, out any) int {
		return cashier.do(http.MethodPost, "/api/v1/store-credits/redeem", map[string]any{
			"customer_id": customer, "receipt_id": next.Receipt.ID, "amount": amount,
		}, out)
	}
	if code := redeemNext(customerID, "5000", nil); code != http.StatusConflict {
		t.Fatalf("expected over-redeem to be 409, got %d", code)
	}

	var stranger struct {
		Customer domain.Customer `json:"customer"`
	}
	if code := cashier.do(http.MethodPost, "/api/v1/customers", domain.CustomerCreateRequest{Name: "Emeka Nwosu"}, &stranger); code != http.StatusCreated {
		t.Fatalf("create customer: %d", code)
	}
	if code := redeemNext(stranger.Customer.ID, "100", nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected redeeming on someone else's receipt to be 422, got %d", code)
	}

	var redeemed domain.RedeemResponse
	if code := redeemNext(customerID, "4000", &redeemed); code != http.StatusOK {
		t.Fatalf("redeem: %d", code)
	}
	if redeemed.Payment.Status != domain.PaymentPartial || !redeemed.Payment.BalanceDue.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected partial with 1000 due, got %s %s", redeemed.Payment.Status, redeemed.Payment.BalanceDue)
	}
	if !redeemed.Available.Equal(decimal.RequireFromString("666.66")) {
		t.Fatalf("expected 666.66 credit left, got %s", redeemed.Available)
	}
}

func TestOverReturnIsConflict(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "tunde", cashierPassword)

	var bundle domain.ReceiptBundle
	if code := cashier.do(http.MethodPost, "/api/v1/checkout", map[string]any{
		"items": []map[string]any{{"product_id": 1, "quantity": 2}},
	}, &bundle); code != http.StatusCreated {
		t.Fatalf("checkout: %d", code)
	}

	code := cashier.do(http.MethodPost, "/api/v1/returns", map[string]any{
		"receipt_id":    bundle.Receipt.ID,
		"return_reason": "defective",
		"items":         []map[string]any{{"sale_id": bundle.Sales[0].ID, "quantity": 3}},
	}, nil)
	if code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
}

func TestUnknownReceiptIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	cashier := newClient(t, api, "tunde", cashierPassword)

	if code := cashier.do(http.MethodGet, "/api/v1/receipts/999", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code := cashier.do(http.MethodGet, "/api/v1/receipts/abc", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", code)
	}
}
