package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/cache"
	"mystore/backend/internal/domain"
	"mystore/backend/internal/store"
	"mystore/backend/internal/store/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	svc   *Service
	repo  *memory.Store
	cache *cache.Memory
	clock *testClock
}

func newTestEnv() *testEnv {
	repo := memory.New()
	productCache := cache.NewMemory()
	clock := &testClock{now: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)}
	svc := New(repo, Options{
		Cache:        productCache,
		ReturnWindow: 7 * 24 * time.Hour,
		Now:          clock.Now,
	})
	return &testEnv{svc: svc, repo: repo, cache: productCache, clock: clock}
}

func mdCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "adaeze", Role: "md"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "tunde", Role: "cashier"})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) product(t *testing.T, price string, qty int) domain.Product {
	t.Helper()
	p, err := e.svc.CreateProduct(mdCtx(), domain.ProductCreateRequest{
		Brand: "Zara", Category: "Shirt", Size: "M", Color: "Navy",
		Price: dec(price), Quantity: qty, Location: domain.LocationAbuja,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func (e *testEnv) customer(t *testing.T) int64 {
	t.Helper()
	c, err := e.svc.CreateCustomer(cashierCtx(), domain.CustomerCreateRequest{Name: "Chinedu Eze", Phone: "08030000000"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c.ID
}

func TestCheckoutPartialThenCompletedPayment(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)

	bundle, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:    []domain.CheckoutItem{{ProductID: p.ID, Quantity: 3, DiscountAmount: dec("1000")}},
		Payments: []domain.PaymentLineRequest{{Method: "cash", Amount: dec("10000")}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if !bundle.Receipt.Total.Equal(dec("14000")) {
		t.Fatalf("expected total 14000, got %s", bundle.Receipt.Total)
	}
	if bundle.Receipt.ReceiptNumber != "RCPT001/11/2025" {
		t.Fatalf("expected RCPT001/11/2025, got %s", bundle.Receipt.ReceiptNumber)
	}
	if bundle.Payment.Status != domain.PaymentPartial || !bundle.Payment.BalanceDue.Equal(dec("4000")) {
		t.Fatalf("expected partial with 4000 due, got %s %s", bundle.Payment.Status, bundle.Payment.BalanceDue)
	}

	payment, err := env.svc.AddPayment(cashierCtx(), bundle.Payment.ID, domain.PaymentLineRequest{
		Method: "transfer_taj", Amount: dec("4000"), Reference: "TAJ-7781",
	})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	if payment.Status != domain.PaymentCompleted || !payment.BalanceDue.IsZero() {
		t.Fatalf("expected completed payment, got %s due %s", payment.Status, payment.BalanceDue)
	}
	if payment.CompletedDate == nil {
		t.Fatalf("expected completed date to be set")
	}

	stock, err := env.svc.GetProduct(cashierCtx(), p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stock.Quantity != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", stock.Quantity)
	}
}

func TestAddPaymentRejectsUnknownMethod(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	bundle, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = env.svc.AddPayment(cashierCtx(), bundle.Payment.ID, domain.PaymentLineRequest{Method: "bitcoin", Amount: dec("100")})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "method" {
		t.Fatalf("expected validation error on method, got %v", err)
	}

	_, err = env.svc.AddPayment(cashierCtx(), bundle.Payment.ID, domain.PaymentLineRequest{Method: "cash", Amount: dec("0.001")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for tiny amount, got %v", err)
	}
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "items" {
		t.Fatalf("expected items validation error, got %v", err)
	}
}

func TestCheckoutRequiresActor(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Checkout(context.Background(), domain.CheckoutRequest{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without actor, got %v", err)
	}
}

func sellToCustomer(t *testing.T, env *testEnv, customerID int64, productID int64) domain.ReceiptBundle {
	t.Helper()
	bundle, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerID: &customerID,
		Items:      []domain.CheckoutItem{{ProductID: productID, Quantity: 3, DiscountAmount: dec("1000")}},
		Payments:   []domain.PaymentLineRequest{{Method: "pos_moniepoint", Amount: dec("14000")}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	return bundle
}

func TestReturnToStoreCreditLifecycle(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	customerID := env.customer(t)
	bundle := sellToCustomer(t, env, customerID, p.ID)

	env.clock.Advance(48 * time.Hour)
	ret, err := env.svc.CreateReturn(cashierCtx(), domain.CreateReturnRequest{
		ReceiptID: bundle.Receipt.ID,
		Reason:    "wrong_size",
		Items:     []domain.ReturnItemRequest{{SaleID: bundle.Sales[0].ID, Quantity: 1, Restock: true}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if ret.Status != domain.ReturnPending || !ret.RefundAmount.Equal(dec("4666.66")) {
		t.Fatalf("expected pending return of 4666.66, got %s %s", ret.Status, ret.RefundAmount)
	}
	if ret.CustomerID == nil || *ret.CustomerID != customerID {
		t.Fatalf("expected return to inherit receipt customer")
	}

	if _, err := env.svc.ApproveReturn(cashierCtx(), ret.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier approval to be forbidden, got %v", err)
	}
	approved, err := env.svc.ApproveReturn(mdCtx(), ret.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.ApprovedBy != "adaeze" || approved.ApprovedDate == nil {
		t.Fatalf("expected approver to be recorded")
	}

	result, err := env.svc.CompleteReturn(mdCtx(), ret.ID, domain.CompleteReturnRequest{RefundType: "store_credit"})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !result.CreditCreated || result.StoreCredit == nil {
		t.Fatalf("expected a new store credit")
	}
	if result.StoreCredit.CreditNumber != "SC001/11/2025" || !result.StoreCredit.RemainingBalance.Equal(dec("4666.66")) {
		t.Fatalf("unexpected credit %s %s", result.StoreCredit.CreditNumber, result.StoreCredit.RemainingBalance)
	}
	if result.RestockedItems != 1 {
		t.Fatalf("expected one restocked item, got %d", result.RestockedItems)
	}

	again, err := env.svc.CompleteReturn(mdCtx(), ret.ID, domain.CompleteReturnRequest{RefundType: "store_credit"})
	if err != nil {
		t.Fatalf("second completion failed: %v", err)
	}
	if !again.AlreadyCompleted || again.CreditCreated || again.StoreCredit.CreditNumber != "SC001/11/2025" {
		t.Fatalf("expected second completion to report the existing credit")
	}

	credits, err := env.svc.ListCustomerCredits(cashierCtx(), customerID)
	if err != nil {
		t.Fatalf("list credits: %v", err)
	}
	if len(credits) != 1 {
		t.Fatalf("expected exactly one credit, got %d", len(credits))
	}

	stock, _ := env.svc.GetProduct(cashierCtx(), p.ID)
	if stock.Quantity != 8 {
		t.Fatalf("expected stock 8 after one restock, got %d", stock.Quantity)
	}

	if _, err := env.svc.RestockReturnItem(mdCtx(), ret.ID, result.Return.Items[0].ID); err != nil {
		t.Fatalf("manual restock failed: %v", err)
	}
	stock, _ = env.svc.GetProduct(cashierCtx(), p.ID)
	if stock.Quantity != 8 {
		t.Fatalf("expected manual restock to be a no-op, got %d", stock.Quantity)
	}
}

func TestReturnWindowCloses(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	customerID := env.customer(t)
	bundle := sellToCustomer(t, env, customerID, p.ID)

	env.clock.Advance(7 * 24 * time.Hour)
	_, err := env.svc.CreateReturn(cashierCtx(), domain.CreateReturnRequest{
		ReceiptID: bundle.Receipt.ID,
		Reason:    "changed_mind",
		Items:     []domain.ReturnItemRequest{{SaleID: bundle.Sales[0].ID, Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrReturnWindowClosed) {
		t.Fatalf("expected return window closed, got %v", err)
	}
}

func TestOverReturnAcrossRequests(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	customerID := env.customer(t)
	bundle := sellToCustomer(t, env, customerID, p.ID)
	saleID := bundle.Sales[0].ID

	if _, err := env.svc.CreateReturn(cashierCtx(), domain.CreateReturnRequest{
		ReceiptID: bundle.Receipt.ID, Reason: "defective",
		Items: []domain.ReturnItemRequest{{SaleID: saleID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("first return failed: %v", err)
	}
	_, err := env.svc.CreateReturn(cashierCtx(), domain.CreateReturnRequest{
		ReceiptID: bundle.Receipt.ID, Reason: "defective",
		Items: []domain.ReturnItemRequest{{SaleID: saleID, Quantity: 2}},
	})
	if !errors.Is(err, domain.ErrOverReturn) {
		t.Fatalf("expected over-return, got %v", err)
	}
}

func TestRejectReturnNeedsReason(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	customerID := env.customer(t)
	bundle := sellToCustomer(t, env, customerID, p.ID)
	ret, err := env.svc.CreateReturn(cashierCtx(), domain.CreateReturnRequest{
		ReceiptID: bundle.Receipt.ID, Reason: "other",
		Items: []domain.ReturnItemRequest{{SaleID: bundle.Sales[0].ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}

	if _, err := env.svc.RejectReturn(mdCtx(), ret.ID, domain.ReturnDecisionRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	rejected, err := env.svc.RejectReturn(mdCtx(), ret.ID, domain.ReturnDecisionRequest{Reason: "worn outside"})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != domain.ReturnRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if _, err := env.svc.ApproveReturn(mdCtx(), ret.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected rejected return to stay terminal, got %v", err)
	}
}

func TestStoreCreditPaysNextReceipt(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	customerID := env.customer(t)
	bundle := sellToCustomer(t, env, customerID, p.ID)

	ret, err := env.svc.CreateReturn(cashierCtx(), domain.CreateReturnRequest{
		ReceiptID: bundle.Receipt.ID, Reason: "wrong_size",
		Items: []domain.ReturnItemRequest{{SaleID: bundle.Sales[0].ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if _, err := env.svc.ApproveReturn(mdCtx(), ret.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := env.svc.CompleteReturn(mdCtx(), ret.ID, domain.CompleteReturnRequest{RefundType: "store_credit"}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	next, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerID: &customerID,
		Items:      []domain.CheckoutItem{{ProductID: p.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("second checkout failed: %v", err)
	}

	payment, err := env.svc.AddPayment(cashierCtx(), next.Payment.ID, domain.PaymentLineRequest{Method: "store_credit", Amount: dec("14000")})
	if err != nil {
		t.Fatalf("store credit payment failed: %v", err)
	}
	if payment.Status != domain.PaymentPartial || !payment.BalanceDue.Equal(dec("6000")) {
		t.Fatalf("expected partial with 6000 due, got %s %s", payment.Status, payment.BalanceDue)
	}

	available, err := env.svc.AvailableCredit(cashierCtx(), customerID)
	if err != nil {
		t.Fatalf("available credit: %v", err)
	}
	if !available.IsZero() {
		t.Fatalf("expected credit to be used up, got %s", available)
	}

	_, err = env.svc.RedeemStoreCredit(cashierCtx(), domain.RedeemRequest{CustomerID: customerID, ReceiptID: next.Receipt.ID, Amount: dec("100")})
	if !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("expected insufficient credit, got %v", err)
	}
}

func TestProductWritesInvalidateCache(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)

	if _, err := env.svc.ListProducts(cashierCtx(), domain.ProductQuery{Location: "abuja"}); err != nil {
		t.Fatalf("list products: %v", err)
	}
	if _, err := env.svc.ProductStats(cashierCtx()); err != nil {
		t.Fatalf("product stats: %v", err)
	}
	if env.cache.Len() != 2 {
		t.Fatalf("expected two cached views, got %d", env.cache.Len())
	}

	if _, err := env.svc.AdjustStock(mdCtx(), p.ID, domain.StockAdjustRequest{Delta: 5, Reason: "restock"}); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if env.cache.Len() != 0 {
		t.Fatalf("expected product write to clear the cache, got %d entries", env.cache.Len())
	}

	stats, err := env.svc.ProductStats(cashierCtx())
	if err != nil {
		t.Fatalf("product stats: %v", err)
	}
	if stats.TotalUnits != 15 || !stats.StockValue.Equal(dec("75000")) {
		t.Fatalf("expected fresh stats after invalidation, got %d units worth %s", stats.TotalUnits, stats.StockValue)
	}
}

func TestCashierCannotEditProducts(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		Brand: "Zara", Category: "Shirt", Size: "M", Color: "Navy", Location: "ABUJA",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestTransferStockBetweenShops(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)

	transfer, err := env.svc.TransferStock(mdCtx(), domain.TransferRequest{ProductID: p.ID, ToLocation: "lagos", Quantity: 4})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if transfer.Reference != "TR-ABLA-0001-1125" {
		t.Fatalf("unexpected transfer reference %s", transfer.Reference)
	}

	_, err = env.svc.TransferStock(mdCtx(), domain.TransferRequest{ProductID: p.ID, ToLocation: "LAGOS", Quantity: 7})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestAuditLogRecordsActor(t *testing.T) {
	env := newTestEnv()
	env.product(t, "5000", 10)

	logs, err := env.svc.ListAuditLogs(mdCtx(), "2025-11-03", 0)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 || logs[0].Action != "product_create" || logs[0].ActorUsername != "adaeze" {
		t.Fatalf("expected product_create audit entry by adaeze, got %+v", logs)
	}

	if _, err := env.svc.ListAuditLogs(cashierCtx(), "", 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be denied audit logs, got %v", err)
	}
}

func creditFullReturn(t *testing.T, env *testEnv, bundle domain.ReceiptBundle) {
	t.Helper()
	ret, err := env.svc.CreateReturn(cashierCtx(), domain.CreateReturnRequest{
		ReceiptID: bundle.Receipt.ID, Reason: "wrong_size",
		Items: []domain.ReturnItemRequest{{SaleID: bundle.Sales[0].ID, Quantity: bundle.Sales[0].Quantity}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if _, err := env.svc.ApproveReturn(mdCtx(), ret.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := env.svc.CompleteReturn(mdCtx(), ret.ID, domain.CompleteReturnRequest{RefundType: "store_credit"}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
}

func TestRedeemStoreCreditRecordsPaymentLine(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	customerID := env.customer(t)
	creditFullReturn(t, env, sellToCustomer(t, env, customerID, p.ID))

	next, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerID: &customerID,
		Items:      []domain.CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = env.svc.RedeemStoreCredit(cashierCtx(), domain.RedeemRequest{CustomerID: customerID, ReceiptID: next.Receipt.ID, Amount: dec("6000")})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected redemption above the balance due to be rejected, got %v", err)
	}

	resp, err := env.svc.RedeemStoreCredit(cashierCtx(), domain.RedeemRequest{CustomerID: customerID, ReceiptID: next.Receipt.ID, Amount: dec("5000")})
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if resp.Payment.Status != domain.PaymentCompleted || !resp.Payment.TotalPaid.Equal(dec("5000")) || !resp.Payment.BalanceDue.IsZero() {
		t.Fatalf("expected completed payment, got %s paid %s due %s", resp.Payment.Status, resp.Payment.TotalPaid, resp.Payment.BalanceDue)
	}
	if len(resp.Payment.Lines) != 1 || resp.Payment.Lines[0].Method != domain.MethodStoreCredit || resp.Payment.Lines[0].ProcessedBy != "tunde" {
		t.Fatalf("expected one store_credit line by tunde, got %+v", resp.Payment.Lines)
	}
	if !resp.Available.Equal(dec("9000")) {
		t.Fatalf("expected 9000 left, got %s", resp.Available)
	}

	stored, err := env.svc.GetPayment(cashierCtx(), next.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if stored.Status != domain.PaymentCompleted || len(stored.Lines) != 1 {
		t.Fatalf("expected the stored payment to carry the redemption, got %s with %d lines", stored.Status, len(stored.Lines))
	}
}

func TestRedeemStoreCreditRejectsAnotherCustomersReceipt(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	holder := env.customer(t)
	creditFullReturn(t, env, sellToCustomer(t, env, holder, p.ID))

	other, err := env.svc.CreateCustomer(cashierCtx(), domain.CustomerCreateRequest{Name: "Bisi Adewale", Phone: "08050000000"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	theirs, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerID: &other.ID,
		Items:      []domain.CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	walkIn, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	_, err = env.svc.RedeemStoreCredit(cashierCtx(), domain.RedeemRequest{CustomerID: holder, ReceiptID: theirs.Receipt.ID, Amount: dec("5000")})
	if !errors.Is(err, domain.ErrCreditOwner) {
		t.Fatalf("expected credit owner error, got %v", err)
	}
	_, err = env.svc.RedeemStoreCredit(cashierCtx(), domain.RedeemRequest{CustomerID: holder, ReceiptID: walkIn.Receipt.ID, Amount: dec("5000")})
	if !errors.Is(err, domain.ErrCustomerRequired) {
		t.Fatalf("expected customer required for a walk-in receipt, got %v", err)
	}

	available, err := env.svc.AvailableCredit(cashierCtx(), holder)
	if err != nil {
		t.Fatalf("available credit: %v", err)
	}
	if !available.Equal(dec("14000")) {
		t.Fatalf("expected credit untouched, got %s", available)
	}
	payment, err := env.svc.GetPayment(cashierCtx(), theirs.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != domain.PaymentPending || !payment.BalanceDue.Equal(dec("5000")) || len(payment.Lines) != 0 {
		t.Fatalf("expected untouched payment, got %s due %s lines %d", payment.Status, payment.BalanceDue, len(payment.Lines))
	}
}

func TestAddPaymentTruncatesSubKoboAmounts(t *testing.T) {
	env := newTestEnv()
	p := env.product(t, "5000", 10)
	bundle, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items: []domain.CheckoutItem{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	payment, err := env.svc.AddPayment(cashierCtx(), bundle.Payment.ID, domain.PaymentLineRequest{Method: "cash", Amount: dec("4999.995")})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	if !payment.Lines[0].Amount.Equal(dec("4999.99")) {
		t.Fatalf("expected the line to be truncated to 4999.99, got %s", payment.Lines[0].Amount)
	}
	if payment.Status != domain.PaymentPartial || !payment.BalanceDue.Equal(dec("0.01")) {
		t.Fatalf("expected partial with 0.01 due, got %s %s", payment.Status, payment.BalanceDue)
	}

	_, err = env.svc.AddPayment(cashierCtx(), bundle.Payment.ID, domain.PaymentLineRequest{Method: "cash", Amount: dec("0.009")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected an amount that truncates to zero to be rejected, got %v", err)
	}
}
