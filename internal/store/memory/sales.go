package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/query"
	"mystore/backend/internal/store"
)

func (s *Store) CreateCheckout(_ context.Context, draft domain.CheckoutDraft) (*domain.ReceiptBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if draft.CustomerID != nil {
		if _, ok := s.customers[*draft.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, *draft.CustomerID)
		}
	}

	required := make(map[int64]int, len(draft.Items))
	for _, item := range draft.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidTransaction
		}
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, item.ProductID)
		}
		required[item.ProductID] += item.Quantity
		if product.Quantity < required[item.ProductID] {
			return nil, fmt.Errorf("%w: product %d has %d left", store.ErrInsufficientStock, product.ID, product.Quantity)
		}
	}

	sales := make([]domain.Sale, 0, len(draft.Items))
	lineTotals := make([]decimal.Decimal, 0, len(draft.Items))
	for _, item := range draft.Items {
		product := s.products[item.ProductID]
		gross := ledger.LineSubtotal(product.SellingPrice, item.Quantity)
		sale := domain.Sale{
			ProductID:      product.ID,
			Quantity:       item.Quantity,
			UnitPrice:      product.SellingPrice,
			DiscountAmount: ledger.ClampDiscount(item.DiscountAmount, gross),
			TotalPrice:     ledger.SaleLineTotal(product.SellingPrice, item.Quantity, item.DiscountAmount),
			SaleDate:       draft.Date,
		}
		sales = append(sales, sale)
		lineTotals = append(lineTotals, sale.TotalPrice)
	}

	subtotal := ledger.Money(ledger.Sum(lineTotals...))
	billDiscount := ledger.BillDiscount(subtotal, draft.DiscountPercentage, draft.DiscountAmount)
	delivery := draft.DeliveryCost
	if delivery.IsNegative() {
		delivery = decimal.Zero
	}
	total := ledger.ReceiptTotal(lineTotals, billDiscount, delivery)

	creditNeeded := decimal.Zero
	for _, line := range draft.PaymentLines {
		if line.Amount.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		if line.Method == domain.MethodStoreCredit {
			creditNeeded = creditNeeded.Add(line.Amount)
		}
	}
	if creditNeeded.IsPositive() {
		if draft.CustomerID == nil {
			return nil, domain.ErrCustomerRequired
		}
		if creditNeeded.GreaterThan(total) {
			return nil, fmt.Errorf("%w: store credit exceeds receipt total", store.ErrInvalidTransaction)
		}
		if available := s.availableCreditLocked(*draft.CustomerID, draft.Date); creditNeeded.GreaterThan(available) {
			return nil, insufficientCredit(available, creditNeeded)
		}
	}

	// Everything validated; mutate.
	for productID, qty := range required {
		product := s.products[productID]
		product.Quantity -= qty
		product.UpdatedAt = draft.Date
		s.products[productID] = product
	}

	receipt := domain.Receipt{
		ID:             s.nextIDLocked("receipt"),
		ReceiptNumber:  s.nextNumberLocked(domain.PrefixReceipt, draft.Date),
		CustomerID:     draft.CustomerID,
		CreatedBy:      draft.CreatedBy,
		Date:           draft.Date,
		Subtotal:       subtotal,
		DiscountAmount: billDiscount,
		DeliveryCost:   delivery,
		Total:          total,
		Notes:          draft.Notes,
	}
	s.receipts[receipt.ID] = receipt

	payment := domain.Payment{
		ID:                 s.nextIDLocked("payment"),
		ReceiptID:          receipt.ID,
		TotalAmount:        total,
		DiscountPercentage: draft.DiscountPercentage,
		DiscountAmount:     billDiscount,
		Status:             domain.PaymentPending,
		PaymentDate:        draft.Date,
	}
	for _, line := range draft.PaymentLines {
		line.ID = s.nextIDLocked("payment_line")
		line.PaymentID = payment.ID
		if line.Status == "" || line.Method == domain.MethodStoreCredit {
			line.Status = domain.LineCompleted
		}
		if line.CreatedAt.IsZero() {
			line.CreatedAt = draft.Date
		}
		payment.Lines = append(payment.Lines, line)
		s.paymentByLine[line.ID] = payment.ID
	}
	ledger.ApplyPaymentState(&payment, draft.Date)
	s.payments[payment.ID] = payment
	s.paymentByReceipt[receipt.ID] = payment.ID

	for i := range sales {
		sales[i].ID = s.nextIDLocked("sale")
		sales[i].ReceiptID = receipt.ID
		sales[i].PaymentID = payment.ID
		s.sales[sales[i].ID] = sales[i]
		s.salesByReceipt[receipt.ID] = append(s.salesByReceipt[receipt.ID], sales[i].ID)
	}

	if creditNeeded.IsPositive() {
		if _, err := s.redeemLocked(domain.Redemption{
			CustomerID: *draft.CustomerID,
			ReceiptID:  receipt.ID,
			Amount:     creditNeeded,
			UsedBy:     draft.CreatedBy,
			At:         draft.Date,
		}); err != nil {
			return nil, err
		}
	}

	bundle := s.bundleLocked(receipt)
	return &bundle, nil
}

func (s *Store) bundleLocked(receipt domain.Receipt) domain.ReceiptBundle {
	bundle := domain.ReceiptBundle{Receipt: receipt, Sales: make([]domain.SaleDetail, 0, len(s.salesByReceipt[receipt.ID]))}
	for _, saleID := range s.salesByReceipt[receipt.ID] {
		sale := s.sales[saleID]
		bundle.Sales = append(bundle.Sales, domain.SaleDetail{Sale: sale, Product: s.products[sale.ProductID]})
	}
	if paymentID, ok := s.paymentByReceipt[receipt.ID]; ok {
		payment := clonePayment(s.payments[paymentID])
		bundle.Payment = &payment
	}
	return bundle
}

func (s *Store) GetReceipt(_ context.Context, id int64) (*domain.ReceiptBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, ok := s.receipts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	bundle := s.bundleLocked(receipt)
	return &bundle, nil
}

func (s *Store) ListReceipts(_ context.Context, filter *query.Filter[domain.ReceiptBundle]) ([]domain.ReceiptBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bundles := make([]domain.ReceiptBundle, 0, len(s.receipts))
	for _, receipt := range s.receipts {
		bundles = append(bundles, s.bundleLocked(receipt))
	}
	slices.SortFunc(bundles, func(a, b domain.ReceiptBundle) int {
		if c := b.Receipt.Date.Compare(a.Receipt.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.Receipt.ID, a.Receipt.ID)
	})
	return filter.Apply(bundles), nil
}

func (s *Store) GetPayment(_ context.Context, id int64) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	payment = clonePayment(payment)
	return &payment, nil
}

func (s *Store) AddPaymentLine(_ context.Context, paymentID int64, line domain.PaymentLine, at time.Time) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.addPaymentLineLocked(payment, line, at)
}

func (s *Store) addPaymentLineLocked(payment domain.Payment, line domain.PaymentLine, at time.Time) (*domain.Payment, error) {
	if payment.Status == domain.PaymentCompleted {
		return nil, fmt.Errorf("%w: payment already completed", store.ErrInvalidTransaction)
	}
	if !line.Amount.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	if line.Method == domain.MethodStoreCredit {
		receipt := s.receipts[payment.ReceiptID]
		if receipt.CustomerID == nil {
			return nil, domain.ErrCustomerRequired
		}
		if line.Amount.GreaterThan(payment.BalanceDue) {
			return nil, fmt.Errorf("%w: store credit exceeds balance due", store.ErrInvalidTransaction)
		}
		if _, err := s.redeemLocked(domain.Redemption{
			CustomerID: *receipt.CustomerID,
			ReceiptID:  receipt.ID,
			Amount:     line.Amount,
			UsedBy:     line.ProcessedBy,
			At:         at,
		}); err != nil {
			return nil, err
		}
		line.Status = domain.LineCompleted
	}

	line.ID = s.nextIDLocked("payment_line")
	line.PaymentID = payment.ID
	if line.Status == "" {
		line.Status = domain.LineCompleted
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = at
	}
	payment = clonePayment(payment)
	payment.Lines = append(payment.Lines, line)
	ledger.ApplyPaymentState(&payment, at)
	s.payments[payment.ID] = payment
	s.paymentByLine[line.ID] = payment.ID

	out := clonePayment(payment)
	return &out, nil
}

func (s *Store) UpdatePaymentLineStatus(_ context.Context, lineID int64, status domain.PaymentLineStatus, at time.Time) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paymentID, ok := s.paymentByLine[lineID]
	if !ok {
		return nil, store.ErrNotFound
	}
	payment := clonePayment(s.payments[paymentID])
	for i := range payment.Lines {
		if payment.Lines[i].ID != lineID {
			continue
		}
		// Redeemed credit is already consumed; its line cannot be reopened.
		if payment.Lines[i].Method == domain.MethodStoreCredit {
			return nil, fmt.Errorf("%w: store credit lines are final", store.ErrInvalidTransaction)
		}
		payment.Lines[i].Status = status
	}
	ledger.ApplyPaymentState(&payment, at)
	s.payments[paymentID] = payment

	out := clonePayment(payment)
	return &out, nil
}
