package oemsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/query"
	"mystore/backend/internal/syncwire"
)

var fixtureBase = time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu       sync.Mutex
	products []domain.Product
	bundles  []domain.ReceiptBundle
	panicOn  bool
}

func (s *fakeSource) ListProducts(_ context.Context, filter *query.Filter[domain.Product]) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter.Apply(s.products), nil
}

func (s *fakeSource) ListReceipts(_ context.Context, filter *query.Filter[domain.ReceiptBundle]) ([]domain.ReceiptBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn {
		panic("receipt table unreadable")
	}
	return filter.Apply(s.bundles), nil
}

func fixtureProduct(id int64, brand string) domain.Product {
	return domain.Product{
		ID:           id,
		Brand:        brand,
		Category:     "Shirt",
		Size:         "M",
		Color:        "Navy",
		Price:        decimal.NewFromInt(5000),
		SellingPrice: decimal.NewFromInt(5000),
		Quantity:     10,
		Location:     domain.LocationAbuja,
		Shop:         "Wuse II",
		Barcode:      fmt.Sprintf("2000000%05d0", id),
	}
}

// fixtureBundle is receipt id with one sale of product and a cash payment.
// Later ids carry later dates.
func fixtureBundle(id int64, product domain.Product) domain.ReceiptBundle {
	date := fixtureBase.Add(time.Duration(id) * time.Hour)
	total := decimal.NewFromInt(5000)
	customerID := int64(77)
	return domain.ReceiptBundle{
		Receipt: domain.Receipt{
			ID:            id,
			ReceiptNumber: fmt.Sprintf("RCPT%03d/11/2025", id),
			CustomerID:    &customerID,
			CreatedBy:     "tunde",
			Date:          date,
			Subtotal:      total,
			Total:         total,
		},
		Sales: []domain.SaleDetail{{
			Sale: domain.Sale{
				ID:         100 + id,
				ReceiptID:  id,
				PaymentID:  200 + id,
				ProductID:  product.ID,
				Quantity:   1,
				UnitPrice:  total,
				TotalPrice: total,
				SaleDate:   date,
			},
			Product: product,
		}},
		Payment: &domain.Payment{
			ID:          200 + id,
			ReceiptID:   id,
			TotalAmount: total,
			TotalPaid:   total,
			Status:      domain.PaymentCompleted,
			PaymentDate: date,
			Lines: []domain.PaymentLine{
				{ID: 300 + id, Method: domain.MethodCash, Amount: total, Status: domain.LineCompleted},
			},
		},
	}
}

type fakeRemote struct {
	mu         sync.Mutex
	authCalls  int
	authErr    error
	batches    []int
	receipts   []syncwire.Receipt
	receiptErr func(r syncwire.Receipt) error
	aggregates []syncwire.AggregateRequest
	aggErr     func(req syncwire.AggregateRequest) error
}

func (r *fakeRemote) Authenticate(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authCalls++
	return r.authErr
}

func (r *fakeRemote) PushProducts(_ context.Context, batch []syncwire.Product) (*syncwire.ProductsResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, len(batch))
	return &syncwire.ProductsResponse{Status: "success", Created: len(batch), Total: len(batch)}, nil
}

func (r *fakeRemote) PushReceipt(_ context.Context, receipt syncwire.Receipt) (*syncwire.ReceiptsResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receipt)
	if r.receiptErr != nil {
		if err := r.receiptErr(receipt); err != nil {
			return nil, err
		}
	}
	return &syncwire.ReceiptsResponse{Status: "success", Synced: 1, NewSales: len(receipt.Sales), NewPayments: 1}, nil
}

func (r *fakeRemote) PushAggregate(_ context.Context, req syncwire.AggregateRequest) (*syncwire.AggregateResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregates = append(r.aggregates, req)
	if r.aggErr != nil {
		if err := r.aggErr(req); err != nil {
			return nil, err
		}
	}
	return &syncwire.AggregateResponse{Status: "success", SyncType: req.Kind(), Created: req.Len(), Total: req.Len()}, nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, time.Duration) (func(context.Context) error, error) {
	return nil, ErrRunInProgress
}
