package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/syncwire"
)

var (
	ErrUnresolvedProduct = errors.New("product reference not found")
	ErrInvalidPayload    = errors.New("invalid payload")
)

// MergeResult describes what one receipt push added.
type MergeResult struct {
	ReceiptCreated bool
	NewSales       int
	NewPayments    int
}

// Store is the remote reporting database. Receipt merges are additive:
// nothing already keyed by a local id is ever replaced. Rollups are
// upserted on their natural key, except top products, which replace their
// period, and stock alerts, which resolve whatever the push leaves out.
type Store interface {
	UpsertProducts(ctx context.Context, products []syncwire.Product) (created int, updated int, err error)
	MergeReceipt(ctx context.Context, receipt syncwire.Receipt) (MergeResult, error)
	ApplyAggregate(ctx context.Context, req syncwire.AggregateRequest) (AggregateResult, error)
	AggregateCounts(ctx context.Context) (AggregateCounts, error)
	RecordSync(ctx context.Context, meta SyncMetadata) error
	ListSyncMetadata(ctx context.Context) ([]SyncMetadata, error)
	Counts(ctx context.Context) (Counts, error)
}

func applyProduct(p *Product, in syncwire.Product) {
	p.Barcode = in.Barcode
	p.Brand = in.Brand
	p.Category = in.Category
	p.Size = in.Size
	p.Color = in.Color
	p.Design = in.Design
	p.Quantity = in.Quantity
	p.Location = in.Location
	p.Shop = in.Shop
	p.Price = in.Price
	p.SellingPrice = in.SellingPrice
	p.Markup = in.Markup
	p.MarkupType = in.MarkupType
	if p.MarkupType == "" {
		p.MarkupType = "percentage"
	}
}

// sameIdentity matches a product without barcode by the attributes the
// local system treats as its identity.
func sameIdentity(p Product, in syncwire.Product) bool {
	return p.Brand == in.Brand && p.Size == in.Size && p.Color == in.Color &&
		p.Location == in.Location && p.Shop == in.Shop
}

// matchesSaleAttributes is the lookup used when a sale's barcode finds
// nothing.
func matchesSaleAttributes(p Product, s syncwire.Sale) bool {
	return p.Brand == s.ProductBrand && p.Category == s.ProductCategory && p.Size == s.ProductSize &&
		p.Color == s.ProductColor && p.Location == s.ProductLocation
}

func canMatchByAttributes(s syncwire.Sale) bool {
	return s.ProductBrand != "" && s.ProductCategory != "" && s.ProductSize != "" && s.ProductLocation != ""
}

func unresolved(s syncwire.Sale) error {
	return fmt.Errorf("%w: sale %d (barcode %q, brand %q, size %q, location %q)",
		ErrUnresolvedProduct, s.LocalSaleID, s.ProductBarcode, s.ProductBrand, s.ProductSize, s.ProductLocation)
}

func newPayment(in syncwire.Payment, receiptID uint, now time.Time) Payment {
	payment := Payment{
		LocalPaymentID:     in.LocalPaymentID,
		ReceiptID:          receiptID,
		PaymentStatus:      in.PaymentStatus,
		TotalAmount:        in.TotalAmount,
		TotalPaid:          in.TotalPaid,
		DiscountPercentage: in.DiscountPercentage,
		DiscountAmount:     in.DiscountAmount,
		PaymentDate:        timeOr(in.PaymentDate, now),
		CreatedAt:          now,
	}
	if payment.PaymentStatus == "" {
		payment.PaymentStatus = "pending"
	}
	for _, m := range in.PaymentMethods {
		payment.Methods = append(payment.Methods, PaymentMethod{Method: m.Method, Amount: m.Amount, Status: "completed"})
	}
	return payment
}

// receiptTotals recomputes the remote receipt from the sales it holds:
// subtotal less the payment discount plus delivery, never below zero.
func receiptTotals(r *Receipt, sales []Sale, discount decimal.Decimal, delivery decimal.Decimal) {
	subtotal := decimal.Zero
	for _, s := range sales {
		subtotal = subtotal.Add(s.TotalPrice)
	}
	r.Subtotal = subtotal
	r.DeliveryCost = delivery
	total := subtotal.Sub(discount).Add(delivery)
	if total.IsNegative() {
		total = decimal.Zero
	}
	r.Total = total
}

func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return t.UTC()
}

// validateReceipt rejects receipts that cannot be merged by natural key.
func validateReceipt(in syncwire.Receipt) error {
	if in.LocalReceiptID <= 0 || strings.TrimSpace(in.ReceiptNumber) == "" {
		return fmt.Errorf("%w: receipt needs local_receipt_id and receipt_number", ErrInvalidPayload)
	}
	for _, s := range in.Sales {
		if s.LocalSaleID <= 0 {
			return fmt.Errorf("%w: sale without local_sale_id on receipt %d", ErrInvalidPayload, in.LocalReceiptID)
		}
	}
	if in.Payment != nil && in.Payment.LocalPaymentID <= 0 {
		return fmt.Errorf("%w: payment without local_payment_id on receipt %d", ErrInvalidPayload, in.LocalReceiptID)
	}
	return nil
}
