package oemsync

import (
	"strconv"
	"time"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/syncwire"
)

func productPayload(p domain.Product) syncwire.Product {
	markupType := p.MarkupType
	if markupType == domain.MarkupNone {
		markupType = domain.MarkupPercentage
	}
	return syncwire.Product{
		Barcode:      p.Barcode,
		Brand:        p.Brand,
		Category:     p.Category,
		Size:         p.Size,
		Color:        p.Color,
		Design:       p.Design,
		Quantity:     p.Quantity,
		Location:     p.Location,
		Shop:         p.Shop,
		Price:        ledger.Money(p.Price),
		SellingPrice: ledger.Money(p.SellingPrice),
		Markup:       ledger.Money(p.Markup),
		MarkupType:   markupType,
	}
}

// receiptPayload assembles the whole receipt before anything is sent. A
// receipt without sales has nothing to report and yields ok=false.
func receiptPayload(b domain.ReceiptBundle) (syncwire.Receipt, bool) {
	if len(b.Sales) == 0 {
		return syncwire.Receipt{}, false
	}

	sales := make([]syncwire.Sale, 0, len(b.Sales))
	for _, s := range b.Sales {
		sales = append(sales, syncwire.Sale{
			LocalSaleID:     s.ID,
			ProductBarcode:  s.Product.Barcode,
			ProductBrand:    s.Product.Brand,
			ProductCategory: s.Product.Category,
			ProductSize:     s.Product.Size,
			ProductColor:    s.Product.Color,
			ProductLocation: s.Product.Location,
			Quantity:        s.Quantity,
			TotalPrice:      ledger.Money(s.TotalPrice),
			DiscountAmount:  ledger.Money(s.DiscountAmount),
			SaleDate:        timeRef(s.SaleDate),
		})
	}

	number := b.Receipt.ReceiptNumber
	if number == "" {
		number = "R" + strconv.FormatInt(b.Receipt.ID, 10)
	}
	return syncwire.Receipt{
		LocalReceiptID: b.Receipt.ID,
		ReceiptNumber:  number,
		Date:           timeRef(b.Receipt.Date),
		DeliveryCost:   ledger.Money(b.Receipt.DeliveryCost),
		Sales:          sales,
		Payment:        paymentPayload(b.Payment),
	}, true
}

// paymentPayload only reports completed lines, the ones that make up
// total_paid.
func paymentPayload(p *domain.Payment) *syncwire.Payment {
	if p == nil {
		return nil
	}
	methods := make([]syncwire.PaymentMethod, 0, len(p.Lines))
	for _, line := range p.Lines {
		if line.Status != domain.LineCompleted {
			continue
		}
		methods = append(methods, syncwire.PaymentMethod{Method: line.Method, Amount: ledger.Money(line.Amount)})
	}
	return &syncwire.Payment{
		LocalPaymentID:     p.ID,
		PaymentStatus:      string(p.Status),
		TotalAmount:        ledger.Money(p.TotalAmount),
		TotalPaid:          ledger.Money(p.TotalPaid),
		DiscountPercentage: p.DiscountPercentage,
		DiscountAmount:     ledger.Money(p.DiscountAmount),
		PaymentDate:        timeRef(p.PaymentDate),
		PaymentMethods:     methods,
	}
}

func timeRef(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
