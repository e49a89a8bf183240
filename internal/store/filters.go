package store

import (
	"fmt"
	"strings"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/query"
)

// The SQL fragments below use the table aliases of the postgres store:
// p (products), r (receipts), pay (payments), rt (returns).

func ProductFilter(q domain.ProductQuery) *query.Filter[domain.Product] {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	return query.New[domain.Product]().
		WhereIf(q.Location != "", "location",
			func(p domain.Product) bool { return p.Location == q.Location },
			"p.location = ?", q.Location).
		WhereIf(q.Category != "", "category",
			func(p domain.Product) bool { return strings.EqualFold(p.Category, q.Category) },
			"lower(p.category) = lower(?)", q.Category).
		WhereIf(q.Brand != "", "brand",
			func(p domain.Product) bool { return strings.EqualFold(p.Brand, q.Brand) },
			"lower(p.brand) = lower(?)", q.Brand).
		WhereIf(q.InStock, "in_stock",
			func(p domain.Product) bool { return p.Quantity > 0 },
			"p.quantity > 0").
		WhereIf(search != "", "search",
			func(p domain.Product) bool {
				haystack := strings.ToLower(strings.Join([]string{p.Brand, p.Category, p.Color, p.Design, p.Barcode}, " "))
				return strings.Contains(haystack, search)
			},
			"lower(p.brand || ' ' || p.category || ' ' || p.color || ' ' || p.design || ' ' || p.barcode_number) LIKE ?",
			"%"+search+"%")
}

func ReceiptFilter(q domain.ReceiptQuery) *query.Filter[domain.ReceiptBundle] {
	f := query.New[domain.ReceiptBundle]()
	if q.From != nil {
		from := *q.From
		f.Where("from", func(b domain.ReceiptBundle) bool { return !b.Receipt.Date.Before(from) }, "r.date >= ?", from)
	}
	if q.To != nil {
		to := *q.To
		f.Where("to", func(b domain.ReceiptBundle) bool { return b.Receipt.Date.Before(to) }, "r.date < ?", to)
	}
	if q.CustomerID != nil {
		customerID := *q.CustomerID
		f.Where("customer", func(b domain.ReceiptBundle) bool {
			return b.Receipt.CustomerID != nil && *b.Receipt.CustomerID == customerID
		}, "r.customer_id = ?", customerID)
	}
	if q.PaymentStatus != "" {
		status := q.PaymentStatus
		f.Where("payment_status", func(b domain.ReceiptBundle) bool {
			return b.Payment != nil && b.Payment.Status == status
		}, "pay.payment_status = ?", string(status))
	}
	return f.Limit(q.Limit)
}

func ReturnFilter(q domain.ReturnQuery) *query.Filter[domain.Return] {
	f := query.New[domain.Return]().
		WhereIf(q.Status != "", "status",
			func(r domain.Return) bool { return r.Status == q.Status },
			"rt.status = ?", string(q.Status)).
		WhereIf(q.ReceiptID > 0, "receipt",
			func(r domain.Return) bool { return r.ReceiptID == q.ReceiptID },
			"rt.receipt_id = ?", q.ReceiptID)
	if q.CustomerID != nil {
		customerID := *q.CustomerID
		f.Where("customer", func(r domain.Return) bool {
			return r.CustomerID != nil && *r.CustomerID == customerID
		}, "rt.customer_id = ?", customerID)
	}
	return f.Limit(q.Limit)
}

// GenerateBarcode assigns an EAN-13 number of the form 200 + 9-digit id + check digit.
func GenerateBarcode(id int64) string {
	base := fmt.Sprintf("200%09d", id%1_000_000_000)
	return base + string(rune('0'+ean13CheckDigit(base)))
}

func ean13CheckDigit(base12 string) int {
	total := 0
	for i, r := range base12 {
		digit := int(r - '0')
		if i%2 == 1 {
			digit *= 3
		}
		total += digit
	}
	return (10 - total%10) % 10
}
