// Package ledger holds the reconciliation arithmetic shared by checkout,
// payments and returns. Every function is pure and works on decimal values
// kept at two places by truncation.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Money truncates a value to kobo precision.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(2)
}

// ClampDiscount bounds a requested discount to [0, itemTotal].
func ClampDiscount(discount decimal.Decimal, itemTotal decimal.Decimal) decimal.Decimal {
	if itemTotal.IsNegative() {
		itemTotal = decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(itemTotal) {
		return itemTotal
	}
	return discount
}

// SaleLineTotal is selling price times quantity less the clamped discount.
func SaleLineTotal(sellingPrice decimal.Decimal, quantity int, discount decimal.Decimal) decimal.Decimal {
	gross := LineSubtotal(sellingPrice, quantity)
	return Money(gross.Sub(ClampDiscount(discount, gross)))
}

func LineSubtotal(sellingPrice decimal.Decimal, quantity int) decimal.Decimal {
	if quantity < 0 {
		quantity = 0
	}
	return Money(sellingPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// SellingPrice applies a percentage or fixed markup to the cost price.
func SellingPrice(price decimal.Decimal, markupType string, markup decimal.Decimal) decimal.Decimal {
	switch markupType {
	case domain.MarkupPercentage:
		return Money(price.Mul(decimal.NewFromInt(1).Add(markup.Div(hundred))))
	case domain.MarkupFixed:
		return Money(price.Add(markup))
	default:
		return Money(price)
	}
}

// BillDiscount resolves the bill-level discount. A positive percentage takes
// precedence over a flat amount.
func BillDiscount(subtotal decimal.Decimal, percentage decimal.Decimal, amount decimal.Decimal) decimal.Decimal {
	discount := amount
	if percentage.IsPositive() {
		discount = Money(subtotal.Mul(percentage).Div(hundred))
	}
	return ClampDiscount(discount, subtotal)
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// ReceiptTotal is the sum of line totals less the bill discount plus delivery.
func ReceiptTotal(lineTotals []decimal.Decimal, billDiscount decimal.Decimal, deliveryCost decimal.Decimal) decimal.Decimal {
	return Money(Sum(lineTotals...).Sub(billDiscount).Add(deliveryCost))
}

type PaymentState struct {
	Status        domain.PaymentStatus
	BalanceDue    decimal.Decimal
	CompletedDate *time.Time
}

// DeterminePaymentStatus derives status and balance from totals alone, so it
// can be re-run after every payment line mutation.
func DeterminePaymentStatus(totalAmount decimal.Decimal, totalPaid decimal.Decimal, now time.Time) PaymentState {
	balance := totalAmount.Sub(totalPaid)
	if balance.IsNegative() {
		balance = decimal.Zero
	}

	switch {
	case totalPaid.GreaterThanOrEqual(totalAmount):
		completed := now
		return PaymentState{Status: domain.PaymentCompleted, BalanceDue: decimal.Zero, CompletedDate: &completed}
	case totalPaid.IsPositive():
		return PaymentState{Status: domain.PaymentPartial, BalanceDue: Money(balance)}
	default:
		return PaymentState{Status: domain.PaymentPending, BalanceDue: Money(balance)}
	}
}

// TotalPaid sums the completed payment lines.
func TotalPaid(lines []domain.PaymentLine) decimal.Decimal {
	paid := decimal.Zero
	for _, line := range lines {
		if line.Status == domain.LineCompleted {
			paid = paid.Add(line.Amount)
		}
	}
	return Money(paid)
}

// ApplyPaymentState recomputes total paid, balance, status and completion
// date of a payment from its lines.
func ApplyPaymentState(p *domain.Payment, now time.Time) {
	p.TotalPaid = TotalPaid(p.Lines)
	state := DeterminePaymentStatus(p.TotalAmount, p.TotalPaid, now)
	p.BalanceDue = state.BalanceDue
	if state.Status == domain.PaymentCompleted && p.Status == domain.PaymentCompleted && p.CompletedDate != nil {
		return
	}
	p.Status = state.Status
	p.CompletedDate = state.CompletedDate
}

// UnitRefund is the per-unit share of a line total, discount included.
func UnitRefund(lineTotal decimal.Decimal, soldQty int) decimal.Decimal {
	if soldQty < 1 {
		return decimal.Zero
	}
	return Money(lineTotal.Div(decimal.NewFromInt(int64(soldQty))))
}

// ProportionalRefund returns (lineTotal/soldQty) × returning. It is computed
// on cumulative quantities so that refunds across several partial returns of
// one sale add up to exactly lineTotal once every unit is back.
func ProportionalRefund(lineTotal decimal.Decimal, soldQty int, alreadyReturned int, returning int) decimal.Decimal {
	if soldQty < 1 || returning < 1 || alreadyReturned < 0 {
		return decimal.Zero
	}
	share := func(qty int) decimal.Decimal {
		if qty >= soldQty {
			return Money(lineTotal)
		}
		return Money(lineTotal.Mul(decimal.NewFromInt(int64(qty))).Div(decimal.NewFromInt(int64(soldQty))))
	}
	return share(alreadyReturned + returning).Sub(share(alreadyReturned))
}

// RefundAmount is the return subtotal less a restocking fee clamped to it.
func RefundAmount(subtotal decimal.Decimal, restockingFee decimal.Decimal) decimal.Decimal {
	return Money(subtotal.Sub(ClampDiscount(restockingFee, subtotal)))
}
