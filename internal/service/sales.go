package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/roles"
	"mystore/backend/internal/store"
)

var minPayment = decimal.RequireFromString("0.01")

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.ReceiptBundle, error) {
	actor, err := s.authorize(ctx, roles.SalesEdit)
	if err != nil {
		return domain.ReceiptBundle{}, err
	}
	if err := validateStruct(req); err != nil {
		return domain.ReceiptBundle{}, err
	}
	for i, item := range req.Items {
		if item.DiscountAmount.IsNegative() {
			return domain.ReceiptBundle{}, domain.Invalid(fmt.Sprintf("items[%d].discount_amount", i), "must not be negative")
		}
	}
	if req.DiscountPercentage.IsNegative() || req.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return domain.ReceiptBundle{}, domain.Invalid("discount_percentage", "must be between 0 and 100")
	}
	if req.DiscountAmount.IsNegative() {
		return domain.ReceiptBundle{}, domain.Invalid("discount_amount", "must not be negative")
	}

	now := s.now()
	lines := make([]domain.PaymentLine, 0, len(req.Payments))
	for i, p := range req.Payments {
		line, err := paymentLineFromRequest(p, actor.Username)
		if err != nil {
			if ve, ok := err.(*domain.ValidationError); ok {
				ve.Field = fmt.Sprintf("payments[%d].%s", i, ve.Field)
			}
			return domain.ReceiptBundle{}, err
		}
		line.CreatedAt = now
		lines = append(lines, line)
	}

	bundle, err := s.repo.CreateCheckout(ctx, domain.CheckoutDraft{
		CustomerID:         req.CustomerID,
		CreatedBy:          actor.Username,
		Date:               now,
		Items:              req.Items,
		DiscountPercentage: req.DiscountPercentage,
		DiscountAmount:     req.DiscountAmount,
		DeliveryCost:       req.DeliveryCost,
		PaymentLines:       lines,
		Notes:              strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.ReceiptBundle{}, err
	}

	s.invalidateProducts(ctx)
	status := domain.PaymentPending
	if bundle.Payment != nil {
		status = bundle.Payment.Status
	}
	s.logAudit(ctx, "checkout", "receipt", bundle.Receipt.ReceiptNumber,
		fmt.Sprintf("items=%d,total=%s,payment_status=%s", len(bundle.Sales), bundle.Receipt.Total.StringFixed(2), status))
	return *bundle, nil
}

func paymentLineFromRequest(req domain.PaymentLineRequest, processedBy string) (domain.PaymentLine, error) {
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if err := validateStruct(req); err != nil {
		return domain.PaymentLine{}, err
	}
	if !validPaymentMethod(req.Method) {
		return domain.PaymentLine{}, domain.Invalid("method", "unknown payment method %q", req.Method)
	}
	// Sub-kobo tenders are truncated, never rounded up.
	amount := ledger.Money(req.Amount)
	if amount.LessThan(minPayment) {
		return domain.PaymentLine{}, domain.Invalid("amount", "must be at least 0.01")
	}
	return domain.PaymentLine{
		Method:      req.Method,
		Amount:      amount,
		Status:      req.Status,
		Reference:   strings.TrimSpace(req.Reference),
		ProcessedBy: processedBy,
	}, nil
}

func (s *Service) GetReceipt(ctx context.Context, id int64) (domain.ReceiptBundle, error) {
	if _, err := s.authorize(ctx, roles.SalesView); err != nil {
		return domain.ReceiptBundle{}, err
	}
	bundle, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return domain.ReceiptBundle{}, err
	}
	return *bundle, nil
}

func (s *Service) ListReceipts(ctx context.Context, q domain.ReceiptQuery) ([]domain.ReceiptBundle, error) {
	if _, err := s.authorize(ctx, roles.SalesView); err != nil {
		return nil, err
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, domain.Invalid("to", "must be after from")
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	return s.repo.ListReceipts(ctx, store.ReceiptFilter(q))
}

func (s *Service) GetPayment(ctx context.Context, id int64) (domain.Payment, error) {
	if _, err := s.authorize(ctx, roles.PaymentsView); err != nil {
		return domain.Payment{}, err
	}
	payment, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return *payment, nil
}

// AddPayment records one more payment line and recomputes the payment
// status. A store_credit line consumes credit in the same repository unit.
func (s *Service) AddPayment(ctx context.Context, paymentID int64, req domain.PaymentLineRequest) (domain.Payment, error) {
	actor, err := s.authorize(ctx, roles.PaymentsEdit)
	if err != nil {
		return domain.Payment{}, err
	}
	if req.Method == domain.MethodStoreCredit {
		if _, err := s.authorize(ctx, roles.StoreCreditsRedeem); err != nil {
			return domain.Payment{}, err
		}
	}
	line, err := paymentLineFromRequest(req, actor.Username)
	if err != nil {
		return domain.Payment{}, err
	}

	now := s.now()
	line.CreatedAt = now
	payment, err := s.repo.AddPaymentLine(ctx, paymentID, line, now)
	if err != nil {
		return domain.Payment{}, err
	}
	s.logAudit(ctx, "payment_add", "payment", fmt.Sprint(payment.ID),
		fmt.Sprintf("method=%s,amount=%s,status=%s,balance_due=%s", line.Method, line.Amount.StringFixed(2), payment.Status, payment.BalanceDue.StringFixed(2)))
	return *payment, nil
}

func (s *Service) UpdatePaymentLineStatus(ctx context.Context, lineID int64, req domain.PaymentLineStatusRequest) (domain.Payment, error) {
	if _, err := s.authorize(ctx, roles.PaymentsEdit); err != nil {
		return domain.Payment{}, err
	}
	if err := validateStruct(req); err != nil {
		return domain.Payment{}, err
	}

	payment, err := s.repo.UpdatePaymentLineStatus(ctx, lineID, req.Status, s.now())
	if err != nil {
		return domain.Payment{}, err
	}
	s.logAudit(ctx, "payment_line_status", "payment", fmt.Sprint(payment.ID),
		fmt.Sprintf("line=%d,status=%s,payment_status=%s", lineID, req.Status, payment.Status))
	return *payment, nil
}
