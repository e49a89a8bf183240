package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/roles"
)

func (s *Service) ListCustomerCredits(ctx context.Context, customerID int64) ([]domain.StoreCredit, error) {
	if _, err := s.authorize(ctx, roles.StoreCreditsView); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListStoreCredits(ctx, customerID)
}

// AvailableCredit sums the balances the customer could spend right now.
func (s *Service) AvailableCredit(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	credits, err := s.ListCustomerCredits(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	return availableBalance(credits, s.now()), nil
}

func availableBalance(credits []domain.StoreCredit, at time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, credit := range credits {
		if credit.Redeemable(at) {
			total = total.Add(credit.RemainingBalance)
		}
	}
	return ledger.Money(total)
}

// RedeemStoreCredit pays part of a receipt with the customer's store credit.
// It records a completed store_credit payment line, the same as AddPayment,
// and never takes more than the receipt's balance due.
func (s *Service) RedeemStoreCredit(ctx context.Context, req domain.RedeemRequest) (domain.RedeemResponse, error) {
	actor, err := s.authorize(ctx, roles.StoreCreditsRedeem)
	if err != nil {
		return domain.RedeemResponse{}, err
	}
	if _, err := s.authorize(ctx, roles.PaymentsEdit); err != nil {
		return domain.RedeemResponse{}, err
	}
	if err := validateStruct(req); err != nil {
		return domain.RedeemResponse{}, err
	}
	amount := ledger.Money(req.Amount)
	if amount.LessThan(minPayment) {
		return domain.RedeemResponse{}, domain.Invalid("amount", "must be at least 0.01")
	}

	now := s.now()
	payment, err := s.repo.RedeemStoreCredit(ctx, domain.Redemption{
		CustomerID: req.CustomerID,
		ReceiptID:  req.ReceiptID,
		Amount:     amount,
		UsedBy:     actor.Username,
		At:         now,
	})
	if err != nil {
		return domain.RedeemResponse{}, err
	}

	credits, err := s.repo.ListStoreCredits(ctx, req.CustomerID)
	if err != nil {
		return domain.RedeemResponse{}, err
	}
	s.logAudit(ctx, "store_credit_redeem", "payment", fmt.Sprint(payment.ID),
		fmt.Sprintf("customer=%d,receipt=%d,amount=%s,balance_due=%s", req.CustomerID, req.ReceiptID, amount.StringFixed(2), payment.BalanceDue.StringFixed(2)))
	return domain.RedeemResponse{Payment: *payment, Available: availableBalance(credits, now)}, nil
}
