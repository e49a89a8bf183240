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

// returnedQtyLocked counts units of a sale claimed by returns that are still
// live. Rejected and cancelled returns release their units.
func (s *Store) returnedQtyLocked(saleID int64) int {
	total := 0
	for _, ret := range s.returns {
		if ret.Status == domain.ReturnRejected || ret.Status == domain.ReturnCancelled {
			continue
		}
		for _, item := range ret.Items {
			if item.SaleID == saleID {
				total += item.QuantityReturned
			}
		}
	}
	return total
}

// refundedQtyLocked counts units of a sale already refunded by completed
// returns.
func (s *Store) refundedQtyLocked(saleID int64) int {
	total := 0
	for _, ret := range s.returns {
		if ret.Status != domain.ReturnCompleted {
			continue
		}
		for _, item := range ret.Items {
			if item.SaleID == saleID {
				total += item.QuantityReturned
			}
		}
	}
	return total
}

// priceItemsLocked sets each item's refund on top of the units already
// refunded, so the completed refunds of a sale sum to its line total once
// every unit is back. It returns the subtotal.
func (s *Store) priceItemsLocked(items []domain.ReturnItem) decimal.Decimal {
	counted := make(map[int64]int, len(items))
	subtotal := decimal.Zero
	for i := range items {
		sale := s.sales[items[i].SaleID]
		base := s.refundedQtyLocked(sale.ID) + counted[sale.ID]
		items[i].RefundAmount = ledger.ProportionalRefund(sale.TotalPrice, sale.Quantity, base, items[i].QuantityReturned)
		counted[sale.ID] += items[i].QuantityReturned
		subtotal = subtotal.Add(items[i].RefundAmount)
	}
	return ledger.Money(subtotal)
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ret.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	receipt, ok := s.receipts[ret.ReceiptID]
	if !ok {
		return nil, fmt.Errorf("%w: receipt %d", store.ErrNotFound, ret.ReceiptID)
	}
	if ret.CustomerID == nil {
		ret.CustomerID = receipt.CustomerID
	}

	claimed := make(map[int64]int, len(ret.Items))
	items := make([]domain.ReturnItem, 0, len(ret.Items))
	for _, item := range ret.Items {
		sale, ok := s.sales[item.SaleID]
		if !ok || sale.ReceiptID != receipt.ID {
			return nil, fmt.Errorf("%w: sale %d on receipt %d", store.ErrNotFound, item.SaleID, receipt.ID)
		}
		if item.QuantityReturned < 1 {
			return nil, store.ErrInvalidTransaction
		}
		already := s.returnedQtyLocked(sale.ID) + claimed[sale.ID]
		remaining := sale.Quantity - already
		if item.QuantityReturned > remaining {
			return nil, fmt.Errorf("%w: cannot return %d of sale %d, only %d remain returnable",
				domain.ErrOverReturn, item.QuantityReturned, sale.ID, remaining)
		}
		claimed[sale.ID] += item.QuantityReturned

		item.ProductID = sale.ProductID
		item.QuantitySold = sale.Quantity
		item.UnitRefund = ledger.UnitRefund(sale.TotalPrice, sale.Quantity)
		item.Restocked = false
		item.RestockedDate = nil
		if item.Condition == "" {
			item.Condition = domain.ConditionGood
		}
		items = append(items, item)
	}

	if ret.ReturnDate.IsZero() {
		ret.ReturnDate = time.Now().UTC()
	}
	ret.ID = s.nextIDLocked("return")
	ret.ReturnNumber = s.nextNumberLocked(domain.PrefixReturn, ret.ReturnDate)
	ret.Status = domain.ReturnPending
	ret.Subtotal = s.priceItemsLocked(items)
	ret.RestockingFee = ledger.ClampDiscount(ret.RestockingFee, ret.Subtotal)
	ret.RefundAmount = ledger.RefundAmount(ret.Subtotal, ret.RestockingFee)
	for i := range items {
		items[i].ID = s.nextIDLocked("return_item")
		items[i].ReturnID = ret.ID
	}
	ret.Items = items

	s.returns[ret.ID] = cloneReturn(ret)
	out := cloneReturn(ret)
	return &out, nil
}

func (s *Store) GetReturn(_ context.Context, id int64) (*domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, ok := s.returns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneReturn(ret)
	return &out, nil
}

func (s *Store) ListReturns(_ context.Context, filter *query.Filter[domain.Return]) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, len(s.returns))
	for _, ret := range s.returns {
		result = append(result, cloneReturn(ret))
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		if c := b.ReturnDate.Compare(a.ReturnDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return filter.Apply(result), nil
}

func (s *Store) TransitionReturn(_ context.Context, id int64, to domain.ReturnStatus, actor string, note string, at time.Time) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret, ok := s.returns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if to == domain.ReturnCompleted || !domain.CanTransition(ret.Status, to) {
		return nil, domain.TransitionError(ret.Status, to)
	}
	ret = cloneReturn(ret)
	ret.Status = to
	if to == domain.ReturnApproved {
		ret.ApprovedBy = actor
		approved := at
		ret.ApprovedDate = &approved
	}
	if note != "" {
		ret.Notes = appendNote(ret.Notes, fmt.Sprintf("%s by %s: %s", to, actor, note))
	}
	s.returns[id] = ret

	out := cloneReturn(ret)
	return &out, nil
}

func (s *Store) CompleteReturn(_ context.Context, params domain.CompleteReturnParams) (*domain.CompleteReturnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret, ok := s.returns[params.ReturnID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing := s.creditForReturnLocked(ret.ID)

	if ret.Status == domain.ReturnCompleted {
		if params.RefundType != ret.RefundType {
			return nil, fmt.Errorf("%w: return already completed with %s refund", domain.ErrInvalidTransition, ret.RefundType)
		}
		return &domain.CompleteReturnResult{Return: cloneReturn(ret), StoreCredit: existing, AlreadyCompleted: true}, nil
	}
	if !domain.CanTransition(ret.Status, domain.ReturnCompleted) {
		return nil, domain.TransitionError(ret.Status, domain.ReturnCompleted)
	}
	switch params.RefundType {
	case domain.RefundCash:
	case domain.RefundStoreCredit:
		if ret.CustomerID == nil {
			return nil, domain.ErrCustomerRequired
		}
	default:
		return nil, fmt.Errorf("%w: unknown refund type %q", store.ErrInvalidTransaction, params.RefundType)
	}
	for _, item := range ret.Items {
		if item.RestockToInventory && !item.Restocked {
			if _, ok := s.products[item.ProductID]; !ok {
				return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, item.ProductID)
			}
		}
	}

	ret = cloneReturn(ret)
	// Returns cancelled since this one was raised no longer count.
	ret.Subtotal = s.priceItemsLocked(ret.Items)
	ret.RestockingFee = ledger.ClampDiscount(ret.RestockingFee, ret.Subtotal)
	ret.RefundAmount = ledger.RefundAmount(ret.Subtotal, ret.RestockingFee)
	result := &domain.CompleteReturnResult{}

	if params.RefundType == domain.RefundStoreCredit {
		if existing == nil {
			returnID := ret.ID
			credit := domain.StoreCredit{
				ID:               s.nextIDLocked("store_credit"),
				CreditNumber:     s.nextNumberLocked(domain.PrefixStoreCredit, params.At),
				CustomerID:       *ret.CustomerID,
				ReturnID:         &returnID,
				OriginalAmount:   ret.RefundAmount,
				RemainingBalance: ret.RefundAmount,
				IsActive:         ret.RefundAmount.IsPositive(),
				IssuedBy:         params.ProcessedBy,
				IssuedDate:       params.At,
				ExpiryDate:       params.CreditExpiry,
				Notes:            "Store credit for return " + ret.ReturnNumber,
			}
			s.credits[credit.ID] = credit
			existing = &credit
			result.CreditCreated = true
		}
		result.StoreCredit = existing
	}

	for i := range ret.Items {
		if !ret.Items[i].RestockToInventory || ret.Items[i].Restocked {
			continue
		}
		s.restockItemLocked(&ret.Items[i], params.At)
		result.RestockedItems++
	}

	method := params.RefundMethod
	if method == "" {
		method = params.RefundType
	}
	ret.Status = domain.ReturnCompleted
	ret.RefundType = params.RefundType
	ret.RefundMethod = method
	ret.RefundReference = params.RefundReference
	ret.ProcessedBy = params.ProcessedBy
	refunded := params.At
	ret.RefundedDate = &refunded
	s.returns[ret.ID] = ret

	result.Return = cloneReturn(ret)
	return result, nil
}

func (s *Store) restockItemLocked(item *domain.ReturnItem, at time.Time) {
	product := s.products[item.ProductID]
	product.Quantity += item.QuantityReturned
	product.UpdatedAt = at
	s.products[product.ID] = product

	item.Restocked = true
	restocked := at
	item.RestockedDate = &restocked
}

func (s *Store) RestockReturnItem(_ context.Context, returnID int64, itemID int64, at time.Time) (*domain.Return, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret, ok := s.returns[returnID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if ret.Status != domain.ReturnCompleted {
		return nil, false, fmt.Errorf("%w: return is %s, restock needs completed", domain.ErrInvalidTransition, ret.Status)
	}
	ret = cloneReturn(ret)
	for i := range ret.Items {
		if ret.Items[i].ID != itemID {
			continue
		}
		if ret.Items[i].Restocked {
			out := cloneReturn(ret)
			return &out, false, nil
		}
		if _, ok := s.products[ret.Items[i].ProductID]; !ok {
			return nil, false, fmt.Errorf("%w: product %d", store.ErrNotFound, ret.Items[i].ProductID)
		}
		ret.Items[i].RestockToInventory = true
		s.restockItemLocked(&ret.Items[i], at)
		s.returns[ret.ID] = ret
		out := cloneReturn(ret)
		return &out, true, nil
	}
	return nil, false, fmt.Errorf("%w: item %d on return %d", store.ErrNotFound, itemID, returnID)
}

func (s *Store) creditForReturnLocked(returnID int64) *domain.StoreCredit {
	for _, credit := range s.credits {
		if credit.ReturnID != nil && *credit.ReturnID == returnID {
			found := credit
			return &found
		}
	}
	return nil
}

func (s *Store) GetStoreCreditByReturn(_ context.Context, returnID int64) (*domain.StoreCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credit := s.creditForReturnLocked(returnID)
	if credit == nil {
		return nil, store.ErrNotFound
	}
	return credit, nil
}

func (s *Store) ListStoreCredits(_ context.Context, customerID int64) ([]domain.StoreCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.customerCreditsLocked(customerID), nil
}

// customerCreditsLocked returns the customer's credits oldest first, the
// order redemption consumes them in.
func (s *Store) customerCreditsLocked(customerID int64) []domain.StoreCredit {
	result := make([]domain.StoreCredit, 0, 4)
	for _, credit := range s.credits {
		if credit.CustomerID == customerID {
			result = append(result, credit)
		}
	}
	slices.SortFunc(result, func(a, b domain.StoreCredit) int {
		if c := a.IssuedDate.Compare(b.IssuedDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) availableCreditLocked(customerID int64, at time.Time) decimal.Decimal {
	available := decimal.Zero
	for _, credit := range s.customerCreditsLocked(customerID) {
		if credit.Redeemable(at) {
			available = available.Add(credit.RemainingBalance)
		}
	}
	return available
}

func (s *Store) RedeemStoreCredit(_ context.Context, redemption domain.Redemption) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, ok := s.receipts[redemption.ReceiptID]
	if !ok {
		return nil, fmt.Errorf("%w: receipt %d", store.ErrNotFound, redemption.ReceiptID)
	}
	if receipt.CustomerID == nil {
		return nil, domain.ErrCustomerRequired
	}
	if *receipt.CustomerID != redemption.CustomerID {
		return nil, fmt.Errorf("%w: receipt %s", domain.ErrCreditOwner, receipt.ReceiptNumber)
	}
	paymentID, ok := s.paymentByReceipt[receipt.ID]
	if !ok {
		return nil, fmt.Errorf("%w: payment for receipt %d", store.ErrNotFound, receipt.ID)
	}
	return s.addPaymentLineLocked(s.payments[paymentID], domain.PaymentLine{
		Method:      domain.MethodStoreCredit,
		Amount:      redemption.Amount,
		ProcessedBy: redemption.UsedBy,
		CreatedAt:   redemption.At,
	}, redemption.At)
}

// redeemLocked consumes credit oldest first. Callers record the matching
// payment line in the same critical section.
func (s *Store) redeemLocked(r domain.Redemption) ([]domain.StoreCreditUsage, error) {
	if !r.Amount.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if receipt, ok := s.receipts[r.ReceiptID]; !ok || receipt.CustomerID == nil || *receipt.CustomerID != r.CustomerID {
		return nil, domain.ErrCreditOwner
	}
	if available := s.availableCreditLocked(r.CustomerID, r.At); r.Amount.GreaterThan(available) {
		return nil, insufficientCredit(available, r.Amount)
	}

	remaining := r.Amount
	usages := make([]domain.StoreCreditUsage, 0, 2)
	for _, credit := range s.customerCreditsLocked(r.CustomerID) {
		if !remaining.IsPositive() {
			break
		}
		if !credit.Redeemable(r.At) {
			continue
		}
		used := decimal.Min(remaining, credit.RemainingBalance)
		credit.RemainingBalance = credit.RemainingBalance.Sub(used)
		if !credit.RemainingBalance.IsPositive() {
			credit.RemainingBalance = decimal.Zero
			credit.IsActive = false
		}
		s.credits[credit.ID] = credit
		remaining = remaining.Sub(used)

		usage := domain.StoreCreditUsage{
			ID:            s.nextIDLocked("store_credit_usage"),
			StoreCreditID: credit.ID,
			ReceiptID:     r.ReceiptID,
			AmountUsed:    used,
			UsedBy:        r.UsedBy,
			UsedDate:      r.At,
		}
		s.creditUsages = append(s.creditUsages, usage)
		usages = append(usages, usage)
	}
	return usages, nil
}

func insufficientCredit(available decimal.Decimal, requested decimal.Decimal) error {
	return fmt.Errorf("%w: available %s, requested %s", domain.ErrInsufficientCredit,
		ledger.FormatNaira(available), ledger.FormatNaira(requested))
}

func appendNote(notes string, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
