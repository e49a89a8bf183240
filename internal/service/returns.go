package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/roles"
	"mystore/backend/internal/store"
)

func (s *Service) CreateReturn(ctx context.Context, req domain.CreateReturnRequest) (domain.Return, error) {
	actor, err := s.authorize(ctx, roles.ReturnsEdit)
	if err != nil {
		return domain.Return{}, err
	}
	req.Reason = strings.ToLower(strings.TrimSpace(req.Reason))
	if err := validateStruct(req); err != nil {
		return domain.Return{}, err
	}
	if req.RestockingFee.IsNegative() {
		return domain.Return{}, domain.Invalid("restocking_fee", "must not be negative")
	}

	receipt, err := s.repo.GetReceipt(ctx, req.ReceiptID)
	if err != nil {
		return domain.Return{}, err
	}
	now := s.now()
	if now.Sub(receipt.Receipt.Date) >= s.returnWindow {
		return domain.Return{}, fmt.Errorf("%w: receipt %s is older than %d days",
			domain.ErrReturnWindowClosed, receipt.Receipt.ReceiptNumber, int(s.returnWindow/(24*time.Hour)))
	}

	items := make([]domain.ReturnItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.ReturnItem{
			SaleID:             item.SaleID,
			QuantityReturned:   item.Quantity,
			Condition:          item.Condition,
			RestockToInventory: item.Restock,
			Notes:              strings.TrimSpace(item.Notes),
		})
	}

	customerID := req.CustomerID
	if customerID == nil {
		customerID = receipt.Receipt.CustomerID
	}
	created, err := s.repo.CreateReturn(ctx, domain.Return{
		ReceiptID:     req.ReceiptID,
		CustomerID:    customerID,
		Reason:        req.Reason,
		ReasonNotes:   strings.TrimSpace(req.ReasonNotes),
		RestockingFee: req.RestockingFee,
		CreatedBy:     actor.Username,
		ReturnDate:    now,
		Notes:         strings.TrimSpace(req.Notes),
		Items:         items,
	})
	if err != nil {
		return domain.Return{}, err
	}
	s.logAudit(ctx, "return_create", "return", created.ReturnNumber,
		fmt.Sprintf("receipt=%s,items=%d,refund=%s", receipt.Receipt.ReceiptNumber, len(created.Items), created.RefundAmount.StringFixed(2)))
	return *created, nil
}

func (s *Service) GetReturn(ctx context.Context, id int64) (domain.Return, error) {
	if _, err := s.authorize(ctx, roles.ReturnsView); err != nil {
		return domain.Return{}, err
	}
	ret, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return domain.Return{}, err
	}
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context, q domain.ReturnQuery) ([]domain.Return, error) {
	if _, err := s.authorize(ctx, roles.ReturnsView); err != nil {
		return nil, err
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	return s.repo.ListReturns(ctx, store.ReturnFilter(q))
}

func (s *Service) ApproveReturn(ctx context.Context, id int64) (domain.Return, error) {
	return s.transitionReturn(ctx, id, domain.ReturnApproved, roles.ReturnsApprove, "")
}

func (s *Service) RejectReturn(ctx context.Context, id int64, req domain.ReturnDecisionRequest) (domain.Return, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Return{}, domain.Invalid("reason", "is required")
	}
	return s.transitionReturn(ctx, id, domain.ReturnRejected, roles.ReturnsApprove, reason)
}

func (s *Service) CancelReturn(ctx context.Context, id int64, req domain.ReturnDecisionRequest) (domain.Return, error) {
	return s.transitionReturn(ctx, id, domain.ReturnCancelled, roles.ReturnsEdit, strings.TrimSpace(req.Reason))
}

func (s *Service) transitionReturn(ctx context.Context, id int64, to domain.ReturnStatus, capability roles.Capability, note string) (domain.Return, error) {
	actor, err := s.authorize(ctx, capability)
	if err != nil {
		return domain.Return{}, err
	}
	ret, err := s.repo.TransitionReturn(ctx, id, to, actor.Username, note, s.now())
	if err != nil {
		return domain.Return{}, err
	}
	s.logAudit(ctx, "return_"+string(to), "return", ret.ReturnNumber, note)
	return *ret, nil
}

// CompleteReturn refunds an approved return. Credit issue, restock and the
// status change commit together; completing twice reports the first result.
func (s *Service) CompleteReturn(ctx context.Context, id int64, req domain.CompleteReturnRequest) (domain.CompleteReturnResult, error) {
	actor, err := s.authorize(ctx, roles.ReturnsComplete)
	if err != nil {
		return domain.CompleteReturnResult{}, err
	}
	req.RefundType = strings.ToLower(strings.TrimSpace(req.RefundType))
	req.RefundMethod = strings.ToLower(strings.TrimSpace(req.RefundMethod))
	if err := validateStruct(req); err != nil {
		return domain.CompleteReturnResult{}, err
	}
	if req.RefundType == domain.RefundCash && req.RefundMethod != "" && !validPaymentMethod(req.RefundMethod) {
		return domain.CompleteReturnResult{}, domain.Invalid("refund_method", "unknown payment method %q", req.RefundMethod)
	}

	now := s.now()
	params := domain.CompleteReturnParams{
		ReturnID:        id,
		RefundType:      req.RefundType,
		RefundMethod:    req.RefundMethod,
		RefundReference: strings.TrimSpace(req.RefundReference),
		ProcessedBy:     actor.Username,
		At:              now,
	}
	if s.creditExpiryDays > 0 {
		expiry := now.AddDate(0, 0, s.creditExpiryDays)
		params.CreditExpiry = &expiry
	}

	result, err := s.repo.CompleteReturn(ctx, params)
	if err != nil {
		return domain.CompleteReturnResult{}, err
	}
	if result.AlreadyCompleted {
		return *result, nil
	}

	if result.RestockedItems > 0 {
		s.invalidateProducts(ctx)
	}
	detail := fmt.Sprintf("refund_type=%s,amount=%s,restocked=%d", result.Return.RefundType, result.Return.RefundAmount.StringFixed(2), result.RestockedItems)
	if result.StoreCredit != nil {
		detail += ",credit=" + result.StoreCredit.CreditNumber
	}
	s.logAudit(ctx, "return_completed", "return", result.Return.ReturnNumber, detail)
	return *result, nil
}

// RestockReturnItem puts one item of a completed return back on the shelf.
// Restocking an item twice changes nothing.
func (s *Service) RestockReturnItem(ctx context.Context, returnID int64, itemID int64) (domain.Return, error) {
	if _, err := s.authorize(ctx, roles.ReturnsComplete); err != nil {
		return domain.Return{}, err
	}
	ret, restocked, err := s.repo.RestockReturnItem(ctx, returnID, itemID, s.now())
	if err != nil {
		return domain.Return{}, err
	}
	if restocked {
		s.invalidateProducts(ctx)
		s.logAudit(ctx, "return_item_restock", "return", ret.ReturnNumber, fmt.Sprintf("item=%d", itemID))
	}
	return *ret, nil
}
