package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/query"
	"mystore/backend/internal/store"
)

func returnedQty(ctx context.Context, q queryer, saleID int64) (int, error) {
	var qty int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ri.quantity_returned), 0)
		FROM return_items ri
		JOIN returns rt ON rt.id = ri.return_id
		WHERE ri.sale_id = $1 AND rt.status NOT IN ('rejected', 'cancelled')
	`, saleID).Scan(&qty)
	return qty, err
}

// priceItemsTx sets each item's refund on top of the units of its sale that
// completed returns already refunded, and returns the subtotal.
func priceItemsTx(ctx context.Context, tx *sql.Tx, items []domain.ReturnItem) (decimal.Decimal, error) {
	counted := make(map[int64]int, len(items))
	subtotal := decimal.Zero
	for i := range items {
		var sold, refunded int
		var lineTotal decimal.Decimal
		err := tx.QueryRowContext(ctx, `
			SELECT s.quantity, s.total_price, COALESCE((
				SELECT SUM(ri.quantity_returned)
				FROM return_items ri
				JOIN returns rt ON rt.id = ri.return_id
				WHERE ri.sale_id = s.id AND rt.status = 'completed'
			), 0)
			FROM sales s
			WHERE s.id = $1
		`, items[i].SaleID).Scan(&sold, &lineTotal, &refunded)
		if err != nil {
			return decimal.Zero, err
		}
		base := refunded + counted[items[i].SaleID]
		items[i].RefundAmount = ledger.ProportionalRefund(lineTotal, sold, base, items[i].QuantityReturned)
		counted[items[i].SaleID] += items[i].QuantityReturned
		subtotal = subtotal.Add(items[i].RefundAmount)
	}
	return ledger.Money(subtotal), nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if len(ret.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	var returnID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Locking the receipt serializes every return raised against it, so
		// the returnable quantity read below cannot go stale before commit.
		var customerID sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT customer_id FROM receipts WHERE id = $1 FOR UPDATE`, ret.ReceiptID).Scan(&customerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: receipt %d", store.ErrNotFound, ret.ReceiptID)
			}
			return err
		}
		if ret.CustomerID == nil {
			ret.CustomerID = int64Ptr(customerID)
		}

		claimed := make(map[int64]int, len(ret.Items))
		items := make([]domain.ReturnItem, 0, len(ret.Items))
		for _, item := range ret.Items {
			var sale domain.Sale
			err := tx.QueryRowContext(ctx, `
				SELECT id, product_id, quantity, total_price FROM sales WHERE id = $1 AND receipt_id = $2
			`, item.SaleID, ret.ReceiptID).Scan(&sale.ID, &sale.ProductID, &sale.Quantity, &sale.TotalPrice)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: sale %d on receipt %d", store.ErrNotFound, item.SaleID, ret.ReceiptID)
				}
				return err
			}
			if item.QuantityReturned < 1 {
				return store.ErrInvalidTransaction
			}
			already, err := returnedQty(ctx, tx, sale.ID)
			if err != nil {
				return err
			}
			already += claimed[sale.ID]
			remaining := sale.Quantity - already
			if item.QuantityReturned > remaining {
				return fmt.Errorf("%w: cannot return %d of sale %d, only %d remain returnable",
					domain.ErrOverReturn, item.QuantityReturned, sale.ID, remaining)
			}
			claimed[sale.ID] += item.QuantityReturned

			item.ProductID = sale.ProductID
			item.QuantitySold = sale.Quantity
			item.UnitRefund = ledger.UnitRefund(sale.TotalPrice, sale.Quantity)
			if item.Condition == "" {
				item.Condition = domain.ConditionGood
			}
			items = append(items, item)
		}
		subtotal, err := priceItemsTx(ctx, tx, items)
		if err != nil {
			return err
		}

		if ret.ReturnDate.IsZero() {
			ret.ReturnDate = time.Now().UTC()
		}
		number, err := nextNumberTx(ctx, tx, domain.PrefixReturn, ret.ReturnDate)
		if err != nil {
			return err
		}
		ret.Subtotal = ledger.Money(subtotal)
		ret.RestockingFee = ledger.ClampDiscount(ret.RestockingFee, ret.Subtotal)
		ret.RefundAmount = ledger.RefundAmount(ret.Subtotal, ret.RestockingFee)

		err = tx.QueryRowContext(ctx, `
			INSERT INTO returns (
				return_number, receipt_id, customer_id, return_reason, reason_notes, status,
				subtotal, restocking_fee, refund_amount, created_by, return_date, notes
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING id
		`, number, ret.ReceiptID, nullInt64(ret.CustomerID), ret.Reason, ret.ReasonNotes, domain.ReturnPending,
			ret.Subtotal, ret.RestockingFee, ret.RefundAmount, ret.CreatedBy, ret.ReturnDate, ret.Notes).Scan(&returnID)
		if err != nil {
			return err
		}

		for _, item := range items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO return_items (
					return_id, sale_id, product_id, quantity_sold, quantity_returned, unit_refund, refund_amount,
					condition, restock_to_inventory, notes
				)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			`, returnID, item.SaleID, item.ProductID, item.QuantitySold, item.QuantityReturned, item.UnitRefund,
				item.RefundAmount, item.Condition, item.RestockToInventory, item.Notes)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetReturn(ctx, returnID)
}

func (s *Store) GetReturn(ctx context.Context, id int64) (*domain.Return, error) {
	return loadReturn(ctx, s.db, id, false)
}

func loadReturn(ctx context.Context, q queryer, id int64, forUpdate bool) (*domain.Return, error) {
	stmt := `
		SELECT id, return_number, receipt_id, customer_id, return_reason, reason_notes, status, refund_type,
			refund_method, refund_reference, subtotal, restocking_fee, refund_amount, created_by, approved_by,
			approved_date, processed_by, refunded_date, return_date, notes
		FROM returns
		WHERE id = $1`
	if forUpdate {
		stmt += ` FOR UPDATE`
	}
	var r domain.Return
	var customerID sql.NullInt64
	var approved, refunded sql.NullTime
	err := q.QueryRowContext(ctx, stmt, id).Scan(&r.ID, &r.ReturnNumber, &r.ReceiptID, &customerID, &r.Reason,
		&r.ReasonNotes, &r.Status, &r.RefundType, &r.RefundMethod, &r.RefundReference, &r.Subtotal, &r.RestockingFee,
		&r.RefundAmount, &r.CreatedBy, &r.ApprovedBy, &approved, &r.ProcessedBy, &refunded, &r.ReturnDate, &r.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	r.CustomerID = int64Ptr(customerID)
	r.ApprovedDate = timePtr(approved)
	r.RefundedDate = timePtr(refunded)
	r.ReturnDate = r.ReturnDate.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT id, return_id, sale_id, product_id, quantity_sold, quantity_returned, unit_refund, refund_amount,
			condition, restock_to_inventory, restocked, restocked_date, notes
		FROM return_items
		WHERE return_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.ReturnItem
		var restocked sql.NullTime
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.SaleID, &item.ProductID, &item.QuantitySold,
			&item.QuantityReturned, &item.UnitRefund, &item.RefundAmount, &item.Condition, &item.RestockToInventory,
			&item.Restocked, &restocked, &item.Notes); err != nil {
			return nil, err
		}
		item.RestockedDate = timePtr(restocked)
		r.Items = append(r.Items, item)
	}
	return &r, rows.Err()
}

func (s *Store) ListReturns(ctx context.Context, filter *query.Filter[domain.Return]) ([]domain.Return, error) {
	where, args := filter.SQL(1)
	stmt := `SELECT rt.id FROM returns rt WHERE ` + where + ` ORDER BY rt.return_date DESC, rt.id DESC`
	if limit := filter.LimitValue(); limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}
	ids, err := collectIDs(ctx, s.db, stmt, args...)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Return, 0, len(ids))
	for _, id := range ids {
		ret, err := loadReturn(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		result = append(result, *ret)
	}
	return result, nil
}

func (s *Store) TransitionReturn(ctx context.Context, id int64, to domain.ReturnStatus, actor string, note string, at time.Time) (*domain.Return, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status domain.ReturnStatus
		var notes string
		err := tx.QueryRowContext(ctx, `SELECT status, notes FROM returns WHERE id = $1 FOR UPDATE`, id).Scan(&status, &notes)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if to == domain.ReturnCompleted || !domain.CanTransition(status, to) {
			return domain.TransitionError(status, to)
		}
		if note != "" {
			notes = appendNote(notes, fmt.Sprintf("%s by %s: %s", to, actor, note))
		}
		if to == domain.ReturnApproved {
			_, err = tx.ExecContext(ctx, `
				UPDATE returns SET status = $2, approved_by = $3, approved_date = $4, notes = $5 WHERE id = $1
			`, id, to, actor, at, notes)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE returns SET status = $2, notes = $3 WHERE id = $1`, id, to, notes)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetReturn(ctx, id)
}

func (s *Store) CompleteReturn(ctx context.Context, params domain.CompleteReturnParams) (*domain.CompleteReturnResult, error) {
	var result *domain.CompleteReturnResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = &domain.CompleteReturnResult{}
		ret, err := loadReturn(ctx, tx, params.ReturnID, true)
		if err != nil {
			return err
		}
		existing, err := creditForReturn(ctx, tx, ret.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if ret.Status == domain.ReturnCompleted {
			if params.RefundType != ret.RefundType {
				return fmt.Errorf("%w: return already completed with %s refund", domain.ErrInvalidTransition, ret.RefundType)
			}
			result.AlreadyCompleted = true
			result.StoreCredit = existing
			return nil
		}
		if !domain.CanTransition(ret.Status, domain.ReturnCompleted) {
			return domain.TransitionError(ret.Status, domain.ReturnCompleted)
		}
		switch params.RefundType {
		case domain.RefundCash:
		case domain.RefundStoreCredit:
			if ret.CustomerID == nil {
				return domain.ErrCustomerRequired
			}
		default:
			return fmt.Errorf("%w: unknown refund type %q", store.ErrInvalidTransaction, params.RefundType)
		}

		// Reprice against completed returns only; returns cancelled since this
		// one was raised no longer count. The receipt lock orders completions.
		if _, err := tx.ExecContext(ctx, `SELECT id FROM receipts WHERE id = $1 FOR UPDATE`, ret.ReceiptID); err != nil {
			return err
		}
		subtotal, err := priceItemsTx(ctx, tx, ret.Items)
		if err != nil {
			return err
		}
		ret.Subtotal = subtotal
		ret.RestockingFee = ledger.ClampDiscount(ret.RestockingFee, ret.Subtotal)
		ret.RefundAmount = ledger.RefundAmount(ret.Subtotal, ret.RestockingFee)
		for _, item := range ret.Items {
			if _, err := tx.ExecContext(ctx, `UPDATE return_items SET refund_amount = $2 WHERE id = $1`, item.ID, item.RefundAmount); err != nil {
				return err
			}
		}

		if params.RefundType == domain.RefundStoreCredit {
			if existing == nil {
				number, err := nextNumberTx(ctx, tx, domain.PrefixStoreCredit, params.At)
				if err != nil {
					return err
				}
				returnID := ret.ID
				credit := domain.StoreCredit{
					CreditNumber:     number,
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
				err = tx.QueryRowContext(ctx, `
					INSERT INTO store_credits (
						credit_number, customer_id, return_id, original_amount, remaining_balance, is_active,
						issued_by, issued_date, expiry_date, notes
					)
					VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
					RETURNING id
				`, credit.CreditNumber, credit.CustomerID, returnID, credit.OriginalAmount, credit.RemainingBalance,
					credit.IsActive, credit.IssuedBy, credit.IssuedDate, nullTime(credit.ExpiryDate), credit.Notes).Scan(&credit.ID)
				if err != nil {
					if isUniqueViolation(err) {
						return store.ErrConflict
					}
					return err
				}
				existing = &credit
				result.CreditCreated = true
			}
			result.StoreCredit = existing
		}

		for _, item := range ret.Items {
			if !item.RestockToInventory || item.Restocked {
				continue
			}
			restocked, err := restockItemTx(ctx, tx, item, params.At)
			if err != nil {
				return err
			}
			if restocked {
				result.RestockedItems++
			}
		}

		method := params.RefundMethod
		if method == "" {
			method = params.RefundType
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE returns
			SET status = $2, refund_type = $3, refund_method = $4, refund_reference = $5, processed_by = $6, refunded_date = $7,
				subtotal = $8, restocking_fee = $9, refund_amount = $10
			WHERE id = $1
		`, ret.ID, domain.ReturnCompleted, params.RefundType, method, params.RefundReference, params.ProcessedBy, params.At,
			ret.Subtotal, ret.RestockingFee, ret.RefundAmount)
		return err
	})
	if err != nil {
		return nil, err
	}
	ret, err := s.GetReturn(ctx, params.ReturnID)
	if err != nil {
		return nil, err
	}
	result.Return = *ret
	return result, nil
}

// restockItemTx flips the restocked flag and adds stock back. The flag is
// updated conditionally so a second call for the same item does nothing.
func restockItemTx(ctx context.Context, tx *sql.Tx, item domain.ReturnItem, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE return_items
		SET restocked = true, restock_to_inventory = true, restocked_date = $2
		WHERE id = $1 AND restocked = false
	`, item.ID, at)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil || affected == 0 {
		return false, err
	}
	res, err = tx.ExecContext(ctx, `
		UPDATE products SET quantity = quantity + $2, updated_at = $3 WHERE id = $1
	`, item.ProductID, item.QuantityReturned, at)
	if err != nil {
		return false, err
	}
	if affected, err = res.RowsAffected(); err != nil {
		return false, err
	} else if affected == 0 {
		return false, fmt.Errorf("%w: product %d", store.ErrNotFound, item.ProductID)
	}
	return true, nil
}

func (s *Store) RestockReturnItem(ctx context.Context, returnID int64, itemID int64, at time.Time) (*domain.Return, bool, error) {
	var restocked bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ret, err := loadReturn(ctx, tx, returnID, true)
		if err != nil {
			return err
		}
		if ret.Status != domain.ReturnCompleted {
			return fmt.Errorf("%w: return is %s, restock needs completed", domain.ErrInvalidTransition, ret.Status)
		}
		for _, item := range ret.Items {
			if item.ID == itemID {
				restocked, err = restockItemTx(ctx, tx, item, at)
				return err
			}
		}
		return fmt.Errorf("%w: item %d on return %d", store.ErrNotFound, itemID, returnID)
	})
	if err != nil {
		return nil, false, err
	}
	ret, err := s.GetReturn(ctx, returnID)
	if err != nil {
		return nil, false, err
	}
	return ret, restocked, nil
}

const creditColumns = `id, credit_number, customer_id, return_id, original_amount, remaining_balance, is_active,
	issued_by, issued_date, expiry_date, notes`

func scanCredit(row rowScanner) (domain.StoreCredit, error) {
	var c domain.StoreCredit
	var returnID sql.NullInt64
	var expiry sql.NullTime
	err := row.Scan(&c.ID, &c.CreditNumber, &c.CustomerID, &returnID, &c.OriginalAmount, &c.RemainingBalance,
		&c.IsActive, &c.IssuedBy, &c.IssuedDate, &expiry, &c.Notes)
	c.ReturnID = int64Ptr(returnID)
	c.ExpiryDate = timePtr(expiry)
	c.IssuedDate = c.IssuedDate.UTC()
	return c, err
}

func creditForReturn(ctx context.Context, q queryer, returnID int64) (*domain.StoreCredit, error) {
	c, err := scanCredit(q.QueryRowContext(ctx, `SELECT `+creditColumns+` FROM store_credits WHERE return_id = $1`, returnID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetStoreCreditByReturn(ctx context.Context, returnID int64) (*domain.StoreCredit, error) {
	return creditForReturn(ctx, s.db, returnID)
}

func (s *Store) ListStoreCredits(ctx context.Context, customerID int64) ([]domain.StoreCredit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+creditColumns+`
		FROM store_credits
		WHERE customer_id = $1
		ORDER BY issued_date, id
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := make([]domain.StoreCredit, 0, 4)
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func (s *Store) RedeemStoreCredit(ctx context.Context, redemption domain.Redemption) (*domain.Payment, error) {
	var paymentID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var number string
		var customerID sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT r.receipt_number, r.customer_id, p.id
			FROM receipts r
			JOIN payments p ON p.receipt_id = r.id
			WHERE r.id = $1
		`, redemption.ReceiptID).Scan(&number, &customerID, &paymentID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: receipt %d", store.ErrNotFound, redemption.ReceiptID)
		}
		if err != nil {
			return err
		}
		if !customerID.Valid {
			return domain.ErrCustomerRequired
		}
		if customerID.Int64 != redemption.CustomerID {
			return fmt.Errorf("%w: receipt %s", domain.ErrCreditOwner, number)
		}
		return addPaymentLineTx(ctx, tx, paymentID, domain.PaymentLine{
			Method:      domain.MethodStoreCredit,
			Amount:      redemption.Amount,
			ProcessedBy: redemption.UsedBy,
			CreatedAt:   redemption.At,
		}, redemption.At)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPayment(ctx, paymentID)
}

// redeemTx consumes credit oldest first. Rows are locked before the balance
// check so two redemptions cannot both see the same balance. Callers insert
// the matching payment line in the same transaction.
func redeemTx(ctx context.Context, tx *sql.Tx, r domain.Redemption) ([]domain.StoreCreditUsage, error) {
	if !r.Amount.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	var owner sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT customer_id FROM receipts WHERE id = $1`, r.ReceiptID).Scan(&owner); err != nil {
		return nil, err
	}
	if !owner.Valid || owner.Int64 != r.CustomerID {
		return nil, domain.ErrCreditOwner
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT `+creditColumns+`
		FROM store_credits
		WHERE customer_id = $1 AND is_active = true AND remaining_balance > 0
			AND (expiry_date IS NULL OR expiry_date > $2)
		ORDER BY issued_date, id
		FOR UPDATE
	`, r.CustomerID, r.At)
	if err != nil {
		return nil, err
	}
	credits := make([]domain.StoreCredit, 0, 4)
	available := decimal.Zero
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		credits = append(credits, c)
		available = available.Add(c.RemainingBalance)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if r.Amount.GreaterThan(available) {
		return nil, fmt.Errorf("%w: available %s, requested %s", domain.ErrInsufficientCredit,
			ledger.FormatNaira(available), ledger.FormatNaira(r.Amount))
	}

	remaining := r.Amount
	usages := make([]domain.StoreCreditUsage, 0, 2)
	for _, credit := range credits {
		if !remaining.IsPositive() {
			break
		}
		used := decimal.Min(remaining, credit.RemainingBalance)
		balance := credit.RemainingBalance.Sub(used)
		if _, err := tx.ExecContext(ctx, `
			UPDATE store_credits SET remaining_balance = $2, is_active = $3 WHERE id = $1
		`, credit.ID, balance, balance.IsPositive()); err != nil {
			return nil, err
		}
		remaining = remaining.Sub(used)

		usage := domain.StoreCreditUsage{
			StoreCreditID: credit.ID,
			ReceiptID:     r.ReceiptID,
			AmountUsed:    used,
			UsedBy:        r.UsedBy,
			UsedDate:      r.At,
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO store_credit_usages (store_credit_id, receipt_id, amount_used, used_by, used_date)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, usage.StoreCreditID, usage.ReceiptID, usage.AmountUsed, usage.UsedBy, usage.UsedDate).Scan(&usage.ID)
		if err != nil {
			return nil, err
		}
		usages = append(usages, usage)
	}
	return usages, nil
}

func appendNote(notes string, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
