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

func (s *Store) CreateCheckout(ctx context.Context, draft domain.CheckoutDraft) (*domain.ReceiptBundle, error) {
	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	var receiptID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if draft.CustomerID != nil {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, *draft.CustomerID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: customer %d", store.ErrNotFound, *draft.CustomerID)
			}
		}

		required := make(map[int64]int, len(draft.Items))
		for _, item := range draft.Items {
			if item.Quantity < 1 {
				return store.ErrInvalidTransaction
			}
			required[item.ProductID] += item.Quantity
		}
		// Lock in id order so concurrent checkouts cannot deadlock.
		products := make(map[int64]domain.Product, len(required))
		for _, productID := range sortedKeys(required) {
			product, err := getProduct(ctx, tx, productID, true)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: product %d", store.ErrNotFound, productID)
				}
				return err
			}
			if product.Quantity < required[productID] {
				return fmt.Errorf("%w: product %d has %d left", store.ErrInsufficientStock, product.ID, product.Quantity)
			}
			products[productID] = *product
		}

		sales := make([]domain.Sale, 0, len(draft.Items))
		lineTotals := make([]decimal.Decimal, 0, len(draft.Items))
		for _, item := range draft.Items {
			product := products[item.ProductID]
			gross := ledger.LineSubtotal(product.SellingPrice, item.Quantity)
			sale := domain.Sale{
				ProductID:      product.ID,
				Quantity:       item.Quantity,
				UnitPrice:      product.SellingPrice,
				DiscountAmount: ledger.ClampDiscount(item.DiscountAmount, gross),
				TotalPrice:     ledger.SaleLineTotal(product.SellingPrice, item.Quantity, item.DiscountAmount),
				SaleDate:       draft.Date,
			}
			sales = append(sales, sale)
			lineTotals = append(lineTotals, sale.TotalPrice)
		}

		subtotal := ledger.Money(ledger.Sum(lineTotals...))
		billDiscount := ledger.BillDiscount(subtotal, draft.DiscountPercentage, draft.DiscountAmount)
		delivery := draft.DeliveryCost
		if delivery.IsNegative() {
			delivery = decimal.Zero
		}
		total := ledger.ReceiptTotal(lineTotals, billDiscount, delivery)

		creditNeeded := decimal.Zero
		for _, line := range draft.PaymentLines {
			if line.Amount.IsNegative() {
				return store.ErrInvalidTransaction
			}
			if line.Method == domain.MethodStoreCredit {
				creditNeeded = creditNeeded.Add(line.Amount)
			}
		}
		if creditNeeded.IsPositive() {
			if draft.CustomerID == nil {
				return domain.ErrCustomerRequired
			}
			if creditNeeded.GreaterThan(total) {
				return fmt.Errorf("%w: store credit exceeds receipt total", store.ErrInvalidTransaction)
			}
		}

		for productID, qty := range required {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products SET quantity = quantity - $2, updated_at = $3 WHERE id = $1
			`, productID, qty, draft.Date); err != nil {
				return err
			}
		}

		number, err := nextNumberTx(ctx, tx, domain.PrefixReceipt, draft.Date)
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO receipts (
				receipt_number, customer_id, created_by, date, subtotal, discount_amount, delivery_cost, total, notes
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING id
		`, number, nullInt64(draft.CustomerID), draft.CreatedBy, draft.Date, subtotal, billDiscount, delivery, total, draft.Notes).Scan(&receiptID)
		if err != nil {
			return err
		}

		payment := domain.Payment{
			ReceiptID:          receiptID,
			TotalAmount:        total,
			DiscountPercentage: draft.DiscountPercentage,
			DiscountAmount:     billDiscount,
			Status:             domain.PaymentPending,
			PaymentDate:        draft.Date,
		}
		for _, line := range draft.PaymentLines {
			if line.Status == "" || line.Method == domain.MethodStoreCredit {
				line.Status = domain.LineCompleted
			}
			if line.CreatedAt.IsZero() {
				line.CreatedAt = draft.Date
			}
			payment.Lines = append(payment.Lines, line)
		}
		ledger.ApplyPaymentState(&payment, draft.Date)

		err = tx.QueryRowContext(ctx, `
			INSERT INTO payments (
				receipt_id, total_amount, total_paid, balance_due, discount_percentage, discount_amount,
				payment_status, payment_date, completed_date
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING id
		`, receiptID, payment.TotalAmount, payment.TotalPaid, payment.BalanceDue, payment.DiscountPercentage,
			payment.DiscountAmount, payment.Status, payment.PaymentDate, nullTime(payment.CompletedDate)).Scan(&payment.ID)
		if err != nil {
			return err
		}
		for _, line := range payment.Lines {
			if err := insertPaymentLine(ctx, tx, payment.ID, line); err != nil {
				return err
			}
		}

		for _, sale := range sales {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sales (receipt_id, payment_id, product_id, quantity, unit_price, discount_amount, total_price, sale_date)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, receiptID, payment.ID, sale.ProductID, sale.Quantity, sale.UnitPrice, sale.DiscountAmount, sale.TotalPrice, sale.SaleDate)
			if err != nil {
				return err
			}
		}

		if creditNeeded.IsPositive() {
			_, err := redeemTx(ctx, tx, domain.Redemption{
				CustomerID: *draft.CustomerID,
				ReceiptID:  receiptID,
				Amount:     creditNeeded,
				UsedBy:     draft.CreatedBy,
				At:         draft.Date,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetReceipt(ctx, receiptID)
}

func insertPaymentLine(ctx context.Context, tx *sql.Tx, paymentID int64, line domain.PaymentLine) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payment_lines (payment_id, method, amount, status, reference, processed_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, paymentID, line.Method, line.Amount, line.Status, line.Reference, line.ProcessedBy, line.CreatedAt)
	return err
}

func (s *Store) GetReceipt(ctx context.Context, id int64) (*domain.ReceiptBundle, error) {
	return loadBundle(ctx, s.db, id)
}

func loadBundle(ctx context.Context, q queryer, id int64) (*domain.ReceiptBundle, error) {
	var r domain.Receipt
	var customerID sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT id, receipt_number, customer_id, created_by, date, subtotal, discount_amount, delivery_cost, total, notes
		FROM receipts
		WHERE id = $1
	`, id).Scan(&r.ID, &r.ReceiptNumber, &customerID, &r.CreatedBy, &r.Date, &r.Subtotal, &r.DiscountAmount,
		&r.DeliveryCost, &r.Total, &r.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	r.CustomerID = int64Ptr(customerID)
	r.Date = r.Date.UTC()

	bundle := &domain.ReceiptBundle{Receipt: r, Sales: make([]domain.SaleDetail, 0, 4)}
	rows, err := q.QueryContext(ctx, `
		SELECT s.id, s.receipt_id, COALESCE(s.payment_id, 0), s.product_id, s.quantity, s.unit_price,
			s.discount_amount, s.total_price, s.sale_date, `+productColumns+`
		FROM sales s
		JOIN products p ON p.id = s.product_id
		WHERE s.receipt_id = $1
		ORDER BY s.id
	`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var d domain.SaleDetail
		var barcode sql.NullString
		if err := rows.Scan(&d.ID, &d.ReceiptID, &d.PaymentID, &d.ProductID, &d.Quantity, &d.UnitPrice,
			&d.DiscountAmount, &d.TotalPrice, &d.SaleDate,
			&d.Product.ID, &d.Product.Brand, &d.Product.Category, &d.Product.Size, &d.Product.Color, &d.Product.Design,
			&d.Product.Price, &d.Product.MarkupType, &d.Product.Markup, &d.Product.SellingPrice, &d.Product.Quantity,
			&d.Product.Shop, &d.Product.Location, &barcode, &d.Product.CreatedAt, &d.Product.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		d.Product.Barcode = barcode.String
		d.SaleDate = d.SaleDate.UTC()
		bundle.Sales = append(bundle.Sales, d)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	var paymentID int64
	err = q.QueryRowContext(ctx, `SELECT id FROM payments WHERE receipt_id = $1`, id).Scan(&paymentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		payment, err := loadPayment(ctx, q, paymentID, false)
		if err != nil {
			return nil, err
		}
		bundle.Payment = payment
	}
	return bundle, nil
}

func (s *Store) ListReceipts(ctx context.Context, filter *query.Filter[domain.ReceiptBundle]) ([]domain.ReceiptBundle, error) {
	where, args := filter.SQL(1)
	stmt := `
		SELECT r.id
		FROM receipts r
		LEFT JOIN payments pay ON pay.receipt_id = r.id
		WHERE ` + where + `
		ORDER BY r.date DESC, r.id DESC`
	if limit := filter.LimitValue(); limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}

	ids, err := collectIDs(ctx, s.db, stmt, args...)
	if err != nil {
		return nil, err
	}
	bundles := make([]domain.ReceiptBundle, 0, len(ids))
	for _, id := range ids {
		bundle, err := loadBundle(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, *bundle)
	}
	return bundles, nil
}

func collectIDs(ctx context.Context, q queryer, stmt string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0, 32)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	return loadPayment(ctx, s.db, id, false)
}

func loadPayment(ctx context.Context, q queryer, id int64, forUpdate bool) (*domain.Payment, error) {
	stmt := `
		SELECT id, receipt_id, total_amount, total_paid, balance_due, discount_percentage, discount_amount,
			payment_status, payment_date, completed_date
		FROM payments
		WHERE id = $1`
	if forUpdate {
		stmt += ` FOR UPDATE`
	}
	var p domain.Payment
	var completed sql.NullTime
	err := q.QueryRowContext(ctx, stmt, id).Scan(&p.ID, &p.ReceiptID, &p.TotalAmount, &p.TotalPaid, &p.BalanceDue,
		&p.DiscountPercentage, &p.DiscountAmount, &p.Status, &p.PaymentDate, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CompletedDate = timePtr(completed)
	p.PaymentDate = p.PaymentDate.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT id, payment_id, method, amount, status, reference, processed_by, created_at
		FROM payment_lines
		WHERE payment_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line domain.PaymentLine
		if err := rows.Scan(&line.ID, &line.PaymentID, &line.Method, &line.Amount, &line.Status,
			&line.Reference, &line.ProcessedBy, &line.CreatedAt); err != nil {
			return nil, err
		}
		line.CreatedAt = line.CreatedAt.UTC()
		p.Lines = append(p.Lines, line)
	}
	return &p, rows.Err()
}

func savePaymentState(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET total_paid = $2, balance_due = $3, payment_status = $4, completed_date = $5
		WHERE id = $1
	`, p.ID, p.TotalPaid, p.BalanceDue, p.Status, nullTime(p.CompletedDate))
	return err
}

func (s *Store) AddPaymentLine(ctx context.Context, paymentID int64, line domain.PaymentLine, at time.Time) (*domain.Payment, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return addPaymentLineTx(ctx, tx, paymentID, line, at)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPayment(ctx, paymentID)
}

func addPaymentLineTx(ctx context.Context, tx *sql.Tx, paymentID int64, line domain.PaymentLine, at time.Time) error {
	payment, err := loadPayment(ctx, tx, paymentID, true)
	if err != nil {
		return err
	}
	if payment.Status == domain.PaymentCompleted {
		return fmt.Errorf("%w: payment already completed", store.ErrInvalidTransaction)
	}
	if !line.Amount.IsPositive() {
		return store.ErrInvalidTransaction
	}

	if line.Method == domain.MethodStoreCredit {
		var customerID sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT customer_id FROM receipts WHERE id = $1`, payment.ReceiptID).Scan(&customerID); err != nil {
			return err
		}
		if !customerID.Valid {
			return domain.ErrCustomerRequired
		}
		if line.Amount.GreaterThan(payment.BalanceDue) {
			return fmt.Errorf("%w: store credit exceeds balance due", store.ErrInvalidTransaction)
		}
		if _, err := redeemTx(ctx, tx, domain.Redemption{
			CustomerID: customerID.Int64,
			ReceiptID:  payment.ReceiptID,
			Amount:     line.Amount,
			UsedBy:     line.ProcessedBy,
			At:         at,
		}); err != nil {
			return err
		}
		line.Status = domain.LineCompleted
	}

	if line.Status == "" {
		line.Status = domain.LineCompleted
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = at
	}
	if err := insertPaymentLine(ctx, tx, payment.ID, line); err != nil {
		return err
	}
	payment.Lines = append(payment.Lines, line)
	ledger.ApplyPaymentState(payment, at)
	return savePaymentState(ctx, tx, payment)
}

func (s *Store) UpdatePaymentLineStatus(ctx context.Context, lineID int64, status domain.PaymentLineStatus, at time.Time) (*domain.Payment, error) {
	var paymentID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var method string
		err := tx.QueryRowContext(ctx, `SELECT payment_id, method FROM payment_lines WHERE id = $1 FOR UPDATE`, lineID).Scan(&paymentID, &method)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if method == domain.MethodStoreCredit {
			return fmt.Errorf("%w: store credit lines are final", store.ErrInvalidTransaction)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE payment_lines SET status = $2 WHERE id = $1`, lineID, status); err != nil {
			return err
		}
		payment, err := loadPayment(ctx, tx, paymentID, true)
		if err != nil {
			return err
		}
		ledger.ApplyPaymentState(payment, at)
		return savePaymentState(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPayment(ctx, paymentID)
}
