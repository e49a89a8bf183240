package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/query"
	"mystore/backend/internal/store"
	"mystore/backend/internal/xid"
)

//go:embed schema.sql
var schema string

const maxTxAttempts = 3

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates any missing tables. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// withTx runs fn in a serializable transaction, retrying serialization
// failures before reporting store.ErrConflict.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		lastErr = s.runTx(ctx, fn)
		if !isSerializationFailure(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: %v", store.ErrConflict, lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) NextSequence(ctx context.Context, docType string, period string) (int64, error) {
	var seq int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		seq, err = nextSequenceTx(ctx, tx, docType, period)
		return err
	})
	return seq, err
}

// legacyNumberColumns maps document types to the table holding previously
// issued numbers, used to seed a counter the first time a period is seen.
var legacyNumberColumns = map[string][2]string{
	domain.PrefixReceipt:     {"receipts", "receipt_number"},
	domain.PrefixReturn:      {"returns", "return_number"},
	domain.PrefixStoreCredit: {"store_credits", "credit_number"},
}

func nextSequenceTx(ctx context.Context, tx *sql.Tx, docType string, period string) (int64, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text || '|' || $2::text))`, docType, period); err != nil {
		return 0, err
	}

	var seq int64
	err := tx.QueryRowContext(ctx, `
		UPDATE document_counters
		SET last_value = last_value + 1
		WHERE doc_type = $1 AND period = $2
		RETURNING last_value
	`, docType, period).Scan(&seq)
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	seed, err := legacySequence(ctx, tx, docType, period)
	if err != nil {
		return 0, err
	}
	seq = seed + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO document_counters (doc_type, period, last_value)
		VALUES ($1,$2,$3)
	`, docType, period, seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func legacySequence(ctx context.Context, tx *sql.Tx, docType string, period string) (int64, error) {
	target, ok := legacyNumberColumns[docType]
	if !ok {
		return 0, nil
	}
	at, err := time.Parse("2006-01", period)
	if err != nil {
		return 0, nil
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE $1`, target[1], target[0], target[1]),
		docType+"%"+ledger.PeriodSuffix(at))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var highest int64
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return 0, err
		}
		highest = max(highest, ledger.ParseDocumentSequence(docType, number))
	}
	return highest, rows.Err()
}

func nextNumberTx(ctx context.Context, tx *sql.Tx, prefix string, at time.Time) (string, error) {
	seq, err := nextSequenceTx(ctx, tx, prefix, ledger.Period(at))
	if err != nil {
		return "", err
	}
	return ledger.FormatDocumentNumber(prefix, seq, at), nil
}

const productColumns = `p.id, p.brand, p.category, p.size, p.color, p.design, p.price, p.markup_type, p.markup,
	p.selling_price, p.quantity, p.shop, p.location, p.barcode_number, p.created_at, p.updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var barcode sql.NullString
	err := row.Scan(&p.ID, &p.Brand, &p.Category, &p.Size, &p.Color, &p.Design, &p.Price, &p.MarkupType, &p.Markup,
		&p.SellingPrice, &p.Quantity, &p.Shop, &p.Location, &barcode, &p.CreatedAt, &p.UpdatedAt)
	p.Barcode = barcode.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, filter *query.Filter[domain.Product]) ([]domain.Product, error) {
	where, args := filter.SQL(1)
	stmt := `SELECT ` + productColumns + ` FROM products p WHERE ` + where + ` ORDER BY p.brand, p.id`
	if limit := filter.LimitValue(); limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, false)
}

func getProduct(ctx context.Context, q queryer, id int64, forUpdate bool) (*domain.Product, error) {
	stmt := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`
	if forUpdate {
		stmt += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRowContext(ctx, stmt, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	var created *domain.Product
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = insertProduct(ctx, tx, product)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: barcode %s already assigned", store.ErrInvalidTransaction, product.Barcode)
		}
		return nil, err
	}
	return created, nil
}

func insertProduct(ctx context.Context, tx *sql.Tx, product domain.Product) (*domain.Product, error) {
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO products (
			brand, category, size, color, design, price, markup_type, markup,
			selling_price, quantity, shop, location, barcode_number, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
		RETURNING id
	`, product.Brand, product.Category, product.Size, product.Color, product.Design, product.Price,
		product.MarkupType, product.Markup, product.SellingPrice, product.Quantity, product.Shop,
		product.Location, nullIfEmpty(product.Barcode), product.CreatedAt).Scan(&product.ID)
	if err != nil {
		return nil, err
	}
	if product.Barcode == "" {
		product.Barcode = store.GenerateBarcode(product.ID)
		if _, err := tx.ExecContext(ctx, `UPDATE products SET barcode_number = $2 WHERE id = $1`, product.ID, product.Barcode); err != nil {
			return nil, err
		}
	}
	product.UpdatedAt = product.CreatedAt
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET brand = $2, category = $3, size = $4, color = $5, design = $6, price = $7,
			markup_type = $8, markup = $9, selling_price = $10, shop = $11, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Brand, product.Category, product.Size, product.Color, product.Design, product.Price,
		product.MarkupType, product.Markup, product.SellingPrice, product.Shop)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) AdjustStock(ctx context.Context, productID int64, delta int) (*domain.Product, error) {
	var updated *domain.Product
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		product, err := getProduct(ctx, tx, productID, true)
		if err != nil {
			return err
		}
		if product.Quantity+delta < 0 {
			return store.ErrInsufficientStock
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity + $2, updated_at = now() WHERE id = $1
		`, productID, delta); err != nil {
			return err
		}
		product.Quantity += delta
		updated = product
		return nil
	})
	return updated, err
}

func (s *Store) TransferStock(ctx context.Context, productID int64, toLocation string, qty int, createdBy string, at time.Time) (*domain.StockTransfer, error) {
	var transfer domain.StockTransfer
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		source, err := getProduct(ctx, tx, productID, true)
		if err != nil {
			return err
		}
		if qty < 1 || source.Location == toLocation {
			return store.ErrInvalidTransaction
		}
		if source.Quantity < qty {
			return store.ErrInsufficientStock
		}

		var destinationID int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM products
			WHERE location = $1 AND id <> $2
				AND lower(brand) = lower($3) AND lower(category) = lower($4) AND lower(size) = lower($5)
				AND lower(color) = lower($6) AND lower(design) = lower($7) AND lower(shop) = lower($8)
			ORDER BY id
			LIMIT 1
			FOR UPDATE
		`, toLocation, source.ID, source.Brand, source.Category, source.Size, source.Color, source.Design, source.Shop).Scan(&destinationID)
		if errors.Is(err, sql.ErrNoRows) {
			twin := *source
			twin.Barcode = ""
			twin.Quantity = 0
			twin.Location = toLocation
			twin.CreatedAt = at
			created, err := insertProduct(ctx, tx, twin)
			if err != nil {
				return err
			}
			destinationID = created.ID
		} else if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE products SET quantity = quantity - $2, updated_at = $3 WHERE id = $1`, source.ID, qty, at); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET quantity = quantity + $2, updated_at = $3 WHERE id = $1`, destinationID, qty, at); err != nil {
			return err
		}

		seq, err := nextSequenceTx(ctx, tx, domain.PrefixTransfer, ledger.Period(at))
		if err != nil {
			return err
		}
		transfer = domain.StockTransfer{
			Reference:            ledger.TransferReference(source.Location, toLocation, seq, at),
			ProductID:            source.ID,
			DestinationProductID: destinationID,
			FromLocation:         source.Location,
			ToLocation:           toLocation,
			Quantity:             qty,
			CreatedBy:            createdBy,
			CreatedAt:            at,
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO stock_transfers (
				transfer_reference, product_id, destination_product_id, from_location, to_location, quantity, created_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id
		`, transfer.Reference, transfer.ProductID, transfer.DestinationProductID, transfer.FromLocation,
			transfer.ToLocation, transfer.Quantity, transfer.CreatedBy, transfer.CreatedAt).Scan(&transfer.ID)
	})
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, customer.Name, customer.Phone, customer.Email, customer.Address, customer.CreatedAt).Scan(&customer.ID)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, created_at FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, created_at
		FROM customers
		ORDER BY lower(name), id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

func int64Ptr(val sql.NullInt64) *int64 {
	if !val.Valid {
		return nil
	}
	v := val.Int64
	return &v
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
