package memory

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/query"
	"mystore/backend/internal/store"
	"mystore/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	ids              map[string]int64
	counters         map[string]int64
	products         map[int64]domain.Product
	customers        map[int64]domain.Customer
	receipts         map[int64]domain.Receipt
	sales            map[int64]domain.Sale
	salesByReceipt   map[int64][]int64
	payments         map[int64]domain.Payment
	paymentByReceipt map[int64]int64
	paymentByLine    map[int64]int64
	returns          map[int64]domain.Return
	credits          map[int64]domain.StoreCredit
	creditUsages     []domain.StoreCreditUsage
	transfers        []domain.StockTransfer
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		ids:              make(map[string]int64),
		counters:         make(map[string]int64),
		products:         make(map[int64]domain.Product),
		customers:        make(map[int64]domain.Customer),
		receipts:         make(map[int64]domain.Receipt),
		sales:            make(map[int64]domain.Sale),
		salesByReceipt:   make(map[int64][]int64),
		payments:         make(map[int64]domain.Payment),
		paymentByReceipt: make(map[int64]int64),
		paymentByLine:    make(map[int64]int64),
		returns:          make(map[int64]domain.Return),
		credits:          make(map[int64]domain.StoreCredit),
		creditUsages:     make([]domain.StoreCreditUsage, 0, 32),
		transfers:        make([]domain.StockTransfer, 0, 16),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_MD_PASSWORD and SEED_CASHIER_PASSWORD; without them the accounts get
// random passwords nobody knows, so the demo store is never open by default.
func seedUsers() map[string]domain.UserAccount {
	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		envKey   string
		role     string
	}{
		{"md", "SEED_MD_PASSWORD", "md"},
		{"cashier", "SEED_CASHIER_PASSWORD", "cashier"},
	} {
		password := os.Getenv(u.envKey)
		if password == "" {
			log.Printf("[memory-store] WARNING: %s not set, %s account is locked", u.envKey, u.username)
			password = xid.New("locked")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{Brand: "Zara", Category: "Shirt", Size: "M", Color: "Navy", Design: "Plain", Price: decimal.NewFromInt(9000), MarkupType: domain.MarkupPercentage, Markup: decimal.NewFromInt(50), Quantity: 12, Shop: "Wuse", Location: domain.LocationAbuja},
		{Brand: "Zara", Category: "Shirt", Size: "L", Color: "White", Design: "Striped", Price: decimal.NewFromInt(9500), MarkupType: domain.MarkupPercentage, Markup: decimal.NewFromInt(50), Quantity: 8, Shop: "Wuse", Location: domain.LocationAbuja},
		{Brand: "Levi's", Category: "Jeans", Size: "32", Color: "Blue", Design: "Slim", Price: decimal.NewFromInt(18000), MarkupType: domain.MarkupFixed, Markup: decimal.NewFromInt(7000), Quantity: 10, Shop: "Lekki", Location: domain.LocationLagos},
		{Brand: "Adire House", Category: "Kaftan", Size: "XL", Color: "Indigo", Design: "Adire", Price: decimal.NewFromInt(22000), MarkupType: domain.MarkupPercentage, Markup: decimal.NewFromInt(40), Quantity: 5, Shop: "Lekki", Location: domain.LocationLagos},
		{Brand: "Nike", Category: "Sneakers", Size: "43", Color: "Black", Design: "Air Max", Price: decimal.NewFromInt(45000), MarkupType: domain.MarkupFixed, Markup: decimal.NewFromInt(15000), Quantity: 6, Shop: "Wuse", Location: domain.LocationAbuja},
		{Brand: "Ankara Co", Category: "Gown", Size: "M", Color: "Orange", Design: "Wax Print", Price: decimal.NewFromInt(16000), Quantity: 7, Shop: "Lekki", Location: domain.LocationLagos},
	} {
		p.SellingPrice = ledger.SellingPrice(p.Price, p.MarkupType, p.Markup)
		p.CreatedAt = now
		p.UpdatedAt = now
		s.insertProductLocked(p)
	}
	return s
}

func (s *Store) nextIDLocked(kind string) int64 {
	s.ids[kind]++
	return s.ids[kind]
}

func (s *Store) NextSequence(_ context.Context, docType string, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSequenceLocked(docType, period), nil
}

func (s *Store) nextSequenceLocked(docType string, period string) int64 {
	key := docType + "|" + period
	s.counters[key]++
	return s.counters[key]
}

func (s *Store) nextNumberLocked(prefix string, at time.Time) string {
	return ledger.FormatDocumentNumber(prefix, s.nextSequenceLocked(prefix, ledger.Period(at)), at)
}

func (s *Store) ListProducts(_ context.Context, filter *query.Filter[domain.Product]) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmp.Compare(a.Brand, b.Brand); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return filter.Apply(products), nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Barcode != "" {
		for _, existing := range s.products {
			if existing.Barcode == product.Barcode {
				return nil, fmt.Errorf("%w: barcode %s already assigned", store.ErrInvalidTransaction, product.Barcode)
			}
		}
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	created := s.insertProductLocked(product)
	return &created, nil
}

func (s *Store) insertProductLocked(product domain.Product) domain.Product {
	product.ID = s.nextIDLocked("product")
	if product.Barcode == "" {
		product.Barcode = store.GenerateBarcode(product.ID)
	}
	s.products[product.ID] = product
	return product
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Stock, location and barcode only move through their own operations.
	product.Quantity = existing.Quantity
	product.Location = existing.Location
	product.Barcode = existing.Barcode
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) AdjustStock(_ context.Context, productID int64, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Quantity+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Quantity += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	return &product, nil
}

func (s *Store) TransferStock(_ context.Context, productID int64, toLocation string, qty int, createdBy string, at time.Time) (*domain.StockTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if qty < 1 || source.Location == toLocation {
		return nil, store.ErrInvalidTransaction
	}
	if source.Quantity < qty {
		return nil, store.ErrInsufficientStock
	}

	var destination *domain.Product
	for _, candidate := range s.products {
		if candidate.ID != source.ID && candidate.Location == toLocation && sameVariant(candidate, source) {
			found := candidate
			destination = &found
			break
		}
	}
	if destination == nil {
		twin := source
		twin.Barcode = ""
		twin.Quantity = 0
		twin.Location = toLocation
		twin.CreatedAt = at
		created := s.insertProductLocked(twin)
		destination = &created
	}

	source.Quantity -= qty
	source.UpdatedAt = at
	destination.Quantity += qty
	destination.UpdatedAt = at
	s.products[source.ID] = source
	s.products[destination.ID] = *destination

	transfer := domain.StockTransfer{
		ID:                   s.nextIDLocked("transfer"),
		Reference:            ledger.TransferReference(source.Location, toLocation, s.nextSequenceLocked(domain.PrefixTransfer, ledger.Period(at)), at),
		ProductID:            source.ID,
		DestinationProductID: destination.ID,
		FromLocation:         source.Location,
		ToLocation:           toLocation,
		Quantity:             qty,
		CreatedBy:            createdBy,
		CreatedAt:            at,
	}
	s.transfers = append(s.transfers, transfer)
	return &transfer, nil
}

func sameVariant(a domain.Product, b domain.Product) bool {
	return strings.EqualFold(a.Brand, b.Brand) &&
		strings.EqualFold(a.Category, b.Category) &&
		strings.EqualFold(a.Size, b.Size) &&
		strings.EqualFold(a.Color, b.Color) &&
		strings.EqualFold(a.Design, b.Design) &&
		strings.EqualFold(a.Shop, b.Shop)
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	customer.ID = s.nextIDLocked("customer")
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmp.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func clonePayment(src domain.Payment) domain.Payment {
	dst := src
	dst.Lines = append([]domain.PaymentLine(nil), src.Lines...)
	if src.CompletedDate != nil {
		completed := *src.CompletedDate
		dst.CompletedDate = &completed
	}
	return dst
}

func cloneReturn(src domain.Return) domain.Return {
	dst := src
	dst.Items = append([]domain.ReturnItem(nil), src.Items...)
	return dst
}
