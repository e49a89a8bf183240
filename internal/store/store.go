package store

import (
	"context"
	"errors"
	"time"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/query"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("concurrent update conflict")
)

// Repository is the local system of record. Every method that touches more
// than one row commits all of it or none of it.
type Repository interface {
	ListProducts(ctx context.Context, filter *query.Filter[domain.Product]) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID int64, delta int) (*domain.Product, error)
	TransferStock(ctx context.Context, productID int64, toLocation string, qty int, createdBy string, at time.Time) (*domain.StockTransfer, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)

	// NextSequence atomically increments and returns the counter for a
	// document type within a period.
	NextSequence(ctx context.Context, docType string, period string) (int64, error)

	CreateCheckout(ctx context.Context, draft domain.CheckoutDraft) (*domain.ReceiptBundle, error)
	GetReceipt(ctx context.Context, id int64) (*domain.ReceiptBundle, error)
	ListReceipts(ctx context.Context, filter *query.Filter[domain.ReceiptBundle]) ([]domain.ReceiptBundle, error)
	GetPayment(ctx context.Context, id int64) (*domain.Payment, error)
	AddPaymentLine(ctx context.Context, paymentID int64, line domain.PaymentLine, at time.Time) (*domain.Payment, error)
	UpdatePaymentLineStatus(ctx context.Context, lineID int64, status domain.PaymentLineStatus, at time.Time) (*domain.Payment, error)

	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	GetReturn(ctx context.Context, id int64) (*domain.Return, error)
	ListReturns(ctx context.Context, filter *query.Filter[domain.Return]) ([]domain.Return, error)
	TransitionReturn(ctx context.Context, id int64, to domain.ReturnStatus, actor string, note string, at time.Time) (*domain.Return, error)
	CompleteReturn(ctx context.Context, params domain.CompleteReturnParams) (*domain.CompleteReturnResult, error)
	RestockReturnItem(ctx context.Context, returnID int64, itemID int64, at time.Time) (*domain.Return, bool, error)

	ListStoreCredits(ctx context.Context, customerID int64) ([]domain.StoreCredit, error)
	GetStoreCreditByReturn(ctx context.Context, returnID int64) (*domain.StoreCredit, error)
	// RedeemStoreCredit records a store_credit payment line on the receipt's
	// payment. The receipt must belong to the redeeming customer.
	RedeemStoreCredit(ctx context.Context, redemption domain.Redemption) (*domain.Payment, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
