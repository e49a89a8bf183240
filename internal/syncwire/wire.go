// Package syncwire holds the JSON payloads exchanged between the local sync
// pipeline and the remote reporting API. Nothing here carries customer data:
// receipts reference no customer and sales name their product by attributes.
package syncwire

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TokenPath    = "/token/"
	ProductsPath = "/sync/products/"
	ReceiptsPath = "/sync/receipts/"
	StatusPath   = "/sync/status/"
)

type TokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Access string `json:"access"`
}

type Product struct {
	Barcode      string          `json:"barcode_number"`
	Brand        string          `json:"brand" binding:"required"`
	Category     string          `json:"category"`
	Size         string          `json:"size"`
	Color        string          `json:"color"`
	Design       string          `json:"design"`
	Quantity     int             `json:"quantity"`
	Location     string          `json:"location" binding:"required"`
	Shop         string          `json:"shop"`
	Price        decimal.Decimal `json:"price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Markup       decimal.Decimal `json:"markup"`
	MarkupType   string          `json:"markup_type"`
}

type ProductsRequest struct {
	Products []Product `json:"products" binding:"dive"`
}

type ProductsResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Total   int    `json:"total"`
}

type Sale struct {
	LocalSaleID     int64           `json:"local_sale_id" binding:"required,gt=0"`
	ProductBarcode  string          `json:"product_barcode"`
	ProductBrand    string          `json:"product_brand"`
	ProductCategory string          `json:"product_category"`
	ProductSize     string          `json:"product_size"`
	ProductColor    string          `json:"product_color"`
	ProductLocation string          `json:"product_location"`
	Quantity        int             `json:"quantity" binding:"gt=0"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	SaleDate        *time.Time      `json:"sale_date"`
}

type PaymentMethod struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

type Payment struct {
	LocalPaymentID     int64           `json:"local_payment_id" binding:"required,gt=0"`
	PaymentStatus      string          `json:"payment_status"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	PaymentDate        *time.Time      `json:"payment_date"`
	PaymentMethods     []PaymentMethod `json:"payment_methods"`
}

type Receipt struct {
	LocalReceiptID int64           `json:"local_receipt_id" binding:"required,gt=0"`
	ReceiptNumber  string          `json:"receipt_number" binding:"required"`
	Date           *time.Time      `json:"date"`
	DeliveryCost   decimal.Decimal `json:"delivery_cost"`
	Sales          []Sale          `json:"sales" binding:"dive"`
	Payment        *Payment        `json:"payment"`
}

type ReceiptsRequest struct {
	Receipts []Receipt `json:"receipts" binding:"dive"`
}

type ReceiptsResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Synced      int    `json:"synced"`
	NewSales    int    `json:"new_sales"`
	NewPayments int    `json:"new_payments"`
}

// ErrorResponse is the body of every non-2xx reply from the reporting API.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type SyncStatus struct {
	SyncType      string    `json:"sync_type"`
	LastSyncTime  time.Time `json:"last_sync_time"`
	SyncStatus    string    `json:"sync_status"`
	RecordsSynced int       `json:"records_synced"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Healthy       bool      `json:"healthy"`
}
