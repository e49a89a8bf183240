package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=md manager cashier accountant"`
}

type ProductCreateRequest struct {
	Brand      string          `json:"brand" validate:"required"`
	Category   string          `json:"category" validate:"required"`
	Size       string          `json:"size" validate:"required"`
	Color      string          `json:"color" validate:"required"`
	Design     string          `json:"design"`
	Price      decimal.Decimal `json:"price"`
	MarkupType string          `json:"markup_type" validate:"omitempty,oneof=percentage fixed"`
	Markup     decimal.Decimal `json:"markup"`
	Quantity   int             `json:"quantity" validate:"gte=0"`
	Shop       string          `json:"shop"`
	Location   string          `json:"location" validate:"required,oneof=ABUJA LAGOS"`
	Barcode    string          `json:"barcode_number" validate:"omitempty,numeric,len=13"`
}

type ProductUpdateRequest struct {
	Brand      *string          `json:"brand,omitempty"`
	Category   *string          `json:"category,omitempty"`
	Size       *string          `json:"size,omitempty"`
	Color      *string          `json:"color,omitempty"`
	Design     *string          `json:"design,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	MarkupType *string          `json:"markup_type,omitempty" validate:"omitempty,oneof=percentage fixed"`
	Markup     *decimal.Decimal `json:"markup,omitempty"`
	Shop       *string          `json:"shop,omitempty"`
}

type ProductQuery struct {
	Location string
	Category string
	Brand    string
	InStock  bool
	Search   string
}

type StockAdjustRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,oneof=restock reorder correction damage"`
}

type TransferRequest struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	ToLocation string `json:"to_location" validate:"required,oneof=ABUJA LAGOS"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
}

type CheckoutItem struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	Quantity       int             `json:"quantity" validate:"required,gt=0"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type PaymentLineRequest struct {
	Method    string            `json:"method" validate:"required"`
	Amount    decimal.Decimal   `json:"amount"`
	Status    PaymentLineStatus `json:"status" validate:"omitempty,oneof=pending processing completed failed cancelled"`
	Reference string            `json:"reference"`
}

type CheckoutRequest struct {
	CustomerID         *int64               `json:"customer_id,omitempty"`
	Items              []CheckoutItem       `json:"items" validate:"required,min=1,dive"`
	DiscountPercentage decimal.Decimal      `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal      `json:"discount_amount"`
	DeliveryCost       decimal.Decimal      `json:"delivery_cost"`
	Payments           []PaymentLineRequest `json:"payments" validate:"dive"`
	Notes              string               `json:"notes"`
}

// CheckoutDraft is a validated checkout handed to the repository, which
// prices it and commits it as one unit.
type CheckoutDraft struct {
	CustomerID         *int64
	CreatedBy          string
	Date               time.Time
	Items              []CheckoutItem
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	DeliveryCost       decimal.Decimal
	PaymentLines       []PaymentLine
	Notes              string
}

type PaymentLineStatusRequest struct {
	Status PaymentLineStatus `json:"status" validate:"required,oneof=pending processing completed failed cancelled"`
}

type ReceiptQuery struct {
	From          *time.Time
	To            *time.Time
	CustomerID    *int64
	PaymentStatus PaymentStatus
	Limit         int
}

type ReturnItemRequest struct {
	SaleID    int64  `json:"sale_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Condition string `json:"condition" validate:"omitempty,oneof=new good fair damaged defective"`
	Restock   bool   `json:"restock_to_inventory"`
	Notes     string `json:"notes"`
}

type CreateReturnRequest struct {
	ReceiptID     int64               `json:"receipt_id" validate:"required,gt=0"`
	CustomerID    *int64              `json:"customer_id,omitempty"`
	Reason        string              `json:"return_reason" validate:"required,oneof=defective wrong_item wrong_size changed_mind not_as_described other"`
	ReasonNotes   string              `json:"reason_notes"`
	RestockingFee decimal.Decimal     `json:"restocking_fee"`
	Items         []ReturnItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes         string              `json:"notes"`
}

type ReturnQuery struct {
	Status     ReturnStatus
	ReceiptID  int64
	CustomerID *int64
	Limit      int
}

type ReturnDecisionRequest struct {
	Reason string `json:"reason"`
}

type CompleteReturnRequest struct {
	RefundType      string `json:"refund_type" validate:"required,oneof=cash store_credit"`
	RefundMethod    string `json:"refund_method"`
	RefundReference string `json:"refund_reference"`
}

// CompleteReturnParams is the repository-side form of a completion.
type CompleteReturnParams struct {
	ReturnID        int64
	RefundType      string
	RefundMethod    string
	RefundReference string
	ProcessedBy     string
	At              time.Time
	CreditExpiry    *time.Time
}

type CompleteReturnResult struct {
	Return           Return       `json:"return"`
	StoreCredit      *StoreCredit `json:"store_credit,omitempty"`
	CreditCreated    bool         `json:"credit_created"`
	AlreadyCompleted bool         `json:"already_completed"`
	RestockedItems   int          `json:"restocked_items"`
}

type RedeemRequest struct {
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	ReceiptID  int64           `json:"receipt_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
}

// Redemption asks the repository to pay part of a receipt with the
// customer's store credit.
type Redemption struct {
	CustomerID int64
	ReceiptID  int64
	Amount     decimal.Decimal
	UsedBy     string
	At         time.Time
}

type RedeemResponse struct {
	Payment   Payment         `json:"payment"`
	Available decimal.Decimal `json:"available"`
}
