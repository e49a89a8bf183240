package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LocationAbuja = "ABUJA"
	LocationLagos = "LAGOS"
)

const (
	MarkupNone       = ""
	MarkupPercentage = "percentage"
	MarkupFixed      = "fixed"
)

// Document prefixes used with the per-period counters.
const (
	PrefixReceipt     = "RCPT"
	PrefixReturn      = "RET"
	PrefixStoreCredit = "SC"
	PrefixTransfer    = "TR"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPartial   PaymentStatus = "partial"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentLineStatus string

const (
	LinePending    PaymentLineStatus = "pending"
	LineProcessing PaymentLineStatus = "processing"
	LineCompleted  PaymentLineStatus = "completed"
	LineFailed     PaymentLineStatus = "failed"
	LineCancelled  PaymentLineStatus = "cancelled"
)

const (
	MethodCash               = "cash"
	MethodPOSMoniepoint      = "pos_moniepoint"
	MethodTransferTaj        = "transfer_taj"
	MethodTransferSterling   = "transfer_sterling"
	MethodTransferMoniepoint = "transfer_moniepoint"
	MethodCard               = "card"
	MethodMobileMoney        = "mobile_money"
	MethodBankDeposit        = "bank_deposit"
	MethodCheque             = "cheque"
	MethodStoreCredit        = "store_credit"
)

var PaymentMethods = []string{
	MethodCash, MethodPOSMoniepoint, MethodTransferTaj, MethodTransferSterling,
	MethodTransferMoniepoint, MethodCard, MethodMobileMoney, MethodBankDeposit,
	MethodCheque, MethodStoreCredit,
}

type ReturnStatus string

const (
	ReturnPending   ReturnStatus = "pending"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnCompleted ReturnStatus = "completed"
	ReturnCancelled ReturnStatus = "cancelled"
)

const (
	RefundCash        = "cash"
	RefundStoreCredit = "store_credit"
)

const (
	ReasonDefective      = "defective"
	ReasonWrongItem      = "wrong_item"
	ReasonWrongSize      = "wrong_size"
	ReasonChangedMind    = "changed_mind"
	ReasonNotAsDescribed = "not_as_described"
	ReasonOther          = "other"
)

const (
	ConditionNew       = "new"
	ConditionGood      = "good"
	ConditionFair      = "fair"
	ConditionDamaged   = "damaged"
	ConditionDefective = "defective"
)

type Product struct {
	ID           int64           `json:"id"`
	Brand        string          `json:"brand"`
	Category     string          `json:"category"`
	Size         string          `json:"size"`
	Color        string          `json:"color"`
	Design       string          `json:"design"`
	Price        decimal.Decimal `json:"price"`
	MarkupType   string          `json:"markup_type"`
	Markup       decimal.Decimal `json:"markup"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Quantity     int             `json:"quantity"`
	Shop         string          `json:"shop"`
	Location     string          `json:"location"`
	Barcode      string          `json:"barcode_number"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type Sale struct {
	ID             int64           `json:"id"`
	ReceiptID      int64           `json:"receipt_id"`
	PaymentID      int64           `json:"payment_id,omitempty"`
	ProductID      int64           `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	SaleDate       time.Time       `json:"sale_date"`
}

// SaleDetail pairs a sale with the product it sold.
type SaleDetail struct {
	Sale
	Product Product `json:"product"`
}

type Receipt struct {
	ID             int64           `json:"id"`
	ReceiptNumber  string          `json:"receipt_number"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	CreatedBy      string          `json:"created_by"`
	Date           time.Time       `json:"date"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DeliveryCost   decimal.Decimal `json:"delivery_cost"`
	Total          decimal.Decimal `json:"total"`
	Notes          string          `json:"notes,omitempty"`
}

type Payment struct {
	ID                 int64           `json:"id"`
	ReceiptID          int64           `json:"receipt_id"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	TotalPaid          decimal.Decimal `json:"total_paid"`
	BalanceDue         decimal.Decimal `json:"balance_due"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	Status             PaymentStatus   `json:"payment_status"`
	PaymentDate        time.Time       `json:"payment_date"`
	CompletedDate      *time.Time      `json:"completed_date,omitempty"`
	Lines              []PaymentLine   `json:"payment_methods"`
}

type PaymentLine struct {
	ID          int64             `json:"id"`
	PaymentID   int64             `json:"payment_id"`
	Method      string            `json:"method"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      PaymentLineStatus `json:"status"`
	Reference   string            `json:"reference,omitempty"`
	ProcessedBy string            `json:"processed_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ReceiptBundle is a receipt with everything recorded against it at checkout.
type ReceiptBundle struct {
	Receipt Receipt      `json:"receipt"`
	Sales   []SaleDetail `json:"sales"`
	Payment *Payment     `json:"payment"`
}

type Return struct {
	ID              int64           `json:"id"`
	ReturnNumber    string          `json:"return_number"`
	ReceiptID       int64           `json:"receipt_id"`
	CustomerID      *int64          `json:"customer_id,omitempty"`
	Reason          string          `json:"return_reason"`
	ReasonNotes     string          `json:"reason_notes,omitempty"`
	Status          ReturnStatus    `json:"status"`
	RefundType      string          `json:"refund_type,omitempty"`
	RefundMethod    string          `json:"refund_method,omitempty"`
	RefundReference string          `json:"refund_reference,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	RestockingFee   decimal.Decimal `json:"restocking_fee"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	CreatedBy       string          `json:"created_by"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	ApprovedDate    *time.Time      `json:"approved_date,omitempty"`
	ProcessedBy     string          `json:"processed_by,omitempty"`
	RefundedDate    *time.Time      `json:"refunded_date,omitempty"`
	ReturnDate      time.Time       `json:"return_date"`
	Notes           string          `json:"notes,omitempty"`
	Items           []ReturnItem    `json:"items"`
}

type ReturnItem struct {
	ID                 int64           `json:"id"`
	ReturnID           int64           `json:"return_id"`
	SaleID             int64           `json:"sale_id"`
	ProductID          int64           `json:"product_id"`
	QuantitySold       int             `json:"quantity_sold"`
	QuantityReturned   int             `json:"quantity_returned"`
	UnitRefund         decimal.Decimal `json:"unit_refund"`
	RefundAmount       decimal.Decimal `json:"refund_amount"`
	Condition          string          `json:"condition"`
	RestockToInventory bool            `json:"restock_to_inventory"`
	Restocked          bool            `json:"restocked"`
	RestockedDate      *time.Time      `json:"restocked_date,omitempty"`
	Notes              string          `json:"notes,omitempty"`
}

type StoreCredit struct {
	ID               int64           `json:"id"`
	CreditNumber     string          `json:"credit_number"`
	CustomerID       int64           `json:"customer_id"`
	ReturnID         *int64          `json:"return_id,omitempty"`
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	IsActive         bool            `json:"is_active"`
	IssuedBy         string          `json:"issued_by"`
	IssuedDate       time.Time       `json:"issued_date"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

// Redeemable reports whether the credit can still be spent at the given time.
func (c StoreCredit) Redeemable(at time.Time) bool {
	if !c.IsActive || !c.RemainingBalance.IsPositive() {
		return false
	}
	return c.ExpiryDate == nil || c.ExpiryDate.After(at)
}

type StoreCreditUsage struct {
	ID            int64           `json:"id"`
	StoreCreditID int64           `json:"store_credit_id"`
	ReceiptID     int64           `json:"receipt_id"`
	AmountUsed    decimal.Decimal `json:"amount_used"`
	UsedBy        string          `json:"used_by"`
	UsedDate      time.Time       `json:"used_date"`
}

type StockTransfer struct {
	ID                   int64     `json:"id"`
	Reference            string    `json:"transfer_reference"`
	ProductID            int64     `json:"product_id"`
	DestinationProductID int64     `json:"destination_product_id"`
	FromLocation         string    `json:"from_location"`
	ToLocation           string    `json:"to_location"`
	Quantity             int       `json:"quantity"`
	CreatedBy            string    `json:"created_by"`
	CreatedAt            time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductStats summarises stock per location for the dashboard.
type ProductStats struct {
	TotalProducts int                      `json:"total_products"`
	TotalUnits    int                      `json:"total_units"`
	StockValue    decimal.Decimal          `json:"stock_value"`
	OutOfStock    int                      `json:"out_of_stock"`
	ByLocation    map[string]LocationStats `json:"by_location"`
}

type LocationStats struct {
	Products   int             `json:"products"`
	Units      int             `json:"units"`
	StockValue decimal.Decimal `json:"stock_value"`
}
