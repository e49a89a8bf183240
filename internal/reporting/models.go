package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/syncwire"
)

const (
	SyncTypeProducts = "products"
	SyncTypeReceipts = "receipts"

	SyncTypeInventory           = syncwire.KindInventory
	SyncTypeSalesSummary        = syncwire.KindSalesDaily
	SyncTypeTopProducts         = syncwire.KindTopProducts
	SyncTypeLowStockAlerts      = syncwire.KindStockAlerts
	SyncTypeCategoryPerformance = syncwire.KindCategoryPerformance
	SyncTypeShopPerformance     = syncwire.KindShopPerformance

	SyncSuccess = "success"
	SyncFailed  = "failed"
)

// Product is the remote copy of a local product. Remote ids never match
// local ones; barcode or the descriptive attributes identify it.
type Product struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Barcode      string          `gorm:"column:barcode_number;type:varchar(20);index" json:"barcode_number"`
	Brand        string          `gorm:"type:varchar(100);index:idx_product_attrs" json:"brand"`
	Category     string          `gorm:"type:varchar(100);index:idx_product_attrs" json:"category"`
	Size         string          `gorm:"type:varchar(20);index:idx_product_attrs" json:"size"`
	Color        string          `gorm:"type:varchar(50);index:idx_product_attrs" json:"color"`
	Design       string          `gorm:"type:varchar(50)" json:"design"`
	Quantity     int             `gorm:"not null;default:0" json:"quantity"`
	Location     string          `gorm:"type:varchar(10);index:idx_product_attrs" json:"location"`
	Shop         string          `gorm:"type:varchar(100)" json:"shop"`
	Price        decimal.Decimal `gorm:"type:decimal(14,2)" json:"price"`
	SellingPrice decimal.Decimal `gorm:"type:decimal(14,2)" json:"selling_price"`
	Markup       decimal.Decimal `gorm:"type:decimal(14,2)" json:"markup"`
	MarkupType   string          `gorm:"type:varchar(20)" json:"markup_type"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Receipt struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	LocalReceiptID int64           `gorm:"uniqueIndex;not null" json:"local_receipt_id"`
	ReceiptNumber  string          `gorm:"type:varchar(50);index" json:"receipt_number"`
	Date           time.Time       `json:"date"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(14,2)" json:"subtotal"`
	DeliveryCost   decimal.Decimal `gorm:"type:decimal(14,2)" json:"delivery_cost"`
	Total          decimal.Decimal `gorm:"type:decimal(14,2)" json:"total"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Sale struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	LocalSaleID    int64           `gorm:"uniqueIndex;not null" json:"local_sale_id"`
	ReceiptID      uint            `gorm:"index;not null" json:"receipt_id"`
	ProductID      uint            `gorm:"index;not null" json:"product_id"`
	PaymentID      *uint           `gorm:"index" json:"payment_id,omitempty"`
	Quantity       int             `json:"quantity"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(14,2)" json:"discount_amount"`
	SaleDate       time.Time       `json:"sale_date"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Payment struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	LocalPaymentID     int64           `gorm:"uniqueIndex;not null" json:"local_payment_id"`
	ReceiptID          uint            `gorm:"index;not null" json:"receipt_id"`
	PaymentStatus      string          `gorm:"type:varchar(20)" json:"payment_status"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_amount"`
	TotalPaid          decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_paid"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2)" json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `gorm:"type:decimal(14,2)" json:"discount_amount"`
	PaymentDate        time.Time       `json:"payment_date"`
	Methods            []PaymentMethod `gorm:"foreignKey:PaymentID" json:"payment_methods"`
	CreatedAt          time.Time       `json:"created_at"`
}

type PaymentMethod struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	PaymentID uint            `gorm:"index;not null" json:"payment_id"`
	Method    string          `gorm:"type:varchar(30)" json:"method"`
	Amount    decimal.Decimal `gorm:"type:decimal(14,2)" json:"amount"`
	Status    string          `gorm:"type:varchar(20)" json:"status"`
}

// SyncMetadata keeps one row per sync type describing the latest push.
type SyncMetadata struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	SyncType      string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"sync_type"`
	LastSyncTime  time.Time `json:"last_sync_time"`
	SyncStatus    string    `gorm:"type:varchar(20);default:success" json:"sync_status"`
	RecordsSynced int       `json:"records_synced"`
	ErrorMessage  string    `gorm:"type:text" json:"error_message,omitempty"`
}

func (SyncMetadata) TableName() string {
	return "sync_metadata"
}

// Counts is a row count per table, used by operators and tests to check
// that repeated pushes add nothing.
type Counts struct {
	Products       int64 `json:"products"`
	Receipts       int64 `json:"receipts"`
	Sales          int64 `json:"sales"`
	Payments       int64 `json:"payments"`
	PaymentMethods int64 `json:"payment_methods"`
}

// InventorySnapshot is the latest stock level of one local product, keyed
// by its local id.
type InventorySnapshot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	LocalProductID int64     `gorm:"column:product_id;uniqueIndex;not null" json:"product_id"`
	Brand          string    `gorm:"type:varchar(100);index" json:"brand"`
	Category       string    `gorm:"type:varchar(100);index" json:"category"`
	Size           string    `gorm:"type:varchar(20)" json:"size"`
	Color          string    `gorm:"type:varchar(50)" json:"color"`
	Design         string    `gorm:"type:varchar(50)" json:"design"`
	Quantity       int       `gorm:"column:quantity_available;not null;default:0" json:"quantity_available"`
	Location       string    `gorm:"type:varchar(10);index" json:"location"`
	Shop           string    `gorm:"type:varchar(100);index" json:"shop"`
	IsLowStock     bool      `gorm:"index" json:"is_low_stock"`
	IsOutOfStock   bool      `json:"is_out_of_stock"`
	SourceTime     time.Time `gorm:"column:data_source_timestamp" json:"data_source_timestamp"`
	UpdatedAt      time.Time `gorm:"column:last_updated" json:"last_updated"`
}

func (InventorySnapshot) TableName() string {
	return "inventory_snapshot"
}

type SalesSummaryDaily struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	SummaryDate       time.Time       `gorm:"type:date;uniqueIndex:idx_sales_summary_key" json:"summary_date"`
	Category          string          `gorm:"type:varchar(100);uniqueIndex:idx_sales_summary_key" json:"category"`
	Shop              string          `gorm:"type:varchar(100);uniqueIndex:idx_sales_summary_key" json:"shop"`
	Location          string          `gorm:"type:varchar(10);uniqueIndex:idx_sales_summary_key" json:"location"`
	TotalUnitsSold    int             `json:"total_units_sold"`
	TotalTransactions int             `json:"total_transactions"`
	TotalRevenue      decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_revenue"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:last_updated" json:"last_updated"`
}

func (SalesSummaryDaily) TableName() string {
	return "sales_summary_daily"
}

// TopSellingProduct is one ranked line of a period. A period is always
// replaced as a whole.
type TopSellingProduct struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PeriodType  string    `gorm:"type:varchar(10);index:idx_top_period" json:"period_type"`
	PeriodStart time.Time `gorm:"type:date;index:idx_top_period" json:"period_start"`
	PeriodEnd   time.Time `gorm:"type:date;index:idx_top_period" json:"period_end"`
	Brand       string    `gorm:"type:varchar(100)" json:"brand"`
	Category    string    `gorm:"type:varchar(100);index" json:"category"`
	Location    string    `gorm:"type:varchar(10)" json:"location"`
	UnitsSold   int       `json:"units_sold"`
	Rank        int       `gorm:"index" json:"rank"`
	UpdatedAt   time.Time `gorm:"column:last_updated" json:"last_updated"`
}

func (TopSellingProduct) TableName() string {
	return "top_selling_products"
}

// LowStockAlert stays open until the product drops off the pushed list.
type LowStockAlert struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	LocalProductID  int64      `gorm:"column:product_id;index;not null" json:"product_id"`
	Brand           string     `gorm:"type:varchar(100)" json:"brand"`
	Category        string     `gorm:"type:varchar(100)" json:"category"`
	Size            string     `gorm:"type:varchar(20)" json:"size"`
	Color           string     `gorm:"type:varchar(50)" json:"color"`
	Location        string     `gorm:"type:varchar(10);index" json:"location"`
	CurrentQuantity int        `json:"current_quantity"`
	AlertLevel      string     `gorm:"type:varchar(10);index" json:"alert_level"`
	AlertDate       time.Time  `json:"alert_date"`
	IsResolved      bool       `gorm:"index;not null;default:false" json:"is_resolved"`
	ResolvedDate    *time.Time `json:"resolved_date,omitempty"`
}

func (LowStockAlert) TableName() string {
	return "low_stock_alerts"
}

type CategoryPerformance struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	PeriodStart       time.Time       `gorm:"type:date;uniqueIndex:idx_category_perf_key" json:"period_start"`
	PeriodEnd         time.Time       `gorm:"type:date;uniqueIndex:idx_category_perf_key" json:"period_end"`
	Category          string          `gorm:"type:varchar(100);uniqueIndex:idx_category_perf_key" json:"category"`
	Location          string          `gorm:"type:varchar(10);uniqueIndex:idx_category_perf_key" json:"location"`
	TotalUnitsSold    int             `json:"total_units_sold"`
	TotalProducts     int             `gorm:"column:total_products_in_category" json:"total_products_in_category"`
	AverageStockLevel decimal.Decimal `gorm:"type:decimal(10,2)" json:"average_stock_level"`
	TotalRevenue      decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_revenue"`
	UpdatedAt         time.Time       `gorm:"column:last_updated" json:"last_updated"`
}

func (CategoryPerformance) TableName() string {
	return "category_performance"
}

type ShopPerformance struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	PeriodStart        time.Time       `gorm:"type:date;uniqueIndex:idx_shop_perf_key" json:"period_start"`
	PeriodEnd          time.Time       `gorm:"type:date;uniqueIndex:idx_shop_perf_key" json:"period_end"`
	Shop               string          `gorm:"type:varchar(100);uniqueIndex:idx_shop_perf_key" json:"shop"`
	Location           string          `gorm:"type:varchar(10);uniqueIndex:idx_shop_perf_key" json:"location"`
	TotalUnitsSold     int             `json:"total_units_sold"`
	UniqueProductsSold int             `json:"unique_products_sold"`
	CurrentStockCount  int             `json:"current_stock_count"`
	TotalRevenue       decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_revenue"`
	UpdatedAt          time.Time       `gorm:"column:last_updated" json:"last_updated"`
}

func (ShopPerformance) TableName() string {
	return "shop_performance"
}

// AggregateCounts is the row count of each rollup table.
type AggregateCounts struct {
	Inventory           int64 `json:"inventory_snapshot"`
	SalesSummaries      int64 `json:"sales_summary_daily"`
	TopProducts         int64 `json:"top_selling_products"`
	OpenAlerts          int64 `json:"open_low_stock_alerts"`
	ResolvedAlerts      int64 `json:"resolved_low_stock_alerts"`
	CategoryPerformance int64 `json:"category_performance"`
	ShopPerformance     int64 `json:"shop_performance"`
}
