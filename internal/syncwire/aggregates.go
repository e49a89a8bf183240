package syncwire

import (
	"github.com/shopspring/decimal"
)

// Aggregate endpoints. Every body is a rollup computed locally; none of
// them names a receipt, a payment or a customer.
const (
	InventoryPath           = "/sync/inventory/"
	SalesDailyPath          = "/sync/sales-daily/"
	TopProductsPath         = "/sync/top-products/"
	StockAlertsPath         = "/sync/stock-alerts/"
	CategoryPerformancePath = "/sync/category-performance/"
	ShopPerformancePath     = "/sync/shop-performance/"
)

// Sync types recorded in the remote sync metadata, one per aggregate.
const (
	KindInventory           = "inventory"
	KindSalesDaily          = "sales_summary"
	KindTopProducts         = "top_products"
	KindStockAlerts         = "low_stock_alerts"
	KindCategoryPerformance = "category_performance"
	KindShopPerformance     = "shop_performance"
)

// DateLayout formats every calendar date carried by an aggregate.
const DateLayout = "2006-01-02"

// AggregateRequest is one push of a rollup.
type AggregateRequest interface {
	Kind() string
	Path() string
	Len() int
}

type AggregateResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	SyncType string `json:"sync_type"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Resolved int    `json:"resolved,omitempty"`
	Total    int    `json:"total"`
}

type InventoryItem struct {
	LocalProductID int64  `json:"product_id" binding:"required,gt=0"`
	Brand          string `json:"brand"`
	Category       string `json:"category"`
	Size           string `json:"size"`
	Color          string `json:"color"`
	Design         string `json:"design"`
	Quantity       int    `json:"quantity_available"`
	Location       string `json:"location"`
	Shop           string `json:"shop"`
	IsLowStock     bool   `json:"is_low_stock"`
	IsOutOfStock   bool   `json:"is_out_of_stock"`
}

type InventoryRequest struct {
	Items []InventoryItem `json:"items" binding:"dive"`
}

func (InventoryRequest) Kind() string { return KindInventory }
func (InventoryRequest) Path() string { return InventoryPath }
func (r InventoryRequest) Len() int { return len(r.Items) }

type DailySales struct {
	Date              string          `json:"summary_date" binding:"required,datetime=2006-01-02"`
	Category          string          `json:"category"`
	Shop              string          `json:"shop"`
	Location          string          `json:"location"`
	TotalUnitsSold    int             `json:"total_units_sold"`
	TotalTransactions int             `json:"total_transactions"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
}

type SalesDailyRequest struct {
	Days []DailySales `json:"days" binding:"dive"`
}

func (SalesDailyRequest) Kind() string { return KindSalesDaily }
func (SalesDailyRequest) Path() string { return SalesDailyPath }
func (r SalesDailyRequest) Len() int { return len(r.Days) }

type TopProduct struct {
	Brand     string `json:"brand"`
	Category  string `json:"category"`
	Location  string `json:"location"`
	UnitsSold int    `json:"units_sold"`
	Rank      int    `json:"rank" binding:"gt=0"`
}

// TopProductsRequest replaces the whole ranking of one period.
type TopProductsRequest struct {
	PeriodType  string       `json:"period_type" binding:"required,oneof=daily weekly monthly"`
	PeriodStart string       `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd   string       `json:"period_end" binding:"required,datetime=2006-01-02"`
	Products    []TopProduct `json:"products" binding:"dive"`
}

func (TopProductsRequest) Kind() string { return KindTopProducts }
func (TopProductsRequest) Path() string { return TopProductsPath }
func (r TopProductsRequest) Len() int { return len(r.Products) }

const (
	AlertLow      = "low"
	AlertCritical = "critical"
	AlertOut      = "out"
)

type StockAlert struct {
	LocalProductID  int64  `json:"product_id" binding:"required,gt=0"`
	Brand           string `json:"brand"`
	Category        string `json:"category"`
	Size            string `json:"size"`
	Color           string `json:"color"`
	Location        string `json:"location"`
	CurrentQuantity int    `json:"current_quantity"`
	AlertLevel      string `json:"alert_level" binding:"required,oneof=low critical out"`
}

// StockAlertsRequest is the complete list of products currently low on
// stock. Open alerts for products missing from it are resolved.
type StockAlertsRequest struct {
	Alerts []StockAlert `json:"alerts" binding:"dive"`
}

func (StockAlertsRequest) Kind() string { return KindStockAlerts }
func (StockAlertsRequest) Path() string { return StockAlertsPath }
func (r StockAlertsRequest) Len() int { return len(r.Alerts) }

type CategoryPerformance struct {
	PeriodStart       string          `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd         string          `json:"period_end" binding:"required,datetime=2006-01-02"`
	Category          string          `json:"category"`
	Location          string          `json:"location" binding:"required"`
	TotalUnitsSold    int             `json:"total_units_sold"`
	TotalProducts     int             `json:"total_products_in_category"`
	AverageStockLevel decimal.Decimal `json:"average_stock_level"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
}

type CategoryPerformanceRequest struct {
	Rows []CategoryPerformance `json:"rows" binding:"dive"`
}

func (CategoryPerformanceRequest) Kind() string { return KindCategoryPerformance }
func (CategoryPerformanceRequest) Path() string { return CategoryPerformancePath }
func (r CategoryPerformanceRequest) Len() int { return len(r.Rows) }

type ShopPerformance struct {
	PeriodStart        string          `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd          string          `json:"period_end" binding:"required,datetime=2006-01-02"`
	Shop               string          `json:"shop"`
	Location           string          `json:"location" binding:"required"`
	TotalUnitsSold     int             `json:"total_units_sold"`
	UniqueProductsSold int             `json:"unique_products_sold"`
	CurrentStockCount  int             `json:"current_stock_count"`
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
}

type ShopPerformanceRequest struct {
	Rows []ShopPerformance `json:"rows" binding:"dive"`
}

func (ShopPerformanceRequest) Kind() string { return KindShopPerformance }
func (ShopPerformanceRequest) Path() string { return ShopPerformancePath }
func (r ShopPerformanceRequest) Len() int { return len(r.Rows) }
