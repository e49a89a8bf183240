package reporting

import (
	"fmt"
	"time"

	"mystore/backend/internal/syncwire"
)

// AggregateResult describes what one rollup push changed.
type AggregateResult struct {
	Created  int
	Updated  int
	Resolved int
}

func parseDay(field string, raw string) (time.Time, error) {
	day, err := time.Parse(syncwire.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a date", ErrInvalidPayload, field, raw)
	}
	return day, nil
}

func parsePeriod(start string, end string) (time.Time, time.Time, error) {
	from, err := parseDay("period_start", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDay("period_end", end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period ends %s before it starts %s", ErrInvalidPayload, end, start)
	}
	return from, to, nil
}

func snapshotRow(in syncwire.InventoryItem, now time.Time) (InventorySnapshot, error) {
	if in.LocalProductID <= 0 {
		return InventorySnapshot{}, fmt.Errorf("%w: inventory item without product_id", ErrInvalidPayload)
	}
	return InventorySnapshot{
		LocalProductID: in.LocalProductID,
		Brand:          in.Brand,
		Category:       in.Category,
		Size:           in.Size,
		Color:          in.Color,
		Design:         in.Design,
		Quantity:       in.Quantity,
		Location:       in.Location,
		Shop:           in.Shop,
		IsLowStock:     in.IsLowStock,
		IsOutOfStock:   in.IsOutOfStock,
		SourceTime:     now,
		UpdatedAt:      now,
	}, nil
}

func snapshotRows(in syncwire.InventoryRequest, now time.Time) ([]InventorySnapshot, error) {
	rows := make([]InventorySnapshot, 0, len(in.Items))
	for _, item := range in.Items {
		row, err := snapshotRow(item, now)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func dailyRows(in syncwire.SalesDailyRequest, now time.Time) ([]SalesSummaryDaily, error) {
	rows := make([]SalesSummaryDaily, 0, len(in.Days))
	for _, d := range in.Days {
		day, err := parseDay("summary_date", d.Date)
		if err != nil {
			return nil, err
		}
		rows = append(rows, SalesSummaryDaily{
			SummaryDate:       day,
			Category:          d.Category,
			Shop:              d.Shop,
			Location:          d.Location,
			TotalUnitsSold:    d.TotalUnitsSold,
			TotalTransactions: d.TotalTransactions,
			TotalRevenue:      d.TotalRevenue,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	return rows, nil
}

func topRows(in syncwire.TopProductsRequest, now time.Time) ([]TopSellingProduct, error) {
	from, to, err := parsePeriod(in.PeriodStart, in.PeriodEnd)
	if err != nil {
		return nil, err
	}
	if in.PeriodType == "" {
		return nil, fmt.Errorf("%w: top products without period_type", ErrInvalidPayload)
	}
	rows := make([]TopSellingProduct, 0, len(in.Products))
	for _, p := range in.Products {
		rows = append(rows, TopSellingProduct{
			PeriodType:  in.PeriodType,
			PeriodStart: from,
			PeriodEnd:   to,
			Brand:       p.Brand,
			Category:    p.Category,
			Location:    p.Location,
			UnitsSold:   p.UnitsSold,
			Rank:        p.Rank,
			UpdatedAt:   now,
		})
	}
	return rows, nil
}

func applyAlert(a *LowStockAlert, in syncwire.StockAlert) {
	a.LocalProductID = in.LocalProductID
	a.Brand = in.Brand
	a.Category = in.Category
	a.Size = in.Size
	a.Color = in.Color
	a.Location = in.Location
	a.CurrentQuantity = in.CurrentQuantity
	a.AlertLevel = in.AlertLevel
}

func validateAlerts(in syncwire.StockAlertsRequest) error {
	seen := make(map[int64]bool, len(in.Alerts))
	for _, a := range in.Alerts {
		if a.LocalProductID <= 0 {
			return fmt.Errorf("%w: stock alert without product_id", ErrInvalidPayload)
		}
		if seen[a.LocalProductID] {
			return fmt.Errorf("%w: product %d listed twice", ErrInvalidPayload, a.LocalProductID)
		}
		seen[a.LocalProductID] = true
	}
	return nil
}

func categoryRows(in syncwire.CategoryPerformanceRequest, now time.Time) ([]CategoryPerformance, error) {
	rows := make([]CategoryPerformance, 0, len(in.Rows))
	for _, r := range in.Rows {
		from, to, err := parsePeriod(r.PeriodStart, r.PeriodEnd)
		if err != nil {
			return nil, err
		}
		rows = append(rows, CategoryPerformance{
			PeriodStart:       from,
			PeriodEnd:         to,
			Category:          r.Category,
			Location:          r.Location,
			TotalUnitsSold:    r.TotalUnitsSold,
			TotalProducts:     r.TotalProducts,
			AverageStockLevel: r.AverageStockLevel,
			TotalRevenue:      r.TotalRevenue,
			UpdatedAt:         now,
		})
	}
	return rows, nil
}

func shopRows(in syncwire.ShopPerformanceRequest, now time.Time) ([]ShopPerformance, error) {
	rows := make([]ShopPerformance, 0, len(in.Rows))
	for _, r := range in.Rows {
		from, to, err := parsePeriod(r.PeriodStart, r.PeriodEnd)
		if err != nil {
			return nil, err
		}
		rows = append(rows, ShopPerformance{
			PeriodStart:        from,
			PeriodEnd:          to,
			Shop:               r.Shop,
			Location:           r.Location,
			TotalUnitsSold:     r.TotalUnitsSold,
			UniqueProductsSold: r.UniqueProductsSold,
			CurrentStockCount:  r.CurrentStockCount,
			TotalRevenue:       r.TotalRevenue,
			UpdatedAt:          now,
		})
	}
	return rows, nil
}

func unknownAggregate(req syncwire.AggregateRequest) error {
	return fmt.Errorf("%w: unsupported aggregate %T", ErrInvalidPayload, req)
}
