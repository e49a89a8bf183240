package oemsync

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/store"
	"mystore/backend/internal/syncwire"
)

// AggregateOptions shapes the anonymized rollups pushed after receipts.
type AggregateOptions struct {
	Disabled       bool
	LowStock       int
	CriticalStock  int
	SummaryDays    int
	TopSellerDays  int
	TopSellerLimit int
	// Location sets where a calendar day starts; defaults to UTC.
	Location *time.Location
}

func (o AggregateOptions) withDefaults() AggregateOptions {
	if o.LowStock < 1 {
		o.LowStock = 10
	}
	if o.CriticalStock < 1 {
		o.CriticalStock = 3
	}
	o.CriticalStock = min(o.CriticalStock, o.LowStock)
	if o.SummaryDays < 1 {
		o.SummaryDays = 30
	}
	if o.TopSellerDays < 1 {
		o.TopSellerDays = 7
	}
	if o.TopSellerLimit < 1 {
		o.TopSellerLimit = 50
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

var reportLocations = []string{domain.LocationAbuja, domain.LocationLagos}

func (p *Pipeline) syncAggregates(ctx context.Context, report *Report, logger *logrus.Entry) error {
	opts := p.opts.Aggregates
	if opts.Disabled {
		return nil
	}
	products, err := p.source.ListProducts(ctx, nil)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	today := startOfDay(p.opts.Now(), opts.Location)
	from := today.AddDate(0, 0, -max(opts.SummaryDays, opts.TopSellerDays))
	bundles, err := p.source.ListReceipts(ctx, store.ReceiptFilter(domain.ReceiptQuery{From: &from}))
	if err != nil {
		return fmt.Errorf("list receipts: %w", err)
	}

	for _, req := range buildAggregates(products, bundles, today, opts, p.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Aggregates.Total++
		var resp *syncwire.AggregateResponse
		err := p.withTokenRetry(ctx, func() error {
			var pushErr error
			resp, pushErr = p.remote.PushAggregate(ctx, req)
			return pushErr
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			report.Aggregates.Failed++
			p.logFailure("Aggregate %s (%d rows) failed: %v", req.Kind(), req.Len(), err)
			continue
		}
		report.Aggregates.Success++
		report.AggregateRows += req.Len()
		report.AlertsResolved += resp.Resolved
		logger.WithFields(logrus.Fields{"kind": req.Kind(), "rows": req.Len(), "created": resp.Created, "updated": resp.Updated}).Debug("aggregate synced")
	}
	return nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

type soldLine struct {
	day     time.Time
	sale    domain.Sale
	product domain.Product
}

// buildAggregates computes every rollup as of today, in push order. The
// batched kinds always yield at least one request so the remote records
// each run.
func buildAggregates(products []domain.Product, bundles []domain.ReceiptBundle, today time.Time, opts AggregateOptions, batchSize int) []syncwire.AggregateRequest {
	opts = opts.withDefaults()
	if batchSize < 1 {
		batchSize = 50
	}
	products = slices.Clone(products)
	slices.SortFunc(products, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })

	var lines []soldLine
	for _, b := range bundles {
		for _, s := range b.Sales {
			lines = append(lines, soldLine{day: startOfDay(s.SaleDate, opts.Location), sale: s.Sale, product: s.Product})
		}
	}

	var out []syncwire.AggregateRequest
	for _, chunk := range chunks(inventoryItems(products, opts), batchSize) {
		out = append(out, syncwire.InventoryRequest{Items: chunk})
	}
	summaryStart := today.AddDate(0, 0, -opts.SummaryDays)
	for _, chunk := range chunks(dailySales(lines, summaryStart), batchSize) {
		out = append(out, syncwire.SalesDailyRequest{Days: chunk})
	}
	out = append(out, topProducts(lines, today, opts))
	out = append(out, syncwire.StockAlertsRequest{Alerts: stockAlerts(products, opts)})
	for _, chunk := range chunks(categoryPerformance(products, lines, summaryStart, today), batchSize) {
		out = append(out, syncwire.CategoryPerformanceRequest{Rows: chunk})
	}
	for _, chunk := range chunks(shopPerformance(products, lines, summaryStart, today), batchSize) {
		out = append(out, syncwire.ShopPerformanceRequest{Rows: chunk})
	}
	return out
}

func chunks[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return [][]T{{}}
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}

func inventoryItems(products []domain.Product, opts AggregateOptions) []syncwire.InventoryItem {
	items := make([]syncwire.InventoryItem, 0, len(products))
	for _, p := range products {
		items = append(items, syncwire.InventoryItem{
			LocalProductID: p.ID,
			Brand:          p.Brand,
			Category:       p.Category,
			Size:           p.Size,
			Color:          p.Color,
			Design:         p.Design,
			Quantity:       p.Quantity,
			Location:       p.Location,
			Shop:           p.Shop,
			IsLowStock:     p.Quantity > 0 && p.Quantity <= opts.LowStock,
			IsOutOfStock:   p.Quantity <= 0,
		})
	}
	return items
}

func dailySales(lines []soldLine, from time.Time) []syncwire.DailySales {
	type key struct {
		day                      time.Time
		category, shop, location string
	}
	index := make(map[key]int)
	var rows []syncwire.DailySales
	var days []time.Time
	for _, l := range lines {
		if l.day.Before(from) {
			continue
		}
		k := key{l.day, l.product.Category, l.product.Shop, l.product.Location}
		idx, ok := index[k]
		if !ok {
			idx = len(rows)
			index[k] = idx
			rows = append(rows, syncwire.DailySales{
				Date:     l.day.Format(syncwire.DateLayout),
				Category: k.category,
				Shop:     k.shop,
				Location: k.location,
			})
			days = append(days, l.day)
		}
		rows[idx].TotalUnitsSold += l.sale.Quantity
		rows[idx].TotalTransactions++
		rows[idx].TotalRevenue = ledger.Money(rows[idx].TotalRevenue.Add(l.sale.TotalPrice))
	}
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Or(days[a].Compare(days[b]),
			cmp.Compare(rows[a].Category, rows[b].Category),
			cmp.Compare(rows[a].Shop, rows[b].Shop),
			cmp.Compare(rows[a].Location, rows[b].Location))
	})
	sorted := make([]syncwire.DailySales, 0, len(rows))
	for _, i := range order {
		sorted = append(sorted, rows[i])
	}
	return sorted
}

// topProducts ranks brand/category/location groups by units sold over the
// last TopSellerDays days, today included.
func topProducts(lines []soldLine, today time.Time, opts AggregateOptions) syncwire.TopProductsRequest {
	start := today.AddDate(0, 0, -opts.TopSellerDays)
	type key struct{ brand, category, location string }
	units := make(map[key]int)
	for _, l := range lines {
		if l.day.Before(start) || l.day.After(today) {
			continue
		}
		units[key{l.product.Brand, l.product.Category, l.product.Location}] += l.sale.Quantity
	}
	ranked := make([]syncwire.TopProduct, 0, len(units))
	for k, n := range units {
		ranked = append(ranked, syncwire.TopProduct{Brand: k.brand, Category: k.category, Location: k.location, UnitsSold: n})
	}
	slices.SortFunc(ranked, func(a, b syncwire.TopProduct) int {
		return cmp.Or(cmp.Compare(b.UnitsSold, a.UnitsSold),
			cmp.Compare(a.Brand, b.Brand),
			cmp.Compare(a.Category, b.Category),
			cmp.Compare(a.Location, b.Location))
	})
	if len(ranked) > opts.TopSellerLimit {
		ranked = ranked[:opts.TopSellerLimit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return syncwire.TopProductsRequest{
		PeriodType:  periodType(opts.TopSellerDays),
		PeriodStart: start.Format(syncwire.DateLayout),
		PeriodEnd:   today.Format(syncwire.DateLayout),
		Products:    ranked,
	}
}

func periodType(days int) string {
	switch {
	case days <= 1:
		return "daily"
	case days <= 7:
		return "weekly"
	}
	return "monthly"
}

func alertLevel(quantity int, opts AggregateOptions) string {
	switch {
	case quantity <= 0:
		return syncwire.AlertOut
	case quantity <= opts.CriticalStock:
		return syncwire.AlertCritical
	}
	return syncwire.AlertLow
}

func stockAlerts(products []domain.Product, opts AggregateOptions) []syncwire.StockAlert {
	alerts := make([]syncwire.StockAlert, 0)
	for _, p := range products {
		if p.Quantity > opts.LowStock {
			continue
		}
		alerts = append(alerts, syncwire.StockAlert{
			LocalProductID:  p.ID,
			Brand:           p.Brand,
			Category:        p.Category,
			Size:            p.Size,
			Color:           p.Color,
			Location:        p.Location,
			CurrentQuantity: p.Quantity,
			AlertLevel:      alertLevel(p.Quantity, opts),
		})
	}
	return alerts
}

func distinct(products []domain.Product, field func(domain.Product) string) []string {
	var out []string
	for _, p := range products {
		out = append(out, field(p))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func inPeriod(l soldLine, start, end time.Time) bool {
	return !l.day.Before(start) && !l.day.After(end)
}

func categoryPerformance(products []domain.Product, lines []soldLine, start, end time.Time) []syncwire.CategoryPerformance {
	var rows []syncwire.CategoryPerformance
	for _, category := range distinct(products, func(p domain.Product) string { return p.Category }) {
		for _, location := range reportLocations {
			row := syncwire.CategoryPerformance{
				PeriodStart:       start.Format(syncwire.DateLayout),
				PeriodEnd:         end.Format(syncwire.DateLayout),
				Category:          category,
				Location:          location,
				AverageStockLevel: decimal.Zero,
				TotalRevenue:      decimal.Zero,
			}
			for _, l := range lines {
				if l.product.Category == category && l.product.Location == location && inPeriod(l, start, end) {
					row.TotalUnitsSold += l.sale.Quantity
					row.TotalRevenue = row.TotalRevenue.Add(l.sale.TotalPrice)
				}
			}
			stock := 0
			for _, p := range products {
				if p.Category == category && p.Location == location {
					row.TotalProducts++
					stock += p.Quantity
				}
			}
			if row.TotalProducts > 0 {
				row.AverageStockLevel = decimal.NewFromInt(int64(stock)).Div(decimal.NewFromInt(int64(row.TotalProducts))).Round(2)
			}
			row.TotalRevenue = ledger.Money(row.TotalRevenue)
			rows = append(rows, row)
		}
	}
	return rows
}

func shopPerformance(products []domain.Product, lines []soldLine, start, end time.Time) []syncwire.ShopPerformance {
	var rows []syncwire.ShopPerformance
	for _, shop := range distinct(products, func(p domain.Product) string { return p.Shop }) {
		for _, location := range reportLocations {
			row := syncwire.ShopPerformance{
				PeriodStart:  start.Format(syncwire.DateLayout),
				PeriodEnd:    end.Format(syncwire.DateLayout),
				Shop:         shop,
				Location:     location,
				TotalRevenue: decimal.Zero,
			}
			sold := make(map[int64]struct{})
			for _, l := range lines {
				if l.product.Shop == shop && l.product.Location == location && inPeriod(l, start, end) {
					row.TotalUnitsSold += l.sale.Quantity
					row.TotalRevenue = row.TotalRevenue.Add(l.sale.TotalPrice)
					sold[l.sale.ProductID] = struct{}{}
				}
			}
			row.UniqueProductsSold = len(sold)
			for _, p := range products {
				if p.Shop == shop && p.Location == location {
					row.CurrentStockCount += p.Quantity
				}
			}
			row.TotalRevenue = ledger.Money(row.TotalRevenue)
			rows = append(rows, row)
		}
	}
	return rows
}
