package reporting

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/syncwire"
)

// MemoryStore keeps the reporting tables in process, for tests and local
// runs of the reporting API.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	nextID   uint
	products []Product
	receipts map[int64]*Receipt
	sales    map[int64]Sale
	payments map[int64]*Payment
	meta     map[string]SyncMetadata

	inventory    map[int64]*InventorySnapshot
	daily        []SalesSummaryDaily
	topProducts  []TopSellingProduct
	alerts       []LowStockAlert
	categoryPerf []CategoryPerformance
	shopPerf     []ShopPerformance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		receipts: make(map[int64]*Receipt),
		sales:    make(map[int64]Sale),
		payments: make(map[int64]*Payment),
		meta:     make(map[string]SyncMetadata),

		inventory: make(map[int64]*InventorySnapshot),
	}
}

func (m *MemoryStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) UpsertProducts(_ context.Context, products []syncwire.Product) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created, updated := 0, 0
	now := m.now()
	for _, in := range products {
		idx := slices.IndexFunc(m.products, func(p Product) bool {
			if in.Barcode != "" {
				return p.Barcode == in.Barcode
			}
			return sameIdentity(p, in)
		})
		if idx >= 0 {
			applyProduct(&m.products[idx], in)
			m.products[idx].UpdatedAt = now
			updated++
			continue
		}
		p := Product{ID: m.id(), CreatedAt: now, UpdatedAt: now}
		applyProduct(&p, in)
		m.products = append(m.products, p)
		created++
	}
	return created, updated, nil
}

func (m *MemoryStore) resolveLocked(s syncwire.Sale) (uint, bool) {
	if s.ProductBarcode != "" {
		if idx := slices.IndexFunc(m.products, func(p Product) bool { return p.Barcode == s.ProductBarcode }); idx >= 0 {
			return m.products[idx].ID, true
		}
	}
	if !canMatchByAttributes(s) {
		return 0, false
	}
	if idx := slices.IndexFunc(m.products, func(p Product) bool { return matchesSaleAttributes(p, s) }); idx >= 0 {
		return m.products[idx].ID, true
	}
	return 0, false
}

func (m *MemoryStore) MergeReceipt(_ context.Context, in syncwire.Receipt) (MergeResult, error) {
	var result MergeResult
	if err := validateReceipt(in); err != nil {
		return result, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	// Resolve every new sale before touching anything.
	productIDs := make(map[int64]uint, len(in.Sales))
	for _, s := range in.Sales {
		if _, exists := m.sales[s.LocalSaleID]; exists {
			continue
		}
		productID, ok := m.resolveLocked(s)
		if !ok {
			return result, unresolved(s)
		}
		productIDs[s.LocalSaleID] = productID
	}

	receipt, ok := m.receipts[in.LocalReceiptID]
	if !ok {
		receipt = &Receipt{
			ID:             m.id(),
			LocalReceiptID: in.LocalReceiptID,
			ReceiptNumber:  strings.TrimSpace(in.ReceiptNumber),
			Date:           timeOr(in.Date, now),
			CreatedAt:      now,
		}
		m.receipts[in.LocalReceiptID] = receipt
		result.ReceiptCreated = true
	}

	for _, s := range in.Sales {
		productID, isNew := productIDs[s.LocalSaleID]
		if !isNew {
			continue
		}
		m.sales[s.LocalSaleID] = Sale{
			ID:             m.id(),
			LocalSaleID:    s.LocalSaleID,
			ReceiptID:      receipt.ID,
			ProductID:      productID,
			Quantity:       s.Quantity,
			TotalPrice:     s.TotalPrice,
			DiscountAmount: s.DiscountAmount,
			SaleDate:       timeOr(s.SaleDate, now),
			CreatedAt:      now,
		}
		result.NewSales++
	}

	discount := decimal.Zero
	if in.Payment != nil {
		discount = in.Payment.DiscountAmount
		if _, exists := m.payments[in.Payment.LocalPaymentID]; !exists {
			payment := newPayment(*in.Payment, receipt.ID, now)
			payment.ID = m.id()
			for i := range payment.Methods {
				payment.Methods[i].ID = m.id()
				payment.Methods[i].PaymentID = payment.ID
			}
			m.payments[in.Payment.LocalPaymentID] = &payment
			for key, sale := range m.sales {
				if sale.ReceiptID == receipt.ID {
					paymentID := payment.ID
					sale.PaymentID = &paymentID
					m.sales[key] = sale
				}
			}
			result.NewPayments++
		}
	}

	receiptSales := make([]Sale, 0, len(in.Sales))
	for _, sale := range m.sales {
		if sale.ReceiptID == receipt.ID {
			receiptSales = append(receiptSales, sale)
		}
	}
	if len(receiptSales) > 0 {
		receiptTotals(receipt, receiptSales, discount, in.DeliveryCost)
	}
	receipt.UpdatedAt = now
	return result, nil
}

func (m *MemoryStore) RecordSync(_ context.Context, meta SyncMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.meta[meta.SyncType]; ok {
		meta.ID = existing.ID
	} else {
		meta.ID = m.id()
	}
	m.meta[meta.SyncType] = meta
	return nil
}

func (m *MemoryStore) ListSyncMetadata(_ context.Context) ([]SyncMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SyncMetadata, 0, len(m.meta))
	for _, meta := range m.meta {
		out = append(out, meta)
	}
	slices.SortFunc(out, func(a, b SyncMetadata) int { return strings.Compare(a.SyncType, b.SyncType) })
	return out, nil
}

func (m *MemoryStore) Counts(_ context.Context) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := Counts{
		Products: int64(len(m.products)),
		Receipts: int64(len(m.receipts)),
		Sales:    int64(len(m.sales)),
		Payments: int64(len(m.payments)),
	}
	for _, p := range m.payments {
		counts.PaymentMethods += int64(len(p.Methods))
	}
	return counts, nil
}

func (m *MemoryStore) ApplyAggregate(_ context.Context, req syncwire.AggregateRequest) (AggregateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	var result AggregateResult
	switch in := req.(type) {
	case syncwire.InventoryRequest:
		rows, err := snapshotRows(in, now)
		if err != nil {
			return result, err
		}
		for _, row := range rows {
			if existing, ok := m.inventory[row.LocalProductID]; ok {
				row.ID = existing.ID
				*existing = row
				result.Updated++
				continue
			}
			row.ID = m.id()
			m.inventory[row.LocalProductID] = &row
			result.Created++
		}
	case syncwire.SalesDailyRequest:
		rows, err := dailyRows(in, now)
		if err != nil {
			return result, err
		}
		for _, row := range rows {
			idx := slices.IndexFunc(m.daily, func(d SalesSummaryDaily) bool {
				return d.SummaryDate.Equal(row.SummaryDate) && d.Category == row.Category && d.Shop == row.Shop && d.Location == row.Location
			})
			if idx >= 0 {
				row.ID, row.CreatedAt = m.daily[idx].ID, m.daily[idx].CreatedAt
				m.daily[idx] = row
				result.Updated++
				continue
			}
			row.ID = m.id()
			m.daily = append(m.daily, row)
			result.Created++
		}
	case syncwire.TopProductsRequest:
		rows, err := topRows(in, now)
		if err != nil {
			return result, err
		}
		from, to, _ := parsePeriod(in.PeriodStart, in.PeriodEnd)
		m.topProducts = slices.DeleteFunc(m.topProducts, func(t TopSellingProduct) bool {
			return t.PeriodType == in.PeriodType && t.PeriodStart.Equal(from) && t.PeriodEnd.Equal(to)
		})
		for _, row := range rows {
			row.ID = m.id()
			m.topProducts = append(m.topProducts, row)
			result.Created++
		}
	case syncwire.StockAlertsRequest:
		if err := validateAlerts(in); err != nil {
			return result, err
		}
		listed := make(map[int64]bool, len(in.Alerts))
		for _, a := range in.Alerts {
			listed[a.LocalProductID] = true
			idx := slices.IndexFunc(m.alerts, func(open LowStockAlert) bool {
				return !open.IsResolved && open.LocalProductID == a.LocalProductID
			})
			if idx >= 0 {
				applyAlert(&m.alerts[idx], a)
				result.Updated++
				continue
			}
			alert := LowStockAlert{ID: m.id(), AlertDate: now}
			applyAlert(&alert, a)
			m.alerts = append(m.alerts, alert)
			result.Created++
		}
		for i := range m.alerts {
			if !m.alerts[i].IsResolved && !listed[m.alerts[i].LocalProductID] {
				resolved := now
				m.alerts[i].IsResolved = true
				m.alerts[i].ResolvedDate = &resolved
				result.Resolved++
			}
		}
	case syncwire.CategoryPerformanceRequest:
		rows, err := categoryRows(in, now)
		if err != nil {
			return result, err
		}
		for _, row := range rows {
			idx := slices.IndexFunc(m.categoryPerf, func(c CategoryPerformance) bool {
				return c.PeriodStart.Equal(row.PeriodStart) && c.PeriodEnd.Equal(row.PeriodEnd) && c.Category == row.Category && c.Location == row.Location
			})
			if idx >= 0 {
				row.ID = m.categoryPerf[idx].ID
				m.categoryPerf[idx] = row
				result.Updated++
				continue
			}
			row.ID = m.id()
			m.categoryPerf = append(m.categoryPerf, row)
			result.Created++
		}
	case syncwire.ShopPerformanceRequest:
		rows, err := shopRows(in, now)
		if err != nil {
			return result, err
		}
		for _, row := range rows {
			idx := slices.IndexFunc(m.shopPerf, func(sp ShopPerformance) bool {
				return sp.PeriodStart.Equal(row.PeriodStart) && sp.PeriodEnd.Equal(row.PeriodEnd) && sp.Shop == row.Shop && sp.Location == row.Location
			})
			if idx >= 0 {
				row.ID = m.shopPerf[idx].ID
				m.shopPerf[idx] = row
				result.Updated++
				continue
			}
			row.ID = m.id()
			m.shopPerf = append(m.shopPerf, row)
			result.Created++
		}
	default:
		return result, unknownAggregate(req)
	}
	return result, nil
}

func (m *MemoryStore) AggregateCounts(_ context.Context) (AggregateCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := AggregateCounts{
		Inventory:           int64(len(m.inventory)),
		SalesSummaries:      int64(len(m.daily)),
		TopProducts:         int64(len(m.topProducts)),
		CategoryPerformance: int64(len(m.categoryPerf)),
		ShopPerformance:     int64(len(m.shopPerf)),
	}
	for _, a := range m.alerts {
		if a.IsResolved {
			counts.ResolvedAlerts++
		} else {
			counts.OpenAlerts++
		}
	}
	return counts, nil
}
