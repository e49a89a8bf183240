package reporting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"mystore/backend/internal/syncwire"
)

// GormStore is the reporting database on postgres.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenGorm connects and migrates the reporting tables.
func OpenGorm(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	store := NewGormStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(
		&Product{},
		&Receipt{},
		&Sale{},
		&Payment{},
		&PaymentMethod{},
		&SyncMetadata{},
		&InventorySnapshot{},
		&SalesSummaryDaily{},
		&TopSellingProduct{},
		&LowStockAlert{},
		&CategoryPerformance{},
		&ShopPerformance{},
	)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) UpsertProducts(ctx context.Context, products []syncwire.Product) (int, int, error) {
	created, updated := 0, 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		for _, in := range products {
			var existing Product
			q := tx.Clauses(clause.Locking{Strength: "UPDATE"})
			if in.Barcode != "" {
				q = q.Where("barcode_number = ?", in.Barcode)
			} else {
				q = q.Where("brand = ? AND size = ? AND color = ? AND location = ? AND shop = ?",
					in.Brand, in.Size, in.Color, in.Location, in.Shop)
			}
			err := q.Order("id").First(&existing).Error
			switch {
			case err == nil:
				applyProduct(&existing, in)
				existing.UpdatedAt = now
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
				updated++
			case errors.Is(err, gorm.ErrRecordNotFound):
				p := Product{CreatedAt: now, UpdatedAt: now}
				applyProduct(&p, in)
				if err := tx.Create(&p).Error; err != nil {
					return err
				}
				created++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

func resolveProduct(tx *gorm.DB, s syncwire.Sale) (uint, error) {
	var p Product
	if s.ProductBarcode != "" {
		err := tx.Where("barcode_number = ?", s.ProductBarcode).Order("id").First(&p).Error
		if err == nil {
			return p.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	if !canMatchByAttributes(s) {
		return 0, unresolved(s)
	}
	err := tx.Where("brand = ? AND category = ? AND size = ? AND color = ? AND location = ?",
		s.ProductBrand, s.ProductCategory, s.ProductSize, s.ProductColor, s.ProductLocation).
		Order("id").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, unresolved(s)
	}
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (s *GormStore) MergeReceipt(ctx context.Context, in syncwire.Receipt) (MergeResult, error) {
	var result MergeResult
	if err := validateReceipt(in); err != nil {
		return result, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		localSaleIDs := make([]int64, 0, len(in.Sales))
		for _, sale := range in.Sales {
			localSaleIDs = append(localSaleIDs, sale.LocalSaleID)
		}
		var synced []int64
		if len(localSaleIDs) > 0 {
			if err := tx.Model(&Sale{}).Where("local_sale_id IN ?", localSaleIDs).Pluck("local_sale_id", &synced).Error; err != nil {
				return err
			}
		}
		already := make(map[int64]bool, len(synced))
		for _, id := range synced {
			already[id] = true
		}

		productIDs := make(map[int64]uint, len(in.Sales))
		for _, sale := range in.Sales {
			if already[sale.LocalSaleID] {
				continue
			}
			productID, err := resolveProduct(tx, sale)
			if err != nil {
				return err
			}
			productIDs[sale.LocalSaleID] = productID
		}

		receipt := Receipt{
			LocalReceiptID: in.LocalReceiptID,
			ReceiptNumber:  strings.TrimSpace(in.ReceiptNumber),
			Date:           timeOr(in.Date, now),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		create := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "local_receipt_id"}}, DoNothing: true}).Create(&receipt)
		if create.Error != nil {
			return create.Error
		}
		result.ReceiptCreated = create.RowsAffected == 1
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("local_receipt_id = ?", in.LocalReceiptID).First(&receipt).Error; err != nil {
			return err
		}

		for _, sale := range in.Sales {
			productID, isNew := productIDs[sale.LocalSaleID]
			if !isNew {
				continue
			}
			row := Sale{
				LocalSaleID:    sale.LocalSaleID,
				ReceiptID:      receipt.ID,
				ProductID:      productID,
				Quantity:       sale.Quantity,
				TotalPrice:     sale.TotalPrice,
				DiscountAmount: sale.DiscountAmount,
				SaleDate:       timeOr(sale.SaleDate, now),
				CreatedAt:      now,
			}
			res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "local_sale_id"}}, DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			result.NewSales += int(res.RowsAffected)
		}

		discount := decimal.Zero
		if in.Payment != nil {
			discount = in.Payment.DiscountAmount
			var count int64
			if err := tx.Model(&Payment{}).Where("local_payment_id = ?", in.Payment.LocalPaymentID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				payment := newPayment(*in.Payment, receipt.ID, now)
				if err := tx.Create(&payment).Error; err != nil {
					return err
				}
				if err := tx.Model(&Sale{}).Where("receipt_id = ?", receipt.ID).Update("payment_id", payment.ID).Error; err != nil {
					return err
				}
				result.NewPayments++
			}
		}

		var sales []Sale
		if err := tx.Where("receipt_id = ?", receipt.ID).Find(&sales).Error; err != nil {
			return err
		}
		if len(sales) > 0 {
			receiptTotals(&receipt, sales, discount, in.DeliveryCost)
		}
		receipt.UpdatedAt = now
		return tx.Save(&receipt).Error
	})
	if err != nil {
		return MergeResult{}, err
	}
	return result, nil
}

func (s *GormStore) RecordSync(ctx context.Context, meta SyncMetadata) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sync_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_sync_time", "sync_status", "records_synced", "error_message"}),
	}).Create(&meta).Error
}

func (s *GormStore) ListSyncMetadata(ctx context.Context) ([]SyncMetadata, error) {
	var out []SyncMetadata
	if err := s.db.WithContext(ctx).Order("sync_type").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	for _, item := range []struct {
		model any
		dest  *int64
	}{
		{&Product{}, &c.Products},
		{&Receipt{}, &c.Receipts},
		{&Sale{}, &c.Sales},
		{&Payment{}, &c.Payments},
		{&PaymentMethod{}, &c.PaymentMethods},
	} {
		if err := db.Model(item.model).Count(item.dest).Error; err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

// upsertRows counts which rows already exist by natural key, then writes
// each with ON CONFLICT on that key.
func upsertRows[T any](tx *gorm.DB, rows []T, key []string, update []string, keyOf func(T) []any) (int, int, error) {
	created, updated := 0, 0
	where := strings.Join(key, " = ? AND ") + " = ?"
	columns := make([]clause.Column, 0, len(key))
	for _, name := range key {
		columns = append(columns, clause.Column{Name: name})
	}
	for i := range rows {
		var n int64
		if err := tx.Model(new(T)).Where(where, keyOf(rows[i])...).Count(&n).Error; err != nil {
			return 0, 0, err
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   columns,
			DoUpdates: clause.AssignmentColumns(update),
		}).Create(&rows[i]).Error
		if err != nil {
			return 0, 0, err
		}
		if n > 0 {
			updated++
		} else {
			created++
		}
	}
	return created, updated, nil
}

func (s *GormStore) ApplyAggregate(ctx context.Context, req syncwire.AggregateRequest) (AggregateResult, error) {
	var result AggregateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		var err error
		switch in := req.(type) {
		case syncwire.InventoryRequest:
			rows, convErr := snapshotRows(in, now)
			if convErr != nil {
				return convErr
			}
			result.Created, result.Updated, err = upsertRows(tx, rows,
				[]string{"product_id"},
				[]string{"brand", "category", "size", "color", "design", "quantity_available", "location", "shop",
					"is_low_stock", "is_out_of_stock", "data_source_timestamp", "last_updated"},
				func(r InventorySnapshot) []any { return []any{r.LocalProductID} })
		case syncwire.SalesDailyRequest:
			rows, convErr := dailyRows(in, now)
			if convErr != nil {
				return convErr
			}
			result.Created, result.Updated, err = upsertRows(tx, rows,
				[]string{"summary_date", "category", "shop", "location"},
				[]string{"total_units_sold", "total_transactions", "total_revenue", "last_updated"},
				func(r SalesSummaryDaily) []any { return []any{r.SummaryDate, r.Category, r.Shop, r.Location} })
		case syncwire.TopProductsRequest:
			rows, convErr := topRows(in, now)
			if convErr != nil {
				return convErr
			}
			from, to, _ := parsePeriod(in.PeriodStart, in.PeriodEnd)
			err = tx.Where("period_type = ? AND period_start = ? AND period_end = ?", in.PeriodType, from, to).
				Delete(&TopSellingProduct{}).Error
			if err == nil && len(rows) > 0 {
				err = tx.Create(&rows).Error
				result.Created = len(rows)
			}
		case syncwire.StockAlertsRequest:
			err = s.applyAlerts(tx, in, now, &result)
		case syncwire.CategoryPerformanceRequest:
			rows, convErr := categoryRows(in, now)
			if convErr != nil {
				return convErr
			}
			result.Created, result.Updated, err = upsertRows(tx, rows,
				[]string{"period_start", "period_end", "category", "location"},
				[]string{"total_units_sold", "total_products_in_category", "average_stock_level", "total_revenue", "last_updated"},
				func(r CategoryPerformance) []any { return []any{r.PeriodStart, r.PeriodEnd, r.Category, r.Location} })
		case syncwire.ShopPerformanceRequest:
			rows, convErr := shopRows(in, now)
			if convErr != nil {
				return convErr
			}
			result.Created, result.Updated, err = upsertRows(tx, rows,
				[]string{"period_start", "period_end", "shop", "location"},
				[]string{"total_units_sold", "unique_products_sold", "current_stock_count", "total_revenue", "last_updated"},
				func(r ShopPerformance) []any { return []any{r.PeriodStart, r.PeriodEnd, r.Shop, r.Location} })
		default:
			return unknownAggregate(req)
		}
		return err
	})
	if err != nil {
		return AggregateResult{}, err
	}
	return result, nil
}

func (s *GormStore) applyAlerts(tx *gorm.DB, in syncwire.StockAlertsRequest, now time.Time, result *AggregateResult) error {
	if err := validateAlerts(in); err != nil {
		return err
	}
	var open []LowStockAlert
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("is_resolved = ?", false).Find(&open).Error; err != nil {
		return err
	}
	byProduct := make(map[int64]*LowStockAlert, len(open))
	for i := range open {
		byProduct[open[i].LocalProductID] = &open[i]
	}

	listed := make(map[int64]bool, len(in.Alerts))
	for _, a := range in.Alerts {
		listed[a.LocalProductID] = true
		if existing, ok := byProduct[a.LocalProductID]; ok {
			applyAlert(existing, a)
			if err := tx.Save(existing).Error; err != nil {
				return err
			}
			result.Updated++
			continue
		}
		alert := LowStockAlert{AlertDate: now}
		applyAlert(&alert, a)
		if err := tx.Create(&alert).Error; err != nil {
			return err
		}
		result.Created++
	}

	stale := make([]uint, 0)
	for _, alert := range open {
		if !listed[alert.LocalProductID] {
			stale = append(stale, alert.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	res := tx.Model(&LowStockAlert{}).Where("id IN ?", stale).
		Updates(map[string]any{"is_resolved": true, "resolved_date": now})
	if res.Error != nil {
		return res.Error
	}
	result.Resolved = int(res.RowsAffected)
	return nil
}

func (s *GormStore) AggregateCounts(ctx context.Context) (AggregateCounts, error) {
	var c AggregateCounts
	db := s.db.WithContext(ctx)
	for _, item := range []struct {
		model any
		where string
		dest  *int64
	}{
		{&InventorySnapshot{}, "", &c.Inventory},
		{&SalesSummaryDaily{}, "", &c.SalesSummaries},
		{&TopSellingProduct{}, "", &c.TopProducts},
		{&LowStockAlert{}, "is_resolved = false", &c.OpenAlerts},
		{&LowStockAlert{}, "is_resolved = true", &c.ResolvedAlerts},
		{&CategoryPerformance{}, "", &c.CategoryPerformance},
		{&ShopPerformance{}, "", &c.ShopPerformance},
	} {
		q := db.Model(item.model)
		if item.where != "" {
			q = q.Where(item.where)
		}
		if err := q.Count(item.dest).Error; err != nil {
			return AggregateCounts{}, err
		}
	}
	return c, nil
}
