package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mystore/backend/internal/cache"
	"mystore/backend/internal/domain"
	"mystore/backend/internal/ledger"
	"mystore/backend/internal/roles"
	"mystore/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	if _, err := s.authorize(ctx, roles.ProductsView); err != nil {
		return nil, err
	}
	q.Location = strings.ToUpper(strings.TrimSpace(q.Location))

	key := cache.ProductListKey(q)
	var cached []domain.Product
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Debugf("product cache read failed: %v", err)
	} else if hit {
		return cached, nil
	}

	products, err := s.repo.ListProducts(ctx, store.ProductFilter(q))
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, products, s.cacheTTL); err != nil {
		s.logger.Debugf("product cache write failed: %v", err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if _, err := s.authorize(ctx, roles.ProductsView); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// ProductStats is served from the cache until the next product write.
func (s *Service) ProductStats(ctx context.Context) (domain.ProductStats, error) {
	if _, err := s.authorize(ctx, roles.ProductsView); err != nil {
		return domain.ProductStats{}, err
	}

	var stats domain.ProductStats
	if hit, err := s.cache.Get(ctx, cache.ProductStatsKey, &stats); err == nil && hit {
		return stats, nil
	}

	products, err := s.repo.ListProducts(ctx, nil)
	if err != nil {
		return domain.ProductStats{}, err
	}
	stats = summariseProducts(products)
	if err := s.cache.Set(ctx, cache.ProductStatsKey, stats, s.cacheTTL); err != nil {
		s.logger.Debugf("product cache write failed: %v", err)
	}
	return stats, nil
}

func summariseProducts(products []domain.Product) domain.ProductStats {
	stats := domain.ProductStats{
		StockValue: decimal.Zero,
		ByLocation: make(map[string]domain.LocationStats),
	}
	for _, p := range products {
		value := p.SellingPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
		stats.TotalProducts++
		stats.TotalUnits += p.Quantity
		stats.StockValue = stats.StockValue.Add(value)
		if p.Quantity == 0 {
			stats.OutOfStock++
		}

		loc := stats.ByLocation[p.Location]
		loc.Products++
		loc.Units += p.Quantity
		loc.StockValue = ledger.Money(loc.StockValue.Add(value))
		stats.ByLocation[p.Location] = loc
	}
	stats.StockValue = ledger.Money(stats.StockValue)
	return stats
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.authorize(ctx, roles.ProductsEdit); err != nil {
		return domain.Product{}, err
	}

	req.Brand = strings.TrimSpace(req.Brand)
	req.Category = strings.TrimSpace(req.Category)
	req.Size = strings.TrimSpace(req.Size)
	req.Color = strings.TrimSpace(req.Color)
	req.Location = strings.ToUpper(strings.TrimSpace(req.Location))
	req.Barcode = strings.TrimSpace(req.Barcode)
	if err := validateStruct(req); err != nil {
		return domain.Product{}, err
	}
	if req.Price.IsNegative() {
		return domain.Product{}, domain.Invalid("price", "must not be negative")
	}
	if req.Markup.IsNegative() {
		return domain.Product{}, domain.Invalid("markup", "must not be negative")
	}

	product := domain.Product{
		Brand:        req.Brand,
		Category:     req.Category,
		Size:         req.Size,
		Color:        req.Color,
		Design:       strings.TrimSpace(req.Design),
		Price:        ledger.Money(req.Price),
		MarkupType:   req.MarkupType,
		Markup:       req.Markup,
		SellingPrice: ledger.SellingPrice(req.Price, req.MarkupType, req.Markup),
		Quantity:     req.Quantity,
		Shop:         strings.TrimSpace(req.Shop),
		Location:     req.Location,
		Barcode:      req.Barcode,
		CreatedAt:    s.now(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateProducts(ctx)
	s.logAudit(ctx, "product_create", "product", fmt.Sprint(created.ID),
		fmt.Sprintf("barcode=%s,brand=%s,location=%s,qty=%d", created.Barcode, created.Brand, created.Location, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.authorize(ctx, roles.ProductsEdit); err != nil {
		return domain.Product{}, err
	}
	if err := validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	textFields := []struct {
		name  string
		value *string
		dest  *string
	}{
		{"brand", req.Brand, &updated.Brand},
		{"category", req.Category, &updated.Category},
		{"size", req.Size, &updated.Size},
		{"color", req.Color, &updated.Color},
	}
	for _, field := range textFields {
		if field.value == nil {
			continue
		}
		value := strings.TrimSpace(*field.value)
		if value == "" {
			return domain.Product{}, domain.Invalid(field.name, "must not be empty")
		}
		*field.dest = value
	}
	if req.Design != nil {
		updated.Design = strings.TrimSpace(*req.Design)
	}
	if req.Shop != nil {
		updated.Shop = strings.TrimSpace(*req.Shop)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, domain.Invalid("price", "must not be negative")
		}
		updated.Price = ledger.Money(*req.Price)
	}
	if req.MarkupType != nil {
		updated.MarkupType = *req.MarkupType
	}
	if req.Markup != nil {
		if req.Markup.IsNegative() {
			return domain.Product{}, domain.Invalid("markup", "must not be negative")
		}
		updated.Markup = *req.Markup
	}
	updated.SellingPrice = ledger.SellingPrice(updated.Price, updated.MarkupType, updated.Markup)

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateProducts(ctx)
	s.logAudit(ctx, "product_update", "product", fmt.Sprint(saved.ID),
		fmt.Sprintf("price=%s,selling_price=%s", saved.Price.StringFixed(2), saved.SellingPrice.StringFixed(2)))
	return *saved, nil
}

func (s *Service) AdjustStock(ctx context.Context, productID int64, req domain.StockAdjustRequest) (domain.Product, error) {
	if _, err := s.authorize(ctx, roles.ProductsEdit); err != nil {
		return domain.Product{}, err
	}
	req.Reason = strings.ToLower(strings.TrimSpace(req.Reason))
	if err := validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.AdjustStock(ctx, productID, req.Delta)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateProducts(ctx)
	s.logAudit(ctx, "stock_adjust", "product", fmt.Sprint(product.ID),
		fmt.Sprintf("delta=%d,reason=%s,qty=%d", req.Delta, req.Reason, product.Quantity))
	return *product, nil
}

func (s *Service) TransferStock(ctx context.Context, req domain.TransferRequest) (domain.StockTransfer, error) {
	actor, err := s.authorize(ctx, roles.ProductsEdit)
	if err != nil {
		return domain.StockTransfer{}, err
	}
	req.ToLocation = strings.ToUpper(strings.TrimSpace(req.ToLocation))
	if err := validateStruct(req); err != nil {
		return domain.StockTransfer{}, err
	}

	transfer, err := s.repo.TransferStock(ctx, req.ProductID, req.ToLocation, req.Quantity, actor.Username, s.now())
	if err != nil {
		return domain.StockTransfer{}, err
	}
	s.invalidateProducts(ctx)
	s.logAudit(ctx, "stock_transfer", "stock_transfer", transfer.Reference,
		fmt.Sprintf("product=%d,to_product=%d,%s->%s,qty=%d", transfer.ProductID, transfer.DestinationProductID, transfer.FromLocation, transfer.ToLocation, transfer.Quantity))
	return *transfer, nil
}
