// Package catalog serves the public product/shop/producer views and the
// producer-side catalog mutations. Reads go through the cache; every mutation
// clears the exact set of views it can have gone stale.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/cache"
	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/apperr"
)

// DefaultCatalogTTL is the cache TTL for catalog views. Catalog data changes
// slowly, so it sits between the order and analytics TTLs.
const DefaultCatalogTTL = 5 * time.Minute

// Service exposes catalog reads and producer-scoped catalog writes.
type Service struct {
	db     *bun.DB
	cache  *cache.Service
	keys   cache.KeyBuilder
	logger *slog.Logger
	ttl    time.Duration
}

func NewService(db *bun.DB, cacheSvc *cache.Service, keys cache.KeyBuilder, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  cacheSvc,
		keys:   keys,
		logger: logger,
		ttl:    DefaultCatalogTTL,
	}
}

// ProductFilter narrows the public product listing. Only available products
// are ever listed.
type ProductFilter struct {
	Category   string
	Search     string
	ShopID     string
	ProducerID string
	Page       int
	Limit      int
}

// ListProducts returns available products matching the filter, cached per
// distinct filter combination.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) (*store.Page[*store.Product], error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit)
	key := s.keys.QueryKey("products", map[string]any{
		"category": filter.Category,
		"search":   filter.Search,
		"shop":     filter.ShopID,
		"producer": filter.ProducerID,
		"page":     page,
		"limit":    limit,
	})

	return cache.GetOrSet(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*store.Page[*store.Product], error) {
		var products []*store.Product
		q := s.db.NewSelect().Model(&products).Where("p.available = ?", true)

		if filter.Category != "" {
			q = q.Where("p.category = ?", filter.Category)
		}
		if filter.Search != "" {
			q = q.Where("lower(p.name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
		}
		if filter.ShopID != "" {
			q = q.Where("p.shop_id = ?", filter.ShopID)
		}
		if filter.ProducerID != "" {
			q = q.Where("p.producer_id = ?", filter.ProducerID)
		}

		total, err := q.Order("p.name ASC").
			Limit(limit).
			Offset((page - 1) * limit).
			ScanAndCount(ctx)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "store_error", "listing products")
		}
		return store.NewPage(products, total, page, limit), nil
	})
}

// GetProduct returns a single product, cached under product:<id>.
func (s *Service) GetProduct(ctx context.Context, id string) (*store.Product, error) {
	key := s.keys.EntityKey("product", id)

	return cache.GetOrSet(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*store.Product, error) {
		product := new(store.Product)
		err := s.db.NewSelect().Model(product).Where("p.id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "product_not_found", "product not found")
		}
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading product")
		}
		return product, nil
	})
}

// ShopFilter narrows the public shop listing.
type ShopFilter struct {
	Search string
	Page   int
	Limit  int
}

// ListShops returns shops matching the filter.
func (s *Service) ListShops(ctx context.Context, filter ShopFilter) (*store.Page[*store.Shop], error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit)
	key := s.keys.QueryKey("shops", map[string]any{
		"search": filter.Search,
		"page":   page,
		"limit":  limit,
	})

	return cache.GetOrSet(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*store.Page[*store.Shop], error) {
		var shops []*store.Shop
		q := s.db.NewSelect().Model(&shops)
		if filter.Search != "" {
			q = q.Where("lower(sh.name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
		}
		total, err := q.Order("sh.name ASC").
			Limit(limit).
			Offset((page - 1) * limit).
			ScanAndCount(ctx)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "store_error", "listing shops")
		}
		return store.NewPage(shops, total, page, limit), nil
	})
}

// ListShopsByProducer returns all of one producer's shops, cached under the
// exact key producer:<id>:shops.
func (s *Service) ListShopsByProducer(ctx context.Context, producerID string) ([]*store.Shop, error) {
	key := s.keys.EntityKey("producer", producerID, "shops")

	return cache.GetOrSet(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]*store.Shop, error) {
		var shops []*store.Shop
		if err := s.db.NewSelect().Model(&shops).
			Where("sh.producer_id = ?", producerID).
			Order("sh.name ASC").
			Scan(ctx); err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "store_error", "listing producer shops")
		}
		return shops, nil
	})
}

// ProducerFilter narrows the producer search.
type ProducerFilter struct {
	Search string
	Page   int
	Limit  int
}

// SearchProducers returns producers matching the filter.
func (s *Service) SearchProducers(ctx context.Context, filter ProducerFilter) (*store.Page[*store.Producer], error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit)
	key := s.keys.QueryKey("producers", map[string]any{
		"search": filter.Search,
		"page":   page,
		"limit":  limit,
	})

	return cache.GetOrSet(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*store.Page[*store.Producer], error) {
		var producers []*store.Producer
		q := s.db.NewSelect().Model(&producers)
		if filter.Search != "" {
			q = q.Where("lower(pr.name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
		}
		total, err := q.Order("pr.name ASC").
			Limit(limit).
			Offset((page - 1) * limit).
			ScanAndCount(ctx)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "store_error", "searching producers")
		}
		return store.NewPage(producers, total, page, limit), nil
	})
}

// ShopInput is the create/update payload for a shop.
type ShopInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     string `json:"address"`
}

func (in ShopInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
	)
	if err != nil {
		return apperr.Wrap(err, apperr.InvalidInput, "invalid_shop", "invalid shop payload")
	}
	return nil
}

// CreateShop adds a storefront for the producer.
func (s *Service) CreateShop(ctx context.Context, producerID string, in ShopInput) (*store.Shop, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	shop := &store.Shop{
		ID:          uuid.NewString(),
		ProducerID:  producerID,
		Name:        in.Name,
		Description: in.Description,
		Address:     in.Address,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(shop).Exec(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "creating shop")
	}

	s.invalidateShopViews(ctx, producerID)
	return shop, nil
}

// UpdateShop modifies a shop the producer owns. Other producers' shops answer
// with a uniform not-found-or-forbidden.
func (s *Service) UpdateShop(ctx context.Context, shopID, producerID string, in ShopInput) (*store.Shop, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	shop, err := s.ownedShop(ctx, shopID, producerID)
	if err != nil {
		return nil, err
	}

	shop.Name = in.Name
	shop.Description = in.Description
	shop.Address = in.Address
	shop.UpdatedAt = time.Now().UTC()
	if _, err := s.db.NewUpdate().Model(shop).
		Column("name", "description", "address", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "updating shop")
	}

	s.invalidateShopViews(ctx, producerID)
	return shop, nil
}

// DeleteShop removes a shop and its products in one transaction.
func (s *Service) DeleteShop(ctx context.Context, shopID, producerID string) error {
	if _, err := s.ownedShop(ctx, shopID, producerID); err != nil {
		return err
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*store.Product)(nil)).
			Where("shop_id = ?", shopID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*store.Shop)(nil)).
			Where("id = ?", shopID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return apperr.Wrap(err, apperr.Internal, "store_error", "deleting shop")
	}

	s.invalidateShopViews(ctx, producerID)
	s.invalidateProductViews(ctx, producerID, "", shopID)
	return nil
}

// ProductInput is the create/update payload for a product.
type ProductInput struct {
	ShopID      string  `json:"shop_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	ImageURL    string  `json:"image_url"`
	Available   bool    `json:"available"`
}

func (in ProductInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.ShopID, validation.Required),
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Price, validation.Min(0.0)),
		validation.Field(&in.Stock, validation.Min(0)),
	)
	if err != nil {
		return apperr.Wrap(err, apperr.InvalidInput, "invalid_product", "invalid product payload")
	}
	return nil
}

// CreateProduct adds a product to one of the producer's shops.
func (s *Service) CreateProduct(ctx context.Context, producerID string, in ProductInput) (*store.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.ownedShop(ctx, in.ShopID, producerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product := &store.Product{
		ID:          uuid.NewString(),
		ShopID:      in.ShopID,
		ProducerID:  producerID,
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Unit:        in.Unit,
		Price:       in.Price,
		Stock:       in.Stock,
		ImageURL:    in.ImageURL,
		Available:   in.Available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(product).Exec(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "creating product")
	}

	s.invalidateProductViews(ctx, producerID, product.ID, product.ShopID)
	return product, nil
}

// UpdateProduct modifies a product the producer owns.
func (s *Service) UpdateProduct(ctx context.Context, productID, producerID string, in ProductInput) (*store.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	product := new(store.Product)
	err := s.db.NewSelect().Model(product).
		Where("p.id = ? AND p.producer_id = ?", productID, producerID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFoundOrForbidden, "product_not_found", "product not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading product")
	}
	if in.ShopID != product.ShopID {
		if _, err := s.ownedShop(ctx, in.ShopID, producerID); err != nil {
			return nil, err
		}
	}

	product.ShopID = in.ShopID
	product.Name = in.Name
	product.Description = in.Description
	product.Category = in.Category
	product.Unit = in.Unit
	product.Price = in.Price
	product.Stock = in.Stock
	product.ImageURL = in.ImageURL
	product.Available = in.Available
	product.UpdatedAt = time.Now().UTC()
	if _, err := s.db.NewUpdate().Model(product).
		Column("shop_id", "name", "description", "category", "unit",
			"price", "stock", "image_url", "available", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "updating product")
	}

	s.invalidateProductViews(ctx, producerID, product.ID, product.ShopID)
	return product, nil
}

// DeleteProduct removes a product the producer owns.
func (s *Service) DeleteProduct(ctx context.Context, productID, producerID string) error {
	product := new(store.Product)
	err := s.db.NewSelect().Model(product).
		Where("p.id = ? AND p.producer_id = ?", productID, producerID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.NotFoundOrForbidden, "product_not_found", "product not found")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.Internal, "store_error", "loading product")
	}

	if _, err := s.db.NewDelete().Model((*store.Product)(nil)).
		Where("id = ?", productID).
		Exec(ctx); err != nil {
		return apperr.Wrap(err, apperr.Internal, "store_error", "deleting product")
	}

	s.invalidateProductViews(ctx, producerID, productID, product.ShopID)
	return nil
}

func (s *Service) ownedShop(ctx context.Context, shopID, producerID string) (*store.Shop, error) {
	shop := new(store.Shop)
	err := s.db.NewSelect().Model(shop).
		Where("sh.id = ? AND sh.producer_id = ?", shopID, producerID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFoundOrForbidden, "shop_not_found", "shop not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading shop")
	}
	return shop, nil
}

// invalidateShopViews clears every view a shop mutation touches: the owner's
// shop list, the public shop listings, and the producer keyspace.
func (s *Service) invalidateShopViews(ctx context.Context, producerID string) {
	s.invalidate(ctx, s.keys.EntityKey("producer", producerID, "shops"))
	s.invalidatePattern(ctx, "shops:*")
	s.invalidatePattern(ctx, s.keys.EntityKey("producer", producerID)+":*")
}

// invalidateProductViews clears the product listings, the single-product
// entry, the shop views embedding the product, and the producer keyspace.
func (s *Service) invalidateProductViews(ctx context.Context, producerID, productID, shopID string) {
	s.invalidatePattern(ctx, "products:*")
	if productID != "" {
		s.invalidate(ctx, s.keys.EntityKey("product", productID))
	}
	if shopID != "" {
		s.invalidatePattern(ctx, "shops:*"+shopID+"*")
	}
	s.invalidatePattern(ctx, s.keys.EntityKey("producer", producerID)+":*")
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil && !errors.Is(err, cache.ErrStoreUnavailable) {
		s.logger.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}

func (s *Service) invalidatePattern(ctx context.Context, pattern string) {
	if err := s.cache.InvalidatePattern(ctx, pattern); err != nil && !errors.Is(err, cache.ErrStoreUnavailable) {
		s.logger.Warn("cache invalidation failed", "pattern", pattern, "error", err)
	}
}
