// Package carts manages the customer's pre-order staging area. Cart items
// carry a display snapshot of the product taken at add time; the snapshot is
// only refreshed by an explicit Resync, never implicitly.
package carts

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/apperr"
)

// Service manages one cart per customer.
type Service struct {
	db     *bun.DB
	logger *slog.Logger
}

func NewService(db *bun.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Get returns the customer's cart, creating an empty one on first use.
func (s *Service) Get(ctx context.Context, customerID string) (*store.Cart, error) {
	cart := new(store.Cart)
	err := s.db.NewSelect().Model(cart).
		Relation("Items").
		Where("c.customer_id = ?", customerID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return s.create(ctx, customerID)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading cart")
	}
	if cart.Items == nil {
		cart.Items = []*store.CartItem{}
	}
	return cart, nil
}

func (s *Service) create(ctx context.Context, customerID string) (*store.Cart, error) {
	now := time.Now().UTC()
	cart := &store.Cart{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Items:      []*store.CartItem{},
	}
	if _, err := s.db.NewInsert().Model(cart).Exec(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "creating cart")
	}
	return cart, nil
}

// AddInput is the add-to-cart payload.
type AddInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (in AddInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.ProductID, validation.Required),
		validation.Field(&in.Quantity, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return apperr.Wrap(err, apperr.InvalidInput, "invalid_cart_item", "invalid cart item")
	}
	return nil
}

// AddItem puts a product into the cart, snapshotting its display fields.
// Adding a product already present raises its quantity instead.
func (s *Service) AddItem(ctx context.Context, customerID string, in AddInput) (*store.Cart, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	cart, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	product := new(store.Product)
	err = s.db.NewSelect().Model(product).Where("p.id = ?", in.ProductID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "product_not_found", "product not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading product")
	}
	if !product.Available {
		return nil, apperr.New(apperr.InvalidInput, "product_unavailable", "product is not available")
	}

	producer := new(store.Producer)
	if err := s.db.NewSelect().Model(producer).Where("pr.id = ?", product.ProducerID).Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading producer")
	}

	now := time.Now().UTC()
	for _, item := range cart.Items {
		if item.ProductID == in.ProductID {
			item.Quantity += in.Quantity
			item.UpdatedAt = now
			if _, err := s.db.NewUpdate().Model(item).
				Column("quantity", "updated_at").
				WherePK().
				Exec(ctx); err != nil {
				return nil, apperr.Wrap(err, apperr.Internal, "store_error", "updating cart item")
			}
			return s.Get(ctx, customerID)
		}
	}

	item := &store.CartItem{
		ID:           uuid.NewString(),
		CartID:       cart.ID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		UnitPrice:    product.Price,
		Unit:         product.Unit,
		ProducerName: producer.Name,
		ImageURL:     product.ImageURL,
		Category:     product.Category,
		Quantity:     in.Quantity,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.db.NewInsert().Model(item).Exec(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "adding cart item")
	}
	return s.Get(ctx, customerID)
}

// UpdateItemQuantity sets a line's quantity; zero removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, customerID, itemID string, quantity int) (*store.Cart, error) {
	if quantity < 0 {
		return nil, apperr.New(apperr.InvalidInput, "invalid_quantity", "quantity must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, customerID, itemID)
	}

	cart, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	res, err := s.db.NewUpdate().Model((*store.CartItem)(nil)).
		Set("quantity = ?", quantity).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ? AND cart_id = ?", itemID, cart.ID).
		Exec(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "updating cart item")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "updating cart item")
	}
	if affected == 0 {
		return nil, apperr.New(apperr.NotFound, "cart_item_not_found", "cart item not found")
	}
	return s.Get(ctx, customerID)
}

// RemoveItem deletes one line from the cart.
func (s *Service) RemoveItem(ctx context.Context, customerID, itemID string) (*store.Cart, error) {
	cart, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	res, err := s.db.NewDelete().Model((*store.CartItem)(nil)).
		Where("id = ? AND cart_id = ?", itemID, cart.ID).
		Exec(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "removing cart item")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "removing cart item")
	}
	if affected == 0 {
		return nil, apperr.New(apperr.NotFound, "cart_item_not_found", "cart item not found")
	}
	return s.Get(ctx, customerID)
}

// Clear empties the cart, typically after a successful order.
func (s *Service) Clear(ctx context.Context, customerID string) error {
	cart, err := s.Get(ctx, customerID)
	if err != nil {
		return err
	}
	if _, err := s.db.NewDelete().Model((*store.CartItem)(nil)).
		Where("cart_id = ?", cart.ID).
		Exec(ctx); err != nil {
		return apperr.Wrap(err, apperr.Internal, "store_error", "clearing cart")
	}
	return nil
}

// Resync refreshes every line's snapshot against the live product. Lines
// whose product vanished or became unavailable are dropped; the cart reports
// what changed.
type ResyncResult struct {
	Cart    *store.Cart `json:"cart"`
	Updated int         `json:"updated"`
	Dropped int         `json:"dropped"`
}

func (s *Service) Resync(ctx context.Context, customerID string) (*ResyncResult, error) {
	cart, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	result := &ResyncResult{}
	now := time.Now().UTC()
	for _, item := range cart.Items {
		product := new(store.Product)
		err := s.db.NewSelect().Model(product).Where("p.id = ?", item.ProductID).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !product.Available) {
			if _, err := s.db.NewDelete().Model(item).WherePK().Exec(ctx); err != nil {
				return nil, apperr.Wrap(err, apperr.Internal, "store_error", "dropping cart item")
			}
			result.Dropped++
			continue
		}
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading product")
		}

		if item.UnitPrice == product.Price && item.ProductName == product.Name &&
			item.ImageURL == product.ImageURL && item.Category == product.Category {
			continue
		}
		item.ProductName = product.Name
		item.UnitPrice = product.Price
		item.Unit = product.Unit
		item.ImageURL = product.ImageURL
		item.Category = product.Category
		item.UpdatedAt = now
		if _, err := s.db.NewUpdate().Model(item).
			Column("product_name", "unit_price", "unit", "image_url", "category", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "store_error", "refreshing cart item")
		}
		result.Updated++
	}

	cart, err = s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	result.Cart = cart
	return result, nil
}
