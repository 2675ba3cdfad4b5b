// Package orders implements the order lifecycle: creation with snapshot
// pricing inside a single transaction, status updates scoped to the owning
// producer, and cached paginated order views.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/cache"
	"github.com/goliatone/go-pickup-market/internal/notify"
	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/apperr"
)

// Notifier is the slice of the notification collaborator this package needs.
// Sends are fire-and-forget: errors are logged, never propagated.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, event notify.OrderNotification) error
	SendOrderStatusUpdate(ctx context.Context, event notify.OrderNotification) error
	SendProducerOrderNotification(ctx context.Context, event notify.OrderNotification) error
}

// DefaultListTTL is the cache TTL for order list views. Orders move fast, so
// this is the shortest TTL in the system.
const DefaultListTTL = 30 * time.Second

// Service is the order lifecycle manager.
type Service struct {
	db       *bun.DB
	cache    *cache.Service
	keys     cache.KeyBuilder
	notifier Notifier
	logger   *slog.Logger
	listTTL  time.Duration
}

// NewService wires the lifecycle manager. The cache service may be degraded;
// the notifier must not be nil (use notify.NewLogNotifier as the default).
func NewService(db *bun.DB, cacheSvc *cache.Service, keys cache.KeyBuilder, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		cache:    cacheSvc,
		keys:     keys,
		notifier: notifier,
		logger:   logger,
		listTTL:  DefaultListTTL,
	}
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreateInput is the order creation request.
type CreateInput struct {
	CustomerID      string      `json:"-"`
	ProducerID      string      `json:"producer_id"`
	Items           []ItemInput `json:"items"`
	PickupDate      *time.Time  `json:"pickup_date,omitempty"`
	PickupPoint     string      `json:"pickup_point,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	PaymentMethodID string      `json:"payment_method_id,omitempty"`
}

// Validate checks the request shape before any store access.
func (in CreateInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.CustomerID, validation.Required),
		validation.Field(&in.ProducerID, validation.Required),
		validation.Field(&in.Items, validation.Required, validation.Length(1, 0)),
	)
	if err != nil {
		return apperr.Wrap(err, apperr.InvalidInput, "invalid_order", "invalid order request")
	}
	for _, item := range in.Items {
		if err := validation.ValidateStruct(&item,
			validation.Field(&item.ProductID, validation.Required),
			validation.Field(&item.Quantity, validation.Required, validation.Min(1)),
		); err != nil {
			return apperr.Wrap(err, apperr.InvalidInput, "invalid_order_item", "invalid order item")
		}
	}
	return nil
}

// Create checks the producer and products, snapshots current prices into the
// item rows, and persists the order, its items, and the stock decrement as
// one transaction: either all of it becomes visible or none of it does.
// Confirmation notifications go out after commit.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	producer := new(store.Producer)
	err := s.db.NewSelect().Model(producer).Where("pr.id = ?", in.ProducerID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "producer_not_found", "producer not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading producer")
	}

	productIDs := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	var products []*store.Product
	if err := s.db.NewSelect().Model(&products).Where("p.id IN (?)", bun.In(productIDs)).Scan(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading products")
	}
	byID := make(map[string]*store.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := time.Now().UTC()
	order := &store.Order{
		ID:              uuid.NewString(),
		CustomerID:      in.CustomerID,
		ProducerID:      in.ProducerID,
		Status:          store.OrderStatusPending,
		PickupDate:      in.PickupDate,
		PickupPoint:     in.PickupPoint,
		Notes:           in.Notes,
		PaymentMethodID: in.PaymentMethodID,
		PaymentStatus:   store.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.PickupPoint == "" {
		order.PickupPoint = producer.PickupLocation
	}

	items := make([]*store.OrderItem, 0, len(in.Items))
	for _, line := range in.Items {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, apperr.Newf(apperr.NotFound, "product_not_found", "product %s not found", line.ProductID)
		}
		if product.ProducerID != in.ProducerID {
			return nil, apperr.Newf(apperr.InvalidInput, "cross_producer_order",
				"product %s belongs to a different producer", line.ProductID)
		}

		subtotal := float64(line.Quantity) * product.Price
		items = append(items, &store.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    subtotal,
		})
		order.Total += subtotal
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Stock is re-validated here, atomically with the insert: the
		// conditional decrement fails when a concurrent order drained the
		// product first.
		for _, item := range items {
			res, err := tx.NewUpdate().
				Model((*store.Product)(nil)).
				Set("stock = stock - ?", item.Quantity).
				Set("updated_at = ?", now).
				Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
				Exec(ctx)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return apperr.Newf(apperr.InvalidInput, "insufficient_stock",
					"not enough stock for product %s", item.ProductID)
			}
		}

		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&items).Exec(ctx)
		return err
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.Internal {
			return nil, err
		}
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "creating order")
	}
	order.Items = items

	event := s.notification(order)
	if err := s.notifier.SendOrderConfirmation(ctx, event); err != nil {
		s.logger.Error("order confirmation failed", "order_id", order.ID, "error", err)
	}
	if err := s.notifier.SendProducerOrderNotification(ctx, event); err != nil {
		s.logger.Error("producer notification failed", "order_id", order.ID, "error", err)
	}

	s.invalidateOrderViews(ctx, order.ProducerID, order.CustomerID)

	return order, nil
}

// UpdateStatus sets a new lifecycle status on an order owned by the calling
// producer. Orders of other producers answer with a uniform
// not-found-or-forbidden, leaking nothing about their existence.
//
// Any defined status may be assigned from any other: the linear
// pending → preparee → prete → recuperee flow is driven by the producer UI,
// not enforced here. Adding a transition guard would break direct jumps
// (e.g. pending → prete) that existing clients perform.
func (s *Service) UpdateStatus(ctx context.Context, orderID, target, producerID string) (*store.Order, error) {
	status, ok := store.ParseOrderStatus(target)
	if !ok {
		return nil, apperr.Newf(apperr.InvalidInput, "invalid_status", "unknown order status %q", target)
	}

	order := new(store.Order)
	err := s.db.NewSelect().Model(order).
		Where("o.id = ? AND o.producer_id = ?", orderID, producerID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFoundOrForbidden, "order_not_found", "order not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading order")
	}

	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	if _, err := s.db.NewUpdate().Model(order).
		Column("status", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "updating order status")
	}

	if err := s.notifier.SendOrderStatusUpdate(ctx, s.notification(order)); err != nil {
		s.logger.Error("status update notification failed", "order_id", order.ID, "error", err)
	}

	s.invalidateOrderViews(ctx, order.ProducerID, order.CustomerID)

	return order, nil
}

// UpdatePaymentStatus records the payment provider's verdict, keyed by the
// order ID carried in the payment intent metadata. It does not touch the
// pickup lifecycle status.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, status store.PaymentStatus, paymentIntentID string) error {
	res, err := s.db.NewUpdate().Model((*store.Order)(nil)).
		Set("payment_status = ?", status).
		Set("payment_intent_id = ?", paymentIntentID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(err, apperr.Internal, "store_error", "updating payment status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(err, apperr.Internal, "store_error", "updating payment status")
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, "order_not_found", "order not found")
	}
	return nil
}

// Get loads an order with its items. Callers pass the requesting identity;
// an order visible to neither the customer nor the producer answers with the
// same uniform not-found.
func (s *Service) Get(ctx context.Context, orderID, callerID string) (*store.Order, error) {
	order := new(store.Order)
	err := s.db.NewSelect().Model(order).
		Relation("Items").
		Where("o.id = ?", orderID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFoundOrForbidden, "order_not_found", "order not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading order")
	}
	if order.CustomerID != callerID && order.ProducerID != callerID {
		return nil, apperr.New(apperr.NotFoundOrForbidden, "order_not_found", "order not found")
	}
	return order, nil
}

// ListFilter narrows an order list view.
type ListFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

func (f ListFilter) validate() error {
	if f.Status != "" {
		if _, ok := store.ParseOrderStatus(f.Status); !ok {
			return apperr.Newf(apperr.InvalidInput, "invalid_status", "unknown order status %q", f.Status)
		}
	}
	return nil
}

func (f ListFilter) cacheFilters(page, limit int) map[string]any {
	return map[string]any{
		"status": f.Status,
		"from":   f.From,
		"to":     f.To,
		"page":   page,
		"limit":  limit,
	}
}

// ListByProducer returns the producer's orders, newest first, cached under
// the producer:<id>:orders prefix.
func (s *Service) ListByProducer(ctx context.Context, producerID string, filter ListFilter) (*store.Page[*store.Order], error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	page, limit := store.NormalizePage(filter.Page, filter.Limit)
	key := s.keys.QueryKey(s.keys.EntityKey("producer", producerID, "orders"), filter.cacheFilters(page, limit))

	return cache.GetOrSet(ctx, s.cache, key, s.listTTL, func(ctx context.Context) (*store.Page[*store.Order], error) {
		return s.list(ctx, "o.producer_id = ?", producerID, filter, page, limit)
	})
}

// ListByCustomer returns the customer's orders, newest first, cached under
// the customer:<id>:orders prefix.
func (s *Service) ListByCustomer(ctx context.Context, customerID string, filter ListFilter) (*store.Page[*store.Order], error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	page, limit := store.NormalizePage(filter.Page, filter.Limit)
	key := s.keys.QueryKey(s.keys.EntityKey("customer", customerID, "orders"), filter.cacheFilters(page, limit))

	return cache.GetOrSet(ctx, s.cache, key, s.listTTL, func(ctx context.Context) (*store.Page[*store.Order], error) {
		return s.list(ctx, "o.customer_id = ?", customerID, filter, page, limit)
	})
}

func (s *Service) list(ctx context.Context, ownerCond, ownerID string, filter ListFilter, page, limit int) (*store.Page[*store.Order], error) {
	var orders []*store.Order
	q := s.db.NewSelect().Model(&orders).
		Relation("Items").
		Where(ownerCond, ownerID)

	if filter.Status != "" {
		q = q.Where("o.status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("o.created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("o.created_at < ?", filter.To.UTC())
	}

	total, err := q.Order("o.created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "listing orders")
	}

	return store.NewPage(orders, total, page, limit), nil
}

// invalidateOrderViews clears every cached view an order mutation can have
// gone stale: the producer's keyspace, the customer's order lists, and the
// analytics rollups. Invalidation failure only costs freshness, so it is
// logged and swallowed.
func (s *Service) invalidateOrderViews(ctx context.Context, producerID, customerID string) {
	patterns := []string{
		s.keys.EntityKey("producer", producerID) + ":*",
		s.keys.EntityKey("customer", customerID, "orders") + "*",
		"analytics:*",
	}
	for _, pattern := range patterns {
		if err := s.cache.InvalidatePattern(ctx, pattern); err != nil && !errors.Is(err, cache.ErrStoreUnavailable) {
			s.logger.Warn("cache invalidation failed", "pattern", pattern, "error", err)
		}
	}
}

func (s *Service) notification(order *store.Order) notify.OrderNotification {
	return notify.OrderNotification{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		ProducerID:  order.ProducerID,
		Status:      string(order.Status),
		Total:       order.Total,
		PickupPoint: order.PickupPoint,
		PickupDate:  order.PickupDate,
		OccurredAt:  time.Now().UTC(),
	}
}
