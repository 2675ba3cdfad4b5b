package analytics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/cache"
	"github.com/goliatone/go-pickup-market/internal/cacheinfra"
	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/apperr"
	"github.com/goliatone/go-pickup-market/pkg/testsupport"
)

func newTestService(t *testing.T) (*Service, *bun.DB) {
	t.Helper()

	db := testsupport.OpenTestDB(t)
	cacheStore, err := cacheinfra.NewSturdycStore(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build cache store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(db, cache.NewService(cacheStore), cache.NewKeyBuilder(), logger)
	return svc, db
}

// insertOrder writes an order with one item directly, bypassing the order
// service, so tests control created_at freely.
func insertOrder(t *testing.T, db *bun.DB, producerID, customerID string, status store.OrderStatus, total float64, productID, productName string, qty int, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()

	order := &store.Order{
		ID:            uuid.NewString(),
		CustomerID:    customerID,
		ProducerID:    producerID,
		Status:        status,
		Total:         total,
		PaymentStatus: store.PaymentStatusPaid,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	if _, err := db.NewInsert().Model(order).Exec(ctx); err != nil {
		t.Fatalf("failed to insert order: %v", err)
	}
	item := &store.OrderItem{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		ProductID:   productID,
		ProductName: productName,
		Quantity:    qty,
		UnitPrice:   total / float64(qty),
		Subtotal:    total,
	}
	if _, err := db.NewInsert().Model(item).Exec(ctx); err != nil {
		t.Fatalf("failed to insert order item: %v", err)
	}
}

func TestSummarize_WeekWindow(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	customer := testsupport.SeedCustomer(t, db, "alice")
	now := time.Now().UTC()

	insertOrder(t, db, producer.ID, customer.ID, store.OrderStatusPickedUp, 10.00, "p-tomates", "Tomates", 2, now.AddDate(0, 0, -1))
	insertOrder(t, db, producer.ID, customer.ID, store.OrderStatusReady, 20.00, "p-miel", "Miel", 2, now.AddDate(0, 0, -2))
	// Cancelled orders are excluded from revenue and counts.
	insertOrder(t, db, producer.ID, customer.ID, store.OrderStatusCanceled, 99.00, "p-truffes", "Truffes", 1, now.AddDate(0, 0, -1))
	// Outside the window.
	insertOrder(t, db, producer.ID, customer.ID, store.OrderStatusPickedUp, 50.00, "p-vin", "Vin", 1, now.AddDate(0, 0, -30))

	summary, err := svc.Summarize(ctx, producer.ID, "week")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Orders != 2 {
		t.Errorf("expected 2 orders, got %d", summary.Orders)
	}
	if summary.Revenue != 30.00 {
		t.Errorf("expected revenue 30.00, got %v", summary.Revenue)
	}
	if summary.Cancelled != 1 {
		t.Errorf("expected 1 cancelled, got %d", summary.Cancelled)
	}
	if len(summary.Buckets) != 2 {
		t.Errorf("expected 2 day buckets, got %d", len(summary.Buckets))
	}

	if len(summary.TopProducts) != 2 {
		t.Fatalf("expected 2 top products, got %d", len(summary.TopProducts))
	}
	if summary.TopProducts[0].Name != "Miel" {
		t.Errorf("expected Miel ranked first by revenue, got %s", summary.TopProducts[0].Name)
	}
}

func TestSummarize_ScopedToProducer(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	producerA := testsupport.SeedProducer(t, db, "ferme-a")
	producerB := testsupport.SeedProducer(t, db, "ferme-b")
	customer := testsupport.SeedCustomer(t, db, "alice")
	now := time.Now().UTC()

	insertOrder(t, db, producerA.ID, customer.ID, store.OrderStatusPickedUp, 10.00, "p1", "Tomates", 1, now.AddDate(0, 0, -1))
	insertOrder(t, db, producerB.ID, customer.ID, store.OrderStatusPickedUp, 77.00, "p2", "Miel", 1, now.AddDate(0, 0, -1))

	summary, err := svc.Summarize(ctx, producerA.ID, "month")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Revenue != 10.00 {
		t.Errorf("expected revenue 10.00 for producer A only, got %v", summary.Revenue)
	}
}

func TestSummarize_MonthBucketsForLongWindows(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	customer := testsupport.SeedCustomer(t, db, "alice")
	now := time.Now().UTC()

	insertOrder(t, db, producer.ID, customer.ID, store.OrderStatusPickedUp, 10.00, "p1", "Tomates", 1, now.AddDate(0, 0, -10))
	insertOrder(t, db, producer.ID, customer.ID, store.OrderStatusPickedUp, 20.00, "p1", "Tomates", 2, now.AddDate(0, -2, 0))

	summary, err := svc.Summarize(ctx, producer.ID, "quarter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range summary.Buckets {
		if len(b.Label) != len("2006-01") {
			t.Errorf("expected month-granularity labels, got %q", b.Label)
		}
	}
	if summary.Orders != 2 {
		t.Errorf("expected 2 orders in quarter, got %d", summary.Orders)
	}
}

func TestSummarize_RejectsUnknownWindow(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Summarize(context.Background(), "p1", "fortnight")
	if apperr.CodeOf(err) != "invalid_window" {
		t.Fatalf("expected invalid_window, got %v", err)
	}
}

func TestSummarize_CachesPerWindow(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	customer := testsupport.SeedCustomer(t, db, "alice")
	now := time.Now().UTC()
	insertOrder(t, db, producer.ID, customer.ID, store.OrderStatusPickedUp, 10.00, "p1", "Tomates", 1, now.AddDate(0, 0, -1))

	first, err := svc.Summarize(ctx, producer.ID, "week")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second order lands but the cached rollup still answers.
	insertOrder(t, db, producer.ID, customer.ID, store.OrderStatusPickedUp, 20.00, "p1", "Tomates", 2, now)

	second, err := svc.Summarize(ctx, producer.ID, "week")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Revenue != first.Revenue {
		t.Errorf("expected cached rollup, got recomputed revenue %v", second.Revenue)
	}

	// The analytics:* pattern is what order mutations clear.
	if err := svc.cache.InvalidatePattern(ctx, "analytics:*"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	third, err := svc.Summarize(ctx, producer.ID, "week")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Revenue != 30.00 {
		t.Errorf("expected refreshed revenue 30.00, got %v", third.Revenue)
	}
}
