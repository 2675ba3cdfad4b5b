package carts

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/apperr"
	"github.com/goliatone/go-pickup-market/pkg/testsupport"
)

func newTestService(t *testing.T) (*Service, *bun.DB) {
	t.Helper()
	db := testsupport.OpenTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, logger), db
}

func seedCatalog(t *testing.T, db *bun.DB) (*store.Customer, *store.Product) {
	t.Helper()
	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	customer := testsupport.SeedCustomer(t, db, "alice")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	product := testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)
	return customer, product
}

func TestGet_CreatesEmptyCartOnFirstUse(t *testing.T) {
	svc, db := newTestService(t)
	customer := testsupport.SeedCustomer(t, db, "alice")

	cart, err := svc.Get(context.Background(), customer.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.CustomerID != customer.ID || len(cart.Items) != 0 {
		t.Errorf("expected empty cart for customer, got %+v", cart)
	}

	again, err := svc.Get(context.Background(), customer.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != cart.ID {
		t.Errorf("second Get created a new cart")
	}
}

func TestAddItem_SnapshotsProductDisplayFields(t *testing.T) {
	svc, db := newTestService(t)
	customer, product := seedCatalog(t, db)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, customer.ID, AddInput{ProductID: product.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(cart.Items))
	}
	item := cart.Items[0]
	if item.ProductName != "Tomates" || item.UnitPrice != 3.50 || item.Quantity != 2 {
		t.Errorf("bad snapshot: %+v", item)
	}
	if item.ProducerName != "ferme-durand" {
		t.Errorf("expected producer name snapshot, got %q", item.ProducerName)
	}
}

func TestAddItem_SnapshotSurvivesPriceChange(t *testing.T) {
	svc, db := newTestService(t)
	customer, product := seedCatalog(t, db)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, customer.ID, AddInput{ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := db.NewUpdate().Model((*store.Product)(nil)).
		Set("price = ?", 9.99).
		Where("id = ?", product.ID).
		Exec(ctx); err != nil {
		t.Fatalf("failed to reprice product: %v", err)
	}

	cart, err := svc.Get(ctx, customer.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Items[0].UnitPrice != 3.50 {
		t.Errorf("snapshot price changed to %v without resync", cart.Items[0].UnitPrice)
	}
}

func TestAddItem_MergesDuplicateProduct(t *testing.T) {
	svc, db := newTestService(t)
	customer, product := seedCatalog(t, db)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, customer.ID, AddInput{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cart, err := svc.AddItem(ctx, customer.ID, AddInput{ProductID: product.ID, Quantity: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 5 {
		t.Errorf("expected merged line with quantity 5, got %+v", cart.Items)
	}
}

func TestAddItem_RejectsUnavailableProduct(t *testing.T) {
	svc, db := newTestService(t)
	customer, product := seedCatalog(t, db)
	ctx := context.Background()

	if _, err := db.NewUpdate().Model((*store.Product)(nil)).
		Set("available = ?", false).
		Where("id = ?", product.ID).
		Exec(ctx); err != nil {
		t.Fatalf("failed to hide product: %v", err)
	}

	_, err := svc.AddItem(ctx, customer.ID, AddInput{ProductID: product.ID, Quantity: 1})
	if apperr.CodeOf(err) != "product_unavailable" {
		t.Fatalf("expected product_unavailable, got %v", err)
	}

	_, err = svc.AddItem(ctx, customer.ID, AddInput{ProductID: "no-such", Quantity: 1})
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUpdateItemQuantity(t *testing.T) {
	svc, db := newTestService(t)
	customer, product := seedCatalog(t, db)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, customer.ID, AddInput{ProductID: product.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	itemID := cart.Items[0].ID

	cart, err = svc.UpdateItemQuantity(ctx, customer.ID, itemID, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Items[0].Quantity != 7 {
		t.Errorf("expected quantity 7, got %d", cart.Items[0].Quantity)
	}

	// Zero removes the line.
	cart, err = svc.UpdateItemQuantity(ctx, customer.ID, itemID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(cart.Items))
	}

	if _, err := svc.UpdateItemQuantity(ctx, customer.ID, itemID, -1); !apperr.IsKind(err, apperr.InvalidInput) {
		t.Errorf("expected InvalidInput for negative quantity, got %v", err)
	}
	if _, err := svc.UpdateItemQuantity(ctx, customer.ID, "no-such-item", 3); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestClear(t *testing.T) {
	svc, db := newTestService(t)
	customer, product := seedCatalog(t, db)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, customer.ID, AddInput{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Clear(ctx, customer.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cart, err := svc.Get(ctx, customer.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Errorf("expected empty cart after clear, got %d items", len(cart.Items))
	}
}

func TestResync_RefreshesSnapshotsAndDropsDeadLines(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	customer := testsupport.SeedCustomer(t, db, "alice")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	repriced := testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)
	vanishing := testsupport.SeedProduct(t, db, shop, "Courges", 4.00, 10)
	stable := testsupport.SeedProduct(t, db, shop, "Miel", 8.00, 5)

	for _, p := range []*store.Product{repriced, vanishing, stable} {
		if _, err := svc.AddItem(ctx, customer.ID, AddInput{ProductID: p.ID, Quantity: 1}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if _, err := db.NewUpdate().Model((*store.Product)(nil)).
		Set("price = ?", 5.00).
		Set("name = ?", "Tomates anciennes").
		Where("id = ?", repriced.ID).
		Exec(ctx); err != nil {
		t.Fatalf("failed to reprice: %v", err)
	}
	if _, err := db.NewDelete().Model((*store.Product)(nil)).
		Where("id = ?", vanishing.ID).
		Exec(ctx); err != nil {
		t.Fatalf("failed to delete product: %v", err)
	}

	result, err := svc.Resync(ctx, customer.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Updated != 1 || result.Dropped != 1 {
		t.Errorf("expected 1 updated / 1 dropped, got %d / %d", result.Updated, result.Dropped)
	}
	if len(result.Cart.Items) != 2 {
		t.Fatalf("expected 2 surviving items, got %d", len(result.Cart.Items))
	}
	for _, item := range result.Cart.Items {
		switch item.ProductID {
		case repriced.ID:
			if item.UnitPrice != 5.00 || item.ProductName != "Tomates anciennes" {
				t.Errorf("snapshot not refreshed: %+v", item)
			}
		case stable.ID:
			if item.UnitPrice != 8.00 {
				t.Errorf("stable snapshot changed: %+v", item)
			}
		default:
			t.Errorf("unexpected surviving item %s", item.ProductID)
		}
	}
}
