package catalog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/cache"
	"github.com/goliatone/go-pickup-market/internal/cacheinfra"
	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/apperr"
	"github.com/goliatone/go-pickup-market/pkg/testsupport"
)

type countingRecorder struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (r *countingRecorder) Hit(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *countingRecorder) Miss(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func newTestService(t *testing.T) (*Service, *bun.DB, *countingRecorder) {
	t.Helper()

	db := testsupport.OpenTestDB(t)
	cacheStore, err := cacheinfra.NewSturdycStore(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build cache store: %v", err)
	}
	recorder := &countingRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(db, cache.NewService(cacheStore, cache.WithRecorder(recorder)),
		cache.NewKeyBuilder(), logger)
	return svc, db, recorder
}

func TestListProducts_CategoryServedFromCache(t *testing.T) {
	svc, db, recorder := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	carrots := testsupport.SeedProduct(t, db, shop, "Carottes", 2.00, 50)
	leeks := testsupport.SeedProduct(t, db, shop, "Poireaux", 3.00, 20)
	honey := testsupport.SeedProduct(t, db, shop, "Miel", 8.00, 5)
	for _, p := range []*store.Product{carrots, leeks} {
		if _, err := db.NewUpdate().Model((*store.Product)(nil)).
			Set("category = ?", "Légumes").
			Where("id = ?", p.ID).
			Exec(ctx); err != nil {
			t.Fatalf("failed to categorize product: %v", err)
		}
	}

	first, err := svc.ListProducts(ctx, ProductFilter{Category: "Légumes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Total != 2 {
		t.Fatalf("expected 2 légumes, got %d", first.Total)
	}
	for _, p := range first.Items {
		if p.ID == honey.ID {
			t.Errorf("category filter leaked %s", p.Name)
		}
	}

	missesBefore := recorder.misses

	// Second identical request within the TTL: one store query total.
	second, err := svc.ListProducts(ctx, ProductFilter{Category: "Légumes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorder.misses != missesBefore {
		t.Errorf("second identical listing hit the store again")
	}
	if len(second.Items) != len(first.Items) {
		t.Fatalf("responses differ: %d vs %d items", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		if first.Items[i].ID != second.Items[i].ID {
			t.Errorf("responses differ at %d: %s vs %s", i, first.Items[i].ID, second.Items[i].ID)
		}
	}
}

func TestListProducts_HidesUnavailable(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)
	hidden := testsupport.SeedProduct(t, db, shop, "Courges", 4.00, 10)
	if _, err := db.NewUpdate().Model((*store.Product)(nil)).
		Set("available = ?", false).
		Where("id = ?", hidden.ID).
		Exec(ctx); err != nil {
		t.Fatalf("failed to hide product: %v", err)
	}

	page, err := svc.ListProducts(ctx, ProductFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "Tomates" {
		t.Errorf("expected only Tomates, got %+v", page.Items)
	}
}

func TestListProducts_FilterOrderIndependentKey(t *testing.T) {
	svc, db, recorder := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)

	if _, err := svc.ListProducts(ctx, ProductFilter{ShopID: shop.ID, ProducerID: producer.ID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	missesBefore := recorder.misses
	// Same logical filter must resolve to the same cache entry.
	if _, err := svc.ListProducts(ctx, ProductFilter{ProducerID: producer.ID, ShopID: shop.ID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorder.misses != missesBefore {
		t.Errorf("equivalent filters produced distinct cache keys")
	}
}

func TestGetProduct(t *testing.T) {
	svc, db, recorder := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	product := testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)

	got, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Tomates" {
		t.Errorf("expected Tomates, got %s", got.Name)
	}

	hitsBefore := recorder.hits
	if _, err := svc.GetProduct(ctx, product.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorder.hits != hitsBefore+1 {
		t.Errorf("second read should come from cache")
	}

	if _, err := svc.GetProduct(ctx, "no-such-product"); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestCreateShop_InvalidatesProducerShopList(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	testsupport.SeedShop(t, db, producer.ID, "Le Potager")

	before, err := svc.ListShopsByProducer(ctx, producer.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected 1 shop, got %d", len(before))
	}

	if _, err := svc.CreateShop(ctx, producer.ID, ShopInput{Name: "La Fromagerie"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The cached list must be refetched even though its TTL has not elapsed.
	after, err := svc.ListShopsByProducer(ctx, producer.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(after) != 2 {
		t.Errorf("cached shop list survived invalidation: %d shops", len(after))
	}
}

func TestUpdateShop_ForeignProducerUniformDenial(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	owner := testsupport.SeedProducer(t, db, "ferme-durand")
	intruder := testsupport.SeedProducer(t, db, "ferme-intruse")
	shop := testsupport.SeedShop(t, db, owner.ID, "Le Potager")

	_, err := svc.UpdateShop(ctx, shop.ID, intruder.ID, ShopInput{Name: "Taken Over"})
	if !apperr.IsKind(err, apperr.NotFoundOrForbidden) {
		t.Fatalf("expected NotFoundOrForbidden, got %v", err)
	}

	_, err2 := svc.UpdateShop(ctx, "no-such-shop", intruder.ID, ShopInput{Name: "X"})
	if apperr.CodeOf(err) != apperr.CodeOf(err2) {
		t.Errorf("denial is distinguishable: %v vs %v", err, err2)
	}
}

func TestDeleteShop_RemovesProducts(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)

	if err := svc.DeleteShop(ctx, shop.ID, producer.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := db.NewSelect().Model((*store.Product)(nil)).
		Where("shop_id = ?", shop.ID).
		Count(ctx)
	if err != nil {
		t.Fatalf("failed to count products: %v", err)
	}
	if n != 0 {
		t.Errorf("expected products removed with shop, got %d", n)
	}
}

func TestCreateProduct_RequiresOwnedShop(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	owner := testsupport.SeedProducer(t, db, "ferme-durand")
	intruder := testsupport.SeedProducer(t, db, "ferme-intruse")
	shop := testsupport.SeedShop(t, db, owner.ID, "Le Potager")

	_, err := svc.CreateProduct(ctx, intruder.ID, ProductInput{
		ShopID: shop.ID, Name: "Tomates", Price: 3.50, Stock: 10, Available: true,
	})
	if !apperr.IsKind(err, apperr.NotFoundOrForbidden) {
		t.Fatalf("expected NotFoundOrForbidden, got %v", err)
	}

	product, err := svc.CreateProduct(ctx, owner.ID, ProductInput{
		ShopID: shop.ID, Name: "Tomates", Category: "Légumes",
		Unit: "kg", Price: 3.50, Stock: 10, Available: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.ProducerID != owner.ID {
		t.Errorf("product owned by %s", product.ProducerID)
	}
}

func TestCreateProduct_RejectsBadPayload(t *testing.T) {
	svc, db, _ := newTestService(t)

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")

	cases := []ProductInput{
		{ShopID: shop.ID, Price: 3.50},                                // no name
		{Name: "Tomates", Price: 3.50},                                // no shop
		{ShopID: shop.ID, Name: "Tomates", Price: -1},                 // negative price
		{ShopID: shop.ID, Name: "Tomates", Price: 3.50, Stock: -5},    // negative stock
	}
	for i, in := range cases {
		if _, err := svc.CreateProduct(context.Background(), producer.ID, in); !apperr.IsKind(err, apperr.InvalidInput) {
			t.Errorf("case %d: expected InvalidInput, got %v", i, err)
		}
	}
}

func TestUpdateProduct_InvalidatesSingleProductView(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	product := testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)

	if _, err := svc.GetProduct(ctx, product.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.UpdateProduct(ctx, product.ID, producer.ID, ProductInput{
		ShopID: shop.ID, Name: "Tomates anciennes", Category: "Légumes",
		Unit: "kg", Price: 4.50, Stock: 10, Available: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Tomates anciennes" || got.Price != 4.50 {
		t.Errorf("cached product survived invalidation: %+v", got)
	}
}

func TestDeleteProduct_ForeignProducerDenied(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	owner := testsupport.SeedProducer(t, db, "ferme-durand")
	intruder := testsupport.SeedProducer(t, db, "ferme-intruse")
	shop := testsupport.SeedShop(t, db, owner.ID, "Le Potager")
	product := testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)

	if err := svc.DeleteProduct(ctx, product.ID, intruder.ID); !apperr.IsKind(err, apperr.NotFoundOrForbidden) {
		t.Fatalf("expected NotFoundOrForbidden, got %v", err)
	}
	if err := svc.DeleteProduct(ctx, product.ID, owner.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearchProducers(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	testsupport.SeedProducer(t, db, "Ferme Durand")
	testsupport.SeedProducer(t, db, "Rucher des Collines")

	page, err := svc.SearchProducers(ctx, ProducerFilter{Search: "durand"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "Ferme Durand" {
		t.Errorf("expected Ferme Durand, got %+v", page.Items)
	}
}

func TestCatalog_DegradedCacheStillServes(t *testing.T) {
	db := testsupport.OpenTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(db, cache.NewService(cacheinfra.UnavailableStore{}),
		cache.NewKeyBuilder(), logger)
	ctx := context.Background()

	producer := testsupport.SeedProducer(t, db, "ferme-durand")
	shop := testsupport.SeedShop(t, db, producer.ID, "Le Potager")
	testsupport.SeedProduct(t, db, shop, "Tomates", 3.50, 10)

	for i := 0; i < 3; i++ {
		page, err := svc.ListProducts(ctx, ProductFilter{})
		if err != nil {
			t.Fatalf("listing must survive a dead cache: %v", err)
		}
		if page.Total != 1 {
			t.Fatalf("expected 1 product, got %d", page.Total)
		}
	}

	if _, err := svc.CreateShop(ctx, producer.ID, ShopInput{Name: "La Fromagerie"}); err != nil {
		t.Fatalf("mutation must survive a dead cache: %v", err)
	}
}
