// Package testsupport provides database and fixture helpers shared by the
// service test suites.
package testsupport

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/internal/store"
)

var dbSeq atomic.Int64

// OpenTestDB opens a fresh in-memory sqlite database with the full schema
// applied. Each call gets its own database; the connection is closed when
// the test finishes.
func OpenTestDB(t *testing.T) *bun.DB {
	t.Helper()

	// A named shared-cache DSN keeps the schema alive across the pooled
	// connections bun may open.
	dsn := fmt.Sprintf("file:test-%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := store.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := store.Bootstrap(context.Background(), db); err != nil {
		t.Fatalf("failed to bootstrap schema: %v", err)
	}

	return db
}

// SeedProducer inserts a producer with sensible defaults.
func SeedProducer(t *testing.T, db *bun.DB, name string) *store.Producer {
	t.Helper()

	now := time.Now().UTC()
	producer := &store.Producer{
		ID:             uuid.NewString(),
		Name:           name,
		Email:          fmt.Sprintf("%s-%s@test.local", name, uuid.NewString()[:8]),
		PickupLocation: name + " farm gate",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := db.NewInsert().Model(producer).Exec(context.Background()); err != nil {
		t.Fatalf("failed to seed producer: %v", err)
	}
	return producer
}

// SeedCustomer inserts a customer with sensible defaults.
func SeedCustomer(t *testing.T, db *bun.DB, name string) *store.Customer {
	t.Helper()

	now := time.Now().UTC()
	customer := &store.Customer{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     fmt.Sprintf("%s-%s@test.local", name, uuid.NewString()[:8]),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := db.NewInsert().Model(customer).Exec(context.Background()); err != nil {
		t.Fatalf("failed to seed customer: %v", err)
	}
	return customer
}

// SeedShop inserts a shop owned by the given producer.
func SeedShop(t *testing.T, db *bun.DB, producerID, name string) *store.Shop {
	t.Helper()

	now := time.Now().UTC()
	shop := &store.Shop{
		ID:         uuid.NewString(),
		ProducerID: producerID,
		Name:       name,
		Address:    "1 Market Lane",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := db.NewInsert().Model(shop).Exec(context.Background()); err != nil {
		t.Fatalf("failed to seed shop: %v", err)
	}
	return shop
}

// SeedProduct inserts an available product in the given shop.
func SeedProduct(t *testing.T, db *bun.DB, shop *store.Shop, name string, price float64, stock int) *store.Product {
	t.Helper()

	now := time.Now().UTC()
	product := &store.Product{
		ID:         uuid.NewString(),
		ShopID:     shop.ID,
		ProducerID: shop.ProducerID,
		Name:       name,
		Category:   "divers",
		Unit:       "kg",
		Price:      price,
		Stock:      stock,
		Available:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := db.NewInsert().Model(product).Exec(context.Background()); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return product
}
