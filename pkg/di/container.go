// Package di wires the process graph: configuration, store, cache backend,
// services, and the HTTP handler. Components receive their dependencies
// through constructors; nothing in the module reaches for globals.
package di

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/cache"
	"github.com/goliatone/go-pickup-market/internal/analytics"
	"github.com/goliatone/go-pickup-market/internal/auth"
	"github.com/goliatone/go-pickup-market/internal/cacheinfra"
	"github.com/goliatone/go-pickup-market/internal/carts"
	"github.com/goliatone/go-pickup-market/internal/catalog"
	"github.com/goliatone/go-pickup-market/internal/config"
	"github.com/goliatone/go-pickup-market/internal/notify"
	"github.com/goliatone/go-pickup-market/internal/orders"
	"github.com/goliatone/go-pickup-market/internal/payments"
	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/metrics"
)

// Container holds the singleton instances shared across the process. The
// cache service in particular is created once and handed to every component
// that reads through it.
type Container struct {
	cfg    config.Config
	logger *slog.Logger

	db           *bun.DB
	cacheService *cache.Service
	keyBuilder   cache.KeyBuilder

	registry      *prometheus.Registry
	serverMetrics *metrics.ServerMetrics

	orders    *orders.Service
	catalog   *catalog.Service
	analytics *analytics.Service
	carts     *carts.Service
	payments  payments.Provider
	notifier  orders.Notifier
	keys      *auth.Keys
}

// New builds the full graph from configuration. The caller owns Close.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Container, error) {
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := store.Bootstrap(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	cacheMetrics := metrics.NewCacheMetrics(registry)
	serverMetrics := metrics.NewServerMetrics(registry)

	// A disabled cache wires the unavailable store: same code paths, every
	// read degrades to a fetch.
	var cacheStore cache.Store = cacheinfra.UnavailableStore{}
	if cfg.CacheEnabled {
		cacheStore, err = cacheinfra.NewSturdycStore(cache.DefaultConfig())
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	cacheService := cache.NewService(cacheStore, cache.WithRecorder(cacheMetrics))
	keyBuilder := cache.NewKeyBuilder()

	var notifier orders.Notifier = notify.NewLogNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		notifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	c := &Container{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		cacheService:  cacheService,
		keyBuilder:    keyBuilder,
		registry:      registry,
		serverMetrics: serverMetrics,
		orders:        orders.NewService(db, cacheService, keyBuilder, notifier, logger),
		catalog:       catalog.NewService(db, cacheService, keyBuilder, logger),
		analytics:     analytics.NewService(db, cacheService, keyBuilder, logger),
		carts:         carts.NewService(db, logger),
		payments:      payments.NewStripeProvider(cfg.StripeAPIKey, cfg.StripeWebhookSecret),
		notifier:      notifier,
		keys:          auth.NewKeys(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
	}
	return c, nil
}

// Close releases the container's long-lived resources.
func (c *Container) Close() error {
	if closer, ok := c.notifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("closing notifier", "error", err)
		}
	}
	return c.db.Close()
}

func (c *Container) DB() *bun.DB { return c.db }

func (c *Container) CacheService() *cache.Service { return c.cacheService }

func (c *Container) KeyBuilder() cache.KeyBuilder { return c.keyBuilder }

func (c *Container) Registry() *prometheus.Registry { return c.registry }

func (c *Container) ServerMetrics() *metrics.ServerMetrics { return c.serverMetrics }

func (c *Container) Orders() *orders.Service { return c.orders }

func (c *Container) Catalog() *catalog.Service { return c.catalog }

func (c *Container) Analytics() *analytics.Service { return c.analytics }

func (c *Container) Carts() *carts.Service { return c.carts }

func (c *Container) Payments() payments.Provider { return c.payments }

func (c *Container) Keys() *auth.Keys { return c.keys }

func (c *Container) Config() config.Config { return c.cfg }
