// Package analytics computes revenue and order rollups for a producer over a
// named time window. Rollups read completed lifecycle data only; cancelled
// orders never count. Aggregation happens in Go from windowed rows so the
// same code serves sqlite and postgres.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-pickup-market/cache"
	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/apperr"
)

// DefaultAnalyticsTTL is the cache TTL for rollups, the longest in the
// system: analytics tolerate staleness better than any other view.
const DefaultAnalyticsTTL = 30 * time.Minute

// Window names a reporting period ending now.
type Window string

const (
	WindowWeek    Window = "week"
	WindowMonth   Window = "month"
	WindowQuarter Window = "quarter"
	WindowYear    Window = "year"
)

// ParseWindow validates a wire value against the closed window set.
func ParseWindow(s string) (Window, bool) {
	switch Window(s) {
	case WindowWeek, WindowMonth, WindowQuarter, WindowYear:
		return Window(s), true
	}
	return "", false
}

// start returns the window's lower bound and its bucketing granularity.
// Short windows bucket by day, long ones by month.
func (w Window) start(now time.Time) (time.Time, string) {
	switch w {
	case WindowWeek:
		return now.AddDate(0, 0, -7), "day"
	case WindowMonth:
		return now.AddDate(0, -1, 0), "day"
	case WindowQuarter:
		return now.AddDate(0, -3, 0), "month"
	default:
		return now.AddDate(-1, 0, 0), "month"
	}
}

// Bucket is one time slice of the rollup.
type Bucket struct {
	Label   string  `json:"label"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// TopProduct is one entry of the best-seller ranking.
type TopProduct struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Revenue   float64 `json:"revenue"`
}

// Summary is the producer's rollup for one window.
type Summary struct {
	Window      Window       `json:"window"`
	From        time.Time    `json:"from"`
	To          time.Time    `json:"to"`
	Orders      int          `json:"orders"`
	Revenue     float64      `json:"revenue"`
	Cancelled   int          `json:"cancelled"`
	Buckets     []Bucket     `json:"buckets"`
	TopProducts []TopProduct `json:"top_products"`
}

// Service computes cached analytics rollups.
type Service struct {
	db     *bun.DB
	cache  *cache.Service
	keys   cache.KeyBuilder
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewService(db *bun.DB, cacheSvc *cache.Service, keys cache.KeyBuilder, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  cacheSvc,
		keys:   keys,
		logger: logger,
		ttl:    DefaultAnalyticsTTL,
		now:    time.Now,
	}
}

// topProductLimit caps the best-seller ranking.
const topProductLimit = 5

// Summarize returns the producer's rollup for the window, cached under
// analytics:<producerID>:<window>.
func (s *Service) Summarize(ctx context.Context, producerID, window string) (*Summary, error) {
	w, ok := ParseWindow(window)
	if !ok {
		return nil, apperr.Newf(apperr.InvalidInput, "invalid_window", "unknown analytics window %q", window)
	}

	key := s.keys.EntityKey("analytics", producerID, string(w))
	return cache.GetOrSet(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*Summary, error) {
		return s.compute(ctx, producerID, w)
	})
}

func (s *Service) compute(ctx context.Context, producerID string, w Window) (*Summary, error) {
	now := s.now().UTC()
	from, granularity := w.start(now)

	var orders []*store.Order
	if err := s.db.NewSelect().Model(&orders).
		Relation("Items").
		Where("o.producer_id = ?", producerID).
		Where("o.created_at >= ?", from).
		Order("o.created_at ASC").
		Scan(ctx); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "store_error", "loading orders for analytics")
	}

	summary := &Summary{Window: w, From: from, To: now}
	buckets := make(map[string]*Bucket)
	products := make(map[string]*TopProduct)

	for _, order := range orders {
		if order.Status == store.OrderStatusCanceled {
			summary.Cancelled++
			continue
		}
		summary.Orders++
		summary.Revenue += order.Total

		label := bucketLabel(order.CreatedAt, granularity)
		b, ok := buckets[label]
		if !ok {
			b = &Bucket{Label: label}
			buckets[label] = b
		}
		b.Orders++
		b.Revenue += order.Total

		for _, item := range order.Items {
			p, ok := products[item.ProductID]
			if !ok {
				p = &TopProduct{ProductID: item.ProductID, Name: item.ProductName}
				products[item.ProductID] = p
			}
			p.Quantity += item.Quantity
			p.Revenue += item.Subtotal
		}
	}

	summary.Buckets = make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		summary.Buckets = append(summary.Buckets, *b)
	}
	sort.Slice(summary.Buckets, func(i, j int) bool {
		return summary.Buckets[i].Label < summary.Buckets[j].Label
	})

	summary.TopProducts = make([]TopProduct, 0, len(products))
	for _, p := range products {
		summary.TopProducts = append(summary.TopProducts, *p)
	}
	sort.Slice(summary.TopProducts, func(i, j int) bool {
		if summary.TopProducts[i].Revenue != summary.TopProducts[j].Revenue {
			return summary.TopProducts[i].Revenue > summary.TopProducts[j].Revenue
		}
		return summary.TopProducts[i].ProductID < summary.TopProducts[j].ProductID
	})
	if len(summary.TopProducts) > topProductLimit {
		summary.TopProducts = summary.TopProducts[:topProductLimit]
	}

	return summary, nil
}

// bucketLabel keys an order into its time slice. Labels sort
// chronologically as plain strings.
func bucketLabel(t time.Time, granularity string) string {
	t = t.UTC()
	if granularity == "month" {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}
