package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"storefront/internal/models"
	"storefront/internal/resilience"
)

const cacheKey = "products"

type ProductSource interface {
	GetProducts(ctx context.Context) ([]models.ProductData, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Catalog keeps the product list the storefront renders. It is loaded once at
// start-up and refreshed on a schedule.
type Catalog struct {
	source   ProductSource
	cache    Cache
	cacheTTL time.Duration

	mu       sync.RWMutex
	products []models.ProductData

	cron *cron.Cron
}

// New builds a catalog. cache may be nil.
func New(source ProductSource, cache Cache, cacheTTL time.Duration) *Catalog {
	return &Catalog{
		source:   source,
		cache:    cache,
		cacheTTL: cacheTTL,
		products: []models.ProductData{},
	}
}

// Load fetches products from the backend. When the backend has nothing to
// offer the last cached list is used instead.
func (c *Catalog) Load(ctx context.Context) error {
	var products []models.ProductData
	err := resilience.Retry(ctx, 3, 500*time.Millisecond, func(ctx context.Context) error {
		res, err := c.source.GetProducts(ctx)
		if err != nil {
			return err
		}
		products = res
		return nil
	})

	if err != nil || len(products) == 0 {
		if cached, ok := c.fromCache(ctx); ok {
			slog.Warn("Products served from cache", "count", len(cached), "error", err)
			c.set(cached)
			return nil
		}
		if err != nil {
			return err
		}
	}

	c.set(products)
	c.toCache(ctx, products)
	slog.Info("Products loaded", "count", len(products))
	return nil
}

func (c *Catalog) fromCache(ctx context.Context) ([]models.ProductData, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, err := c.cache.Get(ctx, cacheKey)
	if err != nil {
		return nil, false
	}
	var products []models.ProductData
	if err := json.Unmarshal(data, &products); err != nil || len(products) == 0 {
		return nil, false
	}
	return products, true
}

func (c *Catalog) toCache(ctx context.Context, products []models.ProductData) {
	if c.cache == nil || len(products) == 0 {
		return
	}
	data, err := json.Marshal(products)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey, data, c.cacheTTL); err != nil {
		slog.Warn("Failed to cache products", "error", err)
	}
}

func (c *Catalog) set(products []models.ProductData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = products
}

// Products returns a copy of the current list.
func (c *Catalog) Products() []models.ProductData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.ProductData(nil), c.products...)
}

// Find looks a product up by id.
func (c *Catalog) Find(id int) (models.ProductData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return models.ProductData{}, false
}

// Start schedules refreshes using a cron spec such as "@every 5m".
func (c *Catalog) Start(spec string) error {
	c.cron = cron.New()
	_, err := c.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Load(ctx); err != nil {
			slog.Error("Product refresh failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

func (c *Catalog) Stop() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
}
