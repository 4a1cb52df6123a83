package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/example/bytespark/pkg/models"
	"github.com/example/bytespark/pkg/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Catalog resolves product references for carts and checkout. Store reads
// are shared between concurrent callers asking for the same id set and
// refresh the product cache.
type Catalog struct {
	products ProductStore
	cache    ProductCache
	logger   *zap.Logger
	sfg      singleflight.Group
}

// NewCatalog builds a Catalog. cache may be nil.
func NewCatalog(products ProductStore, cache ProductCache, logger *zap.Logger) *Catalog {
	return &Catalog{
		products: products,
		cache:    cache,
		logger:   logger,
	}
}

// Resolve returns the products that currently exist for ids, keyed by id,
// read from the store. Ids that do not resolve are absent from the result.
// Checkout and cart mutations use it so deleted or repriced products are
// seen immediately.
func (c *Catalog) Resolve(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	found := make(map[string]*models.Product, len(ids))
	if err := c.load(ctx, unique(ids), found); err != nil {
		return nil, err
	}
	return found, nil
}

// ResolveCached is Resolve served from the product cache where possible.
// Entries may lag the store by up to the cache TTL, so it is only used for
// read-only views.
func (c *Catalog) ResolveCached(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	if c.cache == nil {
		return c.Resolve(ctx, ids)
	}

	found := make(map[string]*models.Product, len(ids))
	var missing []string
	for _, id := range unique(ids) {
		p, err := c.cache.GetProductCache(ctx, id)
		if err == nil {
			found[id] = p
			continue
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			c.logger.Warn("product cache read failed", zap.String("product_id", id), zap.Error(err))
		}
		missing = append(missing, id)
	}

	if err := c.load(ctx, missing, found); err != nil {
		return nil, err
	}
	return found, nil
}

// load reads ids from the store into found and refreshes the cache.
func (c *Catalog) load(ctx context.Context, ids []string, found map[string]*models.Product) error {
	if len(ids) == 0 {
		return nil
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	// The shared read must not fail for everyone when the first caller goes away.
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.sfg.Do(strings.Join(sorted, ","), func() (interface{}, error) {
		return c.products.FindByIDs(shared, sorted)
	})
	if err != nil {
		return err
	}

	for id, p := range v.(map[string]*models.Product) {
		found[id] = p
		if c.cache != nil {
			if err := c.cache.CacheProduct(ctx, p); err != nil {
				c.logger.Warn("product cache write failed", zap.String("product_id", id), zap.Error(err))
			}
		}
	}
	return nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
