// Package catalog reads product master data for inventory materialization.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/orderledger/internal/cache"
	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

// DefaultTTL is how long a product stays in the redis cache
const DefaultTTL = 10 * time.Minute

// Catalog looks up products by inventory ref, through redis when available
type Catalog struct {
	cache  *cache.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// New creates a catalog reader; c may be nil
func New(c *cache.Client, logger *logrus.Logger) *Catalog {
	return &Catalog{cache: c, ttl: DefaultTTL, logger: logger}
}

func cacheKey(id uint) string {
	return fmt.Sprintf("catalog:product:%d", id)
}

// Lookup returns the product with the given id, or (nil, nil) when the
// catalog has no such entry. Cache errors are logged and fall through to the store.
func (c *Catalog) Lookup(ctx context.Context, tx *gorm.DB, id uint) (*models.Product, error) {
	var p models.Product
	found, err := c.cache.GetObject(ctx, cacheKey(id), &p)
	if err != nil {
		c.logger.WithError(err).WithField("product_id", id).Warn("catalog cache read failed")
	}
	if found {
		return &p, nil
	}

	err = tx.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup product %d: %w", id, err)
	}

	if err := c.cache.SetObject(ctx, cacheKey(id), &p, c.ttl); err != nil {
		c.logger.WithError(err).WithField("product_id", id).Warn("catalog cache write failed")
	}
	return &p, nil
}

// Invalidate drops a cached product
func (c *Catalog) Invalidate(ctx context.Context, id uint) error {
	return c.cache.Delete(ctx, cacheKey(id))
}
