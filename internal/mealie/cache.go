package mealie

import (
	"sync"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// DefaultCatalogTTL is used when no TTL is configured.
const DefaultCatalogTTL = 5 * time.Minute

// catalogEntry holds one cached catalog listing.
type catalogEntry[T any] struct {
	expiry time.Time
	items  []T
	ok     bool
}

func (e catalogEntry[T]) fresh(now time.Time) bool {
	return e.ok && now.Before(e.expiry)
}

// CatalogCache keeps the unit and food listings between commands.
// Writes that change the catalog invalidate the affected side.
type CatalogCache struct {
	now   func() time.Time
	units catalogEntry[model.Unit]
	foods catalogEntry[model.Food]
	ttl   time.Duration
	mu    sync.RWMutex
}

// NewCatalogCache creates a cache with the given TTL. A zero TTL uses the default,
// a negative TTL disables caching.
func NewCatalogCache(ttl time.Duration) *CatalogCache {
	if ttl == 0 {
		ttl = DefaultCatalogTTL
	}
	return &CatalogCache{ttl: ttl, now: time.Now}
}

// Units returns cached units if present and unexpired.
func (c *CatalogCache) Units() ([]model.Unit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.units.fresh(c.now()) {
		return nil, false
	}
	return c.units.items, true
}

// Foods returns cached foods if present and unexpired.
func (c *CatalogCache) Foods() ([]model.Food, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.foods.fresh(c.now()) {
		return nil, false
	}
	return c.foods.items, true
}

// SetUnits stores a unit listing.
func (c *CatalogCache) SetUnits(units []model.Unit) {
	if c.ttl < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = catalogEntry[model.Unit]{items: units, expiry: c.now().Add(c.ttl), ok: true}
}

// SetFoods stores a food listing.
func (c *CatalogCache) SetFoods(foods []model.Food) {
	if c.ttl < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.foods = catalogEntry[model.Food]{items: foods, expiry: c.now().Add(c.ttl), ok: true}
}

// Invalidate drops the cached listing for one axis.
func (c *CatalogCache) Invalidate(axis model.Axis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if axis == model.AxisFood {
		c.foods = catalogEntry[model.Food]{}
		return
	}
	c.units = catalogEntry[model.Unit]{}
}

// Clear drops everything.
func (c *CatalogCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = catalogEntry[model.Unit]{}
	c.foods = catalogEntry[model.Food]{}
}
