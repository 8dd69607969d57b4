// Package adapters composes catalog backends into the single catalog the
// services consume.
package adapters

import (
	"context"
	"time"

	"budgetflow/internal/cache"
	"budgetflow/internal/catalog"
	"budgetflow/internal/core"
)

var _ catalog.Catalog = (*CachedCatalog)(nil)

const (
	accountsKey      = "accounts"
	incomeSourcesKey = "income_sources"
)

// CachedCatalog decorates a catalog with a short-lived read cache for
// accounts and income sources. Income sources may come from a separate
// reader (a spreadsheet) while everything else goes to the base catalog.
type CachedCatalog struct {
	catalog.Catalog

	incomes  catalog.IncomeSourceReader
	accounts *cache.LRUCache[[]core.Account]
	sources  *cache.LRUCache[[]core.IncomeSource]
}

// NewCachedCatalog wraps base. A nil incomes reader uses base for income
// sources. A zero ttl disables caching.
func NewCachedCatalog(base catalog.Catalog, incomes catalog.IncomeSourceReader, ttl time.Duration) *CachedCatalog {
	if incomes == nil {
		incomes = base
	}
	c := &CachedCatalog{Catalog: base, incomes: incomes}
	if ttl > 0 {
		c.accounts = cache.NewLRUCache[[]core.Account](1, ttl)
		c.sources = cache.NewLRUCache[[]core.IncomeSource](1, ttl)
	}
	return c
}

// Register adds the caches to a cleanup manager.
func (c *CachedCatalog) Register(m *cache.Manager) {
	if c.accounts == nil {
		return
	}
	m.Register(c.accounts)
	m.Register(c.sources)
}

// SetClock drives cache expiry in tests.
func (c *CachedCatalog) SetClock(now func() time.Time) {
	if c.accounts == nil {
		return
	}
	c.accounts.SetClock(now)
	c.sources.SetClock(now)
}

func (c *CachedCatalog) ListAccounts(ctx context.Context) ([]core.Account, error) {
	if c.accounts == nil {
		return c.Catalog.ListAccounts(ctx)
	}
	if v, ok := c.accounts.Get(accountsKey); ok {
		return append([]core.Account(nil), v...), nil
	}
	v, err := c.Catalog.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	c.accounts.Set(accountsKey, v)
	return append([]core.Account(nil), v...), nil
}

func (c *CachedCatalog) ListIncomeSources(ctx context.Context) ([]core.IncomeSource, error) {
	if c.sources == nil {
		return c.incomes.ListIncomeSources(ctx)
	}
	if v, ok := c.sources.Get(incomeSourcesKey); ok {
		return append([]core.IncomeSource(nil), v...), nil
	}
	v, err := c.incomes.ListIncomeSources(ctx)
	if err != nil {
		return nil, err
	}
	c.sources.Set(incomeSourcesKey, v)
	return append([]core.IncomeSource(nil), v...), nil
}

// Invalidate drops cached reads.
func (c *CachedCatalog) Invalidate() {
	if c.accounts == nil {
		return
	}
	c.accounts.Purge()
	c.sources.Purge()
}

// CacheStats reports combined hit and miss counters.
func (c *CachedCatalog) CacheStats() (hits, misses uint64) {
	if c.accounts == nil {
		return 0, 0
	}
	ah, am := c.accounts.Stats()
	sh, sm := c.sources.Stats()
	return ah + sh, am + sm
}
