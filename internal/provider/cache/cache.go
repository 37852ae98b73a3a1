package cache

import (
	"context"
	"sync"
	"time"

	"marketdash/internal/provider"
)

// entry stores the cached quote for a single symbol with expiry.
type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Provider caches quotes per symbol for a TTL. When the underlying provider
// fails, a previously cached quote is served even if it has expired, as long
// as it is younger than StaleFor. Entitlement failures are never masked this
// way: they reach the caller so the fallback chain can back off the provider.
type Provider struct {
	P        provider.QuoteProvider
	TTL      time.Duration
	StaleFor time.Duration
	MaxItems int
	// Now defaults to time.Now.
	Now func() time.Time

	mu    sync.RWMutex
	items map[string]entry // key: normalized symbol
}

func (c *Provider) Name() string { return c.P.Name() }

func (c *Provider) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Quote returns the cached quote when valid, otherwise asks the wrapped provider.
func (c *Provider) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	if c.TTL <= 0 {
		return c.P.Quote(ctx, symbol)
	}

	key := provider.NormalizeSymbol(symbol)
	now := c.now()

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.quote, nil
	}

	fresh, err := c.P.Quote(ctx, symbol)
	if err != nil {
		if ok && !provider.IsEntitlement(err) && now.Before(e.expiresAt.Add(c.StaleFor)) {
			return e.quote, nil
		}
		return provider.Quote{}, err
	}

	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[key] = entry{expiresAt: now.Add(c.TTL), quote: fresh}
	c.evictLocked(now)
	c.mu.Unlock()

	return fresh, nil
}

// evictLocked caps the cache size: expired entries go first, then arbitrary ones.
func (c *Provider) evictLocked(now time.Time) {
	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return
	}
	for k, v := range c.items {
		if now.After(v.expiresAt.Add(c.StaleFor)) {
			delete(c.items, k)
		}
	}
	for k := range c.items {
		if len(c.items) <= c.MaxItems {
			break
		}
		delete(c.items, k)
	}
}

// Len reports the number of cached symbols.
func (c *Provider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
