package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spectra/engine/internal/store"
)

// DefaultTokenPollInterval is how often the token list is refetched.
const DefaultTokenPollInterval = 5 * time.Second

// TokenSource returns the current token list.
type TokenSource interface {
	FetchTokens(ctx context.Context) ([]store.Token, error)
}

// TokenCache is the token explorer's address -> record map. Unlike the market
// cache every fetch carries full records, so known tokens are overwritten in
// place while first-seen order is kept.
type TokenCache struct {
	mu      sync.RWMutex
	records map[string]store.Token
	order   []string
}

// NewTokenCache creates an empty TokenCache.
func NewTokenCache() *TokenCache {
	return &TokenCache{records: make(map[string]store.Token)}
}

// Upsert merges tokens and returns how many were new.
func (c *TokenCache) Upsert(tokens []store.Token) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, t := range tokens {
		if t.Address == "" {
			continue
		}
		if _, ok := c.records[t.Address]; !ok {
			c.order = append(c.order, t.Address)
			added++
		}
		c.records[t.Address] = t
	}
	return added
}

// Get returns the token for address.
func (c *TokenCache) Get(address string) (store.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.records[address]
	return t, ok
}

// All returns every token in first-seen order.
func (c *TokenCache) All() []store.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]store.Token, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id])
	}
	return out
}

// PollTokens refreshes cache from source until ctx is done. Fetch errors are
// logged and the previous records kept.
func PollTokens(ctx context.Context, source TokenSource, cache *TokenCache, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenPollInterval
	}
	logger := slog.Default().WithGroup("tokens")

	poll := func() {
		tokens, err := source.FetchTokens(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("token_fetch_failed", "error", err)
			}
			return
		}
		if added := cache.Upsert(tokens); added > 0 {
			logger.Debug("tokens_merged", "added", added, "total", len(tokens))
		}
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
