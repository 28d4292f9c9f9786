package platform

import (
	"context"
	"sync"
	"time"

	"pushbridge/internal/storage"
	logx "pushbridge/pkg/logx"
)

// Settings location of the persisted registration token.
const (
	tokenNamespace = "pushbridge"
	tokenKey       = "token"
)

// TokenCache holds the last registration token seen on the platform stream.
// When a store is configured the token survives restarts, so a configure
// right after startup can still rebroadcast it.
type TokenCache struct {
	log   logx.Logger
	store storage.Store

	mu    sync.RWMutex
	token *string
}

func NewTokenCache(store storage.Store, log logx.Logger) *TokenCache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TokenCache{log: log, store: store}
}

// Load reads the persisted token, if any. Missing or failing storage leaves
// the cache empty.
func (c *TokenCache) Load(ctx context.Context) {
	if c.store == nil {
		return
	}
	v, ok, err := c.store.Get(ctx, tokenNamespace, tokenKey)
	if err != nil {
		c.log.Warn("token load failed", logx.Err(err))
		return
	}
	if !ok || v == "" {
		return
	}
	c.mu.Lock()
	c.token = &v
	c.mu.Unlock()
}

// Current returns a copy of the cached token (nil when none).
func (c *TokenCache) Current() *string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return nil
	}
	v := *c.token
	return &v
}

// Set replaces the cached token and persists it best-effort. A nil token
// clears the cache.
func (c *TokenCache) Set(ctx context.Context, token *string) {
	c.mu.Lock()
	if token == nil {
		c.token = nil
	} else {
		v := *token
		c.token = &v
	}
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	val := ""
	if token != nil {
		val = *token
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
	defer cancel()
	if err := c.store.Set(sctx, tokenNamespace, tokenKey, val); err != nil {
		c.log.Warn("token persist failed", logx.Err(err))
	}
}
