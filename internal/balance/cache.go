// Package balance keeps native balances per (chain, account) with TTL,
// request coalescing and stale fallback.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/transport"
)

// Reading is a balance observation. The zero value is Unknown, which is not
// the same as a known zero balance.
type Reading struct {
	Wei        *big.Int
	CapturedAt time.Time
	Stale      bool
}

// Unknown means no balance has ever been observed for the key.
var Unknown = Reading{}

func (r Reading) Known() bool { return r.Wei != nil }

func (r Reading) String() string {
	if !r.Known() {
		return "unknown"
	}
	s := chain.FormatNative(r.Wei)
	if r.Stale {
		s += " (stale)"
	}
	return s
}

// Fetcher reads a balance. *transport.Pool satisfies it through PoolFetcher.
type Fetcher func(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error)

// PoolFetcher reads eth_getBalance at latest through the pool.
func PoolFetcher(p *transport.Pool) Fetcher {
	return func(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
		return transport.Read(ctx, p, chainID, func(ctx context.Context, r chain.Reader) (*big.Int, error) {
			return r.BalanceAt(ctx, account, nil)
		})
	}
}

type Config struct {
	TTL      time.Duration
	Debounce time.Duration
	// FetchTimeout bounds a shared refresh, which outlives any single caller.
	FetchTimeout time.Duration
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg   Config
	fetch Fetcher
	log   *zap.Logger

	store *cache.Cache
	group singleflight.Group
	gen   atomic.Uint64

	hookMu   sync.RWMutex
	onUpdate func(account common.Address, chainID uint64, r Reading)
}

type entry struct {
	wei *big.Int
	at  time.Time
}

func New(cfg Config, fetch Fetcher, log *zap.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		cfg:   cfg,
		fetch: fetch,
		log:   log.Named("balance"),
		// entries outlive the TTL so a failed refresh can fall back to them
		store: cache.New(cache.NoExpiration, 0),
	}
}

// OnUpdate registers the hook fired after every successful refresh.
func (c *Cache) OnUpdate(fn func(account common.Address, chainID uint64, r Reading)) {
	c.hookMu.Lock()
	c.onUpdate = fn
	c.hookMu.Unlock()
}

func key(chainID uint64, account common.Address) string {
	return fmt.Sprintf("%d:%s", chainID, account.Hex())
}

// Peek returns the stored reading without I/O.
func (c *Cache) Peek(account common.Address, chainID uint64) Reading {
	e, ok := c.lookup(key(chainID, account))
	if !ok {
		return Unknown
	}
	return Reading{Wei: new(big.Int).Set(e.wei), CapturedAt: e.at, Stale: time.Since(e.at) >= c.cfg.TTL}
}

func (c *Cache) lookup(k string) (entry, bool) {
	v, ok := c.store.Get(k)
	if !ok {
		return entry{}, false
	}
	return v.(entry), true
}

// Get returns the balance of account on chainID. A fresh entry is served from
// memory unless force is set. Concurrent refreshes of one key share a single
// fetch, started after the debounce window. When the fetch fails a previous
// reading is returned marked Stale with a nil error; with nothing stored the
// result is Unknown and the error. ctx only bounds this caller's wait: the
// shared fetch keeps running for the other callers when it is cancelled.
func (c *Cache) Get(ctx context.Context, account common.Address, chainID uint64, force bool) (Reading, error) {
	k := key(chainID, account)
	if e, ok := c.lookup(k); ok && !force && time.Since(e.at) < c.cfg.TTL {
		return Reading{Wei: new(big.Int).Set(e.wei), CapturedAt: e.at}, nil
	}

	ch := c.group.DoChan(k, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()
		return c.refresh(fctx, k, account, chainID)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return c.fallback(k, ctx.Err())
	}
	if res.Err != nil {
		return c.fallback(k, res.Err)
	}
	e := res.Val.(entry)
	return Reading{Wei: new(big.Int).Set(e.wei), CapturedAt: e.at}, nil
}

func (c *Cache) refresh(ctx context.Context, k string, account common.Address, chainID uint64) (entry, error) {
	gen := c.gen.Load()
	if c.cfg.Debounce > 0 {
		t := time.NewTimer(c.cfg.Debounce)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return entry{}, ctx.Err()
		}
	}
	wei, err := c.fetch(ctx, chainID, account)
	if err != nil {
		return entry{}, err
	}
	e := entry{wei: wei, at: time.Now()}
	if c.gen.Load() != gen {
		// cleared while in flight: the caller still gets the value, the store does not
		return e, nil
	}
	c.store.Set(k, e, cache.NoExpiration)
	c.log.Debug("balance refreshed", zap.Uint64("chain_id", chainID), zap.String("account", account.Hex()), zap.String("wei", wei.String()))

	c.hookMu.RLock()
	fn := c.onUpdate
	c.hookMu.RUnlock()
	if fn != nil {
		fn(account, chainID, Reading{Wei: new(big.Int).Set(wei), CapturedAt: e.at})
	}
	return e, nil
}

func (c *Cache) fallback(k string, err error) (Reading, error) {
	e, ok := c.lookup(k)
	if !ok {
		return Unknown, err
	}
	c.log.Warn("balance refresh failed, serving stale value", zap.String("key", k), zap.Error(err))
	return Reading{Wei: new(big.Int).Set(e.wei), CapturedAt: e.at, Stale: true}, nil
}

// Clear drops every entry. Refreshes already in flight are not stored.
func (c *Cache) Clear() {
	c.gen.Add(1)
	c.store.Flush()
	c.log.Debug("balance cache cleared")
}
