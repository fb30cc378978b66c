// Package transport routes chain reads over an ordered set of endpoints with
// per-attempt timeouts, failover, backoff and a wallet circuit breaker.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/catalog"
	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/saleerr"
	"github.com/ligun0805/salekit/internal/wallet"
)

// DialFunc opens a public endpoint.
type DialFunc func(ctx context.Context, url string) (chain.Caller, error)

// Config tunes the pool. Zero durations take the defaults below.
type Config struct {
	AttemptTimeout  time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	BreakerCooldown time.Duration

	// OnBreakerTrip fires once per trip with the time the wallet endpoint
	// becomes eligible again.
	OnBreakerTrip func(resumeAt time.Time)

	// Dial replaces rpc.DialContext.
	Dial DialFunc
}

const (
	defaultAttemptTimeout  = 5 * time.Second
	defaultBackoffBase     = 500 * time.Millisecond
	defaultBackoffMax      = 4 * time.Second
	defaultBreakerCooldown = 2 * time.Minute
)

// Op is one read against one endpoint.
type Op func(ctx context.Context, r chain.Reader) error

// Pool is safe for concurrent use.
type Pool struct {
	cfg     Config
	cat     catalog.Catalog
	log     *zap.Logger
	metrics *metrics
	breaker *breaker

	mu          sync.RWMutex
	wallet      chain.Caller
	walletChain uint64
	extras      map[uint64][]Endpoint
	removed     map[uint64]map[string]bool
	clients     map[string]chain.Caller
	seq         int
}

// New builds a pool. w may be nil for a read-only pool; reg may be nil to
// skip metric registration.
func New(cfg Config, cat catalog.Catalog, w wallet.Provider, log *zap.Logger, reg prometheus.Registerer) *Pool {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, url string) (chain.Caller, error) {
			return rpc.DialContext(ctx, url)
		}
	}
	if cat == nil {
		cat = catalog.NewStatic()
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		cfg:     cfg,
		cat:     cat,
		log:     log.Named("transport"),
		metrics: newMetrics(reg),
		breaker: newBreaker(cfg.BreakerCooldown),
		extras:  make(map[uint64][]Endpoint),
		removed: make(map[uint64]map[string]bool),
		clients: make(map[string]chain.Caller),
	}
	if w != nil {
		p.wallet = wallet.AsCaller(w)
	}
	return p
}

// AttachWallet (re)binds the wallet endpoint, active on chainID.
func (p *Pool) AttachWallet(w wallet.Provider, chainID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wallet = wallet.AsCaller(w)
	p.walletChain = chainID
}

// DetachWallet drops the wallet endpoint, e.g. after a disconnect.
func (p *Pool) DetachWallet() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wallet = nil
	p.walletChain = 0
}

// SetWalletChain records the wallet's current chain. The wallet endpoint only
// serves reads for that chain.
func (p *Pool) SetWalletChain(chainID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.walletChain = chainID
}

// Endpoints lists the endpoints for chainID in attempt order. It is never
// empty.
func (p *Pool) Endpoints(chainID uint64) []Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Endpoint
	if p.wallet != nil && p.walletChain == chainID && !p.breaker.tripped() {
		out = append(out, Endpoint{Kind: WalletProvider, URL: walletURL})
	}

	seen := make(map[string]bool)
	var public []Endpoint
	add := func(ep Endpoint) {
		if ep.URL == "" || seen[ep.URL] || p.removed[chainID][ep.URL] {
			return
		}
		seen[ep.URL] = true
		public = append(public, ep)
	}
	if n, ok := p.cat.NetworkByID(chainID); ok {
		for i, u := range n.RPCURLs {
			add(Endpoint{Kind: PublicRPC, URL: u, seq: -len(n.RPCURLs) + i})
		}
	}
	for _, ep := range p.extras[chainID] {
		add(ep)
	}
	sort.SliceStable(public, func(i, j int) bool {
		if public[i].Priority != public[j].Priority {
			return public[i].Priority < public[j].Priority
		}
		return public[i].seq < public[j].seq
	})
	if len(public) == 0 {
		public = append(public, Endpoint{Kind: PublicRPC, URL: catalog.FallbackRPC(chainID)})
	}
	return append(out, public...)
}

// AddEndpoint registers an extra public endpoint for chainID. Lower priority
// values are tried first; catalog URLs have priority 0.
func (p *Pool) AddEndpoint(chainID uint64, url string, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.removed[chainID], url)
	eps := p.extras[chainID]
	for i := range eps {
		if eps[i].URL == url {
			eps[i].Priority = priority
			return
		}
	}
	p.seq++
	p.extras[chainID] = append(eps, Endpoint{Kind: PublicRPC, URL: url, Priority: priority, seq: p.seq})
}

// RemoveEndpoint hides url for chainID, whether it came from the catalog or
// from AddEndpoint.
func (p *Pool) RemoveEndpoint(chainID uint64, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	eps := p.extras[chainID]
	for i := range eps {
		if eps[i].URL == url {
			p.extras[chainID] = append(eps[:i:i], eps[i+1:]...)
			break
		}
	}
	if p.removed[chainID] == nil {
		p.removed[chainID] = make(map[string]bool)
	}
	p.removed[chainID][url] = true
}

// Tripped reports whether the wallet endpoint is paused.
func (p *Pool) Tripped() bool { return p.breaker.tripped() }

// ResumeAt is when a paused wallet endpoint becomes eligible again.
func (p *Pool) ResumeAt() (time.Time, bool) { return p.breaker.resumeAt() }

func (p *Pool) ResetBreaker() { p.breaker.reset() }

type options struct {
	maxAttempts   int
	excludeWallet bool
}

type Option func(*options)

// MaxAttempts caps the number of attempts. The default is one per endpoint.
func MaxAttempts(n int) Option { return func(o *options) { o.maxAttempts = n } }

// ExcludeWallet restricts the call to public endpoints.
func ExcludeWallet() Option { return func(o *options) { o.excludeWallet = true } }

// Do runs op against the endpoints of chainID in order until one succeeds.
// Attempt i uses endpoint i mod n under its own timeout. Transient failures
// back off linearly before the next attempt, capped at BackoffMax.
func (p *Pool) Do(ctx context.Context, chainID uint64, op Op, opts ...Option) error {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	eps := p.Endpoints(chainID)
	if o.excludeWallet && len(eps) > 0 && eps[0].Kind == WalletProvider {
		eps = eps[1:]
	}
	attempts := o.maxAttempts
	if attempts <= 0 {
		attempts = len(eps)
	}

	var last error
	next := 0
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ep := eps[next%len(eps)]
		next++
		if ep.Kind == WalletProvider && p.breaker.tripped() {
			ep = eps[next%len(eps)]
			next++
		}

		err := p.attempt(ctx, chainID, ep, op)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		last = err
		p.log.Debug("attempt failed",
			zap.Uint64("chain_id", chainID),
			zap.String("endpoint", ep.URL),
			zap.Int("attempt", i+1),
			zap.Error(err))

		if ep.Kind == WalletProvider && RateLimited(err) {
			p.trip()
		}
		if i+1 < attempts && Retryable(err) {
			if err := sleep(ctx, p.backoff(i)); err != nil {
				return err
			}
		}
	}
	p.log.Warn("all endpoints failed", zap.Uint64("chain_id", chainID), zap.Int("attempts", attempts), zap.Error(last))
	return &saleerr.ExhaustedError{Attempts: attempts, Last: last}
}

func (p *Pool) attempt(ctx context.Context, chainID uint64, ep Endpoint, op Op) error {
	start := time.Now()
	c, err := p.caller(ctx, ep)
	if err != nil {
		p.metrics.observe(ep.Kind, err, time.Since(start))
		return err
	}
	actx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()
	err = op(actx, chain.NewReader(c))
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	p.metrics.observe(ep.Kind, err, time.Since(start))
	return err
}

func (p *Pool) caller(ctx context.Context, ep Endpoint) (chain.Caller, error) {
	if ep.Kind == WalletProvider {
		p.mu.RLock()
		w := p.wallet
		p.mu.RUnlock()
		if w == nil {
			return nil, errors.New("wallet endpoint detached")
		}
		return w, nil
	}
	p.mu.RLock()
	c, ok := p.clients[ep.URL]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}
	dctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()
	c, err := p.cfg.Dial(dctx, ep.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ep.URL, err)
	}
	p.mu.Lock()
	if existing, ok := p.clients[ep.URL]; ok {
		c = existing
	} else {
		p.clients[ep.URL] = c
	}
	p.mu.Unlock()
	return c, nil
}

func (p *Pool) trip() {
	resumeAt, first := p.breaker.trip()
	if !first {
		return
	}
	p.metrics.trips.Inc()
	p.log.Warn("wallet endpoint rate limited, pausing", zap.Time("resume_at", resumeAt))
	if p.cfg.OnBreakerTrip != nil {
		p.cfg.OnBreakerTrip(resumeAt)
	}
}

func (p *Pool) backoff(attempt int) time.Duration {
	d := p.cfg.BackoffBase * time.Duration(attempt+1)
	if d > p.cfg.BackoffMax {
		d = p.cfg.BackoffMax
	}
	return d
}

// Close releases dialed public clients.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, c := range p.clients {
		if rc, ok := c.(*rpc.Client); ok {
			rc.Close()
		}
		delete(p.clients, url)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read is Do for ops that produce a value.
func Read[T any](ctx context.Context, p *Pool, chainID uint64, fn func(ctx context.Context, r chain.Reader) (T, error), opts ...Option) (T, error) {
	var out T
	err := p.Do(ctx, chainID, func(ctx context.Context, r chain.Reader) error {
		v, err := fn(ctx, r)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}
