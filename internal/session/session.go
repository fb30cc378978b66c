// Package session wires the transport pool, balance cache, introspection
// engine and purchase pipeline around one wallet provider and keeps them
// consistent with the wallet's events.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/balance"
	"github.com/ligun0805/salekit/internal/catalog"
	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/config"
	"github.com/ligun0805/salekit/internal/introspect"
	"github.com/ligun0805/salekit/internal/pricing"
	"github.com/ligun0805/salekit/internal/purchase"
	"github.com/ligun0805/salekit/internal/transport"
	"github.com/ligun0805/salekit/internal/wallet"
)

// Options configure New. Only Settings and Wallet are required.
type Options struct {
	Settings config.Settings
	Wallet   wallet.Provider

	Catalog    *catalog.Static       // default: builtin, extended by Settings.NetworksFile
	ABIs       introspect.ABIFetcher // default: DirFetcher on Settings.ABIDir
	Dial       transport.DialFunc    // default: rpc.DialContext
	Registerer prometheus.Registerer // nil skips metrics
	Log        *zap.Logger
}

type Session struct {
	st     config.Settings
	log    *zap.Logger
	wallet wallet.Provider
	cat    *catalog.Static

	pool     *transport.Pool
	balances *balance.Cache
	engine   *introspect.Engine
	pipeline *purchase.Pipeline

	mu          sync.Mutex
	account     common.Address
	walletChain uint64
	pausedUntil time.Time
	unsubscribe func()
	stopPoll    context.CancelFunc
	pollDone    chan struct{}
}

// New builds the services. Nothing talks to the wallet before Open.
func New(opts Options) (*Session, error) {
	st := opts.Settings
	if opts.Wallet == nil {
		return nil, errors.New("session: wallet provider is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Builtin()
		if st.NetworksFile != "" {
			loaded, err := catalog.LoadYAML(st.NetworksFile, cat)
			if err != nil {
				return nil, err
			}
			cat = loaded
		}
	}

	ceiling, err := chain.ParseUnits(st.PaymentCeiling, 18)
	if err != nil {
		return nil, fmt.Errorf("payment ceiling: %w", err)
	}

	s := &Session{st: st, log: log.Named("session"), wallet: opts.Wallet, cat: cat}

	s.pool = transport.New(transport.Config{
		AttemptTimeout:  st.AttemptTimeout,
		BackoffBase:     st.BackoffBase,
		BackoffMax:      st.BackoffMax,
		BreakerCooldown: st.BreakerCooldown,
		OnBreakerTrip:   s.pausePolling,
		Dial:            opts.Dial,
	}, cat, nil, log, opts.Registerer)
	for _, u := range st.RPCURLs {
		s.pool.AddEndpoint(st.ChainID, u, -1)
	}

	s.balances = balance.New(balance.Config{TTL: st.BalanceTTL, Debounce: st.BalanceDebounce}, balance.PoolFetcher(s.pool), log)

	abis := opts.ABIs
	if abis == nil && st.ABIDir != "" {
		abis = introspect.DirFetcher{Dir: st.ABIDir}
	}
	s.engine, err = introspect.New(s.pool, abis, st.ProfileCacheSize, log)
	if err != nil {
		return nil, err
	}

	s.pipeline = purchase.New(purchase.Deps{
		Wallet:   opts.Wallet,
		Pool:     s.pool,
		Balances: s.balances,
		Catalog:  cat,
		Resolver: pricing.Resolver{Ceiling: ceiling},
		Log:      log,
	}, purchase.Config{
		GasBufferPct:   st.GasBufferPct,
		FallbackGas:    st.FallbackGas,
		ConfirmTimeout: st.ConfirmTimeout,
		ConfirmPoll:    st.ConfirmPoll,
	})
	return s, nil
}

// Open connects to the wallet: it reads the wallet chain, requests accounts,
// attaches the wallet as the preferred endpoint and subscribes to its events.
func (s *Session) Open(ctx context.Context) error {
	id, err := wallet.ChainID(ctx, s.wallet)
	if err != nil {
		return fmt.Errorf("wallet chain: %w", err)
	}
	accts, err := wallet.Accounts(ctx, s.wallet)
	if err != nil {
		return fmt.Errorf("wallet accounts: %w", err)
	}
	if len(accts) == 0 {
		return errors.New("wallet exposed no account")
	}

	s.mu.Lock()
	s.account = accts[0]
	s.walletChain = id
	s.mu.Unlock()

	s.pool.AttachWallet(s.wallet, id)
	unsub := s.wallet.Subscribe(s.onWalletEvent)
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()

	s.log.Info("session open",
		zap.String("account", accts[0].Hex()),
		zap.Uint64("wallet_chain", id),
		zap.Uint64("chain_id", s.st.ChainID))
	return nil
}

func (s *Session) onWalletEvent(ev wallet.Event) {
	s.log.Debug("wallet event", zap.Stringer("kind", ev.Kind), zap.Uint64("chain_id", ev.ChainID))
	switch ev.Kind {
	case wallet.ChainChanged:
		s.mu.Lock()
		s.walletChain = ev.ChainID
		s.mu.Unlock()
		s.pool.SetWalletChain(ev.ChainID)
		s.balances.Clear()
		s.engine.Purge()
		s.pipeline.Invalidate()
	case wallet.AccountsChanged:
		s.mu.Lock()
		if len(ev.Accounts) > 0 {
			s.account = ev.Accounts[0]
		} else {
			s.account = common.Address{}
		}
		s.mu.Unlock()
		s.balances.Clear()
		s.pipeline.Invalidate()
	case wallet.Disconnected:
		s.balances.Clear()
		s.pool.DetachWallet()
	}
}

// Close stops polling, drops the wallet subscription and closes dialed
// endpoints.
func (s *Session) Close() {
	s.StopPolling()
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.pool.Close()
}

func (s *Session) Account() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// ChainID is the chain the session buys on.
func (s *Session) ChainID() uint64 { return s.st.ChainID }

// WalletChain is the chain the wallet last reported.
func (s *Session) WalletChain() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletChain
}

func (s *Session) Catalog() *catalog.Static { return s.cat }

func (s *Session) Inspect(ctx context.Context, addr common.Address) (*introspect.Profile, error) {
	return s.engine.Inspect(ctx, s.st.ChainID, addr)
}

// Balance returns the native balance of the current account.
func (s *Session) Balance(ctx context.Context, force bool) (balance.Reading, error) {
	acct := s.Account()
	if acct == (common.Address{}) {
		return balance.Unknown, errors.New("no account")
	}
	return s.balances.Get(ctx, acct, s.st.ChainID, force)
}

// Buy inspects addr and buys quantity whole tokens from it.
func (s *Session) Buy(ctx context.Context, addr common.Address, quantity uint64, opts purchase.Options) (*purchase.Receipt, error) {
	prof, err := s.Inspect(ctx, addr)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Execute(ctx, prof, quantity, opts)
}

func (s *Session) Endpoints() []transport.Endpoint { return s.pool.Endpoints(s.st.ChainID) }

func (s *Session) AddEndpoint(url string, priority int) { s.pool.AddEndpoint(s.st.ChainID, url, priority) }

func (s *Session) RemoveEndpoint(url string) { s.pool.RemoveEndpoint(s.st.ChainID, url) }

// WalletPausedUntil reports when the wallet endpoint rejoins the rotation
// after a rate limit.
func (s *Session) WalletPausedUntil() (time.Time, bool) { return s.pool.ResumeAt() }

// ResumeWallet closes the wallet breaker early and resumes polling.
func (s *Session) ResumeWallet() {
	s.pool.ResetBreaker()
	s.mu.Lock()
	s.pausedUntil = time.Time{}
	s.mu.Unlock()
}

func (s *Session) OnProgress(fn func(purchase.Stage)) { s.pipeline.OnProgress(fn) }

func (s *Session) OnResult(fn func(purchase.Outcome)) { s.pipeline.OnResult(fn) }

// OnBalance registers fn for every stored balance reading.
func (s *Session) OnBalance(fn func(account common.Address, chainID uint64, r balance.Reading)) {
	s.balances.OnUpdate(fn)
}

// Running reports whether a purchase is in flight.
func (s *Session) Running() bool { return s.pipeline.Running() }
