// Package purchase runs a sale purchase end to end: chain alignment, local
// limit checks, price semantics, gas, submission and confirmation.
package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/balance"
	"github.com/ligun0805/salekit/internal/catalog"
	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/introspect"
	"github.com/ligun0805/salekit/internal/pricing"
	"github.com/ligun0805/salekit/internal/saleerr"
	"github.com/ligun0805/salekit/internal/transport"
	"github.com/ligun0805/salekit/internal/wallet"
)

type Deps struct {
	Wallet   wallet.Provider
	Pool     *transport.Pool
	Balances *balance.Cache // optional; nil skips the funds check
	Catalog  catalog.Catalog
	Resolver pricing.Resolver
	Log      *zap.Logger
}

type Config struct {
	GasBufferPct   int64
	FallbackGas    uint64
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
}

// Options adjust one purchase.
type Options struct {
	// Semantics pins the price interpretation; Unresolved means auto.
	Semantics pricing.Semantics
	// Confirm is asked to accept an unconfirmed resolution. Nil declines.
	Confirm func(ctx context.Context, res pricing.Resolution) bool
	// ConfirmUnbounded is asked to treat the sale limits the profile could not
	// read as unbounded. Nil declines.
	ConfirmUnbounded func(ctx context.Context, unknown []saleerr.Bound) bool
	// Account overrides the first wallet account.
	Account *common.Address
}

// Receipt summarises a mined purchase.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	GasLimit    uint64
	Value       *big.Int
	Semantics   pricing.Semantics
}

// Outcome is delivered once per attempt that got past the in-flight guard.
type Outcome struct {
	Stage      Stage
	Receipt    *Receipt
	Err        error
	Resolution *pricing.Resolution
	// FallbackGas is set when gas estimation was unsupported and the fixed
	// fallback limit was used.
	FallbackGas bool
}

// Pipeline serialises purchases: one attempt at a time.
type Pipeline struct {
	deps Deps
	cfg  Config
	log  *zap.Logger

	running atomic.Bool
	gen     atomic.Uint64

	hookMu     sync.RWMutex
	onProgress func(Stage)
	onResult   func(Outcome)
}

func New(deps Deps, cfg Config) *Pipeline {
	if cfg.GasBufferPct < 0 {
		cfg.GasBufferPct = 0
	}
	if cfg.FallbackGas == 0 {
		cfg.FallbackGas = 500_000
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = 2 * time.Second
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Builtin()
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, log: log.Named("purchase")}
}

func (p *Pipeline) OnProgress(fn func(Stage)) {
	p.hookMu.Lock()
	p.onProgress = fn
	p.hookMu.Unlock()
}

func (p *Pipeline) OnResult(fn func(Outcome)) {
	p.hookMu.Lock()
	p.onResult = fn
	p.hookMu.Unlock()
}

// Invalidate marks the current inputs as changed. A running attempt that has
// not yet submitted aborts with ErrStaleInputs.
func (p *Pipeline) Invalidate() { p.gen.Add(1) }

// Running reports whether an attempt is in flight.
func (p *Pipeline) Running() bool { return p.running.Load() }

func (p *Pipeline) progress(s Stage) {
	p.hookMu.RLock()
	fn := p.onProgress
	p.hookMu.RUnlock()
	p.log.Debug("stage", zap.Stringer("stage", s))
	if fn != nil {
		fn(s)
	}
}

func (p *Pipeline) finish(out Outcome) {
	p.hookMu.RLock()
	fn := p.onResult
	p.hookMu.RUnlock()
	p.progress(out.Stage)
	if fn != nil {
		fn(out)
	}
}

// attempt carries one purchase's working state.
type attempt struct {
	profile  *introspect.Profile
	quantity uint64
	opts     Options

	account  common.Address
	units    *big.Int // quantity in minimal units, for the limit checks
	calldata []byte   // set once the resolution fixes the argument
	res      *pricing.Resolution
	gasLimit uint64
	fallback bool
	txHash   common.Hash
}

func (a *attempt) msg() ethereum.CallMsg {
	to := a.profile.Address
	msg := ethereum.CallMsg{From: a.account, To: &to, Data: a.calldata}
	if a.res != nil {
		msg.Value = a.res.Value
	}
	return msg
}

// Execute buys quantity whole tokens from the profiled sale.
func (p *Pipeline) Execute(ctx context.Context, profile *introspect.Profile, quantity uint64, opts Options) (*Receipt, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, saleerr.ErrPurchaseInFlight
	}
	defer p.running.Store(false)

	a := &attempt{profile: profile, quantity: quantity, opts: opts}
	rcpt, stage, err := p.run(ctx, a)
	out := Outcome{Stage: stage, Receipt: rcpt, Err: err, Resolution: a.res, FallbackGas: a.fallback}
	if err != nil {
		p.log.Warn("purchase failed",
			zap.String("contract", profile.Address.Hex()),
			zap.Stringer("stage", stage),
			zap.String("kind", saleerr.Kind(err)),
			zap.Error(err))
	}
	p.finish(out)
	return rcpt, err
}

func (p *Pipeline) run(ctx context.Context, a *attempt) (*Receipt, Stage, error) {
	if a.profile == nil || a.profile.Purchase == nil || a.profile.Token == nil {
		return nil, Failed, errors.New("profile is not an inspected sale")
	}
	chainID := a.profile.ChainID

	p.progress(ChainAligning)
	if err := p.alignChain(ctx, chainID); err != nil {
		return nil, Failed, err
	}
	if err := p.selectAccount(ctx, a); err != nil {
		return nil, Failed, err
	}
	// our own chain switch fires wallet events; inputs count from here
	gen := p.gen.Load()

	p.progress(LimitChecking)
	if err := p.checkLimits(ctx, a); err != nil {
		return nil, Failed, err
	}

	p.progress(SemanticsResolving)
	if err := p.resolve(ctx, a); err != nil {
		return nil, Failed, err
	}
	if err := p.checkFunds(ctx, a); err != nil {
		return nil, Failed, err
	}

	p.progress(GasEstimating)
	if err := p.estimateGas(ctx, a); err != nil {
		return nil, Failed, err
	}

	if p.gen.Load() != gen {
		return nil, Failed, saleerr.ErrStaleInputs
	}
	p.progress(Submitting)
	if err := p.submit(ctx, a); err != nil {
		return nil, Failed, err
	}

	p.progress(Confirming)
	return p.confirm(ctx, a)
}

func (p *Pipeline) alignChain(ctx context.Context, target uint64) error {
	w := p.deps.Wallet
	cur, err := wallet.ChainID(ctx, w)
	if err != nil {
		return walletErr("eth_chainId", err)
	}
	if cur == target {
		p.deps.Pool.SetWalletChain(target)
		return nil
	}
	switchParam := map[string]string{"chainId": wallet.ChainIDHex(target)}
	_, err = w.Request(ctx, "wallet_switchEthereumChain", switchParam)
	if chain.ErrorCode(err) == wallet.CodeUnrecognizedChain {
		n, ok := p.deps.Catalog.NetworkByID(target)
		if !ok {
			return fmt.Errorf("chain %d: %w", target, saleerr.ErrUnknownChain)
		}
		p.log.Info("wallet does not know chain, adding it", zap.Uint64("chain_id", target))
		if _, err := w.Request(ctx, "wallet_addEthereumChain", catalog.AddChainParams(n)); err != nil {
			return walletErr("wallet_addEthereumChain", err)
		}
		_, err = w.Request(ctx, "wallet_switchEthereumChain", switchParam)
	}
	if err != nil {
		return walletErr("wallet_switchEthereumChain", err)
	}
	p.deps.Pool.SetWalletChain(target)
	return nil
}

func (p *Pipeline) selectAccount(ctx context.Context, a *attempt) error {
	if a.opts.Account != nil {
		a.account = *a.opts.Account
		return nil
	}
	accts, err := wallet.Accounts(ctx, p.deps.Wallet)
	if err != nil {
		return walletErr("eth_requestAccounts", err)
	}
	if len(accts) == 0 {
		return fmt.Errorf("wallet exposed no account: %w", saleerr.ErrUserRejected)
	}
	a.account = accts[0]
	return nil
}

// checkLimits compares quantity in base units against the sale limits. It
// makes no network calls. Limits the profile lacks count as unbounded only
// when ConfirmUnbounded accepts them.
func (p *Pipeline) checkLimits(ctx context.Context, a *attempt) error {
	prof := a.profile
	a.units = new(big.Int).Mul(new(big.Int).SetUint64(a.quantity), chain.Pow10(prof.Decimals()))
	if a.quantity == 0 {
		limit := big.NewInt(1)
		if prof.MinPurchase != nil && prof.MinPurchase.Sign() > 0 {
			limit = prof.MinPurchase
		}
		return &saleerr.OutOfBoundsError{Bound: saleerr.BoundMin, Limit: limit, Requested: a.units}
	}
	switch {
	case prof.MinPurchase != nil && a.units.Cmp(prof.MinPurchase) < 0:
		return &saleerr.OutOfBoundsError{Bound: saleerr.BoundMin, Limit: prof.MinPurchase, Requested: a.units}
	case prof.MaxPurchase != nil && a.units.Cmp(prof.MaxPurchase) > 0:
		return &saleerr.OutOfBoundsError{Bound: saleerr.BoundMax, Limit: prof.MaxPurchase, Requested: a.units}
	case prof.WalletCap != nil && a.units.Cmp(prof.WalletCap) > 0:
		return &saleerr.OutOfBoundsError{Bound: saleerr.BoundCap, Limit: prof.WalletCap, Requested: a.units}
	}

	var unknown []saleerr.Bound
	if prof.MinPurchase == nil {
		unknown = append(unknown, saleerr.BoundMin)
	}
	if prof.MaxPurchase == nil {
		unknown = append(unknown, saleerr.BoundMax)
	}
	if prof.WalletCap == nil {
		unknown = append(unknown, saleerr.BoundCap)
	}
	if len(unknown) == 0 {
		return nil
	}
	if a.opts.ConfirmUnbounded == nil || !a.opts.ConfirmUnbounded(ctx, unknown) {
		return fmt.Errorf("%w: %v not readable", saleerr.ErrLimitsUnknown, unknown)
	}
	p.log.Info("unknown sale limits accepted as unbounded", zap.Any("bounds", unknown))
	return nil
}

// simulator dry-runs the purchase call with a candidate value and its
// quantity argument.
func (p *Pipeline) simulator(a *attempt) pricing.Simulator {
	return func(ctx context.Context, value, arg *big.Int) error {
		data, err := a.profile.Purchase.Calldata(arg)
		if err != nil {
			return err
		}
		msg := a.msg()
		msg.Data, msg.Value = data, value
		_, err = transport.Read(ctx, p.deps.Pool, a.profile.ChainID, func(ctx context.Context, r chain.Reader) ([]byte, error) {
			out, err := r.CallContract(ctx, msg, nil)
			switch {
			case err == nil:
				return out, nil
			case chain.IsRevert(err):
				return nil, transport.Permanent(revertFrom(err))
			case chain.IsInsufficientFunds(err):
				return nil, transport.Permanent(fmt.Errorf("%w: %v", saleerr.ErrInsufficientFunds, err))
			}
			return nil, err
		})
		return err
	}
}

func (p *Pipeline) resolve(ctx context.Context, a *attempt) error {
	prof := a.profile
	if !prof.PriceKnown() {
		return fmt.Errorf("sale exposes no unit price: %w", saleerr.ErrSemanticsUnconfirmed)
	}
	key := pricing.Key{Contract: prof.Address, ChainID: prof.ChainID, Decimals: prof.Decimals(), Quantity: a.quantity}
	in := pricing.Input{UnitPrice: prof.UnitPrice, Quantity: a.quantity, Decimals: prof.Decimals(), Pin: a.opts.Semantics}
	res, err := p.deps.Resolver.Resolve(ctx, key, in, p.simulator(a))
	if err != nil {
		return err
	}
	a.res = &res
	p.log.Info("price semantics resolved",
		zap.Stringer("semantics", res.Semantics),
		zap.String("value", res.Value.String()),
		zap.Bool("confirmed", res.Confirmed))
	if !res.Confirmed && (a.opts.Confirm == nil || !a.opts.Confirm(ctx, res)) {
		return fmt.Errorf("candidate %s = %s wei: %w", res.Semantics, res.Value, saleerr.ErrSemanticsUnconfirmed)
	}
	data, err := prof.Purchase.Calldata(res.Arg)
	if err != nil {
		return err
	}
	a.calldata = data
	return nil
}

func (p *Pipeline) checkFunds(ctx context.Context, a *attempt) error {
	if p.deps.Balances == nil {
		return nil
	}
	bal, _ := p.deps.Balances.Get(ctx, a.account, a.profile.ChainID, false)
	if bal.Known() && bal.Wei.Cmp(a.res.Value) < 0 {
		return fmt.Errorf("balance %s wei below payment %s wei: %w", bal.Wei, a.res.Value, saleerr.ErrInsufficientFunds)
	}
	return nil
}

func (p *Pipeline) estimateGas(ctx context.Context, a *attempt) error {
	msg := a.msg()
	est, err := transport.Read(ctx, p.deps.Pool, a.profile.ChainID, func(ctx context.Context, r chain.Reader) (uint64, error) {
		g, err := r.EstimateGas(ctx, msg)
		if err != nil && (chain.IsRevert(err) || chain.IsInsufficientFunds(err)) {
			return 0, transport.Permanent(err)
		}
		return g, err
	})
	if err == nil {
		a.gasLimit = est * uint64(100+p.cfg.GasBufferPct) / 100
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if chain.IsInsufficientFunds(err) {
		return fmt.Errorf("estimate gas: %w", saleerr.ErrInsufficientFunds)
	}
	if s := chain.HTTPStatus(err); s == 401 || s == 403 {
		return &saleerr.ProviderRejectedError{HTTPStatus: s, Err: err}
	}

	// estimation failed for another reason: let a static call decide
	serr := p.simulator(a)(ctx, a.res.Value, a.res.Arg)
	switch {
	case serr == nil:
		a.gasLimit = p.cfg.FallbackGas
		a.fallback = true
		p.log.Warn("gas estimation failed but static call passes, using fallback gas",
			zap.Uint64("gas", a.gasLimit),
			zap.NamedError("estimate_error", err),
			zap.Error(saleerr.ErrGasEstimationUnsupported))
		return nil
	case errors.Is(serr, saleerr.ErrSimulatedRevert), errors.Is(serr, saleerr.ErrInsufficientFunds):
		return serr
	}
	return fmt.Errorf("%w: estimate: %w (static call: %v)", saleerr.ErrGasEstimationUnsupported, err, serr)
}

func (p *Pipeline) submit(ctx context.Context, a *attempt) error {
	to := a.profile.Address
	req := wallet.TxRequest{
		From:  a.account,
		To:    &to,
		Value: hexutil.EncodeBig(a.res.Value),
		Data:  hexutil.Encode(a.calldata),
		Gas:   hexutil.EncodeUint64(a.gasLimit),
	}
	raw, err := p.deps.Wallet.Request(ctx, "eth_sendTransaction", req)
	if err != nil {
		if chain.IsInsufficientFunds(err) {
			return fmt.Errorf("send: %w", saleerr.ErrInsufficientFunds)
		}
		if s := chain.HTTPStatus(err); s != 0 {
			return &saleerr.ProviderRejectedError{HTTPStatus: s, Err: err}
		}
		return walletErr("eth_sendTransaction", err)
	}
	if err := json.Unmarshal(raw, &a.txHash); err != nil {
		return fmt.Errorf("eth_sendTransaction result: %w", err)
	}
	p.log.Info("purchase submitted",
		zap.String("tx_hash", a.txHash.Hex()),
		zap.String("value", a.res.Value.String()),
		zap.Uint64("gas", a.gasLimit))
	return nil
}

// walletErr maps EIP-1193 refusals onto the error taxonomy.
func walletErr(method string, err error) error {
	switch chain.ErrorCode(err) {
	case wallet.CodeUserRejected:
		return fmt.Errorf("%s: %w", method, saleerr.ErrUserRejected)
	case wallet.CodeUnauthorized:
		return fmt.Errorf("%s: %w: %v", method, saleerr.ErrUserRejected, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}
