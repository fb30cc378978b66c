// Package introspect works out what an address is (not a contract, a plain
// token or a sale) and reads the sale's parameters through getter tables.
package introspect

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/saleerr"
	"github.com/ligun0805/salekit/internal/transport"
)

var errNoCode = errors.New("no code at address")

type profileKey struct {
	chainID uint64
	addr    common.Address
}

// Engine inspects contracts through the transport pool.
type Engine struct {
	pool     *transport.Pool
	abis     ABIFetcher
	log      *zap.Logger
	profiles *lru.Cache[profileKey, *Profile]
}

// New builds an engine. abis may be nil, in which case every contract is
// read through FallbackABI.
func New(pool *transport.Pool, abis ABIFetcher, cacheSize int, log *zap.Logger) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	profiles, err := lru.New[profileKey, *Profile](cacheSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{pool: pool, abis: abis, log: log.Named("introspect"), profiles: profiles}, nil
}

// Invalidate forgets the cached profile of addr.
func (e *Engine) Invalidate(chainID uint64, addr common.Address) {
	e.profiles.Remove(profileKey{chainID, addr})
}

// Purge forgets every cached profile.
func (e *Engine) Purge() { e.profiles.Purge() }

// Inspect profiles a sale contract. It fails with ErrAddressNotAContract,
// ErrTokenWithoutSaleCapability or ErrNotAToken when addr is not a usable sale.
func (e *Engine) Inspect(ctx context.Context, chainID uint64, addr common.Address) (*Profile, error) {
	if p, ok := e.profiles.Get(profileKey{chainID, addr}); ok {
		return p, nil
	}
	log := e.log.With(zap.Uint64("chain_id", chainID), zap.String("contract", addr.Hex()))

	code, err := e.code(ctx, chainID, addr)
	if err != nil {
		return nil, err
	}
	a, verified := e.resolveABI(ctx, chainID, addr)

	var allow func(abi.Method) bool
	if !verified {
		sels := Selectors(code)
		allow = func(m abi.Method) bool { return hasSelector(sels, m.ID) }
	}
	fn := detectPurchase(a, allow)
	if fn == nil {
		if _, terr := e.ClassifyToken(ctx, chainID, addr); terr == nil {
			return nil, fmt.Errorf("%s: %w", addr.Hex(), saleerr.ErrTokenWithoutSaleCapability)
		} else if errors.Is(terr, saleerr.ErrTransportExhausted) {
			return nil, terr
		}
		return nil, fmt.Errorf("%s: %w", addr.Hex(), saleerr.ErrNotAToken)
	}

	p := &Profile{
		Address:     addr,
		ChainID:     chainID,
		Kind:        KindSale,
		Purchase:    fn,
		ABI:         a,
		VerifiedABI: verified,
		Accessors:   make(map[Role]string),
	}
	for _, acc := range SaleAccessors {
		v, name, ok, err := e.probe(ctx, chainID, addr, a, acc)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", acc.Role, err)
		}
		if !ok {
			continue
		}
		p.Accessors[acc.Role] = name
		switch acc.Role {
		case RoleToken:
			p.TokenAddress = v.Addr
		case RoleReceiver:
			p.Receiver = v.Addr
		case RolePrice:
			p.UnitPrice = v.Int
		case RoleMinPurchase:
			p.MinPurchase = v.Int
		case RoleMaxPurchase:
			p.MaxPurchase = v.Int
		case RoleWalletCap:
			p.WalletCap = v.Int
		}
	}

	tokenAddr := p.TokenAddress
	if tokenAddr == (common.Address{}) {
		// the sale may be the token itself
		tokenAddr = addr
	}
	tok, err := e.ClassifyToken(ctx, chainID, tokenAddr)
	if err != nil {
		return nil, err
	}
	p.Token = tok
	p.TokenAddress = tokenAddr

	log.Info("contract inspected",
		zap.String("purchase", fn.Signature()),
		zap.Bool("verified_abi", verified),
		zap.String("token", tok.Symbol),
		zap.Bool("limits_known", p.LimitsKnown()))
	e.profiles.Add(profileKey{chainID, addr}, p)
	return p, nil
}

// ClassifySale is Inspect for callers that only want sales.
func (e *Engine) ClassifySale(ctx context.Context, chainID uint64, addr common.Address) (*Profile, error) {
	return e.Inspect(ctx, chainID, addr)
}

// ClassifyToken reads the token accessors of addr. Decimals and one of symbol
// or totalSupply must answer for addr to count as a token.
func (e *Engine) ClassifyToken(ctx context.Context, chainID uint64, addr common.Address) (*TokenInfo, error) {
	a, _ := e.resolveABI(ctx, chainID, addr)
	info := &TokenInfo{Address: addr}
	found := make(map[Role]bool)
	for _, acc := range TokenAccessors {
		v, _, ok, err := e.probe(ctx, chainID, addr, a, acc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		found[acc.Role] = true
		switch acc.Role {
		case RoleName:
			info.Name = v.Str
		case RoleSymbol:
			info.Symbol = v.Str
		case RoleDecimals:
			info.Decimals = uint8(v.Int.Uint64())
		case RoleTotalSupply:
			info.TotalSupply = v.Int
		}
	}
	if !found[RoleDecimals] || (!found[RoleSymbol] && !found[RoleTotalSupply]) {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), saleerr.ErrNotAToken)
	}
	return info, nil
}

// code fetches runtime bytecode. An endpoint answering with empty code counts
// as a failed attempt so every endpoint gets asked before giving up.
func (e *Engine) code(ctx context.Context, chainID uint64, addr common.Address) ([]byte, error) {
	sawEmpty := false
	code, err := transport.Read(ctx, e.pool, chainID, func(ctx context.Context, r chain.Reader) ([]byte, error) {
		code, err := r.CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		if len(code) == 0 {
			sawEmpty = true
			return nil, errNoCode
		}
		return code, nil
	})
	if err == nil {
		return code, nil
	}
	if sawEmpty && errors.Is(err, saleerr.ErrTransportExhausted) {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), saleerr.ErrAddressNotAContract)
	}
	return nil, err
}

func (e *Engine) resolveABI(ctx context.Context, chainID uint64, addr common.Address) (*abi.ABI, bool) {
	if e.abis == nil {
		return FallbackABI(), false
	}
	a, err := e.abis.FetchVerifiedABI(ctx, chainID, addr)
	if err != nil {
		e.log.Warn("verified abi unavailable, using fallback", zap.String("contract", addr.Hex()), zap.Error(err))
		return FallbackABI(), false
	}
	if a == nil {
		return FallbackABI(), false
	}
	return a, true
}
