package introspect

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/transport"
)

// value is a decoded getter result; which field is set depends on the kind.
type value struct {
	Int  *big.Int
	Addr common.Address
	Str  string
}

// probe tries acc's candidates in order and returns the first plausible
// answer. A reverting or undecodable candidate counts as absent. Transport
// exhaustion aborts the probe.
func (e *Engine) probe(ctx context.Context, chainID uint64, addr common.Address, a *abi.ABI, acc Accessor) (value, string, bool, error) {
	for _, name := range acc.Candidates {
		m, ok := findView(a, name)
		if !ok {
			continue
		}
		out, err := e.call(ctx, chainID, addr, m.ID)
		if err != nil {
			if chain.IsRevert(err) {
				continue
			}
			return value{}, "", false, err
		}
		if len(out) == 0 {
			continue
		}
		vals, err := m.Outputs.Unpack(out)
		if err != nil || len(vals) == 0 {
			e.log.Debug("candidate output undecodable", zap.String("candidate", name), zap.Error(err))
			continue
		}
		if v, ok := plausible(acc, vals[0]); ok {
			return v, name, true, nil
		}
	}
	return value{}, "", false, nil
}

// call runs a zero-argument view call. Reverts stop failover since every
// endpoint would answer the same.
func (e *Engine) call(ctx context.Context, chainID uint64, addr common.Address, data []byte) ([]byte, error) {
	return transport.Read(ctx, e.pool, chainID, func(ctx context.Context, r chain.Reader) ([]byte, error) {
		out, err := r.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
		if err != nil && chain.IsRevert(err) {
			return nil, transport.Permanent(err)
		}
		return out, err
	})
}

func plausible(acc Accessor, raw interface{}) (value, bool) {
	switch acc.Kind {
	case KindAddress:
		a, ok := raw.(common.Address)
		return value{Addr: a}, ok && a != (common.Address{})
	case KindString:
		s, ok := raw.(string)
		return value{Str: s}, ok && s != ""
	case KindDecimals:
		n, ok := toBig(raw)
		return value{Int: n}, ok && n.Cmp(big.NewInt(maxDecimals)) <= 0
	default:
		n, ok := toBig(raw)
		if !ok || (acc.NonZero && n.Sign() == 0) {
			return value{}, false
		}
		return value{Int: n}, true
	}
}

func toBig(raw interface{}) (*big.Int, bool) {
	switch v := raw.(type) {
	case *big.Int:
		if v == nil || v.Sign() < 0 {
			return nil, false
		}
		return new(big.Int).Set(v), true
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	}
	return nil, false
}
