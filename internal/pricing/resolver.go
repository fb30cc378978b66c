// Package pricing decides what a sale's unit price is denominated in and how
// much native currency a purchase must send.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ligun0805/salekit/internal/saleerr"
)

// Semantics is the interpretation of a sale's unit price.
type Semantics int

const (
	Unresolved Semantics = iota
	// PerWholeToken: value = price * quantity (candidate A).
	PerWholeToken
	// PerMinimalUnit: value = price * quantity * 10^decimals (candidate B).
	PerMinimalUnit
)

func (s Semantics) String() string {
	switch s {
	case PerWholeToken:
		return "A"
	case PerMinimalUnit:
		return "B"
	}
	return "auto"
}

// ParseSemantics accepts auto, A/whole and B/unit spellings.
func ParseSemantics(s string) (Semantics, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Unresolved, nil
	case "a", "whole", "per-whole-token":
		return PerWholeToken, nil
	case "b", "unit", "per-minimal-unit":
		return PerMinimalUnit, nil
	}
	return Unresolved, fmt.Errorf("unknown price semantics %q (want auto, A or B)", s)
}

// Key identifies what a resolution was made for.
type Key struct {
	Contract common.Address
	ChainID  uint64
	Decimals uint8
	Quantity uint64
}

type Input struct {
	UnitPrice *big.Int
	Quantity  uint64
	Decimals  uint8
	// Pin skips simulation when not Unresolved.
	Pin Semantics
}

// Simulator dry-runs the purchase paying value with arg as the quantity
// argument. It returns nil when the call succeeds and an error matching
// saleerr.ErrSimulatedRevert when it reverts; any other error aborts
// resolution.
type Simulator func(ctx context.Context, value, arg *big.Int) error

// Resolution is the selected payment. Confirmed means a simulation accepted
// it; an unconfirmed resolution needs the user's consent before submission.
// Arg is the quantity argument that goes with Value.
type Resolution struct {
	Semantics  Semantics
	Value      *big.Int
	Arg        *big.Int
	CandidateA *big.Int
	CandidateB *big.Int
	Confirmed  bool
	Key        Key
}

// Candidates computes A = price*qty and B = price*qty*10^dec. A candidate
// that does not fit in 256 bits is nil.
func Candidates(in Input) (a, b *big.Int, err error) {
	if in.UnitPrice == nil || in.UnitPrice.Sign() <= 0 {
		return nil, nil, errors.New("unit price unknown")
	}
	if in.Quantity == 0 {
		return nil, nil, errors.New("quantity must be > 0")
	}
	price, overflow := uint256.FromBig(in.UnitPrice)
	if overflow {
		return nil, nil, nil
	}
	qty := uint256.NewInt(in.Quantity)
	ua, over := new(uint256.Int).MulOverflow(price, qty)
	if over {
		return nil, nil, nil
	}
	a = ua.ToBig()
	if in.Decimals > maxDecimals {
		return a, nil, nil
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(in.Decimals)))
	ub, over := new(uint256.Int).MulOverflow(ua, scale)
	if over {
		return a, nil, nil
	}
	return a, ub.ToBig(), nil
}

// Arguments returns the quantity argument each candidate is sent with: whole
// tokens for A, minimal units for B.
func Arguments(in Input) (a, b *big.Int) {
	a = new(big.Int).SetUint64(in.Quantity)
	b = new(big.Int).Mul(a, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(in.Decimals)), nil))
	return a, b
}

// 10^77 is the largest power of ten below 2^256.
const maxDecimals = 77

// Resolver picks a payment under a sanity ceiling.
type Resolver struct {
	// Ceiling is the largest value ever sent, in wei. Nil disables it.
	Ceiling *big.Int
}

func (r Resolver) within(v *big.Int) bool {
	return v != nil && (r.Ceiling == nil || v.Cmp(r.Ceiling) <= 0)
}

// Resolve selects the payment for one purchase attempt. Pinned semantics are
// used as is and stay unconfirmed. Otherwise candidate A is simulated, then B;
// the first that does not revert is confirmed. When neither passes, A is
// returned unconfirmed. Candidates above the ceiling are never simulated.
func (r Resolver) Resolve(ctx context.Context, key Key, in Input, sim Simulator) (Resolution, error) {
	a, b, err := Candidates(in)
	if err != nil {
		return Resolution{}, err
	}
	argA, argB := Arguments(in)
	res := Resolution{CandidateA: a, CandidateB: b, Key: key}

	switch in.Pin {
	case PerWholeToken, PerMinimalUnit:
		v, arg := a, argA
		if in.Pin == PerMinimalUnit {
			v, arg = b, argB
		}
		if !r.within(v) {
			return res, r.ceilingErr(in.Pin, v)
		}
		res.Semantics, res.Value, res.Arg = in.Pin, v, arg
		return res, nil
	}

	for _, c := range []struct {
		s      Semantics
		v, arg *big.Int
	}{{PerWholeToken, a, argA}, {PerMinimalUnit, b, argB}} {
		if !r.within(c.v) {
			continue
		}
		err := sim(ctx, c.v, c.arg)
		if err == nil {
			res.Semantics, res.Value, res.Arg, res.Confirmed = c.s, c.v, c.arg, true
			return res, nil
		}
		if !errors.Is(err, saleerr.ErrSimulatedRevert) {
			return res, err
		}
	}

	if !r.within(a) {
		return res, r.ceilingErr(PerWholeToken, a)
	}
	res.Semantics, res.Value, res.Arg = PerWholeToken, a, argA
	return res, nil
}

func (r Resolver) ceilingErr(s Semantics, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("candidate %s overflows uint256: %w", s, saleerr.ErrPaymentCeiling)
	}
	return fmt.Errorf("candidate %s = %s wei above ceiling %s: %w", s, v, r.Ceiling, saleerr.ErrPaymentCeiling)
}
