package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/salekit/internal/saleerr"
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

// acceptOnly simulates a sale that only accepts the given value.
func acceptOnly(want *big.Int, seen *[]string) Simulator {
	return func(_ context.Context, v, _ *big.Int) error {
		*seen = append(*seen, v.String())
		if want != nil && v.Cmp(want) == 0 {
			return nil
		}
		return &saleerr.RevertError{Reason: "wrong value", Decoded: true}
	}
}

func TestCandidates(t *testing.T) {
	a, b, err := Candidates(Input{UnitPrice: big.NewInt(1_000), Quantity: 3, Decimals: 18})
	require.NoError(t, err)
	assert.Equal(t, "3000", a.String())
	assert.Equal(t, "3000000000000000000000", b.String())

	huge := new(big.Int).Lsh(big.NewInt(1), 250)
	a, b, err = Candidates(Input{UnitPrice: huge, Quantity: 2, Decimals: 18})
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Nil(t, b, "B overflows uint256")

	_, _, err = Candidates(Input{UnitPrice: nil, Quantity: 1})
	assert.Error(t, err)
	_, _, err = Candidates(Input{UnitPrice: big.NewInt(1), Quantity: 0})
	assert.Error(t, err)
}

func TestResolveAuto(t *testing.T) {
	ceiling := wei("1000000000000000000000") // 1000 native
	r := Resolver{Ceiling: ceiling}
	in := Input{UnitPrice: big.NewInt(2_000_000_000), Quantity: 5, Decimals: 9}
	a, b, _ := Candidates(in)

	tests := []struct {
		name      string
		accept    *big.Int
		want      Semantics
		value     *big.Int
		confirmed bool
		sims      int
	}{
		{"A passes", a, PerWholeToken, a, true, 1},
		{"B passes", b, PerMinimalUnit, b, true, 2},
		{"both revert", nil, PerWholeToken, a, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []string
			res, err := r.Resolve(context.Background(), Key{Quantity: 5}, in, acceptOnly(tt.accept, &seen))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Semantics)
			assert.Equal(t, tt.value.String(), res.Value.String())
			assert.Equal(t, tt.confirmed, res.Confirmed)
			assert.Len(t, seen, tt.sims)
			assert.Equal(t, uint64(5), res.Key.Quantity)
		})
	}
}

func TestResolvePairsValueWithArgument(t *testing.T) {
	in := Input{UnitPrice: big.NewInt(10), Quantity: 50, Decimals: 18}
	type call struct{ value, arg string }
	var calls []call
	sim := func(_ context.Context, v, arg *big.Int) error {
		calls = append(calls, call{v.String(), arg.String()})
		if v.String() == "500" && arg.String() == "50" {
			return nil
		}
		return &saleerr.RevertError{Reason: "wrong payment", Decoded: true}
	}
	res, err := Resolver{}.Resolve(context.Background(), Key{}, in, sim)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, PerWholeToken, res.Semantics)
	assert.Equal(t, "50", res.Arg.String())
	assert.Equal(t, []call{{"500", "50"}}, calls)

	calls = nil
	res, err = Resolver{}.Resolve(context.Background(), Key{}, in, func(ctx context.Context, v, arg *big.Int) error {
		calls = append(calls, call{v.String(), arg.String()})
		return &saleerr.RevertError{}
	})
	require.NoError(t, err)
	assert.Equal(t, []call{
		{"500", "50"},
		{"500000000000000000000", "50000000000000000000"},
	}, calls)
	assert.Equal(t, "50", res.Arg.String(), "unconfirmed fallback keeps A's argument")
}

func TestResolveSkipsCandidatesAboveCeiling(t *testing.T) {
	in := Input{UnitPrice: big.NewInt(10), Quantity: 1, Decimals: 18}
	var seen []string
	res, err := Resolver{Ceiling: big.NewInt(100)}.Resolve(context.Background(), Key{}, in, acceptOnly(nil, &seen))
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, seen)
	assert.False(t, res.Confirmed)
	assert.Equal(t, "10", res.Value.String())

	seen = nil
	_, err = Resolver{Ceiling: big.NewInt(5)}.Resolve(context.Background(), Key{}, in, acceptOnly(nil, &seen))
	assert.ErrorIs(t, err, saleerr.ErrPaymentCeiling)
	assert.Empty(t, seen)
}

func TestResolvePinned(t *testing.T) {
	in := Input{UnitPrice: big.NewInt(7), Quantity: 2, Decimals: 3}
	noSim := func(context.Context, *big.Int, *big.Int) error { t.Fatal("pinned semantics must not simulate"); return nil }

	in.Pin = PerMinimalUnit
	res, err := Resolver{}.Resolve(context.Background(), Key{}, in, noSim)
	require.NoError(t, err)
	assert.Equal(t, PerMinimalUnit, res.Semantics)
	assert.Equal(t, "14000", res.Value.String())
	assert.Equal(t, "2000", res.Arg.String())
	assert.False(t, res.Confirmed)

	_, err = Resolver{Ceiling: big.NewInt(100)}.Resolve(context.Background(), Key{}, in, noSim)
	assert.ErrorIs(t, err, saleerr.ErrPaymentCeiling)

	in.Pin = PerWholeToken
	res, err = Resolver{Ceiling: big.NewInt(100)}.Resolve(context.Background(), Key{}, in, noSim)
	require.NoError(t, err)
	assert.Equal(t, "14", res.Value.String())
	assert.Equal(t, "2", res.Arg.String())
}

func TestResolvePropagatesTransportErrors(t *testing.T) {
	boom := errors.New("transport exhausted")
	in := Input{UnitPrice: big.NewInt(1), Quantity: 1}
	_, err := Resolver{}.Resolve(context.Background(), Key{}, in, func(context.Context, *big.Int, *big.Int) error {
		return fmt.Errorf("simulate: %w", boom)
	})
	assert.ErrorIs(t, err, boom)
}

func TestParseSemantics(t *testing.T) {
	for in, want := range map[string]Semantics{"": Unresolved, "Auto": Unresolved, "A": PerWholeToken, "b": PerMinimalUnit, "unit": PerMinimalUnit} {
		got, err := ParseSemantics(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSemantics("c")
	assert.Error(t, err)
	assert.Equal(t, "B", PerMinimalUnit.String())
}
