package introspect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/salekit/internal/saleerr"
)

// ABIFetcher looks up a verified ABI. It returns (nil, nil) when none is known.
type ABIFetcher interface {
	FetchVerifiedABI(ctx context.Context, chainID uint64, addr common.Address) (*abi.ABI, error)
}

// DirFetcher reads ABIs from <Dir>/<chainID>/<address>.json. The file may hold
// a bare ABI array or an artifact object with an "abi" field.
type DirFetcher struct {
	Dir string
}

func (f DirFetcher) FetchVerifiedABI(_ context.Context, chainID uint64, addr common.Address) (*abi.ABI, error) {
	base := filepath.Join(f.Dir, strconv.FormatUint(chainID, 10))
	for _, name := range []string{strings.ToLower(addr.Hex()), addr.Hex()} {
		raw, err := os.ReadFile(filepath.Join(base, name+".json"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		a, err := parseABI(raw)
		if err != nil {
			return nil, fmt.Errorf("abi %s: %w", name, err)
		}
		return a, nil
	}
	return nil, nil
}

func parseABI(raw []byte) (*abi.ABI, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return nil, err
		}
		if len(artifact.ABI) == 0 {
			return nil, errors.New(`object has no "abi" field`)
		}
		raw = artifact.ABI
		// etherscan returns the ABI as a JSON string
		var s string
		if json.Unmarshal(raw, &s) == nil {
			raw = []byte(s)
		}
	}
	a, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type abiArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type abiEntry struct {
	Type            string   `json:"type"`
	Name            string   `json:"name"`
	Inputs          []abiArg `json:"inputs"`
	Outputs         []abiArg `json:"outputs"`
	StateMutability string   `json:"stateMutability"`
}

var (
	fallbackOnce sync.Once
	fallbackABI  *abi.ABI
)

// FallbackABI covers every accessor candidate plus each purchase name with
// and without a uint256 quantity argument.
func FallbackABI() *abi.ABI {
	fallbackOnce.Do(func() {
		var entries []abiEntry
		for _, table := range [][]Accessor{TokenAccessors, SaleAccessors} {
			for _, acc := range table {
				out := "uint256"
				switch acc.Kind {
				case KindAddress:
					out = "address"
				case KindString:
					out = "string"
				case KindDecimals:
					out = "uint8"
				}
				for _, name := range acc.Candidates {
					entries = append(entries, abiEntry{
						Type: "function", Name: name, StateMutability: "view",
						Inputs: []abiArg{}, Outputs: []abiArg{{Type: out}},
					})
				}
			}
		}
		for _, name := range PurchaseNames {
			entries = append(entries,
				abiEntry{Type: "function", Name: name, StateMutability: "payable",
					Inputs: []abiArg{{Name: "quantity", Type: "uint256"}}, Outputs: []abiArg{}},
				abiEntry{Type: "function", Name: name, StateMutability: "payable",
					Inputs: []abiArg{}, Outputs: []abiArg{}},
			)
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			panic(err)
		}
		a, err := abi.JSON(bytes.NewReader(raw))
		if err != nil {
			panic(err)
		}
		fallbackABI = &a
	})
	return fallbackABI
}

// PurchaseFunction is the payable entry point a purchase calls.
type PurchaseFunction struct {
	Name             string
	TakesQuantityArg bool
	Method           abi.Method
}

// Signature is the canonical form, e.g. "buy(uint256)".
func (f *PurchaseFunction) Signature() string { return f.Method.Sig }

// Calldata encodes a call with quantity as the argument. The argument is
// dropped for entry points without one. A quantity that does not fit the
// declared uint width is an OutOfBoundsError on the max bound.
func (f *PurchaseFunction) Calldata(quantity *big.Int) ([]byte, error) {
	if !f.TakesQuantityArg {
		return append([]byte(nil), f.Method.ID...), nil
	}
	arg, err := uintArg(f.Method.Inputs[0].Type, quantity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Method.Sig, err)
	}
	args, err := f.Method.Inputs.Pack(arg)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", f.Method.Sig, err)
	}
	return append(append([]byte(nil), f.Method.ID...), args...), nil
}

// uintArg converts v to the Go type go-ethereum packs for t: the native
// unsigned types for 8, 16, 32 and 64 bits, *big.Int otherwise.
func uintArg(t abi.Type, v *big.Int) (interface{}, error) {
	if v.Sign() < 0 || v.BitLen() > t.Size {
		max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(t.Size)), big.NewInt(1))
		return nil, &saleerr.OutOfBoundsError{Bound: saleerr.BoundMax, Limit: max, Requested: v}
	}
	switch t.Size {
	case 8:
		return uint8(v.Uint64()), nil
	case 16:
		return uint16(v.Uint64()), nil
	case 32:
		return uint32(v.Uint64()), nil
	case 64:
		return v.Uint64(), nil
	}
	return v, nil
}

// DetectPurchaseFunction picks the first payable method named in
// PurchaseNames taking no input or one unsigned integer.
func DetectPurchaseFunction(a *abi.ABI) *PurchaseFunction {
	return detectPurchase(a, nil)
}

func detectPurchase(a *abi.ABI, allow func(abi.Method) bool) *PurchaseFunction {
	if a == nil {
		return nil
	}
	keys := make([]string, 0, len(a.Methods))
	for k := range a.Methods {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, name := range PurchaseNames {
		for _, k := range keys {
			m := a.Methods[k]
			if m.RawName != name || !m.IsPayable() {
				continue
			}
			if allow != nil && !allow(m) {
				continue
			}
			switch {
			case len(m.Inputs) == 0:
				return &PurchaseFunction{Name: name, Method: m}
			case len(m.Inputs) == 1 && m.Inputs[0].Type.T == abi.UintTy:
				return &PurchaseFunction{Name: name, TakesQuantityArg: true, Method: m}
			}
		}
	}
	return nil
}

// findView returns the zero-argument method called name.
func findView(a *abi.ABI, name string) (abi.Method, bool) {
	if m, ok := a.Methods[name]; ok && len(m.Inputs) == 0 && len(m.Outputs) > 0 {
		return m, true
	}
	for _, m := range a.Methods {
		if m.RawName == name && len(m.Inputs) == 0 && len(m.Outputs) > 0 {
			return m, true
		}
	}
	return abi.Method{}, false
}
