package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/salekit/internal/catalog"
	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/saleerr"
	"github.com/ligun0805/salekit/internal/transport"
)

type revertErr struct{}

func (revertErr) Error() string  { return "execution reverted" }
func (revertErr) ErrorCode() int { return 3 }

type fakeContract struct {
	abi     *abi.ABI
	answers map[string]interface{} // getter name -> return value
	extra   [][]byte               // selectors baked into the bytecode besides the getters
}

func (c *fakeContract) code() []byte {
	code := []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	push := func(id []byte) { code = append(append(code, opPush4), id[:4]...) }
	for name := range c.answers {
		push(c.abi.Methods[name].ID)
	}
	for _, s := range c.extra {
		push(s)
	}
	return code
}

type fakeChain struct {
	mu        sync.Mutex
	contracts map[common.Address]*fakeContract
	codeCalls int
	calls     int
}

func (f *fakeChain) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out interface{}
	switch method {
	case "eth_getCode":
		f.codeCalls++
		c, ok := f.contracts[args[0].(common.Address)]
		if !ok {
			out = hexutil.Bytes{}
			break
		}
		out = hexutil.Bytes(c.code())
	case "eth_call":
		f.calls++
		arg := args[0].(map[string]interface{})
		to := arg["to"].(*common.Address)
		input := arg["input"].(hexutil.Bytes)
		c, ok := f.contracts[*to]
		if !ok {
			out = hexutil.Bytes{}
			break
		}
		m, err := c.abi.MethodById(input)
		if err != nil {
			return revertErr{}
		}
		v, ok := c.answers[m.Name]
		if !ok {
			return revertErr{}
		}
		packed, err := m.Outputs.Pack(v)
		if err != nil {
			return err
		}
		out = hexutil.Bytes(packed)
	default:
		return fmt.Errorf("unexpected %s", method)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

var (
	saleAddr  = common.HexToAddress("0x5a1e000000000000000000000000000000000001")
	tokenAddr = common.HexToAddress("0x70ce000000000000000000000000000000000002")
	payout    = common.HexToAddress("0xbeef000000000000000000000000000000000003")
	eoa       = common.HexToAddress("0xe0a0000000000000000000000000000000000004")
)

func tokenAnswers(dec uint8) map[string]interface{} {
	return map[string]interface{}{
		"name":        "Test Token",
		"symbol":      "TST",
		"decimals":    dec,
		"totalSupply": big.NewInt(1_000_000),
	}
}

func newEngine(t *testing.T, f *fakeChain, fetcher ABIFetcher) *Engine {
	t.Helper()
	pool := transport.New(transport.Config{
		Dial: func(context.Context, string) (chain.Caller, error) { return f, nil },
	}, catalog.NewStatic(catalog.Network{ChainID: 97, RPCURLs: []string{"https://node"}}), nil, nil, nil)
	e, err := New(pool, fetcher, 8, nil)
	require.NoError(t, err)
	return e
}

func buyWithQty() []byte { return FallbackABI().Methods["buy"].ID }

func TestInspectSale(t *testing.T) {
	fb := FallbackABI()
	f := &fakeChain{contracts: map[common.Address]*fakeContract{
		saleAddr: {abi: fb, answers: map[string]interface{}{
			"saleToken":    tokenAddr,
			"wallet":       payout,
			"bnbPrice":     big.NewInt(0),
			"price":        big.NewInt(1_000_000_000),
			"minPurchase":  big.NewInt(0),
			"maxAmount":    big.NewInt(500),
			"perWalletCap": big.NewInt(1000),
		}, extra: [][]byte{buyWithQty()}},
		tokenAddr: {abi: fb, answers: tokenAnswers(18)},
	}}
	e := newEngine(t, f, nil)

	p, err := e.Inspect(context.Background(), 97, saleAddr)
	require.NoError(t, err)
	assert.Equal(t, KindSale, p.Kind)
	assert.Equal(t, tokenAddr, p.TokenAddress)
	assert.Equal(t, payout, p.Receiver)
	assert.Equal(t, "1000000000", p.UnitPrice.String())
	assert.Equal(t, "0", p.MinPurchase.String())
	assert.Equal(t, "500", p.MaxPurchase.String())
	assert.Equal(t, "1000", p.WalletCap.String())
	assert.True(t, p.LimitsKnown())
	assert.False(t, p.VerifiedABI)
	assert.Equal(t, uint8(18), p.Decimals())
	assert.Equal(t, "TST", p.Token.Symbol)

	assert.Equal(t, "price", p.Accessors[RolePrice], "zero bnbPrice is implausible")
	assert.Equal(t, "maxAmount", p.Accessors[RoleMaxPurchase])
	assert.Equal(t, "wallet", p.Accessors[RoleReceiver])

	require.NotNil(t, p.Purchase)
	assert.Equal(t, "buy", p.Purchase.Name)
	assert.True(t, p.Purchase.TakesQuantityArg)
	data, err := p.Purchase.Calldata(big.NewInt(5))
	require.NoError(t, err)
	assert.Len(t, data, 36)

	codeCalls := f.codeCalls
	again, err := e.Inspect(context.Background(), 97, saleAddr)
	require.NoError(t, err)
	assert.Same(t, p, again)
	assert.Equal(t, codeCalls, f.codeCalls)

	e.Invalidate(97, saleAddr)
	_, err = e.Inspect(context.Background(), 97, saleAddr)
	require.NoError(t, err)
	assert.Greater(t, f.codeCalls, codeCalls)
}

func TestInspectPartialProfileAndSelfToken(t *testing.T) {
	fb := FallbackABI()
	answers := tokenAnswers(6)
	answers["price"] = big.NewInt(3)
	f := &fakeChain{contracts: map[common.Address]*fakeContract{
		saleAddr: {abi: fb, answers: answers, extra: [][]byte{fb.Methods["buy0"].ID}},
	}}
	e := newEngine(t, f, nil)

	p, err := e.Inspect(context.Background(), 97, saleAddr)
	require.NoError(t, err)
	assert.Equal(t, saleAddr, p.TokenAddress)
	assert.False(t, p.Purchase.TakesQuantityArg)
	assert.False(t, p.LimitsKnown())
	assert.Nil(t, p.MaxPurchase)
	assert.Equal(t, uint8(6), p.Decimals())
	data, err := p.Purchase.Calldata(big.NewInt(5))
	require.NoError(t, err)
	assert.Len(t, data, 4)
}

func TestInspectClassification(t *testing.T) {
	fb := FallbackABI()
	f := &fakeChain{contracts: map[common.Address]*fakeContract{
		tokenAddr: {abi: fb, answers: tokenAnswers(18)},
		saleAddr:  {abi: fb, answers: map[string]interface{}{"owner": payout}},
		payout:    {abi: fb, answers: tokenAnswers(200), extra: [][]byte{buyWithQty()}},
	}}
	e := newEngine(t, f, nil)
	ctx := context.Background()

	_, err := e.Inspect(ctx, 97, eoa)
	assert.ErrorIs(t, err, saleerr.ErrAddressNotAContract)

	_, err = e.Inspect(ctx, 97, tokenAddr)
	assert.ErrorIs(t, err, saleerr.ErrTokenWithoutSaleCapability)
	_, err = e.ClassifySale(ctx, 97, tokenAddr)
	assert.ErrorIs(t, err, saleerr.ErrTokenWithoutSaleCapability)

	_, err = e.Inspect(ctx, 97, saleAddr)
	assert.ErrorIs(t, err, saleerr.ErrNotAToken)

	// a sale whose token reports absurd decimals is rejected rather than guessed
	_, err = e.Inspect(ctx, 97, payout)
	assert.ErrorIs(t, err, saleerr.ErrNotAToken)

	tok, err := e.ClassifyToken(ctx, 97, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, "Test Token", tok.Name)
	assert.Equal(t, "1000000", tok.TotalSupply.String())
}

const verifiedABI = `[
 {"type":"function","name":"buyTokens","stateMutability":"payable","inputs":[],"outputs":[]},
 {"type":"function","name":"buy","stateMutability":"nonpayable","inputs":[{"name":"q","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"tokenPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

func TestInspectWithVerifiedABI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "97"), 0o755))
	artifact := `{"abi":` + verifiedABI + `}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "97", strings.ToLower(saleAddr.Hex())+".json"), []byte(artifact), 0o644))

	verified, err := parseABI([]byte(verifiedABI))
	require.NoError(t, err)
	fb := FallbackABI()
	f := &fakeChain{contracts: map[common.Address]*fakeContract{
		// no PUSH4 for buyTokens: a verified ABI is trusted as is
		saleAddr:  {abi: verified, answers: map[string]interface{}{"tokenPrice": big.NewInt(9), "token": tokenAddr}},
		tokenAddr: {abi: fb, answers: tokenAnswers(0)},
	}}
	e := newEngine(t, f, DirFetcher{Dir: dir})

	p, err := e.Inspect(context.Background(), 97, saleAddr)
	require.NoError(t, err)
	assert.True(t, p.VerifiedABI)
	assert.Equal(t, "buyTokens", p.Purchase.Name)
	assert.Equal(t, "tokenPrice", p.Accessors[RolePrice])
	assert.Equal(t, tokenAddr, p.TokenAddress)
	assert.Equal(t, uint8(0), p.Decimals())

	missing, err := DirFetcher{Dir: dir}.FetchVerifiedABI(context.Background(), 97, eoa)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDetectPurchaseFunction(t *testing.T) {
	a, err := parseABI([]byte(`[
	 {"type":"function","name":"buy","stateMutability":"payable","inputs":[{"name":"to","type":"address"}],"outputs":[]},
	 {"type":"function","name":"purchase","stateMutability":"payable","inputs":[{"name":"n","type":"uint128"}],"outputs":[]}
	]`))
	require.NoError(t, err)
	fn := DetectPurchaseFunction(a)
	require.NotNil(t, fn)
	assert.Equal(t, "purchase", fn.Name)
	assert.Equal(t, "purchase(uint128)", fn.Signature())

	a, err = parseABI([]byte(`[{"type":"function","name":"buy","stateMutability":"nonpayable","inputs":[],"outputs":[]}]`))
	require.NoError(t, err)
	assert.Nil(t, DetectPurchaseFunction(a))
	assert.Nil(t, DetectPurchaseFunction(nil))
}

func TestCalldataMatchesArgumentWidth(t *testing.T) {
	tests := []struct {
		typ     string
		qty     *big.Int
		wantErr bool
	}{
		{"uint8", big.NewInt(255), false},
		{"uint8", big.NewInt(256), true},
		{"uint16", big.NewInt(500), false},
		{"uint24", big.NewInt(500), false},
		{"uint32", big.NewInt(500), false},
		{"uint64", big.NewInt(500), false},
		{"uint64", new(big.Int).Lsh(big.NewInt(1), 64), true},
		{"uint256", new(big.Int).Lsh(big.NewInt(1), 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.qty.String(), func(t *testing.T) {
			a, err := parseABI([]byte(`[{"type":"function","name":"buy","stateMutability":"payable","inputs":[{"name":"n","type":"` + tt.typ + `"}],"outputs":[]}]`))
			require.NoError(t, err)
			fn := DetectPurchaseFunction(a)
			require.NotNil(t, fn)

			data, err := fn.Calldata(tt.qty)
			if tt.wantErr {
				var ob *saleerr.OutOfBoundsError
				require.ErrorAs(t, err, &ob)
				assert.Equal(t, saleerr.BoundMax, ob.Bound)
				return
			}
			require.NoError(t, err)
			require.Len(t, data, 4+32)
			assert.Equal(t, fn.Method.ID, data[:4])
			assert.Equal(t, 0, new(big.Int).SetBytes(data[4:]).Cmp(tt.qty))
		})
	}
}

func TestSelectorsSkipPushData(t *testing.T) {
	hidden := []byte{opPush4, 0xaa, 0xbb, 0xcc, 0xdd}
	code := append([]byte{opPush32}, append(hidden, make([]byte, 32-len(hidden))...)...)
	code = append(code, opPush4, 0x11, 0x22, 0x33, 0x44)
	code = append(code, opPush4, 0x01) // truncated

	sels := Selectors(code)
	assert.Len(t, sels, 1)
	assert.True(t, hasSelector(sels, []byte{0x11, 0x22, 0x33, 0x44}))
	assert.False(t, hasSelector(sels, []byte{0xaa, 0xbb, 0xcc, 0xdd}))
}

func TestFallbackABICoversCandidates(t *testing.T) {
	fb := FallbackABI()
	for _, table := range [][]Accessor{TokenAccessors, SaleAccessors} {
		for _, acc := range table {
			for _, name := range acc.Candidates {
				_, ok := findView(fb, name)
				assert.True(t, ok, name)
			}
		}
	}
	assert.NotNil(t, DetectPurchaseFunction(fb))
}
