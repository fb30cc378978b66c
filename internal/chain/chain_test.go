package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	args   []interface{}
}

// scripted answers each method with a canned JSON value.
type scripted struct {
	answers map[string]string
	calls   []call
}

func (s *scripted) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	s.calls = append(s.calls, call{method, args})
	raw, ok := s.answers[method]
	if !ok {
		return fmt.Errorf("method %s not scripted", method)
	}
	return json.Unmarshal([]byte(raw), result)
}

func TestReaderDecodesQuantities(t *testing.T) {
	s := &scripted{answers: map[string]string{
		"eth_chainId":     `"0x61"`,
		"eth_getBalance":  `"0xde0b6b3a7640000"`,
		"eth_getCode":     `"0x6080"`,
		"eth_estimateGas": `"0x5208"`,
		"eth_call":        `"0x0000000000000000000000000000000000000000000000000000000000000012"`,
	}}
	r := NewReader(s)
	ctx := context.Background()

	id, err := r.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(97), id)

	acct := common.HexToAddress("0x1111111111111111111111111111111111111111")
	bal, err := r.BalanceAt(ctx, acct, nil)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", bal.String())

	code, err := r.CodeAt(ctx, acct, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	gas, err := r.EstimateGas(ctx, ethereum.CallMsg{To: &acct, Value: big.NewInt(1)})
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)

	out, err := r.CallContract(ctx, ethereum.CallMsg{To: &acct, Data: []byte{0x31, 0x3c, 0xe5, 0x67}}, big.NewInt(123))
	require.NoError(t, err)
	assert.Len(t, out, 32)

	last := s.calls[len(s.calls)-1]
	assert.Equal(t, "eth_call", last.method)
	assert.Equal(t, "0x7b", last.args[1])
	arg := last.args[0].(map[string]interface{})
	assert.Contains(t, arg, "input")
}

type fakeRPCErr struct {
	code int
	data interface{}
}

func (e fakeRPCErr) Error() string          { return "execution reverted" }
func (e fakeRPCErr) ErrorCode() int         { return e.code }
func (e fakeRPCErr) ErrorData() interface{} { return e.data }

func TestErrorClassification(t *testing.T) {
	rev := fmt.Errorf("probe: %w", fakeRPCErr{code: 3, data: "0x08c379a0"})
	assert.True(t, IsRevert(rev))
	data, ok := RevertData(rev)
	require.True(t, ok)
	assert.Equal(t, []byte{0x08, 0xc3, 0x79, 0xa0}, data)
	assert.Equal(t, 3, ErrorCode(rev))

	nested := fakeRPCErr{code: -32603, data: map[string]interface{}{"data": "0x4e487b71"}}
	data, ok = RevertData(nested)
	require.True(t, ok)
	assert.Equal(t, []byte{0x4e, 0x48, 0x7b, 0x71}, data)

	assert.False(t, IsRevert(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsInsufficientFunds(errors.New("insufficient funds for gas * price + value")))

	httpErr := fmt.Errorf("call: %w", rpc.HTTPError{StatusCode: 403, Status: "403 Forbidden"})
	assert.Equal(t, 403, HTTPStatus(httpErr))
	assert.Equal(t, 0, HTTPStatus(errors.New("x")))

	assert.Equal(t, "execution reverted: closed", RevertReason(errors.New("rpc: execution reverted: closed")))
}

func TestUnits(t *testing.T) {
	v, err := ParseUnits("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())

	_, err = ParseUnits("0.0000001", 6)
	require.Error(t, err)
	_, err = ParseUnits("-1", 6)
	require.Error(t, err)

	assert.Equal(t, "1.5", FormatUnits(v, 18))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "0", FormatUnits(big.NewInt(0), 6))
	assert.Equal(t, "42", FormatUnits(big.NewInt(42), 0))
	assert.Equal(t, "1.500000", FormatNative(v))
	assert.Equal(t, "1000", Pow10(3).String())
}
