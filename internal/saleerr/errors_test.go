package saleerr

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	last := errors.New("dial tcp: connection refused")
	ex := &ExhaustedError{Attempts: 3, Last: last}
	require.ErrorIs(t, ex, ErrTransportExhausted)
	require.ErrorIs(t, ex, last)

	ob := fmt.Errorf("limit check: %w", &OutOfBoundsError{Bound: BoundMin, Limit: big.NewInt(10), Requested: big.NewInt(1)})
	require.ErrorIs(t, ob, ErrOutOfBounds)
	var typed *OutOfBoundsError
	require.True(t, errors.As(ob, &typed))
	assert.Equal(t, BoundMin, typed.Bound)

	pr := &ProviderRejectedError{HTTPStatus: 403, Err: errors.New("403 Forbidden")}
	require.ErrorIs(t, pr, ErrProviderRejected)
	assert.Contains(t, pr.Error(), "http 403")
}

func TestRevertErrorMessage(t *testing.T) {
	assert.Equal(t, "execution reverted: sale closed", (&RevertError{Reason: "sale closed", Decoded: true}).Error())
	assert.Equal(t, "execution reverted (raw 0xdeadbeef)", (&RevertError{Raw: []byte{0xde, 0xad, 0xbe, 0xef}}).Error())
	assert.Equal(t, "execution reverted", (&RevertError{}).Error())
	require.ErrorIs(t, &RevertError{}, ErrSimulatedRevert)
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ExhaustedError{Last: errors.New("x")}, "TRANSPORT"},
		{&OutOfBoundsError{Bound: BoundCap}, "OUT_OF_BOUNDS:cap"},
		{fmt.Errorf("post-mortem: %w: %w", ErrConfirmationFailed, &RevertError{Reason: "x", Decoded: true}), "CONFIRMATION_FAILED"},
		{&RevertError{}, "REVERT"},
		{fmt.Errorf("%w: [max]", ErrLimitsUnknown), "LIMITS_UNKNOWN"},
		{fmt.Errorf("%w: estimate: %w", ErrGasEstimationUnsupported, &ExhaustedError{Last: errors.New("x")}), "GAS_UNSUPPORTED"},
		{ErrTokenWithoutSaleCapability, "NO_SALE"},
		{context.Canceled, "CANCELLED"},
		{errors.New("boom"), "ERROR"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Kind(tc.err))
	}
}
