package purchase

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRevert(t *testing.T) {
	msg, err := stringArgs.Pack("Exceeds wallet cap")
	require.NoError(t, err)
	reason, ok := DecodeRevert(append(append([]byte{}, errorSelector...), msg...))
	require.True(t, ok)
	assert.Equal(t, "Exceeds wallet cap", reason)

	code, err := uintArgs.Pack(big.NewInt(0x11))
	require.NoError(t, err)
	reason, ok = DecodeRevert(append(append([]byte{}, panicSelector...), code...))
	require.True(t, ok)
	assert.Equal(t, "panic code 0x11 (arithmetic overflow)", reason)

	code, _ = uintArgs.Pack(big.NewInt(0x99))
	reason, _ = DecodeRevert(append(append([]byte{}, panicSelector...), code...))
	assert.Equal(t, "panic code 0x99 (unknown panic)", reason)

	_, ok = DecodeRevert([]byte{0xde, 0xad, 0xbe, 0xef, 0x01})
	assert.False(t, ok)
	_, ok = DecodeRevert([]byte{0x08, 0xc3})
	assert.False(t, ok)
}

func TestRevertFrom(t *testing.T) {
	rev := revertFrom(revertWith("Not started"))
	assert.True(t, rev.Decoded)
	assert.Equal(t, "Not started", rev.Reason)

	custom := rpcErr{code: 3, msg: "execution reverted", data: "0xdeadbeef"}
	rev = revertFrom(custom)
	assert.False(t, rev.Decoded)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, rev.Raw)
	assert.Equal(t, "execution reverted (raw 0xdeadbeef)", rev.Error())

	rev = revertFrom(errors.New("execution reverted: Paused"))
	assert.Equal(t, "Paused", rev.Reason)

	rev = revertFrom(errors.New("execution reverted"))
	assert.Equal(t, "execution reverted", rev.Error())
}
