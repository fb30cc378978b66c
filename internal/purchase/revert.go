package purchase

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/saleerr"
)

var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0} // Error(string)
	panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71} // Panic(uint256)
)

// Solidity panic codes.
var panicReasons = map[uint64]string{
	0x00: "generic compiler panic",
	0x01: "assertion failed",
	0x11: "arithmetic overflow",
	0x12: "division or modulo by zero",
	0x21: "invalid enum value",
	0x22: "corrupt storage byte array",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "call to uninitialized function",
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	stringArgs = abi.Arguments{{Type: mustType("string")}}
	uintArgs   = abi.Arguments{{Type: mustType("uint256")}}
)

// DecodeRevert decodes Error(string) and Panic(uint256) revert payloads.
func DecodeRevert(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	sel, body := data[:4], data[4:]
	switch {
	case bytes.Equal(sel, errorSelector):
		vals, err := stringArgs.Unpack(body)
		if err != nil || len(vals) != 1 {
			return "", false
		}
		s, ok := vals[0].(string)
		return s, ok
	case bytes.Equal(sel, panicSelector):
		vals, err := uintArgs.Unpack(body)
		if err != nil || len(vals) != 1 {
			return "", false
		}
		code, ok := vals[0].(*big.Int)
		if !ok {
			return "", false
		}
		desc := "unknown panic"
		if code.IsUint64() {
			if d, ok := panicReasons[code.Uint64()]; ok {
				desc = d
			}
		}
		return fmt.Sprintf("panic code 0x%x (%s)", code, desc), true
	}
	return "", false
}

// revertFrom turns a node revert error into a RevertError, preferring the raw
// payload over the node's message.
func revertFrom(err error) *saleerr.RevertError {
	if data, ok := chain.RevertData(err); ok && len(data) > 0 {
		if reason, ok := DecodeRevert(data); ok {
			return &saleerr.RevertError{Reason: reason, Raw: data, Decoded: true}
		}
		return &saleerr.RevertError{Raw: data}
	}
	msg := chain.RevertReason(err)
	msg = strings.TrimSpace(strings.TrimPrefix(msg, "execution reverted"))
	msg = strings.TrimSpace(strings.TrimPrefix(msg, ":"))
	if msg == "" {
		return &saleerr.RevertError{}
	}
	return &saleerr.RevertError{Reason: msg, Decoded: true}
}
