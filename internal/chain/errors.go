package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC error code geth uses for execution reverts.
const revertCode = 3

type dataError interface {
	Error() string
	ErrorData() interface{}
}

type codedError interface {
	Error() string
	ErrorCode() int
}

// ErrorCode returns the JSON-RPC or EIP-1193 code carried by err, 0 if none.
func ErrorCode(err error) int {
	var ce codedError
	if errors.As(err, &ce) {
		return ce.ErrorCode()
	}
	return 0
}

// RevertData extracts revert bytes from an error's data field.
func RevertData(err error) ([]byte, bool) {
	var de dataError
	if !errors.As(err, &de) {
		return nil, false
	}
	switch d := de.ErrorData().(type) {
	case string:
		b, e := hexutil.Decode(d)
		if e != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return d, true
	case hexutil.Bytes:
		return d, true
	case map[string]interface{}:
		// some providers nest the payload: {"data": "0x..."}
		if s, ok := d["data"].(string); ok {
			if b, e := hexutil.Decode(s); e == nil {
				return b, true
			}
		}
	}
	return nil, false
}

// IsRevert reports whether err is an EVM execution revert rather than a transport failure.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	if ErrorCode(err) == revertCode {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "execution reverted") ||
		strings.Contains(s, "vm execution error") ||
		strings.Contains(s, "invalid opcode")
}

// IsInsufficientFunds matches node messages such as
// "insufficient funds for gas * price + value".
func IsInsufficientFunds(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}

// HTTPStatus returns the HTTP status of a failed JSON-RPC round trip, 0 if none.
func HTTPStatus(err error) int {
	var he rpc.HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	var hp *rpc.HTTPError
	if errors.As(err, &hp) {
		return hp.StatusCode
	}
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// RevertReason trims a node error down to its "execution reverted..." part.
func RevertReason(err error) string {
	s := err.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return s
}
