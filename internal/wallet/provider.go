// Package wallet models the EIP-1193 style wallet provider the core talks to.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/salekit/internal/chain"
)

// EIP-1193 / JSON-RPC codes the core reacts to.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnrecognizedChain = 4902
	CodeRequestPending    = -32002
	CodeLimitExceeded     = -32005
	CodeInternal          = -32603
)

// Provider is the wallet transport: request/response plus notifications.
type Provider interface {
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	// Subscribe registers fn for provider events. Events are delivered
	// synchronously, at most once each, in emission order.
	Subscribe(fn func(Event)) (unsubscribe func())
}

type EventKind int

const (
	AccountsChanged EventKind = iota + 1
	ChainChanged
	Disconnected
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	case Disconnected:
		return "disconnect"
	}
	return "unknown"
}

// Event is a provider notification.
type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  uint64
}

// ProviderError is an EIP-1193 error. It satisfies the same ErrorCode/ErrorData
// shape as go-ethereum's rpc errors.
type ProviderError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *ProviderError) ErrorCode() int         { return e.Code }
func (e *ProviderError) ErrorData() interface{} { return e.Data }

// TxRequest is the eth_sendTransaction parameter object.
type TxRequest struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value string          `json:"value,omitempty"`
	Data  string          `json:"data,omitempty"`
	Gas   string          `json:"gas,omitempty"`
}

// AsCaller adapts a Provider to chain.Caller so the transport pool can use it
// as an ordinary endpoint.
func AsCaller(p Provider) chain.Caller { return providerCaller{p} }

type providerCaller struct{ p Provider }

func (c providerCaller) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	raw, err := c.p.Request(ctx, method, args...)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(raw, result)
}

// ChainIDHex renders a chain ID the way wallets expect it.
func ChainIDHex(id uint64) string { return "0x" + strconv.FormatUint(id, 16) }

// ParseQuantity parses a hex ("0x61") or decimal ("97") quantity.
func ParseQuantity(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// ChainID asks the provider for its current chain.
func ChainID(ctx context.Context, p Provider) (uint64, error) {
	raw, err := p.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	return ParseQuantity(s)
}

// Accounts runs eth_requestAccounts.
func Accounts(ctx context.Context, p Provider) ([]common.Address, error) {
	raw, err := p.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, err
	}
	var out []common.Address
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("eth_requestAccounts: %w", err)
	}
	return out, nil
}
