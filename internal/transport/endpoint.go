package transport

import "fmt"

// Kind tells wallet-provider endpoints from public RPC nodes.
type Kind int

const (
	PublicRPC Kind = iota
	WalletProvider
)

func (k Kind) String() string {
	if k == WalletProvider {
		return "wallet"
	}
	return "public"
}

// Endpoint is one JSON-RPC path to a chain.
type Endpoint struct {
	Kind     Kind
	URL      string
	Priority int

	seq int
}

func (e Endpoint) String() string {
	if e.Kind == WalletProvider {
		return "wallet"
	}
	return fmt.Sprintf("%s (prio %d)", e.URL, e.Priority)
}

// walletURL labels the wallet endpoint in logs and listings.
const walletURL = "wallet://provider"
