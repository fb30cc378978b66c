// Package catalog maps chain IDs to network metadata.
package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultRPC is the last-resort endpoint when neither the catalog nor the
// per-chain fallback table knows the chain.
const DefaultRPC = "https://bsc-testnet.publicnode.com"

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string `yaml:"name" json:"name"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals uint8  `yaml:"decimals" json:"decimals"`
}

// Network is a catalog entry.
type Network struct {
	ChainID        uint64         `yaml:"chain_id"`
	Name           string         `yaml:"name"`
	NativeCurrency NativeCurrency `yaml:"native_currency"`
	RPCURLs        []string       `yaml:"rpc_urls"`
	ExplorerURLs   []string       `yaml:"explorer_urls"`
}

// Catalog resolves chain metadata.
type Catalog interface {
	NetworkByID(chainID uint64) (Network, bool)
}

// Static is an in-memory catalog. The zero value is empty and usable.
type Static struct {
	mu       sync.RWMutex
	networks map[uint64]Network
}

// NewStatic builds a catalog from the given entries.
func NewStatic(nets ...Network) *Static {
	s := &Static{networks: make(map[uint64]Network, len(nets))}
	for _, n := range nets {
		s.networks[n.ChainID] = n
	}
	return s
}

// Builtin returns the networks the tester knows out of the box.
func Builtin() *Static {
	return NewStatic(
		Network{
			ChainID:        1,
			Name:           "Ethereum Mainnet",
			NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
			RPCURLs:        []string{"https://eth.llamarpc.com"},
			ExplorerURLs:   []string{"https://etherscan.io"},
		},
		Network{
			ChainID:        56,
			Name:           "BNB Smart Chain",
			NativeCurrency: NativeCurrency{Name: "BNB", Symbol: "BNB", Decimals: 18},
			RPCURLs:        []string{"https://bsc-dataseed.binance.org"},
			ExplorerURLs:   []string{"https://bscscan.com"},
		},
		Network{
			ChainID:        97,
			Name:           "BNB Smart Chain Testnet",
			NativeCurrency: NativeCurrency{Name: "tBNB", Symbol: "tBNB", Decimals: 18},
			RPCURLs:        []string{"https://bsc-testnet.publicnode.com"},
			ExplorerURLs:   []string{"https://testnet.bscscan.com"},
		},
		Network{
			ChainID:        137,
			Name:           "Polygon Mainnet",
			NativeCurrency: NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
			RPCURLs:        []string{"https://polygon-rpc.com"},
			ExplorerURLs:   []string{"https://polygonscan.com"},
		},
	)
}

// NetworkByID implements Catalog.
func (s *Static) NetworkByID(chainID uint64) (Network, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.networks[chainID]
	return n, ok
}

// Put adds or replaces an entry.
func (s *Static) Put(n Network) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.networks == nil {
		s.networks = make(map[uint64]Network)
	}
	s.networks[n.ChainID] = n
}

// ChainIDs lists known chains in ascending order.
func (s *Static) ChainIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.networks))
	for id := range s.networks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fallback RPCs for popular networks, used when the catalog has no entry.
var fallbackRPCs = map[uint64]string{
	1:   "https://eth.llamarpc.com",
	56:  "https://bsc-dataseed.binance.org",
	97:  "https://bsc-testnet.publicnode.com",
	137: "https://polygon-rpc.com",
}

var fallbackExplorers = map[uint64]string{
	1:   "https://etherscan.io",
	56:  "https://bscscan.com",
	97:  "https://testnet.bscscan.com",
	137: "https://polygonscan.com",
}

// FallbackRPC returns a hardcoded endpoint for chainID, never empty.
func FallbackRPC(chainID uint64) string {
	if u, ok := fallbackRPCs[chainID]; ok {
		return u
	}
	return DefaultRPC
}

// FallbackExplorer returns a hardcoded explorer URL, or "" when unknown.
func FallbackExplorer(chainID uint64) string { return fallbackExplorers[chainID] }

// AddChainParams renders the wallet_addEthereumChain parameter object (EIP-3085).
func AddChainParams(n Network) map[string]any {
	explorers := n.ExplorerURLs
	if len(explorers) == 0 {
		if e := FallbackExplorer(n.ChainID); e != "" {
			explorers = []string{e}
		}
	}
	dec := n.NativeCurrency.Decimals
	if dec == 0 {
		dec = 18
	}
	params := map[string]any{
		"chainId":   fmt.Sprintf("0x%x", n.ChainID),
		"chainName": n.Name,
		"nativeCurrency": map[string]any{
			"name":     n.NativeCurrency.Name,
			"symbol":   n.NativeCurrency.Symbol,
			"decimals": dec,
		},
		"rpcUrls": n.RPCURLs,
	}
	if len(explorers) > 0 {
		params["blockExplorerUrls"] = explorers
	}
	return params
}
