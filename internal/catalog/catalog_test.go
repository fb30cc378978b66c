package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinAndFallbacks(t *testing.T) {
	c := Builtin()
	n, ok := c.NetworkByID(97)
	require.True(t, ok)
	assert.Equal(t, []string{"https://bsc-testnet.publicnode.com"}, n.RPCURLs)
	assert.Equal(t, []uint64{1, 56, 97, 137}, c.ChainIDs())

	assert.Equal(t, "https://polygon-rpc.com", FallbackRPC(137))
	assert.Equal(t, DefaultRPC, FallbackRPC(424242))
	assert.Empty(t, FallbackExplorer(424242))
}

func TestAddChainParams(t *testing.T) {
	n, _ := Builtin().NetworkByID(56)
	p := AddChainParams(n)
	assert.Equal(t, "0x38", p["chainId"])
	assert.Equal(t, "BNB Smart Chain", p["chainName"])
	assert.Equal(t, []string{"https://bscscan.com"}, p["blockExplorerUrls"])
	cur := p["nativeCurrency"].(map[string]any)
	assert.Equal(t, uint8(18), cur["decimals"])

	bare := AddChainParams(Network{ChainID: 1, Name: "x", RPCURLs: []string{"https://x"}})
	assert.Equal(t, []string{"https://etherscan.io"}, bare["blockExplorerUrls"])
}

func TestLoadYAMLOverlaysBuiltin(t *testing.T) {
	doc := `
networks:
  - chain_id: 97
    name: BSC Testnet (custom)
    native_currency: {name: tBNB, symbol: tBNB, decimals: 18}
    rpc_urls: [https://data-seed-prebsc-1-s1.bnbchain.org:8545]
  - chain_id: 31337
    name: Local
    native_currency: {name: Ether, symbol: ETH, decimals: 18}
    rpc_urls: [http://127.0.0.1:8545]
`
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := LoadYAML(path, Builtin())
	require.NoError(t, err)
	n, ok := c.NetworkByID(97)
	require.True(t, ok)
	assert.Equal(t, "BSC Testnet (custom)", n.Name)
	local, ok := c.NetworkByID(31337)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8545", local.RPCURLs[0])
	_, ok = c.NetworkByID(1)
	assert.True(t, ok)
}

func TestParseYAMLValidation(t *testing.T) {
	cases := map[string]string{
		"zero chain":   "networks: [{chain_id: 0, rpc_urls: [https://x]}]",
		"no rpc":       "networks: [{chain_id: 5}]",
		"bad url":      "networks: [{chain_id: 5, rpc_urls: [not-a-url]}]",
		"bad explorer": "networks: [{chain_id: 5, rpc_urls: [https://x], explorer_urls: ['://']}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAML([]byte(doc), nil)
			require.Error(t, err)
		})
	}
}
