package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/catalog"
	"github.com/ligun0805/salekit/internal/chain"
)

// DialFunc opens a JSON-RPC connection to a node.
type DialFunc func(ctx context.Context, url string) (chain.Caller, error)

func dialRPC(ctx context.Context, url string) (chain.Caller, error) {
	return rpc.DialContext(ctx, url)
}

// KeyProvider is a wallet provider backed by a local private key. It signs
// transactions itself and forwards every other request to the node of the
// currently selected chain, the way an injected browser wallet would.
type KeyProvider struct {
	key  *ecdsa.PrivateKey
	addr common.Address
	dial DialFunc
	log  *zap.Logger

	mu        sync.Mutex
	chainID   uint64
	nodes     map[uint64]string
	clients   map[uint64]chain.Caller
	connected bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

type KeyOption func(*KeyProvider)

// WithNode registers the node URL used for chainID.
func WithNode(chainID uint64, url string) KeyOption {
	return func(p *KeyProvider) { p.nodes[chainID] = url }
}

// WithDialer replaces rpc.DialContext, mainly for tests.
func WithDialer(d DialFunc) KeyOption {
	return func(p *KeyProvider) { p.dial = d }
}

func WithLogger(l *zap.Logger) KeyOption {
	return func(p *KeyProvider) { p.log = l }
}

// NewKeyProvider builds a provider on chainID. Without an explicit WithNode
// for that chain the first catalog RPC is used.
func NewKeyProvider(keyHex string, chainID uint64, cat catalog.Catalog, opts ...KeyOption) (*KeyProvider, error) {
	prv, err := hexToECDSAPriv(keyHex)
	if err != nil {
		return nil, fmt.Errorf("bad private key: %w", err)
	}
	p := &KeyProvider{
		key:     prv,
		addr:    gethcrypto.PubkeyToAddress(prv.PublicKey),
		dial:    dialRPC,
		log:     zap.NewNop(),
		chainID: chainID,
		nodes:   make(map[uint64]string),
		clients: make(map[uint64]chain.Caller),
		subs:    make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(p)
	}
	if _, ok := p.nodes[chainID]; !ok {
		url := catalog.FallbackRPC(chainID)
		if cat != nil {
			if n, ok := cat.NetworkByID(chainID); ok && len(n.RPCURLs) > 0 {
				url = n.RPCURLs[0]
			}
		}
		p.nodes[chainID] = url
	}
	return p, nil
}

// Address is the account the provider signs for.
func (p *KeyProvider) Address() common.Address { return p.addr }

// Subscribe implements Provider.
func (p *KeyProvider) Subscribe(fn func(Event)) func() {
	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subMu.Unlock()
	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

func (p *KeyProvider) emit(ev Event) {
	p.subMu.Lock()
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.subs[id])
	}
	p.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Disconnect drops the session and notifies subscribers.
func (p *KeyProvider) Disconnect() {
	p.mu.Lock()
	was := p.connected
	p.connected = false
	p.mu.Unlock()
	if was {
		p.emit(Event{Kind: Disconnected})
	}
}

// Close releases node connections.
func (p *KeyProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		if rc, ok := c.(*rpc.Client); ok {
			rc.Close()
		}
		delete(p.clients, id)
	}
}

// Request implements Provider.
func (p *KeyProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts":
		p.mu.Lock()
		first := !p.connected
		p.connected = true
		p.mu.Unlock()
		if first {
			p.emit(Event{Kind: AccountsChanged, Accounts: []common.Address{p.addr}})
		}
		return json.Marshal([]common.Address{p.addr})
	case "eth_accounts":
		p.mu.Lock()
		connected := p.connected
		p.mu.Unlock()
		if !connected {
			return json.Marshal([]common.Address{})
		}
		return json.Marshal([]common.Address{p.addr})
	case "eth_chainId":
		p.mu.Lock()
		id := p.chainID
		p.mu.Unlock()
		return json.Marshal(ChainIDHex(id))
	case "wallet_switchEthereumChain":
		return p.switchChain(params)
	case "wallet_addEthereumChain":
		return p.addChain(params)
	case "eth_sendTransaction":
		return p.sendTransaction(ctx, params)
	}
	c, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.CallContext(ctx, &raw, method, params...); err != nil {
		return nil, err
	}
	return raw, nil
}

func (p *KeyProvider) client(ctx context.Context) (chain.Caller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[p.chainID]; ok {
		return c, nil
	}
	url, ok := p.nodes[p.chainID]
	if !ok {
		return nil, &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID " + ChainIDHex(p.chainID)}
	}
	c, err := p.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	p.clients[p.chainID] = c
	return c, nil
}

type chainParam struct {
	ChainID           string   `json:"chainId"`
	RPCURLs           []string `json:"rpcUrls"`
	ChainName         string   `json:"chainName"`
	BlockExplorerURLs []string `json:"blockExplorerUrls"`
}

func decodeChainParam(params []interface{}) (chainParam, uint64, error) {
	var cp chainParam
	if len(params) == 0 {
		return cp, 0, &ProviderError{Code: -32602, Message: "missing chain parameter"}
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return cp, 0, err
	}
	if err := json.Unmarshal(raw, &cp); err != nil {
		return cp, 0, &ProviderError{Code: -32602, Message: "invalid chain parameter: " + err.Error()}
	}
	id, err := ParseQuantity(cp.ChainID)
	if err != nil || id == 0 {
		return cp, 0, &ProviderError{Code: -32602, Message: "invalid chainId " + cp.ChainID}
	}
	return cp, id, nil
}

func (p *KeyProvider) switchChain(params []interface{}) (json.RawMessage, error) {
	_, id, err := decodeChainParam(params)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if _, known := p.nodes[id]; !known {
		p.mu.Unlock()
		return nil, &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID " + ChainIDHex(id)}
	}
	changed := p.chainID != id
	p.chainID = id
	p.mu.Unlock()
	if changed {
		p.log.Info("wallet switched chain", zap.Uint64("chain_id", id))
		p.emit(Event{Kind: ChainChanged, ChainID: id})
	}
	return json.RawMessage("null"), nil
}

func (p *KeyProvider) addChain(params []interface{}) (json.RawMessage, error) {
	cp, id, err := decodeChainParam(params)
	if err != nil {
		return nil, err
	}
	if len(cp.RPCURLs) == 0 {
		return nil, &ProviderError{Code: -32602, Message: "rpcUrls is required"}
	}
	p.mu.Lock()
	if _, known := p.nodes[id]; !known {
		p.nodes[id] = cp.RPCURLs[0]
	}
	p.mu.Unlock()
	p.log.Info("wallet added chain", zap.Uint64("chain_id", id), zap.String("name", cp.ChainName), zap.String("rpc", cp.RPCURLs[0]))
	return json.RawMessage("null"), nil
}

func (p *KeyProvider) sendTransaction(ctx context.Context, params []interface{}) (json.RawMessage, error) {
	if len(params) == 0 {
		return nil, &ProviderError{Code: -32602, Message: "missing transaction"}
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return nil, err
	}
	var req TxRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &ProviderError{Code: -32602, Message: "invalid transaction: " + err.Error()}
	}
	if req.From != (common.Address{}) && req.From != p.addr {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "unknown account " + req.From.Hex()}
	}
	value, err := parseBig(req.Value)
	if err != nil {
		return nil, &ProviderError{Code: -32602, Message: "invalid value: " + err.Error()}
	}
	var data []byte
	if req.Data != "" {
		if data, err = hexutil.Decode(req.Data); err != nil {
			return nil, &ProviderError{Code: -32602, Message: "invalid data: " + err.Error()}
		}
	}

	c, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	r := chain.NewReader(c)
	p.mu.Lock()
	chainID := new(big.Int).SetUint64(p.chainID)
	p.mu.Unlock()

	var gas uint64
	if req.Gas != "" {
		if gas, err = hexutil.DecodeUint64(req.Gas); err != nil {
			return nil, &ProviderError{Code: -32602, Message: "invalid gas: " + err.Error()}
		}
	} else {
		gas, err = r.EstimateGas(ctx, ethereum.CallMsg{From: p.addr, To: req.To, Value: value, Data: data})
		if err != nil {
			return nil, err
		}
	}
	nonce, err := r.NonceAt(ctx, p.addr)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	tip, feeCap := fees(ctx, r)
	var tx *types.Transaction
	if feeCap != nil {
		tx = buildDynamicTx(chainID, nonce, req.To, value, gas, tip, feeCap, data)
	} else {
		gp, err := gasPrice(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
		tx = buildLegacyTx(nonce, req.To, value, gas, gp, data)
	}
	signed, err := signTx(tx, chainID, p.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	bin, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var hash common.Hash
	if err := c.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(bin)); err != nil {
		return nil, err
	}
	if hash != signed.Hash() {
		return nil, errors.New("node returned unexpected transaction hash " + hash.Hex())
	}
	p.log.Info("transaction sent", zap.String("tx_hash", hash.Hex()), zap.Uint64("nonce", nonce), zap.Uint64("gas", gas))
	return json.Marshal(hash)
}
