package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/config"
	"github.com/ligun0805/salekit/internal/transport"
	"github.com/ligun0805/salekit/internal/wallet"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
)

type fakeWallet struct {
	mu         sync.Mutex
	chainID    uint64
	balanceErr error
	calls      map[string]int
	sub        func(wallet.Event)
}

func (w *fakeWallet) Subscribe(fn func(wallet.Event)) func() {
	w.mu.Lock()
	w.sub = fn
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		w.sub = nil
		w.mu.Unlock()
	}
}

func (w *fakeWallet) emit(ev wallet.Event) {
	w.mu.Lock()
	fn := w.sub
	w.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (w *fakeWallet) count(method string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[method]
}

func (w *fakeWallet) Request(_ context.Context, method string, _ ...interface{}) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.calls == nil {
		w.calls = make(map[string]int)
	}
	w.calls[method]++
	switch method {
	case "eth_chainId":
		return json.Marshal(wallet.ChainIDHex(w.chainID))
	case "eth_requestAccounts":
		return json.Marshal([]common.Address{alice})
	case "eth_getBalance":
		if w.balanceErr != nil {
			return nil, w.balanceErr
		}
		return json.Marshal((*hexutil.Big)(big.NewInt(5)))
	}
	return nil, fmt.Errorf("unexpected %s", method)
}

type fakeNode struct {
	mu    sync.Mutex
	calls int
}

func (n *fakeNode) CallContext(_ context.Context, result interface{}, method string, _ ...interface{}) error {
	if method != "eth_getBalance" {
		return fmt.Errorf("unexpected %s", method)
	}
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	raw, _ := json.Marshal((*hexutil.Big)(big.NewInt(7)))
	return json.Unmarshal(raw, result)
}

func (n *fakeNode) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func testSettings() config.Settings {
	return config.Settings{
		ChainID:          97,
		AttemptTimeout:   time.Second,
		BackoffBase:      time.Millisecond,
		BackoffMax:       time.Millisecond,
		BreakerCooldown:  time.Hour,
		BalanceTTL:       time.Minute,
		PaymentCeiling:   "1",
		GasBufferPct:     20,
		FallbackGas:      500_000,
		ConfirmTimeout:   time.Second,
		ConfirmPoll:      10 * time.Millisecond,
		ProfileCacheSize: 16,
	}
}

func openSession(t *testing.T, w *fakeWallet, n *fakeNode, tweak ...func(*config.Settings)) *Session {
	t.Helper()
	st := testSettings()
	for _, fn := range tweak {
		fn(&st)
	}
	s, err := New(Options{
		Settings: st,
		Wallet:   w,
		Dial:     func(context.Context, string) (chain.Caller, error) { return n, nil },
	})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestOpenAttachesWallet(t *testing.T) {
	w := &fakeWallet{chainID: 97}
	n := &fakeNode{}
	s := openSession(t, w, n)

	assert.Equal(t, alice, s.Account())
	assert.Equal(t, uint64(97), s.WalletChain())
	eps := s.Endpoints()
	require.NotEmpty(t, eps)
	assert.Equal(t, transport.WalletProvider, eps[0].Kind)

	r, err := s.Balance(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "5", r.Wei.String())
	assert.Equal(t, 0, n.count())
}

func TestWalletEventsResetState(t *testing.T) {
	w := &fakeWallet{chainID: 97}
	n := &fakeNode{}
	s := openSession(t, w, n)
	ctx := context.Background()

	_, err := s.Balance(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, w.count("eth_getBalance"))

	w.emit(wallet.Event{Kind: wallet.ChainChanged, ChainID: 56})
	assert.Equal(t, uint64(56), s.WalletChain())
	assert.Equal(t, transport.PublicRPC, s.Endpoints()[0].Kind)
	r, err := s.Balance(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "7", r.Wei.String(), "cache cleared and wallet no longer serves chain 97")
	assert.Equal(t, 1, n.count())

	w.emit(wallet.Event{Kind: wallet.AccountsChanged, Accounts: []common.Address{bob}})
	assert.Equal(t, bob, s.Account())

	w.emit(wallet.Event{Kind: wallet.Disconnected})
	w.emit(wallet.Event{Kind: wallet.ChainChanged, ChainID: 97})
	for _, ep := range s.Endpoints() {
		assert.Equal(t, transport.PublicRPC, ep.Kind)
	}
}

func TestPollingPausesWhileBreakerOpen(t *testing.T) {
	w := &fakeWallet{chainID: 97, balanceErr: &wallet.ProviderError{Code: wallet.CodeLimitExceeded, Message: "rate limit exceeded"}}
	n := &fakeNode{}
	// a TTL shorter than the tick makes every unpaused tick fetch
	s := openSession(t, w, n, func(st *config.Settings) { st.BalanceTTL = time.Millisecond })

	s.StartPolling(2 * time.Millisecond)
	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	s.StopPolling()

	assert.Equal(t, 1, w.count("eth_getBalance"))
	assert.Equal(t, 1, n.count())
	assert.True(t, s.pollingPaused(time.Now()))
	_, paused := s.WalletPausedUntil()
	assert.True(t, paused)

	s.ResumeWallet()
	assert.False(t, s.pollingPaused(time.Now()))
	_, paused = s.WalletPausedUntil()
	assert.False(t, paused)
}

func TestEndpointManagement(t *testing.T) {
	s := openSession(t, &fakeWallet{chainID: 1}, &fakeNode{})

	s.AddEndpoint("https://rpc.example.org", -5)
	eps := s.Endpoints()
	require.NotEmpty(t, eps)
	assert.Equal(t, "https://rpc.example.org", eps[0].URL)

	s.RemoveEndpoint("https://rpc.example.org")
	for _, ep := range s.Endpoints() {
		assert.NotEqual(t, "https://rpc.example.org", ep.URL)
	}
}

func TestNewRejectsBadCeiling(t *testing.T) {
	st := testSettings()
	st.PaymentCeiling = "lots"
	_, err := New(Options{Settings: st, Wallet: &fakeWallet{}})
	assert.Error(t, err)
}
