package balance

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acct = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type stubFetcher struct {
	calls atomic.Int32
	mu    sync.Mutex
	wei   *big.Int
	err   error
	gate  chan struct{}
}

func (s *stubFetcher) fetch(ctx context.Context, _ uint64, _ common.Address) (*big.Int, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.wei), nil
}

func (s *stubFetcher) set(wei int64, err error) {
	s.mu.Lock()
	s.wei, s.err = big.NewInt(wei), err
	s.mu.Unlock()
}

func TestFreshEntryServedFromMemory(t *testing.T) {
	f := &stubFetcher{wei: big.NewInt(7)}
	c := New(Config{TTL: time.Minute}, f.fetch, nil)
	ctx := context.Background()

	r, err := c.Get(ctx, acct, 97, false)
	require.NoError(t, err)
	assert.Equal(t, "7", r.Wei.String())
	assert.False(t, r.Stale)

	f.set(9, nil)
	r, err = c.Get(ctx, acct, 97, false)
	require.NoError(t, err)
	assert.Equal(t, "7", r.Wei.String())
	assert.Equal(t, int32(1), f.calls.Load())

	r, err = c.Get(ctx, acct, 97, true)
	require.NoError(t, err)
	assert.Equal(t, "9", r.Wei.String())
	assert.Equal(t, int32(2), f.calls.Load())

	// other chain is a separate key
	_, err = c.Get(ctx, acct, 56, false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	f := &stubFetcher{wei: big.NewInt(100)}
	c := New(Config{TTL: time.Minute, Debounce: 50 * time.Millisecond}, f.fetch, nil)

	var wg sync.WaitGroup
	results := make([]Reading, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Get(context.Background(), acct, 97, true)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, r := range results {
		assert.Equal(t, "100", r.Wei.String())
	}
}

func TestCancelledCallerDoesNotFailOthers(t *testing.T) {
	f := &stubFetcher{wei: big.NewInt(42)}
	c := New(Config{TTL: time.Minute, Debounce: 100 * time.Millisecond}, f.fetch, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(first, acct, 97, true)
		firstErr <- err
	}()
	// let the first caller lead the shared refresh
	time.Sleep(10 * time.Millisecond)

	second := make(chan Reading, 1)
	go func() {
		r, err := c.Get(context.Background(), acct, 97, true)
		assert.NoError(t, err)
		second <- r
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	r := <-second
	require.True(t, r.Known())
	assert.Equal(t, "42", r.Wei.String())
	assert.Equal(t, int32(1), f.calls.Load())
	assert.True(t, c.Peek(acct, 97).Known())
}

func TestFailureFallsBackToStale(t *testing.T) {
	f := &stubFetcher{wei: big.NewInt(5)}
	c := New(Config{TTL: time.Minute}, f.fetch, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, acct, 97, false)
	require.NoError(t, err)

	f.set(0, errors.New("all endpoints down"))
	r, err := c.Get(ctx, acct, 97, true)
	require.NoError(t, err)
	assert.True(t, r.Stale)
	assert.Equal(t, "5", r.Wei.String())
}

func TestFailureWithoutEntryIsUnknown(t *testing.T) {
	boom := errors.New("all endpoints down")
	f := &stubFetcher{err: boom}
	c := New(Config{TTL: time.Minute}, f.fetch, nil)

	r, err := c.Get(context.Background(), acct, 97, false)
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.Known())
	assert.Equal(t, Unknown, r)
	assert.Equal(t, "unknown", r.String())

	f.set(0, nil)
	r, err = c.Get(context.Background(), acct, 97, false)
	require.NoError(t, err)
	assert.True(t, r.Known())
	assert.Equal(t, 0, r.Wei.Sign())
}

func TestClearDiscardsInFlightResult(t *testing.T) {
	f := &stubFetcher{wei: big.NewInt(3), gate: make(chan struct{})}
	c := New(Config{TTL: time.Minute}, f.fetch, nil)
	var updates atomic.Int32
	c.OnUpdate(func(common.Address, uint64, Reading) { updates.Add(1) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), acct, 97, false)
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	c.Clear()
	close(f.gate)
	<-done

	assert.False(t, c.Peek(acct, 97).Known())
	assert.Equal(t, int32(0), updates.Load())

	f.gate = nil
	_, err := c.Get(context.Background(), acct, 97, false)
	require.NoError(t, err)
	assert.True(t, c.Peek(acct, 97).Known())
	assert.Equal(t, int32(1), updates.Load())
}

func TestStaleByAge(t *testing.T) {
	f := &stubFetcher{wei: big.NewInt(1)}
	c := New(Config{TTL: 10 * time.Millisecond}, f.fetch, nil)
	_, err := c.Get(context.Background(), acct, 97, false)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, c.Peek(acct, 97).Stale)

	_, err = c.Get(context.Background(), acct, 97, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}
