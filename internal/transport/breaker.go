package transport

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const breakerKey = "wallet"

// breaker pauses the wallet endpoint after it reports throttling. The trip
// lives in go-cache with the cooldown as TTL, so it clears itself.
type breaker struct {
	trips    *cache.Cache
	cooldown time.Duration
}

func newBreaker(cooldown time.Duration) *breaker {
	return &breaker{trips: cache.New(cooldown, cooldown), cooldown: cooldown}
}

// trip opens the breaker. first is false when it was already open.
func (b *breaker) trip() (resumeAt time.Time, first bool) {
	resumeAt = time.Now().Add(b.cooldown)
	if err := b.trips.Add(breakerKey, resumeAt, b.cooldown); err != nil {
		at, _ := b.resumeAt()
		return at, false
	}
	return resumeAt, true
}

func (b *breaker) resumeAt() (time.Time, bool) {
	v, ok := b.trips.Get(breakerKey)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

func (b *breaker) tripped() bool {
	_, ok := b.trips.Get(breakerKey)
	return ok
}

func (b *breaker) reset() { b.trips.Delete(breakerKey) }
