package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func (s *Session) pausePolling(resumeAt time.Time) {
	s.mu.Lock()
	s.pausedUntil = resumeAt
	s.mu.Unlock()
	s.log.Warn("wallet endpoint rate limited, balance polling paused", zap.Time("resume_at", resumeAt))
}

func (s *Session) pollingPaused(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.pausedUntil)
}

// StartPolling reads the account balance every interval until StopPolling
// or Close. The cache TTL bounds how often a tick reaches the network. Ticks
// are skipped while the wallet breaker is open.
func (s *Session) StartPolling(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.StopPolling()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.stopPoll = cancel
	s.pollDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if s.pollingPaused(now) || s.Running() {
					continue
				}
				if _, err := s.Balance(ctx, false); err != nil && ctx.Err() == nil {
					s.log.Debug("balance poll failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Session) StopPolling() {
	s.mu.Lock()
	cancel, done := s.stopPoll, s.pollDone
	s.stopPoll, s.pollDone = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
