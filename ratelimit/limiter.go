// Package ratelimit spaces outbound requests so that at least a minimum delay
// separates the completion of one request from the start of the next.
package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Limiter enforces a minimum wall-clock spacing between successive turns.
//
// The zero value is not usable; create one with New.
type Limiter struct {
	minDelay time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	last time.Time // completion of the previous turn, zero before the first

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Limiter that keeps at least minDelay between turns.
// Negative delays are treated as zero.
func New(minDelay time.Duration) *Limiter {
	if minDelay < 0 {
		minDelay = 0
	}
	return &Limiter{
		minDelay: minDelay,
		logger:   log.New(io.Discard),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// SetLogger sets the logger used for debug output. A nil logger silences it.
func (l *Limiter) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	l.logger = logger
}

// MinDelay returns the configured spacing.
func (l *Limiter) MinDelay() time.Duration {
	return l.minDelay
}

// Wait blocks until the caller's turn and marks the turn as completed when it
// returns. Two back-to-back calls are separated by at least MinDelay.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.Do(ctx, nil)
}

// Do waits for the caller's turn, runs fn and records the completion time once
// fn returns. The completion is recorded whatever fn returns, so a failed
// request still takes its slot in the schedule. If the wait is interrupted by
// ctx, fn is not run and ctx.Err() is returned.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	defer func() {
		l.last = l.now()
	}()

	if !l.last.IsZero() {
		if dt := l.last.Add(l.minDelay).Sub(l.now()); dt > 0 {
			l.logger.Debug("wait before request", "delay", dt.Round(time.Millisecond))
			if err := l.sleep(ctx, dt); err != nil {
				return err
			}
		}
	}

	if fn == nil {
		return nil
	}
	return fn()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
