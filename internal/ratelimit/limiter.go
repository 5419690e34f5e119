// Package ratelimit implements a sliding-window abuse counter keyed by
// client identity. One client shares its budget across every form it
// submits to.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Decision is the outcome of a single check-and-record call.
type Decision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

// Limiter tracks attempt timestamps per key within a sliding window.
// Checking and recording happen under one per-key lock, so two concurrent
// requests from the same client cannot both claim the last remaining slot.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	max       int
	window    time.Duration
	retention time.Duration
	sweep     time.Duration
	now       func() time.Time
}

type bucket struct {
	mu       sync.Mutex
	attempts []time.Time
}

type Option func(*Limiter)

// WithRetention sets how long an idle key is kept before the janitor drops
// it. Must not be shorter than the window.
func WithRetention(d time.Duration) Option {
	return func(l *Limiter) { l.retention = d }
}

func WithSweepEvery(d time.Duration) Option {
	return func(l *Limiter) { l.sweep = d }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:   make(map[string]*bucket),
		max:       max,
		window:    window,
		retention: time.Hour,
		sweep:     10 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.retention < l.window {
		l.retention = l.window
	}
	return l
}

// Check prunes expired attempts for the key, denies when the window is
// full, and otherwise records the attempt. Check-and-record is atomic with
// respect to concurrent callers sharing the key.
func (l *Limiter) Check(key string) Decision {
	b := l.bucket(key)
	now := l.now()
	cutoff := now.Add(-l.window)

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.attempts[:0]
	for _, at := range b.attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.attempts = kept

	if len(b.attempts) >= l.max {
		oldest := b.attempts[0]
		retry := int(math.Ceil(oldest.Add(l.window).Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return Decision{Allowed: false, RetryAfterSeconds: retry}
	}

	b.attempts = append(b.attempts, now)
	return Decision{Allowed: true, Remaining: l.max - len(b.attempts)}
}

func (l *Limiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	return b
}

// Sweep drops keys whose every attempt has aged beyond the retention
// horizon. Buckets are inspected one at a time; the map lock is only
// held together with a bucket lock for the final staleness re-check, so
// in-flight checks on other keys are not stalled.
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-l.retention)

	l.mu.Lock()
	keys := make([]string, 0, len(l.buckets))
	for k := range l.buckets {
		keys = append(keys, k)
	}
	l.mu.Unlock()

	for _, key := range keys {
		l.mu.Lock()
		b, ok := l.buckets[key]
		l.mu.Unlock()
		if !ok {
			continue
		}

		b.mu.Lock()
		stale := staleSince(b, cutoff)
		b.mu.Unlock()
		if !stale {
			continue
		}

		// Re-verify under both locks before deleting: a Check that
		// recorded an attempt since the read above must not have that
		// attempt discarded with the bucket.
		l.mu.Lock()
		if cur, ok := l.buckets[key]; ok && cur == b {
			b.mu.Lock()
			if staleSince(b, cutoff) {
				delete(l.buckets, key)
			}
			b.mu.Unlock()
		}
		l.mu.Unlock()
	}
}

// staleSince reports whether every attempt predates the cutoff. Caller
// holds b.mu.
func staleSince(b *bucket, cutoff time.Time) bool {
	for _, at := range b.attempts {
		if at.After(cutoff) {
			return false
		}
	}
	return true
}

// StartJanitor sweeps idle keys periodically until the context is
// cancelled.
func (l *Limiter) StartJanitor(ctx context.Context) {
	if l.sweep <= 0 {
		return
	}

	t := time.NewTicker(l.sweep)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Sweep()
			}
		}
	}()
}

// Len reports the number of tracked keys. Test hook.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
