package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a caller may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// MemoryLimiter is a sliding-window limiter local to one process.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxReqs int
	window  time.Duration
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
	cleanup  *time.Ticker
}

type bucket struct {
	requests []time.Time
	lastSeen time.Time
}

// NewMemoryLimiter allows maxRequests per window for each key. Call Stop to
// release the cleanup goroutine.
func NewMemoryLimiter(maxRequests int, window time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		maxReqs: maxRequests,
		window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
		cleanup: time.NewTicker(5 * time.Minute),
	}
	go l.cleanupOldBuckets()
	return l
}

// Allow records a request for key. Empty keys and a zero limit are never throttled.
func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	if key == "" || l.maxReqs <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{}
		l.buckets[key] = b
	}

	cutoff := now.Add(-l.window)
	kept := b.requests[:0]
	for _, t := range b.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.requests = kept
	b.lastSeen = now

	if len(b.requests) >= l.maxReqs {
		return false
	}
	b.requests = append(b.requests, now)
	return true
}

func (l *MemoryLimiter) cleanupOldBuckets() {
	for {
		select {
		case <-l.done:
			return
		case <-l.cleanup.C:
			l.evictStale()
		}
	}
}

func (l *MemoryLimiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	staleThreshold := l.now().Add(-3 * l.window)
	for key, b := range l.buckets {
		if b.lastSeen.Before(staleThreshold) {
			delete(l.buckets, key)
		}
	}
}

// Stop halts the cleanup goroutine. It is safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() {
		l.cleanup.Stop()
		close(l.done)
	})
}
