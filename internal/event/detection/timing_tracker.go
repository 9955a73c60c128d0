package detection

import (
	"context"
	"sync"
	"time"
)

// TimingTracker remembers when each client last posted.
type TimingTracker interface {
	RecordRequest(ctx context.Context, key string, timestamp time.Time) error
	GetLastRequest(ctx context.Context, key string) (time.Time, bool, error)
}

// MemoryTimingTracker keeps timestamps in process. Use RedisTimingTracker
// when several instances sit behind one load balancer.
type MemoryTimingTracker struct {
	mu           sync.RWMutex
	lastRequests map[string]time.Time
	ttl          time.Duration
}

// NewMemoryTimingTracker creates a tracker whose entries expire after ttl.
// A zero ttl keeps entries forever.
func NewMemoryTimingTracker(ttl time.Duration) *MemoryTimingTracker {
	return &MemoryTimingTracker{
		lastRequests: make(map[string]time.Time),
		ttl:          ttl,
	}
}

func (t *MemoryTimingTracker) RecordRequest(_ context.Context, key string, timestamp time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRequests[key] = timestamp
	if t.ttl > 0 && len(t.lastRequests)%1024 == 0 {
		t.evictLocked(timestamp)
	}
	return nil
}

func (t *MemoryTimingTracker) GetLastRequest(_ context.Context, key string) (time.Time, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	lastTime, exists := t.lastRequests[key]
	if exists && t.ttl > 0 && time.Since(lastTime) > t.ttl {
		return time.Time{}, false, nil
	}
	return lastTime, exists, nil
}

// Len reports the number of tracked clients.
func (t *MemoryTimingTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lastRequests)
}

func (t *MemoryTimingTracker) evictLocked(now time.Time) {
	for k, ts := range t.lastRequests {
		if now.Sub(ts) > t.ttl {
			delete(t.lastRequests, k)
		}
	}
}
