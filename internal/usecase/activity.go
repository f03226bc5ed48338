package usecase

import (
	"hash/fnv"
	"sync"
	"time"
)

const activityShardCount = 32

// ActivityTracker records the last moment each identity was seen on an
// authenticated request. It is a soft liveness signal only: entries are
// swept by the idle-session cleaner and never influence session validity.
// The tracker is created at service start and drained at shutdown; shards
// keep lock contention bounded under concurrent validations.
type ActivityTracker struct {
	shards [activityShardCount]activityShard
}

type activityShard struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewActivityTracker constructs an empty tracker.
func NewActivityTracker() *ActivityTracker {
	t := &ActivityTracker{}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]time.Time)
	}
	return t
}

// Touch records activity for the supplied identity key.
func (t *ActivityTracker) Touch(key string, at time.Time) {
	if key == "" {
		return
	}
	shard := t.shard(key)
	shard.mu.Lock()
	shard.entries[key] = at
	shard.mu.Unlock()
}

// LastActive returns the most recent activity recorded for the key.
func (t *ActivityTracker) LastActive(key string) (time.Time, bool) {
	shard := t.shard(key)
	shard.mu.RLock()
	at, ok := shard.entries[key]
	shard.mu.RUnlock()
	return at, ok
}

// Remove forgets the supplied identity key.
func (t *ActivityTracker) Remove(key string) {
	shard := t.shard(key)
	shard.mu.Lock()
	delete(shard.entries, key)
	shard.mu.Unlock()
}

// Sweep removes every entry last touched before the cutoff and returns the
// removed keys.
func (t *ActivityTracker) Sweep(cutoff time.Time) []string {
	removed := make([]string, 0)
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		for key, at := range shard.entries {
			if at.Before(cutoff) {
				delete(shard.entries, key)
				removed = append(removed, key)
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked identities.
func (t *ActivityTracker) Len() int {
	total := 0
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

// Drain clears all entries; called once at shutdown.
func (t *ActivityTracker) Drain() {
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		shard.entries = make(map[string]time.Time)
		shard.mu.Unlock()
	}
}

func (t *ActivityTracker) shard(key string) *activityShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%activityShardCount]
}
