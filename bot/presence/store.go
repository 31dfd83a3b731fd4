// Package presence tracks when each user was last seen and derives the
// known and active user counts published to the operator.
package presence

import (
	"sort"
	"sync"
	"time"
)

const defaultShards = 32

// Record is the presence of one user.
type Record struct {
	UserID      int64
	DisplayName string
	LastSeen    time.Time
}

// Stats is a point-in-time view over the store.
type Stats struct {
	Known  int
	Active []Record
}

// ActiveCount returns the number of active users.
func (s Stats) ActiveCount() int { return len(s.Active) }

type shard struct {
	mu    sync.RWMutex
	items map[int64]Record
}

// Store is safe for concurrent use. Writers for different users only contend
// when they hash to the same shard.
type Store struct {
	shards []*shard
	window time.Duration
}

// NewStore creates a store where a user is active for window after the last
// recorded activity.
func NewStore(window time.Duration) *Store {
	if window <= 0 {
		window = 5 * time.Minute
	}
	s := &Store{
		shards: make([]*shard, defaultShards),
		window: window,
	}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[int64]Record)}
	}
	return s
}

func (s *Store) shardFor(userID int64) *shard {
	return s.shards[uint64(userID)%uint64(len(s.shards))]
}

// RecordActivity marks userID as seen at at. The newest timestamp wins, so
// replaying an older event never moves LastSeen backwards. The display name
// follows the newest event; an empty name never replaces a known one.
func (s *Store) RecordActivity(userID int64, displayName string, at time.Time) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.items[userID]
	if !ok {
		sh.items[userID] = Record{UserID: userID, DisplayName: displayName, LastSeen: at}
		return
	}
	if at.Before(rec.LastSeen) {
		if rec.DisplayName == "" {
			rec.DisplayName = displayName
			sh.items[userID] = rec
		}
		return
	}
	rec.LastSeen = at
	if displayName != "" {
		rec.DisplayName = displayName
	}
	sh.items[userID] = rec
}

// Get returns the record for userID.
func (s *Store) Get(userID int64) (Record, bool) {
	sh := s.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	rec, ok := sh.items[userID]
	return rec, ok
}

// Window returns the recency window.
func (s *Store) Window() time.Duration { return s.window }

// IsActive reports whether rec was seen within the window ending at now,
// boundary included.
func (s *Store) IsActive(rec Record, now time.Time) bool {
	if rec.LastSeen.IsZero() {
		return false
	}
	return now.Sub(rec.LastSeen) <= s.window
}

// Snapshot computes the stats at now. Shards are read one at a time so
// writers are never locked out for the whole scan.
func (s *Store) Snapshot(now time.Time) Stats {
	var st Stats
	for _, sh := range s.shards {
		sh.mu.RLock()
		st.Known += len(sh.items)
		for _, rec := range sh.items {
			if s.IsActive(rec, now) {
				st.Active = append(st.Active, rec)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(st.Active, func(i, j int) bool { return st.Active[i].UserID < st.Active[j].UserID })
	return st
}

// Known returns every user ever seen with its display name.
func (s *Store) Known() map[int64]string {
	out := make(map[int64]string)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, rec := range sh.items {
			out[id] = rec.DisplayName
		}
		sh.mu.RUnlock()
	}
	return out
}

// Restore adds users loaded from a snapshot. They count as known but not
// active, and never override a record already present.
func (s *Store) Restore(known []int64, names map[int64]string) int {
	added := 0
	add := func(id int64, name string) {
		sh := s.shardFor(id)
		sh.mu.Lock()
		defer sh.mu.Unlock()
		if rec, ok := sh.items[id]; ok {
			if rec.DisplayName == "" && name != "" {
				rec.DisplayName = name
				sh.items[id] = rec
			}
			return
		}
		sh.items[id] = Record{UserID: id, DisplayName: name}
		added++
	}
	for _, id := range known {
		add(id, names[id])
	}
	for id, name := range names {
		add(id, name)
	}
	return added
}
