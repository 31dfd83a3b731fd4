package state

import (
	"sync"
	"time"
)

const defaultShards = 32

type entry[T any] struct {
	mu      sync.Mutex
	value   T
	touched time.Time
	dead    bool
}

type shard[T any] struct {
	mu    sync.RWMutex
	items map[int64]*entry[T]
}

// Store maps int64 keys (chat or user ids) to values of T.
type Store[T any] struct {
	shards []*shard[T]
	init   func() T
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*options)

type options struct {
	shards int
	now    func() time.Time
}

// WithShards sets the number of lock shards. Values below 1 select the default.
func WithShards(n int) Option {
	return func(o *options) { o.shards = n }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a store. init builds the value for a key seen for the first
// time; nil yields the zero value of T.
func New[T any](init func() T, opts ...Option) *Store[T] {
	o := options{shards: defaultShards, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shards < 1 {
		o.shards = defaultShards
	}
	if o.now == nil {
		o.now = time.Now
	}
	s := &Store[T]{
		shards: make([]*shard[T], o.shards),
		init:   init,
		now:    o.now,
	}
	for i := range s.shards {
		s.shards[i] = &shard[T]{items: make(map[int64]*entry[T])}
	}
	return s
}

func (s *Store[T]) shardFor(key int64) *shard[T] {
	return s.shards[uint64(key)%uint64(len(s.shards))]
}

func (s *Store[T]) acquire(key int64) *entry[T] {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.items[key]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok = sh.items[key]; ok {
		return e
	}
	e = &entry[T]{touched: s.now()}
	if s.init != nil {
		e.value = s.init()
	}
	sh.items[key] = e
	return e
}

// Update runs fn with exclusive access to the value stored under key,
// creating it first if needed. Calls for the same key never overlap.
func (s *Store[T]) Update(key int64, fn func(*T) error) error {
	for {
		e := s.acquire(key)
		e.mu.Lock()
		if e.dead {
			// evicted between lookup and lock; look it up again
			e.mu.Unlock()
			continue
		}
		err := fn(&e.value)
		e.touched = s.now()
		e.mu.Unlock()
		return err
	}
}

// Peek returns a copy of the value under key without creating it.
func (s *Store[T]) Peek(key int64) (T, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.items[key]
	sh.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Delete drops the value under key. It waits for an in-flight Update.
func (s *Store[T]) Delete(key int64) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	sh.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.dead = true
	e.mu.Unlock()
}

// Len reports how many keys are held.
func (s *Store[T]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// EvictIdle removes entries last touched before the cutoff and returns how
// many were removed. Entries busy in Update are skipped.
func (s *Store[T]) EvictIdle(before time.Time) int {
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.items {
			if !e.mu.TryLock() {
				continue
			}
			if e.touched.Before(before) {
				e.dead = true
				delete(sh.items, key)
				evicted++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return evicted
}
