package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	N     int
	Label string
}

func TestStoreUpdateCreatesAndKeeps(t *testing.T) {
	s := New(func() counter { return counter{Label: "new"} }, WithShards(4))

	_, ok := s.Peek(1)
	assert.False(t, ok)

	require.NoError(t, s.Update(1, func(c *counter) error {
		assert.Equal(t, "new", c.Label)
		c.N++
		return nil
	}))
	require.NoError(t, s.Update(1, func(c *counter) error {
		c.N++
		return nil
	}))

	got, ok := s.Peek(1)
	require.True(t, ok)
	assert.Equal(t, 2, got.N)
	assert.Equal(t, 1, s.Len())
}

func TestStoreUpdatePropagatesError(t *testing.T) {
	s := New[counter](nil)
	boom := errors.New("boom")
	err := s.Update(5, func(c *counter) error {
		c.N = 9
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, ok := s.Peek(5)
	require.True(t, ok)
	assert.Equal(t, 9, got.N)
}

func TestStoreSerializesSameKey(t *testing.T) {
	s := New[counter](nil)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(-100, func(c *counter) error {
				n := c.N
				time.Sleep(time.Microsecond)
				c.N = n + 1
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.Peek(-100)
	assert.Equal(t, 200, got.N)
}

func TestStoreEvictIdle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := New[counter](nil, WithClock(clock))

	require.NoError(t, s.Update(1, func(*counter) error { return nil }))
	now = now.Add(time.Hour)
	require.NoError(t, s.Update(2, func(*counter) error { return nil }))

	evicted := s.EvictIdle(now.Add(-30 * time.Minute))
	assert.Equal(t, 1, evicted)

	_, ok := s.Peek(1)
	assert.False(t, ok)
	_, ok = s.Peek(2)
	assert.True(t, ok)
}

func TestStoreEvictSkipsBusyEntries(t *testing.T) {
	s := New[counter](nil)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = s.Update(7, func(c *counter) error {
			close(started)
			<-release
			c.N = 1
			return nil
		})
	}()
	<-started

	assert.Zero(t, s.EvictIdle(time.Now().Add(time.Hour)))
	close(release)
	<-done

	got, ok := s.Peek(7)
	require.True(t, ok)
	assert.Equal(t, 1, got.N)
}

func TestStoreUpdateAfterEvictionStartsFresh(t *testing.T) {
	s := New[counter](nil)
	require.NoError(t, s.Update(3, func(c *counter) error {
		c.N = 5
		return nil
	}))
	assert.Equal(t, 1, s.EvictIdle(time.Now().Add(time.Minute)))

	require.NoError(t, s.Update(3, func(c *counter) error {
		assert.Zero(t, c.N)
		return nil
	}))
}

func TestStoreDelete(t *testing.T) {
	s := New[counter](nil)
	require.NoError(t, s.Update(3, func(*counter) error { return nil }))
	s.Delete(3)
	s.Delete(4)
	assert.Zero(t, s.Len())
}
