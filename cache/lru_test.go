package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRULayer_RoundTrip(t *testing.T) {
	l := NewLRULayer(10)
	entry := &Entry{Key: "k1", Value: []byte("v1"), CreatedAt: time.Now(), TTL: time.Minute}
	l.Set("k1", entry)

	got, ok := l.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got.Value)
	assert.EqualValues(t, 1, got.Hits)
}

func TestLRULayer_ExpiredEntryIsMiss(t *testing.T) {
	l := NewLRULayer(10)
	entry := &Entry{Key: "k1", Value: []byte("v1"), CreatedAt: time.Now().Add(-time.Hour), TTL: time.Second}
	l.Set("k1", entry)

	_, ok := l.Get("k1")
	assert.False(t, ok)
	assert.EqualValues(t, 1, l.StatsSnapshot().Misses)
}

func TestLRULayer_EvictsLeastRecentlyUsed(t *testing.T) {
	l := NewLRULayer(2)
	l.Set("a", &Entry{Key: "a", Value: []byte("a"), CreatedAt: time.Now(), TTL: time.Minute})
	l.Set("b", &Entry{Key: "b", Value: []byte("b"), CreatedAt: time.Now(), TTL: time.Minute})

	// touch "a" so "b" becomes the LRU victim
	_, _ = l.Get("a")
	l.Set("c", &Entry{Key: "c", Value: []byte("c"), CreatedAt: time.Now(), TTL: time.Minute})

	_, ok := l.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = l.Get("a")
	assert.True(t, ok)
	_, ok = l.Get("c")
	assert.True(t, ok)
}

func TestLRULayer_Invalidate(t *testing.T) {
	l := NewLRULayer(10)
	l.Set("a", &Entry{Key: "a", Value: []byte("a"), CreatedAt: time.Now(), TTL: time.Minute})

	removed := l.Invalidate([]string{"a", "missing"})
	assert.Equal(t, 1, removed)
	_, ok := l.Get("a")
	assert.False(t, ok)
}
