package toolsurface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetThenGetHits(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 10, TTL: time.Minute})
	key := Key("op", map[string]string{"a": "1"})
	c.Set(key, 42)

	v, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestCache_DifferentParamsProduceDifferentKeys(t *testing.T) {
	k1 := Key("op", map[string]string{"a": "1"})
	k2 := Key("op", map[string]string{"a": "2"})
	assert.NotEqual(t, k1, k2)
}

func TestCache_KeyIsStableForEqualParams(t *testing.T) {
	type params struct {
		A string
		B string
	}
	k1 := Key("op", params{A: "x", B: "y"})
	k2 := Key("op", params{A: "x", B: "y"})
	assert.Equal(t, k1, k2)
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 10, TTL: time.Millisecond})
	key := Key("op", nil)
	c.Set(key, "value")
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 2, TTL: time.Minute})
	k1, k2, k3 := Key("op", 1), Key("op", 2), Key("op", 3)
	c.Set(k1, "one")
	c.Set(k2, "two")
	_, _ = c.Get(k1) // touch k1 so k2 becomes the least recently used
	c.Set(k3, "three")

	_, ok1 := c.Get(k1)
	_, ok2 := c.Get(k2)
	_, ok3 := c.Get(k3)
	assert.True(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)
}

func TestCache_ClearRemovesEverything(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 10, TTL: time.Minute})
	key := Key("op", nil)
	c.Set(key, "value")
	c.Clear()

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}
