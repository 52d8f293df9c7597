package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunCache_PromoteMovesLiveToComplete(t *testing.T) {
	c := New[string](Config{LiveSize: 10, LiveTTL: time.Minute, CompleteSize: 10, CompleteTTL: time.Minute})
	c.PutLive("run-1", "in-progress")
	_, ok := c.GetLive("run-1")
	assert.True(t, ok)

	c.Promote("run-1", "final")

	_, ok = c.GetLive("run-1")
	assert.False(t, ok, "promoted entry should be evicted from the live tier")
	v, ok := c.GetComplete("run-1")
	assert.True(t, ok)
	assert.Equal(t, "final", v)
}

func TestRunCache_GetPrefersCompleteTier(t *testing.T) {
	c := New[int](Config{LiveSize: 10, LiveTTL: time.Minute, CompleteSize: 10, CompleteTTL: time.Minute})
	c.PutLive("run-1", 1)
	c.Promote("run-1", 2)

	v, ok := c.Get("run-1")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestRunCache_InvalidateClearsBothTiers(t *testing.T) {
	c := New[int](Config{LiveSize: 10, LiveTTL: time.Minute, CompleteSize: 10, CompleteTTL: time.Minute})
	c.PutLive("run-1", 1)
	c.Invalidate("run-1")
	_, ok := c.Get("run-1")
	assert.False(t, ok)
}
