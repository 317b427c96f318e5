package caching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
)

func TestPollLock(t *testing.T) {
	l := NewPollLock()
	assert.True(t, l.TryLock("k"))
	assert.False(t, l.TryLock("k"))
	assert.True(t, l.TryLock("other"))

	l.Unlock("k")
	assert.True(t, l.TryLock("k"))

	l.Reset()
	assert.True(t, l.TryLock("other"))
}

func TestResponseCacheTTL(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewResponseCache(5*time.Second, func() time.Time { return now })

	p := &analytics.Payload{Status: analytics.StatusComplete}
	c.Set("a", p)

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Same(t, p, got)

	now = now.Add(4999 * time.Millisecond)
	_, ok = c.Get("a")
	assert.True(t, ok)

	now = now.Add(time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestResponseCacheSweepsOnWrite(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewResponseCache(5*time.Second, func() time.Time { return now })

	c.Set("a", &analytics.Payload{})
	c.Set("b", &analytics.Payload{})
	now = now.Add(10 * time.Second)
	assert.Equal(t, 2, c.Len(), "entries stay until the next write")

	c.Set("c", &analytics.Payload{})
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
