package stores

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
)

func TestContentMapStore(t *testing.T) {
	s := NewContentMapStore()
	_, ok := s.Get("acme")
	assert.False(t, ok)

	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s.Set("acme", []analytics.ContentInfo{{ID: "c1", Title: "Home", Type: "StoryFragment"}}, 42, t0)

	m, ok := s.Get("acme")
	require.True(t, ok)
	assert.Equal(t, int64(42), m.LastUpdated)
	assert.Equal(t, "Home", m.Items.Lookup("c1").Title)
	assert.Equal(t, "Unknown", m.Items.Lookup("c9").Type)

	s.Touch("acme", t0.Add(time.Minute))
	m, _ = s.Get("acme")
	assert.Equal(t, t0.Add(time.Minute), m.FetchedAt)
	assert.Equal(t, int64(42), m.LastUpdated)

	s.Invalidate("acme")
	_, ok = s.Get("acme")
	assert.False(t, ok)
}
