// Package stores provides concrete cache store implementations
package stores

import (
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
)

// TenantContentMap is one tenant's cached content map.
type TenantContentMap struct {
	Items       analytics.ContentMap
	LastUpdated int64
	FetchedAt   time.Time
}

// ContentMapStore caches content maps with tenant isolation
type ContentMapStore struct {
	tenants map[string]*TenantContentMap
	mu      sync.RWMutex
}

// NewContentMapStore creates a new content map store
func NewContentMapStore() *ContentMapStore {
	return &ContentMapStore{
		tenants: make(map[string]*TenantContentMap),
	}
}

// Get returns the cached map for a tenant. The returned map must not be modified.
func (s *ContentMapStore) Get(tenantID string) (*TenantContentMap, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.tenants[tenantID]
	return m, ok
}

// Set replaces a tenant's content map.
func (s *ContentMapStore) Set(tenantID string, items []analytics.ContentInfo, lastUpdated int64, fetchedAt time.Time) {
	m := make(analytics.ContentMap, len(items))
	for _, item := range items {
		m[item.ID] = item
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenantID] = &TenantContentMap{Items: m, LastUpdated: lastUpdated, FetchedAt: fetchedAt}
}

// Touch records that the backend confirmed a tenant's map is unchanged.
func (s *ContentMapStore) Touch(tenantID string, fetchedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.tenants[tenantID]; ok {
		s.tenants[tenantID] = &TenantContentMap{Items: m.Items, LastUpdated: m.LastUpdated, FetchedAt: fetchedAt}
	}
}

// Invalidate drops a tenant's map.
func (s *ContentMapStore) Invalidate(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenants, tenantID)
}

// Sweep drops maps fetched before cutoff and returns their tenant ids.
func (s *ContentMapStore) Sweep(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped []string
	for id, m := range s.tenants {
		if m.FetchedAt.Before(cutoff) {
			delete(s.tenants, id)
			dropped = append(dropped, id)
		}
	}
	sort.Strings(dropped)
	return dropped
}
