package analytics

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// UserCountsPageSize is the fixed page size for the individual user selector.
const UserCountsPageSize = 50

// ErrNotInitialized is returned by mutators called before InitializeFilters.
var ErrNotInitialized = errors.New("analytics filters are not initialized")

// FilterSnapshot is an immutable copy of a FilterState.
type FilterSnapshot struct {
	TenantID           string              `json:"tenantId"`
	Enabled            bool                `json:"enabled"`
	VisitorType        VisitorType         `json:"visitorType"`
	SelectedUserID     string              `json:"selectedUserId,omitempty"`
	StartTimeUTC       *time.Time          `json:"startTimeUTC,omitempty"`
	EndTimeUTC         *time.Time          `json:"endTimeUTC,omitempty"`
	UserCounts         []UserCount         `json:"userCounts"`
	HourlyNodeActivity HourlyActivity      `json:"hourlyNodeActivity"`
	AvailableFilters   []AvailableFilter   `json:"availableFilters"`
	AppliedFilters     []AppliedFilter     `json:"appliedFilters"`
	Dashboard          *DashboardAnalytics `json:"dashboard,omitempty"`
	Leads              *LeadMetrics        `json:"leads,omitempty"`
	Epinet             *SankeyDiagram      `json:"epinet,omitempty"`
}

// Query returns the request-relevant fields of the snapshot.
func (s FilterSnapshot) Query() Query {
	return Query{
		Start:          s.StartTimeUTC,
		End:            s.EndTimeUTC,
		VisitorType:    s.VisitorType,
		SelectedUserID: s.SelectedUserID,
		AppliedFilters: s.AppliedFilters,
	}
}

// UserCountsPage is one page of the user counts list.
type UserCountsPage struct {
	Items      []UserCount `json:"items"`
	Page       int         `json:"page"`
	TotalPages int         `json:"totalPages"`
	Total      int         `json:"total"`
}

// FilterState is the per-tenant analytics query and last fetched result.
// All access goes through its methods; accessors return copies.
type FilterState struct {
	mu      sync.RWMutex
	state   FilterSnapshot
	changes chan struct{}
}

// NewFilterState creates an empty, disabled filter state for a tenant.
func NewFilterState(tenantID string) *FilterState {
	return &FilterState{
		state: FilterSnapshot{
			TenantID:    tenantID,
			VisitorType: VisitorAll,
		},
		changes: make(chan struct{}, 1),
	}
}

// Changes delivers one coalesced notification per burst of query mutations.
func (f *FilterState) Changes() <-chan struct{} {
	return f.changes
}

func (f *FilterState) notify() {
	select {
	case f.changes <- struct{}{}:
	default:
	}
}

// Initialize seeds a default window ending at now. It is a no-op if already
// enabled and reports whether seeding happened.
func (f *FilterState) Initialize(now time.Time, window time.Duration) bool {
	f.mu.Lock()
	if f.state.Enabled {
		f.mu.Unlock()
		return false
	}
	end := now.UTC()
	start := end.Add(-window)
	f.state.Enabled = true
	f.state.StartTimeUTC = &start
	f.state.EndTimeUTC = &end
	f.mu.Unlock()

	f.notify()
	return true
}

// Snapshot returns a deep copy of the current state.
func (f *FilterState) Snapshot() FilterSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := f.state
	if s.StartTimeUTC != nil {
		t := *s.StartTimeUTC
		s.StartTimeUTC = &t
	}
	if s.EndTimeUTC != nil {
		t := *s.EndTimeUTC
		s.EndTimeUTC = &t
	}
	s.UserCounts = slices.Clone(s.UserCounts)
	s.HourlyNodeActivity = s.HourlyNodeActivity.Clone()
	s.AvailableFilters = slices.Clone(s.AvailableFilters)
	s.AppliedFilters = slices.Clone(s.AppliedFilters)
	return s
}

// Query returns the fields relevant to a backend request.
func (f *FilterState) Query() Query {
	return f.Snapshot().Query()
}

func (f *FilterState) mutate(fn func(s *FilterSnapshot) (bool, error)) error {
	f.mu.Lock()
	if !f.state.Enabled {
		f.mu.Unlock()
		return ErrNotInitialized
	}
	changed, err := fn(&f.state)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if changed {
		f.notify()
	}
	return nil
}

// SetVisitorType changes the visitor population.
func (f *FilterState) SetVisitorType(v VisitorType) error {
	if !v.Valid() {
		return fmt.Errorf("invalid visitor type %q", v)
	}
	return f.mutate(func(s *FilterSnapshot) (bool, error) {
		if s.VisitorType == v {
			return false, nil
		}
		s.VisitorType = v
		return true, nil
	})
}

// SetSelectedUser selects an individual visitor; an empty id clears the selection.
func (f *FilterState) SetSelectedUser(userID string) error {
	return f.mutate(func(s *FilterSnapshot) (bool, error) {
		if s.SelectedUserID == userID {
			return false, nil
		}
		s.SelectedUserID = userID
		return true, nil
	})
}

// SetRange commits a validated UTC range.
func (f *FilterState) SetRange(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("range end %s precedes start %s", end, start)
	}
	start, end = start.UTC(), end.UTC()
	return f.mutate(func(s *FilterSnapshot) (bool, error) {
		if s.StartTimeUTC != nil && s.EndTimeUTC != nil &&
			s.StartTimeUTC.Equal(start) && s.EndTimeUTC.Equal(end) {
			return false, nil
		}
		s.StartTimeUTC = &start
		s.EndTimeUTC = &end
		return true, nil
	})
}

// ApplyFilter upserts a belief filter by slug. The value "All" removes it.
func (f *FilterState) ApplyFilter(beliefSlug, value string) error {
	if beliefSlug == "" {
		return errors.New("belief slug is required")
	}
	return f.mutate(func(s *FilterSnapshot) (bool, error) {
		next, changed := upsertFilter(s.AppliedFilters, AppliedFilter{BeliefSlug: beliefSlug, Value: value})
		s.AppliedFilters = next
		return changed, nil
	})
}

// ClearFilters removes every applied belief filter.
func (f *FilterState) ClearFilters() error {
	return f.mutate(func(s *FilterSnapshot) (bool, error) {
		if len(s.AppliedFilters) == 0 {
			return false, nil
		}
		s.AppliedFilters = nil
		return true, nil
	})
}

func upsertFilter(filters []AppliedFilter, f AppliedFilter) ([]AppliedFilter, bool) {
	idx := slices.IndexFunc(filters, func(a AppliedFilter) bool { return a.BeliefSlug == f.BeliefSlug })
	if f.Value == AllValues {
		if idx < 0 {
			return filters, false
		}
		return slices.Delete(slices.Clone(filters), idx, idx+1), true
	}
	if idx >= 0 {
		if filters[idx].Value == f.Value {
			return filters, false
		}
		out := slices.Clone(filters)
		out[idx] = f
		return out, true
	}
	return append(slices.Clone(filters), f), true
}

// MergeResult stores a fetched payload without touching query fields.
// Sections absent from the payload keep their previous values.
func (f *FilterState) MergeResult(p *Payload) {
	if p == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.UserCounts != nil {
		f.state.UserCounts = slices.Clone(p.UserCounts)
	}
	if p.HourlyNodeActivity != nil {
		f.state.HourlyNodeActivity = p.HourlyNodeActivity.Clone()
	}
	if p.AvailableFilters != nil {
		f.state.AvailableFilters = slices.Clone(p.AvailableFilters)
	}
	if p.Dashboard != nil && !IsPending(p.Dashboard.Status) {
		d := *p.Dashboard
		f.state.Dashboard = &d
	}
	if p.Leads != nil && !IsPending(p.Leads.Status) {
		l := *p.Leads
		f.state.Leads = &l
	}
	if p.Epinet != nil && !IsPending(p.Epinet.Status) {
		e := *p.Epinet
		f.state.Epinet = &e
	}
}

// UserCountsPage returns a zero-based page of user counts.
func (f *FilterState) UserCountsPage(page int) UserCountsPage {
	f.mu.RLock()
	defer f.mu.RUnlock()

	total := len(f.state.UserCounts)
	totalPages := (total + UserCountsPageSize - 1) / UserCountsPageSize
	if page < 0 {
		page = 0
	}
	if totalPages > 0 && page >= totalPages {
		page = totalPages - 1
	}

	start := min(page*UserCountsPageSize, total)
	end := min(start+UserCountsPageSize, total)
	return UserCountsPage{
		Items:      slices.Clone(f.state.UserCounts[start:end]),
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}
}

// Reset returns the state to its uninitialized form.
func (f *FilterState) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = FilterSnapshot{TenantID: f.state.TenantID, VisitorType: VisitorAll}
}
