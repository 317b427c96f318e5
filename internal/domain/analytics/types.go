package analytics

import "time"

// VisitorType narrows analytics to a visitor population.
type VisitorType string

const (
	VisitorAll       VisitorType = "all"
	VisitorAnonymous VisitorType = "anonymous"
	VisitorKnown     VisitorType = "known"
)

// Valid reports whether v is one of the supported visitor types.
func (v VisitorType) Valid() bool {
	switch v {
	case VisitorAll, VisitorAnonymous, VisitorKnown:
		return true
	}
	return false
}

// Payload status values reported by the backend.
const (
	StatusLoading    = "loading"
	StatusRefreshing = "refreshing"
	StatusComplete   = "complete"
)

// IsPending reports whether a backend status means the data is still being computed.
func IsPending(status string) bool {
	return status == StatusLoading || status == StatusRefreshing
}

// UserCount is one visitor's event count for the selected range.
type UserCount struct {
	ID      string `json:"id"`
	Count   int    `json:"count"`
	IsKnown bool   `json:"isKnown"`
}

// ContentActivity is one content item's activity inside a single hour bucket.
type ContentActivity struct {
	Events     map[string]int `json:"events"`
	VisitorIDs []string       `json:"visitorIds"`
}

// HourlyActivity maps UTC hour keys to content ids to that content's activity.
type HourlyActivity map[string]map[string]ContentActivity

// Clone returns a deep copy.
func (h HourlyActivity) Clone() HourlyActivity {
	if h == nil {
		return nil
	}
	out := make(HourlyActivity, len(h))
	for hourKey, contents := range h {
		cc := make(map[string]ContentActivity, len(contents))
		for id, act := range contents {
			events := make(map[string]int, len(act.Events))
			for verb, n := range act.Events {
				events[verb] = n
			}
			cc[id] = ContentActivity{
				Events:     events,
				VisitorIDs: append([]string(nil), act.VisitorIDs...),
			}
		}
		out[hourKey] = cc
	}
	return out
}

// AvailableFilter is a belief facet the backend reports as applicable to the current data.
type AvailableFilter struct {
	BeliefSlug string   `json:"beliefSlug"`
	Name       string   `json:"name"`
	Values     []string `json:"values"`
}

// AppliedFilter restricts analytics to visitors holding a belief value.
type AppliedFilter struct {
	BeliefSlug string `json:"beliefSlug"`
	Value      string `json:"value"`
}

// AllValues is the sentinel value that removes a belief filter.
const AllValues = "All"

// TimeRangeStats holds visitor totals for fixed windows.
type TimeRangeStats struct {
	Daily   int `json:"daily"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
}

// LineDataPoint is a single point of a dashboard line series.
type LineDataPoint struct {
	X string `json:"x"`
	Y int    `json:"y"`
}

// LineDataSeries is a named dashboard line series.
type LineDataSeries struct {
	ID   string          `json:"id"`
	Data []LineDataPoint `json:"data"`
}

// HotItem is a content item ranked by total events.
type HotItem struct {
	ID          string `json:"id"`
	TotalEvents int    `json:"totalEvents"`
}

// DashboardAnalytics is the dashboard section of the analytics payload.
type DashboardAnalytics struct {
	Status     string           `json:"status,omitempty"`
	Stats      TimeRangeStats   `json:"stats"`
	Line       []LineDataSeries `json:"line"`
	HotContent []HotItem        `json:"hotContent"`
}

// LeadMetrics is the leads section of the analytics payload.
type LeadMetrics struct {
	Status                 string  `json:"status,omitempty"`
	TotalVisits            int     `json:"totalVisits"`
	LastActivity           string  `json:"lastActivity"`
	FirstTime24h           int     `json:"firstTime24h"`
	Returning24h           int     `json:"returning24h"`
	FirstTime7d            int     `json:"firstTime7d"`
	Returning7d            int     `json:"returning7d"`
	FirstTime28d           int     `json:"firstTime28d"`
	Returning28d           int     `json:"returning28d"`
	FirstTime24hPercentage float64 `json:"firstTime24hPercentage"`
	Returning24hPercentage float64 `json:"returning24hPercentage"`
	FirstTime7dPercentage  float64 `json:"firstTime7dPercentage"`
	Returning7dPercentage  float64 `json:"returning7dPercentage"`
	FirstTime28dPercentage float64 `json:"firstTime28dPercentage"`
	Returning28dPercentage float64 `json:"returning28dPercentage"`
	TotalLeads             int     `json:"totalLeads"`
}

// SankeyNode is a step of an epinet journey.
type SankeyNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SankeyLink counts visitors moving between two nodes, referenced by index.
type SankeyLink struct {
	Source int `json:"source"`
	Target int `json:"target"`
	Value  int `json:"value"`
}

// SankeyDiagram is the epinet flow the backend computes for a range.
type SankeyDiagram struct {
	Status string       `json:"status,omitempty"`
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Nodes  []SankeyNode `json:"nodes"`
	Links  []SankeyLink `json:"links"`
}

// Payload is the combined response of the backend analytics endpoints.
// Each section may carry its own status while the backend is still computing.
type Payload struct {
	Status             string              `json:"status,omitempty"`
	Success            bool                `json:"success,omitempty"`
	Dashboard          *DashboardAnalytics `json:"dashboard,omitempty"`
	Leads              *LeadMetrics        `json:"leads,omitempty"`
	Epinet             *SankeyDiagram      `json:"epinet,omitempty"`
	UserCounts         []UserCount         `json:"userCounts"`
	HourlyNodeActivity HourlyActivity      `json:"hourlyNodeActivity"`
	AvailableFilters   []AvailableFilter   `json:"availableFilters"`
}

// Pending reports whether the payload or any of its sections is still computing.
func (p *Payload) Pending() bool {
	if p == nil {
		return false
	}
	if IsPending(p.Status) {
		return true
	}
	if p.Dashboard != nil && IsPending(p.Dashboard.Status) {
		return true
	}
	if p.Leads != nil && IsPending(p.Leads.Status) {
		return true
	}
	return p.Epinet != nil && IsPending(p.Epinet.Status)
}

// ContentInfo identifies a content item for display.
type ContentInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
	Type  string `json:"type"`
}

// ContentMap indexes content by id.
type ContentMap map[string]ContentInfo

// Lookup returns the content info for id, falling back to the id as title.
func (m ContentMap) Lookup(id string) ContentInfo {
	if info, ok := m[id]; ok {
		return info
	}
	return ContentInfo{ID: id, Title: id, Type: "Unknown"}
}

// Query carries the FilterState fields relevant to a backend request.
type Query struct {
	Start          *time.Time
	End            *time.Time
	VisitorType    VisitorType
	SelectedUserID string
	AppliedFilters []AppliedFilter
	EpinetID       string
}
