// Package performance provides lightweight operation markers that time console
// operations and feed the Prometheus operation histogram.
package performance

import (
	"strconv"
	"sync"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/metrics"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation string         `json:"operation"` // e.g., "fetch:analytics", "timeline:aggregate"
	TenantID  string         `json:"tenantId"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	Completed bool           `json:"completed"`

	tracker *Tracker
}

// Complete marks the operation as finished and records its duration
func (m *Marker) Complete() {
	if m.Completed {
		return
	}

	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true

	metrics.OperationDuration.
		WithLabelValues(m.Operation, strconv.FormatBool(m.Success)).
		Observe(m.Duration.Seconds())

	if m.tracker != nil {
		m.tracker.record(m)
	}
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// OperationStats summarises completed markers for one operation name.
type OperationStats struct {
	Count     int           `json:"count"`
	Failures  int           `json:"failures"`
	TotalTime time.Duration `json:"totalTime"`
	MaxTime   time.Duration `json:"maxTime"`
}

// Tracker hands out markers and keeps per-operation totals.
type Tracker struct {
	mu    sync.Mutex
	stats map[string]*OperationStats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: make(map[string]*OperationStats)}
}

// StartOperation begins timing an operation.
func (t *Tracker) StartOperation(operation, tenantID string) *Marker {
	return &Marker{
		Operation: operation,
		TenantID:  tenantID,
		StartTime: time.Now(),
		tracker:   t,
	}
}

func (t *Tracker) record(m *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[m.Operation]
	if !ok {
		s = &OperationStats{}
		t.stats[m.Operation] = s
	}
	s.Count++
	if !m.Success {
		s.Failures++
	}
	s.TotalTime += m.Duration
	if m.Duration > s.MaxTime {
		s.MaxTime = m.Duration
	}
}

// Snapshot returns a copy of the per-operation totals.
func (t *Tracker) Snapshot() map[string]OperationStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]OperationStats, len(t.stats))
	for k, v := range t.stats {
		out[k] = *v
	}
	return out
}
