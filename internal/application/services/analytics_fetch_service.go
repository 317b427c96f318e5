package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/performance"
)

var (
	// ErrFlooded is returned when flood protection drops a fetch.
	ErrFlooded = errors.New("analytics fetch dropped by flood protection")
	// ErrPollLimit is the terminal error after the backend stays busy past the poll ceiling.
	ErrPollLimit = errors.New("analytics are still computing; gave up waiting")
	// ErrServiceClosed is returned after Cleanup.
	ErrServiceClosed = errors.New("analytics fetch service is closed")
)

// FetchStatus is the lifecycle state published to onUpdate.
type FetchStatus string

const (
	FetchIdle     FetchStatus = "idle"
	FetchLoading  FetchStatus = "loading"
	FetchComplete FetchStatus = "complete"
	FetchError    FetchStatus = "error"
)

// FetchState is one update of a logical fetch.
type FetchState struct {
	Status    FetchStatus        `json:"status"`
	Data      *analytics.Payload `json:"data,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cached    bool               `json:"cached,omitempty"`
	Poll      int                `json:"poll,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
	err       error
}

// Err returns the underlying error of an error state.
func (s FetchState) Err() error { return s.err }

// UpdateFunc receives fetch states. It must not call back into the service synchronously.
type UpdateFunc func(FetchState)

// FetchConfig holds the fetch service timings.
type FetchConfig struct {
	CacheTTL        time.Duration
	Debounce        time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	FloodWindow     time.Duration
	FloodThreshold  int
	FloodCooldown   time.Duration
	DefaultWindow   time.Duration
}

// DefaultFetchConfig returns the standard timings.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		CacheTTL:        5 * time.Second,
		Debounce:        300 * time.Millisecond,
		PollInterval:    2 * time.Second,
		MaxPollAttempts: 60,
		FloodWindow:     10 * time.Second,
		FloodThreshold:  5,
		FloodCooldown:   30 * time.Second,
		DefaultWindow:   168 * time.Hour,
	}
}

// AnalyticsFetchService issues analytics requests for one dashboard session.
// At most one request is logically active; starting another supersedes it.
type AnalyticsFetchService struct {
	tenantID string
	source   analytics.Source
	filters  *analytics.FilterState
	clock    Clock
	cfg      FetchConfig
	poll     RetryPolicy
	logger   *logging.ChanneledLogger
	perf     *performance.Tracker

	cache *caching.ResponseCache
	polls *caching.PollLock
	flood *FloodGuard

	// deliverMu orders generation changes against onUpdate delivery so a
	// superseded response can never be published.
	deliverMu  sync.Mutex
	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	debounce   Timer
	pollTimers map[string]pendingPoll
	closed     bool
}

// pendingPoll is a scheduled continuation owned by one generation.
type pendingPoll struct {
	timer Timer
	gen   uint64
}

// NewAnalyticsFetchService creates a fetch service bound to a tenant's filter state.
func NewAnalyticsFetchService(tenantID string, source analytics.Source, filters *analytics.FilterState, clock Clock, cfg FetchConfig, logger *logging.ChanneledLogger, perf *performance.Tracker) *AnalyticsFetchService {
	if clock == nil {
		clock = NewRealClock()
	}
	if perf == nil {
		perf = performance.NewTracker()
	}
	return &AnalyticsFetchService{
		tenantID:   tenantID,
		source:     source,
		filters:    filters,
		clock:      clock,
		cfg:        cfg,
		poll:       PollPolicy(cfg.PollInterval, cfg.MaxPollAttempts),
		logger:     logger,
		perf:       perf,
		cache:      caching.NewResponseCache(cfg.CacheTTL, clock.Now),
		polls:      caching.NewPollLock(),
		flood:      NewFloodGuard(cfg.FloodWindow, cfg.FloodThreshold, cfg.FloodCooldown),
		pollTimers: make(map[string]pendingPoll),
	}
}

// InitializeFilters seeds the default window once. It is a no-op when the
// filters are already enabled.
func (s *AnalyticsFetchService) InitializeFilters(tenantID string) (bool, error) {
	if tenantID != "" && tenantID != s.tenantID {
		return false, fmt.Errorf("fetch service belongs to tenant %s, not %s", s.tenantID, tenantID)
	}
	seeded := s.filters.Initialize(s.clock.Now(), s.cfg.DefaultWindow)
	if seeded {
		s.logger.Analytics().Info("Analytics filters initialized", "tenantId", s.tenantID, "windowHours", s.cfg.DefaultWindow.Hours())
	}
	return seeded, nil
}

// DebouncedFetch schedules FetchAnalytics after the quiet period; a later call replaces an earlier pending one.
func (s *AnalyticsFetchService) DebouncedFetch(q analytics.Query, onUpdate UpdateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = s.clock.AfterFunc(s.cfg.Debounce, func() {
		if err := s.FetchAnalytics(context.Background(), q, onUpdate); err != nil && !errors.Is(err, ErrServiceClosed) {
			s.logger.Fetch().Debug("Debounced fetch not issued", "tenantId", s.tenantID, "reason", err)
		}
	})
}

// FetchAnalytics issues one logical request. Updates go to onUpdate; the
// returned error only reports why the request was not issued at all.
func (s *AnalyticsFetchService) FetchAnalytics(ctx context.Context, q analytics.Query, onUpdate UpdateFunc) error {
	if s.isClosed() {
		return ErrServiceClosed
	}
	if !s.flood.Admit(s.clock.Now()) {
		metrics.FetchRequests.WithLabelValues("flooded").Inc()
		s.logger.Fetch().Warn("Fetch dropped by flood protection", "tenantId", s.tenantID, "blockedUntil", s.flood.BlockedUntil())
		return ErrFlooded
	}
	s.run(ctx, q, onUpdate, s.poll.Start(), 0)
	return nil
}

func (s *AnalyticsFetchService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// begin supersedes any outstanding request and returns the new generation.
// A non-zero expect refuses to start unless expect is still the active generation.
func (s *AnalyticsFetchService) begin(ctx context.Context, expect uint64) (uint64, context.Context, bool) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || (expect != 0 && expect != s.generation) {
		return 0, nil, false
	}
	if s.cancel != nil {
		s.cancel()
		metrics.FetchRequests.WithLabelValues("superseded").Inc()
	}
	s.dropPollsLocked()
	s.generation++
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return s.generation, reqCtx, true
}

// dropPollsLocked stops continuations of older generations and releases their
// poll keys so the new request can poll the same key. Requires s.mu.
func (s *AnalyticsFetchService) dropPollsLocked() {
	for key, p := range s.pollTimers {
		p.timer.Stop()
		delete(s.pollTimers, key)
		s.polls.Unlock(key)
	}
}

func (s *AnalyticsFetchService) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && gen == s.generation
}

// publish delivers state only if gen is still the active request. A complete
// payload is merged into the filter state before subscribers see it.
func (s *AnalyticsFetchService) publish(gen uint64, onUpdate UpdateFunc, state FetchState) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if !s.current(gen) {
		return false
	}
	state.UpdatedAt = s.clock.Now()
	if state.Status == FetchComplete {
		s.filters.MergeResult(state.Data)
	}
	if onUpdate != nil {
		onUpdate(state)
	}
	return true
}

func (s *AnalyticsFetchService) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *AnalyticsFetchService) run(ctx context.Context, q analytics.Query, onUpdate UpdateFunc, pollRun *RetryRun, expect uint64) {
	gen, reqCtx, ok := s.begin(ctx, expect)
	if !ok {
		return
	}

	marker := s.perf.StartOperation("fetch:analytics", s.tenantID)
	defer marker.Complete()

	now := s.clock.Now()
	params := BuildParams(q, now)
	key := CacheKey(q.EpinetID, params)

	if cached, hit := s.cache.Get(key); hit {
		s.logger.LogCacheOperation("get", key, true, s.tenantID)
		metrics.FetchRequests.WithLabelValues("cached").Inc()
		s.publish(gen, onUpdate, FetchState{Status: FetchComplete, Data: cached, Cached: true})
		marker.SetSuccess(true)
		s.finish(gen)
		return
	}
	s.logger.LogCacheOperation("get", key, false, s.tenantID)

	var (
		payload *analytics.Payload
		err     error
	)
	if q.EpinetID != "" {
		payload, err = s.source.FetchEpinet(reqCtx, q.EpinetID, params)
	} else {
		payload, err = s.source.FetchAll(reqCtx, params)
	}

	if !s.current(gen) {
		s.logger.Fetch().Debug("Dropping superseded response", "tenantId", s.tenantID, "generation", gen)
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		marker.SetError(err)
		metrics.FetchRequests.WithLabelValues("error").Inc()
		s.logger.LogError(logging.ChannelFetch, "fetch_analytics", err, s.tenantID, map[string]any{"key": key})
		s.publish(gen, onUpdate, FetchState{Status: FetchError, Error: readableError(err), err: err})
		s.finish(gen)
		return
	}

	if payload.Pending() {
		metrics.FetchRequests.WithLabelValues("loading").Inc()
		s.publish(gen, onUpdate, FetchState{Status: FetchLoading, Data: payload, Poll: pollRun.Attempts()})
		s.schedulePoll(gen, key, q, onUpdate, pollRun)
		marker.SetSuccess(true)
		s.finish(gen)
		return
	}

	s.cache.Set(key, payload)
	s.logger.LogCacheOperation("set", key, false, s.tenantID)
	metrics.FetchRequests.WithLabelValues("complete").Inc()
	s.publish(gen, onUpdate, FetchState{Status: FetchComplete, Data: payload})
	marker.SetSuccess(true)
	s.finish(gen)
}

func (s *AnalyticsFetchService) schedulePoll(gen uint64, key string, q analytics.Query, onUpdate UpdateFunc, pollRun *RetryRun) {
	if !s.polls.TryLock(key) {
		s.logger.Fetch().Debug("Poll already pending", "tenantId", s.tenantID, "key", key)
		return
	}

	delay, ok := pollRun.Next()
	if !ok {
		s.polls.Unlock(key)
		metrics.FetchRequests.WithLabelValues("error").Inc()
		s.logger.Fetch().Warn("Poll ceiling reached", "tenantId", s.tenantID, "attempts", pollRun.Attempts())
		s.publish(gen, onUpdate, FetchState{Status: FetchError, Error: ErrPollLimit.Error(), err: ErrPollLimit})
		s.finish(gen)
		return
	}

	metrics.PollIterations.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation {
		s.polls.Unlock(key)
		return
	}
	timer := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		p, ok := s.pollTimers[key]
		if !ok || p.gen != gen {
			// Dropped by a newer request
			s.mu.Unlock()
			return
		}
		delete(s.pollTimers, key)
		s.polls.Unlock(key)
		s.mu.Unlock()

		// Continuations bypass flood admission
		s.run(context.Background(), q, onUpdate, pollRun, gen)
	})
	s.pollTimers[key] = pendingPoll{timer: timer, gen: gen}
}

// Cleanup cancels the in-flight request, the pending debounce and pending polls.
func (s *AnalyticsFetchService) Cleanup() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.dropPollsLocked()
	s.polls.Reset()
	s.cache.Clear()
	s.logger.Fetch().Debug("Fetch service cleaned up", "tenantId", s.tenantID)
}

// BuildParams converts a query to the backend's relative-hour parameters.
func BuildParams(q analytics.Query, now time.Time) map[string]string {
	params := make(map[string]string)
	if q.Start != nil {
		params["startHour"] = strconv.Itoa(int(math.Ceil(now.Sub(*q.Start).Hours())))
	}
	if q.End != nil {
		end := int(math.Floor(now.Sub(*q.End).Hours()))
		if end < 0 {
			end = 0
		}
		params["endHour"] = strconv.Itoa(end)
	}
	if q.VisitorType != "" {
		params["visitorType"] = string(q.VisitorType)
	}
	if q.SelectedUserID != "" {
		params["userId"] = q.SelectedUserID
	}
	if len(q.AppliedFilters) > 0 {
		if b, err := json.Marshal(q.AppliedFilters); err == nil {
			params["appliedFilters"] = string(b)
		}
	}
	return params
}

// CacheKey is the sorted query string, scoped by epinet when set.
func CacheKey(epinetID string, params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	key := values.Encode()
	if epinetID != "" {
		return "epinet:" + epinetID + "?" + key
	}
	return key
}

func readableError(err error) string {
	var status interface{ Temporary() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The analytics request timed out."
	case errors.As(err, &status) && status.Temporary():
		return fmt.Sprintf("The analytics service is temporarily unavailable: %v", err)
	default:
		return err.Error()
	}
}
