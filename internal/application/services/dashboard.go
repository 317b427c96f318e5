package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/performance"
)

// Backend is everything a dashboard needs from the tenant's backend.
type Backend interface {
	analytics.Source
	LeadsCSV(ctx context.Context) ([]byte, string, error)
}

// Publisher fans dashboard events out to connected admin browsers.
type Publisher interface {
	Publish(tenantID, msgType string, data any)
}

// DashboardEvent is pushed to subscribers whenever the dashboard's fetch state changes.
type DashboardEvent struct {
	Type      string           `json:"type"`
	TenantID  string           `json:"tenantId"`
	Fetch     FetchState       `json:"fetch"`
	Failed    bool             `json:"failed"`
	RetryIn   time.Duration    `json:"-"`
	RetryInMs int64            `json:"retryInMs,omitempty"`
	Attempt   int              `json:"attempt,omitempty"`
	Preset    analytics.Preset `json:"preset"`
}

// DashboardConfig holds dashboard-level settings.
type DashboardConfig struct {
	Fetch           FetchConfig
	RetryDelays     []time.Duration
	SuccessHold     time.Duration
	MaxHours        int
	ContentMapTTL   time.Duration
	Location        *time.Location
	ContentMapStore *stores.ContentMapStore
}

// DefaultDashboardConfig returns the standard dashboard settings.
func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Fetch:         DefaultFetchConfig(),
		RetryDelays:   []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		SuccessHold:   time.Second,
		MaxHours:      672,
		ContentMapTTL: time.Minute,
		Location:      time.Local,
	}
}

// DashboardView is the snapshot returned to the console.
type DashboardView struct {
	TenantID string                    `json:"tenantId"`
	Filters  analytics.FilterSnapshot  `json:"filters"`
	Fetch    FetchState                `json:"fetch"`
	Failed   bool                      `json:"failed"`
	Attempt  int                       `json:"attempt"`
	Preset   analytics.Preset          `json:"preset"`
	Editor   analytics.RangeEditorView `json:"editor"`
	Timezone string                    `json:"timezone"`
}

// TimelineView is one aggregated day plus navigation.
type TimelineView struct {
	analytics.Timeline
	Navigator analytics.DayNavigator `json:"navigator"`
}

// Dashboard is one tenant's analytics session: filter state, range editor,
// fetch services and the controller loop that reacts to filter changes.
type Dashboard struct {
	tenantID  string
	cfg       DashboardConfig
	backend   Backend
	clock     Clock
	logger    *logging.ChanneledLogger
	publisher Publisher
	contents  *stores.ContentMapStore

	filters *analytics.FilterState
	editor  *analytics.RangeEditor
	fetch   *AnalyticsFetchService
	epinet  *AnalyticsFetchService
	retries RetryPolicy

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      FetchState
	retryRun   *RetryRun
	retryTimer Timer
	holdTimer  Timer
	failed     bool
	lastSeen   time.Time
}

// NewDashboard creates a dashboard session and starts its controller loop.
func NewDashboard(tenantID string, backend Backend, clock Clock, cfg DashboardConfig, publisher Publisher, logger *logging.ChanneledLogger, perf *performance.Tracker) *Dashboard {
	if clock == nil {
		clock = NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ContentMapStore == nil {
		cfg.ContentMapStore = stores.NewContentMapStore()
	}

	filters := analytics.NewFilterState(tenantID)
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		tenantID:  tenantID,
		cfg:       cfg,
		backend:   backend,
		clock:     clock,
		logger:    logger,
		publisher: publisher,
		contents:  cfg.ContentMapStore,
		filters:   filters,
		editor:    analytics.NewRangeEditor(cfg.Location, cfg.MaxHours),
		fetch:     NewAnalyticsFetchService(tenantID, backend, filters, clock, cfg.Fetch, logger, perf),
		epinet:    NewAnalyticsFetchService(tenantID, backend, analytics.NewFilterState(tenantID), clock, cfg.Fetch, logger, perf),
		retries:   SchedulePolicy(cfg.RetryDelays),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     FetchState{Status: FetchIdle},
		lastSeen:  clock.Now(),
	}
	go d.loop()
	return d
}

// loop turns each coalesced filter change into a debounced fetch.
func (d *Dashboard) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.filters.Changes():
			d.fetch.DebouncedFetch(d.filters.Query(), d.onUpdate)
		}
	}
}

func (d *Dashboard) onUpdate(state FetchState) {
	d.mu.Lock()
	d.state = state
	event := DashboardEvent{Type: "fetch", TenantID: d.tenantID, Fetch: state}

	switch state.Status {
	case FetchComplete:
		d.retryRun = nil
		d.failed = false
		if d.retryTimer != nil {
			d.retryTimer.Stop()
			d.retryTimer = nil
		}
	case FetchError:
		if d.retryRun == nil {
			d.retryRun = d.retries.Start()
		}
		if delay, ok := d.retryRun.Next(); ok {
			event.RetryIn = delay
			event.RetryInMs = delay.Milliseconds()
			event.Attempt = d.retryRun.Attempts()
			d.retryTimer = d.clock.AfterFunc(delay, d.retry)
			d.logger.Fetch().Warn("Analytics fetch failed, retrying", "tenantId", d.tenantID, "attempt", event.Attempt, "delay", delay, "error", state.Error)
		} else {
			d.failed = true
			d.logger.Fetch().Error("Analytics fetch failed, giving up", "tenantId", d.tenantID, "attempts", d.retryRun.Attempts(), "error", state.Error)
		}
	}
	event.Failed = d.failed
	d.mu.Unlock()

	d.publish(event)
}

func (d *Dashboard) retry() {
	d.mu.Lock()
	d.retryTimer = nil
	d.mu.Unlock()
	err := d.fetch.FetchAnalytics(d.ctx, d.filters.Query(), d.onUpdate)
	if err == nil || errors.Is(err, ErrServiceClosed) {
		return
	}
	// A refused retry still spends the attempt
	d.logger.WithTenant(logging.ChannelFetch, d.tenantID).Warn("Retry not issued", "error", err)
	d.onUpdate(FetchState{Status: FetchError, Error: readableError(err), UpdatedAt: d.clock.Now(), err: err})
}

func (d *Dashboard) publish(event DashboardEvent) {
	if d.publisher == nil {
		return
	}
	snap := d.filters.Snapshot()
	event.Preset = analytics.PresetFor(snap.StartTimeUTC, snap.EndTimeUTC, d.clock.Now())
	d.publisher.Publish(d.tenantID, event.Type, event)
}

func (d *Dashboard) touch() {
	d.mu.Lock()
	d.lastSeen = d.clock.Now()
	d.mu.Unlock()
}

// LastSeen returns the last time the console used this dashboard.
func (d *Dashboard) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

// TenantID returns the dashboard's tenant.
func (d *Dashboard) TenantID() string { return d.tenantID }

// Initialize seeds the default window on first visit. Seeding triggers the first fetch.
func (d *Dashboard) Initialize() (bool, error) {
	d.touch()
	seeded, err := d.fetch.InitializeFilters(d.tenantID)
	if err != nil {
		return false, err
	}
	snap := d.filters.Snapshot()
	d.editor.Sync(snap.StartTimeUTC, snap.EndTimeUTC)
	return seeded, nil
}

// View returns the current dashboard snapshot.
func (d *Dashboard) View() DashboardView {
	d.touch()
	snap := d.filters.Snapshot()

	d.mu.Lock()
	state, failed := d.state, d.failed
	attempt := 0
	if d.retryRun != nil {
		attempt = d.retryRun.Attempts()
	}
	d.mu.Unlock()

	return DashboardView{
		TenantID: d.tenantID,
		Filters:  snap,
		Fetch:    state,
		Failed:   failed,
		Attempt:  attempt,
		Preset:   analytics.PresetFor(snap.StartTimeUTC, snap.EndTimeUTC, d.clock.Now()),
		Editor:   d.editor.View(),
		Timezone: d.cfg.Location.String(),
	}
}

// SetVisitorType changes the visitor population.
func (d *Dashboard) SetVisitorType(v analytics.VisitorType) error {
	d.touch()
	return d.filters.SetVisitorType(v)
}

// SelectUser selects or clears the individual visitor.
func (d *Dashboard) SelectUser(userID string) error {
	d.touch()
	if err := d.filters.SetSelectedUser(userID); err != nil {
		return err
	}
	if userID != "" {
		d.logger.WithTenant(logging.ChannelAnalytics, d.tenantID).Debug("Visitor selected", "userId", logging.SanitizeUserID(userID))
	}
	return nil
}

// ApplyFilter upserts a belief filter; "All" removes it.
func (d *Dashboard) ApplyFilter(beliefSlug, value string) error {
	d.touch()
	return d.filters.ApplyFilter(beliefSlug, value)
}

// ClearFilters removes every applied belief filter.
func (d *Dashboard) ClearFilters() error {
	d.touch()
	return d.filters.ClearFilters()
}

// UserCounts returns one page of user counts.
func (d *Dashboard) UserCounts(page int) analytics.UserCountsPage {
	d.touch()
	return d.filters.UserCountsPage(page)
}

// EditRange replaces the pending range form.
func (d *Dashboard) EditRange(form analytics.RangeForm) (analytics.RangeEditorView, error) {
	d.touch()
	err := d.editor.Edit(form)
	return d.editor.View(), err
}

// SelectPreset fills the pending range from a preset.
func (d *Dashboard) SelectPreset(p analytics.Preset) (analytics.RangeEditorView, error) {
	d.touch()
	err := d.editor.SelectPreset(p, d.clock.Now())
	return d.editor.View(), err
}

// ApplyRange validates and commits the pending range. After success the
// editor holds its success state briefly before returning to clean.
func (d *Dashboard) ApplyRange() (analytics.RangeEditorView, error) {
	d.touch()
	err := d.editor.Apply(d.clock.Now(), func(start, end time.Time) error {
		return d.filters.SetRange(start, end)
	})
	if err != nil {
		return d.editor.View(), err
	}

	d.mu.Lock()
	if d.holdTimer != nil {
		d.holdTimer.Stop()
	}
	d.holdTimer = d.clock.AfterFunc(d.cfg.SuccessHold, d.editor.Settle)
	d.mu.Unlock()
	return d.editor.View(), nil
}

// CancelRange discards pending range edits.
func (d *Dashboard) CancelRange() (analytics.RangeEditorView, error) {
	d.touch()
	snap := d.filters.Snapshot()
	err := d.editor.Cancel(snap.StartTimeUTC, snap.EndTimeUTC)
	return d.editor.View(), err
}

// Refresh is the manual retry: it clears a failed state and fetches immediately.
func (d *Dashboard) Refresh() error {
	d.touch()
	d.mu.Lock()
	d.retryRun = nil
	d.failed = false
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	d.mu.Unlock()
	return d.fetch.FetchAnalytics(d.ctx, d.filters.Query(), d.onUpdate)
}

// ContentMap returns the tenant's content map, refreshing it from the backend when stale.
// A failed refresh falls back to the last known map.
func (d *Dashboard) ContentMap(ctx context.Context) analytics.ContentMap {
	now := d.clock.Now()
	cached, ok := d.contents.Get(d.tenantID)
	if ok && now.Sub(cached.FetchedAt) < d.cfg.ContentMapTTL {
		return cached.Items
	}

	var lastUpdated int64
	if ok {
		lastUpdated = cached.LastUpdated
	}
	items, updated, err := d.backend.ContentMap(ctx, lastUpdated)
	switch {
	case err != nil:
		d.logger.LogError(logging.ChannelFetch, "content_map", err, d.tenantID, nil)
		if ok {
			return cached.Items
		}
		return analytics.ContentMap{}
	case items == nil && ok:
		d.contents.Touch(d.tenantID, now)
		return cached.Items
	}

	d.contents.Set(d.tenantID, items, updated, now)
	fresh, _ := d.contents.Get(d.tenantID)
	d.logger.Cache().Debug("Content map refreshed", "tenantId", d.tenantID, "items", len(items), "lastUpdated", updated)
	return fresh.Items
}

// Timeline aggregates one local day. An empty day selects the most recent day with data.
func (d *Dashboard) Timeline(ctx context.Context, day string) TimelineView {
	d.touch()
	snap := d.filters.Snapshot()
	now := d.clock.Now()
	loc := d.cfg.Location

	days := analytics.AvailableDays(snap.HourlyNodeActivity, loc)
	nav := analytics.NewDayNavigator(days, day)
	if day == "" {
		day = nav.Current()
		if day == "" {
			day = now.In(loc).Format(analytics.DayLayout)
		}
	}

	tl := analytics.Aggregate(snap.HourlyNodeActivity, day, now, loc, d.ContentMap(ctx))
	return TimelineView{Timeline: tl, Navigator: nav}
}

// Epinet fetches an epinet's flow for the current filters. It waits for the
// first update, so a still-computing backend answers with a loading state
// while polling continues and warms the cache for the next call.
func (d *Dashboard) Epinet(ctx context.Context, epinetID string) (FetchState, error) {
	d.touch()
	if epinetID == "" {
		return FetchState{}, errors.New("epinet id is required")
	}
	q := d.filters.Query()
	q.EpinetID = epinetID

	first := make(chan FetchState, 1)
	var once sync.Once
	err := d.epinet.FetchAnalytics(d.ctx, q, func(s FetchState) {
		once.Do(func() { first <- s })
	})
	if err != nil {
		return FetchState{}, err
	}

	select {
	case s := <-first:
		return s, nil
	case <-ctx.Done():
		return FetchState{}, ctx.Err()
	default:
		// Superseded before publishing anything
		return FetchState{Status: FetchLoading, UpdatedAt: d.clock.Now()}, nil
	}
}

// ContentSummary returns the hottest content with resolved titles.
func (d *Dashboard) ContentSummary(ctx context.Context) ([]analytics.HotItem, analytics.ContentMap, error) {
	d.touch()
	hot, err := d.backend.ContentSummary(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("content summary: %w", err)
	}
	return hot, d.ContentMap(ctx), nil
}

// LeadsCSV passes the leads export through.
func (d *Dashboard) LeadsCSV(ctx context.Context) ([]byte, string, error) {
	d.touch()
	return d.backend.LeadsCSV(ctx)
}

// Close cancels all pending work and clears the session's state.
func (d *Dashboard) Close() {
	d.cancel()
	<-d.done

	d.fetch.Cleanup()
	d.epinet.Cleanup()

	d.mu.Lock()
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	if d.holdTimer != nil {
		d.holdTimer.Stop()
		d.holdTimer = nil
	}
	d.mu.Unlock()

	d.filters.Reset()
	d.logger.Analytics().Info("Dashboard session closed", "tenantId", d.tenantID)
}
