package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock fires timers synchronously from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.fired && !t.stopped && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			if !due[i].at.Equal(due[j].at) {
				return due[i].at.Before(due[j].at)
			}
			return due[i].seq < due[j].seq
		})
		next := due[0]
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type sourceCall struct {
	epinetID string
	params   map[string]string
}

// fakeSource answers through respond; the zero value answers with an empty complete payload.
type fakeSource struct {
	mu      sync.Mutex
	calls   []sourceCall
	respond func(ctx context.Context, n int, c sourceCall) (*analytics.Payload, error)
	hot     []analytics.HotItem
	content []analytics.ContentInfo
	leads   []byte
}

func (s *fakeSource) record(ctx context.Context, c sourceCall) (*analytics.Payload, error) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	n := len(s.calls)
	respond := s.respond
	s.mu.Unlock()
	if respond == nil {
		return &analytics.Payload{Status: analytics.StatusComplete}, nil
	}
	return respond(ctx, n, c)
}

func (s *fakeSource) FetchAll(ctx context.Context, params map[string]string) (*analytics.Payload, error) {
	return s.record(ctx, sourceCall{params: params})
}

func (s *fakeSource) FetchEpinet(ctx context.Context, epinetID string, params map[string]string) (*analytics.Payload, error) {
	return s.record(ctx, sourceCall{epinetID: epinetID, params: params})
}

func (s *fakeSource) ContentSummary(ctx context.Context) ([]analytics.HotItem, error) {
	return s.hot, nil
}

func (s *fakeSource) ContentMap(ctx context.Context, lastUpdated int64) ([]analytics.ContentInfo, int64, error) {
	if lastUpdated == 7 {
		return nil, 7, nil
	}
	return s.content, 7, nil
}

func (s *fakeSource) LeadsCSV(ctx context.Context) ([]byte, string, error) {
	return s.leads, "text/csv", nil
}

func (s *fakeSource) Calls() []sourceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sourceCall(nil), s.calls...)
}

type updateLog struct {
	mu     sync.Mutex
	states []FetchState
}

func (l *updateLog) record(s FetchState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *updateLog) statuses() []FetchStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FetchStatus, len(l.states))
	for i, s := range l.states {
		out[i] = s.Status
	}
	return out
}

func (l *updateLog) last() FetchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[len(l.states)-1]
}
