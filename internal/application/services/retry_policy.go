package services

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the single schedule shape used by both the still-computing
// poll loop and the dashboard's retry-on-error loop. Every policy has a hard
// ceiling unless explicitly built unbounded.
type RetryPolicy struct {
	newBackOff func() backoff.BackOff
}

// PollPolicy re-fetches at a fixed interval at most maxAttempts times.
// maxAttempts <= 0 means no ceiling.
func PollPolicy(interval time.Duration, maxAttempts int) RetryPolicy {
	return RetryPolicy{newBackOff: func() backoff.BackOff {
		b := backoff.BackOff(backoff.NewConstantBackOff(interval))
		if maxAttempts > 0 {
			b = backoff.WithMaxRetries(b, uint64(maxAttempts))
		}
		return b
	}}
}

// SchedulePolicy retries once per listed delay, then gives up.
func SchedulePolicy(delays []time.Duration) RetryPolicy {
	d := append([]time.Duration(nil), delays...)
	return RetryPolicy{newBackOff: func() backoff.BackOff {
		return &scheduleBackOff{delays: d}
	}}
}

// Start begins a fresh run of the policy.
func (p RetryPolicy) Start() *RetryRun {
	if p.newBackOff == nil {
		return &RetryRun{b: &backoff.StopBackOff{}}
	}
	b := p.newBackOff()
	b.Reset()
	return &RetryRun{b: b}
}

// RetryRun is one in-progress application of a RetryPolicy. Not safe for concurrent use.
type RetryRun struct {
	b        backoff.BackOff
	attempts int
}

// Next returns the delay before the next attempt, or false when the run has given up.
func (r *RetryRun) Next() (time.Duration, bool) {
	d := r.b.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	r.attempts++
	return d, true
}

// Attempts returns how many attempts have been scheduled so far.
func (r *RetryRun) Attempts() int {
	return r.attempts
}

type scheduleBackOff struct {
	delays []time.Duration
	next   int
}

func (s *scheduleBackOff) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

func (s *scheduleBackOff) Reset() { s.next = 0 }
