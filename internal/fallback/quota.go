// Package fallback implements the quota-limited client for the external
// case metadata provider.
//
// The provider is consulted only when every official source yields
// nothing, and its contract imposes hard ceilings: a daily request budget,
// a per-second rate, and a concurrency cap. Requests past any ceiling are
// rejected immediately with a reason, never queued — quota spent on
// automatic fallback must not silently starve user-triggered searches.
package fallback

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
)

// quota guards all shared quota state under one lock. The critical
// section is check-and-increment only; the network call happens outside.
type quota struct {
	mu sync.Mutex

	dailyLimit    int
	dayStart      time.Time // UTC midnight of the current window
	dailyCount    int
	perSecond     *rate.Limiter
	maxConcurrent int
	inFlight      int
	blocked       map[string]int64

	// now is injectable for window-rollover tests.
	now func() time.Time
}

func newQuota(daily, perSecond, maxConcurrent int) *quota {
	return &quota{
		dailyLimit:    daily,
		perSecond:     rate.NewLimiter(rate.Limit(perSecond), perSecond),
		maxConcurrent: maxConcurrent,
		blocked:       make(map[string]int64),
		now:           time.Now,
	}
}

// acquire reserves one request slot. On success it returns a release
// function that must be called exactly once when the outbound call
// completes, success or failure. On rejection it returns a RateLimited
// error naming the ceiling that tripped.
func (q *quota) acquire() (release func(), err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Roll the daily window at the UTC day boundary.
	today := q.now().UTC().Truncate(24 * time.Hour)
	if !today.Equal(q.dayStart) {
		q.dayStart = today
		q.dailyCount = 0
	}

	if q.dailyCount >= q.dailyLimit {
		q.blocked[caselaw.ReasonDailyLimit]++
		return nil, caselaw.NewRateLimited(caselaw.ReasonDailyLimit)
	}
	if !q.perSecond.AllowN(q.now(), 1) {
		q.blocked[caselaw.ReasonPerSecondLimit]++
		return nil, caselaw.NewRateLimited(caselaw.ReasonPerSecondLimit)
	}
	if q.inFlight >= q.maxConcurrent {
		q.blocked[caselaw.ReasonConcurrentLimit]++
		return nil, caselaw.NewRateLimited(caselaw.ReasonConcurrentLimit)
	}

	q.dailyCount++
	q.inFlight++

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			q.inFlight--
			q.mu.Unlock()
		})
	}, nil
}

// Usage is a point-in-time snapshot of quota consumption for dashboards.
type Usage struct {
	DailyCount      int              `json:"daily_count"`
	DailyRemaining  int              `json:"daily_remaining"`
	InFlight        int              `json:"in_flight"`
	BlockedByReason map[string]int64 `json:"blocked_by_reason"`
}

func (q *quota) usage() Usage {
	q.mu.Lock()
	defer q.mu.Unlock()

	// A snapshot taken in a new UTC day reflects the rolled window even
	// if no request has rolled it yet.
	count := q.dailyCount
	if !q.now().UTC().Truncate(24 * time.Hour).Equal(q.dayStart) {
		count = 0
	}

	blocked := make(map[string]int64, len(q.blocked))
	for k, v := range q.blocked {
		blocked[k] = v
	}
	return Usage{
		DailyCount:      count,
		DailyRemaining:  q.dailyLimit - count,
		InFlight:        q.inFlight,
		BlockedByReason: blocked,
	}
}
