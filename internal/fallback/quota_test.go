package fallback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestQuotaDailyCeiling(t *testing.T) {
	q := newQuota(3, 100, 10)

	for i := 0; i < 3; i++ {
		release, err := q.acquire()
		require.NoError(t, err, "request %d inside the budget", i)
		release()
	}

	_, err := q.acquire()
	require.Error(t, err)
	assert.True(t, errors.Is(err, caselaw.ErrRateLimited))
	assert.Equal(t, caselaw.ReasonDailyLimit, caselaw.ReasonOf(err))
}

func TestQuotaDailyWindowRollsAtUTCMidnight(t *testing.T) {
	q := newQuota(1, 100, 10)
	day1 := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	q.now = fixedClock(day1)

	release, err := q.acquire()
	require.NoError(t, err)
	release()

	_, err = q.acquire()
	require.Error(t, err)
	assert.Equal(t, caselaw.ReasonDailyLimit, caselaw.ReasonOf(err))

	// Two minutes later it is a new UTC day and the budget resets.
	q.now = fixedClock(day1.Add(2 * time.Minute))
	release, err = q.acquire()
	require.NoError(t, err)
	release()
}

func TestQuotaPerSecondCeiling(t *testing.T) {
	q := newQuota(1000, 2, 10)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	q.now = fixedClock(now)

	// Burst of two at the same instant, then the bucket is empty.
	for i := 0; i < 2; i++ {
		release, err := q.acquire()
		require.NoError(t, err)
		release()
	}
	_, err := q.acquire()
	require.Error(t, err)
	assert.Equal(t, caselaw.ReasonPerSecondLimit, caselaw.ReasonOf(err))

	// A second later the bucket has refilled.
	q.now = fixedClock(now.Add(time.Second))
	release, err := q.acquire()
	require.NoError(t, err)
	release()
}

func TestQuotaConcurrencyCeiling(t *testing.T) {
	q := newQuota(1000, 100, 1)

	release, err := q.acquire()
	require.NoError(t, err)

	_, err = q.acquire()
	require.Error(t, err)
	assert.Equal(t, caselaw.ReasonConcurrentLimit, caselaw.ReasonOf(err))

	release()
	release2, err := q.acquire()
	require.NoError(t, err)
	release2()
}

func TestQuotaReleaseIsIdempotent(t *testing.T) {
	q := newQuota(1000, 100, 1)

	release, err := q.acquire()
	require.NoError(t, err)
	release()
	release() // double release must not free a second slot

	r1, err := q.acquire()
	require.NoError(t, err)
	defer r1()
	_, err = q.acquire()
	assert.Error(t, err, "capacity is still one")
}

func TestQuotaUsageSnapshot(t *testing.T) {
	q := newQuota(10, 100, 5)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	q.now = fixedClock(now)

	release, err := q.acquire()
	require.NoError(t, err)

	u := q.usage()
	assert.Equal(t, 1, u.DailyCount)
	assert.Equal(t, 9, u.DailyRemaining)
	assert.Equal(t, 1, u.InFlight)
	release()

	// Exhaust the rest and record a blocked attempt.
	for i := 0; i < 9; i++ {
		r, err := q.acquire()
		require.NoError(t, err)
		r()
	}
	_, err = q.acquire()
	require.Error(t, err)

	u = q.usage()
	assert.Equal(t, 10, u.DailyCount)
	assert.Equal(t, 0, u.DailyRemaining)
	assert.Equal(t, 0, u.InFlight)
	assert.Equal(t, int64(1), u.BlockedByReason[caselaw.ReasonDailyLimit])

	// A snapshot on the next day shows the rolled window.
	q.now = fixedClock(now.Add(24 * time.Hour))
	u = q.usage()
	assert.Equal(t, 0, u.DailyCount)
	assert.Equal(t, 10, u.DailyRemaining)
}
