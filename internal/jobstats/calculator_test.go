package jobstats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/db"
)

type window struct{ from, to time.Time }

type fakeStore struct {
	stats   map[time.Time]*db.JobStats
	errs    map[time.Time]error
	windows []window
}

func (f *fakeStore) JobStatsBetween(ctx context.Context, from, to time.Time) (*db.JobStats, error) {
	f.windows = append(f.windows, window{from, to})
	if err := f.errs[from]; err != nil {
		return nil, err
	}
	if s, ok := f.stats[from]; ok {
		return s, nil
	}
	return &db.JobStats{}, nil
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newCalculator(store Store) *Calculator {
	c := NewCalculator(store, zap.NewNop(), time.Hour)
	c.now = func() time.Time { return now }
	return c
}

func TestSource_WithBaseline(t *testing.T) {
	store := &fakeStore{stats: map[time.Time]*db.JobStats{
		now.Add(-time.Hour):     {Total: 10, Succeeded: 8, Failed: 1, Pending: 1, AvgDurationMs: 120},
		now.Add(-2 * time.Hour): {Total: 5, Succeeded: 5, AvgDurationMs: 90},
	}}

	source, err := newCalculator(store).Source(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), source.TotalJobs)
	assert.Equal(t, int64(8), source.SuccessfulJobs)
	assert.Equal(t, int64(1), source.PendingJobs)
	assert.Equal(t, 120.0, source.AvgDurationMs)
	require.NotNil(t, source.Previous)
	assert.Equal(t, int64(5), source.Previous.SuccessfulJobs)

	require.Len(t, store.windows, 2)
	assert.Equal(t, window{now.Add(-time.Hour), now}, store.windows[0])
	assert.Equal(t, window{now.Add(-2 * time.Hour), now.Add(-time.Hour)}, store.windows[1])
}

func TestSource_EmptyPreviousWindow(t *testing.T) {
	store := &fakeStore{stats: map[time.Time]*db.JobStats{
		now.Add(-time.Hour): {Total: 3, Succeeded: 3},
	}}

	source, err := newCalculator(store).Source(context.Background())
	require.NoError(t, err)
	assert.Nil(t, source.Previous)
}

func TestSource_Errors(t *testing.T) {
	boom := errors.New("connection refused")

	_, err := newCalculator(&fakeStore{errs: map[time.Time]error{now.Add(-time.Hour): boom}}).Source(context.Background())
	require.ErrorIs(t, err, boom)

	// a failing baseline keeps the current window
	source, err := newCalculator(&fakeStore{
		stats: map[time.Time]*db.JobStats{now.Add(-time.Hour): {Total: 2, Failed: 2}},
		errs:  map[time.Time]error{now.Add(-2 * time.Hour): boom},
	}).Source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), source.FailedJobs)
	assert.Nil(t, source.Previous)
}

func TestBetween(t *testing.T) {
	store := &fakeStore{stats: map[time.Time]*db.JobStats{
		now.Add(-24 * time.Hour): {Total: 7, Running: 2},
	}}
	c := newCalculator(store)

	stats, err := c.Between(context.Background(), now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.TotalJobs)
	assert.Equal(t, int64(2), stats.RunningJobs)

	_, err = c.Between(context.Background(), now, now)
	assert.Error(t, err)
}
