package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
)

func newCache(t *testing.T, ttl time.Duration) (*ScheduleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewScheduleCache(rdb, ttl), mr
}

func TestScheduleCacheRoundTrip(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "clinic-1")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := Snapshot{
		Rules: []availability.RuleRecord{
			availability.WeekdayRecord("r-1", time.Monday, "09:00", "12:00"),
			availability.DateRecord("r-2", "2025-01-06", "00:00", "23:59", true),
		},
		Config:    availability.SlotConfig{IntervalMinutes: 15},
		HasConfig: true,
	}
	require.NoError(t, c.Set(ctx, "clinic-1", snap))
	assert.True(t, mr.Exists("clinicslots:schedule:clinic-1"))
	assert.Equal(t, time.Minute, mr.TTL("clinicslots:schedule:clinic-1"))

	got, ok, err := c.Get(ctx, "clinic-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	require.NoError(t, c.Invalidate(ctx, "clinic-1"))
	_, ok, err = c.Get(ctx, "clinic-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduleCacheExpires(t *testing.T) {
	c, mr := newCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "clinic-1", Snapshot{}))
	mr.FastForward(DefaultTTL + time.Second)

	_, ok, err := c.Get(ctx, "clinic-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduleCacheDropsCorruptEntry(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	require.NoError(t, mr.Set("clinicslots:schedule:clinic-1", "not json"))

	_, ok, err := c.Get(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("clinicslots:schedule:clinic-1"))
}

func TestScheduleCacheUnavailable(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	mr.Close()

	_, _, err := c.Get(context.Background(), "clinic-1")
	require.Error(t, err)
}
