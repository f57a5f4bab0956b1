package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
)

const DefaultTTL = 5 * time.Minute

// Snapshot is the cached part of a clinic schedule: its rules as stored and
// its slot config. Appointments are never cached.
type Snapshot struct {
	Rules     []availability.RuleRecord `json:"rules"`
	Config    availability.SlotConfig   `json:"config"`
	HasConfig bool                      `json:"has_config"`
}

// ScheduleCache keeps snapshots in Redis under one key per clinic.
type ScheduleCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewScheduleCache(rdb redis.Cmdable, ttl time.Duration) *ScheduleCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ScheduleCache{rdb: rdb, ttl: ttl, prefix: "clinicslots:schedule:"}
}

func (c *ScheduleCache) key(clinicID string) string {
	return c.prefix + strings.TrimSpace(clinicID)
}

// Get returns the snapshot and whether it was present.
func (c *ScheduleCache) Get(ctx context.Context, clinicID string) (Snapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(clinicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A snapshot from an older layout is treated as a miss.
		_ = c.rdb.Del(ctx, c.key(clinicID)).Err()
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

func (c *ScheduleCache) Set(ctx context.Context, clinicID string, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(clinicID), raw, c.ttl).Err()
}

// Invalidate drops the clinic's snapshot so the next read reloads it.
func (c *ScheduleCache) Invalidate(ctx context.Context, clinicID string) error {
	return c.rdb.Del(ctx, c.key(clinicID)).Err()
}

// ReadyCheck pings Redis.
func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
