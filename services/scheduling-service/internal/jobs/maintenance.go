package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule  = "@every 1h"
	DefaultRetention = 7 * 24 * time.Hour
)

type OutboxPurger interface {
	PurgePublished(ctx context.Context, cutoff time.Time) (int64, error)
}

type InboxPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Maintenance trims published outbox rows and old inbox rows.
type Maintenance struct {
	outbox    OutboxPurger
	inbox     InboxPurger
	retention time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewMaintenance(outboxRepo OutboxPurger, inboxRepo InboxPurger, retention time.Duration, logger *slog.Logger) *Maintenance {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Maintenance{
		outbox:    outboxRepo,
		inbox:     inboxRepo,
		retention: retention,
		timeout:   time.Minute,
		logger:    logger,
		now:       time.Now,
	}
}

// RunOnce purges both tables and returns the rows removed from each.
func (m *Maintenance) RunOnce(ctx context.Context) (outboxRows, inboxRows int64, err error) {
	cutoff := m.now().Add(-m.retention)

	outboxRows, err = m.outbox.PurgePublished(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	inboxRows, err = m.inbox.PurgeBefore(ctx, cutoff)
	if err != nil {
		return outboxRows, 0, err
	}
	return outboxRows, inboxRows, nil
}

// Start schedules RunOnce on spec until ctx is cancelled. Overlapping runs
// are skipped.
func (m *Maintenance) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		outboxRows, inboxRows, err := m.RunOnce(runCtx)
		if err != nil {
			m.logger.Error("maintenance run failed", "err", err)
			return
		}
		m.logger.Info("maintenance run finished", "outbox_purged", outboxRows, "inbox_purged", inboxRows)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
