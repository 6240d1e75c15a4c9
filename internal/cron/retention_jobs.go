package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/roha-backend/pkg/logger"
)

const (
	outboxRetentionDays       = 30
	notificationRetentionDays = 90
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// retentionJob deletes rows older than a fixed number of days.
type retentionJob struct {
	name      string
	logg      *logger.Logger
	retention int
	prune     func(ctx context.Context, cutoff time.Time) (int64, error)
	now       func() time.Time
}

// NewOutboxRetentionJob prunes published outbox rows.
func NewOutboxRetentionJob(logg *logger.Logger, repo outboxPruner, retentionDays int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob("outbox-retention", logg, retentionDays, outboxRetentionDays, repo.DeletePublishedBefore)
}

// NewNotificationRetentionJob prunes notifications the customer has read.
func NewNotificationRetentionJob(logg *logger.Logger, repo notificationPruner, retentionDays int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newRetentionJob("notification-retention", logg, retentionDays, notificationRetentionDays, repo.DeleteReadBefore)
}

func newRetentionJob(name string, logg *logger.Logger, days, fallback int, prune func(context.Context, time.Time) (int64, error)) (*retentionJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if days <= 0 {
		days = fallback
	}
	return &retentionJob{name: name, logg: logg, retention: days, prune: prune, now: time.Now}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "retention cleanup complete")
	return nil
}
