package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/roha-backend/pkg/logger"
)

const defaultStalePendingAfter = 30 * time.Minute

type staleOrderCounter interface {
	CountStalePending(ctx context.Context, maxAge time.Duration) (int64, error)
}

// NewStalePendingOrdersJob surfaces orders nobody has accepted or rejected.
// It never changes an order's status.
func NewStalePendingOrdersJob(logg *logger.Logger, counter staleOrderCounter, after time.Duration) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if counter == nil {
		return nil, fmt.Errorf("order counter required")
	}
	if after <= 0 {
		after = defaultStalePendingAfter
	}
	return &stalePendingOrdersJob{logg: logg, counter: counter, after: after}, nil
}

type stalePendingOrdersJob struct {
	logg    *logger.Logger
	counter staleOrderCounter
	after   time.Duration
}

func (j *stalePendingOrdersJob) Name() string { return "stale-pending-orders" }

func (j *stalePendingOrdersJob) Run(ctx context.Context) error {
	count, err := j.counter.CountStalePending(ctx, j.after)
	if err != nil {
		return fmt.Errorf("count stale pending orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stale_pending": count,
		"older_than":    j.after.String(),
	})
	if count > 0 {
		j.logg.Warn(logCtx, "orders waiting for an admin decision")
		return nil
	}
	j.logg.Info(logCtx, "no stale pending orders")
	return nil
}
