package cron

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/roha-backend/pkg/logger"
)

type fakePruner struct {
	lastCutoff time.Time
	deleted    int64
	err        error
	called     int
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	return f.deleted, f.err
}

func (f *fakePruner) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.DeletePublishedBefore(ctx, cutoff)
}

func TestOutboxRetentionJobUsesDefaultWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakePruner{deleted: 4}
	job, err := NewOutboxRetentionJob(logger.Nop(), repo, 0)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job.(*retentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expected := now.Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.lastCutoff)
	}
	if job.Name() != "outbox-retention" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestNotificationRetentionJobPropagatesError(t *testing.T) {
	repo := &fakePruner{err: errors.New("boom")}
	job, err := NewNotificationRetentionJob(logger.Nop(), repo, 7)
	if err != nil {
		t.Fatalf("NewNotificationRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if repo.called != 1 {
		t.Fatalf("expected prune called once, got %d", repo.called)
	}
}

type counterFunc func(context.Context, time.Duration) (int64, error)

func (f counterFunc) CountStalePending(ctx context.Context, maxAge time.Duration) (int64, error) {
	return f(ctx, maxAge)
}

func TestStalePendingOrdersJobWarnsWhenOrdersWait(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "cron-test", Level: zerolog.DebugLevel, Output: buf})

	var gotAge time.Duration
	job, err := NewStalePendingOrdersJob(logg, counterFunc(func(_ context.Context, age time.Duration) (int64, error) {
		gotAge = age
		return 3, nil
	}), 0)
	if err != nil {
		t.Fatalf("NewStalePendingOrdersJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotAge != defaultStalePendingAfter {
		t.Fatalf("expected default threshold, got %s", gotAge)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), `"stale_pending":3`) {
		t.Fatalf("expected warn entry with count, got %s", buf.String())
	}
}
