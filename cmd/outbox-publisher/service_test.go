package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/realtime"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/metrics"
	"github.com/angelmondragon/roha-backend/pkg/outbox"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
	"github.com/angelmondragon/roha-backend/pkg/rabbitmq"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	customer := uuid.New()
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			orderRow(t, customer, 1, 2),
			orderRow(t, customer, 2, 1),
		},
	}
	live := &fakeLive{errs: []error{errors.New("transient"), nil}}
	service := newTestService(t, repo, live, nil, nil)

	report, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if report.fetched != 2 || report.failed != 1 {
		t.Fatalf("unexpected batch report: %+v", report)
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestServicePublishesOrderToRecipientChannel(t *testing.T) {
	customer := uuid.New()
	row := orderRow(t, customer, 42, 3)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	live := &fakeLive{}
	fanout := &fakeFanout{}
	service := newTestService(t, repo, live, fanout, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(live.sent) != 1 {
		t.Fatalf("expected one live publish, got %d", len(live.sent))
	}
	sent := live.sent[0]
	if sent.stream != registry.StreamOrders || sent.customer != customer {
		t.Fatalf("published to wrong channel: %+v", sent)
	}
	if sent.event.Order == nil || sent.event.Order.ID != 42 || sent.event.Order.Version != 3 {
		t.Fatalf("live event should carry the full row: %+v", sent.event)
	}
	if sent.event.PreviousStatus != enums.OrderStatusPending {
		t.Fatalf("expected previous status pending, got %q", sent.event.PreviousStatus)
	}
	if len(fanout.sent) != 0 {
		t.Fatalf("order events are not fanned out")
	}
}

func TestServiceFansOutNotifications(t *testing.T) {
	customer := uuid.New()
	row := notificationRow(t, customer, 7)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	live := &fakeLive{}
	fanout := &fakeFanout{}
	service := newTestService(t, repo, live, fanout, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(live.sent) != 1 || live.sent[0].stream != registry.StreamNotifications {
		t.Fatalf("expected notification on the live channel: %+v", live.sent)
	}
	if len(fanout.sent) != 1 {
		t.Fatalf("expected one fan-out message, got %d", len(fanout.sent))
	}
	msg := fanout.sent[0]
	if msg.Type != string(enums.EventNotificationCreated) {
		t.Fatalf("unexpected message type %q", msg.Type)
	}
	if string(msg.Body) != string(row.Payload) {
		t.Fatalf("fan-out body should be the stored envelope")
	}
	if len(repo.published) != 1 {
		t.Fatalf("expected row marked published")
	}
}

func TestServiceRetriesWhenFanoutFails(t *testing.T) {
	row := notificationRow(t, uuid.New(), 7)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	fanout := &fakeFanout{err: errors.New("broker down")}
	service := newTestService(t, repo, &fakeLive{}, fanout, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.failed) != 1 || len(repo.published) != 0 {
		t.Fatalf("expected row left for retry: failed=%d published=%d", len(repo.failed), len(repo.published))
	}
}

func TestServiceParksUndecodableRows(t *testing.T) {
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderUpdated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "9",
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":null}`),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	live := &fakeLive{}
	service := newTestService(t, repo, live, nil, nil)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != row.ID {
		t.Fatalf("expected row parked, got %+v", repo.terminal)
	}
	if len(live.sent) != 0 {
		t.Fatalf("undecodable rows must not reach live channels")
	}
	if got := publishCount(t, reg, string(enums.EventOrderUpdated), string(outcomeTerminal)); got != 1 {
		t.Fatalf("expected terminal metric 1, got %v", got)
	}
}

func TestServiceParksRowAfterMaxAttempts(t *testing.T) {
	row := orderRow(t, uuid.New(), 1, 2)
	row.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	live := &fakeLive{errs: []error{errors.New("transient")}}
	service := newTestService(t, repo, live, nil, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row parked after max attempts, got %d", len(repo.terminal))
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal rows are not marked failed")
	}
}

func TestServiceHoldsBackRowsBehindAFailureOnTheSameOrder(t *testing.T) {
	customer := uuid.New()
	placed := orderRow(t, customer, 7, 1)
	accepted := orderRow(t, customer, 7, 2)
	other := orderRow(t, customer, 8, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{placed, accepted, other}}
	live := &fakeLive{errs: []error{errors.New("redis timeout")}}
	service := newTestService(t, repo, live, nil, &config.OutboxConfig{BatchSize: 3, MaxAttempts: 5})

	report, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if report.failed != 2 {
		t.Fatalf("the held row should count as failed, got %+v", report)
	}
	if len(repo.failed) != 1 || repo.failed[0] != placed.ID {
		t.Fatalf("expected only the first order 7 row to fail, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != other.ID {
		t.Fatalf("expected order 8 to publish and order 7 v2 to wait, got %v", repo.published)
	}
	for _, sent := range live.sent {
		if sent.event.Order != nil && sent.event.Order.ID == 7 {
			t.Fatalf("order 7 version %d overtook the failed row", sent.event.Order.Version)
		}
	}
}

func TestServiceRunBacksOffWhileLiveChannelIsDown(t *testing.T) {
	row := orderRow(t, uuid.New(), 42, 2)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	live := &fakeLive{down: errors.New("connection refused")}
	service := newTestService(t, repo, live, nil, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 10,
		MaxAttempts:    10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := service.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected run to stop on deadline, got %v", err)
	}

	if live.attempts == 0 {
		t.Fatalf("expected at least one publish attempt")
	}
	if live.attempts >= 10 {
		t.Fatalf("retries did not back off: %d attempts in 100ms", live.attempts)
	}
	if len(repo.terminal) != 0 {
		t.Fatalf("a short outage must not park the row")
	}
}

func TestServiceRunPollsAgainAfterCleanBatch(t *testing.T) {
	customer := uuid.New()
	repo := &fakeRepo{events: []models.OutboxEvent{orderRow(t, customer, 1, 2), orderRow(t, customer, 2, 2)}}
	live := &fakeLive{}
	service := newTestService(t, repo, live, nil, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 1000,
		MaxAttempts:    5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = service.Run(ctx)

	if len(repo.published) != 2 {
		t.Fatalf("a full clean batch should poll straight away, published %d", len(repo.published))
	}
}

func newTestService(t *testing.T, repo outboxRepository, live livePublisher, fanout fanoutPublisher, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	params := ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         &fakeDB{},
		Live:       live,
		Repository: repo,
		Registry:   registry.NewEventRegistry(),
	}
	if fanout != nil {
		params.Fanout = fanout
	}
	service, err := NewService(params)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func publishCount(t *testing.T, reg *prometheus.Registry, eventType, result string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "roha_outbox_publish_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["event_type"] == eventType && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func orderRow(tb testing.TB, customer uuid.UUID, orderID int64, version int) models.OutboxEvent {
	tb.Helper()
	data := payloads.OrderUpdatedEvent{
		Order: payloads.OrderSnapshot{
			ID:         orderID,
			CustomerID: customer,
			Status:     enums.OrderStatusAccepted,
			Version:    version,
		},
		PreviousStatus: enums.OrderStatusPending,
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderUpdated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   strconv.FormatInt(orderID, 10),
		Payload:       mustEnvelope(tb, data),
	}
}

func notificationRow(tb testing.TB, customer uuid.UUID, id int64) models.OutboxEvent {
	tb.Helper()
	data := payloads.NotificationCreatedEvent{
		Notification: payloads.NotificationSnapshot{
			ID:      id,
			UserID:  customer,
			Title:   "Order Accepted",
			Message: "Your order was accepted",
			Type:    enums.NotificationTypeSuccess,
		},
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventNotificationCreated,
		AggregateType: enums.AggregateNotification,
		AggregateID:   "notification",
		Payload:       mustEnvelope(tb, data),
	}
}

func mustEnvelope(tb testing.TB, data any) json.RawMessage {
	tb.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		tb.Fatalf("marshal data: %v", err)
	}
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       raw,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

// FetchUnpublishedForPublish mirrors the real query: published and parked
// rows are skipped and limit applies.
func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	done := map[uuid.UUID]bool{}
	for _, id := range f.published {
		done[id] = true
	}
	for _, id := range f.terminal {
		done[id] = true
	}
	var out []models.OutboxEvent
	for _, event := range f.events {
		if done[event.ID] {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, event)
	}
	return out, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].AttemptCount++
		}
	}
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type liveSend struct {
	stream   registry.Stream
	customer uuid.UUID
	event    realtime.Event
}

type fakeLive struct {
	errs []error
	// down fails every publish when set.
	down     error
	attempts int
	sent     []liveSend
}

func (f *fakeLive) Publish(_ context.Context, stream registry.Stream, customerID uuid.UUID, event realtime.Event) error {
	f.attempts++
	if f.down != nil {
		return f.down
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, liveSend{stream: stream, customer: customerID, event: event})
	return nil
}

type fakeFanout struct {
	err  error
	sent []rabbitmq.Message
}

func (f *fakeFanout) Publish(_ context.Context, msg rabbitmq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeFanout) Ping(context.Context) error {
	return nil
}
