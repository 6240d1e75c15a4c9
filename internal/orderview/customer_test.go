package orderview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/roha-backend/internal/realtime"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
)

type stubOrders struct {
	rows []models.Order
	err  error
}

func (s *stubOrders) ListForCustomer(context.Context, auth.Actor) ([]models.Order, error) {
	return s.rows, s.err
}

type stubNotifications struct {
	rows []models.Notification
}

func (s *stubNotifications) Recent(_ context.Context, _ auth.Actor, limit int) ([]models.Notification, error) {
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

// orderedSubscriber records whether Subscribe ran before the snapshot load.
type orderedSubscriber struct {
	events chan realtime.Event
	calls  *[]string
	closed bool
}

func (s *orderedSubscriber) Subscribe(context.Context, uuid.UUID) (*realtime.Subscription, error) {
	*s.calls = append(*s.calls, "subscribe")
	return realtime.NewSubscription(s.events, func() error {
		s.closed = true
		return nil
	}), nil
}

type tracingOrders struct {
	stubOrders
	calls *[]string
}

func (t *tracingOrders) ListForCustomer(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	*t.calls = append(*t.calls, "snapshot")
	return t.stubOrders.ListForCustomer(ctx, actor)
}

type viewFixture struct {
	view   *CustomerView
	actor  auth.Actor
	events chan realtime.Event
	notes  *stubNotifications
	sub    *orderedSubscriber
	calls  []string
}

func newViewFixture(t *testing.T) *viewFixture {
	t.Helper()
	actor := auth.Actor{UserID: uuid.New(), Role: enums.ProfileRoleCustomer}
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	f := &viewFixture{actor: actor, events: make(chan realtime.Event, 8)}
	orders := &tracingOrders{
		stubOrders: stubOrders{rows: []models.Order{
			{ID: 42, CustomerID: actor.UserID, Status: enums.OrderStatusAccepted, Version: 2, CreatedAt: created},
		}},
		calls: &f.calls,
	}
	f.notes = &stubNotifications{rows: []models.Notification{
		{ID: 7, UserID: actor.UserID, Title: "Order Status Updated", Read: false, CreatedAt: created},
		{ID: 6, UserID: actor.UserID, Title: "Order Status Updated", Read: true, CreatedAt: created},
	}}
	f.sub = &orderedSubscriber{events: f.events, calls: &f.calls}

	view, err := Open(context.Background(), Deps{Orders: orders, Notifications: f.notes, Live: f.sub}, actor)
	require.NoError(t, err)
	t.Cleanup(func() { _ = view.Close() })
	f.view = view
	return f
}

func (f *viewFixture) orderEvent(id int64, status enums.OrderStatus, version int) realtime.Event {
	return realtime.Event{
		ID:   uuid.NewString(),
		Type: enums.EventOrderUpdated,
		Order: &payloads.OrderSnapshot{
			ID:         id,
			CustomerID: f.actor.UserID,
			Status:     status,
			Version:    version,
			CreatedAt:  time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC),
		},
	}
}

func TestOpenSubscribesBeforeSnapshot(t *testing.T) {
	f := newViewFixture(t)
	require.Equal(t, []string{"subscribe", "snapshot"}, f.calls)

	snap := f.view.Snapshot()
	require.Len(t, snap.Orders, 1)
	require.Len(t, snap.Notifications, 2)
	require.Equal(t, 1, snap.UnreadCount)
}

func TestOpenRequiresAuthenticatedActor(t *testing.T) {
	_, err := Open(context.Background(), Deps{}, auth.Actor{})
	require.Error(t, err)
}

func TestOpenClosesSubscriptionWhenSnapshotFails(t *testing.T) {
	var calls []string
	sub := &orderedSubscriber{events: make(chan realtime.Event), calls: &calls}
	_, err := Open(context.Background(), Deps{
		Orders:        &stubOrders{err: errors.New("db down")},
		Notifications: &stubNotifications{},
		Live:          sub,
	}, auth.Actor{UserID: uuid.New(), Role: enums.ProfileRoleCustomer})
	require.Error(t, err)
	require.True(t, sub.closed)
}

func TestApplyOrderIsIdempotentAndNeverRegresses(t *testing.T) {
	f := newViewFixture(t)

	require.True(t, f.view.Apply(f.orderEvent(42, enums.OrderStatusPreparing, 3)))
	require.False(t, f.view.Apply(f.orderEvent(42, enums.OrderStatusPreparing, 3)))
	require.False(t, f.view.Apply(f.orderEvent(42, enums.OrderStatusAccepted, 2)))

	row, ok := f.view.Order(42)
	require.True(t, ok)
	require.Equal(t, enums.OrderStatusPreparing, row.Status)
	require.Equal(t, 3, row.Version)
}

func TestApplyNewOrderSortsNewestFirst(t *testing.T) {
	f := newViewFixture(t)

	require.True(t, f.view.Apply(f.orderEvent(43, enums.OrderStatusPending, 1)))
	snap := f.view.Snapshot()
	require.Len(t, snap.Orders, 2)
	require.Equal(t, int64(43), snap.Orders[0].ID)
}

func TestApplyIgnoresOtherCustomers(t *testing.T) {
	f := newViewFixture(t)
	event := f.orderEvent(99, enums.OrderStatusPending, 1)
	event.Order.CustomerID = uuid.New()
	require.False(t, f.view.Apply(event))
}

func TestApplyNotificationDedupesByID(t *testing.T) {
	f := newViewFixture(t)
	fresh := realtime.Event{Type: enums.EventNotificationCreated, Notification: &payloads.NotificationSnapshot{ID: 8, UserID: f.actor.UserID}}

	require.True(t, f.view.Apply(fresh))
	require.False(t, f.view.Apply(fresh))
	require.False(t, f.view.Apply(realtime.Event{Notification: &payloads.NotificationSnapshot{ID: 7, UserID: f.actor.UserID}}))

	snap := f.view.Snapshot()
	require.Len(t, snap.Notifications, 3)
	require.Equal(t, int64(8), snap.Notifications[0].ID)
	require.Equal(t, 2, snap.UnreadCount)
}

func (f *viewFixture) readEvent(id int64, at time.Time) realtime.Event {
	return realtime.Event{
		ID:   uuid.NewString(),
		Type: enums.EventNotificationsRead,
		Read: &payloads.NotificationsReadEvent{UserID: f.actor.UserID, NotificationID: id, ReadAt: at},
	}
}

func TestApplyReadDropsUnreadCount(t *testing.T) {
	f := newViewFixture(t)
	require.Equal(t, 1, f.view.UnreadCount())

	require.True(t, f.view.Apply(f.readEvent(7, time.Now())))
	require.Equal(t, 0, f.view.UnreadCount())
	require.False(t, f.view.Apply(f.readEvent(7, time.Now())), "already read")
	require.False(t, f.view.Apply(f.readEvent(6, time.Now())), "6 was read in the snapshot")

	stranger := f.readEvent(7, time.Now())
	stranger.Read.UserID = uuid.New()
	require.False(t, f.view.Apply(stranger))
}

func TestApplyReadBeforeNotificationArrives(t *testing.T) {
	f := newViewFixture(t)

	require.False(t, f.view.Apply(f.readEvent(9, time.Now())))
	require.True(t, f.view.Apply(realtime.Event{Notification: &payloads.NotificationSnapshot{ID: 9, UserID: f.actor.UserID}}))
	require.Equal(t, 1, f.view.UnreadCount(), "only #7 is still unread")
}

func TestApplyReadAllCoversOlderNotifications(t *testing.T) {
	f := newViewFixture(t)
	readAt := time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)
	require.True(t, f.view.Apply(realtime.Event{Notification: &payloads.NotificationSnapshot{ID: 8, UserID: f.actor.UserID, CreatedAt: readAt.Add(-time.Minute)}}))
	require.Equal(t, 2, f.view.UnreadCount())

	require.True(t, f.view.Apply(f.readEvent(0, readAt)))
	require.Equal(t, 0, f.view.UnreadCount())

	// created before the mark-all but delivered after it
	require.True(t, f.view.Apply(realtime.Event{Notification: &payloads.NotificationSnapshot{ID: 5, UserID: f.actor.UserID, CreatedAt: readAt.Add(-time.Hour)}}))
	require.Equal(t, 0, f.view.UnreadCount())
	require.True(t, f.view.Apply(realtime.Event{Notification: &payloads.NotificationSnapshot{ID: 10, UserID: f.actor.UserID, CreatedAt: readAt.Add(time.Minute)}}))
	require.Equal(t, 1, f.view.UnreadCount())
}

func TestRunEmitsUnreadCountAfterRead(t *testing.T) {
	f := newViewFixture(t)

	f.events <- f.readEvent(7, time.Now())
	f.events <- f.orderEvent(42, enums.OrderStatusPreparing, 3)
	close(f.events)

	var changes []Change
	require.NoError(t, f.view.Run(context.Background(), func(c Change) error {
		changes = append(changes, c)
		return nil
	}))
	require.Len(t, changes, 2)
	require.Equal(t, enums.EventNotificationsRead, changes[0].Event.Type)
	require.Equal(t, 0, changes[0].UnreadCount)
	require.Equal(t, 0, changes[1].UnreadCount)
}

func TestRunEmitsEffectiveChanges(t *testing.T) {
	f := newViewFixture(t)

	f.events <- f.orderEvent(42, enums.OrderStatusPreparing, 3)
	f.events <- f.orderEvent(42, enums.OrderStatusPreparing, 3)
	f.events <- realtime.Event{Type: enums.EventNotificationCreated, Notification: &payloads.NotificationSnapshot{ID: 8, UserID: f.actor.UserID}}
	close(f.events)

	var changes []Change
	err := f.view.Run(context.Background(), func(c Change) error {
		changes = append(changes, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t, enums.EventOrderUpdated, changes[0].Event.Type)
	require.Equal(t, 1, changes[0].UnreadCount)
	require.Equal(t, 2, changes[1].UnreadCount)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newViewFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.view.Run(ctx, func(Change) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenHonoursNotificationLimit(t *testing.T) {
	actor := auth.Actor{UserID: uuid.New(), Role: enums.ProfileRoleCustomer}
	var calls []string
	notes := &stubNotifications{rows: []models.Notification{
		{ID: 3, UserID: actor.UserID},
		{ID: 2, UserID: actor.UserID},
		{ID: 1, UserID: actor.UserID},
	}}
	view, err := Open(context.Background(), Deps{
		Orders:            &stubOrders{},
		Notifications:     notes,
		Live:              &orderedSubscriber{events: make(chan realtime.Event), calls: &calls},
		NotificationLimit: 2,
	}, actor)
	require.NoError(t, err)
	defer view.Close()

	require.Len(t, view.Snapshot().Notifications, 2)
}
