package orderview

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/internal/realtime"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
)

// RecentNotifications is how many notifications the snapshot loads by default.
const RecentNotifications = 20

type OrderSource interface {
	ListForCustomer(ctx context.Context, actor auth.Actor) ([]models.Order, error)
}

type NotificationSource interface {
	Recent(ctx context.Context, actor auth.Actor, limit int) ([]models.Notification, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, customerID uuid.UUID) (*realtime.Subscription, error)
}

// Deps wires a CustomerView to its pull and push sources.
type Deps struct {
	Orders        OrderSource
	Notifications NotificationSource
	Live          Subscriber
	// NotificationLimit caps the snapshot's notifications. Zero means RecentNotifications.
	NotificationLimit int
}

// Snapshot is the customer's current state.
type Snapshot struct {
	Orders        []payloads.OrderSnapshot        `json:"orders"`
	Notifications []payloads.NotificationSnapshot `json:"notifications"`
	UnreadCount   int                             `json:"unread_count"`
}

// Change is an applied live event plus the unread count after it.
type Change struct {
	Event       realtime.Event `json:"event"`
	UnreadCount int            `json:"unread_count"`
}

// CustomerView is a single reconciling store for one customer's orders and
// notifications. It subscribes before loading the snapshot so nothing
// committed in between is lost, and applies pushed rows idempotently. Read
// state arrives as notifications_read events, whoever wrote it.
type CustomerView struct {
	actor         auth.Actor
	notifications NotificationSource
	limit         int
	sub           *realtime.Subscription

	mu    sync.RWMutex
	order []payloads.OrderSnapshot
	notes []payloads.NotificationSnapshot
	// reads seen before the notification itself arrived
	readIDs   map[int64]bool
	readAllAt time.Time
}

// Open subscribes to the customer's live channels, then loads the snapshot.
func Open(ctx context.Context, deps Deps, actor auth.Actor) (*CustomerView, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if deps.Orders == nil || deps.Notifications == nil || deps.Live == nil {
		return nil, fmt.Errorf("customer view dependencies required")
	}

	sub, err := deps.Live.Subscribe(ctx, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to live updates")
	}

	limit := deps.NotificationLimit
	if limit <= 0 {
		limit = RecentNotifications
	}
	view := &CustomerView{
		actor:         actor,
		notifications: deps.Notifications,
		limit:         limit,
		sub:           sub,
		readIDs:       map[int64]bool{},
	}
	if err := view.Refresh(ctx, deps.Orders); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return view, nil
}

// Refresh replaces local state with the authoritative rows.
func (v *CustomerView) Refresh(ctx context.Context, orders OrderSource) error {
	rows, err := orders.ListForCustomer(ctx, v.actor)
	if err != nil {
		return err
	}
	recent, err := v.notifications.Recent(ctx, v.actor, v.limit)
	if err != nil {
		return err
	}

	snapshots := make([]payloads.OrderSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, payloads.OrderSnapshotFrom(row))
	}
	notes := make([]payloads.NotificationSnapshot, 0, len(recent))
	for _, n := range recent {
		notes = append(notes, payloads.NotificationSnapshotFrom(n))
	}

	v.mu.Lock()
	v.order = snapshots
	v.notes = notes
	v.mu.Unlock()
	return nil
}

// Apply folds one live event into the view. It reports false when the event
// was stale, a duplicate or addressed to someone else.
func (v *CustomerView) Apply(event realtime.Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case event.Order != nil:
		return v.applyOrder(*event.Order)
	case event.Notification != nil:
		return v.applyNotification(*event.Notification)
	case event.Read != nil:
		return v.applyRead(*event.Read)
	default:
		return false
	}
}

func (v *CustomerView) applyOrder(row payloads.OrderSnapshot) bool {
	if row.CustomerID != v.actor.UserID {
		return false
	}
	for i := range v.order {
		if v.order[i].ID != row.ID {
			continue
		}
		if v.order[i].Version >= row.Version {
			return false
		}
		v.order[i] = row
		return true
	}
	v.order = append(v.order, row)
	sort.SliceStable(v.order, func(i, j int) bool {
		if v.order[i].CreatedAt.Equal(v.order[j].CreatedAt) {
			return v.order[i].ID > v.order[j].ID
		}
		return v.order[i].CreatedAt.After(v.order[j].CreatedAt)
	})
	return true
}

func (v *CustomerView) applyNotification(n payloads.NotificationSnapshot) bool {
	if n.UserID != v.actor.UserID {
		return false
	}
	for _, held := range v.notes {
		if held.ID == n.ID {
			return false
		}
	}
	if v.readIDs[n.ID] || (!v.readAllAt.IsZero() && !n.CreatedAt.After(v.readAllAt)) {
		n.Read = true
	}
	v.notes = append([]payloads.NotificationSnapshot{n}, v.notes...)
	return true
}

// applyRead reports true only when a held notification flipped to read.
func (v *CustomerView) applyRead(read payloads.NotificationsReadEvent) bool {
	if read.UserID != v.actor.UserID {
		return false
	}
	if read.All() {
		if read.ReadAt.After(v.readAllAt) {
			v.readAllAt = read.ReadAt
		}
	} else {
		v.readIDs[read.NotificationID] = true
	}

	changed := false
	for i := range v.notes {
		n := &v.notes[i]
		if n.Read {
			continue
		}
		if read.All() && n.CreatedAt.After(read.ReadAt) {
			continue
		}
		if !read.All() && n.ID != read.NotificationID {
			continue
		}
		n.Read = true
		changed = true
	}
	return changed
}

// Run applies live events until ctx ends or the subscription closes, handing
// every effective change to emit.
func (v *CustomerView) Run(ctx context.Context, emit func(Change) error) error {
	events := v.sub.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !v.Apply(event) {
				continue
			}
			if err := emit(Change{Event: event, UnreadCount: v.UnreadCount()}); err != nil {
				return err
			}
		}
	}
}

func (v *CustomerView) UnreadCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return unread(v.notes)
}

func (v *CustomerView) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	orders := make([]payloads.OrderSnapshot, len(v.order))
	copy(orders, v.order)
	notes := make([]payloads.NotificationSnapshot, len(v.notes))
	copy(notes, v.notes)
	return Snapshot{Orders: orders, Notifications: notes, UnreadCount: unread(notes)}
}

// Order returns the held row for id.
func (v *CustomerView) Order(id int64) (payloads.OrderSnapshot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, row := range v.order {
		if row.ID == id {
			return row, true
		}
	}
	return payloads.OrderSnapshot{}, false
}

func (v *CustomerView) Close() error {
	return v.sub.Close()
}

func unread(notes []payloads.NotificationSnapshot) int {
	count := 0
	for _, n := range notes {
		if !n.Read {
			count++
		}
	}
	return count
}
