package controllers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/api/middleware"
	"github.com/angelmondragon/roha-backend/internal/notifications"
	"github.com/angelmondragon/roha-backend/internal/orderview"
	"github.com/angelmondragon/roha-backend/internal/realtime"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db"
	"github.com/angelmondragon/roha-backend/pkg/db/dbtest"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/outbox"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
)

type liveOrders struct{ rows []models.Order }

func (l liveOrders) ListForCustomer(context.Context, auth.Actor) ([]models.Order, error) {
	return l.rows, nil
}

type liveNotifications struct{}

func (liveNotifications) Recent(context.Context, auth.Actor, int) ([]models.Notification, error) {
	return nil, nil
}

type channelSubscriber struct {
	events chan realtime.Event
	closed bool
}

func (c *channelSubscriber) Subscribe(context.Context, uuid.UUID) (*realtime.Subscription, error) {
	return realtime.NewSubscription(c.events, func() error {
		c.closed = true
		return nil
	}), nil
}

func (c *channelSubscriber) SubscribeAdmin(context.Context) (*realtime.Subscription, error) {
	return c.Subscribe(context.Background(), uuid.Nil)
}

func TestCustomerLiveStreamsSnapshotThenChanges(t *testing.T) {
	actor := customerActor()
	now := time.Now().UTC()
	held := models.Order{ID: 42, CustomerID: actor.UserID, Status: enums.OrderStatusPending, Version: 1, CreatedAt: now}

	accepted := payloads.OrderSnapshotFrom(held)
	accepted.Status = enums.OrderStatusAccepted
	accepted.Version = 2
	stale := payloads.OrderSnapshotFrom(held)

	sub := &channelSubscriber{events: make(chan realtime.Event, 3)}
	sub.events <- realtime.Event{ID: "evt-stale", Type: enums.EventOrderUpdated, Order: &stale}
	sub.events <- realtime.Event{ID: "evt-1", Type: enums.EventOrderUpdated, Order: &accepted, PreviousStatus: enums.OrderStatusPending}
	close(sub.events)

	deps := orderview.Deps{Orders: liveOrders{rows: []models.Order{held}}, Notifications: liveNotifications{}, Live: sub}
	resp := httptest.NewRecorder()
	CustomerLive(deps, time.Hour, testLogger)(resp, newRequest(http.MethodGet, "/api/v1/me/live", "", actor, nil))

	body := resp.Body.String()
	if resp.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
	snapshotAt := strings.Index(body, "event: snapshot")
	updateAt := strings.Index(body, "event: order_updated")
	if snapshotAt < 0 || updateAt < 0 || snapshotAt > updateAt {
		t.Fatalf("expected snapshot before order_updated frame:\n%s", body)
	}
	if strings.Contains(body, "id: evt-stale") {
		t.Fatalf("stale event must not be streamed:\n%s", body)
	}
	if !strings.Contains(body, `"unread_count":0`) {
		t.Fatalf("expected unread count in frames:\n%s", body)
	}
	if !sub.closed {
		t.Fatal("expected subscription to be closed when the stream ends")
	}
}

func TestCustomerLiveRequiresActor(t *testing.T) {
	sub := &channelSubscriber{events: make(chan realtime.Event)}
	deps := orderview.Deps{Orders: liveOrders{}, Notifications: liveNotifications{}, Live: sub}
	resp := httptest.NewRecorder()
	CustomerLive(deps, time.Hour, testLogger)(resp, newRequest(http.MethodGet, "/api/v1/me/live", "", auth.Anonymous(), nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAdminOrdersLiveForwardsEvents(t *testing.T) {
	snapshot := payloads.OrderSnapshot{ID: 9, Status: enums.OrderStatusPending, Version: 1}
	sub := &channelSubscriber{events: make(chan realtime.Event, 1)}
	sub.events <- realtime.Event{ID: "evt-9", Type: enums.EventOrderPlaced, Order: &snapshot}
	close(sub.events)

	resp := httptest.NewRecorder()
	AdminOrdersLive(sub, time.Hour, testLogger)(resp, newRequest(http.MethodGet, "/api/admin/v1/orders/live", "", adminActor(), nil))
	if !strings.Contains(resp.Body.String(), "event: order_placed") {
		t.Fatalf("expected order_placed frame:\n%s", resp.Body.String())
	}

	forbidden := httptest.NewRecorder()
	AdminOrdersLive(sub, time.Hour, testLogger)(forbidden, newRequest(http.MethodGet, "/api/admin/v1/orders/live", "", customerActor(), nil))
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", forbidden.Code)
	}
}

type sseFrame struct {
	event string
	data  string
}

func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var frame sseFrame
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if frame.event != "" {
				return frame
			}
		case strings.HasPrefix(line, "event: "):
			frame.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frame.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestCustomerLiveDropsUnreadAfterMarkRead(t *testing.T) {
	conn := dbtest.Open(t, &models.Notification{}, &models.OutboxEvent{})
	actor := customerActor()
	ctx := context.Background()

	repo := notifications.NewRepository(conn)
	note := &models.Notification{
		UserID:  actor.UserID,
		Title:   notifications.StatusUpdateTitle,
		Message: "Your order #42 has been accepted.",
		Type:    enums.NotificationTypeSuccess,
	}
	if err := repo.Create(ctx, note); err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	svc, err := notifications.NewService(repo, db.NewFromGorm(conn), outbox.NewService(outbox.NewRepository(conn), logger.Nop()))
	if err != nil {
		t.Fatalf("notification service: %v", err)
	}

	held := models.Order{ID: 42, CustomerID: actor.UserID, Status: enums.OrderStatusAccepted, Version: 2, CreatedAt: time.Now().UTC()}
	sub := &channelSubscriber{events: make(chan realtime.Event, 4)}
	deps := orderview.Deps{Orders: liveOrders{rows: []models.Order{held}}, Notifications: svc, Live: sub}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithActor(req.Context(), actor)))
		})
	})
	r.Get("/me/live", CustomerLive(deps, time.Hour, testLogger))
	r.Post("/me/notifications/{notificationId}/read", MarkNotificationRead(svc, testLogger))
	srv := httptest.NewServer(r)
	defer srv.Close()
	client := &http.Client{Timeout: 5 * time.Second}

	live, err := client.Get(srv.URL + "/me/live")
	if err != nil {
		t.Fatalf("open live stream: %v", err)
	}
	defer live.Body.Close()
	frames := bufio.NewReader(live.Body)

	snapshot := readFrame(t, frames)
	if snapshot.event != "snapshot" || !strings.Contains(snapshot.data, `"unread_count":1`) {
		t.Fatalf("expected snapshot with one unread notification, got %+v", snapshot)
	}

	marked, err := client.Post(srv.URL+"/me/notifications/"+strconv.FormatInt(note.ID, 10)+"/read", "application/json", nil)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	marked.Body.Close()
	if marked.StatusCode != http.StatusOK {
		t.Fatalf("mark read returned %d", marked.StatusCode)
	}

	// relay the committed row the way the outbox publisher does
	var rows []models.OutboxEvent
	if err := conn.Where("event_type = ?", enums.EventNotificationsRead).Find(&rows).Error; err != nil || len(rows) != 1 {
		t.Fatalf("expected one queued read event, got %d (%v)", len(rows), err)
	}
	resolved, err := registry.NewEventRegistry().Resolve(rows[0])
	if err != nil {
		t.Fatalf("resolve read event: %v", err)
	}
	readEvent, err := realtime.EventFrom(resolved)
	if err != nil {
		t.Fatalf("live event: %v", err)
	}
	sub.events <- readEvent

	preparing := payloads.OrderSnapshotFrom(held)
	preparing.Status = enums.OrderStatusPreparing
	preparing.Version = 3
	sub.events <- realtime.Event{ID: "evt-3", Type: enums.EventOrderUpdated, Order: &preparing}

	read := readFrame(t, frames)
	if read.event != string(enums.EventNotificationsRead) || !strings.Contains(read.data, `"unread_count":0`) {
		t.Fatalf("expected read frame with zero unread, got %+v", read)
	}
	next := readFrame(t, frames)
	if next.event != string(enums.EventOrderUpdated) || !strings.Contains(next.data, `"unread_count":0`) {
		t.Fatalf("unread badge went stale after mark-read: %+v", next)
	}
}
