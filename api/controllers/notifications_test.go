package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/roha-backend/internal/notifications"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
)

type testNotificationsService struct {
	markReadFn    func(ctx context.Context, actor auth.Actor, notificationID int64) error
	markAllReadFn func(ctx context.Context, actor auth.Actor) (int64, error)
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, actor auth.Actor, notificationID int64) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, actor, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, actor auth.Actor) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, actor)
	}
	return 0, nil
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	actor := customerActor()
	called := false
	svc := &testNotificationsService{
		markReadFn: func(_ context.Context, a auth.Actor, id int64) error {
			called = true
			if a.UserID != actor.UserID {
				t.Fatalf("unexpected actor %s", a.UserID)
			}
			if id != 7 {
				t.Fatalf("unexpected notification %d", id)
			}
			return nil
		},
	}

	resp := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/api/v1/me/notifications/7/read", "", actor, map[string]string{"notificationId": "7"})
	MarkNotificationRead(svc, testLogger)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data["read"] {
		t.Fatalf("expected read=true, got %v", envelope.Data)
	}
}

func TestMarkNotificationReadInvalidID(t *testing.T) {
	svc := &testNotificationsService{}
	resp := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/api/v1/me/notifications/abc/read", "", customerActor(), map[string]string{"notificationId": "abc"})
	MarkNotificationRead(svc, testLogger)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	svc := &testNotificationsService{
		markReadFn: func(context.Context, auth.Actor, int64) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	resp := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/api/v1/me/notifications/9/read", "", customerActor(), map[string]string{"notificationId": "9"})
	MarkNotificationRead(svc, testLogger)(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestListNotificationsParsesQuery(t *testing.T) {
	var captured notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			captured = params
			return &notifications.ListResult{UnreadCount: 3}, nil
		},
	}
	resp := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/api/v1/me/notifications?limit=5&cursor=abc&unread_only=true", "", customerActor(), nil)
	ListNotifications(svc, testLogger)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if captured.Limit != 5 || captured.Cursor != "abc" || !captured.UnreadOnly {
		t.Fatalf("unexpected params %+v", captured)
	}
}

func TestListNotificationsRejectsBadLimit(t *testing.T) {
	resp := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/api/v1/me/notifications?limit=-1", "", customerActor(), nil)
	ListNotifications(&testNotificationsService{}, testLogger)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := &testNotificationsService{
		markAllReadFn: func(context.Context, auth.Actor) (int64, error) { return 4, nil },
	}
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger)(resp, newRequest(http.MethodPost, "/api/v1/me/notifications/read-all", "", customerActor(), nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data["updated"] != 4 {
		t.Fatalf("expected 4 updated, got %v", envelope.Data)
	}
}
