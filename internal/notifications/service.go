package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/outbox"
	"github.com/angelmondragon/roha-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/roha-backend/pkg/pagination"
)

// Service covers the customer-facing notification operations. Read state
// changes are queued as notifications_read events so open live views drop
// their unread badge.
type Service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	now    func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	Actor      auth.Actor
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items       []models.Notification `json:"items"`
	Cursor      string                `json:"cursor"`
	UnreadCount int64                 `json:"unread_count"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter) (*Service, error) {
	switch {
	case repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	case tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case emitter == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	return &Service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	userID, err := requireUser(params.Actor)
	if err != nil {
		return nil, err
	}

	query := listQuery{
		UserID:     userID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.Parse(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}

	cursor := ""
	if next != nil {
		cursor = next.String()
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	return &ListResult{
		Items:       rows,
		Cursor:      cursor,
		UnreadCount: unread,
	}, nil
}

// Recent returns the newest limit notifications for the actor.
func (s *Service) Recent(ctx context.Context, actor auth.Actor, limit int) ([]models.Notification, error) {
	result, err := s.List(ctx, ListParams{Actor: actor, Limit: limit})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// MarkRead flags a notification owned by the actor as read. Marking an
// already read notification succeeds.
func (s *Service) MarkRead(ctx context.Context, actor auth.Actor, notificationID int64) error {
	userID, err := requireUser(actor)
	if err != nil {
		return err
	}
	if notificationID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.WithTx(tx).MarkRead(ctx, userID, notificationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		}
		return s.emitRead(ctx, tx, actor, notificationID)
	})
}

// MarkAllRead flags every unread notification of the actor and returns how
// many changed.
func (s *Service) MarkAllRead(ctx context.Context, actor auth.Actor) (int64, error) {
	userID, err := requireUser(actor)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		count, err = s.repo.WithTx(tx).MarkAllRead(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
		}
		if count == 0 {
			return nil
		}
		return s.emitRead(ctx, tx, actor, 0)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// emitRead queues the read event; notificationID zero means all.
func (s *Service) emitRead(ctx context.Context, tx *gorm.DB, actor auth.Actor, notificationID int64) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationsRead,
		AggregateType: enums.AggregateUser,
		AggregateID:   actor.UserID.String(),
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data: payloads.NotificationsReadEvent{
			UserID:         actor.UserID,
			NotificationID: notificationID,
			ReadAt:         s.now(),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue read event")
	}
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, actor auth.Actor) (int64, error) {
	userID, err := requireUser(actor)
	if err != nil {
		return 0, err
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}

func requireUser(actor auth.Actor) (uuid.UUID, error) {
	if !actor.IsAuthenticated() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor.UserID, nil
}
