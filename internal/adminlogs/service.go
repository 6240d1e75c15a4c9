package adminlogs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
)

const (
	DefaultLimit = 100
	MaxLimit     = 100
)

// Entry is the input for a single audit record.
type Entry struct {
	AdminID    uuid.UUID
	Action     enums.AdminActionType
	TargetType enums.AdminTargetType
	TargetID   string
	Details    any
	IPAddress  string
	UserAgent  string
}

// Recorder appends audit entries, optionally inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

// LogView is an audit entry as returned to the admin console.
type LogView struct {
	ID          int64                 `json:"id"`
	AdminID     uuid.UUID             `json:"admin_id"`
	AdminName   string                `json:"admin_name"`
	ActionType  enums.AdminActionType `json:"action_type"`
	TargetType  enums.AdminTargetType `json:"target_type"`
	TargetID    string                `json:"target_id"`
	Details     json.RawMessage       `json:"details"`
	Description string                `json:"description"`
	IPAddress   *string               `json:"ip_address"`
	UserAgent   *string               `json:"user_agent"`
	CreatedAt   time.Time             `json:"created_at"`
}

// ListInput carries the admin console filters.
type ListInput struct {
	Actor  auth.Actor
	Action string
	Period string
	Limit  int
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("admin logs repository required")
	}
	return &Service{repo: repo, now: time.Now}, nil
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if entry.AdminID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	if !entry.Action.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown admin action %q", entry.Action)
	}
	if info, ok := clientFrom(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = info.ip
		}
		if entry.UserAgent == "" {
			entry.UserAgent = info.userAgent
		}
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode admin log details")
	}

	row := &models.AdminLog{
		AdminID:    entry.AdminID,
		ActionType: entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Details:    raw,
		IPAddress:  optional(entry.IPAddress),
		UserAgent:  optional(entry.UserAgent),
	}
	if err := s.repo.WithTx(tx).Insert(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert admin log")
	}
	return nil
}

// List returns the newest audit entries, default and max 100.
func (s *Service) List(ctx context.Context, input ListInput) ([]LogView, error) {
	if !input.Actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !input.Actor.CanViewAuditLog() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "audit log requires admin")
	}

	filter := ListFilter{Limit: normalizeLimit(input.Limit)}
	if input.Action != "" && input.Action != "all" {
		action, err := enums.ParseAdminActionType(input.Action)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action filter")
		}
		filter.Action = &action
	}
	since, err := periodStart(input.Period, s.now())
	if err != nil {
		return nil, err
	}
	filter.Since = since

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list admin logs")
	}

	views := make([]LogView, 0, len(rows))
	for _, row := range rows {
		name := "Unknown Admin"
		if row.AdminName != nil && *row.AdminName != "" {
			name = *row.AdminName
		}
		views = append(views, LogView{
			ID:          row.ID,
			AdminID:     row.AdminID,
			AdminName:   name,
			ActionType:  row.ActionType,
			TargetType:  row.TargetType,
			TargetID:    row.TargetID,
			Details:     row.Details,
			Description: Describe(row.ActionType, row.TargetType, row.TargetID, row.Details),
			IPAddress:   row.IPAddress,
			UserAgent:   row.UserAgent,
			CreatedAt:   row.CreatedAt,
		})
	}
	return views, nil
}

// Periods are the accepted values of ListInput.Period.
var Periods = []string{"all", "today", "week", "month"}

func periodStart(period string, now time.Time) (*time.Time, error) {
	var start time.Time
	switch period {
	case "", "all":
		return nil, nil
	case "today":
		y, m, d := now.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case "week":
		start = now.Add(-7 * 24 * time.Hour)
	case "month":
		start = now.Add(-30 * 24 * time.Hour)
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown period %q", period)
	}
	return &start, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// TargetID formats numeric ids the way they are stored in target_id.
func TargetID(id int64) string {
	return strconv.FormatInt(id, 10)
}
