package adminlogs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/dbtest"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
)

func newTestService(t *testing.T) (*Service, uuid.UUID) {
	t.Helper()
	conn := dbtest.Open(t, &models.Profile{}, &models.AdminLog{})
	adminID := uuid.New()
	require.NoError(t, conn.Create(&models.Profile{
		ID:           adminID,
		Email:        "admin@roha.et",
		PasswordHash: "x",
		FullName:     "Selam Admin",
		Role:         enums.ProfileRoleAdmin,
		Status:       enums.ProfileStatusActive,
	}).Error)

	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc, adminID
}

func TestRecordAndListNewestFirst(t *testing.T) {
	svc, adminID := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, nil, Entry{
		AdminID:    adminID,
		Action:     enums.AdminActionOrderStatusUpdate,
		TargetType: enums.AdminTargetOrder,
		TargetID:   TargetID(42),
		Details:    map[string]string{"old_status": "pending", "new_status": "accepted"},
	}))
	require.NoError(t, svc.Record(ctx, nil, Entry{
		AdminID:    adminID,
		Action:     enums.AdminActionUserRoleUpdate,
		TargetType: enums.AdminTargetUser,
		TargetID:   "u-1",
		Details:    map[string]string{"new_role": "admin"},
		IPAddress:  "10.0.0.1",
	}))

	logs, err := svc.List(ctx, ListInput{Actor: auth.NewActor(adminID, enums.ProfileRoleAdmin)})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, enums.AdminActionUserRoleUpdate, logs[0].ActionType)
	require.Equal(t, "Selam Admin", logs[0].AdminName)
	require.Equal(t, `Changed user role to "admin" for user u-1`, logs[0].Description)
	require.NotNil(t, logs[0].IPAddress)
	require.Equal(t, `Changed order #42 status from "pending" to "accepted"`, logs[1].Description)

	filtered, err := svc.List(ctx, ListInput{
		Actor:  auth.NewActor(adminID, enums.ProfileRoleAdmin),
		Action: string(enums.AdminActionOrderStatusUpdate),
		Limit:  500,
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestListRequiresAuditCapability(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), ListInput{Actor: auth.Anonymous()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.List(context.Background(), ListInput{Actor: auth.NewActor(uuid.New(), enums.ProfileRoleCustomer)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestListRejectsUnknownFilters(t *testing.T) {
	svc, adminID := newTestService(t)
	admin := auth.NewActor(adminID, enums.ProfileRoleAdmin)

	_, err := svc.List(context.Background(), ListInput{Actor: admin, Action: "drop_tables"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListInput{Actor: admin, Period: "decade"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRecordValidatesEntry(t *testing.T) {
	svc, adminID := newTestService(t)
	err := svc.Record(context.Background(), nil, Entry{Action: enums.AdminActionPasswordReset})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.Record(context.Background(), nil, Entry{AdminID: adminID, Action: "bogus"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	start, err := periodStart("today", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), *start)

	start, err = periodStart("week", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-7*24*time.Hour), *start)

	start, err = periodStart("all", now)
	require.NoError(t, err)
	require.Nil(t, start)
}

func TestDescribeFallback(t *testing.T) {
	got := Describe("custom_action", enums.AdminTargetOrder, "9", nil)
	require.Equal(t, "Performed custom_action on order 9", got)
}

func TestRecordFillsClientFromContext(t *testing.T) {
	svc, adminID := newTestService(t)
	ctx := WithClient(context.Background(), "196.188.1.10", "Mozilla/5.0")

	require.NoError(t, svc.Record(ctx, nil, Entry{
		AdminID:    adminID,
		Action:     enums.AdminActionContactInfoUpdate,
		TargetType: enums.AdminTargetContactInfo,
		TargetID:   "1",
	}))

	logs, err := svc.List(ctx, ListInput{Actor: auth.NewActor(adminID, enums.ProfileRoleAdmin)})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "196.188.1.10", *logs[0].IPAddress)
	require.Equal(t, "Mozilla/5.0", *logs[0].UserAgent)
	require.Equal(t, "Updated restaurant contact information", logs[0].Description)
}
