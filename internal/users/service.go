package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/adminlogs"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/security"
)

// TempPasswordLength is the size of passwords issued by ResetPassword.
const TempPasswordLength = 12

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SessionRevoker drops every live session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID uuid.UUID) error
}

// ServiceParams bundles the dependencies of the profile service.
type ServiceParams struct {
	Repo     *Repository
	Tx       txRunner
	Audit    adminlogs.Recorder
	Password config.PasswordConfig
	// Sessions may be nil where no tokens are issued, as in the seed command.
	Sessions SessionRevoker
}

// Service manages customer self-service profiles and admin user management.
type Service struct {
	repo     *Repository
	tx       txRunner
	audit    adminlogs.Recorder
	password config.PasswordConfig
	sessions SessionRevoker
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("admin log recorder required")
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		audit:    params.Audit,
		password: params.Password,
		sessions: params.Sessions,
	}, nil
}

// Me returns the caller's own profile.
func (s *Service) Me(ctx context.Context, actor auth.Actor) (*ProfileDTO, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	profile, err := s.load(ctx, s.repo, actor.UserID)
	if err != nil {
		return nil, err
	}
	return FromModel(profile), nil
}

// UpdateMe edits the caller's name and phone. Email changes are admin-only.
func (s *Service) UpdateMe(ctx context.Context, actor auth.Actor, update ProfileUpdate) (*ProfileDTO, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	update.Email = nil
	fields := update.fields()
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	if err := s.repo.Update(ctx, actor.UserID, fields); err != nil {
		return nil, mapNotFound(err, "update profile")
	}
	return s.Me(ctx, actor)
}

// List returns every profile for the admin user table.
func (s *Service) List(ctx context.Context, actor auth.Actor) ([]ProfileDTO, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	profiles, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list profiles")
	}
	out := make([]ProfileDTO, 0, len(profiles))
	for i := range profiles {
		out = append(out, *FromModel(&profiles[i]))
	}
	return out, nil
}

// CountCustomers feeds the dashboard.
func (s *Service) CountCustomers(ctx context.Context) (int64, error) {
	return s.repo.CountByRole(ctx, enums.ProfileRoleCustomer)
}

func (s *Service) SetStatus(ctx context.Context, actor auth.Actor, userID uuid.UUID, status enums.ProfileStatus) (*ProfileDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", status)
	}
	profile, err := s.adminUpdate(ctx, actor, userID, map[string]any{"status": status},
		enums.AdminActionUserStatusUpdate, map[string]any{"new_status": status})
	if err != nil {
		return nil, err
	}
	if status != enums.ProfileStatusActive {
		if err := s.revokeSessions(ctx, userID); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

func (s *Service) SetRole(ctx context.Context, actor auth.Actor, userID uuid.UUID, role enums.ProfileRole) (*ProfileDTO, error) {
	if !role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid role %q", role)
	}
	if actor.UserID == userID && role != enums.ProfileRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admins cannot demote themselves")
	}
	profile, err := s.adminUpdate(ctx, actor, userID, map[string]any{"role": role},
		enums.AdminActionUserRoleUpdate, map[string]any{"new_role": role})
	if err != nil {
		return nil, err
	}
	// access tokens carry the role, so the old ones must stop working
	if err := s.revokeSessions(ctx, userID); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor auth.Actor, userID uuid.UUID, update ProfileUpdate) (*ProfileDTO, error) {
	fields := update.fields()
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	updates := make(map[string]any, len(fields))
	for k, v := range fields {
		updates[k] = v
	}
	return s.adminUpdate(ctx, actor, userID, fields,
		enums.AdminActionUserProfileUpdate, map[string]any{"updates": updates})
}

// ResetPassword replaces a user's password with a generated one and returns
// it once so the admin can hand it over.
func (s *Service) ResetPassword(ctx context.Context, actor auth.Actor, userID uuid.UUID) (string, error) {
	if err := requireManager(actor); err != nil {
		return "", err
	}
	temp, err := security.GenerateTempPassword(TempPasswordLength)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate password")
	}
	hash, err := security.HashPassword(temp, s.password)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if _, err := s.adminUpdate(ctx, actor, userID, map[string]any{"password_hash": hash},
		enums.AdminActionPasswordReset, map[string]any{}); err != nil {
		return "", err
	}
	if err := s.revokeSessions(ctx, userID); err != nil {
		return "", err
	}
	return temp, nil
}

// EnsureAdmin creates an admin profile for email unless one already exists.
// An existing profile is never modified. Used by the seed command, which has
// no admin actor yet.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error) {
	if err := security.CheckPolicy(password, s.password); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	existing, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != enums.ProfileRoleAdmin {
			return false, pkgerrors.New(pkgerrors.CodeConflict, "email belongs to a non-admin profile")
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup admin")
	}
	hash, err := security.HashPassword(password, s.password)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if fullName == "" {
		fullName = "Administrator"
	}
	if _, err := s.repo.Create(ctx, CreateProfileDTO{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         enums.ProfileRoleAdmin,
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create admin")
	}
	return true, nil
}

func (s *Service) adminUpdate(
	ctx context.Context,
	actor auth.Actor,
	userID uuid.UUID,
	fields map[string]any,
	action enums.AdminActionType,
	details map[string]any,
) (*ProfileDTO, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var updated *models.Profile
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, userID, fields); err != nil {
			return mapNotFound(err, "update profile")
		}
		if err := s.audit.Record(ctx, tx, adminlogs.Entry{
			AdminID:    actor.UserID,
			Action:     action,
			TargetType: enums.AdminTargetUser,
			TargetID:   userID.String(),
			Details:    details,
		}); err != nil {
			return err
		}
		profile, err := s.load(ctx, repo, userID)
		if err != nil {
			return err
		}
		updated = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

// revokeSessions runs after the profile change commits. A failure is
// reported so the admin retries; the change itself stays.
func (s *Service) revokeSessions(ctx context.Context, userID uuid.UUID) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.RevokeUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}
	return nil
}

func (s *Service) load(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Profile, error) {
	profile, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "load profile")
	}
	return profile, nil
}

func requireManager(actor auth.Actor) error {
	if !actor.IsAuthenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.CanManageUsers() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "user management requires admin")
	}
	return nil
}

func mapNotFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
