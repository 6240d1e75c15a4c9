package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/users"
	pkgAuth "github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/auth/session"
	"github.com/angelmondragon/roha-backend/pkg/config"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/security"
)

var testJWTConfig = config.JWTConfig{
	Secret:                 "secret",
	Issuer:                 "roha",
	ExpirationMinutes:      30,
	RefreshTokenTTLMinutes: 600,
}

func testSigner(t *testing.T) *pkgAuth.Signer {
	t.Helper()
	s, err := pkgAuth.NewSigner(testJWTConfig)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func TestServiceLoginMintsRoleClaim(t *testing.T) {
	password := "injera-42"
	profile := &models.Profile{
		ID:           uuid.New(),
		Email:        "admin@roha.et",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.ProfileRoleAdmin,
		Status:       enums.ProfileStatusActive,
	}
	svc, sessions := buildTestService(t, profile)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: " Admin@Roha.et ", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := testSigner(t).Verify(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.ProfileRoleAdmin {
		t.Fatalf("expected admin role claim, got %s", claims.Role)
	}
	if resp.RefreshToken != "refresh-1" {
		t.Fatalf("expected refresh token from session manager, got %q", resp.RefreshToken)
	}
	if _, ok := sessions.records[claims.ID]; !ok {
		t.Fatalf("expected session stored under jti %s", claims.ID)
	}
	if resp.User.LastLogin == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestServiceLoginRejectsInactiveAndWrongPassword(t *testing.T) {
	profile := &models.Profile{
		ID:           uuid.New(),
		Email:        "abebe@example.com",
		PasswordHash: mustHashPassword(t, "correct-horse"),
		Role:         enums.ProfileRoleCustomer,
		Status:       enums.ProfileStatusSuspended,
	}
	svc, _ := buildTestService(t, profile)

	_, err := svc.Login(context.Background(), LoginRequest{Email: profile.Email, Password: "correct-horse"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for suspended profile, got %v", err)
	}

	profile.Status = enums.ProfileStatusActive
	_, err = svc.Login(context.Background(), LoginRequest{Email: profile.Email, Password: "wrong"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}

	_, err = svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "x"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
}

func TestServiceLoginUpgradesLegacyHash(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("doro-wat"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	profile := &models.Profile{
		ID:           uuid.New(),
		Email:        "imported@roha.et",
		PasswordHash: string(legacy),
		Role:         enums.ProfileRoleCustomer,
		Status:       enums.ProfileStatusActive,
	}
	svc, _ := buildTestService(t, profile)

	if _, err := svc.Login(context.Background(), LoginRequest{Email: profile.Email, Password: "doro-wat"}); err != nil {
		t.Fatalf("login with legacy hash: %v", err)
	}
	if !strings.HasPrefix(profile.PasswordHash, "$argon2id$") {
		t.Fatalf("expected hash upgraded to argon2id, got %q", profile.PasswordHash)
	}
	ok, err := security.VerifyPassword("doro-wat", profile.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("upgraded hash should still verify, ok=%v err=%v", ok, err)
	}
}

func TestServiceRegisterCreatesCustomer(t *testing.T) {
	svc, _ := buildTestService(t)

	resp, err := svc.Register(context.Background(), RegisterRequest{
		FullName: "Abebe Kebede",
		Email:    "Abebe@Example.com",
		Password: "berbere",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.User.Role != enums.ProfileRoleCustomer {
		t.Fatalf("expected customer role, got %s", resp.User.Role)
	}
	if resp.User.Email != "abebe@example.com" {
		t.Fatalf("expected normalised email, got %s", resp.User.Email)
	}

	_, err = svc.Register(context.Background(), RegisterRequest{FullName: "Dup", Email: "abebe@example.com", Password: "berbere"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	_, err = svc.Register(context.Background(), RegisterRequest{FullName: "Short", Email: "s@example.com", Password: "abc"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
}

func TestServiceRefreshRotatesSession(t *testing.T) {
	password := "tibs-and-tej"
	profile := &models.Profile{
		ID:           uuid.New(),
		Email:        "abebe@example.com",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.ProfileRoleCustomer,
		Status:       enums.ProfileStatusActive,
	}
	svc, sessions := buildTestService(t, profile)

	login, err := svc.Login(context.Background(), LoginRequest{Email: profile.Email, Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	oldClaims, _ := testSigner(t).Verify(login.AccessToken)

	// promoted while signed in
	profile.Role = enums.ProfileRoleAdmin

	refreshed, err := svc.Refresh(context.Background(), RefreshRequest{AccessToken: login.AccessToken, RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := testSigner(t).Verify(refreshed.AccessToken)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if claims.Role != enums.ProfileRoleAdmin {
		t.Fatalf("expected refreshed token to carry current role, got %s", claims.Role)
	}
	if _, ok := sessions.records[oldClaims.ID]; ok {
		t.Fatalf("expected old session to be removed")
	}

	_, err = svc.Refresh(context.Background(), RefreshRequest{AccessToken: login.AccessToken, RefreshToken: login.RefreshToken})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected replayed refresh to fail, got %v", err)
	}
}

func TestServiceRefreshStoreFailureIsDependency(t *testing.T) {
	password := "shiro-wat"
	profile := &models.Profile{
		ID:           uuid.New(),
		Email:        "hana@example.com",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.ProfileRoleCustomer,
		Status:       enums.ProfileStatusActive,
	}
	svc, sessions := buildTestService(t, profile)
	login, err := svc.Login(context.Background(), LoginRequest{Email: profile.Email, Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	sessions.rotateErr = errors.New("redis: connection refused")
	_, err = svc.Refresh(context.Background(), RefreshRequest{AccessToken: login.AccessToken, RefreshToken: login.RefreshToken})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error when the session store fails, got %v", err)
	}
}

func TestServiceLogoutRevokes(t *testing.T) {
	svc, sessions := buildTestService(t)
	sessions.records["jti-1"] = sessionRecord{userID: uuid.New(), token: "t"}

	if err := svc.Logout(context.Background(), "jti-1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := sessions.records["jti-1"]; ok {
		t.Fatalf("expected session revoked")
	}
	if err := svc.Logout(context.Background(), " "); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for blank jti, got %v", err)
	}
}

func buildTestService(t *testing.T, profiles ...*models.Profile) (*Service, *stubSessionManager) {
	t.Helper()
	repo := &stubUserRepo{byEmail: map[string]*models.Profile{}}
	for _, p := range profiles {
		repo.byEmail[p.Email] = p
	}
	sessions := &stubSessionManager{records: map[string]sessionRecord{}}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		Tokens:         testSigner(t),
		PasswordConfig: config.PasswordConfig{MinLength: 6},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, sessions
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubUserRepo struct {
	byEmail map[string]*models.Profile
}

func (s *stubUserRepo) Create(_ context.Context, dto users.CreateProfileDTO) (*models.Profile, error) {
	profile := dto.ToModel()
	s.byEmail[profile.Email] = profile
	return profile, nil
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.Profile, error) {
	if p, ok := s.byEmail[email]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	for _, p := range s.byEmail {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	for _, p := range s.byEmail {
		if p.ID == id {
			p.LastLogin = &at
		}
	}
	return nil
}

func (s *stubUserRepo) Update(_ context.Context, id uuid.UUID, fields map[string]any) error {
	for _, p := range s.byEmail {
		if p.ID != id {
			continue
		}
		if hash, ok := fields["password_hash"].(string); ok {
			p.PasswordHash = hash
		}
		return nil
	}
	return gorm.ErrRecordNotFound
}

type sessionRecord struct {
	userID uuid.UUID
	token  string
}

type stubSessionManager struct {
	records   map[string]sessionRecord
	issued    int
	rotateErr error
}

func (s *stubSessionManager) next() string {
	s.issued++
	return "refresh-" + string(rune('0'+s.issued))
}

func (s *stubSessionManager) Generate(_ context.Context, userID uuid.UUID, accessID string) (string, error) {
	token := s.next()
	s.records[accessID] = sessionRecord{userID: userID, token: token}
	return token, nil
}

func (s *stubSessionManager) Rotate(_ context.Context, oldAccessID, provided string) (session.Rotation, error) {
	if s.rotateErr != nil {
		return session.Rotation{}, s.rotateErr
	}
	rec, ok := s.records[oldAccessID]
	if !ok || rec.token != provided {
		return session.Rotation{}, session.ErrInvalidRefreshToken
	}
	delete(s.records, oldAccessID)
	next := session.Rotation{AccessID: session.NewAccessID(), RefreshToken: s.next(), UserID: rec.userID}
	s.records[next.AccessID] = sessionRecord{userID: rec.userID, token: next.RefreshToken}
	return next, nil
}

func (s *stubSessionManager) Revoke(_ context.Context, accessID string) error {
	if accessID == "" {
		return errors.New("access id required")
	}
	delete(s.records, accessID)
	return nil
}
