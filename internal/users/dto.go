package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// ProfileDTO is the transport shape that omits credentials.
type ProfileDTO struct {
	ID        uuid.UUID           `json:"id"`
	Email     string              `json:"email"`
	FullName  string              `json:"full_name"`
	Phone     *string             `json:"phone,omitempty"`
	Role      enums.ProfileRole   `json:"role"`
	Status    enums.ProfileStatus `json:"status"`
	LastLogin *time.Time          `json:"last_login,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// CreateProfileDTO holds the data required to persist a new profile.
type CreateProfileDTO struct {
	Email        string
	PasswordHash string
	FullName     string
	Phone        *string
	Role         enums.ProfileRole
}

// ProfileUpdate lists the editable profile fields. Nil fields are untouched.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Email    *string `json:"email,omitempty"`
}

func FromModel(p *models.Profile) *ProfileDTO {
	if p == nil {
		return nil
	}
	return &ProfileDTO{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Role:      p.Role,
		Status:    p.Status,
		LastLogin: p.LastLogin,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (c CreateProfileDTO) ToModel() *models.Profile {
	role := c.Role
	if role == "" {
		role = enums.ProfileRoleCustomer
	}
	return &models.Profile{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(c.Email)),
		PasswordHash: c.PasswordHash,
		FullName:     strings.TrimSpace(c.FullName),
		Phone:        c.Phone,
		Role:         role,
		Status:       enums.ProfileStatusActive,
	}
}

// fields converts the update into column assignments.
func (u ProfileUpdate) fields() map[string]any {
	out := map[string]any{}
	if u.FullName != nil {
		out["full_name"] = strings.TrimSpace(*u.FullName)
	}
	if u.Phone != nil {
		phone := strings.TrimSpace(*u.Phone)
		if phone == "" {
			out["phone"] = nil
		} else {
			out["phone"] = phone
		}
	}
	if u.Email != nil {
		out["email"] = strings.ToLower(strings.TrimSpace(*u.Email))
	}
	return out
}
