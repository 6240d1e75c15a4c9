package enums

import "fmt"

// ProfileRole maps to the profile_role enum.
type ProfileRole string

const (
	ProfileRoleAdmin    ProfileRole = "admin"
	ProfileRoleCustomer ProfileRole = "customer"
)

func (r ProfileRole) String() string {
	return string(r)
}

func (r ProfileRole) IsValid() bool {
	return r == ProfileRoleAdmin || r == ProfileRoleCustomer
}

func ParseProfileRole(value string) (ProfileRole, error) {
	role := ProfileRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid profile role %q", value)
	}
	return role, nil
}

// ProfileStatus maps to the profile_status enum.
type ProfileStatus string

const (
	ProfileStatusActive    ProfileStatus = "active"
	ProfileStatusInactive  ProfileStatus = "inactive"
	ProfileStatusSuspended ProfileStatus = "suspended"
)

var validProfileStatuses = []ProfileStatus{
	ProfileStatusActive,
	ProfileStatusInactive,
	ProfileStatusSuspended,
}

func (s ProfileStatus) String() string {
	return string(s)
}

func (s ProfileStatus) IsValid() bool {
	for _, candidate := range validProfileStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseProfileStatus(value string) (ProfileStatus, error) {
	for _, candidate := range validProfileStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid profile status %q", value)
}
