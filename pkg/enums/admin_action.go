package enums

import "fmt"

// AdminActionType names the audited admin operations stored in admin_logs.
type AdminActionType string

const (
	AdminActionOrderStatusUpdate AdminActionType = "order_status_update"
	AdminActionUserStatusUpdate  AdminActionType = "user_status_update"
	AdminActionUserRoleUpdate    AdminActionType = "user_role_update"
	AdminActionUserProfileUpdate AdminActionType = "user_profile_update"
	AdminActionPasswordReset     AdminActionType = "password_reset"
	AdminActionContactInfoUpdate AdminActionType = "contact_info_update"
	AdminActionMenuItemCreate    AdminActionType = "menu_item_create"
	AdminActionMenuItemUpdate    AdminActionType = "menu_item_update"
	AdminActionMenuItemDelete    AdminActionType = "menu_item_delete"
)

var validAdminActionTypes = []AdminActionType{
	AdminActionOrderStatusUpdate,
	AdminActionUserStatusUpdate,
	AdminActionUserRoleUpdate,
	AdminActionUserProfileUpdate,
	AdminActionPasswordReset,
	AdminActionContactInfoUpdate,
	AdminActionMenuItemCreate,
	AdminActionMenuItemUpdate,
	AdminActionMenuItemDelete,
}

func (a AdminActionType) IsValid() bool {
	for _, candidate := range validAdminActionTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

func ParseAdminActionType(value string) (AdminActionType, error) {
	for _, candidate := range validAdminActionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid admin action %q", value)
}

// AdminTargetType names what an audited admin action touched.
type AdminTargetType string

const (
	AdminTargetOrder       AdminTargetType = "order"
	AdminTargetUser        AdminTargetType = "user"
	AdminTargetMenuItem    AdminTargetType = "menu_item"
	AdminTargetContactInfo AdminTargetType = "contact_info"
)
