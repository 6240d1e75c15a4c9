package adminlogs

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// Describe renders a one-line, human readable summary of an audit entry.
func Describe(action enums.AdminActionType, target enums.AdminTargetType, targetID string, raw json.RawMessage) string {
	var details map[string]any
	_ = json.Unmarshal(raw, &details)
	str := func(key string) string {
		if v, ok := details[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}

	switch action {
	case enums.AdminActionUserStatusUpdate:
		return fmt.Sprintf("Updated user status to %q for user %s", str("new_status"), targetID)
	case enums.AdminActionUserRoleUpdate:
		return fmt.Sprintf("Changed user role to %q for user %s", str("new_role"), targetID)
	case enums.AdminActionUserProfileUpdate:
		return fmt.Sprintf("Updated profile information for user %s", targetID)
	case enums.AdminActionOrderStatusUpdate:
		return fmt.Sprintf("Changed order #%s status from %q to %q", targetID, str("old_status"), str("new_status"))
	case enums.AdminActionPasswordReset:
		return fmt.Sprintf("Reset password for user %s", targetID)
	case enums.AdminActionContactInfoUpdate:
		return "Updated restaurant contact information"
	case enums.AdminActionMenuItemCreate:
		return fmt.Sprintf("Added menu item %q (#%s)", str("name"), targetID)
	case enums.AdminActionMenuItemUpdate:
		return fmt.Sprintf("Updated menu item #%s", targetID)
	case enums.AdminActionMenuItemDelete:
		return fmt.Sprintf("Removed menu item #%s", targetID)
	default:
		return fmt.Sprintf("Performed %s on %s %s", action, target, targetID)
	}
}
