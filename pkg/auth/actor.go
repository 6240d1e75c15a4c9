package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// Actor is the explicit caller identity handed to every service call.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ProfileRole
}

// Anonymous returns the actor for unauthenticated callers.
func Anonymous() Actor {
	return Actor{}
}

func NewActor(userID uuid.UUID, role enums.ProfileRole) Actor {
	return Actor{UserID: userID, Role: role}
}

func (a Actor) IsAuthenticated() bool {
	return a.UserID != uuid.Nil
}

func (a Actor) IsAdmin() bool {
	return a.IsAuthenticated() && a.Role == enums.ProfileRoleAdmin
}

func (a Actor) CanTransitionOrders() bool {
	return a.IsAdmin()
}

func (a Actor) CanEditMenu() bool {
	return a.IsAdmin()
}

func (a Actor) CanManageUsers() bool {
	return a.IsAdmin()
}

func (a Actor) CanViewAuditLog() bool {
	return a.IsAdmin()
}

// CanViewOrdersOf reports whether the actor may read orders owned by customerID.
func (a Actor) CanViewOrdersOf(customerID uuid.UUID) bool {
	if !a.IsAuthenticated() {
		return false
	}
	return a.IsAdmin() || a.UserID == customerID
}
