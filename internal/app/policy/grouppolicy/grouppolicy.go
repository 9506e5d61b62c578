// internal/app/policy/grouppolicy.go
package grouppolicy

import (
	"github.com/dalemusser/coflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is a viewer's relation to a group.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleMember  Role = "member"
	RolePending Role = "pending"
	RoleNone    Role = "none"
)

// ResolveRole classifies userID against a hydrated group.
// The owner is Members[0]; OwnerID is used when the roster is not hydrated.
// Rejected users resolve to RoleNone.
func ResolveRole(g models.Group, userID primitive.ObjectID) Role {
	if userID.IsZero() {
		return RoleNone
	}
	if len(g.Members) > 0 {
		if g.Members[0] == userID {
			return RoleOwner
		}
	} else if g.OwnerID == userID {
		return RoleOwner
	}
	for _, id := range g.Members {
		if id == userID {
			return RoleMember
		}
	}
	for _, id := range g.PendingMembers {
		if id == userID {
			return RolePending
		}
	}
	return RoleNone
}

// CanManageGroup reports whether userID may approve, reject, remove,
// update or delete g. Only the owner can.
func CanManageGroup(g models.Group, userID primitive.ObjectID) bool {
	return !userID.IsZero() && g.OwnerID == userID
}

// RoleFromStatus maps a membership status to the viewer role.
func RoleFromStatus(status string) Role {
	switch status {
	case models.MembershipOwner:
		return RoleOwner
	case models.MembershipMember:
		return RoleMember
	case models.MembershipPending:
		return RolePending
	}
	return RoleNone
}
