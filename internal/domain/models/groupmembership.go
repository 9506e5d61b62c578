// internal/domain/models/groupmembership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership statuses. Exactly one row exists per (group_id, user_id), so a
// user can never be in two of these sets for the same group.
const (
	MembershipOwner    = "owner"
	MembershipMember   = "member"
	MembershipPending  = "pending"
	MembershipRejected = "rejected"
)

// GroupMembership is the authoritative join between users and groups.
// Leaving, removal and cancellation delete the row; rejection keeps it.
type GroupMembership struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GroupID   primitive.ObjectID `bson:"group_id" json:"group_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Status    string             `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Active reports whether the membership commits the user to the meeting.
func (m GroupMembership) Active() bool {
	return m.Status == MembershipOwner || m.Status == MembershipMember
}
