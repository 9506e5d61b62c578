// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the commitment-relevant slice of a CoFlow account.
//
// NOTE:
//   - Group membership is not embedded on User.
//     Use the group_memberships collection to discover a user's groups and
//     schedule_entries to read their calendar.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserName   string             `bson:"user_name" json:"user_name"`
	UserNameCI string             `bson:"user_name_ci" json:"-"`
	Email      string             `bson:"email" json:"email"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Commitments is the denormalized per-user projection: the groups a user
// owns, has joined, or is waiting on, plus their schedule entries.
type Commitments struct {
	UserID        primitive.ObjectID   `json:"user_id"`
	CreatedGroups []primitive.ObjectID `json:"created_groups"`
	JoinedGroups  []primitive.ObjectID `json:"joined_groups"`
	PendingGroups []primitive.ObjectID `json:"pending_groups"`
	Schedule      []ScheduleEntry      `json:"schedule"`
}
