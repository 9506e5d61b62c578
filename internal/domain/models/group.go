// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group types accepted for GroupType.
const (
	GroupTypeStudy   = "study-group"
	GroupTypeProject = "project-group"
)

// Capacity bounds (inclusive).
const (
	MinCapacity = 2
	MaxCapacity = 15
)

// Group is a single time-boxed study meeting with a bounded roster.
//
// NOTE:
//   - Membership is not embedded on Group. Owner, member, pending and rejected
//     relations live in the group_memberships collection (one row per user).
//   - OwnerID never changes for the lifetime of the group; it is Members[0]
//     once the roster has been hydrated.
//   - MemberCount and IsFull are maintained by conditional updates so that
//     IsFull == MemberCount >= Capacity holds after every write.
type Group struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	GroupName     string             `bson:"group_name" json:"group_name"`
	GroupNameCI   string             `bson:"group_name_ci" json:"-"`
	Description   string             `bson:"description" json:"description"`
	DescriptionCI string             `bson:"description_ci" json:"-"`
	Capacity      int                `bson:"capacity" json:"capacity"`
	Location      string             `bson:"location" json:"location"`
	Course        string             `bson:"course" json:"course"`
	CourseCI      string             `bson:"course_ci" json:"-"`

	MeetingDate string `bson:"meeting_date" json:"meeting_date"` // YYYY-MM-DD
	StartTime   string `bson:"start_time" json:"start_time"`     // HH:MM, 24h
	EndTime     string `bson:"end_time" json:"end_time"`         // HH:MM, 24h

	GroupType string   `bson:"group_type" json:"group_type"`
	Tags      []string `bson:"tags" json:"tags"`
	TagsCI    []string `bson:"tags_ci" json:"-"`

	OwnerID     primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	MemberCount int                `bson:"member_count" json:"member_count"`
	IsFull      bool               `bson:"is_full" json:"is_full"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`

	// Hydrated from group_memberships; never persisted on the group document.
	Members         []primitive.ObjectID `bson:"-" json:"members,omitempty"`
	PendingMembers  []primitive.ObjectID `bson:"-" json:"pending_members,omitempty"`
	RejectedMembers []primitive.ObjectID `bson:"-" json:"rejected_members,omitempty"`
}

// GroupUpdate lists the fields a group update may change.
// Nil pointers (and a nil Tags slice) leave the stored value unchanged.
type GroupUpdate struct {
	GroupName   *string
	Description *string
	Capacity    *int
	Location    *string
	Course      *string
	MeetingDate *string
	StartTime   *string
	EndTime     *string
	GroupType   *string
	Tags        []string
}

// Empty reports whether the update changes nothing.
func (u GroupUpdate) Empty() bool {
	return u.GroupName == nil && u.Description == nil && u.Capacity == nil &&
		u.Location == nil && u.Course == nil && u.MeetingDate == nil &&
		u.StartTime == nil && u.EndTime == nil && u.GroupType == nil && u.Tags == nil
}

// Sort fields accepted by GroupFilter.SortBy.
const (
	SortByMeetingDate = "meeting_date"
	SortByName        = "group_name_ci"
	SortByCapacity    = "capacity"
	SortByCreatedAt   = "created_at"
)

// GroupFilter selects groups for browse and search queries.
// Zero values mean "no constraint", except that full groups and groups
// meeting before Today are excluded unless IncludeFull / IncludePast is set.
type GroupFilter struct {
	IDs         []primitive.ObjectID
	Course      string
	GroupType   string
	Location    string
	MeetingDate string
	Tags        []string

	// Search is matched as a folded substring against name, course,
	// description and tags.
	Search string

	IncludeFull bool
	IncludePast bool
	Today       string // YYYY-MM-DD, lower bound when IncludePast is false

	SortBy   string
	SortDesc bool
}
