package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduleEntry mirrors one active membership on the user's calendar.
// Exactly one entry exists per (user_id, group_id) while the user is the
// owner or a member, carrying the group's current date and times.
type ScheduleEntry struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	GroupID      primitive.ObjectID `bson:"group_id" json:"group_id"`
	MeetingDate  string             `bson:"meeting_date" json:"meeting_date"`
	StartTime    string             `bson:"start_time" json:"start_time"`
	EndTime      string             `bson:"end_time" json:"end_time"`
	ReminderSent bool               `bson:"reminder_sent" json:"reminder_sent"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// EntryFor builds the schedule entry a member of g should have.
func EntryFor(userID primitive.ObjectID, g Group) ScheduleEntry {
	return ScheduleEntry{
		UserID:      userID,
		GroupID:     g.ID,
		MeetingDate: g.MeetingDate,
		StartTime:   g.StartTime,
		EndTime:     g.EndTime,
	}
}
