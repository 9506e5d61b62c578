package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/coflow/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// NewGroup returns a valid, unsaved study group owned by ownerID with the
// owner as its only member.
func NewGroup(ownerID primitive.ObjectID, date, start, end string) models.Group {
	return models.Group{
		ID:          primitive.NewObjectID(),
		GroupName:   "Midterm Review",
		Description: "Going over practice problems",
		Capacity:    5,
		Location:    "Library",
		Course:      "CS 115",
		MeetingDate: date,
		StartTime:   start,
		EndTime:     end,
		GroupType:   models.GroupTypeStudy,
		Tags:        []string{},
		OwnerID:     ownerID,
		MemberCount: 1,
	}
}

// Fixtures inserts test data directly, bypassing the services.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a user.
func (f *Fixtures) CreateUser(ctx context.Context, name, email string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:         primitive.NewObjectID(),
		UserName:   name,
		UserNameCI: text.Fold(name),
		Email:      email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateGroup inserts a group with its owner membership and the owner's
// schedule entry.
func (f *Fixtures) CreateGroup(ctx context.Context, ownerID primitive.ObjectID, date, start, end string) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	g := NewGroup(ownerID, date, start, end)
	g.GroupNameCI = text.Fold(g.GroupName)
	g.DescriptionCI = text.Fold(g.Description)
	g.CourseCI = text.Fold(g.Course)
	g.TagsCI = []string{}
	g.CreatedAt, g.UpdatedAt = now, now

	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	f.CreateMembership(ctx, g.ID, ownerID, models.MembershipOwner)
	f.CreateEntry(ctx, models.EntryFor(ownerID, g))
	return g
}

// CreateMembership inserts a (group, user) membership with status.
func (f *Fixtures) CreateMembership(ctx context.Context, groupID, userID primitive.ObjectID, status string) models.GroupMembership {
	f.t.Helper()

	now := time.Now().UTC()
	m := models.GroupMembership{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		UserID:    userID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("group_memberships").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test membership: %v", err)
	}
	return m
}

// CreateEntry inserts a schedule entry.
func (f *Fixtures) CreateEntry(ctx context.Context, e models.ScheduleEntry) models.ScheduleEntry {
	f.t.Helper()

	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if _, err := f.db.Collection("schedule_entries").InsertOne(ctx, e); err != nil {
		f.t.Fatalf("failed to create test schedule entry: %v", err)
	}
	return e
}
