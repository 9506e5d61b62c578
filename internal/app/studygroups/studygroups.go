// internal/app/studygroups/studygroups.go
//
// Package studygroups owns the study-group lifecycle (Manager) and the
// membership admission workflow (Workflow).
//
// Both validate completely before writing and run every cross-collection
// write sequence through a Transactor. Without transaction support the same
// ordered writes run directly; a failure after the first committed step is
// compensated where possible and otherwise returned as an
// *apperr.PartialWriteError, logged, and recorded as a consistency repair
// candidate.
package studygroups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/coflow/internal/app/store/audit"
	"github.com/dalemusser/coflow/internal/app/system/apperr"
	"github.com/dalemusser/coflow/internal/app/system/auditlog"
	"github.com/dalemusser/coflow/internal/app/system/timeslot"
	"github.com/dalemusser/coflow/internal/app/system/timezones"
	"github.com/dalemusser/coflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// GroupRepository persists groups. GetByID returns mongo.ErrNoDocuments
// when the group does not exist.
type GroupRepository interface {
	Create(ctx context.Context, g models.Group) (models.Group, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
	Find(ctx context.Context, f models.GroupFilter) ([]models.Group, error)
	Update(ctx context.Context, id primitive.ObjectID, u models.GroupUpdate) (models.Group, error)
	AddMember(ctx context.Context, id primitive.ObjectID) (bool, error)
	RemoveMember(ctx context.Context, id primitive.ObjectID) (bool, error)
	SetMemberCount(ctx context.Context, id primitive.ObjectID, n int) error
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
}

// MembershipIndex persists (group, user) relations.
type MembershipIndex interface {
	Insert(ctx context.Context, m models.GroupMembership) (models.GroupMembership, error)
	Get(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error)
	Restore(ctx context.Context, m models.GroupMembership) error
	Transition(ctx context.Context, groupID, userID primitive.ObjectID, from, to string) (bool, error)
	Remove(ctx context.Context, groupID, userID primitive.ObjectID, status string) (bool, error)
	ListByGroup(ctx context.Context, groupID primitive.ObjectID, statuses ...string) ([]models.GroupMembership, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID, statuses ...string) ([]models.GroupMembership, error)
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
	CountActive(ctx context.Context, groupID primitive.ObjectID) (int, error)
}

// ScheduleIndex persists the per-user schedule projection.
type ScheduleIndex interface {
	Upsert(ctx context.Context, e models.ScheduleEntry) error
	Remove(ctx context.Context, userID, groupID primitive.ObjectID) (bool, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID, from, to string) ([]models.ScheduleEntry, error)
	ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.ScheduleEntry, error)
	Reschedule(ctx context.Context, groupID primitive.ObjectID, date, start, end string) (int64, error)
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
}

// UserDirectory resolves users. GetByID returns mongo.ErrNoDocuments when
// the user does not exist.
type UserDirectory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

// RepairLog lists recorded consistency-repair candidates.
type RepairLog interface {
	RepairCandidates(ctx context.Context, since time.Time, limit int64) ([]audit.Event, error)
}

// Transactor runs fn as one unit. *txn.Runner implements it for MongoDB.
type Transactor interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps wires the service to its collaborators.
type Deps struct {
	Groups      GroupRepository
	Memberships MembershipIndex
	Schedule    ScheduleIndex
	Users       UserDirectory
	Tx          Transactor

	Audit     *auditlog.Logger
	RepairLog RepairLog
	Log       *zap.Logger

	// Now defaults to time.Now; Location (the single configured zone)
	// defaults to time.Local. Together they decide what "today" is.
	Now      func() time.Time
	Location *time.Location

	// RecheckConflictsOnApproval makes ApproveUser re-run the schedule
	// conflict check that RequestToJoin already ran.
	RecheckConflictsOnApproval bool
}

type service struct {
	Deps
}

func newService(d Deps) *service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return &service{Deps: d}
}

func (s *service) today() string {
	return timezones.Today(s.Location, s.Now())
}

// Result describes the outcome of a membership transition.
type Result struct {
	GroupID primitive.ObjectID `json:"group_id"`
	UserID  primitive.ObjectID `json:"user_id"`
	// Status is the user's membership status afterwards; "" means none.
	Status  string `json:"status"`
	Changed bool   `json:"changed"`
}

// DeleteResult reports what a group deletion removed.
type DeleteResult struct {
	GroupID         primitive.ObjectID `json:"group_id"`
	Memberships     int64              `json:"memberships"`
	ScheduleEntries int64              `json:"schedule_entries"`
}

// ScheduleConflictError reports that a user's existing commitment overlaps
// a meeting slot. It matches apperr.ErrConflict.
type ScheduleConflictError struct {
	UserID    primitive.ObjectID
	UserName  string
	GroupID   primitive.ObjectID // the clashing group
	GroupName string
	Slot      timeslot.Slot
}

func (e *ScheduleConflictError) Error() string {
	when := fmt.Sprintf("%s %s-%s", e.Slot.Date, timeslot.FormatClock(e.Slot.Start), timeslot.FormatClock(e.Slot.End))
	if e.UserName != "" {
		return fmt.Sprintf("%s has a schedule conflict with %q (%s)", e.UserName, e.GroupName, when)
	}
	return fmt.Sprintf("schedule conflict with %q (%s)", e.GroupName, when)
}

func (e *ScheduleConflictError) Is(target error) bool { return target == apperr.ErrConflict }

// getGroup loads a group, mapping a missing document to ErrNotFound.
func (s *service) getGroup(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	g, err := s.Groups.GetByID(ctx, id)
	if err != nil {
		return models.Group{}, apperr.FromStore(err, "load group", "group")
	}
	return g, nil
}

func (s *service) getUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "load user", "user")
	}
	return u, nil
}

// membershipOf returns the (group, user) membership, or ok=false when the
// pair has none.
func (s *service) membershipOf(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, bool, error) {
	m, err := s.Memberships.Get(ctx, groupID, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.GroupMembership{}, false, nil
	}
	if err != nil {
		return models.GroupMembership{}, false, fmt.Errorf("load membership: %w", err)
	}
	return m, true, nil
}

// hydrate fills the roster of g: the owner first, then members in approval
// order, then pending and rejected users.
func (s *service) hydrate(ctx context.Context, g models.Group) (models.Group, error) {
	rows, err := s.Memberships.ListByGroup(ctx, g.ID)
	if err != nil {
		return models.Group{}, fmt.Errorf("list memberships: %w", err)
	}
	g.Members = []primitive.ObjectID{g.OwnerID}
	g.PendingMembers = nil
	g.RejectedMembers = nil
	for _, m := range rows {
		switch m.Status {
		case models.MembershipMember:
			g.Members = append(g.Members, m.UserID)
		case models.MembershipPending:
			g.PendingMembers = append(g.PendingMembers, m.UserID)
		case models.MembershipRejected:
			g.RejectedMembers = append(g.RejectedMembers, m.UserID)
		}
	}
	return g, nil
}

// usersInOrder resolves ids to users, keeping the order of ids. Unknown
// ids are skipped.
func (s *service) usersInOrder(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	users, err := s.Users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *service) userName(ctx context.Context, id primitive.ObjectID) string {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil || u == nil {
		return id.Hex()
	}
	return u.UserName
}
