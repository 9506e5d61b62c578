// internal/app/studygroups/manager.go
package studygroups

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/coflow/internal/app/policy/grouppolicy"
	"github.com/dalemusser/coflow/internal/app/system/apperr"
	"github.com/dalemusser/coflow/internal/app/system/inputval"
	"github.com/dalemusser/coflow/internal/app/system/timeouts"
	"github.com/dalemusser/coflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Manager creates, updates, deletes and lists groups.
type Manager struct {
	*service
}

// NewManager returns a Manager using d.
func NewManager(d Deps) *Manager {
	return &Manager{service: newService(d)}
}

// GroupView is a group annotated with the viewer's role.
type GroupView struct {
	models.Group
	Role grouppolicy.Role `json:"role"`
}

// CreateGroup validates in, checks the founder's schedule, and stores the
// group with the founder as owner and only member.
func (m *Manager) CreateGroup(ctx context.Context, founderID primitive.ObjectID, in GroupInput) (models.Group, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), m.Log, "create group")
	defer cancel()

	in = in.clean()
	if err := in.validate(m.Now(), m.today(), true); err != nil {
		return models.Group{}, err
	}
	slot, err := groupSlot(models.Group{MeetingDate: in.MeetingDate, StartTime: in.StartTime, EndTime: in.EndTime})
	if err != nil {
		return models.Group{}, apperr.Validation("%s", err.Error())
	}
	if _, err := m.getUser(ctx, founderID); err != nil {
		return models.Group{}, err
	}
	if err := m.checkUser(ctx, founderID, slot, primitive.NilObjectID); err != nil {
		return models.Group{}, err
	}

	g := models.Group{
		ID:          primitive.NewObjectID(),
		GroupName:   in.GroupName,
		Description: in.Description,
		Capacity:    in.Capacity,
		Location:    in.Location,
		Course:      in.Course,
		MeetingDate: in.MeetingDate,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		GroupType:   in.GroupType,
		Tags:        in.Tags,
		OwnerID:     founderID,
		MemberCount: 1,
	}

	var created models.Group
	err = m.runWrites(ctx, "create_group", &g.ID, &founderID,
		step{
			name: "group.create",
			do: func(ctx context.Context) error {
				var err error
				created, err = m.Groups.Create(ctx, g)
				if err != nil {
					return fmt.Errorf("create group: %w", err)
				}
				return nil
			},
			undo: func(ctx context.Context) error {
				_, err := m.Groups.Delete(ctx, g.ID)
				return err
			},
		},
		step{
			name: "membership.owner",
			do: func(ctx context.Context) error {
				_, err := m.Memberships.Insert(ctx, models.GroupMembership{
					GroupID: g.ID, UserID: founderID, Status: models.MembershipOwner,
				})
				if err != nil {
					return fmt.Errorf("insert owner membership: %w", err)
				}
				return nil
			},
			undo: func(ctx context.Context) error {
				_, err := m.Memberships.Remove(ctx, g.ID, founderID, models.MembershipOwner)
				return err
			},
		},
		step{
			name: "schedule.upsert",
			do: func(ctx context.Context) error {
				if err := m.Schedule.Upsert(ctx, models.EntryFor(founderID, g)); err != nil {
					return fmt.Errorf("write schedule entry: %w", err)
				}
				return nil
			},
		},
	)
	if err != nil {
		return models.Group{}, err
	}

	m.Log.Info("group created",
		zap.String("group_id", g.ID.Hex()),
		zap.String("user_id", founderID.Hex()))
	m.Audit.GroupCreated(ctx, founderID, g.ID, g.GroupName)

	created.Members = []primitive.ObjectID{founderID}
	return created, nil
}

// UpdateGroup applies changes on behalf of the owner.
//
// Changes are validated like a new group. Capacity may not drop below the
// current member count. When the date or times change, every member's other
// commitments are checked first and the first member (in roster order) with
// a clash is named in a ScheduleConflictError; on success every member's
// schedule entry moves to the new slot.
func (m *Manager) UpdateGroup(ctx context.Context, adminID, groupID primitive.ObjectID, c GroupChanges) (models.Group, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), m.Log, "update group")
	defer cancel()

	g, err := m.getGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !grouppolicy.CanManageGroup(g, adminID) {
		return models.Group{}, apperr.Forbidden("only the group owner can update this group")
	}

	in := c.apply(inputFromGroup(g)).clean()
	if err := in.validate(m.Now(), m.today(), in.MeetingDate != g.MeetingDate); err != nil {
		return models.Group{}, err
	}
	u, fields := diff(g, in)
	if u.Empty() {
		return m.hydrate(ctx, g)
	}
	if u.Capacity != nil && *u.Capacity < g.MemberCount {
		return models.Group{}, apperr.Validation("Capacity cannot be less than the current number of members (%d).", g.MemberCount)
	}

	moved := u.MeetingDate != nil || u.StartTime != nil || u.EndTime != nil
	if moved {
		slot, err := groupSlot(models.Group{MeetingDate: in.MeetingDate, StartTime: in.StartTime, EndTime: in.EndTime})
		if err != nil {
			return models.Group{}, apperr.Validation("%s", err.Error())
		}
		clashes, err := m.memberConflicts(ctx, g, slot)
		if err != nil {
			return models.Group{}, err
		}
		if len(clashes) > 0 {
			first := clashes[0]
			return models.Group{}, m.conflictError(ctx, first.UserID, first.UserName, first.Entries[0])
		}
	}

	var (
		updated     models.Group
		rescheduled int64
	)
	steps := []step{{
		name: "group.update",
		do: func(ctx context.Context) error {
			var err error
			updated, err = m.Groups.Update(ctx, groupID, u)
			if errors.Is(err, mongo.ErrNoDocuments) {
				// The group exists, so the capacity guard failed: a member
				// was approved since g was read.
				return apperr.Conflict("Capacity cannot be less than the current number of members.")
			}
			if err != nil {
				return fmt.Errorf("update group: %w", err)
			}
			return nil
		},
		undo: func(ctx context.Context) error {
			_, err := m.Groups.Update(ctx, groupID, revert(g, u))
			return err
		},
	}}
	if moved {
		steps = append(steps, step{
			name: "schedule.reschedule",
			do: func(ctx context.Context) error {
				var err error
				rescheduled, err = m.Schedule.Reschedule(ctx, groupID, in.MeetingDate, in.StartTime, in.EndTime)
				if err != nil {
					return fmt.Errorf("reschedule entries: %w", err)
				}
				return nil
			},
		})
	}
	if err := m.runWrites(ctx, "update_group", &groupID, &adminID, steps...); err != nil {
		return models.Group{}, err
	}

	m.Log.Info("group updated",
		zap.String("group_id", groupID.Hex()),
		zap.Strings("fields", fields),
		zap.Int64("rescheduled", rescheduled))
	m.Audit.GroupUpdated(ctx, adminID, groupID, fields, rescheduled)

	return m.hydrate(ctx, updated)
}

// DeleteGroup removes the group on behalf of its owner, after removing every
// schedule entry and membership (including pending and rejected users).
func (m *Manager) DeleteGroup(ctx context.Context, adminID, groupID primitive.ObjectID) (DeleteResult, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), m.Log, "delete group")
	defer cancel()

	g, err := m.getGroup(ctx, groupID)
	if err != nil {
		return DeleteResult{}, err
	}
	if !grouppolicy.CanManageGroup(g, adminID) {
		return DeleteResult{}, apperr.Forbidden("only the group owner can delete this group")
	}

	res := DeleteResult{GroupID: groupID}
	err = m.runWrites(ctx, "delete_group", &groupID, &adminID,
		step{name: "schedule.delete_by_group", do: func(ctx context.Context) error {
			n, err := m.Schedule.DeleteByGroup(ctx, groupID)
			if err != nil {
				return fmt.Errorf("delete schedule entries: %w", err)
			}
			res.ScheduleEntries = n
			return nil
		}},
		step{name: "memberships.delete_by_group", do: func(ctx context.Context) error {
			n, err := m.Memberships.DeleteByGroup(ctx, groupID)
			if err != nil {
				return fmt.Errorf("delete memberships: %w", err)
			}
			res.Memberships = n
			return nil
		}},
		step{name: "group.delete", do: func(ctx context.Context) error {
			if _, err := m.Groups.Delete(ctx, groupID); err != nil {
				return fmt.Errorf("delete group: %w", err)
			}
			return nil
		}},
	)
	if err != nil {
		return DeleteResult{}, err
	}

	m.Log.Info("group deleted",
		zap.String("group_id", groupID.Hex()),
		zap.Int64("memberships", res.Memberships),
		zap.Int64("schedule_entries", res.ScheduleEntries))
	m.Audit.GroupDeleted(ctx, adminID, groupID, g.GroupName, res.Memberships, res.ScheduleEntries)
	return res, nil
}

// GetGroup returns a group with its roster hydrated.
func (m *Manager) GetGroup(ctx context.Context, groupID primitive.ObjectID) (models.Group, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Read(), m.Log, "get group")
	defer cancel()

	g, err := m.getGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	return m.hydrate(ctx, g)
}

var sortFields = map[string]bool{
	"":                       true,
	models.SortByMeetingDate: true,
	models.SortByName:        true,
	models.SortByCapacity:    true,
	models.SortByCreatedAt:   true,
}

// ListGroups returns groups matching f. Full groups and groups meeting
// before today are left out unless f asks for them.
func (m *Manager) ListGroups(ctx context.Context, f models.GroupFilter) ([]models.Group, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.List(), m.Log, "list groups")
	defer cancel()

	if !sortFields[f.SortBy] {
		return nil, apperr.Validation("cannot sort by %q", f.SortBy)
	}
	if f.MeetingDate != "" && !inputval.IsValidDate(f.MeetingDate, m.Now()) {
		return nil, apperr.Validation("Meeting date must be a valid date (YYYY-MM-DD).")
	}
	if f.Today == "" {
		f.Today = m.today()
	}
	f.Search = strings.TrimSpace(f.Search)
	gs, err := m.Groups.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find groups: %w", err)
	}
	if gs == nil {
		gs = []models.Group{}
	}
	return gs, nil
}

// GetAllNonFullGroups returns every group with room that meets today or later.
func (m *Manager) GetAllNonFullGroups(ctx context.Context) ([]models.Group, error) {
	return m.ListGroups(ctx, models.GroupFilter{})
}

// SearchGroups matches query against group name, course, description and
// tags (case- and accent-insensitive substring) within f, and tags each
// result with viewerID's role.
func (m *Manager) SearchGroups(ctx context.Context, query string, viewerID primitive.ObjectID, f models.GroupFilter) ([]GroupView, error) {
	f.Search = query
	gs, err := m.ListGroups(ctx, f)
	if err != nil {
		return nil, err
	}

	roles := map[primitive.ObjectID]grouppolicy.Role{}
	if !viewerID.IsZero() {
		rows, err := m.Memberships.ListByUser(ctx, viewerID)
		if err != nil {
			return nil, fmt.Errorf("list viewer memberships: %w", err)
		}
		for _, r := range rows {
			roles[r.GroupID] = grouppolicy.RoleFromStatus(r.Status)
		}
	}

	out := make([]GroupView, 0, len(gs))
	for _, g := range gs {
		role, ok := roles[g.ID]
		if !ok {
			role = grouppolicy.RoleNone
		}
		out = append(out, GroupView{Group: g, Role: role})
	}
	return out, nil
}

// groupsWithStatus returns userID's groups where the membership has status,
// ordered by meeting date.
func (m *Manager) groupsWithStatus(ctx context.Context, userID primitive.ObjectID, status string) ([]models.Group, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.List(), m.Log, "list user groups")
	defer cancel()

	rows, err := m.Memberships.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	if len(rows) == 0 {
		return []models.Group{}, nil
	}
	ids := make([]primitive.ObjectID, len(rows))
	for i, r := range rows {
		ids[i] = r.GroupID
	}
	gs, err := m.Groups.Find(ctx, models.GroupFilter{IDs: ids, IncludeFull: true, IncludePast: true})
	if err != nil {
		return nil, fmt.Errorf("find groups: %w", err)
	}
	if gs == nil {
		gs = []models.Group{}
	}
	return gs, nil
}

// CreatedGroups returns the groups userID owns.
func (m *Manager) CreatedGroups(ctx context.Context, userID primitive.ObjectID) ([]models.Group, error) {
	return m.groupsWithStatus(ctx, userID, models.MembershipOwner)
}

// JoinedGroups returns the groups userID is a non-owner member of.
func (m *Manager) JoinedGroups(ctx context.Context, userID primitive.ObjectID) ([]models.Group, error) {
	return m.groupsWithStatus(ctx, userID, models.MembershipMember)
}

// PendingGroups returns the groups userID is waiting to join.
func (m *Manager) PendingGroups(ctx context.Context, userID primitive.ObjectID) ([]models.Group, error) {
	return m.groupsWithStatus(ctx, userID, models.MembershipPending)
}

// Commitments returns userID's commitment projection.
func (m *Manager) Commitments(ctx context.Context, userID primitive.ObjectID) (models.Commitments, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.List(), m.Log, "load commitments")
	defer cancel()

	if _, err := m.getUser(ctx, userID); err != nil {
		return models.Commitments{}, err
	}
	rows, err := m.Memberships.ListByUser(ctx, userID)
	if err != nil {
		return models.Commitments{}, fmt.Errorf("list memberships: %w", err)
	}
	c := models.Commitments{
		UserID:        userID,
		CreatedGroups: []primitive.ObjectID{},
		JoinedGroups:  []primitive.ObjectID{},
		PendingGroups: []primitive.ObjectID{},
	}
	for _, r := range rows {
		switch r.Status {
		case models.MembershipOwner:
			c.CreatedGroups = append(c.CreatedGroups, r.GroupID)
		case models.MembershipMember:
			c.JoinedGroups = append(c.JoinedGroups, r.GroupID)
		case models.MembershipPending:
			c.PendingGroups = append(c.PendingGroups, r.GroupID)
		}
	}
	c.Schedule, err = m.Schedule.ListByUser(ctx, userID, "", "")
	if err != nil {
		return models.Commitments{}, fmt.Errorf("list schedule: %w", err)
	}
	if c.Schedule == nil {
		c.Schedule = []models.ScheduleEntry{}
	}
	return c, nil
}

// UserSchedule returns userID's schedule entries between from and to
// (inclusive YYYY-MM-DD; either may be empty), earliest first.
func (m *Manager) UserSchedule(ctx context.Context, userID primitive.ObjectID, from, to string) ([]models.ScheduleEntry, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.List(), m.Log, "user schedule")
	defer cancel()

	now := m.Now()
	if from != "" && !inputval.IsValidDate(from, now) {
		return nil, apperr.Validation("From must be a valid date (YYYY-MM-DD).")
	}
	if to != "" && !inputval.IsValidDate(to, now) {
		return nil, apperr.Validation("To must be a valid date (YYYY-MM-DD).")
	}
	if from != "" && to != "" && from > to {
		return nil, apperr.Validation("From must not be after To.")
	}
	entries, err := m.Schedule.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	if entries == nil {
		entries = []models.ScheduleEntry{}
	}
	return entries, nil
}
