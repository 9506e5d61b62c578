package studygroups_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/coflow/internal/app/policy/grouppolicy"
	"github.com/dalemusser/coflow/internal/app/store/audit"
	"github.com/dalemusser/coflow/internal/app/studygroups"
	"github.com/dalemusser/coflow/internal/app/system/apperr"
	"github.com/dalemusser/coflow/internal/domain/models"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func ptr[T any](v T) *T { return &v }

func TestCreateGroup(t *testing.T) {
	eachMode(t, func(t *testing.T, e *env) {
		ann := e.user(t, "Ann")
		in := input("2025-06-01", "10:00", "11:00")
		in.GroupName = "  <b>Calc</b>   Review "
		in.Tags = []string{"Finals", "finals", " series "}

		g, err := e.mgr.CreateGroup(e.ctx, ann, in)
		require.NoError(t, err)
		require.Equal(t, "Calc Review", g.GroupName)
		require.Equal(t, ann, g.OwnerID)
		require.Equal(t, []primitive.ObjectID{ann}, g.Members)
		require.Equal(t, 1, g.MemberCount)
		require.False(t, g.IsFull)

		c, err := e.mgr.Commitments(e.ctx, ann)
		require.NoError(t, err)
		require.Equal(t, []primitive.ObjectID{g.ID}, c.CreatedGroups)
		require.Empty(t, c.JoinedGroups)
		require.Len(t, c.Schedule, 1)

		require.Len(t, e.store.Audit().Events(audit.EventGroupCreated), 1)
		e.checkInvariants(t, g.ID)
	})
}

func TestCreateGroup_Validation(t *testing.T) {
	e := newEnv(t, true)
	ann := e.user(t, "Ann")

	tests := []struct {
		name   string
		mutate func(*studygroups.GroupInput)
		want   string
	}{
		{"capacity too small", func(in *studygroups.GroupInput) { in.Capacity = 1 }, "Capacity"},
		{"capacity too large", func(in *studygroups.GroupInput) { in.Capacity = 16 }, "Capacity"},
		{"end before start", func(in *studygroups.GroupInput) { in.EndTime = "09:00" }, "End time must be later than start time."},
		{"equal times", func(in *studygroups.GroupInput) { in.EndTime = in.StartTime }, "End time must be later than start time."},
		{"past date", func(in *studygroups.GroupInput) { in.MeetingDate = "2025-04-30" }, "Meeting date cannot be in the past."},
		{"date beyond window", func(in *studygroups.GroupInput) { in.MeetingDate = "2036-01-10" }, "Meeting date"},
		{"unknown location", func(in *studygroups.GroupInput) { in.Location = "Moon Base" }, "Location"},
		{"bad course", func(in *studygroups.GroupInput) { in.Course = "Calculus" }, "Course"},
		{"numeric name", func(in *studygroups.GroupInput) { in.GroupName = "12345" }, "Group name"},
		{"markup only name", func(in *studygroups.GroupInput) { in.GroupName = "<i></i>" }, "Group name"},
		{"bad type", func(in *studygroups.GroupInput) { in.GroupType = "party" }, "Group type"},
		{"bad clock", func(in *studygroups.GroupInput) { in.StartTime = "9am" }, "Start time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input("2025-06-01", "10:00", "11:00")
			tt.mutate(&in)
			_, err := e.mgr.CreateGroup(e.ctx, ann, in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			require.Contains(t, apperr.Message(err), tt.want)
		})
	}

	// Every failure is reported at once.
	in := input("2025-04-30", "10:00", "09:00")
	in.Capacity = 1
	_, err := e.mgr.CreateGroup(e.ctx, ann, in)
	msg := apperr.Message(err)
	require.Contains(t, msg, "Capacity")
	require.Contains(t, msg, "End time must be later than start time.")
	require.Contains(t, msg, "Meeting date cannot be in the past.")

	c, err := e.mgr.Commitments(e.ctx, ann)
	require.NoError(t, err)
	require.Empty(t, c.CreatedGroups)
}

func TestCreateGroup_FounderChecks(t *testing.T) {
	eachMode(t, func(t *testing.T, e *env) {
		_, err := e.mgr.CreateGroup(e.ctx, primitive.NewObjectID(), input("2025-06-01", "10:00", "11:00"))
		require.ErrorIs(t, err, apperr.ErrNotFound)

		ann := e.user(t, "Ann")
		first := e.group(t, ann, "Calc Review", "2025-06-01", "10:00", "11:00", 5)
		_, err = e.mgr.CreateGroup(e.ctx, ann, input("2025-06-01", "10:59", "12:00"))
		var sce *studygroups.ScheduleConflictError
		require.True(t, errors.As(err, &sce))
		require.Equal(t, first.ID, sce.GroupID)

		created, err := e.mgr.CreatedGroups(e.ctx, ann)
		require.NoError(t, err)
		require.Len(t, created, 1)
	})
}

func TestCreateGroup_FailedWriteUndone(t *testing.T) {
	e := newEnv(t, false)
	ann := e.user(t, "Ann")

	boom := errors.New("write timeout")
	e.store.FailNext("schedule.upsert", boom)
	_, err := e.mgr.CreateGroup(e.ctx, ann, input("2025-06-01", "10:00", "11:00"))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, apperr.ErrPartialWrite)

	c, err := e.mgr.Commitments(e.ctx, ann)
	require.NoError(t, err)
	require.Empty(t, c.CreatedGroups)
	all, err := e.mgr.ListGroups(e.ctx, models.GroupFilter{IncludeFull: true, IncludePast: true})
	require.NoError(t, err)
	require.Empty(t, all)
}

// threeMembers builds Ann's group with Ben and Cy approved, plus Cy's own
// group on 2025-06-02 14:00-15:00.
func threeMembers(t *testing.T, e *env) (g, cys models.Group, ann, ben, cy primitive.ObjectID) {
	ann, ben, cy = e.user(t, "Ann"), e.user(t, "Ben"), e.user(t, "Cy")
	g = e.group(t, ann, "Calc Review", "2025-06-01", "10:00", "11:00", 5)
	e.join(t, g, ben)
	e.join(t, g, cy)
	cys = e.group(t, cy, "Physics Lab Prep", "2025-06-02", "14:00", "15:00", 5)
	return g, cys, ann, ben, cy
}

func TestUpdateGroup_MoveNamesConflictingMember(t *testing.T) {
	eachMode(t, func(t *testing.T, e *env) {
		g, cys, ann, _, cy := threeMembers(t, e)

		_, err := e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{
			MeetingDate: ptr("2025-06-02"), StartTime: ptr("14:30"), EndTime: ptr("15:30"),
		})
		require.ErrorIs(t, err, apperr.ErrConflict)
		var sce *studygroups.ScheduleConflictError
		require.True(t, errors.As(err, &sce))
		require.Equal(t, cy, sce.UserID)
		require.Equal(t, "Cy", sce.UserName)
		require.Equal(t, cys.ID, sce.GroupID)

		got, err := e.mgr.GetGroup(e.ctx, g.ID)
		require.NoError(t, err)
		require.Equal(t, "2025-06-01", got.MeetingDate)
		require.Equal(t, "10:00", got.StartTime)
		e.checkInvariants(t, g.ID)
	})
}

func TestUpdateGroup_FirstConflictInRosterOrder(t *testing.T) {
	e := newEnv(t, true)
	g, _, ann, ben, _ := threeMembers(t, e)
	e.group(t, ben, "Bio Flashcards", "2025-06-02", "15:00", "16:00", 5)

	_, err := e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{
		MeetingDate: ptr("2025-06-02"), StartTime: ptr("14:30"), EndTime: ptr("15:30"),
	})
	var sce *studygroups.ScheduleConflictError
	require.True(t, errors.As(err, &sce))
	require.Equal(t, ben, sce.UserID)

	clashes, err := e.mgr.MemberConflicts(e.ctx, g.ID, "2025-06-02", "14:30", "15:30")
	require.NoError(t, err)
	require.Len(t, clashes, 2)
	require.Equal(t, "Ben", clashes[0].UserName)
	require.Equal(t, "Cy", clashes[1].UserName)

	clashes, err = e.mgr.MemberConflicts(e.ctx, g.ID, "2025-06-03", "14:30", "15:30")
	require.NoError(t, err)
	require.Empty(t, clashes)

	_, err = e.mgr.MemberConflicts(e.ctx, g.ID, "2025-06-03", "15:30", "14:30")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateGroup_MoveReschedulesEveryMember(t *testing.T) {
	eachMode(t, func(t *testing.T, e *env) {
		g, _, ann, ben, _ := threeMembers(t, e)

		got, err := e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{
			MeetingDate: ptr("2025-06-03"), StartTime: ptr("09:00"),
		})
		require.NoError(t, err)
		require.Equal(t, "2025-06-03", got.MeetingDate)
		require.Equal(t, "09:00", got.StartTime)
		require.Equal(t, "11:00", got.EndTime)
		require.Len(t, got.Members, 3)

		entries, err := e.mgr.UserSchedule(e.ctx, ben, "2025-06-03", "2025-06-03")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "09:00", entries[0].StartTime)

		events := e.store.Audit().Events(audit.EventGroupUpdated)
		require.Len(t, events, 1)
		e.checkInvariants(t, g.ID)
	})
}

func TestUpdateGroup_Rules(t *testing.T) {
	eachMode(t, func(t *testing.T, e *env) {
		g, _, ann, ben, _ := threeMembers(t, e)

		_, err := e.mgr.UpdateGroup(e.ctx, ben, g.ID, studygroups.GroupChanges{GroupName: ptr("Mine now")})
		require.ErrorIs(t, err, apperr.ErrForbidden)

		_, err = e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{Capacity: ptr(2)})
		require.ErrorIs(t, err, apperr.ErrValidation)
		require.Equal(t, "Capacity cannot be less than the current number of members (3).", apperr.Message(err))

		_, err = e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{EndTime: ptr("09:30")})
		require.ErrorIs(t, err, apperr.ErrValidation)

		got, err := e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{Capacity: ptr(3)})
		require.NoError(t, err)
		require.True(t, got.IsFull)

		got, err = e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{
			GroupName: ptr("Calc II Review"), Tags: []string{},
		})
		require.NoError(t, err)
		require.Equal(t, "Calc II Review", got.GroupName)
		require.Empty(t, got.Tags)

		// No changes: the stored group comes back untouched.
		same, err := e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{})
		require.NoError(t, err)
		require.Equal(t, got.UpdatedAt, same.UpdatedAt)
		require.Equal(t, got.Members, same.Members)

		_, err = e.mgr.UpdateGroup(e.ctx, ann, primitive.NewObjectID(), studygroups.GroupChanges{})
		require.ErrorIs(t, err, apperr.ErrNotFound)
		e.checkInvariants(t, g.ID)
	})
}

func TestUpdateGroup_PastDateOnlyCheckedWhenChanged(t *testing.T) {
	now := clock()
	e := newEnv(t, true, func(d *studygroups.Deps) { d.Now = func() time.Time { return now } })
	ann := e.user(t, "Ann")
	g := e.group(t, ann, "Calc Review", "2025-05-02", "10:00", "11:00", 5)

	now = now.AddDate(0, 0, 10)
	_, err := e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{Description: ptr("Notes posted")})
	require.NoError(t, err)

	_, err = e.mgr.UpdateGroup(e.ctx, ann, g.ID, studygroups.GroupChanges{MeetingDate: ptr("2025-05-03")})
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, "Meeting date cannot be in the past.", apperr.Message(err))
}

func TestDeleteGroup_Cascades(t *testing.T) {
	eachMode(t, func(t *testing.T, e *env) {
		ann, ben, cy, dee := e.user(t, "Ann"), e.user(t, "Ben"), e.user(t, "Cy"), e.user(t, "Dee")
		g := e.group(t, ann, "Calc Review", "2025-06-01", "10:00", "11:00", 5)
		e.join(t, g, ben)
		_, err := e.wf.RequestToJoin(e.ctx, cy, g.ID)
		require.NoError(t, err)
		_, err = e.wf.RequestToJoin(e.ctx, dee, g.ID)
		require.NoError(t, err)
		_, err = e.wf.RejectUser(e.ctx, ann, dee, g.ID)
		require.NoError(t, err)

		_, err = e.mgr.DeleteGroup(e.ctx, ben, g.ID)
		require.ErrorIs(t, err, apperr.ErrForbidden)

		res, err := e.mgr.DeleteGroup(e.ctx, ann, g.ID)
		require.NoError(t, err)
		require.Equal(t, int64(4), res.Memberships)
		require.Equal(t, int64(2), res.ScheduleEntries)

		_, err = e.mgr.GetGroup(e.ctx, g.ID)
		require.ErrorIs(t, err, apperr.ErrNotFound)

		for _, u := range []primitive.ObjectID{ann, ben, cy, dee} {
			c, err := e.mgr.Commitments(e.ctx, u)
			require.NoError(t, err)
			require.Empty(t, c.CreatedGroups)
			require.Empty(t, c.JoinedGroups)
			require.Empty(t, c.PendingGroups)
			require.Empty(t, c.Schedule)
		}
		require.Len(t, e.store.Audit().Events(audit.EventGroupDeleted), 1)

		_, err = e.mgr.DeleteGroup(e.ctx, ann, g.ID)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestDeleteGroup_PartialWriteCanBeRetried(t *testing.T) {
	e := newEnv(t, false)
	ann, ben := e.user(t, "Ann"), e.user(t, "Ben")
	g := e.group(t, ann, "Calc Review", "2025-06-01", "10:00", "11:00", 5)
	e.join(t, g, ben)

	e.store.FailNext("groups.delete", errors.New("primary stepped down"))
	_, err := e.mgr.DeleteGroup(e.ctx, ann, g.ID)
	var pw *apperr.PartialWriteError
	require.True(t, errors.As(err, &pw))
	require.Equal(t, []string{"schedule.delete_by_group", "memberships.delete_by_group"}, pw.Steps)
	require.Len(t, e.store.Audit().Events(audit.EventRepairCandidate), 1)

	_, err = e.mgr.DeleteGroup(e.ctx, ann, g.ID)
	require.NoError(t, err)
	_, err = e.mgr.GetGroup(e.ctx, g.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListGroups(t *testing.T) {
	now := clock()
	e := newEnv(t, true, func(d *studygroups.Deps) { d.Now = func() time.Time { return now } })
	ann, ben := e.user(t, "Ann"), e.user(t, "Ben")

	soon := e.group(t, ann, "Soon", "2025-05-02", "10:00", "11:00", 5)
	full := e.group(t, ann, "Full", "2025-06-01", "10:00", "11:00", 2)
	e.join(t, full, ben)
	open := e.group(t, ann, "Open", "2025-06-02", "10:00", "11:00", 5)

	gs, err := e.mgr.GetAllNonFullGroups(e.ctx)
	require.NoError(t, err)
	require.Equal(t, []primitive.ObjectID{soon.ID, open.ID}, ids(gs))

	now = now.AddDate(0, 0, 5)
	gs, err = e.mgr.GetAllNonFullGroups(e.ctx)
	require.NoError(t, err)
	require.Equal(t, []primitive.ObjectID{open.ID}, ids(gs))

	gs, err = e.mgr.ListGroups(e.ctx, models.GroupFilter{IncludeFull: true, IncludePast: true, SortBy: models.SortByName})
	require.NoError(t, err)
	require.Equal(t, []primitive.ObjectID{full.ID, open.ID, soon.ID}, ids(gs))

	_, err = e.mgr.ListGroups(e.ctx, models.GroupFilter{SortBy: "owner_id"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.mgr.ListGroups(e.ctx, models.GroupFilter{MeetingDate: "June 1"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func ids(gs []models.Group) []primitive.ObjectID {
	out := make([]primitive.ObjectID, len(gs))
	for i, g := range gs {
		out[i] = g.ID
	}
	return out
}

func TestSearchGroups_AnnotatesRole(t *testing.T) {
	e := newEnv(t, true)
	ann, ben := e.user(t, "Ann"), e.user(t, "Ben")

	mk := func(owner primitive.ObjectID, name, course, start, end string) models.Group {
		in := input("2025-06-01", start, end)
		in.GroupName, in.Course = name, course
		g, err := e.mgr.CreateGroup(e.ctx, owner, in)
		require.NoError(t, err)
		return g
	}
	owned := mk(ann, "Linear Algebra Drills", "MA 265", "08:00", "09:00")
	joined := mk(ben, "Algebra Proofs", "MA 341", "09:00", "10:00")
	pending := mk(ben, "Abstract Algebra", "MA 453", "10:00", "11:00")
	other := mk(ben, "Algebraic Topology", "MA 571", "11:00", "12:00")
	mk(ben, "Organic Chemistry", "CH 261", "12:00", "13:00")

	e.join(t, joined, ann)
	_, err := e.wf.RequestToJoin(e.ctx, ann, pending.ID)
	require.NoError(t, err)

	views, err := e.mgr.SearchGroups(e.ctx, "  ALGEBRA ", ann, models.GroupFilter{})
	require.NoError(t, err)
	require.Len(t, views, 4)
	roles := map[primitive.ObjectID]grouppolicy.Role{}
	for _, v := range views {
		roles[v.ID] = v.Role
	}
	require.Equal(t, grouppolicy.RoleOwner, roles[owned.ID])
	require.Equal(t, grouppolicy.RoleMember, roles[joined.ID])
	require.Equal(t, grouppolicy.RolePending, roles[pending.ID])
	require.Equal(t, grouppolicy.RoleNone, roles[other.ID])

	views, err = e.mgr.SearchGroups(e.ctx, "ch 261", primitive.NilObjectID, models.GroupFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, grouppolicy.RoleNone, views[0].Role)
}

func TestUserSchedule(t *testing.T) {
	e := newEnv(t, true)
	ann := e.user(t, "Ann")
	e.group(t, ann, "Day One", "2025-06-01", "10:00", "11:00", 5)
	e.group(t, ann, "Day Two", "2025-06-02", "10:00", "11:00", 5)
	e.group(t, ann, "Day Two Later", "2025-06-02", "13:00", "14:00", 5)

	all, err := e.mgr.UserSchedule(e.ctx, ann, "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	day, err := e.mgr.UserSchedule(e.ctx, ann, "2025-06-02", "2025-06-02")
	require.NoError(t, err)
	require.Len(t, day, 2)
	require.Equal(t, "10:00", day[0].StartTime)
	require.Equal(t, "13:00", day[1].StartTime)

	_, err = e.mgr.UserSchedule(e.ctx, ann, "2025-06-03", "2025-06-01")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.mgr.UserSchedule(e.ctx, ann, "yesterday", "")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRepairGroup(t *testing.T) {
	eachMode(t, func(t *testing.T, e *env) {
		g, _, _, ben, _ := threeMembers(t, e)

		// Drift the projection by hand.
		require.NoError(t, e.store.Groups().SetMemberCount(e.ctx, g.ID, 5))
		_, err := e.store.Schedule().Remove(e.ctx, ben, g.ID)
		require.NoError(t, err)

		rep, err := e.mgr.RepairGroup(e.ctx, g.ID)
		require.NoError(t, err)
		require.Equal(t, 3, rep.MemberCount)
		require.True(t, rep.CountFixed)
		require.Equal(t, 1, rep.EntriesWritten)
		require.Len(t, e.store.Audit().Events(audit.EventRepaired), 1)
		e.checkInvariants(t, g.ID)

		rep, err = e.mgr.RepairGroup(e.ctx, g.ID)
		require.NoError(t, err)
		require.False(t, rep.CountFixed)
		require.Zero(t, rep.EntriesWritten)
		require.Len(t, e.store.Audit().Events(audit.EventRepaired), 1)

		// The count is read from the active memberships.
		boom := errors.New("count failed")
		e.store.FailNext("memberships.count_active", boom)
		_, err = e.mgr.RepairGroup(e.ctx, g.ID)
		require.ErrorIs(t, err, boom)
	})
}

func TestRepairCandidates_RequiresRepairLog(t *testing.T) {
	e := newEnv(t, true, func(d *studygroups.Deps) { d.RepairLog = nil })
	_, err := e.mgr.RepairCandidates(e.ctx, time.Time{}, 10)
	require.Error(t, err)
}
