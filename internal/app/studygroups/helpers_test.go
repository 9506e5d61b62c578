package studygroups_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/coflow/internal/app/store/memstore"
	"github.com/dalemusser/coflow/internal/app/studygroups"
	"github.com/dalemusser/coflow/internal/app/system/auditlog"
	"github.com/dalemusser/coflow/internal/domain/models"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// today for every test is 2025-05-01.
var clock = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }

type env struct {
	ctx   context.Context
	store *memstore.Store
	mgr   *studygroups.Manager
	wf    *studygroups.Workflow
	logs  *observer.ObservedLogs
}

// eachMode runs fn against a transactional and a non-transactional backend.
func eachMode(t *testing.T, fn func(t *testing.T, e *env)) {
	for _, mode := range []struct {
		name   string
		atomic bool
	}{{"atomic", true}, {"non-atomic", false}} {
		t.Run(mode.name, func(t *testing.T) {
			fn(t, newEnv(t, mode.atomic))
		})
	}
}

func newEnv(t *testing.T, atomic bool, opts ...func(*studygroups.Deps)) *env {
	t.Helper()
	s := memstore.New()
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	d := studygroups.Deps{
		Groups:      s.Groups(),
		Memberships: s.Memberships(),
		Schedule:    s.Schedule(),
		Users:       s.Users(),
		Tx:          s.Transactor(atomic),
		Audit:       auditlog.New(s.Audit(), log, auditlog.Config{}),
		RepairLog:   s.Audit(),
		Log:         log,
		Now:         clock,
		Location:    time.UTC,
	}
	for _, o := range opts {
		o(&d)
	}
	return &env{
		ctx:   context.Background(),
		store: s,
		mgr:   studygroups.NewManager(d),
		wf:    studygroups.NewWorkflow(d),
		logs:  logs,
	}
}

func (e *env) user(t *testing.T, name string) primitive.ObjectID {
	t.Helper()
	u, err := e.store.Users().Create(e.ctx, models.User{UserName: name})
	require.NoError(t, err)
	return u.ID
}

func input(date, start, end string) studygroups.GroupInput {
	return studygroups.GroupInput{
		GroupName:   "Calc Review",
		Description: "Series and sequences",
		Capacity:    5,
		Location:    "Library",
		Course:      "MA 221",
		MeetingDate: date,
		StartTime:   start,
		EndTime:     end,
		GroupType:   models.GroupTypeStudy,
		Tags:        []string{"finals"},
	}
}

func (e *env) group(t *testing.T, owner primitive.ObjectID, name, date, start, end string, capacity int) models.Group {
	t.Helper()
	in := input(date, start, end)
	in.GroupName = name
	in.Capacity = capacity
	g, err := e.mgr.CreateGroup(e.ctx, owner, in)
	require.NoError(t, err)
	return g
}

// join requests and approves userID into g.
func (e *env) join(t *testing.T, g models.Group, userID primitive.ObjectID) {
	t.Helper()
	_, err := e.wf.RequestToJoin(e.ctx, userID, g.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveUser(e.ctx, g.OwnerID, userID, g.ID)
	require.NoError(t, err)
}

// checkInvariants asserts the group-level invariants for groupID:
// is_full agrees with the count, the count matches active memberships,
// the roster sets are disjoint with the owner first, and every active
// member (and nobody else) has a schedule entry at the group's slot.
func (e *env) checkInvariants(t *testing.T, groupID primitive.ObjectID) {
	t.Helper()
	g, err := e.mgr.GetGroup(e.ctx, groupID)
	require.NoError(t, err)

	require.Equal(t, g.MemberCount >= g.Capacity, g.IsFull, "is_full")
	require.Equal(t, len(g.Members), g.MemberCount, "member_count")
	require.Equal(t, g.OwnerID, g.Members[0], "owner first")

	seen := map[primitive.ObjectID]string{}
	for set, ids := range map[string][]primitive.ObjectID{
		"members": g.Members, "pending": g.PendingMembers, "rejected": g.RejectedMembers,
	} {
		for _, id := range ids {
			prev, dup := seen[id]
			require.False(t, dup, "user in %s and %s", prev, set)
			seen[id] = set
		}
	}

	entries, err := e.store.Schedule().ListByGroup(e.ctx, groupID)
	require.NoError(t, err)
	require.Len(t, entries, len(g.Members))
	for _, en := range entries {
		require.Equal(t, "members", seen[en.UserID])
		require.Equal(t, g.MeetingDate, en.MeetingDate)
		require.Equal(t, g.StartTime, en.StartTime)
		require.Equal(t, g.EndTime, en.EndTime)
	}
}
