// internal/app/store/memstore/memstore.go
//
// Package memstore is an in-process backend implementing the same
// repository contracts as the MongoDB stores. It backs store_backend=memory
// and the service tests.
//
// Not-found reads return mongo.ErrNoDocuments and uniqueness violations
// return the same sentinels as the MongoDB stores, so callers cannot tell
// the backends apart.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/coflow/internal/app/store/audit"
	groupstore "github.com/dalemusser/coflow/internal/app/store/groups"
	membershipstore "github.com/dalemusser/coflow/internal/app/store/memberships"
	userstore "github.com/dalemusser/coflow/internal/app/store/users"
	"github.com/dalemusser/coflow/internal/app/system/txn"
	"github.com/dalemusser/coflow/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type memberKey struct {
	group primitive.ObjectID
	user  primitive.ObjectID
}

type data struct {
	groups      map[primitive.ObjectID]models.Group
	memberships map[memberKey]models.GroupMembership
	schedule    map[memberKey]models.ScheduleEntry // keyed by (group, user)
	users       map[primitive.ObjectID]models.User
	events      []audit.Event
}

func (d *data) clone() *data {
	c := &data{
		groups:      make(map[primitive.ObjectID]models.Group, len(d.groups)),
		memberships: make(map[memberKey]models.GroupMembership, len(d.memberships)),
		schedule:    make(map[memberKey]models.ScheduleEntry, len(d.schedule)),
		users:       make(map[primitive.ObjectID]models.User, len(d.users)),
		events:      append([]audit.Event(nil), d.events...),
	}
	for k, v := range d.groups {
		c.groups[k] = copyGroup(v)
	}
	for k, v := range d.memberships {
		c.memberships[k] = v
	}
	for k, v := range d.schedule {
		c.schedule[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	return c
}

// Store holds every collection in memory behind one lock.
type Store struct {
	mu   sync.Mutex
	d    *data
	seq  int64 // monotonic tiebreak for updated_at ordering
	txMu sync.Mutex

	faults map[string]error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		d: &data{
			groups:      map[primitive.ObjectID]models.Group{},
			memberships: map[memberKey]models.GroupMembership{},
			schedule:    map[memberKey]models.ScheduleEntry{},
			users:       map[primitive.ObjectID]models.User{},
		},
		faults: map[string]error{},
	}
}

// FailNext makes the next call of op return err. Operation names are
// "<collection>.<method>", e.g. "schedule.upsert" or "groups.add_member".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// fault must be called with s.mu held.
func (s *Store) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

// now returns a strictly increasing timestamp so rows written in sequence
// sort in write order even within the same clock tick. Caller holds s.mu.
func (s *Store) now() time.Time {
	s.seq++
	return time.Now().UTC().Truncate(time.Millisecond).Add(time.Duration(s.seq) * time.Microsecond)
}

func copyGroup(g models.Group) models.Group {
	g.Tags = append([]string(nil), g.Tags...)
	g.TagsCI = append([]string(nil), g.TagsCI...)
	g.Members = nil
	g.PendingMembers = nil
	g.RejectedMembers = nil
	return g
}

// Transactor runs functions against the Store.
//
// In atomic mode every call is serialized, the context is marked
// transactional, and all collections are restored if fn fails. In
// non-atomic mode fn runs directly and earlier writes persist, which is how
// a MongoDB deployment without transactions behaves.
type Transactor struct {
	s      *Store
	atomic bool
}

// Transactor returns a Transactor for s.
func (s *Store) Transactor(atomic bool) *Transactor {
	return &Transactor{s: s, atomic: atomic}
}

// Atomic reports whether Run rolls back on failure.
func (t *Transactor) Atomic() bool { return t.atomic }

func (t *Transactor) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !t.atomic {
		return fn(ctx)
	}
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	t.s.mu.Lock()
	snap := t.s.d.clone()
	t.s.mu.Unlock()

	if err := fn(txn.MarkTransactional(ctx)); err != nil {
		t.s.mu.Lock()
		t.s.d = snap
		t.s.mu.Unlock()
		return err
	}
	return nil
}

// ---- groups ----

// Groups implements the group repository.
type Groups struct{ s *Store }

func (s *Store) Groups() *Groups { return &Groups{s: s} }

func (r *Groups) GetByID(_ context.Context, id primitive.ObjectID) (models.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("groups.get"); err != nil {
		return models.Group{}, err
	}
	g, ok := r.s.d.groups[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	return copyGroup(g), nil
}

func (r *Groups) Create(_ context.Context, g models.Group) (models.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("groups.create"); err != nil {
		return models.Group{}, err
	}
	if g.ID.IsZero() {
		g.ID = primitive.NewObjectID()
	}
	if _, exists := r.s.d.groups[g.ID]; exists {
		return models.Group{}, errors.New("duplicate group id")
	}
	g.GroupNameCI = text.Fold(g.GroupName)
	g.DescriptionCI = text.Fold(g.Description)
	g.CourseCI = text.Fold(g.Course)
	if g.Tags == nil {
		g.Tags = []string{}
	}
	g.TagsCI = groupstore.FoldTags(g.Tags)
	g.IsFull = g.MemberCount >= g.Capacity
	now := r.s.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = g.CreatedAt
	g = copyGroup(g)
	r.s.d.groups[g.ID] = g
	return copyGroup(g), nil
}

func (r *Groups) Update(_ context.Context, id primitive.ObjectID, u models.GroupUpdate) (models.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("groups.update"); err != nil {
		return models.Group{}, err
	}
	g, ok := r.s.d.groups[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	if u.Capacity != nil && g.MemberCount > *u.Capacity {
		return models.Group{}, mongo.ErrNoDocuments
	}
	g = copyGroup(g)
	if u.GroupName != nil {
		g.GroupName = *u.GroupName
		g.GroupNameCI = text.Fold(*u.GroupName)
	}
	if u.Description != nil {
		g.Description = *u.Description
		g.DescriptionCI = text.Fold(*u.Description)
	}
	if u.Capacity != nil {
		g.Capacity = *u.Capacity
	}
	if u.Location != nil {
		g.Location = *u.Location
	}
	if u.Course != nil {
		g.Course = *u.Course
		g.CourseCI = text.Fold(*u.Course)
	}
	if u.MeetingDate != nil {
		g.MeetingDate = *u.MeetingDate
	}
	if u.StartTime != nil {
		g.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		g.EndTime = *u.EndTime
	}
	if u.GroupType != nil {
		g.GroupType = *u.GroupType
	}
	if u.Tags != nil {
		g.Tags = append([]string(nil), u.Tags...)
		g.TagsCI = groupstore.FoldTags(u.Tags)
	}
	g.IsFull = g.MemberCount >= g.Capacity
	g.UpdatedAt = r.s.now()
	r.s.d.groups[id] = g
	return copyGroup(g), nil
}

func (r *Groups) AddMember(_ context.Context, id primitive.ObjectID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("groups.add_member"); err != nil {
		return false, err
	}
	g, ok := r.s.d.groups[id]
	if !ok || g.MemberCount >= g.Capacity {
		return false, nil
	}
	g.MemberCount++
	g.IsFull = g.MemberCount >= g.Capacity
	g.UpdatedAt = r.s.now()
	r.s.d.groups[id] = g
	return true, nil
}

func (r *Groups) RemoveMember(_ context.Context, id primitive.ObjectID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("groups.remove_member"); err != nil {
		return false, err
	}
	g, ok := r.s.d.groups[id]
	if !ok || g.MemberCount <= 1 {
		return false, nil
	}
	g.MemberCount--
	g.IsFull = g.MemberCount >= g.Capacity
	g.UpdatedAt = r.s.now()
	r.s.d.groups[id] = g
	return true, nil
}

func (r *Groups) SetMemberCount(_ context.Context, id primitive.ObjectID, n int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("groups.set_member_count"); err != nil {
		return err
	}
	g, ok := r.s.d.groups[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	g.MemberCount = n
	g.IsFull = n >= g.Capacity
	g.UpdatedAt = r.s.now()
	r.s.d.groups[id] = g
	return nil
}

func (r *Groups) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("groups.delete"); err != nil {
		return 0, err
	}
	if _, ok := r.s.d.groups[id]; !ok {
		return 0, nil
	}
	delete(r.s.d.groups, id)
	return 1, nil
}

func (r *Groups) Find(_ context.Context, f models.GroupFilter) ([]models.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("groups.find"); err != nil {
		return nil, err
	}
	var out []models.Group
	for _, g := range r.s.d.groups {
		if matches(g, f) {
			out = append(out, copyGroup(g))
		}
	}
	sortGroups(out, f)
	return out, nil
}

func matches(g models.Group, f models.GroupFilter) bool {
	if len(f.IDs) > 0 && !containsID(f.IDs, g.ID) {
		return false
	}
	if f.Course != "" && g.CourseCI != text.Fold(f.Course) {
		return false
	}
	if f.GroupType != "" && g.GroupType != f.GroupType {
		return false
	}
	if f.Location != "" && g.Location != f.Location {
		return false
	}
	if len(f.Tags) > 0 && !anyTag(g.TagsCI, groupstore.FoldTags(f.Tags)) {
		return false
	}
	if !f.IncludeFull && g.IsFull {
		return false
	}
	if f.MeetingDate != "" && g.MeetingDate != f.MeetingDate {
		return false
	}
	if !f.IncludePast && f.Today != "" && g.MeetingDate < f.Today {
		return false
	}
	if f.Search != "" {
		q := text.Fold(f.Search)
		hit := strings.Contains(g.GroupNameCI, q) ||
			strings.Contains(g.CourseCI, q) ||
			strings.Contains(g.DescriptionCI, q)
		for _, t := range g.TagsCI {
			hit = hit || strings.Contains(t, q)
		}
		if !hit {
			return false
		}
	}
	return true
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func sortGroups(gs []models.Group, f models.GroupFilter) {
	cmp := func(a, b models.Group) int {
		switch f.SortBy {
		case models.SortByName:
			return strings.Compare(a.GroupNameCI, b.GroupNameCI)
		case models.SortByCapacity:
			return a.Capacity - b.Capacity
		case models.SortByCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			if c := strings.Compare(a.MeetingDate, b.MeetingDate); c != 0 {
				return c
			}
			return strings.Compare(a.StartTime, b.StartTime)
		}
	}
	sort.SliceStable(gs, func(i, j int) bool {
		c := cmp(gs[i], gs[j])
		if f.SortDesc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return gs[i].ID.Hex() < gs[j].ID.Hex()
	})
}

// ---- memberships ----

// Memberships implements the membership index.
type Memberships struct{ s *Store }

func (s *Store) Memberships() *Memberships { return &Memberships{s: s} }

func (r *Memberships) Insert(_ context.Context, m models.GroupMembership) (models.GroupMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.insert"); err != nil {
		return models.GroupMembership{}, err
	}
	switch m.Status {
	case models.MembershipOwner, models.MembershipMember, models.MembershipPending, models.MembershipRejected:
	default:
		return models.GroupMembership{}, errors.New("unknown membership status")
	}
	k := memberKey{m.GroupID, m.UserID}
	if _, exists := r.s.d.memberships[k]; exists {
		return models.GroupMembership{}, membershipstore.ErrDuplicateMembership
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	now := r.s.now()
	m.CreatedAt = now
	m.UpdatedAt = now
	r.s.d.memberships[k] = m
	return m, nil
}

func (r *Memberships) Restore(_ context.Context, m models.GroupMembership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.restore"); err != nil {
		return err
	}
	k := memberKey{m.GroupID, m.UserID}
	if cur, exists := r.s.d.memberships[k]; exists && cur.ID != m.ID {
		return membershipstore.ErrDuplicateMembership
	}
	r.s.d.memberships[k] = m
	return nil
}

func (r *Memberships) Get(_ context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.get"); err != nil {
		return models.GroupMembership{}, err
	}
	m, ok := r.s.d.memberships[memberKey{groupID, userID}]
	if !ok {
		return models.GroupMembership{}, mongo.ErrNoDocuments
	}
	return m, nil
}

func (r *Memberships) Transition(_ context.Context, groupID, userID primitive.ObjectID, from, to string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.transition"); err != nil {
		return false, err
	}
	k := memberKey{groupID, userID}
	m, ok := r.s.d.memberships[k]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	m.UpdatedAt = r.s.now()
	r.s.d.memberships[k] = m
	return true, nil
}

func (r *Memberships) Remove(_ context.Context, groupID, userID primitive.ObjectID, status string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.remove"); err != nil {
		return false, err
	}
	k := memberKey{groupID, userID}
	m, ok := r.s.d.memberships[k]
	if !ok || m.Status != status {
		return false, nil
	}
	delete(r.s.d.memberships, k)
	return true, nil
}

func (r *Memberships) ListByGroup(_ context.Context, groupID primitive.ObjectID, statuses ...string) ([]models.GroupMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.list_by_group"); err != nil {
		return nil, err
	}
	return r.list(func(m models.GroupMembership) bool {
		return m.GroupID == groupID && statusIn(m.Status, statuses)
	}), nil
}

func (r *Memberships) ListByUser(_ context.Context, userID primitive.ObjectID, statuses ...string) ([]models.GroupMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.list_by_user"); err != nil {
		return nil, err
	}
	return r.list(func(m models.GroupMembership) bool {
		return m.UserID == userID && statusIn(m.Status, statuses)
	}), nil
}

func (r *Memberships) list(keep func(models.GroupMembership) bool) []models.GroupMembership {
	var out []models.GroupMembership
	for _, m := range r.s.d.memberships {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}

func statusIn(s string, statuses []string) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, x := range statuses {
		if s == x {
			return true
		}
	}
	return false
}

func (r *Memberships) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.delete_by_group"); err != nil {
		return 0, err
	}
	var n int64
	for k := range r.s.d.memberships {
		if k.group == groupID {
			delete(r.s.d.memberships, k)
			n++
		}
	}
	return n, nil
}

func (r *Memberships) CountActive(_ context.Context, groupID primitive.ObjectID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("memberships.count_active"); err != nil {
		return 0, err
	}
	n := 0
	for k, m := range r.s.d.memberships {
		if k.group == groupID && m.Active() {
			n++
		}
	}
	return n, nil
}

// ---- schedule ----

// Schedule implements the schedule index and the reminder source.
type Schedule struct{ s *Store }

func (s *Store) Schedule() *Schedule { return &Schedule{s: s} }

func (r *Schedule) Upsert(_ context.Context, e models.ScheduleEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("schedule.upsert"); err != nil {
		return err
	}
	k := memberKey{e.GroupID, e.UserID}
	prev, ok := r.s.d.schedule[k]
	if ok {
		same := prev.MeetingDate == e.MeetingDate && prev.StartTime == e.StartTime && prev.EndTime == e.EndTime
		prev.ReminderSent = prev.ReminderSent && same
		prev.MeetingDate, prev.StartTime, prev.EndTime = e.MeetingDate, e.StartTime, e.EndTime
		r.s.d.schedule[k] = prev
		return nil
	}
	e.ID = primitive.NewObjectID()
	e.ReminderSent = false
	e.CreatedAt = r.s.now()
	r.s.d.schedule[k] = e
	return nil
}

func (r *Schedule) Remove(_ context.Context, userID, groupID primitive.ObjectID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("schedule.remove"); err != nil {
		return false, err
	}
	k := memberKey{groupID, userID}
	if _, ok := r.s.d.schedule[k]; !ok {
		return false, nil
	}
	delete(r.s.d.schedule, k)
	return true, nil
}

func (r *Schedule) ListByUser(_ context.Context, userID primitive.ObjectID, from, to string) ([]models.ScheduleEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("schedule.list_by_user"); err != nil {
		return nil, err
	}
	return r.list(func(e models.ScheduleEntry) bool {
		return e.UserID == userID && inRange(e.MeetingDate, from, to)
	}, 0), nil
}

func (r *Schedule) ListByGroup(_ context.Context, groupID primitive.ObjectID) ([]models.ScheduleEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("schedule.list_by_group"); err != nil {
		return nil, err
	}
	return r.list(func(e models.ScheduleEntry) bool { return e.GroupID == groupID }, 0), nil
}

func (r *Schedule) Reschedule(_ context.Context, groupID primitive.ObjectID, date, start, end string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("schedule.reschedule"); err != nil {
		return 0, err
	}
	var n int64
	for k, e := range r.s.d.schedule {
		if k.group != groupID {
			continue
		}
		if e.MeetingDate == date && e.StartTime == start && e.EndTime == end && !e.ReminderSent {
			continue
		}
		e.MeetingDate, e.StartTime, e.EndTime, e.ReminderSent = date, start, end, false
		r.s.d.schedule[k] = e
		n++
	}
	return n, nil
}

func (r *Schedule) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("schedule.delete_by_group"); err != nil {
		return 0, err
	}
	var n int64
	for k := range r.s.d.schedule {
		if k.group == groupID {
			delete(r.s.d.schedule, k)
			n++
		}
	}
	return n, nil
}

func (r *Schedule) DueForReminder(_ context.Context, from, to string, limit int) ([]models.ScheduleEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("schedule.due_for_reminder"); err != nil {
		return nil, err
	}
	return r.list(func(e models.ScheduleEntry) bool {
		return !e.ReminderSent && inRange(e.MeetingDate, from, to)
	}, limit), nil
}

func (r *Schedule) MarkReminderSent(_ context.Context, id primitive.ObjectID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("schedule.mark_reminder_sent"); err != nil {
		return false, err
	}
	for k, e := range r.s.d.schedule {
		if e.ID == id {
			if e.ReminderSent {
				return false, nil
			}
			e.ReminderSent = true
			r.s.d.schedule[k] = e
			return true, nil
		}
	}
	return false, nil
}

func (r *Schedule) list(keep func(models.ScheduleEntry) bool, limit int) []models.ScheduleEntry {
	var out []models.ScheduleEntry
	for _, e := range r.s.d.schedule {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MeetingDate != b.MeetingDate {
			return a.MeetingDate < b.MeetingDate
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID.Hex() < b.ID.Hex()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func inRange(date, from, to string) bool {
	return (from == "" || date >= from) && (to == "" || date <= to)
}

// ---- users ----

// Users implements the user directory.
type Users struct{ s *Store }

func (s *Store) Users() *Users { return &Users{s: s} }

// Create inserts u; emails are unique when non-empty.
func (r *Users) Create(_ context.Context, u models.User) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.UserName = strings.Join(strings.Fields(u.UserName), " ")
	if u.UserName == "" {
		return models.User{}, errors.New("user_name is required")
	}
	u.UserNameCI = text.Fold(u.UserName)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email != "" {
		for _, x := range r.s.d.users {
			if x.Email == u.Email {
				return models.User{}, userstore.ErrDuplicateEmail
			}
		}
	}
	now := r.s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.d.users[u.ID] = u
	return u, nil
}

func (r *Users) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.get"); err != nil {
		return nil, err
	}
	u, ok := r.s.d.users[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &u, nil
}

func (r *Users) ListByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := r.s.d.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserNameCI != out[j].UserNameCI {
			return out[i].UserNameCI < out[j].UserNameCI
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

// ---- audit ----

// Audit is an audit sink keeping events in memory.
type Audit struct{ s *Store }

func (s *Store) Audit() *Audit { return &Audit{s: s} }

func (r *Audit) Log(_ context.Context, e audit.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	r.s.d.events = append(r.s.d.events, e)
	return nil
}

// Events returns recorded events of the given type, oldest first.
// An empty eventType returns all events.
func (r *Audit) Events(eventType string) []audit.Event {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []audit.Event
	for _, e := range r.s.d.events {
		if eventType == "" || e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// RepairCandidates returns consistency-repair candidates logged at or after
// since, most recent first. A limit <= 0 means 100.
func (r *Audit) RepairCandidates(_ context.Context, since time.Time, limit int64) ([]audit.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("audit.repair_candidates"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var out []audit.Event
	for i := len(r.s.d.events) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		e := r.s.d.events[i]
		if e.EventType == audit.EventRepairCandidate && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}
