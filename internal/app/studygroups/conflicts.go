// internal/app/studygroups/conflicts.go
package studygroups

import (
	"context"
	"fmt"

	"github.com/dalemusser/coflow/internal/app/system/apperr"
	"github.com/dalemusser/coflow/internal/app/system/timeslot"
	"github.com/dalemusser/coflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// conflictWorkers bounds concurrent per-member schedule reads.
const conflictWorkers = 4

// MemberConflict lists one member's commitments that overlap a slot.
type MemberConflict struct {
	UserID   primitive.ObjectID    `json:"user_id"`
	UserName string                `json:"user_name"`
	Entries  []models.ScheduleEntry `json:"entries"`
}

func entrySlot(e models.ScheduleEntry) (timeslot.Slot, bool) {
	s, err := timeslot.New(e.MeetingDate, e.StartTime, e.EndTime)
	return s, err == nil
}

func groupSlot(g models.Group) (timeslot.Slot, error) {
	return timeslot.New(g.MeetingDate, g.StartTime, g.EndTime)
}

// sameDayEntries returns userID's schedule entries on slot's date, ignoring
// the entry for exclude (the group being joined or rescheduled).
func (s *service) sameDayEntries(ctx context.Context, userID primitive.ObjectID, slot timeslot.Slot, exclude primitive.ObjectID) ([]models.ScheduleEntry, error) {
	entries, err := s.Schedule.ListByUser(ctx, userID, slot.Date, slot.Date)
	if err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	others := entries[:0]
	for _, e := range entries {
		if e.GroupID != exclude {
			others = append(others, e)
		}
	}
	return others, nil
}

// conflictsFor returns every entry of userID overlapping slot.
func (s *service) conflictsFor(ctx context.Context, userID primitive.ObjectID, slot timeslot.Slot, exclude primitive.ObjectID) ([]models.ScheduleEntry, error) {
	others, err := s.sameDayEntries(ctx, userID, slot, exclude)
	if err != nil {
		return nil, err
	}
	return timeslot.Conflicts(slot, others, entrySlot), nil
}

// checkUser returns a ScheduleConflictError naming the first clashing
// group when userID is already committed during slot.
func (s *service) checkUser(ctx context.Context, userID primitive.ObjectID, slot timeslot.Slot, exclude primitive.ObjectID) error {
	others, err := s.sameDayEntries(ctx, userID, slot, exclude)
	if err != nil {
		return err
	}
	hit, ok := timeslot.First(slot, others, entrySlot)
	if !ok {
		return nil
	}
	return s.conflictError(ctx, userID, "", hit)
}

func (s *service) conflictError(ctx context.Context, userID primitive.ObjectID, userName string, hit models.ScheduleEntry) error {
	name := hit.GroupID.Hex()
	if g, err := s.Groups.GetByID(ctx, hit.GroupID); err == nil {
		name = g.GroupName
	}
	slot, _ := entrySlot(hit)
	return &ScheduleConflictError{
		UserID:    userID,
		UserName:  userName,
		GroupID:   hit.GroupID,
		GroupName: name,
		Slot:      slot,
	}
}

// memberConflicts checks every active member of g (owner first) against
// slot, excluding g itself. Results keep member order.
func (s *service) memberConflicts(ctx context.Context, g models.Group, slot timeslot.Slot) ([]MemberConflict, error) {
	g, err := s.hydrate(ctx, g)
	if err != nil {
		return nil, err
	}

	found := make([][]models.ScheduleEntry, len(g.Members))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(conflictWorkers)
	for i, uid := range g.Members {
		eg.Go(func() error {
			hits, err := s.conflictsFor(ectx, uid, slot, g.ID)
			if err != nil {
				return err
			}
			found[i] = hits
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var ids []primitive.ObjectID
	for i, hits := range found {
		if len(hits) > 0 {
			ids = append(ids, g.Members[i])
		}
	}
	users, err := s.usersInOrder(ctx, ids)
	if err != nil {
		return nil, err
	}
	userNames := make(map[primitive.ObjectID]string, len(users))
	for _, u := range users {
		userNames[u.ID] = u.UserName
	}

	out := []MemberConflict{}
	for i, hits := range found {
		if len(hits) == 0 {
			continue
		}
		uid := g.Members[i]
		name := userNames[uid]
		if name == "" {
			name = uid.Hex()
		}
		out = append(out, MemberConflict{UserID: uid, UserName: name, Entries: hits})
	}
	return out, nil
}

// MemberConflicts reports which current members of a group would be
// double-booked if it moved to the given date and times.
func (m *Manager) MemberConflicts(ctx context.Context, groupID primitive.ObjectID, date, start, end string) ([]MemberConflict, error) {
	slot, err := timeslot.New(date, start, end)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	g, err := m.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return m.memberConflicts(ctx, g, slot)
}
