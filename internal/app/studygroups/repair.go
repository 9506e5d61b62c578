// internal/app/studygroups/repair.go
package studygroups

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dalemusser/coflow/internal/app/store/audit"
	"github.com/dalemusser/coflow/internal/app/system/timeouts"
	"github.com/dalemusser/coflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// RepairReport summarizes what a repair changed.
type RepairReport struct {
	MemberCount    int  `json:"member_count"`
	CountFixed     bool `json:"count_fixed"`
	EntriesWritten int  `json:"entries_written"`
	EntriesRemoved int  `json:"entries_removed"`
}

func (r RepairReport) changed() bool {
	return r.CountFixed || r.EntriesWritten > 0 || r.EntriesRemoved > 0
}

func (r RepairReport) details() map[string]string {
	return map[string]string{
		"member_count":    strconv.Itoa(r.MemberCount),
		"count_fixed":     strconv.FormatBool(r.CountFixed),
		"entries_written": strconv.Itoa(r.EntriesWritten),
		"entries_removed": strconv.Itoa(r.EntriesRemoved),
	}
}

func sameSlot(e models.ScheduleEntry, g models.Group) bool {
	return e.MeetingDate == g.MeetingDate && e.StartTime == g.StartTime && e.EndTime == g.EndTime
}

// RepairCommitments rebuilds userID's schedule from their memberships: one
// entry per owned or joined group carrying the group's slot, and nothing
// else. Memberships are the source of truth.
func (m *Manager) RepairCommitments(ctx context.Context, userID primitive.ObjectID) (RepairReport, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), m.Log, "repair commitments")
	defer cancel()

	var rep RepairReport
	err := m.Tx.Run(ctx, func(ctx context.Context) error {
		rep = RepairReport{}
		rows, err := m.Memberships.ListByUser(ctx, userID, models.MembershipOwner, models.MembershipMember)
		if err != nil {
			return fmt.Errorf("list memberships: %w", err)
		}
		entries, err := m.Schedule.ListByUser(ctx, userID, "", "")
		if err != nil {
			return fmt.Errorf("list schedule: %w", err)
		}
		have := make(map[primitive.ObjectID]models.ScheduleEntry, len(entries))
		for _, e := range entries {
			have[e.GroupID] = e
		}

		want := make(map[primitive.ObjectID]bool, len(rows))
		for _, r := range rows {
			g, err := m.Groups.GetByID(ctx, r.GroupID)
			if errors.Is(err, mongo.ErrNoDocuments) {
				continue
			}
			if err != nil {
				return fmt.Errorf("load group: %w", err)
			}
			want[g.ID] = true
			if e, ok := have[g.ID]; ok && sameSlot(e, g) {
				continue
			}
			if err := m.Schedule.Upsert(ctx, models.EntryFor(userID, g)); err != nil {
				return fmt.Errorf("write schedule entry: %w", err)
			}
			rep.EntriesWritten++
		}
		for gid := range have {
			if want[gid] {
				continue
			}
			if _, err := m.Schedule.Remove(ctx, userID, gid); err != nil {
				return fmt.Errorf("remove schedule entry: %w", err)
			}
			rep.EntriesRemoved++
		}
		return nil
	})
	if err != nil {
		return RepairReport{}, err
	}

	if rep.changed() {
		m.Log.Info("commitments repaired", zap.String("user_id", userID.Hex()),
			zap.Int("written", rep.EntriesWritten), zap.Int("removed", rep.EntriesRemoved))
		m.Audit.Repaired(ctx, nil, &userID, rep.details())
	}
	return rep, nil
}

// RepairGroup recounts a group's members from its memberships and brings
// every member's schedule entry in line with the group's slot.
func (m *Manager) RepairGroup(ctx context.Context, groupID primitive.ObjectID) (RepairReport, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), m.Log, "repair group")
	defer cancel()

	g, err := m.getGroup(ctx, groupID)
	if err != nil {
		return RepairReport{}, err
	}

	var rep RepairReport
	err = m.Tx.Run(ctx, func(ctx context.Context) error {
		rep = RepairReport{}
		n, err := m.Memberships.CountActive(ctx, groupID)
		if err != nil {
			return fmt.Errorf("count memberships: %w", err)
		}
		rep.MemberCount = n
		if rep.MemberCount != g.MemberCount {
			if err := m.Groups.SetMemberCount(ctx, groupID, rep.MemberCount); err != nil {
				return fmt.Errorf("set member count: %w", err)
			}
			rep.CountFixed = true
		}

		rows, err := m.Memberships.ListByGroup(ctx, groupID, models.MembershipOwner, models.MembershipMember)
		if err != nil {
			return fmt.Errorf("list memberships: %w", err)
		}
		entries, err := m.Schedule.ListByGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("list schedule: %w", err)
		}
		have := make(map[primitive.ObjectID]models.ScheduleEntry, len(entries))
		for _, e := range entries {
			have[e.UserID] = e
		}
		active := make(map[primitive.ObjectID]bool, len(rows))
		for _, r := range rows {
			active[r.UserID] = true
			if e, ok := have[r.UserID]; ok && sameSlot(e, g) {
				continue
			}
			if err := m.Schedule.Upsert(ctx, models.EntryFor(r.UserID, g)); err != nil {
				return fmt.Errorf("write schedule entry: %w", err)
			}
			rep.EntriesWritten++
		}
		for uid := range have {
			if active[uid] {
				continue
			}
			if _, err := m.Schedule.Remove(ctx, uid, groupID); err != nil {
				return fmt.Errorf("remove schedule entry: %w", err)
			}
			rep.EntriesRemoved++
		}
		return nil
	})
	if err != nil {
		return RepairReport{}, err
	}

	if rep.changed() {
		m.Log.Info("group repaired", zap.String("group_id", groupID.Hex()),
			zap.Int("member_count", rep.MemberCount),
			zap.Int("written", rep.EntriesWritten), zap.Int("removed", rep.EntriesRemoved))
		m.Audit.Repaired(ctx, &groupID, nil, rep.details())
	}
	return rep, nil
}

// RepairCandidates lists partial writes recorded since the given time, most
// recent first. Each event names the operation, its op id and the steps
// left committed; RepairGroup and RepairCommitments are the remedies.
func (m *Manager) RepairCandidates(ctx context.Context, since time.Time, limit int64) ([]audit.Event, error) {
	if m.RepairLog == nil {
		return nil, errors.New("no repair log configured")
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.List(), m.Log, "list repair candidates")
	defer cancel()

	events, err := m.RepairLog.RepairCandidates(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list repair candidates: %w", err)
	}
	return events, nil
}
