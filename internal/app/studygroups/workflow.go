// internal/app/studygroups/workflow.go
package studygroups

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/coflow/internal/app/policy/grouppolicy"
	membershipstore "github.com/dalemusser/coflow/internal/app/store/memberships"
	"github.com/dalemusser/coflow/internal/app/system/apperr"
	"github.com/dalemusser/coflow/internal/app/system/timeouts"
	"github.com/dalemusser/coflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Workflow drives membership admission:
//
//	none -> pending -> member | rejected
//	member -> none (left or removed)
//	pending -> none (cancelled)
type Workflow struct {
	*service
}

// NewWorkflow returns a Workflow using d.
func NewWorkflow(d Deps) *Workflow {
	return &Workflow{service: newService(d)}
}

var errGroupFull = apperr.Conflict("group is full")

// RequestToJoin records a pending request from userID. It fails when the
// group is full, when the user already has a relation to the group, or when
// the meeting overlaps one of the user's commitments.
func (w *Workflow) RequestToJoin(ctx context.Context, userID, groupID primitive.ObjectID) (Result, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), w.Log, "request to join")
	defer cancel()

	g, err := w.getGroup(ctx, groupID)
	if err != nil {
		return Result{}, err
	}
	if _, err := w.getUser(ctx, userID); err != nil {
		return Result{}, err
	}
	if g.IsFull {
		return Result{}, errGroupFull
	}
	m, ok, err := w.membershipOf(ctx, groupID, userID)
	if err != nil {
		return Result{}, err
	}
	if ok {
		return Result{}, relationError(m.Status)
	}
	slot, err := groupSlot(g)
	if err != nil {
		return Result{}, fmt.Errorf("group %s has an invalid slot: %w", groupID.Hex(), err)
	}
	if err := w.checkUser(ctx, userID, slot, groupID); err != nil {
		return Result{}, err
	}

	err = w.runWrites(ctx, "request_to_join", &groupID, &userID, step{
		name: "membership.pending",
		do: func(ctx context.Context) error {
			_, err := w.Memberships.Insert(ctx, models.GroupMembership{
				GroupID: groupID, UserID: userID, Status: models.MembershipPending,
			})
			if errors.Is(err, membershipstore.ErrDuplicateMembership) {
				return apperr.Validation("You already have a request or membership for this group.")
			}
			if err != nil {
				return fmt.Errorf("insert pending membership: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return Result{}, err
	}

	w.Audit.JoinRequested(ctx, userID, groupID)
	return Result{GroupID: groupID, UserID: userID, Status: models.MembershipPending, Changed: true}, nil
}

func relationError(status string) error {
	switch status {
	case models.MembershipOwner, models.MembershipMember:
		return apperr.Validation("You are already a member of this group.")
	case models.MembershipPending:
		return apperr.Validation("You already have a pending request for this group.")
	case models.MembershipRejected:
		return apperr.Validation("Your request to join this group was declined.")
	}
	return apperr.Validation("You already have a request or membership for this group.")
}

// CancelRequest withdraws userID's pending request. Without one it is a
// no-op and returns Changed=false.
func (w *Workflow) CancelRequest(ctx context.Context, userID, groupID primitive.ObjectID) (Result, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), w.Log, "cancel request")
	defer cancel()

	res := Result{GroupID: groupID, UserID: userID}
	err := w.runWrites(ctx, "cancel_request", &groupID, &userID, step{
		name: "membership.remove_pending",
		do: func(ctx context.Context) error {
			ok, err := w.Memberships.Remove(ctx, groupID, userID, models.MembershipPending)
			if err != nil {
				return fmt.Errorf("remove pending membership: %w", err)
			}
			res.Changed = ok
			return nil
		},
	})
	if err != nil {
		return Result{}, err
	}
	if !res.Changed {
		m, ok, err := w.membershipOf(ctx, groupID, userID)
		if err != nil {
			return Result{}, err
		}
		if ok {
			res.Status = m.Status
		}
		return res, nil
	}

	w.Audit.JoinCancelled(ctx, userID, groupID)
	return res, nil
}

// ownedGroup loads groupID and checks that adminID owns it.
func (w *Workflow) ownedGroup(ctx context.Context, adminID, groupID primitive.ObjectID, action string) (models.Group, error) {
	g, err := w.getGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !grouppolicy.CanManageGroup(g, adminID) {
		return models.Group{}, apperr.Forbidden("only the group owner can %s", action)
	}
	return g, nil
}

var errNotPending = apperr.Validation("User does not have a pending request for this group.")

// ApproveUser moves userID from pending to member. Capacity is enforced by
// the conditional increment, so concurrent approvals cannot over-fill the
// group. Schedule conflicts are only re-checked when
// RecheckConflictsOnApproval is set.
func (w *Workflow) ApproveUser(ctx context.Context, adminID, userID, groupID primitive.ObjectID) (Result, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), w.Log, "approve user")
	defer cancel()

	g, err := w.ownedGroup(ctx, adminID, groupID, "approve requests")
	if err != nil {
		return Result{}, err
	}
	m, ok, err := w.membershipOf(ctx, groupID, userID)
	if err != nil {
		return Result{}, err
	}
	if !ok || m.Status != models.MembershipPending {
		return Result{}, errNotPending
	}
	if g.IsFull {
		return Result{}, errGroupFull
	}
	if w.RecheckConflictsOnApproval {
		slot, err := groupSlot(g)
		if err != nil {
			return Result{}, fmt.Errorf("group %s has an invalid slot: %w", groupID.Hex(), err)
		}
		if err := w.checkUser(ctx, userID, slot, groupID); err != nil {
			return Result{}, err
		}
	}

	err = w.runWrites(ctx, "approve_user", &groupID, &userID,
		step{
			name: "group.add_member",
			do: func(ctx context.Context) error {
				ok, err := w.Groups.AddMember(ctx, groupID)
				if err != nil {
					return fmt.Errorf("add member: %w", err)
				}
				if !ok {
					return errGroupFull
				}
				return nil
			},
			undo: func(ctx context.Context) error {
				_, err := w.Groups.RemoveMember(ctx, groupID)
				return err
			},
		},
		step{
			name: "membership.approve",
			do: func(ctx context.Context) error {
				ok, err := w.Memberships.Transition(ctx, groupID, userID, models.MembershipPending, models.MembershipMember)
				if err != nil {
					return fmt.Errorf("approve membership: %w", err)
				}
				if !ok {
					return errNotPending
				}
				return nil
			},
			undo: func(ctx context.Context) error {
				return w.Memberships.Restore(ctx, m)
			},
		},
		step{
			name: "schedule.upsert",
			do: func(ctx context.Context) error {
				if err := w.Schedule.Upsert(ctx, models.EntryFor(userID, g)); err != nil {
					return fmt.Errorf("write schedule entry: %w", err)
				}
				return nil
			},
		},
	)
	if err != nil {
		return Result{}, err
	}

	w.Log.Info("member approved",
		zap.String("group_id", groupID.Hex()),
		zap.String("user_id", userID.Hex()))
	w.Audit.MemberApproved(ctx, adminID, userID, groupID)
	return Result{GroupID: groupID, UserID: userID, Status: models.MembershipMember, Changed: true}, nil
}

// RejectUser moves userID from pending to rejected. Rejected users cannot
// request the same group again.
func (w *Workflow) RejectUser(ctx context.Context, adminID, userID, groupID primitive.ObjectID) (Result, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), w.Log, "reject user")
	defer cancel()

	if _, err := w.ownedGroup(ctx, adminID, groupID, "reject requests"); err != nil {
		return Result{}, err
	}
	err := w.runWrites(ctx, "reject_user", &groupID, &userID, step{
		name: "membership.reject",
		do: func(ctx context.Context) error {
			ok, err := w.Memberships.Transition(ctx, groupID, userID, models.MembershipPending, models.MembershipRejected)
			if err != nil {
				return fmt.Errorf("reject membership: %w", err)
			}
			if !ok {
				return errNotPending
			}
			return nil
		},
	})
	if err != nil {
		return Result{}, err
	}

	w.Audit.MemberRejected(ctx, adminID, userID, groupID)
	return Result{GroupID: groupID, UserID: userID, Status: models.MembershipRejected, Changed: true}, nil
}

// RemoveUser removes a non-owner member on behalf of the owner.
func (w *Workflow) RemoveUser(ctx context.Context, adminID, targetID, groupID primitive.ObjectID) (Result, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), w.Log, "remove user")
	defer cancel()

	g, err := w.ownedGroup(ctx, adminID, groupID, "remove members")
	if err != nil {
		return Result{}, err
	}
	if targetID == g.OwnerID {
		return Result{}, apperr.Validation("The group owner cannot be removed.")
	}
	if err := w.dropMember(ctx, "remove_user", groupID, targetID, "User is not a member of this group."); err != nil {
		return Result{}, err
	}

	w.Audit.MemberRemoved(ctx, adminID, targetID, groupID)
	return Result{GroupID: groupID, UserID: targetID, Changed: true}, nil
}

// LeaveGroup removes userID from the group at their own request. The owner
// cannot leave; they delete the group instead.
func (w *Workflow) LeaveGroup(ctx context.Context, userID, groupID primitive.ObjectID) (Result, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), w.Log, "leave group")
	defer cancel()

	g, err := w.getGroup(ctx, groupID)
	if err != nil {
		return Result{}, err
	}
	if userID == g.OwnerID {
		return Result{}, apperr.Validation("The group owner cannot leave the group; delete it instead.")
	}
	if err := w.dropMember(ctx, "leave_group", groupID, userID, "You are not a member of this group."); err != nil {
		return Result{}, err
	}

	w.Audit.MemberLeft(ctx, userID, groupID)
	return Result{GroupID: groupID, UserID: userID, Changed: true}, nil
}

// dropMember deletes a member row, decrements the count and removes the
// user's schedule entry.
func (w *Workflow) dropMember(ctx context.Context, op string, groupID, userID primitive.ObjectID, notMember string) error {
	var prev models.GroupMembership
	err := w.runWrites(ctx, op, &groupID, &userID,
		step{
			name: "membership.remove",
			do: func(ctx context.Context) error {
				m, ok, err := w.membershipOf(ctx, groupID, userID)
				if err != nil {
					return err
				}
				if !ok || m.Status != models.MembershipMember {
					return apperr.Validation("%s", notMember)
				}
				prev = m
				ok, err = w.Memberships.Remove(ctx, groupID, userID, models.MembershipMember)
				if err != nil {
					return fmt.Errorf("remove membership: %w", err)
				}
				if !ok {
					return apperr.Validation("%s", notMember)
				}
				return nil
			},
			undo: func(ctx context.Context) error {
				return w.Memberships.Restore(ctx, prev)
			},
		},
		step{
			name: "group.remove_member",
			do: func(ctx context.Context) error {
				ok, err := w.Groups.RemoveMember(ctx, groupID)
				if err != nil {
					return fmt.Errorf("remove member: %w", err)
				}
				if !ok {
					// The row was authoritative; RepairGroup recounts.
					w.Log.Warn("member count already at minimum",
						zap.String("group_id", groupID.Hex()),
						zap.String("user_id", userID.Hex()))
				}
				return nil
			},
		},
		step{
			name: "schedule.remove",
			do: func(ctx context.Context) error {
				if _, err := w.Schedule.Remove(ctx, userID, groupID); err != nil {
					return fmt.Errorf("remove schedule entry: %w", err)
				}
				return nil
			},
		},
	)
	if err != nil {
		return err
	}
	w.Log.Info("member removed",
		zap.String("op", op),
		zap.String("group_id", groupID.Hex()),
		zap.String("user_id", userID.Hex()))
	return nil
}

// PendingUsers lists users awaiting approval, oldest request first.
// Only the owner may list them.
func (w *Workflow) PendingUsers(ctx context.Context, groupID, adminID primitive.ObjectID) ([]models.User, error) {
	return w.rosterUsers(ctx, groupID, adminID, models.MembershipPending)
}

// JoinedUsers lists the owner followed by members in approval order.
// Only the owner may list them.
func (w *Workflow) JoinedUsers(ctx context.Context, groupID, adminID primitive.ObjectID) ([]models.User, error) {
	return w.rosterUsers(ctx, groupID, adminID, models.MembershipMember)
}

func (w *Workflow) rosterUsers(ctx context.Context, groupID, adminID primitive.ObjectID, status string) ([]models.User, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.List(), w.Log, "list roster")
	defer cancel()

	g, err := w.ownedGroup(ctx, adminID, groupID, "view the roster")
	if err != nil {
		return nil, err
	}
	g, err = w.hydrate(ctx, g)
	if err != nil {
		return nil, err
	}
	ids := g.Members
	if status == models.MembershipPending {
		ids = g.PendingMembers
	}
	return w.usersInOrder(ctx, ids)
}
