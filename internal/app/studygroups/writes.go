// internal/app/studygroups/writes.go
package studygroups

import (
	"context"

	"github.com/dalemusser/coflow/internal/app/system/apperr"
	"github.com/dalemusser/coflow/internal/app/system/txn"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// step is one write in an ordered sequence. undo, when set, reverses a
// committed do; it only runs when the sequence ran without a transaction.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// runWrites executes steps in order inside the Transactor.
//
// Inside a transaction a failure rolls everything back and the step's error
// is returned unchanged. Outside one, committed steps are undone newest
// first; the first step that cannot be undone, and everything before it,
// stays committed and is reported as a PartialWriteError.
func (s *service) runWrites(ctx context.Context, op string, groupID, userID *primitive.ObjectID, steps ...step) error {
	var (
		done   []step
		atomic bool
	)
	err := s.Tx.Run(ctx, func(ctx context.Context) error {
		// The transactor may retry fn from the start.
		done, atomic = done[:0], txn.InTransaction(ctx)
		for _, st := range steps {
			if err := st.do(ctx); err != nil {
				return err
			}
			done = append(done, st)
		}
		return nil
	})
	if err == nil || atomic || len(done) == 0 {
		return err
	}

	committed := s.compensate(ctx, op, done)
	if len(committed) == 0 {
		return err
	}

	opID := uuid.NewString()
	s.Log.Error("partial write: consistency repair needed",
		zap.String("op", op),
		zap.String("op_id", opID),
		zap.Strings("committed", committed),
		zap.Stringer("group_id", idOrZero(groupID)),
		zap.Stringer("user_id", idOrZero(userID)),
		zap.Error(err))
	s.Audit.RepairCandidate(ctx, opID, op, groupID, userID, committed, err)
	return &apperr.PartialWriteError{Op: op, OpID: opID, Steps: committed, Err: err}
}

// compensate undoes done newest first and returns the names of the steps
// still committed, in execution order.
func (s *service) compensate(ctx context.Context, op string, done []step) []string {
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.undo == nil {
			return names(done[:i+1])
		}
		if err := st.undo(ctx); err != nil {
			s.Log.Warn("undo failed", zap.String("op", op), zap.String("step", st.name), zap.Error(err))
			return names(done[:i+1])
		}
	}
	return nil
}

func names(steps []step) []string {
	out := make([]string, len(steps))
	for i, st := range steps {
		out[i] = st.name
	}
	return out
}

func idOrZero(id *primitive.ObjectID) primitive.ObjectID {
	if id == nil {
		return primitive.NilObjectID
	}
	return *id
}
