// internal/app/system/txn/txn.go
package txn

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type ctxKey struct{}

// MarkTransactional returns a child context recording that writes made with
// it are part of an atomic unit.
func MarkTransactional(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, true)
}

// InTransaction reports whether ctx was produced inside an atomic unit.
// Multi-step writers use it to decide whether a mid-sequence failure left
// earlier steps committed.
func InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKey{}).(bool)
	return v
}

// Runner executes a function inside a MongoDB multi-document transaction.
//
// Standalone servers do not support transactions. The first time the server
// reports that, the Runner logs a warning, remembers it, and from then on
// runs fn directly so the same ordered writes still happen (non-atomically).
type Runner struct {
	client      *mongo.Client
	log         *zap.Logger
	unsupported atomic.Bool
}

// New creates a Runner for db's client.
func New(db *mongo.Database, log *zap.Logger) *Runner {
	var client *mongo.Client
	if db != nil {
		client = db.Client()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{client: client, log: log}
}

// Atomic reports whether Run currently uses transactions.
func (r *Runner) Atomic() bool {
	return r != nil && r.client != nil && !r.unsupported.Load()
}

// Run executes fn. WithTransaction retries fn on transient errors, so fn must
// be safe to re-run from the start.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.Atomic() {
		return fn(ctx)
	}

	sess, err := r.client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			r.fallback(err)
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(MarkTransactional(sc))
	})
	if err != nil && IsNotSupported(err) {
		r.fallback(err)
		return fn(ctx)
	}
	return err
}

func (r *Runner) fallback(err error) {
	if r.unsupported.CompareAndSwap(false, true) {
		r.log.Warn("transactions not supported; falling back to ordered non-atomic writes",
			zap.Error(err))
	}
}

// IsNotSupported reports whether err indicates the deployment cannot run
// multi-document transactions (standalone server, illegal operation in
// session, etc.).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, // IllegalOperation: transaction numbers only allowed on replica set members
			51,  // legacy illegal operation
			263: // OperationNotSupportedInTransaction
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "illegal operation") {
		return true
	}

	hits := 0
	for _, kw := range []string{"transaction", "replica set", "session", "not supported"} {
		if strings.Contains(msg, kw) {
			hits++
		}
	}
	return hits >= 2
}
