// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"
	"strings"

	"github.com/dalemusser/coflow/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings for a category.
const (
	All = "all" // MongoDB + zap
	DB  = "db"  // MongoDB only
	Log = "log" // zap only
	Off = "off" // disabled
)

// Config holds audit logging configuration.
type Config struct {
	// Group controls group lifecycle events (created, updated, deleted).
	Group string
	// Membership controls join requests, approvals, rejections, removals and leaves.
	Membership string
	// Consistency controls partial-write repair candidates and repairs.
	Consistency string
}

// Sink persists audit events. *audit.Store implements it.
type Sink interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger provides convenience methods for logging audit events.
// It logs to both a Sink (MongoDB in production) and structured logs (zap).
type Logger struct {
	store  Sink
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store Sink, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.GroupID != nil {
		fields = append(fields, zap.String("group_id", event.GroupID.Hex()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.OpID != "" {
		fields = append(fields, zap.String("op_id", event.OpID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryGroup:
		setting = l.config.Group
	case audit.CategoryMembership:
		setting = l.config.Membership
	case audit.CategoryConsistency:
		setting = l.config.Consistency
	}
	if setting == "" {
		setting = All
	}

	if setting == Off {
		return
	}

	if setting == All || setting == Log {
		l.logToZap(event)
	}

	if (setting == All || setting == DB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// ValidSetting reports whether s is an accepted destination setting.
func ValidSetting(s string) bool {
	switch s {
	case All, DB, Log, Off:
		return true
	}
	return false
}

// --- Group Events ---

// GroupCreated logs a group creation by its founder.
func (l *Logger) GroupCreated(ctx context.Context, founderID, groupID primitive.ObjectID, groupName string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryGroup,
		EventType: audit.EventGroupCreated,
		GroupID:   &groupID,
		ActorID:   &founderID,
		Success:   true,
		Details: map[string]string{
			"group_name": groupName,
		},
	})
}

// GroupUpdated logs a group update. fields lists the changed field names.
func (l *Logger) GroupUpdated(ctx context.Context, actorID, groupID primitive.ObjectID, fields []string, rescheduled int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryGroup,
		EventType: audit.EventGroupUpdated,
		GroupID:   &groupID,
		ActorID:   &actorID,
		Success:   true,
		Details: map[string]string{
			"fields_changed":     strings.Join(fields, ","),
			"schedule_rewritten": strconv.FormatInt(rescheduled, 10),
		},
	})
}

// GroupDeleted logs a group deletion with the number of cascaded records.
func (l *Logger) GroupDeleted(ctx context.Context, actorID, groupID primitive.ObjectID, groupName string, memberships, entries int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryGroup,
		EventType: audit.EventGroupDeleted,
		GroupID:   &groupID,
		ActorID:   &actorID,
		Success:   true,
		Details: map[string]string{
			"group_name":          groupName,
			"memberships_deleted": strconv.FormatInt(memberships, 10),
			"entries_deleted":     strconv.FormatInt(entries, 10),
		},
	})
}

// --- Membership Events ---

func (l *Logger) membership(ctx context.Context, eventType string, actorID *primitive.ObjectID, userID, groupID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: eventType,
		GroupID:   &groupID,
		UserID:    &userID,
		ActorID:   actorID,
		Success:   true,
	})
}

// JoinRequested logs a user's request to join a group.
func (l *Logger) JoinRequested(ctx context.Context, userID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventJoinRequested, &userID, userID, groupID)
}

// JoinCancelled logs a user withdrawing a pending request.
func (l *Logger) JoinCancelled(ctx context.Context, userID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventJoinCancelled, &userID, userID, groupID)
}

// MemberApproved logs the owner approving a pending user.
func (l *Logger) MemberApproved(ctx context.Context, ownerID, userID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventMemberApproved, &ownerID, userID, groupID)
}

// MemberRejected logs the owner rejecting a pending user.
func (l *Logger) MemberRejected(ctx context.Context, ownerID, userID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventMemberRejected, &ownerID, userID, groupID)
}

// MemberRemoved logs the owner removing a member.
func (l *Logger) MemberRemoved(ctx context.Context, ownerID, userID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventMemberRemoved, &ownerID, userID, groupID)
}

// MemberLeft logs a member leaving on their own.
func (l *Logger) MemberLeft(ctx context.Context, userID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventMemberLeft, &userID, userID, groupID)
}

// --- Consistency Events ---

// RepairCandidate records a multi-step write that stopped part way without
// a transaction. completed lists the steps that did commit.
func (l *Logger) RepairCandidate(ctx context.Context, opID, op string, groupID, userID *primitive.ObjectID, completed []string, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryConsistency,
		EventType:     audit.EventRepairCandidate,
		GroupID:       groupID,
		UserID:        userID,
		OpID:          opID,
		Success:       false,
		FailureReason: reason,
		Details: map[string]string{
			"operation":       op,
			"completed_steps": strings.Join(completed, ","),
		},
	})
}

// Repaired records a successful repair and what it changed.
func (l *Logger) Repaired(ctx context.Context, groupID, userID *primitive.ObjectID, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryConsistency,
		EventType: audit.EventRepaired,
		GroupID:   groupID,
		UserID:    userID,
		Success:   true,
		Details:   details,
	})
}
