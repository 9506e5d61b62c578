// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/coflow/internal/app/system/inputval"
	"github.com/dalemusser/coflow/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	// helper: ensure collection exists (with truthful logging) and then validator (if provided)
	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			// DocumentDB or other deployments may not support collMod/validators.
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("users", usersSchema())
	ensure("groups", groupsSchema())
	ensure("group_memberships", groupMembershipsSchema())
	ensure("schedule_entries", scheduleEntriesSchema())

	// Written by the audit logger; no validator needed.
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

const (
	nonBlank = ".*\\S.*"
	datePat  = "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"
	clockPat = "^([01][0-9]|2[0-3]):[0-5][0-9]$"
)

// Go ints are stored as int32 when they fit and int64 otherwise.
var intTypes = bson.A{"int", "long"}

func enumOf(vals ...string) bson.A {
	out := bson.A{}
	for _, v := range vals {
		out = append(out, v)
	}
	return out
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_name"},
			"properties": bson.M{
				"user_name":    bson.M{"bsonType": "string", "minLength": 1, "pattern": nonBlank},
				"user_name_ci": bson.M{"bsonType": "string"},
				"email":        bson.M{"bsonType": bson.A{"string", "null"}},
			},
		},
	}
}

// groupsSchema also requires is_full to agree with member_count and
// capacity on every write.
func groupsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{
				"group_name", "capacity", "location", "course", "meeting_date",
				"start_time", "end_time", "group_type", "owner_id", "member_count", "is_full",
			},
			"properties": bson.M{
				"group_name":   bson.M{"bsonType": "string", "minLength": 1, "pattern": nonBlank},
				"description":  bson.M{"bsonType": "string"},
				"capacity":     bson.M{"bsonType": intTypes, "minimum": models.MinCapacity, "maximum": models.MaxCapacity},
				"location":     bson.M{"enum": enumOf(inputval.Locations...)},
				"course":       bson.M{"bsonType": "string", "minLength": 1, "pattern": nonBlank},
				"meeting_date": bson.M{"bsonType": "string", "pattern": datePat},
				"start_time":   bson.M{"bsonType": "string", "pattern": clockPat},
				"end_time":     bson.M{"bsonType": "string", "pattern": clockPat},
				"group_type":   bson.M{"enum": enumOf(inputval.GroupTypes...)},
				"tags":         bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string", "minLength": 1}},
				"owner_id":     bson.M{"bsonType": "objectId"},
				"member_count": bson.M{"bsonType": intTypes, "minimum": 1},
				"is_full":      bson.M{"bsonType": "bool"},
			},
		},
		"$expr": bson.M{"$eq": bson.A{
			"$is_full",
			bson.M{"$gte": bson.A{"$member_count", "$capacity"}},
		}},
	}
}

func groupMembershipsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "group_id", "status"},
			"properties": bson.M{
				"user_id":  bson.M{"bsonType": "objectId"},
				"group_id": bson.M{"bsonType": "objectId"},
				"status": bson.M{"enum": enumOf(
					models.MembershipOwner, models.MembershipMember,
					models.MembershipPending, models.MembershipRejected,
				)},
				"created_at": bson.M{"bsonType": "date"},
				"updated_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func scheduleEntriesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "group_id", "meeting_date", "start_time", "end_time"},
			"properties": bson.M{
				"user_id":       bson.M{"bsonType": "objectId"},
				"group_id":      bson.M{"bsonType": "objectId"},
				"meeting_date":  bson.M{"bsonType": "string", "pattern": datePat},
				"start_time":    bson.M{"bsonType": "string", "pattern": clockPat},
				"end_time":      bson.M{"bsonType": "string", "pattern": clockPat},
				"reminder_sent": bson.M{"bsonType": "bool"},
				"created_at":    bson.M{"bsonType": "date"},
			},
		},
	}
}
