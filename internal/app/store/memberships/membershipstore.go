// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/coflow/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists group memberships: one document per (group_id, user_id),
// enforced by a unique index, carrying the relation's status.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_memberships")}
}

var ErrDuplicateMembership = errors.New("user already has a membership record for this group")

var errBadStatus = errors.New("unknown membership status")

func validStatus(s string) bool {
	switch s {
	case models.MembershipOwner, models.MembershipMember, models.MembershipPending, models.MembershipRejected:
		return true
	}
	return false
}

// Insert creates a membership. A second row for the same (group, user)
// returns ErrDuplicateMembership.
func (s *Store) Insert(ctx context.Context, m models.GroupMembership) (models.GroupMembership, error) {
	if !validStatus(m.Status) {
		return models.GroupMembership{}, errBadStatus
	}
	now := time.Now().UTC()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.GroupMembership{}, ErrDuplicateMembership
		}
		return models.GroupMembership{}, err
	}
	return m, nil
}

// Restore writes m back exactly as it was read, keeping its ID and
// timestamps. It undoes a Remove or Transition of the same row.
func (s *Store) Restore(ctx context.Context, m models.GroupMembership) error {
	if !validStatus(m.Status) {
		return errBadStatus
	}
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if wafflemongo.IsDup(err) {
		return ErrDuplicateMembership
	}
	return err
}

// Get returns the membership for (groupID, userID) or mongo.ErrNoDocuments.
func (s *Store) Get(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error) {
	var m models.GroupMembership
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Decode(&m)
	if err != nil {
		return models.GroupMembership{}, err
	}
	return m, nil
}

// Transition moves (groupID, userID) from one status to another only if it
// is currently in from. It reports whether a row changed.
func (s *Store) Transition(ctx context.Context, groupID, userID primitive.ObjectID, from, to string) (bool, error) {
	if !validStatus(to) {
		return false, errBadStatus
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"group_id": groupID, "user_id": userID, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// Remove deletes (groupID, userID) only if it currently has status.
// It reports whether a row was deleted.
func (s *Store) Remove(ctx context.Context, groupID, userID primitive.ObjectID, status string) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"group_id": groupID, "user_id": userID, "status": status})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

// ListByGroup returns the group's memberships, optionally restricted to
// statuses, ordered by when they last changed (approval order for members).
func (s *Store) ListByGroup(ctx context.Context, groupID primitive.ObjectID, statuses ...string) ([]models.GroupMembership, error) {
	filter := bson.M{"group_id": groupID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return s.find(ctx, filter)
}

// ListByUser returns the user's memberships, optionally restricted to statuses.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID, statuses ...string) ([]models.GroupMembership, error) {
	filter := bson.M{"user_id": userID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return s.find(ctx, filter)
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.GroupMembership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.GroupMembership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByGroup removes all memberships for a group.
// Returns the number of documents deleted.
func (s *Store) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountActive returns the number of owner and member rows for a group.
func (s *Store) CountActive(ctx context.Context, groupID primitive.ObjectID) (int, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{
		"group_id": groupID,
		"status":   bson.M{"$in": []string{models.MembershipOwner, models.MembershipMember}},
	})
	return int(n), err
}
