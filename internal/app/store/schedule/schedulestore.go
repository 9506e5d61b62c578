// internal/app/store/schedule/schedulestore.go
package schedulestore

import (
	"context"
	"time"

	"github.com/dalemusser/coflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists per-user schedule entries, one per (user_id, group_id).
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("schedule_entries")}
}

// Upsert writes the entry for (e.UserID, e.GroupID), replacing the date and
// times of an existing one. The reminder flag is reset only when the slot
// actually changes.
func (s *Store) Upsert(ctx context.Context, e models.ScheduleEntry) error {
	now := time.Now().UTC()
	sameSlot := bson.M{"$and": bson.A{
		bson.M{"$eq": bson.A{"$meeting_date", bson.M{"$literal": e.MeetingDate}}},
		bson.M{"$eq": bson.A{"$start_time", bson.M{"$literal": e.StartTime}}},
		bson.M{"$eq": bson.A{"$end_time", bson.M{"$literal": e.EndTime}}},
	}}
	pipeline := mongo.Pipeline{
		// Evaluated against the previous slot, before it is overwritten.
		{{Key: "$set", Value: bson.M{
			"reminder_sent": bson.M{"$cond": bson.A{
				sameSlot,
				bson.M{"$ifNull": bson.A{"$reminder_sent", false}},
				false,
			}},
			"created_at": bson.M{"$ifNull": bson.A{"$created_at", now}},
		}}},
		{{Key: "$set", Value: bson.M{
			"meeting_date": bson.M{"$literal": e.MeetingDate},
			"start_time":   bson.M{"$literal": e.StartTime},
			"end_time":     bson.M{"$literal": e.EndTime},
		}}},
	}
	filter := bson.M{"user_id": e.UserID, "group_id": e.GroupID}
	_, err := s.c.UpdateOne(ctx, filter, pipeline, options.Update().SetUpsert(true))
	return err
}

// Remove deletes the entry for (userID, groupID). It reports whether one existed.
func (s *Store) Remove(ctx context.Context, userID, groupID primitive.ObjectID) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID, "group_id": groupID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

// ListByUser returns the user's entries ordered by date and start time.
// from and to bound meeting_date inclusively; empty means unbounded.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID, from, to string) ([]models.ScheduleEntry, error) {
	filter := bson.M{"user_id": userID}
	if r := dateRange(from, to); r != nil {
		filter["meeting_date"] = r
	}
	return s.find(ctx, filter, 0)
}

// ListByGroup returns every entry pointing at groupID.
func (s *Store) ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.ScheduleEntry, error) {
	return s.find(ctx, bson.M{"group_id": groupID}, 0)
}

// Reschedule moves every entry of groupID to the new slot and clears the
// reminder flag. Returns the number of entries changed.
func (s *Store) Reschedule(ctx context.Context, groupID primitive.ObjectID, date, start, end string) (int64, error) {
	res, err := s.c.UpdateMany(ctx, bson.M{"group_id": groupID}, bson.M{"$set": bson.M{
		"meeting_date":  date,
		"start_time":    start,
		"end_time":      end,
		"reminder_sent": false,
	}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteByGroup removes all entries for a group.
// Returns the number of documents deleted.
func (s *Store) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DueForReminder returns up to limit entries meeting between from and to
// (inclusive) whose reminder has not been sent.
func (s *Store) DueForReminder(ctx context.Context, from, to string, limit int) ([]models.ScheduleEntry, error) {
	filter := bson.M{"reminder_sent": false}
	if r := dateRange(from, to); r != nil {
		filter["meeting_date"] = r
	}
	return s.find(ctx, filter, int64(limit))
}

// MarkReminderSent flags one entry. It reports false if the entry is gone
// or was already flagged.
func (s *Store) MarkReminderSent(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "reminder_sent": false},
		bson.M{"$set": bson.M{"reminder_sent": true}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) find(ctx context.Context, filter bson.M, limit int64) ([]models.ScheduleEntry, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "meeting_date", Value: 1},
		{Key: "start_time", Value: 1},
		{Key: "_id", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ScheduleEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func dateRange(from, to string) bson.M {
	r := bson.M{}
	if from != "" {
		r["$gte"] = from
	}
	if to != "" {
		r["$lte"] = to
	}
	if len(r) == 0 {
		return nil
	}
	return r
}
