// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"regexp"
	"time"

	"github.com/dalemusser/coflow/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists study groups.
//
// member_count and is_full are only changed by pipeline updates that
// recompute is_full from the stored member_count and capacity in the same
// write, so the two can never disagree.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

// isFullStage recomputes is_full after an earlier stage changed the count
// or the capacity.
var isFullStage = bson.D{{Key: "$set", Value: bson.M{
	"is_full": bson.M{"$gte": bson.A{"$member_count", "$capacity"}},
}}}

// lit wraps a user-supplied value so a pipeline update stores it verbatim
// (strings beginning with "$" would otherwise be read as field paths).
func lit(v interface{}) bson.M {
	return bson.M{"$literal": v}
}

// FoldTags returns the case- and diacritic-folded form of each tag.
func FoldTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = text.Fold(t)
	}
	return out
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// Create inserts g, filling the folded search fields and timestamps.
// A zero ID is replaced with a new one.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	if g.ID.IsZero() {
		g.ID = primitive.NewObjectID()
	}
	g.GroupNameCI = text.Fold(g.GroupName)
	g.DescriptionCI = text.Fold(g.Description)
	g.CourseCI = text.Fold(g.Course)
	if g.Tags == nil {
		g.Tags = []string{}
	}
	g.TagsCI = FoldTags(g.Tags)
	g.IsFull = g.MemberCount >= g.Capacity
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = g.CreatedAt
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// Update applies u and returns the updated group.
//
// When u changes the capacity, the filter also requires
// member_count <= new capacity; a concurrent approval that raised the count
// makes the update match nothing and mongo.ErrNoDocuments is returned.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, u models.GroupUpdate) (models.Group, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if u.GroupName != nil {
		set["group_name"] = lit(*u.GroupName)
		set["group_name_ci"] = lit(text.Fold(*u.GroupName))
	}
	if u.Description != nil {
		set["description"] = lit(*u.Description)
		set["description_ci"] = lit(text.Fold(*u.Description))
	}
	if u.Capacity != nil {
		set["capacity"] = *u.Capacity
	}
	if u.Location != nil {
		set["location"] = lit(*u.Location)
	}
	if u.Course != nil {
		set["course"] = lit(*u.Course)
		set["course_ci"] = lit(text.Fold(*u.Course))
	}
	if u.MeetingDate != nil {
		set["meeting_date"] = lit(*u.MeetingDate)
	}
	if u.StartTime != nil {
		set["start_time"] = lit(*u.StartTime)
	}
	if u.EndTime != nil {
		set["end_time"] = lit(*u.EndTime)
	}
	if u.GroupType != nil {
		set["group_type"] = lit(*u.GroupType)
	}
	if u.Tags != nil {
		set["tags"] = lit(u.Tags)
		set["tags_ci"] = lit(FoldTags(u.Tags))
	}

	filter := bson.M{"_id": id}
	if u.Capacity != nil {
		filter["member_count"] = bson.M{"$lte": *u.Capacity}
	}

	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}, isFullStage}
	var g models.Group
	err := s.c.FindOneAndUpdate(ctx, filter, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&g)
	if err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// AddMember increments member_count only while it is below capacity.
// It reports false when the group is full (or missing).
func (s *Store) AddMember(ctx context.Context, id primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"_id":   id,
		"$expr": bson.M{"$lt": bson.A{"$member_count", "$capacity"}},
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"member_count": bson.M{"$add": bson.A{"$member_count", 1}},
			"updated_at":   time.Now().UTC(),
		}}},
		isFullStage,
	}
	res, err := s.c.UpdateOne(ctx, filter, pipeline)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// RemoveMember decrements member_count. The owner is always counted, so the
// count never drops below one; it reports false when nothing was decremented.
func (s *Store) RemoveMember(ctx context.Context, id primitive.ObjectID) (bool, error) {
	filter := bson.M{"_id": id, "member_count": bson.M{"$gt": 1}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"member_count": bson.M{"$add": bson.A{"$member_count", -1}},
			"updated_at":   time.Now().UTC(),
		}}},
		isFullStage,
	}
	res, err := s.c.UpdateOne(ctx, filter, pipeline)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// SetMemberCount overwrites member_count (used by consistency repair).
func (s *Store) SetMemberCount(ctx context.Context, id primitive.ObjectID, n int) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"member_count": n, "updated_at": time.Now().UTC()}}},
		isFullStage,
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete removes a group by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Find returns groups matching f, sorted by f.SortBy (meeting date and
// start time by default).
func (s *Store) Find(ctx context.Context, f models.GroupFilter) ([]models.Group, error) {
	dir := 1
	if f.SortDesc {
		dir = -1
	}
	sort := bson.D{}
	switch f.SortBy {
	case models.SortByName, models.SortByCapacity, models.SortByCreatedAt:
		sort = append(sort, bson.E{Key: f.SortBy, Value: dir})
	default:
		sort = append(sort,
			bson.E{Key: "meeting_date", Value: dir},
			bson.E{Key: "start_time", Value: dir})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	cur, err := s.c.Find(ctx, FilterQuery(f), options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FilterQuery translates f into a MongoDB query document.
func FilterQuery(f models.GroupFilter) bson.M {
	q := bson.M{}
	if len(f.IDs) > 0 {
		q["_id"] = bson.M{"$in": f.IDs}
	}
	if f.Course != "" {
		q["course_ci"] = text.Fold(f.Course)
	}
	if f.GroupType != "" {
		q["group_type"] = f.GroupType
	}
	if f.Location != "" {
		q["location"] = f.Location
	}
	if len(f.Tags) > 0 {
		q["tags_ci"] = bson.M{"$in": FoldTags(f.Tags)}
	}
	if !f.IncludeFull {
		q["is_full"] = false
	}

	date := bson.M{}
	if f.MeetingDate != "" {
		date["$eq"] = f.MeetingDate
	}
	if !f.IncludePast && f.Today != "" {
		date["$gte"] = f.Today
	}
	if len(date) > 0 {
		q["meeting_date"] = date
	}

	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(text.Fold(f.Search))}
		q["$or"] = bson.A{
			bson.M{"group_name_ci": re},
			bson.M{"course_ci": re},
			bson.M{"description_ci": re},
			bson.M{"tags_ci": re},
		}
	}
	return q
}
