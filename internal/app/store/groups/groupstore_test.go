package groupstore_test

import (
	"errors"
	"testing"

	groupstore "github.com/dalemusser/coflow/internal/app/store/groups"
	"github.com/dalemusser/coflow/internal/domain/models"
	"github.com/dalemusser/coflow/internal/testutil"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := testutil.NewGroup(primitive.NewObjectID(), "2030-03-01", "14:00", "16:00")
	g.GroupName = "Équations Review"
	g.Tags = []string{"Finals", "Calc"}

	created, err := store.Create(ctx, g)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID.IsZero() {
		t.Error("expected ID to be assigned")
	}
	if created.GroupNameCI != text.Fold(g.GroupName) {
		t.Errorf("GroupNameCI = %q, want folded name", created.GroupNameCI)
	}
	if len(created.TagsCI) != 2 || created.TagsCI[0] != text.Fold("Finals") {
		t.Errorf("TagsCI = %v", created.TagsCI)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.GroupName != g.GroupName || got.MemberCount != 1 || got.IsFull {
		t.Errorf("GetByID = %+v", got)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.GetByID(ctx, primitive.NewObjectID())
	if !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("expected mongo.ErrNoDocuments, got %v", err)
	}
}

func TestStore_AddMember_StopsAtCapacity(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := testutil.NewGroup(primitive.NewObjectID(), "2030-03-01", "14:00", "16:00")
	g.Capacity = 2
	created, err := store.Create(ctx, g)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ok, err := store.AddMember(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("first AddMember = %v, %v; want true", ok, err)
	}
	ok, err = store.AddMember(ctx, created.ID)
	if err != nil {
		t.Fatalf("second AddMember failed: %v", err)
	}
	if ok {
		t.Error("AddMember should refuse when the group is full")
	}

	got, _ := store.GetByID(ctx, created.ID)
	if got.MemberCount != 2 || !got.IsFull {
		t.Errorf("after fill: member_count=%d is_full=%v", got.MemberCount, got.IsFull)
	}

	ok, err = store.RemoveMember(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("RemoveMember = %v, %v", ok, err)
	}
	got, _ = store.GetByID(ctx, created.ID)
	if got.MemberCount != 1 || got.IsFull {
		t.Errorf("after remove: member_count=%d is_full=%v", got.MemberCount, got.IsFull)
	}

	// Owner is never decremented away.
	ok, err = store.RemoveMember(ctx, created.ID)
	if err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if ok {
		t.Error("RemoveMember should not drop below one")
	}
}

func TestStore_Update(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, testutil.NewGroup(primitive.NewObjectID(), "2030-03-01", "14:00", "16:00"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.AddMember(ctx, created.ID); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	name := "$weird name"
	capacity := 2
	updated, err := store.Update(ctx, created.ID, models.GroupUpdate{
		GroupName: &name,
		Capacity:  &capacity,
		Tags:      []string{"$tag"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.GroupName != name {
		t.Errorf("GroupName = %q, want literal %q", updated.GroupName, name)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "$tag" {
		t.Errorf("Tags = %v", updated.Tags)
	}
	if !updated.IsFull {
		t.Error("expected is_full after shrinking capacity to member count")
	}

	// Capacity below member count matches nothing.
	one := 1
	if _, err := store.Update(ctx, created.ID, models.GroupUpdate{Capacity: &one}); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("expected mongo.ErrNoDocuments, got %v", err)
	}
}

func TestStore_Find(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := groupstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := primitive.NewObjectID()
	mk := func(name, date, course string, tags []string, full bool) models.Group {
		g := testutil.NewGroup(owner, date, "10:00", "11:00")
		g.GroupName = name
		g.Course = course
		g.Tags = tags
		if full {
			g.Capacity = 2
			g.MemberCount = 2
		}
		created, err := store.Create(ctx, g)
		if err != nil {
			t.Fatalf("Create(%s) failed: %v", name, err)
		}
		return created
	}
	mk("Past review", "2020-01-01", "CS 115", nil, false)
	mk("Linear algebra", "2030-02-01", "MA 232", []string{"Matrices"}, false)
	mk("Full house", "2030-02-02", "CS 115", nil, true)
	mk("Data structures", "2030-01-15", "CS 284", []string{"trees"}, false)

	names := func(gs []models.Group) []string {
		out := make([]string, len(gs))
		for i, g := range gs {
			out[i] = g.GroupName
		}
		return out
	}

	tests := []struct {
		name   string
		filter models.GroupFilter
		want   []string
	}{
		{"default excludes past and full", models.GroupFilter{Today: "2025-01-01"},
			[]string{"Data structures", "Linear algebra"}},
		{"include full", models.GroupFilter{Today: "2025-01-01", IncludeFull: true},
			[]string{"Data structures", "Linear algebra", "Full house"}},
		{"include past", models.GroupFilter{Today: "2025-01-01", IncludePast: true},
			[]string{"Past review", "Data structures", "Linear algebra"}},
		{"course", models.GroupFilter{Today: "2025-01-01", Course: "cs 115", IncludeFull: true},
			[]string{"Full house"}},
		{"tags", models.GroupFilter{Today: "2025-01-01", Tags: []string{"MATRICES"}},
			[]string{"Linear algebra"}},
		{"search substring", models.GroupFilter{Today: "2025-01-01", Search: "STRUCT"},
			[]string{"Data structures"}},
		{"search tag", models.GroupFilter{Today: "2025-01-01", Search: "tree"},
			[]string{"Data structures"}},
		{"search escapes regex", models.GroupFilter{Today: "2025-01-01", Search: ".*"},
			[]string{}},
		{"sort desc", models.GroupFilter{Today: "2025-01-01", SortDesc: true},
			[]string{"Linear algebra", "Data structures"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Find(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			gotNames := names(got)
			if len(gotNames) != len(tt.want) {
				t.Fatalf("Find = %v, want %v", gotNames, tt.want)
			}
			for i := range tt.want {
				if gotNames[i] != tt.want[i] {
					t.Fatalf("Find = %v, want %v", gotNames, tt.want)
				}
			}
		})
	}
}
