package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/coflow/internal/app/store/audit"
	"github.com/dalemusser/coflow/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	event := audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventJoinRequested,
		UserID:    &userID,
		GroupID:   &groupID,
		Success:   true,
		Details:   map[string]string{"group_name": "Calc review"},
	}

	if err := store.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	var got audit.Event
	if err := db.Collection("audit_events").FindOne(ctx, bson.M{"user_id": userID}).Decode(&got); err != nil {
		t.Fatalf("read back event: %v", err)
	}
	if got.ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if got.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
	if got.Details["group_name"] != "Calc review" {
		t.Errorf("Details = %v", got.Details)
	}
}

func TestStore_RepairCandidates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	since := time.Now().Add(-time.Minute)
	_ = store.Log(ctx, audit.Event{Category: audit.CategoryConsistency, EventType: audit.EventRepairCandidate, OpID: "op-1"})
	_ = store.Log(ctx, audit.Event{Category: audit.CategoryConsistency, EventType: audit.EventRepairCandidate, OpID: "op-old", Timestamp: since.Add(-time.Hour)})
	_ = store.Log(ctx, audit.Event{Category: audit.CategoryGroup, EventType: audit.EventGroupDeleted})
	_ = store.Log(ctx, audit.Event{Category: audit.CategoryConsistency, EventType: audit.EventRepaired})

	got, err := store.RepairCandidates(ctx, since, 10)
	if err != nil {
		t.Fatalf("RepairCandidates failed: %v", err)
	}
	if len(got) != 1 || got[0].OpID != "op-1" {
		t.Errorf("RepairCandidates = %+v", got)
	}

	_ = store.Log(ctx, audit.Event{Category: audit.CategoryConsistency, EventType: audit.EventRepairCandidate, OpID: "op-2"})
	latest, err := store.RepairCandidates(ctx, since, 1)
	if err != nil {
		t.Fatalf("RepairCandidates failed: %v", err)
	}
	if len(latest) != 1 || latest[0].OpID != "op-2" {
		t.Errorf("expected most recent first, got %+v", latest)
	}
}

func TestStore_EnsureIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	// Idempotent.
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("second EnsureIndexes failed: %v", err)
	}
}
