package schedulestore_test

import (
	"testing"

	schedulestore "github.com/dalemusser/coflow/internal/app/store/schedule"
	"github.com/dalemusser/coflow/internal/domain/models"
	"github.com/dalemusser/coflow/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func entry(userID, groupID primitive.ObjectID, date, start, end string) models.ScheduleEntry {
	return models.ScheduleEntry{UserID: userID, GroupID: groupID, MeetingDate: date, StartTime: start, EndTime: end}
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := schedulestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID, groupID := primitive.NewObjectID(), primitive.NewObjectID()
	for i := 0; i < 2; i++ {
		if err := store.Upsert(ctx, entry(userID, groupID, "2030-03-01", "14:00", "16:00")); err != nil {
			t.Fatalf("Upsert #%d failed: %v", i, err)
		}
	}

	got, err := store.ListByUser(ctx, userID, "", "")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListByUser = %d entries, want 1", len(got))
	}
	if got[0].StartTime != "14:00" || got[0].ReminderSent {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestStore_UpsertKeepsReminderForSameSlot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := schedulestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID, groupID := primitive.NewObjectID(), primitive.NewObjectID()
	e := entry(userID, groupID, "2030-03-01", "14:00", "16:00")
	if err := store.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	list, _ := store.ListByUser(ctx, userID, "", "")
	if ok, err := store.MarkReminderSent(ctx, list[0].ID); err != nil || !ok {
		t.Fatalf("MarkReminderSent = %v, %v", ok, err)
	}

	if err := store.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	list, _ = store.ListByUser(ctx, userID, "", "")
	if !list[0].ReminderSent {
		t.Error("same-slot upsert should keep reminder_sent")
	}

	e.StartTime = "15:00"
	if err := store.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	list, _ = store.ListByUser(ctx, userID, "", "")
	if list[0].ReminderSent || list[0].StartTime != "15:00" {
		t.Errorf("moved entry = %+v, want new slot and reminder reset", list[0])
	}
}

func TestStore_ListByUser_Range(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := schedulestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	for _, d := range []string{"2030-03-03", "2030-03-01", "2030-03-02"} {
		if err := store.Upsert(ctx, entry(userID, primitive.NewObjectID(), d, "10:00", "11:00")); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	got, err := store.ListByUser(ctx, userID, "2030-03-02", "2030-03-03")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(got) != 2 || got[0].MeetingDate != "2030-03-02" || got[1].MeetingDate != "2030-03-03" {
		t.Errorf("ListByUser = %+v", got)
	}
}

func TestStore_RescheduleAndDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := schedulestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	groupID := primitive.NewObjectID()
	u1, u2 := primitive.NewObjectID(), primitive.NewObjectID()
	for _, u := range []primitive.ObjectID{u1, u2} {
		if err := store.Upsert(ctx, entry(u, groupID, "2030-03-01", "14:00", "16:00")); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	n, err := store.Reschedule(ctx, groupID, "2030-03-05", "09:00", "10:00")
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Reschedule changed %d, want 2", n)
	}
	byGroup, _ := store.ListByGroup(ctx, groupID)
	for _, e := range byGroup {
		if e.MeetingDate != "2030-03-05" || e.StartTime != "09:00" {
			t.Errorf("entry not rescheduled: %+v", e)
		}
	}

	if ok, err := store.Remove(ctx, u1, groupID); err != nil || !ok {
		t.Fatalf("Remove = %v, %v", ok, err)
	}
	deleted, err := store.DeleteByGroup(ctx, groupID)
	if err != nil {
		t.Fatalf("DeleteByGroup failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteByGroup = %d, want 1", deleted)
	}
}

func TestStore_DueForReminder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := schedulestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	for _, d := range []string{"2030-03-01", "2030-03-02", "2030-03-10"} {
		if err := store.Upsert(ctx, entry(userID, primitive.NewObjectID(), d, "10:00", "11:00")); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	due, err := store.DueForReminder(ctx, "2030-03-01", "2030-03-02", 10)
	if err != nil {
		t.Fatalf("DueForReminder failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("DueForReminder = %d, want 2", len(due))
	}
	if _, err := store.MarkReminderSent(ctx, due[0].ID); err != nil {
		t.Fatalf("MarkReminderSent failed: %v", err)
	}
	ok, err := store.MarkReminderSent(ctx, due[0].ID)
	if err != nil || ok {
		t.Errorf("second MarkReminderSent = %v, %v; want false", ok, err)
	}

	due, _ = store.DueForReminder(ctx, "2030-03-01", "2030-03-02", 10)
	if len(due) != 1 || due[0].MeetingDate != "2030-03-02" {
		t.Errorf("after mark: %+v", due)
	}
}
