package store

import (
	"testing"
	"time"

	"github.com/dukerupert/remindd/internal/database"
	"github.com/dukerupert/remindd/internal/model"
)

func setupReminderTestDB(t *testing.T) (*ReminderStore, *ListStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReminderStore(db), NewListStore(db)
}

func TestReminderCRUD(t *testing.T) {
	rs, _ := setupReminderTestDB(t)

	due := time.Now().Add(time.Hour).Unix()

	// Create
	r, err := rs.Create(model.Reminder{
		Title:           "Water plants",
		Description:     "The ficus too",
		Timestamp:       due,
		Important:       true,
		ListID:          DefaultListID,
		RepeatType:      model.RepeatDay,
		RepeatFrequency: 2,
		RepeatTimes:     model.Unbounded,
	})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected generated id")
	}
	if r.Title != "Water plants" {
		t.Errorf("title = %q", r.Title)
	}
	if r.Timestamp != due {
		t.Errorf("timestamp = %d, want %d", r.Timestamp, due)
	}
	if !r.Important {
		t.Error("expected important flag")
	}
	if r.RepeatType != model.RepeatDay || r.RepeatFrequency != 2 {
		t.Errorf("repeat = %s/%d", r.RepeatType, r.RepeatFrequency)
	}
	if r.CompletedAt != nil {
		t.Errorf("completed_at = %v, want nil", r.CompletedAt)
	}

	// Get by ID
	got, err := rs.GetByID(r.ID)
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if got == nil {
		t.Fatal("expected reminder, got nil")
	}
	if got.Title != r.Title {
		t.Errorf("title = %q, want %q", got.Title, r.Title)
	}

	// Missing ID yields nil, nil
	missing, err := rs.GetByID("no-such-id")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing reminder")
	}

	// Update
	got.Title = "Water all plants"
	got.Completed = true
	now := time.Now().UTC()
	got.CompletedAt = &now
	updated, err := rs.Update(*got)
	if err != nil {
		t.Fatalf("update reminder: %v", err)
	}
	if updated.Title != "Water all plants" {
		t.Errorf("title = %q", updated.Title)
	}
	if !updated.Completed || updated.CompletedAt == nil {
		t.Error("completion not persisted")
	}

	// Delete
	if err := rs.Delete(r.ID); err != nil {
		t.Fatalf("delete reminder: %v", err)
	}
	gone, err := rs.GetByID(r.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if gone != nil {
		t.Error("expected reminder gone after delete")
	}
}

func TestReminderUpdateSchedule(t *testing.T) {
	rs, _ := setupReminderTestDB(t)

	r, err := rs.Create(model.Reminder{
		Title: "Pills", ListID: DefaultListID,
		Timestamp: 1000, RepeatType: model.RepeatHour,
		RepeatFrequency: 1, RepeatTimes: 5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := rs.UpdateSchedule(r.ID, 4600, 1000, 4); err != nil {
		t.Fatalf("update schedule: %v", err)
	}

	got, err := rs.GetByID(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Timestamp != 4600 || got.OldTimestamp != 1000 || got.RepeatTimes != 4 {
		t.Errorf("schedule = %d/%d/%d, want 4600/1000/4",
			got.Timestamp, got.OldTimestamp, got.RepeatTimes)
	}
	// Other fields untouched.
	if got.Title != "Pills" || got.RepeatType != model.RepeatHour {
		t.Error("unrelated fields changed")
	}
}

func TestReminderSetRemoteUID(t *testing.T) {
	rs, _ := setupReminderTestDB(t)

	r, err := rs.Create(model.Reminder{Title: "Sync me", ListID: DefaultListID, RepeatTimes: model.Unbounded})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.RemoteUID != "" {
		t.Fatalf("remote uid = %q, want empty", r.RemoteUID)
	}

	if err := rs.SetRemoteUID(r.ID, "AAMkAD123"); err != nil {
		t.Fatalf("set remote uid: %v", err)
	}
	got, _ := rs.GetByID(r.ID)
	if got.RemoteUID != "AAMkAD123" {
		t.Errorf("remote uid = %q", got.RemoteUID)
	}

	// Setting for a deleted reminder is a silent no-op.
	if err := rs.Delete(r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := rs.SetRemoteUID(r.ID, "other"); err != nil {
		t.Errorf("set remote uid on deleted: %v", err)
	}
}

func TestReminderListFilters(t *testing.T) {
	rs, ls := setupReminderTestDB(t)

	work, err := ls.Create("Work", "caldav:alice")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	mk := func(title, listID string, important bool) {
		t.Helper()
		_, err := rs.Create(model.Reminder{
			Title: title, ListID: listID, Important: important,
			RepeatFrequency: 1, RepeatTimes: model.Unbounded,
		})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("a", DefaultListID, false)
	mk("b", work.ID, true)
	mk("c", work.ID, false)

	all, err := rs.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}

	inWork, err := rs.ListByList(work.ID)
	if err != nil {
		t.Fatalf("list by list: %v", err)
	}
	if len(inWork) != 2 {
		t.Errorf("len(work) = %d, want 2", len(inWork))
	}

	important, err := rs.ListImportant()
	if err != nil {
		t.Fatalf("list important: %v", err)
	}
	if len(important) != 1 || important[0].Title != "b" {
		t.Errorf("important = %+v, want just b", important)
	}
}

func TestReminderCascadeOnListDelete(t *testing.T) {
	rs, ls := setupReminderTestDB(t)

	l, err := ls.Create("Temp", "local")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	r, err := rs.Create(model.Reminder{Title: "doomed", ListID: l.ID, RepeatTimes: model.Unbounded})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	if err := ls.Delete(l.ID); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	gone, err := rs.GetByID(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gone != nil {
		t.Error("expected reminder cascaded away with its list")
	}
}
