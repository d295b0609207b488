package store

import (
	"testing"

	"github.com/dukerupert/remindd/internal/database"
	"github.com/dukerupert/remindd/internal/model"
)

func setupListTestDB(t *testing.T) *ListStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewListStore(db)
}

func TestDefaultListSeeded(t *testing.T) {
	ls := setupListTestDB(t)

	l, err := ls.GetByID(DefaultListID)
	if err != nil {
		t.Fatalf("get default list: %v", err)
	}
	if l == nil {
		t.Fatal("default list missing after migration")
	}
	if l.UserID != model.LocalUserID {
		t.Errorf("user_id = %q, want %q", l.UserID, model.LocalUserID)
	}
	if l.Synced() {
		t.Error("default list must not be synced")
	}
}

func TestListCRUD(t *testing.T) {
	ls := setupListTestDB(t)

	// Create
	l, err := ls.Create("Work", "caldav:alice")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if l.Name != "Work" || l.UserID != "caldav:alice" {
		t.Errorf("list = %+v", l)
	}
	if !l.Synced() {
		t.Error("account-bound list should be synced")
	}

	// List (seeded default + new one)
	all, err := ls.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len = %d, want 2", len(all))
	}

	// Rename
	renamed, err := ls.Rename(l.ID, "Office")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "Office" {
		t.Errorf("name = %q", renamed.Name)
	}

	// Delete
	if err := ls.Delete(l.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, err := ls.GetByID(l.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if gone != nil {
		t.Error("expected list gone")
	}
}

func TestDeleteDefaultListRefused(t *testing.T) {
	ls := setupListTestDB(t)

	if err := ls.Delete(DefaultListID); err != ErrDefaultList {
		t.Fatalf("err = %v, want ErrDefaultList", err)
	}
}

func TestDuplicateNamePerAccountRejected(t *testing.T) {
	ls := setupListTestDB(t)

	if _, err := ls.Create("Inbox", "caldav:alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ls.Create("Inbox", "caldav:alice"); err == nil {
		t.Error("expected unique constraint violation")
	}
	// Same name under another account is fine.
	if _, err := ls.Create("Inbox", "mstodo:bob"); err != nil {
		t.Errorf("create under other account: %v", err)
	}
}
