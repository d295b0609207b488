package reminder

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/remindd/internal/database"
	"github.com/dukerupert/remindd/internal/model"
	"github.com/dukerupert/remindd/internal/notify"
	"github.com/dukerupert/remindd/internal/store"
)

type eventLog struct {
	mu       sync.Mutex
	updated  []string
	deleted  []string
	repeated []string
}

func (l *eventLog) ReminderUpdated(r model.Reminder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updated = append(l.updated, r.ID)
}

func (l *eventLog) ReminderDeleted(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted = append(l.deleted, id)
}

func (l *eventLog) CompletedUpdated(id string, completed bool) {}

func (l *eventLog) RepeatUpdated(id string, timestamp, oldTimestamp int64, times int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.repeated = append(l.repeated, id)
}

func (l *eventLog) ListUpdated(model.TaskList) {}
func (l *eventLog) ListDeleted(string)         {}

type serviceFixture struct {
	svc    *Service
	queue  *store.QueueStore
	lists  *store.ListStore
	events *eventLog
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reminders := store.NewReminderStore(db)
	lists := store.NewListStore(db)
	queue := store.NewQueueStore(db)
	events := &eventLog{}
	svc := NewService(reminders, lists, queue, notify.Nop{}, events, logger)
	t.Cleanup(svc.Stop)

	return &serviceFixture{svc: svc, queue: queue, lists: lists, events: events}
}

func (f *serviceFixture) syncedList(t *testing.T, name, userID string) *model.TaskList {
	t.Helper()
	l, err := f.svc.CreateList(name, userID)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	return l
}

func ptr[T any](v T) *T { return &v }

func future() int64 { return time.Now().Add(time.Hour).Unix() }

func TestCreateRequiresTitle(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Create(Fields{Title: ptr("   ")})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsUnknownList(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Create(Fields{Title: ptr("walk dog"), ListID: ptr("nope")})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateDefaults(t *testing.T) {
	f := newServiceFixture(t)

	r, err := f.svc.Create(Fields{Title: ptr("walk dog")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ListID != store.DefaultListID {
		t.Errorf("list = %q, want default", r.ListID)
	}
	if r.RepeatTimes != model.Unbounded {
		t.Errorf("repeat times = %d, want unbounded", r.RepeatTimes)
	}
	if r.RepeatType != model.RepeatNone {
		t.Errorf("repeat type = %q, want none", r.RepeatType)
	}

	// Local list: nothing to sync.
	n, err := f.queue.Count()
	if err != nil {
		t.Fatalf("count queue: %v", err)
	}
	if n != 0 {
		t.Errorf("queue has %d entries, want 0", n)
	}
}

func TestCreateNormalizesNonRepeating(t *testing.T) {
	f := newServiceFixture(t)

	r, err := f.svc.Create(Fields{
		Title:           ptr("one off"),
		RepeatType:      ptr(model.RepeatNone),
		RepeatFrequency: ptr(7),
		RepeatDays:      ptr(model.Weekdays(0).With(time.Monday)),
		RepeatUntil:     ptr(future()),
		RepeatTimes:     ptr(9),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.RepeatFrequency != 1 || r.RepeatDays != 0 || r.RepeatUntil != 0 {
		t.Errorf("recurrence state not cleared: freq=%d days=%v until=%d",
			r.RepeatFrequency, r.RepeatDays, r.RepeatUntil)
	}
	if r.RepeatTimes != model.Unbounded {
		t.Errorf("repeat times = %d, want unbounded", r.RepeatTimes)
	}
}

func TestCreateEndDateWinsOverCount(t *testing.T) {
	f := newServiceFixture(t)

	until := future()
	r, err := f.svc.Create(Fields{
		Title:       ptr("water plants"),
		Timestamp:   ptr(future()),
		RepeatType:  ptr(model.RepeatDay),
		RepeatUntil: ptr(until),
		RepeatTimes: ptr(5),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.RepeatTimes != model.Unbounded {
		t.Errorf("repeat times = %d, want unbounded when an end date is set", r.RepeatTimes)
	}
	if r.RepeatUntil != until {
		t.Errorf("repeat until = %d, want %d", r.RepeatUntil, until)
	}
}

func TestCreateRejectsTimestampPastEndDate(t *testing.T) {
	f := newServiceFixture(t)

	until := future()
	_, err := f.svc.Create(Fields{
		Title:       ptr("never fires in bounds"),
		Timestamp:   ptr(until + 3600),
		RepeatType:  ptr(model.RepeatDay),
		RepeatUntil: ptr(until),
	})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateRejectsTimestampPastEndDate(t *testing.T) {
	f := newServiceFixture(t)

	until := future()
	r, err := f.svc.Create(Fields{
		Title:       ptr("bounded"),
		Timestamp:   ptr(until),
		RepeatType:  ptr(model.RepeatDay),
		RepeatUntil: ptr(until),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Update(r.ID, Fields{Timestamp: ptr(until + 3600)})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateSyncedListQueuesCreate(t *testing.T) {
	f := newServiceFixture(t)
	list := f.syncedList(t, "Work", "caldav:alice")

	r, err := f.svc.Create(Fields{Title: ptr("standup"), ListID: ptr(list.ID)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	entries, err := f.queue.PendingFor(model.KindReminder, r.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 1 || entries[0].Op != model.OpCreate {
		t.Fatalf("entries = %+v, want one create", entries)
	}
	if entries[0].UserID != "caldav:alice" {
		t.Errorf("entry user = %q", entries[0].UserID)
	}
}

func TestUpdateBackdatedTimestampAdvances(t *testing.T) {
	f := newServiceFixture(t)

	r, err := f.svc.Create(Fields{Title: ptr("pills")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	past := time.Now().Add(-30 * time.Minute).Unix()
	updated, err := f.svc.Update(r.ID, Fields{
		Timestamp:  ptr(past),
		RepeatType: ptr(model.RepeatHour),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Timestamp <= time.Now().Unix() {
		t.Errorf("timestamp = %d, want advanced into the future", updated.Timestamp)
	}
	if updated.OldTimestamp != past {
		t.Errorf("old timestamp = %d, want %d", updated.OldTimestamp, past)
	}
}

func TestUpdateMoveToSyncedListQueuesCreate(t *testing.T) {
	f := newServiceFixture(t)
	list := f.syncedList(t, "Work", "caldav:alice")

	r, err := f.svc.Create(Fields{Title: ptr("report")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Update(r.ID, Fields{ListID: ptr(list.ID)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	entries, err := f.queue.PendingFor(model.KindReminder, r.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 1 || entries[0].Op != model.OpCreate {
		t.Fatalf("entries = %+v, want one create", entries)
	}
}

func TestCreateThenDeleteLeavesQueueEmpty(t *testing.T) {
	f := newServiceFixture(t)
	list := f.syncedList(t, "Work", "caldav:alice")

	r, err := f.svc.Create(Fields{Title: ptr("ephemeral"), ListID: ptr(list.ID)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	entries, err := f.queue.PendingFor(model.KindReminder, r.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want none after create-then-delete", entries)
	}
}

func TestDeleteMissingReminder(t *testing.T) {
	f := newServiceFixture(t)

	if err := f.svc.Delete("ghost"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteDisarmsCountdown(t *testing.T) {
	f := newServiceFixture(t)

	r, err := f.svc.Create(Fields{Title: ptr("laundry"), Timestamp: ptr(future())})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !f.svc.sched.Armed(r.ID) {
		t.Fatal("countdown not armed after create")
	}

	if _, err := f.svc.SetCompleted(r.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if f.svc.sched.Armed(r.ID) {
		t.Error("countdown still armed after completion")
	}

	if _, err := f.svc.SetCompleted(r.ID, false); err != nil {
		t.Fatalf("un-complete: %v", err)
	}
	if !f.svc.sched.Armed(r.ID) {
		t.Error("countdown not re-armed after un-completion")
	}
}

func TestFireNonRepeatingClearsTimestamp(t *testing.T) {
	f := newServiceFixture(t)

	ts := future()
	r, err := f.svc.Create(Fields{Title: ptr("dentist"), Timestamp: ptr(ts)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.svc.handleFire(r.ID)

	got, err := f.svc.Get(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Timestamp != 0 {
		t.Errorf("timestamp = %d, want 0", got.Timestamp)
	}
	if got.OldTimestamp != ts {
		t.Errorf("old timestamp = %d, want %d", got.OldTimestamp, ts)
	}
	if got.RepeatTimes != model.Unbounded {
		t.Errorf("repeat times = %d, want untouched for a one-shot", got.RepeatTimes)
	}
	if f.svc.sched.Armed(r.ID) {
		t.Error("countdown still armed after terminal fire")
	}
}

func TestFireBoundedRepeatCountsDown(t *testing.T) {
	f := newServiceFixture(t)

	r, err := f.svc.Create(Fields{
		Title:       ptr("stretch"),
		Timestamp:   ptr(future()),
		RepeatType:  ptr(model.RepeatHour),
		RepeatTimes: ptr(3),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		f.svc.handleFire(r.ID)
	}

	got, err := f.svc.Get(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RepeatTimes != 0 {
		t.Errorf("repeat times = %d, want 0 after three fires", got.RepeatTimes)
	}
	if got.Timestamp != 0 {
		t.Errorf("timestamp = %d, want 0 once exhausted", got.Timestamp)
	}
	if f.svc.sched.Armed(r.ID) {
		t.Error("countdown still armed after exhaustion")
	}
}

func TestOverdueRecurringAdvancesAndRearms(t *testing.T) {
	f := newServiceFixture(t)

	// An already-due countdown fires synchronously when armed, which
	// covers the fire path end to end.
	ts := time.Now().Add(-10 * time.Second).Unix()
	r, err := f.svc.Create(Fields{
		Title:      ptr("hydrate"),
		Timestamp:  ptr(ts),
		RepeatType: ptr(model.RepeatHour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := f.svc.Get(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Timestamp != ts+3600 {
		t.Errorf("timestamp = %d, want %d", got.Timestamp, ts+3600)
	}
	if got.OldTimestamp != ts {
		t.Errorf("old timestamp = %d, want %d", got.OldTimestamp, ts)
	}
	if got.RepeatTimes != model.Unbounded {
		t.Errorf("repeat times = %d, want unbounded untouched", got.RepeatTimes)
	}
	if !f.svc.sched.Armed(r.ID) {
		t.Error("countdown not re-armed after recurring fire")
	}
}

func TestFirePastEndDateExhaustsRule(t *testing.T) {
	f := newServiceFixture(t)

	// The end date coincides with the overdue occurrence, so the fire
	// that happens on create is the final one.
	ts := time.Now().Add(-10 * time.Second).Unix()
	r, err := f.svc.Create(Fields{
		Title:       ptr("final"),
		Timestamp:   ptr(ts),
		RepeatType:  ptr(model.RepeatDay),
		RepeatUntil: ptr(ts),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := f.svc.Get(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Timestamp != 0 {
		t.Errorf("timestamp = %d, want 0 past the end date", got.Timestamp)
	}
	if got.RepeatTimes != 0 {
		t.Errorf("repeat times = %d, want 0 (exhausted)", got.RepeatTimes)
	}
	if f.svc.sched.Armed(r.ID) {
		t.Error("countdown still armed past the end date")
	}
}

func TestDeleteListCascades(t *testing.T) {
	f := newServiceFixture(t)
	list := f.syncedList(t, "Chores", "")

	r, err := f.svc.Create(Fields{Title: ptr("vacuum"), ListID: ptr(list.ID), Timestamp: ptr(future())})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.DeleteList(list.ID); err != nil {
		t.Fatalf("delete list: %v", err)
	}

	if _, err := f.svc.Get(r.ID); err != ErrNotFound {
		t.Fatalf("reminder survived list deletion: %v", err)
	}
	if f.svc.sched.Armed(r.ID) {
		t.Error("countdown still armed for cascaded reminder")
	}
}

func TestDeleteDefaultListRefused(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.DeleteList(store.DefaultListID)
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}
