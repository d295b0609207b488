package scheduler

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/remindd/internal/model"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []string
	ch    chan string
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan string, 16)}
}

func (f *fireRecorder) fire(id string) {
	f.mu.Lock()
	f.fired = append(f.fired, id)
	f.mu.Unlock()
	f.ch <- id
}

func (f *fireRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fired)
}

func (f *fireRecorder) wait(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case id := <-f.ch:
		return id
	case <-time.After(timeout):
		t.Fatal("countdown did not fire in time")
		return ""
	}
}

func testReminder(id string, at time.Time) model.Reminder {
	return model.Reminder{
		ID:          id,
		Title:       "take out trash",
		Timestamp:   at.Unix(),
		RepeatTimes: model.Unbounded,
	}
}

func newTestScheduler(fire FireFunc) *Scheduler {
	return New(fire, slog.Default())
}

func TestArmFiresOverdueImmediately(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	s.Arm(testReminder("r1", time.Now().Add(-time.Hour)))

	if rec.count() != 1 {
		t.Fatalf("fired %d times, want synchronous single fire", rec.count())
	}
	if s.Armed("r1") {
		t.Error("overdue reminder should not hold a timer after firing")
	}
}

func TestArmSchedulesFutureCountdown(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	s.Arm(testReminder("r1", time.Now().Add(time.Hour)))

	if !s.Armed("r1") {
		t.Fatal("expected a live countdown")
	}
	if rec.count() != 0 {
		t.Errorf("fired %d times, want 0", rec.count())
	}
	s.DisarmAll()
}

func TestArmReplacesExistingCountdown(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	s.Arm(testReminder("r1", time.Now().Add(time.Hour)))
	s.Arm(testReminder("r1", time.Now().Add(2*time.Hour)))

	if got := s.Count(); got != 1 {
		t.Fatalf("countdown count = %d, want 1 per reminder", got)
	}
	s.DisarmAll()
}

func TestIneligibleRemindersAreNotArmed(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)
	at := time.Now().Add(time.Hour)

	completed := testReminder("r1", at)
	completed.Completed = true
	s.Arm(completed)

	exhausted := testReminder("r2", at)
	exhausted.RepeatTimes = 0
	s.Arm(exhausted)

	noTime := testReminder("r3", at)
	noTime.Timestamp = 0
	s.Arm(noTime)

	if got := s.Count(); got != 0 {
		t.Errorf("countdown count = %d, want 0", got)
	}
	if rec.count() != 0 {
		t.Errorf("fired %d times, want 0", rec.count())
	}
}

func TestArmIneligibleDisarmsPrior(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	r := testReminder("r1", time.Now().Add(time.Hour))
	s.Arm(r)

	r.Completed = true
	s.Arm(r)

	if s.Armed("r1") {
		t.Error("completing should drop the countdown")
	}
}

func TestCountdownFires(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	s.Arm(testReminder("r1", time.Now().Add(50*time.Millisecond)))

	if id := rec.wait(t, 2*time.Second); id != "r1" {
		t.Errorf("fired id = %q, want r1", id)
	}
	if s.Armed("r1") {
		t.Error("fired countdown should be removed from the registry")
	}
}

func TestStaleTimerDoesNotConsumeRearmedCountdown(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	r := testReminder("r1", time.Now().Add(time.Second))
	// Make the first countdown expire almost immediately.
	s.now = func() time.Time {
		return time.Unix(r.Timestamp, 0).Add(-20 * time.Millisecond)
	}
	s.Arm(r)

	// Hold the registry lock so the expiring timer's function parks on
	// it, then replace the countdown the way a concurrent Arm would:
	// stop the expired handle and install an hour-away timer under the
	// same ID.
	s.mu.Lock()
	time.Sleep(100 * time.Millisecond)
	s.timers["r1"].Stop()
	s.fireAt["r1"] = time.Now().Add(time.Hour).Unix()
	s.timers["r1"] = time.AfterFunc(time.Hour, func() {})
	s.mu.Unlock()

	// The stale fire must see a newer timer owning the ID and bail.
	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("fired %d times, want 0: expired timer consumed the replacement countdown", rec.count())
	}
	if !s.Armed("r1") {
		t.Error("hour-away countdown should survive the stale fire")
	}
	s.DisarmAll()
}

func TestDisarmCancelsTimer(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	s.Arm(testReminder("r1", time.Now().Add(50*time.Millisecond)))
	s.Disarm("r1")

	time.Sleep(150 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("fired %d times after disarm, want 0", rec.count())
	}
}

func TestResumeFromSleepFiresPassedDeadlines(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	s.Arm(testReminder("future", time.Now().Add(3*time.Hour)))
	s.Arm(testReminder("passed", time.Now().Add(time.Hour)))

	// Simulate a suspend: the wall clock jumps past one deadline.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	s.ResumeFromSleep()

	if rec.count() != 1 {
		t.Fatalf("fired %d countdowns, want 1 passed deadline", rec.count())
	}
	if id := rec.wait(t, time.Second); id != "passed" {
		t.Errorf("fired id = %q, want passed", id)
	}
	if !s.Armed("future") {
		t.Error("future countdown should stay armed after resume")
	}
	s.DisarmAll()
}

func TestRefusesAbsurdWait(t *testing.T) {
	rec := newFireRecorder()
	s := newTestScheduler(rec.fire)

	s.Arm(testReminder("r1", time.Now().Add(100*365*24*time.Hour)))

	if s.Armed("r1") {
		t.Error("garbage timestamp should leave the reminder without a countdown")
	}
}
