package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/remindd/internal/model"
)

// Timers cannot be armed further out than this; a wait beyond it is a
// scheduling error (garbage timestamp), logged and left unarmed.
const maxWait = 10 * 365 * 24 * time.Hour

// FireFunc handles a countdown firing for the reminder with the given ID.
// It runs without any scheduler lock held and may re-arm.
type FireFunc func(id string)

// Scheduler keeps exactly one live countdown per eligible reminder. It is
// an explicit state object owned by whoever constructs it, passed by
// reference, never a package-level registry.
type Scheduler struct {
	mu     sync.Mutex
	logger *slog.Logger
	fire   FireFunc
	now    func() time.Time

	timers map[string]*time.Timer
	fireAt map[string]int64
}

func New(fire FireFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		fire:   fire,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
		fireAt: make(map[string]int64),
	}
}

// Arm schedules the countdown for r, cancelling any existing one first.
// An already-due reminder fires synchronously rather than being scheduled,
// so overdue reminders notify promptly at startup. Ineligible reminders
// are simply disarmed.
func (s *Scheduler) Arm(r model.Reminder) {
	s.Disarm(r.ID)

	if !r.NeedsCountdown() {
		return
	}

	wait := time.Unix(r.Timestamp, 0).Sub(s.now())
	if wait <= 0 {
		s.fire(r.ID)
		return
	}
	if wait > maxWait {
		s.logger.Error("refusing to arm countdown", "reminder_id", r.ID, "wait", wait)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.ID
	s.fireAt[id] = r.Timestamp
	// The closure checks its own handle against the registry before
	// firing. An expired timer can be stuck behind this mutex while a
	// concurrent Arm installs a replacement under the same ID; Stop on
	// an already-expired timer cannot cancel its function, so identity
	// is the only thing that tells a live fire from a stale one.
	var t *time.Timer
	t = time.AfterFunc(wait, func() {
		s.mu.Lock()
		// A Disarm or re-Arm racing the fire wins: either the
		// countdown is gone or a newer timer owns the ID and this
		// one is stale. The captured handle is only read here, after
		// the lock, so the assignment in Arm is visible.
		if s.timers[id] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, id)
		delete(s.fireAt, id)
		s.mu.Unlock()
		s.fire(id)
	})
	s.timers[id] = t
}

// Disarm cancels the live countdown for id, if any.
func (s *Scheduler) Disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
		delete(s.fireAt, id)
	}
}

// Armed reports whether id currently has a live countdown.
func (s *Scheduler) Armed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Count returns the number of live countdowns.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// ResumeFromSleep re-evaluates every live countdown against the wall
// clock. Go timers freeze across system suspend, so after a wake each
// deadline is recomputed: already-passed countdowns fire immediately,
// future ones are re-armed with the corrected wait.
func (s *Scheduler) ResumeFromSleep() {
	nowSec := s.now().Unix()

	s.mu.Lock()
	var overdue []string
	for id, at := range s.fireAt {
		if at <= nowSec {
			overdue = append(overdue, id)
			continue
		}
		// Rebase the timer on the post-suspend clock.
		if timer := s.timers[id]; timer != nil {
			timer.Reset(time.Duration(at-nowSec) * time.Second)
		}
	}
	for _, id := range overdue {
		if timer := s.timers[id]; timer != nil {
			timer.Stop()
		}
		delete(s.timers, id)
		delete(s.fireAt, id)
	}
	s.mu.Unlock()

	if len(overdue) > 0 {
		s.logger.Info("firing countdowns missed during suspend", "count", len(overdue))
	}
	for _, id := range overdue {
		s.fire(id)
	}
}

// DisarmAll cancels every live countdown; used at shutdown.
func (s *Scheduler) DisarmAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
		delete(s.fireAt, id)
	}
}
