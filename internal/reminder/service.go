// Package reminder implements the core service: the authoritative store
// of reminders, their countdowns, and the pending-sync bookkeeping. All
// mutations are serialized; a store update and its sync-queue append are
// never observable apart.
package reminder

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/remindd/internal/model"
	"github.com/dukerupert/remindd/internal/notify"
	"github.com/dukerupert/remindd/internal/recurrence"
	"github.com/dukerupert/remindd/internal/scheduler"
	"github.com/dukerupert/remindd/internal/store"
)

// ErrNotFound is returned when the named reminder or list does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input synchronously; nothing is
// persisted when one is returned.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Events receives change notifications for external collaborators.
type Events interface {
	ReminderUpdated(r model.Reminder)
	ReminderDeleted(id string)
	CompletedUpdated(id string, completed bool)
	RepeatUpdated(id string, timestamp, oldTimestamp int64, times int)
	ListUpdated(l model.TaskList)
	ListDeleted(id string)
}

// SyncKicker wakes the background replay pass after local mutations.
type SyncKicker interface {
	Kick()
}

// Fields is a partial reminder mutation: nil fields keep prior values.
type Fields struct {
	Title           *string           `json:"title,omitempty"`
	Description     *string           `json:"description,omitempty"`
	DueDate         *int64            `json:"due_date,omitempty"`
	Timestamp       *int64            `json:"timestamp,omitempty"`
	Important       *bool             `json:"important,omitempty"`
	ListID          *string           `json:"list_id,omitempty"`
	RepeatType      *model.RepeatType `json:"repeat_type,omitempty"`
	RepeatFrequency *int              `json:"repeat_frequency,omitempty"`
	RepeatDays      *model.Weekdays   `json:"repeat_days,omitempty"`
	RepeatUntil     *int64            `json:"repeat_until,omitempty"`
	RepeatTimes     *int              `json:"repeat_times,omitempty"`
}

// Service owns the reminder store and its countdowns.
type Service struct {
	mu        sync.Mutex
	reminders *store.ReminderStore
	lists     *store.ListStore
	queue     *store.QueueStore
	sched     *scheduler.Scheduler
	notifier  notify.Notifier
	events    Events
	syncer    SyncKicker
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(reminders *store.ReminderStore, lists *store.ListStore, queue *store.QueueStore, notifier notify.Notifier, events Events, logger *slog.Logger) *Service {
	s := &Service{
		reminders: reminders,
		lists:     lists,
		queue:     queue,
		notifier:  notifier,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
	s.sched = scheduler.New(s.handleFire, logger.With("component", "scheduler"))
	return s
}

// SetSyncKicker wires the background replayer; optional.
func (s *Service) SetSyncKicker(k SyncKicker) {
	s.syncer = k
}

// Start arms one countdown per eligible reminder. Overdue reminders fire
// immediately so nothing missed while the daemon was down is skipped.
func (s *Service) Start() error {
	reminders, err := s.reminders.List()
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}

	armed := 0
	for _, r := range reminders {
		if r.NeedsCountdown() {
			s.sched.Arm(r)
			armed++
		}
	}
	s.logger.Info("scheduler started", "reminders", len(reminders), "armed", armed)
	return nil
}

// Stop cancels every live countdown.
func (s *Service) Stop() {
	s.sched.DisarmAll()
}

// ResumeFromSleep re-evaluates all countdowns after a system wake.
func (s *Service) ResumeFromSleep() {
	s.sched.ResumeFromSleep()
}

// Get returns one reminder, or ErrNotFound.
func (s *Service) Get(id string) (*model.Reminder, error) {
	r, err := s.reminders.GetByID(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// List returns all reminders.
func (s *Service) List() ([]model.Reminder, error) {
	return s.reminders.List()
}

// ListByList returns the reminders of one task list.
func (s *Service) ListByList(listID string) ([]model.Reminder, error) {
	return s.reminders.ListByList(listID)
}

// ListImportant returns reminders with the importance flag set.
func (s *Service) ListImportant() ([]model.Reminder, error) {
	return s.reminders.ListImportant()
}

// Create validates fields, persists a new reminder, queues its remote
// creation when the target list is synced, and arms its countdown.
func (s *Service) Create(fields Fields) (*model.Reminder, error) {
	r := model.Reminder{
		ListID:          store.DefaultListID,
		RepeatFrequency: 1,
		RepeatTimes:     model.Unbounded,
	}
	applyFields(&r, fields)

	s.mu.Lock()
	list, err := s.validate(&r)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	created, err := s.reminders.Create(r)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if list.Synced() {
		if err := s.queue.EnqueueCreate(model.QueueEntry{
			Kind:     model.KindReminder,
			TargetID: created.ID,
			UserID:   list.UserID,
			ListID:   list.ID,
		}); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	s.events.ReminderUpdated(*created)
	s.sched.Arm(*created)
	s.kickSync()
	return created, nil
}

// Update applies a partial mutation. If the new timestamp already lies in
// the past for a recurring reminder, one recurrence step is applied right
// away so callers see the timestamp pair the scheduler would produce.
func (s *Service) Update(id string, fields Fields) (*model.Reminder, error) {
	s.mu.Lock()
	existing, err := s.reminders.GetByID(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if existing == nil {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	prev := *existing
	updated := *existing
	applyFields(&updated, fields)

	list, err := s.validate(&updated)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	// Catch up a backdated timestamp before persisting.
	if updated.Recurring() && updated.Timestamp != 0 && updated.Timestamp <= s.now().Unix() {
		res := recurrence.Advance(updated, s.now())
		updated.Timestamp = res.Timestamp
		updated.OldTimestamp = res.OldTimestamp
		updated.RepeatTimes = res.Times
	}

	saved, err := s.reminders.Update(updated)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if err := s.enqueueUpdate(prev, *saved, list); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.events.ReminderUpdated(*saved)
	s.sched.Arm(*saved)
	s.kickSync()
	return saved, nil
}

// SetCompleted toggles completion. Completing cancels any pending
// countdown and withdraws a delivered notification; un-completing a
// recurring reminder re-arms it.
func (s *Service) SetCompleted(id string, completed bool) (*model.Reminder, error) {
	s.mu.Lock()
	existing, err := s.reminders.GetByID(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if existing == nil {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	existing.Completed = completed
	if completed {
		now := s.now().UTC()
		existing.CompletedAt = &now
	} else {
		existing.CompletedAt = nil
	}

	saved, err := s.reminders.Update(*existing)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	list, err := s.lists.GetByID(saved.ListID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if list != nil && list.Synced() {
		if err := s.queue.EnqueueComplete(model.QueueEntry{
			Kind:      model.KindReminder,
			TargetID:  saved.ID,
			UserID:    list.UserID,
			ListID:    list.ID,
			RemoteUID: saved.RemoteUID,
		}); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	s.events.CompletedUpdated(id, completed)
	if completed {
		if err := s.notifier.Withdraw(id); err != nil {
			s.logger.Warn("withdraw notification", "reminder_id", id, "error", err)
		}
	}
	s.sched.Arm(*saved)
	s.kickSync()
	return saved, nil
}

// Delete removes a reminder, disarms its countdown, withdraws any
// delivered notification, and queues the remote deletion when needed.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	existing, err := s.reminders.GetByID(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if existing == nil {
		s.mu.Unlock()
		return ErrNotFound
	}

	list, err := s.lists.GetByID(existing.ListID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if err := s.reminders.Delete(id); err != nil {
		s.mu.Unlock()
		return err
	}

	if list != nil && list.Synced() {
		if err := s.queue.EnqueueDelete(model.QueueEntry{
			Kind:      model.KindReminder,
			TargetID:  id,
			UserID:    list.UserID,
			ListID:    list.ID,
			RemoteUID: existing.RemoteUID,
		}); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	s.sched.Disarm(id)
	if err := s.notifier.Withdraw(id); err != nil {
		s.logger.Warn("withdraw notification", "reminder_id", id, "error", err)
	}
	s.events.ReminderDeleted(id)
	s.kickSync()
	return nil
}

// handleFire runs when a countdown fires: emit the notification, account
// the shown occurrence, advance the recurrence, and re-arm if any
// occurrence remains.
func (s *Service) handleFire(id string) {
	s.mu.Lock()
	r, err := s.reminders.GetByID(id)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("load fired reminder", "reminder_id", id, "error", err)
		return
	}
	if r == nil || !r.NeedsCountdown() {
		s.mu.Unlock()
		return
	}

	note := notify.Notification{
		ReminderID: r.ID,
		Title:      r.Title,
		Body:       r.Description,
	}

	// The occurrence that just fired consumes one bounded repeat.
	if r.RepeatTimes > 0 {
		r.RepeatTimes--
	}

	var next model.Reminder
	if !r.Recurring() || r.RepeatTimes == 0 {
		// No further occurrence: record the fired instant and clear the
		// countdown timestamp.
		r.OldTimestamp = r.Timestamp
		r.Timestamp = 0
		if err := s.reminders.UpdateSchedule(r.ID, 0, r.OldTimestamp, r.RepeatTimes); err != nil {
			s.mu.Unlock()
			s.logger.Error("persist fired reminder", "reminder_id", id, "error", err)
			return
		}
		next = *r
	} else {
		res := recurrence.Advance(*r, s.now())
		ts, old, times := res.Timestamp, res.OldTimestamp, res.Times
		if res.Terminal {
			// End date reached: the occurrence that just fired was the
			// last one. Clear the countdown and record the rule as
			// exhausted so a restart stays quiet.
			ts, old, times = 0, res.Timestamp, 0
		}
		if err := s.reminders.UpdateSchedule(r.ID, ts, old, times); err != nil {
			s.mu.Unlock()
			s.logger.Error("persist advanced reminder", "reminder_id", id, "error", err)
			return
		}
		next = *r
		next.Timestamp = ts
		next.OldTimestamp = old
		next.RepeatTimes = times
	}

	// Keep the mirrored copy converged with the advanced state.
	if list, err := s.lists.GetByID(r.ListID); err == nil && list != nil && list.Synced() {
		entry := model.QueueEntry{
			Kind:      model.KindReminder,
			TargetID:  r.ID,
			UserID:    list.UserID,
			ListID:    list.ID,
			RemoteUID: r.RemoteUID,
		}
		if err := s.queue.EnqueueUpdate(entry); err != nil {
			s.logger.Error("queue repeat update", "reminder_id", id, "error", err)
		}
	}
	s.mu.Unlock()

	if err := s.notifier.Send(note); err != nil {
		s.logger.Warn("send notification", "reminder_id", id, "error", err)
	}
	s.events.RepeatUpdated(id, next.Timestamp, next.OldTimestamp, next.RepeatTimes)
	s.sched.Arm(next)
	s.kickSync()
}

// enqueueUpdate records the remote work a local update implies, handling
// moves between lists and accounts.
func (s *Service) enqueueUpdate(prev, cur model.Reminder, curList *model.TaskList) error {
	prevList, err := s.lists.GetByID(prev.ListID)
	if err != nil {
		return err
	}

	prevSynced := prevList != nil && prevList.Synced()
	curSynced := curList != nil && curList.Synced()

	switch {
	case !prevSynced && !curSynced:
		return nil

	case !prevSynced && curSynced:
		return s.queue.EnqueueCreate(model.QueueEntry{
			Kind:     model.KindReminder,
			TargetID: cur.ID,
			UserID:   curList.UserID,
			ListID:   curList.ID,
		})

	case prevSynced && !curSynced:
		return s.queue.EnqueueDelete(model.QueueEntry{
			Kind:      model.KindReminder,
			TargetID:  cur.ID,
			UserID:    prevList.UserID,
			ListID:    prevList.ID,
			RemoteUID: prev.RemoteUID,
		})

	case prevList.UserID != curList.UserID:
		// Cross-account move: delete from the old backend, create on the new.
		if err := s.queue.EnqueueDelete(model.QueueEntry{
			Kind:      model.KindReminder,
			TargetID:  cur.ID,
			UserID:    prevList.UserID,
			ListID:    prevList.ID,
			RemoteUID: prev.RemoteUID,
		}); err != nil {
			return err
		}
		return s.queue.EnqueueCreate(model.QueueEntry{
			Kind:     model.KindReminder,
			TargetID: cur.ID,
			UserID:   curList.UserID,
			ListID:   curList.ID,
		})

	default:
		return s.queue.EnqueueUpdate(model.QueueEntry{
			Kind:         model.KindReminder,
			TargetID:     cur.ID,
			UserID:       curList.UserID,
			ListID:       curList.ID,
			RemoteUID:    cur.RemoteUID,
			OldUserID:    prevList.UserID,
			OldListID:    prevList.ID,
			OldRemoteUID: prev.RemoteUID,
		})
	}
}

// validate checks required fields and normalizes the recurrence
// invariants; it returns the target list.
func (s *Service) validate(r *model.Reminder) (*model.TaskList, error) {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return nil, validationErrorf("title is required")
	}
	if r.Timestamp < 0 || r.DueDate < 0 || r.RepeatUntil < 0 {
		return nil, validationErrorf("timestamps must not be negative")
	}
	if !r.RepeatType.Valid() {
		return nil, validationErrorf("unsupported repeat type %q", r.RepeatType)
	}
	if r.RepeatFrequency < 1 {
		r.RepeatFrequency = 1
	}
	if r.RepeatTimes < model.Unbounded {
		return nil, validationErrorf("repeat times must be -1, 0, or positive")
	}

	if r.RepeatType == model.RepeatNone {
		// A non-repeating reminder carries no recurrence state.
		if r.RepeatTimes != 1 {
			r.RepeatTimes = model.Unbounded
		}
		r.RepeatFrequency = 1
		r.RepeatDays = 0
		r.RepeatUntil = 0
	} else {
		// End date and bounded count are mutually exclusive; the end
		// date wins when an import sets both.
		if r.RepeatUntil > 0 && r.RepeatTimes > 0 {
			r.RepeatTimes = model.Unbounded
		}
		// Self-healing default for a week rule without weekdays.
		if r.RepeatType == model.RepeatWeek && r.RepeatDays == 0 && r.Timestamp != 0 {
			r.RepeatDays = model.Weekdays(0).With(time.Unix(r.Timestamp, 0).Weekday())
		}
		// No countdown may land past the end date, supplied ones
		// included, or one notification would fire beyond the bound.
		if r.RepeatUntil > 0 && r.Timestamp > r.RepeatUntil {
			return nil, validationErrorf("timestamp is past the repeat end date")
		}
	}

	list, err := s.lists.GetByID(r.ListID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, validationErrorf("list %q does not exist", r.ListID)
	}
	return list, nil
}

func applyFields(r *model.Reminder, f Fields) {
	if f.Title != nil {
		r.Title = *f.Title
	}
	if f.Description != nil {
		r.Description = *f.Description
	}
	if f.DueDate != nil {
		r.DueDate = *f.DueDate
	}
	if f.Timestamp != nil {
		r.Timestamp = *f.Timestamp
	}
	if f.Important != nil {
		r.Important = *f.Important
	}
	if f.ListID != nil {
		r.ListID = *f.ListID
	}
	if f.RepeatType != nil {
		r.RepeatType = *f.RepeatType
	}
	if f.RepeatFrequency != nil {
		r.RepeatFrequency = *f.RepeatFrequency
	}
	if f.RepeatDays != nil {
		r.RepeatDays = *f.RepeatDays
	}
	if f.RepeatUntil != nil {
		r.RepeatUntil = *f.RepeatUntil
	}
	if f.RepeatTimes != nil {
		r.RepeatTimes = *f.RepeatTimes
	}
}

func (s *Service) kickSync() {
	if s.syncer != nil {
		s.syncer.Kick()
	}
}
