package reminder

import (
	"strings"

	"github.com/dukerupert/remindd/internal/model"
	"github.com/dukerupert/remindd/internal/store"
)

// Lists returns every task list.
func (s *Service) Lists() ([]model.TaskList, error) {
	return s.lists.List()
}

// GetList returns one task list, or ErrNotFound.
func (s *Service) GetList(id string) (*model.TaskList, error) {
	l, err := s.lists.GetByID(id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

// CreateList persists a new task list. A non-empty userID binds the list
// to a remote account and queues its remote creation.
func (s *Service) CreateList(name, userID string) (*model.TaskList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationErrorf("list name is required")
	}

	if userID == "" {
		userID = model.LocalUserID
	}

	s.mu.Lock()
	created, err := s.lists.Create(name, userID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if created.Synced() {
		if err := s.queue.EnqueueCreate(model.QueueEntry{
			Kind:     model.KindList,
			TargetID: created.ID,
			UserID:   created.UserID,
		}); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	s.events.ListUpdated(*created)
	s.kickSync()
	return created, nil
}

// RenameList changes a list's display name and queues the remote rename
// for synced lists.
func (s *Service) RenameList(id, name string) (*model.TaskList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationErrorf("list name is required")
	}

	s.mu.Lock()
	existing, err := s.lists.GetByID(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if existing == nil {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	renamed, err := s.lists.Rename(id, name)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if renamed.Synced() {
		if err := s.queue.EnqueueUpdate(model.QueueEntry{
			Kind:     model.KindList,
			TargetID: renamed.ID,
			UserID:   renamed.UserID,
		}); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	s.events.ListUpdated(*renamed)
	s.kickSync()
	return renamed, nil
}

// DeleteList removes a list and, via the schema cascade, its reminders.
// Countdowns of the cascaded reminders are disarmed here; the remote
// side needs only one list deletion since the backend removes contained
// tasks with the list.
func (s *Service) DeleteList(id string) error {
	s.mu.Lock()
	existing, err := s.lists.GetByID(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if existing == nil {
		s.mu.Unlock()
		return ErrNotFound
	}

	members, err := s.reminders.ListByList(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if err := s.lists.Delete(id); err != nil {
		s.mu.Unlock()
		if err == store.ErrDefaultList {
			return validationErrorf("the default list cannot be deleted")
		}
		return err
	}

	if existing.Synced() {
		if err := s.queue.EnqueueDelete(model.QueueEntry{
			Kind:     model.KindList,
			TargetID: id,
			UserID:   existing.UserID,
		}); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	for _, r := range members {
		s.sched.Disarm(r.ID)
		if err := s.notifier.Withdraw(r.ID); err != nil {
			s.logger.Warn("withdraw notification", "reminder_id", r.ID, "error", err)
		}
		s.events.ReminderDeleted(r.ID)
	}
	s.events.ListDeleted(id)
	s.kickSync()
	return nil
}
