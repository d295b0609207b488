package remote

import (
	"context"

	"github.com/dukerupert/remindd/internal/model"
)

// Backend mirrors local mutations to one remote task provider. The wire
// protocol lives entirely behind this interface; the replay engine only
// sees the typed error kinds.
//
// Delete operations take the queue entry rather than a record because the
// local record is already gone by replay time.
type Backend interface {
	// CreateReminder mirrors a new reminder and returns the identifier
	// the backend assigned to it.
	CreateReminder(ctx context.Context, r model.Reminder) (string, error)
	// UpdateReminder mirrors changed fields and returns the reminder's
	// current remote identifier, which may change when the backend has to
	// recreate a task that moved between lists.
	UpdateReminder(ctx context.Context, r model.Reminder, prev model.QueueEntry) (string, error)
	CompleteReminder(ctx context.Context, r model.Reminder) error
	DeleteReminder(ctx context.Context, e model.QueueEntry) error

	CreateList(ctx context.Context, l model.TaskList) error
	RenameList(ctx context.Context, l model.TaskList) error
	DeleteList(ctx context.Context, e model.QueueEntry) error
}

// Registry resolves the backend responsible for an account.
type Registry struct {
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register binds a backend to an account id.
func (r *Registry) Register(userID string, b Backend) {
	r.backends[userID] = b
}

// For returns the backend for userID, or nil for local-only accounts.
func (r *Registry) For(userID string) Backend {
	return r.backends[userID]
}

// Accounts returns the registered account ids.
func (r *Registry) Accounts() []string {
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	return ids
}
