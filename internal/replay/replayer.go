// Package replay drains the durable sync queue against the remote
// backends. It is the only writer of remote state; the rest of the
// daemon just appends queue entries and kicks it.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/remindd/internal/model"
	"github.com/dukerupert/remindd/internal/remote"
	"github.com/dukerupert/remindd/internal/store"
)

const (
	defaultInterval = 5 * time.Minute
	maxRetries      = 2
	retryBase       = 500 * time.Millisecond
	accountParallel = 4
)

// Replayer replays pending queue entries per account, in enqueue order.
// Accounts replay concurrently; entries within one account never do, so
// a create always reaches the backend before the updates that follow it.
type Replayer struct {
	reminders *store.ReminderStore
	lists     *store.ListStore
	queue     *store.QueueStore
	registry  *remote.Registry
	logger    *slog.Logger
	interval  time.Duration

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	reauth  map[string]bool
	running bool
}

func New(reminders *store.ReminderStore, lists *store.ListStore, queue *store.QueueStore, registry *remote.Registry, logger *slog.Logger) *Replayer {
	return &Replayer{
		reminders: reminders,
		lists:     lists,
		queue:     queue,
		registry:  registry,
		logger:    logger,
		interval:  defaultInterval,
		kick:      make(chan struct{}, 1),
		reauth:    make(map[string]bool),
	}
}

// Start launches the periodic replay loop. A first pass runs right away
// to drain anything left over from the previous run.
func (rp *Replayer) Start(ctx context.Context) {
	rp.mu.Lock()
	if rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = true
	rp.mu.Unlock()

	ctx, rp.cancel = context.WithCancel(ctx)
	rp.wg.Add(1)
	go rp.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (rp *Replayer) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

// Kick requests a replay pass soon. Safe from any goroutine; coalesces
// with an already-pending kick.
func (rp *Replayer) Kick() {
	select {
	case rp.kick <- struct{}{}:
	default:
	}
}

// NeedsReauth returns the accounts whose credentials were rejected since
// startup.
func (rp *Replayer) NeedsReauth() []string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	var ids []string
	for id := range rp.reauth {
		ids = append(ids, id)
	}
	return ids
}

// ClearReauth re-enables replay for an account after its credentials
// were refreshed.
func (rp *Replayer) ClearReauth(userID string) {
	rp.mu.Lock()
	delete(rp.reauth, userID)
	rp.mu.Unlock()
	rp.Kick()
}

func (rp *Replayer) loop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	rp.Pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.Pass(ctx)
		case <-rp.kick:
			rp.Pass(ctx)
		}
	}
}

// Pass drains the queue once. Each account replays independently, so an
// unreachable CalDAV server does not hold up a Microsoft account.
func (rp *Replayer) Pass(ctx context.Context) {
	pending, err := rp.queue.Pending()
	if err != nil {
		rp.logger.Error("read sync queue", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	byAccount := make(map[string][]model.QueueEntry)
	for _, e := range pending {
		byAccount[e.UserID] = append(byAccount[e.UserID], e)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(accountParallel)
	for userID, entries := range byAccount {
		backend := rp.registry.For(userID)
		if backend == nil {
			rp.logger.Warn("no backend for queued account", "user_id", userID, "entries", len(entries))
			continue
		}
		if rp.flagged(userID) {
			continue
		}
		g.Go(func() error {
			rp.replayAccount(ctx, userID, backend, entries)
			return nil
		})
	}
	g.Wait()
}

func (rp *Replayer) replayAccount(ctx context.Context, userID string, backend remote.Backend, entries []model.QueueEntry) {
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}

		err := retry.Do(ctx, retry.WithMaxRetries(maxRetries, retry.NewFibonacci(retryBase)), func(ctx context.Context) error {
			if err := rp.apply(ctx, backend, e); err != nil {
				if remote.IsConnectivity(err) {
					return retry.RetryableError(err)
				}
				return err
			}
			return nil
		})

		switch {
		case err == nil:
			if err := rp.queue.Remove(e.ID); err != nil {
				rp.logger.Error("remove replayed entry", "entry_id", e.ID, "error", err)
				return
			}

		case remote.IsConnectivity(err):
			// Still unreachable after retries; the rest of this
			// account's entries would fail the same way.
			rp.logger.Warn("backend unreachable, deferring account",
				"user_id", userID, "entry_id", e.ID, "error", err)
			return

		case remote.IsAuth(err):
			// Drop the poison entry, flag the account, and leave the rest
			// of its queue for after re-authentication.
			rp.logger.Error("backend rejected credentials",
				"user_id", userID, "entry_id", e.ID, "error", err)
			if err := rp.queue.Remove(e.ID); err != nil {
				rp.logger.Error("remove rejected entry", "entry_id", e.ID, "error", err)
			}
			rp.flag(userID)
			return

		default:
			// The backend understood the request and refused it;
			// retrying the same entry would refuse again.
			rp.logger.Warn("dropping rejected entry",
				"user_id", userID, "entry_id", e.ID,
				"kind", e.Kind, "op", e.Op, "error", err)
			if err := rp.queue.Remove(e.ID); err != nil {
				rp.logger.Error("remove rejected entry", "entry_id", e.ID, "error", err)
				return
			}
		}
	}
}

// apply performs one entry's remote call against current local state.
// Entries whose local record vanished since enqueue are stale and apply
// as a no-op; the deletion that removed the record queued its own entry.
func (rp *Replayer) apply(ctx context.Context, backend remote.Backend, e model.QueueEntry) error {
	switch e.Kind {
	case model.KindReminder:
		return rp.applyReminder(ctx, backend, e)
	case model.KindList:
		return rp.applyList(ctx, backend, e)
	default:
		return fmt.Errorf("unknown queue kind %q", e.Kind)
	}
}

func (rp *Replayer) applyReminder(ctx context.Context, backend remote.Backend, e model.QueueEntry) error {
	if e.Op == model.OpDelete {
		return backend.DeleteReminder(ctx, e)
	}

	r, err := rp.reminders.GetByID(e.TargetID)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}

	switch e.Op {
	case model.OpCreate:
		uid, err := backend.CreateReminder(ctx, *r)
		if err != nil {
			return err
		}
		return rp.reminders.SetRemoteUID(r.ID, uid)
	case model.OpUpdate:
		// No remote UID means the create for this reminder was dropped
		// as a remote rejection; an update would address a task the
		// server never had, so promote it to a create instead.
		if r.RemoteUID == "" {
			uid, err := backend.CreateReminder(ctx, *r)
			if err != nil {
				return err
			}
			return rp.reminders.SetRemoteUID(r.ID, uid)
		}
		uid, err := backend.UpdateReminder(ctx, *r, e)
		if err != nil {
			return err
		}
		if uid != r.RemoteUID {
			return rp.reminders.SetRemoteUID(r.ID, uid)
		}
		return nil
	case model.OpComplete:
		if r.RemoteUID == "" {
			return nil
		}
		return backend.CompleteReminder(ctx, *r)
	default:
		return fmt.Errorf("unknown reminder op %q", e.Op)
	}
}

func (rp *Replayer) applyList(ctx context.Context, backend remote.Backend, e model.QueueEntry) error {
	if e.Op == model.OpDelete {
		return backend.DeleteList(ctx, e)
	}

	l, err := rp.lists.GetByID(e.TargetID)
	if err != nil {
		return err
	}
	if l == nil {
		return nil
	}

	switch e.Op {
	case model.OpCreate:
		return backend.CreateList(ctx, *l)
	case model.OpUpdate:
		return backend.RenameList(ctx, *l)
	default:
		return fmt.Errorf("unknown list op %q", e.Op)
	}
}

func (rp *Replayer) flagged(userID string) bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.reauth[userID]
}

func (rp *Replayer) flag(userID string) {
	rp.mu.Lock()
	rp.reauth[userID] = true
	rp.mu.Unlock()
}
