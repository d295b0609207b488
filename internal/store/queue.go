package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/remindd/internal/model"
)

// QueueStore is the durable log of pending remote operations. Every
// mutation commits synchronously, so a crash mid-replay loses at most the
// in-flight entry's remote side effect, which is safe to retry.
//
// Subsumption keeps the log minimal: a pending create absorbs later
// updates and completes (replaying the create sends current state), and a
// delete of something never created remotely erases the whole history for
// that target instead of queueing a remote call.
type QueueStore struct {
	db *sql.DB
}

func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

func scanQueueEntry(scanner interface{ Scan(...any) error }) (*model.QueueEntry, error) {
	var e model.QueueEntry
	err := scanner.Scan(
		&e.ID, &e.Kind, &e.Op, &e.TargetID, &e.UserID, &e.ListID,
		&e.RemoteUID, &e.OldUserID, &e.OldListID, &e.OldRemoteUID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const queueCols = `id, kind, op, target_id, user_id, list_id, remote_uid, old_user_id, old_list_id, old_remote_uid, created_at`

func insertEntry(tx *sql.Tx, e model.QueueEntry) error {
	_, err := tx.Exec(
		`INSERT INTO sync_queue (kind, op, target_id, user_id, list_id, remote_uid, old_user_id, old_list_id, old_remote_uid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.Op, e.TargetID, e.UserID, e.ListID,
		e.RemoteUID, e.OldUserID, e.OldListID, e.OldRemoteUID,
	)
	return err
}

func hasPending(tx *sql.Tx, kind model.QueueKind, op model.QueueOp, targetID string) (bool, error) {
	var n int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM sync_queue WHERE kind = ? AND op = ? AND target_id = ?`,
		kind, op, targetID,
	).Scan(&n)
	return n > 0, err
}

func purgeOps(tx *sql.Tx, kind model.QueueKind, targetID string, ops ...model.QueueOp) error {
	for _, op := range ops {
		if _, err := tx.Exec(
			`DELETE FROM sync_queue WHERE kind = ? AND op = ? AND target_id = ?`,
			kind, op, targetID,
		); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueCreate appends a create entry for a new target.
func (s *QueueStore) EnqueueCreate(e model.QueueEntry) error {
	e.Op = model.OpCreate
	return s.inTx(func(tx *sql.Tx) error {
		return insertEntry(tx, e)
	})
}

// EnqueueUpdate appends an update entry unless a create for the same
// target is still pending, in which case the create subsumes it.
func (s *QueueStore) EnqueueUpdate(e model.QueueEntry) error {
	e.Op = model.OpUpdate
	return s.inTx(func(tx *sql.Tx) error {
		pending, err := hasPending(tx, e.Kind, model.OpCreate, e.TargetID)
		if err != nil {
			return err
		}
		if pending {
			return nil
		}
		// One pending update per target is enough; replay reads current state.
		if err := purgeOps(tx, e.Kind, e.TargetID, model.OpUpdate); err != nil {
			return err
		}
		return insertEntry(tx, e)
	})
}

// EnqueueComplete appends a completion-toggle entry under the same
// subsumption rule as updates.
func (s *QueueStore) EnqueueComplete(e model.QueueEntry) error {
	e.Op = model.OpComplete
	return s.inTx(func(tx *sql.Tx) error {
		pending, err := hasPending(tx, e.Kind, model.OpCreate, e.TargetID)
		if err != nil {
			return err
		}
		if pending {
			return nil
		}
		if err := purgeOps(tx, e.Kind, e.TargetID, model.OpComplete); err != nil {
			return err
		}
		return insertEntry(tx, e)
	})
}

// EnqueueDelete appends a delete entry. If a create for the target is
// still pending nothing exists remotely, so the target's entire pending
// history is erased and no delete is queued. A target with no remote
// identity likewise queues nothing.
func (s *QueueStore) EnqueueDelete(e model.QueueEntry) error {
	e.Op = model.OpDelete
	return s.inTx(func(tx *sql.Tx) error {
		pendingCreate, err := hasPending(tx, e.Kind, model.OpCreate, e.TargetID)
		if err != nil {
			return err
		}

		if err := purgeOps(tx, e.Kind, e.TargetID,
			model.OpCreate, model.OpUpdate, model.OpComplete); err != nil {
			return err
		}

		if pendingCreate {
			return nil
		}
		if e.Kind == model.KindReminder && e.RemoteUID == "" {
			return nil
		}
		return insertEntry(tx, e)
	})
}

// Pending returns a snapshot of the queue in enqueue order.
func (s *QueueStore) Pending() ([]model.QueueEntry, error) {
	rows, err := s.db.Query(`SELECT ` + queueCols + ` FROM sync_queue ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// PendingFor returns the pending entries for one target, in enqueue order.
func (s *QueueStore) PendingFor(kind model.QueueKind, targetID string) ([]model.QueueEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+queueCols+` FROM sync_queue WHERE kind = ? AND target_id = ? ORDER BY id ASC`,
		kind, targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue for target: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Remove deletes a replayed entry after its confirmed remote round-trip.
func (s *QueueStore) Remove(id int64) error {
	_, err := s.db.Exec(`DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove queue entry: %w", err)
	}
	return nil
}

func (s *QueueStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

func (s *QueueStore) inTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return tx.Commit()
}
