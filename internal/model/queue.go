package model

import "time"

// QueueOp is the kind of remote operation a queue entry replays.
type QueueOp string

const (
	OpCreate   QueueOp = "create"
	OpUpdate   QueueOp = "update"
	OpDelete   QueueOp = "delete"
	OpComplete QueueOp = "complete"
)

// QueueKind is the entity a queue entry targets.
type QueueKind string

const (
	KindReminder QueueKind = "reminder"
	KindList     QueueKind = "list"
)

// QueueEntry is one pending remote operation. Entries replay in ID order
// within an account. Delete entries carry the remote identity since the
// local record is already gone; update entries additionally carry the
// prior identity in case the reminder moved between lists or accounts.
type QueueEntry struct {
	ID           int64     `json:"id"`
	Kind         QueueKind `json:"kind"`
	Op           QueueOp   `json:"op"`
	TargetID     string    `json:"target_id"`
	UserID       string    `json:"user_id"`
	ListID       string    `json:"list_id,omitempty"`
	RemoteUID    string    `json:"remote_uid,omitempty"`
	OldUserID    string    `json:"old_user_id,omitempty"`
	OldListID    string    `json:"old_list_id,omitempty"`
	OldRemoteUID string    `json:"old_remote_uid,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
