package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/remindd/internal/model"
)

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

func scanReminder(scanner interface{ Scan(...any) error }) (*model.Reminder, error) {
	var r model.Reminder
	var completedAt sql.NullTime

	err := scanner.Scan(
		&r.ID, &r.Title, &r.Description, &r.DueDate, &r.Timestamp, &r.OldTimestamp,
		&r.Completed, &r.Important, &r.ListID,
		&r.RepeatType, &r.RepeatFrequency, &r.RepeatDays, &r.RepeatUntil, &r.RepeatTimes,
		&r.CreatedAt, &r.UpdatedAt, &completedAt, &r.RemoteUID,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

const reminderCols = `id, title, description, due_date, timestamp, old_timestamp, completed, important, list_id, repeat_type, repeat_frequency, repeat_days, repeat_until, repeat_times, created_at, updated_at, completed_at, remote_uid`

// newID generates a collision-free reminder ID, regenerating against the
// current key set on the (vanishingly rare) collision.
func (s *ReminderStore) newID() (string, error) {
	for {
		id := uuid.NewString()
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM reminders WHERE id = ?`, id).Scan(&n); err != nil {
			return "", fmt.Errorf("check id collision: %w", err)
		}
		if n == 0 {
			return id, nil
		}
	}
}

// Create inserts r with a freshly generated ID and returns the stored record.
func (s *ReminderStore) Create(r model.Reminder) (*model.Reminder, error) {
	id, err := s.newID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var completedAt sql.NullTime
	if r.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *r.CompletedAt, Valid: true}
	}

	_, err = s.db.Exec(
		`INSERT INTO reminders (`+reminderCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Title, r.Description, r.DueDate, r.Timestamp, r.OldTimestamp,
		r.Completed, r.Important, r.ListID,
		r.RepeatType, r.RepeatFrequency, r.RepeatDays, r.RepeatUntil, r.RepeatTimes,
		now, now, completedAt, r.RemoteUID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	return s.GetByID(id)
}

func (s *ReminderStore) GetByID(id string) (*model.Reminder, error) {
	row := s.db.QueryRow(`SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

func (s *ReminderStore) List() ([]model.Reminder, error) {
	rows, err := s.db.Query(`SELECT ` + reminderCols + ` FROM reminders ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *ReminderStore) ListByList(listID string) ([]model.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderCols+` FROM reminders WHERE list_id = ? ORDER BY created_at ASC, id ASC`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminders by list: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ListImportant returns reminders carrying the importance flag.
func (s *ReminderStore) ListImportant() ([]model.Reminder, error) {
	rows, err := s.db.Query(`SELECT ` + reminderCols + ` FROM reminders WHERE important = 1 ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list important reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func collectReminders(rows *sql.Rows) ([]model.Reminder, error) {
	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// Update persists the full record and refreshes updated_at.
func (s *ReminderStore) Update(r model.Reminder) (*model.Reminder, error) {
	var completedAt sql.NullTime
	if r.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *r.CompletedAt, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE reminders SET title = ?, description = ?, due_date = ?, timestamp = ?, old_timestamp = ?,
			completed = ?, important = ?, list_id = ?,
			repeat_type = ?, repeat_frequency = ?, repeat_days = ?, repeat_until = ?, repeat_times = ?,
			updated_at = ?, completed_at = ?, remote_uid = ?
		WHERE id = ?`,
		r.Title, r.Description, r.DueDate, r.Timestamp, r.OldTimestamp,
		r.Completed, r.Important, r.ListID,
		r.RepeatType, r.RepeatFrequency, r.RepeatDays, r.RepeatUntil, r.RepeatTimes,
		time.Now().UTC(), completedAt, r.RemoteUID,
		r.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	return s.GetByID(r.ID)
}

// UpdateSchedule persists only the recurrence fields touched by a fire or
// catch-up pass, leaving updated_at alone so user edits stay distinguishable.
func (s *ReminderStore) UpdateSchedule(id string, timestamp, oldTimestamp int64, times int) error {
	_, err := s.db.Exec(
		`UPDATE reminders SET timestamp = ?, old_timestamp = ?, repeat_times = ? WHERE id = ?`,
		timestamp, oldTimestamp, times, id,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// SetRemoteUID records the identifier a remote backend assigned.
func (s *ReminderStore) SetRemoteUID(id, remoteUID string) error {
	_, err := s.db.Exec(`UPDATE reminders SET remote_uid = ? WHERE id = ?`, remoteUID, id)
	if err != nil {
		return fmt.Errorf("set remote uid: %w", err)
	}
	return nil
}

func (s *ReminderStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}
