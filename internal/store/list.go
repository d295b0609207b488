package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/remindd/internal/model"
)

// DefaultListID is the local account's built-in list, created by migration.
const DefaultListID = "local-default"

// ErrDefaultList is returned when deleting the local account's list.
var ErrDefaultList = errors.New("the default list cannot be deleted")

type ListStore struct {
	db *sql.DB
}

func NewListStore(db *sql.DB) *ListStore {
	return &ListStore{db: db}
}

func scanList(scanner interface{ Scan(...any) error }) (*model.TaskList, error) {
	var l model.TaskList
	err := scanner.Scan(&l.ID, &l.Name, &l.UserID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const listCols = `id, name, user_id, created_at, updated_at`

func (s *ListStore) Create(name, userID string) (*model.TaskList, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO task_lists (`+listCols+`) VALUES (?, ?, ?, ?, ?)`,
		id, name, userID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert list: %w", err)
	}
	return s.GetByID(id)
}

func (s *ListStore) GetByID(id string) (*model.TaskList, error) {
	row := s.db.QueryRow(`SELECT `+listCols+` FROM task_lists WHERE id = ?`, id)
	l, err := scanList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

func (s *ListStore) List() ([]model.TaskList, error) {
	rows, err := s.db.Query(`SELECT ` + listCols + ` FROM task_lists ORDER BY user_id ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list task lists: %w", err)
	}
	defer rows.Close()

	var lists []model.TaskList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, *l)
	}
	return lists, rows.Err()
}

func (s *ListStore) Rename(id, name string) (*model.TaskList, error) {
	_, err := s.db.Exec(
		`UPDATE task_lists SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("rename list: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes a list and, via cascade, its reminders. The local
// account's default list is protected.
func (s *ListStore) Delete(id string) error {
	if id == DefaultListID {
		return ErrDefaultList
	}
	_, err := s.db.Exec(`DELETE FROM task_lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return nil
}
