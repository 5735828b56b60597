package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// connectedKey is the local storage key holding the persisted connection marker.
const connectedKey = "calendar_connected"

// Storage is a small client-side key/value store.
type Storage interface {
	// Get returns "" when the key is absent.
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

type sqliteStorage struct {
	db *sql.DB
}

func newSQLiteStorage(db *sql.DB) *sqliteStorage {
	return &sqliteStorage{db: db}
}

func (s *sqliteStorage) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM local_storage WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from local storage: %w", key, err)
	}
	return value, nil
}

func (s *sqliteStorage) Set(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO local_storage (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s to local storage: %w", key, err)
	}
	return nil
}

func (s *sqliteStorage) Remove(key string) error {
	_, err := s.db.Exec("DELETE FROM local_storage WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to remove %s from local storage: %w", key, err)
	}
	return nil
}

// TaskLink records which calendar event mirrors a task.
type TaskLink struct {
	TaskID     string
	EventID    string
	CalendarID string
	CreatedAt  time.Time
}

func saveTaskLink(db *sql.DB, link TaskLink) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO task_events (task_id, event_id, calendar_id, created_at)
		VALUES (?, ?, ?, ?)`,
		link.TaskID, link.EventID, link.CalendarID, link.CreatedAt.Format(time.RFC3339))
	return err
}

// getTaskLink returns sql.ErrNoRows when the task has no event.
func getTaskLink(db *sql.DB, taskID string) (*TaskLink, error) {
	var link TaskLink
	var createdAt string
	err := db.QueryRow("SELECT task_id, event_id, calendar_id, created_at FROM task_events WHERE task_id = ?", taskID).
		Scan(&link.TaskID, &link.EventID, &link.CalendarID, &createdAt)
	if err != nil {
		return nil, err
	}
	link.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &link, nil
}

func deleteTaskLink(db *sql.DB, taskID string) error {
	_, err := db.Exec("DELETE FROM task_events WHERE task_id = ?", taskID)
	return err
}

func deleteTaskLinksByEvent(db *sql.DB, eventID string) error {
	_, err := db.Exec("DELETE FROM task_events WHERE event_id = ?", eventID)
	return err
}
