// Package sqlite implements store.EventLog using SQLite.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jxucoder/waconnect/model"
)

// Store manages lifecycle event persistence in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lifecycle_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			type       TEXT NOT NULL,
			data       TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT (datetime('now'))
		);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddEvent inserts a lifecycle event and sets its ID.
func (s *Store) AddEvent(event *model.Event) error {
	if event.Type == model.EventMessage {
		return fmt.Errorf("message events are not persisted")
	}
	result, err := s.db.Exec(
		`INSERT INTO lifecycle_events (type, data, created_at) VALUES (?, ?, ?)`,
		string(event.Type), event.Text, event.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

// GetEvents returns events after the given event ID, oldest first.
func (s *Store) GetEvents(afterID int64) ([]*model.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, type, data, created_at
		 FROM lifecycle_events
		 WHERE id > ?
		 ORDER BY id ASC`,
		afterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e := &model.Event{}
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.Text, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = model.EventType(typ)
		events = append(events, e)
	}
	return events, rows.Err()
}
