// Package database archives the room transcript in a local SQLite file so
// the sheet has something to show before the first history frame arrives.
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"communitychat/chat"
	"communitychat/models"
)

// Store is a SQLite-backed transcript archive.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive at path and creates its tables.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}

	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	tables := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		username TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		content TEXT NOT NULL,
		reply_to_id TEXT DEFAULT '',
		video_id TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		raw TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);
	`

	_, err := s.db.Exec(tables)
	return err
}

// Record applies one room change to the archive. Changes that do not touch
// the message log are ignored.
func (s *Store) Record(c chat.Change) error {
	switch c.Kind {
	case chat.ChangeHistory:
		return s.ReplaceMessages(c.Messages)
	case chat.ChangeMessage:
		if c.Message == nil {
			return nil
		}
		return s.InsertMessage(*c.Message)
	case chat.ChangeDeleted:
		return s.DeleteMessage(c.ID)
	}
	return nil
}

// Message queries

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertMessage(db execer, m models.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}

	var replyTo, videoID string
	if m.ReplyTo != nil {
		replyTo = m.ReplyTo.ID
	}
	if m.MentionedVideo != nil {
		videoID = m.MentionedVideo.ID
	}

	_, err = db.Exec(
		`INSERT OR IGNORE INTO messages (id, user_id, username, display_name, content, reply_to_id, video_id, created_at, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.User.ID, m.User.Username, m.User.DisplayName, m.Content,
		replyTo, videoID, m.CreatedAt, string(raw),
	)
	return err
}

// InsertMessage appends m unless a message with its ID is already archived.
func (s *Store) InsertMessage(m models.Message) error {
	return insertMessage(s.db, m)
}

// ReplaceMessages swaps the archived log for messages.
func (s *Store) ReplaceMessages(messages []models.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return err
	}
	for _, m := range messages {
		if err := insertMessage(tx, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteMessage removes a message by ID.
func (s *Store) DeleteMessage(id string) error {
	_, err := s.db.Exec("DELETE FROM messages WHERE id = ?", id)
	return err
}

// Recent returns up to limit of the latest archived messages in arrival order.
func (s *Store) Recent(limit int) ([]models.Message, error) {
	rows, err := s.db.Query(
		"SELECT raw FROM messages ORDER BY rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var m models.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode archived message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get arrival order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Count returns the number of archived messages.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}
