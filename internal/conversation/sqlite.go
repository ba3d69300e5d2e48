package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates a SQLite database at path, creating parent
// directories as needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSQLiteStore(db)
}

// NewSQLiteInMemory creates an in-memory store (useful for testing).
func NewSQLiteInMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLiteStore(db)
}

func newSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			exchange_index INTEGER NOT NULL,
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			passages TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			UNIQUE(conversation_id, exchange_index)
		);

		CREATE INDEX IF NOT EXISTS idx_exchanges_conversation
		ON exchanges(conversation_id, exchange_index);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, title string) (Conversation, error) {
	c := Conversation{ID: uuid.New().String(), Title: title, UpdatedAt: s.now()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, updated_at) VALUES (?, ?, ?)`,
		c.ID, c.Title, c.UpdatedAt.UnixMilli())
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (Conversation, error) {
	var (
		c       Conversation
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	c.UpdatedAt = time.UnixMilli(updated)

	rows, err := s.db.QueryContext(ctx, `
		SELECT query, answer, passages, status FROM exchanges
		WHERE conversation_id = ? ORDER BY exchange_index ASC`, id)
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to load exchanges: %w", err)
	}
	defer rows.Close()
	c.Exchanges = []Exchange{}
	for rows.Next() {
		var (
			ex       Exchange
			passages string
			status   string
		)
		if err := rows.Scan(&ex.Query, &ex.Answer, &passages, &status); err != nil {
			return Conversation{}, fmt.Errorf("failed to scan exchange: %w", err)
		}
		if err := json.Unmarshal([]byte(passages), &ex.Passages); err != nil {
			return Conversation{}, fmt.Errorf("failed to decode passages: %w", err)
		}
		ex.Status = Status(status)
		c.Exchanges = append(c.Exchanges, ex)
	}
	return c, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, id string, ex Exchange) error {
	passages, err := json.Marshal(nonNil(ex.Passages))
	if err != nil {
		return fmt.Errorf("failed to encode passages: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(exchange_index) + 1, 0) FROM exchanges WHERE conversation_id = ?`, id).
		Scan(&next); err != nil {
		return fmt.Errorf("failed to read exchange index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exchanges (conversation_id, exchange_index, query, answer, passages, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, next, ex.Query, ex.Answer, string(passages), string(ex.Status)); err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM exchanges WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete exchanges: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, updated_at FROM conversations ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()
	out := []Summary{}
	for rows.Next() {
		var (
			sm      Summary
			updated int64
		)
		if err := rows.Scan(&sm.ID, &sm.Title, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		sm.UpdatedAt = time.UnixMilli(updated)
		out = append(out, sm)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
