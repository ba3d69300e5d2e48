package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrIndexNotLoaded is returned by Retrieve before Load succeeded.
var ErrIndexNotLoaded = errors.New("passage index not loaded")

// Entry is one stored passage with its embedding.
type Entry struct {
	ID        string
	Source    string
	Text      string
	Embedding []float32
}

// SQLiteIndex stores passages and their embeddings in a SQLite file and ranks
// them by brute-force cosine similarity. Guideline corpora are small enough
// (tens of thousands of chunks) that a scan per question is fine on a phone.
type SQLiteIndex struct {
	path     string
	embedder Embedder
	cfg      Config

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteIndex returns an index over the database at path. The file is not
// opened until Load.
func NewSQLiteIndex(path string, embedder Embedder, cfg Config) *SQLiteIndex {
	return &SQLiteIndex{path: path, embedder: embedder, cfg: cfg.WithDefaults()}
}

// Load opens (or creates) the database and its schema.
func (s *SQLiteIndex) Load(ctx context.Context) error {
	if s.path == "" {
		return errors.New("index path is empty")
	}
	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	if s.path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := initIndexSchema(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("initializing index schema: %w", err)
	}
	s.mu.Lock()
	old := s.db
	s.db = db
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func initIndexSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS passages (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		embedding BLOB NOT NULL
	);
	`)
	return err
}

func (s *SQLiteIndex) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrIndexNotLoaded
	}
	return s.db, nil
}

// Store inserts or replaces entries.
func (s *SQLiteIndex) Store(ctx context.Context, entries []Entry) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO passages (id, source, content, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		emb, err := json.Marshal(e.Embedding)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Source, e.Text, emb); err != nil {
			return fmt.Errorf("inserting passage %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Retrieve embeds query and returns the TopK most similar passages.
func (s *SQLiteIndex) Retrieve(ctx context.Context, query string) ([]Passage, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if s.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT id, source, content, embedding FROM passages`)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	type scored struct {
		id string
		p  Passage
	}
	var results []scored
	for rows.Next() {
		var (
			id, source, content string
			embJSON             []byte
			emb                 []float32
		)
		if err := rows.Scan(&id, &source, &content, &embJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal(embJSON, &emb); err != nil {
			continue // skip corrupted embeddings
		}
		score := cosineSimilarity(q, emb)
		if s.cfg.Cutoff > 0 && score < s.cfg.Cutoff {
			continue
		}
		results = append(results, scored{id: id, p: Passage{Text: content, Source: source, Score: score}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading passages: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].p.Score == results[j].p.Score {
			return results[i].id < results[j].id
		}
		return results[i].p.Score > results[j].p.Score
	})
	if len(results) > s.cfg.TopK {
		results = results[:s.cfg.TopK]
	}
	out := make([]Passage, len(results))
	for i, r := range results {
		out[i] = r.p
	}
	return out, nil
}

// Count returns the number of stored passages.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

// cosineSimilarity returns 0 for mismatched or zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
