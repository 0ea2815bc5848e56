package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

const migrationV1Memories = `
CREATE TABLE IF NOT EXISTS memories (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	topic      TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_topic ON memories(topic);
`

// similarCandidateLimit bounds how many rows Similar scores in Go.
const similarCandidateLimit = 500

// SQLiteStore persists memory entries in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// OpenSQLite opens (or creates) the database at dbPath and applies migrations.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single connection: writes are serialized and :memory: stays one database
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: conn, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate memory db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM memory_schema_version").Scan(&current); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Memories},
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO memory_schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) Record(ctx context.Context, content string, metadata map[string]any) (Entry, error) {
	id, err := model.GenerateID(model.IDTypeMemory)
	if err != nil {
		return Entry{}, fmt.Errorf("memory id: %w", err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	md, err := json.Marshal(metadata)
	if err != nil {
		return Entry{}, fmt.Errorf("encode metadata: %w", err)
	}

	e := Entry{ID: id, Content: content, Metadata: metadata, CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, metadata, topic, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.Content, string(md), nullString(e.Topic()), e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("insert memory: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, created_at FROM memories
		ORDER BY seq DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent memories: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	// newest last
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *SQLiteStore) Similar(ctx context.Context, query string, k int) ([]Entry, error) {
	tokens := tokenize(query)
	if k <= 0 || len(tokens) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens)*2+1)
	for tok := range tokens {
		conds = append(conds, "(LOWER(content) LIKE ? OR LOWER(metadata) LIKE ?)")
		pattern := "%" + tok + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, similarCandidateLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, content, metadata, created_at FROM (
			SELECT seq, id, content, metadata, created_at FROM memories
			WHERE %s ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, strings.Join(conds, " OR ")), args...)
	if err != nil {
		return nil, fmt.Errorf("query similar memories: %w", err)
	}
	candidates, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return rankSimilar(candidates, query, k), nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			md        string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Content, &md, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(md), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", e.ID, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", e.ID, err)
		}
		e.CreatedAt = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
