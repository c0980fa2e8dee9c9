// Package corpus persists exam study material as embedded chunks in SQLite
// and serves the vector and keyword lookups the retrieval layer is built on.
package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Source types a chunk can carry. Retrieval filters on these.
const (
	SourceTextbook  = "textbook"
	SourceDiagram   = "diagram"
	SourceExamPaper = "exam_paper"
	SourceQuestion  = "question"
)

// Chunk is one unit of indexed study material.
type Chunk struct {
	ID         int64
	Content    string
	SourceType string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}

// SearchHit pairs a chunk with its relevance score. For vector search the
// score is cosine similarity in [0, 1]; for keyword search it is negated
// bm25, so higher is better on both paths.
type SearchHit struct {
	Chunk
	Score float64
}

// Store wraps the SQLite corpus database.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the corpus database at path, ensuring the parent
// directory and schema exist. busyTimeout bounds lock waits across the
// ingest CLI and a running generation job sharing the same file.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create corpus directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	// NORMAL is safe under WAL and much faster than FULL for bulk ingest.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.verifyVecExtension(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			embedding BLOB,
			source_type TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source_type ON chunks(source_type)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content,
			content='chunks',
			content_rowid='id'
		)`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE OF content ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
			INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
		END`,
		`CREATE TABLE IF NOT EXISTS style_profiles (
			exam_code TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize corpus schema: %w", err)
		}
	}
	return nil
}

// verifyVecExtension confirms the sqlite-vec extension registered by init_vec
// is actually loaded. Distance queries are meaningless without it, so this
// fails hard rather than degrading silently.
func (s *Store) verifyVecExtension() error {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}
	return nil
}

// InsertChunk stores one chunk. A nil embedding is allowed; such chunks are
// reachable by keyword search only.
func (s *Store) InsertChunk(ctx context.Context, content string, embedding []float32, sourceType string, metadata map[string]interface{}) (int64, error) {
	if content == "" {
		return 0, fmt.Errorf("chunk content must not be empty")
	}
	if sourceType == "" {
		return 0, fmt.Errorf("chunk source_type must not be empty")
	}

	metaJSON := []byte("{}")
	if len(metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize chunk metadata: %w", err)
		}
	}

	var blob interface{}
	if embedding != nil {
		blob = EncodeVector(embedding)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO chunks (content, embedding, source_type, metadata) VALUES (?, ?, ?, ?)",
		content, blob, sourceType, string(metaJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk: %w", err)
	}
	return res.LastInsertId()
}

// CountChunks returns the number of chunks per source type.
func (s *Store) CountChunks(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT source_type, COUNT(*) FROM chunks GROUP BY source_type")
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sourceType string
		var n int
		if err := rows.Scan(&sourceType, &n); err != nil {
			return nil, err
		}
		counts[sourceType] = n
	}
	return counts, rows.Err()
}

func scanChunk(rows *sql.Rows, extra ...interface{}) (Chunk, error) {
	var c Chunk
	var metaJSON string
	dest := append([]interface{}{&c.ID, &c.Content, &c.SourceType, &metaJSON, &c.CreatedAt}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return Chunk{}, err
	}
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return Chunk{}, fmt.Errorf("failed to decode chunk %d metadata: %w", c.ID, err)
		}
	}
	return c, nil
}

// sourceFilter builds an "AND source_type IN (...)" clause. An empty list
// means no filtering.
func sourceFilter(column string, sourceTypes []string) (string, []interface{}) {
	if len(sourceTypes) == 0 {
		return "", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sourceTypes)), ",")
	args := make([]interface{}, len(sourceTypes))
	for i, st := range sourceTypes {
		args[i] = st
	}
	return fmt.Sprintf(" AND %s IN (%s)", column, placeholders), args
}
