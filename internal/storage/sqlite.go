// Package storage provides the SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

// SQLiteStore implements Store using SQLite. Embeddings are persisted as
// compact BLOBs and hydrated to []float32 on read.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
}

// DefaultRetention is assigned to digests stored without an expiration.
const DefaultRetention = 30 * 24 * time.Hour

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist. retention
// is used to assign an expiration to digests stored without one; zero means
// DefaultRetention.
func NewSQLiteStore(dbPath string, retention time.Duration) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SQLiteStore{db: db, retention: retention}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS digests (
		id TEXT PRIMARY KEY,
		title TEXT,
		summary TEXT,
		excerpt TEXT,
		embedding BLOB,
		keywords TEXT,
		category TEXT,
		intent_score REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		fuzzy_time TIMESTAMP NOT NULL,
		last_accessed TIMESTAMP NOT NULL,
		private INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_digests_created_at ON digests(created_at);
	CREATE INDEX IF NOT EXISTS idx_digests_expires_at ON digests(expires_at);

	CREATE TABLE IF NOT EXISTS passages (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,
		fuzzy_time TIMESTAMP NOT NULL,
		category TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (document_id) REFERENCES digests(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_passages_document_id ON passages(document_id);
	CREATE INDEX IF NOT EXISTS idx_passages_document_chunk ON passages(document_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// storageErr wraps a database error so callers can discriminate with
// errors.Is(err, models.ErrStorageFailure) while keeping the cause.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorageFailure, err)
}

// PutDigest upserts a digest by ID. Missing lifecycle fields are assigned:
// expiration from the configured retention, fuzzy time by hour-flooring the
// creation time, last-accessed from the creation time.
func (s *SQLiteStore) PutDigest(ctx context.Context, digest *models.DocumentDigest) error {
	if digest.CreatedAt.IsZero() {
		digest.CreatedAt = time.Now()
	}
	if digest.FuzzyTime.IsZero() {
		digest.FuzzyTime = models.FuzzTime(digest.CreatedAt)
	}
	if digest.LastAccessed.IsZero() {
		digest.LastAccessed = digest.CreatedAt
	}
	if digest.ExpiresAt.IsZero() {
		digest.ExpiresAt = digest.CreatedAt.Add(s.retention)
	}

	keywordsJSON, err := json.Marshal(digest.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO digests (id, title, summary, excerpt, embedding, keywords, category,
			intent_score, created_at, fuzzy_time, last_accessed, private, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			excerpt = excluded.excerpt,
			embedding = excluded.embedding,
			keywords = excluded.keywords,
			category = excluded.category,
			intent_score = excluded.intent_score,
			fuzzy_time = excluded.fuzzy_time,
			last_accessed = excluded.last_accessed,
			private = excluded.private,
			expires_at = excluded.expires_at`,
		digest.ID, digest.Title, digest.Summary, digest.Excerpt,
		vector.EncodeEmbedding(digest.Embedding), string(keywordsJSON), digest.Category,
		digest.IntentScore, digest.CreatedAt, digest.FuzzyTime, digest.LastAccessed,
		digest.Private, digest.ExpiresAt,
	)
	if err != nil {
		return storageErr("put digest", err)
	}
	return nil
}

const digestColumns = `id, title, summary, excerpt, embedding, keywords, category,
	intent_score, created_at, fuzzy_time, last_accessed, private, expires_at`

func scanDigest(row interface{ Scan(...any) error }) (*models.DocumentDigest, error) {
	var d models.DocumentDigest
	var blob []byte
	var keywordsJSON string
	err := row.Scan(&d.ID, &d.Title, &d.Summary, &d.Excerpt, &blob, &keywordsJSON,
		&d.Category, &d.IntentScore, &d.CreatedAt, &d.FuzzyTime, &d.LastAccessed,
		&d.Private, &d.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if d.Embedding, err = vector.DecodeEmbedding(blob); err != nil {
		return nil, fmt.Errorf("digest %s: %w", d.ID, err)
	}
	if keywordsJSON != "" {
		if err := json.Unmarshal([]byte(keywordsJSON), &d.Keywords); err != nil {
			return nil, fmt.Errorf("digest %s: failed to unmarshal keywords: %w", d.ID, err)
		}
	}
	return &d, nil
}

// GetDigest returns a hydrated digest by ID, or ErrNotFound.
func (s *SQLiteStore) GetDigest(ctx context.Context, id string) (*models.DocumentDigest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+digestColumns+` FROM digests WHERE id = ?`, id)
	digest, err := scanDigest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("digest %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get digest", err)
	}
	return digest, nil
}

// ListDigests returns all digests, newest first.
func (s *SQLiteStore) ListDigests(ctx context.Context) ([]*models.DocumentDigest, error) {
	return s.queryDigests(ctx, `SELECT `+digestColumns+` FROM digests ORDER BY created_at DESC`)
}

// ListRecentDigests returns the newest limit digests.
func (s *SQLiteStore) ListRecentDigests(ctx context.Context, limit int) ([]*models.DocumentDigest, error) {
	return s.queryDigests(ctx,
		`SELECT `+digestColumns+` FROM digests ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) queryDigests(ctx context.Context, query string, args ...any) ([]*models.DocumentDigest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list digests", err)
	}
	defer rows.Close()

	var digests []*models.DocumentDigest
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, storageErr("list digests", err)
		}
		digests = append(digests, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list digests", err)
	}
	return digests, nil
}

// Touch updates last_accessed to now. Missing IDs are a no-op.
func (s *SQLiteStore) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE digests SET last_accessed = ? WHERE id = ?`, now, id)
	if err != nil {
		return storageErr("touch digest", err)
	}
	return nil
}

// DeleteDigest removes the digest and all of its passages in one transaction.
func (s *SQLiteStore) DeleteDigest(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("delete digest", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE document_id = ?`, id); err != nil {
		return storageErr("delete digest passages", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM digests WHERE id = ?`, id); err != nil {
		return storageErr("delete digest", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("delete digest", err)
	}
	return nil
}

// ListExpiredIDs returns IDs of digests whose expiration has passed.
func (s *SQLiteStore) ListExpiredIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM digests WHERE expires_at <= ?`, now)
	if err != nil {
		return nil, storageErr("list expired", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("list expired", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountDigests returns the total number of digests.
func (s *SQLiteStore) CountDigests(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM digests`).Scan(&count)
	if err != nil {
		return 0, storageErr("count digests", err)
	}
	return count, nil
}

// PutPassages upserts passages in a single transaction.
func (s *SQLiteStore) PutPassages(ctx context.Context, passages []*models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("put passages", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO passages (id, document_id, chunk_index, content, embedding, fuzzy_time, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			fuzzy_time = excluded.fuzzy_time,
			category = excluded.category`,
	)
	if err != nil {
		return storageErr("put passages", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.DocumentID, p.ChunkIndex, p.Content,
			vector.EncodeEmbedding(p.Embedding), p.FuzzyTime, p.Category, p.CreatedAt); err != nil {
			return storageErr("put passages", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("put passages", err)
	}
	return nil
}

const passageColumns = `id, document_id, chunk_index, content, embedding, fuzzy_time, category, created_at`

func scanPassage(row interface{ Scan(...any) error }) (*models.Passage, error) {
	var p models.Passage
	var blob []byte
	err := row.Scan(&p.ID, &p.DocumentID, &p.ChunkIndex, &p.Content, &blob,
		&p.FuzzyTime, &p.Category, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if p.Embedding, err = vector.DecodeEmbedding(blob); err != nil {
		return nil, fmt.Errorf("passage %s: %w", p.ID, err)
	}
	return &p, nil
}

// ListPassages returns all passages.
func (s *SQLiteStore) ListPassages(ctx context.Context) ([]*models.Passage, error) {
	return s.queryPassages(ctx, `SELECT `+passageColumns+` FROM passages`)
}

// ListPassagesByDocument returns a document's passages ordered by chunk_index.
func (s *SQLiteStore) ListPassagesByDocument(ctx context.Context, docID string) ([]*models.Passage, error) {
	return s.queryPassages(ctx,
		`SELECT `+passageColumns+` FROM passages WHERE document_id = ? ORDER BY chunk_index`, docID)
}

func (s *SQLiteStore) queryPassages(ctx context.Context, query string, args ...any) ([]*models.Passage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list passages", err)
	}
	defer rows.Close()

	var passages []*models.Passage
	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			return nil, storageErr("list passages", err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list passages", err)
	}
	return passages, nil
}

// DeletePassagesByDocument removes all passages for a document.
func (s *SQLiteStore) DeletePassagesByDocument(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM passages WHERE document_id = ?`, docID)
	if err != nil {
		return storageErr("delete passages", err)
	}
	return nil
}

// ListOrphanPassageIDs returns IDs of passages whose parent digest no longer
// exists. These can appear after a partial failure during cascade deletion.
func (s *SQLiteStore) ListOrphanPassageIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id FROM passages p LEFT JOIN digests d ON p.document_id = d.id WHERE d.id IS NULL`)
	if err != nil {
		return nil, storageErr("list orphan passages", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("list orphan passages", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeletePassages removes passages by ID.
func (s *SQLiteStore) DeletePassages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM passages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return storageErr("delete passages", err)
	}
	return nil
}

// CountPassages returns the total number of passages.
func (s *SQLiteStore) CountPassages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count)
	if err != nil {
		return 0, storageErr("count passages", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
