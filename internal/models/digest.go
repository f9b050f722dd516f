// Package models defines core data structures for document digests, passages, and sessions.
package models

import (
	"fmt"
	"time"
)

// DocumentDigest is the stored, embedded representation of one source document.
// The embedding is hydrated from its persisted byte buffer by the storage layer;
// code above the storage boundary only ever sees []float32.
type DocumentDigest struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Summary      string    `json:"summary,omitempty" db:"summary"`
	Excerpt      string    `json:"excerpt,omitempty" db:"excerpt"`
	Embedding    []float32 `json:"-" db:"-"`
	Keywords     []string  `json:"keywords,omitempty" db:"keywords"`
	Category     string    `json:"category,omitempty" db:"category"`
	IntentScore  float64   `json:"intent_score" db:"intent_score"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	FuzzyTime    time.Time `json:"fuzzy_time" db:"fuzzy_time"`
	LastAccessed time.Time `json:"last_accessed" db:"last_accessed"`
	Private      bool      `json:"private" db:"private"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
}

// Passage is one chunk of a digest's full text with its own embedding.
// Passages are never created standalone; they always belong to exactly one digest.
type Passage struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Content    string    `json:"content" db:"content"`
	Embedding  []float32 `json:"-" db:"-"`
	FuzzyTime  time.Time `json:"fuzzy_time" db:"fuzzy_time"`
	Category   string    `json:"category,omitempty" db:"category"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PassageID builds the composite passage identifier from the parent document
// ID and the zero-based chunk index. Index ordering reconstructs document order.
func PassageID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", documentID, chunkIndex)
}

// FuzzTime coarsens a precise timestamp by flooring it to the hour.
func FuzzTime(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

// IngestRequest is the input for indexing a document.
type IngestRequest struct {
	// SourceKey is a stable key for the source (URL, path, ...). The document ID
	// is derived from it, so re-ingesting the same source upserts. Optional; a
	// random ID is assigned when empty.
	SourceKey   string   `json:"source_key,omitempty"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	Category    string   `json:"category,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	IntentScore float64  `json:"intent_score"`
	Private     bool     `json:"private,omitempty"`
	Text        string   `json:"text"`
}
