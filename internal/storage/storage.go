// Package storage defines the persistence interface for digests and passages.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/kioku/internal/models"
)

// Store defines digest and passage persistence operations. Implementations
// must serialize conflicting writes to the same identifier (last write wins);
// independent identifiers may be written concurrently.
type Store interface {
	// Digest operations
	PutDigest(ctx context.Context, digest *models.DocumentDigest) error
	GetDigest(ctx context.Context, id string) (*models.DocumentDigest, error)
	ListDigests(ctx context.Context) ([]*models.DocumentDigest, error)
	ListRecentDigests(ctx context.Context, limit int) ([]*models.DocumentDigest, error)
	Touch(ctx context.Context, id string, now time.Time) error
	DeleteDigest(ctx context.Context, id string) error
	ListExpiredIDs(ctx context.Context, now time.Time) ([]string, error)
	CountDigests(ctx context.Context) (int64, error)

	// Passage operations
	PutPassages(ctx context.Context, passages []*models.Passage) error
	ListPassages(ctx context.Context) ([]*models.Passage, error)
	ListPassagesByDocument(ctx context.Context, docID string) ([]*models.Passage, error)
	DeletePassagesByDocument(ctx context.Context, docID string) error
	ListOrphanPassageIDs(ctx context.Context) ([]string, error)
	DeletePassages(ctx context.Context, ids []string) error
	CountPassages(ctx context.Context) (int64, error)

	Close() error
}
