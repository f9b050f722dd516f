// Package docid derives stable document identifiers from source keys.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const prefix = "doc:"

// FromSourceKey returns a stable document ID for the given source key (URL,
// file path, ...). The key is normalized (trimmed, lowercased, trailing slash
// stripped) so the same source always maps to the same ID. When key is empty,
// a random ID is returned instead.
func FromSourceKey(key string) string {
	normalized := normalize(key)
	if normalized == "" {
		return Random()
	}
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// Random returns a non-deterministic document ID for sources without a stable key.
func Random() string {
	return prefix + uuid.New().String()
}

func normalize(key string) string {
	key = strings.TrimSpace(strings.ToLower(key))
	key = strings.TrimSuffix(key, "/")
	return key
}
