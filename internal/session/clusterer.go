// Package session groups recent digests into temporally and semantically coherent sessions.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

// Config holds the clustering tunables.
type Config struct {
	// MaxGap splits two consecutive digests into separate runs when the time
	// between them exceeds it.
	MaxGap time.Duration `yaml:"max_gap"`
	// MinCoherence is the minimum member-to-centroid similarity, and the
	// minimum mean coherence, for a session to exist.
	MinCoherence float64 `yaml:"min_coherence"`
	// MinSize is the minimum member count for a session.
	MinSize int `yaml:"min_size"`
	// MaxAge discards sessions whose most recent member is older than this.
	MaxAge time.Duration `yaml:"max_age"`
}

// DefaultConfig returns the default clustering configuration.
func DefaultConfig() Config {
	return Config{
		MaxGap:       30 * time.Minute,
		MinCoherence: 0.6,
		MinSize:      2,
		MaxAge:       12 * time.Hour,
	}
}

// Clusterer detects research sessions in a window of recent digests. It is a
// pure computation: the same input window and parameters always produce
// sessions with identical identifiers, membership, and ordering.
type Clusterer struct {
	config Config
	now    func() time.Time
	logger *zap.Logger
}

// NewClusterer creates a Clusterer. now is injectable for deterministic tests;
// nil means time.Now.
func NewClusterer(config Config, now func() time.Time, logger *zap.Logger) *Clusterer {
	def := DefaultConfig()
	if config.MaxGap <= 0 {
		config.MaxGap = def.MaxGap
	}
	if config.MinCoherence <= 0 {
		config.MinCoherence = def.MinCoherence
	}
	if config.MinSize <= 0 {
		config.MinSize = def.MinSize
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clusterer{config: config, now: now, logger: logger}
}

// Config returns the effective clustering configuration.
func (c *Clusterer) Config() Config {
	return c.config
}

// Detect clusters the window into zero or more sessions, most recent activity
// first. Private digests and digests with malformed embeddings are discarded
// up front; temporal runs are then filtered semantically against their
// centroid.
func (c *Clusterer) Detect(window []*models.DocumentDigest) []*models.Session {
	eligible := make([]*models.DocumentDigest, 0, len(window))
	dim := 0
	for _, d := range window {
		if d.Private {
			continue
		}
		if !vector.IsWellFormed(d.Embedding, dim) {
			c.logger.Debug("discarding digest from clustering", zap.String("id", d.ID))
			continue
		}
		if dim == 0 {
			dim = len(d.Embedding)
		}
		eligible = append(eligible, d)
	}
	if len(eligible) < c.config.MinSize {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		}
		return eligible[i].ID < eligible[j].ID
	})

	var sessions []*models.Session
	run := []*models.DocumentDigest{eligible[0]}
	for _, d := range eligible[1:] {
		prev := run[len(run)-1]
		if d.CreatedAt.Sub(prev.CreatedAt) > c.config.MaxGap {
			if s := c.buildSession(run); s != nil {
				sessions = append(sessions, s)
			}
			run = run[:0]
		}
		run = append(run, d)
	}
	if s := c.buildSession(run); s != nil {
		sessions = append(sessions, s)
	}

	// Most recent activity first.
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].EndTime.Equal(sessions[j].EndTime) {
			return sessions[i].EndTime.After(sessions[j].EndTime)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions
}

// buildSession filters a temporal run against its centroid and assembles a
// Session, or returns nil when the run does not qualify. Filtering iterates to
// a fixed point: dropping an outlier moves the centroid, which can push a
// previously kept member below the coherence floor, so members are re-checked
// until every one clears MinCoherence against the centroid of the kept set.
// That centroid is the one stored on the session.
func (c *Clusterer) buildSession(run []*models.DocumentDigest) *models.Session {
	if len(run) < c.config.MinSize {
		return nil
	}

	kept := run
	var centroid []float32
	var similarities []float64
	for {
		vectors := make([][]float32, len(kept))
		for i, d := range kept {
			vectors[i] = d.Embedding
		}
		centroid = vector.Centroid(vectors)
		vector.NormalizeL2(centroid)

		next := make([]*models.DocumentDigest, 0, len(kept))
		similarities = similarities[:0]
		for _, d := range kept {
			sim, err := vector.Cosine(d.Embedding, centroid)
			if err != nil {
				c.logger.Warn("centroid similarity failed", zap.String("id", d.ID), zap.Error(err))
				continue
			}
			if sim >= c.config.MinCoherence {
				next = append(next, d)
				similarities = append(similarities, sim)
			}
		}
		if len(next) < c.config.MinSize {
			return nil
		}
		stable := len(next) == len(kept)
		kept = next
		if stable {
			break
		}
	}

	var total float64
	memberIDs := make([]string, len(kept))
	for i, d := range kept {
		total += similarities[i]
		memberIDs[i] = d.ID
	}
	coherence := total / float64(len(kept))

	endTime := kept[len(kept)-1].CreatedAt
	if c.now().Sub(endTime) > c.config.MaxAge {
		return nil
	}

	session := &models.Session{
		ID:        sessionID(kept[0]),
		MemberIDs: memberIDs,
		Coherence: coherence,
		StartTime: kept[0].CreatedAt,
		EndTime:   endTime,
		Category:  dominantCategory(kept),
		Keywords:  sharedKeywords(kept, 5),
		Centroid:  centroid,
	}
	session.Title = deriveTitle(kept, session.Category)
	return session
}

// sessionID derives a deterministic identifier from the earliest member's ID
// and its hour-floored timestamp, so recomputing over the same underlying data
// yields the same session ID.
func sessionID(earliest *models.DocumentDigest) string {
	seed := earliest.ID + "|" + models.FuzzTime(earliest.CreatedAt).UTC().Format(time.RFC3339)
	hash := sha256.Sum256([]byte(seed))
	return "session:" + hex.EncodeToString(hash[:16])
}

// dominantCategory returns the most frequent non-empty category, ties broken
// lexicographically for determinism.
func dominantCategory(members []*models.DocumentDigest) string {
	counts := make(map[string]int)
	for _, d := range members {
		if d.Category != "" {
			counts[d.Category]++
		}
	}
	best := ""
	bestCount := 0
	for category, count := range counts {
		if count > bestCount || (count == bestCount && category < best) {
			best = category
			bestCount = count
		}
	}
	return best
}

// sharedKeywords returns up to limit keywords appearing in at least two
// members, most frequent first, ties broken lexicographically.
func sharedKeywords(members []*models.DocumentDigest, limit int) []string {
	counts := make(map[string]int)
	for _, d := range members {
		seen := make(map[string]bool)
		for _, k := range d.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			counts[k]++
		}
	}
	var shared []string
	for k, n := range counts {
		if n >= 2 {
			shared = append(shared, k)
		}
	}
	sort.Slice(shared, func(i, j int) bool {
		if counts[shared[i]] != counts[shared[j]] {
			return counts[shared[i]] > counts[shared[j]]
		}
		return shared[i] < shared[j]
	})
	if len(shared) > limit {
		shared = shared[:limit]
	}
	return shared
}

// deriveTitle builds a deterministic session title: the most shared entity
// when one appears in at least two members, else the dominant category, else
// a generic label.
func deriveTitle(members []*models.DocumentDigest, category string) string {
	if shared := sharedKeywords(members, 1); len(shared) > 0 {
		return "Researching " + shared[0]
	}
	if category != "" {
		return titleCase(category) + " Session"
	}
	return "Browsing Session"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
