// Package eviction bounds the document store through quality-aware pruning.
package eviction

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
)

// Weights are the quality score components. They are policy constants, not a
// probability distribution; they are not required to sum to 1.
type Weights struct {
	Recency  float64 `yaml:"recency"`
	Intent   float64 `yaml:"intent"`
	Access   float64 `yaml:"access"`
	Category float64 `yaml:"category"`
}

// Policy holds the eviction tunables.
type Policy struct {
	// MaxEntries is the digest count ceiling enforced by Prune.
	MaxEntries int
	// RecencyDecay is the per-day exponential decay rate for document age.
	RecencyDecay float64
	// AccessDecay is the per-day decay rate for time since last access.
	// Must be larger than RecencyDecay: access recency decays faster.
	AccessDecay float64
	// Weights combine the quality components.
	Weights Weights
	// CategoryWeights maps categories to a static value; unlisted categories
	// get DefaultCategoryWeight.
	CategoryWeights       map[string]float64
	DefaultCategoryWeight float64
}

// DefaultPolicy returns the default eviction policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxEntries:   500,
		RecencyDecay: 0.05,
		AccessDecay:  0.15,
		Weights:      Weights{Recency: 0.3, Intent: 0.3, Access: 0.3, Category: 0.1},
		CategoryWeights: map[string]float64{
			"research":  0.9,
			"reference": 0.8,
			"work":      0.8,
			"news":      0.6,
			"shopping":  0.3,
			"social":    0.3,
		},
		DefaultCategoryWeight: 0.5,
	}
}

// Manager removes expired digests and enforces the entry ceiling by evicting
// the lowest-quality entries. At most one prune pass runs at a time; a
// concurrent call no-ops instead of computing an independent ranking.
type Manager struct {
	store  storage.Store
	policy Policy
	now    func() time.Time
	logger *zap.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewManager creates a Manager. now is injectable for deterministic tests;
// nil means time.Now.
func NewManager(store storage.Store, policy Policy, now func() time.Time, logger *zap.Logger) *Manager {
	if policy.MaxEntries <= 0 {
		policy.MaxEntries = DefaultPolicy().MaxEntries
	}
	if policy.RecencyDecay <= 0 {
		policy.RecencyDecay = DefaultPolicy().RecencyDecay
	}
	if policy.AccessDecay <= policy.RecencyDecay {
		policy.AccessDecay = policy.RecencyDecay * 3
	}
	if policy.Weights == (Weights{}) {
		policy.Weights = DefaultPolicy().Weights
	}
	if policy.CategoryWeights == nil {
		policy.CategoryWeights = DefaultPolicy().CategoryWeights
	}
	if policy.DefaultCategoryWeight == 0 {
		policy.DefaultCategoryWeight = DefaultPolicy().DefaultCategoryWeight
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, policy: policy, now: now, logger: logger}
}

// Quality computes the eviction quality score for a digest:
// weighted recency, intent, access recency, and category value. Malformed
// inputs (NaN intent, zero timestamps) degrade to zero components rather than
// poisoning the ranking.
func (m *Manager) Quality(digest *models.DocumentDigest) float64 {
	now := m.now()

	var recency float64
	if !digest.CreatedAt.IsZero() {
		ageDays := now.Sub(digest.CreatedAt).Hours() / 24
		recency = math.Exp(-m.policy.RecencyDecay * math.Max(ageDays, 0))
	}

	var access float64
	if !digest.LastAccessed.IsZero() {
		accessDays := now.Sub(digest.LastAccessed).Hours() / 24
		access = math.Exp(-m.policy.AccessDecay * math.Max(accessDays, 0))
	}

	intent := digest.IntentScore
	if math.IsNaN(intent) || intent < 0 {
		intent = 0
	} else if intent > 1 {
		intent = 1
	}

	categoryWeight := m.policy.DefaultCategoryWeight
	if w, ok := m.policy.CategoryWeights[digest.Category]; ok {
		categoryWeight = w
	}

	w := m.policy.Weights
	return w.Recency*recency + w.Intent*intent + w.Access*access + w.Category*categoryWeight
}

// Prune deletes expired digests, then evicts the lowest-quality survivors
// until the count is at or below MaxEntries, then sweeps orphan passages.
// Returns the number of digests removed. Quality scores are recomputed fresh
// on every call, so re-running immediately after a partial failure is safe.
// A call while another prune is in flight returns (0, nil).
func (m *Manager) Prune(ctx context.Context) (int, error) {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		m.logger.Debug("prune already in flight, skipping")
		return 0, nil
	}
	m.inFlight = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	removed := 0

	expired, err := m.store.ListExpiredIDs(ctx, m.now())
	if err != nil {
		return removed, err
	}
	for _, id := range expired {
		if err := m.store.DeleteDigest(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}

	count, err := m.store.CountDigests(ctx)
	if err != nil {
		return removed, err
	}
	if excess := int(count) - m.policy.MaxEntries; excess > 0 {
		evicted, err := m.evictLowestQuality(ctx, excess)
		removed += evicted
		if err != nil {
			return removed, err
		}
	}

	if orphans, err := m.OrphanSweep(ctx); err != nil {
		return removed, err
	} else if orphans > 0 {
		m.logger.Warn("removed orphan passages", zap.Int("count", orphans))
	}

	m.logger.Debug("prune complete", zap.Int("removed", removed))
	return removed, nil
}

type scoredDigest struct {
	id      string
	quality float64
}

// evictLowestQuality deletes exactly excess digests, lowest quality first.
// Ties break on ID so the ordering is deterministic.
func (m *Manager) evictLowestQuality(ctx context.Context, excess int) (int, error) {
	digests, err := m.store.ListDigests(ctx)
	if err != nil {
		return 0, err
	}

	scored := make([]scoredDigest, 0, len(digests))
	for _, d := range digests {
		scored = append(scored, scoredDigest{id: d.ID, quality: m.Quality(d)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].quality != scored[j].quality {
			return scored[i].quality < scored[j].quality
		}
		return scored[i].id < scored[j].id
	})

	if excess > len(scored) {
		excess = len(scored)
	}
	removed := 0
	for _, sd := range scored[:excess] {
		if err := m.store.DeleteDigest(ctx, sd.id); err != nil {
			return removed, err
		}
		m.logger.Debug("evicted digest", zap.String("id", sd.id), zap.Float64("quality", sd.quality))
		removed++
	}
	return removed, nil
}

// OrphanSweep deletes passages whose parent digest no longer exists. This
// reconciles partial failures during cascade deletion and can run on its own
// schedule independent of Prune.
func (m *Manager) OrphanSweep(ctx context.Context) (int, error) {
	ids, err := m.store.ListOrphanPassageIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := m.store.DeletePassages(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}
