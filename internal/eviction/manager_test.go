package eviction

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testManager(t *testing.T, store storage.Store, maxEntries int) *Manager {
	t.Helper()
	policy := DefaultPolicy()
	policy.MaxEntries = maxEntries
	return NewManager(store, policy, func() time.Time { return fixedNow }, nil)
}

func digest(id string, age time.Duration, intent float64, category string) *models.DocumentDigest {
	created := fixedNow.Add(-age)
	return &models.DocumentDigest{
		ID:           id,
		Title:        "title " + id,
		Embedding:    []float32{1, 0},
		Category:     category,
		IntentScore:  intent,
		CreatedAt:    created,
		LastAccessed: created,
		ExpiresAt:    fixedNow.Add(24 * time.Hour),
	}
}

func TestQuality_Ordering(t *testing.T) {
	m := testManager(t, testStore(t), 500)

	fresh := digest("fresh", time.Hour, 0.8, "research")
	stale := digest("stale", 60*24*time.Hour, 0.8, "research")
	if m.Quality(fresh) <= m.Quality(stale) {
		t.Error("fresh digest should outscore stale digest")
	}

	deliberate := digest("deliberate", time.Hour, 0.9, "research")
	casual := digest("casual", time.Hour, 0.1, "research")
	if m.Quality(deliberate) <= m.Quality(casual) {
		t.Error("high intent should outscore low intent")
	}

	research := digest("research", time.Hour, 0.5, "research")
	social := digest("social", time.Hour, 0.5, "social")
	if m.Quality(research) <= m.Quality(social) {
		t.Error("research category should outscore social")
	}
}

func TestQuality_AccessDecaysFasterThanRecency(t *testing.T) {
	m := testManager(t, testStore(t), 500)

	// Both created at the same time; only access recency differs.
	recentAccess := digest("a", 10*24*time.Hour, 0.5, "research")
	recentAccess.LastAccessed = fixedNow.Add(-time.Hour)
	oldAccess := digest("b", 10*24*time.Hour, 0.5, "research")

	gap := m.Quality(recentAccess) - m.Quality(oldAccess)
	if gap <= 0 {
		t.Fatal("recently accessed digest should score higher")
	}

	// The same time difference applied to creation age moves the score less.
	recentCreate := digest("c", time.Hour, 0.5, "research")
	recentCreate.LastAccessed = fixedNow.Add(-10 * 24 * time.Hour)
	oldCreate := digest("d", 10*24*time.Hour, 0.5, "research")
	oldCreate.LastAccessed = fixedNow.Add(-10 * 24 * time.Hour)
	createGap := m.Quality(recentCreate) - m.Quality(oldCreate)
	if createGap >= gap {
		t.Errorf("access decay gap %v should exceed creation decay gap %v", gap, createGap)
	}
}

func TestQuality_MalformedInputs(t *testing.T) {
	m := testManager(t, testStore(t), 500)

	d := digest("nan", time.Hour, math.NaN(), "research")
	if q := m.Quality(d); math.IsNaN(q) {
		t.Error("NaN intent must not poison the quality score")
	}

	zero := &models.DocumentDigest{ID: "zero"}
	if q := m.Quality(zero); q <= 0 || math.IsNaN(q) {
		t.Errorf("zero-value digest quality = %v, want small positive from category weight", q)
	}
}

func TestPrune_RemovesExpired(t *testing.T) {
	store := testStore(t)
	m := testManager(t, store, 500)
	ctx := context.Background()

	expired := digest("doc:old", 48*time.Hour, 0.5, "research")
	expired.ExpiresAt = fixedNow.Add(-time.Hour)
	live := digest("doc:new", time.Hour, 0.5, "research")
	for _, d := range []*models.DocumentDigest{expired, live} {
		if err := store.PutDigest(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := m.Prune(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	count, _ := store.CountDigests(ctx)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestPrune_EnforcesCeiling(t *testing.T) {
	store := testStore(t)
	m := testManager(t, store, 3)
	ctx := context.Background()

	// Five digests of ascending quality (newer is better here).
	ids := []string{"doc:a", "doc:b", "doc:c", "doc:d", "doc:e"}
	for i, id := range ids {
		d := digest(id, time.Duration(50-10*i)*24*time.Hour, 0.5, "research")
		if err := store.PutDigest(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := m.Prune(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	count, _ := store.CountDigests(ctx)
	if count != 3 {
		t.Errorf("count = %d, want ceiling 3", count)
	}

	// The two oldest (lowest quality) are the ones gone.
	for _, id := range []string{"doc:a", "doc:b"} {
		if _, err := store.GetDigest(ctx, id); err == nil {
			t.Errorf("%s should have been evicted", id)
		}
	}
	for _, id := range []string{"doc:c", "doc:d", "doc:e"} {
		if _, err := store.GetDigest(ctx, id); err != nil {
			t.Errorf("%s should have survived: %v", id, err)
		}
	}
}

func TestPrune_SweepsOrphans(t *testing.T) {
	store := testStore(t)
	m := testManager(t, store, 500)
	ctx := context.Background()

	if err := store.PutPassages(ctx, []*models.Passage{{
		ID:         models.PassageID("doc:ghost", 0),
		DocumentID: "doc:ghost",
		Content:    "orphaned",
		FuzzyTime:  fixedNow,
	}}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Prune(ctx); err != nil {
		t.Fatal(err)
	}
	count, _ := store.CountPassages(ctx)
	if count != 0 {
		t.Errorf("orphan passages remain: %d", count)
	}
}

func TestPrune_SingleFlight(t *testing.T) {
	store := testStore(t)
	m := testManager(t, store, 500)
	ctx := context.Background()

	expired := digest("doc:old", 48*time.Hour, 0.5, "research")
	expired.ExpiresAt = fixedNow.Add(-time.Hour)
	if err := store.PutDigest(ctx, expired); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			removed, err := m.Prune(ctx)
			if err != nil {
				t.Error(err)
			}
			results[i] = removed
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r
	}
	// Exactly one pass observes the expired digest; overlapping calls no-op.
	if total != 1 {
		t.Errorf("total removed across concurrent calls = %d, want 1", total)
	}
}

func TestNewManager_BackfillsCategoryWeights(t *testing.T) {
	m := NewManager(nil, Policy{}, func() time.Time { return fixedNow }, nil)
	if m.policy.CategoryWeights == nil {
		t.Fatal("nil CategoryWeights should be backfilled from the default policy")
	}

	// The lookup table must bite even when the policy came in empty.
	research := digest("research", time.Hour, 0.5, "research")
	social := digest("social", time.Hour, 0.5, "social")
	if m.Quality(research) <= m.Quality(social) {
		t.Error("research category should outscore social under a zero-value policy")
	}
}

func TestNewManager_FixesInvertedDecay(t *testing.T) {
	policy := DefaultPolicy()
	policy.RecencyDecay = 0.2
	policy.AccessDecay = 0.1
	m := NewManager(nil, policy, nil, nil)
	if m.policy.AccessDecay <= m.policy.RecencyDecay {
		t.Errorf("AccessDecay %v should exceed RecencyDecay %v",
			m.policy.AccessDecay, m.policy.RecencyDecay)
	}
}
