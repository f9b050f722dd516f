package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kioku/internal/eviction"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
)

// fakeEmbedder returns a registered vector for texts containing a keyword and
// a default vector otherwise. Keyword sets in tests are disjoint.
type fakeEmbedder struct {
	vecs map[string][]float32
	fail bool
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vecs: make(map[string][]float32)}
}

func (f *fakeEmbedder) register(keyword string, angle float64) {
	f.vecs[keyword] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0, 0}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("provider down")
	}
	for k, v := range f.vecs {
		if strings.Contains(text, k) {
			return v, nil
		}
	}
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }
func (f *fakeEmbedder) Close() error    { return nil }

type testEnv struct {
	engine   *Engine
	store    storage.Store
	embedder *fakeEmbedder
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:    store,
		embedder: newFakeEmbedder(),
		now:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	env.engine = New(Options{
		Store:    store,
		Embedder: env.embedder,
		Evictor:  eviction.NewManager(store, eviction.DefaultPolicy(), clock, nil),
		Clock:    clock,
	})
	return env
}

// longText builds multi-sentence text of at least n characters.
func longText(n int) string {
	var sb strings.Builder
	for i := 0; sb.Len() < n; i++ {
		fmt.Fprintf(&sb, "This is sentence number %d about distributed consensus. ", i)
	}
	return strings.TrimSpace(sb.String())
}

func TestIngest_ShortDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey:   "https://example.com/article",
		Title:       "Short Article",
		Text:        "A short body that stays below the chunking threshold.",
		IntentScore: 0.8,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := env.engine.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Short Article" {
		t.Errorf("title = %q", got.Title)
	}
	if len(got.Embedding) != 4 {
		t.Errorf("embedding dimension = %d, want 4", len(got.Embedding))
	}

	// Below the length threshold, no passages are derived.
	_, passages, err := env.engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if passages != 0 {
		t.Errorf("passages = %d, want 0 for short document", passages)
	}
}

func TestIngest_StableIDUpserts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := &models.IngestRequest{
		SourceKey: "https://example.com/page",
		Title:     "First Version",
		Text:      "Body.",
	}
	first, err := env.engine.Ingest(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	req.Title = "Second Version"
	second, err := env.engine.Ingest(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("same source key produced different IDs: %s vs %s", first, second)
	}

	docs, _, err := env.engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if docs != 1 {
		t.Errorf("documents = %d, want 1 after upsert", docs)
	}
	got, _ := env.engine.Get(ctx, first)
	if got.Title != "Second Version" {
		t.Errorf("title = %q, want updated", got.Title)
	}
}

func TestIngest_LongDocumentGetsPassages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey:   "https://example.com/long",
		Title:       "Long Read",
		Text:        longText(6000),
		IntentScore: 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, passages, err := env.engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if passages < 2 {
		t.Fatalf("passages = %d, want several for a 6000-char document", passages)
	}

	stored, err := env.store.ListPassagesByDocument(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range stored {
		if p.ChunkIndex != i {
			t.Errorf("passage %d has chunk index %d", i, p.ChunkIndex)
		}
		if len(p.Embedding) != 4 {
			t.Errorf("passage %d embedding dimension = %d", i, len(p.Embedding))
		}
	}
}

func TestIngest_LowIntentSkipsChunking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey:   "https://example.com/casual",
		Title:       "Casual Visit",
		Text:        longText(6000),
		IntentScore: 0.2,
	}); err != nil {
		t.Fatal(err)
	}

	_, passages, _ := env.engine.Stats(ctx)
	if passages != 0 {
		t.Errorf("passages = %d, want 0 for low-intent document", passages)
	}
}

func TestIngest_Empty(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Ingest(context.Background(), &models.IngestRequest{}); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestIngest_EmbeddingUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.fail = true

	_, err := env.engine.Ingest(context.Background(), &models.IngestRequest{
		Title: "Doc",
		Text:  "Body.",
	})
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestQuery_RanksBySimilarity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.embedder.register("consensus", 0.1)
	env.embedder.register("gardening", 1.4)
	env.embedder.register("qraft", 0.0)

	for _, doc := range []struct{ key, title string }{
		{"https://example.com/raft", "Notes on consensus"},
		{"https://example.com/plants", "Notes on gardening"},
	} {
		if _, err := env.engine.Ingest(ctx, &models.IngestRequest{
			SourceKey: doc.key, Title: doc.title, Text: "Body.", IntentScore: 0.5,
		}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := env.engine.Query(ctx, &models.QueryOptions{Query: "qraft protocol"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}
	if resp.Results[0].Document.Title != "Notes on consensus" {
		t.Errorf("top result = %q, want the consensus doc", resp.Results[0].Document.Title)
	}
	if resp.Results[0].Score <= resp.Results[1].Score {
		t.Error("results not ordered by score")
	}
}

func TestQuery_PrivateExcludedByDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey: "https://example.com/secret",
		Title:     "Private Doc",
		Text:      "Body.",
		Private:   true,
	}); err != nil {
		t.Fatal(err)
	}

	resp, err := env.engine.Query(ctx, &models.QueryOptions{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Errorf("private doc leaked into results: total = %d", resp.Total)
	}

	resp, err = env.engine.Query(ctx, &models.QueryOptions{Query: "anything", IncludePrivate: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("include_private should surface the doc: total = %d", resp.Total)
	}
}

func TestQuery_TouchesResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey: "https://example.com/doc", Title: "Doc", Text: "Body.",
	})
	if err != nil {
		t.Fatal(err)
	}

	env.now = env.now.Add(48 * time.Hour)
	if _, err := env.engine.Query(ctx, &models.QueryOptions{Query: "anything"}); err != nil {
		t.Fatal(err)
	}

	got, err := env.store.GetDigest(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastAccessed.Sub(got.CreatedAt) < 47*time.Hour {
		t.Errorf("query did not touch the result: last accessed %v", got.LastAccessed)
	}
}

func TestQueryPassages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey:   "https://example.com/long",
		Title:       "Long Read",
		Text:        longText(6000),
		IntentScore: 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := env.engine.QueryPassages(ctx, &models.PassageQueryOptions{Query: "consensus details", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected passage results")
	}
	if len(resp.Results) > 3 {
		t.Errorf("got %d results, want at most 3", len(resp.Results))
	}
	for i, res := range resp.Results {
		if res.Document == nil || res.Document.ID != id {
			t.Errorf("result %d missing parent document", i)
		}
		if res.Passage.Content == "" {
			t.Errorf("result %d has empty content", i)
		}
		if res.Rank != i+1 {
			t.Errorf("result %d rank = %d", i, res.Rank)
		}
	}
}

func TestDetectSessions_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.embedder.register("alpha", 0.00)
	env.embedder.register("beta", 0.10)
	env.embedder.register("delta", 0.05)
	env.embedder.register("offtopic", 2.8)

	var ids []string
	for _, doc := range []struct{ key, title string }{
		{"https://example.com/1", "Reading about alpha"},
		{"https://example.com/2", "Reading about beta"},
		{"https://example.com/3", "Reading about offtopic"},
		{"https://example.com/4", "Reading about delta"},
	} {
		id, err := env.engine.Ingest(ctx, &models.IngestRequest{
			SourceKey: doc.key, Title: doc.title, Text: "Body.", Category: "research",
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
		env.now = env.now.Add(5 * time.Minute)
	}

	sessions, err := env.engine.DetectSessions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if len(s.MemberIDs) != 3 {
		t.Fatalf("members = %v, want 3 related docs", s.MemberIDs)
	}
	if s.Contains(ids[2]) {
		t.Error("semantically unrelated doc should be excluded")
	}

	if env.engine.PendingSession() == nil {
		t.Fatal("newest session should be cached as pending")
	}

	// Re-detection over the same data yields the same session ID.
	again, err := env.engine.DetectSessions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if again[0].ID != s.ID {
		t.Errorf("session ID changed across detections: %s vs %s", again[0].ID, s.ID)
	}
}

func TestDelete_InvalidatesPendingSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.embedder.register("alpha", 0.00)
	env.embedder.register("beta", 0.10)

	var ids []string
	for _, key := range []string{"https://example.com/alpha", "https://example.com/beta"} {
		id, err := env.engine.Ingest(ctx, &models.IngestRequest{
			SourceKey: key, Title: "About " + filepath.Base(key), Text: "Body.",
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
		env.now = env.now.Add(5 * time.Minute)
	}

	if _, err := env.engine.DetectSessions(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if env.engine.PendingSession() == nil {
		t.Fatal("expected a pending session")
	}

	// Dropping one member pushes the session below minimum size.
	if err := env.engine.Delete(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	if env.engine.PendingSession() != nil {
		t.Error("pending session should be discarded below minimum size")
	}
}

func TestDelete_CascadesToPassages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey:   "https://example.com/long",
		Title:       "Long Read",
		Text:        longText(6000),
		IntentScore: 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, passages, _ := env.engine.Stats(ctx)
	if passages == 0 {
		t.Fatal("setup: expected passages")
	}

	if err := env.engine.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	docs, passages, _ := env.engine.Stats(ctx)
	if docs != 0 || passages != 0 {
		t.Errorf("after delete: docs = %d, passages = %d, want 0 and 0", docs, passages)
	}
}

func TestPrune_RemovesExpiredThroughEngine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey: "https://example.com/doc", Title: "Doc", Text: "Body.",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Advance past the default retention.
	env.now = env.now.Add(31 * 24 * time.Hour)
	removed, err := env.engine.Prune(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := env.engine.Get(ctx, id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after prune", err)
	}
}
