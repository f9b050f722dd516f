// Package engine exposes the retrieval engine: ingestion, hybrid search at
// document and passage granularity, session detection, and pruning.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/chunker"
	"github.com/hyperjump/kioku/internal/docid"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/eviction"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/ranking"
	"github.com/hyperjump/kioku/internal/session"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Clock is a source of current time, injectable for deterministic testing.
type Clock func() time.Time

const (
	defaultEmbedTimeout      = 10 * time.Second
	defaultSessionWindowSize = 50
	excerptLen               = 500
	embedInputLen            = 2000
)

// Options holds the engine's dependencies.
type Options struct {
	Store     storage.Store
	Embedder  embedding.Embedder
	Chunker   *chunker.Chunker
	Ranker    *ranking.Ranker
	Clusterer *session.Clusterer
	Evictor   *eviction.Manager
	Clock     Clock
	Logger    *zap.Logger
	// EmbedTimeout bounds each embedding provider call; the provider is the
	// only external call on the ingestion and query paths.
	EmbedTimeout time.Duration
	// SessionWindowSize is the default recent-document window for DetectSessions.
	SessionWindowSize int
}

// Engine coordinates the store, embedder, chunker, ranker, clusterer, and
// eviction manager. Methods are safe for concurrent callers: the scoring and
// clustering cores are pure, the store serializes conflicting writes, and
// pruning is single-flight.
type Engine struct {
	store     storage.Store
	embedder  embedding.Embedder
	chunker   *chunker.Chunker
	ranker    *ranking.Ranker
	clusterer *session.Clusterer
	evictor   *eviction.Manager
	clock     Clock
	logger    *zap.Logger

	embedTimeout time.Duration
	windowSize   int

	// pending is the at-most-one cached session; invalidated when a member is
	// deleted.
	sessionMu sync.Mutex
	pending   *models.Session
}

// New creates an engine from opts, filling unset fields with defaults.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Chunker == nil {
		opts.Chunker = chunker.New(chunker.DefaultParams())
	}
	if opts.Ranker == nil {
		opts.Ranker = ranking.NewRanker(nil, opts.Clock, opts.Logger)
	}
	if opts.Clusterer == nil {
		opts.Clusterer = session.NewClusterer(session.DefaultConfig(), opts.Clock, opts.Logger)
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = defaultEmbedTimeout
	}
	if opts.SessionWindowSize <= 0 {
		opts.SessionWindowSize = defaultSessionWindowSize
	}
	return &Engine{
		store:        opts.Store,
		embedder:     opts.Embedder,
		chunker:      opts.Chunker,
		ranker:       opts.Ranker,
		clusterer:    opts.Clusterer,
		evictor:      opts.Evictor,
		clock:        opts.Clock,
		logger:       opts.Logger,
		embedTimeout: opts.EmbedTimeout,
		windowSize:   opts.SessionWindowSize,
	}
}

// embed calls the provider under the configured timeout and verifies the
// returned dimension. Provider failures surface as ErrEmbeddingUnavailable.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingUnavailable, err)
	}
	if dim := e.embedder.Dimensions(); dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("provider returned %d dimensions, want %d: %w",
			len(vec), dim, models.ErrDimensionMismatch)
	}
	return vec, nil
}

// Ingest stores a digest for the document and, when the text is long and
// important enough, derives overlapping passages, each independently embedded.
// A passage whose embedding fails is skipped; the rest of the batch continues.
// Returns the document ID, which is stable for a given source key.
func (e *Engine) Ingest(ctx context.Context, req *models.IngestRequest) (string, error) {
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("ingest: empty document")
	}

	vec, err := e.embed(ctx, embedInput(req))
	if err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}

	now := e.clock()
	id := docid.FromSourceKey(req.SourceKey)
	digest := &models.DocumentDigest{
		ID:           id,
		Title:        req.Title,
		Summary:      req.Summary,
		Excerpt:      utils.Truncate(req.Text, excerptLen),
		Embedding:    vec,
		Keywords:     req.Keywords,
		Category:     req.Category,
		IntentScore:  req.IntentScore,
		CreatedAt:    now,
		FuzzyTime:    models.FuzzTime(now),
		LastAccessed: now,
		Private:      req.Private,
	}
	if err := e.store.PutDigest(ctx, digest); err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}

	if e.chunker.Eligible(req.Text, req.IntentScore) {
		if err := e.storePassages(ctx, digest, req.Text); err != nil {
			return "", fmt.Errorf("ingest: %w", err)
		}
	}

	e.logger.Debug("ingested document", zap.String("id", id), zap.String("title", req.Title))
	return id, nil
}

// embedInput composes the text handed to the provider for a whole document:
// title, summary, and a bounded slice of the full text.
func embedInput(req *models.IngestRequest) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{req.Title, req.Summary, utils.Truncate(req.Text, embedInputLen)} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// storePassages chunks the text and stores one embedded passage per chunk.
// Re-ingesting a shorter document leaves stale higher-index passages behind,
// so existing passages are replaced wholesale.
func (e *Engine) storePassages(ctx context.Context, digest *models.DocumentDigest, text string) error {
	chunks := e.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil
	}
	if err := e.store.DeletePassagesByDocument(ctx, digest.ID); err != nil {
		return err
	}

	passages := make([]*models.Passage, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := e.embed(ctx, chunk)
		if err != nil {
			e.logger.Warn("passage embedding failed, skipping chunk",
				zap.String("document_id", digest.ID), zap.Int("chunk", i), zap.Error(err))
			continue
		}
		passages = append(passages, &models.Passage{
			ID:         models.PassageID(digest.ID, i),
			DocumentID: digest.ID,
			ChunkIndex: i,
			Content:    chunk,
			Embedding:  vec,
			FuzzyTime:  digest.FuzzyTime,
			Category:   digest.Category,
			CreatedAt:  digest.CreatedAt,
		})
	}
	return e.store.PutPassages(ctx, passages)
}

// Query runs document-level search: embeds the query text, ranks all
// non-expired (and, unless requested, non-private) digests, and returns the
// scored results. Returned documents are touched so access recency feeds the
// eviction quality score.
func (e *Engine) Query(ctx context.Context, opts *models.QueryOptions) (*models.QueryResponse, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	analyzed := e.ranker.AnalyzeQuery(opts.Query)
	queryVec, err := e.embed(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	digests, err := e.store.ListDigests(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	candidates := e.eligibleDigests(digests, opts.IncludePrivate)

	results, err := e.ranker.RankDocuments(analyzed, queryVec, candidates, opts.Limit, opts.MinScore)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	now := e.clock()
	for _, res := range results {
		e.touch(ctx, res.Document.ID, now)
	}

	return &models.QueryResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     opts.Query,
	}, nil
}

// QueryPassages runs passage-level retrieval for downstream answer
// composition. Passages whose parent digest is missing are logged and skipped
// rather than failing the query; the orphan sweep reconciles them later.
func (e *Engine) QueryPassages(ctx context.Context, opts *models.PassageQueryOptions) (*models.PassageQueryResponse, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	analyzed := e.ranker.AnalyzeQuery(opts.Query)
	queryVec, err := e.embed(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}

	passages, err := e.store.ListPassages(ctx)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}

	scored, err := e.ranker.RankPassages(analyzed, queryVec, passages, opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}

	now := e.clock()
	results := make([]*models.PassageResult, 0, len(scored))
	touched := make(map[string]bool)
	for _, sp := range scored {
		parent, err := e.store.GetDigest(ctx, sp.Passage.DocumentID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				e.logger.Warn("passage without parent digest",
					zap.String("passage_id", sp.Passage.ID),
					zap.Error(models.ErrInvariantViolation))
				continue
			}
			return nil, fmt.Errorf("query passages: %w", err)
		}
		if !touched[parent.ID] {
			e.touch(ctx, parent.ID, now)
			touched[parent.ID] = true
		}
		results = append(results, &models.PassageResult{
			Passage:  sp.Passage,
			Document: parent,
			Score:    sp.Score,
			Factors:  sp.Factors,
			Rank:     len(results) + 1,
		})
	}

	return &models.PassageQueryResponse{
		Results:   results,
		QueryTime: time.Since(start).Milliseconds(),
		Query:     opts.Query,
	}, nil
}

// eligibleDigests filters out expired and (optionally) private digests.
func (e *Engine) eligibleDigests(digests []*models.DocumentDigest, includePrivate bool) []*models.DocumentDigest {
	now := e.clock()
	eligible := make([]*models.DocumentDigest, 0, len(digests))
	for _, d := range digests {
		if !d.ExpiresAt.IsZero() && !d.ExpiresAt.After(now) {
			continue
		}
		if d.Private && !includePrivate {
			continue
		}
		eligible = append(eligible, d)
	}
	return eligible
}

func (e *Engine) touch(ctx context.Context, id string, now time.Time) {
	if err := e.store.Touch(ctx, id, now); err != nil {
		e.logger.Warn("touch failed", zap.String("id", id), zap.Error(err))
	}
}

// Get returns a digest by ID and touches it.
func (e *Engine) Get(ctx context.Context, id string) (*models.DocumentDigest, error) {
	digest, err := e.store.GetDigest(ctx, id)
	if err != nil {
		return nil, err
	}
	e.touch(ctx, id, e.clock())
	return digest, nil
}

// DetectSessions clusters the most recent windowSize digests (engine default
// when zero) into sessions, most recent activity first. The newest session is
// cached as the pending session until invalidated by a deletion.
func (e *Engine) DetectSessions(ctx context.Context, windowSize int) ([]*models.Session, error) {
	if windowSize <= 0 {
		windowSize = e.windowSize
	}
	window, err := e.store.ListRecentDigests(ctx, windowSize)
	if err != nil {
		return nil, fmt.Errorf("detect sessions: %w", err)
	}

	sessions := e.clusterer.Detect(window)

	e.sessionMu.Lock()
	if len(sessions) > 0 {
		e.pending = sessions[0]
	} else {
		e.pending = nil
	}
	e.sessionMu.Unlock()

	return sessions, nil
}

// PendingSession returns the cached most-recent session, or nil.
func (e *Engine) PendingSession() *models.Session {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	return e.pending
}

// Delete removes a document, cascading to its passages, and invalidates the
// cached session if it referenced the document.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.store.DeleteDigest(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	e.invalidateSessionMember(id)
	e.logger.Debug("deleted document", zap.String("id", id))
	return nil
}

// invalidateSessionMember drops a deleted member from the cached session, or
// discards the session entirely when membership falls below the minimum size.
func (e *Engine) invalidateSessionMember(id string) {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()

	if e.pending == nil || !e.pending.Contains(id) {
		return
	}
	remaining := make([]string, 0, len(e.pending.MemberIDs)-1)
	for _, m := range e.pending.MemberIDs {
		if m != id {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) < e.clusterer.Config().MinSize {
		e.pending = nil
		return
	}
	// Membership changed, so the cached object no longer describes the input
	// window; replace it rather than mutating the published one.
	invalidated := *e.pending
	invalidated.MemberIDs = remaining
	e.pending = &invalidated
}

// Prune enforces retention and the entry ceiling. Returns the number of
// digests removed. Eviction may delete session members, so the cached session
// is revalidated afterwards.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	removed, err := e.evictor.Prune(ctx)
	if removed > 0 {
		e.revalidatePending(ctx)
	}
	return removed, err
}

// revalidatePending drops cached session members that no longer exist.
func (e *Engine) revalidatePending(ctx context.Context) {
	e.sessionMu.Lock()
	pending := e.pending
	e.sessionMu.Unlock()
	if pending == nil {
		return
	}
	for _, id := range pending.MemberIDs {
		if _, err := e.store.GetDigest(ctx, id); errors.Is(err, models.ErrNotFound) {
			e.invalidateSessionMember(id)
		}
	}
}

// OrphanSweep deletes passages whose parent digest no longer exists.
func (e *Engine) OrphanSweep(ctx context.Context) (int, error) {
	return e.evictor.OrphanSweep(ctx)
}

// Stats reports store entry counts.
func (e *Engine) Stats(ctx context.Context) (documents, passages int64, err error) {
	if documents, err = e.store.CountDigests(ctx); err != nil {
		return 0, 0, err
	}
	if passages, err = e.store.CountPassages(ctx); err != nil {
		return 0, 0, err
	}
	return documents, passages, nil
}
