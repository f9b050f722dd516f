package ranking

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

// Ranker orders candidate digests or passages by a weighted combination of
// semantic similarity, freshness, intent, and lexical/entity overlap. Weights
// adapt to the query: conceptual phrasing raises the semantic weight, recency
// cues raise the recency weight.
type Ranker struct {
	config   *Config
	analyzer *QueryAnalyzer
	now      func() time.Time
	logger   *zap.Logger
}

// NewRanker creates a Ranker. now is injectable for deterministic tests; nil
// means time.Now.
func NewRanker(config *Config, now func() time.Time, logger *zap.Logger) *Ranker {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{
		config:   config,
		analyzer: NewQueryAnalyzer(config.MaxEntities, config.ConceptualTokenThreshold),
		now:      now,
		logger:   logger,
	}
}

// Config returns the ranking configuration.
func (r *Ranker) Config() *Config {
	return r.config
}

// AnalyzeQuery parses and analyzes a query string.
func (r *Ranker) AnalyzeQuery(query string) *AnalyzedQuery {
	return r.analyzer.Analyze(query)
}

// weights returns the dynamic (semantic, recency, intent) weights for a query.
func (r *Ranker) weights(query *AnalyzedQuery) (wSem, wRec, wInt float64) {
	wSem = r.config.SemanticWeightLiteral
	if query.Conceptual {
		wSem = r.config.SemanticWeightConceptual
	}
	wRec = r.config.RecencyWeightDefault
	if query.RecencyCue {
		wRec = r.config.RecencyWeightCued
	}
	return wSem, wRec, r.config.IntentWeight
}

// Freshness returns exp(-ln2 * ageDays / halfLifeDays): 1.0 for brand-new
// content, 0.5 at one half-life, decaying toward zero.
func (r *Ranker) Freshness(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	ageDays := r.now().Sub(t).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-math.Ln2 * ageDays / r.config.FreshnessHalfLifeDays)
}

// candidate is the scoring view shared by digests and passages.
type candidate struct {
	embedding []float32
	timestamp time.Time
	intent    float64
	// titleTokens feed the lexical boost; entities feed the entity boost.
	titleTokens []string
	entities    []string
}

// score computes the final score and its component factors for one candidate.
// A query/candidate dimension mismatch is returned as a hard error.
func (r *Ranker) score(query *AnalyzedQuery, queryVec []float32, c candidate) (float64, models.ScoreFactors, error) {
	cos, err := vector.Cosine(queryVec, c.embedding)
	if err != nil {
		return 0, models.ScoreFactors{}, err
	}

	wSem, wRec, wInt := r.weights(query)

	factors := models.ScoreFactors{
		Semantic:  cos,
		Freshness: r.Freshness(c.timestamp),
		Intent:    clamp01(c.intent),
	}
	factors.LexicalBoost = OverlapRatio(query.Entities, c.titleTokens) * r.config.LexicalBoostCap
	factors.EntityBoost = OverlapRatio(query.Entities, c.entities) * r.config.EntityBoostCap

	final := wSem*factors.Semantic + wRec*factors.Freshness + wInt*factors.Intent +
		factors.LexicalBoost + factors.EntityBoost
	return final, factors, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RankDocuments scores the candidate digests against the query and returns
// them sorted descending by score, filtered by minScore and truncated to
// limit. Candidates with a missing or malformed embedding are skipped and
// logged; a well-formed candidate whose dimension disagrees with the query
// vector is a hard error.
func (r *Ranker) RankDocuments(query *AnalyzedQuery, queryVec []float32, docs []*models.DocumentDigest, limit int, minScore float64) ([]*models.DocumentResult, error) {
	results := make([]*models.DocumentResult, 0, len(docs))

	// Score in fixed-size batches to bound peak intermediate state; the merged
	// sort below makes batching invisible in the final ranking.
	for start := 0; start < len(docs); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		for _, doc := range docs[start:end] {
			if !vector.IsWellFormed(doc.Embedding, 0) {
				r.logger.Warn("skipping digest with malformed embedding",
					zap.String("id", doc.ID), zap.Error(models.ErrInvariantViolation))
				continue
			}
			score, factors, err := r.score(query, queryVec, candidate{
				embedding:   doc.Embedding,
				timestamp:   digestTime(doc),
				intent:      doc.IntentScore,
				titleTokens: Tokenize(doc.Title),
				entities:    doc.Keywords,
			})
			if err != nil {
				return nil, fmt.Errorf("ranking digest %s: %w", doc.ID, err)
			}
			if score < minScore {
				continue
			}
			results = append(results, &models.DocumentResult{
				Document: doc,
				Score:    score,
				Factors:  factors,
			})
		}
	}

	sortDocumentResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i, res := range results {
		res.Rank = i + 1
	}
	return results, nil
}

func digestTime(d *models.DocumentDigest) time.Time {
	if !d.FuzzyTime.IsZero() {
		return d.FuzzyTime
	}
	return d.CreatedAt
}

func sortDocumentResults(results []*models.DocumentResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}
