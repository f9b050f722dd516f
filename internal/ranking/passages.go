package ranking

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

// ScoredPassage is a passage with its computed score and factors. The parent
// digest is resolved by the caller.
type ScoredPassage struct {
	Passage *models.Passage
	Score   float64
	Factors models.ScoreFactors
}

// RankPassages scores the candidate passages and returns up to topK of them,
// sorted descending by score. Beyond plain scoring it (a) keeps at most
// MaxPerDocument passages per source document and (b) drops near-duplicates:
// any candidate whose similarity to an already accepted passage exceeds
// NearDuplicateThreshold.
func (r *Ranker) RankPassages(query *AnalyzedQuery, queryVec []float32, passages []*models.Passage, topK int) ([]*ScoredPassage, error) {
	if topK <= 0 {
		topK = r.config.DefaultTopK
	}

	scored := make([]*ScoredPassage, 0, len(passages))
	for start := 0; start < len(passages); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(passages) {
			end = len(passages)
		}
		for _, p := range passages[start:end] {
			if !vector.IsWellFormed(p.Embedding, 0) {
				r.logger.Warn("skipping passage with malformed embedding",
					zap.String("id", p.ID), zap.Error(models.ErrInvariantViolation))
				continue
			}
			score, factors, err := r.score(query, queryVec, candidate{
				embedding: p.Embedding,
				timestamp: p.FuzzyTime,
				// Passages carry no title or entity set of their own; the
				// lexical boost works off the chunk text instead.
				titleTokens: Tokenize(p.Content),
			})
			if err != nil {
				return nil, fmt.Errorf("ranking passage %s: %w", p.ID, err)
			}
			scored = append(scored, &ScoredPassage{Passage: p, Score: score, Factors: factors})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Passage.ID < scored[j].Passage.ID
	})

	accepted := make([]*ScoredPassage, 0, topK)
	perDocument := make(map[string]int)
	for _, sp := range scored {
		if len(accepted) >= topK {
			break
		}
		if perDocument[sp.Passage.DocumentID] >= r.config.MaxPerDocument {
			continue
		}
		if r.isNearDuplicate(sp.Passage, accepted) {
			continue
		}
		accepted = append(accepted, sp)
		perDocument[sp.Passage.DocumentID]++
	}
	return accepted, nil
}

// isNearDuplicate compares a candidate against the already accepted passages.
func (r *Ranker) isNearDuplicate(p *models.Passage, accepted []*ScoredPassage) bool {
	for _, a := range accepted {
		sim, err := vector.Cosine(p.Embedding, a.Passage.Embedding)
		if err != nil {
			// Accepted passages are already validated; a mismatch here means
			// inconsistent corpus dimensions. Treat as duplicate-free but log.
			r.logger.Warn("near-duplicate check failed",
				zap.String("id", p.ID), zap.Error(err))
			continue
		}
		if sim > r.config.NearDuplicateThreshold {
			return true
		}
	}
	return false
}
