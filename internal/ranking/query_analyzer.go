package ranking

import (
	"regexp"
	"strings"
	"unicode"
)

// AnalyzedQuery holds the parsed form of a query's raw text.
type AnalyzedQuery struct {
	// Original is the original query string.
	Original string
	// Entities are the normalized non-stop-word tokens, deduplicated and capped.
	Entities []string
	// RecencyCue indicates the query asks for recent material.
	RecencyCue bool
	// Conceptual indicates the query reads as conceptual rather than literal.
	Conceptual bool
	// TokenCount is the number of whitespace tokens in the query.
	TokenCount int
}

// recencyCues are words suggesting the caller wants fresh results.
var recencyCues = map[string]bool{
	"today":     true,
	"yesterday": true,
	"latest":    true,
	"recent":    true,
	"recently":  true,
	"now":       true,
	"current":   true,
	"new":       true,
	"newest":    true,
}

// connectorWords suggest conceptual rather than literal intent.
var connectorWords = map[string]bool{
	"how":        true,
	"why":        true,
	"what":       true,
	"about":      true,
	"explain":    true,
	"related":    true,
	"similar":    true,
	"difference": true,
	"between":    true,
	"compare":    true,
	"versus":     true,
	"like":       true,
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "had": true,
	"has": true, "have": true, "i": true, "in": true, "is": true, "it": true,
	"my": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "will": true,
	"with": true, "you": true,
}

var yearPattern = regexp.MustCompile(`^(19|20)\d{2}$`)

// QueryAnalyzer inspects raw query text for recency cues, conceptual phrasing,
// and entities.
type QueryAnalyzer struct {
	maxEntities   int
	conceptualLen int
}

// NewQueryAnalyzer creates an analyzer with the given caps.
func NewQueryAnalyzer(maxEntities, conceptualTokenThreshold int) *QueryAnalyzer {
	if maxEntities <= 0 {
		maxEntities = DefaultConfig().MaxEntities
	}
	if conceptualTokenThreshold <= 0 {
		conceptualTokenThreshold = DefaultConfig().ConceptualTokenThreshold
	}
	return &QueryAnalyzer{maxEntities: maxEntities, conceptualLen: conceptualTokenThreshold}
}

// Analyze parses a query string.
func (qa *QueryAnalyzer) Analyze(query string) *AnalyzedQuery {
	result := &AnalyzedQuery{Original: query}

	words := strings.Fields(query)
	result.TokenCount = len(words)

	seen := make(map[string]bool)
	for _, word := range words {
		token := normalizeToken(word)
		if token == "" {
			continue
		}
		if recencyCues[token] || yearPattern.MatchString(token) {
			result.RecencyCue = true
		}
		if connectorWords[token] {
			result.Conceptual = true
		}
		if stopWords[token] || len(token) < 2 {
			continue
		}
		if !seen[token] && len(result.Entities) < qa.maxEntities {
			result.Entities = append(result.Entities, token)
			seen[token] = true
		}
	}

	if result.TokenCount >= qa.conceptualLen {
		result.Conceptual = true
	}

	return result
}

// normalizeToken lowercases a token and strips punctuation from its edges
// (internal hyphens and underscores are kept).
func normalizeToken(token string) string {
	token = strings.ToLower(token)
	return strings.TrimFunc(token, func(r rune) bool {
		return unicode.IsPunct(r) && r != '-' && r != '_'
	})
}

// Tokenize returns the normalized non-empty tokens of text.
func Tokenize(text string) []string {
	words := strings.Fields(text)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if t := normalizeToken(w); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// OverlapRatio returns the fraction of query tokens found in the candidate
// token set. Returns 0 when either side is empty.
func OverlapRatio(queryTokens, candidateTokens []string) float64 {
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return 0
	}
	set := make(map[string]bool, len(candidateTokens))
	for _, t := range candidateTokens {
		set[strings.ToLower(t)] = true
	}
	matched := 0
	for _, t := range queryTokens {
		if set[strings.ToLower(t)] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}
