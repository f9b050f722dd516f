package models

// ScoreFactors breaks a final score down into its weighted components, so
// callers can explain why a result ranked where it did.
type ScoreFactors struct {
	Semantic     float64 `json:"semantic"`
	Freshness    float64 `json:"freshness"`
	Intent       float64 `json:"intent"`
	LexicalBoost float64 `json:"lexical_boost"`
	EntityBoost  float64 `json:"entity_boost"`
}

// DocumentResult is a single document-level search hit.
type DocumentResult struct {
	Document *DocumentDigest `json:"document"`
	Score    float64         `json:"score"`
	Factors  ScoreFactors    `json:"factors"`
	Rank     int             `json:"rank"`
}

// PassageResult is a single passage-level hit with its parent digest resolved.
type PassageResult struct {
	Passage  *Passage        `json:"passage"`
	Document *DocumentDigest `json:"document"`
	Score    float64         `json:"score"`
	Factors  ScoreFactors    `json:"factors"`
	Rank     int             `json:"rank"`
}

// QueryResponse is the response for a document-level search.
type QueryResponse struct {
	Results   []*DocumentResult `json:"results"`
	Total     int               `json:"total"`
	QueryTime int64             `json:"query_time_ms"`
	Query     string            `json:"query"`
}

// PassageQueryResponse is the response for passage-level retrieval.
type PassageQueryResponse struct {
	Results   []*PassageResult `json:"results"`
	QueryTime int64            `json:"query_time_ms"`
	Query     string           `json:"query"`
}
