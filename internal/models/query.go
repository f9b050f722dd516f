package models

import "fmt"

// QueryOptions controls document-level search.
type QueryOptions struct {
	Query          string  `json:"query"`
	Limit          int     `json:"limit,omitempty"`
	MinScore       float64 `json:"min_score,omitempty"`
	IncludePrivate bool    `json:"include_private,omitempty"`
}

// Validate ensures the query has valid fields and sets defaults.
func (q *QueryOptions) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// PassageQueryOptions controls passage-level retrieval.
type PassageQueryOptions struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate ensures the passage query has valid fields and sets defaults.
func (q *PassageQueryOptions) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = 12
	}
	if q.TopK > 50 {
		q.TopK = 50
	}
	return nil
}
