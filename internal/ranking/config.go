// Package ranking scores and orders candidate digests and passages against a query.
package ranking

// Config holds the hybrid ranking tunables.
type Config struct {
	// SemanticWeightConceptual is the semantic weight when the query reads as
	// conceptual rather than literal; SemanticWeightLiteral applies otherwise.
	SemanticWeightConceptual float64 `yaml:"semantic_weight_conceptual"`
	SemanticWeightLiteral    float64 `yaml:"semantic_weight_literal"`
	// RecencyWeightCued is the recency weight when the query carries a recency
	// cue ("today", "latest", a year); RecencyWeightDefault applies otherwise.
	RecencyWeightCued    float64 `yaml:"recency_weight_cued"`
	RecencyWeightDefault float64 `yaml:"recency_weight_default"`
	// IntentWeight is fixed regardless of query phrasing.
	IntentWeight float64 `yaml:"intent_weight"`
	// LexicalBoostCap caps the title token-overlap boost.
	LexicalBoostCap float64 `yaml:"lexical_boost_cap"`
	// EntityBoostCap caps the query-entity overlap boost.
	EntityBoostCap float64 `yaml:"entity_boost_cap"`
	// FreshnessHalfLifeDays is the half-life of the freshness decay.
	FreshnessHalfLifeDays float64 `yaml:"freshness_half_life_days"`
	// MaxPerDocument caps passages from the same source document in a result set.
	MaxPerDocument int `yaml:"max_per_document"`
	// NearDuplicateThreshold discards a passage whose similarity to an already
	// accepted passage exceeds it.
	NearDuplicateThreshold float64 `yaml:"near_duplicate_threshold"`
	// DefaultTopK is the passage result budget when the caller does not set one.
	DefaultTopK int `yaml:"default_top_k"`
	// BatchSize bounds how many candidates are scored per batch.
	BatchSize int `yaml:"batch_size"`
	// MaxEntities caps how many entities are extracted from a query.
	MaxEntities int `yaml:"max_entities"`
	// ConceptualTokenThreshold is the token count at which a query is treated
	// as conceptual even without connector words.
	ConceptualTokenThreshold int `yaml:"conceptual_token_threshold"`
}

// DefaultConfig returns the default ranking configuration.
func DefaultConfig() *Config {
	return &Config{
		SemanticWeightConceptual: 0.5,
		SemanticWeightLiteral:    0.3,
		RecencyWeightCued:        0.7,
		RecencyWeightDefault:     0.3,
		IntentWeight:             0.15,
		LexicalBoostCap:          0.15,
		EntityBoostCap:           0.2,
		FreshnessHalfLifeDays:    7,
		MaxPerDocument:           3,
		NearDuplicateThreshold:   0.95,
		DefaultTopK:              12,
		BatchSize:                256,
		MaxEntities:              8,
		ConceptualTokenThreshold: 6,
	}
}

// ApplyDefaults fills zero values from DefaultConfig.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.SemanticWeightConceptual == 0 {
		c.SemanticWeightConceptual = def.SemanticWeightConceptual
	}
	if c.SemanticWeightLiteral == 0 {
		c.SemanticWeightLiteral = def.SemanticWeightLiteral
	}
	if c.RecencyWeightCued == 0 {
		c.RecencyWeightCued = def.RecencyWeightCued
	}
	if c.RecencyWeightDefault == 0 {
		c.RecencyWeightDefault = def.RecencyWeightDefault
	}
	if c.IntentWeight == 0 {
		c.IntentWeight = def.IntentWeight
	}
	if c.LexicalBoostCap == 0 {
		c.LexicalBoostCap = def.LexicalBoostCap
	}
	if c.EntityBoostCap == 0 {
		c.EntityBoostCap = def.EntityBoostCap
	}
	if c.FreshnessHalfLifeDays == 0 {
		c.FreshnessHalfLifeDays = def.FreshnessHalfLifeDays
	}
	if c.MaxPerDocument == 0 {
		c.MaxPerDocument = def.MaxPerDocument
	}
	if c.NearDuplicateThreshold == 0 {
		c.NearDuplicateThreshold = def.NearDuplicateThreshold
	}
	if c.DefaultTopK == 0 {
		c.DefaultTopK = def.DefaultTopK
	}
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxEntities == 0 {
		c.MaxEntities = def.MaxEntities
	}
	if c.ConceptualTokenThreshold == 0 {
		c.ConceptualTokenThreshold = def.ConceptualTokenThreshold
	}
}
