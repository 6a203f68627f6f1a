package index

// Policy holds the joint (document-count, token-budget) constraints the
// batch indexer enforces. The zero value is not usable; construct with
// DefaultPolicy and override fields as needed.
type Policy struct {
	MaxDocsPerRequest       int
	MaxTokensPerRequest     int
	TokenSafetyLimit        int
	DocumentByteLimit       int
	EmbeddingTokenLimit     int
	ConfiguredBatchSize     int
}

// DefaultPolicy returns the indexing policy constants from the design.
func DefaultPolicy() Policy {
	return Policy{
		MaxDocsPerRequest:   2048,
		MaxTokensPerRequest: 300000,
		TokenSafetyLimit:    250000,
		DocumentByteLimit:   16384,
		EmbeddingTokenLimit: 8191,
		ConfiguredBatchSize: 2048,
	}
}

// EffectiveBatchSize is min(ConfiguredBatchSize, MaxDocsPerRequest).
func (p Policy) EffectiveBatchSize() int {
	if p.ConfiguredBatchSize <= 0 || p.ConfiguredBatchSize > p.MaxDocsPerRequest {
		return p.MaxDocsPerRequest
	}
	return p.ConfiguredBatchSize
}
