package domain

import "context"

// VisionProvider wraps the multimodal analysis endpoint (spec §4.2).
// A nil/unconfigured provider is treated as unavailable by the analyzer.
type VisionProvider interface {
	Available() bool
	Analyze(ctx context.Context, imageURL string, nft NFTInput) (*VisionEvidence, error)
}

// EmbeddingProvider turns text into a fixed-width vector (spec §4.2).
type EmbeddingProvider interface {
	Available() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TextProvider is a single-shot completion endpoint (spec §4.2), used
// by the metadata and decision stages.
type TextProvider interface {
	Available() bool
	Complete(ctx context.Context, prompt string) (string, error)
}

// SimilarityIndex maps NFT ids to vectors and answers k-NN queries
// (spec §4.3).
type SimilarityIndex interface {
	Upsert(ctx context.Context, nftID string, vector []float32, meta SimilarityMeta) error
	Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]SimilarityHit, error)
	Get(ctx context.Context, nftID string) (*SimilarityEntry, error)
}

// SimilarityMeta is the small metadata blob stored alongside a vector.
type SimilarityMeta struct {
	Title    string
	Creator  string
	ImageURL string
}

// SimilarityEntry is one stored vector plus its metadata.
type SimilarityEntry struct {
	NFTID     string
	Vector    []float32
	Meta      SimilarityMeta
	InsertedAt int64 // unix nanos, used to break similarity ties (newer first)
}

// SimilarityHit is one query result.
type SimilarityHit struct {
	NFTID      string
	Similarity float64
	Meta       SimilarityMeta
}
