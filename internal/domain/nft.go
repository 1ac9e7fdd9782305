package domain

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// NFTStatus is the top-level lifecycle state of an NFT (spec §4.4).
type NFTStatus string

const (
	NFTStatusPending NFTStatus = "pending"
	NFTStatusMinted  NFTStatus = "minted"
	NFTStatusDeleted NFTStatus = "deleted"
)

// ListingStatus is the lifecycle state of a Listing (spec §4.4).
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusInactive ListingStatus = "inactive"
	ListingStatusSold     ListingStatus = "sold"
	ListingStatusDeleted  ListingStatus = "deleted"
)

// HistoryAction is the action recorded on a ListingHistory row.
type HistoryAction string

const (
	HistoryActionCreated HistoryAction = "created"
	HistoryActionUpdated HistoryAction = "updated"
	HistoryActionDeleted HistoryAction = "deleted"
	HistoryActionExpired HistoryAction = "expired"
	HistoryActionSold    HistoryAction = "sold"
)

// FlagType is the named fraud-flag enumeration (spec §3, §9 — the
// source used both an int and a string; this is the named form, with
// wire-compatible integer values).
type FlagType int

const (
	FlagNone               FlagType = 0
	FlagPlagiarism         FlagType = 1
	FlagSuspiciousActivity FlagType = 2
	FlagFakeMetadata       FlagType = 3
	FlagAIGenerated        FlagType = 4
)

func (f FlagType) String() string {
	switch f {
	case FlagPlagiarism:
		return "plagiarism"
	case FlagSuspiciousActivity:
		return "suspicious_activity"
	case FlagFakeMetadata:
		return "fake_metadata"
	case FlagAIGenerated:
		return "ai_generated"
	default:
		return "none"
	}
}

// EmbeddingDimension is the default fixed embedding width (spec §6,
// overridable via the embedding_dimension config).
const EmbeddingDimension = 768

// EncodeEmbeddingVector serializes an embedding as a length-prefixed
// bytea: a 4-byte little-endian element count followed by that many
// float32s, also little-endian. nil/empty vectors encode to nil, so
// an NFT with no embedding persists a SQL NULL rather than an empty blob.
func EncodeEmbeddingVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbeddingVector reverses EncodeEmbeddingVector. A nil/empty
// blob decodes to a nil vector.
func DecodeEmbeddingVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf) < 4 {
		return nil, fmt.Errorf("embedding_vector: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	want := 4 + 4*int(n)
	if len(buf) != want {
		return nil, fmt.Errorf("embedding_vector: expected %d bytes for %d elements, got %d", want, n, len(buf))
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4+4*i : 8+4*i]))
	}
	return v, nil
}

// User is keyed by wallet address; created on first reference.
type User struct {
	ID         string
	Wallet     string
	DisplayName string
	Email      string
	Reputation float64
	CreatedAt  time.Time
}

// NFT is the central entity of spec §3.
type NFT struct {
	ID          string
	UserID      string
	Wallet      string
	Title       string
	Description string
	Category    string
	Price       float64
	ImageURL    string
	SuiObjectID *string
	Status      NFTStatus

	IsFraud         bool
	ConfidenceScore float64
	FlagType        FlagType
	Reason          string
	EvidenceURLs    []string
	AnalysisDetails *AnalysisDetails

	EmbeddingVector []float32

	IsListed      bool
	ListingPrice  *float64
	ListingStatus *ListingStatus
	LastListedAt  *time.Time

	CreatedAt time.Time
}

// Listing is a sale offer bound to one NFT.
type Listing struct {
	ID        string
	NFTID     string
	SellerID  string
	Price     float64
	ExpiresAt *time.Time
	Status    ListingStatus
	TxID      *string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListingHistory is an append-only ledger row (spec §3).
type ListingHistory struct {
	ID        string
	ListingID string
	NFTID     string
	Action    HistoryAction
	OldPrice  *float64
	NewPrice  *float64
	SellerID  string
	TxID      *string
	CreatedAt time.Time
}

// ListingAnalytics is the derived-stats response for
// GET /api/nft/{id}/listing-analytics (spec §4.4 analytics).
type ListingAnalytics struct {
	NFTID               string
	TotalListings       int
	TotalSold           int
	AveragePrice        float64
	MinPrice            float64
	MaxPrice            float64
	SuccessRate         float64 // sold / total listings
	AverageActiveHours  float64
}

// BulkListResult partitions bulk_list outcomes (spec §4.4, §8 boundary behavior).
type BulkListResult struct {
	Succeeded []string
	Failed    []BulkListFailure
}

type BulkListFailure struct {
	NFTID  string
	Reason string
}
