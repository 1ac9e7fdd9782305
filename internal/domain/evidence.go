package domain

import "time"

// NFTInput is the pipeline's input (spec §4.1).
type NFTInput struct {
	Title       string
	Description string
	Category    string
	Price       float64
	ImageURL    string
}

// RiskLevel is the vision stage's qualitative risk bucket.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
	RiskUnknown  RiskLevel = "unknown"
)

// FraudIndicatorKey enumerates the vision stage's indicator vocabulary (spec §4.1).
type FraudIndicatorKey string

const (
	IndicatorLowEffortGeneration FraudIndicatorKey = "low_effort_generation"
	IndicatorStolenArtwork       FraudIndicatorKey = "stolen_artwork"
	IndicatorAIGenerated         FraudIndicatorKey = "ai_generated"
	IndicatorTemplateUsage       FraudIndicatorKey = "template_usage"
	IndicatorMetadataMismatch    FraudIndicatorKey = "metadata_mismatch"
	IndicatorCopyrightViolation  FraudIndicatorKey = "copyright_violation"
	IndicatorInappropriateContent FraudIndicatorKey = "inappropriate_content"
)

// FraudIndicator is a single detected (or not) indicator.
type FraudIndicator struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// VisionEvidence is the vision stage's typed output (spec §4.1 stage 1).
type VisionEvidence struct {
	Description       string                              `json:"description"`
	OverallFraudScore float64                              `json:"overall_fraud_score"`
	RiskLevel         RiskLevel                            `json:"risk_level"`
	FraudIndicators   map[FraudIndicatorKey]FraudIndicator `json:"fraud_indicators"`
	UniquenessScore   float64                              `json:"uniqueness_score"`
	Embedding         []float32                            `json:"-"`
	Error             string                                `json:"error,omitempty"`
}

// SimilarNFT is one k-NN hit (spec §4.1 stage 2).
type SimilarNFT struct {
	NFTID      string  `json:"nft_id"`
	Similarity float64 `json:"similarity"`
	ImageURL   string  `json:"image_url"`
}

// SimilarityEvidence is the similarity stage's typed output.
type SimilarityEvidence struct {
	SimilarNFTs  []SimilarNFT `json:"similar_nfts"`
	MaxSimilarity float64     `json:"max_similarity"`
	IsDuplicate  bool         `json:"is_duplicate"`
	EvidenceURLs []string     `json:"evidence_urls"`
	Error        string       `json:"error,omitempty"`
}

// MetadataEvidence is the metadata stage's typed output (spec §4.1 stage 3).
type MetadataEvidence struct {
	QualityScore         float64  `json:"quality_score"`
	MetadataRisk         float64  `json:"metadata_risk"`
	SuspiciousIndicators []string `json:"suspicious_indicators"`
	Analysis             string   `json:"analysis"`
	Error                string   `json:"error,omitempty"`
}

// Recommendation is the decision stage's recommendation vocabulary.
type Recommendation string

const (
	RecommendationAllow        Recommendation = "ALLOW"
	RecommendationFlag         Recommendation = "FLAG"
	RecommendationBlock        Recommendation = "BLOCK"
	RecommendationManualReview Recommendation = "MANUAL_REVIEW"
)

// DecisionEvidence is the decision stage's typed output (spec §4.1 stage 4).
type DecisionEvidence struct {
	IsFraud         bool            `json:"is_fraud"`
	ConfidenceScore float64         `json:"confidence_score"`
	FlagType        *FlagType       `json:"flag_type"`
	Reason          string          `json:"reason"`
	PrimaryConcerns []string        `json:"primary_concerns"`
	Recommendation  Recommendation  `json:"recommendation"`
	FallbackUsed    bool            `json:"fallback_used,omitempty"`
}

// AnalysisDetails is the persisted verdict document (spec §6 "Verdict
// document schema") — a tagged union with one typed variant per stage,
// not a dynamic blob (spec §9 redesign note).
type AnalysisDetails struct {
	ImageAnalysis      VisionEvidence     `json:"image_analysis"`
	SimilarityResults  SimilarityEvidence `json:"similarity_results"`
	MetadataAnalysis   MetadataEvidence   `json:"metadata_analysis"`
	LLMDecision        DecisionEvidence   `json:"llm_decision"`
	AnalysisTimestamp  time.Time          `json:"analysis_timestamp"`
}

// Verdict is the analyzer's final output (spec §4.1).
type Verdict struct {
	IsFraud         bool
	ConfidenceScore float64
	FlagType        FlagType
	Reason          string
	EvidenceURLs    []string
	Details         AnalysisDetails
}
