package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcusng88/FraudGuard/internal/domain"
)

type fakeVisionProvider struct {
	available bool
	evidence  *domain.VisionEvidence
	err       error
}

func (f fakeVisionProvider) Available() bool { return f.available }
func (f fakeVisionProvider) Analyze(ctx context.Context, imageURL string, nft domain.NFTInput) (*domain.VisionEvidence, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.evidence, nil
}

type fakeEmbeddingProvider struct {
	available bool
	vector    []float32
	err       error
}

func (f fakeEmbeddingProvider) Available() bool { return f.available }
func (f fakeEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeTextProvider struct {
	available bool
	responses []string
	calls     int
	err       error
}

func (f *fakeTextProvider) Available() bool { return f.available }
func (f *fakeTextProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	r := f.responses[f.calls%len(f.responses)]
	f.calls++
	return r, nil
}

type fakeSimilarityIndex struct {
	hits []domain.SimilarityHit
	err  error
}

func (f fakeSimilarityIndex) Upsert(ctx context.Context, nftID string, vector []float32, meta domain.SimilarityMeta) error {
	return nil
}
func (f fakeSimilarityIndex) Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]domain.SimilarityHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}
func (f fakeSimilarityIndex) Get(ctx context.Context, nftID string) (*domain.SimilarityEntry, error) {
	return nil, nil
}

func testInput() domain.NFTInput {
	return domain.NFTInput{Title: "Cool Art", Description: "a nice picture", Category: "art", Price: 1.5, ImageURL: "https://example.com/a.png"}
}

// With every provider absent, Analyze must still return a verdict built
// entirely from the deterministic fallback formula (spec §4.1 stage 4).
func TestAnalyzer_Analyze_AllProvidersUnavailable(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, nil, DefaultAnalyzerConfig(), nil)

	verdict, err := a.Analyze(context.Background(), testInput())

	require.NoError(t, err)
	assert.False(t, verdict.IsFraud)
	assert.True(t, verdict.Details.LLMDecision.FallbackUsed)
	assert.Equal(t, domain.RiskUnknown, verdict.Details.ImageAnalysis.RiskLevel)
}

// Analyze must fail fast when the context is already cancelled, never
// running any stage.
func TestAnalyzer_Analyze_ContextAlreadyCancelled(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, nil, DefaultAnalyzerConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, testInput())

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorCancelled))
}

// A vision-provider error degrades to neutral evidence rather than
// failing the whole pipeline.
func TestAnalyzer_VisionStage_ProviderError(t *testing.T) {
	vision := fakeVisionProvider{available: true, err: errors.New("boom")}
	a := NewAnalyzer(vision, nil, nil, nil, DefaultAnalyzerConfig(), nil)

	verdict, err := a.Analyze(context.Background(), testInput())

	require.NoError(t, err)
	assert.Equal(t, domain.RiskUnknown, verdict.Details.ImageAnalysis.RiskLevel)
	assert.NotEmpty(t, verdict.Details.ImageAnalysis.Error)
}

// The similarity stage is skipped entirely (neutral, empty evidence)
// when the vision stage produced no embedding.
func TestAnalyzer_SimilarityStage_SkippedWithoutEmbedding(t *testing.T) {
	vision := fakeVisionProvider{available: true, evidence: &domain.VisionEvidence{
		FraudIndicators: map[domain.FraudIndicatorKey]domain.FraudIndicator{},
	}}
	a := NewAnalyzer(vision, nil, nil, fakeSimilarityIndex{hits: []domain.SimilarityHit{{NFTID: "x", Similarity: 0.9}}}, DefaultAnalyzerConfig(), nil)

	verdict, err := a.Analyze(context.Background(), testInput())

	require.NoError(t, err)
	assert.Empty(t, verdict.Details.SimilarityResults.SimilarNFTs)
	assert.Equal(t, 0.0, verdict.Details.SimilarityResults.MaxSimilarity)
}

// A similarity hit above 0.95 marks the evidence as a duplicate and
// surfaces its image URL as evidence (spec §4.1 stage 2).
func TestAnalyzer_SimilarityStage_DuplicateDetection(t *testing.T) {
	vision := fakeVisionProvider{available: true, evidence: &domain.VisionEvidence{
		FraudIndicators: map[domain.FraudIndicatorKey]domain.FraudIndicator{},
	}}
	embedding := fakeEmbeddingProvider{available: true, vector: []float32{0.1, 0.2, 0.3}}
	sim := fakeSimilarityIndex{hits: []domain.SimilarityHit{
		{NFTID: "dup-1", Similarity: 0.97, Meta: domain.SimilarityMeta{ImageURL: "https://example.com/dup.png"}},
	}}
	a := NewAnalyzer(vision, embedding, nil, sim, DefaultAnalyzerConfig(), nil)

	verdict, err := a.Analyze(context.Background(), testInput())

	require.NoError(t, err)
	require.Len(t, verdict.Details.SimilarityResults.SimilarNFTs, 1)
	assert.True(t, verdict.Details.SimilarityResults.IsDuplicate)
	assert.Equal(t, []string{"https://example.com/dup.png"}, verdict.Details.SimilarityResults.EvidenceURLs)
}

// The metadata stage falls back to the keyword/price heuristic when no
// text provider is configured, flagging a known fraud keyword.
func TestAnalyzer_MetadataStage_FallbackKeyword(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, nil, DefaultAnalyzerConfig(), nil)
	in := domain.NFTInput{Title: "Totally not a fake", Description: "", Price: 1}

	verdict, err := a.Analyze(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, 0.6, verdict.Details.MetadataAnalysis.MetadataRisk)
	assert.NotEmpty(t, verdict.Details.MetadataAnalysis.SuspiciousIndicators)
}

// A malformed (non-JSON) metadata-stage completion still yields a
// well-formed evidence record instead of propagating a parse error.
func TestAnalyzer_MetadataStage_UnparsableResponse(t *testing.T) {
	text := &fakeTextProvider{available: true, responses: []string{"not json at all"}}
	a := NewAnalyzer(nil, nil, text, nil, DefaultAnalyzerConfig(), nil)

	verdict, err := a.Analyze(context.Background(), testInput())

	require.NoError(t, err)
	assert.Equal(t, 0.5, verdict.Details.MetadataAnalysis.QualityScore)
	assert.Contains(t, verdict.Details.MetadataAnalysis.SuspiciousIndicators, "LLM response parsing failed")
}

// A well-formed decision-stage completion is parsed verbatim, including
// the numeric-to-FlagType coercion.
func TestAnalyzer_DecisionStage_ParsesWellFormedResponse(t *testing.T) {
	text := &fakeTextProvider{available: true, responses: []string{
		`{"quality_score":0.9,"metadata_risk":0.05,"suspicious_indicators":[],"analysis":"fine"}`,
		`{"is_fraud":true,"confidence_score":0.95,"flag_type":1,"reason":"stolen art","primary_concerns":["plagiarism"],"recommendation":"BLOCK"}`,
	}}
	a := NewAnalyzer(nil, nil, text, nil, DefaultAnalyzerConfig(), nil)

	verdict, err := a.Analyze(context.Background(), testInput())

	require.NoError(t, err)
	assert.True(t, verdict.IsFraud)
	assert.Equal(t, 0.95, verdict.ConfidenceScore)
	assert.Equal(t, domain.FlagPlagiarism, verdict.FlagType)
	assert.Equal(t, domain.RecommendationBlock, verdict.Details.LLMDecision.Recommendation)
}

// applyConsistencyFix forces is_fraud=true when confidence/recommendation
// disagree with a false is_fraud (spec §4.1 stage 4 consistency rule).
func TestApplyConsistencyFix_ForcesFraudTrue(t *testing.T) {
	d := &domain.DecisionEvidence{
		IsFraud:         false,
		ConfidenceScore: 0.8,
		Recommendation:  domain.RecommendationFlag,
	}

	applyConsistencyFix(d, nil)

	assert.True(t, d.IsFraud)
}

// applyConsistencyFix forces is_fraud=false when confidence is low and
// the recommendation is ALLOW despite is_fraud=true.
func TestApplyConsistencyFix_ForcesFraudFalse(t *testing.T) {
	d := &domain.DecisionEvidence{
		IsFraud:         true,
		ConfidenceScore: 0.1,
		Recommendation:  domain.RecommendationAllow,
	}

	applyConsistencyFix(d, nil)

	assert.False(t, d.IsFraud)
}

// applyConsistencyFix leaves an already-consistent decision untouched.
func TestApplyConsistencyFix_NoChangeWhenConsistent(t *testing.T) {
	d := &domain.DecisionEvidence{
		IsFraud:         true,
		ConfidenceScore: 0.9,
		Recommendation:  domain.RecommendationBlock,
	}

	applyConsistencyFix(d, nil)

	assert.True(t, d.IsFraud)
}

// The fallback decision's weighted formula crosses the fraud threshold
// only once the combined score exceeds 0.7, and assigns the plagiarism
// flag above 0.8.
func TestAnalyzer_FallbackDecision_WeightedFormula(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, nil, DefaultAnalyzerConfig(), nil)

	high := &domain.VisionEvidence{OverallFraudScore: 1.0}
	sim := &domain.SimilarityEvidence{MaxSimilarity: 1.0}
	meta := &domain.MetadataEvidence{MetadataRisk: 1.0}

	decision := a.fallbackDecision(high, sim, meta)

	assert.True(t, decision.IsFraud)
	assert.True(t, decision.FallbackUsed)
	require.NotNil(t, decision.FlagType)
	assert.Equal(t, domain.FlagPlagiarism, *decision.FlagType)
	assert.Equal(t, 0.8, decision.ConfidenceScore)

	low := &domain.VisionEvidence{OverallFraudScore: 0}
	simLow := &domain.SimilarityEvidence{MaxSimilarity: 0}
	metaLow := &domain.MetadataEvidence{MetadataRisk: 0}
	decisionLow := a.fallbackDecision(low, simLow, metaLow)
	assert.False(t, decisionLow.IsFraud)
	assert.Nil(t, decisionLow.FlagType)
	assert.Equal(t, domain.RecommendationAllow, decisionLow.Recommendation)
}
