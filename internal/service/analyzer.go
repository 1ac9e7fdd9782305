package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/shared/logging"
)

// AnalyzerConfig carries the tunables spec §6 exposes as environment
// configuration.
type AnalyzerConfig struct {
	SimilarityThreshold     float64 // image_similarity_threshold, default 0.85
	FraudConfidenceThreshold float64 // fraud_confidence_threshold, default 0.7
	SimilarityLimit         int     // default 10
}

func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		SimilarityThreshold:      0.85,
		FraudConfidenceThreshold: 0.7,
		SimilarityLimit:          10,
	}
}

// Analyzer orchestrates the four-stage fraud-detection pipeline (spec §4.1).
// It depends on provider interfaces, never concrete clients, so tests can
// substitute fakes (spec §9 redesign note on module-level singletons).
type Analyzer struct {
	vision     domain.VisionProvider
	embedding  domain.EmbeddingProvider
	text       domain.TextProvider
	similarity domain.SimilarityIndex
	cfg        AnalyzerConfig
	log        *logging.Logger
}

func NewAnalyzer(vision domain.VisionProvider, embedding domain.EmbeddingProvider, text domain.TextProvider, similarity domain.SimilarityIndex, cfg AnalyzerConfig, log *logging.Logger) *Analyzer {
	return &Analyzer{vision: vision, embedding: embedding, text: text, similarity: similarity, cfg: cfg, log: log}
}

// Analyze runs the pipeline to completion and always returns a Verdict;
// provider failures are absorbed into neutral evidence per stage (spec §4.1
// failure semantics). Only context cancellation before any stage starts is
// propagated as an error.
func (a *Analyzer) Analyze(ctx context.Context, in domain.NFTInput) (*domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled("analysis cancelled before start")
	}

	vision := a.runVisionStage(ctx, in)
	similarity := a.runSimilarityStage(ctx, vision)
	metadata := a.runMetadataStage(ctx, in)
	decision := a.runDecisionStage(ctx, in, vision, similarity, metadata)

	evidenceURLs := similarity.EvidenceURLs

	details := domain.AnalysisDetails{
		ImageAnalysis:     *vision,
		SimilarityResults: *similarity,
		MetadataAnalysis:  *metadata,
		LLMDecision:       *decision,
		AnalysisTimestamp: time.Now().UTC(),
	}

	flag := domain.FlagNone
	if decision.FlagType != nil {
		flag = *decision.FlagType
	}

	return &domain.Verdict{
		IsFraud:         decision.IsFraud,
		ConfidenceScore: decision.ConfidenceScore,
		FlagType:        flag,
		Reason:          decision.Reason,
		EvidenceURLs:    evidenceURLs,
		Details:         details,
	}, nil
}

// --- Stage 1: vision ---

func (a *Analyzer) runVisionStage(ctx context.Context, in domain.NFTInput) *domain.VisionEvidence {
	if a.vision == nil || !a.vision.Available() {
		return neutralVisionEvidence("vision provider unavailable")
	}

	evidence, err := a.vision.Analyze(ctx, in.ImageURL, in)
	if err != nil {
		if a.log != nil {
			a.log.WithError(err).Warn("vision stage failed, using neutral evidence")
		}
		return neutralVisionEvidence(err.Error())
	}

	evidence.Embedding = a.embedVisionDescription(ctx, in, evidence)
	return evidence
}

// embedVisionDescription turns the vision stage's output into the
// fixed-width vector the similarity stage queries by (spec §4.1 stage
// 1 feeds stage 2). A missing or unavailable embedding provider yields
// no embedding, which runSimilarityStage already treats as "skip".
func (a *Analyzer) embedVisionDescription(ctx context.Context, in domain.NFTInput, evidence *domain.VisionEvidence) []float32 {
	if a.embedding == nil || !a.embedding.Available() {
		return nil
	}

	text := evidence.Description
	if text == "" {
		text = in.Title + " " + in.Description
	}

	vec, err := a.embedding.Embed(ctx, text)
	if err != nil {
		if a.log != nil {
			a.log.WithError(err).Warn("embedding stage failed, similarity check skipped")
		}
		return nil
	}
	return vec
}

func neutralVisionEvidence(note string) *domain.VisionEvidence {
	return &domain.VisionEvidence{
		Description:       "",
		OverallFraudScore: 0,
		RiskLevel:         domain.RiskUnknown,
		FraudIndicators:   map[domain.FraudIndicatorKey]domain.FraudIndicator{},
		UniquenessScore:   0,
		Error:             note,
	}
}

// --- Stage 2: similarity ---

func (a *Analyzer) runSimilarityStage(ctx context.Context, vision *domain.VisionEvidence) *domain.SimilarityEvidence {
	if len(vision.Embedding) == 0 || a.similarity == nil {
		return &domain.SimilarityEvidence{SimilarNFTs: []domain.SimilarNFT{}, EvidenceURLs: []string{}}
	}

	limit := a.cfg.SimilarityLimit
	if limit <= 0 {
		limit = 10
	}
	hits, err := a.similarity.Query(ctx, vision.Embedding, a.cfg.SimilarityThreshold, limit)
	if err != nil {
		if a.log != nil {
			a.log.WithError(err).Warn("similarity stage failed, using neutral evidence")
		}
		return &domain.SimilarityEvidence{SimilarNFTs: []domain.SimilarNFT{}, EvidenceURLs: []string{}, Error: err.Error()}
	}

	similar := make([]domain.SimilarNFT, 0, len(hits))
	maxSim := 0.0
	urls := make([]string, 0, 3)
	for _, h := range hits {
		similar = append(similar, domain.SimilarNFT{NFTID: h.NFTID, Similarity: h.Similarity, ImageURL: h.Meta.ImageURL})
		if h.Similarity > maxSim {
			maxSim = h.Similarity
		}
		if len(urls) < 3 && h.Meta.ImageURL != "" {
			urls = append(urls, h.Meta.ImageURL)
		}
	}

	return &domain.SimilarityEvidence{
		SimilarNFTs:   similar,
		MaxSimilarity: maxSim,
		IsDuplicate:   maxSim > 0.95,
		EvidenceURLs:  urls,
	}
}

// --- Stage 3: metadata ---

func (a *Analyzer) runMetadataStage(ctx context.Context, in domain.NFTInput) *domain.MetadataEvidence {
	if a.text == nil || !a.text.Available() {
		return fallbackMetadataEvidence(in)
	}

	prompt := metadataPrompt(in)
	raw, err := a.text.Complete(ctx, prompt)
	if err != nil {
		if a.log != nil {
			a.log.WithError(err).Warn("metadata stage provider error, falling back")
		}
		return fallbackMetadataEvidence(in)
	}

	body := extractJSON(raw)
	if body == "" {
		return &domain.MetadataEvidence{
			QualityScore:         0.5,
			MetadataRisk:         0.2,
			SuspiciousIndicators: []string{"LLM response parsing failed"},
			Analysis:             "Fallback analysis used due to parsing error",
		}
	}

	var raw_ map[string]any
	if err := json.Unmarshal([]byte(body), &raw_); err != nil {
		return &domain.MetadataEvidence{
			QualityScore:         0.5,
			MetadataRisk:         0.2,
			SuspiciousIndicators: []string{"LLM response parsing failed"},
			Analysis:             "Fallback analysis used due to parsing error",
		}
	}

	return &domain.MetadataEvidence{
		QualityScore:         coerceFloat(raw_["quality_score"], 0.5),
		MetadataRisk:         coerceFloat(raw_["metadata_risk"], 0.1),
		SuspiciousIndicators: coerceStringSlice(raw_["suspicious_indicators"]),
		Analysis:             coerceString(raw_["analysis"], ""),
	}
}

// fraudKeywords grounds the metadata-stage fallback in the original
// service's crude keyword/price heuristic (see SPEC_FULL.md
// "Supplemented Features"), applied only when the text provider itself
// is unavailable — the stage still must emit a neutral-but-informative
// evidence record rather than all zeros.
var fraudKeywords = []string{"fake", "copy", "stolen", "counterfeit"}

func fallbackMetadataEvidence(in domain.NFTInput) *domain.MetadataEvidence {
	indicators := []string{}
	risk := 0.1
	titleDesc := strings.ToLower(in.Title + " " + in.Description)
	for _, kw := range fraudKeywords {
		if strings.Contains(titleDesc, kw) {
			indicators = append(indicators, fmt.Sprintf("suspicious keyword: %q", kw))
			risk = 0.6
			break
		}
	}
	if in.Price > 0 && in.Price < 0.001 {
		indicators = append(indicators, "suspiciously low price")
		if risk < 0.4 {
			risk = 0.4
		}
	}
	return &domain.MetadataEvidence{
		QualityScore:         0.7,
		MetadataRisk:         risk,
		SuspiciousIndicators: indicators,
	}
}

func metadataPrompt(in domain.NFTInput) string {
	return fmt.Sprintf(`Analyze this NFT metadata for fraud indicators.
Name: %s
Description: %s
Category: %s
Price: %v

Respond in JSON: {"quality_score":0.0-1.0,"suspicious_indicators":["..."],"metadata_risk":0.0-1.0,"analysis":"..."}`,
		in.Title, in.Description, in.Category, in.Price)
}

// --- Stage 4: decision ---

func (a *Analyzer) runDecisionStage(ctx context.Context, in domain.NFTInput, vision *domain.VisionEvidence, similarity *domain.SimilarityEvidence, metadata *domain.MetadataEvidence) *domain.DecisionEvidence {
	if a.text == nil || !a.text.Available() {
		return a.fallbackDecision(vision, similarity, metadata)
	}

	prompt := decisionPrompt(in, vision, similarity, metadata)
	raw, err := a.text.Complete(ctx, prompt)
	if err != nil {
		if a.log != nil {
			a.log.WithError(err).Warn("decision stage provider error, falling back")
		}
		return a.fallbackDecision(vision, similarity, metadata)
	}

	body := extractJSON(raw)
	if body == "" {
		return a.fallbackDecision(vision, similarity, metadata)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return a.fallbackDecision(vision, similarity, metadata)
	}

	decision := &domain.DecisionEvidence{
		IsFraud:         coerceBool(parsed["is_fraud"], false),
		ConfidenceScore: coerceFloat(parsed["confidence_score"], 0),
		Reason:          coerceString(parsed["reason"], "Analysis completed"),
		PrimaryConcerns: coerceStringSlice(parsed["primary_concerns"]),
		Recommendation:  domain.Recommendation(strings.ToUpper(coerceString(parsed["recommendation"], "ALLOW"))),
	}
	if ft, ok := parsed["flag_type"]; ok && ft != nil {
		v := domain.FlagType(int(coerceFloat(ft, 0)))
		decision.FlagType = &v
	}

	applyConsistencyFix(decision, a.log)
	return decision
}

// applyConsistencyFix enforces spec §4.1 stage 4's consistency rule.
func applyConsistencyFix(d *domain.DecisionEvidence, log *logging.Logger) {
	if d.ConfidenceScore >= 0.7 && (d.Recommendation == domain.RecommendationFlag || d.Recommendation == domain.RecommendationBlock) && !d.IsFraud {
		d.IsFraud = true
		if log != nil {
			log.Debug("consistency fix: forced is_fraud=true from confidence/recommendation")
		}
	} else if d.ConfidenceScore < 0.3 && d.Recommendation == domain.RecommendationAllow && d.IsFraud {
		d.IsFraud = false
		if log != nil {
			log.Debug("consistency fix: forced is_fraud=false from confidence/recommendation")
		}
	}
}

// fallbackDecision is the deterministic weighted formula of spec §4.1.
func (a *Analyzer) fallbackDecision(vision *domain.VisionEvidence, similarity *domain.SimilarityEvidence, metadata *domain.MetadataEvidence) *domain.DecisionEvidence {
	combined := 0.5*vision.OverallFraudScore + 0.3*similarity.MaxSimilarity + 0.2*metadata.MetadataRisk

	isFraud := combined > 0.7
	confidence := combined
	if confidence > 0.8 {
		confidence = 0.8
	}

	var flag *domain.FlagType
	switch {
	case combined > 0.8:
		f := domain.FlagPlagiarism
		flag = &f
	case combined > 0.6:
		f := domain.FlagSuspiciousActivity
		flag = &f
	}

	recommendation := domain.RecommendationAllow
	if combined > 0.5 {
		recommendation = domain.RecommendationManualReview
	}

	return &domain.DecisionEvidence{
		IsFraud:         isFraud,
		ConfidenceScore: confidence,
		FlagType:        flag,
		Reason:          fmt.Sprintf("Fallback analysis - combined risk: %.2f", combined),
		Recommendation:  recommendation,
		FallbackUsed:    true,
	}
}

func decisionPrompt(in domain.NFTInput, vision *domain.VisionEvidence, similarity *domain.SimilarityEvidence, metadata *domain.MetadataEvidence) string {
	return fmt.Sprintf(`You are an NFT fraud detection system. Given the evidence below, decide if this NFT is fraudulent.
Name: %s
Description: %s
Category: %s
Price: %v

Image fraud score: %.2f, risk: %s
Similarity max: %.2f, duplicate: %v
Metadata risk: %.2f, quality: %.2f

Respond in JSON: {"is_fraud":true/false,"confidence_score":0.0-1.0,"flag_type":1-4 or null,"reason":"...","primary_concerns":["..."],"recommendation":"ALLOW|FLAG|BLOCK|MANUAL_REVIEW"}`,
		in.Title, in.Description, in.Category, in.Price,
		vision.OverallFraudScore, vision.RiskLevel,
		similarity.MaxSimilarity, similarity.IsDuplicate,
		metadata.MetadataRisk, metadata.QualityScore)
}

// --- coercion helpers (spec §4.1 parsing rule (f)) ---

func coerceFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

func coerceBool(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func coerceString(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func coerceStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
