package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/internal/llmtext"
	"github.com/Marcusng88/FraudGuard/shared/resilience"
)

// maxVisionDimension bounds the image sent to the multimodal endpoint,
// grounded on the thumbnail generator's "preview" size (1200px) rounded
// down slightly to keep base64 payloads well under common request-body
// limits.
const maxVisionDimension = 1024

// VisionClient implements domain.VisionProvider against a multimodal
// chat-completion endpoint (Gemini/GPT-4V-style: one request carrying a
// prompt plus an inline base64 image, one JSON completion back).
type VisionClient struct {
	client  *resilientClient
	apiKey  string
	model   string
	baseURL string
}

func NewVisionClient(apiKey, model, baseURL string, httpTimeout time.Duration, breakers *resilience.CircuitBreakerGroup, retryAttempts int, retryBaseDelay time.Duration, retryBackoff float64, concurrency int) *VisionClient {
	return &VisionClient{
		client:  newResilientClient(httpTimeout, breakers, "vision", retryConfig(retryAttempts, retryBaseDelay, retryBackoff), concurrency),
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}
}

func (v *VisionClient) Available() bool {
	return v.apiKey != "" && v.baseURL != ""
}

type visionMessage struct {
	Role    string        `json:"role"`
	Content []visionBlock `json:"content"`
}

type visionBlock struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *visionImgURL `json:"image_url,omitempty"`
}

type visionImgURL struct {
	URL string `json:"url"`
}

type visionRequest struct {
	Model    string          `json:"model"`
	Messages []visionMessage `json:"messages"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze downloads the NFT image, downsizes/re-encodes it to keep the
// request payload bounded, sends it to the vision model alongside the
// listing metadata, and parses the JSON verdict back into a typed
// VisionEvidence. The embedding itself is populated by the caller via
// EmbeddingProvider, not here — this stage only reasons over pixels.
func (v *VisionClient) Analyze(ctx context.Context, imageURL string, nft domain.NFTInput) (*domain.VisionEvidence, error) {
	encoded, mimeType, err := fetchAndEncodeImage(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	prompt := visionPrompt(nft)
	req := visionRequest{
		Model: v.model,
		Messages: []visionMessage{
			{
				Role: "user",
				Content: []visionBlock{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &visionImgURL{URL: fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)}},
				},
			},
		},
	}

	var resp visionResponse
	headers := map[string]string{"Authorization": "Bearer " + v.apiKey}
	if err := v.client.postJSON(ctx, v.baseURL, headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("vision provider returned no choices")
	}

	return parseVisionCompletion(resp.Choices[0].Message.Content)
}

func visionPrompt(nft domain.NFTInput) string {
	return fmt.Sprintf(`Analyze this NFT image for fraud indicators: low-effort generation, stolen/plagiarized artwork, AI-generated content, template reuse, metadata mismatch, copyright violation, inappropriate content.

Title: %s
Description: %s
Category: %s

Respond in JSON: {"description":"...","overall_fraud_score":0.0-1.0,"risk_level":"low|medium|high|critical","uniqueness_score":0.0-1.0,"fraud_indicators":{"<indicator_key>":{"detected":bool,"confidence":0.0-1.0,"evidence":"..."}}}`,
		nft.Title, nft.Description, nft.Category)
}

func parseVisionCompletion(raw string) (*domain.VisionEvidence, error) {
	body := llmtext.ExtractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("vision completion had no extractable JSON")
	}

	var parsed struct {
		Description       string                                             `json:"description"`
		OverallFraudScore float64                                            `json:"overall_fraud_score"`
		RiskLevel         string                                             `json:"risk_level"`
		UniquenessScore   float64                                            `json:"uniqueness_score"`
		FraudIndicators   map[domain.FraudIndicatorKey]domain.FraudIndicator `json:"fraud_indicators"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("decode vision completion: %w", err)
	}

	indicators := parsed.FraudIndicators
	if indicators == nil {
		indicators = map[domain.FraudIndicatorKey]domain.FraudIndicator{}
	}

	return &domain.VisionEvidence{
		Description:       parsed.Description,
		OverallFraudScore: maxDetectedConfidence(indicators),
		RiskLevel:         domain.RiskLevel(parsed.RiskLevel),
		FraudIndicators:   indicators,
		UniquenessScore:   parsed.UniquenessScore,
	}, nil
}

// maxDetectedConfidence recomputes the overall score from the indicator
// set rather than trusting the model's own summary field, matching
// the original analyzer's override behavior.
func maxDetectedConfidence(indicators map[domain.FraudIndicatorKey]domain.FraudIndicator) float64 {
	var max float64
	for _, ind := range indicators {
		if ind.Detected && ind.Confidence > max {
			max = ind.Confidence
		}
	}
	return max
}

// fetchAndEncodeImage downloads the source image and re-encodes it as a
// bounded-size JPEG, the same Fit-then-encode pipeline the thumbnail
// generator uses for its "preview" size, so oversized source images
// never blow out the provider request body.
func fetchAndEncodeImage(ctx context.Context, url string) (base64Data, mimeType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("decode image: %w", err)
	}

	resized := imaging.Fit(img, maxVisionDimension, maxVisionDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return "", "", fmt.Errorf("encode image: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), "image/jpeg", nil
}
