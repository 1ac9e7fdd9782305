package service

import (
	"context"
	"time"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/shared/logging"
	"github.com/Marcusng88/FraudGuard/shared/metrics"
	"github.com/Marcusng88/FraudGuard/shared/recovery"
	"github.com/Marcusng88/FraudGuard/shared/resilience"
)

// SchedulerConfig carries the scheduler's own tunables, distinct from
// AnalyzerConfig and the per-provider concurrency caps (spec §5's
// "bounded queue").
type SchedulerConfig struct {
	// MaxInFlight bounds concurrent pipeline invocations across all
	// NFTs; a create call that can't get a slot fails fast with
	// Overloaded instead of queueing indefinitely.
	MaxInFlight int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{MaxInFlight: 32}
}

// Scheduler is the Job Scheduler (spec §4.5): it runs the analyzer
// synchronously on the create path (foreground work) and hands
// embedding persistence to background work that never blocks the
// response. Sync notifications are published by
// LifecycleManager.ConfirmMint, not here.
type Scheduler struct {
	analyzer   *Analyzer
	lifecycle  *LifecycleManager
	similarity domain.SimilarityIndex
	queue      domain.BackgroundQueue
	metrics    *metrics.Metrics
	log        *logging.Logger
	inFlight   chan struct{}
}

func NewScheduler(analyzer *Analyzer, lifecycle *LifecycleManager, similarity domain.SimilarityIndex, queue domain.BackgroundQueue, m *metrics.Metrics, log *logging.Logger, cfg SchedulerConfig) *Scheduler {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 32
	}
	return &Scheduler{
		analyzer:   analyzer,
		lifecycle:  lifecycle,
		similarity: similarity,
		queue:      queue,
		metrics:    m,
		log:        log,
		inFlight:   make(chan struct{}, maxInFlight),
	}
}

// CreateRequest is the input to the create path (title/description/etc
// plus the wallet the NFT is minted for).
type CreateRequest struct {
	Wallet      string
	Title       string
	Description string
	Category    string
	Price       float64
	ImageURL    string
}

// CreateNFT runs the analyzer synchronously, persists the NFT with its
// verdict, and enqueues background work for the embedding vector — the
// two-class model of spec §4.5. A saturated in-flight pool fails fast
// with Overloaded rather than queueing unboundedly (spec §5 backpressure).
func (s *Scheduler) CreateNFT(ctx context.Context, req CreateRequest) (*domain.NFT, error) {
	select {
	case s.inFlight <- struct{}{}:
	default:
		return nil, domain.Overloaded("fraud analysis pipeline is at capacity, retry shortly")
	}
	defer func() { <-s.inFlight }()

	start := time.Now()
	in := domain.NFTInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	}

	verdict, err := s.analyzer.Analyze(ctx, in)
	if err != nil {
		return nil, domain.Cancelled("analysis cancelled before start")
	}

	embedding := verdict.Details.ImageAnalysis.Embedding
	nft, err := s.lifecycle.Create(ctx, CreateInput{
		Wallet:      req.Wallet,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Verdict:     *verdict,
		Embedding:   embedding,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		outcome := "allow"
		if verdict.IsFraud {
			outcome = "flag"
		}
		s.metrics.VerdictsTotal.WithLabelValues(verdict.FlagType.String(), outcome).Inc()
		s.metrics.AnalysisDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}

	s.enqueueBackgroundWork(ctx, nft, len(embedding) > 0)
	return nft, nil
}

// enqueueBackgroundWork fires the background half of spec §4.5 without
// blocking the caller: when an embedding is available, a goroutine
// upserts it into the similarity index (up to 5 attempts, 1s base delay,
// factor 2), logs a terminal failure, and then publishes an
// EmbeddingPersistJob with the NFT id and image URL. Nothing is
// published before the upsert attempts finish.
func (s *Scheduler) enqueueBackgroundWork(ctx context.Context, nft *domain.NFT, hasEmbedding bool) {
	if !hasEmbedding {
		return
	}

	recovery.SafeGo(func() {
		bgCtx := context.Background()
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = 5
		retry.InitialDelay = 1 * time.Second
		retry.BackoffFactor = 2.0

		err := resilience.RetryWithConfig(bgCtx, retry, func(bgCtx context.Context) error {
			return s.similarity.Upsert(bgCtx, nft.ID, nft.EmbeddingVector, domain.SimilarityMeta{
				Title:    nft.Title,
				ImageURL: nft.ImageURL,
			})
		})
		if err != nil && s.log != nil {
			s.log.WithError(err).Error("embedding persistence failed terminally for nft " + nft.ID)
		}

		if s.queue != nil {
			if err := s.queue.PublishEmbeddingPersist(bgCtx, domain.EmbeddingPersistJob{NFTID: nft.ID, ImageURL: nft.ImageURL}); err != nil && s.log != nil {
				s.log.WithError(err).Warn("failed to publish embedding persist job for nft " + nft.ID)
			}
		}
	})
}
