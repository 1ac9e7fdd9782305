package domain

import "context"

// EmbeddingPersistJob names an NFT whose embedding the scheduler has
// already tried to upsert into the similarity index after its create
// call returned (spec §4.5).
type EmbeddingPersistJob struct {
	NFTID    string `json:"nft_id"`
	ImageURL string `json:"image_url"`
}

// SyncNotifyJob carries a blockchain mint-confirmation notification
// (spec §4.5's "optional blockchain-sync notifications"; interface
// only, content out of scope).
type SyncNotifyJob struct {
	NFTID       string `json:"nft_id"`
	SuiObjectID string `json:"sui_object_id"`
}

// AutoRelistJob asks a background worker to sweep one expired listing.
type AutoRelistJob struct {
	ListingID string `json:"listing_id"`
	NFTID     string `json:"nft_id"`
}

// BackgroundQueue is the Job Scheduler's outbound channel for
// background work (spec §4.5), implemented by
// internal/infrastructure/messaging against RabbitMQ. Declared here so
// internal/service can depend on the contract without importing
// infrastructure.
type BackgroundQueue interface {
	PublishEmbeddingPersist(ctx context.Context, job EmbeddingPersistJob) error
	PublishSyncNotify(ctx context.Context, job SyncNotifyJob) error
	PublishAutoRelist(ctx context.Context, job AutoRelistJob) error
}
