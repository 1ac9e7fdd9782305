package domain

import (
	"context"
	"time"
)

// MarketplaceFilter is the query shape for GET /api/marketplace/nfts (spec §6).
type MarketplaceFilter struct {
	Search         string
	MinPrice       *float64
	MaxPrice       *float64
	Category       string
	IncludeFlagged bool
	IncludePending bool
	Page           int
	Limit          int
}

// ListingChanges is the partial-update shape for update_listing (spec §4.4).
type ListingChanges struct {
	Price     *float64
	ExpiresAt *time.Time
	Metadata  map[string]any
}

// Repository is the read side plus the entry point for transactional
// lifecycle operations, mirroring the shape of the teacher's
// domain.WalletRepository (plain methods + WithTx).
type Repository interface {
	GetOrCreateUserByWallet(ctx context.Context, wallet string) (*User, error)

	// CreateNFT persists a fully-analyzed NFT in state pending. The
	// verdict is computed beforehand and written once (spec §9 redesign note).
	CreateNFT(ctx context.Context, nft *NFT) (*NFT, error)
	GetNFT(ctx context.Context, id string) (*NFT, error)
	GetNFTsByWallet(ctx context.Context, wallet string) ([]*NFT, error)
	ListMarketplace(ctx context.Context, f MarketplaceFilter) ([]*NFT, int, error)

	GetActiveListing(ctx context.Context, nftID string) (*Listing, error)
	GetListingHistory(ctx context.Context, nftID string) ([]*ListingHistory, error)
	Analytics(ctx context.Context, nftID string) (*ListingAnalytics, error)

	// WithTx runs fn inside a single transaction after taking an
	// exclusive advisory lock on nftID, serializing all lifecycle
	// operations on that id (spec §5).
	WithTx(ctx context.Context, nftID string, fn func(TxRepository) error) error
}

// TxRepository is the set of mutating operations available once the
// per-NFT advisory lock is held.
type TxRepository interface {
	GetNFTTx(ctx context.Context, id string) (*NFT, error)
	ConfirmMintTx(ctx context.Context, id string, suiObjectID string) (*NFT, error)

	GetActiveListingTx(ctx context.Context, nftID string) (*Listing, error)
	CreateListingTx(ctx context.Context, l *Listing) (*Listing, error)
	UpdateListingTx(ctx context.Context, listingID string, changes ListingChanges) (*Listing, error)
	SetListingStatusTx(ctx context.Context, listingID string, status ListingStatus) (*Listing, error)
	GetListingTx(ctx context.Context, listingID string) (*Listing, error)

	SetNFTListingStateTx(ctx context.Context, nftID string, isListed bool, price *float64, status *ListingStatus, lastListedAt *time.Time) error

	AppendHistoryTx(ctx context.Context, h *ListingHistory) error
}
