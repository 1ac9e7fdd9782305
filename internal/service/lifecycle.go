package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/shared/logging"
	"github.com/Marcusng88/FraudGuard/shared/recovery"
)

// LifecycleManager owns the NFT/Listing/ListingHistory state machines
// (spec §4.4), built on domain.Repository the way
// services/wallet-service's service layer is built on
// domain.WalletRepository — one exported method per operation, each
// mutation wrapped in WithTx for the per-NFT advisory lock.
type LifecycleManager struct {
	repo  domain.Repository
	queue domain.BackgroundQueue
	log   *logging.Logger
}

func NewLifecycleManager(repo domain.Repository, queue domain.BackgroundQueue, log *logging.Logger) *LifecycleManager {
	return &LifecycleManager{repo: repo, queue: queue, log: log}
}

// CreateInput bundles the listing metadata with the verdict the
// analyzer already computed — create never calls the analyzer itself,
// per spec §9's "compute the full Verdict, then write once".
type CreateInput struct {
	Wallet      string
	Title       string
	Description string
	Category    string
	Price       float64
	ImageURL    string
	Verdict     domain.Verdict
	Embedding   []float32
}

// Create inserts a new NFT in state pending carrying the precomputed
// verdict fields (spec §4.4 create).
func (m *LifecycleManager) Create(ctx context.Context, in CreateInput) (*domain.NFT, error) {
	user, err := m.repo.GetOrCreateUserByWallet(ctx, in.Wallet)
	if err != nil {
		return nil, domain.Internal("failed to resolve wallet", err)
	}

	details := in.Verdict.Details
	nft := &domain.NFT{
		UserID:          user.ID,
		Wallet:          in.Wallet,
		Title:           in.Title,
		Description:     in.Description,
		Category:        in.Category,
		Price:           in.Price,
		ImageURL:        in.ImageURL,
		Status:          domain.NFTStatusPending,
		IsFraud:         in.Verdict.IsFraud,
		ConfidenceScore: in.Verdict.ConfidenceScore,
		FlagType:        in.Verdict.FlagType,
		Reason:          in.Verdict.Reason,
		EvidenceURLs:    in.Verdict.EvidenceURLs,
		AnalysisDetails: &details,
		EmbeddingVector: in.Embedding,
		IsListed:        false,
	}

	created, err := m.repo.CreateNFT(ctx, nft)
	if err != nil {
		return nil, domain.Internal("failed to persist nft", err)
	}
	return created, nil
}

// ConfirmMint transitions pending → minted (spec §4.4 confirm_mint),
// idempotent on a matching sui_object_id, Conflict on a mismatched one.
func (m *LifecycleManager) ConfirmMint(ctx context.Context, nftID, suiObjectID string) (*domain.NFT, error) {
	var result *domain.NFT
	err := m.repo.WithTx(ctx, nftID, func(tx domain.TxRepository) error {
		nft, err := tx.ConfirmMintTx(ctx, nftID, suiObjectID)
		if err != nil {
			return err
		}
		result = nft
		return nil
	})
	if err != nil {
		return nil, translateLifecycleErr(err)
	}

	if m.queue != nil {
		nftID, suiObjectID := result.ID, suiObjectID
		recovery.SafeGo(func() {
			job := domain.SyncNotifyJob{NFTID: nftID, SuiObjectID: suiObjectID}
			if err := m.queue.PublishSyncNotify(context.Background(), job); err != nil && m.log != nil {
				m.log.WithError(err).Warn("failed to publish sync notify job for nft " + nftID)
			}
		})
	}

	return result, nil
}

// List creates an active listing for a minted, unlisted NFT (spec §4.4 list).
func (m *LifecycleManager) List(ctx context.Context, nftID string, price float64, expiresAt *time.Time, metadata map[string]any) (*domain.Listing, error) {
	var result *domain.Listing
	err := m.repo.WithTx(ctx, nftID, func(tx domain.TxRepository) error {
		nft, err := tx.GetNFTTx(ctx, nftID)
		if err != nil {
			return err
		}
		if nft.Status != domain.NFTStatusMinted {
			return domain.Conflict("nft must be minted before it can be listed")
		}
		if existing, err := tx.GetActiveListingTx(ctx, nftID); err == nil && existing != nil {
			return domain.ErrActiveListingExists
		} else if err != nil && err != domain.ErrNoActiveListing {
			return err
		}

		listing := &domain.Listing{
			ID:        uuid.NewString(),
			NFTID:     nftID,
			SellerID:  nft.UserID,
			Price:     price,
			ExpiresAt: expiresAt,
			Status:    domain.ListingStatusActive,
			Metadata:  metadata,
		}
		created, err := tx.CreateListingTx(ctx, listing)
		if err != nil {
			return err
		}

		status := domain.ListingStatusActive
		now := time.Now().UTC()
		if err := tx.SetNFTListingStateTx(ctx, nftID, true, &price, &status, &now); err != nil {
			return err
		}

		if err := tx.AppendHistoryTx(ctx, &domain.ListingHistory{
			ID:        uuid.NewString(),
			ListingID: created.ID,
			NFTID:     nftID,
			Action:    domain.HistoryActionCreated,
			NewPrice:  &price,
			SellerID:  nft.UserID,
		}); err != nil {
			return err
		}

		result = created
		return nil
	})
	if err != nil {
		return nil, translateLifecycleErr(err)
	}
	return result, nil
}

// Unlist deactivates the NFT's sole active listing (spec §4.4 unlist).
func (m *LifecycleManager) Unlist(ctx context.Context, nftID string) error {
	err := m.repo.WithTx(ctx, nftID, func(tx domain.TxRepository) error {
		nft, err := tx.GetNFTTx(ctx, nftID)
		if err != nil {
			return err
		}
		listing, err := tx.GetActiveListingTx(ctx, nftID)
		if err != nil {
			return err
		}

		if _, err := tx.SetListingStatusTx(ctx, listing.ID, domain.ListingStatusInactive); err != nil {
			return err
		}
		inactive := domain.ListingStatusInactive
		if err := tx.SetNFTListingStateTx(ctx, nftID, false, nil, &inactive, nil); err != nil {
			return err
		}
		return tx.AppendHistoryTx(ctx, &domain.ListingHistory{
			ID:        uuid.NewString(),
			ListingID: listing.ID,
			NFTID:     nftID,
			Action:    domain.HistoryActionDeleted,
			OldPrice:  &listing.Price,
			SellerID:  nft.UserID,
		})
	})
	return translateLifecycleErr(err)
}

// UpdateListing mutates an active listing's price/expiry/metadata (spec
// §4.4 update_listing); even an empty ListingChanges still appends one
// history row (spec §8 idempotence law).
func (m *LifecycleManager) UpdateListing(ctx context.Context, nftID string, changes domain.ListingChanges) (*domain.Listing, error) {
	var result *domain.Listing
	err := m.repo.WithTx(ctx, nftID, func(tx domain.TxRepository) error {
		nft, err := tx.GetNFTTx(ctx, nftID)
		if err != nil {
			return err
		}
		listing, err := tx.GetActiveListingTx(ctx, nftID)
		if err != nil {
			return err
		}

		oldPrice := listing.Price
		updated, err := tx.UpdateListingTx(ctx, listing.ID, changes)
		if err != nil {
			return err
		}

		hist := &domain.ListingHistory{
			ID:        uuid.NewString(),
			ListingID: listing.ID,
			NFTID:     nftID,
			Action:    domain.HistoryActionUpdated,
			OldPrice:  &oldPrice,
			SellerID:  nft.UserID,
		}
		if changes.Price != nil {
			hist.NewPrice = changes.Price
		} else {
			hist.NewPrice = &oldPrice
		}
		if err := tx.AppendHistoryTx(ctx, hist); err != nil {
			return err
		}

		if changes.Price != nil {
			activeStatus := domain.ListingStatusActive
			if err := tx.SetNFTListingStateTx(ctx, nftID, true, changes.Price, &activeStatus, nil); err != nil {
				return err
			}
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, translateLifecycleErr(err)
	}
	return result, nil
}

// DeleteListing soft-deletes a listing regardless of its current status,
// as long as it is not already deleted (spec §4.4 delete_listing).
func (m *LifecycleManager) DeleteListing(ctx context.Context, nftID, listingID string) error {
	err := m.repo.WithTx(ctx, nftID, func(tx domain.TxRepository) error {
		listing, err := tx.GetListingTx(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.Status == domain.ListingStatusDeleted {
			return domain.ErrListingAlreadyDone
		}

		if _, err := tx.SetListingStatusTx(ctx, listingID, domain.ListingStatusDeleted); err != nil {
			return err
		}
		inactive := domain.ListingStatusInactive
		if err := tx.SetNFTListingStateTx(ctx, nftID, false, nil, &inactive, nil); err != nil {
			return err
		}
		return tx.AppendHistoryTx(ctx, &domain.ListingHistory{
			ID:        uuid.NewString(),
			ListingID: listingID,
			NFTID:     nftID,
			Action:    domain.HistoryActionDeleted,
			OldPrice:  &listing.Price,
			SellerID:  listing.SellerID,
		})
	})
	return translateLifecycleErr(err)
}

// BulkList lists every id in ids, best-effort: a failure on one id
// never rolls back or blocks the others (spec §4.4 bulk_list, §8
// boundary behavior).
func (m *LifecycleManager) BulkList(ctx context.Context, ids []string, price float64, expiresAt *time.Time, metadata map[string]any) domain.BulkListResult {
	result := domain.BulkListResult{Succeeded: []string{}, Failed: []domain.BulkListFailure{}}
	for _, id := range ids {
		if _, err := m.List(ctx, id, price, expiresAt, metadata); err != nil {
			result.Failed = append(result.Failed, domain.BulkListFailure{NFTID: id, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

// AutoRelist is equivalent to List when the NFT is currently unlisted,
// Conflict otherwise (spec §4.4 auto_relist).
func (m *LifecycleManager) AutoRelist(ctx context.Context, nftID string, price float64, expiresAt *time.Time, metadata map[string]any) (*domain.Listing, error) {
	var alreadyListed bool
	err := m.repo.WithTx(ctx, nftID, func(tx domain.TxRepository) error {
		nft, err := tx.GetNFTTx(ctx, nftID)
		if err != nil {
			return err
		}
		if nft.IsListed {
			alreadyListed = true
		}
		return nil
	})
	if err != nil {
		return nil, translateLifecycleErr(err)
	}
	if alreadyListed {
		return nil, domain.Conflict("nft is already listed")
	}
	return m.List(ctx, nftID, price, expiresAt, metadata)
}

// Analytics computes derived listing stats for an NFT (spec §4.4 analytics).
func (m *LifecycleManager) Analytics(ctx context.Context, nftID string) (*domain.ListingAnalytics, error) {
	stats, err := m.repo.Analytics(ctx, nftID)
	if err != nil {
		return nil, domain.Internal("failed to compute analytics", err)
	}
	return stats, nil
}

// GetNFT, GetNFTsByWallet, ListMarketplace, GetActiveListing,
// GetListingHistory are thin read-path passthroughs; they need no
// transaction or state-machine enforcement.

func (m *LifecycleManager) GetNFT(ctx context.Context, id string) (*domain.NFT, error) {
	nft, err := m.repo.GetNFT(ctx, id)
	if err != nil {
		return nil, translateLifecycleErr(err)
	}
	return nft, nil
}

func (m *LifecycleManager) GetNFTsByWallet(ctx context.Context, wallet string) ([]*domain.NFT, error) {
	return m.repo.GetNFTsByWallet(ctx, wallet)
}

func (m *LifecycleManager) ListMarketplace(ctx context.Context, f domain.MarketplaceFilter) ([]*domain.NFT, int, error) {
	return m.repo.ListMarketplace(ctx, f)
}

func (m *LifecycleManager) GetActiveListing(ctx context.Context, nftID string) (*domain.Listing, error) {
	listing, err := m.repo.GetActiveListing(ctx, nftID)
	if err != nil {
		return nil, translateLifecycleErr(err)
	}
	return listing, nil
}

func (m *LifecycleManager) GetListingHistory(ctx context.Context, nftID string) ([]*domain.ListingHistory, error) {
	return m.repo.GetListingHistory(ctx, nftID)
}

// translateLifecycleErr maps the repository layer's sentinel errors
// onto the HTTP-facing *domain.Error kinds spec §7 names.
func translateLifecycleErr(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case domain.ErrNFTNotFound:
		return domain.NotFound("nft not found")
	case domain.ErrListingNotFound:
		return domain.NotFound("listing not found")
	case domain.ErrUserNotFound:
		return domain.NotFound("user not found")
	case domain.ErrAlreadyMinted:
		return domain.Conflict("nft already minted with a different sui object id")
	case domain.ErrActiveListingExists:
		return domain.Conflict("an active listing already exists for this nft")
	case domain.ErrNoActiveListing:
		return domain.Conflict("no active listing for this nft")
	case domain.ErrListingAlreadyDone:
		return domain.Conflict("listing already deleted")
	}

	var domErr *domain.Error
	if asDomainErr(err, &domErr) {
		return domErr
	}
	return domain.Internal(fmt.Sprintf("lifecycle operation failed: %v", err), err)
}

func asDomainErr(err error, target **domain.Error) bool {
	de, ok := err.(*domain.Error)
	if !ok {
		return false
	}
	*target = de
	return true
}
