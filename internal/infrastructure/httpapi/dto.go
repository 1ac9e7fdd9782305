package httpapi

import (
	"time"

	"github.com/Marcusng88/FraudGuard/internal/domain"
)

// createNFTRequest is the JSON body for POST /api/nft/create (spec §6).
type createNFTRequest struct {
	Wallet      string  `json:"wallet"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
}

// listRequest is the JSON body for PUT /api/nft/{id}/list.
type listRequest struct {
	Price     float64        `json:"price"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// updateListingRequest is the JSON body for PUT /api/nft/{id}/update-listing.
type updateListingRequest struct {
	Price     *float64       `json:"price,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// bulkListRequest is the JSON body for POST /api/nft/bulk-list.
type bulkListRequest struct {
	NFTIDs    []string       `json:"nft_ids"`
	Price     float64        `json:"price"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// errorResponse is the structured failure body spec §7 requires: no
// stack traces, no secrets.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// nftResponse is the wire shape for an NFT (spec §6 NFT detail/analysis
// endpoints); domain.NFT itself carries no json tags since it is a
// business entity, not a wire format.
type nftResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Wallet          string     `json:"wallet"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Price           float64    `json:"price"`
	ImageURL        string     `json:"image_url"`
	SuiObjectID     *string    `json:"sui_object_id,omitempty"`
	Status          string     `json:"status"`
	IsFraud         bool       `json:"is_fraud"`
	ConfidenceScore float64    `json:"confidence_score"`
	FlagType        *int       `json:"flag_type"`
	Reason          string     `json:"reason"`
	EvidenceURLs    []string   `json:"evidence_urls"`
	IsListed        bool       `json:"is_listed"`
	ListingPrice    *float64   `json:"listing_price,omitempty"`
	ListingStatus   *string    `json:"listing_status,omitempty"`
	LastListedAt    *time.Time `json:"last_listed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toNFTResponse(n *domain.NFT) nftResponse {
	var flagType *int
	if n.FlagType != domain.FlagNone {
		v := int(n.FlagType)
		flagType = &v
	}
	var listingStatus *string
	if n.ListingStatus != nil {
		v := string(*n.ListingStatus)
		listingStatus = &v
	}
	return nftResponse{
		ID:              n.ID,
		UserID:          n.UserID,
		Wallet:          n.Wallet,
		Title:           n.Title,
		Description:     n.Description,
		Category:        n.Category,
		Price:           n.Price,
		ImageURL:        n.ImageURL,
		SuiObjectID:     n.SuiObjectID,
		Status:          string(n.Status),
		IsFraud:         n.IsFraud,
		ConfidenceScore: n.ConfidenceScore,
		FlagType:        flagType,
		Reason:          n.Reason,
		EvidenceURLs:    n.EvidenceURLs,
		IsListed:        n.IsListed,
		ListingPrice:    n.ListingPrice,
		ListingStatus:   listingStatus,
		LastListedAt:    n.LastListedAt,
		CreatedAt:       n.CreatedAt,
	}
}

func toNFTResponses(nfts []*domain.NFT) []nftResponse {
	out := make([]nftResponse, 0, len(nfts))
	for _, n := range nfts {
		out = append(out, toNFTResponse(n))
	}
	return out
}

// listingResponse is the wire shape for a Listing.
type listingResponse struct {
	ID        string         `json:"id"`
	NFTID     string         `json:"nft_id"`
	SellerID  string         `json:"seller_id"`
	Price     float64        `json:"price"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Status    string         `json:"status"`
	TxID      *string        `json:"tx_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toListingResponse(l *domain.Listing) listingResponse {
	return listingResponse{
		ID:        l.ID,
		NFTID:     l.NFTID,
		SellerID:  l.SellerID,
		Price:     l.Price,
		ExpiresAt: l.ExpiresAt,
		Status:    string(l.Status),
		TxID:      l.TxID,
		Metadata:  l.Metadata,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// historyResponse is the wire shape for one ListingHistory row.
type historyResponse struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	NFTID     string    `json:"nft_id"`
	Action    string    `json:"action"`
	OldPrice  *float64  `json:"old_price,omitempty"`
	NewPrice  *float64  `json:"new_price,omitempty"`
	SellerID  string    `json:"seller_id"`
	TxID      *string   `json:"tx_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toHistoryResponses(hs []*domain.ListingHistory) []historyResponse {
	out := make([]historyResponse, 0, len(hs))
	for _, h := range hs {
		out = append(out, historyResponse{
			ID:        h.ID,
			ListingID: h.ListingID,
			NFTID:     h.NFTID,
			Action:    string(h.Action),
			OldPrice:  h.OldPrice,
			NewPrice:  h.NewPrice,
			SellerID:  h.SellerID,
			TxID:      h.TxID,
			CreatedAt: h.CreatedAt,
		})
	}
	return out
}

// similarHitResponse is one k-NN hit for GET /api/nft/{id}/similar.
type similarHitResponse struct {
	NFTID      string  `json:"nft_id"`
	Similarity float64 `json:"similarity"`
	ImageURL   string  `json:"image_url"`
}

// marketplaceResponse wraps a page of NFTs with pagination metadata.
type marketplaceResponse struct {
	NFTs  []nftResponse `json:"nfts"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// bulkListResponse is the wire shape for POST /api/nft/bulk-list.
type bulkListResponse struct {
	Succeeded []string                  `json:"succeeded"`
	Failed    []domain.BulkListFailure  `json:"failed"`
}
