package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/internal/service"
	"github.com/Marcusng88/FraudGuard/shared/logging"
)

// Handlers holds the two service-layer entry points every endpoint in
// spec §6 is built against: the scheduler for the synchronous create
// path, the lifecycle manager for everything else.
type Handlers struct {
	scheduler  *service.Scheduler
	lifecycle  *service.LifecycleManager
	similarity domain.SimilarityIndex
	log        *logging.Logger
}

func NewHandlers(scheduler *service.Scheduler, lifecycle *service.LifecycleManager, similarity domain.SimilarityIndex, log *logging.Logger) *Handlers {
	return &Handlers{scheduler: scheduler, lifecycle: lifecycle, similarity: similarity, log: log}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError translates a service-layer error into the envelope spec
// §7 defines; anything not already a *domain.Error is treated as Internal.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.Internal("unexpected failure", err)
	}
	if h.log != nil && de.Type == domain.ErrorInternal {
		h.log.WithError(err).Error("request failed")
	}
	h.writeJSON(w, de.HTTPStatus(), errorResponse{
		Error:   string(de.Type),
		Message: de.Message,
		Detail:  de.Detail,
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, domain.InputInvalid("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// CreateNFT handles POST /api/nft/create.
func (h *Handlers) CreateNFT(w http.ResponseWriter, r *http.Request) {
	var req createNFTRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Wallet == "" || req.Title == "" || req.ImageURL == "" {
		h.writeError(w, domain.InputInvalid("wallet, title, and image_url are required"))
		return
	}

	nft, err := h.scheduler.CreateNFT(r.Context(), service.CreateRequest{
		Wallet:      req.Wallet,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toNFTResponse(nft))
}

// ConfirmMint handles PUT /api/nft/{id}/confirm-mint (query sui_object_id).
func (h *Handlers) ConfirmMint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	suiObjectID := r.URL.Query().Get("sui_object_id")
	if suiObjectID == "" {
		h.writeError(w, domain.InputInvalid("sui_object_id is required"))
		return
	}
	nft, err := h.lifecycle.ConfirmMint(r.Context(), id, suiObjectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toNFTResponse(nft))
}

// List handles PUT /api/nft/{id}/list.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req listRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price <= 0 {
		h.writeError(w, domain.InputInvalid("price must be positive"))
		return
	}
	listing, err := h.lifecycle.List(r.Context(), id, req.Price, req.ExpiresAt, req.Metadata)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// Unlist handles PUT /api/nft/{id}/unlist.
func (h *Handlers) Unlist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.lifecycle.Unlist(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "unlisted"})
}

// UpdateListing handles PUT /api/nft/{id}/update-listing.
func (h *Handlers) UpdateListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateListingRequest
	if !h.decode(w, r, &req) {
		return
	}
	listing, err := h.lifecycle.UpdateListing(r.Context(), id, domain.ListingChanges{
		Price:     req.Price,
		ExpiresAt: req.ExpiresAt,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// BulkList handles POST /api/nft/bulk-list.
func (h *Handlers) BulkList(w http.ResponseWriter, r *http.Request) {
	var req bulkListRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.NFTIDs) == 0 {
		h.writeError(w, domain.InputInvalid("nft_ids must not be empty"))
		return
	}
	if req.Price <= 0 {
		h.writeError(w, domain.InputInvalid("price must be positive"))
		return
	}
	result := h.lifecycle.BulkList(r.Context(), req.NFTIDs, req.Price, req.ExpiresAt, req.Metadata)
	h.writeJSON(w, http.StatusOK, bulkListResponse{Succeeded: result.Succeeded, Failed: result.Failed})
}

// AutoRelist handles POST /api/nft/{id}/auto-relist.
func (h *Handlers) AutoRelist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req listRequest
	if !h.decode(w, r, &req) {
		return
	}
	listing, err := h.lifecycle.AutoRelist(r.Context(), id, req.Price, req.ExpiresAt, req.Metadata)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// GetNFT handles GET /api/nft/{id}.
func (h *Handlers) GetNFT(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	nft, err := h.lifecycle.GetNFT(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toNFTResponse(nft))
}

// GetAnalysis handles GET /api/nft/{id}/analysis.
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	nft, err := h.lifecycle.GetNFT(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if nft.AnalysisDetails == nil {
		h.writeError(w, domain.NotFound("no analysis recorded for this nft"))
		return
	}
	h.writeJSON(w, http.StatusOK, nft.AnalysisDetails)
}

// GetSimilar handles GET /api/nft/{id}/similar?limit=.
func (h *Handlers) GetSimilar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	if _, err := h.lifecycle.GetNFT(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	// The query vector is read from the similarity index, where the
	// scheduler upserted it; the Postgres embedding_vector copy is not
	// consulted here.
	entry, err := h.similarity.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, domain.Internal("similarity lookup failed", err))
		return
	}
	if entry == nil || len(entry.Vector) == 0 {
		h.writeJSON(w, http.StatusOK, []similarHitResponse{})
		return
	}

	hits, err := h.similarity.Query(r.Context(), entry.Vector, 0, limit+1)
	if err != nil {
		h.writeError(w, domain.Internal("similarity query failed", err))
		return
	}
	out := make([]similarHitResponse, 0, len(hits))
	for _, hit := range hits {
		if hit.NFTID == id {
			continue
		}
		out = append(out, similarHitResponse{NFTID: hit.NFTID, Similarity: hit.Similarity, ImageURL: hit.Meta.ImageURL})
		if len(out) >= limit {
			break
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

// GetListingAnalytics handles GET /api/nft/{id}/listing-analytics.
func (h *Handlers) GetListingAnalytics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stats, err := h.lifecycle.Analytics(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// GetListingHistory handles GET /api/nft/{id}/listing-history.
func (h *Handlers) GetListingHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	history, err := h.lifecycle.GetListingHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toHistoryResponses(history))
}

// GetByWallet handles GET /api/nft/user/{wallet}.
func (h *Handlers) GetByWallet(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	nfts, err := h.lifecycle.GetNFTsByWallet(r.Context(), wallet)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toNFTResponses(nfts))
}

// ListMarketplace handles GET /api/marketplace/nfts.
func (h *Handlers) ListMarketplace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.MarketplaceFilter{
		Search:         q.Get("search"),
		Category:       q.Get("category"),
		IncludeFlagged: q.Get("include_flagged") == "true",
		IncludePending: q.Get("include_pending") == "true",
		Page:           1,
		Limit:          20,
	}
	if v := q.Get("min_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinPrice = &f
		}
	}
	if v := q.Get("max_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxPrice = &f
		}
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			filter.Page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 100 {
			filter.Limit = n
		}
	}

	nfts, total, err := h.lifecycle.ListMarketplace(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, marketplaceResponse{
		NFTs:  toNFTResponses(nfts),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

// Healthz is a liveness probe, independent of the spec §6 table but
// required by any deployable HTTP service (teacher's own pattern).
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
