package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/internal/service"
)

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

// fakeRepo is an in-memory domain.Repository/domain.TxRepository,
// good enough to drive the handler layer end to end through a real
// service.LifecycleManager instance rather than mocking the service
// layer itself. The handlers under test get no Scheduler.
type fakeRepo struct {
	mu    sync.Mutex
	nfts  map[string]*domain.NFT
	users map[string]*domain.User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nfts: map[string]*domain.NFT{}, users: map[string]*domain.User{}}
}

func (r *fakeRepo) GetOrCreateUserByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[wallet]; ok {
		return u, nil
	}
	u := &domain.User{ID: "user-" + wallet, Wallet: wallet}
	r.users[wallet] = u
	return u, nil
}

func (r *fakeRepo) CreateNFT(ctx context.Context, nft *domain.NFT) (*domain.NFT, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if nft.ID == "" {
		nft.ID = "nft-generated"
	}
	cp := *nft
	r.nfts[cp.ID] = &cp
	return &cp, nil
}

func (r *fakeRepo) GetNFT(ctx context.Context, id string) (*domain.NFT, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nfts[id]
	if !ok {
		return nil, domain.ErrNFTNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *fakeRepo) GetNFTsByWallet(ctx context.Context, wallet string) ([]*domain.NFT, error) {
	return nil, nil
}

func (r *fakeRepo) ListMarketplace(ctx context.Context, f domain.MarketplaceFilter) ([]*domain.NFT, int, error) {
	return nil, 0, nil
}

func (r *fakeRepo) GetActiveListing(ctx context.Context, nftID string) (*domain.Listing, error) {
	return nil, domain.ErrNoActiveListing
}

func (r *fakeRepo) GetListingHistory(ctx context.Context, nftID string) ([]*domain.ListingHistory, error) {
	return nil, nil
}

func (r *fakeRepo) Analytics(ctx context.Context, nftID string) (*domain.ListingAnalytics, error) {
	return &domain.ListingAnalytics{NFTID: nftID}, nil
}

func (r *fakeRepo) WithTx(ctx context.Context, nftID string, fn func(domain.TxRepository) error) error {
	return fn(&fakeTx{repo: r, nftID: nftID})
}

type fakeTx struct {
	repo  *fakeRepo
	nftID string
}

func (t *fakeTx) GetNFTTx(ctx context.Context, id string) (*domain.NFT, error) {
	return t.repo.GetNFT(ctx, id)
}

func (t *fakeTx) ConfirmMintTx(ctx context.Context, id, suiObjectID string) (*domain.NFT, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	n, ok := t.repo.nfts[id]
	if !ok {
		return nil, domain.ErrNFTNotFound
	}
	if n.SuiObjectID != nil && *n.SuiObjectID != suiObjectID {
		return nil, domain.ErrAlreadyMinted
	}
	n.SuiObjectID = &suiObjectID
	n.Status = domain.NFTStatusMinted
	cp := *n
	return &cp, nil
}

func (t *fakeTx) GetActiveListingTx(ctx context.Context, nftID string) (*domain.Listing, error) {
	return nil, domain.ErrNoActiveListing
}

func (t *fakeTx) CreateListingTx(ctx context.Context, l *domain.Listing) (*domain.Listing, error) {
	return l, nil
}

func (t *fakeTx) UpdateListingTx(ctx context.Context, listingID string, changes domain.ListingChanges) (*domain.Listing, error) {
	return &domain.Listing{ID: listingID}, nil
}

func (t *fakeTx) SetListingStatusTx(ctx context.Context, listingID string, status domain.ListingStatus) (*domain.Listing, error) {
	return &domain.Listing{ID: listingID, Status: status}, nil
}

func (t *fakeTx) GetListingTx(ctx context.Context, listingID string) (*domain.Listing, error) {
	return &domain.Listing{ID: listingID}, nil
}

func (t *fakeTx) SetNFTListingStateTx(ctx context.Context, nftID string, isListed bool, price *float64, status *domain.ListingStatus, lastListedAt *time.Time) error {
	return nil
}

func (t *fakeTx) AppendHistoryTx(ctx context.Context, h *domain.ListingHistory) error {
	return nil
}

type fakeSimilarityIndex struct{}

func (fakeSimilarityIndex) Upsert(ctx context.Context, nftID string, vector []float32, meta domain.SimilarityMeta) error {
	return nil
}

func (fakeSimilarityIndex) Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]domain.SimilarityHit, error) {
	return nil, nil
}

func (fakeSimilarityIndex) Get(ctx context.Context, nftID string) (*domain.SimilarityEntry, error) {
	return nil, nil
}

func newTestHandlers(repo domain.Repository) *Handlers {
	lifecycle := service.NewLifecycleManager(repo, nil, nil)
	return NewHandlers(nil, lifecycle, fakeSimilarityIndex{}, nil)
}

// ConfirmMint reads sui_object_id from the query string, per spec §6's
// "PUT /api/nft/{id}/confirm-mint (query sui_object_id)" — a JSON body
// is neither required nor read.
func TestConfirmMint_ReadsQueryParam(t *testing.T) {
	repo := newFakeRepo()
	repo.nfts["nft-1"] = &domain.NFT{ID: "nft-1", Status: domain.NFTStatusPending}
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodPut, "/api/nft/nft-1/confirm-mint?sui_object_id=0xSUI1", nil)
	req.SetPathValue("id", "nft-1")
	rec := httptest.NewRecorder()

	h.ConfirmMint(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp nftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0xSUI1", *resp.SuiObjectID)
	assert.Equal(t, "minted", resp.Status)
}

// A missing sui_object_id query parameter is rejected before the
// lifecycle manager is even consulted.
func TestConfirmMint_MissingQueryParam(t *testing.T) {
	repo := newFakeRepo()
	repo.nfts["nft-1"] = &domain.NFT{ID: "nft-1", Status: domain.NFTStatusPending}
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodPut, "/api/nft/nft-1/confirm-mint", nil)
	req.SetPathValue("id", "nft-1")
	rec := httptest.NewRecorder()

	h.ConfirmMint(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.ErrorInputInvalid), resp.Error)
}

// A body-only request (the old, spec-noncompliant shape) is no longer
// honored: without the query param it 400s even though sui_object_id
// is present in the JSON body.
func TestConfirmMint_IgnoresJSONBody(t *testing.T) {
	repo := newFakeRepo()
	repo.nfts["nft-1"] = &domain.NFT{ID: "nft-1", Status: domain.NFTStatusPending}
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodPut, "/api/nft/nft-1/confirm-mint",
		jsonBody(t, map[string]string{"sui_object_id": "0xSUI1"}))
	req.SetPathValue("id", "nft-1")
	rec := httptest.NewRecorder()

	h.ConfirmMint(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// GetNFT surfaces a NotFound envelope for an unknown id.
func TestGetNFT_NotFound(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/nft/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	h.GetNFT(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.ErrorNotFound), resp.Error)
}

// GetNFT round-trips a known NFT into the wire shape.
func TestGetNFT_Found(t *testing.T) {
	repo := newFakeRepo()
	repo.nfts["nft-1"] = &domain.NFT{ID: "nft-1", Title: "Art", Status: domain.NFTStatusPending}
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/nft/nft-1", nil)
	req.SetPathValue("id", "nft-1")
	rec := httptest.NewRecorder()

	h.GetNFT(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp nftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Art", resp.Title)
}

// Unlist on an NFT with no active listing surfaces a Conflict
// envelope, not NotFound (spec §7).
func TestUnlist_NoActiveListing(t *testing.T) {
	repo := newFakeRepo()
	repo.nfts["nft-1"] = &domain.NFT{ID: "nft-1"}
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodPut, "/api/nft/nft-1/unlist", nil)
	req.SetPathValue("id", "nft-1")
	rec := httptest.NewRecorder()

	h.Unlist(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.ErrorConflict), resp.Error)
}

func TestHealthz(t *testing.T) {
	h := newTestHandlers(newFakeRepo())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.Healthz(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
