package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Marcusng88/FraudGuard/internal/domain"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetOrCreateUserByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	args := m.Called(ctx, wallet)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockRepository) CreateNFT(ctx context.Context, nft *domain.NFT) (*domain.NFT, error) {
	args := m.Called(ctx, nft)
	n, _ := args.Get(0).(*domain.NFT)
	return n, args.Error(1)
}

func (m *mockRepository) GetNFT(ctx context.Context, id string) (*domain.NFT, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(*domain.NFT)
	return n, args.Error(1)
}

func (m *mockRepository) GetNFTsByWallet(ctx context.Context, wallet string) ([]*domain.NFT, error) {
	args := m.Called(ctx, wallet)
	n, _ := args.Get(0).([]*domain.NFT)
	return n, args.Error(1)
}

func (m *mockRepository) ListMarketplace(ctx context.Context, f domain.MarketplaceFilter) ([]*domain.NFT, int, error) {
	args := m.Called(ctx, f)
	n, _ := args.Get(0).([]*domain.NFT)
	return n, args.Int(1), args.Error(2)
}

func (m *mockRepository) GetActiveListing(ctx context.Context, nftID string) (*domain.Listing, error) {
	args := m.Called(ctx, nftID)
	l, _ := args.Get(0).(*domain.Listing)
	return l, args.Error(1)
}

func (m *mockRepository) GetListingHistory(ctx context.Context, nftID string) ([]*domain.ListingHistory, error) {
	args := m.Called(ctx, nftID)
	h, _ := args.Get(0).([]*domain.ListingHistory)
	return h, args.Error(1)
}

func (m *mockRepository) Analytics(ctx context.Context, nftID string) (*domain.ListingAnalytics, error) {
	args := m.Called(ctx, nftID)
	a, _ := args.Get(0).(*domain.ListingAnalytics)
	return a, args.Error(1)
}

func (m *mockRepository) WithTx(ctx context.Context, nftID string, fn func(domain.TxRepository) error) error {
	args := m.Called(ctx, nftID, fn)
	if tx, ok := args.Get(0).(domain.TxRepository); ok && tx != nil {
		return fn(tx)
	}
	return args.Error(1)
}

type mockTxRepository struct {
	mock.Mock
}

func (m *mockTxRepository) GetNFTTx(ctx context.Context, id string) (*domain.NFT, error) {
	args := m.Called(ctx, id)
	n, _ := args.Get(0).(*domain.NFT)
	return n, args.Error(1)
}

func (m *mockTxRepository) ConfirmMintTx(ctx context.Context, id, suiObjectID string) (*domain.NFT, error) {
	args := m.Called(ctx, id, suiObjectID)
	n, _ := args.Get(0).(*domain.NFT)
	return n, args.Error(1)
}

func (m *mockTxRepository) GetActiveListingTx(ctx context.Context, nftID string) (*domain.Listing, error) {
	args := m.Called(ctx, nftID)
	l, _ := args.Get(0).(*domain.Listing)
	return l, args.Error(1)
}

func (m *mockTxRepository) CreateListingTx(ctx context.Context, l *domain.Listing) (*domain.Listing, error) {
	args := m.Called(ctx, l)
	out, _ := args.Get(0).(*domain.Listing)
	return out, args.Error(1)
}

func (m *mockTxRepository) UpdateListingTx(ctx context.Context, listingID string, changes domain.ListingChanges) (*domain.Listing, error) {
	args := m.Called(ctx, listingID, changes)
	out, _ := args.Get(0).(*domain.Listing)
	return out, args.Error(1)
}

func (m *mockTxRepository) SetListingStatusTx(ctx context.Context, listingID string, status domain.ListingStatus) (*domain.Listing, error) {
	args := m.Called(ctx, listingID, status)
	out, _ := args.Get(0).(*domain.Listing)
	return out, args.Error(1)
}

func (m *mockTxRepository) GetListingTx(ctx context.Context, listingID string) (*domain.Listing, error) {
	args := m.Called(ctx, listingID)
	out, _ := args.Get(0).(*domain.Listing)
	return out, args.Error(1)
}

func (m *mockTxRepository) SetNFTListingStateTx(ctx context.Context, nftID string, isListed bool, price *float64, status *domain.ListingStatus, lastListedAt *time.Time) error {
	args := m.Called(ctx, nftID, isListed, price, status, lastListedAt)
	return args.Error(0)
}

func (m *mockTxRepository) AppendHistoryTx(ctx context.Context, h *domain.ListingHistory) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

// List on a minted, unlisted NFT must create a listing, flip the NFT's
// listed state, and append exactly one history row (spec §4.4 list).
func TestLifecycleManager_List_Success(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	nft := &domain.NFT{ID: "nft-1", UserID: "user-1", Status: domain.NFTStatusMinted}

	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("GetNFTTx", mock.Anything, "nft-1").Return(nft, nil)
	tx.On("GetActiveListingTx", mock.Anything, "nft-1").Return((*domain.Listing)(nil), domain.ErrNoActiveListing)
	tx.On("CreateListingTx", mock.Anything, mock.AnythingOfType("*domain.Listing")).
		Return(&domain.Listing{ID: "listing-1", NFTID: "nft-1", Price: 2.5, Status: domain.ListingStatusActive}, nil)
	tx.On("SetNFTListingStateTx", mock.Anything, "nft-1", true, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	tx.On("AppendHistoryTx", mock.Anything, mock.AnythingOfType("*domain.ListingHistory")).Return(nil)

	mgr := NewLifecycleManager(repo, nil, nil)
	listing, err := mgr.List(context.Background(), "nft-1", 2.5, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "listing-1", listing.ID)
	tx.AssertExpectations(t)
}

// List must refuse to double-list an NFT that already has an active
// listing (spec §4.4, §8 boundary behavior).
func TestLifecycleManager_List_AlreadyActive(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	nft := &domain.NFT{ID: "nft-1", Status: domain.NFTStatusMinted}
	existing := &domain.Listing{ID: "listing-0", Status: domain.ListingStatusActive}

	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("GetNFTTx", mock.Anything, "nft-1").Return(nft, nil)
	tx.On("GetActiveListingTx", mock.Anything, "nft-1").Return(existing, nil)

	mgr := NewLifecycleManager(repo, nil, nil)
	_, err := mgr.List(context.Background(), "nft-1", 2.5, nil, nil)

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorConflict))
}

// List on an NFT still in pending status must be rejected before any
// listing row is created.
func TestLifecycleManager_List_NotMinted(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	nft := &domain.NFT{ID: "nft-1", Status: domain.NFTStatusPending}
	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("GetNFTTx", mock.Anything, "nft-1").Return(nft, nil)

	mgr := NewLifecycleManager(repo, nil, nil)
	_, err := mgr.List(context.Background(), "nft-1", 2.5, nil, nil)

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorConflict))
	tx.AssertNotCalled(t, "CreateListingTx", mock.Anything, mock.Anything)
}

// AutoRelist is a no-op error (Conflict) when the NFT is already listed,
// and otherwise behaves exactly like List (spec §4.4 auto_relist).
func TestLifecycleManager_AutoRelist_Conflict(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	nft := &domain.NFT{ID: "nft-1", Status: domain.NFTStatusMinted, IsListed: true}
	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("GetNFTTx", mock.Anything, "nft-1").Return(nft, nil)

	mgr := NewLifecycleManager(repo, nil, nil)
	_, err := mgr.AutoRelist(context.Background(), "nft-1", 3.0, nil, nil)

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorConflict))
}

// BulkList is best-effort: one id failing must not affect the others,
// and every outcome must be reported (spec §4.4 bulk_list, §8).
func TestLifecycleManager_BulkList_PartialFailure(t *testing.T) {
	repo := new(mockRepository)
	txOK := new(mockTxRepository)
	txBad := new(mockTxRepository)

	goodNFT := &domain.NFT{ID: "good", Status: domain.NFTStatusMinted}
	badNFT := &domain.NFT{ID: "bad", Status: domain.NFTStatusPending}

	repo.On("WithTx", mock.Anything, "good", mock.Anything).Return(txOK, nil)
	txOK.On("GetNFTTx", mock.Anything, "good").Return(goodNFT, nil)
	txOK.On("GetActiveListingTx", mock.Anything, "good").Return((*domain.Listing)(nil), domain.ErrNoActiveListing)
	txOK.On("CreateListingTx", mock.Anything, mock.AnythingOfType("*domain.Listing")).
		Return(&domain.Listing{ID: "listing-good", NFTID: "good"}, nil)
	txOK.On("SetNFTListingStateTx", mock.Anything, "good", true, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	txOK.On("AppendHistoryTx", mock.Anything, mock.AnythingOfType("*domain.ListingHistory")).Return(nil)

	repo.On("WithTx", mock.Anything, "bad", mock.Anything).Return(txBad, nil)
	txBad.On("GetNFTTx", mock.Anything, "bad").Return(badNFT, nil)

	mgr := NewLifecycleManager(repo, nil, nil)
	result := mgr.BulkList(context.Background(), []string{"good", "bad"}, 1.0, nil, nil)

	assert.Equal(t, []string{"good"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bad", result.Failed[0].NFTID)
}

// Unlist must deactivate the listing, flip the NFT back to unlisted,
// and append one "deleted" history row (spec §4.4 unlist, §8 round-trip law).
func TestLifecycleManager_Unlist_Success(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	nft := &domain.NFT{ID: "nft-1", UserID: "user-1"}
	listing := &domain.Listing{ID: "listing-1", NFTID: "nft-1", Price: 2.5, Status: domain.ListingStatusActive}

	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("GetNFTTx", mock.Anything, "nft-1").Return(nft, nil)
	tx.On("GetActiveListingTx", mock.Anything, "nft-1").Return(listing, nil)
	tx.On("SetListingStatusTx", mock.Anything, "listing-1", domain.ListingStatusInactive).Return(listing, nil)
	tx.On("SetNFTListingStateTx", mock.Anything, "nft-1", false, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	tx.On("AppendHistoryTx", mock.Anything, mock.MatchedBy(func(h *domain.ListingHistory) bool {
		return h.Action == domain.HistoryActionDeleted && h.ListingID == "listing-1"
	})).Return(nil)

	mgr := NewLifecycleManager(repo, nil, nil)
	err := mgr.Unlist(context.Background(), "nft-1")

	require.NoError(t, err)
	tx.AssertExpectations(t)
}

// Unlisting an NFT with no active listing is a Conflict (spec §7), the
// same family as list-when-listed and double-mint-with-different-id,
// not a NotFound.
func TestLifecycleManager_Unlist_NoActiveListing(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	nft := &domain.NFT{ID: "nft-1", UserID: "user-1"}

	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("GetNFTTx", mock.Anything, "nft-1").Return(nft, nil)
	tx.On("GetActiveListingTx", mock.Anything, "nft-1").Return((*domain.Listing)(nil), domain.ErrNoActiveListing)

	mgr := NewLifecycleManager(repo, nil, nil)
	err := mgr.Unlist(context.Background(), "nft-1")

	require.Error(t, err)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrorConflict, de.Type)
}

// ConfirmMint is idempotent: calling it twice with the same sui_object_id
// must not surface an error (spec §8 round-trip law); the repository
// layer (exercised separately in postgres_test.go) is what actually
// enforces same-id-is-a-no-op vs different-id-is-a-conflict.
func TestLifecycleManager_ConfirmMint_Idempotent(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	minted := &domain.NFT{ID: "nft-1", Status: domain.NFTStatusMinted}

	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil).Twice()
	tx.On("ConfirmMintTx", mock.Anything, "nft-1", "0xSUI1").Return(minted, nil).Twice()

	mgr := NewLifecycleManager(repo, nil, nil)
	first, err := mgr.ConfirmMint(context.Background(), "nft-1", "0xSUI1")
	require.NoError(t, err)
	second, err := mgr.ConfirmMint(context.Background(), "nft-1", "0xSUI1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// A mismatched sui_object_id on an already-minted NFT must fail with
// the domain's already-minted sentinel, not silently overwrite it.
func TestLifecycleManager_ConfirmMint_Conflict(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("ConfirmMintTx", mock.Anything, "nft-1", "0xOTHER").Return((*domain.NFT)(nil), domain.ErrAlreadyMinted)

	mgr := NewLifecycleManager(repo, nil, nil)
	_, err := mgr.ConfirmMint(context.Background(), "nft-1", "0xOTHER")

	require.Error(t, err)
}

type mockBackgroundQueue struct {
	mock.Mock
}

func (m *mockBackgroundQueue) PublishEmbeddingPersist(ctx context.Context, job domain.EmbeddingPersistJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockBackgroundQueue) PublishSyncNotify(ctx context.Context, job domain.SyncNotifyJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockBackgroundQueue) PublishAutoRelist(ctx context.Context, job domain.AutoRelistJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// A successful ConfirmMint publishes a sync-notify job carrying the
// confirmed sui_object_id after a successful mint confirmation.
func TestLifecycleManager_ConfirmMint_PublishesSyncNotify(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)
	queue := new(mockBackgroundQueue)

	minted := &domain.NFT{ID: "nft-1", Status: domain.NFTStatusMinted}

	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("ConfirmMintTx", mock.Anything, "nft-1", "0xSUI1").Return(minted, nil)

	published := make(chan struct{})
	queue.On("PublishSyncNotify", mock.Anything, domain.SyncNotifyJob{NFTID: "nft-1", SuiObjectID: "0xSUI1"}).
		Run(func(args mock.Arguments) { close(published) }).
		Return(nil)

	mgr := NewLifecycleManager(repo, queue, nil)
	_, err := mgr.ConfirmMint(context.Background(), "nft-1", "0xSUI1")
	require.NoError(t, err)

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("PublishSyncNotify was not called")
	}
}

// UpdateListing must append a history row even when changes carry no
// field updates, per the idempotence law in spec §8.
func TestLifecycleManager_UpdateListing_EmptyChangesStillRecordsHistory(t *testing.T) {
	repo := new(mockRepository)
	tx := new(mockTxRepository)

	nft := &domain.NFT{ID: "nft-1", UserID: "user-1"}
	listing := &domain.Listing{ID: "listing-1", NFTID: "nft-1", Price: 1.5, Status: domain.ListingStatusActive}

	repo.On("WithTx", mock.Anything, "nft-1", mock.Anything).Return(tx, nil)
	tx.On("GetNFTTx", mock.Anything, "nft-1").Return(nft, nil)
	tx.On("GetActiveListingTx", mock.Anything, "nft-1").Return(listing, nil)
	tx.On("UpdateListingTx", mock.Anything, "listing-1", domain.ListingChanges{}).Return(listing, nil)
	tx.On("AppendHistoryTx", mock.Anything, mock.AnythingOfType("*domain.ListingHistory")).Return(nil)

	mgr := NewLifecycleManager(repo, nil, nil)
	_, err := mgr.UpdateListing(context.Background(), "nft-1", domain.ListingChanges{})

	require.NoError(t, err)
	tx.AssertCalled(t, "AppendHistoryTx", mock.Anything, mock.AnythingOfType("*domain.ListingHistory"))
}
