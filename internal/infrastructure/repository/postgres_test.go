package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/shared/postgres"
)

func newTestRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Repository{db: postgres.NewPostgresWithDB(db)}, mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "wallet", "display_name", "email", "reputation", "created_at"})
}

// GetOrCreateUserByWallet returns the existing row without attempting
// an insert when the wallet is already known.
func TestGetOrCreateUserByWallet_Existing(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, wallet, display_name, email, reputation, created_at FROM users WHERE wallet = \$1`).
		WithArgs("0xabc").
		WillReturnRows(userRows().AddRow("user-1", "0xabc", "", "", 0.0, now))

	u, err := repo.GetOrCreateUserByWallet(context.Background(), "0xabc")

	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A wallet with no existing row falls through to the upsert insert.
func TestGetOrCreateUserByWallet_CreatesNew(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, wallet, display_name, email, reputation, created_at FROM users WHERE wallet = \$1`).
		WithArgs("0xnew").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(userRows().AddRow("user-2", "0xnew", "", "", 0.0, now))

	u, err := repo.GetOrCreateUserByWallet(context.Background(), "0xnew")

	require.NoError(t, err)
	assert.Equal(t, "user-2", u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func nftRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "wallet", "title", "description", "category", "price", "image_url",
		"sui_object_id", "status", "is_fraud", "confidence_score", "flag_type", "reason", "evidence_urls",
		"analysis_details", "is_listed", "listing_price", "listing_status", "last_listed_at", "embedding_vector", "created_at",
	})
}

// GetNFT translates sql.ErrNoRows into the domain-level not-found
// sentinel rather than leaking the driver error.
func TestGetNFT_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(`FROM nfts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetNFT(context.Background(), "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNFTNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// GetNFT scans a found row into a fully populated domain.NFT,
// including the JSON evidence_urls column.
func TestGetNFT_Found(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now()

	mock.ExpectQuery(`FROM nfts WHERE id = \$1`).
		WithArgs("nft-1").
		WillReturnRows(nftRows().AddRow(
			"nft-1", "user-1", "0xabc", "Title", "Desc", "art", 1.0, "https://x/img.png",
			nil, "pending", false, 0.0, 0, "", []byte(`["https://a.png"]`),
			nil, false, nil, nil, nil, nil, now,
		))

	nft, err := repo.GetNFT(context.Background(), "nft-1")

	require.NoError(t, err)
	assert.Equal(t, domain.NFTStatusPending, nft.Status)
	assert.Equal(t, []string{"https://a.png"}, nft.EvidenceURLs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// GetNFT round-trips a persisted embedding vector through the
// length-prefixed float32 bytea encoding.
func TestGetNFT_DecodesEmbeddingVector(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now()
	vec := []float32{0.25, -0.5, 1.5}

	mock.ExpectQuery(`FROM nfts WHERE id = \$1`).
		WithArgs("nft-1").
		WillReturnRows(nftRows().AddRow(
			"nft-1", "user-1", "0xabc", "Title", "Desc", "art", 1.0, "https://x/img.png",
			nil, "pending", false, 0.0, 0, "", []byte(`[]`),
			nil, false, nil, nil, nil, domain.EncodeEmbeddingVector(vec), now,
		))

	nft, err := repo.GetNFT(context.Background(), "nft-1")

	require.NoError(t, err)
	assert.Equal(t, vec, nft.EmbeddingVector)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ConfirmMintTx maps a unique-constraint violation on sui_object_id to
// the domain's already-minted sentinel (spec §4.4 mint confirmation).
func TestConfirmMintTx_UniqueViolationMapsToAlreadyMinted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM nfts WHERE id = \$1 FOR UPDATE`).
		WithArgs("nft-1").
		WillReturnRows(nftRows().AddRow(
			"nft-1", "user-1", "0xabc", "Title", "Desc", "art", 1.0, "https://x/img.png",
			nil, "pending", false, 0.0, 0, "", []byte(`[]`),
			nil, false, nil, nil, nil, nil, time.Now(),
		))
	mock.ExpectQuery(`UPDATE nfts SET sui_object_id`).
		WithArgs("nft-1", "0xdup").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "nfts_sui_object_id_key", Detail: "Key (sui_object_id)=(0xdup) already exists."})
	mock.ExpectRollback()

	repo := &Repository{db: postgres.NewPostgresWithDB(db)}

	var confirmErr error
	err = repo.WithTx(context.Background(), "nft-1", func(tx domain.TxRepository) error {
		_, confirmErr = tx.ConfirmMintTx(context.Background(), "nft-1", "0xdup")
		return confirmErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, confirmErr, domain.ErrAlreadyMinted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// hashString is deterministic: the same input always yields the same
// advisory-lock key, which is what gives per-NFT serialization its
// point (spec §5).
func TestHashString_Deterministic(t *testing.T) {
	a := HashString("nft_123")
	b := HashString("nft_123")
	c := HashString("nft_456")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
