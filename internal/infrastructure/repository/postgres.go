// Package repository implements domain.Repository against Postgres,
// following the teacher's wallet-service repository: a thin wrapper
// plus a tx-scoped type that the rest of the package's methods hang
// off of, serialized per-entity with pg_advisory_xact_lock.
package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/shared/postgres"
)

type Repository struct {
	db *postgres.Postgres
}

type txRepository struct {
	tx *sql.Tx
}

func NewRepository(db *postgres.Postgres) domain.Repository {
	return &Repository{db: db}
}

func (r *Repository) GetOrCreateUserByWallet(ctx context.Context, wallet string) (*domain.User, error) {
	const selectQ = `SELECT id, wallet, display_name, email, reputation, created_at FROM users WHERE wallet = $1`

	u, err := scanUser(r.db.GetClient().QueryRowContext(ctx, selectQ, wallet))
	if err == nil {
		return u, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get user by wallet: %w", err)
	}

	const insertQ = `
		INSERT INTO users (id, wallet, display_name, email, reputation, created_at)
		VALUES ($1, $2, '', '', 0, now())
		ON CONFLICT (wallet) DO UPDATE SET wallet = EXCLUDED.wallet
		RETURNING id, wallet, display_name, email, reputation, created_at`

	u, err = scanUser(r.db.GetClient().QueryRowContext(ctx, insertQ, uuid.New().String(), wallet))
	if err != nil {
		return nil, fmt.Errorf("create user by wallet: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Wallet, &u.DisplayName, &u.Email, &u.Reputation, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

const nftColumns = `id, user_id, wallet, title, description, category, price, image_url,
	sui_object_id, status, is_fraud, confidence_score, flag_type, reason, evidence_urls,
	analysis_details, is_listed, listing_price, listing_status, last_listed_at, embedding_vector, created_at`

func (r *Repository) CreateNFT(ctx context.Context, nft *domain.NFT) (*domain.NFT, error) {
	if nft.ID == "" {
		nft.ID = uuid.New().String()
	}

	evidenceURLs, err := json.Marshal(nft.EvidenceURLs)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence urls: %w", err)
	}
	var detailsJSON []byte
	if nft.AnalysisDetails != nil {
		detailsJSON, err = json.Marshal(nft.AnalysisDetails)
		if err != nil {
			return nil, fmt.Errorf("marshal analysis details: %w", err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO nfts (id, user_id, wallet, title, description, category, price, image_url,
			sui_object_id, status, is_fraud, confidence_score, flag_type, reason, evidence_urls,
			analysis_details, is_listed, listing_price, listing_status, last_listed_at, embedding_vector, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,now())
		RETURNING %s`, nftColumns)

	row := r.db.GetClient().QueryRowContext(ctx, query,
		nft.ID, nft.UserID, nft.Wallet, nft.Title, nft.Description, nft.Category, nft.Price, nft.ImageURL,
		nft.SuiObjectID, string(nft.Status), nft.IsFraud, nft.ConfidenceScore, int(nft.FlagType), nft.Reason,
		evidenceURLs, nullableJSON(detailsJSON), nft.IsListed, nft.ListingPrice, nft.ListingStatus, nft.LastListedAt,
		domain.EncodeEmbeddingVector(nft.EmbeddingVector),
	)

	out, err := scanNFT(row)
	if err != nil {
		return nil, fmt.Errorf("create nft: %w", err)
	}
	return out, nil
}

func (r *Repository) GetNFT(ctx context.Context, id string) (*domain.NFT, error) {
	query := fmt.Sprintf(`SELECT %s FROM nfts WHERE id = $1`, nftColumns)
	out, err := scanNFT(r.db.GetClient().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNFTNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get nft: %w", err)
	}
	return out, nil
}

func (r *Repository) GetNFTsByWallet(ctx context.Context, wallet string) ([]*domain.NFT, error) {
	query := fmt.Sprintf(`SELECT %s FROM nfts WHERE wallet = $1 ORDER BY created_at DESC`, nftColumns)
	rows, err := r.db.GetClient().QueryContext(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("get nfts by wallet: %w", err)
	}
	defer rows.Close()
	return scanNFTRows(rows)
}

func (r *Repository) ListMarketplace(ctx context.Context, f domain.MarketplaceFilter) ([]*domain.NFT, int, error) {
	where := []string{"is_listed = true"}
	args := []interface{}{}
	argIdx := 1

	if !f.IncludeFlagged {
		where = append(where, "is_fraud = false")
	}
	if !f.IncludePending {
		where = append(where, "status <> 'pending'")
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+f.Search+"%")
		argIdx++
	}
	if f.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, f.Category)
		argIdx++
	}
	if f.MinPrice != nil {
		where = append(where, fmt.Sprintf("price >= $%d", argIdx))
		args = append(args, *f.MinPrice)
		argIdx++
	}
	if f.MaxPrice != nil {
		where = append(where, fmt.Sprintf("price <= $%d", argIdx))
		args = append(args, *f.MaxPrice)
		argIdx++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM nfts WHERE %s`, whereClause)
	if err := r.db.GetClient().QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count marketplace: %w", err)
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(`SELECT %s FROM nfts WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		nftColumns, whereClause, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.GetClient().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list marketplace: %w", err)
	}
	defer rows.Close()

	items, err := scanNFTRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *Repository) GetActiveListing(ctx context.Context, nftID string) (*domain.Listing, error) {
	const q = `SELECT id, nft_id, seller_id, price, expires_at, status, tx_id, metadata, created_at, updated_at
		FROM listings WHERE nft_id = $1 AND status = 'active' ORDER BY created_at DESC LIMIT 1`
	out, err := scanListing(r.db.GetClient().QueryRowContext(ctx, q, nftID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNoActiveListing
	}
	if err != nil {
		return nil, fmt.Errorf("get active listing: %w", err)
	}
	return out, nil
}

func (r *Repository) GetListingHistory(ctx context.Context, nftID string) ([]*domain.ListingHistory, error) {
	const q = `SELECT id, listing_id, nft_id, action, old_price, new_price, seller_id, tx_id, created_at
		FROM listing_history WHERE nft_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.GetClient().QueryContext(ctx, q, nftID)
	if err != nil {
		return nil, fmt.Errorf("get listing history: %w", err)
	}
	defer rows.Close()

	var out []*domain.ListingHistory
	for rows.Next() {
		h, err := scanListingHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repository) Analytics(ctx context.Context, nftID string) (*domain.ListingAnalytics, error) {
	const q = `
		SELECT
			COUNT(*) FILTER (WHERE true) AS total_listings,
			COUNT(*) FILTER (WHERE status = 'sold') AS total_sold,
			COALESCE(AVG(price), 0) AS avg_price,
			COALESCE(MIN(price), 0) AS min_price,
			COALESCE(MAX(price), 0) AS max_price,
			COALESCE(AVG(EXTRACT(EPOCH FROM (COALESCE(updated_at, now()) - created_at)) / 3600.0), 0) AS avg_active_hours
		FROM listings WHERE nft_id = $1`

	var a domain.ListingAnalytics
	a.NFTID = nftID
	var totalListings, totalSold int
	err := r.db.GetClient().QueryRowContext(ctx, q, nftID).Scan(
		&totalListings, &totalSold, &a.AveragePrice, &a.MinPrice, &a.MaxPrice, &a.AverageActiveHours,
	)
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	a.TotalListings = totalListings
	a.TotalSold = totalSold
	if totalListings > 0 {
		a.SuccessRate = float64(totalSold) / float64(totalListings)
	}
	return &a, nil
}

// WithTx begins a transaction and takes an exclusive advisory lock
// scoped to nftID before handing the caller a TxRepository, serializing
// all lifecycle mutations on a single NFT (spec §5).
func (r *Repository) WithTx(ctx context.Context, nftID string, fn func(domain.TxRepository) error) error {
	if r.db == nil || r.db.GetClient() == nil {
		return fmt.Errorf("database operation unavailable: postgres client is nil")
	}

	tx, err := r.db.GetClient().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", hashString("nft_"+nftID)); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to acquire nft lock: %w", err)
	}

	txr := &txRepository{tx: tx}

	if err := fn(txr); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rollbackErr)
		}
		return err
	}

	return tx.Commit()
}

func (r *txRepository) GetNFTTx(ctx context.Context, id string) (*domain.NFT, error) {
	query := fmt.Sprintf(`SELECT %s FROM nfts WHERE id = $1 FOR UPDATE`, nftColumns)
	out, err := scanNFT(r.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNFTNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get nft tx: %w", err)
	}
	return out, nil
}

func (r *txRepository) ConfirmMintTx(ctx context.Context, id string, suiObjectID string) (*domain.NFT, error) {
	current, err := r.GetNFTTx(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SuiObjectID != nil && *current.SuiObjectID != suiObjectID {
		return nil, domain.ErrAlreadyMinted
	}

	query := fmt.Sprintf(`
		UPDATE nfts SET sui_object_id = $2, status = 'minted'
		WHERE id = $1
		RETURNING %s`, nftColumns)

	out, err := scanNFT(r.tx.QueryRowContext(ctx, query, id, suiObjectID))
	if err != nil {
		if postgres.IsUniqueViolation(err, "sui_object_id") {
			return nil, domain.ErrAlreadyMinted
		}
		return nil, fmt.Errorf("confirm mint tx: %w", err)
	}
	return out, nil
}

func (r *txRepository) GetActiveListingTx(ctx context.Context, nftID string) (*domain.Listing, error) {
	const q = `SELECT id, nft_id, seller_id, price, expires_at, status, tx_id, metadata, created_at, updated_at
		FROM listings WHERE nft_id = $1 AND status = 'active' ORDER BY created_at DESC LIMIT 1 FOR UPDATE`
	out, err := scanListing(r.tx.QueryRowContext(ctx, q, nftID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNoActiveListing
	}
	if err != nil {
		return nil, fmt.Errorf("get active listing tx: %w", err)
	}
	return out, nil
}

func (r *txRepository) CreateListingTx(ctx context.Context, l *domain.Listing) (*domain.Listing, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	metadata, err := json.Marshal(l.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal listing metadata: %w", err)
	}

	const q = `
		INSERT INTO listings (id, nft_id, seller_id, price, expires_at, status, tx_id, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING id, nft_id, seller_id, price, expires_at, status, tx_id, metadata, created_at, updated_at`

	out, err := scanListing(r.tx.QueryRowContext(ctx, q, l.ID, l.NFTID, l.SellerID, l.Price, l.ExpiresAt, string(l.Status), l.TxID, metadata))
	if err != nil {
		return nil, fmt.Errorf("create listing tx: %w", err)
	}
	return out, nil
}

func (r *txRepository) UpdateListingTx(ctx context.Context, listingID string, changes domain.ListingChanges) (*domain.Listing, error) {
	setParts := []string{"updated_at = now()"}
	args := []interface{}{}
	argIdx := 1

	if changes.Price != nil {
		setParts = append(setParts, fmt.Sprintf("price = $%d", argIdx))
		args = append(args, *changes.Price)
		argIdx++
	}
	if changes.ExpiresAt != nil {
		setParts = append(setParts, fmt.Sprintf("expires_at = $%d", argIdx))
		args = append(args, *changes.ExpiresAt)
		argIdx++
	}
	if changes.Metadata != nil {
		metadata, err := json.Marshal(changes.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal listing metadata: %w", err)
		}
		setParts = append(setParts, fmt.Sprintf("metadata = $%d", argIdx))
		args = append(args, metadata)
		argIdx++
	}

	args = append(args, listingID)
	query := fmt.Sprintf(`
		UPDATE listings SET %s WHERE id = $%d
		RETURNING id, nft_id, seller_id, price, expires_at, status, tx_id, metadata, created_at, updated_at`,
		strings.Join(setParts, ", "), argIdx)

	out, err := scanListing(r.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update listing tx: %w", err)
	}
	return out, nil
}

func (r *txRepository) SetListingStatusTx(ctx context.Context, listingID string, status domain.ListingStatus) (*domain.Listing, error) {
	const q = `
		UPDATE listings SET status = $2, updated_at = now() WHERE id = $1
		RETURNING id, nft_id, seller_id, price, expires_at, status, tx_id, metadata, created_at, updated_at`
	out, err := scanListing(r.tx.QueryRowContext(ctx, q, listingID, string(status)))
	if err == sql.ErrNoRows {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set listing status tx: %w", err)
	}
	return out, nil
}

func (r *txRepository) GetListingTx(ctx context.Context, listingID string) (*domain.Listing, error) {
	const q = `SELECT id, nft_id, seller_id, price, expires_at, status, tx_id, metadata, created_at, updated_at
		FROM listings WHERE id = $1 FOR UPDATE`
	out, err := scanListing(r.tx.QueryRowContext(ctx, q, listingID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing tx: %w", err)
	}
	return out, nil
}

func (r *txRepository) SetNFTListingStateTx(ctx context.Context, nftID string, isListed bool, price *float64, status *domain.ListingStatus, lastListedAt *time.Time) error {
	var statusStr *string
	if status != nil {
		s := string(*status)
		statusStr = &s
	}
	const q = `UPDATE nfts SET is_listed = $2, listing_price = $3, listing_status = $4, last_listed_at = $5 WHERE id = $1`
	if _, err := r.tx.ExecContext(ctx, q, nftID, isListed, price, statusStr, lastListedAt); err != nil {
		return fmt.Errorf("set nft listing state tx: %w", err)
	}
	return nil
}

func (r *txRepository) AppendHistoryTx(ctx context.Context, h *domain.ListingHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO listing_history (id, listing_id, nft_id, action, old_price, new_price, seller_id, tx_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())`
	_, err := r.tx.ExecContext(ctx, q, h.ID, h.ListingID, h.NFTID, string(h.Action), h.OldPrice, h.NewPrice, h.SellerID, h.TxID)
	if err != nil {
		return fmt.Errorf("append history tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNFT(row rowScanner) (*domain.NFT, error) {
	var n domain.NFT
	var status string
	var evidenceURLs []byte
	var analysisDetails []byte
	var listingStatus sql.NullString
	var embeddingVector []byte

	err := row.Scan(
		&n.ID, &n.UserID, &n.Wallet, &n.Title, &n.Description, &n.Category, &n.Price, &n.ImageURL,
		&n.SuiObjectID, &status, &n.IsFraud, &n.ConfidenceScore, &n.FlagType, &n.Reason, &evidenceURLs,
		&analysisDetails, &n.IsListed, &n.ListingPrice, &listingStatus, &n.LastListedAt, &embeddingVector, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Status = domain.NFTStatus(status)
	if len(evidenceURLs) > 0 {
		if err := json.Unmarshal(evidenceURLs, &n.EvidenceURLs); err != nil {
			return nil, fmt.Errorf("unmarshal evidence urls: %w", err)
		}
	}
	if len(analysisDetails) > 0 {
		var details domain.AnalysisDetails
		if err := json.Unmarshal(analysisDetails, &details); err != nil {
			return nil, fmt.Errorf("unmarshal analysis details: %w", err)
		}
		n.AnalysisDetails = &details
	}
	if listingStatus.Valid {
		ls := domain.ListingStatus(listingStatus.String)
		n.ListingStatus = &ls
	}
	if vec, err := domain.DecodeEmbeddingVector(embeddingVector); err != nil {
		return nil, fmt.Errorf("decode embedding vector: %w", err)
	} else {
		n.EmbeddingVector = vec
	}

	return &n, nil
}

func scanNFTRows(rows *sql.Rows) ([]*domain.NFT, error) {
	var out []*domain.NFT
	for rows.Next() {
		n, err := scanNFT(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nft: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanListing(row rowScanner) (*domain.Listing, error) {
	var l domain.Listing
	var status string
	var metadata []byte

	err := row.Scan(
		&l.ID, &l.NFTID, &l.SellerID, &l.Price, &l.ExpiresAt, &status, &l.TxID, &metadata, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Status = domain.ListingStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &l.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal listing metadata: %w", err)
		}
	}
	return &l, nil
}

func scanListingHistory(rows *sql.Rows) (*domain.ListingHistory, error) {
	var h domain.ListingHistory
	var action string
	err := rows.Scan(&h.ID, &h.ListingID, &h.NFTID, &action, &h.OldPrice, &h.NewPrice, &h.SellerID, &h.TxID, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	h.Action = domain.HistoryAction(action)
	return &h, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// hashString derives a 64-bit advisory-lock key from an arbitrary
// string via blake2b, replacing the teacher's fnv64a now that lock
// keys incorporate externally supplied NFT ids.
func hashString(s string) int64 {
	sum := blake2b.Sum256([]byte(s))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// HashString exposes the hashing helper for tests.
func HashString(s string) int64 { return hashString(s) }
