// Package similarity implements the Similarity Index (spec §4.3) as a
// Redis-backed k-NN store: one hash-like JSON blob per NFT id, an
// index set for enumeration, and in-process cosine similarity over the
// (intentionally small) working set spec §9 accepts as a v1 tradeoff.
package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/shared/redis"
)

const (
	indexSetKey  = "fraudguard:similarity:ids"
	entryKeyFmt  = "fraudguard:similarity:entry:%s"
)

// RedisIndex implements domain.SimilarityIndex on top of shared/redis.
type RedisIndex struct {
	client *redis.Redis
}

func NewRedisIndex(client *redis.Redis) *RedisIndex {
	return &RedisIndex{client: client}
}

type storedEntry struct {
	NFTID      string              `json:"nft_id"`
	Vector     []float32           `json:"vector"`
	Meta       domain.SimilarityMeta `json:"meta"`
	InsertedAt int64               `json:"inserted_at"`
}

func entryKey(nftID string) string {
	return fmt.Sprintf(entryKeyFmt, nftID)
}

// Upsert stores (or replaces) the vector+metadata for nftID and adds
// it to the enumeration set.
func (r *RedisIndex) Upsert(ctx context.Context, nftID string, vector []float32, meta domain.SimilarityMeta) error {
	if isZeroVector(vector) {
		return domain.InputInvalid("embedding vector must not be null or all-zero")
	}

	existing, err := r.Get(ctx, nftID)
	insertedAt := time.Now().UnixNano()
	if err == nil && existing != nil {
		insertedAt = existing.InsertedAt
	}

	entry := storedEntry{NFTID: nftID, Vector: vector, Meta: meta, InsertedAt: insertedAt}
	blob, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal similarity entry: %w", err)
	}

	if err := r.client.Set(ctx, entryKey(nftID), string(blob), 0); err != nil {
		return fmt.Errorf("store similarity entry: %w", err)
	}
	if err := r.client.SAdd(ctx, indexSetKey, nftID); err != nil {
		return fmt.Errorf("index similarity entry: %w", err)
	}
	return nil
}

// Get fetches the stored entry for nftID, or nil if absent.
func (r *RedisIndex) Get(ctx context.Context, nftID string) (*domain.SimilarityEntry, error) {
	raw, err := r.client.Get(ctx, entryKey(nftID))
	if err != nil {
		return nil, nil // redis.Get returns an error (redis.Nil) on miss; treat as not-found
	}
	var stored storedEntry
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode similarity entry: %w", err)
	}
	return &domain.SimilarityEntry{NFTID: stored.NFTID, Vector: stored.Vector, Meta: stored.Meta, InsertedAt: stored.InsertedAt}, nil
}

// Query scans every indexed vector, keeps the ones at or above
// threshold, and returns up to limit hits ordered by similarity
// descending (ties broken by most-recently-inserted first, per
// domain.SimilarityEntry's documented tie-break rule).
func (r *RedisIndex) Query(ctx context.Context, vector []float32, threshold float64, limit int) ([]domain.SimilarityHit, error) {
	ids, err := r.client.SMembers(ctx, indexSetKey)
	if err != nil {
		return nil, fmt.Errorf("list similarity ids: %w", err)
	}

	type scored struct {
		hit        domain.SimilarityHit
		insertedAt int64
	}
	candidates := make([]scored, 0, len(ids))

	for _, id := range ids {
		entry, err := r.Get(ctx, id)
		if err != nil || entry == nil {
			continue
		}
		sim := cosine(vector, entry.Vector)
		if sim < threshold {
			continue
		}
		candidates = append(candidates, scored{
			hit:        domain.SimilarityHit{NFTID: entry.NFTID, Similarity: sim, Meta: entry.Meta},
			insertedAt: entry.InsertedAt,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hit.Similarity != candidates[j].hit.Similarity {
			return candidates[i].hit.Similarity > candidates[j].hit.Similarity
		}
		return candidates[i].insertedAt > candidates[j].insertedAt
	})

	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	hits := make([]domain.SimilarityHit, limit)
	for i := 0; i < limit; i++ {
		hits[i] = candidates[i].hit
	}
	return hits, nil
}

// isZeroVector reports whether v is empty or every element is zero —
// spec §4.3 rejects both at upsert time.
func isZeroVector(v []float32) bool {
	if len(v) == 0 {
		return true
	}
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
