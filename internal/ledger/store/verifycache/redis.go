// Package verifycache caches verification views of tokens that reached a
// stored terminal status. Consumed and revoked records can never transition
// again, so high-volume verify traffic for them is absorbed here instead of
// the ledger store. The stored nonce is kept only as a SHA-256 so the cache
// never holds presentable token material.
package verifycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"attesto/internal/ledger/models"
	id "attesto/pkg/domain"
)

var lookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "attesto_verify_cache_lookup_duration_ms",
	Help:    "Latency of verification cache lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// Redis key prefix for cached terminal verification views
	terminalKeyPrefix = "vfy:tok:"

	// DefaultTTL bounds cache residency. Terminal statuses never change, so
	// the TTL only controls memory, not correctness.
	DefaultTTL = time.Hour
)

// cachedRecord is the stored projection of a terminal token.
type cachedRecord struct {
	DocHash    string    `json:"doc_hash"`
	Issuer     string    `json:"issuer"`
	RecordType string    `json:"record_type"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
	NonceHash  string    `json:"nonce_sha256"`
}

// Redis is a Redis-backed verification cache for distributed deployments
// where multiple ledger instances serve verify traffic.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a Redis cache instance.
type RedisOption func(*Redis)

// WithTTL overrides the cache residency bound. Non-positive values are
// ignored.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *Redis) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewRedis constructs a Redis-backed verification cache. The client lifecycle
// is managed externally.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	c := &Redis{
		client: client,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func hashNonce(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(sum[:])
}

// Put caches the record's verification view. Records that are not in a stored
// terminal status are skipped: an Active record can still transition and must
// always be read from the ledger.
func (c *Redis) Put(ctx context.Context, record *models.TokenRecord) error {
	if record == nil || !record.Status.Terminal() {
		return nil
	}

	raw, err := json.Marshal(cachedRecord{
		DocHash:    record.DocHash.String(),
		Issuer:     record.Issuer.String(),
		RecordType: record.RecordType.String(),
		Status:     record.Status.String(),
		ExpiresAt:  record.ExpiresAt,
		NonceHash:  hashNonce(record.Nonce),
	})
	if err != nil {
		return fmt.Errorf("encode cached token: %w", err)
	}

	key := terminalKeyPrefix + record.ID.String()
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Get returns the cached verification view for the token, comparing the
// presented nonce against the stored hash. A miss returns ok=false with no
// error.
func (c *Redis) Get(ctx context.Context, tokenID id.TokenID, presentedNonce string) (models.VerificationView, bool, error) {
	start := time.Now()
	defer func() {
		lookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	key := terminalKeyPrefix + tokenID.String()
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.VerificationView{}, false, nil
	}
	if err != nil {
		return models.VerificationView{}, false, err
	}

	var cached cachedRecord
	if err := json.Unmarshal(raw, &cached); err != nil {
		return models.VerificationView{}, false, fmt.Errorf("decode cached token: %w", err)
	}

	docHash, err := id.ParseDigest(cached.DocHash)
	if err != nil {
		return models.VerificationView{}, false, fmt.Errorf("cached doc hash invalid: %w", err)
	}

	return models.VerificationView{
		TokenID:       tokenID,
		DocHash:       docHash,
		Issuer:        id.IssuerAddress(cached.Issuer),
		RecordType:    id.RecordType(cached.RecordType),
		Status:        models.TokenStatus(cached.Status),
		ExpiresAt:     cached.ExpiresAt,
		NonceMismatch: cached.NonceHash != hashNonce(presentedNonce),
	}, true, nil
}

// Close is a no-op; the client lifecycle is managed externally.
func (c *Redis) Close() {
	// Client lifecycle managed externally
}
