package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "auth:revoked:"

// Revoker records revoked token ids until the token would have expired on
// its own. Revoke reports false when the id was already revoked, so only
// one caller can claim a token.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevoker keeps one key per revoked jti with a TTL matching the
// token's remaining lifetime.
type RedisRevoker struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRevoker(client redis.UniversalClient) *RedisRevoker {
	return &RedisRevoker{
		client: client,
		prefix: revokedKeyPrefix,
		now:    time.Now,
	}
}

func (r *RedisRevoker) key(tokenID string) string {
	return r.prefix + tokenID
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	if tokenID == "" {
		return false, ErrTokenMalformed.Clone().WithMetadata(map[string]any{"claim": "jti"})
	}

	// an expired token fails validation on its own
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return true, nil
	}

	claimed, err := r.client.SetNX(ctx, r.key(tokenID), "1", ttl).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to record revoked token")
	}
	return claimed, nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}

	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to check revoked token")
	}
	return n > 0, nil
}
