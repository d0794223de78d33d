package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "assetdesk:imports:v1"

type RedisStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, prefix: redisPrefix, ttl: ttl}
}

func (r *RedisStore) Save(ctx context.Context, s Status) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal import status")
	}
	if err := r.redis.Set(ctx, r.key(s.TenantID, s.RunID), data, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "save import status")
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, tenantID, runID uuid.UUID) (Status, error) {
	result, err := r.redis.Get(ctx, r.key(tenantID, runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Status{}, ErrNotFound
		}
		return Status{}, errors.Wrap(err, "load import status")
	}
	var s Status
	if err := json.Unmarshal(result, &s); err != nil {
		return Status{}, errors.Wrap(err, "unmarshal import status")
	}
	return s, nil
}

func (r *RedisStore) key(tenantID, runID uuid.UUID) string {
	return fmt.Sprintf("%s:{%s}:%s", r.prefix, tenantID.String(), runID.String())
}
