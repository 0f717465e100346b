package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

// RedisStore keeps records in Redis so several replicas can answer polls
// for the same job. Keys expire natively, so Sweep has nothing to do.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{Client: client, Prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, namespace, jobID string) (*models.JobStatusRecord, error) {
	raw, err := s.Client.Get(ctx, s.recordKey(namespace, jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status %s/%s: %w", namespace, jobID, err)
	}
	var rec models.JobStatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode status %s/%s: %w", namespace, jobID, err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *models.JobStatusRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode status %s/%s: %w", rec.Namespace, rec.JobID, err)
	}
	if err := s.Client.Set(ctx, s.recordKey(rec.Namespace, rec.JobID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write status %s/%s: %w", rec.Namespace, rec.JobID, err)
	}
	return nil
}

// Create uses SET NX, so two replicas racing on one id cannot both win.
func (s *RedisStore) Create(ctx context.Context, rec *models.JobStatusRecord, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to encode status %s/%s: %w", rec.Namespace, rec.JobID, err)
	}
	created, err := s.Client.SetNX(ctx, s.recordKey(rec.Namespace, rec.JobID), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to create status %s/%s: %w", rec.Namespace, rec.JobID, err)
	}
	return created, nil
}

func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) recordKey(namespace, jobID string) string {
	if s.Prefix == "" {
		return key(namespace, jobID)
	}
	return fmt.Sprintf("%s:%s:%s", s.Prefix, namespace, jobID)
}
