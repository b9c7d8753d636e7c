package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ytmp3convert/internal/core/domain"
)

// JobExpiration is how long a job snapshot survives in Redis.
const JobExpiration = 24 * time.Hour

// kv is the subset of *redis.Client used by Store.
type kv interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Store implements ports.JobStore on Redis string keys job:<id>.
type Store struct {
	client kv
	ttl    time.Duration
}

// New wraps a connected client. A zero ttl means JobExpiration.
func New(client *redis.Client, ttl time.Duration) *Store {
	return newStore(client, ttl)
}

func newStore(client kv, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = JobExpiration
	}
	return &Store{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

// SaveJob stores the snapshot and refreshes its expiry.
func (s *Store) SaveJob(ctx context.Context, job domain.ConversionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// LoadJob returns domain.ErrNotFound for missing or expired jobs.
func (s *Store) LoadJob(ctx context.Context, jobID string) (*domain.ConversionJob, error) {
	val, err := s.client.Get(ctx, jobKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	var job domain.ConversionJob
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, nil
}
