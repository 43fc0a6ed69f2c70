package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/builders-garden/watchy/internal/canonjson"
	"github.com/builders-garden/watchy/internal/model"
)

// RedisStore is the durable Job Store backend. Records are canonical
// JSON under key "job:<audit_id>"; a secondary list "agent:<chain>:<id>"
// tracks audit IDs per agent in insertion order, matching spec.md §6's
// persisted record layout.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials a Redis instance at the given URL (redis://...).
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("jobstore: parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// Client exposes the underlying Redis client so other durable
// components (the rate limiter) can share one connection pool instead
// of dialing their own.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func jobKey(auditID string) string { return "job:" + auditID }

func agentIndexKey(chainID uint64, agentID string) string {
	return fmt.Sprintf("agent:%d:%s", chainID, agentID)
}

func (s *RedisStore) writeJob(ctx context.Context, job *model.AuditJob, ttl time.Duration) error {
	data, err := canonjson.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobstore: encode job: %w", err)
	}
	if ttl > 0 {
		return s.client.Set(ctx, jobKey(job.AuditID), data, ttl).Err()
	}
	return s.client.Set(ctx, jobKey(job.AuditID), data, 0).Err()
}

func (s *RedisStore) readJob(ctx context.Context, auditID string) (*model.AuditJob, error) {
	data, err := s.client.Get(ctx, jobKey(auditID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: read job: %w", err)
	}
	var job model.AuditJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("jobstore: decode job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Create(ctx context.Context, job *model.AuditJob) error {
	exists, err := s.client.Exists(ctx, jobKey(job.AuditID)).Result()
	if err != nil {
		return fmt.Errorf("jobstore: exists check: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("jobstore: audit id %q already exists", job.AuditID)
	}
	if err := s.writeJob(ctx, job, 0); err != nil {
		return err
	}
	key := agentIndexKey(job.ChainID, job.AgentID.String())
	return s.client.RPush(ctx, key, job.AuditID).Err()
}

// mutate reads, mutates under the caller's function, and writes back a
// job record. Redis single-threaded command execution makes this
// read-modify-write safe for Watchy's access pattern (one writer process
// per job at a time, per the Audit Engine's ownership rules).
func (s *RedisStore) mutate(ctx context.Context, auditID string, fn func(*model.AuditJob) (time.Duration, error)) error {
	job, err := s.readJob(ctx, auditID)
	if err != nil {
		return err
	}
	ttl, err := fn(job)
	if err != nil {
		return err
	}
	return s.writeJob(ctx, job, ttl)
}

func (s *RedisStore) UpdateStatus(ctx context.Context, auditID string, status model.Status, progress *model.Progress) error {
	return s.mutate(ctx, auditID, func(job *model.AuditJob) (time.Duration, error) {
		now := time.Now()
		job.Status = status
		job.Progress = progress

		var ttl time.Duration
		switch status {
		case model.StatusInProgress:
			if job.StartedAt == nil {
				job.StartedAt = &now
			}
		case model.StatusCompleted:
			job.CompletedAt = &now
			ttl = TTL
		case model.StatusFailed:
			job.FailedAt = &now
			ttl = TTL
		}
		return ttl, nil
	})
}

func (s *RedisStore) SetResult(ctx context.Context, auditID string, report *model.Report) error {
	return s.mutate(ctx, auditID, func(job *model.AuditJob) (time.Duration, error) {
		job.Result = report
		job.Error = nil
		var ttl time.Duration
		if job.Status == model.StatusCompleted || job.Status == model.StatusFailed {
			ttl = TTL
		}
		return ttl, nil
	})
}

func (s *RedisStore) SetError(ctx context.Context, auditID string, jobErr *model.JobError) error {
	return s.mutate(ctx, auditID, func(job *model.AuditJob) (time.Duration, error) {
		job.Error = jobErr
		var ttl time.Duration
		if job.Status == model.StatusCompleted || job.Status == model.StatusFailed {
			ttl = TTL
		}
		return ttl, nil
	})
}

func (s *RedisStore) Get(ctx context.Context, auditID string) (*model.AuditJob, error) {
	return s.readJob(ctx, auditID)
}

func (s *RedisStore) ListByAgent(ctx context.Context, chainID uint64, agentID string, opts ListOptions) ([]*model.AuditJob, error) {
	limit := clampLimit(opts.Limit)
	key := agentIndexKey(chainID, agentID)

	start := int64(opts.Offset)
	stop := start + int64(limit) - 1
	ids, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstore: list by agent: %w", err)
	}

	out := make([]*model.AuditJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.readJob(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // evicted by TTL
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
