package processor

import (
	"context"
	"strconv"
	"time"

	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/redis"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyProcessed   = errors.New("job already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire job lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL      time.Duration
	ProcessedTTL time.Duration
	MaxRetries   int

	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            2 * time.Minute,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "dispatch:retry:",
		LockKeyPrefix:      "dispatch:lock:",
		ProcessedKeyPrefix: "dispatch:processed:",
	}
}

// IdempotencyService guards a job id so a redelivered stream entry never
// sends the same campaign twice.
type IdempotencyService struct {
	redis  redis.Adapter
	config IdempotencyConfig
}

func NewIdempotencyService(adapter redis.Adapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{redis: adapter, config: config}
}

// Attempt is held by the consumer that owns the job lock.
type Attempt struct {
	JobID      string
	RetryCount int

	locked bool
}

func (a *Attempt) IsRetry() bool { return a.RetryCount > 0 }

func (s *IdempotencyService) Acquire(ctx context.Context, jobID string) (*Attempt, error) {
	processed, err := s.IsProcessed(ctx, jobID)
	if err != nil {
		logger.Warn("processed marker lookup failed", "job_id", jobID, "error", err)
	} else if processed {
		return nil, ErrAlreadyProcessed
	}

	retries, err := s.RetryCount(ctx, jobID)
	if err != nil {
		logger.Warn("retry counter lookup failed", "job_id", jobID, "error", err)
	}
	if retries >= s.config.MaxRetries {
		return nil, errors.Wrapf(ErrMaxRetriesExceeded, "job_id=%s retries=%d", jobID, retries)
	}

	stamp := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	ok, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+jobID, stamp, s.config.LockTTL)
	if err != nil {
		return nil, errors.Wrap(ErrLockAcquireFailed, err.Error())
	}
	if !ok {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("job lock acquired", "job_id", jobID, "retry_count", retries)
	return &Attempt{JobID: jobID, RetryCount: retries, locked: true}, nil
}

// MarkSuccess sets the processed marker and drops the lock and the counter.
func (s *IdempotencyService) MarkSuccess(ctx context.Context, a *Attempt) error {
	if err := s.redis.Set(ctx, s.config.ProcessedKeyPrefix+a.JobID, []byte("1"), s.config.ProcessedTTL); err != nil {
		return errors.Wrap(err, "failed to mark job processed")
	}
	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+a.JobID, s.config.RetryKeyPrefix+a.JobID); err != nil {
		logger.Warn("job cleanup failed", "job_id", a.JobID, "error", err)
	}
	a.locked = false
	return nil
}

// MarkFailure bumps the retry counter and frees the lock for the next delivery.
func (s *IdempotencyService) MarkFailure(ctx context.Context, a *Attempt, reason error) error {
	next := strconv.Itoa(a.RetryCount + 1)
	if err := s.redis.Set(ctx, s.config.RetryKeyPrefix+a.JobID, []byte(next), s.config.ProcessedTTL); err != nil {
		logger.Error("retry counter update failed", "job_id", a.JobID, "error", err)
	}
	err := s.Release(ctx, a)

	logger.Warn("job attempt failed",
		"job_id", a.JobID,
		"retry_count", a.RetryCount+1,
		"max_retries", s.config.MaxRetries,
		"reason", reason)
	return err
}

func (s *IdempotencyService) Release(ctx context.Context, a *Attempt) error {
	if a == nil || !a.locked {
		return nil
	}
	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+a.JobID); err != nil {
		return errors.Wrap(err, "failed to release job lock")
	}
	a.locked = false
	return nil
}

func (s *IdempotencyService) RetryCount(ctx context.Context, jobID string) (int, error) {
	raw, err := s.redis.Get(ctx, s.config.RetryKeyPrefix+jobID)
	if redis.IsNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, errors.Wrapf(err, "corrupt retry counter for job %s", jobID)
	}
	return n, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, jobID string) (bool, error) {
	return s.redis.Exists(ctx, s.config.ProcessedKeyPrefix+jobID)
}
