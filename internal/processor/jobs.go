package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/pkg/redis"
	"github.com/pkg/errors"
)

const jobKeyPrefix = "dispatch:job:"

const DefaultJobTTL = 24 * time.Hour

// JobStore keeps the latest JobStatus of every asynchronous dispatch.
type JobStore struct {
	rdb redis.Adapter
	ttl time.Duration
	now func() time.Time
}

func NewJobStore(rdb redis.Adapter, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &JobStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *JobStore) Put(ctx context.Context, st model.JobStatus) error {
	if st.ID == "" {
		return errs.Validation("job id is required")
	}
	st.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "failed to encode job status")
	}
	if err := s.rdb.Set(ctx, jobKeyPrefix+st.ID, raw, s.ttl); err != nil {
		return errs.Network(err, "job store unavailable")
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*model.JobStatus, error) {
	raw, err := s.rdb.Get(ctx, jobKeyPrefix+id)
	if redis.IsNil(err) {
		return nil, errs.NotFound("job %s not found", id)
	}
	if err != nil {
		return nil, errs.Network(err, "job store unavailable")
	}
	var st model.JobStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, errs.Decode(err, "corrupt job status")
	}
	return &st, nil
}
