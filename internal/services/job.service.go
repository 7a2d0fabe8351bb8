package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-dispatch/internal/dispatch"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/pkg/errors"
)

// Publisher is satisfied by *queue.Queue.
type Publisher interface {
	PublishJSON(ctx context.Context, v interface{}, metadata map[string]string) (string, error)
}

// JobStore is satisfied by *processor.JobStore.
type JobStore interface {
	Put(ctx context.Context, st model.JobStatus) error
	Get(ctx context.Context, id string) (*model.JobStatus, error)
}

// JobService defers dispatches to the processor.
type JobService struct {
	queue Publisher
	jobs  JobStore
	now   func() time.Time
}

func NewJobService(queue Publisher, jobs JobStore) *JobService {
	return &JobService{queue: queue, jobs: jobs, now: time.Now}
}

// Enqueue checks what can be checked without the backend, records the job as
// queued and publishes it.
func (s *JobService) Enqueue(ctx context.Context, req model.DispatchRequest) (*model.JobStatus, error) {
	if err := dispatch.ValidateTemplate(req.Channel, req.Template); err != nil {
		return nil, err
	}
	if len(req.ContactIDs) == 0 && len(req.Contacts) == 0 {
		return nil, ErrNoRecipients
	}

	job := model.DispatchJob{
		ID:          uuid.NewString(),
		Request:     req,
		RequestedAt: s.now().UTC(),
	}
	st := model.JobStatus{ID: job.ID, State: model.JobQueued}
	if err := s.jobs.Put(ctx, st); err != nil {
		return nil, err
	}
	if _, err := s.queue.PublishJSON(ctx, job, map[string]string{
		"job_id":  job.ID,
		"channel": string(req.Channel),
	}); err != nil {
		return nil, errs.Network(errors.Wrap(err, "publish dispatch job"), "job queue unavailable")
	}
	return &st, nil
}

func (s *JobService) Status(ctx context.Context, id string) (*model.JobStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.Validation("invalid job id %q", id)
	}
	return s.jobs.Get(ctx, id)
}
