package processor

import (
	"context"
	"encoding/json"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/internal/queue"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/prom"
	"github.com/pkg/errors"
)

// Dispatcher is satisfied by *services.DispatchService.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchReport, error)
}

type JobRecorder interface {
	Put(ctx context.Context, st model.JobStatus) error
}

type DispatchJobProcessor struct {
	dispatcher  Dispatcher
	jobs        JobRecorder
	idempotency *IdempotencyService
}

func NewDispatchJobProcessor(d Dispatcher, jobs JobRecorder, idempotency *IdempotencyService) *DispatchJobProcessor {
	return &DispatchJobProcessor{dispatcher: d, jobs: jobs, idempotency: idempotency}
}

func (p *DispatchJobProcessor) GetType() string {
	return "dispatch"
}

// Process runs one queued dispatch. A nil return acks the stream entry.
func (p *DispatchJobProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var job model.DispatchJob
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.ID == "" {
		// never decodable, a retry cannot help
		logger.Error("dropping malformed dispatch job", "stream_id", msg.ID, "error", err)
		return nil
	}

	attempt, err := p.idempotency.Acquire(ctx, job.ID)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("dispatch job already processed", "job_id", job.ID)
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		p.record(ctx, model.JobStatus{ID: job.ID, State: model.JobFailed, Error: "maximum retries exceeded"})
		return nil
	case err != nil:
		return err
	}
	defer p.idempotency.Release(ctx, attempt)

	p.record(ctx, model.JobStatus{ID: job.ID, State: model.JobProcessing})
	logger.Info("processing dispatch job",
		"job_id", job.ID,
		"channel", job.Request.Channel,
		"retry_count", attempt.RetryCount)

	report, err := p.dispatcher.Dispatch(ctx, job.Request)
	if err != nil {
		if permanent(err) {
			p.record(ctx, model.JobStatus{ID: job.ID, State: model.JobFailed, Error: errs.Message(err, "unknown error")})
			if markErr := p.idempotency.MarkSuccess(ctx, attempt); markErr != nil {
				logger.Error("failed to mark job processed", "job_id", job.ID, "error", markErr)
			}
			return nil
		}
		if markErr := p.idempotency.MarkFailure(ctx, attempt, err); markErr != nil {
			logger.Error("failed to mark job failure", "job_id", job.ID, "error", markErr)
		}
		p.record(ctx, model.JobStatus{ID: job.ID, State: model.JobQueued, Error: errs.Message(err, "unknown error")})
		return err
	}

	p.record(ctx, model.JobStatus{ID: job.ID, State: model.JobDone, Report: report})
	if err := p.idempotency.MarkSuccess(ctx, attempt); err != nil {
		logger.Error("failed to mark job processed", "job_id", job.ID, "error", err)
	}
	return nil
}

func (p *DispatchJobProcessor) record(ctx context.Context, st model.JobStatus) {
	prom.ObserveJobState(string(st.State))
	if err := p.jobs.Put(ctx, st); err != nil {
		logger.Error("failed to store job status", "job_id", st.ID, "state", st.State, "error", err)
	}
}

// permanent errors fail the job without another attempt.
func permanent(err error) bool {
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindConfig, errs.KindNotFound:
		return true
	}
	return false
}
