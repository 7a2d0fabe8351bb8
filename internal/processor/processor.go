// Package processor consumes queued dispatch jobs and runs them on a worker
// pool.
package processor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/queue"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/redis"
	"github.com/nimasrn/crm-dispatch/pkg/worker"
	"github.com/pkg/errors"
)

const (
	HealthInterval  = 30 * time.Second
	ShutdownTimeout = time.Minute
	laggingPending  = 1000
)

type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type ServiceConfig struct {
	Queue     queue.Config
	Consumers int
	Workers   int
	// JobTimeout bounds one job, it defaults to the queue visibility timeout.
	JobTimeout time.Duration
}

type ProcessorService struct {
	adapter   redis.Adapter
	config    ServiceConfig
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	worker    *worker.WorkerManager
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewProcessorService(adapter redis.Adapter, cfg ServiceConfig, p Processor) (*ProcessorService, error) {
	if p == nil {
		return nil, errors.New("processor is required")
	}
	if cfg.Consumers <= 0 {
		cfg.Consumers = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = cfg.Queue.VisibilityTimeout
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter:   adapter,
		config:    cfg,
		processor: p,
		metrics:   NewServiceMetrics(),
		worker:    worker.NewWorkerManager(cfg.Workers*4, cfg.Workers, nil),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (s *ProcessorService) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

func (s *ProcessorService) Start() error {
	logger.Info("starting processor service", "type", s.processor.GetType())

	s.worker.SetWorker(s.workerHandler)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil && !errors.Is(err, worker.ErrStopped) {
			logger.Error("worker manager stopped", "error", err)
		}
	}()

	for i := 0; i < s.config.Consumers; i++ {
		qc := s.config.Queue
		qc.ConsumerName = qc.ConsumerName + "-" + strconv.Itoa(i)

		q, err := queue.NewQueue(s.adapter, qc)
		if err != nil {
			return errors.Wrapf(err, "failed to create consumer %d", i)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return errors.Wrapf(err, "failed to start consumer %d", i)
		}
		s.queues = append(s.queues, q)
	}

	s.wg.Add(1)
	go s.healthChecker()

	logger.Info("processor service started", "consumers", len(s.queues), "workers", s.worker.Workers())
	return nil
}

type job struct {
	ctx    context.Context
	msg    *queue.Message
	result chan error
}

// messageHandler hands the message to the pool and waits for its outcome so
// the queue acks only finished jobs.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	j := &job{ctx: jobCtx, msg: msg, result: make(chan error, 1)}
	if err := s.worker.Enqueue(jobCtx, j); err != nil {
		return errors.Wrap(err, "worker pool rejected job")
	}

	select {
	case err := <-j.result:
		return err
	case <-jobCtx.Done():
		return errors.Wrap(jobCtx.Err(), "timeout waiting for worker")
	}
}

func (s *ProcessorService) workerHandler(index int, v interface{}) {
	j, ok := v.(*job)
	if !ok {
		logger.Error("invalid job type in worker", "worker", index)
		return
	}
	if j.ctx.Err() != nil {
		logger.Warn("job expired before processing", "worker", index, "stream_id", j.msg.ID)
		return
	}

	start := time.Now()
	err := s.processor.Process(j.ctx, j.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("job failed", "worker", index, "stream_id", j.msg.ID, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}
	j.result <- err
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.checkHealth()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) checkHealth() {
	if err := s.adapter.Ping(s.ctx); err != nil {
		logger.Error("health check failed: redis unreachable", "error", err)
		return
	}
	for i, q := range s.queues {
		stats, err := q.Stats(s.ctx)
		if err != nil {
			logger.Warn("queue stats unavailable", "consumer", i, "error", err)
			continue
		}
		if stats.PendingMessages > laggingPending {
			logger.Warn("queue is lagging", "consumer", i, "pending", stats.PendingMessages)
		}
	}
	m := s.metrics.Snapshot()
	logger.Info("processor health",
		"processed", m.Processed,
		"failed", m.Failed,
		"rate_per_second", m.RatePerSecond,
		"avg_duration_ms", m.AvgDuration.Milliseconds())
}

func (s *ProcessorService) Stop() {
	logger.Info("shutting down processor service")
	s.cancel()

	var wg sync.WaitGroup
	for i, q := range s.queues {
		wg.Add(1)
		go func(i int, q *queue.Queue) {
			defer wg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("error stopping consumer", "consumer", i, "error", err)
			}
		}(i, q)
	}
	wg.Wait()

	s.worker.Exit()
	s.wg.Wait()

	m := s.metrics.Snapshot()
	logger.Info("processor service stopped", "processed", m.Processed, "failed", m.Failed)
}
