package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/crm-dispatch/internal/app"
	"github.com/nimasrn/crm-dispatch/internal/config"
	"github.com/nimasrn/crm-dispatch/internal/processor"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/prom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(app.EnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting processor", "version", version, "commit", commit, "date", date)

	db, err := app.Postgres(cfg)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := app.Redis(cfg)
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}
	defer redisAdap.Close()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	crm := app.Backend(cfg)
	gw, err := app.Gateway(cfg)
	if err != nil {
		logger.Error("failed to create gateway", "error", err)
		return
	}
	if gw != nil {
		defer gw.Close()
	}
	engine, err := app.Engine(cfg, crm, gw)
	if err != nil {
		logger.Error("failed to configure dispatch", "error", err)
		return
	}
	dispatchService := app.DispatchService(engine, crm, db)

	// Initialize idempotency service
	idempotencyConfig := processor.DefaultIdempotencyConfig()
	idempotencyConfig.MaxRetries = cfg.QueueMaxRetries
	idempotencyService := processor.NewIdempotencyService(redisAdap, idempotencyConfig)
	jobs := processor.NewJobStore(redisAdap, cfg.JobResultTTL)

	service, err := processor.NewProcessorService(redisAdap, processor.ServiceConfig{
		Queue:     app.QueueConfig(cfg),
		Consumers: cfg.QueueConsumers,
		Workers:   cfg.QueueWorkers,
	}, processor.NewDispatchJobProcessor(dispatchService, jobs, idempotencyService))
	if err != nil {
		logger.Error("failed to run the processor", "error", err)
		return
	}

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}()

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start processor", "error", err)
		}
	}()

	<-c
	service.Stop()
	snap := service.Metrics()
	logger.Info("processor stopped", "processed", snap.Processed, "failed", snap.Failed, "uptime", snap.Uptime.String())
}
