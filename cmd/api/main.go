package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/app"
	"github.com/nimasrn/crm-dispatch/internal/config"
	"github.com/nimasrn/crm-dispatch/internal/handlers"
	"github.com/nimasrn/crm-dispatch/internal/processor"
	"github.com/nimasrn/crm-dispatch/internal/queue"
	"github.com/nimasrn/crm-dispatch/internal/services"
	"github.com/nimasrn/crm-dispatch/internal/session"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
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
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	// transport (tcp for now)
	opt := xhttp.DefaultServerOption
	opt.Name = cfg.AppName
	opt.ReadTimeout = cfg.HttpReadTimeout
	opt.WriteTimeout = cfg.HttpWriteTimeout
	opt.MaxRequestBodySize = cfg.HttpMaxBodyBytes
	opt.ReadBufferSize = 16 * 1024
	opt.WriteBufferSize = 16 * 1024
	s := xhttp.NewServer(opt)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CORSMiddleware(corsOptions(cfg.HttpCorsOrigin)))
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Router = xhttp.CreateDefaultRouter()

	db, err := app.Postgres(cfg)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}
	if db == nil {
		logger.Warn("postgres not configured, dispatch reports will not be kept")
	}

	redisAdap, err := app.Redis(cfg)
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}
	defer redisAdap.Close()

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)

	crm := app.Backend(cfg)
	gw, err := app.Gateway(cfg)
	if err != nil {
		logger.Error("failed to create sms gateway", "error", err)
		return
	}
	engine, err := app.Engine(cfg, crm, gw)
	if err != nil {
		logger.Error("failed to configure dispatch", "error", err)
		return
	}

	// services
	dispatchService := app.DispatchService(engine, crm, db)
	dashboardService := services.NewDashboardService(services.DashboardSources{
		Contacts:     crm.Contacts,
		Entreprises:  crm.Entreprises,
		Campagnes:    crm.Campagnes,
		Utilisateurs: crm.Utilisateurs,
		Actions:      crm.Historique,
		Opportunites: crm.Opportunites,
		Interactions: crm.Interactions,
	}, time.Now)
	historyService := services.NewHistoryService(crm.Emails, crm.Contacts, cfg.HistoryClampFutureDates)
	meetingService := services.NewMeetingService(dispatchService, cfg.MeetingBaseUrl)
	crmService := services.NewCRMService(crm)
	sessionStore := session.NewRedisStore(redisAdap, cfg.SessionTTL)

	healthService := services.NewHealthService().
		Register("backend", crm).
		Register("redis", redisAdap)
	if db != nil {
		healthService.Register("postgres", db)
	}

	var jobService handlers.JobService
	q, err := queue.NewQueue(redisAdap, app.QueueConfig(cfg))
	if err != nil {
		logger.Error("failed creating queue, asynchronous dispatch disabled", "error", err)
	} else {
		jobService = services.NewJobService(q, processor.NewJobStore(redisAdap, cfg.JobResultTTL))
	}
	if gw != nil {
		healthService.WithProviders(gw)
		defer gw.Close()
	}

	// v1 handlers
	validator := handlers.NewRequestValidator()
	g := s.Router.Group("/api/v1")
	handlers.RegisterDispatchRoutes(g, handlers.NewDispatchHandler(dispatchService, jobService, validator))
	handlers.RegisterDashboardRoutes(g, handlers.NewDashboardHandler(dashboardService, nil))
	handlers.RegisterHistoryRoutes(g, handlers.NewHistoryHandler(historyService))
	handlers.RegisterMeetingRoutes(g, handlers.NewMeetingHandler(meetingService, validator))
	handlers.RegisterSessionRoutes(g, handlers.NewSessionHandler(sessionStore, cfg.SessionCookie, cfg.SessionTTL, validator))
	handlers.RegisterCRMRoutes(g, handlers.NewCRMHandler(crmService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := crm.Ping(ctx); err != nil {
		logger.Warn("backend not reachable at startup", "url", cfg.BackendBaseUrl, "error", err)
	}
	cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}

func corsOptions(origin string) xhttp.CORSOptions {
	opt := xhttp.DefaultCORSOptions
	if origin != "" {
		opt.AllowOrigin = origin
	}
	return opt
}
