// Package app builds the collaborators shared by the api and processor
// binaries from the loaded configuration.
package app

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/backend"
	"github.com/nimasrn/crm-dispatch/internal/channels"
	"github.com/nimasrn/crm-dispatch/internal/config"
	"github.com/nimasrn/crm-dispatch/internal/dispatch"
	gateway "github.com/nimasrn/crm-dispatch/internal/gateways"
	"github.com/nimasrn/crm-dispatch/internal/queue"
	"github.com/nimasrn/crm-dispatch/internal/repository"
	"github.com/nimasrn/crm-dispatch/internal/restclient"
	"github.com/nimasrn/crm-dispatch/internal/services"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/pg"
	"github.com/nimasrn/crm-dispatch/pkg/redis"
	"github.com/pkg/errors"
)

const (
	EmailRelay = "relay"
	EmailSMTP  = "smtp"

	SMSGateway   = "gateway"
	SMSKavenegar = "kavenegar"
	SMSBackend   = "backend"
)

// EnvPath returns the value of a --env= argument, or "" when it is absent
// or points to a missing file.
func EnvPath() string {
	for _, v := range os.Args[1:] {
		if path, ok := strings.CutPrefix(v, "--env="); ok {
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "path", path, "error", err)
				return ""
			}
			return path
		}
	}
	return ""
}

func Backend(cfg *config.Config) *backend.Client {
	return backend.New(restclient.New(restclient.Options{
		BaseURL:  cfg.BackendBaseUrl,
		Timeout:  cfg.BackendTimeout,
		Token:    cfg.BackendToken,
		MaxConns: 256,
	}))
}

func Redis(cfg *config.Config) (redis.Adapter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return redis.Connect(ctx, cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName,
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
}

// Postgres connects the read/write pair. It returns nil, nil when no write
// host is configured, reports are then not persisted.
func Postgres(cfg *config.Config) (*pg.DB, error) {
	if cfg.PostgresWriteHost == "" {
		return nil, nil
	}
	writeConf := pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
	}
	readConf := writeConf
	if cfg.PostgresReadHost != "" {
		readConf = pg.Config{
			User:     cfg.PostgresReadUser,
			Host:     cfg.PostgresReadHost,
			Port:     cfg.PostgresReadPort,
			Password: cfg.PostgresReadPassword,
			Database: cfg.PostgresReadDatabase,
		}
	}
	return pg.CreateReadWrite(readConf, writeConf, cfg.AppEnv == "dev")
}

// Gateway builds the weighted SMS provider pool, nil when no provider url
// is configured.
func Gateway(cfg *config.Config) (*gateway.Client, error) {
	configured := cfg.SmsProviders()
	if len(configured) == 0 {
		return nil, nil
	}
	providers := GatewayProviders(configured)
	return gateway.NewClient(&gateway.Config{
		Providers:               providers,
		Timeout:                 5 * time.Second,
		MaxRetries:              len(providers) - 1,
		RetryDelay:              100 * time.Millisecond,
		MaxConns:                1000,
		HealthCheckInterval:     30 * time.Second,
		EvaluateInterval:        10 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   time.Minute,
	})
}

// GatewayProviders keeps each provider's config name. Weight follows
// priority order.
func GatewayProviders(configured []config.SmsProvider) []gateway.ProviderConfig {
	providers := make([]gateway.ProviderConfig, len(configured))
	for i, p := range configured {
		providers[i] = gateway.ProviderConfig{Name: p.Name, URL: p.URL, Weight: 100 - 20*i}
	}
	return providers
}

// Engine plugs the configured email and SMS transports. gw may be nil.
func Engine(cfg *config.Config, b *backend.Client, gw *gateway.Client) (*dispatch.Engine, error) {
	var opts []dispatch.Option

	switch cfg.EmailTransport {
	case EmailRelay, "":
		opts = append(opts, dispatch.WithSender(channels.NewRelayEmail(b)))
	case EmailSMTP:
		opts = append(opts, dispatch.WithSender(channels.NewSMTPEmail(channels.SMTPConfig{
			Host:     cfg.SmtpHost,
			Port:     cfg.SmtpPort,
			User:     cfg.SmtpUser,
			Pass:     cfg.SmtpPass,
			FromName: cfg.SmtpFromName,
		}, nil)))
	default:
		return nil, errors.Errorf("unknown EMAIL_TRANSPORT %q", cfg.EmailTransport)
	}

	switch cfg.SmsTransport {
	case SMSGateway, "":
		if gw == nil {
			logger.Warn("no SMS provider configured, falling back to the backend bulk endpoint")
			opts = append(opts, dispatch.WithBatchSender(channels.NewBackendBulkSMS(b)))
			break
		}
		opts = append(opts, dispatch.WithSender(channels.NewGatewaySMS(gw, cfg.SmsSender)))
	case SMSKavenegar:
		opts = append(opts, dispatch.WithSender(channels.NewKavenegarSMS(cfg.KavenegarApiKey, cfg.SmsSender)))
	case SMSBackend:
		opts = append(opts, dispatch.WithBatchSender(channels.NewBackendBulkSMS(b)))
	default:
		return nil, errors.Errorf("unknown SMS_TRANSPORT %q", cfg.SmsTransport)
	}

	return dispatch.NewEngine(opts...), nil
}

// DispatchService wires the engine to the backend contacts, the send-log and,
// when db is not nil, the report repository.
func DispatchService(engine *dispatch.Engine, b *backend.Client, db *pg.DB) *services.DispatchService {
	var reports services.DispatchRepository
	if db != nil {
		reports = repository.NewDispatchRepository(db)
	}
	return services.NewDispatchService(engine, b.Contacts, b.Emails, reports)
}

func QueueConfig(cfg *config.Config) queue.Config {
	return queue.Config{
		Name:              cfg.QueueName,
		ConsumerGroup:     cfg.QueueConsumerGroup,
		ConsumerName:      cfg.QueueConsumerName,
		MaxRetries:        cfg.QueueMaxRetries,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		PollInterval:      cfg.QueuePollInterval,
		BatchSize:         cfg.QueueBatchSize,
		MaxLen:            cfg.QueueMaxLen,
		EnableDLQ:         cfg.QueueEnableDLQ,
	}
}
