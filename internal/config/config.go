package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"

// DefaultBackendBaseURL is used when BACKEND_BASE_URL is not set, it matches
// the local development backend.
const DefaultBackendBaseURL = "http://127.0.0.1:8000"

var config *Config

// Config holds every configuration value of the service. Only this struct
// must be used to read configuration, no direct access to env or any other
// config source should be made.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=crm_dispatch"`
	AppDebug            bool   `env:"APP_DEBUG,default=1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR,default=:9100"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=30s"`
	HttpCorsOrigin     string        `env:"HTTP_CORS_ORIGIN,default=*"`
	HttpReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT,default=5s"`
	HttpWriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT,default=35s"`
	HttpMaxBodyBytes   int           `env:"HTTP_MAX_BODY_BYTES,default=8388608"`

	BackendBaseUrl string        `env:"BACKEND_BASE_URL"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT,default=10s"`
	BackendToken   string        `env:"BACKEND_TOKEN"`

	EmailTransport string `env:"EMAIL_TRANSPORT,default=relay"`
	SmtpHost       string `env:"SMTP_HOST,default=smtp.gmail.com"`
	SmtpPort       int    `env:"SMTP_PORT,default=587"`
	SmtpUser       string `env:"SMTP_USER"`
	SmtpPass       string `env:"SMTP_PASS"`
	SmtpFromName   string `env:"SMTP_FROM_NAME,default=CRM"`

	SmsTransport    string `env:"SMS_TRANSPORT,default=gateway"`
	SmsSender       string `env:"SMS_SENDER,default=0385805381"`
	KavenegarApiKey string `env:"KAVENEGAR_API_KEY"`

	ProviderPrimaryUrl   string `env:"PROVIDER_PRIMARY_URL"`
	ProviderSecondaryUrl string `env:"PROVIDER_SECONDARY_URL"`
	ProviderBackupUrl    string `env:"PROVIDER_BACKUP_URL"`

	SessionTTL    time.Duration `env:"SESSION_TTL,default=168h"`
	SessionCookie string        `env:"SESSION_COOKIE,default=crm_session"`

	HistoryClampFutureDates bool   `env:"HISTORY_CLAMP_FUTURE_DATES,default=true"`
	MeetingBaseUrl          string `env:"MEETING_BASE_URL,default=https://meet.google.com"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=127.0.0.1:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=crm:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=crm_dispatch"`

	QueueName              string        `env:"QUEUE_NAME,default=dispatch:jobs"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=dispatchers"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=dispatcher"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=2"`
	QueueWorkers           int           `env:"QUEUE_WORKERS,default=8"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=2m"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=1s"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=10000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`
	JobResultTTL           time.Duration `env:"JOB_RESULT_TTL,default=24h"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	c := &Config{}
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}
	c.applyFallbacks()

	config = c
	return nil
}

// Set installs c as the process configuration, tests use it instead of Load.
func Set(c *Config) {
	c.applyFallbacks()
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) applyFallbacks() {
	if strings.TrimSpace(c.BackendBaseUrl) == "" {
		c.BackendBaseUrl = DefaultBackendBaseURL
	}
	c.BackendBaseUrl = strings.TrimRight(c.BackendBaseUrl, "/")
	c.EmailTransport = strings.ToLower(strings.TrimSpace(c.EmailTransport))
	c.SmsTransport = strings.ToLower(strings.TrimSpace(c.SmsTransport))
}

// SmtpConfigured reports whether direct SMTP sending has credentials.
func (c *Config) SmtpConfigured() bool {
	return c.SmtpHost != "" && c.SmtpUser != "" && c.SmtpPass != ""
}

// SmsProvider is one configured gateway provider, named after its config slot.
type SmsProvider struct {
	Name string
	URL  string
}

// SmsProviders returns the configured gateway providers in priority order.
// Unset slots are skipped and keep no name.
func (c *Config) SmsProviders() []SmsProvider {
	var out []SmsProvider
	for _, p := range []SmsProvider{
		{Name: "primary", URL: c.ProviderPrimaryUrl},
		{Name: "secondary", URL: c.ProviderSecondaryUrl},
		{Name: "backup", URL: c.ProviderBackupUrl},
	} {
		if u := strings.TrimSpace(p.URL); u != "" {
			out = append(out, SmsProvider{Name: p.Name, URL: strings.TrimRight(u, "/")})
		}
	}
	return out
}
