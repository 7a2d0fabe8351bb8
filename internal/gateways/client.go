// Package gateway sends SMS through a set of weighted HTTP providers,
// routing each message to the best scoring provider still available.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/prom"
	"github.com/valyala/fasthttp"
)

var ErrNoAvailableProviders = errors.New("no available providers")

type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
	StatusPending   DeliveryStatus = "PENDING"
)

const sendPath = "/api/v1/sms/send"

type SendRequest struct {
	MessageID   string `json:"message_id"`
	PhoneNumber string `json:"phone_number"`
	Content     string `json:"content"`
	Sender      string `json:"sender,omitempty"`
}

type SendResponse struct {
	MessageID   string         `json:"message_id"`
	Status      DeliveryStatus `json:"status"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	ErrorMsg    string         `json:"error_message,omitempty"`
	OperatorID  string         `json:"operator_id"`
}

// Accepted reports whether the provider took the message.
func (r *SendResponse) Accepted() bool {
	return r.Status == StatusDelivered || r.Status == StatusPending
}

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int // 1-100
}

type Config struct {
	Providers []ProviderConfig
	Timeout   time.Duration
	// MaxRetries is the number of extra providers tried after a failure.
	// Zero sends at most once.
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	HealthCheckInterval     time.Duration // zero disables health checks
	EvaluateInterval        time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	// Dial overrides the TCP dialer of every provider.
	Dial fasthttp.DialFunc
}

// Client is safe for concurrent use.
type Client struct {
	config    Config
	providers []*Provider
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}

	cfg := *config
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = 30 * time.Second
	}
	if cfg.EvaluateInterval <= 0 {
		cfg.EvaluateInterval = 30 * time.Second
	}

	c := &Client{
		config:    cfg,
		providers: make([]*Provider, 0, len(cfg.Providers)),
		stopCh:    make(chan struct{}),
	}
	for _, pc := range cfg.Providers {
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     cfg.MaxConns,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
			Dial:                cfg.Dial,
		}
		c.providers = append(c.providers, NewProvider(pc.Name, strings.TrimRight(pc.URL, "/"), pc.Weight, httpClient))
		logger.Info("sms provider registered", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}

	if cfg.HealthCheckInterval > 0 {
		c.wg.Add(1)
		go c.every(cfg.HealthCheckInterval, c.checkHealth)
	}
	c.wg.Add(1)
	go c.every(cfg.EvaluateInterval, c.evaluate)

	return c, nil
}

// SelectBestProvider returns the available provider with the highest score.
func (c *Client) SelectBestProvider() (*Provider, error) {
	var best *Provider
	var bestScore float64
	for _, p := range c.providers {
		if score := p.Score(); score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	return best, nil
}

// Send delivers req through the best provider. A failing provider is
// penalized, so a retry naturally lands on the next best one.
func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Validation("invalid sms request: %v", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 && c.config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, errs.Network(ctx.Err(), "send aborted")
			case <-time.After(c.config.RetryDelay):
			}
		}

		p, err := c.SelectBestProvider()
		if err != nil {
			return nil, errs.Network(err, "no sms provider available")
		}

		start := time.Now()
		raw, err := c.do(ctx, p, fasthttp.MethodPost, sendPath, body)
		elapsed := time.Since(start)
		if err != nil {
			p.metrics.RecordFailure()
			c.tripIfNeeded(p)
			logger.Warn("sms provider call failed", "provider", p.name, "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}
		p.metrics.RecordSuccess(elapsed.Milliseconds())
		prom.ObserveGatewayLatency(p.name, elapsed.Seconds())

		var resp SendResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, errs.Decode(err, "invalid sms provider answer")
		}
		logger.Debug("sms accepted by provider", "message_id", req.MessageID, "status", resp.Status, "provider", p.name)
		return &resp, nil
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, p *Provider, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, errs.Network(err, "sms provider "+p.name+" unreachable")
	}

	status := resp.StatusCode()
	if status != fasthttp.StatusOK && status != fasthttp.StatusAccepted {
		var e struct {
			Message string `json:"error_message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &e)
		return nil, errs.Transport(status, e.Message+e.Error)
	}
	return append([]byte(nil), resp.Body()...), nil
}

func (c *Client) tripIfNeeded(p *Provider) {
	fails := p.metrics.ConsecutiveFails.Load()
	if fails < int32(c.config.CircuitBreakerThreshold) {
		return
	}
	p.SetState(StateCircuitOpen)
	p.openUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).Unix())
	logger.Warn("sms provider circuit opened", "provider", p.name, "consecutive_fails", fails)
}

func (c *Client) every(interval time.Duration, fn func()) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	for _, p := range c.providers {
		healthy := c.healthy(ctx, p)
		p.checkedAt.Store(time.Now().Unix())

		old := p.State()
		next := old
		switch {
		case !healthy:
			next = StateUnhealthy
		case old == StateUnhealthy || old == StateDegraded:
			next = StateHealthy
		}
		if next != old {
			p.SetState(next)
			logger.Info("sms provider state changed", "provider", p.name, "from", old.String(), "to", next.String())
		}
	}
}

func (c *Client) healthy(ctx context.Context, p *Provider) bool {
	raw, err := c.do(ctx, p, fasthttp.MethodGet, "/health", nil)
	if err != nil {
		return false
	}
	var h struct {
		Status string `json:"status"`
	}
	return json.Unmarshal(raw, &h) == nil && h.Status == "healthy"
}

// evaluate degrades slow or failing providers and restores recovered ones.
func (c *Client) evaluate() {
	for _, p := range c.providers {
		if p.State() == StateCircuitOpen {
			continue
		}
		rate := p.metrics.SuccessRate()
		avg := p.metrics.AvgLatencyMs()
		switch {
		case (rate < 0.8 || avg > 5000) && p.State() != StateDegraded:
			p.SetState(StateDegraded)
			logger.Warn("sms provider degraded", "provider", p.name, "success_rate", rate, "avg_latency_ms", avg)
		case rate > 0.95 && avg < 2000 && p.State() == StateDegraded:
			p.SetState(StateHealthy)
			logger.Info("sms provider recovered", "provider", p.name)
		}
	}
}

// Stats lists every provider, best score first.
func (c *Client) Stats() []ProviderStats {
	stats := make([]ProviderStats, 0, len(c.providers))
	for _, p := range c.providers {
		stats = append(stats, p.Stats())
	}
	sortStats(stats)
	return stats
}

func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		logger.Info("sms gateway client closed")
	})
	return nil
}
