package gateway

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func TestProviderMetrics_RecordSuccess(t *testing.T) {
	metrics := NewProviderMetrics()

	metrics.RecordSuccess(100)
	metrics.RecordSuccess(200)

	assert.Equal(t, int64(2), metrics.Requests.Load())
	assert.Equal(t, int64(2), metrics.Successes.Load())
	assert.Equal(t, int64(0), metrics.Failures.Load())
	assert.Equal(t, 1.0, metrics.SuccessRate())
	assert.Equal(t, int64(150), metrics.AvgLatencyMs())
}

func TestProviderMetrics_RecordFailure(t *testing.T) {
	metrics := NewProviderMetrics()

	metrics.RecordSuccess(100)
	metrics.RecordFailure()
	metrics.RecordFailure()

	assert.Equal(t, int64(3), metrics.Requests.Load())
	assert.InDelta(t, 0.333, metrics.SuccessRate(), 0.01)
	assert.Equal(t, int32(2), metrics.ConsecutiveFails.Load())

	metrics.RecordSuccess(50)
	assert.Equal(t, int32(0), metrics.ConsecutiveFails.Load())
}

func TestProviderMetrics_P95Latency(t *testing.T) {
	metrics := NewProviderMetrics()
	assert.Equal(t, int64(0), metrics.P95LatencyMs())

	for i := int64(0); i < 100; i++ {
		metrics.RecordSuccess(i * 10)
	}

	p95 := metrics.P95LatencyMs()
	assert.GreaterOrEqual(t, p95, int64(900))
	assert.LessOrEqual(t, p95, int64(990))
}

func TestProvider_IsAvailable(t *testing.T) {
	provider := NewProvider("test", "http://localhost:8080", 100, &fasthttp.Client{})

	provider.SetState(StateDegraded)
	assert.True(t, provider.IsAvailable())

	provider.SetState(StateUnhealthy)
	assert.False(t, provider.IsAvailable())

	provider.SetState(StateCircuitOpen)
	provider.openUntil.Store(time.Now().Add(10 * time.Second).Unix())
	assert.False(t, provider.IsAvailable())

	provider.openUntil.Store(time.Now().Add(-time.Second).Unix())
	assert.True(t, provider.IsAvailable())
	assert.Equal(t, StateDegraded, provider.State())
}

func TestProvider_Score(t *testing.T) {
	fresh := NewProvider("fresh", "http://a", 100, &fasthttp.Client{})
	assert.InDelta(t, 100.0, fresh.Score(), 0.001)

	degraded := NewProvider("degraded", "http://b", 100, &fasthttp.Client{})
	degraded.SetState(StateDegraded)
	assert.InDelta(t, 50.0, degraded.Score(), 0.001)

	failing := NewProvider("failing", "http://c", 100, &fasthttp.Client{})
	failing.metrics.RecordFailure()
	assert.Less(t, failing.Score(), fresh.Score())

	down := NewProvider("down", "http://d", 100, &fasthttp.Client{})
	down.SetState(StateUnhealthy)
	assert.Zero(t, down.Score())
}

func TestProviderState_String(t *testing.T) {
	assert.Equal(t, "HEALTHY", StateHealthy.String())
	assert.Equal(t, "CIRCUIT_OPEN", StateCircuitOpen.String())
	assert.Equal(t, "UNKNOWN", ProviderState(42).String())
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.EqualError(t, err, "config is required")

	_, err = NewClient(&Config{})
	assert.EqualError(t, err, "at least one provider is required")
}

// fakeProviders serves every provider host from one in-memory listener;
// the handler decides per host.
func fakeProviders(t *testing.T, h fasthttp.RequestHandler) fasthttp.DialFunc {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return func(string) (net.Conn, error) { return ln.Dial() }
}

func newTestClient(t *testing.T, cfg Config, h fasthttp.RequestHandler) *Client {
	t.Helper()
	cfg.Dial = fakeProviders(t, h)
	cfg.Timeout = time.Second
	c, err := NewClient(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Send(t *testing.T) {
	var got SendRequest
	c := newTestClient(t, Config{
		Providers: []ProviderConfig{{Name: "primary", URL: "http://primary.test/", Weight: 100}},
	}, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, sendPath, string(ctx.Path()))
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"message_id":"m-1","status":"DELIVERED","operator_id":"primary"}`)
	})

	resp, err := c.Send(context.Background(), &SendRequest{MessageID: "m-1", PhoneNumber: "+261341234567", Content: "Salama"})
	require.NoError(t, err)

	assert.True(t, resp.Accepted())
	assert.Equal(t, "+261341234567", got.PhoneNumber)

	stats := c.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Successes)
}

func TestClient_SendFailsOver(t *testing.T) {
	var primaryCalls atomic.Int32
	c := newTestClient(t, Config{
		Providers: []ProviderConfig{
			{Name: "primary", URL: "http://primary.test", Weight: 100},
			{Name: "backup", URL: "http://backup.test", Weight: 10},
		},
		MaxRetries: 1,
	}, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Host()) == "primary.test" {
			primaryCalls.Add(1)
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{"error_message":"maintenance"}`)
			return
		}
		ctx.SetBodyString(`{"message_id":"m-2","status":"PENDING","operator_id":"backup"}`)
	})

	resp, err := c.Send(context.Background(), &SendRequest{MessageID: "m-2", PhoneNumber: "0341234567", Content: "x"})
	require.NoError(t, err)

	assert.Equal(t, "backup", resp.OperatorID)
	assert.Equal(t, int32(1), primaryCalls.Load())
}

func TestClient_SendReportsProviderError(t *testing.T) {
	c := newTestClient(t, Config{
		Providers: []ProviderConfig{{Name: "only", URL: "http://only.test", Weight: 50}},
	}, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
		ctx.SetBodyString(`{"error_message":"operator down"}`)
	})

	_, err := c.Send(context.Background(), &SendRequest{MessageID: "m-3"})
	require.Error(t, err)
	assert.Equal(t, fasthttp.StatusBadGateway, errs.StatusOf(err))
	assert.Equal(t, "operator down", err.Error())
}

func TestClient_CircuitOpensAfterThreshold(t *testing.T) {
	c := newTestClient(t, Config{
		Providers:               []ProviderConfig{{Name: "flaky", URL: "http://flaky.test", Weight: 50}},
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   time.Minute,
	}, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	})

	for i := 0; i < 2; i++ {
		_, err := c.Send(context.Background(), &SendRequest{MessageID: "m"})
		require.Error(t, err)
	}

	_, err := c.Send(context.Background(), &SendRequest{MessageID: "m"})
	assert.ErrorIs(t, err, ErrNoAvailableProviders)
	assert.Equal(t, "CIRCUIT_OPEN", c.Stats()[0].State)
}

func TestClient_HealthCheck(t *testing.T) {
	c := newTestClient(t, Config{
		Providers: []ProviderConfig{
			{Name: "up", URL: "http://up.test", Weight: 50},
			{Name: "down", URL: "http://down.test", Weight: 50},
		},
	}, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Host()) == "up.test" {
			ctx.SetBodyString(`{"status":"healthy"}`)
			return
		}
		ctx.SetBodyString(`{"status":"starting"}`)
	})

	c.checkHealth()

	best, err := c.SelectBestProvider()
	require.NoError(t, err)
	assert.Equal(t, "up", best.Name())
	assert.Equal(t, StateUnhealthy, c.providers[1].State())
}

func TestClient_EvaluateDegradesFailingProvider(t *testing.T) {
	c := newTestClient(t, Config{
		Providers: []ProviderConfig{{Name: "p", URL: "http://p.test", Weight: 50}},
	}, func(ctx *fasthttp.RequestCtx) {})

	p := c.providers[0]
	p.metrics.RecordSuccess(10)
	p.metrics.RecordFailure()
	c.evaluate()
	assert.Equal(t, StateDegraded, p.State())

	for i := 0; i < 50; i++ {
		p.metrics.RecordSuccess(10)
	}
	c.evaluate()
	assert.Equal(t, StateHealthy, p.State())
}

