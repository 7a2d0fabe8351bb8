package gateway

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

const latencyWindow = 100

// ProviderMetrics tracks the recent behaviour of one SMS provider.
type ProviderMetrics struct {
	Requests         atomic.Int64
	Successes        atomic.Int64
	Failures         atomic.Int64
	TotalLatencyMs   atomic.Int64
	LastLatencyMs    atomic.Int64
	ConsecutiveFails atomic.Int32
	LastFailureAt    atomic.Int64
	LastSuccessAt    atomic.Int64

	mu        sync.Mutex
	latencies []int64
}

func NewProviderMetrics() *ProviderMetrics {
	return &ProviderMetrics{latencies: make([]int64, 0, latencyWindow)}
}

func (m *ProviderMetrics) RecordSuccess(latencyMs int64) {
	m.Requests.Add(1)
	m.Successes.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.LastLatencyMs.Store(latencyMs)
	m.ConsecutiveFails.Store(0)
	m.LastSuccessAt.Store(time.Now().Unix())

	m.mu.Lock()
	if len(m.latencies) == latencyWindow {
		m.latencies = m.latencies[1:]
	}
	m.latencies = append(m.latencies, latencyMs)
	m.mu.Unlock()
}

func (m *ProviderMetrics) RecordFailure() {
	m.Requests.Add(1)
	m.Failures.Add(1)
	m.ConsecutiveFails.Add(1)
	m.LastFailureAt.Store(time.Now().Unix())
}

// AvgLatencyMs averages over successful calls only.
func (m *ProviderMetrics) AvgLatencyMs() int64 {
	ok := m.Successes.Load()
	if ok == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / ok
}

// SuccessRate is 1 for a provider never used.
func (m *ProviderMetrics) SuccessRate() float64 {
	total := m.Requests.Load()
	if total == 0 {
		return 1
	}
	return float64(m.Successes.Load()) / float64(total)
}

func (m *ProviderMetrics) P95LatencyMs() int64 {
	m.mu.Lock()
	sorted := append([]int64(nil), m.latencies...)
	m.mu.Unlock()
	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type ProviderState int32

const (
	StateHealthy ProviderState = iota
	StateDegraded
	StateUnhealthy
	StateCircuitOpen
)

func (s ProviderState) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateUnhealthy:
		return "UNHEALTHY"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Provider is one upstream SMS API.
type Provider struct {
	name      string
	url       string
	http      *fasthttp.Client
	metrics   *ProviderMetrics
	state     atomic.Int32
	weight    int
	checkedAt atomic.Int64
	openUntil atomic.Int64
}

func NewProvider(name, url string, weight int, client *fasthttp.Client) *Provider {
	p := &Provider{
		name:    name,
		url:     url,
		http:    client,
		metrics: NewProviderMetrics(),
		weight:  weight,
	}
	p.SetState(StateHealthy)
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) State() ProviderState {
	return ProviderState(p.state.Load())
}

func (p *Provider) SetState(s ProviderState) {
	p.state.Store(int32(s))
}

// IsAvailable half-opens an expired circuit into the degraded state.
func (p *Provider) IsAvailable() bool {
	switch p.State() {
	case StateUnhealthy:
		return false
	case StateCircuitOpen:
		if time.Now().Unix() <= p.openUntil.Load() {
			return false
		}
		p.SetState(StateDegraded)
	}
	return true
}

// Score ranks available providers, higher is better. It mixes success
// rate, latency and configured weight, then applies penalties for recent
// failures and a degraded state.
func (p *Provider) Score() float64 {
	if !p.IsAvailable() {
		return 0
	}

	success := p.metrics.SuccessRate() * 100

	latency := 100.0
	if avg := p.metrics.AvgLatencyMs(); avg > 0 {
		// 0ms scores 100, 5s and above scores 0
		latency = max(0, 100*(1-float64(avg)/5000))
	}

	recent := max(0.1, 1-float64(p.metrics.ConsecutiveFails.Load())*0.1)

	state := 1.0
	if p.State() == StateDegraded {
		state = 0.5
	}

	return (success*0.4 + latency*0.4 + float64(p.weight)*0.2) * recent * state
}

type ProviderStats struct {
	Name             string  `json:"name"`
	URL              string  `json:"url"`
	State            string  `json:"state"`
	Score            float64 `json:"score"`
	Requests         int64   `json:"requests"`
	Successes        int64   `json:"successes"`
	Failures         int64   `json:"failures"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMs     int64   `json:"avg_latency_ms"`
	P95LatencyMs     int64   `json:"p95_latency_ms"`
	LastLatencyMs    int64   `json:"last_latency_ms"`
	ConsecutiveFails int32   `json:"consecutive_fails"`
}

func sortStats(stats []ProviderStats) {
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Score > stats[j].Score })
}

func (p *Provider) Stats() ProviderStats {
	m := p.metrics
	return ProviderStats{
		Name:             p.name,
		URL:              p.url,
		State:            p.State().String(),
		Score:            p.Score(),
		Requests:         m.Requests.Load(),
		Successes:        m.Successes.Load(),
		Failures:         m.Failures.Load(),
		SuccessRate:      m.SuccessRate(),
		AvgLatencyMs:     m.AvgLatencyMs(),
		P95LatencyMs:     m.P95LatencyMs(),
		LastLatencyMs:    m.LastLatencyMs.Load(),
		ConsecutiveFails: m.ConsecutiveFails.Load(),
	}
}
