package prom

import (
	"sync"

	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemDispatch = "dispatch"
	SystemBackend  = "backend"
	SystemGateway  = "sms_gateway"
	SystemJobs     = "jobs"
)

type metrics struct {
	registry *prometheus.Registry

	dispatchResults  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	backendRequests  *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	jobTransitions   *prometheus.CounterVec
}

var (
	mu      sync.RWMutex
	current *metrics
)

// Create builds the collectors and enables the Observe helpers. Calling it
// again replaces the previous set.
func Create(host, env, namespace string) error {
	labels := prometheus.Labels{"env": env, "instance": host}
	counter := func(subsystem, name, help string, keys ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: labels,
		}, keys)
	}
	histogram := func(subsystem, name, help string, keys ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}, keys)
	}

	m := &metrics{
		registry:         prometheus.NewRegistry(),
		dispatchResults:  counter(SystemDispatch, "results_total", "Per-recipient dispatch outcomes.", "channel", "outcome"),
		dispatchDuration: histogram(SystemDispatch, "duration_seconds", "Wall time of a whole dispatch.", "channel"),
		backendRequests:  counter(SystemBackend, "requests_total", "Requests made to the CRM backend.", "method", "outcome"),
		gatewayLatency:   histogram(SystemGateway, "provider_latency_seconds", "SMS provider round trip.", "provider"),
		jobTransitions:   counter(SystemJobs, "transitions_total", "Asynchronous job state changes.", "state"),
	}
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dispatchResults, m.dispatchDuration, m.backendRequests, m.gatewayLatency, m.jobTransitions,
	} {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}

	mu.Lock()
	current = m
	mu.Unlock()
	return nil
}

// Disable turns the Observe helpers back into no-ops.
func Disable() {
	mu.Lock()
	current = nil
	mu.Unlock()
}

func get() *metrics {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// ListenAndServer exposes the registry created by Create on addr.
func ListenAndServer(addr string, path string) {
	m := get()
	if m == nil {
		logger.Warn("metrics not created, exporter not started")
		return
	}
	s := xhttp.CreateServer()
	s.GET(path, fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})))
	logger.Info("metrics exporter listening", "addr", addr, "path", path)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Panic("metrics exporter failed", "error", err)
	}
}

// ObserveDispatchResult counts one per-recipient outcome.
func ObserveDispatchResult(channel string, succeeded bool) {
	if m := get(); m != nil {
		m.dispatchResults.WithLabelValues(channel, outcome(succeeded, "succeeded", "failed")).Inc()
	}
}

func ObserveDispatchDuration(channel string, seconds float64) {
	if m := get(); m != nil {
		m.dispatchDuration.WithLabelValues(channel).Observe(seconds)
	}
}

func ObserveBackendRequest(method string, err error) {
	if m := get(); m != nil {
		m.backendRequests.WithLabelValues(method, outcome(err == nil, "ok", "error")).Inc()
	}
}

func ObserveGatewayLatency(provider string, seconds float64) {
	if m := get(); m != nil {
		m.gatewayLatency.WithLabelValues(provider).Observe(seconds)
	}
}

func ObserveJobState(state string) {
	if m := get(); m != nil {
		m.jobTransitions.WithLabelValues(state).Inc()
	}
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
