package services

import (
	"context"
	"sync"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	gateway "github.com/nimasrn/crm-dispatch/internal/gateways"
)

const (
	StatusUp       = "up"
	StatusDegraded = "degraded"

	checkTimeout = 3 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ProviderStater is satisfied by *gateway.Client.
type ProviderStater interface {
	Stats() []gateway.ProviderStats
}

type HealthReport struct {
	Status    string                  `json:"status"`
	Checks    map[string]string       `json:"checks"`
	Providers []gateway.ProviderStats `json:"providers,omitempty"`
}

type HealthService struct {
	names     []string
	checks    []Pinger
	providers ProviderStater
}

func NewHealthService() *HealthService {
	return &HealthService{}
}

// Register adds a dependency probed by Check. Nil pingers are ignored.
func (s *HealthService) Register(name string, p Pinger) *HealthService {
	if p != nil {
		s.names = append(s.names, name)
		s.checks = append(s.checks, p)
	}
	return s
}

func (s *HealthService) WithProviders(p ProviderStater) *HealthService {
	s.providers = p
	return s
}

// Check probes every dependency concurrently. The service stays up when a
// dependency is down, the report says which one.
func (s *HealthService) Check(ctx context.Context) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	results := make([]string, len(s.checks))
	var wg sync.WaitGroup
	for i, p := range s.checks {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = StatusUp
			if err := p.Ping(ctx); err != nil {
				results[i] = errs.Message(err, "down")
			}
		}()
	}
	wg.Wait()

	r := &HealthReport{Status: StatusUp, Checks: make(map[string]string, len(s.checks))}
	for i, name := range s.names {
		r.Checks[name] = results[i]
		if results[i] != StatusUp {
			r.Status = StatusDegraded
		}
	}
	if s.providers != nil {
		r.Providers = s.providers.Stats()
	}
	return r
}
