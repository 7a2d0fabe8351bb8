package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/dashboard"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Lister is satisfied by every backend.Resource.
type Lister[T any] interface {
	List(ctx context.Context) ([]T, error)
}

// DashboardSources are the collections a refresh reads.
type DashboardSources struct {
	Contacts     Lister[model.Contact]
	Entreprises  Lister[model.Entreprise]
	Campagnes    Lister[model.Campagne]
	Utilisateurs Lister[model.Utilisateur]
	Actions      Lister[model.HistoriqueAction]
	Opportunites Lister[model.Opportunite]
	Interactions Lister[model.Interaction]
}

type DashboardService struct {
	src DashboardSources
	now func() time.Time
}

func NewDashboardService(src DashboardSources, now func() time.Time) *DashboardService {
	if now == nil {
		now = time.Now
	}
	return &DashboardService{src: src, now: now}
}

// Refresh fetches every collection concurrently and waits for all of them.
// A failed fetch leaves its collection empty and adds a warning.
func (s *DashboardService) Refresh(ctx context.Context) (*model.DashboardSummary, error) {
	var (
		in       dashboard.Input
		mu       sync.Mutex
		warnings []string
		g        errgroup.Group
	)
	warn := func(name string, err error) {
		logger.Warn("dashboard fetch failed", "collection", name, "error", err)
		mu.Lock()
		warnings = append(warnings, name+": "+errs.UserMessage(err))
		mu.Unlock()
	}

	fetch(&g, ctx, "contacts", s.src.Contacts, &in.Contacts, warn)
	fetch(&g, ctx, "entreprises", s.src.Entreprises, &in.Entreprises, warn)
	fetch(&g, ctx, "campagnes", s.src.Campagnes, &in.Campagnes, warn)
	fetch(&g, ctx, "utilisateurs", s.src.Utilisateurs, &in.Utilisateurs, warn)
	fetch(&g, ctx, "historique-actions", s.src.Actions, &in.Actions, warn)
	fetch(&g, ctx, "opportunites", s.src.Opportunites, &in.Opportunites, warn)
	fetch(&g, ctx, "interactions", s.src.Interactions, &in.Interactions, warn)
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, errs.Network(err, "dashboard refresh aborted")
	}

	summary := dashboard.Summarize(in, s.now())
	summary.Warnings = sortedWarnings(warnings)
	return summary, nil
}

func fetch[T any](g *errgroup.Group, ctx context.Context, name string, src Lister[T], dst *[]T, warn func(string, error)) {
	if src == nil {
		return
	}
	g.Go(func() error {
		items, err := src.List(ctx)
		if err != nil {
			warn(name, err)
			return nil
		}
		*dst = items
		return nil
	})
}

// warnings arrive in completion order.
func sortedWarnings(w []string) []string {
	sort.Strings(w)
	return w
}
