package services

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticList[T any] struct {
	items []T
	err   error
}

func (s staticList[T]) List(context.Context) ([]T, error) {
	return s.items, s.err
}

func TestDashboardService_RefreshSettlesAll(t *testing.T) {
	now := time.Date(2025, 7, 19, 10, 0, 0, 0, time.UTC)
	svc := NewDashboardService(DashboardSources{
		Contacts:     staticList[model.Contact]{items: []model.Contact{{ID: 1}, {ID: 2}}},
		Entreprises:  staticList[model.Entreprise]{err: errs.Network(assert.AnError, "timeout")},
		Campagnes:    staticList[model.Campagne]{items: []model.Campagne{{}}},
		Utilisateurs: staticList[model.Utilisateur]{err: errs.Transport(500, "boom")},
		Actions: staticList[model.HistoriqueAction]{items: []model.HistoriqueAction{
			{Action: "Email", Date: "2025-07-19T08:00:00Z", PourcentageVente: 40},
			{Action: "appel", Date: "2025-07-18T08:00:00Z", PourcentageVente: 20},
		}},
		Opportunites: staticList[model.Opportunite]{items: []model.Opportunite{{Montant: decimal.NewFromInt(1000), EtapePipeline: "prospection"}}},
	}, func() time.Time { return now })

	s, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, s.Totals.Contacts)
	assert.Zero(t, s.Totals.Entreprises)
	assert.Equal(t, 1, s.Totals.Campagnes)
	assert.Equal(t, 2, s.Totals.Actions)
	assert.Equal(t, 30, s.AverageSalePercent)
	assert.True(t, decimal.NewFromInt(1000).Equal(s.PipelineValue))
	require.Len(t, s.ActionSeries, 7)
	assert.Equal(t, 1, s.ActionSeries[6].Total)

	assert.Equal(t, []string{
		"entreprises: cannot reach the server",
		"utilisateurs: server rejected the request: boom",
	}, s.Warnings)
}

func TestDashboardService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDashboardService(DashboardSources{}, nil).Refresh(ctx)
	assert.True(t, errs.Is(err, errs.KindNetwork))
}
