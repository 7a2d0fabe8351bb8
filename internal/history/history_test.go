package history

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 7, 19, 10, 0, 0, 0, time.UTC)

func sample() ([]model.SentEmail, []model.Contact) {
	emails := []model.SentEmail{
		{ID: 1, IDContact: 10, Objet: "Offre", Message: "Bonjour Ana", DateEnvoyee: "2025-07-18T09:00:00Z"},
		{ID: 2, IDContact: 11, Objet: "Relance", Message: "Texte", DateEnvoyee: "2025-07-19T09:30:00Z"},
		{ID: 3, IDContact: 99, Objet: "Ancien", Message: "x", DateEnvoyee: "2025-03-01"},
		{ID: 4, IDContact: 10, Objet: "Seed", Message: "y", DateEnvoyee: "2026-01-01T00:00:00Z"},
	}
	contacts := []model.Contact{
		{ID: 10, Prenom: "Ana", Nom: "Rabe", Email: "ana@ex.mg", Fonction: "DG"},
		{ID: 11, Prenom: "Hery"},
	}
	return emails, contacts
}

func TestEnrich(t *testing.T) {
	emails, contacts := sample()

	got := Enrich(emails, contacts, Options{Now: now, ClampFuture: true})

	require.Len(t, got, 4)
	assert.Equal(t, []int64{4, 2, 1, 3}, []int64{got[0].ID, got[1].ID, got[2].ID, got[3].ID})

	assert.True(t, got[0].DateCorrected)
	assert.Equal(t, now, got[0].SentAt)

	assert.Equal(t, "Ana Rabe", got[2].ContactName)
	assert.Equal(t, "ana@ex.mg", got[2].ContactEmail)
	assert.Equal(t, "DG", got[2].ContactFunction)

	assert.Equal(t, "Hery", got[1].ContactName)
	assert.Equal(t, noEmail, got[1].ContactEmail)

	assert.Equal(t, "Contact #99", got[3].ContactName)
	assert.Equal(t, "", got[3].ContactFunction)
}

func TestEnrich_ClampDisabledAndTolerance(t *testing.T) {
	emails := []model.SentEmail{
		{ID: 1, DateEnvoyee: now.Add(4 * time.Minute).Format(time.RFC3339)},
		{ID: 2, DateEnvoyee: now.Add(time.Hour).Format(time.RFC3339)},
	}

	clamped := Enrich(emails, nil, Options{Now: now, ClampFuture: true})
	require.Len(t, clamped, 2)
	assert.Equal(t, int64(1), clamped[0].ID)
	assert.False(t, clamped[0].DateCorrected)
	assert.True(t, clamped[1].DateCorrected)

	kept := Enrich(emails, nil, Options{Now: now})
	assert.Equal(t, now.Add(time.Hour), kept[0].SentAt)
	assert.False(t, kept[0].DateCorrected)
}

func TestEnrich_NestedContactFallback(t *testing.T) {
	got := Enrich([]model.SentEmail{{ID: 1, IDContact: 5, Contact: &model.Contact{ID: 5, Nom: "Rasoa", Email: " r@ex.mg "}}}, nil, Options{Now: now})

	assert.Equal(t, "Rasoa", got[0].ContactName)
	assert.Equal(t, "r@ex.mg", got[0].ContactEmail)
}

func TestFilter(t *testing.T) {
	emails, contacts := sample()
	entries := Enrich(emails, contacts, Options{Now: now, ClampFuture: true})

	tests := []struct {
		name   string
		filter model.HistoryFilter
		want   []int64
	}{
		{"all", model.HistoryFilter{Period: model.PeriodAll}, []int64{4, 2, 1, 3}},
		{"search subject", model.HistoryFilter{Search: "RELANCE"}, []int64{2}},
		{"search contact email", model.HistoryFilter{Search: "ana@"}, []int64{4, 1}},
		{"contact", model.HistoryFilter{ContactID: 10}, []int64{4, 1}},
		{"today", model.HistoryFilter{Period: model.PeriodToday}, []int64{4, 2}},
		{"week", model.HistoryFilter{Period: model.PeriodWeek}, []int64{4, 2, 1}},
		{"3 months", model.HistoryFilter{Period: model.PeriodThreeMonths}, []int64{4, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(entries, tt.filter, now)
			ids := make([]int64, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStats(t *testing.T) {
	emails, contacts := sample()
	s := Stats(Enrich(emails, contacts, Options{Now: now, ClampFuture: true}))

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.UniqueContacts)
	require.NotNil(t, s.LastSentAt)
	assert.Equal(t, now, *s.LastSentAt)

	assert.Nil(t, Stats(nil).LastSentAt)
}

func TestExportCSV(t *testing.T) {
	entries := []model.EmailHistoryEntry{{
		SentAt:      time.Date(2025, 7, 18, 9, 5, 0, 0, time.UTC),
		Objet:       `Offre "été"`,
		ContactName: "Ana Rabe",
		Message:     "Ligne",
	}}

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, entries))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "Date,Objet,Contact,Email,Fonction,Message", lines[0])
	assert.Equal(t, `18/07/2025 09:05,"Offre ""été""",Ana Rabe,,,Ligne`, lines[1])
}
