// Package dashboard derives the dashboard figures and seven-day chart
// series from raw CRM collections. Everything here is pure.
package dashboard

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/shopspring/decimal"
)

const (
	Days = 7

	CategoryEmail   = "email"
	CategoryAppel   = "appel"
	CategoryReunion = "réunion"
	CategoryVisite  = "visite"
	CategoryAutres  = "autres"

	recentLimit = 5
)

var dayLabels = [...]string{"Dim", "Lun", "Mar", "Mer", "Jeu", "Ven", "Sam"}

// Category maps a free-text action to its chart category, or "" when it is
// not part of the known vocabulary.
func Category(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "email":
		return CategoryEmail
	case "appel":
		return CategoryAppel
	case "réunion", "reunion":
		return CategoryReunion
	case "visite":
		return CategoryVisite
	default:
		return ""
	}
}

type bucket struct {
	label string
	date  string
	items []model.HistoriqueAction
}

// buckets splits actions into the calendar days now-6 .. now, in the
// location of now. Actions outside the span are dropped.
func buckets(actions []model.HistoriqueAction, now time.Time) []bucket {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	out := make([]bucket, Days)
	index := make(map[string]int, Days)
	for i := range out {
		day := today.AddDate(0, 0, i-(Days-1))
		key := day.Format(time.DateOnly)
		out[i] = bucket{label: dayLabels[day.Weekday()], date: key}
		index[key] = i
	}

	for _, a := range actions {
		t, ok := model.ParseBackendTime(a.Date, loc)
		if !ok {
			continue
		}
		if i, ok := index[t.Format(time.DateOnly)]; ok {
			out[i].items = append(out[i].items, a)
		}
	}
	return out
}

// BuildActionSeries counts actions per day and known category.
func BuildActionSeries(actions []model.HistoriqueAction, now time.Time) []model.ChartSeriesPoint {
	series := make([]model.ChartSeriesPoint, 0, Days)
	for _, b := range buckets(actions, now) {
		p := model.ChartSeriesPoint{
			Label: b.label,
			Date:  b.date,
			Total: len(b.items),
			PerCategory: map[string]int{
				CategoryEmail:   0,
				CategoryAppel:   0,
				CategoryReunion: 0,
				CategoryVisite:  0,
			},
		}
		for _, a := range b.items {
			if c := Category(a.Action); c != "" {
				p.PerCategory[c]++
			}
		}
		series = append(series, p)
	}
	return series
}

// BuildSalesSeries averages pourcentageVente per day.
func BuildSalesSeries(actions []model.HistoriqueAction, now time.Time) []model.SalesPoint {
	series := make([]model.SalesPoint, 0, Days)
	for _, b := range buckets(actions, now) {
		p := model.SalesPoint{Label: b.label, Date: b.date, Actions: len(b.items)}
		if len(b.items) > 0 {
			var sum float64
			for _, a := range b.items {
				sum += a.PourcentageVente
			}
			p.Percentage = int(math.Round(sum / float64(len(b.items))))
		}
		series = append(series, p)
	}
	return series
}

// CountByCategory counts every action, unknown ones under "autres".
func CountByCategory(actions []model.HistoriqueAction) map[string]int {
	counts := map[string]int{
		CategoryEmail:   0,
		CategoryAppel:   0,
		CategoryReunion: 0,
		CategoryVisite:  0,
		CategoryAutres:  0,
	}
	for _, a := range actions {
		c := Category(a.Action)
		if c == "" {
			c = CategoryAutres
		}
		counts[c]++
	}
	return counts
}

// Input holds the raw collections fetched for one refresh.
type Input struct {
	Contacts     []model.Contact
	Entreprises  []model.Entreprise
	Campagnes    []model.Campagne
	Utilisateurs []model.Utilisateur
	Actions      []model.HistoriqueAction
	Opportunites []model.Opportunite
	Interactions []model.Interaction
}

func Summarize(in Input, now time.Time) *model.DashboardSummary {
	s := &model.DashboardSummary{
		Totals: model.DashboardTotals{
			Contacts:     len(in.Contacts),
			Entreprises:  len(in.Entreprises),
			Campagnes:    len(in.Campagnes),
			Utilisateurs: len(in.Utilisateurs),
			Actions:      len(in.Actions),
			Opportunites: len(in.Opportunites),
			Interactions: len(in.Interactions),
		},
		ActionsByCategory: CountByCategory(in.Actions),
		PipelineValue:     decimal.Zero,
		RecentActions:     recentActions(in.Actions, now.Location()),
		RecentContacts:    head(in.Contacts, recentLimit),
		ActionSeries:      BuildActionSeries(in.Actions, now),
		SalesSeries:       BuildSalesSeries(in.Actions, now),
	}

	if len(in.Actions) > 0 {
		var sum float64
		for _, a := range in.Actions {
			sum += a.PourcentageVente
		}
		s.AverageSalePercent = int(math.Round(sum / float64(len(in.Actions))))
	}

	for _, o := range in.Opportunites {
		if !o.Closed() {
			s.PipelineValue = s.PipelineValue.Add(o.Montant)
		}
	}
	return s
}

// recentActions is newest first; undated actions sort last.
func recentActions(actions []model.HistoriqueAction, loc *time.Location) []model.HistoriqueAction {
	sorted := append([]model.HistoriqueAction(nil), actions...)
	at := func(a model.HistoriqueAction) time.Time {
		t, _ := model.ParseBackendTime(a.Date, loc)
		return t
	}
	sort.SliceStable(sorted, func(i, j int) bool { return at(sorted[i]).After(at(sorted[j])) })
	return head(sorted, recentLimit)
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		items = items[:n]
	}
	return append([]T{}, items...)
}
