package model

import "github.com/shopspring/decimal"

// ChartSeriesPoint is one day bucket of the action chart.
type ChartSeriesPoint struct {
	Label       string         `json:"label"`
	Date        string         `json:"date"`
	Total       int            `json:"total"`
	PerCategory map[string]int `json:"perCategory"`
}

// SalesPoint is one day bucket of the sales chart. Percentage is the rounded
// average pourcentageVente of the day.
type SalesPoint struct {
	Label      string `json:"label"`
	Date       string `json:"date"`
	Percentage int    `json:"percentage"`
	Actions    int    `json:"actions"`
}

type DashboardTotals struct {
	Contacts     int `json:"contacts"`
	Entreprises  int `json:"entreprises"`
	Campagnes    int `json:"campagnes"`
	Utilisateurs int `json:"utilisateurs"`
	Actions      int `json:"actions"`
	Opportunites int `json:"opportunites"`
	Interactions int `json:"interactions"`
}

type DashboardSummary struct {
	Totals             DashboardTotals    `json:"totals"`
	AverageSalePercent int                `json:"averageSalePercent"`
	ActionsByCategory  map[string]int     `json:"actionsByCategory"`
	PipelineValue      decimal.Decimal    `json:"pipelineValue"`
	RecentActions      []HistoriqueAction `json:"recentActions"`
	RecentContacts     []Contact          `json:"recentContacts"`
	ActionSeries       []ChartSeriesPoint `json:"actionSeries"`
	SalesSeries        []SalesPoint       `json:"salesSeries"`
	Warnings           []string           `json:"warnings,omitempty"`
}
