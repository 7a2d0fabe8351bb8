package dashboard

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/model"
)

// ExportCSV writes the "Type,Valeur" figures, a blank line and the recent
// actions.
func ExportCSV(w io.Writer, s *model.DashboardSummary, loc *time.Location) error {
	cw := csv.NewWriter(w)
	figures := [][]string{
		{"Type", "Valeur"},
		{"Total Contacts", strconv.Itoa(s.Totals.Contacts)},
		{"Total Entreprises", strconv.Itoa(s.Totals.Entreprises)},
		{"Total Campagnes", strconv.Itoa(s.Totals.Campagnes)},
		{"Total Actions", strconv.Itoa(s.Totals.Actions)},
		{"Pourcentage Vente Moyen", strconv.Itoa(s.AverageSalePercent) + "%"},
		{"Valeur Pipeline", s.PipelineValue.StringFixed(2)},
	}
	if err := cw.WriteAll(figures); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}

	if err := cw.Write([]string{"Actions Récentes"}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Date", "Commentaire", "Pourcentage Vente"}); err != nil {
		return err
	}
	for _, a := range s.RecentActions {
		row := []string{
			FormatDate(a.Date, loc),
			a.Commentaire,
			strconv.FormatFloat(a.PourcentageVente, 'f', -1, 64) + "%",
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatDate renders a backend date as dd/mm/yyyy, or returns it unchanged
// when it cannot be parsed.
func FormatDate(s string, loc *time.Location) string {
	t, ok := model.ParseBackendTime(s, loc)
	if !ok {
		return s
	}
	return t.Format("02/01/2006")
}
