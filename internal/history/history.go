// Package history turns the backend email send log into the enriched,
// filterable history shown to users.
package history

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
)

// FutureTolerance is how far past now a send date may lie before it is
// treated as bad data.
const FutureTolerance = 5 * time.Minute

const noEmail = "Email non disponible"

type Options struct {
	Now time.Time
	// ClampFuture replaces send dates beyond FutureTolerance with Now and
	// marks the entry DateCorrected. Such dates come from clock skew or seed
	// data, not from real sends.
	ClampFuture bool
}

// Enrich joins every send-log entry with its contact, newest first.
func Enrich(emails []model.SentEmail, contacts []model.Contact, opts Options) []model.EmailHistoryEntry {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	loc := opts.Now.Location()

	byID := make(map[int64]model.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	out := make([]model.EmailHistoryEntry, 0, len(emails))
	for _, e := range emails {
		entry := model.EmailHistoryEntry{
			ID:        e.ID,
			ContactID: e.IDContact,
			Objet:     e.Objet,
			Message:   e.Message,
		}

		c, ok := byID[e.IDContact]
		if !ok && e.Contact != nil {
			c, ok = *e.Contact, true
		}
		entry.ContactName = model.Recipient{ID: e.IDContact}.DisplayName()
		entry.ContactEmail = noEmail
		if ok {
			entry.ContactName = model.Recipient{ID: e.IDContact, Prenom: c.Prenom, Nom: c.Nom}.DisplayName()
			if email := strings.TrimSpace(c.Email); email != "" {
				entry.ContactEmail = email
			}
			entry.ContactFunction = c.Fonction
		}

		sentAt, parsed := model.ParseBackendTime(e.DateEnvoyee, loc)
		if !parsed {
			logger.Warn("email log entry has an unreadable date", "id", e.ID, "date", e.DateEnvoyee)
		}
		if opts.ClampFuture && sentAt.After(opts.Now.Add(FutureTolerance)) {
			logger.Warn("email log entry dated in the future, using now", "id", e.ID, "date", e.DateEnvoyee)
			sentAt = opts.Now
			entry.DateCorrected = true
		}
		entry.SentAt = sentAt
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out
}

// PeriodStart is the earliest send date kept by p, or the zero time for
// PeriodAll and unknown periods.
func PeriodStart(p model.HistoryPeriod, now time.Time) time.Time {
	switch p {
	case model.PeriodToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case model.PeriodWeek:
		return now.AddDate(0, 0, -7)
	case model.PeriodMonth:
		return now.AddDate(0, -1, 0)
	case model.PeriodThreeMonths:
		return now.AddDate(0, -3, 0)
	default:
		return time.Time{}
	}
}

func Filter(entries []model.EmailHistoryEntry, f model.HistoryFilter, now time.Time) []model.EmailHistoryEntry {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	start := PeriodStart(f.Period, now)

	out := make([]model.EmailHistoryEntry, 0, len(entries))
	for _, e := range entries {
		if search != "" && !matches(e, search) {
			continue
		}
		if f.ContactID != 0 && e.ContactID != f.ContactID {
			continue
		}
		if !start.IsZero() && e.SentAt.Before(start) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matches(e model.EmailHistoryEntry, search string) bool {
	for _, field := range []string{e.Objet, e.Message, e.ContactName, e.ContactEmail} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// Stats expects entries sorted newest first, as Enrich returns them.
func Stats(entries []model.EmailHistoryEntry) model.HistoryStats {
	contacts := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		contacts[e.ContactID] = struct{}{}
	}
	s := model.HistoryStats{Total: len(entries), UniqueContacts: len(contacts)}
	if len(entries) > 0 {
		last := entries[0].SentAt
		s.LastSentAt = &last
	}
	return s
}

func ExportCSV(w io.Writer, entries []model.EmailHistoryEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Objet", "Contact", "Email", "Fonction", "Message"}); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.SentAt.Format("02/01/2006 15:04"),
			e.Objet,
			e.ContactName,
			e.ContactEmail,
			e.ContactFunction,
			e.Message,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
