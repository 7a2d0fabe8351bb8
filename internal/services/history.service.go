package services

import (
	"context"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/history"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// EmailArchive is satisfied by backend.Client.Emails.
type EmailArchive interface {
	List(ctx context.Context) ([]model.SentEmail, error)
	Delete(ctx context.Context, id int64) error
}

type HistoryService struct {
	emails      EmailArchive
	contacts    Lister[model.Contact]
	clampFuture bool
	now         func() time.Time
}

type HistoryPage struct {
	Entries []model.EmailHistoryEntry `json:"entries"`
	Stats   model.HistoryStats        `json:"stats"`
}

func NewHistoryService(emails EmailArchive, contacts Lister[model.Contact], clampFuture bool) *HistoryService {
	return &HistoryService{emails: emails, contacts: contacts, clampFuture: clampFuture, now: time.Now}
}

// List returns the filtered history. Stats cover the whole history.
func (s *HistoryService) List(ctx context.Context, f model.HistoryFilter) (*HistoryPage, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{
		Entries: history.Filter(all, f, s.now()),
		Stats:   history.Stats(all),
	}, nil
}

// all loads the send log and the contacts together. Without contacts the
// entries still come back, named "Contact #id".
func (s *HistoryService) all(ctx context.Context) ([]model.EmailHistoryEntry, error) {
	var (
		emails   []model.SentEmail
		contacts []model.Contact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		emails, err = s.emails.List(gctx)
		return err
	})
	g.Go(func() error {
		list, err := s.contacts.List(gctx)
		if err != nil {
			logger.Warn("contacts unavailable for email history", "error", err)
			return nil
		}
		contacts = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return history.Enrich(emails, contacts, history.Options{
		Now:         s.now(),
		ClampFuture: s.clampFuture,
	}), nil
}

func (s *HistoryService) Export(ctx context.Context, f model.HistoryFilter) ([]model.EmailHistoryEntry, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return history.Filter(all, f, s.now()), nil
}

func (s *HistoryService) Delete(ctx context.Context, id int64) error {
	return s.emails.Delete(ctx, id)
}
