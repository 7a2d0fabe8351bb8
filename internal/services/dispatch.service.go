package services

import (
	"context"
	"net/http"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/backend"
	"github.com/nimasrn/crm-dispatch/internal/dispatch"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/internal/repository"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoRecipients     = errs.Validation("Aucun contact spécifié")
	ErrContactsNotFound = errs.NotFound("Aucun contact trouvé avec les IDs fournis")
)

// ContactSource is satisfied by backend.Client.Contacts.
type ContactSource interface {
	Get(ctx context.Context, id string) (*model.Contact, error)
}

// EmailLog is satisfied by backend.Client.Emails.
type EmailLog interface {
	Save(ctx context.Context, contactID int64, msg model.Message, sentAt time.Time) error
}

type DispatchRepository interface {
	Create(ctx context.Context, report *model.DispatchReport) (*model.DispatchReport, error)
	Get(ctx context.Context, id string) (*model.DispatchReport, error)
	List(ctx context.Context, f model.DispatchFilter) ([]*model.DispatchReport, int64, error)
	Stats(ctx context.Context, f model.DispatchFilter) (*model.DispatchStats, error)
}

type Engine interface {
	Dispatch(ctx context.Context, channel model.Channel, recipients []model.Recipient, tpl model.Message) (*model.DispatchReport, error)
}

type DispatchService struct {
	engine   Engine
	contacts ContactSource
	emailLog EmailLog
	reports  DispatchRepository
	now      func() time.Time
}

// NewDispatchService wires the engine to recipient resolution. emailLog and
// reports are optional.
func NewDispatchService(engine Engine, contacts ContactSource, emailLog EmailLog, reports DispatchRepository) *DispatchService {
	return &DispatchService{
		engine:   engine,
		contacts: contacts,
		emailLog: emailLog,
		reports:  reports,
		now:      time.Now,
	}
}

// Dispatch resolves the recipients, sends, then records the outcome. The
// recording steps never change the returned report.
func (s *DispatchService) Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchReport, error) {
	if err := dispatch.ValidateTemplate(req.Channel, req.Template); err != nil {
		return nil, err
	}
	recipients, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	report, err := s.engine.Dispatch(ctx, req.Channel, recipients, req.Template)
	if err != nil {
		return nil, err
	}

	s.logSent(ctx, report, recipients, req.Template)
	s.persist(ctx, report)
	return report, nil
}

func (s *DispatchService) resolve(ctx context.Context, req model.DispatchRequest) ([]model.Recipient, error) {
	if len(req.Contacts) > 0 {
		out := make([]model.Recipient, len(req.Contacts))
		for i, c := range req.Contacts {
			out[i] = c.Recipient()
		}
		return out, nil
	}
	if len(req.ContactIDs) == 0 {
		return nil, ErrNoRecipients
	}

	found := make([]*model.Contact, len(req.ContactIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range req.ContactIDs {
		i, id := i, id
		g.Go(func() error {
			c, err := s.contacts.Get(gctx, backend.ID(id))
			if missing(err) {
				logger.Warn("contact not found, skipping", "contact_id", id)
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.Recipient, 0, len(found))
	for _, c := range found {
		if c != nil {
			out = append(out, c.Recipient())
		}
	}
	if len(out) == 0 {
		return nil, ErrContactsNotFound
	}
	return out, nil
}

func missing(err error) bool {
	return errs.Is(err, errs.KindNotFound) ||
		(errs.Is(err, errs.KindTransport) && errs.StatusOf(err) == http.StatusNotFound)
}

// logSent writes one send-log entry per delivered email, carrying the
// personalized copy that recipient received. Results follow recipients
// index for index. Writes run concurrently and never fail the dispatch.
func (s *DispatchService) logSent(ctx context.Context, report *model.DispatchReport, recipients []model.Recipient, tpl model.Message) {
	if s.emailLog == nil || report.Channel != model.ChannelEmail {
		return
	}
	sentAt := s.now()
	var g errgroup.Group
	for i, r := range report.Results {
		if !r.Succeeded || i >= len(recipients) {
			continue
		}
		msg := dispatch.Personalize(tpl, recipients[i])
		r := r
		g.Go(func() error {
			if err := s.emailLog.Save(ctx, r.RecipientID, msg, sentAt); err != nil {
				logger.Warn("send log write failed", "contact_id", r.RecipientID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *DispatchService) persist(ctx context.Context, report *model.DispatchReport) {
	if s.reports == nil {
		return
	}
	saved, err := s.reports.Create(ctx, report)
	if err != nil {
		logger.Warn("dispatch report not persisted", "channel", report.Channel, "error", err)
		return
	}
	report.ID = saved.ID
}

func (s *DispatchService) Get(ctx context.Context, id string) (*model.DispatchReport, error) {
	if s.reports == nil {
		return nil, errs.NotFound("dispatch %s not found", id)
	}
	report, err := s.reports.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NotFound("dispatch %s not found", id)
	}
	return report, err
}

func (s *DispatchService) List(ctx context.Context, f model.DispatchFilter) ([]*model.DispatchReport, int64, error) {
	if s.reports == nil {
		return nil, 0, nil
	}
	return s.reports.List(ctx, f)
}

func (s *DispatchService) Stats(ctx context.Context, f model.DispatchFilter) (*model.DispatchStats, error) {
	if s.reports == nil {
		return &model.DispatchStats{ByChannel: map[model.Channel]int64{}}, nil
	}
	return s.reports.Stats(ctx, f)
}
