package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/prom"
)

const unknownError = "unknown error"

// Delivery is what a provider answered for one recipient. A provider may
// refuse a message without an error value by setting Failed.
type Delivery struct {
	MessageID string
	Failed    bool
	Error     string
}

// Sender delivers one already personalized message on its channel.
type Sender interface {
	Channel() model.Channel
	Send(ctx context.Context, r model.Recipient, msg model.Message) (Delivery, error)
}

// BatchOutcome is the answer of a BatchSender for one recipient.
type BatchOutcome struct {
	RecipientID int64
	Delivery    Delivery
	Err         error
}

// BatchSender delivers to every recipient in one provider call. The
// provider personalizes the template itself.
type BatchSender interface {
	Channel() model.Channel
	SendBatch(ctx context.Context, recipients []model.Recipient, tpl model.Message) ([]BatchOutcome, error)
}

// Preflighter is implemented by senders that can tell before a dispatch
// that nothing will go out, typically missing credentials.
type Preflighter interface {
	Preflight() error
}

type Engine struct {
	senders map[model.Channel]Sender
	batch   map[model.Channel]BatchSender
	now     func() time.Time
}

type Option func(*Engine)

func WithSender(s Sender) Option {
	return func(e *Engine) { e.senders[s.Channel()] = s }
}

// WithBatchSender makes channel use one bulk call instead of a per-recipient fan-out.
func WithBatchSender(s BatchSender) Option {
	return func(e *Engine) { e.batch[s.Channel()] = s }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		senders: make(map[model.Channel]Sender),
		batch:   make(map[model.Channel]BatchSender),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch validates, sends to every recipient concurrently and waits for all
// sends to settle. Only validation and configuration problems are returned as
// errors; a failed send is a failed result in the report, at the index of
// its recipient.
func (e *Engine) Dispatch(ctx context.Context, channel model.Channel, recipients []model.Recipient, tpl model.Message) (*model.DispatchReport, error) {
	if err := Validate(channel, recipients, tpl); err != nil {
		return nil, err
	}

	bs, isBatch := e.batch[channel]
	s, isSingle := e.senders[channel]
	var target any = s
	if isBatch {
		target = bs
	} else if !isSingle {
		return nil, errs.Config("no sender configured for channel %s", channel)
	}
	if p, ok := target.(Preflighter); ok {
		if err := p.Preflight(); err != nil {
			return nil, err
		}
	}

	start := e.now()
	var results []model.DispatchResult
	if isBatch {
		results = e.sendBatch(ctx, bs, channel, recipients, tpl)
	} else {
		results = e.fanOut(ctx, s, channel, recipients, tpl)
	}

	report := BuildReport(channel, results)
	report.Subject = tpl.Subject
	report.Body = tpl.Body
	report.CreatedAt = start

	for _, r := range results {
		prom.ObserveDispatchResult(string(channel), r.Succeeded)
	}
	prom.ObserveDispatchDuration(string(channel), e.now().Sub(start).Seconds())
	logger.Info("dispatch finished", "channel", channel, "recipients", len(recipients),
		"succeeded", report.SucceededCount(), "failed", report.FailedCount())

	return report, nil
}

func (e *Engine) fanOut(ctx context.Context, s Sender, channel model.Channel, recipients []model.Recipient, tpl model.Message) []model.DispatchResult {
	results := make([]model.DispatchResult, len(recipients))
	var wg sync.WaitGroup
	wg.Add(len(recipients))
	for i := range recipients {
		go func(i int) {
			defer wg.Done()
			results[i] = sendOne(ctx, s, channel, recipients[i], tpl)
		}(i)
	}
	wg.Wait()
	return results
}

func sendOne(ctx context.Context, s Sender, channel model.Channel, r model.Recipient, tpl model.Message) (res model.DispatchResult) {
	res = newResult(channel, r)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("sender panicked", "channel", channel, "recipient", r.ID, "panic", p)
			res = failed(res, fmt.Sprint(p))
		}
	}()

	if reason := checkRecipient(channel, r); reason != "" {
		return failed(res, reason)
	}
	d, err := s.Send(ctx, r, Personalize(tpl, r))
	return settle(res, d, err)
}

func (e *Engine) sendBatch(ctx context.Context, bs BatchSender, channel model.Channel, recipients []model.Recipient, tpl model.Message) []model.DispatchResult {
	results := make([]model.DispatchResult, len(recipients))
	valid := make([]model.Recipient, 0, len(recipients))
	for i, r := range recipients {
		results[i] = newResult(channel, r)
		if reason := checkRecipient(channel, r); reason != "" {
			results[i] = failed(results[i], reason)
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return results
	}

	outcomes, err := bs.SendBatch(ctx, valid, tpl)
	byID := make(map[int64]BatchOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.RecipientID] = o
	}
	for i, r := range recipients {
		if results[i].ErrorDetail != "" {
			continue
		}
		if err != nil {
			results[i] = failed(results[i], errs.Message(err, unknownError))
			continue
		}
		o, ok := byID[r.ID]
		if !ok {
			results[i] = failed(results[i], "provider returned no result for this recipient")
			continue
		}
		results[i] = settle(results[i], o.Delivery, o.Err)
	}
	return results
}

func newResult(channel model.Channel, r model.Recipient) model.DispatchResult {
	return model.DispatchResult{
		RecipientID:    r.ID,
		RecipientLabel: r.DisplayName(),
		Recipient:      r.Address(channel),
		Channel:        channel,
	}
}

func settle(res model.DispatchResult, d Delivery, err error) model.DispatchResult {
	switch {
	case err != nil:
		return failed(res, errs.Message(err, unknownError))
	case d.Failed:
		return failed(res, d.Error)
	}
	res.Succeeded = true
	res.ProviderMessageID = d.MessageID
	return res
}

func failed(res model.DispatchResult, detail string) model.DispatchResult {
	if detail == "" {
		detail = unknownError
	}
	res.Succeeded = false
	res.ProviderMessageID = ""
	res.ErrorDetail = detail
	return res
}

// BuildReport folds results into a report. OverallSucceeded holds iff no
// result failed.
func BuildReport(channel model.Channel, results []model.DispatchResult) *model.DispatchReport {
	report := &model.DispatchReport{
		Channel:             channel,
		Results:             results,
		RecipientsProcessed: len(results),
	}
	ok := report.SucceededCount()
	n := len(results)
	report.OverallSucceeded = ok == n

	switch {
	case ok == n:
		report.Summary = fmt.Sprintf("%d/%d sent successfully", n, n)
	case ok == 0:
		report.Summary = "no message could be sent"
	default:
		report.Summary = fmt.Sprintf("%d/%d sent, rest failed", ok, n)
	}
	return report
}
