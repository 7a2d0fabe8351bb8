// Package channels holds the concrete senders plugged into the dispatch engine.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-dispatch/internal/dispatch"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	FromName string
}

// MailDialer is the part of *gomail.Dialer SMTPEmail needs.
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPEmail sends every message through its own SMTP session.
type SMTPEmail struct {
	cfg    SMTPConfig
	dialer MailDialer
	now    func() time.Time
}

// NewSMTPEmail builds the sender; a nil dialer uses gomail with STARTTLS.
func NewSMTPEmail(cfg SMTPConfig, dialer MailDialer) *SMTPEmail {
	if dialer == nil {
		dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	}
	return &SMTPEmail{cfg: cfg, dialer: dialer, now: time.Now}
}

func (s *SMTPEmail) Channel() model.Channel { return model.ChannelEmail }

func (s *SMTPEmail) Preflight() error {
	if s.cfg.Host == "" || s.cfg.User == "" || s.cfg.Pass == "" {
		return errs.Config("email configuration missing, check the SMTP_* variables")
	}
	return nil
}

func (s *SMTPEmail) Send(ctx context.Context, r model.Recipient, msg model.Message) (dispatch.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Delivery{}, errs.Network(err, "send aborted")
	}

	html, err := renderEmail(r, msg, s.now())
	if err != nil {
		return dispatch.Delivery{}, errors.Wrap(err, "render email")
	}

	id := "<" + uuid.NewString() + "@" + messageIDDomain(s.cfg.User, s.cfg.Host) + ">"
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.User, s.cfg.FromName)
	m.SetHeader("To", r.Email)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	m.SetBody("text/plain", msg.Body)
	m.AddAlternative("text/html", html)

	if err := s.dialer.DialAndSend(m); err != nil {
		return dispatch.Delivery{}, errors.Wrap(err, "smtp delivery failed")
	}
	return dispatch.Delivery{MessageID: id}, nil
}

func messageIDDomain(user, host string) string {
	if i := strings.LastIndex(user, "@"); i >= 0 && i < len(user)-1 {
		return user[i+1:]
	}
	return host
}

// EmailRelay is the backend endpoint that sends an email on our behalf.
type EmailRelay interface {
	SendEmail(ctx context.Context, to, subject, body string) (string, error)
}

// RelayEmail delegates delivery to the backend relay.
type RelayEmail struct {
	relay EmailRelay
}

func NewRelayEmail(relay EmailRelay) *RelayEmail {
	return &RelayEmail{relay: relay}
}

func (s *RelayEmail) Channel() model.Channel { return model.ChannelEmail }

func (s *RelayEmail) Send(ctx context.Context, r model.Recipient, msg model.Message) (dispatch.Delivery, error) {
	id, err := s.relay.SendEmail(ctx, r.Email, msg.Subject, msg.Body)
	if err != nil {
		return dispatch.Delivery{}, err
	}
	return dispatch.Delivery{MessageID: id}, nil
}
