// Package backend is the typed view of the CRM REST backend.
package backend

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/internal/restclient"
)

// Collection paths of the CRM backend.
const (
	PathContacts          = "/contacts"
	PathEntreprises       = "/entreprises"
	PathOpportunites      = "/opportunites"
	PathCampagnes         = "/campagnes"
	PathInteractions      = "/interactions"
	PathUtilisateurs      = "/utilisateurs"
	PathTaches            = "/taches"
	PathHistoriqueActions = "/historique-actions"
	PathProjets           = "/projets-prospection"
	PathAdresses          = "/adresses"
	PathHaContacts        = "/ha-contacts"
	PathEmails            = "/email"
	PathSendEmail         = "/send-email"
	PathSMSBulk           = "/sms/send-bulk"
	PathSMSHistory        = "/sms/history"
	PathSMSStats          = "/sms/stats"
)

type Client struct {
	rc *restclient.Client

	Contacts     *Resource[model.Contact]
	Entreprises  *Resource[model.Entreprise]
	Opportunites *Resource[model.Opportunite]
	Campagnes    *Resource[model.Campagne]
	Interactions *Resource[model.Interaction]
	Utilisateurs *Resource[model.Utilisateur]
	Taches       *Resource[model.Tache]
	Historique   *Resource[model.HistoriqueAction]
	Emails       *Emails

	raw map[string]*Resource[json.RawMessage]
}

func New(rc *restclient.Client) *Client {
	c := &Client{
		rc:           rc,
		Contacts:     NewResource[model.Contact](rc, PathContacts),
		Entreprises:  NewResource[model.Entreprise](rc, PathEntreprises),
		Opportunites: NewResource[model.Opportunite](rc, PathOpportunites),
		Campagnes:    NewResource[model.Campagne](rc, PathCampagnes),
		Interactions: NewResource[model.Interaction](rc, PathInteractions),
		Utilisateurs: NewResource[model.Utilisateur](rc, PathUtilisateurs),
		Taches:       NewResource[model.Tache](rc, PathTaches),
		Historique:   NewResource[model.HistoriqueAction](rc, PathHistoriqueActions),
		Emails:       &Emails{rc: rc},
		raw:          make(map[string]*Resource[json.RawMessage]),
	}
	for _, p := range []string{
		PathContacts, PathEntreprises, PathOpportunites, PathCampagnes, PathInteractions,
		PathUtilisateurs, PathTaches, PathHistoriqueActions, PathProjets, PathAdresses, PathHaContacts,
	} {
		c.raw[p[1:]] = NewResource[json.RawMessage](rc, p)
	}
	return c
}

// Raw returns the untyped view of a collection by name ("contacts", ...).
func (c *Client) Raw(name string) (*Resource[json.RawMessage], error) {
	r, ok := c.raw[name]
	if !ok {
		return nil, errs.NotFound("unknown resource %q", name)
	}
	return r, nil
}

func (c *Client) ResourceNames() []string {
	names := make([]string, 0, len(c.raw))
	for n := range c.raw {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Ping reports whether the backend answers at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.rc.Request(ctx, PathContacts, restclient.MethodGet, nil, restclient.Config{Timeout: 3 * time.Second})
	return err
}

// SendEmail asks the backend relay to deliver one email and returns the
// provider message id when the relay reports one.
func (c *Client) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	resp, err := c.rc.Request(ctx, PathSendEmail, restclient.MethodPost, map[string]string{
		"destinator": to,
		"subject":    subject,
		"body":       body,
	}, restclient.Config{})
	if err != nil {
		return "", err
	}
	var out struct {
		Success   *bool        `json:"success"`
		Message   string       `json:"message"`
		MessageID model.FlexID `json:"messageId"`
		AltID     model.FlexID `json:"message_id"`
	}
	if len(resp.Body) > 0 {
		if err := resp.Decode(&out); err != nil {
			return "", err
		}
	}
	if out.Success != nil && !*out.Success {
		return "", errs.Transport(resp.Status, out.Message)
	}
	if out.MessageID != "" {
		return string(out.MessageID), nil
	}
	return string(out.AltID), nil
}

type bulkContact struct {
	ID        int64  `json:"id"`
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Telephone string `json:"telephone"`
}

// SendBulkSMS hands every recipient to the backend SMS service in one call.
// The backend substitutes [Prénom] and [Nom] itself.
func (c *Client) SendBulkSMS(ctx context.Context, recipients []model.Recipient, message string) (*model.BulkSMSResponse, error) {
	contacts := make([]bulkContact, len(recipients))
	for i, r := range recipients {
		contacts[i] = bulkContact{ID: r.ID, Nom: r.Nom, Prenom: r.Prenom, Telephone: r.Phone}
	}
	resp, err := c.rc.Request(ctx, PathSMSBulk, restclient.MethodPost, map[string]any{
		"contacts": contacts,
		"message":  message,
	}, restclient.Config{})
	if err != nil {
		return nil, err
	}

	out := &model.BulkSMSResponse{}
	if err := resp.Decode(out); err != nil {
		return nil, err
	}
	if !out.Success && len(out.Results) == 0 {
		return nil, errs.Transport(resp.Status, out.Message)
	}
	return out, nil
}

func (c *Client) SMSHistory(ctx context.Context) ([]model.SMSRecord, error) {
	return restclient.GetList[model.SMSRecord](ctx, c.rc, PathSMSHistory, restclient.Config{})
}

func (c *Client) SMSStats(ctx context.Context) (*model.SMSStats, error) {
	return restclient.GetOne[model.SMSStats](ctx, c.rc, PathSMSStats, restclient.Config{})
}

// Emails is the backend send log.
type Emails struct {
	rc *restclient.Client
}

type emailLogEntry struct {
	IDContact   int64  `json:"id_contact"`
	Objet       string `json:"objet"`
	Message     string `json:"message"`
	DateEnvoyee string `json:"date_envoyee"`
	Contact     struct {
		ID int64 `json:"id"`
	} `json:"contact"`
}

// Save writes one send-log entry. A zero sentAt is stamped with now.
func (e *Emails) Save(ctx context.Context, contactID int64, msg model.Message, sentAt time.Time) error {
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	entry := emailLogEntry{
		IDContact:   contactID,
		Objet:       msg.Subject,
		Message:     msg.Body,
		DateEnvoyee: sentAt.UTC().Format(time.RFC3339),
	}
	entry.Contact.ID = contactID
	_, err := e.rc.Request(ctx, PathEmails, restclient.MethodPost, entry, restclient.Config{})
	return err
}

func (e *Emails) List(ctx context.Context) ([]model.SentEmail, error) {
	return restclient.GetList[model.SentEmail](ctx, e.rc, PathEmails, restclient.Config{})
}

func (e *Emails) Delete(ctx context.Context, id int64) error {
	_, err := e.rc.Request(ctx, PathEmails+"/"+ID(id), restclient.MethodDelete, nil, restclient.Config{})
	return err
}
