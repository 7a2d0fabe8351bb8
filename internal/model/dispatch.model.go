package model

import (
	"strconv"
	"strings"
	"time"
)

// Channel is the transport of a dispatch.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

func ParseChannel(s string) Channel {
	return Channel(strings.ToLower(strings.TrimSpace(s)))
}

// Recipient is the read-only view of a contact during one dispatch.
type Recipient struct {
	ID         int64  `json:"id"`
	Prenom     string `json:"prenom"`
	Nom        string `json:"nom"`
	Email      string `json:"email"`
	Phone      string `json:"telephone"`
	Fonction   string `json:"fonction"`
	Entreprise string `json:"entreprise"`
}

// DisplayName is "prenom nom", falling back to "Contact #id".
func (r Recipient) DisplayName() string {
	if name := strings.TrimSpace(r.Prenom + " " + r.Nom); name != "" {
		return name
	}
	return "Contact #" + strconv.FormatInt(r.ID, 10)
}

// Address is the destination used on channel c.
func (r Recipient) Address(c Channel) string {
	if c == ChannelSMS {
		return r.Phone
	}
	return r.Email
}

// Message is a subject/body pair, either a template holding [Token]
// placeholders or its personalized copy.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"message"`
}

// DispatchResult is the immutable outcome of one send.
type DispatchResult struct {
	RecipientID       int64   `json:"contact_id"`
	RecipientLabel    string  `json:"contactName"`
	Recipient         string  `json:"recipient"`
	Channel           Channel `json:"channel"`
	Succeeded         bool    `json:"success"`
	ProviderMessageID string  `json:"messageId,omitempty"`
	ErrorDetail       string  `json:"error,omitempty"`
}

// DispatchReport aggregates every result of one dispatch in input order.
type DispatchReport struct {
	ID                  string           `json:"id,omitempty"`
	Channel             Channel          `json:"channel"`
	Subject             string           `json:"subject,omitempty"`
	Body                string           `json:"body,omitempty"`
	OverallSucceeded    bool             `json:"success"`
	Summary             string           `json:"message"`
	Results             []DispatchResult `json:"results"`
	RecipientsProcessed int              `json:"contactsProcessed"`
	CreatedAt           time.Time        `json:"createdAt"`
}

func (r *DispatchReport) SucceededCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Succeeded {
			n++
		}
	}
	return n
}

func (r *DispatchReport) FailedCount() int {
	return len(r.Results) - r.SucceededCount()
}

// DispatchRequest selects recipients either by id (resolved through the
// backend) or inline.
type DispatchRequest struct {
	Channel    Channel   `json:"channel"`
	ContactIDs []int64   `json:"contactIds,omitempty"`
	Contacts   []Contact `json:"contacts,omitempty"`
	Template   Message   `json:"template"`
}

type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobDone       JobState = "done"
	JobFailed     JobState = "failed"
)

// DispatchJob is a dispatch request deferred to the processor.
type DispatchJob struct {
	ID          string          `json:"id"`
	Request     DispatchRequest `json:"request"`
	RequestedAt time.Time       `json:"requested_at"`
}

type JobStatus struct {
	ID        string          `json:"id"`
	State     JobState        `json:"state"`
	Report    *DispatchReport `json:"report,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DispatchFilter controls report listing.
type DispatchFilter struct {
	Channel Channel
	From    *time.Time
	To      *time.Time
	Limit   int // default 50
	Offset  int
}

type DispatchStats struct {
	Dispatches int64             `json:"dispatches"`
	Messages   int64             `json:"messages"`
	Succeeded  int64             `json:"succeeded"`
	Failed     int64             `json:"failed"`
	ByChannel  map[Channel]int64 `json:"by_channel"`
}
