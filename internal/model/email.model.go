package model

import "time"

// SentEmail is one entry of the backend send log.
type SentEmail struct {
	ID          int64    `json:"id_email"`
	IDContact   int64    `json:"id_contact"`
	Objet       string   `json:"objet"`
	Message     string   `json:"message"`
	DateEnvoyee string   `json:"date_envoyee"`
	Contact     *Contact `json:"contact,omitempty"`
}

// EmailHistoryEntry is a send-log entry joined with its contact.
type EmailHistoryEntry struct {
	ID              int64     `json:"id"`
	ContactID       int64     `json:"contactId"`
	Objet           string    `json:"objet"`
	Message         string    `json:"message"`
	SentAt          time.Time `json:"sentAt"`
	DateCorrected   bool      `json:"dateCorrected,omitempty"`
	ContactName     string    `json:"contactName"`
	ContactEmail    string    `json:"contactEmail"`
	ContactFunction string    `json:"contactFunction"`
}

type HistoryPeriod string

const (
	PeriodAll         HistoryPeriod = "all"
	PeriodToday       HistoryPeriod = "today"
	PeriodWeek        HistoryPeriod = "week"
	PeriodMonth       HistoryPeriod = "month"
	PeriodThreeMonths HistoryPeriod = "3months"
)

type HistoryFilter struct {
	Search    string        `json:"search"`
	ContactID int64         `json:"contactId"`
	Period    HistoryPeriod `json:"period"`
}

type HistoryStats struct {
	Total          int        `json:"total"`
	UniqueContacts int        `json:"uniqueContacts"`
	LastSentAt     *time.Time `json:"lastSentAt,omitempty"`
}

// SMSRecord is one entry of the backend SMS log.
type SMSRecord struct {
	ID          int64  `json:"id"`
	IDContact   int64  `json:"id_contact"`
	Message     string `json:"message"`
	Telephone   string `json:"telephone"`
	DateEnvoyee string `json:"date_envoyee"`
	Statut      string `json:"statut"`
	Expediteur  string `json:"expediteur"`
	ContactName string `json:"contact_name,omitempty"`
}

type SMSDailyStat struct {
	Date    string `json:"date"`
	Total   int    `json:"total"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
}

type SMSStats struct {
	TotalSMS   int            `json:"total_sms"`
	SMSEnvoyes int            `json:"sms_envoyes"`
	SMSEchecs  int            `json:"sms_echecs"`
	TauxSucces float64        `json:"taux_succes"`
	DailyStats []SMSDailyStat `json:"daily_stats"`
}

// BulkSMSResult is one entry of the backend bulk SMS answer.
type BulkSMSResult struct {
	Success     bool   `json:"success"`
	ContactName string `json:"contactName"`
	Recipient   string `json:"recipient"`
	ContactID   *int64 `json:"contact_id"`
	MessageID   FlexID `json:"message_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

type BulkSMSResponse struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	TotalSent   int             `json:"total_sent"`
	TotalFailed int             `json:"total_failed"`
	Results     []BulkSMSResult `json:"results"`
}
