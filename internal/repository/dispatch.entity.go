package repository

import (
	"time"

	"github.com/nimasrn/crm-dispatch/internal/model"
)

type DispatchEntity struct {
	ID               string                  `gorm:"primaryKey;column:id"`
	Channel          string                  `gorm:"column:channel;not null;index"`
	Subject          string                  `gorm:"column:subject"`
	Body             string                  `gorm:"column:body;not null"`
	OverallSucceeded bool                    `gorm:"column:overall_succeeded;not null"`
	Summary          string                  `gorm:"column:summary;not null"`
	Processed        int                     `gorm:"column:processed;not null"`
	SucceededCount   int                     `gorm:"column:succeeded_count;not null"`
	FailedCount      int                     `gorm:"column:failed_count;not null"`
	CreatedAt        time.Time               `gorm:"column:created_at;not null;index"`
	Results          []*DispatchResultEntity `gorm:"foreignKey:DispatchID;constraint:OnDelete:CASCADE"`
}

func (DispatchEntity) TableName() string {
	return "dispatches"
}

type DispatchResultEntity struct {
	ID                int64  `gorm:"primaryKey;autoIncrement;column:id"`
	DispatchID        string `gorm:"column:dispatch_id;not null;index"`
	Position          int    `gorm:"column:position;not null"`
	RecipientID       int64  `gorm:"column:recipient_id;not null;index"`
	RecipientLabel    string `gorm:"column:recipient_label"`
	Recipient         string `gorm:"column:recipient"`
	Channel           string `gorm:"column:channel;not null"`
	Succeeded         bool   `gorm:"column:succeeded;not null"`
	ProviderMessageID string `gorm:"column:provider_message_id"`
	ErrorDetail       string `gorm:"column:error_detail"`
}

func (DispatchResultEntity) TableName() string {
	return "dispatch_results"
}

func toDispatchEntity(r *model.DispatchReport) *DispatchEntity {
	if r == nil {
		return nil
	}
	e := &DispatchEntity{
		ID:               r.ID,
		Channel:          string(r.Channel),
		Subject:          r.Subject,
		Body:             r.Body,
		OverallSucceeded: r.OverallSucceeded,
		Summary:          r.Summary,
		Processed:        r.RecipientsProcessed,
		SucceededCount:   r.SucceededCount(),
		FailedCount:      r.FailedCount(),
		CreatedAt:        r.CreatedAt,
		Results:          make([]*DispatchResultEntity, len(r.Results)),
	}
	for i, res := range r.Results {
		e.Results[i] = &DispatchResultEntity{
			DispatchID:        r.ID,
			Position:          i,
			RecipientID:       res.RecipientID,
			RecipientLabel:    res.RecipientLabel,
			Recipient:         res.Recipient,
			Channel:           string(res.Channel),
			Succeeded:         res.Succeeded,
			ProviderMessageID: res.ProviderMessageID,
			ErrorDetail:       res.ErrorDetail,
		}
	}
	return e
}

func toDispatchModel(e *DispatchEntity) *model.DispatchReport {
	if e == nil {
		return nil
	}
	r := &model.DispatchReport{
		ID:                  e.ID,
		Channel:             model.Channel(e.Channel),
		Subject:             e.Subject,
		Body:                e.Body,
		OverallSucceeded:    e.OverallSucceeded,
		Summary:             e.Summary,
		RecipientsProcessed: e.Processed,
		CreatedAt:           e.CreatedAt,
		Results:             make([]model.DispatchResult, len(e.Results)),
	}
	for i, res := range e.Results {
		r.Results[i] = model.DispatchResult{
			RecipientID:       res.RecipientID,
			RecipientLabel:    res.RecipientLabel,
			Recipient:         res.Recipient,
			Channel:           model.Channel(res.Channel),
			Succeeded:         res.Succeeded,
			ProviderMessageID: res.ProviderMessageID,
			ErrorDetail:       res.ErrorDetail,
		}
	}
	return r
}

func toDispatchModels(entities []*DispatchEntity) []*model.DispatchReport {
	if entities == nil {
		return nil
	}
	models := make([]*model.DispatchReport, len(entities))
	for i, e := range entities {
		models[i] = toDispatchModel(e)
	}
	return models
}
