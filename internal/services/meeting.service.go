package services

import (
	"context"
	"strings"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/meeting"
	"github.com/nimasrn/crm-dispatch/internal/model"
)

// Dispatcher is satisfied by *DispatchService.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchReport, error)
}

type MeetingRequest struct {
	Title      string
	When       time.Time
	ContactIDs []int64
	// Notify sends the invitation to ContactIDs by email.
	Notify bool
}

type Meeting struct {
	Title      string                `json:"title"`
	When       time.Time             `json:"when"`
	Link       string                `json:"link"`
	Invitation model.Message         `json:"invitation"`
	Report     *model.DispatchReport `json:"report,omitempty"`
}

type MeetingService struct {
	dispatcher Dispatcher
	baseURL    string
}

func NewMeetingService(d Dispatcher, baseURL string) *MeetingService {
	return &MeetingService{dispatcher: d, baseURL: baseURL}
}

func (s *MeetingService) Schedule(ctx context.Context, req MeetingRequest) (*Meeting, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errs.Validation("meeting title is required")
	}
	if req.When.IsZero() {
		return nil, errs.Validation("meeting date is required")
	}
	if req.Notify && len(req.ContactIDs) == 0 {
		return nil, ErrNoRecipients
	}

	link, err := meeting.NewLink(s.baseURL)
	if err != nil {
		return nil, err
	}
	m := &Meeting{
		Title:      title,
		When:       req.When,
		Link:       link,
		Invitation: meeting.Invitation(title, link, req.When),
	}
	if !req.Notify {
		return m, nil
	}

	m.Report, err = s.dispatcher.Dispatch(ctx, model.DispatchRequest{
		Channel:    model.ChannelEmail,
		ContactIDs: req.ContactIDs,
		Template:   m.Invitation,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
