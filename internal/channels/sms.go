package channels

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/kavenegar/kavenegar-go"
	"github.com/nimasrn/crm-dispatch/internal/dispatch"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	gateway "github.com/nimasrn/crm-dispatch/internal/gateways"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/pkg/errors"
)

// SMSGateway is satisfied by *gateway.Client.
type SMSGateway interface {
	Send(ctx context.Context, req *gateway.SendRequest) (*gateway.SendResponse, error)
}

// GatewaySMS routes every message through the weighted provider pool.
type GatewaySMS struct {
	gw     SMSGateway
	sender string
}

func NewGatewaySMS(gw SMSGateway, sender string) *GatewaySMS {
	return &GatewaySMS{gw: gw, sender: sender}
}

func (s *GatewaySMS) Channel() model.Channel { return model.ChannelSMS }

func (s *GatewaySMS) Send(ctx context.Context, r model.Recipient, msg model.Message) (dispatch.Delivery, error) {
	resp, err := s.gw.Send(ctx, &gateway.SendRequest{
		MessageID:   uuid.NewString(),
		PhoneNumber: dispatch.FormatPhone(r.Phone),
		Content:     msg.Body,
		Sender:      s.sender,
	})
	if err != nil {
		return dispatch.Delivery{}, err
	}
	d := dispatch.Delivery{MessageID: resp.MessageID}
	if !resp.Accepted() {
		d.Failed = true
		d.Error = resp.ErrorMsg
		if d.Error == "" {
			d.Error = "sms rejected by operator " + resp.OperatorID
		}
	}
	return d, nil
}

// KavenegarSMS sends through the Kavenegar HTTP API.
type KavenegarSMS struct {
	sender string
	send   func(sender, receptor, message string) (string, error)
}

func NewKavenegarSMS(apiKey, sender string) *KavenegarSMS {
	api := kavenegar.New(apiKey)
	return &KavenegarSMS{
		sender: sender,
		send: func(sender, receptor, message string) (string, error) {
			res, err := api.Message.Send(sender, []string{receptor}, message, nil)
			if err != nil {
				return "", err
			}
			if len(res) == 0 {
				return "", errors.New("no response entries from kavenegar")
			}
			return strconv.Itoa(res[0].MessageID), nil
		},
	}
}

func (s *KavenegarSMS) Channel() model.Channel { return model.ChannelSMS }

func (s *KavenegarSMS) Send(ctx context.Context, r model.Recipient, msg model.Message) (dispatch.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Delivery{}, errs.Network(err, "send aborted")
	}
	id, err := s.send(s.sender, dispatch.FormatPhone(r.Phone), msg.Body)
	if err != nil {
		switch e := err.(type) {
		case *kavenegar.APIError:
			return dispatch.Delivery{}, errs.Transport(int(e.Status), e.Error())
		case *kavenegar.HTTPError:
			return dispatch.Delivery{}, errs.Network(err, "kavenegar unreachable")
		default:
			return dispatch.Delivery{}, errors.Wrap(err, "kavenegar send failed")
		}
	}
	return dispatch.Delivery{MessageID: id}, nil
}

// BulkSMSBackend is satisfied by *backend.Client.
type BulkSMSBackend interface {
	SendBulkSMS(ctx context.Context, recipients []model.Recipient, message string) (*model.BulkSMSResponse, error)
}

// BackendBulkSMS hands the whole batch to the CRM backend in one call.
// The backend substitutes [Prénom] and [Nom] itself.
type BackendBulkSMS struct {
	backend BulkSMSBackend
}

func NewBackendBulkSMS(b BulkSMSBackend) *BackendBulkSMS {
	return &BackendBulkSMS{backend: b}
}

func (s *BackendBulkSMS) Channel() model.Channel { return model.ChannelSMS }

func (s *BackendBulkSMS) SendBatch(ctx context.Context, recipients []model.Recipient, tpl model.Message) ([]dispatch.BatchOutcome, error) {
	resp, err := s.backend.SendBulkSMS(ctx, recipients, tpl.Body)
	if err != nil {
		return nil, err
	}

	out := make([]dispatch.BatchOutcome, 0, len(resp.Results))
	for i, res := range resp.Results {
		var id int64
		switch {
		case res.ContactID != nil:
			id = *res.ContactID
		case i < len(recipients):
			id = recipients[i].ID
		default:
			continue
		}
		o := dispatch.BatchOutcome{RecipientID: id}
		if res.Success {
			o.Delivery.MessageID = string(res.MessageID)
		} else {
			o.Delivery.Failed = true
			o.Delivery.Error = res.Error
		}
		out = append(out, o)
	}
	return out, nil
}
