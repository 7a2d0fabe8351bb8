package dispatch

import (
	"strings"
	"unicode/utf8"

	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
)

// MaxSMSLength is the longest SMS body accepted, in characters.
const MaxSMSLength = 160

// Validate checks a dispatch before anything is sent.
func Validate(channel model.Channel, recipients []model.Recipient, tpl model.Message) error {
	if !channel.Valid() {
		return errs.Validation("unsupported channel %q", string(channel))
	}
	if len(recipients) == 0 {
		return errs.Validation("at least one recipient is required")
	}
	return ValidateTemplate(channel, tpl)
}

// ValidateTemplate checks the channel and template alone, callers run it
// before resolving recipients.
func ValidateTemplate(channel model.Channel, tpl model.Message) error {
	if !channel.Valid() {
		return errs.Validation("unsupported channel %q", string(channel))
	}
	body := strings.TrimSpace(tpl.Body)
	switch channel {
	case model.ChannelEmail:
		if strings.TrimSpace(tpl.Subject) == "" || body == "" {
			return errs.Validation("subject and message are required for email")
		}
	case model.ChannelSMS:
		if body == "" {
			return errs.Validation("message is required for sms")
		}
		if utf8.RuneCountInString(body) > MaxSMSLength {
			return errs.Validation("sms message cannot exceed %d characters", MaxSMSLength)
		}
	}
	return nil
}

// checkRecipient is the per-recipient precondition of channel. Its failure
// only fails that recipient.
func checkRecipient(channel model.Channel, r model.Recipient) string {
	switch channel {
	case model.ChannelEmail:
		if r.Email == "" {
			return "contact has no email address"
		}
	case model.ChannelSMS:
		if r.Phone == "" {
			return "contact has no phone number"
		}
		if !ValidMalagasyPhone(r.Phone) {
			return "invalid phone number, expected +261XXXXXXXXX or 0XXXXXXXXX"
		}
	}
	return ""
}
