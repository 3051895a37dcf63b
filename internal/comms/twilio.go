package comms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig holds the account credentials and sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioSMS sends texts through the Twilio Messages API.
type TwilioSMS struct {
	from   string
	create func(*api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// NewTwilioSMS builds a sender. All three config fields are required.
func NewTwilioSMS(cfg TwilioConfig) (*TwilioSMS, error) {
	var missing []string
	if cfg.AccountSID == "" {
		missing = append(missing, "TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		missing = append(missing, "TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		missing = append(missing, "TWILIO_FROM_NUMBER")
	}
	if len(missing) > 0 {
		return nil, &NotConfiguredError{Gateway: "twilio", Missing: missing}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSMS{from: cfg.FromNumber, create: client.Api.CreateMessage}, nil
}

// SendSMS sends msg and returns the message SID. The Twilio SDK takes no
// context, so cancellation is only honored before the request starts.
func (t *TwilioSMS) SendSMS(ctx context.Context, msg SMS) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &api.CreateMessageParams{}
	params.SetTo(msg.ToE164)
	params.SetFrom(t.from)
	params.SetBody(msg.Body)

	resp, err := t.create(params)
	if err != nil {
		return "", fmt.Errorf("twilio create message: %w", err)
	}
	if resp == nil || resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("twilio create message: missing message sid")
	}
	return *resp.Sid, nil
}
