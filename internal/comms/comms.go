// Package comms talks to the outbound SMS and voice gateways.
package comms

import (
	"context"
	"fmt"
)

// SMS is a text message to a single E.164 number.
type SMS struct {
	ToE164 string
	Body   string
}

// VoiceCall is an outbound assistant call. Metadata is echoed back on webhooks.
type VoiceCall struct {
	ToE164   string
	Metadata map[string]string
}

// SMSSender sends a text and returns the provider message id.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMS) (string, error)
}

// VoiceCaller starts a call and returns the provider call id.
type VoiceCaller interface {
	StartVoiceCall(ctx context.Context, call VoiceCall) (string, error)
}

// NotConfiguredError is returned when a gateway is missing credentials.
type NotConfiguredError struct {
	Gateway string
	Missing []string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s not configured (need %v)", e.Gateway, e.Missing)
}
