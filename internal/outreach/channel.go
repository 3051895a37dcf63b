// Package outreach contacts the top-ranked caregiver for a backfill run.
package outreach

import (
	"context"
	"fmt"

	"github.com/jonathan/shift-backfill/internal/comms"
	"github.com/jonathan/shift-backfill/internal/types"
)

// Message is what a channel delivers. SMS uses Body; voice uses Metadata.
type Message struct {
	ToE164   string
	Body     string
	Metadata map[string]string
}

// Channel is a tagged variant over the outbound gateways. Exactly one of the
// gateway fields is set, matching Kind.
type Channel struct {
	Kind  types.Channel
	sms   comms.SMSSender
	voice comms.VoiceCaller
}

// SMSChannel delivers by text message.
func SMSChannel(s comms.SMSSender) Channel {
	return Channel{Kind: types.ChannelSMS, sms: s}
}

// VoiceChannel delivers by assistant phone call.
func VoiceChannel(v comms.VoiceCaller) Channel {
	return Channel{Kind: types.ChannelVoice, voice: v}
}

// SelectChannel picks voice when a voice gateway is configured, otherwise SMS.
func SelectChannel(voice comms.VoiceCaller, sms comms.SMSSender) Channel {
	if voice != nil {
		return VoiceChannel(voice)
	}
	return SMSChannel(sms)
}

// Send delivers m and returns the provider-assigned id.
func (c Channel) Send(ctx context.Context, m Message) (string, error) {
	switch c.Kind {
	case types.ChannelSMS:
		if c.sms == nil {
			return "", fmt.Errorf("sms channel has no gateway")
		}
		return c.sms.SendSMS(ctx, comms.SMS{ToE164: m.ToE164, Body: m.Body})
	case types.ChannelVoice:
		if c.voice == nil {
			return "", fmt.Errorf("voice channel has no gateway")
		}
		return c.voice.StartVoiceCall(ctx, comms.VoiceCall{ToE164: m.ToE164, Metadata: m.Metadata})
	default:
		return "", fmt.Errorf("unknown channel %q", c.Kind)
	}
}
