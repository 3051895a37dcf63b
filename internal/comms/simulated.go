package comms

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/shift-backfill/internal/logging"
)

// SimulatedSMS logs texts instead of sending them. It is used when no gateway
// is configured so local runs still produce provider ids.
type SimulatedSMS struct {
	log logging.Logger
}

func NewSimulatedSMS(log logging.Logger) *SimulatedSMS {
	if log == nil {
		log = logging.NewNop()
	}
	return &SimulatedSMS{log: log}
}

func (s *SimulatedSMS) SendSMS(_ context.Context, msg SMS) (string, error) {
	id := "sim-" + uuid.NewString()
	s.log.Info("simulated sms",
		logging.String("to", msg.ToE164),
		logging.String("message_id", id),
		logging.Int("body_len", len(msg.Body)),
	)
	return id, nil
}
