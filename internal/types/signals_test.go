//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfillResponse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		signal  BackfillResponse
		wantErr bool
	}{
		{
			name:   "accepted",
			signal: BackfillResponse{AttemptID: "attempt-1", Decision: DecisionAccepted},
		},
		{
			name:   "no answer with raw payload",
			signal: BackfillResponse{AttemptID: "attempt-1", Decision: DecisionNoAnswer, Raw: json.RawMessage(`{"transcript":""}`)},
		},
		{
			name:    "missing attempt id",
			signal:  BackfillResponse{Decision: DecisionDeclined},
			wantErr: true,
		},
		{
			name:    "unknown decision",
			signal:  BackfillResponse{AttemptID: "attempt-1", Decision: "maybe"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.signal.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestShiftCancelled_Validation(t *testing.T) {
	ok := ShiftCancelled{ShiftID: "shift-1", CancelledBy: "ui"}
	assert.NoError(t, ok.Validate())

	missing := ShiftCancelled{CancelledBy: "ui"}
	assert.Error(t, missing.Validate())
}

func TestDecision_AttemptStatus(t *testing.T) {
	assert.Equal(t, AttemptAccepted, DecisionAccepted.AttemptStatus())
	assert.Equal(t, AttemptDeclined, DecisionDeclined.AttemptStatus())
	assert.Equal(t, AttemptNoAnswer, DecisionNoAnswer.AttemptStatus())
	assert.True(t, DecisionNoAnswer.Valid())
	assert.False(t, Decision("yes").Valid())
}

func TestStatuses_Terminal(t *testing.T) {
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusFilled.IsTerminal())
	assert.True(t, RunStatusEscalated.IsTerminal())

	assert.False(t, AttemptPending.IsTerminal())
	assert.False(t, AttemptSent.IsTerminal())
	for _, s := range []AttemptStatus{AttemptFailed, AttemptAccepted, AttemptDeclined, AttemptNoAnswer} {
		assert.True(t, s.IsTerminal(), string(s))
	}
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&TransportError{Op: "twilio.send_sms", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "twilio.send_sms")

	var transition *InvalidTransitionError
	wrapped := errors.Join(errors.New("mark filled"), &InvalidTransitionError{RunID: "run-1", From: RunStatusEscalated, To: RunStatusFilled})
	require.ErrorAs(t, wrapped, &transition)
	assert.Equal(t, RunStatusEscalated, transition.From)

	nf := &NotFoundError{Entity: "shift", ID: "shift-9"}
	assert.Equal(t, "shift not found: shift-9", nf.Error())
}
