package types

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// ShiftCancelled is the trigger signal for a backfill run. Delivery is at-least-once.
type ShiftCancelled struct {
	ShiftID     string `json:"shift_id" validate:"required"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// BackfillResponse carries a resolved decision for an outreach attempt.
type BackfillResponse struct {
	AttemptID string          `json:"attempt_id" validate:"required"`
	Decision  Decision        `json:"decision" validate:"required,oneof=accepted declined no_answer"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Validate validates the ShiftCancelled signal using the validator.
func (s *ShiftCancelled) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// Validate validates the BackfillResponse signal using the validator.
func (s *BackfillResponse) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}
