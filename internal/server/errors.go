package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/shift-backfill/internal/schemas"
	"github.com/jonathan/shift-backfill/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound    *types.NotFoundError
		transition  *types.InvalidTransitionError
		transport   *types.TransportError
		invalid     *ErrValidation
		schemaErr   *schemas.ValidationError
		validateErr validator.ValidationErrors
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &transition), errors.Is(err, types.ErrActiveRunExists):
		return http.StatusConflict
	case errors.As(err, &invalid), errors.As(err, &schemaErr), errors.As(err, &validateErr):
		return http.StatusBadRequest
	case errors.As(err, &transport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
