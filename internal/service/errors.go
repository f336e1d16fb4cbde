package service

import (
	"errors"

	"arriendo/internal/models"
)

var (
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrMissingSlot           = errors.New("slotId is required")
	ErrInvalidRange          = errors.New("invalid availability range")
)

// RuleError is a booking rejected by a business rule; Code is one of the
// models.Code* values sent back to the client.
type RuleError struct {
	Code    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Code + ": " + e.Message
}

func rule(code, msg string) *RuleError {
	return &RuleError{Code: code, Message: msg}
}

var (
	errSunday      = rule(models.CodeInvalidDay, "No se agendan visitas los domingos.")
	errOffGrid     = rule(models.CodeInvalidTime, "Las visitas se agendan entre 09:00 y 20:00 cada 30 minutos.")
	errPast        = rule(models.CodePastTime, "El horario seleccionado ya pasó.")
	errUnavailable = rule(models.CodeSlotUnavailable, "El horario seleccionado ya no está disponible.")
)

// AsRuleError extracts a RuleError from err.
func AsRuleError(err error) (*RuleError, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
