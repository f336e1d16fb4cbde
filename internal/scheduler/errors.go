package scheduler

import (
	"context"
	"errors"

	"arriendo/internal/client"
	"arriendo/internal/models"
)

var (
	ErrNoSlotSelected   = errors.New("no slot selected")
	ErrSlotUnavailable  = errors.New("selected slot is no longer available")
	ErrSubmitInProgress = errors.New("booking submission already in progress")
)

// Тексты для пользователя.
const (
	MsgRateLimited     = "Demasiadas solicitudes. Por favor espera un momento e intenta nuevamente."
	MsgLoadFailed      = "No pudimos cargar la disponibilidad. Intenta nuevamente."
	MsgRecheckFailed   = "No pudimos verificar la disponibilidad del horario. Intenta nuevamente."
	MsgNoSelection     = "Selecciona una fecha y hora para tu visita."
	MsgSlotUnavailable = "El horario seleccionado ya no está disponible. Por favor elige otro."
	MsgInvalidDay      = "No se pueden agendar visitas los domingos. Elige otro día."
	MsgInvalidTime     = "El horario debe estar entre las 09:00 y las 20:00, en intervalos de 30 minutos."
	MsgPastTime        = "No puedes agendar una visita en un horario que ya pasó."
	MsgBookingFailed   = "No pudimos agendar tu visita. Intenta nuevamente o contáctanos por WhatsApp."
	MsgInProgress      = "Estamos procesando tu solicitud. Espera un momento."
)

// Error carries the message shown to the user together with the cause.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// UserMessage returns the copy to show for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return bookingMessage(err).Message
}

// loadError maps an availability fetch failure.
func loadError(err error, fallback string) *Error {
	if he, ok := client.AsHTTPError(err); ok && he.IsRateLimited() {
		return newError(models.CodeRateLimit, MsgRateLimited, err)
	}
	return newError("", fallback, err)
}

// bookingMessage maps a failed POST /api/visits to user copy.
func bookingMessage(err error) *Error {
	switch {
	case errors.Is(err, ErrNoSlotSelected):
		return newError("", MsgNoSelection, err)
	case errors.Is(err, ErrSlotUnavailable):
		return newError(models.CodeSlotUnavailable, MsgSlotUnavailable, err)
	case errors.Is(err, ErrSubmitInProgress):
		return newError("", MsgInProgress, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError("", MsgBookingFailed, err)
	}

	he, ok := client.AsHTTPError(err)
	if !ok {
		return newError("", MsgBookingFailed, err)
	}
	switch he.Code {
	case models.CodeSlotUnavailable:
		return newError(he.Code, MsgSlotUnavailable, err)
	case models.CodeInvalidDay:
		return newError(he.Code, MsgInvalidDay, err)
	case models.CodeInvalidTime:
		return newError(he.Code, MsgInvalidTime, err)
	case models.CodePastTime:
		return newError(he.Code, MsgPastTime, err)
	}
	if he.IsRateLimited() {
		return newError(models.CodeRateLimit, MsgRateLimited, err)
	}
	return newError(he.Code, MsgBookingFailed, err)
}
