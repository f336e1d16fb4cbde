package bot

import (
	"errors"

	"arriendo/internal/scheduler"
	"arriendo/internal/wizard"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var se *scheduler.Error
	if errors.As(err, &se) {
		return "⚠️ " + se.Message
	}

	switch {
	case errors.Is(err, wizard.ErrSelectionIncomplete):
		return "⚠️ Elige un día y una hora para continuar."
	case errors.Is(err, wizard.ErrDateNotBookable):
		return "⚠️ Ese día no está disponible para visitas."
	case errors.Is(err, wizard.ErrQualificationIncomplete):
		return "⚠️ Responde todas las preguntas para agendar tu visita."
	case errors.Is(err, wizard.ErrUnknownQuestion), errors.Is(err, wizard.ErrInvalidAnswer):
		return "⚠️ Esa opción no es válida."
	case errors.Is(err, wizard.ErrWrongStep):
		return "⚠️ Esa acción no está disponible en este paso."
	case errors.Is(err, wizard.ErrClosed):
		return "La sesión terminó. Escribe /visita <código> para empezar de nuevo."
	}

	// Default error message
	return "❌ Ocurrió un error al procesar tu solicitud. Intenta nuevamente."
}
