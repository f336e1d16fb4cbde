package bot

import (
	"context"
	"errors"
	"sort"
	"strings"

	"arriendo/internal/models"
	"arriendo/internal/scheduler"
	"arriendo/internal/validation"
	"arriendo/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `Agenda una visita a una propiedad en 4 pasos.

/visita <código> – empezar a agendar
/cancelar – salir del agendamiento
/ayuda – ver esta ayuda`

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	l := zerolog.Ctx(ctx).With().Int64("chat_id", chatID).Logger()

	if msg.IsCommand() {
		l.Debug().Str("command", msg.Command()).Msg("Command received")
		switch msg.Command() {
		case "start", "visita":
			listingID := strings.TrimSpace(msg.CommandArguments())
			if listingID == "" {
				b.sendText(chatID, b.listingsText())
				return
			}
			b.handleOpen(ctx, msg, listingID)
		case "cancelar":
			b.handleCancel(ctx, chatID)
		case "ayuda", "help":
			b.sendText(chatID, helpText)
		default:
			b.sendText(chatID, "No conozco ese comando. Escribe /ayuda.")
		}
		return
	}

	s := b.session(chatID)
	if s == nil {
		b.sendText(chatID, "Escribe /visita <código> para agendar una visita.")
		return
	}
	if s.wiz.Step() != models.StepContact {
		b.sendText(chatID, "Usa los botones para continuar.")
		return
	}
	b.handleContactText(ctx, chatID, s, strings.TrimSpace(msg.Text))
}

func (b *Bot) handleOpen(ctx context.Context, msg *tgbotapi.Message, listingID string) {
	chatID := msg.Chat.ID
	if !b.knownListing(listingID) {
		b.sendText(chatID, "No encontramos esa propiedad. Revisa el código e intenta de nuevo.")
		return
	}
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	s := b.openSession(ctx, chatID, userID, listingID)
	b.render(chatID, s)
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	s := b.session(chatID)
	if s == nil {
		b.sendText(chatID, "No tienes un agendamiento en curso.")
		return
	}
	err := s.wiz.Close(ctx, false)
	if errors.Is(err, wizard.ErrUnsavedChanges) {
		b.send(closeConfirmation(chatID))
		return
	}
	b.dropSession(chatID)
	b.sendText(chatID, "Listo, cerramos el agendamiento.")
}

// handleContactText stores one contact field. After the last field, or once
// every reported error is fixed, it tries to move on to the questions.
func (b *Bot) handleContactText(ctx context.Context, chatID int64, s *session, text string) {
	v := s.wiz.View()
	field := pendingField(v)
	correcting := len(v.FieldErrors) > 0

	if field == validation.FieldEmail && text == "-" {
		text = ""
	}
	if err := s.wiz.SetContactField(field, text); err != nil {
		b.sendText(chatID, b.getErrorMessage(err))
		return
	}

	v = s.wiz.View()
	if (field == validation.FieldEmail || correcting) && len(v.FieldErrors) == 0 {
		err := s.wiz.Next(ctx)
		var fe validation.FieldErrors
		if err != nil && !errors.As(err, &fe) {
			b.sendText(chatID, b.getErrorMessage(err))
		}
	}
	b.render(chatID, s)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil {
		return
	}
	chatID := q.Message.Chat.ID
	data := q.Data
	l := zerolog.Ctx(ctx).With().Int64("chat_id", chatID).Str("data", data).Logger()

	s := b.session(chatID)
	if s == nil {
		b.answerCallback(q.ID, b.getErrorMessage(wizard.ErrClosed))
		return
	}

	var err error
	before := s.wiz.Step()

	switch {
	case strings.HasPrefix(data, cbDay):
		err = s.wiz.SelectDate(strings.TrimPrefix(data, cbDay))
	case strings.HasPrefix(data, cbTime):
		_, err = s.wiz.SelectTime(strings.TrimPrefix(data, cbTime))
	case strings.HasPrefix(data, cbAnswer):
		id, value, ok := strings.Cut(strings.TrimPrefix(data, cbAnswer), ":")
		if !ok {
			err = wizard.ErrInvalidAnswer
			break
		}
		err = s.wiz.AnswerQuestion(id, value)
	case data == cbNext:
		err = s.wiz.Next(ctx)
	case data == cbBack:
		s.wiz.Back()
	case data == cbRetry:
		err = s.wiz.Retry(ctx)
	case data == cbClose:
		if errors.Is(s.wiz.Close(ctx, false), wizard.ErrUnsavedChanges) {
			b.answerCallback(q.ID, "")
			b.send(closeConfirmation(chatID))
			return
		}
		b.dropSession(chatID)
		b.answerCallback(q.ID, "")
		b.sendText(chatID, "Listo, cerramos el agendamiento.")
		return
	case data == cbCloseConfirm:
		if cerr := s.wiz.Close(ctx, true); cerr != nil {
			l.Warn().Err(cerr).Msg("Failed to close wizard")
		}
		b.dropSession(chatID)
		b.answerCallback(q.ID, "")
		b.sendText(chatID, "Guardamos tu avance. Escribe /visita "+s.listingID+" para retomarlo.")
		return
	case data == cbStay:
	default:
		l.Warn().Msg("Unknown callback data")
		b.answerCallback(q.ID, "")
		return
	}

	if err != nil {
		l.Info().Err(err).Msg("Wizard action failed")
		b.answerCallback(q.ID, b.getErrorMessage(err))
	} else {
		b.answerCallback(q.ID, "")
	}

	if before == models.StepQualification && (data == cbNext || data == cbRetry) {
		b.recordBooking(ctx, chatID, s, err)
	}

	b.render(chatID, s)

	// после успешной записи сессия больше не нужна
	if s.wiz.Step() == models.StepSuccess {
		if cerr := s.wiz.Close(ctx, true); cerr != nil {
			l.Warn().Err(cerr).Msg("Failed to close wizard")
		}
		b.dropSession(chatID)
	}
}

func (b *Bot) recordBooking(ctx context.Context, chatID int64, s *session, err error) {
	l := zerolog.Ctx(ctx)
	if err == nil {
		if b.metrics != nil {
			b.metrics.VisitsBooked.Inc()
		}
		l.Info().Int64("chat_id", chatID).Str("listing_id", s.listingID).Msg("Visit booked from chat")
		return
	}

	code := "unknown"
	var se *scheduler.Error
	if errors.As(err, &se) && se.Code != "" {
		code = se.Code
	}
	if b.metrics != nil {
		b.metrics.BookingFailures.WithLabelValues(code).Inc()
	}
}

func (b *Bot) render(chatID int64, s *session) {
	b.send(renderView(chatID, b.listingName(s.listingID), s.wiz.View()))
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Error().Err(err).Msg("Failed to answer callback query")
	}
}

func (b *Bot) listingsText() string {
	if len(b.listings) == 0 {
		return helpText
	}
	ids := make([]string, 0, len(b.listings))
	for id := range b.listings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("¡Hola! Elige la propiedad que quieres visitar:\n")
	for _, id := range ids {
		l := b.listings[id]
		sb.WriteString("\n/visita " + id + " – " + l.Name)
		if l.Address != "" {
			sb.WriteString(", " + l.Address)
		}
	}
	return sb.String()
}
