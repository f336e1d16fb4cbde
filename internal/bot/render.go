package bot

import (
	"fmt"
	"strings"

	"arriendo/internal/models"
	"arriendo/internal/validation"
	"arriendo/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes and actions.
const (
	cbDay          = "d:"
	cbTime         = "t:"
	cbAnswer       = "q:"
	cbNext         = "nav:next"
	cbBack         = "nav:back"
	cbRetry        = "nav:retry"
	cbClose        = "nav:close"
	cbCloseConfirm = "nav:close_confirm"
	cbStay         = "nav:stay"
)

const (
	dayButtonsPerRow  = 3
	timeButtonsPerRow = 4
)

var fieldPrompts = map[string]string{
	validation.FieldName:  "¿Cuál es tu nombre completo?",
	validation.FieldPhone: "¿Cuál es tu teléfono? (ej: +56 9 1234 5678)",
	validation.FieldRUT:   "¿Cuál es tu RUT? (ej: 12.345.678-5)",
	validation.FieldEmail: "¿Cuál es tu correo? Escribe - para omitirlo.",
}

var fieldLabels = map[string]string{
	validation.FieldName:  "Nombre",
	validation.FieldPhone: "Teléfono",
	validation.FieldRUT:   "RUT",
	validation.FieldEmail: "Correo",
}

// pendingField returns the contact field the next text message fills: the
// first field with an error while errors are shown, the current one otherwise.
func pendingField(v wizard.View) string {
	for _, f := range validation.ContactFields {
		if _, ok := v.FieldErrors[f]; ok {
			return f
		}
	}
	return v.CurrentField
}

func contactValue(c models.ContactData, field string) string {
	switch field {
	case validation.FieldName:
		return c.Name
	case validation.FieldPhone:
		return c.Phone
	case validation.FieldRUT:
		return c.RUT
	case validation.FieldEmail:
		return c.Email
	}
	return ""
}

// renderView builds the message for the current wizard step.
func renderView(chatID int64, listingName string, v wizard.View) tgbotapi.MessageConfig {
	var (
		text string
		rows [][]tgbotapi.InlineKeyboardButton
	)

	switch v.Step {
	case models.StepSelection:
		text, rows = renderSelection(listingName, v)
	case models.StepContact:
		text, rows = renderContact(listingName, v)
	case models.StepQualification:
		text, rows = renderQualification(listingName, v)
	case models.StepSuccess:
		text, rows = renderSuccess(v)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return msg
}

func header(listingName string, v wizard.View, title string) string {
	return fmt.Sprintf("🏠 %s\nPaso %d de %d · %s", listingName, v.StepIndex, v.StepCount, title)
}

func renderSelection(listingName string, v wizard.View) (string, [][]tgbotapi.InlineKeyboardButton) {
	var sb strings.Builder
	sb.WriteString(header(listingName, v, "Elige día y hora"))

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, d := range v.Days {
		label := fmt.Sprintf("%s %d", shortWeekday(d.Weekday), d.DayNumber)
		switch {
		case d.Date == v.SelectedDate:
			label = "✅ " + label
		case !d.Available:
			label += " ·"
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cbDay+d.Date))
		if len(row) == dayButtonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
		row = nil
	}

	if v.SelectedDate != "" {
		var free int
		for _, t := range v.Times {
			if !t.Available {
				continue
			}
			free++
			label := t.Time
			if t.Time == v.SelectedTime {
				label = "✅ " + label
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cbTime+t.Time))
			if len(row) == timeButtonsPerRow {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		if free == 0 {
			sb.WriteString("\n\nNo quedan horarios disponibles para este día.")
		} else {
			sb.WriteString("\n\nElige un horario:")
		}
	} else {
		sb.WriteString("\n\nElige el día de tu visita:")
	}

	writeError(&sb, v)
	if v.CanGoNext {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Continuar »", cbNext)))
	}
	rows = append(rows, footer(v)...)
	return sb.String(), rows
}

func renderContact(listingName string, v wizard.View) (string, [][]tgbotapi.InlineKeyboardButton) {
	var sb strings.Builder
	sb.WriteString(header(listingName, v, "Tus datos"))
	fmt.Fprintf(&sb, "\nVisita: %s a las %s", v.SelectedDate, v.SelectedTime)

	var filled []string
	for _, f := range validation.ContactFields {
		if val := contactValue(v.Contact, f); val != "" {
			filled = append(filled, fmt.Sprintf("%s: %s", fieldLabels[f], val))
		}
	}
	if len(filled) > 0 {
		sb.WriteString("\n\n" + strings.Join(filled, "\n"))
	}

	if len(v.FieldErrors) > 0 {
		sb.WriteString("\n\nRevisa estos datos:")
		for _, f := range validation.ContactFields {
			if msg, ok := v.FieldErrors[f]; ok {
				fmt.Fprintf(&sb, "\n• %s: %s", fieldLabels[f], msg)
			}
		}
	}

	sb.WriteString("\n\n" + fieldPrompts[pendingField(v)])
	return sb.String(), footer(v)
}

func renderQualification(listingName string, v wizard.View) (string, [][]tgbotapi.InlineKeyboardButton) {
	var sb strings.Builder
	sb.WriteString(header(listingName, v, "Unas preguntas"))

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, q := range v.Questions {
		if a := v.Answers.Get(q.ID); a != "" {
			fmt.Fprintf(&sb, "\n%s %s", q.Text, q.Label(a))
		}
	}

	if !v.CanGoNext && v.CurrentQuestion < len(v.Questions) {
		q := v.Questions[v.CurrentQuestion]
		sb.WriteString("\n\n" + q.Text)
		for _, o := range q.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(o.Label, cbAnswer+q.ID+":"+o.Value),
			))
		}
	} else if !v.CanRetry {
		sb.WriteString("\n\nRevisa tus respuestas y confirma la visita.")
	}

	writeError(&sb, v)
	if v.CanGoNext && !v.CanRetry {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Agendar visita", cbNext)))
	}
	rows = append(rows, footer(v)...)
	return sb.String(), rows
}

func renderSuccess(v wizard.View) (string, [][]tgbotapi.InlineKeyboardButton) {
	var sb strings.Builder
	sb.WriteString("🎉 ¡Visita agendada!")
	if v.Result != nil {
		if v.Result.ConfirmationMessage != "" {
			sb.WriteString("\n\n" + v.Result.ConfirmationMessage)
		}
		a := v.Result.Agent
		if a.Name != "" {
			fmt.Fprintf(&sb, "\n\nTe atenderá %s", a.Name)
			if a.Phone != "" {
				fmt.Fprintf(&sb, "\nTeléfono: %s", a.Phone)
			}
			if a.Email != "" {
				fmt.Fprintf(&sb, "\nCorreo: %s", a.Email)
			}
		}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if v.WhatsAppURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Escribir por WhatsApp", v.WhatsAppURL)))
	}
	return sb.String(), rows
}

func writeError(sb *strings.Builder, v wizard.View) {
	if v.Error != "" {
		sb.WriteString("\n\n⚠️ " + v.Error)
	}
}

// footer holds retry, WhatsApp fallback and navigation buttons.
func footer(v wizard.View) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	if v.CanRetry {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(v.RetryLabel, cbRetry)))
	}
	if v.Error != "" && v.WhatsAppURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Agendar por WhatsApp", v.WhatsAppURL)))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if v.CanGoBack {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("« Volver", cbBack))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Cancelar", cbClose))
	return append(rows, nav)
}

func closeConfirmation(chatID int64) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, "¿Seguro que quieres salir? Guardaremos tu avance por 24 horas.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Sí, salir", cbCloseConfirm),
			tgbotapi.NewInlineKeyboardButtonData("Seguir agendando", cbStay),
		),
	)
	return msg
}

func shortWeekday(name string) string {
	r := []rune(name)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r)
}
