package wizard

import (
	"fmt"
	"net/url"
	"strings"

	"arriendo/internal/models"
	"arriendo/internal/scheduler"
	"arriendo/internal/validation"
)

const RetryLabel = "Reintentar"

// View is everything a front-end needs to render the current step.
type View struct {
	Step      models.Step
	StepIndex int
	StepCount int

	Days         []models.DaySlot
	Times        []models.TimeSlot
	SelectedDate string
	SelectedTime string

	Contact      models.ContactData
	CurrentField string
	FieldErrors  map[string]string

	Questions       []Question
	CurrentQuestion int
	Answers         models.RentalQualification

	Loading    bool
	Submitting bool
	Error      string
	ErrorCode  string
	CanRetry   bool
	RetryLabel string

	CanGoBack bool
	CanGoNext bool

	Confetti    bool
	Result      *models.VisitResponse
	WhatsAppURL string
}

var stepOrder = []models.Step{models.StepSelection, models.StepContact, models.StepQualification, models.StepSuccess}

func (w *Wizard) View() View {
	st := w.sched.State()

	w.mu.Lock()
	defer w.mu.Unlock()

	v := View{
		Step:            w.step,
		StepCount:       len(stepOrder),
		SelectedDate:    w.date,
		SelectedTime:    w.clock,
		Contact:         w.contact,
		CurrentField:    validation.ContactFields[w.fieldIdx],
		Questions:       Questions,
		CurrentQuestion: w.questionIdx,
		Answers:         w.qual,
		Loading:         st.Loading,
		Submitting:      st.Submit == scheduler.SubmitSubmitting,
		Error:           st.Error,
		ErrorCode:       st.ErrorCode,
		Confetti:        w.confetti,
		Result:          w.result,
	}
	for i, s := range stepOrder {
		if s == w.step {
			v.StepIndex = i + 1
		}
	}
	if len(w.fieldErrors) > 0 {
		v.FieldErrors = make(map[string]string, len(w.fieldErrors))
		for k, msg := range w.fieldErrors {
			v.FieldErrors[k] = msg
		}
	}

	switch w.step {
	case models.StepSelection:
		v.Days = w.sched.Days()
		if w.date != "" {
			v.Times = w.sched.TimeSlots(w.date)
		}
		v.CanGoNext = w.date != "" && w.clock != "" && st.SelectedSlot != nil
	case models.StepContact:
		v.CanGoBack = true
		v.CanGoNext = true
	case models.StepQualification:
		v.CanGoBack = true
		v.CanGoNext = firstUnanswered(w.qual) >= len(Questions) && !v.Submitting
	case models.StepSuccess:
		v.CanGoBack = true
	}

	if v.Error != "" && !v.Submitting {
		v.CanRetry = true
		v.RetryLabel = RetryLabel
	}
	if v.Error != "" || w.step == models.StepSuccess {
		v.WhatsAppURL = w.whatsAppURL()
	}
	return v
}

// whatsAppURL builds the fallback contact link; caller holds mu.
func (w *Wizard) whatsAppURL() string {
	number := w.opts.WhatsAppNumber
	if w.result != nil && w.result.Agent.WhatsApp != "" {
		number = w.result.Agent.WhatsApp
	}
	number = digitsOnly(number)
	if number == "" {
		return ""
	}

	text := fmt.Sprintf("Hola, quiero agendar una visita a la propiedad %s", w.opts.ListingID)
	if w.date != "" && w.clock != "" {
		text += fmt.Sprintf(" el %s a las %s", w.date, w.clock)
	}
	return "https://wa.me/" + number + "?text=" + url.QueryEscape(text)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
