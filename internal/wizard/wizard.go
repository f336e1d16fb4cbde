package wizard

import (
	"context"
	"sync"
	"time"

	"arriendo/internal/domain"
	"arriendo/internal/events"
	"arriendo/internal/logging"
	"arriendo/internal/models"
	"arriendo/internal/persist"
	"arriendo/internal/scheduler"
	"arriendo/internal/validation"

	"github.com/rs/zerolog"
)

type Deps struct {
	API    domain.VisitsAPI
	Store  domain.SnapshotStore
	Events domain.EventPublisher
	Logger *zerolog.Logger
}

type Options struct {
	ListingID      string
	UserID         string
	Channel        string
	WhatsAppNumber string

	// StorageKey overrides the default per-listing progress key.
	StorageKey   string
	Location     *time.Location
	BookableDays int
	PersistTTL   time.Duration
	Debounce     time.Duration
	Dev          bool
	Now          func() time.Time
}

// Wizard drives the selection → contact → qualification → success flow of
// one listing and keeps its progress in a snapshot store.
type Wizard struct {
	sched  *scheduler.Scheduler
	writer *persist.Writer[models.PersistedData]
	events domain.EventPublisher
	logger *zerolog.Logger
	opts   Options

	mu          sync.Mutex
	step        models.Step
	date        string
	clock       string
	contact     models.ContactData
	qual        models.RentalQualification
	questionIdx int
	fieldIdx    int
	fieldErrors validation.FieldErrors
	result      *models.VisitResponse
	confetti    bool
	closed      bool
}

func New(deps Deps, opts Options) *Wizard {
	if opts.Location == nil {
		opts.Location = models.Santiago()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Channel == "" {
		opts.Channel = models.ChannelWeb
	}
	if opts.StorageKey == "" {
		opts.StorageKey = models.StorageKey(opts.ListingID)
	}
	if opts.PersistTTL <= 0 {
		opts.PersistTTL = models.PersistenceTTL
	}
	if opts.Debounce <= 0 {
		opts.Debounce = models.PersistenceDebounce
	}

	logger := logging.Component(deps.Logger, "wizard")
	return &Wizard{
		sched: scheduler.New(deps.API, opts.ListingID, scheduler.Options{
			Location:     opts.Location,
			BookableDays: opts.BookableDays,
			Now:          opts.Now,
			Logger:       deps.Logger,
		}),
		writer: persist.NewWriter[models.PersistedData](deps.Store, opts.StorageKey, persist.Options{
			TTL:      opts.PersistTTL,
			Debounce: opts.Debounce,
			Dev:      opts.Dev,
			Logger:   logger,
			Now:      opts.Now,
		}),
		events: deps.Events,
		logger: logger,
		opts:   opts,
		step:   models.StepSelection,
	}
}

func (w *Wizard) Scheduler() *scheduler.Scheduler {
	return w.sched
}

func (w *Wizard) Step() models.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Open restores saved progress and loads availability. A load failure is kept
// in the view; the wizard stays usable.
func (w *Wizard) Open(ctx context.Context) error {
	restored := false
	if data, ok := w.writer.Load(ctx); ok {
		w.restore(data)
		restored = true
	}

	w.publish(events.EventWizardOpened, events.WizardEventPayload{Step: string(w.Step())})
	if restored {
		w.publish(events.EventWizardRestored, events.WizardEventPayload{Step: string(w.Step())})
	}

	err := w.sched.FetchUpcoming(ctx)

	w.mu.Lock()
	date, clock := w.date, w.clock
	w.mu.Unlock()
	if date != "" && clock != "" {
		selErr := ErrDateNotBookable
		if w.bookable(date) {
			_, selErr = w.sched.SelectDateTime(date, clock)
		}
		if selErr != nil {
			w.logger.Debug().Err(selErr).Str("date", date).Msg("Restored selection is no longer valid")
			w.mu.Lock()
			w.date, w.clock = "", ""
			w.step = models.StepSelection
			w.mu.Unlock()
		}
	}
	return err
}

func (w *Wizard) restore(data models.PersistedData) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.date = data.SelectedDate
	w.clock = data.SelectedTime
	w.contact = data.ContactData
	w.qual = data.RentalQualification
	w.questionIdx = clamp(data.CurrentQuestionIndex, 0, len(Questions)-1)
	w.fieldIdx = clamp(data.CurrentFieldIndex, 0, len(validation.ContactFields)-1)

	switch data.Step {
	case models.StepContact, models.StepQualification:
		w.step = data.Step
	default:
		w.step = models.StepSelection
	}
	if w.date == "" || w.clock == "" {
		w.step = models.StepSelection
	}
}

func (w *Wizard) bookable(date string) bool {
	for _, d := range w.sched.Days() {
		if d.Date == date {
			return true
		}
	}
	return false
}

// SelectDate picks a calendar day and drops the previously chosen time.
func (w *Wizard) SelectDate(date string) error {
	w.mu.Lock()
	if err := w.guard(models.StepSelection); err != nil {
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	if !w.bookable(date) {
		return ErrDateNotBookable
	}

	w.mu.Lock()
	if w.date != date {
		w.clock = ""
		w.sched.ClearSelection()
	}
	w.date = date
	w.mu.Unlock()

	w.publish(events.EventDateSelected, events.WizardEventPayload{Date: date})
	w.save()
	return nil
}

// SelectTime picks a time on the selected day and resolves it to a slot.
func (w *Wizard) SelectTime(clock string) (*models.Slot, error) {
	w.mu.Lock()
	if err := w.guard(models.StepSelection); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	date := w.date
	w.mu.Unlock()

	if date == "" {
		return nil, ErrSelectionIncomplete
	}
	slot, err := w.sched.SelectDateTime(date, clock)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.clock = clock
	w.mu.Unlock()

	w.publish(events.EventTimeSelected, events.WizardEventPayload{Date: date, Time: clock})
	w.save()
	return slot, nil
}

// SetContactField stores one contact field and moves to the next one.
func (w *Wizard) SetContactField(field, value string) error {
	w.mu.Lock()
	defer func() {
		w.mu.Unlock()
		w.save()
	}()

	if err := w.guard(models.StepContact); err != nil {
		return err
	}

	switch field {
	case validation.FieldName:
		w.contact.Name = value
	case validation.FieldPhone:
		w.contact.Phone = value
	case validation.FieldRUT:
		w.contact.RUT = value
	case validation.FieldEmail:
		w.contact.Email = value
	default:
		return ErrUnknownField
	}

	if w.fieldErrors != nil {
		delete(w.fieldErrors, field)
		if msg := validation.ValidateField(w.contact, field); msg != "" {
			w.fieldErrors[field] = msg
		}
	}
	for i, f := range validation.ContactFields {
		if f == field && i+1 < len(validation.ContactFields) {
			w.fieldIdx = i + 1
		}
	}
	return nil
}

// AnswerQuestion stores a qualification answer and moves to the next
// unanswered question.
func (w *Wizard) AnswerQuestion(id, value string) error {
	w.mu.Lock()
	defer func() {
		w.mu.Unlock()
		w.save()
	}()

	if err := w.guard(models.StepQualification); err != nil {
		return err
	}
	idx, q := findQuestion(id)
	if q == nil {
		return ErrUnknownQuestion
	}
	if !q.hasOption(value) {
		return ErrInvalidAnswer
	}
	w.qual.Set(id, value)

	next := firstUnanswered(w.qual)
	if next >= len(Questions) {
		next = idx
	}
	w.questionIdx = next
	return nil
}

// Next advances one step. On the qualification step it submits the booking.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}

	switch w.step {
	case models.StepSelection:
		if w.date == "" || w.clock == "" || w.sched.State().SelectedSlot == nil {
			w.mu.Unlock()
			return ErrSelectionIncomplete
		}
		w.moveTo(models.StepContact)
		w.mu.Unlock()
		w.save()
		return nil

	case models.StepContact:
		if errs := validation.ValidateContact(w.contact); errs != nil {
			w.fieldErrors = errs
			w.mu.Unlock()
			return errs
		}
		w.fieldErrors = nil
		w.contact = validation.Normalize(w.contact)
		w.questionIdx = clamp(firstUnanswered(w.qual), 0, len(Questions)-1)
		w.moveTo(models.StepQualification)
		w.mu.Unlock()
		w.save()
		return nil

	case models.StepQualification:
		w.mu.Unlock()
		_, err := w.Submit(ctx)
		return err
	}

	w.mu.Unlock()
	return ErrWrongStep
}

// Back goes one step back. From success it returns to qualification.
func (w *Wizard) Back() {
	w.mu.Lock()
	switch w.step {
	case models.StepContact:
		w.moveTo(models.StepSelection)
	case models.StepQualification:
		w.moveTo(models.StepContact)
	case models.StepSuccess:
		// TODO: decide with product whether back should be disabled after a booking
		w.confetti = false
		w.moveTo(models.StepQualification)
		// форма уже очищена, сохранять нечего
		w.mu.Unlock()
		return
	default:
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()
	w.save()
}

// Submit books the selected slot with the collected contact data.
func (w *Wizard) Submit(ctx context.Context) (*models.VisitResponse, error) {
	w.mu.Lock()
	if err := w.guard(models.StepQualification); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if firstUnanswered(w.qual) < len(Questions) {
		w.mu.Unlock()
		return nil, ErrQualificationIncomplete
	}
	contact := validation.Normalize(w.contact)
	date, clock := w.date, w.clock
	w.mu.Unlock()

	w.publish(events.EventBookingSubmitted, events.WizardEventPayload{Date: date, Time: clock})

	resp, err := w.sched.CreateVisit(ctx, scheduler.VisitInput{
		UserID:  w.opts.UserID,
		Channel: w.opts.Channel,
		Contact: &contact,
	})
	if err != nil {
		w.publish(events.EventBookingFailed, events.WizardEventPayload{Date: date, Time: clock, Error: err.Error()})
		return nil, err
	}

	w.mu.Lock()
	w.result = resp
	w.confetti = true
	w.resetForm()
	w.moveTo(models.StepSuccess)
	w.mu.Unlock()

	w.writer.Clear(ctx)
	w.publish(events.EventBookingSucceeded, events.WizardEventPayload{Date: date, Time: clock})
	return resp, nil
}

// Retry repeats the action that failed last: the booking on the
// qualification step, the availability load otherwise.
func (w *Wizard) Retry(ctx context.Context) error {
	step := w.Step()
	w.sched.ClearError()
	if step == models.StepQualification {
		_, err := w.Submit(ctx)
		return err
	}
	return w.sched.FetchUpcoming(ctx)
}

// HasUnsavedChanges reports whether closing now would drop entered data.
func (w *Wizard) HasUnsavedChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasUnsaved()
}

func (w *Wizard) hasUnsaved() bool {
	if w.step == models.StepSuccess {
		return false
	}
	return w.date != "" || !w.contact.IsEmpty() || !w.qual.IsEmpty()
}

// Close ends the session. With unsaved data it needs confirmed=true;
// progress is flushed so a reopen within the TTL restores it.
func (w *Wizard) Close(ctx context.Context, confirmed bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	if w.hasUnsaved() && !confirmed {
		w.mu.Unlock()
		return ErrUnsavedChanges
	}
	w.closed = true
	step := w.step
	w.mu.Unlock()

	w.writer.Flush(ctx)
	w.writer.Stop()
	if step != models.StepSuccess {
		w.publish(events.EventWizardAbandoned, events.WizardEventPayload{Step: string(step)})
	}
	return nil
}

// resetForm drops everything the visitor entered; caller holds mu.
func (w *Wizard) resetForm() {
	w.date, w.clock = "", ""
	w.contact = models.ContactData{}
	w.qual = models.RentalQualification{}
	w.questionIdx, w.fieldIdx = 0, 0
	w.fieldErrors = nil
}

// moveTo changes the step; caller holds mu.
func (w *Wizard) moveTo(to models.Step) {
	from := w.step
	w.step = to
	if from != to {
		w.publishLocked(events.EventStepChanged, events.WizardEventPayload{From: string(from), To: string(to)})
	}
}

func (w *Wizard) guard(step models.Step) error {
	if w.closed {
		return ErrClosed
	}
	if w.step != step {
		return ErrWrongStep
	}
	return nil
}

func (w *Wizard) snapshot() models.PersistedData {
	return models.PersistedData{
		SelectedDate:         w.date,
		SelectedTime:         w.clock,
		RentalQualification:  w.qual,
		ContactData:          w.contact,
		Step:                 w.step,
		CurrentQuestionIndex: w.questionIdx,
		CurrentFieldIndex:    w.fieldIdx,
	}
}

func (w *Wizard) save() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.step == models.StepSuccess {
		return
	}
	w.writer.Schedule(w.snapshot())
}

func (w *Wizard) publish(eventType string, payload events.WizardEventPayload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.publishLocked(eventType, payload)
}

func (w *Wizard) publishLocked(eventType string, payload events.WizardEventPayload) {
	if w.events == nil {
		return
	}
	payload.ListingID = w.opts.ListingID
	payload.UserID = w.opts.UserID
	if err := w.events.PublishJSON(eventType, payload); err != nil {
		w.logger.Debug().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
