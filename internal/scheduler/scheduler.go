package scheduler

import (
	"context"
	"sync"
	"time"

	"arriendo/internal/domain"
	"arriendo/internal/logging"
	"arriendo/internal/models"

	"github.com/rs/zerolog"
)

// SubmitStatus is the state of the booking submitter.
type SubmitStatus string

const (
	SubmitIdle       SubmitStatus = "idle"
	SubmitSubmitting SubmitStatus = "submitting"
	SubmitSuccess    SubmitStatus = "success"
	SubmitFailure    SubmitStatus = "failure"
)

// State is a snapshot of the scheduler; slices are copies.
type State struct {
	ListingID    string
	Slots        []models.Slot
	Availability *models.AvailabilityResponse
	SelectedDate string
	SelectedTime string
	SelectedSlot *models.Slot
	Loading      bool
	Submit       SubmitStatus
	Error        string
	ErrorCode    string
	LastVisit    *models.VisitResponse
}

type Options struct {
	Location     *time.Location
	BookableDays int
	Now          func() time.Time
	Logger       *zerolog.Logger
}

// Scheduler holds availability, selection and booking state of one listing.
// Network calls are made without holding the lock.
type Scheduler struct {
	api       domain.VisitsAPI
	listingID string
	loc       *time.Location
	days      int
	now       func() time.Time
	logger    *zerolog.Logger

	mu      sync.Mutex
	state   State
	idemKey string

	// unsettledKey is the key of a POST that ended without any HTTP answer.
	unsettledKey string
}

func New(api domain.VisitsAPI, listingID string, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = models.Santiago()
	}
	if opts.BookableDays <= 0 {
		opts.BookableDays = models.BookableDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		api:       api,
		listingID: listingID,
		loc:       opts.Location,
		days:      opts.BookableDays,
		now:       opts.Now,
		logger:    logging.Component(opts.Logger, "scheduler"),
		state: State{
			ListingID: listingID,
			Submit:    SubmitIdle,
		},
	}
}

func (s *Scheduler) ListingID() string {
	return s.listingID
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// FetchAvailability loads the slots in [start, end) and replaces the stored data.
func (s *Scheduler) FetchAvailability(ctx context.Context, start, end time.Time) error {
	s.mu.Lock()
	s.state.Loading = true
	s.mu.Unlock()

	resp, err := s.api.GetAvailability(ctx, domain.AvailabilityQuery{
		ListingID: s.listingID,
		Start:     start,
		End:       end,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false

	if err != nil {
		se := loadError(err, MsgLoadFailed)
		s.setError(se)
		s.logger.Warn().Err(err).Str("listing_id", s.listingID).Msg("Failed to fetch availability")
		return se
	}

	s.state.Slots = append([]models.Slot(nil), resp.Slots...)
	data := *resp
	data.Slots = append([]models.Slot(nil), resp.Slots...)
	s.state.Availability = &data
	s.clearError()
	return nil
}

// FetchUpcoming loads availability from the start of today through the bookable window.
func (s *Scheduler) FetchUpcoming(ctx context.Context) error {
	start := startOfDay(s.now().In(s.loc))
	// с запасом на воскресенья внутри окна
	end := start.AddDate(0, 0, s.days+s.days/6+2)
	return s.FetchAvailability(ctx, start, end)
}

// State returns a copy of the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Slots = append([]models.Slot(nil), s.state.Slots...)
	if s.state.Availability != nil {
		data := *s.state.Availability
		data.Slots = append([]models.Slot(nil), s.state.Availability.Slots...)
		st.Availability = &data
	}
	if s.state.SelectedSlot != nil {
		slot := *s.state.SelectedSlot
		st.SelectedSlot = &slot
	}
	return st
}

func (s *Scheduler) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearError()
}

// IdempotencyKey returns the key the next submission will use.
func (s *Scheduler) IdempotencyKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idemKey
}

func (s *Scheduler) setError(e *Error) {
	s.state.Error = e.Message
	s.state.ErrorCode = e.Code
}

func (s *Scheduler) clearError() {
	s.state.Error = ""
	s.state.ErrorCode = ""
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
