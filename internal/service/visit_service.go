package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"arriendo/internal/database"
	"arriendo/internal/domain"
	"arriendo/internal/events"
	"arriendo/internal/metrics"
	"arriendo/internal/models"

	"github.com/rs/zerolog"
)

const (
	// maxRange ограничивает окно одного запроса доступности
	maxRange = 31 * 24 * time.Hour
	// lookAhead окно поиска nextAvailableDate за пределами запроса
	lookAhead = 14 * 24 * time.Hour
)

// VisitService holds the server-side booking rules behind /api/availability
// and /api/visits.
type VisitService struct {
	repo     domain.VisitRepository
	eventBus domain.EventPublisher
	loc      *time.Location
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewVisitService(repo domain.VisitRepository, eventBus domain.EventPublisher, loc *time.Location, logger *zerolog.Logger) *VisitService {
	if loc == nil {
		loc = models.Santiago()
	}
	return &VisitService{
		repo:     repo,
		eventBus: eventBus,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *VisitService) Location() *time.Location {
	return s.loc
}

// GetAvailability returns the slots of a listing starting in [start, end).
// Slots starting at or before now are left out.
func (s *VisitService) GetAvailability(ctx context.Context, listingID string, start, end time.Time) (*models.AvailabilityResponse, error) {
	if !end.After(start) || end.Sub(start) > maxRange {
		return nil, ErrInvalidRange
	}
	if _, err := s.activeListing(ctx, listingID); err != nil {
		return nil, err
	}

	if err := s.repo.EnsureSlots(ctx, listingID, start, end, s.loc); err != nil {
		return nil, err
	}
	stored, err := s.repo.GetSlots(ctx, listingID, start, end)
	if err != nil {
		return nil, err
	}

	now := s.now()
	slots := make([]models.Slot, 0, len(stored))
	for _, slot := range stored {
		if !slot.StartTime.After(now) {
			continue
		}
		slots = append(slots, slot)
	}

	resp := &models.AvailabilityResponse{
		ListingID: listingID,
		Timezone:  s.loc.String(),
		Slots:     slots,
	}
	resp.NextAvailableDate = s.firstOpenDate(slots)
	if resp.NextAvailableDate == "" {
		resp.NextAvailableDate = s.nextAvailableDate(ctx, listingID, end)
	}
	return resp, nil
}

func (s *VisitService) firstOpenDate(slots []models.Slot) string {
	now := s.now()
	for _, slot := range slots {
		if slot.IsOpen() && slot.StartTime.After(now) {
			return slot.Date(s.loc)
		}
	}
	return ""
}

func (s *VisitService) nextAvailableDate(ctx context.Context, listingID string, from time.Time) string {
	to := from.Add(lookAhead)
	if err := s.repo.EnsureSlots(ctx, listingID, from, to, s.loc); err != nil {
		s.logger.Warn().Err(err).Str("listing_id", listingID).Msg("look-ahead slots")
		return ""
	}
	slots, err := s.repo.GetSlots(ctx, listingID, from, to)
	if err != nil {
		s.logger.Warn().Err(err).Str("listing_id", listingID).Msg("look-ahead slots")
		return ""
	}
	return s.firstOpenDate(slots)
}

// CreateVisit books the requested slot. A key seen before answers with the
// stored visit and replayed=true instead of booking again.
func (s *VisitService) CreateVisit(ctx context.Context, req models.CreateVisitRequest, key string) (*models.VisitResponse, bool, error) {
	if key == "" {
		key = req.IdempotencyKey
	}
	if key == "" {
		return nil, false, ErrMissingIdempotencyKey
	}
	if req.SlotID == "" {
		return nil, false, ErrMissingSlot
	}

	if resp, err := s.replay(ctx, key); err == nil {
		return resp, true, nil
	} else if !errors.Is(err, database.ErrVisitNotFound) {
		return nil, false, err
	}

	listing, err := s.activeListing(ctx, req.ListingID)
	if err != nil {
		return nil, false, err
	}

	slot, err := s.resolveSlot(ctx, req.ListingID, req.SlotID)
	if err != nil {
		s.reject(req, err)
		return nil, false, err
	}

	visit := &models.Visit{
		ListingID:      req.ListingID,
		SlotID:         slot.ID,
		UserID:         req.UserID,
		Channel:        req.Channel,
		IdempotencyKey: key,
		Contact:        req.ContactData,
	}
	err = s.repo.CreateVisitWithLock(ctx, visit)
	switch {
	case errors.Is(err, database.ErrDuplicateKey):
		// параллельный запрос с тем же ключом успел раньше
		resp, rerr := s.replay(ctx, key)
		if rerr != nil {
			return nil, false, rerr
		}
		return resp, true, nil
	case errors.Is(err, database.ErrSlotUnavailable), errors.Is(err, database.ErrSlotNotFound):
		s.reject(req, errUnavailable)
		return nil, false, errUnavailable
	case err != nil:
		return nil, false, err
	}

	slot.Status = models.SlotReserved
	metrics.IncVisitCreated(visit.Channel)
	s.publishEvent(events.EventVisitCreated, visit, "")
	s.logger.Info().
		Str("visit_id", visit.ID).
		Str("listing_id", visit.ListingID).
		Str("slot_id", visit.SlotID).
		Str("channel", visit.Channel).
		Msg("Visit booked")

	return s.response(listing, visit, *slot), false, nil
}

// ListVisits returns booked visits; empty listingID means every listing.
func (s *VisitService) ListVisits(ctx context.Context, listingID string) ([]*models.Visit, error) {
	return s.repo.GetVisits(ctx, listingID)
}

func (s *VisitService) activeListing(ctx context.Context, id string) (*models.Listing, error) {
	listing, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if !listing.IsActive {
		return nil, database.ErrListingNotFound
	}
	return listing, nil
}

// resolveSlot checks the booking rules and returns the stored slot,
// materializing a mock_ slot on first use.
func (s *VisitService) resolveSlot(ctx context.Context, listingID, slotID string) (*models.Slot, error) {
	if !models.IsMockSlotID(slotID) {
		slot, err := s.repo.GetSlot(ctx, slotID)
		if errors.Is(err, database.ErrSlotNotFound) {
			return nil, errUnavailable
		}
		if err != nil {
			return nil, err
		}
		if slot.ListingID != listingID {
			return nil, errUnavailable
		}
		if err := s.checkRules(slot.StartTime); err != nil {
			return nil, err
		}
		if !slot.IsOpen() {
			return nil, errUnavailable
		}
		return slot, nil
	}

	mockListing, date, clock, err := models.ParseMockSlotID(slotID)
	if err != nil || mockListing != listingID {
		return nil, errUnavailable
	}
	start, err := models.ParseLocal(date, clock, s.loc)
	if err != nil {
		return nil, errOffGrid
	}
	if err := s.checkRules(start); err != nil {
		return nil, err
	}

	slot, err := s.repo.GetSlotByStart(ctx, listingID, start)
	if errors.Is(err, database.ErrSlotNotFound) {
		slot = &models.Slot{
			ListingID: listingID,
			StartTime: start,
			EndTime:   start.Add(models.VisitStepMinutes * time.Minute),
			Status:    models.SlotOpen,
			Source:    models.SourceSystem,
		}
		if err := s.repo.CreateSlot(ctx, slot); err != nil {
			// слот мог появиться между чтением и вставкой
			if slot, err = s.repo.GetSlotByStart(ctx, listingID, start); err != nil {
				return nil, fmt.Errorf("materialize slot: %w", err)
			}
		}
	} else if err != nil {
		return nil, err
	}
	if !slot.IsOpen() {
		return nil, errUnavailable
	}
	return slot, nil
}

func (s *VisitService) checkRules(start time.Time) error {
	local := start.In(s.loc)
	if local.Weekday() == time.Sunday {
		return errSunday
	}
	if !models.IsGridTime(local) {
		return errOffGrid
	}
	if !start.After(s.now()) {
		return errPast
	}
	return nil
}

func (s *VisitService) replay(ctx context.Context, key string) (*models.VisitResponse, error) {
	visit, err := s.repo.GetVisitByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	listing, err := s.repo.GetListing(ctx, visit.ListingID)
	if err != nil {
		return nil, err
	}
	slot, err := s.repo.GetSlot(ctx, visit.SlotID)
	if err != nil {
		return nil, err
	}

	metrics.IncIdempotentReplay()
	s.publishEvent(events.EventVisitReplayed, visit, "")
	s.logger.Info().Str("visit_id", visit.ID).Str("idempotency_key", key).Msg("Visit replayed")
	return s.response(listing, visit, *slot), nil
}

func (s *VisitService) response(listing *models.Listing, visit *models.Visit, slot models.Slot) *models.VisitResponse {
	local := slot.StartTime.In(s.loc)
	return &models.VisitResponse{
		VisitID: visit.ID,
		Status:  visit.Status,
		Agent:   listing.Agent,
		Slot:    slot,
		ConfirmationMessage: fmt.Sprintf("Tu visita a %s quedó agendada para el %s %02d/%02d a las %s.",
			listing.Name, strings.ToLower(models.WeekdayName(int(local.Weekday()))), local.Day(), int(local.Month()), local.Format(models.ClockLayout)),
	}
}

func (s *VisitService) reject(req models.CreateVisitRequest, err error) {
	code := ""
	if re, ok := AsRuleError(err); ok {
		code = re.Code
	}
	metrics.IncVisitRejected(code)
	s.publishEvent(events.EventVisitRejected, &models.Visit{
		ListingID: req.ListingID,
		SlotID:    req.SlotID,
		UserID:    req.UserID,
		Channel:   req.Channel,
	}, code)
	s.logger.Info().Err(err).Str("listing_id", req.ListingID).Str("slot_id", req.SlotID).Msg("Visit rejected")
}

func (s *VisitService) publishEvent(eventType string, visit *models.Visit, code string) {
	if s.eventBus == nil {
		return
	}

	payload := events.VisitEventPayload{
		VisitID:   visit.ID,
		ListingID: visit.ListingID,
		SlotID:    visit.SlotID,
		UserID:    visit.UserID,
		Channel:   visit.Channel,
		Status:    string(visit.Status),
		Code:      code,
		StartTime: visit.StartTime,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("visit_id", visit.ID).Msg("publish event error")
	}
}
