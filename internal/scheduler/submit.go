package scheduler

import (
	"context"

	"arriendo/internal/client"
	"arriendo/internal/domain"
	"arriendo/internal/models"
)

// VisitInput is what the caller adds to the selected slot when booking.
type VisitInput struct {
	UserID  string
	Channel string
	Contact *models.ContactData
}

// CreateVisit books the selected slot. On failure it returns nil and an *Error
// whose message is also stored in the state.
func (s *Scheduler) CreateVisit(ctx context.Context, in VisitInput) (*models.VisitResponse, error) {
	s.mu.Lock()
	if s.state.Submit == SubmitSubmitting {
		s.mu.Unlock()
		return nil, newError("", MsgInProgress, ErrSubmitInProgress)
	}
	if s.state.SelectedSlot == nil {
		se := newError("", MsgNoSelection, ErrNoSlotSelected)
		s.setError(se)
		s.mu.Unlock()
		return nil, se
	}
	slot := *s.state.SelectedSlot
	if s.idemKey == "" {
		s.idemKey = newIdempotencyKey(s.now())
	}
	key := s.idemKey
	// прошлый POST с этим ключом мог дойти до сервера: решает сервер
	unsettled := s.unsettledKey == key
	s.state.Submit = SubmitSubmitting
	s.clearError()
	s.mu.Unlock()

	log := s.logger.With().Str("listing_id", s.listingID).Str("slot_id", slot.ID).Logger()

	// 1. повторная проверка слота перед отправкой
	resolved, err := s.recheck(ctx, slot, unsettled)
	if err != nil {
		log.Info().Err(err).Msg("Slot re-check failed")
		return nil, s.fail(err)
	}

	// 2. оптимистичная бронь
	s.mu.Lock()
	tu := newTentativeUpdate(resolved.ID, models.SlotReserved)
	tu.Apply(s.state.Slots, s.state.Availability)
	s.mu.Unlock()

	req := models.CreateVisitRequest{
		ListingID:      s.listingID,
		SlotID:         resolved.ID,
		UserID:         in.UserID,
		Channel:        in.Channel,
		IdempotencyKey: key,
		ContactData:    in.Contact,
	}
	if req.Channel == "" {
		req.Channel = models.ChannelWeb
	}

	resp, err := s.api.CreateVisit(ctx, req, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		// откат строго до того, как ошибка станет видна
		tu.Revert(s.state.Slots, s.state.Availability)
		if _, answered := client.AsHTTPError(err); answered {
			s.unsettledKey = ""
		} else {
			s.unsettledKey = key
		}
		se := bookingMessage(err)
		s.state.Submit = SubmitFailure
		s.setError(se)
		log.Warn().Err(err).Str("code", se.Code).Msg("Visit booking failed")
		return nil, se
	}

	tu.Commit()
	s.state.Submit = SubmitSuccess
	s.state.LastVisit = resp
	s.clearSelection()
	s.idemKey = ""
	s.unsettledKey = ""
	log.Info().Str("visit_id", resp.VisitID).Msg("Visit booked")
	return resp, nil
}

// ResetSubmit returns the submitter to idle after a success or failure.
func (s *Scheduler) ResetSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Submit != SubmitSubmitting {
		s.state.Submit = SubmitIdle
	}
}

func (s *Scheduler) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	se, ok := err.(*Error)
	if !ok {
		se = bookingMessage(err)
	}
	s.state.Submit = SubmitFailure
	s.setError(se)
	return se
}

// recheck asks the endpoint for the slot's day bypassing caches and returns
// the slot to book. A mock slot is upgraded to a real one starting at the same
// time when the server has materialized it. With unsettled set a taken or
// missing slot is passed through, so the POST reaches the idempotent replay.
func (s *Scheduler) recheck(ctx context.Context, slot models.Slot, unsettled bool) (models.Slot, error) {
	day := startOfDay(slot.StartTime.In(s.loc))
	resp, err := s.api.GetAvailability(ctx, domain.AvailabilityQuery{
		ListingID: s.listingID,
		Start:     day,
		End:       day.AddDate(0, 0, 1),
		NoCache:   true,
	})
	if err != nil {
		return slot, loadError(err, MsgRecheckFailed)
	}

	for _, live := range resp.Slots {
		if live.ID == slot.ID || (slot.IsMock() && live.StartTime.Equal(slot.StartTime)) {
			if !live.IsOpen() && !unsettled {
				return slot, newError(models.CodeSlotUnavailable, MsgSlotUnavailable, ErrSlotUnavailable)
			}
			return live, nil
		}
	}

	if !slot.IsMock() && !unsettled {
		// реальный слот пропал из выдачи
		return slot, newError(models.CodeSlotUnavailable, MsgSlotUnavailable, ErrSlotUnavailable)
	}
	return slot, nil
}
