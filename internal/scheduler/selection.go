package scheduler

import (
	"arriendo/internal/models"
)

// SelectDateTime resolves date and clock to a slot: the fetched slot starting
// at that local time, or a synthesized mock slot when none exists.
func (s *Scheduler) SelectDateTime(date, clock string) (*models.Slot, error) {
	if _, err := models.ParseLocal(date, clock, s.loc); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.findSlot(date, clock)
	if slot == nil {
		mock, err := models.NewMockSlot(s.listingID, date, clock, s.loc)
		if err != nil {
			return nil, err
		}
		slot = &mock
	}

	if s.state.SelectedSlot == nil || s.state.SelectedSlot.ID != slot.ID {
		s.idemKey = newIdempotencyKey(s.now())
	}
	s.state.SelectedDate = date
	s.state.SelectedTime = clock
	s.state.SelectedSlot = slot
	s.clearError()

	out := *slot
	return &out, nil
}

// ClearSelection drops the current date, time and slot.
func (s *Scheduler) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSelection()
}

func (s *Scheduler) clearSelection() {
	s.state.SelectedDate = ""
	s.state.SelectedTime = ""
	s.state.SelectedSlot = nil
}

func (s *Scheduler) findSlot(date, clock string) *models.Slot {
	var found *models.Slot
	for i := range s.state.Slots {
		slot := s.state.Slots[i]
		if slot.Date(s.loc) != date || slot.Clock(s.loc) != clock {
			continue
		}
		if slot.IsOpen() {
			return &slot
		}
		if found == nil {
			found = &slot
		}
	}
	return found
}
