package scheduler

import (
	"time"

	"arriendo/internal/models"
)

// Days returns the bookable calendar days starting today, skipping Sundays.
func (s *Scheduler) Days() []models.DaySlot {
	s.mu.Lock()
	slots := append([]models.Slot(nil), s.state.Slots...)
	s.mu.Unlock()

	today := startOfDay(s.now().In(s.loc))
	counts := make(map[string]int)
	for _, slot := range slots {
		if slot.IsOpen() {
			counts[slot.Date(s.loc)]++
		}
	}

	out := make([]models.DaySlot, 0, s.days)
	for d := today; len(out) < s.days; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Sunday {
			continue
		}
		date := d.Format(models.DateLayout)
		n := counts[date]
		out = append(out, models.DaySlot{
			Date:       date,
			Weekday:    models.WeekdayName(int(d.Weekday())),
			DayNumber:  d.Day(),
			Available:  n > 0,
			SlotsCount: n,
			IsToday:    d.Equal(today),
		})
	}
	return out
}

// TimeSlots returns the half-hour grid for date. A time is unavailable only
// when fetched data holds a non-open slot starting at it.
func (s *Scheduler) TimeSlots(date string) []models.TimeSlot {
	s.mu.Lock()
	slots := append([]models.Slot(nil), s.state.Slots...)
	s.mu.Unlock()

	byClock := make(map[string]models.Slot)
	for _, slot := range slots {
		if slot.Date(s.loc) != date {
			continue
		}
		clock := slot.Clock(s.loc)
		// открытый слот важнее заблокированного на то же время
		if prev, ok := byClock[clock]; ok && prev.IsOpen() {
			continue
		}
		byClock[clock] = slot
	}

	times := models.VisitTimes()
	out := make([]models.TimeSlot, 0, len(times))
	for _, clock := range times {
		ts := models.TimeSlot{Time: clock, Available: true}
		if slot, ok := byClock[clock]; ok {
			ts.Available = slot.IsOpen()
			ts.SlotID = slot.ID
		}
		out = append(out, ts)
	}
	return out
}
