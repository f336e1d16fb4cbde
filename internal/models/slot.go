package models

import (
	"fmt"
	"strings"
	"time"
)

type SlotStatus string

const (
	SlotOpen      SlotStatus = "open"
	SlotBlocked   SlotStatus = "blocked"
	SlotReserved  SlotStatus = "reserved"
	SlotConfirmed SlotStatus = "confirmed"
)

type SlotSource string

const (
	SourceOwner  SlotSource = "owner"
	SourceSystem SlotSource = "system"
)

// Slot is a bookable visit window of a listing.
type Slot struct {
	ID        string     `json:"id"`
	ListingID string     `json:"listingId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Status    SlotStatus `json:"status"`
	Source    SlotSource `json:"source"`
}

func (s Slot) IsOpen() bool {
	return s.Status == SlotOpen
}

// Date returns the slot start as YYYY-MM-DD in loc.
func (s Slot) Date(loc *time.Location) string {
	return s.StartTime.In(loc).Format(DateLayout)
}

// Clock returns the slot start as HH:MM in loc.
func (s Slot) Clock(loc *time.Location) string {
	return s.StartTime.In(loc).Format(ClockLayout)
}

func (s Slot) IsMock() bool {
	return IsMockSlotID(s.ID)
}

// IsMockSlotID reports whether id names a locally synthesized slot.
func IsMockSlotID(id string) bool {
	return strings.HasPrefix(id, MockSlotPrefix)
}

// MockSlotID builds the identifier of a locally synthesized slot.
func MockSlotID(listingID, date, clock string) string {
	return fmt.Sprintf("%s%s_%s_%s", MockSlotPrefix, listingID, date, strings.ReplaceAll(clock, ":", ""))
}

// ParseMockSlotID reverses MockSlotID. Listing ids may contain underscores,
// so the date and time are taken from the right.
func ParseMockSlotID(id string) (listingID, date, clock string, err error) {
	if !IsMockSlotID(id) {
		return "", "", "", fmt.Errorf("not a mock slot id: %q", id)
	}
	rest := strings.TrimPrefix(id, MockSlotPrefix)

	i := strings.LastIndex(rest, "_")
	if i <= 0 || len(rest)-i-1 != 4 {
		return "", "", "", fmt.Errorf("malformed mock slot id: %q", id)
	}
	hhmm := rest[i+1:]
	rest = rest[:i]

	j := strings.LastIndex(rest, "_")
	if j <= 0 {
		return "", "", "", fmt.Errorf("malformed mock slot id: %q", id)
	}
	listingID, date = rest[:j], rest[j+1:]
	clock = hhmm[:2] + ":" + hhmm[2:]

	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", "", "", fmt.Errorf("malformed mock slot date: %w", err)
	}
	if _, err := time.Parse(ClockLayout, clock); err != nil {
		return "", "", "", fmt.Errorf("malformed mock slot time: %w", err)
	}
	return listingID, date, clock, nil
}

// NewMockSlot synthesizes an open placeholder slot for a freeform choice.
func NewMockSlot(listingID, date, clock string, loc *time.Location) (Slot, error) {
	start, err := ParseLocal(date, clock, loc)
	if err != nil {
		return Slot{}, err
	}
	return Slot{
		ID:        MockSlotID(listingID, date, clock),
		ListingID: listingID,
		StartTime: start,
		EndTime:   start.Add(VisitStepMinutes * time.Minute),
		Status:    SlotOpen,
		Source:    SourceSystem,
	}, nil
}

// ParseLocal combines a YYYY-MM-DD date and HH:MM clock in loc.
func ParseLocal(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %s %s: %w", date, clock, err)
	}
	return t, nil
}

// VisitTimes returns the fixed HH:MM grid offered to visitors.
func VisitTimes() []string {
	out := make([]string, 0, (VisitEndMinute-VisitStartMinute)/VisitStepMinutes+1)
	for m := VisitStartMinute; m <= VisitEndMinute; m += VisitStepMinutes {
		out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return out
}

// IsGridTime reports whether t (local) falls on the visit grid.
func IsGridTime(t time.Time) bool {
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return m >= VisitStartMinute && m <= VisitEndMinute && (m-VisitStartMinute)%VisitStepMinutes == 0
}
