package models

// DaySlot is one calendar day offered in the selection step.
type DaySlot struct {
	Date       string `json:"date"`
	Weekday    string `json:"weekday"`
	DayNumber  int    `json:"dayNumber"`
	Available  bool   `json:"available"`
	SlotsCount int    `json:"slotsCount"`
	IsToday    bool   `json:"isToday"`
}

// TimeSlot is one selectable time of a day.
type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	SlotID    string `json:"slotId,omitempty"`
}

var weekdaysES = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

// WeekdayName returns the Spanish weekday name.
func WeekdayName(d int) string {
	if d < 0 || d >= len(weekdaysES) {
		return ""
	}
	return weekdaysES[d]
}
