package models

import "time"

// Wizard steps.
type Step string

const (
	StepSelection     Step = "selection"
	StepContact       Step = "contact"
	StepQualification Step = "qualification"
	StepSuccess       Step = "success"
)

// Error codes returned by the visits endpoint.
const (
	CodeSlotUnavailable = "SLOT_UNAVAILABLE"
	CodeInvalidDay      = "INVALID_DAY"
	CodeInvalidTime     = "INVALID_TIME"
	CodePastTime        = "PAST_TIME"
	CodeRateLimit       = "RATE_LIMIT"
)

// Booking channels.
const (
	ChannelWeb      = "web"
	ChannelTelegram = "telegram"
)

const (
	// DefaultTimezone зона, в которой считаются дни и часы визитов
	DefaultTimezone = "America/Santiago"

	// BookableDays количество дней, которые показываются в календаре
	BookableDays = 6

	// VisitStartMinute начало сетки визитов (09:00)
	VisitStartMinute = 9 * 60

	// VisitEndMinute последний слот сетки (20:00 включительно)
	VisitEndMinute = 20 * 60

	// VisitStepMinutes шаг сетки
	VisitStepMinutes = 30

	// PersistenceTTL время жизни сохраненного прогресса
	PersistenceTTL = 24 * time.Hour

	// PersistenceDebounce задержка записи прогресса
	PersistenceDebounce = 500 * time.Millisecond

	// StorageKeyPrefix префикс ключа сохраненного прогресса
	StorageKeyPrefix = "visit_scheduler_"

	// MockSlotPrefix префикс синтезированных слотов
	MockSlotPrefix = "mock_"

	// IdempotencyHeader заголовок с ключом идемпотентности
	IdempotencyHeader = "Idempotency-Key"

	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// StorageKey returns the persisted-progress key for a listing.
func StorageKey(listingID string) string {
	return StorageKeyPrefix + listingID
}
