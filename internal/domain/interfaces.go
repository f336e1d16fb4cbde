package domain

import (
	"context"
	"time"

	"arriendo/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AvailabilityQuery selects the slots of a listing within [Start, End).
type AvailabilityQuery struct {
	ListingID string
	Start     time.Time
	End       time.Time
	// NoCache forces a round trip to the authoritative endpoint.
	NoCache bool
}

// VisitsAPI is the client side of /api/availability and /api/visits.
type VisitsAPI interface {
	GetAvailability(ctx context.Context, q AvailabilityQuery) (*models.AvailabilityResponse, error)
	CreateVisit(ctx context.Context, req models.CreateVisitRequest, idempotencyKey string) (*models.VisitResponse, error)
}

// SnapshotStore persists opaque snapshots by key. Load returns nil, nil when
// the key is absent.
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// VisitRepository is the server-side storage of listings, slots and visits.
type VisitRepository interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	EnsureSlots(ctx context.Context, listingID string, start, end time.Time, loc *time.Location) error
	GetSlots(ctx context.Context, listingID string, start, end time.Time) ([]models.Slot, error)
	GetSlot(ctx context.Context, id string) (*models.Slot, error)
	GetSlotByStart(ctx context.Context, listingID string, start time.Time) (*models.Slot, error)
	CreateSlot(ctx context.Context, slot *models.Slot) error
	GetVisitByIdempotencyKey(ctx context.Context, key string) (*models.Visit, error)
	CreateVisitWithLock(ctx context.Context, visit *models.Visit) error
	GetVisits(ctx context.Context, listingID string) ([]*models.Visit, error)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
