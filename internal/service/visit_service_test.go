package service

import (
	"context"
	"testing"
	"time"

	"arriendo/internal/database"
	"arriendo/internal/events"
	"arriendo/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// понедельник 10 марта 2025, 10:00 по Сантьяго
var monday = time.Date(2025, 3, 10, 10, 0, 0, 0, models.Santiago())

func newTestService(t *testing.T) (*VisitService, *database.DB, *events.Recorder) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.SyncListings(context.Background(), []models.Listing{
		{ID: "L1", Name: "Depto Providencia", Agent: models.Agent{Name: "Carla", WhatsApp: "+56911112222"}, IsActive: true},
		{ID: "L2", Name: "Casa Ñuñoa", IsActive: false},
	}))

	bus := events.NewEventBus()
	rec := &events.Recorder{}
	bus.SubscribeAll(rec.Handle)

	svc := NewVisitService(db, bus, models.Santiago(), &logger)
	svc.now = func() time.Time { return monday }
	return svc, db, rec
}

func request(slotID, key string) models.CreateVisitRequest {
	return models.CreateVisitRequest{
		ListingID:      "L1",
		SlotID:         slotID,
		UserID:         "u1",
		Channel:        models.ChannelWeb,
		IdempotencyKey: key,
		ContactData:    &models.ContactData{Name: "Ana Pérez", Phone: "+56912345678", RUT: "12345678-5"},
	}
}

func TestVisitService_GetAvailability(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, models.Santiago())

	t.Run("Week", func(t *testing.T) {
		resp, err := svc.GetAvailability(ctx, "L1", start, start.AddDate(0, 0, 7))
		require.NoError(t, err)
		assert.Equal(t, "L1", resp.ListingID)
		assert.Equal(t, "America/Santiago", resp.Timezone)
		// 09:00, 09:30 и 10:00 понедельника уже прошли
		assert.Len(t, resp.Slots, 6*23-3)
		assert.Equal(t, "10:30", resp.Slots[0].Clock(svc.Location()))
		assert.Equal(t, "2025-03-10", resp.NextAvailableDate)
	})

	t.Run("SundayLooksAhead", func(t *testing.T) {
		sunday := time.Date(2025, 3, 16, 0, 0, 0, 0, models.Santiago())
		resp, err := svc.GetAvailability(ctx, "L1", sunday, sunday.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Empty(t, resp.Slots)
		assert.Equal(t, "2025-03-17", resp.NextAvailableDate)
	})

	t.Run("InvalidRange", func(t *testing.T) {
		_, err := svc.GetAvailability(ctx, "L1", start, start)
		assert.ErrorIs(t, err, ErrInvalidRange)
		_, err = svc.GetAvailability(ctx, "L1", start, start.AddDate(0, 2, 0))
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("UnknownOrInactiveListing", func(t *testing.T) {
		_, err := svc.GetAvailability(ctx, "nope", start, start.AddDate(0, 0, 1))
		assert.ErrorIs(t, err, database.ErrListingNotFound)
		_, err = svc.GetAvailability(ctx, "L2", start, start.AddDate(0, 0, 1))
		assert.ErrorIs(t, err, database.ErrListingNotFound)
	})
}

func TestVisitService_CreateVisit(t *testing.T) {
	svc, db, rec := newTestService(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, models.Santiago())

	avail, err := svc.GetAvailability(ctx, "L1", start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	slot := avail.Slots[0]

	t.Run("RealSlot", func(t *testing.T) {
		resp, replayed, err := svc.CreateVisit(ctx, request(slot.ID, "visit_1_aaaaaaaaaaaa"), "")
		require.NoError(t, err)
		assert.False(t, replayed)
		assert.NotEmpty(t, resp.VisitID)
		assert.Equal(t, models.VisitConfirmed, resp.Status)
		assert.Equal(t, "Carla", resp.Agent.Name)
		assert.Equal(t, slot.ID, resp.Slot.ID)
		assert.Equal(t, models.SlotReserved, resp.Slot.Status)
		assert.Equal(t, "Tu visita a Depto Providencia quedó agendada para el lunes 10/03 a las 10:30.", resp.ConfirmationMessage)

		stored, err := db.GetSlot(ctx, slot.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SlotReserved, stored.Status)
	})

	t.Run("SameKeyReplays", func(t *testing.T) {
		first, err := db.GetVisitByIdempotencyKey(ctx, "visit_1_aaaaaaaaaaaa")
		require.NoError(t, err)

		// заголовок важнее тела
		resp, replayed, err := svc.CreateVisit(ctx, request(slot.ID, "ignored"), "visit_1_aaaaaaaaaaaa")
		require.NoError(t, err)
		assert.True(t, replayed)
		assert.Equal(t, first.ID, resp.VisitID)

		visits, err := svc.ListVisits(ctx, "L1")
		require.NoError(t, err)
		assert.Len(t, visits, 1)
	})

	t.Run("TakenSlot", func(t *testing.T) {
		_, _, err := svc.CreateVisit(ctx, request(slot.ID, "visit_2_bbbbbbbbbbbb"), "")
		re, ok := AsRuleError(err)
		require.True(t, ok)
		assert.Equal(t, models.CodeSlotUnavailable, re.Code)
	})

	t.Run("UnknownSlot", func(t *testing.T) {
		_, _, err := svc.CreateVisit(ctx, request("does-not-exist", "visit_3_cccccccccccc"), "")
		re, ok := AsRuleError(err)
		require.True(t, ok)
		assert.Equal(t, models.CodeSlotUnavailable, re.Code)
	})

	t.Run("MockSlotMaterialized", func(t *testing.T) {
		id := models.MockSlotID("L1", "2025-03-11", "15:00")
		resp, _, err := svc.CreateVisit(ctx, request(id, "visit_4_dddddddddddd"), "")
		require.NoError(t, err)
		assert.False(t, resp.Slot.IsMock())
		assert.Equal(t, "15:00", resp.Slot.Clock(svc.Location()))
		assert.Contains(t, resp.ConfirmationMessage, "martes 11/03")

		// тот же час вторым запросом уже занят
		_, _, err = svc.CreateVisit(ctx, request(id, "visit_5_eeeeeeeeeeee"), "")
		re, ok := AsRuleError(err)
		require.True(t, ok)
		assert.Equal(t, models.CodeSlotUnavailable, re.Code)
	})

	t.Run("Events", func(t *testing.T) {
		types := rec.Types()
		assert.Contains(t, types, events.EventVisitCreated)
		assert.Contains(t, types, events.EventVisitReplayed)
		assert.Contains(t, types, events.EventVisitRejected)
	})
}

func TestVisitService_Rules(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		slotID string
		code   string
	}{
		{"Sunday", models.MockSlotID("L1", "2025-03-16", "10:00"), models.CodeInvalidDay},
		{"OffGrid", models.MockSlotID("L1", "2025-03-11", "10:15"), models.CodeInvalidTime},
		{"TooLate", models.MockSlotID("L1", "2025-03-11", "21:00"), models.CodeInvalidTime},
		{"Past", models.MockSlotID("L1", "2025-03-10", "09:00"), models.CodePastTime},
		{"OtherListing", models.MockSlotID("L9", "2025-03-11", "10:00"), models.CodeSlotUnavailable},
		{"Malformed", "mock_L1_garbage", models.CodeSlotUnavailable},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateVisit(ctx, request(tt.slotID, "rule_"+string(rune('a'+i))), "")
			re, ok := AsRuleError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.code, re.Code)
		})
	}
}

func TestVisitService_BadRequests(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.CreateVisit(ctx, request("s1", ""), "")
	assert.ErrorIs(t, err, ErrMissingIdempotencyKey)

	_, _, err = svc.CreateVisit(ctx, request("", "k"), "")
	assert.ErrorIs(t, err, ErrMissingSlot)

	req := request(models.MockSlotID("L2", "2025-03-11", "10:00"), "k")
	req.ListingID = "L2"
	_, _, err = svc.CreateVisit(ctx, req, "")
	assert.ErrorIs(t, err, database.ErrListingNotFound)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

func TestVisitService_PublishPayload(t *testing.T) {
	svc, _, _ := newTestService(t)
	bus := new(mockEventBus)
	svc.eventBus = bus
	ctx := context.Background()

	bus.On("PublishJSON", events.EventVisitCreated, mock.MatchedBy(func(p events.VisitEventPayload) bool {
		return p.ListingID == "L1" && p.Channel == models.ChannelWeb && p.Status == string(models.VisitConfirmed) && p.VisitID != ""
	})).Return(nil).Once()

	_, _, err := svc.CreateVisit(ctx, request(models.MockSlotID("L1", "2025-03-12", "12:30"), "visit_9_ffffffffffff"), "")
	require.NoError(t, err)
	bus.AssertExpectations(t)
}
