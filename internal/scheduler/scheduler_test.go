package scheduler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"arriendo/internal/client"
	"arriendo/internal/domain"
	"arriendo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) GetAvailability(ctx context.Context, q domain.AvailabilityQuery) (*models.AvailabilityResponse, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AvailabilityResponse), args.Error(1)
}

func (m *mockAPI) CreateVisit(ctx context.Context, req models.CreateVisitRequest, key string) (*models.VisitResponse, error) {
	args := m.Called(ctx, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VisitResponse), args.Error(1)
}

var (
	cached = mock.MatchedBy(func(q domain.AvailabilityQuery) bool { return !q.NoCache })
	fresh  = mock.MatchedBy(func(q domain.AvailabilityQuery) bool { return q.NoCache })
)

// суббота, 10:00 по Сантьяго
func fixedNow() time.Time {
	return time.Date(2025, 3, 8, 10, 0, 0, 0, models.Santiago())
}

func slotAt(id, date, clock string, status models.SlotStatus) models.Slot {
	start, err := models.ParseLocal(date, clock, models.Santiago())
	if err != nil {
		panic(err)
	}
	return models.Slot{
		ID:        id,
		ListingID: "L1",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Status:    status,
		Source:    models.SourceOwner,
	}
}

func availability(slots ...models.Slot) *models.AvailabilityResponse {
	return &models.AvailabilityResponse{ListingID: "L1", Timezone: models.DefaultTimezone, Slots: slots}
}

func newTestScheduler(api domain.VisitsAPI) *Scheduler {
	return New(api, "L1", Options{Now: fixedNow})
}

func TestDays(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, cached).Return(availability(
		slotAt("a", "2025-03-10", "10:00", models.SlotOpen),
		slotAt("b", "2025-03-10", "10:30", models.SlotOpen),
		slotAt("c", "2025-03-10", "11:00", models.SlotBlocked),
		slotAt("d", "2025-03-09", "11:00", models.SlotOpen),
	), nil)

	s := newTestScheduler(api)
	require.NoError(t, s.FetchUpcoming(context.Background()))

	days := s.Days()
	require.Len(t, days, 6)

	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Date
	}
	assert.Equal(t, []string{"2025-03-08", "2025-03-10", "2025-03-11", "2025-03-12", "2025-03-13", "2025-03-14"}, dates)

	assert.True(t, days[0].IsToday)
	assert.Equal(t, "Sábado", days[0].Weekday)
	assert.False(t, days[0].Available)

	assert.Equal(t, "Lunes", days[1].Weekday)
	assert.Equal(t, 10, days[1].DayNumber)
	assert.Equal(t, 2, days[1].SlotsCount)
	assert.True(t, days[1].Available)
}

func TestDays_NeverSundayNeverMoreThanSix(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, models.Santiago())
	for i := 0; i < 14; i++ {
		now := base.AddDate(0, 0, i)
		s := New(new(mockAPI), "L1", Options{Now: func() time.Time { return now }})

		days := s.Days()
		assert.Len(t, days, 6, now.Weekday().String())
		for _, d := range days {
			day, err := time.ParseInLocation(models.DateLayout, d.Date, models.Santiago())
			require.NoError(t, err)
			assert.NotEqual(t, time.Sunday, day.Weekday())
		}
	}
}

func TestTimeSlots(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, cached).Return(availability(
		slotAt("open-10", "2025-03-10", "10:00", models.SlotOpen),
		slotAt("blocked-11", "2025-03-10", "11:00", models.SlotBlocked),
		slotAt("other-day", "2025-03-11", "12:00", models.SlotReserved),
	), nil)

	s := newTestScheduler(api)
	require.NoError(t, s.FetchUpcoming(context.Background()))

	times := s.TimeSlots("2025-03-10")
	require.Len(t, times, 23)
	assert.Equal(t, "09:00", times[0].Time)
	assert.Equal(t, "20:00", times[22].Time)

	byTime := make(map[string]models.TimeSlot)
	for _, ts := range times {
		byTime[ts.Time] = ts
	}
	assert.True(t, byTime["10:00"].Available)
	assert.Equal(t, "open-10", byTime["10:00"].SlotID)
	assert.False(t, byTime["11:00"].Available)
	assert.True(t, byTime["12:00"].Available, "slots of other days do not affect this one")
	assert.True(t, byTime["15:30"].Available, "times without data stay selectable")
}

func TestFetchAvailability_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"RateLimited", &client.HTTPError{StatusCode: http.StatusTooManyRequests}, MsgRateLimited},
		{"ServerError", &client.HTTPError{StatusCode: http.StatusInternalServerError}, MsgLoadFailed},
		{"Network", errors.New("connection refused"), MsgLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockAPI)
			api.On("GetAvailability", mock.Anything, cached).Return(nil, tt.err).Once()

			s := newTestScheduler(api)
			err := s.FetchUpcoming(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())

			st := s.State()
			assert.Equal(t, tt.wantMsg, st.Error)
			assert.False(t, st.Loading)
			api.AssertNumberOfCalls(t, "GetAvailability", 1)
		})
	}

	assert.NotEqual(t, MsgRateLimited, MsgLoadFailed)
}

func TestSelectDateTime(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, cached).Return(availability(
		slotAt("real-10", "2025-03-10", "10:00", models.SlotOpen),
	), nil)

	s := newTestScheduler(api)
	require.NoError(t, s.FetchUpcoming(context.Background()))

	t.Run("RealSlot", func(t *testing.T) {
		slot, err := s.SelectDateTime("2025-03-10", "10:00")
		require.NoError(t, err)
		require.NotNil(t, slot)
		assert.Equal(t, "real-10", slot.ID)
		assert.False(t, slot.IsMock())
	})

	t.Run("MockSlot", func(t *testing.T) {
		slot, err := s.SelectDateTime("2025-03-11", "17:30")
		require.NoError(t, err)
		require.NotNil(t, slot)
		assert.Equal(t, "mock_L1_2025-03-11_1730", slot.ID)
		assert.Equal(t, "2025-03-11", slot.Date(models.Santiago()))
		assert.Equal(t, "17:30", slot.Clock(models.Santiago()))
		assert.Equal(t, models.SlotOpen, slot.Status)
	})

	t.Run("EveryGridTimeMatches", func(t *testing.T) {
		for _, day := range s.Days() {
			for _, ts := range s.TimeSlots(day.Date) {
				slot, err := s.SelectDateTime(day.Date, ts.Time)
				require.NoError(t, err)
				require.NotNil(t, slot)
				assert.Equal(t, day.Date, slot.Date(models.Santiago()))
				assert.Equal(t, ts.Time, slot.Clock(models.Santiago()))
			}
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		_, err := s.SelectDateTime("10/03/2025", "10:00")
		assert.Error(t, err)
	})

	t.Run("ClearsError", func(t *testing.T) {
		s.mu.Lock()
		s.state.Error = "boom"
		s.mu.Unlock()

		_, err := s.SelectDateTime("2025-03-10", "10:00")
		require.NoError(t, err)
		assert.Empty(t, s.State().Error)
	})

	t.Run("KeyRotatesOnNewSelection", func(t *testing.T) {
		_, _ = s.SelectDateTime("2025-03-10", "10:00")
		k1 := s.IdempotencyKey()
		_, _ = s.SelectDateTime("2025-03-10", "10:00")
		assert.Equal(t, k1, s.IdempotencyKey())
		_, _ = s.SelectDateTime("2025-03-12", "10:00")
		assert.NotEqual(t, k1, s.IdempotencyKey())
		assert.Regexp(t, `^visit_\d+_[0-9a-f]{12}$`, s.IdempotencyKey())
	})
}

func TestCreateVisit_NoSelection(t *testing.T) {
	api := new(mockAPI)
	s := newTestScheduler(api)

	resp, err := s.CreateVisit(context.Background(), VisitInput{UserID: "u1"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSlotSelected)
	assert.Equal(t, MsgNoSelection, s.State().Error)

	api.AssertNotCalled(t, "GetAvailability", mock.Anything, mock.Anything)
	api.AssertNotCalled(t, "CreateVisit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateVisit_RecheckUnavailable(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, cached).Return(availability(
		slotAt("real-10", "2025-03-10", "10:00", models.SlotOpen),
	), nil)
	api.On("GetAvailability", mock.Anything, fresh).Return(availability(
		slotAt("real-10", "2025-03-10", "10:00", models.SlotReserved),
	), nil)

	s := newTestScheduler(api)
	ctx := context.Background()
	require.NoError(t, s.FetchUpcoming(ctx))
	_, err := s.SelectDateTime("2025-03-10", "10:00")
	require.NoError(t, err)

	resp, err := s.CreateVisit(ctx, VisitInput{UserID: "u1"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Contains(t, err.Error(), "disponible")

	st := s.State()
	assert.Contains(t, st.Error, "disponible")
	assert.Equal(t, SubmitFailure, st.Submit)
	require.Len(t, st.Slots, 1)
	assert.Equal(t, models.SlotOpen, st.Slots[0].Status)
	assert.Equal(t, models.SlotOpen, st.Availability.Slots[0].Status)
	require.NotNil(t, st.SelectedSlot)

	api.AssertNotCalled(t, "CreateVisit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateVisit_RecheckScopedToSlotDay(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, fresh).Return(availability(), nil).Once()
	api.On("CreateVisit", mock.Anything, mock.Anything, mock.Anything).Return(&models.VisitResponse{VisitID: "v1"}, nil).Once()

	s := newTestScheduler(api)
	_, err := s.SelectDateTime("2025-03-11", "18:00")
	require.NoError(t, err)

	_, err = s.CreateVisit(context.Background(), VisitInput{})
	require.NoError(t, err)

	q := api.Calls[0].Arguments.Get(1).(domain.AvailabilityQuery)
	assert.Equal(t, "2025-03-11T00:00:00-03:00", q.Start.Format(time.RFC3339))
	assert.Equal(t, 24*time.Hour, q.End.Sub(q.Start))
	assert.Equal(t, "L1", q.ListingID)
}

func TestCreateVisit_Success(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, cached).Return(availability(
		slotAt("real-10", "2025-03-10", "10:00", models.SlotOpen),
	), nil)
	api.On("GetAvailability", mock.Anything, fresh).Return(availability(
		slotAt("real-10", "2025-03-10", "10:00", models.SlotOpen),
	), nil)

	s := newTestScheduler(api)
	ctx := context.Background()
	require.NoError(t, s.FetchUpcoming(ctx))
	_, err := s.SelectDateTime("2025-03-10", "10:00")
	require.NoError(t, err)
	key := s.IdempotencyKey()

	contact := &models.ContactData{Name: "Ana", Phone: "912345678", RUT: "12345678-5"}
	api.On("CreateVisit", mock.Anything, mock.MatchedBy(func(req models.CreateVisitRequest) bool {
		return req.SlotID == "real-10" && req.IdempotencyKey == key && req.UserID == "u1" &&
			req.Channel == models.ChannelWeb && req.ContactData == contact
	}), key).Run(func(args mock.Arguments) {
		st := s.State()
		assert.Equal(t, models.SlotReserved, st.Slots[0].Status, "optimistic update applied before the response")
		assert.Equal(t, SubmitSubmitting, st.Submit)
	}).Return(&models.VisitResponse{VisitID: "123", Status: models.VisitConfirmed}, nil).Once()

	resp, err := s.CreateVisit(ctx, VisitInput{UserID: "u1", Contact: contact})
	require.NoError(t, err)
	assert.Equal(t, "123", resp.VisitID)

	st := s.State()
	assert.Empty(t, st.SelectedDate)
	assert.Empty(t, st.SelectedTime)
	assert.Nil(t, st.SelectedSlot)
	assert.Equal(t, SubmitSuccess, st.Submit)
	assert.Equal(t, models.SlotReserved, st.Slots[0].Status)
	assert.Empty(t, st.Error)
	assert.Empty(t, s.IdempotencyKey())
	api.AssertExpectations(t)
}

func TestCreateVisit_FailureRevertsAndMapsCodes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"SlotUnavailable", &client.HTTPError{StatusCode: http.StatusConflict, Code: models.CodeSlotUnavailable}, MsgSlotUnavailable},
		{"InvalidDay", &client.HTTPError{StatusCode: http.StatusBadRequest, Code: models.CodeInvalidDay}, MsgInvalidDay},
		{"InvalidTime", &client.HTTPError{StatusCode: http.StatusBadRequest, Code: models.CodeInvalidTime}, MsgInvalidTime},
		{"PastTime", &client.HTTPError{StatusCode: http.StatusBadRequest, Code: models.CodePastTime}, MsgPastTime},
		{"RateLimitCode", &client.HTTPError{StatusCode: http.StatusTooManyRequests, Code: models.CodeRateLimit}, MsgRateLimited},
		{"RateLimitStatus", &client.HTTPError{StatusCode: http.StatusTooManyRequests}, MsgRateLimited},
		{"ServerError", &client.HTTPError{StatusCode: http.StatusInternalServerError}, MsgBookingFailed},
		{"Network", errors.New("EOF"), MsgBookingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockAPI)
			api.On("GetAvailability", mock.Anything, mock.Anything).Return(availability(
				slotAt("real-10", "2025-03-10", "10:00", models.SlotOpen),
			), nil)
			api.On("CreateVisit", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			s := newTestScheduler(api)
			ctx := context.Background()
			require.NoError(t, s.FetchUpcoming(ctx))
			_, err := s.SelectDateTime("2025-03-10", "10:00")
			require.NoError(t, err)
			key := s.IdempotencyKey()

			resp, err := s.CreateVisit(ctx, VisitInput{})
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())

			st := s.State()
			assert.Equal(t, tt.wantMsg, st.Error)
			assert.Equal(t, SubmitFailure, st.Submit)
			assert.Equal(t, models.SlotOpen, st.Slots[0].Status, "optimistic update reverted")
			assert.Equal(t, models.SlotOpen, st.Availability.Slots[0].Status)
			require.NotNil(t, st.SelectedSlot, "selection kept for retry")

			// повтор пользователем использует тот же ключ
			_, _ = s.CreateVisit(ctx, VisitInput{})
			calls := 0
			for _, c := range api.Calls {
				if c.Method == "CreateVisit" {
					calls++
					assert.Equal(t, key, c.Arguments.Get(2))
				}
			}
			assert.Equal(t, 2, calls)
		})
	}
}

func TestCreateVisit_RetryAfterLostReply(t *testing.T) {
	setup := func(postErr error) (*mockAPI, *Scheduler, string) {
		api := new(mockAPI)
		api.On("GetAvailability", mock.Anything, cached).Return(availability(
			slotAt("real-10", "2025-03-10", "10:00", models.SlotOpen),
		), nil)
		api.On("GetAvailability", mock.Anything, fresh).Return(availability(
			slotAt("real-10", "2025-03-10", "10:00", models.SlotOpen),
		), nil).Once()
		api.On("CreateVisit", mock.Anything, mock.Anything, mock.Anything).Return(nil, postErr).Once()

		s := newTestScheduler(api)
		ctx := context.Background()
		require.NoError(t, s.FetchUpcoming(ctx))
		_, err := s.SelectDateTime("2025-03-10", "10:00")
		require.NoError(t, err)
		key := s.IdempotencyKey()

		_, err = s.CreateVisit(ctx, VisitInput{UserID: "u1"})
		require.Error(t, err)

		// после первой попытки слот уже занят
		api.On("GetAvailability", mock.Anything, fresh).Return(availability(
			slotAt("real-10", "2025-03-10", "10:00", models.SlotReserved),
			slotAt("real-11", "2025-03-10", "10:30", models.SlotReserved),
		), nil)
		return api, s, key
	}

	t.Run("TransportErrorPostsAgain", func(t *testing.T) {
		api, s, key := setup(errors.New("read: connection reset by peer"))
		api.On("CreateVisit", mock.Anything, mock.MatchedBy(func(req models.CreateVisitRequest) bool {
			return req.SlotID == "real-10"
		}), key).Return(&models.VisitResponse{VisitID: "123", Status: models.VisitConfirmed}, nil).Once()

		resp, err := s.CreateVisit(context.Background(), VisitInput{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "123", resp.VisitID)
		assert.Equal(t, SubmitSuccess, s.State().Submit)
		api.AssertExpectations(t)
	})

	t.Run("DeadlinePostsAgain", func(t *testing.T) {
		api, s, key := setup(context.DeadlineExceeded)
		api.On("CreateVisit", mock.Anything, mock.Anything, key).Return(&models.VisitResponse{VisitID: "123"}, nil).Once()

		_, err := s.CreateVisit(context.Background(), VisitInput{UserID: "u1"})
		require.NoError(t, err)
		api.AssertExpectations(t)
	})

	t.Run("AnsweredErrorStillAborts", func(t *testing.T) {
		api, s, _ := setup(&client.HTTPError{StatusCode: http.StatusInternalServerError})

		_, err := s.CreateVisit(context.Background(), VisitInput{UserID: "u1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSlotUnavailable)
		api.AssertNumberOfCalls(t, "CreateVisit", 1)
	})

	t.Run("NewSelectionDropsMark", func(t *testing.T) {
		api, s, key := setup(errors.New("EOF"))

		_, err := s.SelectDateTime("2025-03-10", "10:30")
		require.NoError(t, err)
		assert.NotEqual(t, key, s.IdempotencyKey())

		_, err = s.CreateVisit(context.Background(), VisitInput{UserID: "u1"})
		assert.ErrorIs(t, err, ErrSlotUnavailable)
		api.AssertNumberOfCalls(t, "CreateVisit", 1)
	})
}

func TestCreateVisit_RateLimitDiffersFromServerError(t *testing.T) {
	msg := func(status int) string {
		api := new(mockAPI)
		api.On("GetAvailability", mock.Anything, mock.Anything).Return(availability(), nil)
		api.On("CreateVisit", mock.Anything, mock.Anything, mock.Anything).Return(nil, &client.HTTPError{StatusCode: status})

		s := newTestScheduler(api)
		_, err := s.SelectDateTime("2025-03-10", "10:00")
		require.NoError(t, err)
		_, err = s.CreateVisit(context.Background(), VisitInput{})
		require.Error(t, err)
		return s.State().Error
	}

	assert.NotEqual(t, msg(http.StatusTooManyRequests), msg(http.StatusInternalServerError))
}

func TestCreateVisit_MockSlotUpgraded(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, fresh).Return(availability(
		slotAt("materialized", "2025-03-10", "12:00", models.SlotOpen),
	), nil)
	api.On("CreateVisit", mock.Anything, mock.MatchedBy(func(req models.CreateVisitRequest) bool {
		return req.SlotID == "materialized"
	}), mock.Anything).Return(&models.VisitResponse{VisitID: "v2"}, nil).Once()

	s := newTestScheduler(api)
	slot, err := s.SelectDateTime("2025-03-10", "12:00")
	require.NoError(t, err)
	assert.True(t, slot.IsMock())

	resp, err := s.CreateVisit(context.Background(), VisitInput{})
	require.NoError(t, err)
	assert.Equal(t, "v2", resp.VisitID)
	api.AssertExpectations(t)
}

func TestCreateVisit_RecheckFailure(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, fresh).Return(nil, &client.HTTPError{StatusCode: http.StatusTooManyRequests}).Once()

	s := newTestScheduler(api)
	_, err := s.SelectDateTime("2025-03-10", "12:00")
	require.NoError(t, err)

	resp, err := s.CreateVisit(context.Background(), VisitInput{})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Equal(t, MsgRateLimited, err.Error())
	api.AssertNotCalled(t, "CreateVisit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateVisit_InProgress(t *testing.T) {
	api := new(mockAPI)
	api.On("GetAvailability", mock.Anything, fresh).Return(availability(), nil)

	s := newTestScheduler(api)
	_, err := s.SelectDateTime("2025-03-10", "12:00")
	require.NoError(t, err)

	var nested error
	api.On("CreateVisit", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		_, nested = s.CreateVisit(context.Background(), VisitInput{})
	}).Return(&models.VisitResponse{VisitID: "v3"}, nil).Once()

	_, err = s.CreateVisit(context.Background(), VisitInput{})
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrSubmitInProgress)
	api.AssertNumberOfCalls(t, "CreateVisit", 1)
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, MsgSlotUnavailable, UserMessage(&client.HTTPError{StatusCode: 409, Code: models.CodeSlotUnavailable}))
	assert.Equal(t, MsgBookingFailed, UserMessage(context.DeadlineExceeded))
	assert.Equal(t, MsgNoSelection, UserMessage(newError("", MsgNoSelection, ErrNoSlotSelected)))
}
