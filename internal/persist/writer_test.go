package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"arriendo/internal/models"
	"arriendo/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Load(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}

func (brokenStore) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return errors.New("quota exceeded")
}

func (brokenStore) Delete(ctx context.Context, key string) error {
	return errors.New("storage unavailable")
}

// slowStore signals when a Save starts and holds it for a while.
type slowStore struct {
	*repository.MemoryStore
	started chan struct{}
	saved   atomic.Bool
}

func (s *slowStore) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.started <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	err := s.MemoryStore.Save(ctx, key, data, ttl)
	s.saved.Store(true)
	return err
}

func newTestWriter(store *repository.MemoryStore, debounce time.Duration) *Writer[models.PersistedData] {
	return NewWriter[models.PersistedData](store, models.StorageKey("L1"), Options{
		TTL:      models.PersistenceTTL,
		Debounce: debounce,
	})
}

func TestWriter_RoundTrip(t *testing.T) {
	store := repository.NewMemoryStore()
	w := newTestWriter(store, time.Hour)
	ctx := context.Background()

	data := models.PersistedData{
		SelectedDate: "2025-03-10",
		SelectedTime: "10:30",
		Step:         models.StepContact,
		ContactData:  models.ContactData{Name: "Ana"},
	}
	w.Schedule(data)
	w.Flush(ctx)

	got, ok := w.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "2025-03-10", got.SelectedDate)
	assert.Equal(t, "10:30", got.SelectedTime)
	assert.Equal(t, models.StepContact, got.Step)
	assert.Equal(t, "Ana", got.ContactData.Name)
	assert.NotZero(t, got.Timestamp)
}

func TestWriter_Debounce(t *testing.T) {
	store := repository.NewMemoryStore()
	w := newTestWriter(store, 20*time.Millisecond)
	ctx := context.Background()

	w.Schedule(models.PersistedData{SelectedTime: "09:00"})
	w.Schedule(models.PersistedData{SelectedTime: "09:30"})
	w.Schedule(models.PersistedData{SelectedTime: "10:00"})

	raw, err := store.Load(ctx, w.Key())
	require.NoError(t, err)
	assert.Nil(t, raw, "nothing is written before the debounce elapses")

	require.Eventually(t, func() bool {
		raw, _ := store.Load(ctx, w.Key())
		return raw != nil
	}, time.Second, 5*time.Millisecond)

	got, ok := w.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "10:00", got.SelectedTime)
}

func TestWriter_Expiry(t *testing.T) {
	store := repository.NewMemoryStore()
	w := newTestWriter(store, time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.Schedule(models.PersistedData{SelectedDate: "2025-03-11"})
	w.Flush(ctx)

	t.Run("WithinTTL", func(t *testing.T) {
		now = now.Add(23 * time.Hour)
		_, ok := w.Load(ctx)
		assert.True(t, ok)
	})

	t.Run("AfterTTL", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		_, ok := w.Load(ctx)
		assert.False(t, ok)

		raw, err := store.Load(ctx, w.Key())
		require.NoError(t, err)
		assert.Nil(t, raw, "expired snapshot is deleted")
	})
}

func TestWriter_CorruptSnapshot(t *testing.T) {
	store := repository.NewMemoryStore()
	w := newTestWriter(store, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, w.Key(), []byte("{not json"), time.Hour))

	_, ok := w.Load(ctx)
	assert.False(t, ok)
	raw, _ := store.Load(ctx, w.Key())
	assert.Nil(t, raw)
}

func TestWriter_ClearAndStop(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	t.Run("Clear", func(t *testing.T) {
		w := newTestWriter(store, time.Hour)
		w.Schedule(models.PersistedData{SelectedDate: "2025-03-11"})
		w.Flush(ctx)
		w.Schedule(models.PersistedData{SelectedDate: "2025-03-12"})

		w.Clear(ctx)
		w.Flush(ctx)

		_, ok := w.Load(ctx)
		assert.False(t, ok)
	})

	t.Run("Stop", func(t *testing.T) {
		w := newTestWriter(store, 10*time.Millisecond)
		w.Schedule(models.PersistedData{SelectedDate: "2025-03-11"})
		w.Stop()
		w.Schedule(models.PersistedData{SelectedDate: "2025-03-12"})

		time.Sleep(50 * time.Millisecond)
		_, ok := w.Load(ctx)
		assert.False(t, ok)
	})
}

func TestWriter_ClearDuringSave(t *testing.T) {
	ctx := context.Background()
	newSlow := func() (*slowStore, *Writer[models.PersistedData]) {
		store := &slowStore{MemoryStore: repository.NewMemoryStore(), started: make(chan struct{}, 1)}
		w := NewWriter[models.PersistedData](store, models.StorageKey("L1"), Options{
			TTL:      models.PersistenceTTL,
			Debounce: time.Millisecond,
		})
		return store, w
	}

	t.Run("ClearAndStop", func(t *testing.T) {
		store, w := newSlow()
		w.Schedule(models.PersistedData{SelectedDate: "2025-03-11", Step: models.StepQualification})

		select {
		case <-store.started:
		case <-time.After(time.Second):
			t.Fatal("save never started")
		}
		w.Clear(ctx)
		w.Stop()

		raw, err := store.MemoryStore.Load(ctx, w.Key())
		require.NoError(t, err)
		assert.Nil(t, raw, "a save in flight must not outlive Clear")

		time.Sleep(80 * time.Millisecond)
		raw, err = store.MemoryStore.Load(ctx, w.Key())
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("StopWaitsForSave", func(t *testing.T) {
		store, w := newSlow()
		w.Schedule(models.PersistedData{SelectedDate: "2025-03-11"})

		<-store.started
		w.Stop()
		assert.True(t, store.saved.Load())
	})
}

func TestWriter_StorageErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("SilentInProduction", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		w := NewWriter[models.PersistedData](brokenStore{}, "k", Options{TTL: time.Hour, Logger: &logger})

		w.Schedule(models.PersistedData{})
		w.Flush(ctx)
		_, ok := w.Load(ctx)
		w.Clear(ctx)

		assert.False(t, ok)
		assert.Empty(t, buf.String())
	})

	t.Run("LoggedInDevelopment", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		w := NewWriter[models.PersistedData](brokenStore{}, "k", Options{TTL: time.Hour, Dev: true, Logger: &logger})

		w.Schedule(models.PersistedData{})
		w.Flush(ctx)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "save snapshot", entry["message"])
		assert.Equal(t, "quota exceeded", entry["error"])
	})
}
