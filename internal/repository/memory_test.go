package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	repo := NewMemoryStore()
	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		err := repo.Save(ctx, "k1", []byte(`{"step":"contact"}`), time.Hour)
		require.NoError(t, err)

		got, err := repo.Load(ctx, "k1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"step":"contact"}`, string(got))
	})

	t.Run("LoadMissing", func(t *testing.T) {
		got, err := repo.Load(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "k1"))
		got, _ := repo.Load(ctx, "k1")
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		repo.now = func() time.Time { return now }
		require.NoError(t, repo.Save(ctx, "k2", []byte("x"), time.Minute))

		now = now.Add(2 * time.Minute)
		got, err := repo.Load(ctx, "k2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("NoTTLNeverExpires", func(t *testing.T) {
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		repo.now = func() time.Time { return now }
		require.NoError(t, repo.Save(ctx, "k3", []byte("x"), 0))

		now = now.AddDate(1, 0, 0)
		got, err := repo.Load(ctx, "k3")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), got)
	})
}
