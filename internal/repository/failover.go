package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"arriendo/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore writes to primary while it is healthy and switches to the
// fallback on the first error, probing the primary again after recoveryInterval.
type FailoverStore struct {
	primary  domain.SnapshotStore
	fallback domain.SnapshotStore
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverStore(primary, fallback domain.SnapshotStore, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary snapshot store failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = r.now()
	r.mu.Unlock()
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now().Sub(r.lastCheck) > recoveryInterval {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverStore) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary snapshot store recovered")
	}
}

func (r *FailoverStore) Load(ctx context.Context, key string) ([]byte, error) {
	if r.usePrimary() {
		data, err := r.primary.Load(ctx, key)
		if err == nil {
			r.recovered()
			return data, nil
		}
		r.markDown(err)
	}
	return r.fallback.Load(ctx, key)
}

func (r *FailoverStore) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Save(ctx, key, data, ttl)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Save(ctx, key, data, ttl)
}

func (r *FailoverStore) Delete(ctx context.Context, key string) error {
	// the key may live in either store
	_ = r.fallback.Delete(ctx, key)
	if r.usePrimary() {
		err := r.primary.Delete(ctx, key)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}
