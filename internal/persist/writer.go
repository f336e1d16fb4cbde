package persist

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"arriendo/internal/domain"

	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// Stamped is a snapshot that knows when it was taken.
type Stamped[T any] interface {
	StampedAt() time.Time
	Stamp(t time.Time) T
}

type Options struct {
	TTL      time.Duration
	Debounce time.Duration

	// Dev enables logging of storage errors; otherwise they are dropped silently.
	Dev    bool
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Writer debounces snapshot writes to a SnapshotStore and discards snapshots
// older than TTL on load.
type Writer[T Stamped[T]] struct {
	store  domain.SnapshotStore
	key    string
	ttl    time.Duration
	delay  time.Duration
	dev    bool
	logger *zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	timer   *time.Timer
	pending *T
	stopped bool
	// gen растёт при каждой смене pending: устаревшая запись не сохраняется
	gen uint64

	// ioMu serializes Save and Delete on the store.
	ioMu sync.Mutex
}

func NewWriter[T Stamped[T]](store domain.SnapshotStore, key string, opts Options) *Writer[T] {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Writer[T]{
		store:  store,
		key:    key,
		ttl:    opts.TTL,
		delay:  opts.Debounce,
		dev:    opts.Dev,
		logger: logger,
		now:    now,
	}
}

func (w *Writer[T]) Key() string {
	return w.key
}

// Schedule replaces the pending snapshot and restarts the debounce timer.
func (w *Writer[T]) Schedule(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending = &v
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

func (w *Writer[T]) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	w.Flush(ctx)
}

// Flush writes the pending snapshot immediately, if any.
func (w *Writer[T]) Flush(ctx context.Context) {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	v := w.pending
	w.pending = nil
	gen := w.gen
	w.mu.Unlock()

	if v == nil {
		return
	}

	w.ioMu.Lock()
	defer w.ioMu.Unlock()
	w.mu.Lock()
	cancelled := w.gen != gen
	w.mu.Unlock()
	if cancelled {
		return
	}
	w.write(ctx, *v)
}

func (w *Writer[T]) write(ctx context.Context, v T) {
	data, err := json.Marshal(v.Stamp(w.now()))
	if err != nil {
		w.report(err, "marshal snapshot")
		return
	}
	if err := w.store.Save(ctx, w.key, data, w.ttl); err != nil {
		w.report(err, "save snapshot")
	}
}

// Load returns the stored snapshot when it exists and is younger than TTL.
// Expired or unreadable snapshots are deleted.
func (w *Writer[T]) Load(ctx context.Context) (T, bool) {
	var zero T

	data, err := w.store.Load(ctx, w.key)
	if err != nil {
		w.report(err, "load snapshot")
		return zero, false
	}
	if data == nil {
		return zero, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		w.report(err, "decode snapshot")
		w.delete(ctx)
		return zero, false
	}

	if w.ttl > 0 && w.now().Sub(v.StampedAt()) > w.ttl {
		w.delete(ctx)
		return zero, false
	}
	return v, true
}

// Clear drops any pending write and removes the stored snapshot.
func (w *Writer[T]) Clear(ctx context.Context) {
	w.cancelPending()
	w.delete(ctx)
}

// Stop cancels the pending write and waits for one already in flight; later
// Schedule calls are ignored.
func (w *Writer[T]) Stop() {
	w.ioMu.Lock()
	defer w.ioMu.Unlock()

	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancelPending()
}

func (w *Writer[T]) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = nil
	w.gen++
}

func (w *Writer[T]) delete(ctx context.Context) {
	w.ioMu.Lock()
	defer w.ioMu.Unlock()
	if err := w.store.Delete(ctx, w.key); err != nil {
		w.report(err, "delete snapshot")
	}
}

func (w *Writer[T]) report(err error, msg string) {
	if !w.dev {
		return
	}
	w.logger.Warn().Err(err).Str("key", w.key).Msg(msg)
}
