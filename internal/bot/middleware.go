package bot

import (
	"sync"

	"golang.org/x/time/rate"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// chatLimiter throttles updates per chat.
type chatLimiter struct {
	limiters sync.Map
	rps      float64
	burst    int
}

func newChatLimiter(rps float64, burst int) *chatLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &chatLimiter{rps: rps, burst: burst}
}

func (l *chatLimiter) allow(chatID int64) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	if v, ok := l.limiters.Load(chatID); ok {
		return v.(*rate.Limiter).Allow()
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, _ := l.limiters.LoadOrStore(chatID, lim)
	return actual.(*rate.Limiter).Allow()
}
