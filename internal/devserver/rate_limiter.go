package devserver

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/VoiceClient/internal/domain"
)

// RegisterLimiter throttles register frames per client id.
type RegisterLimiter struct {
	mu       sync.Mutex
	limiters map[domain.ClientID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRegisterLimiter allows perSecond registrations with the given burst.
// A non-positive rate disables throttling.
func NewRegisterLimiter(perSecond float64, burst int) *RegisterLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RegisterLimiter{
		limiters: make(map[domain.ClientID]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (rl *RegisterLimiter) Allow(id domain.ClientID) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[id] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}
