package ratelimiter

import (
	"sync"

	"golang.org/x/time/rate"
)

// KeyedLimiters holds one token bucket per key (an alert slug), created on
// first use. Each bucket allows ratePerSec tokens per second with a burst
// equal to the rate.
type KeyedLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// New creates KeyedLimiters allowing ratePerSec events per second per key.
// A rate of zero disables limiting.
func New(ratePerSec int) *KeyedLimiters {
	return &KeyedLimiters{
		limit:    rate.Limit(ratePerSec),
		burst:    ratePerSec,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether an event for key may happen now, consuming a token
// if so. It never blocks.
func (kl *KeyedLimiters) Allow(key string) bool {
	if kl.burst == 0 {
		return true
	}
	return kl.get(key).Allow()
}

func (kl *KeyedLimiters) get(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	l, ok := kl.limiters[key]
	if !ok {
		l = rate.NewLimiter(kl.limit, kl.burst)
		kl.limiters[key] = l
	}
	return l
}
