package remote

import (
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

const defaultTripThreshold = 5

// breakers 为每个 origin 维护一个熔断器。
type breakers struct {
	threshold int64

	mu    sync.RWMutex
	items map[string]*circuit.Breaker
}

func newBreakers(threshold int64) *breakers {
	if threshold <= 0 {
		threshold = defaultTripThreshold
	}
	return &breakers{threshold: threshold, items: make(map[string]*circuit.Breaker)}
}

func (b *breakers) get(origin string) *circuit.Breaker {
	b.mu.RLock()
	breaker, ok := b.items[origin]
	b.mu.RUnlock()
	if ok {
		return breaker
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if breaker, ok := b.items[origin]; ok {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ConsecutiveTripFunc(b.threshold),
	})
	b.items[origin] = breaker
	return breaker
}

func (b *breakers) states() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.items))
	for origin, breaker := range b.items {
		if breaker.Tripped() {
			out[origin] = "open"
		} else {
			out[origin] = "closed"
		}
	}
	return out
}
