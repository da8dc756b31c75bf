// Package circuitbreaker guards price-per-share samples against implausible
// moves. A vault's exchange rate drifts slowly; a sample that jumps or drops
// far from the last accepted one points at a bad RPC answer or a manipulated
// read, and accepting it would poison every downstream yield figure.
package circuitbreaker

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the breaker state.
type State int

const (
	// StateClosed accepts samples normally.
	StateClosed State = iota

	// StateOpen rejects all samples until the cooldown elapses.
	StateOpen

	// StateHalfOpen accepts samples tentatively after the cooldown; enough
	// consecutive plausible ones close the breaker again.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned while the breaker rejects samples.
var ErrOpen = errors.New("circuit breaker open")

// Options configures the plausibility thresholds.
type Options struct {
	// MaxJumpRatio is the largest accepted relative increase versus the last
	// good sample (0.5 = +50%).
	MaxJumpRatio float64

	// MaxDropRatio is the largest accepted relative decrease (0.05 = -5%).
	MaxDropRatio float64

	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration

	// HealthThreshold is the number of consecutive plausible samples needed
	// to close from half-open.
	HealthThreshold int

	// OnTrip, when set, is called with the trip reason.
	OnTrip func(reason string)
}

// DefaultOptions returns thresholds sized for share-price samples.
func DefaultOptions() Options {
	return Options{
		MaxJumpRatio:    0.5,
		MaxDropRatio:    0.05,
		Cooldown:        time.Minute,
		HealthThreshold: 3,
	}
}

// Breaker tracks the last accepted sample and the breaker state.
type Breaker struct {
	mu        sync.Mutex
	opts      Options
	state     State
	lastGood  *big.Int
	trippedAt time.Time
	healthy   int
}

// New creates a closed breaker.
func New(opts Options) *Breaker {
	if opts.HealthThreshold <= 0 {
		opts.HealthThreshold = 1
	}
	return &Breaker{opts: opts}
}

// Observe checks one price sample. A nil error means the sample was accepted
// and becomes the new reference. Rejected samples are treated by callers as
// unavailable, never as a crash.
func (b *Breaker) Observe(price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("non-positive price sample")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.trippedAt) < b.opts.Cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.healthy = 0
	}

	if b.lastGood != nil {
		change := relativeChange(b.lastGood, price)
		if change > b.opts.MaxJumpRatio {
			return b.trip(fmt.Sprintf("price jumped %.2f%% above last good sample", change*100))
		}
		if -change > b.opts.MaxDropRatio {
			return b.trip(fmt.Sprintf("price dropped %.2f%% below last good sample", -change*100))
		}
	}

	b.lastGood = new(big.Int).Set(price)
	if b.state == StateHalfOpen {
		b.healthy++
		if b.healthy >= b.opts.HealthThreshold {
			b.state = StateClosed
			logrus.Debug("price breaker closed after recovery")
		}
	}
	return nil
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and forgets the reference sample.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.lastGood = nil
	b.healthy = 0
}

// trip opens the breaker; callers hold the lock.
func (b *Breaker) trip(reason string) error {
	b.state = StateOpen
	b.trippedAt = time.Now()
	b.healthy = 0
	if b.opts.OnTrip != nil {
		b.opts.OnTrip(reason)
	}
	return fmt.Errorf("implausible price sample: %s", reason)
}

// relativeChange returns (next-prev)/prev as a float.
func relativeChange(prev, next *big.Int) float64 {
	diff := new(big.Float).Sub(new(big.Float).SetInt(next), new(big.Float).SetInt(prev))
	q, _ := diff.Quo(diff, new(big.Float).SetInt(prev)).Float64()
	return q
}
