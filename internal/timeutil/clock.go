package timeutil

import (
	"sync"
	"time"
)

// Clock supplies the current instant. The package-level clock feeds NowAware,
// NowNaive and the relative constructors; tests swap in a fixed clock so
// "now" is deterministic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }

var (
	clockMu     sync.RWMutex
	activeClock Clock = systemClock{}
)

// SetClock replaces the package clock and returns a function that restores
// the previous one. Intended for tests:
//
//	restore := timeutil.SetClock(timeutil.FixedClock{Instant: t})
//	defer restore()
func SetClock(c Clock) (restore func()) {
	clockMu.Lock()
	prev := activeClock
	if c == nil {
		c = systemClock{}
	}
	activeClock = c
	clockMu.Unlock()
	return func() {
		clockMu.Lock()
		activeClock = prev
		clockMu.Unlock()
	}
}

func clockNow() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return activeClock.Now()
}
