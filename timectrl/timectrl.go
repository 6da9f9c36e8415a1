package timectrl

import (
	"sync"
	"time"
)

// Clock is the time source the attitude pipeline reads when it needs "now",
// e.g. for the Earth-fixed to inertial rotation. Sessions, sweeps and tests
// each supply their own.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// OffsetClock follows a base clock shifted by an offset. A session syncs it
// to the client's reported time so every later Now() advances from there.
type OffsetClock struct {
	mu     sync.RWMutex
	base   Clock
	offset time.Duration
	synced bool
}

// NewOffsetClock returns an OffsetClock over base with zero offset. A nil
// base means SystemClock.
func NewOffsetClock(base Clock) *OffsetClock {
	if base == nil {
		base = SystemClock{}
	}
	return &OffsetClock{base: base}
}

// Now returns the base time plus the current offset.
func (c *OffsetClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.Now().Add(c.offset)
}

// Sync sets the offset so that Now() currently equals t, and returns the new
// offset.
func (c *OffsetClock) Sync(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = t.Sub(c.base.Now())
	c.synced = true
	return c.offset
}

// Offset returns the current offset and whether Sync has ever been called.
func (c *OffsetClock) Offset() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset, c.synced
}

// Mode describes how the TimeController advances time.
type Mode int

const (
	// RealTime waits one Tick of wall-clock time between steps.
	RealTime Mode = iota
	// Accelerated steps as fast as the listeners allow.
	Accelerated
)

// TimeController steps a clock from StartTime by Tick and notifies listeners
// after every step. It implements Clock, so a sweep can hand it straight to
// the pipeline.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the controller's current time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps the controller to t without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick. Register listeners
// before calling Start.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes. A
// non-positive duration runs forever.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		now := tc.StartTime
		tc.currentTime = now
		listeners := append([]func(time.Time){}, tc.listeners...)
		tick := tc.Tick
		mode := tc.Mode
		tc.mu.Unlock()

		if tick <= 0 {
			return
		}

		var ticker *time.Ticker
		if mode == RealTime {
			ticker = time.NewTicker(tick)
			defer ticker.Stop()
		}

		for elapsed := time.Duration(0); duration <= 0 || elapsed < duration; elapsed += tick {
			if ticker != nil {
				<-ticker.C
			}
			now = now.Add(tick)

			tc.mu.Lock()
			tc.currentTime = now
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(now)
			}
		}
	}()
	return done
}
