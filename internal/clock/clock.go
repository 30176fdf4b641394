// Package clock implements the discrete simulation clock. One tick is one
// in-game day. The clock is the sole time source for the simulation: it
// accumulates scaled wall time and fires the tick callback each time the
// accumulator crosses the seconds-per-tick threshold.
package clock

import "time"

// DefaultSecondsPerTick is the unscaled real-time length of one tick.
const DefaultSecondsPerTick = 1.0

// TickFunc is invoked once per emitted tick with the new tick number.
type TickFunc func(tick int64)

// Clock converts scaled real time into discrete ticks. Not safe for
// concurrent use; the owning engine serializes access.
type Clock struct {
	secondsPerTick float64
	speed          float64
	running        bool
	tick           int64
	accumulator    float64
	onTick         TickFunc
}

// New creates a stopped clock at tick 0 with speed 1. secondsPerTick values
// <= 0 fall back to DefaultSecondsPerTick.
func New(secondsPerTick float64) *Clock {
	if secondsPerTick <= 0 {
		secondsPerTick = DefaultSecondsPerTick
	}
	return &Clock{secondsPerTick: secondsPerTick, speed: 1}
}

// OnTick registers the tick callback. Only one callback is held; the engine
// fans out to subsystems in its documented order.
func (c *Clock) OnTick(fn TickFunc) { c.onTick = fn }

// Advance feeds elapsed real time into the clock. Multiple whole ticks may
// fire from a single call when delta is large or speed is high; the
// fractional remainder is carried, never dropped. Negative deltas are
// ignored. Has no effect while stopped or at speed 0.
func (c *Clock) Advance(delta time.Duration) {
	if !c.running || c.speed <= 0 || delta <= 0 {
		return
	}
	c.accumulator += delta.Seconds() * c.speed
	for c.accumulator >= c.secondsPerTick {
		c.accumulator -= c.secondsPerTick
		c.tick++
		if c.onTick != nil {
			c.onTick(c.tick)
		}
	}
}

// SetSpeed changes the time scaling for subsequent Advance calls. A
// multiplier of 0 leaves the clock running but inert, which is distinct from
// Stop. Negative values clamp to 0.
func (c *Clock) SetSpeed(multiplier float64) {
	if multiplier < 0 {
		multiplier = 0
	}
	c.speed = multiplier
}

// Start lets Advance take effect.
func (c *Clock) Start() { c.running = true }

// Stop halts the clock entirely; accumulated fractional time is kept.
func (c *Clock) Stop() { c.running = false }

// Reset zeroes the tick counter and accumulator. Running state and speed are
// untouched; a session restart calls Reset then Start.
func (c *Clock) Reset() {
	c.tick = 0
	c.accumulator = 0
}

// Tick returns the current tick number.
func (c *Clock) Tick() int64 { return c.tick }

// Speed returns the current multiplier.
func (c *Clock) Speed() float64 { return c.speed }

// Running reports whether the clock is started.
func (c *Clock) Running() bool { return c.running }
