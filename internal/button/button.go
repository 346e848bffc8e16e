// Package button turns a noisy, active-low push button into press, hold
// and release events.
//
// The debounced state lives in a single counter:
//
//	0            released, idle
//	1            just pressed (one poll only)
//	2..0xFFFE    held, counting polls
//	0xFFFF       just released
//
// A release is normally visible for one poll. If the button goes down again
// before that poll, the counter stays at 0xFFFF until the button is let go
// and settles back to 0; only then can the next press register.
package button

import (
	"time"

	"ledremote/internal/gpio"
)

const (
	idle         uint16 = 0
	justPressed  uint16 = 1
	heldMax      uint16 = 0xFFFE
	justReleased uint16 = 0xFFFF
)

// DefaultDebounce is how long the raw level must stay put before it is accepted.
const DefaultDebounce = 10 * time.Millisecond

// Button is one physical button. Read must be called once per loop
// iteration; the query methods are pure functions of the last Read.
type Button struct {
	pin      gpio.Input
	debounce time.Duration
	now      func() time.Time

	lastReading    bool
	lastTransition time.Time
	state          uint16
}

// Option configures a Button.
type Option func(*Button)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(b *Button) { b.debounce = d }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Button) { b.now = now }
}

// New creates a Button on a pulled-up pin. The line is assumed released
// (high) at construction.
func New(pin gpio.Input, opts ...Option) *Button {
	b := &Button{
		pin:         pin,
		debounce:    DefaultDebounce,
		now:         time.Now,
		lastReading: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Read samples the pin and advances the debounced state. Every level change
// restarts the debounce window, so a bouncing contact never moves the state.
func (b *Button) Read() {
	reading := b.pin.Read()
	now := b.now()

	if reading != b.lastReading {
		b.lastTransition = now
	}

	if now.Sub(b.lastTransition) > b.debounce {
		// pulled up: low means pressed
		if !reading {
			switch {
			case b.state < heldMax:
				b.state++
			case b.state == heldMax:
				b.state = 2
			}
		} else if b.state != idle {
			if b.state == justReleased {
				b.state = idle
			} else {
				b.state = justReleased
			}
		}
	}

	b.lastReading = reading
}

// Pressed is true on the single poll where a press is recognised.
func (b *Button) Pressed() bool {
	return b.state == justPressed
}

// Released is true while a recognised release is pending.
func (b *Button) Released() bool {
	return b.state == justReleased
}

// Held is true while the button stays down, starting threshold polls after
// the press poll.
func (b *Button) Held(threshold uint16) bool {
	return uint32(b.state) > 1+uint32(threshold) && b.state < justReleased
}

// Idle is true when the button is up and no release is pending.
func (b *Button) Idle() bool {
	return b.state == idle
}
