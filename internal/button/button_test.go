package button

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ledremote/internal/gpio"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestButton() (*Button, *gpio.SimPin, *fakeClock) {
	pin := gpio.NewSimPin(true)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	return New(pin, WithClock(clock.Now)), pin, clock
}

// poll advances the clock by 1ms and reads.
func poll(b *Button, clock *fakeClock) {
	clock.Advance(time.Millisecond)
	b.Read()
}

func TestIdleWhileReleased(t *testing.T) {
	b, _, clock := newTestButton()
	for i := 0; i < 50; i++ {
		poll(b, clock)
		assert.True(t, b.Idle())
		assert.False(t, b.Pressed())
		assert.False(t, b.Released())
		assert.False(t, b.Held(0))
	}
}

func TestPressHoldRelease(t *testing.T) {
	b, pin, clock := newTestButton()
	poll(b, clock)

	pin.Set(false)
	pressedCount := 0
	heldCount := 0
	const samples = 100
	for i := 0; i < samples; i++ {
		poll(b, clock)
		if b.Pressed() {
			pressedCount++
			assert.Equal(t, 0, heldCount, "held must not precede pressed")
			continue
		}
		if pressedCount == 1 {
			assert.True(t, b.Held(0), "every sample after the press reads as held")
			heldCount++
		}
	}
	assert.Equal(t, 1, pressedCount)
	assert.Greater(t, heldCount, 80)

	pin.Set(true)
	releasedCount := 0
	for i := 0; i < 30; i++ {
		poll(b, clock)
		if b.Released() {
			releasedCount++
		}
	}
	assert.Equal(t, 1, releasedCount)
	assert.True(t, b.Idle())
}

func TestReleasedFiresOnceThenIdle(t *testing.T) {
	b, pin, clock := newTestButton()
	pin.Set(false)
	for i := 0; i < 20; i++ {
		poll(b, clock)
	}
	assert.True(t, b.Held(0))

	pin.Set(true)
	for !b.Released() {
		poll(b, clock)
		assert.False(t, b.Pressed())
	}
	poll(b, clock)
	assert.False(t, b.Released())
	assert.True(t, b.Idle())
}

func TestBounceRestartsWindow(t *testing.T) {
	b, pin, clock := newTestButton()
	poll(b, clock)

	// chatter every 3ms for 60ms never settles long enough to count
	level := true
	for i := 0; i < 20; i++ {
		level = !level
		pin.Set(level)
		for j := 0; j < 3; j++ {
			poll(b, clock)
			assert.True(t, b.Idle(), "bounce must not change the state")
		}
	}

	pin.Set(false)
	for i := 0; i < 11; i++ {
		poll(b, clock)
		assert.False(t, b.Pressed(), "still inside the debounce window")
	}
	poll(b, clock)
	assert.True(t, b.Pressed())
}

func TestDebounceIsStrict(t *testing.T) {
	pin := gpio.NewSimPin(true)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := New(pin, WithClock(clock.Now), WithDebounce(10*time.Millisecond))
	b.Read()

	pin.Set(false)
	b.Read()
	clock.Advance(10 * time.Millisecond)
	b.Read()
	assert.False(t, b.Pressed(), "exactly the delay is not enough")

	clock.Advance(time.Millisecond)
	b.Read()
	assert.True(t, b.Pressed())
}

func TestHeldCounterWraps(t *testing.T) {
	b, pin, clock := newTestButton()
	pin.Set(false)
	poll(b, clock)

	b.state = heldMax - 1
	b.lastTransition = clock.t.Add(-time.Second)
	poll(b, clock)
	assert.Equal(t, heldMax, b.state)
	poll(b, clock)
	assert.Equal(t, uint16(2), b.state, "wraps back into the held range")
	assert.False(t, b.Pressed())
	assert.True(t, b.Held(0))
}

func TestHeldThreshold(t *testing.T) {
	b, pin, clock := newTestButton()
	pin.Set(false)
	for !b.Pressed() {
		poll(b, clock)
	}
	for i := 0; i < 5; i++ {
		poll(b, clock)
	}
	// five polls after the press the counter is 6
	assert.True(t, b.Held(4))
	assert.False(t, b.Held(5))
}

func TestPressAfterPendingRelease(t *testing.T) {
	b, _, clock := newTestButton()
	poll(b, clock)

	b.state = justReleased
	b.lastTransition = clock.t.Add(-time.Second)
	b.lastReading = false
	b.pin.(*gpio.SimPin).Set(false)
	for i := 0; i < 3; i++ {
		poll(b, clock)
		assert.False(t, b.Pressed())
		assert.True(t, b.Released())
	}

	b.pin.(*gpio.SimPin).Set(true)
	for b.Released() {
		poll(b, clock)
	}
	assert.True(t, b.Idle())

	b.pin.(*gpio.SimPin).Set(false)
	for !b.Pressed() {
		poll(b, clock)
	}
	poll(b, clock)
	assert.True(t, b.Held(0))
}
