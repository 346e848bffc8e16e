package agent

import (
	"context"
	"time"

	"ledremote/internal/core"
)

const (
	heartbeatPeriod = 1000 * time.Millisecond
	failurePeriod   = 200 * time.Millisecond
	flashLength     = 50 * time.Millisecond
)

// heartbeat is on for the first 50ms of every second.
func heartbeat(now time.Time) bool {
	return flash(now, heartbeatPeriod)
}

// failurePattern blinks five times faster than the heartbeat.
func failurePattern(now time.Time) bool {
	return flash(now, failurePeriod)
}

func flash(now time.Time, period time.Duration) bool {
	return time.Duration(now.UnixNano())%period < flashLength
}

// tick is one main-loop iteration: enforce the client limit, sample the
// button, then drive both LEDs.
func (a *Agent) tick() {
	a.reaper.Cleanup()

	a.button.Read()
	if a.button.Pressed() {
		on := a.state.TogglePrimary()
		a.metrics.ButtonPresses.Inc()
		a.log.WithField("primary", on).Info("button pressed")
		a.notify(a.state.Color())
		a.eventBus.Publish(core.Event{Type: core.PrimaryChangedEvent, Source: core.SourceButton, State: a.state.Snapshot()})
	}

	a.primary.On = a.state.Snapshot().Primary
	a.indicator.On = heartbeat(a.now())
	a.primary.Update()
	a.indicator.Update()
}

// failureIndicator blinks the indicator fast until ctx is cancelled.
func (a *Agent) failureIndicator(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.indicator.On = false
			a.indicator.Update()
			return
		case <-ticker.C:
			a.indicator.On = failurePattern(a.now())
			a.indicator.Update()
		}
	}
}
