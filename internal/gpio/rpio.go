package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"ledremote/internal/logging"
)

var log = logging.For("gpio")

// RpioBackend drives Raspberry Pi pins through /dev/gpiomem.
type RpioBackend struct{}

// OpenRpio maps the GPIO registers. Close must be called on shutdown.
func OpenRpio() (*RpioBackend, error) {
	log.Info("opening rpio")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("error opening rpio: %w", err)
	}
	return &RpioBackend{}, nil
}

// Close unmaps the GPIO registers.
func (b *RpioBackend) Close() error {
	return rpio.Close()
}

// Input configures pin (BCM numbering) as an input with the pull-up enabled.
func (b *RpioBackend) Input(pin int) Input {
	p := rpio.Pin(pin)
	p.Input()
	p.PullUp()
	return rpioPin{p}
}

// Output configures pin (BCM numbering) as an output, initially low.
func (b *RpioBackend) Output(pin int) Output {
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	return rpioPin{p}
}

type rpioPin struct {
	pin rpio.Pin
}

func (p rpioPin) Read() bool {
	return p.pin.Read() == rpio.High
}

func (p rpioPin) Write(high bool) {
	if high {
		p.pin.High()
	} else {
		p.pin.Low()
	}
}
