//go:build ws281x

package strip

import (
	"fmt"

	ws2811 "github.com/rpi-ws281x/rpi-ws281x-go"

	"ledremote/internal/core"
)

// ws281xDriver drives a WS2812B strip through the rpi_ws281x C library.
// Build with -tags ws281x on the target.
type ws281xDriver struct {
	dev *ws2811.WS2811
}

func newWS281x(cfg DriverConfig) (Driver, error) {
	opt := ws2811.DefaultOptions
	opt.Channels[0].GpioPin = cfg.DataPin
	opt.Channels[0].LedCount = cfg.NumPixels
	opt.Channels[0].Brightness = cfg.Brightness
	opt.Channels[0].StripeType = ws2811.WS2812Strip

	dev, err := ws2811.MakeWS2811(&opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverUnavailable, err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%w: init ws281x: %v", ErrDriverUnavailable, err)
	}
	return &ws281xDriver{dev: dev}, nil
}

func (d *ws281xDriver) Render(pixels []core.RGB) error {
	leds := d.dev.Leds(0)
	for i := range leds {
		if i < len(pixels) {
			leds[i] = pixels[i].Uint32()
		} else {
			leds[i] = 0
		}
	}
	if err := d.dev.Render(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return d.dev.Wait()
}

func (d *ws281xDriver) Close() error {
	d.dev.Fini()
	return nil
}
