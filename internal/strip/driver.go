package strip

import (
	"errors"
	"fmt"

	"ledremote/internal/core"
)

// ErrDriverUnavailable is returned when a driver is not compiled in or the
// hardware cannot be opened.
var ErrDriverUnavailable = errors.New("strip driver unavailable")

// Driver pushes a full frame to the physical strip.
type Driver interface {
	Render(pixels []core.RGB) error
	Close() error
}

// DriverConfig describes the physical strip.
type DriverConfig struct {
	Name       string // "ws281x" or "sim"
	NumPixels  int
	DataPin    int
	Brightness int
}

// NewDriver opens the named driver.
func NewDriver(cfg DriverConfig) (Driver, error) {
	switch cfg.Name {
	case "ws281x":
		return newWS281x(cfg)
	case "sim", "":
		return newSim(cfg.NumPixels), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrDriverUnavailable, cfg.Name)
	}
}
