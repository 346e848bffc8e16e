//go:build !ws281x

package strip

import "fmt"

func newWS281x(cfg DriverConfig) (Driver, error) {
	return nil, fmt.Errorf("%w: built without the ws281x tag", ErrDriverUnavailable)
}
