package strip

import (
	"strings"

	"github.com/sirupsen/logrus"

	"ledremote/internal/core"
	"ledremote/internal/logging"
)

// simDriver stands in for the strip on machines without one. Frames are
// logged at debug level.
type simDriver struct {
	log  *logrus.Entry
	last []core.RGB
}

func newSim(n int) *simDriver {
	return &simDriver{
		log:  logging.For("strip").WithField("driver", "sim"),
		last: make([]core.RGB, n),
	}
}

func (d *simDriver) Render(pixels []core.RGB) error {
	copy(d.last, pixels)
	if d.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		hex := make([]string, len(pixels))
		for i, p := range pixels {
			hex[i] = p.Hex()
		}
		d.log.WithField("pixels", strings.Join(hex, " ")).Debug("frame")
	}
	return nil
}

func (d *simDriver) Close() error {
	return nil
}
