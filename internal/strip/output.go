package strip

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ledremote/internal/core"
	"ledremote/internal/logging"
)

// Output paces frames to a Driver. Show never blocks: if a frame is still
// waiting for the driver it is replaced by the newer one.
type Output struct {
	driver  Driver
	limiter *rate.Limiter
	log     *logrus.Entry

	frames chan []core.RGB
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewOutput starts the writer loop. renderRate is in frames per second.
func NewOutput(ctx context.Context, driver Driver, renderRate float64, renderBurst int) *Output {
	ctx, cancel := context.WithCancel(ctx)
	o := &Output{
		driver:  driver,
		limiter: rate.NewLimiter(rate.Limit(renderRate), renderBurst),
		log:     logging.For("strip"),
		frames:  make(chan []core.RGB, 1),
		cancel:  cancel,
	}

	o.wg.Add(1)
	go o.writerLoop(ctx)
	return o
}

// Show queues a copy of pixels for rendering.
func (o *Output) Show(pixels []core.RGB) {
	frame := make([]core.RGB, len(pixels))
	copy(frame, pixels)

	for {
		select {
		case o.frames <- frame:
			return
		default:
		}
		// drop the stale pending frame and retry
		select {
		case <-o.frames:
		default:
		}
	}
}

func (o *Output) writerLoop(ctx context.Context) {
	defer o.wg.Done()
	o.log.Debug("strip writer loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-o.frames:
			if err := o.limiter.Wait(ctx); err != nil {
				return
			}
			if err := o.driver.Render(frame); err != nil {
				o.log.WithError(err).Warn("failed to render frame")
			}
		}
	}
}

// Close stops the writer loop and closes the driver. Pending frames are
// dropped.
func (o *Output) Close() error {
	o.cancel()
	o.wg.Wait()
	return o.driver.Close()
}
