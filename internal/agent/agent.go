// Package agent wires the inputs, the colour state and the outputs together
// and runs the main loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"

	"ledremote/internal/animation"
	"ledremote/internal/button"
	"ledremote/internal/config"
	"ledremote/internal/core"
	"ledremote/internal/gpio"
	"ledremote/internal/logging"
	"ledremote/internal/metrics"
	"ledremote/internal/mqtt"
	"ledremote/internal/scheduler"
	"ledremote/internal/server"
	"ledremote/internal/strip"
	"ledremote/internal/udp"
)

// ErrStorage is returned by Run when the web assets cannot be found.
var ErrStorage = errors.New("web storage unavailable")

// Renderer pushes a frame to the strip.
type Renderer interface {
	Show(pixels []core.RGB)
}

// Notifier sends a message to every connected client.
type Notifier interface {
	Broadcast(msg interface{})
}

// ClientReaper enforces the client limit.
type ClientReaper interface {
	Cleanup()
}

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	wg     sync.WaitGroup
	log    *logrus.Entry
	now    func() time.Time

	state          *core.State
	eventBus       *core.EventBus
	commandChannel core.CommandChannel
	metrics        *metrics.Metrics

	gpio      gpio.Backend
	button    *button.Button
	primary   *gpio.Led
	indicator *gpio.Led

	strip    *strip.Strip
	output   *strip.Output
	renderer Renderer

	hub      *server.Hub
	notifier Notifier
	reaper   ClientReaper

	server     *server.Server
	udp        *udp.Listener
	animation  *animation.Engine
	scheduler  *scheduler.Scheduler
	mqttBridge *mqtt.Bridge
}

func NewAgent(cfg *config.Config) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		log:            logging.For("agent"),
		now:            time.Now,
		state:          core.NewState(),
		eventBus:       core.NewEventBus(),
		commandChannel: make(core.CommandChannel, 20),
		metrics:        metrics.New(),
	}

	backend, err := openGPIO(cfg.GPIO.Backend)
	if err != nil {
		cancel()
		return nil, err
	}
	a.gpio = backend
	a.button = button.New(backend.Input(cfg.GPIO.ButtonPin), button.WithDebounce(cfg.Debounce()))
	a.primary = gpio.NewLed("primary", backend.Output(cfg.GPIO.LedPin))
	a.indicator = gpio.NewLed("indicator", backend.Output(cfg.GPIO.IndicatorPin))

	driver, err := strip.NewDriver(strip.DriverConfig{
		Name:       cfg.Strip.Driver,
		NumPixels:  cfg.Strip.NumPixels,
		DataPin:    cfg.Strip.DataPin,
		Brightness: cfg.Strip.Brightness,
	})
	if err != nil {
		backend.Close()
		cancel()
		return nil, err
	}
	a.strip = strip.New(cfg.Strip.NumPixels)
	a.output = strip.NewOutput(ctx, driver, cfg.Strip.RenderRate, cfg.Strip.RenderBurst)
	a.renderer = a.output
	a.animation = animation.NewEngine(&stripCanvas{strip: a.strip, renderer: a.renderer})

	a.hub = server.NewHub(cfg.Server.MaxClients, func(n int) {
		a.metrics.WSClients.Set(float64(n))
	})
	a.metrics.RegisterBroadcastDrops(a.hub.Dropped)
	a.notifier = a.hub
	a.reaper = a.hub
	a.server = server.NewServer(
		a.hub,
		a.commandChannel,
		a.state.Snapshot,
		a.metrics,
		cfg.Server.Port,
		cfg.Server.WebFilesDir,
		cfg.Server.AllowedOrigins,
	)

	a.udp = udp.NewListener(fmt.Sprintf(":%d", cfg.UDP.Port), a.handleDatagram, a.handleDrop)

	a.scheduler = scheduler.NewScheduler(a.commandChannel)
	if err := a.scheduler.Load(cfg.Schedule); err != nil {
		a.output.Close()
		backend.Close()
		cancel()
		return nil, err
	}

	// Optional
	a.mqttBridge = mqtt.NewBridge(cfg.MQTT, a.commandChannel, a.eventBus)

	return a, nil
}

func openGPIO(name string) (gpio.Backend, error) {
	switch name {
	case "rpio":
		return gpio.OpenRpio()
	case "sim", "":
		return gpio.NewSimBackend(), nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", name)
	}
}

// Dispatch queues cmd for the main loop without blocking.
func (a *Agent) Dispatch(cmd core.Command) bool {
	return a.commandChannel.Dispatch(cmd)
}

// Run checks storage, plays the startup animation, starts every service and
// then runs the main loop until Shutdown. If storage is missing it blinks the
// indicator until Shutdown and returns ErrStorage.
func (a *Agent) Run() error {
	a.wg.Add(1)
	defer a.wg.Done()

	if err := a.checkStorage(); err != nil {
		a.log.WithError(err).Error("cannot serve web assets, blinking failure indicator")
		a.failureIndicator(a.ctx)
		return err
	}

	a.playStartup()

	if err := a.server.Listen(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := a.udp.Listen(); err != nil {
		a.server.Shutdown(context.Background())
		return fmt.Errorf("udp: %w", err)
	}
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.hub.Run(a.ctx)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.udp.Serve(a.ctx); err != nil {
			a.log.WithError(err).Error("udp listener stopped")
		}
	}()

	go func() {
		if err := a.server.Serve(); err != nil {
			a.log.WithError(err).Error("http server stopped")
		}
	}()

	a.scheduler.Start()

	if a.mqttBridge != nil {
		a.mqttBridge.Start()
		go func() {
			if err := a.mqttBridge.Connect(); err != nil {
				a.log.WithError(err).Error("mqtt setup failed")
			}
		}()
	}

	notifySystemd(daemon.SdNotifyReady)
	a.loop()
	return nil
}

func (a *Agent) checkStorage() error {
	dir := a.config.Server.WebFilesDir
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrStorage, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (a *Agent) playStartup() {
	if !a.config.StartupAnimation() {
		return
	}
	step := a.config.StartupStep()

	var err error
	if script := a.config.Startup.Script; script != "" {
		err = a.animation.RunFile(a.ctx, script, step)
	} else {
		err = a.animation.Run(a.ctx, "chase", animation.ChaseScript, step)
	}
	if err != nil && !animation.IsCancelled(err) {
		a.log.WithError(err).Warn("startup animation failed")
	}

	// The state starts Off whatever the script left behind.
	a.strip.Clear()
	a.renderer.Show(a.strip.Pixels())
}

// loop is the single goroutine that mutates colour state and drives the pins.
func (a *Agent) loop() {
	poll := time.NewTicker(a.config.PollInterval())
	defer poll.Stop()

	var watchdog <-chan time.Time
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		watchdog = t.C
	}

	a.log.Info("agent loop ready")
	for {
		select {
		case <-a.ctx.Done():
			a.log.Info("agent loop shutting down")
			return
		case cmd := <-a.commandChannel:
			a.handleCommand(cmd)
		case <-poll.C:
			a.tick()
		case <-watchdog:
			notifySystemd(daemon.SdNotifyWatchdog)
		}
	}
}

func (a *Agent) handleDatagram(c core.Color) {
	if !a.Dispatch(core.Command{Type: core.CmdToggle, Color: c, Source: core.SourceUDP}) {
		a.log.Warn("command queue full, dropping datagram")
	}
}

func (a *Agent) handleDrop(reason udp.DropReason) {
	a.metrics.UDPDropped.WithLabelValues(string(reason)).Inc()
	a.log.WithField("reason", reason).Debug("datagram dropped")
}

func notifySystemd(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logging.For("agent").WithError(err).Debug("sd_notify failed")
	}
}

func (a *Agent) Shutdown() {
	notifySystemd(daemon.SdNotifyStopping)

	a.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.WithError(err).Warn("http shutdown")
	}

	if a.mqttBridge != nil {
		a.mqttBridge.Disconnect()
	}

	a.cancel()
	a.wg.Wait()

	a.primary.On = false
	a.indicator.On = false
	a.primary.Update()
	a.indicator.Update()

	if err := a.output.Close(); err != nil {
		a.log.WithError(err).Warn("strip close")
	}
	if err := a.gpio.Close(); err != nil {
		a.log.WithError(err).Warn("gpio close")
	}
}

// stripCanvas lets animations draw on the agent's strip.
type stripCanvas struct {
	strip    *strip.Strip
	renderer Renderer
}

func (c *stripCanvas) Len() int              { return c.strip.Len() }
func (c *stripCanvas) Set(i int, v core.RGB) { c.strip.Set(i, v) }
func (c *stripCanvas) Fill(v core.RGB)       { c.strip.Fill(v) }
func (c *stripCanvas) Show()                 { c.renderer.Show(c.strip.Pixels()) }
