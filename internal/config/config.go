package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"ledremote/internal/core"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// ServerConfig - HTTP and control-channel settings
type ServerConfig struct {
	Port           string   `toml:"port"`
	WebFilesDir    string   `toml:"web_files_dir"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxClients     int      `toml:"max_clients"`
}

// UDPConfig - raw datagram listener
type UDPConfig struct {
	Port int `toml:"port"`
}

// StripConfig - addressable LED strip
type StripConfig struct {
	Driver      string  `toml:"driver"`
	NumPixels   int     `toml:"num_pixels"`
	DataPin     int     `toml:"data_pin"`
	Brightness  int     `toml:"brightness"`
	RenderRate  float64 `toml:"render_rate"`
	RenderBurst int     `toml:"render_burst"`
}

// GPIOConfig - button and single-pin LEDs
type GPIOConfig struct {
	Backend      string `toml:"backend"`
	ButtonPin    int    `toml:"button_pin"`
	LedPin       int    `toml:"led_pin"`
	IndicatorPin int    `toml:"indicator_pin"`
	Debounce     string `toml:"debounce"`
	PollInterval string `toml:"poll_interval"`
}

// StartupConfig - one-shot animation played before serving
type StartupConfig struct {
	Animation *bool  `toml:"animation"`
	Script    string `toml:"script"`
	Step      string `toml:"step"`
}

// MQTTConfig - optional broker bridge
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"` // tcp://IP:PORT
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
}

// ScheduleEntry - a cron spec and the colour command it fires
type ScheduleEntry struct {
	Spec    string `toml:"spec"`
	Command string `toml:"command"`
}

// LogConfig - logging
type LogConfig struct {
	Level string `toml:"level"`
}

// Config is the root of the TOML file.
type Config struct {
	Server   ServerConfig    `toml:"server"`
	UDP      UDPConfig       `toml:"udp"`
	Strip    StripConfig     `toml:"strip"`
	GPIO     GPIOConfig      `toml:"gpio"`
	Startup  StartupConfig   `toml:"startup"`
	MQTT     MQTTConfig      `toml:"mqtt"`
	Schedule []ScheduleEntry `toml:"schedule"`
	Log      LogConfig       `toml:"log"`
}

// Load reads .env (if present), the TOML file at path, then environment
// overrides, and applies defaults and validation. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode toml '%s': %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied. It is not
// run through validation; Load validates after merging overrides.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LEDREMOTE_HTTP_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LEDREMOTE_WEB_DIR"); v != "" {
		c.Server.WebFilesDir = v
	}
	if v := os.Getenv("LEDREMOTE_UDP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: LEDREMOTE_UDP_PORT: %v", ErrInvalid, err)
		}
		c.UDP.Port = port
	}
	if v := os.Getenv("LEDREMOTE_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
		c.MQTT.Enabled = true
	}
	return nil
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.Strip.Driver = strings.ToLower(strings.TrimSpace(c.Strip.Driver))
	c.GPIO.Backend = strings.ToLower(strings.TrimSpace(c.GPIO.Backend))
	c.Startup.Script = strings.TrimSpace(c.Startup.Script)
	c.MQTT.TopicPrefix = strings.TrimSuffix(strings.TrimSpace(c.MQTT.TopicPrefix), "/")
	for i := range c.Schedule {
		c.Schedule[i].Spec = strings.TrimSpace(c.Schedule[i].Spec)
		c.Schedule[i].Command = strings.TrimSpace(c.Schedule[i].Command)
	}
}

func (c *Config) setDefaults() {
	// Server
	if c.Server.Port == "" {
		c.Server.Port = "80"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if c.Server.MaxClients == 0 {
		c.Server.MaxClients = 8
	}

	// UDP
	if c.UDP.Port == 0 {
		c.UDP.Port = 1234
	}

	// Strip
	if c.Strip.Driver == "" {
		c.Strip.Driver = "sim"
	}
	if c.Strip.NumPixels == 0 {
		c.Strip.NumPixels = 8
	}
	if c.Strip.DataPin == 0 {
		c.Strip.DataPin = 12
	}
	if c.Strip.Brightness == 0 {
		c.Strip.Brightness = 255
	}
	if c.Strip.RenderRate <= 0 {
		c.Strip.RenderRate = 100
	}
	if c.Strip.RenderBurst <= 0 {
		c.Strip.RenderBurst = 4
	}

	// GPIO
	if c.GPIO.Backend == "" {
		c.GPIO.Backend = "sim"
	}
	if c.GPIO.ButtonPin == 0 {
		c.GPIO.ButtonPin = 22
	}
	if c.GPIO.LedPin == 0 {
		c.GPIO.LedPin = 26
	}
	if c.GPIO.IndicatorPin == 0 {
		c.GPIO.IndicatorPin = 33
	}
	if c.GPIO.Debounce == "" {
		c.GPIO.Debounce = "10ms"
	}
	if c.GPIO.PollInterval == "" {
		c.GPIO.PollInterval = "1ms"
	}

	// Startup
	if c.Startup.Animation == nil {
		on := true
		c.Startup.Animation = &on
	}
	if c.Startup.Step == "" {
		c.Startup.Step = "250ms"
	}

	// MQTT
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ledremote"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ledremote"
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("%w: server.port %q is not a number", ErrInvalid, c.Server.Port)
	}
	if c.Server.MaxClients < 0 {
		return fmt.Errorf("%w: server.max_clients must not be negative", ErrInvalid)
	}
	if c.UDP.Port < 1 || c.UDP.Port > 65535 {
		return fmt.Errorf("%w: udp.port %d out of range", ErrInvalid, c.UDP.Port)
	}
	switch c.Strip.Driver {
	case "sim", "ws281x":
	default:
		return fmt.Errorf("%w: strip.driver %q (want sim or ws281x)", ErrInvalid, c.Strip.Driver)
	}
	if c.Strip.NumPixels < 1 || c.Strip.NumPixels > 1024 {
		return fmt.Errorf("%w: strip.num_pixels %d out of range 1..1024", ErrInvalid, c.Strip.NumPixels)
	}
	if c.Strip.Brightness < 0 || c.Strip.Brightness > 255 {
		return fmt.Errorf("%w: strip.brightness %d out of range 0..255", ErrInvalid, c.Strip.Brightness)
	}
	switch c.GPIO.Backend {
	case "sim", "rpio":
	default:
		return fmt.Errorf("%w: gpio.backend %q (want sim or rpio)", ErrInvalid, c.GPIO.Backend)
	}
	if c.GPIO.ButtonPin < 0 || c.GPIO.LedPin < 0 || c.GPIO.IndicatorPin < 0 || c.Strip.DataPin < 0 {
		return fmt.Errorf("%w: pin numbers must not be negative", ErrInvalid)
	}
	for name, value := range map[string]string{
		"gpio.debounce":      c.GPIO.Debounce,
		"gpio.poll_interval": c.GPIO.PollInterval,
		"startup.step":       c.Startup.Step,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
		}
	}
	if d, _ := time.ParseDuration(c.GPIO.PollInterval); d == 0 {
		return fmt.Errorf("%w: gpio.poll_interval must be positive", ErrInvalid)
	}
	for i, entry := range c.Schedule {
		if entry.Spec == "" {
			return fmt.Errorf("%w: schedule[%d].spec is empty", ErrInvalid, i)
		}
		if _, err := ParseScheduleCommand(entry.Command); err != nil {
			return fmt.Errorf("%w: schedule[%d]: %v", ErrInvalid, i, err)
		}
	}
	return nil
}

// Debounce returns the parsed gpio.debounce.
func (c *Config) Debounce() time.Duration {
	d, _ := time.ParseDuration(c.GPIO.Debounce)
	return d
}

// PollInterval returns the parsed gpio.poll_interval.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.GPIO.PollInterval)
	return d
}

// StartupStep returns the parsed startup.step.
func (c *Config) StartupStep() time.Duration {
	d, _ := time.ParseDuration(c.Startup.Step)
	return d
}

// StartupAnimation reports whether the startup chase should play.
func (c *Config) StartupAnimation() bool {
	return c.Startup.Animation == nil || *c.Startup.Animation
}

// ParseScheduleCommand parses "toggle <color>", "set <color|off>" or "off".
func ParseScheduleCommand(s string) (core.Command, error) {
	parts := strings.Fields(strings.ToLower(s))
	if len(parts) == 0 {
		return core.Command{}, errors.New("empty command")
	}
	cmd := core.Command{Source: core.SourceSchedule}
	switch parts[0] {
	case "off":
		if len(parts) != 1 {
			return core.Command{}, fmt.Errorf("%q takes no argument", parts[0])
		}
		cmd.Type = core.CmdSet
		cmd.Color = core.Off
		return cmd, nil
	case "toggle", "set":
		if len(parts) != 2 {
			return core.Command{}, fmt.Errorf("%q needs exactly one colour", parts[0])
		}
		var (
			c   core.Color
			err error
		)
		if parts[0] == "toggle" {
			cmd.Type = core.CmdToggle
			c, err = core.ParseColor(parts[1])
		} else {
			cmd.Type = core.CmdSet
			c, err = core.ParseState(parts[1])
		}
		if err != nil {
			return core.Command{}, err
		}
		cmd.Color = c
		return cmd, nil
	default:
		return core.Command{}, fmt.Errorf("unknown command %q", parts[0])
	}
}
