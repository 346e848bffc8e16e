package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledremote/internal/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledremote.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "80", cfg.Server.Port)
	assert.Equal(t, "./web", cfg.Server.WebFilesDir)
	assert.Equal(t, 8, cfg.Server.MaxClients)
	assert.Equal(t, 1234, cfg.UDP.Port)
	assert.Equal(t, 8, cfg.Strip.NumPixels)
	assert.Equal(t, 12, cfg.Strip.DataPin)
	assert.Equal(t, 22, cfg.GPIO.ButtonPin)
	assert.Equal(t, 10*time.Millisecond, cfg.Debounce())
	assert.Equal(t, time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.StartupStep())
	assert.True(t, cfg.StartupAnimation())
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = " 8080 "
allowed_origins = ["http://4.3.2.1"]

[strip]
driver = "WS281X"
num_pixels = 30

[gpio]
backend = "rpio"
debounce = "20ms"

[startup]
animation = false

[mqtt]
topic_prefix = "shelf/"

[[schedule]]
spec = "0 22 * * *"
command = "off"

[[schedule]]
spec = "0 7 * * *"
command = "set green"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"http://4.3.2.1"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "ws281x", cfg.Strip.Driver)
	assert.Equal(t, 30, cfg.Strip.NumPixels)
	assert.Equal(t, "rpio", cfg.GPIO.Backend)
	assert.Equal(t, 20*time.Millisecond, cfg.Debounce())
	assert.False(t, cfg.StartupAnimation())
	assert.Equal(t, "shelf", cfg.MQTT.TopicPrefix)
	require.Len(t, cfg.Schedule, 2)
	assert.Equal(t, "set green", cfg.Schedule[1].Command)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LEDREMOTE_HTTP_PORT", "9090")
	t.Setenv("LEDREMOTE_UDP_PORT", "4321")
	t.Setenv("LEDREMOTE_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 4321, cfg.UDP.Port)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)

	t.Setenv("LEDREMOTE_UDP_PORT", "abc")
	_, err = Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"driver":     "[strip]\ndriver = \"dmx\"",
		"pixels":     "[strip]\nnum_pixels = 5000",
		"backend":    "[gpio]\nbackend = \"sysfs\"",
		"debounce":   "[gpio]\ndebounce = \"soon\"",
		"poll":       "[gpio]\npoll_interval = \"0s\"",
		"port":       "[server]\nport = \"http\"",
		"udp port":   "[udp]\nport = 70000",
		"schedule":   "[[schedule]]\nspec = \"@daily\"\ncommand = \"explode\"",
		"empty spec": "[[schedule]]\ncommand = \"off\"",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[server\nport = 1"))
	assert.Error(t, err)
}

func TestParseScheduleCommand(t *testing.T) {
	cmd, err := ParseScheduleCommand("toggle Red")
	require.NoError(t, err)
	assert.Equal(t, core.Command{Type: core.CmdToggle, Color: core.Red, Source: core.SourceSchedule}, cmd)

	cmd, err = ParseScheduleCommand("set off")
	require.NoError(t, err)
	assert.Equal(t, core.Command{Type: core.CmdSet, Color: core.Off, Source: core.SourceSchedule}, cmd)

	cmd, err = ParseScheduleCommand("off")
	require.NoError(t, err)
	assert.Equal(t, core.CmdSet, cmd.Type)
	assert.Equal(t, core.Off, cmd.Color)

	for _, bad := range []string{"", "toggle", "toggle off", "set purple", "off now", "blink red"} {
		_, err := ParseScheduleCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.validate())
}
