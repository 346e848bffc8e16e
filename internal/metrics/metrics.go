// Package metrics exposes prometheus collectors for the agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledremote/internal/core"
)

// Metrics groups every collector on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	Commands      *prometheus.CounterVec
	UDPDropped    *prometheus.CounterVec
	WSClients     prometheus.Gauge
	WSMalformed   prometheus.Counter
	ButtonPresses prometheus.Counter
	ColorState    prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledremote_commands_total",
			Help: "Colour commands applied, by source and requested colour.",
		}, []string{"source", "color"}),
		UDPDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledremote_udp_dropped_total",
			Help: "Datagrams discarded without effect, by reason.",
		}, []string{"reason"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledremote_ws_clients",
			Help: "Connected control-channel clients.",
		}),
		WSMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledremote_ws_malformed_total",
			Help: "Control-channel messages that could not be decoded.",
		}),
		ButtonPresses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledremote_button_presses_total",
			Help: "Debounced button presses.",
		}),
		ColorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledremote_color_state",
			Help: "Current colour state (0=off 1=red 2=green 3=blue 4=yellow).",
		}),
	}

	m.Registry.MustRegister(
		m.Commands,
		m.UDPDropped,
		m.WSClients,
		m.WSMalformed,
		m.ButtonPresses,
		m.ColorState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCommand counts an applied command and records the resulting state.
func (m *Metrics) ObserveCommand(cmd core.Command, result core.Color) {
	m.Commands.WithLabelValues(string(cmd.Source), cmd.Color.String()).Inc()
	m.ColorState.Set(float64(result))
}

// RegisterBroadcastDrops exposes a running count of discarded
// control-channel broadcasts.
func (m *Metrics) RegisterBroadcastDrops(dropped func() uint64) {
	m.Registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "ledremote_ws_broadcast_dropped_total",
		Help: "Status broadcasts discarded because the queue was full.",
	}, func() float64 { return float64(dropped()) }))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
