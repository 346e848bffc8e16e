package agent

import (
	"github.com/sirupsen/logrus"

	"ledremote/internal/core"
	"ledremote/internal/server"
)

// handleCommand applies a colour command, repaints the strip and notifies
// every listener.
func (a *Agent) handleCommand(cmd core.Command) {
	log := a.log.WithFields(logrus.Fields{
		"command": cmd.Type,
		"color":   cmd.Color,
		"source":  cmd.Source,
	})

	if !cmd.Color.Valid() {
		log.Warn("ignoring command with invalid colour")
		return
	}

	var result core.Color
	switch cmd.Type {
	case core.CmdToggle:
		if cmd.Color == core.Off {
			log.Warn("ignoring toggle to off")
			return
		}
		result = a.state.Toggle(cmd.Color)

	case core.CmdSet:
		c, changed := a.state.Set(cmd.Color)
		if !changed {
			log.Debug("colour unchanged")
			return
		}
		result = c

	default:
		log.Warn("unknown command type")
		return
	}

	a.strip.Fill(result.RGB())
	a.renderer.Show(a.strip.Pixels())

	a.notify(result)
	a.eventBus.Publish(core.Event{Type: core.ColorChangedEvent, Source: cmd.Source, State: a.state.Snapshot()})
	a.metrics.ObserveCommand(cmd, result)

	log.WithField("state", result).Info("colour changed")
}

// notify sends the current colour to every control-channel client.
func (a *Agent) notify(c core.Color) {
	a.notifier.Broadcast(server.NewStatusMessage(c))
}
