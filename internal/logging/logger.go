// Package logging holds the process-wide logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger for the application.
var Logger = logrus.New()

// InitLogLevel sets the level from the given name, falling back to the
// LOG_LEVEL environment variable when name is empty. Unknown names keep
// the current level.
func InitLogLevel(name string) {
	if env := os.Getenv("LOG_LEVEL"); name == "" && env != "" {
		name = env
	}
	if name == "" {
		return
	}
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		Logger.WithField("level", name).Warn("unknown log level, keeping current")
		return
	}
	Logger.SetLevel(lvl)
}

// For returns a logger entry tagged with the component name.
func For(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}
