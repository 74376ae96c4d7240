// Package logging wires up the structured logger shared by every
// component. It plays the role the validator's per-file bracketed
// *log.Logger prefixes play (pkg/anchor/event_watcher.go,
// pkg/batch/scheduler.go), upgraded to logrus since the pack shows
// logrus as the ecosystem way to do structured logging
// (orbas1-Synnergy, walletserver/middleware/logger.go).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root logger for the process, parsing level from the
// string named by spec.md Section 6 (loggerOptions).
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return log
}

// ForComponent returns a child entry tagged with component and chainId,
// the structured equivalent of the validator's "[EventWatcher]"-style
// bracketed prefixes.
func ForComponent(log *logrus.Logger, component, chainID string) *logrus.Entry {
	entry := log.WithField("component", component)
	if chainID != "" {
		entry = entry.WithField("chainId", chainID)
	}
	return entry
}
