// Package logging provides the default Logger implementation used across
// clipcast, backed by logrus. The final sink (where logrus writes to) is
// left at its default of stderr; wiring a different sink is the entry
// point's concern, not the core's.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/arjunv/clipcast/pkg/clipcast/types"
)

// DefaultLogger wraps a *logrus.Entry to satisfy types.Logger.
type DefaultLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger builds a DefaultLogger at info level.
func NewDefaultLogger() *DefaultLogger {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: logrus.NewEntry(log)}
}

func (d *DefaultLogger) Info(args ...interface{})                 { d.entry.Info(args...) }
func (d *DefaultLogger) Infof(format string, args ...interface{}) { d.entry.Infof(format, args...) }
func (d *DefaultLogger) Warn(args ...interface{})                 { d.entry.Warn(args...) }
func (d *DefaultLogger) Warnf(format string, args ...interface{}) { d.entry.Warnf(format, args...) }
func (d *DefaultLogger) Error(args ...interface{})                { d.entry.Error(args...) }
func (d *DefaultLogger) Errorf(format string, args ...interface{}) {
	d.entry.Errorf(format, args...)
}
func (d *DefaultLogger) Debug(args ...interface{})                 { d.entry.Debug(args...) }
func (d *DefaultLogger) Debugf(format string, args ...interface{}) { d.entry.Debugf(format, args...) }
func (d *DefaultLogger) Fatal(args ...interface{})                 { d.entry.Fatal(args...) }
func (d *DefaultLogger) Fatalf(format string, args ...interface{}) { d.entry.Fatalf(format, args...) }
func (d *DefaultLogger) Panic(args ...interface{})                 { d.entry.Panic(args...) }
func (d *DefaultLogger) Panicf(format string, args ...interface{}) { d.entry.Panicf(format, args...) }

// ToggleDebug flips between debug and info level.
func (d *DefaultLogger) ToggleDebug(on bool) {
	if on {
		d.entry.Logger.SetLevel(logrus.DebugLevel)
		return
	}
	d.entry.Logger.SetLevel(logrus.InfoLevel)
}

// WithFields returns a derived logger carrying the given structured fields.
func (d *DefaultLogger) WithFields(fields map[string]interface{}) types.Logger {
	return &DefaultLogger{entry: d.entry.WithFields(logrus.Fields(fields))}
}

var _ types.Logger = (*DefaultLogger)(nil)
