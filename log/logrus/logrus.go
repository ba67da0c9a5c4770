// Package logrus adapts a *logrus.Entry to rpccache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/rpccache"
)

var _ rpccache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every line with component=rpccache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "rpccache")}
}

func (l Logger) Debug(msg string, f rpccache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f rpccache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f rpccache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f rpccache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f rpccache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	return l.E.WithFields(logrus.Fields(f))
}
