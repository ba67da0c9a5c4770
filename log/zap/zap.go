// Package zap adapts a *zap.Logger to rpccache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/rpccache"
)

var _ rpccache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "rpccache"; a nil l logs nowhere.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.Named("rpccache")}
}

func (z Logger) Debug(msg string, f rpccache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f rpccache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f rpccache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f rpccache.Fields) { z.L.Error(msg, fields(f)...) }

// fields are emitted in key order so lines are stable across runs.
func fields(f rpccache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
