package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/unkn0wn-root/rpccache"
)

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("filtered", rpccache.Fields{"k": 1})
	if buf.Len() != 0 {
		t.Fatalf("debug line written below level: %s", buf.String())
	}

	l.Warn("cache read failed", rpccache.Fields{"key": "svc/M/abc"})
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["level"] != "WARN" || line["msg"] != "cache read failed" || line["key"] != "svc/M/abc" {
		t.Fatalf("unexpected line %v", line)
	}
}
