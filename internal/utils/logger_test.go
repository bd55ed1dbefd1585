package utils

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   Debug,
		"INFO":    Info,
		" error ": Error,
		"fatal":   Critical,
		"warning": Warning,
		"":        Warning,
		"verbose": Warning,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("test", Info)
	l.logger = log.New(&buf, "", 0)

	l.Debug("hidden")
	l.Info("Provider loaded", "provider", "provider-openai", "dangling")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
	if !strings.Contains(out, "[INFO] Provider loaded provider=provider-openai") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "dangling") {
		t.Errorf("unpaired key written: %q", out)
	}
}

func TestDefaultLogLevel(t *testing.T) {
	SetDefaultLogLevel(Debug)
	defer SetDefaultLogLevel(Warning)

	if l := NewLogger("x"); l.logLevel != Debug {
		t.Errorf("logLevel = %v, want Debug", l.logLevel)
	}
	if l := NewLogger("y", Error); l.logLevel != Error {
		t.Errorf("explicit level ignored: %v", l.logLevel)
	}
}
