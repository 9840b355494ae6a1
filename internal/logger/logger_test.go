package logger

import (
	"testing"

	"github.com/dbsmedya/goreconcile/internal/config"
)

func TestNew_JSONFormat(t *testing.T) {
	cfg := &config.LoggingConfig{Level: "debug", Format: "json", Output: "stdout"}
	log, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if log == nil {
		t.Fatal("New returned nil logger")
	}
}

func TestNewDefault(t *testing.T) {
	log := NewDefault()
	if log == nil {
		t.Fatal("NewDefault returned nil")
	}
	log.Info("default logger works")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"bogus", "info"},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input).String(); got != tt.expected {
			t.Errorf("parseLevel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestWithHelpers(t *testing.T) {
	log := NewDefault()

	tableLog := log.WithTable("orders")
	if tableLog == nil {
		t.Fatal("WithTable returned nil")
	}

	sideLog := log.WithSide("source")
	if sideLog == nil {
		t.Fatal("WithSide returned nil")
	}

	modeLog := log.WithMode("incremental")
	if modeLog == nil {
		t.Fatal("WithMode returned nil")
	}

	fieldLog := log.WithFields(map[string]interface{}{"workers": 4})
	if fieldLog == nil {
		t.Fatal("WithFields returned nil")
	}

	// Derived loggers must not share mutation with the parent.
	if tableLog == log {
		t.Error("WithTable must return a new logger")
	}
}
