package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestInit_JSONCarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: slog.LevelInfo, JSON: true, Output: &buf})
	t.Cleanup(func() { Logger = nil })

	Info("allocated", "region", "us-east-1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "allocated" {
		t.Errorf("expected msg allocated, got %v", rec["msg"])
	}
	if rec["region"] != "us-east-1" {
		t.Errorf("expected region attribute, got %v", rec["region"])
	}
	if id, _ := rec["run_id"].(string); len(id) != 36 {
		t.Errorf("expected uuid run_id, got %v", rec["run_id"])
	}
}

func TestInit_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: slog.LevelInfo, Verbose: true, Output: &buf})
	t.Cleanup(func() { Logger = nil })

	Debug("running", "command", "aws sts get-caller-identity")
	if !strings.Contains(buf.String(), "running") {
		t.Errorf("expected debug record, got %q", buf.String())
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: slog.LevelWarn, Output: &buf})
	t.Cleanup(func() { Logger = nil })

	Info("hidden")
	Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info record should be filtered, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn record, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
