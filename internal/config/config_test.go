package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(t *testing.T, values map[string]interface{}) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("STATE_DIR", t.TempDir())
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t, nil))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.URL != "http://localhost:3001" {
		t.Errorf("unexpected API URL %q", cfg.API.URL)
	}
	if cfg.Stream.RetryDelay != 3*time.Second {
		t.Errorf("expected 3s retry delay, got %s", cfg.Stream.RetryDelay)
	}
	if cfg.Stream.BufferSize != 500 {
		t.Errorf("expected buffer size 500, got %d", cfg.Stream.BufferSize)
	}
	if got := cfg.StreamURL(); got != "http://localhost:3001/custom-logger/stream" {
		t.Errorf("unexpected stream URL %q", got)
	}
	if !strings.HasSuffix(cfg.Log.File, "ehr-console.log") {
		t.Errorf("unexpected log file %q", cfg.Log.File)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(newViper(t, map[string]interface{}{
		"API_URL":            "https://admin.example.org/",
		"STREAM_TRANSPORT":   "WS",
		"STREAM_RETRY_DELAY": "500ms",
		"STREAM_MAX_RETRIES": 4,
	}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.StreamURL(); got != "wss://admin.example.org/custom-logger/ws" {
		t.Errorf("unexpected stream URL %q", got)
	}
	if cfg.Stream.RetryDelay != 500*time.Millisecond {
		t.Errorf("unexpected retry delay %s", cfg.Stream.RetryDelay)
	}
	if cfg.Stream.MaxRetries != 4 {
		t.Errorf("unexpected max retries %d", cfg.Stream.MaxRetries)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"transport":   {"STREAM_TRANSPORT": "grpc"},
		"retry delay": {"STREAM_RETRY_DELAY": "0s"},
		"buffer size": {"BUFFER_SIZE": 0},
		"api url":     {"API_URL": "localhost:3001"},
	}

	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(newViper(t, values)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
