package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig
	Stream    StreamConfig
	Auth      AuthConfig
	DevServer DevServerConfig
	Log       LogConfig
}

type APIConfig struct {
	URL string
}

type StreamConfig struct {
	Path            string
	Transport       string
	RetryDelay      time.Duration
	RetryMultiplier float64
	RetryMaxDelay   time.Duration
	MaxRetries      int
	BufferSize      int
}

type AuthConfig struct {
	StateDir string
}

type DevServerConfig struct {
	Port             string
	JWTSecret        string
	AccessTTL        time.Duration
	Rate             int
	OperatorEmail    string
	OperatorPassword string
}

type LogConfig struct {
	Level string
	File  string
}

const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

// SetDefaults registers every key with v so AutomaticEnv can resolve it
func SetDefaults(v *viper.Viper) {
	v.SetDefault("API_URL", "http://localhost:3001")
	v.SetDefault("STREAM_PATH", "/custom-logger/stream")
	v.SetDefault("STREAM_TRANSPORT", TransportSSE)
	v.SetDefault("STREAM_RETRY_DELAY", "3s")
	v.SetDefault("STREAM_RETRY_MULTIPLIER", 1.0)
	v.SetDefault("STREAM_RETRY_MAX_DELAY", "0s")
	v.SetDefault("STREAM_MAX_RETRIES", 0)
	v.SetDefault("BUFFER_SIZE", 500)
	v.SetDefault("STATE_DIR", defaultStateDir())
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("DEV_PORT", "3001")
	v.SetDefault("DEV_JWT_SECRET", "dev-secret-key")
	v.SetDefault("DEV_ACCESS_TTL", "2m")
	v.SetDefault("DEV_RATE", 5)
	v.SetDefault("DEV_OPERATOR_EMAIL", "operator@example.com")
	v.SetDefault("DEV_OPERATOR_PASSWORD", "operator")
}

// Load resolves the configuration from v, which already carries defaults,
// environment and any config file
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			URL: strings.TrimRight(v.GetString("API_URL"), "/"),
		},
		Stream: StreamConfig{
			Path:            v.GetString("STREAM_PATH"),
			Transport:       strings.ToLower(v.GetString("STREAM_TRANSPORT")),
			RetryDelay:      v.GetDuration("STREAM_RETRY_DELAY"),
			RetryMultiplier: v.GetFloat64("STREAM_RETRY_MULTIPLIER"),
			RetryMaxDelay:   v.GetDuration("STREAM_RETRY_MAX_DELAY"),
			MaxRetries:      v.GetInt("STREAM_MAX_RETRIES"),
			BufferSize:      v.GetInt("BUFFER_SIZE"),
		},
		Auth: AuthConfig{
			StateDir: v.GetString("STATE_DIR"),
		},
		DevServer: DevServerConfig{
			Port:             v.GetString("DEV_PORT"),
			JWTSecret:        v.GetString("DEV_JWT_SECRET"),
			AccessTTL:        v.GetDuration("DEV_ACCESS_TTL"),
			Rate:             v.GetInt("DEV_RATE"),
			OperatorEmail:    v.GetString("DEV_OPERATOR_EMAIL"),
			OperatorPassword: v.GetString("DEV_OPERATOR_PASSWORD"),
		},
		Log: LogConfig{
			Level: strings.ToLower(v.GetString("LOG_LEVEL")),
			File:  v.GetString("LOG_FILE"),
		},
	}

	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.Auth.StateDir, "ehr-console.log")
	}
	if !strings.HasPrefix(cfg.Stream.Path, "/") {
		cfg.Stream.Path = "/" + cfg.Stream.Path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Stream.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("invalid STREAM_TRANSPORT %q: expected %s or %s", c.Stream.Transport, TransportSSE, TransportWebSocket)
	}
	if c.Stream.RetryDelay <= 0 {
		return fmt.Errorf("invalid STREAM_RETRY_DELAY %s: must be positive", c.Stream.RetryDelay)
	}
	if c.Stream.BufferSize <= 0 {
		return fmt.Errorf("invalid BUFFER_SIZE %d: must be positive", c.Stream.BufferSize)
	}
	if c.Stream.MaxRetries < 0 {
		return fmt.Errorf("invalid STREAM_MAX_RETRIES %d", c.Stream.MaxRetries)
	}
	if !strings.HasPrefix(c.API.URL, "http://") && !strings.HasPrefix(c.API.URL, "https://") {
		return fmt.Errorf("invalid API_URL %q: expected http or https", c.API.URL)
	}
	return nil
}

// StreamURL is the push endpoint for the configured transport
func (c *Config) StreamURL() string {
	url := c.API.URL + c.Stream.Path
	if c.Stream.Transport == TransportWebSocket {
		url = "ws" + strings.TrimPrefix(url, "http")
		url = strings.TrimSuffix(url, "/stream") + "/ws"
	}
	return url
}

// TokenFile holds the durable mirror of the access token
func (c *Config) TokenFile() string {
	return filepath.Join(c.Auth.StateDir, "access-token")
}

// RefreshFile holds the refresh credential owned by the auth backend
func (c *Config) RefreshFile() string {
	return filepath.Join(c.Auth.StateDir, "refresh-token")
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ehr-console")
	}
	return ".ehr-console"
}
