// Package config loads gateway configuration from layered sources: built-in
// defaults, an optional TOML file, then DSGATE_-prefixed environment
// variables. The upstream API key may also come from the OS keyring so it
// never has to live in a file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service name under which the upstream API
// key is stored.
const KeyringService = "dsgate"

// KeyringUser is the keyring account name for the upstream API key.
const KeyringUser = "upstream-api-key"

const envPrefix = "DSGATE_"

// Config is the full gateway configuration.
type Config struct {
	Server   Server   `koanf:"server"`
	Upstream Upstream `koanf:"upstream"`
	Cache    Cache    `koanf:"cache"`
	Auth     Auth     `koanf:"auth"`
}

// Server configures the client-facing listener and logging.
type Server struct {
	Addr            string `koanf:"addr" validate:"required"`
	LogLevel        string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string `koanf:"log_format" validate:"oneof=json text pretty"`
	LogFile         string `koanf:"log_file"`
	MaxRequestBytes int64  `koanf:"max_request_bytes" validate:"gt=0"`
}

// Upstream configures the connection to the chat-completions gateway.
type Upstream struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	// APIKey authenticates against the gateway. Left empty, the OS keyring is
	// consulted.
	APIKey string `koanf:"api_key"`
	// Model overrides the model name on outbound requests; empty passes the
	// client's model through.
	Model              string `koanf:"model"`
	IdleTimeoutSeconds int    `koanf:"idle_timeout_seconds" validate:"gte=0"`
}

// Cache configures the response cache. The per-class TTLs tune how long each
// kind of answer stays servable: code answers outlive reasoning, definitional
// lookups outlive both.
type Cache struct {
	Enabled           bool `koanf:"enabled"`
	Size              int  `koanf:"size" validate:"gt=0"`
	DefaultTTLSeconds int  `koanf:"default_ttl_seconds" validate:"gt=0"`

	CodeTTLSeconds      int `koanf:"code_ttl_seconds" validate:"gt=0"`
	ReasoningTTLSeconds int `koanf:"reasoning_ttl_seconds" validate:"gt=0"`
	StaticTTLSeconds    int `koanf:"static_ttl_seconds" validate:"gt=0"`
}

// TTLs returns the configured lifetime per cache class, keyed by class name.
func (c Cache) TTLs() map[string]time.Duration {
	return map[string]time.Duration{
		"code":        time.Duration(c.CodeTTLSeconds) * time.Second,
		"reasoning":   time.Duration(c.ReasoningTTLSeconds) * time.Second,
		"static_info": time.Duration(c.StaticTTLSeconds) * time.Second,
	}
}

// Auth configures the client-facing API-key gate. An empty key list disables
// authentication.
type Auth struct {
	Keys           []string `koanf:"keys"`
	RequestsPerSec float64  `koanf:"requests_per_sec" validate:"gte=0"`
	Burst          int      `koanf:"burst" validate:"gte=0"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":                   "127.0.0.1:8080",
		"server.log_level":              "info",
		"server.log_format":             "json",
		"server.max_request_bytes":      int64(10 << 20),
		"upstream.base_url":             "http://127.0.0.1:8000/v1",
		"upstream.idle_timeout_seconds": 120,
		"cache.enabled":                 true,
		"cache.size":                    1024,
		"cache.default_ttl_seconds":     300,
		"cache.code_ttl_seconds":        3600,
		"cache.reasoning_ttl_seconds":   1800,
		"cache.static_ttl_seconds":      86400,
		"auth.requests_per_sec":         10.0,
		"auth.burst":                    20,
	}
}

// Load reads configuration from defaults, then path (when non-empty), then
// the environment. The loaded configuration is validated before return.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// DSGATE_SERVER_ADDR → server.addr. List values (auth keys) are
	// comma-separated.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if raw := k.String("auth.keys"); raw != "" && len(cfg.Auth.Keys) <= 1 {
		cfg.Auth.Keys = splitList(raw)
	}

	if cfg.Upstream.APIKey == "" {
		cfg.Upstream.APIKey = keyFromKeyring()
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// SlogLevel converts the configured level name to a slog level.
func (s Server) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// keyFromKeyring fetches the upstream API key from the OS keyring. Absence is
// not an error: deployments may talk to an unauthenticated local gateway.
func keyFromKeyring() string {
	secret, err := keyring.Get(KeyringService, KeyringUser)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Warn("keyring lookup failed", "error", err)
		}
		return ""
	}
	return secret
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ExampleFile is a commented starting-point configuration, written by the
// init command.
func ExampleFile() string {
	return `# dsgate configuration

[server]
addr = "127.0.0.1:8080"
log_level = "info"     # debug, info, warn, error
log_format = "json"    # json, text, pretty

[upstream]
base_url = "http://127.0.0.1:8000/v1"
# api_key = ""         # falls back to the OS keyring when unset
# model = "deepseek-chat"
idle_timeout_seconds = 120

[cache]
enabled = true
size = 1024
default_ttl_seconds = 300
code_ttl_seconds = 3600        # code answers
reasoning_ttl_seconds = 1800   # reasoning answers
static_ttl_seconds = 86400     # definitional lookups

[auth]
# keys = ["sk-..."]    # empty disables client authentication
requests_per_sec = 10.0
burst = 20
`
}

// WriteExample writes the example configuration to path, refusing to
// overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(ExampleFile()), 0o600)
}
