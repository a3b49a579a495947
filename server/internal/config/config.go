package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the relay configuration.
const (
	DefaultAddress         = "127.0.0.1"
	DefaultPort            = 8080
	DefaultGRPCPort        = 50051
	DefaultShutdownTimeout = 10 * time.Second

	DefaultWSPath           = "/ws"
	DefaultReadLimit        = 1 << 20
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultPingPeriod       = 54 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaxRoomLen       = 256

	DefaultQueueSize     = 256
	DefaultChannelPrefix = "relay:room:"
	DefaultAuthHeader    = "x-api-key"
)

// Config is the full relay configuration, one struct per YAML section.
type Config struct {
	Server ServerConfig `yaml:"server"`
	WS     WSConfig     `yaml:"ws"`
	Relay  RelayConfig  `yaml:"relay"`
	Auth   AuthConfig   `yaml:"auth"`
	GRPC   GRPCConfig   `yaml:"grpc"`
	Bus    BusConfig    `yaml:"bus"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Address is the interface the HTTP server binds to (default 127.0.0.1).
	Address string `yaml:"address"`

	// Port is the HTTP port serving WebSocket, API and metrics (default 8080).
	Port int `yaml:"port"`

	// CORS enables permissive cross-origin headers on HTTP routes.
	CORS bool `yaml:"cors"`

	// UIDir, when set, is a directory of static frontend assets served at /
	// with index.html as the fallback for unknown paths.
	UIDir string `yaml:"ui_dir"`

	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// WSConfig tunes the WebSocket transport.
type WSConfig struct {
	Path             string        `yaml:"path"`
	ReadLimit        int64         `yaml:"read_limit"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PongWait         time.Duration `yaml:"pong_wait"`
	PingPeriod       time.Duration `yaml:"ping_period"`
	MaxRoomLen       int           `yaml:"max_room_len"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// AllowedOrigins restricts the Origin header on upgrade. Empty accepts all.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RelayConfig holds hub settings.
type RelayConfig struct {
	// QueueSize is the per-session outbound queue depth. A member whose
	// queue overflows is disconnected. Hot-reloadable for new sessions.
	QueueSize int `yaml:"queue_size"`
}

// AuthConfig controls API-key protection of the admin surfaces
// (REST introspection and gRPC health). WebSocket joins are not affected.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) carrying the key.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// EffectiveMode returns Mode with "" treated as "none".
func (a AuthConfig) EffectiveMode() string {
	if a.Mode == "" {
		return "none"
	}
	return a.Mode
}

// GRPCConfig controls the gRPC health endpoint.
type GRPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// BusConfig controls cross-instance fan-out.
type BusConfig struct {
	// Mode is one of: none | redis.
	Mode string `yaml:"mode"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// Enabled reports whether a bus backend is configured.
func (b BusConfig) Enabled() bool {
	return b.Mode != "" && b.Mode != "none"
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error. Hot-reloadable.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("relay config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         DefaultAddress,
			Port:            DefaultPort,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		WS: WSConfig{
			Path:             DefaultWSPath,
			ReadLimit:        DefaultReadLimit,
			WriteTimeout:     DefaultWriteTimeout,
			PongWait:         DefaultPongWait,
			PingPeriod:       DefaultPingPeriod,
			MaxRoomLen:       DefaultMaxRoomLen,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		Relay: RelayConfig{
			QueueSize: DefaultQueueSize,
		},
		GRPC: GRPCConfig{
			Port: DefaultGRPCPort,
		},
		Bus: BusConfig{
			Mode:          "none",
			RedisAddr:     "localhost:6379",
			ChannelPrefix: DefaultChannelPrefix,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks structural constraints. The CLI calls it again after
// applying flag overrides.
func (cfg *Config) Validate() error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}
	if !strings.HasPrefix(cfg.WS.Path, "/") || strings.HasSuffix(cfg.WS.Path, "/") {
		return fmt.Errorf("ws.path %q must start with / and not end with /", cfg.WS.Path)
	}
	if cfg.WS.ReadLimit < 0 {
		return fmt.Errorf("ws.read_limit must not be negative")
	}
	if cfg.WS.PongWait > 0 && cfg.WS.PingPeriod >= cfg.WS.PongWait {
		return fmt.Errorf("ws.ping_period %v must be shorter than ws.pong_wait %v",
			cfg.WS.PingPeriod, cfg.WS.PongWait)
	}
	if cfg.WS.MaxRoomLen < 0 {
		return fmt.Errorf("ws.max_room_len must not be negative")
	}
	if cfg.Relay.QueueSize < 1 {
		return fmt.Errorf("relay.queue_size %d must be at least 1", cfg.Relay.QueueSize)
	}
	switch cfg.Auth.Mode {
	case "apikey":
		if cfg.Auth.KeyEnv == "" {
			return fmt.Errorf("auth.key_env is required when auth.mode is apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("auth.mode %q unknown: want apikey|none", cfg.Auth.Mode)
	}
	if cfg.GRPC.Enabled && (cfg.GRPC.Port <= 0 || cfg.GRPC.Port > 65535) {
		return fmt.Errorf("grpc.port %d is out of range [1, 65535]", cfg.GRPC.Port)
	}
	if cfg.GRPC.Enabled && cfg.GRPC.Port == cfg.Server.Port {
		return fmt.Errorf("grpc.port and server.port must differ")
	}
	switch cfg.Bus.Mode {
	case "redis":
		if cfg.Bus.RedisAddr == "" {
			return fmt.Errorf("bus.redis_addr is required when bus.mode is redis")
		}
	case "none", "":
	default:
		return fmt.Errorf("bus.mode %q unknown: want redis|none", cfg.Bus.Mode)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format %q unknown: want json|text", cfg.Log.Format)
	}
	return nil
}
