package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Notification NotificationConfig

	Mode          string // http, mcp or both
	StateDir      string
	UseUTC        bool
	SweepInterval time.Duration
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "0.0.0.0:7270"
	defaultLogLevel      = "info"
	defaultMode          = "http"
	defaultSweepInterval = time.Minute
	defaultShutdownGrace = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	// Load .env file if present: current directory first, then the user
	// config directory.
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "taskcycle", ".env"))
	}
	_ = godotenv.Load(envFiles...) // file is optional

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("TASKCYCLE_ADDR", defaultAddr),
			AuthToken: getEnvString("TASKCYCLE_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level: getEnvString("TASKCYCLE_LOG_LEVEL", defaultLogLevel),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("TASKCYCLE_BARK_URL", ""),
				Enabled: getEnvBool("TASKCYCLE_BARK_ENABLED", false),
			},
		},
		Mode:          getEnvString("TASKCYCLE_MODE", defaultMode),
		StateDir:      getEnvString("TASKCYCLE_STATE_DIR", ""),
		UseUTC:        getEnvBool("TASKCYCLE_USE_UTC", false),
		SweepInterval: getEnvDuration("TASKCYCLE_SWEEP_INTERVAL", defaultSweepInterval),
		ShutdownGrace: getEnvDuration("TASKCYCLE_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	var addr, logLevel, mode, stateDir string
	var useUTC bool
	var sweepInterval, shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&mode, "mode", "", "Run mode: http, mcp or both")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&useUTC, "use-utc", false, "Use UTC for schedule evaluation instead of system local time")
	flag.DurationVar(&sweepInterval, "sweep-interval", 0, "How often to materialize due instances")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	// Bool and duration flags only override when explicitly set.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "use-utc":
			cfg.UseUTC = useUTC
		case "sweep-interval":
			cfg.SweepInterval = sweepInterval
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.SweepInterval < time.Second {
		cfg.SweepInterval = defaultSweepInterval
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "taskcycle")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
