package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string
}

// QueueConfig holds scheduler and retry settings.
type QueueConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// JanitorConfig holds maintenance settings for abandoned tasks.
type JanitorConfig struct {
	Cron      string
	Retention time.Duration
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server  ServerConfig
	Queue   QueueConfig
	Janitor JanitorConfig
	Bark    BarkConfig

	StateDir      string
	LogLevel      string
	Mode          string
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "127.0.0.1:8392"
	defaultLogLevel      = "info"
	defaultConcurrency   = 4
	defaultPollInterval  = 10 * time.Second
	defaultMaxRetries    = 20
	defaultRetryBase     = 2 * time.Second
	defaultRetryMax      = 600 * time.Second
	defaultJanitorCron   = "0 * * * *"
	defaultRetention     = 7 * 24 * time.Hour
	defaultShutdownGrace = 5 * time.Second
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// FromEnv builds a Config from environment variables and the optional .env
// file, without touching command-line flags.
func FromEnv() (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "cmdq", ".env"))
	}
	_ = godotenv.Load(envFiles...) // optional

	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnvString("CMDQ_ADDR", defaultAddr),
		},
		Queue: QueueConfig{
			Concurrency:    getEnvInt("CMDQ_CONCURRENCY", defaultConcurrency),
			PollInterval:   getEnvDuration("CMDQ_POLL_INTERVAL", defaultPollInterval),
			MaxRetries:     getEnvInt("CMDQ_MAX_RETRIES", defaultMaxRetries),
			RetryBaseDelay: getEnvDuration("CMDQ_RETRY_BASE_DELAY", defaultRetryBase),
			RetryMaxDelay:  getEnvDuration("CMDQ_RETRY_MAX_DELAY", defaultRetryMax),
		},
		Janitor: JanitorConfig{
			Cron:      getEnvString("CMDQ_JANITOR_CRON", defaultJanitorCron),
			Retention: getEnvDuration("CMDQ_ABANDONED_RETENTION", defaultRetention),
		},
		Bark: BarkConfig{
			URL:     getEnvString("CMDQ_BARK_URL", ""),
			Enabled: getEnvBool("CMDQ_BARK_ENABLED", false),
		},
		StateDir:      getEnvString("CMDQ_STATE_DIR", ""),
		LogLevel:      getEnvString("CMDQ_LOG_LEVEL", defaultLogLevel),
		Mode:          getEnvString("CMDQ_MODE", "http"),
		ShutdownGrace: getEnvDuration("CMDQ_SHUTDOWN_GRACE", defaultShutdownGrace),
	}
	return cfg, cfg.normalize()
}

// Parse parses command line flags on top of FromEnv.
// Priority: CLI flags > environment variables > .env file > defaults.
func Parse() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	var (
		addr          string
		stateDir      string
		logLevel      string
		mode          string
		concurrency   int
		pollInterval  time.Duration
		maxRetries    int
		shutdownGrace time.Duration
	)
	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the database and task logs")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&mode, "mode", "", "Serving mode: http, mcp or both")
	flag.IntVar(&concurrency, "concurrency", 0, "Number of concurrent workers")
	flag.DurationVar(&pollInterval, "poll-interval", 0, "Idle worker poll interval")
	flag.IntVar(&maxRetries, "max-retries", 0, "Attempts before a task is abandoned")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if concurrency > 0 {
		cfg.Queue.Concurrency = concurrency
	}
	if pollInterval > 0 {
		cfg.Queue.PollInterval = pollInterval
	}
	if maxRetries > 0 {
		cfg.Queue.MaxRetries = maxRetries
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	return cfg, cfg.normalize()
}

func (c *Config) normalize() error {
	if c.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return fmt.Errorf("resolve default state dir: %w", err)
		}
		c.StateDir = dir
	}
	if c.Queue.Concurrency < 1 {
		c.Queue.Concurrency = defaultConcurrency
	}
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = defaultPollInterval
	}
	if c.Queue.MaxRetries < 1 {
		c.Queue.MaxRetries = defaultMaxRetries
	}
	if c.Queue.RetryBaseDelay <= 0 {
		c.Queue.RetryBaseDelay = defaultRetryBase
	}
	if c.Queue.RetryMaxDelay < c.Queue.RetryBaseDelay {
		c.Queue.RetryMaxDelay = defaultRetryMax
	}
	if c.Janitor.Retention <= 0 {
		c.Janitor.Retention = defaultRetention
	}
	switch c.Mode {
	case "", "http":
		c.Mode = "http"
	case "mcp", "both":
	default:
		return fmt.Errorf("invalid mode %q: want http, mcp or both", c.Mode)
	}
	return nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "cmdq")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
