package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // source and subscriber zones must resolve without system tzdata

	"gopkg.in/yaml.v3"

	"github.com/STRATINT/econcal/internal/cloudsql"
)

// Config represents runtime configuration derived from environment variables
// and an optional YAML overlay.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Browser   BrowserConfig
	Sources   SourcesConfig   `yaml:"sources"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig locates the issue log database. An empty URL keeps the issue
// log in memory only.
type DatabaseConfig struct {
	URL string
}

// AuthConfig protects the admin issue API.
type AuthConfig struct {
	JWTSecret         string
	AdminPasswordHash string
	TokenDuration     time.Duration
}

// BrowserConfig tunes the shared headless browser.
type BrowserConfig struct {
	ExecPath          string
	Headless          bool
	IdleTimeout       time.Duration
	CheckInterval     time.Duration
	StartupTimeout    time.Duration
	NavigationTimeout time.Duration
}

// SourceConfig configures one upstream adapter.
type SourceConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	TimeZone string        `yaml:"timezone"`
}

// SourcesConfig configures every adapter.
type SourcesConfig struct {
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	UserAgent    string        `yaml:"user_agent"`
	ForexFactory SourceConfig  `yaml:"forexfactory"`
	Myfxbook     SourceConfig  `yaml:"myfxbook"`
	CSVExport    SourceConfig  `yaml:"csv_export"`
}

// SchedulerConfig drives notification and cache-warming loops.
type SchedulerConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	ReminderLead    time.Duration `yaml:"reminder_lead"`
	WarmInterval    time.Duration `yaml:"warm_interval"`
	SubscribersFile string        `yaml:"subscribers_file"`
	// WebhookURL switches delivery from the log to a signed HTTP POST.
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"-"`
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultTokenDuration = 24 * time.Hour

	defaultBrowserIdleTimeout   = 5 * time.Minute
	defaultBrowserCheckInterval = time.Minute
	defaultBrowserStartup       = 45 * time.Second
	defaultBrowserNavigation    = 30 * time.Second

	defaultHTTPTimeout = 20 * time.Second
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultForexFactoryURL = "https://www.forexfactory.com/calendar"
	defaultMyfxbookURL     = "https://www.myfxbook.com/rss/forex-economic-calendar-events"
	defaultCSVExportURL    = "https://nfs.faireconomy.media/ff_calendar_thisweek.csv"
	defaultCSVTimeZone     = "America/New_York"

	defaultForexFactoryTTL = 5 * time.Minute
	defaultMyfxbookTTL     = 10 * time.Minute
	defaultCSVExportTTL    = time.Hour

	defaultTickInterval = time.Minute
	defaultReminderLead = 15 * time.Minute
	defaultWarmInterval = 5 * time.Minute
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. When ECONCAL_CONFIG_FILE is set its sources and
// scheduler sections override the environment.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("ADMIN_JWT_SECRET"),
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			TokenDuration:     defaultTokenDuration,
		},
		Browser: BrowserConfig{
			ExecPath:          os.Getenv("CHROME_PATH"),
			Headless:          true,
			IdleTimeout:       defaultBrowserIdleTimeout,
			CheckInterval:     defaultBrowserCheckInterval,
			StartupTimeout:    defaultBrowserStartup,
			NavigationTimeout: defaultBrowserNavigation,
		},
		Sources: SourcesConfig{
			HTTPTimeout: defaultHTTPTimeout,
			UserAgent:   getEnv("SOURCE_USER_AGENT", defaultUserAgent),
			ForexFactory: SourceConfig{
				Enabled:  true,
				URL:      getEnv("FOREXFACTORY_URL", defaultForexFactoryURL),
				CacheTTL: defaultForexFactoryTTL,
			},
			Myfxbook: SourceConfig{
				Enabled:  true,
				URL:      getEnv("MYFXBOOK_RSS_URL", defaultMyfxbookURL),
				CacheTTL: defaultMyfxbookTTL,
				TimeZone: "UTC",
			},
			CSVExport: SourceConfig{
				Enabled:  true,
				URL:      getEnv("CSV_EXPORT_URL", defaultCSVExportURL),
				CacheTTL: defaultCSVExportTTL,
				TimeZone: getEnv("CSV_EXPORT_TIMEZONE", defaultCSVTimeZone),
			},
		},
		Scheduler: SchedulerConfig{
			TickInterval:    defaultTickInterval,
			ReminderLead:    defaultReminderLead,
			WarmInterval:    defaultWarmInterval,
			SubscribersFile: os.Getenv("SUBSCRIBERS_FILE"),
			WebhookURL:      os.Getenv("NOTIFY_WEBHOOK_URL"),
			WebhookSecret:   os.Getenv("NOTIFY_WEBHOOK_SECRET"),
		},
	}

	dbURL, err := cloudsql.BuildDatabaseURL()
	if err != nil && !errors.Is(err, cloudsql.ErrNotConfigured) {
		return Config{}, fmt.Errorf("database: %w", err)
	}
	cfg.Database.URL = dbURL

	durations := []struct {
		env    string
		target *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout},
		{"BROWSER_IDLE_TIMEOUT_SECONDS", &cfg.Browser.IdleTimeout},
		{"BROWSER_CHECK_INTERVAL_SECONDS", &cfg.Browser.CheckInterval},
		{"BROWSER_STARTUP_TIMEOUT_SECONDS", &cfg.Browser.StartupTimeout},
		{"BROWSER_NAVIGATION_TIMEOUT_SECONDS", &cfg.Browser.NavigationTimeout},
		{"SOURCE_HTTP_TIMEOUT_SECONDS", &cfg.Sources.HTTPTimeout},
		{"SCHEDULER_TICK_SECONDS", &cfg.Scheduler.TickInterval},
		{"SCHEDULER_REMINDER_LEAD_SECONDS", &cfg.Scheduler.ReminderLead},
		{"SCHEDULER_WARM_SECONDS", &cfg.Scheduler.WarmInterval},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := parseSeconds(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.target = parsed
		}
	}

	if v := os.Getenv("ADMIN_TOKEN_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return Config{}, fmt.Errorf("invalid ADMIN_TOKEN_HOURS: must be a positive integer")
		}
		cfg.Auth.TokenDuration = time.Duration(hours) * time.Hour
	}

	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BROWSER_HEADLESS: %w", err)
		}
		cfg.Browser.Headless = headless
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if path := os.Getenv("ECONCAL_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyFile overlays the YAML document at path onto cfg. Fields absent from
// the document keep their current values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	overlay := struct {
		Sources   *SourcesConfig   `yaml:"sources"`
		Scheduler *SchedulerConfig `yaml:"scheduler"`
	}{
		Sources:   &cfg.Sources,
		Scheduler: &cfg.Scheduler,
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) validate() error {
	sources := map[string]SourceConfig{
		"forexfactory": c.Sources.ForexFactory,
		"myfxbook":     c.Sources.Myfxbook,
		"csv_export":   c.Sources.CSVExport,
	}
	for name, src := range sources {
		if !src.Enabled {
			continue
		}
		if src.URL == "" {
			return fmt.Errorf("source %s: url is required", name)
		}
		if src.CacheTTL <= 0 {
			return fmt.Errorf("source %s: cache_ttl must be positive", name)
		}
		if src.TimeZone != "" {
			if _, err := time.LoadLocation(src.TimeZone); err != nil {
				return fmt.Errorf("source %s: invalid timezone %q: %w", name, src.TimeZone, err)
			}
		}
	}
	if c.Browser.CheckInterval <= 0 || c.Browser.IdleTimeout <= 0 {
		return fmt.Errorf("browser idle timeout and check interval must be positive")
	}
	if c.Scheduler.TickInterval <= 0 || c.Scheduler.WarmInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	return nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
