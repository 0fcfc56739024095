package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Telegram delivery modes.
const (
	TelegramPolling = "polling"
	TelegramWebhook = "webhook"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	Timezone    string
	Storage     string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Buffer      BufferConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
	Telegram    TelegramConfig
	GenAI       GenAIConfig
	Google      GoogleConfig
	Reminder    ReminderConfig
	Draft       DraftConfig

	location *time.Location
}

type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxConn       int
	EnablePprof   bool
	EnableMetrics bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type BufferConfig struct {
	Path           string
	RetentionHours int
	SyncInterval   time.Duration
	MaxRetry       int
	BatchSize      int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// ExternalTimeout bounds every calendar, sheet, extractor and Bot API call.
	ExternalTimeout time.Duration
	// UpdateTimeout bounds the handling of one chat update.
	UpdateTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

type TelegramConfig struct {
	Token         string
	Mode          string
	WebhookURL    string
	WebhookSecret string
	APIBase       string
	PollTimeout   time.Duration
}

type GenAIConfig struct {
	APIKey string
	Model  string
}

type GoogleConfig struct {
	CredentialsJSON string
	CredentialsFile string
	CalendarID      string
	SpreadsheetID   string
	SheetTab        string
}

// Enabled reports whether service-account credentials are configured.
func (g GoogleConfig) Enabled() bool {
	return g.CredentialsJSON != "" || g.CredentialsFile != ""
}

type ReminderConfig struct {
	DailyAt     string
	Interval    time.Duration
	WindowLower time.Duration
	WindowUpper time.Duration
}

type DraftConfig struct {
	TTL        time.Duration
	SessionTTL time.Duration
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults. The result is validated.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "taskbot"),
		Environment: getString("APP_ENV", "development"),
		Timezone:    getString("APP_TIMEZONE", "Europe/Moscow"),
		Storage:     strings.ToLower(getString("STORAGE_DRIVER", StoragePostgres)),
		HTTP: HTTPConfig{
			Host:          getString("SERVER_HOST", "0.0.0.0"),
			Port:          getString("SERVER_PORT", "8080"),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:       getInt("SERVER_MAX_CONN", 0),
			EnablePprof:   getBool("SERVER_ENABLE_PPROF", false),
			EnableMetrics: getBool("SERVER_ENABLE_METRICS", true),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "taskbot"),
			User:            getString("DB_USER", "taskbot"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 2),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
			PoolSize: getInt("REDIS_POOL_SIZE", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "taskbot"),
		},
		Buffer: BufferConfig{
			Path:           getString("BOLTDB_PATH", "./data/buffer.db"),
			RetentionHours: getInt("BUFFER_RETENTION_HOURS", 72),
			SyncInterval:   getDuration("SYNC_INTERVAL_SECONDS", 30*time.Second),
			MaxRetry:       getInt("MAX_RETRY_ATTEMPTS", 5),
			BatchSize:      getInt("BUFFER_BATCH_SIZE", 50),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
			ExternalTimeout: getDuration("EXTERNAL_TIMEOUT", 15*time.Second),
			UpdateTimeout:   getDuration("UPDATE_TIMEOUT", 60*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
		Telegram: TelegramConfig{
			Token:         os.Getenv("TELEGRAM_TOKEN"),
			Mode:          strings.ToLower(getString("TELEGRAM_MODE", TelegramPolling)),
			WebhookURL:    os.Getenv("TELEGRAM_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
			APIBase:       getString("TELEGRAM_API_BASE", "https://api.telegram.org"),
			PollTimeout:   getDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
		},
		GenAI: GenAIConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getString("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Google: GoogleConfig{
			CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
			CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
			CalendarID:      getString("GOOGLE_CALENDAR_ID", "primary"),
			SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
			SheetTab:        getString("GOOGLE_SHEET_TAB", "Задачи"),
		},
		Reminder: ReminderConfig{
			DailyAt:     getString("REMINDER_DAILY_AT", "09:00"),
			Interval:    getDuration("REMINDER_INTERVAL", time.Hour),
			WindowLower: getDuration("REMINDER_WINDOW_LOWER", 45*time.Minute),
			WindowUpper: getDuration("REMINDER_WINDOW_UPPER", 90*time.Minute),
		},
		Draft: DraftConfig{
			TTL:        getDuration("DRAFT_TTL", 7*24*time.Hour),
			SessionTTL: getDuration("SESSION_TTL", 30*time.Minute),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = cfg.Database.DSN()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks the settings the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	switch c.Telegram.Mode {
	case TelegramPolling:
	case TelegramWebhook:
		if c.Telegram.WebhookURL == "" {
			errs = append(errs, errors.New("TELEGRAM_WEBHOOK_URL is required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TELEGRAM_MODE %q", c.Telegram.Mode))
	}
	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage))
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}
	c.location = loc
	if c.Reminder.WindowUpper <= c.Reminder.WindowLower {
		errs = append(errs, errors.New("REMINDER_WINDOW_UPPER must exceed REMINDER_WINDOW_LOWER"))
	}
	return errors.Join(errs...)
}

// Location is the timezone deadlines and reminders are interpreted in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// DSN builds a Postgres connection string from the discrete settings.
// Credentials are escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
