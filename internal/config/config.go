package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Ticket     TicketConfig
	Assignment AssignmentConfig
	AutoClose  AutoCloseConfig
	Realtime   RealtimeConfig
	Bus        BusConfig
	Sequence   SequenceConfig
	Catalog    CatalogConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory stores.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. Redis is optional; an empty
// URL and address disable the bus bridge and the redis sequence backend.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TicketConfig bounds user supplied ticket content.
type TicketConfig struct {
	TitleMin          int
	TitleMax          int
	DescriptionMin    int
	DescriptionMax    int
	ReopenReasonMin   int
	InteractionMax    int
	MaxAttachments    int
	MaxAttachmentSize int64
}

// AssignmentConfig tunes the automatic assignment engine.
type AssignmentConfig struct {
	Enabled      bool
	AdminPenalty int
}

// AutoCloseConfig controls the stale awaiting_user sweeper.
type AutoCloseConfig struct {
	ThresholdDays   int
	IntervalSeconds int
	BatchSize       int
}

// RealtimeConfig controls push sessions.
type RealtimeConfig struct {
	HeartbeatSeconds    int
	WriteTimeoutSeconds int
	RecentItems         int
	// PollSettleMillis holds pull cursors back so writes stamped just before
	// a poll but committed after it are read again. Zero disables it.
	PollSettleMillis int
}

// BusConfig controls the cross-process bus bridge.
type BusConfig struct {
	BridgeEnabled bool
	Channel       string
}

// SequenceConfig selects the ticket number counter.
type SequenceConfig struct {
	Backend string
	PerYear bool
}

// CatalogConfig points at the category/priority catalog file.
type CatalogConfig struct {
	Path string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "development") == "development",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Ticket: DefaultTicketConfig(),
		Assignment: AssignmentConfig{
			Enabled:      getEnvAsBool("ASSIGNMENT_ENABLED", true),
			AdminPenalty: getEnvAsInt("ASSIGNMENT_ADMIN_PENALTY", 150),
		},
		AutoClose: AutoCloseConfig{
			ThresholdDays:   getEnvAsInt("AUTOCLOSE_THRESHOLD_DAYS", 5),
			IntervalSeconds: getEnvAsInt("AUTOCLOSE_INTERVAL_SECONDS", 3600),
			BatchSize:       getEnvAsInt("AUTOCLOSE_BATCH_SIZE", 200),
		},
		Realtime: RealtimeConfig{
			HeartbeatSeconds:    getEnvAsInt("REALTIME_HEARTBEAT_SECONDS", 30),
			WriteTimeoutSeconds: getEnvAsInt("REALTIME_WRITE_TIMEOUT_SECONDS", 10),
			RecentItems:         getEnvAsInt("REALTIME_RECENT_ITEMS", 20),
			PollSettleMillis:    getEnvAsInt("POLL_SETTLE_MS", 2000),
		},
		Bus: BusConfig{
			BridgeEnabled: getEnvAsBool("BUS_BRIDGE_ENABLED", false),
			Channel:       getEnv("BUS_CHANNEL", "helpdesk:bus"),
		},
		Sequence: SequenceConfig{
			Backend: getEnv("SEQUENCE_BACKEND", "postgres"),
			PerYear: getEnvAsBool("SEQUENCE_PER_YEAR", false),
		},
		Catalog: CatalogConfig{
			Path: getEnv("CATALOG_PATH", "config/catalog.yaml"),
		},
	}

	if cfg.AutoClose.ThresholdDays <= 0 {
		return nil, fmt.Errorf("invalid AUTOCLOSE_THRESHOLD_DAYS: %d", cfg.AutoClose.ThresholdDays)
	}
	switch cfg.Sequence.Backend {
	case "postgres", "redis", "memory":
	default:
		return nil, fmt.Errorf("invalid SEQUENCE_BACKEND: %q", cfg.Sequence.Backend)
	}

	return cfg, nil
}

// DefaultTicketConfig returns the content limits used when nothing overrides them.
func DefaultTicketConfig() TicketConfig {
	return TicketConfig{
		TitleMin:          getEnvAsInt("TICKET_TITLE_MIN", 5),
		TitleMax:          getEnvAsInt("TICKET_TITLE_MAX", 200),
		DescriptionMin:    getEnvAsInt("TICKET_DESCRIPTION_MIN", 10),
		DescriptionMax:    getEnvAsInt("TICKET_DESCRIPTION_MAX", 5000),
		ReopenReasonMin:   getEnvAsInt("TICKET_REOPEN_REASON_MIN", 10),
		InteractionMax:    getEnvAsInt("TICKET_INTERACTION_MAX", 10000),
		MaxAttachments:    getEnvAsInt("TICKET_MAX_ATTACHMENTS", 10),
		MaxAttachmentSize: int64(getEnvAsInt("TICKET_MAX_ATTACHMENT_BYTES", 10<<20)),
	}
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Threshold returns how long a ticket may sit in awaiting_user.
func (a AutoCloseConfig) Threshold() time.Duration {
	return time.Duration(a.ThresholdDays) * 24 * time.Hour
}

// Interval returns the sweep period.
func (a AutoCloseConfig) Interval() time.Duration {
	if a.IntervalSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(a.IntervalSeconds) * time.Second
}

func (r RealtimeConfig) Heartbeat() time.Duration {
	if r.HeartbeatSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.HeartbeatSeconds) * time.Second
}

func (r RealtimeConfig) WriteTimeout() time.Duration {
	if r.WriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.WriteTimeoutSeconds) * time.Second
}

func (r RealtimeConfig) PollSettle() time.Duration {
	if r.PollSettleMillis <= 0 {
		return 0
	}
	return time.Duration(r.PollSettleMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
