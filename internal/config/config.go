package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service. It is built once at
// start-up and handed to constructors by value.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	LLM          LLMConfig
	Pipeline     PipelineConfig
	Monitoring   MonitoringConfig
	Community    CommunityConfig
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

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines operator authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	OperatorEmail         string
	OperatorPasswordHash  string
	AdminEmail            string
	AdminPasswordHash     string
}

// NotificationConfig holds citizen notification endpoints. Email is sent only
// when SMTPHost is set.
type NotificationConfig struct {
	EmailFrom         string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	WebhookURL        string
	RedisChannel      string
	TimeoutSeconds    int
	UseLLMForMessages bool
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider          string
	APIKey            string
	Model             string
	MaxTokens         int64
	Temperature       float64
	TimeoutSeconds    int
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
	SchemaCacheSize   int
}

// PipelineConfig tunes the complaint pipeline.
type PipelineConfig struct {
	StageTimeoutSeconds int
	CatalogPath         string
	ScheduleDeadlines   bool
}

// MonitoringConfig tunes the SLA monitoring cycle.
type MonitoringConfig struct {
	Enabled               bool
	Schedule              string
	Workers               int
	ScanLimit             int
	StaleDays             int
	FollowUpDays          int
	UseLLMForEscalation   bool
	UseLLMForFollowUp     bool
	ThresholdHighHours    float64
	ThresholdMediumHours  float64
	ThresholdLowHours     float64
	UrgentThresholdFactor float64
	DeadlineQueue         string
	DeadlineConcurrency   int
}

// CommunityConfig sets the upvote counts that raise urgency.
type CommunityConfig struct {
	HighVotes   int
	UrgentVotes int
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
			Name:                  getEnv("APP_NAME", "grievance-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 90),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			OperatorEmail:         getEnv("AUTH_OPERATOR_EMAIL", "operator@example.com"),
			OperatorPasswordHash:  os.Getenv("AUTH_OPERATOR_PASSWORD_HASH"),
			AdminEmail:            getEnv("AUTH_ADMIN_EMAIL", "admin@example.com"),
			AdminPasswordHash:     os.Getenv("AUTH_ADMIN_PASSWORD_HASH"),
		},
		Notification: NotificationConfig{
			EmailFrom:         getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMTPHost:          getEnv("SMTP_HOST", ""),
			SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:      os.Getenv("SMTP_USERNAME"),
			SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
			WebhookURL:        getEnv("NOTIFY_WEBHOOK_URL", ""),
			RedisChannel:      getEnv("NOTIFY_REDIS_CHANNEL", "grievance:notifications"),
			TimeoutSeconds:    getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 5),
			UseLLMForMessages: getEnvAsBool("NOTIFY_LLM_MESSAGES", true),
		},
		LLM: LLMConfig{
			Provider:          getEnv("LLM_PROVIDER", "anthropic"),
			APIKey:            os.Getenv("ANTHROPIC_API_KEY"),
			Model:             getEnv("LLM_MODEL", "claude-3-5-haiku-latest"),
			MaxTokens:         int64(getEnvAsInt("LLM_MAX_TOKENS", 1024)),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			TimeoutSeconds:    getEnvAsInt("LLM_TIMEOUT_SECONDS", 30),
			MaxRetries:        getEnvAsInt("LLM_MAX_RETRIES", 2),
			RequestsPerSecond: getEnvAsFloat("LLM_REQUESTS_PER_SECOND", 5),
			Burst:             getEnvAsInt("LLM_BURST", 5),
			SchemaCacheSize:   getEnvAsInt("LLM_SCHEMA_CACHE_SIZE", 64),
		},
		Pipeline: PipelineConfig{
			StageTimeoutSeconds: getEnvAsInt("PIPELINE_STAGE_TIMEOUT_SECONDS", 20),
			CatalogPath:         os.Getenv("CATALOG_PATH"),
			ScheduleDeadlines:   getEnvAsBool("PIPELINE_SCHEDULE_DEADLINES", true),
		},
		Monitoring: MonitoringConfig{
			Enabled:               getEnvAsBool("MONITOR_ENABLED", true),
			Schedule:              getEnv("MONITOR_SCHEDULE", "*/15 * * * *"),
			Workers:               getEnvAsInt("MONITOR_WORKERS", 8),
			ScanLimit:             getEnvAsInt("MONITOR_SCAN_LIMIT", 500),
			StaleDays:             getEnvAsInt("MONITOR_STALE_DAYS", 7),
			FollowUpDays:          getEnvAsInt("MONITOR_FOLLOWUP_DAYS", 3),
			UseLLMForEscalation:   getEnvAsBool("MONITOR_LLM_ESCALATION", true),
			UseLLMForFollowUp:     getEnvAsBool("MONITOR_LLM_FOLLOWUP", true),
			ThresholdHighHours:    getEnvAsFloat("ESCALATION_THRESHOLD_HIGH_HOURS", 24),
			ThresholdMediumHours:  getEnvAsFloat("ESCALATION_THRESHOLD_MEDIUM_HOURS", 48),
			ThresholdLowHours:     getEnvAsFloat("ESCALATION_THRESHOLD_LOW_HOURS", 72),
			UrgentThresholdFactor: getEnvAsFloat("ESCALATION_URGENT_FACTOR", 0.5),
			DeadlineQueue:         getEnv("MONITOR_DEADLINE_QUEUE", "sla"),
			DeadlineConcurrency:   getEnvAsInt("MONITOR_DEADLINE_CONCURRENCY", 4),
		},
		Community: CommunityConfig{
			HighVotes:   getEnvAsInt("COMMUNITY_HIGH_VOTES", 10),
			UrgentVotes: getEnvAsInt("COMMUNITY_URGENT_VOTES", 25),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Monitoring.Workers <= 0 {
		errs = append(errs, errors.New("MONITOR_WORKERS must be positive"))
	}
	if c.Monitoring.ThresholdHighHours <= 0 || c.Monitoring.ThresholdMediumHours <= 0 || c.Monitoring.ThresholdLowHours <= 0 {
		errs = append(errs, errors.New("escalation thresholds must be positive"))
	}
	if c.Monitoring.UrgentThresholdFactor <= 0 || c.Monitoring.UrgentThresholdFactor > 1 {
		errs = append(errs, errors.New("ESCALATION_URGENT_FACTOR must be in (0,1]"))
	}
	if c.Monitoring.FollowUpDays <= 0 || c.Monitoring.StaleDays <= 0 {
		errs = append(errs, errors.New("monitoring day windows must be positive"))
	}
	if c.Community.HighVotes <= 0 || c.Community.UrgentVotes < c.Community.HighVotes {
		errs = append(errs, errors.New("COMMUNITY_URGENT_VOTES must be >= COMMUNITY_HIGH_VOTES > 0"))
	}
	if c.Notification.SMTPHost != "" && (c.Notification.SMTPPort <= 0 || c.Notification.EmailFrom == "") {
		errs = append(errs, errors.New("SMTP_PORT and NOTIFY_EMAIL_FROM are required when SMTP_HOST is set"))
	}
	if c.LLM.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("LLM_REQUESTS_PER_SECOND must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// StageTimeout bounds a single pipeline stage.
func (p PipelineConfig) StageTimeout() time.Duration {
	return seconds(p.StageTimeoutSeconds)
}

// Timeout bounds a single completion request.
func (l LLMConfig) Timeout() time.Duration {
	return seconds(l.TimeoutSeconds)
}

// Enabled reports whether a completion provider is configured.
func (l LLMConfig) Enabled() bool {
	return l.Provider != "none" && l.APIKey != ""
}

// Timeout bounds a single outbound notification.
func (n NotificationConfig) Timeout() time.Duration {
	return seconds(n.TimeoutSeconds)
}

// StaleAfter is the in-progress age considered stale.
func (m MonitoringConfig) StaleAfter() time.Duration {
	return time.Duration(m.StaleDays) * 24 * time.Hour
}

// FollowUpAfter is the in-progress age that triggers a follow-up.
func (m MonitoringConfig) FollowUpAfter() time.Duration {
	return time.Duration(m.FollowUpDays) * 24 * time.Hour
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
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
