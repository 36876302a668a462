package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable with STORE_BACKEND
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	StoreBackend string
	Database     DatabaseConfig
	Redis        RedisConfig
	Server       ServerConfig
	Session      SessionConfig
	Defense      DefenseConfig
	Admin        AdminConfig
	Alert        AlertConfig
	Cleanup      CleanupConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

type ServerConfig struct {
	Port                   string
	Env                    string
	LogLevel               string
	AllowedOrigins         []string
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	IdleTimeout            time.Duration
	LoginRequestsPerMinute int
}

type SessionConfig struct {
	Secret         string
	Timeout        time.Duration
	CookieSecure   bool
	CookieSameSite string
}

// DefenseConfig holds the lockout policy: 5 failures, 15 minute lock,
// 24 hour block unless overridden.
type DefenseConfig struct {
	MaxAttempts         int
	LockoutDuration     time.Duration
	BlockDuration       time.Duration
	FailClosed          bool
	LogPageAccess       bool
	RecentAttemptWindow time.Duration
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

type AdminConfig struct {
	Email        string
	PasswordHash string
	TOTPSecret   string
	TOTPIssuer   string
}

type AlertConfig struct {
	SESRegion   string
	FromAddress string
	ToAddress   string
}

// Enabled reports whether escalation alerts should be sent.
func (c AlertConfig) Enabled() bool {
	return c.SESRegion != "" && c.FromAddress != "" && c.ToAddress != ""
}

type CleanupConfig struct {
	Interval             time.Duration
	SecurityLogRetention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	env := getEnv("ENV", "development")
	backend := strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres))

	cfg := &Config{
		StoreBackend: backend,
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatekeeper"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "gatekeeper:"),
		},
		Server: ServerConfig{
			Port:                   getEnv("PORT", "8080"),
			Env:                    env,
			LogLevel:               getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:         parseAllowedOrigins(env),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:            getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			LoginRequestsPerMinute: getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		},
		Session: SessionConfig{
			Secret:         sessionSecret,
			Timeout:        getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
			CookieSecure:   getEnvAsBool("COOKIE_SECURE", env == "production"),
			CookieSameSite: getEnv("COOKIE_SAMESITE", "strict"),
		},
		Defense: DefenseConfig{
			MaxAttempts:         getEnvAsInt("DEFENSE_MAX_ATTEMPTS", 5),
			LockoutDuration:     getEnvAsDuration("DEFENSE_LOCKOUT_DURATION", 15*time.Minute),
			BlockDuration:       getEnvAsDuration("DEFENSE_BLOCK_DURATION", 24*time.Hour),
			FailClosed:          getEnvAsBool("DEFENSE_FAIL_CLOSED", false),
			LogPageAccess:       getEnvAsBool("DEFENSE_LOG_PAGE_ACCESS", true),
			RecentAttemptWindow: getEnvAsDuration("DEFENSE_RECENT_ATTEMPT_WINDOW", 1*time.Hour),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_BASE_DELAY_MS", 200),
			TimingDelayRandomMs: getEnvAsInt("TIMING_RANDOM_DELAY_MS", 100),
		},
		Admin: AdminConfig{
			Email:        strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			TOTPSecret:   getEnv("ADMIN_TOTP_SECRET", ""),
			TOTPIssuer:   getEnv("ADMIN_TOTP_ISSUER", "Gatekeeper"),
		},
		Alert: AlertConfig{
			SESRegion:   getEnv("ALERT_SES_REGION", ""),
			FromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
			ToAddress:   getEnv("ALERT_TO_ADDRESS", ""),
		},
		Cleanup: CleanupConfig{
			Interval:             getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			SecurityLogRetention: getEnvAsDuration("SECURITY_LOG_RETENTION", 0),
		},
	}

	switch backend {
	case BackendPostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required")
		}
	case BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be one of %s, %s, %s (got %q)",
			BackendPostgres, BackendRedis, BackendMemory, backend)
	}

	if err := validateSessionSecret(sessionSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Defense.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (d DefenseConfig) validate() error {
	if d.MaxAttempts < 1 {
		return fmt.Errorf("DEFENSE_MAX_ATTEMPTS must be at least 1 (got %d)", d.MaxAttempts)
	}
	if d.LockoutDuration <= 0 {
		return fmt.Errorf("DEFENSE_LOCKOUT_DURATION must be positive")
	}
	if d.BlockDuration <= 0 {
		return fmt.Errorf("DEFENSE_BLOCK_DURATION must be positive")
	}
	return nil
}

// validateSessionSecret enforces minimum strength for the session signing key
func validateSessionSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
