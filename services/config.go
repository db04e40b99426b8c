package services

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelc143/Planarc/database"
)

const defaultJWTSecret = "your-default-secret-key-change-in-production"

// Config holds runtime settings for the board service.
type Config struct {
	Port               string
	JWTSecret          string
	TokenTTL           time.Duration
	DBDriver           string
	DatabaseURL        string
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string
	AuditBuffer        int
	AuditRetries       int
	AuditBackoff       time.Duration
	ShutdownTimeout    time.Duration
}

// Configuration keys. Each maps to the upper-cased environment variable.
const (
	KeyPort               = "port"
	KeyJWTSecret          = "jwt_secret"
	KeyTokenTTL           = "token_ttl"
	KeyDBDriver           = "db_driver"
	KeyDatabaseURL        = "database_url"
	KeyCORSAllowedOrigins = "cors_allowed_origins"
	KeyLogLevel           = "log_level"
	KeyLogFormat          = "log_format"
	KeyAuditBuffer        = "audit_buffer"
	KeyAuditRetries       = "audit_retries"
	KeyAuditBackoff       = "audit_backoff"
	KeyShutdownTimeout    = "shutdown_timeout"
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyJWTSecret, defaultJWTSecret)
	v.SetDefault(KeyTokenTTL, "168h")
	v.SetDefault(KeyDBDriver, database.DialectSQLite)
	v.SetDefault(KeyDatabaseURL, "./planarc.db")
	v.SetDefault(KeyCORSAllowedOrigins, "*")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyAuditBuffer, 256)
	v.SetDefault(KeyAuditRetries, 3)
	v.SetDefault(KeyAuditBackoff, "200ms")
	v.SetDefault(KeyShutdownTimeout, "15s")
}

// LoadConfig resolves settings from defaults, an optional .env file, the
// environment, and any flags already bound to v, in increasing precedence.
func LoadConfig(v *viper.Viper, envFile string) (*Config, error) {
	SetDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:               v.GetString(KeyPort),
		JWTSecret:          v.GetString(KeyJWTSecret),
		TokenTTL:           v.GetDuration(KeyTokenTTL),
		DBDriver:           v.GetString(KeyDBDriver),
		DatabaseURL:        v.GetString(KeyDatabaseURL),
		CORSAllowedOrigins: splitList(v.GetString(KeyCORSAllowedOrigins)),
		LogLevel:           v.GetString(KeyLogLevel),
		LogFormat:          v.GetString(KeyLogFormat),
		AuditBuffer:        v.GetInt(KeyAuditBuffer),
		AuditRetries:       v.GetInt(KeyAuditRetries),
		AuditBackoff:       v.GetDuration(KeyAuditBackoff),
		ShutdownTimeout:    v.GetDuration(KeyShutdownTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port must be set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret must be set"))
	}
	if _, err := database.ParseDialect(c.DBDriver); err != nil {
		errs = append(errs, err)
	}
	if c.AuditBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audit buffer must be positive, got %d", c.AuditBuffer))
	}
	if c.AuditRetries < 0 {
		errs = append(errs, fmt.Errorf("audit retries must not be negative, got %d", c.AuditRetries))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// UsesDefaultSecret reports whether the development JWT secret is in use.
func (c *Config) UsesDefaultSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
