package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 256, cfg.AuditBuffer)
	assert.True(t, cfg.UsesDefaultSecret())
}

func TestLoadConfigPrecedence(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PORT=9000\nJWT_SECRET=from-file\nCORS_ALLOWED_ORIGINS=http://a.test, http://b.test\nLOG_FORMAT=json\n",
	), 0o600))
	t.Setenv("PORT", "9100")
	t.Setenv("AUDIT_RETRIES", "5")

	v := viper.New()
	v.Set(KeyLogLevel, "debug")
	cfg, err := LoadConfig(v, envFile)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port, "environment beats .env")
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.AuditRetries)
	assert.False(t, cfg.UsesDefaultSecret())
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("AUDIT_BUFFER", "0")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := LoadConfig(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
	assert.Contains(t, err.Error(), "audit buffer")
	assert.Contains(t, err.Error(), "loud")
}

func TestNewLogger(t *testing.T) {
	buf := &syncBuffer{}
	logger, err := NewLogger("warn", "json", buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger("info", "xml", buf)
	require.Error(t, err)
}
