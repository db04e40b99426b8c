package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelc143/Planarc/services"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"token", "--user-id", "7", "--email", "dev@example.com",
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
	})
	require.NoError(t, rootCmd.Execute())

	id, err := services.NewAuthService("cli-secret", time.Hour).VerifyJWT(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.UserID)
	assert.Equal(t, "dev@example.com", id.Email)
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	envFile := filepath.Join(t.TempDir(), "none.env")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"migrate", "--database-url", dbPath, "--env-file", envFile})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "applied 1 migration(s)")

	out.Reset()
	rootCmd.SetArgs([]string{"migrate", "--database-url", dbPath, "--env-file", envFile})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "schema is up to date")
}
