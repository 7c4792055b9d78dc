package library

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := configFromEnv(envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "library.db", cfg.DBPath)
	assert.True(t, cfg.LateFeePerDay.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, DefaultLimits(), cfg.Limits)
}

func TestConfigFromEnv(t *testing.T) {
	cfg, err := configFromEnv(envMap(map[string]string{
		"LIBRARY_DB":               "/tmp/lib.db",
		"LIBRARY_LATE_FEE_PER_DAY": "2.50",
		"LIBRARY_LOG_LEVEL":        "debug",
		"LIBRARY_USERNAME_MIN":     "2",
		"LIBRARY_ISBN_MAX":         "13",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/lib.db", cfg.DBPath)
	assert.Equal(t, "2.5", cfg.LateFeePerDay.String())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 2, cfg.Limits.UsernameMin)
	assert.Equal(t, 13, cfg.Limits.ISBNMax)
}

func TestConfigRejectsBadValues(t *testing.T) {
	bad := []map[string]string{
		{"LIBRARY_LATE_FEE_PER_DAY": "ten"},
		{"LIBRARY_LATE_FEE_PER_DAY": "-1"},
		{"LIBRARY_LOG_LEVEL": "loud"},
		{"LIBRARY_USERNAME_MAX": "x"},
		{"LIBRARY_USERNAME_MIN": "30"},
		{"LIBRARY_PASSWORD_MAX": "100"},
	}
	for _, env := range bad {
		_, err := configFromEnv(envMap(env))
		assert.Error(t, err, "%v", env)
	}
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LIBRARY_LATE_FEE_PER_DAY=0.75\n"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("LIBRARY_DB", filepath.Join(dir, "env.db"))
	// godotenv does not override variables that are already set.
	t.Setenv("LIBRARY_LATE_FEE_PER_DAY", "")
	os.Unsetenv("LIBRARY_LATE_FEE_PER_DAY")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "env.db"), cfg.DBPath)
	assert.Equal(t, "0.75", cfg.LateFeePerDay.String())
}
