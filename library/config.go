package library

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config collects the runtime settings of a library.
type Config struct {
	DBPath        string
	LateFeePerDay decimal.Decimal
	LogLevel      slog.Level
	Limits        Limits
}

// DefaultConfig is used for every setting the environment leaves out.
func DefaultConfig() Config {
	return Config{
		DBPath:        "library.db",
		LateFeePerDay: decimal.RequireFromString("10.00"),
		LogLevel:      slog.LevelInfo,
		Limits:        DefaultLimits(),
	}
}

// LoadConfig reads .env from the working directory if there is one, then the
// LIBRARY_* environment variables.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	if v := getenv("LIBRARY_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("LIBRARY_LATE_FEE_PER_DAY"); v != "" {
		fee, err := decimal.NewFromString(v)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRARY_LATE_FEE_PER_DAY: %w", err)
		}
		if fee.IsNegative() {
			return Config{}, fmt.Errorf("LIBRARY_LATE_FEE_PER_DAY: must not be negative, got %s", v)
		}
		cfg.LateFeePerDay = fee
	}
	if v := getenv("LIBRARY_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return Config{}, fmt.Errorf("LIBRARY_LOG_LEVEL: %w", err)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"LIBRARY_USERNAME_MIN", &cfg.Limits.UsernameMin},
		{"LIBRARY_USERNAME_MAX", &cfg.Limits.UsernameMax},
		{"LIBRARY_PASSWORD_MIN", &cfg.Limits.PasswordMin},
		{"LIBRARY_PASSWORD_MAX", &cfg.Limits.PasswordMax},
		{"LIBRARY_EMAIL_MAX", &cfg.Limits.EmailMax},
		{"LIBRARY_TITLE_MAX", &cfg.Limits.TitleMax},
		{"LIBRARY_BARCODE_MAX", &cfg.Limits.BarcodeMax},
		{"LIBRARY_ISBN_MAX", &cfg.Limits.ISBNMax},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}
	if err := cfg.Limits.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
