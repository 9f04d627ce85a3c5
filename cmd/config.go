package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"procodus.dev/tempmon/pkg/logger"
)

// legacyEnv maps config keys to the environment names used by existing
// deployments, checked after the TEMPMON_ prefixed names.
var legacyEnv = map[string]string{
	"serve.db.user":     "POSTGRES_USER",
	"serve.db.password": "POSTGRES_PASSWORD",
	"serve.db.name":     "POSTGRES_DB",
	"serve.http.port":   "API_PORT",
}

// InitConfig initializes Viper configuration.
// It reads .env, config files (config.yaml) and environment variables.
func InitConfig(cfgFile string) error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory and /etc/tempmon/
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/tempmon/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("TEMPMON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	for key, env := range legacyEnv {
		if err := viper.BindEnv(key, "TEMPMON_"+envKey(key), env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			// Config file not found; rely on env vars and defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	return logger.New(&logger.Config{
		Output: os.Stdout,
		Level:  logger.ParseLevel(viper.GetString("log.level")),
		Format: logger.ParseFormat(viper.GetString("log.format")),
	})
}
