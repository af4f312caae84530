package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override values from the config file.
const (
	EnvListen   = "MIRRORCAL_LISTEN"
	EnvTimezone = "MIRRORCAL_TIMEZONE"
	EnvLogLevel = "LOG_LEVEL"
	EnvFetcher  = "MIRRORCAL_FETCHER_URL"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are not an error; existing variables are not
// overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overrides config values with the MIRRORCAL_* environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvFetcher); v != "" {
		c.FetcherURL = v
	}
}
