// Package config gathers runtime settings from OSUSIM_* environment
// variables.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const envPrefix = "OSUSIM_"

type Config struct {
	LibraryPath string
	SongsDir    string

	Mirror       string
	APIKey       string
	Session      string
	ClientID     int
	ClientSecret string
	UserAgent    string
	Timeout      time.Duration

	// Requests per minute and simultaneous requests against the mirror.
	RateLimit   int
	Concurrency int

	LogLevel  string
	LogFormat string // text or json
}

func Default() *Config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return &Config{
		LibraryPath: filepath.Join(dir, "osusim", "library.db"),
		SongsDir:    "Songs",
		Mirror:      "https://osu.ppy.sh",
		UserAgent:   "osusim/1.0",
		Timeout:     time.Minute,
		RateLimit:   30,
		Concurrency: 2,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load reads configuration from environment variables over Default.
// Unparsable numbers keep their default.
func Load() *Config {
	cfg := Default()

	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	str("LIBRARY", &cfg.LibraryPath)
	str("SONGS", &cfg.SongsDir)
	str("MIRROR", &cfg.Mirror)
	str("API_KEY", &cfg.APIKey)
	str("SESSION", &cfg.Session)
	str("CLIENT_SECRET", &cfg.ClientSecret)
	str("USER_AGENT", &cfg.UserAgent)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	cfg.Mirror = strings.TrimRight(cfg.Mirror, "/")

	if v := os.Getenv(envPrefix + "CLIENT_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.ClientID = id
		}
	}
	if v := os.Getenv(envPrefix + "RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RateLimit = n
		}
	}
	if v := os.Getenv(envPrefix + "CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

// Logger builds a logger writing to w with the configured level and format.
func (c *Config) Logger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return l, nil
}
