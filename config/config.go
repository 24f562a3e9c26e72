// Package config holds the tool version and the environment defaults the CLI flags start from.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Abhaythakor/fingerprintweb/detect"
)

const (
	ToolName = "fingerprintweb"
	Version  = "1.0.0"
)

// Config holds defaults read from FPW_* environment variables. Command-line flags override it.
type Config struct {
	Timeout      time.Duration // per-hop timeout
	Concurrency  int
	MaxRedirects int
	UserAgent    string
	Format       string
	CluesPath    string // "" uses the embedded rules
	CluesURL     string
	Rate         float64 // requests per second, 0 = unlimited
	MetricsAddr  string
	Insecure     bool
	NoColor      bool
	LogLevel     string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Timeout:      GetDuration("FPW_TIMEOUT", detect.DefaultTimeout),
		Concurrency:  GetInt("FPW_CONCURRENCY", detect.DefaultConcurrency),
		MaxRedirects: GetInt("FPW_MAX_REDIRECTS", detect.DefaultMaxRedirects),
		UserAgent:    GetOr("FPW_USER_AGENT", detect.DefaultUserAgent),
		Format:       GetOr("FPW_FORMAT", "json"),
		CluesPath:    GetOr("FPW_CLUES", ""),
		CluesURL:     GetOr("FPW_CLUES_URL", detect.DefaultCluesURL),
		Rate:         GetFloat("FPW_RATE", 0),
		MetricsAddr:  GetOr("FPW_METRICS_ADDR", ""),
		Insecure:     GetBool("FPW_INSECURE", false),
		NoColor:      GetBool("NO_COLOR", false),
		LogLevel:     GetOr("FPW_LOG_LEVEL", "info"),
	}
}

// GetOr returns the value of key, or def when it is unset or blank.
func GetOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetBool accepts 1/t/true/y/yes and 0/f/false/n/no; anything else yields def.
func GetBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}

// GetInt returns def when key is unset or not an integer.
func GetInt(key string, def int) int {
	v, err := strconv.Atoi(GetOr(key, ""))
	if err != nil {
		return def
	}
	return v
}

// GetFloat returns def when key is unset or not a number.
func GetFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(GetOr(key, ""), 64)
	if err != nil {
		return def
	}
	return v
}

// GetDuration parses a Go duration ("1500ms", "5s") or a bare number of seconds.
func GetDuration(key string, def time.Duration) time.Duration {
	raw := GetOr(key, "")
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

// GetList splits a comma-separated value, dropping blanks.
func GetList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
