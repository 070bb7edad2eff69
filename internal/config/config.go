// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the server and CLI.
type Config struct {
	App       AppConfig
	Payload   PayloadConfig
	QR        QRConfig
	Scan      ScanConfig
	RateLimit RateLimitConfig
}

// AppConfig contains listen addresses and logging settings.
type AppConfig struct {
	HTTPAddr  string
	GRPCAddr  string
	LogLevel  string
	LogFormat string
}

// PayloadConfig selects how payload text is assembled.
type PayloadConfig struct {
	Policy    string
	Delimiter string
	// DigitsOnly defaults to true for the human policy and false for the
	// machine policy, whose codes carry letters and the delimiter.
	DigitsOnly  bool
	DefaultTime string

	digitsOnlySet bool
}

// DefaultDigitsOnly reports whether policy filters codes to digits when
// PAYLOAD_DIGITS_ONLY is not set.
func DefaultDigitsOnly(policy string) bool {
	return policy != "machine"
}

// WithPolicy switches to policy. Digit filtering follows the new policy
// unless PAYLOAD_DIGITS_ONLY was set.
func (p PayloadConfig) WithPolicy(policy string) PayloadConfig {
	p.Policy = strings.ToLower(strings.TrimSpace(policy))
	if !p.digitsOnlySet {
		p.DigitsOnly = DefaultDigitsOnly(p.Policy)
	}
	return p
}

// Validate checks the policy, the delimiter and their combination with digit
// filtering.
func (p PayloadConfig) Validate() error {
	var errs []error
	switch p.Policy {
	case "human":
	case "machine":
		if p.DigitsOnly {
			errs = append(errs, errors.New("PAYLOAD_DIGITS_ONLY would strip the delimiter from machine codes"))
		}
	default:
		errs = append(errs, fmt.Errorf("PAYLOAD_POLICY must be human or machine, got %q", p.Policy))
	}
	if p.Delimiter == "" {
		errs = append(errs, errors.New("PAYLOAD_DELIMITER must not be empty"))
	}
	return errors.Join(errs...)
}

// QRConfig fixes the visual parameters of rendered codes.
type QRConfig struct {
	Size       int
	Margin     int
	Foreground string
	Background string
	Level      string
}

// ScanConfig bounds camera scan sessions.
type ScanConfig struct {
	MaxFrameBytes int64
	// MaxFramePixels caps width*height of a frame before it is decoded.
	MaxFramePixels int
	Timeout        time.Duration
}

// RateLimitConfig holds the per-IP limiter settings for the API.
type RateLimitConfig struct {
	RPS   int
	Burst int
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var errs []error
	policy := strings.ToLower(getString("PAYLOAD_POLICY", "human"))
	_, digitsOnlySet := lookupNonEmpty("PAYLOAD_DIGITS_ONLY")
	cfg := &Config{
		App: AppConfig{
			HTTPAddr:  getString("HTTP_ADDR", ":8080"),
			GRPCAddr:  getString("GRPC_ADDR", ":9000"),
			LogLevel:  getString("LOG_LEVEL", "info"),
			LogFormat: strings.ToLower(getString("LOG_FORMAT", "text")),
		},
		Payload: PayloadConfig{
			Policy:        policy,
			Delimiter:     getRaw("PAYLOAD_DELIMITER", "|"),
			DigitsOnly:    getBool("PAYLOAD_DIGITS_ONLY", DefaultDigitsOnly(policy), &errs),
			DefaultTime:   getString("DEFAULT_TIME", "14:30"),
			digitsOnlySet: digitsOnlySet,
		},
		QR: QRConfig{
			Size:       getInt("QR_SIZE", 300, &errs),
			Margin:     getInt("QR_MARGIN", 2, &errs),
			Foreground: getString("QR_FOREGROUND", "#1a1a1a"),
			Background: getString("QR_BACKGROUND", "#ffffff"),
			Level:      strings.ToUpper(getString("QR_LEVEL", "M")),
		},
		Scan: ScanConfig{
			MaxFrameBytes:  int64(getInt("SCAN_MAX_FRAME_BYTES", 4<<20, &errs)),
			MaxFramePixels: getInt("SCAN_MAX_FRAME_PIXELS", 4096*4096, &errs),
			Timeout:        getDuration("SCAN_TIMEOUT", 2*time.Minute, &errs),
		},
		RateLimit: RateLimitConfig{
			RPS:   getInt("RATE_LIMIT_RPS", 10, &errs),
			Burst: getInt("RATE_LIMIT_BURST", 20, &errs),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be caught while parsing.
func (c *Config) Validate() error {
	var errs []error
	switch c.App.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.App.LogFormat))
	}
	if err := c.Payload.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.QR.Level {
	case "L", "M", "Q", "H":
	default:
		errs = append(errs, fmt.Errorf("QR_LEVEL must be one of L, M, Q, H, got %q", c.QR.Level))
	}
	if c.QR.Size <= 0 {
		errs = append(errs, fmt.Errorf("QR_SIZE must be positive, got %d", c.QR.Size))
	}
	if c.QR.Margin < 0 {
		errs = append(errs, fmt.Errorf("QR_MARGIN must not be negative, got %d", c.QR.Margin))
	}
	if c.Scan.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_MAX_FRAME_BYTES must be positive, got %d", c.Scan.MaxFrameBytes))
	}
	if c.Scan.MaxFramePixels <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_MAX_FRAME_PIXELS must be positive, got %d", c.Scan.MaxFramePixels))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

func getRaw(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func lookupNonEmpty(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}
