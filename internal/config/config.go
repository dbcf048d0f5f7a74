// Package config resolves the process's configuration surface (spec §6)
// from environment variables, layered under an optional YAML file.
// Grounded on cmd/relayfile/main.go's intEnv/durationEnv/int64Env helpers
// and its storageProfileDefaultsFromEnv backend-profile switch.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is every field named in spec §6's Configuration Surface.
type Config struct {
	PollIntervalMs            int           `yaml:"pollIntervalMs"`
	RemoteRange               string        `yaml:"remoteRange"`
	LeaseTTLSec               int           `yaml:"leaseTtlSec"`
	LockRetryDelayMs          int           `yaml:"lockRetryDelayMs"`
	LockMaxAttempts           int           `yaml:"lockMaxAttempts"`
	IgnoreMarkTTLSec          int           `yaml:"ignoreMarkTtlSec"`
	SnapshotTTLSec            int           `yaml:"snapshotTtlSec"`
	OutboundDebounceMs        int           `yaml:"outboundDebounceMs"`
	RateLimitInitialBackoffMs int           `yaml:"rateLimitInitialBackoffMs"`
	RateLimitMaxBackoffMs     int           `yaml:"rateLimitMaxBackoffMs"`
	RemoteID                  string        `yaml:"remoteId"`
	RemoteBaseURL             string        `yaml:"remoteBaseUrl"`
	StoreDSN                  string        `yaml:"storeDsn"`
	KVAddress                 string        `yaml:"kvAddress"`
	BackendProfile            string        `yaml:"backendProfile"`
	HTTPAddr                  string        `yaml:"httpAddr"`
	JobQueueFanout            int           `yaml:"jobQueueFanout"`
	IngressEnabled            bool          `yaml:"ingressEnabled"`
}

// PollInterval returns PollIntervalMs as a time.Duration.
func (c Config) PollInterval() time.Duration { return time.Duration(c.PollIntervalMs) * time.Millisecond }

// LeaseTTL returns LeaseTTLSec as a time.Duration.
func (c Config) LeaseTTL() time.Duration { return time.Duration(c.LeaseTTLSec) * time.Second }

// LockRetryDelay returns LockRetryDelayMs as a time.Duration.
func (c Config) LockRetryDelay() time.Duration { return time.Duration(c.LockRetryDelayMs) * time.Millisecond }

// IgnoreMarkTTL returns IgnoreMarkTTLSec as a time.Duration.
func (c Config) IgnoreMarkTTL() time.Duration { return time.Duration(c.IgnoreMarkTTLSec) * time.Second }

// SnapshotTTL returns SnapshotTTLSec as a time.Duration.
func (c Config) SnapshotTTL() time.Duration { return time.Duration(c.SnapshotTTLSec) * time.Second }

// OutboundDebounce returns OutboundDebounceMs as a time.Duration.
func (c Config) OutboundDebounce() time.Duration {
	return time.Duration(c.OutboundDebounceMs) * time.Millisecond
}

// RateLimitInitialBackoff returns RateLimitInitialBackoffMs as a time.Duration.
func (c Config) RateLimitInitialBackoff() time.Duration {
	return time.Duration(c.RateLimitInitialBackoffMs) * time.Millisecond
}

// RateLimitMaxBackoff returns RateLimitMaxBackoffMs as a time.Duration.
func (c Config) RateLimitMaxBackoff() time.Duration {
	return time.Duration(c.RateLimitMaxBackoffMs) * time.Millisecond
}

func defaults() Config {
	return Config{
		PollIntervalMs:            3000,
		RemoteRange:               "Sheet1!A1:Z10000",
		LeaseTTLSec:               5,
		LockRetryDelayMs:          200,
		LockMaxAttempts:           15,
		IgnoreMarkTTLSec:          10,
		SnapshotTTLSec:            0,
		OutboundDebounceMs:        500,
		RateLimitInitialBackoffMs: 5000,
		RateLimitMaxBackoffMs:     60000,
		RemoteID:                  "reconciler",
		KVAddress:                 "memory://",
		BackendProfile:            "memory",
		HTTPAddr:                  ":8080",
		JobQueueFanout:            5,
		IngressEnabled:            false,
	}
}

// Load resolves Config from, in increasing precedence: built-in defaults,
// an optional YAML file at yamlPath (ignored if empty or missing), then
// environment variables (CELLSYNC_*).
func Load(yamlPath string) (Config, error) {
	cfg := defaults()
	if yamlPath != "" {
		if err := loadYAML(yamlPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	applyBackendProfile(&cfg)
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyBackendProfile mirrors storageProfileDefaultsFromEnv's switch: one
// knob picks sane defaults for the KV/store DSNs instead of requiring every
// DSN to be set by hand.
func applyBackendProfile(cfg *Config) {
	profile := strings.ToLower(strings.TrimSpace(envOr("CELLSYNC_BACKEND_PROFILE", cfg.BackendProfile)))
	switch profile {
	case "", "custom":
		return
	case "memory", "inmemory":
		cfg.BackendProfile = "memory"
		cfg.KVAddress = "memory://"
	case "durable-local", "local-durable":
		cfg.BackendProfile = "durable-local"
		if cfg.KVAddress == "" || cfg.KVAddress == "memory://" {
			cfg.KVAddress = "redis://127.0.0.1:6379"
		}
	case "production", "prod":
		cfg.BackendProfile = "production"
	default:
		log.Printf("config: unrecognized CELLSYNC_BACKEND_PROFILE=%q, leaving DSNs unchanged", profile)
	}
}

func applyEnv(cfg *Config) {
	cfg.PollIntervalMs = intEnv("CELLSYNC_POLL_INTERVAL_MS", cfg.PollIntervalMs)
	cfg.RemoteRange = stringEnv("CELLSYNC_REMOTE_RANGE", cfg.RemoteRange)
	cfg.LeaseTTLSec = intEnv("CELLSYNC_LEASE_TTL_SEC", cfg.LeaseTTLSec)
	cfg.LockRetryDelayMs = intEnv("CELLSYNC_LOCK_RETRY_DELAY_MS", cfg.LockRetryDelayMs)
	cfg.LockMaxAttempts = intEnv("CELLSYNC_LOCK_MAX_ATTEMPTS", cfg.LockMaxAttempts)
	cfg.IgnoreMarkTTLSec = intEnv("CELLSYNC_IGNORE_MARK_TTL_SEC", cfg.IgnoreMarkTTLSec)
	cfg.SnapshotTTLSec = intEnv("CELLSYNC_SNAPSHOT_TTL_SEC", cfg.SnapshotTTLSec)
	cfg.OutboundDebounceMs = intEnv("CELLSYNC_OUTBOUND_DEBOUNCE_MS", cfg.OutboundDebounceMs)
	cfg.RateLimitInitialBackoffMs = intEnv("CELLSYNC_RATE_LIMIT_INITIAL_BACKOFF_MS", cfg.RateLimitInitialBackoffMs)
	cfg.RateLimitMaxBackoffMs = intEnv("CELLSYNC_RATE_LIMIT_MAX_BACKOFF_MS", cfg.RateLimitMaxBackoffMs)
	cfg.RemoteID = stringEnv("CELLSYNC_REMOTE_ID", cfg.RemoteID)
	cfg.RemoteBaseURL = stringEnv("CELLSYNC_REMOTE_BASE_URL", cfg.RemoteBaseURL)
	cfg.StoreDSN = stringEnv("CELLSYNC_STORE_DSN", cfg.StoreDSN)
	cfg.KVAddress = stringEnv("CELLSYNC_KV_ADDRESS", cfg.KVAddress)
	cfg.HTTPAddr = stringEnv("CELLSYNC_HTTP_ADDR", cfg.HTTPAddr)
	cfg.JobQueueFanout = intEnv("CELLSYNC_JOB_QUEUE_FANOUT", cfg.JobQueueFanout)
	cfg.IngressEnabled = boolEnv("CELLSYNC_INGRESS_ENABLED", cfg.IngressEnabled)
}

// Validate reports a configuration error (spec §6 exit code 2: invalid
// configuration).
func (c Config) Validate() error {
	if c.PollIntervalMs < 0 {
		return fmt.Errorf("config: pollIntervalMs must be non-negative, got %d", c.PollIntervalMs)
	}
	if c.RemoteRange == "" {
		return fmt.Errorf("config: remoteRange is required")
	}
	if c.BackendProfile != "memory" && c.StoreDSN == "" {
		return fmt.Errorf("config: storeDsn is required for backend profile %q", c.BackendProfile)
	}
	return nil
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func stringEnv(name, fallback string) string { return envOr(name, fallback) }

func intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: invalid %s=%q, using fallback %v", name, raw, fallback)
		return fallback
	}
	return value
}
