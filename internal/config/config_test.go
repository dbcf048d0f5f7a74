package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CELLSYNC_POLL_INTERVAL_MS", "CELLSYNC_REMOTE_RANGE", "CELLSYNC_BACKEND_PROFILE",
		"CELLSYNC_STORE_DSN", "CELLSYNC_KV_ADDRESS", "CELLSYNC_JOB_QUEUE_FANOUT",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollIntervalMs != 3000 {
		t.Fatalf("PollIntervalMs = %d, want 3000", cfg.PollIntervalMs)
	}
	if cfg.BackendProfile != "memory" || cfg.KVAddress != "memory://" {
		t.Fatalf("backend profile defaults = %+v", cfg)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("CELLSYNC_POLL_INTERVAL_MS", "7000")
	os.Setenv("CELLSYNC_JOB_QUEUE_FANOUT", "9")
	defer clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollIntervalMs != 7000 {
		t.Fatalf("PollIntervalMs = %d, want 7000", cfg.PollIntervalMs)
	}
	if cfg.JobQueueFanout != 9 {
		t.Fatalf("JobQueueFanout = %d, want 9", cfg.JobQueueFanout)
	}
}

func TestLoadProductionProfileRequiresStoreDSN(t *testing.T) {
	clearEnv(t)
	os.Setenv("CELLSYNC_BACKEND_PROFILE", "production")
	defer clearEnv(t)

	if _, err := Load(""); err == nil {
		t.Fatal("expected Load to fail without storeDsn in production profile")
	}
}

func TestInvalidIntEnvFallsBack(t *testing.T) {
	clearEnv(t)
	os.Setenv("CELLSYNC_POLL_INTERVAL_MS", "not-a-number")
	defer clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollIntervalMs != 3000 {
		t.Fatalf("PollIntervalMs = %d, want fallback 3000", cfg.PollIntervalMs)
	}
}
