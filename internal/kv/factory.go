package kv

import (
	"fmt"
	"strings"
)

// BuildFromDSN constructs a Store from a scheme-prefixed DSN, mirroring the
// teacher's BuildStateBackendFromDSN dispatch in the pack's relayfile
// lineage: "memory://" selects the in-process fake, "redis://<addr>"
// selects a real Redis backend.
func BuildFromDSN(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == "memory://":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "redis://"):
		addr := strings.TrimPrefix(dsn, "redis://")
		if addr == "" {
			return nil, fmt.Errorf("kv: redis DSN missing address")
		}
		return NewRedis(RedisOptions{Addr: addr}), nil
	default:
		return nil, fmt.Errorf("kv: unsupported DSN scheme in %q", dsn)
	}
}
