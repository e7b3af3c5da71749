// Package storage persists the slice of session state that survives a
// restart. Only the token is whitelisted; everything else is rebuilt from the
// backend after rehydration.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// DefaultNamespace is the key every backend stores the snapshot under
const DefaultNamespace = "persist:auth"

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

var errEmptyNamespace = errors.New("namespace cannot be empty")

// Snapshot is the persisted session slice
type Snapshot struct {
	Token string `json:"token"`
}

// Persister stores one Snapshot under a namespace
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns nil when nothing has been saved
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
	Close() error
}

// Options select and configure a backend
type Options struct {
	Backend   string
	Namespace string
	// Dir holds FilePersister files
	Dir string
	// RedisURL is a redis:// URL for RedisPersister
	RedisURL string
	// RedisTTL expires the stored snapshot; zero keeps it forever
	RedisTTL   time.Duration
	SQLitePath string
}

// Open builds the Persister named by opts.Backend
func Open(ctx context.Context, opts Options) (Persister, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory:
		return NewMemoryPersister(ns)
	case BackendFile, "":
		return NewFilePersister(opts.Dir, ns)
	case BackendRedis:
		return NewRedisPersister(ctx, opts.RedisURL, ns, opts.RedisTTL)
	case BackendSQLite:
		return NewSQLitePersister(ctx, opts.SQLitePath, ns)
	default:
		return nil, fmt.Errorf("unknown persistence backend: %q", opts.Backend)
	}
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
