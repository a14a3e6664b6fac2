package backend

import (
	"context"

	"carteira/internal/ledger"
)

// CleanupFunc releases whatever the backend holds open.
type CleanupFunc func() error

// Result is a created backend plus its lifecycle hooks. Ping is nil when the
// backend has nothing external to probe.
type Result struct {
	Backend ledger.Backend
	Cleanup CleanupFunc
	Ping    func(ctx context.Context) error
}

// Close runs Cleanup if there is one.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Ready reports whether the backend answers.
func (r *Result) Ready(ctx context.Context) error {
	if r.Ping == nil {
		return nil
	}
	return r.Ping(ctx)
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// Memory backend specific, seed_categories.txt is read from here
	DataDirectory string
}

// Type represents the kind of backend
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
