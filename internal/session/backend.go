package session

import (
	"context"
	"fmt"
	"log/slog"
)

// Storage backend names accepted by OpenBackend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// OpenBackend returns the backend named kind. path is only used by sqlite.
func OpenBackend(ctx context.Context, kind, path string, logger *slog.Logger) (Backend, error) {
	switch kind {
	case "", BackendMemory:
		return NewMemoryBackend(), nil
	case BackendSQLite:
		return OpenSQLite(ctx, path, logger)
	default:
		return nil, fmt.Errorf("unsupported session storage %q (supported: memory, sqlite)", kind)
	}
}
