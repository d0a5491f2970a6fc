package history

import (
	"fmt"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

const defaultMemoryRecords = 10000

// Open returns the store selected by cfg.Backend.
func Open(cfg config.HistoryConfig) (domain.HistoryStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewMemoryStore(defaultMemoryRecords), nil
	case "none", "":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
