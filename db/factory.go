package db

import (
	"fmt"

	"chaincore/config"
)

// NewProvider creates a database provider from the store configuration.
func NewProvider(cfg *config.StoreConfig) (DatabaseProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch cfg.Type {
	case config.LevelDBStoreType:
		return NewLevelDBProvider(cfg.Directory)

	case config.BoltStoreType:
		return NewBoltProvider(cfg.Directory)

	case config.MemoryStoreType:
		return NewMemoryProvider(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
