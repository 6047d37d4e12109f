package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"chaincore/logx"
)

// LoadConfig reads and parses the backend YAML config file.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		logx.Error("CONFIG", "Failed to open config file: ", err)
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		logx.Error("CONFIG", "Failed to decode YAML: ", err)
		return nil, err
	}
	if err := cfgFile.Config.Store.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}
	return &cfgFile.Config, nil
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	if sc.Type == "" {
		return fmt.Errorf("store type cannot be empty")
	}

	switch sc.Type {
	case MemoryStoreType:
		return nil
	case LevelDBStoreType, BoltStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty for store type %s", sc.Type)
		}
		return nil
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}

// TuningConfig carries operational knobs with safe defaults. Loaded from an
// .ini file when operators need to override them.
type TuningConfig struct {
	// Commit retry policy for transient storage faults.
	CommitRetries      int `ini:"commit_retries"`
	CommitBackoffMs    int `ini:"commit_backoff_ms"`
	CommitBackoffMaxMs int `ini:"commit_backoff_max_ms"`

	// Per-subscriber notification queue capacity.
	NotifyQueueSize int `ini:"notify_queue_size"`

	// Trie node cache entries.
	TrieCacheSize int `ini:"trie_cache_size"`
}

// DefaultTuning returns the tuning knobs used when no .ini override is given.
func DefaultTuning() *TuningConfig {
	return &TuningConfig{
		CommitRetries:      5,
		CommitBackoffMs:    10,
		CommitBackoffMaxMs: 1000,
		NotifyQueueSize:    64,
		TrieCacheSize:      4096,
	}
}

// LoadTuning reads tuning knobs from the [backend] section of an .ini file.
// Missing keys keep their defaults.
func LoadTuning(path string) (*TuningConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	tuning := DefaultTuning()
	if err := cfg.Section("backend").MapTo(tuning); err != nil {
		return nil, err
	}
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	return tuning, nil
}

// Validate rejects nonsensical tuning values.
func (tc *TuningConfig) Validate() error {
	if tc.CommitRetries < 0 {
		return fmt.Errorf("commit_retries cannot be negative")
	}
	if tc.CommitBackoffMs <= 0 || tc.CommitBackoffMaxMs < tc.CommitBackoffMs {
		return fmt.Errorf("invalid commit backoff bounds: base=%d max=%d", tc.CommitBackoffMs, tc.CommitBackoffMaxMs)
	}
	if tc.NotifyQueueSize <= 0 {
		return fmt.Errorf("notify_queue_size must be positive")
	}
	if tc.TrieCacheSize <= 0 {
		return fmt.Errorf("trie_cache_size must be positive")
	}
	return nil
}

// CommitBackoff returns the base and max backoff as durations.
func (tc *TuningConfig) CommitBackoff() (base, max time.Duration) {
	return time.Duration(tc.CommitBackoffMs) * time.Millisecond,
		time.Duration(tc.CommitBackoffMaxMs) * time.Millisecond
}
