package config

// StoreType represents the type of storage provider backing the client.
type StoreType string

const (
	// LevelDBStoreType uses the LevelDB implementation
	LevelDBStoreType StoreType = "leveldb"

	// BoltStoreType uses the single-file bbolt implementation
	BoltStoreType StoreType = "bolt"

	// MemoryStoreType keeps everything in process memory (tests, light use)
	MemoryStoreType StoreType = "memory"
)

// StoreConfig selects and locates the storage provider.
type StoreConfig struct {
	// Type specifies which provider implementation to use
	Type StoreType `json:"type" yaml:"type"`

	// Directory is the database directory or file path (file-based providers)
	Directory string `json:"directory" yaml:"directory"`
}

// Config is the structured backend configuration loaded from YAML.
type Config struct {
	Store StoreConfig `yaml:"store"`
}

// ConfigFile is the top-level YAML document.
type ConfigFile struct {
	Config Config `yaml:"config"`
}
