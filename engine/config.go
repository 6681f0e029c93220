package engine

import "github.com/kelseyhightower/envconfig"

// Config configures a StorageEngine instance, loaded from environment
// variables prefixed KESTREL_, e.g. KESTREL_DATA_FILE, KESTREL_POOL_SIZE.
type Config struct {
	DataFile string `split_words:"true" default:"kestrel.db"`

	PoolSize int `split_words:"true" default:"64"`
	LRUKSize int `envconfig:"lru_k" default:"2"`

	// The Hash* fields are loaded but not read when an index is built:
	// catalog.CreateIndex uses fixed sizes (header and directory max
	// depth 9, bucket max size 32) regardless of these values.
	HashHeaderMaxDepth    uint32 `split_words:"true" default:"9"`
	HashDirectoryMaxDepth uint32 `split_words:"true" default:"9"`
	HashBucketMaxSize     uint32 `split_words:"true" default:"64"`

	GCIntervalSeconds int `split_words:"true" default:"30"`
}

// LoadConfig reads Config from the environment, applying defaults for
// anything unset.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("kestrel", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
