// Package config provides unified configuration for the Mosaico daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for a mosaicod instance.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Catalog configuration
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Ingest configuration
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`

	// Retrieve configuration
	Retrieve RetrieveConfig `json:"retrieve" yaml:"retrieve"`

	// Client pool configuration
	Client ClientConfig `json:"client" yaml:"client"`
}

// CatalogConfig holds catalog store configuration.
type CatalogConfig struct {
	// Path is the catalog database file; defaults to <data_dir>/catalog.db
	Path string `json:"path" yaml:"path"`
}

// IngestConfig holds chunk writer configuration.
type IngestConfig struct {
	// MaxChunkRecords is the flush threshold for record-counted formats
	MaxChunkRecords int `json:"max_chunk_records" yaml:"max_chunk_records"`

	// MaxChunkBytes is the flush threshold for byte-counted formats (1–256 MiB)
	MaxChunkBytes int `json:"max_chunk_bytes" yaml:"max_chunk_bytes"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	// Prefetch is the number of chunks fetched ahead of the stream cursor
	Prefetch int `json:"prefetch" yaml:"prefetch"`

	// FetchConcurrency is the number of parallel chunk downloads
	FetchConcurrency int `json:"fetch_concurrency" yaml:"fetch_concurrency"`

	// CacheSizeMB enables the local chunk cache when positive
	CacheSizeMB int `json:"cache_size_mb" yaml:"cache_size_mb"`

	// CacheDir is the chunk cache directory; defaults to <data_dir>/cache
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`
}

// ClientConfig holds client resource pool configuration.
type ClientConfig struct {
	// DataConns is the data-plane connection pool size (0 = GOMAXPROCS)
	DataConns int `json:"data_conns" yaml:"data_conns"`

	// Lanes is the processing-lane count (0 = DataConns)
	Lanes int `json:"lanes" yaml:"lanes"`

	// RetryAttempts bounds retries of transient faults
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts"`

	// RetryBackoff is the base backoff between retries
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
}

// StorageConfig holds chunk storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// PartSizeMB is the multipart upload part size in megabytes
	PartSizeMB int `json:"part_size_mb" yaml:"part_size_mb"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/mosaico",
		Ingest: IngestConfig{
			MaxChunkRecords: 4096,
			MaxChunkBytes:   8 * 1024 * 1024,
		},
		Retrieve: RetrieveConfig{
			Prefetch:         4,
			FetchConcurrency: 8,
		},
		Client: ClientConfig{
			RetryAttempts: 3,
			RetryBackoff:  100 * time.Millisecond,
		},
		Storage: StorageConfig{
			Type: "local",
			S3: S3Config{
				PartSizeMB: 5,
			},
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/mosaico"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "chunks")
	}
	if c.Retrieve.CacheDir == "" {
		c.Retrieve.CacheDir = filepath.Join(c.DataDir, "cache")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Ingest.MaxChunkRecords < 1 {
		return fmt.Errorf("ingest.max_chunk_records must be positive, got %d", c.Ingest.MaxChunkRecords)
	}
	if c.Ingest.MaxChunkBytes < 1<<20 || c.Ingest.MaxChunkBytes > 256<<20 {
		return fmt.Errorf("ingest.max_chunk_bytes must be between 1 MiB and 256 MiB, got %d", c.Ingest.MaxChunkBytes)
	}

	if c.Retrieve.Prefetch < 1 {
		return fmt.Errorf("retrieve.prefetch must be positive, got %d", c.Retrieve.Prefetch)
	}
	if c.Retrieve.FetchConcurrency < 1 {
		return fmt.Errorf("retrieve.fetch_concurrency must be positive, got %d", c.Retrieve.FetchConcurrency)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the MOSAICO_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MOSAICO_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MOSAICO_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	// Ingest configuration
	if v := os.Getenv("MOSAICO_INGEST_MAX_CHUNK_RECORDS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.MaxChunkRecords)
	}
	if v := os.Getenv("MOSAICO_INGEST_MAX_CHUNK_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.MaxChunkBytes)
	}

	// Retrieve configuration
	if v := os.Getenv("MOSAICO_RETRIEVE_PREFETCH"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Retrieve.Prefetch)
	}
	if v := os.Getenv("MOSAICO_RETRIEVE_FETCH_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Retrieve.FetchConcurrency)
	}
	if v := os.Getenv("MOSAICO_RETRIEVE_CACHE_SIZE_MB"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Retrieve.CacheSizeMB)
	}
	if v := os.Getenv("MOSAICO_RETRIEVE_CACHE_DIR"); v != "" {
		cfg.Retrieve.CacheDir = v
	}

	// Client configuration
	if v := os.Getenv("MOSAICO_CLIENT_DATA_CONNS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Client.DataConns)
	}
	if v := os.Getenv("MOSAICO_CLIENT_RETRY_ATTEMPTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Client.RetryAttempts)
	}
	if v := os.Getenv("MOSAICO_CLIENT_RETRY_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.RetryBackoff = d
		}
	}

	// Storage configuration
	if v := os.Getenv("MOSAICO_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("MOSAICO_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("MOSAICO_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("MOSAICO_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("MOSAICO_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
