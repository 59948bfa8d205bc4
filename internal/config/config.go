package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults applied when a config value is missing or non-positive.
const (
	DefaultMaxPackBytes        int64 = 512 * 1024
	DefaultMaxSourceBytes      int64 = 2 * 1024 * 1024
	DefaultLockTimeoutMS       int64 = 5000
	DefaultExpiredGraceSeconds int64 = 900
	DefaultWorkers                   = 4
)

// DefaultDeny lists source paths that are never excerpted.
var DefaultDeny = []string{".git/*", "*.pem", "*.key", ".env"}

// Config represents the main configuration for ctxpack.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level,omitempty"`
	Store      StoreConfig      `toml:"store"`
	Source     SourceConfig     `toml:"source"`
	Journal    JournalConfig    `toml:"journal"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
	Freshness  FreshnessConfig  `toml:"freshness"`
	Server     ServerConfig     `toml:"server"`
}

// StoreConfig represents configuration for the pack store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type          string `toml:"type"`           // "filesystem" (default) or "memory"
	Root          string `toml:"root,omitempty"` // only used for type=filesystem; packs live in <root>/packs
	MaxPackBytes  int64  `toml:"max_pack_bytes"`
	LockTimeoutMS int64  `toml:"lock_timeout_ms"`
}

// SourceConfig controls how ref excerpts are read from the source tree.
type SourceConfig struct {
	Root           string   `toml:"root"` // "cwd" or "." mean the working directory
	MaxSourceBytes int64    `toml:"max_source_bytes"`
	Deny           []string `toml:"deny"`
	Cache          bool     `toml:"cache"`
	Watch          bool     `toml:"watch"`
}

// JournalConfig represents configuration for the mutation journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type JournalConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "none"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig represents configuration for the archive of removed pack records.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type    string `toml:"type"` // "filesystem", "memory", "s3" or "none"
	Encrypt bool   `toml:"encrypt"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSArchiveRoot string `toml:"fs_archive_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used to seal archived records.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// FreshnessConfig tunes the TTL state machine.
type FreshnessConfig struct {
	ExpiredGraceSeconds int64 `toml:"expired_grace_seconds"`
}

// ServerConfig tunes the request loop.
type ServerConfig struct {
	Workers     int    `toml:"workers"`
	MetricsAddr string `toml:"metrics_addr,omitempty"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Store: StoreConfig{
			Type:          "filesystem",
			Root:          baseDir,
			MaxPackBytes:  DefaultMaxPackBytes,
			LockTimeoutMS: DefaultLockTimeoutMS,
		},
		Source: SourceConfig{
			Root:           "cwd",
			MaxSourceBytes: DefaultMaxSourceBytes,
			Deny:           append([]string{}, DefaultDeny...),
			Cache:          true,
		},
		Journal: JournalConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Archive: ArchiveConfig{Type: "filesystem", FSArchiveRoot: filepath.Join(baseDir, "archive")},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "ctxpack.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "ctxpack.key"),
		},
		Freshness: FreshnessConfig{ExpiredGraceSeconds: DefaultExpiredGraceSeconds},
		Server:    ServerConfig{Workers: DefaultWorkers},
	}
}

// ApplyDefaults fills zero or non-positive numeric settings with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Store.Type == "" {
		c.Store.Type = "filesystem"
	}
	if c.Store.MaxPackBytes <= 0 {
		c.Store.MaxPackBytes = DefaultMaxPackBytes
	}
	if c.Store.LockTimeoutMS <= 0 {
		c.Store.LockTimeoutMS = DefaultLockTimeoutMS
	}
	if c.Source.MaxSourceBytes <= 0 {
		c.Source.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if c.Source.Deny == nil {
		c.Source.Deny = append([]string{}, DefaultDeny...)
	}
	if c.Freshness.ExpiredGraceSeconds <= 0 {
		c.Freshness.ExpiredGraceSeconds = DefaultExpiredGraceSeconds
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = DefaultWorkers
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
