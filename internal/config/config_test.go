package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/home/user/.local/share/context-pack",
		LogDir:   "/home/user/.local/share/context-pack/log",
		LogLevel: "debug",
		Store:    StoreConfig{Type: "filesystem", Root: "/srv/packs", MaxPackBytes: 4096, LockTimeoutMS: 250},
		Source: SourceConfig{
			Root:           "/src/repo",
			MaxSourceBytes: 1024,
			Deny:           []string{"*.pem", "secrets/*"},
			Cache:          true,
		},
		Journal: JournalConfig{Type: "sqlite", DataDir: "/home/user/.local/share/context-pack/db"},
		Archive: ArchiveConfig{
			Type:       "s3",
			Encrypt:    true,
			S3Bucket:   "packs",
			S3Prefix:   "archive",
			S3Region:   "eu-west-1",
			S3Endpoint: "http://localhost:9000",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/keys/ctxpack.pub",
			PrivateKeyPath: "/keys/ctxpack.key",
		},
		Freshness: FreshnessConfig{ExpiredGraceSeconds: 60},
		Server:    ServerConfig{Workers: 8, MetricsAddr: "127.0.0.1:9464"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "debug")
	}
	if got.Store.Root != "/srv/packs" || got.Store.MaxPackBytes != 4096 || got.Store.LockTimeoutMS != 250 {
		t.Errorf("Store = %+v", got.Store)
	}
	if len(got.Source.Deny) != 2 || got.Source.Deny[1] != "secrets/*" {
		t.Errorf("Source.Deny = %v", got.Source.Deny)
	}
	if got.Archive.Type != "s3" || !got.Archive.Encrypt || got.Archive.S3Endpoint != "http://localhost:9000" {
		t.Errorf("Archive = %+v", got.Archive)
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	if got.Freshness.ExpiredGraceSeconds != 60 {
		t.Errorf("Freshness.ExpiredGraceSeconds = %d, want 60", got.Freshness.ExpiredGraceSeconds)
	}
	if got.Server.Workers != 8 || got.Server.MetricsAddr != "127.0.0.1:9464" {
		t.Errorf("Server = %+v", got.Server)
	}
}

func TestManager_Read_TaggedSections(t *testing.T) {
	input := `
base_dir = "/data"

[store]
type = "memory"

[archive]
type = "none"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Store.Type = %q, want memory", cfg.Store.Type)
	}
	if cfg.Archive.Type != "none" {
		t.Errorf("Archive.Type = %q, want none", cfg.Archive.Type)
	}

	cfg.ApplyDefaults()
	if cfg.Store.MaxPackBytes != DefaultMaxPackBytes {
		t.Errorf("Store.MaxPackBytes = %d, want %d", cfg.Store.MaxPackBytes, DefaultMaxPackBytes)
	}
	if cfg.Freshness.ExpiredGraceSeconds != DefaultExpiredGraceSeconds {
		t.Errorf("ExpiredGraceSeconds = %d, want %d", cfg.Freshness.ExpiredGraceSeconds, DefaultExpiredGraceSeconds)
	}
	if len(cfg.Source.Deny) != len(DefaultDeny) {
		t.Errorf("Source.Deny = %v, want defaults", cfg.Source.Deny)
	}
	if cfg.Server.Workers != DefaultWorkers {
		t.Errorf("Server.Workers = %d, want %d", cfg.Server.Workers, DefaultWorkers)
	}
}

func TestManager_Read_Invalid(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("store = [")); err == nil {
		t.Fatal("Read() expected error for malformed toml")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/ctxpack")

	if cfg.BaseDir != "/data/ctxpack" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/ctxpack")
	}
	if cfg.LogDir != "/data/ctxpack/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/ctxpack/log")
	}
	if cfg.Store.Root != "/data/ctxpack" {
		t.Errorf("Store.Root = %q, want %q", cfg.Store.Root, "/data/ctxpack")
	}
	if cfg.Journal.DataDir != "/data/ctxpack/db" {
		t.Errorf("Journal.DataDir = %q, want %q", cfg.Journal.DataDir, "/data/ctxpack/db")
	}
	if cfg.Encryption.PublicKeyPath != "/data/ctxpack/keys/ctxpack.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if cfg.Encryption.PrivateKeyPath != "/data/ctxpack/keys/ctxpack.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q", cfg.Encryption.PrivateKeyPath)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "context-pack.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "context-pack.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "context-pack.toml")
		cfg := NewConfig(dir)
		cfg.Journal = JournalConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Journal.Type != "memory" {
			t.Errorf("Journal.Type = %q, want %q", got.Journal.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/context-pack.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
