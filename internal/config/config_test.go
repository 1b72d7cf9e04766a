package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("store-abc", "/home/user/.local/share/fsv")
	original.RootPath = "/data/tree"
	original.Database = DatabaseConfig{Type: "postgres", DSN: "postgres://fsv@db/fsv"}
	original.Lock = LockConfig{Type: "redis", RedisAddr: "localhost:6379", RedisDB: 2, Key: "fsv:lock", TTL: "1m"}
	original.Archive.Enabled = true
	original.Archive.Vault = VaultConfig{Type: "s3", Name: "offsite", S3Bucket: "bucket", S3Prefix: "fsv", S3Region: "eu-west-1"}
	original.Filesystem.Ignore = []string{"*.log", ".git"}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("store-1", "/data/fsv")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"StoreID", cfg.StoreID, "store-1"},
		{"DataDir", cfg.DataDir, "/data/fsv"},
		{"LogDir", cfg.LogDir, "/data/fsv/log"},
		{"Database.Type", cfg.Database.Type, "sqlite"},
		{"Database.DataDir", cfg.Database.DataDir, "/data/fsv/db"},
		{"Lock.Type", cfg.Lock.Type, "file"},
		{"Schedule.Cron", cfg.Schedule.Cron, "@every 15m"},
		{"Server.Addr", cfg.Server.Addr, "127.0.0.1:8734"},
		{"Archive.Vault.FSVaultRoot", cfg.Archive.Vault.FSVaultRoot, "/data/fsv/vault"},
		{"Archive.Encryption.PublicKeyPath", cfg.Archive.Encryption.PublicKeyPath, "/data/fsv/keys/fsv.pub"},
		{"Archive.Encryption.PrivateKeyPath", cfg.Archive.Encryption.PrivateKeyPath, "/data/fsv/keys/fsv.key"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fsv.toml")
		cfg := NewConfig("s1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fsv.toml")
		cfg := NewConfig("s1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fsv.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.StoreID != "read-test" {
			t.Errorf("StoreID = %q, want %q", got.StoreID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/fsv.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"url without type", func(c *Config) { c.Database = DatabaseConfig{URL: "sqlite::memory:"} }, false},
		{"missing database type", func(c *Config) { c.Database = DatabaseConfig{} }, true},
		{"unknown database type", func(c *Config) { c.Database.Type = "oracle" }, true},
		{"unknown lock type", func(c *Config) { c.Lock.Type = "zookeeper" }, true},
		{"redis lock without addr", func(c *Config) { c.Lock = LockConfig{Type: "redis"} }, true},
		{"unknown vault when archiving", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Vault.Type = "ftp"
		}, true},
		{"unknown vault when not archiving", func(c *Config) { c.Archive.Vault.Type = "ftp" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("s1", "/data/fsv")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
