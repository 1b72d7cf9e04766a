package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for fsv.
type Config struct {
	StoreID    string           `toml:"store_id"`
	RootPath   string           `toml:"root_path"`
	DataDir    string           `toml:"data_dir"`
	LogDir     string           `toml:"log_dir"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Database   DatabaseConfig   `toml:"database"`
	Lock       LockConfig       `toml:"lock"`
	Log        LogConfig        `toml:"log"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Server     ServerConfig     `toml:"server"`
	Archive    ArchiveConfig    `toml:"archive"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// DatabaseConfig represents configuration for the version store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory", "postgres" or "mysql"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DSN     string `toml:"dsn,omitempty"`      // only used for type=postgres and type=mysql

	// URL overrides Type when set. It is normally supplied by FSV_DATABASE_URL.
	URL string `toml:"url,omitempty"`
}

// LockConfig selects how concurrent runs are excluded.
type LockConfig struct {
	Type          string `toml:"type"` // "file", "redis" or "none"
	RedisAddr     string `toml:"redis_addr,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db,omitempty"`
	Key           string `toml:"key,omitempty"`
	TTL           string `toml:"ttl,omitempty"` // Go duration, redis only
}

// LogConfig controls rotation of the log file.
type LogConfig struct {
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
	MaxAgeDays int `toml:"max_age_days"`
}

// ScheduleConfig drives the schedule and watch commands.
type ScheduleConfig struct {
	Cron     string `toml:"cron"`
	Debounce string `toml:"debounce"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// ArchiveConfig configures uploading store snapshots after each run.
type ArchiveConfig struct {
	Enabled    bool             `toml:"enabled"`
	Encrypt    bool             `toml:"encrypt"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// Static credentials. When empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else.
func NewConfig(storeID, baseDir string) *Config {
	return &Config{
		StoreID: storeID,
		DataDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Filesystem: FilesystemConfig{
			Ignore: []string{"venv", ".idea", "__pycache__"},
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Lock: LockConfig{
			Type: "file",
			Key:  "fsv:run:" + storeID,
			TTL:  "10m",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Schedule: ScheduleConfig{
			Cron:     "@every 15m",
			Debounce: "2s",
		},
		Server: ServerConfig{Addr: "127.0.0.1:8734"},
		Archive: ArchiveConfig{
			Vault: VaultConfig{
				Type:        "filesystem",
				Name:        "local",
				FSVaultRoot: filepath.Join(baseDir, "vault"),
			},
			Encryption: EncryptionConfig{
				Type:           "age",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "fsv.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "fsv.key"),
			},
		},
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

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
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

// Validate checks that the tagged unions name known variants.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "memory", "postgres", "mysql":
	case "":
		if c.Database.URL == "" {
			return fmt.Errorf("database.type is required")
		}
	default:
		return fmt.Errorf("database.type: unknown type %q", c.Database.Type)
	}
	switch c.Lock.Type {
	case "", "file", "redis", "none":
	default:
		return fmt.Errorf("lock.type: unknown type %q", c.Lock.Type)
	}
	if c.Lock.Type == "redis" && c.Lock.RedisAddr == "" {
		return fmt.Errorf("lock.redis_addr is required for redis locks")
	}
	if c.Archive.Enabled {
		switch c.Archive.Vault.Type {
		case "memory", "filesystem", "s3":
		default:
			return fmt.Errorf("archive.vault.type: unknown type %q", c.Archive.Vault.Type)
		}
	}
	return nil
}
