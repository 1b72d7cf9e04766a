package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"fsv-go/internal/config"
)

// NewStoreFromConfig creates a Store based on the database config type.
// A URL, when set, takes precedence over Type.
func NewStoreFromConfig(cfg config.DatabaseConfig, storeID string) (*Store, error) {
	if cfg.URL != "" {
		dialect, dsn, err := ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		return NewStore(dialect, dsn)
	}

	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewStore(SQLite, SQLiteDSN(filepath.Join(cfg.DataDir, storeID+".db")))
	case "memory":
		return NewStore(SQLite, SQLiteDSN(":memory:"))
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres database")
		}
		return NewStore(Postgres, cfg.DSN)
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for mysql database")
		}
		dsn, err := MySQLDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewStore(MySQL, dsn)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// SQLiteDSN builds a go-sqlite3 DSN for path with foreign keys enforced.
// ":memory:" yields a private in-memory database.
func SQLiteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on"
	}
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
}

// MySQLDSN normalizes a go-sql-driver DSN with the options the store needs:
// UTC time parsing, multi-statement migrations and matched-row counts.
func MySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// ParseURL maps a database URL to a dialect and driver DSN. Supported
// schemes are sqlite://, postgres://, postgresql:// and mysql://.
func ParseURL(raw string) (Dialect, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing database url: %w", err)
	}

	switch u.Scheme {
	case "sqlite", "sqlite3":
		path := u.Host + u.Path
		if u.Opaque != "" {
			path = u.Opaque
		}
		if path == "" {
			return "", "", fmt.Errorf("database url %q has no path", raw)
		}
		return SQLite, SQLiteDSN(path), nil
	case "postgres", "postgresql":
		return Postgres, raw, nil
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		dsn, err := MySQLDSN(cfg.FormatDSN())
		if err != nil {
			return "", "", err
		}
		return MySQL, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
}
