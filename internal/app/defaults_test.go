package app

import (
	"os"
	"path/filepath"
	"testing"

	"fsv-go/internal/config"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("FSV_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("FSV_HOME", "/custom/fsv")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/fsv" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/fsv")
		}
		if defaults["log_dir"] != "/custom/fsv/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/fsv/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("FSV_CONFIG_PATH", "")
		t.Setenv("FSV_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "fsv.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "fsv")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads file and applies env", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fsv.toml")
		cfg := config.NewConfig("s1", dir)
		cfg.RootPath = "/from/file"
		if err := config.Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		t.Setenv("FSV_ROOT_PATH", "/from/env")

		got, err := LoadConfig(path, dir)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if got.StoreID != "s1" || got.RootPath != "/from/env" {
			t.Errorf("LoadConfig() = store %q root %q", got.StoreID, got.RootPath)
		}
	})

	t.Run("missing file with env root", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("FSV_ROOT_PATH", "/from/env")
		t.Setenv("FSV_DATABASE_URL", "sqlite::memory:")

		got, err := LoadConfig(filepath.Join(dir, "absent.toml"), dir)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if got.StoreID == "" || got.DataDir != dir || got.Database.URL != "sqlite::memory:" {
			t.Errorf("LoadConfig() = %+v", got)
		}
	})

	t.Run("missing file without env root", func(t *testing.T) {
		t.Setenv("FSV_ROOT_PATH", "")
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"), t.TempDir()); err == nil {
			t.Error("LoadConfig() expected error")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fsv.toml")
		cfg := config.NewConfig("s1", dir)
		cfg.Lock.Type = "zookeeper"
		if err := config.Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		t.Setenv("FSV_LOCK_TYPE", "")
		if _, err := LoadConfig(path, dir); err == nil {
			t.Error("LoadConfig() expected validation error")
		}
	})
}
