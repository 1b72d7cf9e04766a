package config

import (
	"strings"

	"github.com/spf13/viper"
)

// envBindings maps viper keys to the environment variables that override them.
var envBindings = map[string]string{
	"root_path":       "FSV_ROOT_PATH",
	"ignore":          "FSV_IGNORE",
	"data_dir":        "FSV_DATA_DIR",
	"log_dir":         "FSV_LOG_DIR",
	"database.url":    "FSV_DATABASE_URL",
	"database.type":   "FSV_DATABASE_TYPE",
	"database.dsn":    "FSV_DATABASE_DSN",
	"lock.type":       "FSV_LOCK_TYPE",
	"lock.redis_addr": "FSV_REDIS_ADDR",
	"server.addr":     "FSV_SERVER_ADDR",
}

// ApplyEnv overlays FSV_* environment variables onto cfg. Unset variables
// leave the file values untouched.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("FSV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	setString(v, "root_path", &cfg.RootPath)
	setString(v, "data_dir", &cfg.DataDir)
	setString(v, "log_dir", &cfg.LogDir)
	setString(v, "database.url", &cfg.Database.URL)
	setString(v, "database.type", &cfg.Database.Type)
	setString(v, "database.dsn", &cfg.Database.DSN)
	setString(v, "lock.type", &cfg.Lock.Type)
	setString(v, "lock.redis_addr", &cfg.Lock.RedisAddr)
	setString(v, "server.addr", &cfg.Server.Addr)

	if v.IsSet("ignore") {
		cfg.Filesystem.Ignore = splitList(v.GetString("ignore"))
	}
}

// HasEnvRoot reports whether the environment alone names a root path.
func HasEnvRoot() bool {
	v := viper.New()
	_ = v.BindEnv("root_path", envBindings["root_path"])
	return v.GetString("root_path") != ""
}

func setString(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
