package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// StorageDriver selects the ledger backend: memory, sqlite or mysql.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"churrascontrol.db"`
	MySQLDSN      string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/churrascontrol?parseTime=true"`

	// RedisAddr enables the cross-process change signal when set.
	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"churrascontrol:changed"`

	// AdminToken grants mutate capability to requests that present it.
	AdminToken string `env:"ADMIN_TOKEN" envDefault:"churrasco-admin"`

	// RetainZeroItems keeps items visible after a remove drains them to
	// zero instead of ending their identity.
	RetainZeroItems bool `env:"RETAIN_ZERO_ITEMS" envDefault:"false"`

	MaxMutation  int  `env:"MAX_MUTATION" envDefault:"1000"`
	HistoryLimit int  `env:"HISTORY_LIMIT" envDefault:"20"`
	SeedOnEmpty  bool `env:"SEED_ON_EMPTY" envDefault:"true"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.StorageDriver {
	case "memory", "sqlite", "mysql":
	default:
		return Config{}, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	return cfg, nil
}
