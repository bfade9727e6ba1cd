package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

type LunaConfig struct {
	Pool struct {
		Size   int    `mapstructure:"size"`
		Policy string `mapstructure:"policy"`
	} `mapstructure:"pool"`
	Storage struct {
		Dir      string `mapstructure:"dir"`
		Base     string `mapstructure:"base"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`
	Wal struct {
		Enabled bool   `mapstructure:"enabled"`
		Dir     string `mapstructure:"dir"`
	} `mapstructure:"wal"`
}

func LoadConfig(path string) (*LunaConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("pool.size", 128)
	v.SetDefault("pool.policy", "lru")
	v.SetDefault("storage.dir", "./data/base")
	v.SetDefault("storage.base", "segment")
	v.SetDefault("storage.page_size", 4096)
	v.SetDefault("wal.enabled", true)
	v.SetDefault("wal.dir", "./data/wal")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg LunaConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
