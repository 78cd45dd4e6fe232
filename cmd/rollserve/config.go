package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the set of values a rollserve deployment can tune, loaded
// from a YAML file (if --config points at one), environment variables
// prefixed ROLLSERVE_, and command-line flags, in that ascending order
// of precedence — the layered-source idiom viper exists to provide,
// following the pack's own cobra+viper CLI entrypoints (e.g.
// docker-compose's ecs/cmd/main.go root command) even though none of
// them reach for viper's file/env layering directly; rollserve is the
// one component in this module whose whole job is "be a config-driven
// launcher," so it is the natural home for that dependency.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	CORSOrigin  string        `mapstructure:"cors_origin"`
	EnableCORS  bool          `mapstructure:"enable_cors"`
	EnableOPTIONS bool        `mapstructure:"enable_options"`
	RequestID   bool          `mapstructure:"request_id"`
	LogLevel    string        `mapstructure:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Addr:        ":8000",
		IdleTimeout: 10 * time.Second,
		CORSOrigin:  "*",
		LogLevel:    "info",
	}
}

func loadConfig(v *viper.Viper, configFile string) (Config, error) {
	cfg := defaultConfig()
	v.SetEnvPrefix("ROLLSERVE")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}
