package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ormasoftchile/loadout/pkg/kernel/engine"
)

// configPath is set by --config.
var configPath string

// cliConfig holds settings that may come from flags, LOADOUT_* environment
// variables or .loadout.yaml, in that order of precedence.
type cliConfig struct {
	LogLevel string `mapstructure:"log_level"`
	Layer    string `mapstructure:"layer"`
	Trace    string `mapstructure:"trace"`
	MaxDepth int    `mapstructure:"max_depth"`
}

// flagKeys maps config keys to the persistent flags that override them.
var flagKeys = map[string]string{
	"log_level": "log-level",
	"layer":     "layer",
	"trace":     "trace",
	"max_depth": "max-depth",
}

func loadConfig(cmd *cobra.Command) (*cliConfig, error) {
	v := viper.New()
	v.SetDefault("log_level", "warn")
	v.SetDefault("layer", "")
	v.SetDefault("trace", "")
	v.SetDefault("max_depth", engine.DefaultMaxDepth)

	v.SetEnvPrefix("LOADOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, name := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind --%s: %w", name, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".loadout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c cliConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = engine.DefaultMaxDepth
	}
	return &c, nil
}
