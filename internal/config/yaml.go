// SPDX-License-Identifier: MIT
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	ConfigName = "config"
	ConfigType = "yaml"
	EnvPrefix  = "FIREALARM"
)

// FlagKeys maps command line flag names to configuration keys. Only flags
// the user actually set override lower layers.
var FlagKeys = map[string]string{
	"log-level": "log_level",
	"backend":   "audio.backend",
	"device":    "audio.input_device",
	"input":     "audio.input_file",
	"record":    "audio.record_file",
	"strategy":  "capture.strategy",
	"mode":      "detection.mode",
	"threshold": "detection.threshold_db",
	"listen":    "notify.listen_addr",
}

// Load builds the configuration. Layers, lowest precedence first:
//
//  1. Default()
//  2. the YAML file at path, or config.yaml found in "." or the user
//     config directory (UserConfigDir/firealarm) when path is empty
//  3. FIREALARM_* environment variables, e.g. FIREALARM_DETECTION_MODE
//  4. flags from fs that were explicitly set (see FlagKeys)
//
// The result is validated before it is returned.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType(ConfigType)

	base, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("render default config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, AppName))
		}
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range FlagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
