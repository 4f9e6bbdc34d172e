// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
)

// ConfigurationFileDirectory is set by the root command's --config_dir flag.
var ConfigurationFileDirectory = "."

// ResolvePath expands a leading ~ to the user's home directory.
func ResolvePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// LoadConfiguration merges a named config file into viper. Environment
// variables (dots replaced by underscores) override file values.
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.zapmedia")
	viper.AddConfigPath("/usr/local/etc/zapmedia/")
	viper.AddConfigPath("/etc/zapmedia/")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if required {
				logger.Fatal().Msgf("Config file not found: %s", configFileName)
			}
			logger.Info().Msgf("Config file not found: %s", configFileName)
			return false
		}

		if required {
			logger.Fatal().Msgf("Failed to load required config file: %s", configFileName)
		}
		return false
	}
	logger.Info().Msgf("Loaded config file: %s", viper.ConfigFileUsed())

	return true
}
