// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LeeDigitalWorks/zapmedia/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "zapmedia",
	Short: "ZapMedia - object upload and media processing pipeline",
	Long: `ZapMedia handles direct-to-storage uploads with presigned URLs,
per-tenant quotas, content-addressed deduplication, asynchronous media
processing workers and lifecycle-driven retention.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
