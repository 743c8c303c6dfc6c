// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd provides the subsync CLI commands.
package cmd

import (
	"os"

	"github.com/LeeDigitalWorks/subsync/pkg/env"
	"github.com/LeeDigitalWorks/subsync/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "subsync",
	Short: "subsync - billing/panel reconciliation and traffic settlement",
	Long: `subsync keeps a billing database and a proxy-panel user directory consistent.

The sync command settles accrued panel traffic into the billing store and then
reconciles the panel directory against billing eligibility; it is designed to
be run periodically by an external scheduler. The serve command runs the
subscriber-facing subscription-link endpoint.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if env.IsLocal() && os.Getenv("LOG_LEVEL") == "" {
			logger.SetLevel(zerolog.DebugLevel)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config_dir", ".", "Directory for configuration files")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
