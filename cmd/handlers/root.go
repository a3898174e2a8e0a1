/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"

	"veille/internal/config"
	"veille/internal/logger"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "veille",
		Short: "Veille aggregates French news feeds and surfaces trending events.",
		Long: `Veille ingests press feeds, deduplicates and embeds articles, groups
them into topical clusters and raises an event when a cluster starts
trending. The pieces run as separate processes sharing PostgreSQL and
Redis:

  veille serve    HTTP API with live event streaming
  veille worker   queue consumers for ingestion, clustering and summaries
  veille beat     periodic dispatcher feeding the queue

Administrative commands (migrate, sources, runs, search) manage the
schema, the feed catalogue, cluster runs and the search index.`,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.veille.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewWorkerCmd())
	rootCmd.AddCommand(NewBeatCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewSourcesCmd())
	rootCmd.AddCommand(NewRunsCmd())
	rootCmd.AddCommand(NewSearchCmd())
	rootCmd.AddCommand(NewWatchCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Load configuration using the centralized config module
	_, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := config.Get().App.LogLevel
	if config.IsDebugMode() {
		logLevel = "debug"
	}
	logger.SetLevel(logLevel)

	// Show which config file is being used (if any)
	if config.Get().App.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", config.Get().App.ConfigFile)
	}
}
