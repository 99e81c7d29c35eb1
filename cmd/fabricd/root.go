package main

import (
	"fmt"
	"os"

	"github.com/agentfabric/coordinator/pkg/config"
	"github.com/agentfabric/coordinator/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	contentDir string
	debug      bool

	activeConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fabricd",
	Short: "Coordination runtime for parallel AI coding agents",
	Long: `fabricd drives the Agent Coordination Fabric: it admits and tracks
agents, arbitrates scope locks, sequences cross-scope syncs, resolves
dependency conflicts, and dispatches tasks and workflows across a pool
of concurrently running agents.`,
	Version: "0.1.0-dev",
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default checks ~/.fabricd.yaml and friends)")
	rootCmd.PersistentFlags().StringVar(&contentDir, "content-dir", "", "scope-content directory to watch for external edits")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug output")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
}

func initConfig() {
	cfg := config.DefaultConfig()

	if cfgFile != "" {
		loaded, err := loadConfigFile(cfgFile)
		if err != nil {
			if debug {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", cfgFile, err)
			}
		} else {
			cfg = loaded
		}
	} else {
		for _, path := range config.GetConfigPaths() {
			if loaded, err := loadConfigFile(path); err == nil {
				cfg = loaded
				break
			}
		}
	}

	cfg.ApplyEnvironmentOverrides()

	if debug {
		cfg.Logging.Level = "debug"
	}
	if level, _ := rootCmd.PersistentFlags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid config: %v\n", err)
	}

	globalLogger, err := logger.New(cfg.ToLoggerConfig())
	if err != nil {
		globalLogger = logger.NewDefault()
	}
	logger.SetGlobalLogger(globalLogger)

	activeConfig = cfg
}
