package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"contraguard/internal/config"
)

const (
	appName = "contraguard"
	version = "v1.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Contrarian decision and risk management core",
		Version: version,
		Long: `contraguard runs contrarian decision cycles over cryptocurrency market
data: regime classification, multi-factor confirmation, risk checks and
position lifecycle management, all behind a fail-safe trading switch.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "config/contraguard.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(
		newCycleCmd(),
		newServeCmd(),
		newStatusCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newEmergencyCmd(),
		newResumeEmergencyCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config named by the persistent flag and configures
// global logging before any component starts.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		cfg.Log.Level = override
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

// setupLogging routes zerolog to a console writer on a TTY, plain JSON
// otherwise, and tees into a rotating file when one is configured.
func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if term.IsTerminal(int(os.Stderr.Fd())) {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		writers = append(writers, os.Stderr)
	}

	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(writers...))
}
