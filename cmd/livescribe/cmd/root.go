// Package cmd implements the livescribe command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"livescribe/internal/config"
	"livescribe/internal/observability/logging"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "livescribe",
	Short: "Live microphone transcription",
	Long: `livescribe streams microphone audio to Deepgram and prints the live
transcript. The final transcript can be rewritten with Gemini.

Commands:
  listen     - transcribe the microphone until interrupted
  fix        - rewrite text with a correction prompt
  options    - list model and language presets
  keyserver  - serve API keys over HTTP`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/livescribe/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// loadConfig resolves configuration and initializes logging for a command.
func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		if err := os.Setenv(config.EnvConfigPath, cfgFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
