package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"livescribe/internal/keys"
	"livescribe/internal/keyserver"
)

var keyserverAddr string

var keyserverCmd = &cobra.Command{
	Use:   "keyserver",
	Short: "Serve API keys over HTTP",
	Long: `Serves the Deepgram and Gemini API keys from the environment or the
config file so clients do not have to embed them.

Endpoints:
  GET /api/deepgram-key
  GET /api/gemini-key
  GET /healthz
  GET /metrics`,
	RunE: runKeyserver,
}

func init() {
	keyserverCmd.Flags().StringVar(&keyserverAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(keyserverCmd)
}

func runKeyserver(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	if keyserverAddr != "" {
		cfg.Server.Addr = keyserverAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := keyserver.New(keyserver.Config{
		Addr:     cfg.Server.Addr,
		Deepgram: keys.EnvSource{Var: "DEEPGRAM_API_KEY", Fallback: cfg.Deepgram.APIKey},
		Gemini:   keys.EnvSource{Var: "GEMINI_API_KEY", Fallback: cfg.Gemini.APIKey},
	})
	if err := server.Run(ctx); err != nil {
		printError("key server", err)
		return err
	}
	return nil
}
