package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"livescribe/internal/bootstrap"
	"livescribe/internal/domain"
	"livescribe/internal/transcript"
)

var (
	listenOption   string
	listenDiarize  bool
	listenDuration time.Duration
	listenInterim  bool
	listenFix      string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Transcribe the microphone until interrupted",
	Long: `Opens a live transcription session and prints finalized text as it
arrives. Ctrl+C stops the session gracefully; the backend is given a
moment to flush its last results before the full transcript is printed.`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&listenOption, "option", "o", "", "model/language preset key (see 'livescribe options')")
	listenCmd.Flags().BoolVar(&listenDiarize, "diarize", false, "label speakers")
	listenCmd.Flags().DurationVarP(&listenDuration, "duration", "d", 0, "stop after this long (0 = until interrupted)")
	listenCmd.Flags().BoolVar(&listenInterim, "interim", false, "print interim results")
	listenCmd.Flags().StringVar(&listenFix, "fix", "", "rewrite the final transcript with this prompt")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	if listenOption != "" {
		cfg.Session.Option = listenOption
	}
	if cmd.Flags().Changed("diarize") {
		cfg.Session.Diarize = listenDiarize
	}

	out := cmd.OutOrStdout()
	sink := newTerminalSink(out, listenInterim)
	services, err := bootstrap.BuildWithConfig(cfg, sink)
	if err != nil {
		printError("startup", err)
		return err
	}
	defer services.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if listenDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, listenDuration)
		defer cancel()
	}

	if err := services.Controller.LoadKey(ctx); err != nil {
		printError("api key", err)
		return err
	}
	// The signal context only triggers Stop; the session itself must
	// outlive it so the backend can flush its last results.
	if err := services.Controller.Start(cmd.Context()); err != nil {
		printError("start", err)
		return err
	}

	option, diarize := services.Controller.Option()
	fmt.Fprintf(out, "listening (%s%s), press Ctrl+C to stop\n", option.Label, diarizeSuffix(diarize))

	if err := waitForSession(ctx, services.Controller.Status, sink.states); err != nil {
		return err
	}
	_ = services.Controller.Stop()
	waitForIdle(services.Controller.Status, sink.states, cfg.Deepgram.FinishGrace()+time.Second)

	state := services.Controller.Transcript()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "transcript:")
	for _, segment := range transcript.Render(state, diarize).Final {
		if segment.ShowSpeaker && segment.Word.Speaker != nil {
			fmt.Fprintf(out, "\n[Speaker %d]: ", *segment.Word.Speaker)
		}
		fmt.Fprintf(out, "%s ", segment.Word.Text)
	}
	fmt.Fprintln(out)

	if listenFix == "" {
		return nil
	}
	correction, err := services.Corrector.Correct(context.Background(), listenFix)
	if err != nil {
		printError("fix", err)
		return err
	}
	printCorrection(out, correction.Tokens)
	return nil
}

// waitForSession blocks until ctx ends or the session leaves the active
// states on its own, which is reported as an error.
func waitForSession(ctx context.Context, status func() domain.Status, states <-chan domain.Status) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-states:
			current := status()
			if !current.Active {
				return fmt.Errorf("session ended: %s", current.Message)
			}
		}
	}
}

func waitForIdle(status func() domain.Status, states <-chan domain.Status, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for status().Active {
		select {
		case <-states:
		case <-deadline.C:
			return
		}
	}
}

func diarizeSuffix(diarize bool) string {
	if diarize {
		return ", speaker labels"
	}
	return ""
}
