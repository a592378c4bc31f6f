package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"livescribe/internal/bootstrap"
	"livescribe/internal/providers/gemini"
	"livescribe/internal/transcript"
)

var (
	fixPrompt string
	fixPlain  bool
)

var fixCmd = &cobra.Command{
	Use:   "fix [text]",
	Short: "Rewrite text with a correction prompt",
	Long: `Sends text to Gemini together with a correction prompt and prints the
result. Changed words are wrapped in [brackets] unless --plain is set.
Without an argument the text is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFix,
}

func init() {
	fixCmd.Flags().StringVarP(&fixPrompt, "prompt", "p", "Fix grammar and punctuation.", "correction prompt")
	fixCmd.Flags().BoolVar(&fixPlain, "plain", false, "print the corrected text without change markers")
	rootCmd.AddCommand(fixCmd)
}

func runFix(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}

	text, err := fixInput(cmd.InOrStdin(), args)
	if err != nil {
		printError("input", err)
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	apiKey, err := bootstrap.GeminiKeys(cfg).FetchKey(ctx)
	if err != nil {
		printError("gemini key", err)
		return err
	}

	client := gemini.NewClient(gemini.Config{
		APIBaseURL: cfg.Gemini.APIBaseURL,
		Model:      cfg.Gemini.Model,
		Timeout:    cfg.Gemini.Timeout(),
	})
	fixed, err := client.Fix(ctx, text, fixPrompt, apiKey)
	if err != nil {
		printError("fix", err)
		return err
	}

	out := cmd.OutOrStdout()
	if fixPlain {
		fmt.Fprintln(out, fixed)
		return nil
	}
	printCorrection(out, transcript.HighlightChanges(text, fixed))
	return nil
}

func fixInput(stdin io.Reader, args []string) (string, error) {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("no text to fix")
	}
	return text, nil
}

func printCorrection(out io.Writer, tokens []transcript.Token) {
	words := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token.Changed {
			words = append(words, "["+token.Text+"]")
			continue
		}
		words = append(words, token.Text)
	}
	fmt.Fprintln(out, strings.Join(words, " "))
}
