package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"livescribe/internal/domain"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List model and language presets",
	Run: func(cmd *cobra.Command, args []string) {
		printOptions(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(optionsCmd)
}

func printOptions(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMODEL\tLANGUAGE\tLABEL")
	for _, option := range domain.TranscriptionOptions() {
		marker := ""
		if option.Key == domain.DefaultOptionKey {
			marker = " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s%s\n", option.Key, option.Model, option.Language, option.Label, marker)
	}
	_ = w.Flush()
}
