package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/codecs"
)

// ValidateCodecsCmd probes which audio encoders the installed ffmpeg
// build actually works with and persists the result for the codec
// cascade.
var ValidateCodecsCmd = &cobra.Command{
	Use:   "validate-codecs",
	Short: "Probe audio encoder availability",
	Long: `Runs a short test encode with every known audio codec against the installed ` +
		`ffmpeg build and records which encoders work. The daemon and the stream ` +
		`command read the recorded results to skip broken encoders in the format cascade.`,
	Run: func(cmd *cobra.Command, _ []string) {
		outputFile, _ := cmd.Flags().GetString("output")
		ffmpegPath, _ := cmd.Flags().GetString("ffmpeg-path")
		quiet, _ := cmd.Flags().GetBool("quiet")

		validator := codecs.NewValidator(ffmpegPath)
		if !quiet {
			validator.SetLogger(stdoutLogger{})
		}

		results, err := validator.Validate(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "validation failed: %v\n", err)
			os.Exit(1)
		}

		if err := codecs.SaveResults(outputFile, results); err != nil {
			fmt.Fprintf(os.Stderr, "cannot write %s: %v\n", outputFile, err)
			os.Exit(1)
		}

		fmt.Printf("%d encoders working, %d failed; results written to %s\n",
			len(results.Working), len(results.Failed), outputFile)
	},
}

// stdoutLogger prints per-codec validation progress.
type stdoutLogger struct{}

func (stdoutLogger) Printf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func init() {
	ValidateCodecsCmd.Flags().StringP("output", "o", "validated_codecs.toml", "Output file for validation results")
	ValidateCodecsCmd.Flags().String("ffmpeg-path", "ffmpeg", "Path to the ffmpeg binary")
	ValidateCodecsCmd.Flags().BoolP("quiet", "q", false, "Suppress per-codec progress output")
}
