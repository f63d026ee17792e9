package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/health"
	"github.com/smazurov/audionode/internal/logging"
)

// DoctorCmd runs the broker health checks once and prints the report.
// Exit code 1 when the verdict is unhealthy, so scripts can gate on it.
var DoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the broker installation and print a health report",
	Run: func(cmd *cobra.Command, _ []string) {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		// Keep module log lines out of the report.
		logging.Initialize(logging.Config{Level: "error", Format: "text"})

		ctx := context.Background()
		supervisor := broker.NewSupervisor(dataDir, events.New())
		if err := supervisor.Initialize(ctx); err != nil {
			// The probe reports the missing installation in its own
			// terms; nothing else to surface here.
			var notFound *broker.NotFoundError
			if !errors.As(err, &notFound) {
				fmt.Fprintf(os.Stderr, "broker detection failed: %v\n", err)
			}
		}
		defer supervisor.Close()

		report := health.NewProber(supervisor, nil).Probe(ctx)
		printReport(report)

		if report.Overall == health.VerdictUnhealthy {
			os.Exit(1)
		}
	},
}

func printReport(r health.Report) {
	fmt.Printf("Overall: %s\n\n", r.Overall)
	printCheck("installation", r.Installation)
	printCheck("process", r.Process)
	printCheck("network", r.Network)
	printCheck("configuration", r.Configuration)
}

func printCheck(name string, c health.Check) {
	fmt.Printf("%s %-14s %s\n", checkGlyph(c.Status), name, c.Message)
	if c.Details != "" {
		fmt.Printf("    %s\n", c.Details)
	}
}

func checkGlyph(s health.CheckStatus) string {
	switch s {
	case health.CheckOK:
		return "✓"
	case health.CheckWarn:
		return "⚠"
	default:
		return "✗"
	}
}

func init() {
	DoctorCmd.Flags().String("data-dir", ".", "Directory holding the broker cache")
}
