package cmd

import (
	"fmt"
	"os"

	"github.com/kozaktomas/face-gate/internal/analyzer"
	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Suggest thresholds from the decision log",
	Long: `Read the telemetry CSV and suggest new match thresholds.

The suggestion is advisory and never changes the running configuration.
With --format yaml the output can be reviewed and used as THRESHOLDS_FILE.

Rows whose true_label is set are used to count false accepts and false
rejects; label impostor queries with "unknown".`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("log", "", "Decision log CSV (defaults to LOG_CSV_PATH)")
	analyzeCmd.Flags().String("format", "text", "Output format: text or yaml")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	format := mustGetString(cmd, "format")
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unknown format %q (use text or yaml)", format)
	}

	path := mustGetString(cmd, "log")
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		path = cfg.Telemetry.CSVPath
	}

	entries, skipped, err := analyzer.LoadFile(path)
	if err != nil {
		return err
	}
	report, err := analyzer.Analyze(entries, skipped)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", path, err)
	}

	if format == "yaml" {
		return report.WriteYAML(os.Stdout)
	}
	return report.WriteText(os.Stdout)
}
