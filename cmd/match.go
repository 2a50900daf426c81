package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/recognition"
	"github.com/kozaktomas/face-gate/internal/telemetry"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Run one match decision against the enrolled profiles",
	Long: `Run the quality gate and the match decision for a single image.

The decision is appended to the telemetry CSV like any API match, so labeled
runs (--label) feed the analyze command.

Examples:
  # Who is this?
  face-gate match face.jpg

  # Verify an asserted identity
  face-gate match face.jpg --user alice

  # Record ground truth for threshold tuning
  face-gate match face.jpg --label alice
  face-gate match stranger.jpg --label unknown`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("user", "", "Asserted identity; fails unless the face matches this user")
	matchCmd.Flags().String("label", "", "Ground-truth label stored with the decision (\"unknown\" for impostors)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
	matchCmd.Flags().Bool("no-log", false, "Do not append the decision to the telemetry CSV")
}

// MatchOutput is the CLI form of a match. Distances are strings so +Inf
// and NaN survive JSON encoding.
type MatchOutput struct {
	Accepted   bool     `json:"accepted"`
	UserID     string   `json:"user_id,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
	Error      string   `json:"error,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	BestUserID string   `json:"best_uid,omitempty"`
	BestD      string   `json:"best_d,omitempty"`
	RunnerUpD  string   `json:"runner_up_d,omitempty"`
	Margin     string   `json:"margin,omitempty"`
	PerFaceMin string   `json:"per_face_min,omitempty"`
	PerFaceTop []string `json:"per_face_top3,omitempty"`
	Snapshot   uint64   `json:"snapshot_version,omitempty"`
	QueryID    string   `json:"query_id,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	if len(data) > constants.MaxImageBytes {
		return fmt.Errorf("image is %d bytes, the limit is %d", len(data), constants.MaxImageBytes)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.MatchTimeout)
	defer cancel()

	p, err := newPipeline(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer p.Close()

	var recorder recognition.Recorder
	if !mustGetBool(cmd, "no-log") {
		decisions := telemetry.NewLogger(telemetry.NewCSVSink(cfg.Telemetry.CSVPath), 1)
		defer func() {
			if err := decisions.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: closing telemetry log: %v\n", err)
			}
		}()
		recorder = decisions
	}

	rec := recognition.NewRecognizer(p.gate, p.pool, p.mirror, p.matchThresholds, recorder)
	out, matchErr := rec.Match(ctx, recognition.Query{
		Image:          data,
		AssertedUserID: mustGetString(cmd, "user"),
		TrueLabel:      mustGetString(cmd, "label"),
	})

	result := newMatchOutput(out, matchErr)
	if jsonOutput {
		if err := outputJSON(result); err != nil {
			return err
		}
	} else {
		printMatchOutput(result)
	}
	return matchErr
}

func newMatchOutput(out *recognition.Outcome, err error) MatchOutput {
	var (
		result MatchOutput
		rec    *facematch.DecisionRecord
		nre    *facematch.NotRecognizedError
		mm     *facematch.IdentityMismatchError
	)
	switch {
	case err == nil:
		result.Accepted = true
		result.UserID = out.UserID
		if out.Quality != nil {
			result.Strategy = out.Quality.Strategy
		}
		rec = &out.Record
	case errors.As(err, &nre):
		result.Error = "not recognized"
		rec = &nre.Record
	case errors.As(err, &mm):
		result.Error = fmt.Sprintf("identity mismatch: asserted %s, detected %s", mm.Asserted, mm.Detected)
	default:
		result.Error = err.Error()
	}

	if rec != nil {
		result.Reason = string(rec.Reason)
		result.BestUserID = rec.BestUserID
		result.BestD = telemetry.FormatFloat(rec.BestDistance)
		result.RunnerUpD = telemetry.FormatFloat(rec.RunnerUpDistance)
		result.Margin = telemetry.FormatFloat(rec.Margin)
		result.PerFaceMin = telemetry.FormatFloat(rec.PerFaceMin)
		for _, d := range rec.PerFaceTop3 {
			result.PerFaceTop = append(result.PerFaceTop, telemetry.FormatFloat(d))
		}
		result.Snapshot = rec.SnapshotVersion
		result.QueryID = rec.QueryID
	}
	return result
}

func printMatchOutput(m MatchOutput) {
	if m.Accepted {
		fmt.Printf("ACCEPTED  %s", m.UserID)
		if m.Strategy != "" {
			fmt.Printf(" (detector %s)", m.Strategy)
		}
		fmt.Println()
	} else {
		fmt.Printf("REJECTED  %s\n", m.Error)
	}
	if m.Reason == "" {
		return
	}

	fmt.Printf("  reason:       %s\n", m.Reason)
	fmt.Printf("  best:         %s (d=%s)\n", valueOr(m.BestUserID, "-"), m.BestD)
	fmt.Printf("  runner-up:    %s\n", m.RunnerUpD)
	fmt.Printf("  margin:       %s\n", m.Margin)
	fmt.Printf("  per-face min: %s\n", m.PerFaceMin)
	fmt.Printf("  per-face top: %s\n", valueOr(strings.Join(m.PerFaceTop, ", "), "-"))
	fmt.Printf("  snapshot:     %d\n", m.Snapshot)
	fmt.Printf("  query id:     %s\n", m.QueryID)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
