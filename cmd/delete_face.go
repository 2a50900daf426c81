package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/enroll"
	"github.com/spf13/cobra"
)

var deleteFaceCmd = &cobra.Command{
	Use:   "delete-face <face-id>",
	Short: "Delete one enrolled face",
	Long: `Delete one enrolled face and recompute its owner's centroid from the
remaining faces. A user whose last face is deleted no longer matches anyone.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeleteFace,
}

func init() {
	rootCmd.AddCommand(deleteFaceCmd)

	deleteFaceCmd.Flags().Bool("json", false, "Output as JSON")
}

func runDeleteFace(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	p, err := newPipeline(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := enroll.NewService(p.gate, p.pool, p.backend, nil).DeleteFace(ctx, args[0])
	if err != nil {
		return fmt.Errorf("deleting face %s: %w", args[0], err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(newEnrollOutput(res.UserID, res, nil))
	}
	fmt.Printf("Deleted face %s of %s (%d faces left)\n", args[0], res.UserID, res.FaceCount)
	if !res.HasProfile {
		fmt.Printf("%s has no faces left and will not match until re-enrolled\n", res.UserID)
	}
	return nil
}
