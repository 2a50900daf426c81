package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/enroll"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [user-id] [image...]",
	Short: "Enroll face images for a user",
	Long: `Enroll one or more face images for a user, creating the user if needed.

All images of one user are checked by the quality gate first; if any image is
rejected nothing is stored for that user.

Examples:
  # Enroll three images for alice
  face-gate enroll alice a1.jpg a2.jpg a3.jpg

  # Enroll a precomputed 128-d embedding (JSON array)
  face-gate enroll alice --embedding alice.json

  # Bulk enrollment: one subdirectory per user
  face-gate enroll --dir ./faces`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Directory with one subdirectory of images per user")
	enrollCmd.Flags().String("embedding", "", "JSON file with a precomputed embedding")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// EnrollOutput summarizes the enrollment of one user.
type EnrollOutput struct {
	UserID     string   `json:"user_id"`
	FaceIDs    []string `json:"face_ids,omitempty"`
	FaceCount  int      `json:"face_count"`
	HasProfile bool     `json:"has_profile"`
	Error      string   `json:"error,omitempty"`
}

// enrollBatch is the set of images found for one user.
type enrollBatch struct {
	userID string
	paths  []string
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	embeddingPath := mustGetString(cmd, "embedding")
	jsonOutput := mustGetBool(cmd, "json")

	switch {
	case dir != "" && len(args) > 0:
		return errors.New("--dir cannot be combined with a user id")
	case dir == "" && len(args) == 0:
		return errors.New("a user id or --dir is required")
	case embeddingPath != "" && (dir != "" || len(args) != 1):
		return errors.New("--embedding takes exactly one user id and no images")
	case dir == "" && embeddingPath == "" && len(args) < 2:
		return errors.New("at least one image is required")
	}

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

	svc := enroll.NewService(p.gate, p.pool, p.backend, nil)

	if embeddingPath != "" {
		out := enrollEmbeddingFile(ctx, svc, args[0], embeddingPath)
		return reportEnrollments([]EnrollOutput{out}, jsonOutput)
	}

	var batches []enrollBatch
	if dir != "" {
		batches, err = scanEnrollDir(dir)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			return fmt.Errorf("no user directories with images found in %s", dir)
		}
	} else {
		batches = []enrollBatch{{userID: args[0], paths: args[1:]}}
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(batches) > 1 {
		bar = progressbar.NewOptions(len(batches),
			progressbar.OptionSetDescription("Enrolling users"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("users"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	results := make([]EnrollOutput, 0, len(batches))
	for _, b := range batches {
		results = append(results, enrollImages(ctx, svc, b))
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	return reportEnrollments(results, jsonOutput)
}

// scanEnrollDir returns one batch per subdirectory of root that contains images.
func scanEnrollDir(root string) ([]enrollBatch, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	var batches []enrollBatch
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		userDir := filepath.Join(root, e.Name())
		files, err := os.ReadDir(userDir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", userDir, err)
		}
		b := enrollBatch{userID: e.Name()}
		for _, f := range files {
			if f.IsDir() || !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(f.Name()))) {
				continue
			}
			b.paths = append(b.paths, filepath.Join(userDir, f.Name()))
		}
		if len(b.paths) > 0 {
			batches = append(batches, b)
		}
	}
	return batches, nil
}

func enrollImages(ctx context.Context, svc *enroll.Service, b enrollBatch) EnrollOutput {
	images := make([][]byte, 0, len(b.paths))
	for _, path := range b.paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return EnrollOutput{UserID: b.userID, Error: fmt.Sprintf("reading %s: %v", path, err)}
		}
		images = append(images, data)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.EnrollTimeout)
	defer cancel()

	res, err := svc.Enroll(ctx, b.userID, images)
	return newEnrollOutput(b.userID, res, err)
}

func enrollEmbeddingFile(ctx context.Context, svc *enroll.Service, userID, path string) EnrollOutput {
	data, err := os.ReadFile(path)
	if err != nil {
		return EnrollOutput{UserID: userID, Error: fmt.Sprintf("reading %s: %v", path, err)}
	}
	var emb []float64
	if err := json.Unmarshal(data, &emb); err != nil {
		return EnrollOutput{UserID: userID, Error: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	ctx, cancel := context.WithTimeout(ctx, constants.EnrollTimeout)
	defer cancel()

	res, err := svc.EnrollEmbedding(ctx, userID, emb)
	return newEnrollOutput(userID, res, err)
}

func newEnrollOutput(userID string, res *enroll.Result, err error) EnrollOutput {
	if err != nil {
		return EnrollOutput{UserID: userID, Error: err.Error()}
	}
	out := EnrollOutput{UserID: res.UserID, FaceCount: res.FaceCount, HasProfile: res.HasProfile}
	for _, f := range res.Added {
		out.FaceIDs = append(out.FaceIDs, f.ID)
	}
	return out
}

// reportEnrollments prints the results and fails if any user failed.
func reportEnrollments(results []EnrollOutput, jsonOutput bool) error {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	if jsonOutput {
		if err := outputJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Printf("FAILED  %s: %s\n", r.UserID, r.Error)
				continue
			}
			fmt.Printf("OK      %s: +%d faces (%d total)\n", r.UserID, len(r.FaceIDs), r.FaceCount)
		}
		fmt.Printf("\nEnrolled %d users, %d failed\n", len(results)-failed, failed)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d enrollments failed", failed, len(results))
	}
	return nil
}
