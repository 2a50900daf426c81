package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-gate",
	Short: "Face match decision service",
	Long: `Face Gate decides whether a face belongs to an enrolled user.

Images pass a quality gate (blur, face count, face size) before their
embedding is compared against per-user centroids and per-face embeddings.
Every decision is appended to a CSV log that the analyze command turns into
threshold suggestions.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
