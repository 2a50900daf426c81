package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/enroll"
	"github.com/kozaktomas/face-gate/internal/recognition"
	"github.com/kozaktomas/face-gate/internal/telemetry"
	"github.com/kozaktomas/face-gate/internal/web"
	"github.com/kozaktomas/face-gate/internal/web/handlers"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the Face Gate HTTP API.

The server loads every enrolled profile into memory, refreshes the snapshot
periodically to pick up writes from other processes, and appends every match
decision to the telemetry CSV. Write endpoints require WEB_API_TOKEN when set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies the host and port flags over the loaded config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.ServerConfig) {
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	resolveServeHostPort(cmd, &cfg.Server)

	p, err := newPipeline(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.mirror.StartRefresh(cfg.Profiles.RefreshInterval); err != nil {
		return err
	}
	defer p.mirror.Stop()

	sink := telemetry.NewCSVSink(cfg.Telemetry.CSVPath)
	decisions := telemetry.NewLogger(sink, cfg.Telemetry.Buffer)
	fmt.Printf("Logging decisions to %s\n", sink.Path())

	server := web.NewServer(cfg.Server, web.Dependencies{
		Matcher:    recognition.NewRecognizer(p.gate, p.pool, p.mirror, p.matchThresholds, decisions),
		Enroller:   enroll.NewService(p.gate, p.pool, p.backend, p.mirror),
		Thresholds: p.thresholds,
		Telemetry:  decisions,
		Profiles:   p.mirror,
		Strategies: p.gate.Strategies(),
		Health: map[string]handlers.HealthChecker{
			"database":  p.backend.Ping,
			"extractor": p.extractor.Health,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Gate API on http://%s:%d (strategies: %v)\n", cfg.Server.Host, cfg.Server.Port, p.gate.Strategies())
	fmt.Println("Press Ctrl+C to stop")

	serveErr := server.Start()
	if serveErr == nil {
		// Start returns as soon as Shutdown begins; wait for in-flight requests.
		<-shutdownDone
	}

	if err := decisions.Close(); err != nil {
		fmt.Printf("Warning: closing telemetry log: %v\n", err)
	}
	stats := decisions.Stats()
	fmt.Printf("Telemetry: %d logged, %d failed, %d dropped\n", stats.Logged, stats.Failed, stats.Dropped)

	if serveErr != nil {
		return fmt.Errorf("starting server: %w", serveErr)
	}
	return nil
}
