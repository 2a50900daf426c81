package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/database/mariadb"
	"github.com/kozaktomas/face-gate/internal/database/postgres"
	"github.com/kozaktomas/face-gate/internal/extractor"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/profiles"
	"github.com/kozaktomas/face-gate/internal/quality"
	"github.com/kozaktomas/face-gate/internal/worker"
)

// openBackend connects to the configured database, applies migrations and
// registers the backend.
func openBackend(ctx context.Context, cfg *config.DatabaseConfig) (database.Backend, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	var (
		backend database.Backend
		err     error
	)
	switch cfg.Driver {
	case "", "postgres", "postgresql":
		fmt.Printf("Connecting to PostgreSQL database...\n")
		backend, err = postgres.Open(ctx, cfg)
	case "mariadb", "mysql":
		fmt.Printf("Connecting to MariaDB database...\n")
		backend, err = mariadb.Open(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (use postgres or mariadb)", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	database.RegisterBackend(backend)
	return backend, nil
}

// pipeline holds the services shared by serve, match and enroll.
type pipeline struct {
	cfg        *config.Config
	backend    database.Backend
	mirror     *profiles.Store
	thresholds *config.ThresholdStore
	extractor  *extractor.Client
	gate       *quality.Gate
	pool       *worker.Pool
	closers    []func()
}

// newPipeline opens the backend and builds the quality gate. The profile
// mirror is only loaded when loadProfiles is set.
func newPipeline(ctx context.Context, cfg *config.Config, loadProfiles bool) (*pipeline, error) {
	backend, err := openBackend(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		cfg:        cfg,
		backend:    backend,
		thresholds: config.NewThresholdStore(cfg.Thresholds),
		extractor:  extractor.NewClient(cfg.Embedding.URL, constants.ExtractionTimeout),
		pool:       worker.NewPool(cfg.Worker.Concurrency),
	}

	strategies := quality.NewHTTPStrategies(p.extractor, cfg.Embedding.Models)
	if cfg.Embedding.DlibModelDir != "" {
		dlib, closeDlib, err := quality.NewDlibStrategies(cfg.Embedding.DlibModelDir)
		if err != nil {
			fmt.Printf("Warning: local dlib detectors disabled: %v\n", err)
		} else {
			strategies = append(strategies, dlib...)
			p.closers = append(p.closers, closeDlib)
		}
	}
	p.gate = quality.NewGate(p.limits, strategies...)

	p.mirror = profiles.NewStore(backend)
	if loadProfiles {
		issues, err := p.mirror.Reload(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("load profiles: %w", err)
		}
		for _, issue := range issues {
			fmt.Printf("Warning: skipped %s\n", issue)
		}
		snap := p.mirror.Snapshot()
		fmt.Printf("Loaded %d users with %d faces (snapshot %d)\n", snap.Len(), snap.FaceCount(), snap.Version)
	}

	return p, nil
}

// limits reads the gate thresholds from the live store.
func (p *pipeline) limits() quality.Limits {
	t := p.thresholds.Get()
	return quality.Limits{BlurThreshold: t.BlurThreshold, MinFaceHeightPx: t.MinFaceHeightPx}
}

// matchThresholds reads the decision thresholds from the live store.
func (p *pipeline) matchThresholds() facematch.Thresholds {
	return p.thresholds.Get().Match()
}

// Close releases detectors and the database backend.
func (p *pipeline) Close() {
	for _, c := range p.closers {
		c()
	}
	if err := database.CloseBackend(); err != nil {
		fmt.Printf("Warning: closing database: %v\n", err)
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
