package config

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Worker     WorkerConfig    `yaml:"worker"`
	Profiles   ProfilesConfig  `yaml:"profiles"`
	Thresholds Thresholds      `yaml:"thresholds"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	APIToken       string   `yaml:"-"` // bearer token for write endpoints, empty disables auth
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // postgres or mariadb
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type EmbeddingConfig struct {
	URL          string   `yaml:"url"`            // face extraction service, defaults to http://localhost:8000
	Models       []string `yaml:"models"`         // detector strategies in preference order
	DlibModelDir string   `yaml:"dlib_model_dir"` // local dlib fallback, binaries built with -tags dlib only
}

type TelemetryConfig struct {
	CSVPath string `yaml:"csv_path"`
	Buffer  int    `yaml:"buffer"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"` // defaults to runtime.NumCPU()
}

type ProfilesConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Thresholds is the full process-wide tuning set: the three match scalars plus the quality gate limits.
type Thresholds struct {
	UserTol         float64 `yaml:"user_tol" json:"user_tol"`
	UserMargin      float64 `yaml:"user_margin" json:"user_margin"`
	FaceTol         float64 `yaml:"face_tol" json:"face_tol"`
	BlurThreshold   float64 `yaml:"blur_threshold" json:"blur_threshold"`
	MinFaceHeightPx int     `yaml:"min_face_height_px" json:"min_face_height_px"`
}

// Validate rejects thresholds that would make every decision trivially fail or pass.
func (t Thresholds) Validate() error {
	switch {
	case !(t.UserTol > 0):
		return fmt.Errorf("user_tol must be > 0, got %v", t.UserTol)
	case !(t.UserMargin >= 0):
		return fmt.Errorf("user_margin must be >= 0, got %v", t.UserMargin)
	case !(t.FaceTol > 0):
		return fmt.Errorf("face_tol must be > 0, got %v", t.FaceTol)
	case !(t.BlurThreshold >= 0):
		return fmt.Errorf("blur_threshold must be >= 0, got %v", t.BlurThreshold)
	case t.MinFaceHeightPx < 0:
		return fmt.Errorf("min_face_height_px must be >= 0, got %d", t.MinFaceHeightPx)
	}
	return nil
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a non-negative float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// Defaults returns the embedded default configuration.
func Defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// embedded file, cannot fail at runtime
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	cfg.Worker.Concurrency = runtime.NumCPU()
	return cfg
}

// LoadThresholdsFile overlays the thresholds YAML at path onto base.
// Keys missing from the file keep their value from base.
func LoadThresholdsFile(path string, base Thresholds) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read thresholds file: %w", err)
	}
	out := base
	if err := yaml.Unmarshal(data, &out); err != nil {
		return base, fmt.Errorf("parse thresholds file: %w", err)
	}
	if err := out.Validate(); err != nil {
		return base, fmt.Errorf("thresholds file %s: %w", path, err)
	}
	return out, nil
}

// Load builds the configuration: embedded defaults, then THRESHOLDS_FILE, then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("THRESHOLDS_FILE"); path != "" {
		th, err := LoadThresholdsFile(path, cfg.Thresholds)
		if err != nil {
			return nil, err
		}
		cfg.Thresholds = th
	}

	cfg.Server.Host = envString("WEB_HOST", cfg.Server.Host)
	cfg.Server.Port = envInt("WEB_PORT", cfg.Server.Port)
	cfg.Server.APIToken = os.Getenv("WEB_API_TOKEN")
	if origins := os.Getenv("WEB_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(envString("DATABASE_DRIVER", cfg.Database.Driver)),
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns),
		MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns),
	}
	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	if models := os.Getenv("EMBEDDING_MODELS"); models != "" {
		cfg.Embedding.Models = splitList(models)
	}
	cfg.Embedding.DlibModelDir = envString("DLIB_MODELS_DIR", cfg.Embedding.DlibModelDir)
	cfg.Telemetry.CSVPath = envString("LOG_CSV_PATH", cfg.Telemetry.CSVPath)
	cfg.Telemetry.Buffer = envInt("TELEMETRY_BUFFER", cfg.Telemetry.Buffer)
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Profiles.RefreshInterval = envDuration("PROFILE_REFRESH_INTERVAL", cfg.Profiles.RefreshInterval)

	cfg.Thresholds.UserTol = envFloat("USER_TOL", cfg.Thresholds.UserTol)
	cfg.Thresholds.UserMargin = envFloat("USER_MARGIN", cfg.Thresholds.UserMargin)
	cfg.Thresholds.FaceTol = envFloat("FACE_TOL", cfg.Thresholds.FaceTol)
	cfg.Thresholds.BlurThreshold = envFloat("BLUR_THRESHOLD", cfg.Thresholds.BlurThreshold)
	cfg.Thresholds.MinFaceHeightPx = envInt("MIN_FACE_HEIGHT_PX", cfg.Thresholds.MinFaceHeightPx)

	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
