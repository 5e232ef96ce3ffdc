package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	LockDir   string `toml:"lock_dir"`
}

// API contains HTTP listener configuration for the daemon.
type API struct {
	Bind                string `toml:"bind"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	// Token, when set, is required as a bearer token on every route except /metrics.
	Token string `toml:"token"`
}

// Store selects the relational backend holding feature rows.
// Jobs always live in the SQLite database under Paths.DataDir.
type Store struct {
	Driver        string `toml:"driver"` // sqlite or postgres
	DSN           string `toml:"dsn"`
	FeaturesTable string `toml:"features_table"`
}

// Render contains multi-view capture settings.
type Render struct {
	// Level names a difficulty preset (low, medium, high, extreme, ultimate).
	Level string `toml:"level"`
	// Difficulty overrides Level with explicit band sizes when non-empty.
	Difficulty            []int `toml:"difficulty"`
	Width                 int   `toml:"width"`
	Height                int   `toml:"height"`
	Workers               int   `toml:"workers"`
	CaptureTimeoutSeconds int   `toml:"capture_timeout_seconds"`
}

// Classifier contains k-nearest-neighbor settings.
type Classifier struct {
	Neighbors             int    `toml:"neighbors"`
	Weighting             string `toml:"weighting"` // uniform or distance
	FitOnBoot             bool   `toml:"fit_on_boot"`
	FitTimeoutSeconds     int    `toml:"fit_timeout_seconds"`
	PredictTimeoutSeconds int    `toml:"predict_timeout_seconds"`
}

// ModelStore selects where trained model snapshots are persisted.
type ModelStore struct {
	Backend   string `toml:"backend"` // local or minio
	Dir       string `toml:"dir"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Extractor configures the external feature-extraction capability.
type Extractor struct {
	// Mode is http, command, or empty to disable extraction.
	Mode              string   `toml:"mode"`
	URL               string   `toml:"url"`
	Binary            string   `toml:"binary"`
	Args              []string `toml:"args"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	RetryAttempts     int      `toml:"retry_attempts"`
}

// Worker describes how this process advertises itself on job updates.
type Worker struct {
	AdvertiseIP   string `toml:"advertise_ip"`
	AdvertisePort int    `toml:"advertise_port"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shapelearner.
//
// Configuration sections by subsystem:
//   - Paths: data, log, render input/output and lock directories
//   - API: daemon HTTP bind address and timeouts
//   - Store: feature row backend (sqlite or postgres)
//   - Render: difficulty level, frame size, capture workers
//   - Classifier: neighbor count, weighting, fit/predict timeouts
//   - ModelStore: local directory or MinIO bucket for model snapshots
//   - Extractor: external feature extraction endpoint or binary
//   - Worker: address reported on job updates
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	API        API        `toml:"api"`
	Store      Store      `toml:"store"`
	Render     Render     `toml:"render"`
	Classifier Classifier `toml:"classifier"`
	ModelStore ModelStore `toml:"model_store"`
	Extractor  Extractor  `toml:"extractor"`
	Worker     Worker     `toml:"worker"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shapelearner/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shapelearner.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
// OutputDir is created on a best-effort basis so read-only commands keep
// working when render storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.LockDir}
	if c.ModelStore.Backend == "local" {
		dirs = append(dirs, c.ModelStore.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// JobDBPath returns the SQLite database path holding job records.
func (c *Config) JobDBPath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// FeatureDSN returns the data source name for the feature store. SQLite
// deployments share the data directory with the job database.
func (c *Config) FeatureDSN() string {
	if c.Store.Driver == "sqlite" && strings.TrimSpace(c.Store.DSN) == "" {
		return filepath.Join(c.Paths.DataDir, "features.db")
	}
	return c.Store.DSN
}

// FitTimeout returns the bound applied to model training.
func (c *Config) FitTimeout() time.Duration {
	return time.Duration(c.Classifier.FitTimeoutSeconds) * time.Second
}

// PredictTimeout returns the bound applied to a single prediction.
func (c *Config) PredictTimeout() time.Duration {
	return time.Duration(c.Classifier.PredictTimeoutSeconds) * time.Second
}

// CaptureTimeout returns the bound applied to a single mesh capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Render.CaptureTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
