package testsupport

import (
	"path/filepath"
	"testing"

	"shapelearner/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.InputDir = filepath.Join(base, "inputs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "outputs")
	cfgVal.Paths.LockDir = filepath.Join(base, "locks")
	cfgVal.ModelStore.Dir = filepath.Join(base, "models")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Render.Difficulty = []int{1, 2, 1}
	cfgVal.Render.Width = 64
	cfgVal.Render.Height = 64
	cfgVal.Classifier.Neighbors = 3

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithDifficulty overrides the render band sizes on the test config.
func WithDifficulty(difficulty ...int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Render.Difficulty = difficulty
	}
}

// WithExtractorURL enables the HTTP extractor on the test config.
func WithExtractorURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Extractor.Mode = "http"
		b.cfg.Extractor.URL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
