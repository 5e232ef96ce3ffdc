package config

import (
	"errors"
	"fmt"
	"strings"

	"shapelearner/internal/render"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateModelStore(); err != nil {
		return err
	}
	if err := c.validateExtractor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"api.read_timeout_seconds":       c.API.ReadTimeoutSeconds,
		"api.write_timeout_seconds":      c.API.WriteTimeoutSeconds,
		"classifier.fit_timeout_seconds": c.Classifier.FitTimeoutSeconds,
		"render.capture_timeout_seconds": c.Render.CaptureTimeoutSeconds,
	})
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn must be set when store.driver is postgres (or set SHAPELEARNER_STORE_DSN)")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q (expected sqlite or postgres)", c.Store.Driver)
	}
	return nil
}

// Difficulty resolves the configured band sizes, preferring an explicit
// difficulty list over the named level.
func (c *Config) Difficulty() ([]int, error) {
	if len(c.Render.Difficulty) > 0 {
		out := make([]int, len(c.Render.Difficulty))
		copy(out, c.Render.Difficulty)
		return out, nil
	}
	level, err := render.ParseLevel(c.Render.Level)
	if err != nil {
		return nil, err
	}
	return level.Difficulty(), nil
}

func (c *Config) validateRender() error {
	difficulty, err := c.Difficulty()
	if err != nil {
		return fmt.Errorf("render.level: %w", err)
	}
	if _, err := render.NewSchedule(difficulty); err != nil {
		return fmt.Errorf("render.difficulty: %w", err)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.New("render.width and render.height must be positive")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	if c.Classifier.Neighbors < 1 {
		return errors.New("classifier.neighbors must be at least 1")
	}
	switch c.Classifier.Weighting {
	case "uniform", "distance":
	default:
		return fmt.Errorf("classifier.weighting: unsupported value %q (expected uniform or distance)", c.Classifier.Weighting)
	}
	if c.Classifier.PredictTimeoutSeconds < 0 {
		return errors.New("classifier.predict_timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateModelStore() error {
	switch c.ModelStore.Backend {
	case "local":
		if strings.TrimSpace(c.ModelStore.Dir) == "" {
			return errors.New("model_store.dir must be set when model_store.backend is local")
		}
	case "minio":
		if c.ModelStore.Endpoint == "" {
			return errors.New("model_store.endpoint must be set when model_store.backend is minio")
		}
		if c.ModelStore.Bucket == "" {
			return errors.New("model_store.bucket must be set when model_store.backend is minio")
		}
	default:
		return fmt.Errorf("model_store.backend: unsupported value %q (expected local or minio)", c.ModelStore.Backend)
	}
	return nil
}

func (c *Config) validateExtractor() error {
	switch c.Extractor.Mode {
	case "":
		return nil
	case "http":
		if c.Extractor.URL == "" {
			return errors.New("extractor.url must be set when extractor.mode is http")
		}
	case "command":
		if c.Extractor.Binary == "" {
			return errors.New("extractor.binary must be set when extractor.mode is command")
		}
	default:
		return fmt.Errorf("extractor.mode: unsupported value %q (expected http, command, or empty)", c.Extractor.Mode)
	}
	if c.Extractor.TimeoutSeconds <= 0 {
		return errors.New("extractor.timeout_seconds must be positive")
	}
	if c.Extractor.RequestsPerSecond < 0 {
		return errors.New("extractor.requests_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
