package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeStore()
	c.normalizeRender()
	c.normalizeClassifier()
	if err := c.normalizeModelStore(); err != nil {
		return err
	}
	c.normalizeExtractor()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.InputDir, err = expandPath(c.Paths.InputDir); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockDir) == "" {
		c.Paths.LockDir = defaultLockDir
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("SHAPELEARNER_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeStore() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if c.Store.Driver == "postgresql" || c.Store.Driver == "pgx" {
		c.Store.Driver = "postgres"
	}
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("SHAPELEARNER_STORE_DSN"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	c.Store.FeaturesTable = strings.TrimSpace(c.Store.FeaturesTable)
	if c.Store.FeaturesTable == "" {
		c.Store.FeaturesTable = defaultFeaturesTable
	}
}

func (c *Config) normalizeRender() {
	c.Render.Level = strings.ToLower(strings.TrimSpace(c.Render.Level))
	if c.Render.Level == "" && len(c.Render.Difficulty) == 0 {
		c.Render.Level = defaultRenderLevel
	}
	if c.Render.Workers <= 0 {
		c.Render.Workers = defaultRenderWorkers
	}
}

func (c *Config) normalizeClassifier() {
	c.Classifier.Weighting = strings.ToLower(strings.TrimSpace(c.Classifier.Weighting))
	if c.Classifier.Weighting == "" {
		c.Classifier.Weighting = defaultWeighting
	}
}

func (c *Config) normalizeModelStore() error {
	c.ModelStore.Backend = strings.ToLower(strings.TrimSpace(c.ModelStore.Backend))
	if c.ModelStore.Backend == "" {
		c.ModelStore.Backend = defaultModelBackend
	}
	if strings.TrimSpace(c.ModelStore.Dir) == "" {
		c.ModelStore.Dir = defaultModelDir
	}
	var err error
	if c.ModelStore.Dir, err = expandPath(c.ModelStore.Dir); err != nil {
		return fmt.Errorf("model_store.dir: %w", err)
	}
	c.ModelStore.Endpoint = strings.TrimSpace(c.ModelStore.Endpoint)
	c.ModelStore.Bucket = strings.TrimSpace(c.ModelStore.Bucket)
	if c.ModelStore.SecretKey == "" {
		if value, ok := os.LookupEnv("SHAPELEARNER_MINIO_SECRET_KEY"); ok {
			c.ModelStore.SecretKey = value
		}
	}
	return nil
}

func (c *Config) normalizeExtractor() {
	c.Extractor.Mode = strings.ToLower(strings.TrimSpace(c.Extractor.Mode))
	c.Extractor.URL = strings.TrimRight(strings.TrimSpace(c.Extractor.URL), "/")
	c.Extractor.Binary = strings.TrimSpace(c.Extractor.Binary)
	if c.Extractor.RetryAttempts <= 0 {
		c.Extractor.RetryAttempts = 1
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
