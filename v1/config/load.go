package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, when given, and then applies the
// environment on top of it. A missing file is an error; an empty path
// means environment only.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv processes every flat section. Nested sections are skipped by
// their parents (ignored tag) and processed here, so that keys stay
// ANNOTATION_<TAG> whatever the nesting.
func applyEnv(cfg *Config) error {
	sections := []interface{}{
		&cfg.Logger,
		&cfg.Tracer,
		&cfg.Metrics,
		&cfg.Postgres.Connection,
		&cfg.Postgres.ConnectionDetails,
		&cfg.Redis,
		&cfg.Redis.TLS,
		&cfg.Minio.Connection,
		&cfg.Minio.UploadConfig,
		&cfg.Kube,
		&cfg.Jobs,
	}
	for _, s := range sections {
		if err := envconfig.Process(EnvPrefix, s); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
	}
	return nil
}
