package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/labkit/internal/platform/env"
)

// Config describes the S3-compatible bucket that mirrors lab data.
type Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

func ConfigFromEnv() (Config, error) {
	enabled, err := env.Bool("MINIO_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	useSSL, err := env.Bool("MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Enabled:   enabled,
		Endpoint:  env.String("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: env.String("MINIO_ACCESS_KEY", "labkit"),
		SecretKey: env.String("MINIO_SECRET_KEY", "labkitminio"),
		Region:    env.String("MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("MINIO_BUCKET", "lab-data"),
	}
	if !cfg.Enabled {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
