package payloadstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/LinHaoYu/ContractLens/internal/pkg/env"
)

// Config holds payload store (S3) configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads payload store configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("PAYLOAD_STORE_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when the payload store is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when the payload store is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when the payload store is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the payload store is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetBucketName returns the bucket name as configured (no automatic prefixing)
func (c *Config) GetBucketName() string {
	return c.BucketName
}

// InputKey builds the object key for a submitted contract text.
// Format: analyses/YYYY/MM/<userID>/<analysisID>-input.txt
func InputKey(userID uint, analysisID string, at time.Time) string {
	return fmt.Sprintf("analyses/%04d/%02d/%d/%s-input.txt", at.Year(), int(at.Month()), userID, analysisID)
}

// OutputKey builds the object key for an analysis result.
func OutputKey(userID uint, analysisID string, at time.Time) string {
	return fmt.Sprintf("analyses/%04d/%02d/%d/%s-output.txt", at.Year(), int(at.Month()), userID, analysisID)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}
