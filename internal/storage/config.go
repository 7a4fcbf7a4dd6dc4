package storage

import (
	"strings"
	"time"

	"github.com/prompt-request/go-services/internal/config"
)

// MinIOConfig holds S3 connection configuration
type MinIOConfig struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
	Bucket         string
	Timeout        time.Duration
}

// LoadMinIOConfig derives the client configuration from the S3 settings.
// The endpoint may carry an http:// or https:// scheme; https enables TLS.
// An empty endpoint means AWS S3.
func LoadMinIOConfig(cfg config.S3Config) *MinIOConfig {
	endpoint, useSSL := splitEndpoint(cfg.Endpoint)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MinIOConfig{
		Endpoint:       endpoint,
		Region:         cfg.Region,
		AccessKey:      cfg.AccessKey,
		SecretKey:      cfg.SecretKey,
		UseSSL:         useSSL,
		ForcePathStyle: cfg.ForcePathStyle,
		Bucket:         cfg.Bucket,
		Timeout:        timeout,
	}
}

func splitEndpoint(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "s3.amazonaws.com", true
	case strings.HasPrefix(raw, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "https://"), "/"), true
	case strings.HasPrefix(raw, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "http://"), "/"), false
	}
	return strings.TrimSuffix(raw, "/"), false
}
