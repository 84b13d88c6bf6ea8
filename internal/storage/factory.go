package storage

import (
	"fmt"

	"github.com/marlow/finreporter/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// The local-disk backend is the default; S3 is selected explicitly.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir)
	case "s3":
		return NewS3Storage(&S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// BinaryKey is the storage key for a report's uploaded PDF.
func BinaryKey(reportID string) string {
	return reportID + ".pdf"
}

// TextKey is the storage key for a report's extracted text blob.
func TextKey(reportID string) string {
	return BinaryKey(reportID) + ".txt"
}
