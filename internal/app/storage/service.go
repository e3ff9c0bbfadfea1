/*
Package storage presigns attachment transfers against S3-compatible object storage.

The server never proxies attachment bytes: clients upload and download directly
with short-lived URLs, and messages only carry the resulting object key.
*/
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by Stat when the key does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// ObjectInfo is the metadata of a stored attachment.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// StorageService defines the public interface for the attachment storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// PresignDownload generates a pre-signed URL for downloading a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Stat returns the metadata of key, or ErrObjectNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// NewStorageService is the factory function for StorageService.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	if cfg.S3BucketName == "" || cfg.S3Endpoint == "" {
		return nil, errors.New("storage: bucket and endpoint are required")
	}
	return newS3Client(ctx, cfg)
}
