package storage

import (
	"context"
	"time"
)

const defaultObjectStorageRequestTimeout = 30 * time.Second

// ObjectStorageConfig describes the S3-compatible bucket used for uploaded
// media. Leaving Bucket or Endpoint empty disables object storage entirely.
type ObjectStorageConfig struct {
	Endpoint       string
	PublicEndpoint string
	Bucket         string
	Prefix         string
	Region         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	RequestTimeout time.Duration
}

// ObjectRef identifies a stored object and, when a public endpoint is
// configured, the URL it can be fetched from.
type ObjectRef struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

type objectStorageClient interface {
	Enabled() bool
	Upload(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error)
	Delete(ctx context.Context, key string) error
}
