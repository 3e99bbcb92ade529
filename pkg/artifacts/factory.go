package artifacts

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nordicgov/citizenship-review/pkg/config"
)

// StoreType represents the type of document storage backend.
type StoreType string

const (
	StoreTypeFS StoreType = "fs"
	StoreTypeS3 StoreType = "s3"
)

// NewStoreFromConfig builds the document storage backend named by
// cfg.ArtifactStorage ("fs" or "s3"). The returned Store is keyed by the
// Document id, not a content hash, producing the "opaque storage handle"
// persisted on a Document row.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	storeType := StoreType(cfg.ArtifactStorage)
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		return NewFileStore(filepath.Join(cfg.DataDir, "documents"))
	case StoreTypeS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("DOCUMENT_S3_BUCKET is required for s3 storage")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   "documents/",
		})
	default:
		return nil, fmt.Errorf("unsupported document storage type: %s", storeType)
	}
}
