package server

import (
	"context"

	"github.com/nordicgov/citizenship-review/pkg/artifacts"
)

// documentReader adapts artifacts.Store (Get) to orchestrator.DocumentReader
// (Read) so the same Document blob store backs both upload and extraction.
type documentReader struct {
	store artifacts.Store
}

// NewDocumentReader wraps an artifacts.Store for the Pipeline Orchestrator.
func NewDocumentReader(store artifacts.Store) interface {
	Read(ctx context.Context, storageHandle string) ([]byte, error)
} {
	return documentReader{store: store}
}

func (d documentReader) Read(ctx context.Context, storageHandle string) ([]byte, error) {
	return d.store.Get(ctx, storageHandle)
}
