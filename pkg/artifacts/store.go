package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store defines the contract for storing uploaded Document bytes. Blobs are
// keyed by the Document's own id rather than a content hash: two applicants
// can legitimately upload byte-identical scans (the same blank government
// form, say) and each upload is still a distinct piece of evidence tied to
// its own Document row, not a single deduplicated blob shared across cases.
type Store interface {
	// Store persists data under the Document id and returns the opaque
	// storage handle to record on the Document row.
	Store(ctx context.Context, documentID string, data []byte) (string, error)
	// Get retrieves data by its storage handle.
	Get(ctx context.Context, handle string) ([]byte, error)
	// Exists checks if a document's bytes are present.
	Exists(ctx context.Context, handle string) (bool, error)
	// Delete removes a document's bytes.
	Delete(ctx context.Context, handle string) error
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a new document store at the specified directory.
func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: 0755 is intentional for shared artifact directory
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Store(ctx context.Context, documentID string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := sanitizeDocumentID(documentID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.baseDir, key+".blob")

	// Write to temp, then rename for an atomic commit.
	tmpPath := path + ".tmp"
	//nolint:gosec // G306: 0644 is intentional for readable blob files
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}

	return "doc:" + key, nil
}

func (s *FileStore) Get(ctx context.Context, handle string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, err := parseHandle(handle)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.baseDir, key+".blob")

	f, err := os.Open(path) //nolint:gosec // handle validated by parseHandle
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found: %s", handle)
		}
		//nolint:wrapcheck // caller provides context
		return nil, err
	}
	defer f.Close() //nolint:errcheck // best-effort close

	//nolint:wrapcheck // caller provides context
	return io.ReadAll(f)
}

func (s *FileStore) Exists(ctx context.Context, handle string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, err := parseHandle(handle)
	if err != nil {
		return false, err
	}
	path := filepath.Join(s.baseDir, key+".blob")
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	//nolint:wrapcheck // caller provides context
	return false, err
}

func (s *FileStore) Delete(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := parseHandle(handle)
	if err != nil {
		return err
	}
	path := filepath.Join(s.baseDir, key+".blob")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// parseHandle strips the "doc:" prefix a storage handle carries and
// validates the remaining Document id.
func parseHandle(handle string) (string, error) {
	if !strings.HasPrefix(handle, "doc:") {
		return "", fmt.Errorf("invalid storage handle format: %s", handle)
	}
	return sanitizeDocumentID(strings.TrimPrefix(handle, "doc:"))
}

// sanitizeDocumentID rejects ids that could escape baseDir via path
// traversal; Document ids are server-generated UUIDs, so this should never
// reject a legitimate id.
func sanitizeDocumentID(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid document id: %q", id)
	}
	return id, nil
}
