package blobstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

// FSBlobstore is the local-filesystem Blobstore implementation used for
// development and tests. It mirrors the object-storage implementation's
// key-as-relative-path convention so callers can swap implementations
// without changing any key string they compute.
type FSBlobstore struct {
	baseDir string
}

// NewFSBlobstore creates a filesystem-backed blob store rooted at baseDir.
func NewFSBlobstore(baseDir string) (*FSBlobstore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, models.NewError(models.KindStorage, "blobstore.NewFSBlobstore", baseDir, err)
	}
	return &FSBlobstore{baseDir: baseDir}, nil
}

// Put writes raw bytes under key, relative to the store's base directory.
// Metadata is persisted alongside the object as a "<key>.meta.json" sidecar
// file since the local filesystem has no native object-metadata concept.
func (f *FSBlobstore) Put(ctx context.Context, key string, raw []byte, metadata map[string]string) (string, error) {
	target := filepath.Join(f.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", models.NewError(models.KindStorage, "blobstore.FSBlobstore.Put", key, err)
	}
	if err := os.WriteFile(target, raw, 0o644); err != nil {
		return "", models.NewError(models.KindStorage, "blobstore.FSBlobstore.Put", key, err)
	}
	if len(metadata) > 0 {
		metaRaw, err := json.Marshal(metadata)
		if err != nil {
			return "", models.NewError(models.KindInternal, "blobstore.FSBlobstore.Put", "marshal metadata", err)
		}
		if err := os.WriteFile(target+".meta.json", metaRaw, 0o644); err != nil {
			return "", models.NewError(models.KindStorage, "blobstore.FSBlobstore.Put", key+" metadata", err)
		}
	}
	return key, nil
}

// Delete removes the object and its metadata sidecar, if present.
func (f *FSBlobstore) Delete(ctx context.Context, key string) error {
	target := filepath.Join(f.baseDir, filepath.FromSlash(key))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return models.NewError(models.KindStorage, "blobstore.FSBlobstore.Delete", key, err)
	}
	_ = os.Remove(target + ".meta.json")
	return nil
}

var _ Blobstore = (*FSBlobstore)(nil)

// Get reads back an object written by Put. Not part of the Blobstore
// interface (the pipeline never reads blobs back), but useful for tests that
// assert on what was written.
func (f *FSBlobstore) Get(key string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(f.baseDir, filepath.FromSlash(key)))
	if err != nil {
		return nil, models.NewError(models.KindStorage, "blobstore.FSBlobstore.Get", key, err)
	}
	return raw, nil
}
