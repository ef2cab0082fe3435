// Package blobstore provides the content-addressed blob-storage facade:
// write SBOM/vulnerability/analytics payloads under a deterministic,
// content-safe key and compute the SHA-256 checksum of what was written.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/purl"
)

// Blobstore is the interchangeable surface both implementations satisfy.
type Blobstore interface {
	// Put writes raw bytes under key with the given metadata, returning the
	// key actually used (identical to the input key; the return value keeps
	// the call sites symmetric with a future content-addressed variant).
	Put(ctx context.Context, key string, raw []byte, metadata map[string]string) (string, error)
	Delete(ctx context.Context, key string) error
}

// WriteSbom computes the content-safe object key for an Sbom, writes raw
// bytes, sets sbom.ChecksumSha256 to the base64-encoded SHA-256 digest, and
// returns the key used. The key convention is
// "sboms/<safe-purl>-<instance>.json" (§6).
func WriteSbom(ctx context.Context, bs Blobstore, raw []byte, sbom *models.Sbom) (string, error) {
	if sbom.Purl == "" {
		return "", models.NewError(models.KindValidation, "blobstore.WriteSbom", "sbom purl is empty", nil)
	}
	key := fmt.Sprintf("sboms/%s-%s.json", purl.SafePurl(sbom.Purl), sbom.Instance)

	metadata := models.FlattenXrefs(sbom.Xrefs)
	if _, err := bs.Put(ctx, key, raw, metadata); err != nil {
		return "", models.NewError(models.KindStorage, "blobstore.WriteSbom", key, err)
	}

	sum := sha256.Sum256(raw)
	sbom.ChecksumSha256 = base64.StdEncoding.EncodeToString(sum[:])
	return key, nil
}

// WriteVulnerabilities writes the embedded vulnerability list for a package
// to blob storage, one file per (purl, provider). Key convention:
// "vulnerabilities-<providerName>-<safe-purl>" (§6).
func WriteVulnerabilities(ctx context.Context, bs Blobstore, raw []byte, targetPurl, providerName string, xrefs []models.Xref) (string, error) {
	if targetPurl == "" {
		return "", models.NewError(models.KindValidation, "blobstore.WriteVulnerabilities", "purl is empty", nil)
	}
	key := fmt.Sprintf("vulnerabilities-%s-%s", providerName, purl.SafePurl(targetPurl))

	metadata := models.FlattenXrefs(xrefs)
	if _, err := bs.Put(ctx, key, raw, metadata); err != nil {
		return "", models.NewError(models.KindStorage, "blobstore.WriteVulnerabilities", key, err)
	}
	return key, nil
}

// WriteAnalytic writes an analytics report payload. Key convention:
// "analytic-<providerName>/<safe-purl>.json" (§6).
func WriteAnalytic(ctx context.Context, bs Blobstore, raw []byte, targetPurl, providerName string) (string, error) {
	key := fmt.Sprintf("analytic-%s/%s.json", providerName, purl.SafePurl(targetPurl))
	if _, err := bs.Put(ctx, key, raw, nil); err != nil {
		return "", models.NewError(models.KindStorage, "blobstore.WriteAnalytic", key, err)
	}
	return key, nil
}
