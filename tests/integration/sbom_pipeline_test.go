//go:build integration

// Package integration contains end-to-end tests for the SBOM ingestion and
// enrichment pipeline against a real PostgreSQL instance.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantumlayerhq/sbom-enrich/internal/pkgsvc"
	"github.com/quantumlayerhq/sbom-enrich/internal/sbomsvc"
	"github.com/quantumlayerhq/sbom-enrich/pkg/blobstore"
	"github.com/quantumlayerhq/sbom-enrich/pkg/config"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
)

const minimalBOM = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.4",
  "version": 1,
  "metadata": {
    "component": {"type": "application", "name": "acme-app", "version": "1.0.0", "purl": "pkg:npm/acme-app@1.0.0"}
  },
  "components": []
}`

const dependencyExpansionBOM = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.4",
  "version": 1,
  "metadata": {
    "component": {"type": "application", "name": "acme-app", "version": "1.0.0", "purl": "pkg:npm/acme-app@1.0.0"}
  },
  "components": [
    {"type": "library", "name": "left-pad", "version": "1.3.0", "purl": "pkg:npm/left-pad@1.3.0"},
    {"type": "library", "name": "chalk", "version": "4.1.2", "purl": "pkg:npm/chalk@4.1.2"}
  ]
}`

const missingTopLevelPurlBOM = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.4",
  "version": 1,
  "metadata": {
    "component": {"type": "application", "name": "acme-app", "version": "1.0.0"}
  },
  "components": [
    {"type": "library", "name": "left-pad", "version": "1.3.0", "purl": "pkg:npm/left-pad@1.3.0"}
  ]
}`

// newTestServices wires a fresh sbomsvc/pkgsvc pair against the configured
// database, dropping the Sbom, Package and UnsupportedPackage collections
// first so every test starts from empty tables, and gives each test its own
// blobstore temp dir so blob writes never collide across tests.
func newTestServices(t *testing.T) (*sbomsvc.Service, *store.Store[*models.Sbom], *store.Store[*models.Package]) {
	t.Helper()

	dbURL := os.Getenv("SBOM_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: SBOM_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := store.NewPool(ctx, config.DatabaseConfig{URL: dbURL, MaxOpenConns: 5, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	sboms, err := store.NewStore[*models.Sbom](ctx, pool, "Sbom")
	require.NoError(t, err)
	packages, err := store.NewStore[*models.Package](ctx, pool, "Package")
	require.NoError(t, err)
	unsupported, err := store.NewStore[*models.UnsupportedPackage](ctx, pool, "UnsupportedPackage")
	require.NoError(t, err)
	require.NoError(t, sboms.DropCollection(ctx))
	require.NoError(t, packages.DropCollection(ctx))
	require.NoError(t, unsupported.DropCollection(ctx))

	blobs, err := blobstore.NewFSBlobstore(t.TempDir())
	require.NoError(t, err)

	log := logger.New("error", "text")
	pkgs := pkgsvc.New(packages, unsupported, log)
	sbom := sbomsvc.New(sboms, pkgs, blobs, log)

	return sbom, sboms, packages
}

func testXref() models.Xref {
	return models.NewXref(models.NewXrefKind(models.XrefCodebase), map[string]string{"source": "integration-test"})
}

// TestIngestMinimal covers spec end-to-end scenario 1: a component-only BOM
// produces one Sbom and one Primary Package, version 1.
func TestIngestMinimal(t *testing.T) {
	sbom, _, packages := newTestServices(t)
	ctx := context.Background()

	result, err := sbom.Ingest(ctx, []byte(minimalBOM), "npm", models.NewProviderKind(models.ProviderHarborSyft), testXref(), nil)
	require.NoError(t, err)
	require.Equal(t, "pkg:npm/acme-app@1.0.0", result.Purl)
	require.Equal(t, 1, result.Version)
	require.NotEmpty(t, result.ChecksumSha256)

	matches, err := packages.Query(ctx, map[string]string{"purl": "pkg:npm/acme-app@1.0.0"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, models.PackagePrimary, matches[0].Kind)
}

// TestIngestDependencyExpansion covers spec end-to-end scenario 2: every
// dependency component becomes its own Dependency Package.
func TestIngestDependencyExpansion(t *testing.T) {
	sbom, _, packages := newTestServices(t)
	ctx := context.Background()

	_, err := sbom.Ingest(ctx, []byte(dependencyExpansionBOM), "npm", models.NewProviderKind(models.ProviderHarborSyft), testXref(), nil)
	require.NoError(t, err)

	for _, purl := range []string{"pkg:npm/left-pad@1.3.0", "pkg:npm/chalk@4.1.2"} {
		matches, err := packages.Query(ctx, map[string]string{"purl": purl})
		require.NoError(t, err)
		require.Lenf(t, matches, 1, "expected exactly one Package for %s", purl)
		require.Equal(t, models.PackageDependency, matches[0].Kind)
	}
}

// TestIngestRepeatIncrementsVersion covers spec end-to-end scenario 3:
// ingesting the same purl twice assigns version 1 then version 2.
func TestIngestRepeatIncrementsVersion(t *testing.T) {
	sbom, _, _ := newTestServices(t)
	ctx := context.Background()

	first, err := sbom.Ingest(ctx, []byte(minimalBOM), "npm", models.NewProviderKind(models.ProviderHarborSyft), testXref(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, first.Version)

	second, err := sbom.Ingest(ctx, []byte(minimalBOM), "npm", models.NewProviderKind(models.ProviderHarborSyft), testXref(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, second.Version)
}

// TestIngestSynthesizesMissingTopLevelPurl covers spec end-to-end scenario 4:
// a component with no purl of its own gets one synthesized from its
// dependency graph.
func TestIngestSynthesizesMissingTopLevelPurl(t *testing.T) {
	sbom, _, _ := newTestServices(t)
	ctx := context.Background()

	result, err := sbom.Ingest(ctx, []byte(missingTopLevelPurlBOM), "npm", models.NewProviderKind(models.ProviderHarborSyft), testXref(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Purl)
	require.Equal(t, "acme-app", result.Component.Name)
}
