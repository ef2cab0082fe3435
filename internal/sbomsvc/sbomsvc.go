// Package sbomsvc implements the SBOM ingest pipeline (spec §4.5–§4.6): parse
// raw bytes into the canonical document, derive a purl, assign the next
// version for that purl, upsert the Sbom and its Package graph, and write
// the raw bytes through to blob storage with a checksum follow-up update.
package sbomsvc

import (
	"context"
	"strconv"
	"time"

	"github.com/quantumlayerhq/sbom-enrich/internal/pkgsvc"
	"github.com/quantumlayerhq/sbom-enrich/pkg/blobstore"
	"github.com/quantumlayerhq/sbom-enrich/pkg/cyclonedx"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/purl"
)

// sbomStore is the narrow slice of store.Store[*models.Sbom] this package
// uses. *store.Store[*models.Sbom] satisfies it; tests substitute a fake so
// the ingest pipeline runs without a live database.
type sbomStore interface {
	Query(ctx context.Context, filter map[string]string) ([]*models.Sbom, error)
	Insert(ctx context.Context, doc *models.Sbom) error
	Update(ctx context.Context, doc *models.Sbom) error
}

// Service drives the ingest pipeline.
type Service struct {
	sboms    sbomStore
	packages *pkgsvc.Service
	blobs    blobstore.Blobstore
	log      *logger.Logger
}

// New builds an ingest Service.
func New(sboms sbomStore, packages *pkgsvc.Service, blobs blobstore.Blobstore, log *logger.Logger) *Service {
	return &Service{sboms: sboms, packages: packages, blobs: blobs, log: log.WithComponent("sbom-service")}
}

// Ingest implements spec §4.5's numbered steps.
func (s *Service) Ingest(ctx context.Context, raw []byte, packageManager string, providerKind models.ProviderKind, xref models.Xref, task *models.Task) (*models.Sbom, error) {
	format, err := cyclonedx.ClassifyFormat(raw, "")
	if err != nil {
		return nil, err
	}

	doc, err := cyclonedx.Parse(raw)
	if err != nil {
		return nil, models.NewError(models.KindInvalidFormat, "sbomsvc.Ingest", "parse sbom", err)
	}

	p, err := s.derivePurl(doc)
	if err != nil {
		return nil, err
	}

	version, err := s.nextVersion(ctx, p)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sbom := &models.Sbom{
		Purl:           p,
		Version:        version,
		Format:         format,
		ProviderKind:   providerKind,
		Timestamp:      now.Unix(),
		Instance:       strconv.FormatInt(now.Unix(), 10),
		Component:      doc.Component,
		PackageManager: packageManager,
		Xrefs:          []models.Xref{xref},
	}
	if task != nil {
		sbom.TaskRefs = []models.TaskRef{task.TaskRef(p)}
	}

	if err := s.sboms.Insert(ctx, sbom); err != nil {
		return nil, err
	}

	primary := &models.Package{
		Purl:          p,
		Kind:          models.PackagePrimary,
		Name:          doc.Component.Name,
		Version:       doc.Component.Version,
		CPE:           doc.Component.CPE,
		PackageManager: packageManager,
		ProviderKind:  providerKind,
		Dependencies:  doc.DependencyPurls(),
	}
	if task != nil {
		primary.TaskRefs = []models.TaskRef{task.TaskRef(p)}
	}
	if _, err := s.packages.UpsertByPurl(ctx, primary, &xref); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(doc.Dependencies))
	for _, dep := range doc.Dependencies {
		if dep.Purl == "" || seen[dep.Purl] {
			continue
		}
		seen[dep.Purl] = true

		depPkg := &models.Package{
			Purl:          dep.Purl,
			Kind:          models.PackageDependency,
			Name:          dep.Component.Name,
			Version:       dep.Component.Version,
			CPE:           dep.Component.CPE,
			PackageManager: packageManager,
			ProviderKind:  providerKind,
		}
		if task != nil {
			depPkg.TaskRefs = []models.TaskRef{task.TaskRef(dep.Purl)}
		}
		if _, err := s.packages.UpsertByPurl(ctx, depPkg, &xref); err != nil {
			return nil, err
		}
	}

	key, err := blobstore.WriteSbom(ctx, s.blobs, raw, sbom)
	if err != nil {
		return nil, err
	}

	if err := s.sboms.Update(ctx, sbom); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "sbom ingested",
		"purl", p, "version", version, "format", format, "blob_key", key,
		"dependency_count", len(seen))

	return sbom, nil
}

// nextVersion queries existing Sboms sharing purl and returns one past the
// current maximum (spec §4.6). Relies on the scheduling model (spec §5) to
// serialize concurrent ingests of the same purl; a lost race surfaces as a
// unique-constraint violation on the eventual insert, which the caller (a
// task's Run loop) records as a per-target error.
func (s *Service) nextVersion(ctx context.Context, p string) (int, error) {
	existing, err := s.sboms.Query(ctx, map[string]string{"purl": p})
	if err != nil {
		return 0, err
	}
	max := 0
	for _, e := range existing {
		if e.Version > max {
			max = e.Version
		}
	}
	return max + 1, nil
}

// derivePurl returns the top-level component's purl, synthesizing one from
// a dependency purl when the component didn't carry its own (spec §4.3).
func (s *Service) derivePurl(doc *cyclonedx.Document) (string, error) {
	if doc.ComponentPurl != "" {
		return doc.ComponentPurl, nil
	}
	synthesized, err := purl.Synthesize(doc.Component.Name, doc.Component.Version, doc.DependencyPurls())
	if err != nil {
		return "", models.NewError(models.KindValidation, "sbomsvc.derivePurl", "no derivable purl", err)
	}
	return synthesized, nil
}
