// Package pkgsvc implements the Package upsert-by-purl service (spec §4.7):
// the aggregate-root reconciliation that merges a newly-observed Package
// into any existing record sharing the same purl.
package pkgsvc

import (
	"context"

	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

// packageStore is the narrow slice of store.Store[*models.Package] this
// package uses. *store.Store[*models.Package] satisfies it; tests substitute
// a fake so the upsert/merge logic runs without a live database.
type packageStore interface {
	Query(ctx context.Context, filter map[string]string) ([]*models.Package, error)
	Insert(ctx context.Context, doc *models.Package) error
	Update(ctx context.Context, doc *models.Package) error
}

// unsupportedStore is the equivalent narrow slice for UnsupportedPackage.
type unsupportedStore interface {
	Query(ctx context.Context, filter map[string]string) ([]*models.UnsupportedPackage, error)
	Insert(ctx context.Context, doc *models.UnsupportedPackage) error
	Update(ctx context.Context, doc *models.UnsupportedPackage) error
}

// Service upserts Package and UnsupportedPackage records by their logical key.
type Service struct {
	packages    packageStore
	unsupported unsupportedStore
	log         *logger.Logger
}

// New builds a Service over the given collections.
func New(packages packageStore, unsupported unsupportedStore, log *logger.Logger) *Service {
	return &Service{packages: packages, unsupported: unsupported, log: log.WithComponent("pkg-service")}
}

// UpsertByPurl implements spec §4.7:
//  1. reject an empty purl.
//  2. query for an existing Package with the same purl; more than one match
//     is a duplicate-purl data-corruption signal and fails.
//  3. zero matches: insert and return.
//  4. one match: copy its id onto newPkg, merge task refs (dedup by task id)
//     and xrefs (set-union), and overwrite with Update.
func (s *Service) UpsertByPurl(ctx context.Context, newPkg *models.Package, xref *models.Xref) (*models.Package, error) {
	if newPkg.Purl == "" {
		return nil, models.NewError(models.KindValidation, "pkgsvc.UpsertByPurl", "package purl is empty", nil)
	}

	existing, err := s.packages.Query(ctx, map[string]string{"purl": newPkg.Purl})
	if err != nil {
		return nil, err
	}

	if xref != nil {
		newPkg.Xrefs = models.MergeXrefs(newPkg.Xrefs, []models.Xref{*xref})
	}

	switch len(existing) {
	case 0:
		if err := s.packages.Insert(ctx, newPkg); err != nil {
			return nil, err
		}
		s.log.InfoContext(ctx, "package inserted", "purl", newPkg.Purl, "kind", newPkg.Kind)
		return newPkg, nil
	case 1:
		current := existing[0]
		newPkg.ID = current.ID
		newPkg.TaskRefs = models.MergeTaskRefs(current.TaskRefs, newPkg.TaskRefs)
		newPkg.Xrefs = models.MergeXrefs(current.Xrefs, newPkg.Xrefs)
		if newPkg.CPE == "" {
			newPkg.CPE = current.CPE
		}
		if len(newPkg.Vulnerabilities) == 0 {
			newPkg.Vulnerabilities = current.Vulnerabilities
		}
		if err := s.packages.Update(ctx, newPkg); err != nil {
			return nil, err
		}
		s.log.InfoContext(ctx, "package merged", "purl", newPkg.Purl, "kind", newPkg.Kind)
		return newPkg, nil
	default:
		return nil, models.NewError(models.KindValidation, "pkgsvc.UpsertByPurl",
			"duplicate_package_purl: "+newPkg.Purl, nil)
	}
}

// UpsertUnsupported mirrors UpsertByPurl for components that lack a valid
// purl, keyed by ExternalID instead.
func (s *Service) UpsertUnsupported(ctx context.Context, u *models.UnsupportedPackage) (*models.UnsupportedPackage, error) {
	if u.ExternalID == "" {
		return nil, models.NewError(models.KindValidation, "pkgsvc.UpsertUnsupported", "external id is empty", nil)
	}

	existing, err := s.unsupported.Query(ctx, map[string]string{"externalId": u.ExternalID})
	if err != nil {
		return nil, err
	}

	switch len(existing) {
	case 0:
		if err := s.unsupported.Insert(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	case 1:
		current := existing[0]
		u.ID = current.ID
		u.TaskRefs = models.MergeTaskRefs(current.TaskRefs, u.TaskRefs)
		u.Xrefs = models.MergeXrefs(current.Xrefs, u.Xrefs)
		if err := s.unsupported.Update(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, models.NewError(models.KindValidation, "pkgsvc.UpsertUnsupported",
			"duplicate_unsupported_external_id: "+u.ExternalID, nil)
	}
}

// DependenciesByPurl returns the Dependencies list stored on the first
// package found with the given purl, as stored (document order, duplicates
// kept), or nil if the package is unknown or has no dependencies. The
// package's kind is not checked; Dependency packages carry no list.
func (s *Service) DependenciesByPurl(ctx context.Context, purl string) ([]string, error) {
	matches, err := s.packages.Query(ctx, map[string]string{"purl": purl})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0].Dependencies, nil
}
