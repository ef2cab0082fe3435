// Package vulnsvc implements Vulnerability upsert-by-(purl,provider,cve) and
// the write-through of a Package's embedded vulnerability list to blob
// storage (spec §4.8).
package vulnsvc

import (
	"context"
	"encoding/json"

	"github.com/quantumlayerhq/sbom-enrich/pkg/blobstore"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

// vulnStore is the narrow slice of store.Store[*models.Vulnerability] this
// package uses. *store.Store[*models.Vulnerability] satisfies it; tests
// substitute a fake so the upsert/merge logic runs without a live database.
type vulnStore interface {
	Query(ctx context.Context, filter map[string]string) ([]*models.Vulnerability, error)
	Insert(ctx context.Context, doc *models.Vulnerability) error
	Update(ctx context.Context, doc *models.Vulnerability) error
}

// Service upserts Vulnerability records and writes a package's embedded
// vulnerabilities to blob storage.
type Service struct {
	vulns vulnStore
	blobs blobstore.Blobstore
	log   *logger.Logger
}

// New builds a Service over the Vulnerability collection and blob store.
func New(vulns vulnStore, blobs blobstore.Blobstore, log *logger.Logger) *Service {
	return &Service{vulns: vulns, blobs: blobs, log: log.WithComponent("vuln-service")}
}

// UpsertByPurl mirrors pkgsvc.UpsertByPurl's merge pattern, but keyed on the
// logical (purl, provider, cve) tuple (spec §3, §4.8) rather than purl alone.
func (s *Service) UpsertByPurl(ctx context.Context, v *models.Vulnerability) (*models.Vulnerability, error) {
	if v.Purl == "" {
		return nil, models.NewError(models.KindValidation, "vulnsvc.UpsertByPurl", "vulnerability purl is empty", nil)
	}

	// Provider is a nested VulnProviderKind object in the stored document, not
	// a top-level scalar, so it cannot be part of the containment filter
	// (store.Query only matches top-level fields by exact value). Query on
	// purl alone and match provider+cve in Go.
	existing, err := s.vulns.Query(ctx, map[string]string{"purl": v.Purl})
	if err != nil {
		return nil, err
	}

	var matches []*models.Vulnerability
	for _, e := range existing {
		if e.Provider.String() == v.Provider.String() && e.CVE == v.CVE {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		if err := s.vulns.Insert(ctx, v); err != nil {
			return nil, err
		}
		return v, nil
	case 1:
		current := matches[0]
		v.ID = current.ID
		v.TaskRefs = models.MergeTaskRefs(current.TaskRefs, v.TaskRefs)
		v.Xrefs = models.MergeXrefs(current.Xrefs, v.Xrefs)
		if v.EpssScore == nil {
			v.EpssScore = current.EpssScore
		}
		if err := s.vulns.Update(ctx, v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, models.NewError(models.KindValidation, "vulnsvc.UpsertByPurl",
			"duplicate_vulnerability_key: "+v.Purl+"/"+v.Provider.String()+"/"+v.CVE, nil)
	}
}

// StoreByPurl writes a package's embedded vulnerability list to blob
// storage, one file per (purl, provider), attaching the package's xrefs as
// blob metadata. The provider name used in the key is the first vulnerable
// entry's provider; a package with no embedded vulnerabilities is a no-op.
func (s *Service) StoreByPurl(ctx context.Context, pkg *models.Package) (string, error) {
	if len(pkg.Vulnerabilities) == 0 {
		return "", nil
	}

	raw, err := json.Marshal(pkg.Vulnerabilities)
	if err != nil {
		return "", models.NewError(models.KindInternal, "vulnsvc.StoreByPurl", "marshal vulnerabilities", err)
	}

	provider := pkg.Vulnerabilities[0].Provider.String()
	key, err := blobstore.WriteVulnerabilities(ctx, s.blobs, raw, pkg.Purl, provider, pkg.Xrefs)
	if err != nil {
		return "", err
	}

	s.log.InfoContext(ctx, "vulnerabilities written to blob storage",
		"purl", pkg.Purl, "provider", provider, "count", len(pkg.Vulnerabilities), "key", key)
	return key, nil
}
