// Package analytics implements the document-aggregation reporting the task
// framework drives for ad-hoc reports (spec §4.9): a static pipeline-stage
// builder plus the two concrete reports the core needs — the set of primary
// purls that drive detail-report generation, and a flat Sbom→Package→
// Vulnerability join for CSV export.
package analytics

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/quantumlayerhq/sbom-enrich/pkg/blobstore"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
)

// Service runs aggregation pipelines against the document store and, where
// requested, writes the resulting report to blob storage.
type Service struct {
	pool  *store.Pool
	blobs blobstore.Blobstore
	log   *logger.Logger
}

// New builds an analytics Service.
func New(pool *store.Pool, blobs blobstore.Blobstore, log *logger.Logger) *Service {
	return &Service{pool: pool, blobs: blobs, log: log.WithComponent("analytics-service")}
}

// PrimaryPurls returns the purl of every Primary Package, via a
// $match/$project pipeline over the Package collection. This is the pipeline
// the core uses to drive per-purl detail-report generation.
func (s *Service) PrimaryPurls(ctx context.Context) ([]string, error) {
	pipeline := []store.Stage{
		{"$match": map[string]any{"kind": string(models.PackagePrimary)}},
		{"$project": map[string]any{"purl": "purl"}},
	}

	rows, err := s.pool.Aggregate(ctx, models.Package{}.CollectionName(), pipeline)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "analytics.PrimaryPurls", "aggregate", err)
	}

	purls := make([]string, 0, len(rows))
	for _, row := range rows {
		if p, ok := row["purl"].(string); ok && p != "" {
			purls = append(purls, p)
		}
	}
	return purls, nil
}

// SummaryRow is one flattened Sbom→Package→Vulnerability row, the shape the
// CSV export produces.
type SummaryRow struct {
	Purl            string
	SbomVersion     string
	PackageKind     string
	VulnerabilityID string
	Severity        string
	CVE             string
}

// ExportSummary joins the Sbom, Package, and Vulnerability collections into
// the flat shape used for CSV export, via $lookup from Sbom into Package
// (on purl) and, per joined package, a $match plus $lookup from Package into
// Vulnerability (on purl). The joined arrays are walked in Go, with no
// $unwind stage: one row per vulnerability, or a single row with empty
// vulnerability fields for a package that has none.
func (s *Service) ExportSummary(ctx context.Context) ([]SummaryRow, error) {
	pipeline := []store.Stage{
		{"$lookup": map[string]any{
			"from": models.Package{}.CollectionName(), "localField": "purl",
			"foreignField": "purl", "as": "packages",
		}},
	}

	sboms, err := s.pool.Aggregate(ctx, models.Sbom{}.CollectionName(), pipeline)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "analytics.ExportSummary", "aggregate sboms", err)
	}

	vulnPipeline := []store.Stage{
		{"$lookup": map[string]any{
			"from": models.Vulnerability{}.CollectionName(), "localField": "purl",
			"foreignField": "purl", "as": "vulns",
		}},
	}

	var rows []SummaryRow
	for _, sbomDoc := range sboms {
		purl, _ := sbomDoc["purl"].(string)
		version, _ := sbomDoc["version"].(float64)

		packages, _ := sbomDoc["packages"].([]any)
		for _, pRaw := range packages {
			pkg, ok := pRaw.(map[string]any)
			if !ok {
				continue
			}
			pkgKind, _ := pkg["kind"].(string)

			pkgJoined, err := s.pool.Aggregate(ctx, models.Package{}.CollectionName(), append(
				[]store.Stage{{"$match": map[string]any{"purl": purl}}}, vulnPipeline...))
			if err != nil {
				return nil, models.NewError(models.KindStorage, "analytics.ExportSummary", "aggregate vulns", err)
			}

			appended := false
			for _, joined := range pkgJoined {
				vulns, _ := joined["vulns"].([]any)
				for _, vRaw := range vulns {
					v, ok := vRaw.(map[string]any)
					if !ok {
						continue
					}
					appended = true
					rows = append(rows, SummaryRow{
						Purl:            purl,
						SbomVersion:     strconv.Itoa(int(version)),
						PackageKind:     pkgKind,
						VulnerabilityID: fmt.Sprintf("%v", v["id"]),
						Severity:        fmt.Sprintf("%v", v["severity"]),
						CVE:             fmt.Sprintf("%v", v["cve"]),
					})
				}
			}
			if !appended {
				rows = append(rows, SummaryRow{Purl: purl, SbomVersion: strconv.Itoa(int(version)), PackageKind: pkgKind})
			}
		}
	}

	return rows, nil
}

// WriteCSV serializes rows as CSV and writes the result to blob storage under
// the analytics key convention (§6), returning the key used.
func (s *Service) WriteCSV(ctx context.Context, rows []SummaryRow, providerName string) (string, error) {
	buf := &csvBuffer{}
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"purl", "sbom_version", "package_kind", "vulnerability_id", "severity", "cve"}); err != nil {
		return "", models.NewError(models.KindInternal, "analytics.WriteCSV", "write header", err)
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Purl, r.SbomVersion, r.PackageKind, r.VulnerabilityID, r.Severity, r.CVE}); err != nil {
			return "", models.NewError(models.KindInternal, "analytics.WriteCSV", "write row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", models.NewError(models.KindInternal, "analytics.WriteCSV", "flush", err)
	}

	key, err := blobstore.WriteAnalytic(ctx, s.blobs, buf.Bytes(), "export", providerName)
	if err != nil {
		return "", err
	}

	s.log.InfoContext(ctx, "analytics summary written", "rows", len(rows), "key", key)
	return key, nil
}

// csvBuffer is the minimal io.Writer encoding/csv needs; avoids pulling in
// bytes.Buffer just to satisfy the interface at one call site.
type csvBuffer struct {
	data []byte
}

func (b *csvBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *csvBuffer) Bytes() []byte { return b.data }
