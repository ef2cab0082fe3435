package vulnapi

import (
	"testing"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

func TestVendorXrefFindsMatchingProvider(t *testing.T) {
	xrefs := []models.Xref{
		models.NewXref(models.NewXrefKind(models.XrefCodebase), map[string]string{"repo": "acme"}),
		models.NewXref(models.NewExternalXrefKind("snyk"), map[string]string{"orgId": "org1", "projectId": "p1"}),
	}

	org, project, ok := vendorXref(xrefs, "snyk")
	if !ok {
		t.Fatal("expected to find the snyk xref")
	}
	if org != "org1" || project != "p1" {
		t.Fatalf("unexpected org/project: %s/%s", org, project)
	}
}

func TestVendorXrefMissesOtherProviders(t *testing.T) {
	xrefs := []models.Xref{
		models.NewXref(models.NewExternalXrefKind("github"), map[string]string{"orgId": "org1", "projectId": "p1"}),
	}

	_, _, ok := vendorXref(xrefs, "snyk")
	if ok {
		t.Fatal("expected no match for a different provider")
	}
}

func TestVendorXrefRequiresBothIDs(t *testing.T) {
	xrefs := []models.Xref{
		models.NewXref(models.NewExternalXrefKind("snyk"), map[string]string{"orgId": "org1"}),
	}
	_, _, ok := vendorXref(xrefs, "snyk")
	if ok {
		t.Fatal("expected no match when projectId is missing")
	}
}

func TestSeverityFromString(t *testing.T) {
	cases := map[string]models.Severity{
		"low":      models.SeverityLow,
		"Medium":   models.SeverityMedium,
		"HIGH":     models.SeverityHigh,
		"critical": models.SeverityCritical,
		"unknown":  models.SeverityNone,
		"":         models.SeverityNone,
	}
	for in, want := range cases {
		if got := severityFromString(in); got != want {
			t.Errorf("severityFromString(%q) = %q, want %q", in, got, want)
		}
	}
}
