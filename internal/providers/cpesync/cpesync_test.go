package cpesync

import (
	"testing"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

func TestChooseCPENoMatch(t *testing.T) {
	if got := chooseCPE(nil); got != unknownCPE {
		t.Fatalf("expected %q, got %q", unknownCPE, got)
	}
}

func TestChooseCPEMatchWithNoCPEs(t *testing.T) {
	matches := []*models.Purl2Cpes{{Purl: "pkg:npm/left-pad@1.3.0", CPEs: nil}}
	if got := chooseCPE(matches); got != unknownCPE {
		t.Fatalf("expected %q, got %q", unknownCPE, got)
	}
}

func TestChooseCPEMatchReturnsFirstCPE(t *testing.T) {
	matches := []*models.Purl2Cpes{{
		Purl: "pkg:npm/lodash@4.17.21",
		CPEs: []string{"cpe:2.3:a:lodash:lodash:4.17.21:*:*:*:*:*:*:*", "cpe:2.3:a:lodash_project:lodash:4.17.21:*:*:*:*:*:*:*"},
	}}
	want := "cpe:2.3:a:lodash:lodash:4.17.21:*:*:*:*:*:*:*"
	if got := chooseCPE(matches); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
