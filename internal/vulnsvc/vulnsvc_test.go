package vulnsvc

import (
	"context"
	"strconv"
	"testing"

	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

func testLogger() *logger.Logger { return logger.New("error", "text") }

type fakeVulnStore struct {
	byID       map[string]*models.Vulnerability
	insertErr  error
	insertCall int
	updateCall int
}

func newFakeVulnStore() *fakeVulnStore {
	return &fakeVulnStore{byID: map[string]*models.Vulnerability{}}
}

func (f *fakeVulnStore) Query(ctx context.Context, filter map[string]string) ([]*models.Vulnerability, error) {
	purl, ok := filter["purl"]
	if !ok {
		return nil, nil
	}
	var out []*models.Vulnerability
	for _, v := range f.byID {
		if v.Purl == purl {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVulnStore) Insert(ctx context.Context, doc *models.Vulnerability) error {
	f.insertCall++
	if f.insertErr != nil {
		return f.insertErr
	}
	if doc.ID != "" {
		return models.NewError(models.KindValidation, "store.Insert", "client-generated ids are forbidden", nil)
	}
	doc.ID = "generated-id-" + strconv.Itoa(f.insertCall)
	f.byID[doc.ID] = doc
	return nil
}

func (f *fakeVulnStore) Update(ctx context.Context, doc *models.Vulnerability) error {
	f.updateCall++
	if _, ok := f.byID[doc.ID]; !ok {
		return models.NewError(models.KindNotFound, "store.Update", doc.ID, nil)
	}
	f.byID[doc.ID] = doc
	return nil
}

func snykVuln(purl, cve string) *models.Vulnerability {
	return &models.Vulnerability{
		Purl:     purl,
		Provider: models.NewVulnProviderKind(models.VulnProviderSnyk),
		CVE:      cve,
		Severity: models.SeverityHigh,
	}
}

// TestUpsertByPurlDedupsOnSecondUpsert covers the scenario the maintainer's
// review flagged: upserting the same (purl, provider, cve) twice must insert
// once and update in place on the second pass, not create a duplicate row.
func TestUpsertByPurlDedupsOnSecondUpsert(t *testing.T) {
	store := newFakeVulnStore()
	svc := New(store, nil, testLogger())
	ctx := context.Background()

	first, err := svc.UpsertByPurl(ctx, snykVuln("pkg:npm/left-pad@1.3.0", "CVE-2020-1234"))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected an id to be assigned on insert")
	}

	second, err := svc.UpsertByPurl(ctx, snykVuln("pkg:npm/left-pad@1.3.0", "CVE-2020-1234"))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if store.insertCall != 1 {
		t.Fatalf("expected exactly 1 insert, got %d", store.insertCall)
	}
	if store.updateCall != 1 {
		t.Fatalf("expected exactly 1 update, got %d", store.updateCall)
	}
	if second.ID != first.ID {
		t.Fatalf("second upsert should reuse the existing id: got %q, want %q", second.ID, first.ID)
	}
	if len(store.byID) != 1 {
		t.Fatalf("expected exactly 1 stored vulnerability, got %d", len(store.byID))
	}
}

// TestUpsertByPurlMatchesByProviderAndCVENotJustPurl guards against the fix
// regressing into an overly broad purl-only match: two different providers
// or CVEs for the same purl must remain distinct rows.
func TestUpsertByPurlMatchesByProviderAndCVENotJustPurl(t *testing.T) {
	store := newFakeVulnStore()
	svc := New(store, nil, testLogger())
	ctx := context.Background()

	if _, err := svc.UpsertByPurl(ctx, snykVuln("pkg:npm/left-pad@1.3.0", "CVE-2020-1234")); err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	if _, err := svc.UpsertByPurl(ctx, snykVuln("pkg:npm/left-pad@1.3.0", "CVE-2021-5678")); err != nil {
		t.Fatalf("upsert 2 (different cve): %v", err)
	}

	other := snykVuln("pkg:npm/left-pad@1.3.0", "CVE-2020-1234")
	other.Provider = models.NewVulnProviderKind(models.VulnProviderIonChannel)
	if _, err := svc.UpsertByPurl(ctx, other); err != nil {
		t.Fatalf("upsert 3 (different provider): %v", err)
	}

	if store.insertCall != 3 {
		t.Fatalf("expected 3 distinct inserts, got %d", store.insertCall)
	}
	if len(store.byID) != 3 {
		t.Fatalf("expected 3 stored vulnerabilities, got %d", len(store.byID))
	}
}

// TestUpsertByPurlUpdatesInPlaceForListedVulnerability covers epss's path:
// it lists existing vulnerabilities (so ID is already set) and re-upserts
// them with an EpssScore attached. The provider/cve match must find the
// existing row so the upsert takes the Update branch instead of Insert,
// which previously rejected a non-empty client id.
func TestUpsertByPurlUpdatesInPlaceForListedVulnerability(t *testing.T) {
	store := newFakeVulnStore()
	svc := New(store, nil, testLogger())
	ctx := context.Background()

	inserted, err := svc.UpsertByPurl(ctx, snykVuln("pkg:npm/left-pad@1.3.0", "CVE-2020-1234"))
	if err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	score := 0.87
	listed := snykVuln("pkg:npm/left-pad@1.3.0", "CVE-2020-1234")
	listed.ID = inserted.ID
	listed.EpssScore = &score

	updated, err := svc.UpsertByPurl(ctx, listed)
	if err != nil {
		t.Fatalf("epss re-upsert should update in place, got error: %v", err)
	}
	if store.insertCall != 1 {
		t.Fatalf("expected no additional insert, insertCall=%d", store.insertCall)
	}
	if store.updateCall != 1 {
		t.Fatalf("expected exactly 1 update, got %d", store.updateCall)
	}
	if updated.EpssScore == nil || *updated.EpssScore != score {
		t.Fatalf("expected epss score to carry through, got %v", updated.EpssScore)
	}
}

func TestUpsertByPurlRejectsEmptyPurl(t *testing.T) {
	svc := New(newFakeVulnStore(), nil, testLogger())
	_, err := svc.UpsertByPurl(context.Background(), &models.Vulnerability{CVE: "CVE-2020-1234"})
	if !models.IsKind(err, models.KindValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}
