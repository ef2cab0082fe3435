package purl2cpe

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectRowsWalksNestedPairs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "npm", "lodash", "purls.yaml"), "purls:\n  - pkg:npm/lodash@4.17.21\n")
	writeFile(t, filepath.Join(root, "npm", "lodash", "cpes.yaml"), "cpes:\n  - cpe:2.3:a:lodash:lodash:4.17.21:*:*:*:*:*:*:*\n")
	writeFile(t, filepath.Join(root, "pip", "requests", "purls.yaml"), "purls:\n  - pkg:pypi/requests@2.28.0\n  - pkg:pypi/requests@2.28.1\n")
	writeFile(t, filepath.Join(root, "pip", "requests", "cpes.yaml"), "cpes:\n  - cpe:2.3:a:psf:requests:2.28.0:*:*:*:*:*:*:*\n")

	rows, refErrs, err := collectRows(root)
	if err != nil {
		t.Fatalf("collectRows: %v", err)
	}
	if len(refErrs) != 0 {
		t.Fatalf("unexpected per-pair errors: %v", refErrs)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (1 lodash + 2 requests), got %d", len(rows))
	}
}

func TestCollectRowsSkipsPairMissingCpesFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "broken", "purls.yaml"), "purls:\n  - pkg:npm/broken@1.0.0\n")

	rows, refErrs, err := collectRows(root)
	if err != nil {
		t.Fatalf("collectRows: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows for an incomplete pair, got %d", len(rows))
	}
	if len(refErrs) != 1 {
		t.Fatalf("expected one recorded pair error, got %d", len(refErrs))
	}
}

func TestLoadPairParsesBothFiles(t *testing.T) {
	root := t.TempDir()
	purlsPath := filepath.Join(root, "purls.yaml")
	cpesPath := filepath.Join(root, "cpes.yaml")
	writeFile(t, purlsPath, "purls:\n  - pkg:npm/left-pad@1.3.0\n")
	writeFile(t, cpesPath, "cpes:\n  - cpe:2.3:a:left-pad_project:left-pad:1.3.0:*:*:*:*:*:*:*\n")

	purls, cpes, err := loadPair(purlsPath, cpesPath)
	if err != nil {
		t.Fatalf("loadPair: %v", err)
	}
	if len(purls) != 1 || purls[0] != "pkg:npm/left-pad@1.3.0" {
		t.Fatalf("unexpected purls: %v", purls)
	}
	if len(cpes) != 1 {
		t.Fatalf("unexpected cpes: %v", cpes)
	}
}
