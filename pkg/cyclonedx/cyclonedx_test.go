package cyclonedx

import (
	"testing"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

const minimalBOM = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.4",
  "version": 1,
  "metadata": {
    "component": {
      "type": "application",
      "name": "acme-app",
      "version": "1.0.0",
      "purl": "pkg:npm/acme-app@1.0.0"
    }
  },
  "components": []
}`

const dependencyExpansionBOM = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.4",
  "version": 1,
  "metadata": {
    "component": {
      "type": "application",
      "name": "acme-app",
      "version": "1.0.0",
      "purl": "pkg:npm/acme-app@1.0.0"
    }
  },
  "components": [
    {"type": "library", "name": "left-pad", "version": "1.3.0", "purl": "pkg:npm/left-pad@1.3.0"},
    {"type": "library", "name": "chalk", "version": "4.1.2", "purl": "pkg:npm/chalk@4.1.2"}
  ]
}`

func TestParseMinimalBOM(t *testing.T) {
	doc, err := Parse([]byte(minimalBOM))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ComponentPurl != "pkg:npm/acme-app@1.0.0" {
		t.Fatalf("got component purl %q", doc.ComponentPurl)
	}
	if doc.Component.Name != "acme-app" || doc.Component.Version != "1.0.0" {
		t.Fatalf("unexpected component: %+v", doc.Component)
	}
	if len(doc.Dependencies) != 0 {
		t.Fatalf("expected no dependencies, got %d", len(doc.Dependencies))
	}
}

func TestParseDependencyExpansion(t *testing.T) {
	doc, err := Parse([]byte(dependencyExpansionBOM))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	purls := doc.DependencyPurls()
	if len(purls) != 2 || purls[0] != "pkg:npm/left-pad@1.3.0" || purls[1] != "pkg:npm/chalk@4.1.2" {
		t.Fatalf("unexpected dependency purls: %+v", purls)
	}
}

func TestParseRejectsXML(t *testing.T) {
	_, err := Parse([]byte(`<?xml version="1.0"?><bom xmlns="http://cyclonedx.org/schema/bom/1.4"></bom>`))
	if err == nil {
		t.Fatal("expected error for XML input")
	}
	if !models.IsKind(err, models.KindInvalidFormat) {
		t.Fatalf("expected KindInvalidFormat, got %v", err)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if !models.IsKind(err, models.KindInvalidFormat) {
		t.Fatalf("expected KindInvalidFormat, got %v", err)
	}
}

func TestClassifyFormatRejectsSpdx(t *testing.T) {
	_, err := ClassifyFormat([]byte(`{}`), "SPDX-2.3")
	if err == nil || !models.IsKind(err, models.KindNotSupported) {
		t.Fatalf("expected KindNotSupported, got %v", err)
	}
}

func TestClassifyFormatRejectsXML(t *testing.T) {
	_, err := ClassifyFormat([]byte(`<?xml version="1.0"?>`), "")
	if err == nil || !models.IsKind(err, models.KindInvalidFormat) {
		t.Fatalf("expected KindInvalidFormat, got %v", err)
	}
}

func TestClassifyFormatAcceptsCycloneDxJSON(t *testing.T) {
	format, err := ClassifyFormat([]byte(minimalBOM), "CycloneDX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != models.FormatCycloneDxJSON {
		t.Fatalf("got format %q", format)
	}
}
