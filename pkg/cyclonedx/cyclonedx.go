// Package cyclonedx parses the canonical CycloneDX JSON SBOM format and
// extracts the shapes the ingest pipeline needs: the top-level component and
// its flat dependency-component list.
package cyclonedx

import (
	"bytes"
	"net/url"
	"strings"

	cdx "github.com/CycloneDX/cyclonedx-go"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/purl"
)

// Document is the subset of a parsed CycloneDX BOM the ingest pipeline acts on.
type Document struct {
	Format    models.SbomFormat
	Component models.Component
	// ComponentPurl is the purl attached to the top-level component, if any.
	ComponentPurl string
	// Dependencies is the flat list of non-top-level components, each with
	// its (URL-decoded) purl. Entries whose purl could not be parsed are
	// skipped, not fatal.
	Dependencies []DependencyComponent
}

// DependencyComponent is one dependency-component entry with its purl.
type DependencyComponent struct {
	Purl      string
	Component models.Component
}

// Parse decodes raw bytes as CycloneDX 1.4 JSON. XML is rejected with
// KindInvalidFormat; Spdx variants are rejected with KindNotSupported at a
// higher layer (Parse only ever sees bytes the caller has already classified
// as "claims to be CycloneDX JSON").
func Parse(raw []byte) (*Document, error) {
	if looksLikeXML(raw) {
		return nil, models.NewError(models.KindInvalidFormat, "cyclonedx.Parse",
			"CycloneDX XML is not accepted, only CycloneDX JSON", nil)
	}

	var bom cdx.BOM
	decoder := cdx.NewBOMDecoder(bytes.NewReader(raw), cdx.BOMFileFormatJSON)
	if err := decoder.Decode(&bom); err != nil {
		return nil, models.NewError(models.KindInvalidFormat, "cyclonedx.Parse", "invalid CycloneDX JSON", err)
	}

	doc := &Document{Format: models.FormatCycloneDxJSON}

	if bom.Metadata != nil && bom.Metadata.Component != nil {
		c := bom.Metadata.Component
		doc.Component = models.Component{
			Name:    c.Name,
			Version: c.Version,
			CPE:     c.CPE,
		}
		if c.Supplier != nil {
			doc.Component.Supplier = c.Supplier.Name
		}
		doc.ComponentPurl = c.PackageURL
	}

	if bom.Components != nil {
		for _, c := range *bom.Components {
			if c.PackageURL == "" {
				continue
			}
			if _, err := purl.Parse(c.PackageURL); err != nil {
				continue
			}
			decoded, err := url.PathUnescape(c.PackageURL)
			if err != nil {
				continue
			}
			dep := DependencyComponent{
				Purl: decoded,
				Component: models.Component{
					Name:    c.Name,
					Version: c.Version,
					CPE:     c.CPE,
				},
			}
			if c.Supplier != nil {
				dep.Component.Supplier = c.Supplier.Name
			}
			doc.Dependencies = append(doc.Dependencies, dep)
		}
	}

	return doc, nil
}

// DependencyPurls returns the purl of every dependency component, in document order.
func (d *Document) DependencyPurls() []string {
	purls := make([]string, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		purls = append(purls, dep.Purl)
	}
	return purls
}

func looksLikeXML(raw []byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || strings.HasPrefix(string(trimmed), "<bom")
}

// ClassifyFormat inspects raw bytes and a declared content hint to decide the
// SbomFormat before a full parse is attempted, per §4.3's "xml is rejected,
// Spdx is not-supported" rule.
func ClassifyFormat(raw []byte, declaredFormat string) (models.SbomFormat, error) {
	lowered := strings.ToLower(declaredFormat)
	switch {
	case strings.Contains(lowered, "spdx"):
		return "", models.NewError(models.KindNotSupported, "cyclonedx.ClassifyFormat",
			"Spdx is not supported for parsing", nil)
	case looksLikeXML(raw), strings.Contains(lowered, "xml"):
		return "", models.NewError(models.KindInvalidFormat, "cyclonedx.ClassifyFormat",
			"CycloneDX XML is not supported", nil)
	default:
		return models.FormatCycloneDxJSON, nil
	}
}
