// Package purl parses and synthesizes Package URLs, and compares them under
// the case-sensitive, URL-decoded equality the canonical model relies on.
package purl

import (
	"github.com/package-url/packageurl-go"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

// Parse decodes a purl string into its components. Callers compare the
// returned value's ToString() output, which is already URL-decoded and
// case-preserved, never the raw input string.
func Parse(raw string) (packageurl.PackageURL, error) {
	p, err := packageurl.FromString(raw)
	if err != nil {
		return packageurl.PackageURL{}, models.NewError(models.KindInvalidFormat, "purl.Parse", raw, err)
	}
	return p, nil
}

// Equal compares two purl strings case-sensitively after URL-decoding both.
func Equal(a, b string) bool {
	pa, err := Parse(a)
	if err != nil {
		return a == b
	}
	pb, err := Parse(b)
	if err != nil {
		return a == b
	}
	return pa.ToString() == pb.ToString()
}

// Synthesize builds a purl for a component that didn't carry one of its own.
// The type token is taken from any dependency purl; the name and version come
// from the component itself, defaulting version to "0.0.0". Returns a
// KindValidation error if depPurls is empty — there is no type token to
// borrow.
func Synthesize(componentName, componentVersion string, depPurls []string) (string, error) {
	if componentName == "" {
		return "", models.NewError(models.KindValidation, "purl.Synthesize", "component name is empty", nil)
	}
	if len(depPurls) == 0 {
		return "", models.NewError(models.KindValidation, "purl.Synthesize",
			"no dependency purl available to borrow a type token from", nil)
	}

	var typeToken string
	for _, dp := range depPurls {
		parsed, err := Parse(dp)
		if err != nil {
			continue
		}
		typeToken = parsed.Type
		break
	}
	if typeToken == "" {
		return "", models.NewError(models.KindValidation, "purl.Synthesize",
			"no dependency purl could be parsed for a type token", nil)
	}

	version := componentVersion
	if version == "" {
		version = "0.0.0"
	}

	synthesized := packageurl.NewPackageURL(typeToken, "", componentName, version, nil, "")
	return synthesized.ToString(), nil
}

// SafePurl replaces every non-alphanumeric byte with '-', matching the
// object-storage key convention (§6).
func SafePurl(p string) string {
	out := make([]byte, len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out[i] = c
		default:
			out[i] = '-'
		}
	}
	return string(out)
}
