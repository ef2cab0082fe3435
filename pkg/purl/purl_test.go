package purl

import "testing"

func TestSynthesizeUsesTypeFromDependency(t *testing.T) {
	got, err := Synthesize("myapp", "", []string{"pkg:cargo/regex@1.9.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "pkg:cargo/myapp@0.0.0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSynthesizeKeepsExplicitVersion(t *testing.T) {
	got, err := Synthesize("myapp", "2.3.1", []string{"pkg:npm/left-pad@1.3.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "pkg:npm/myapp@2.3.1" {
		t.Fatalf("got %q", got)
	}
}

func TestSynthesizeFailsWithNoDependencyPurls(t *testing.T) {
	_, err := Synthesize("myapp", "1.0.0", nil)
	if err == nil {
		t.Fatal("expected error when no dependency purls are available")
	}
}

func TestSynthesizeFailsWithEmptyName(t *testing.T) {
	_, err := Synthesize("", "1.0.0", []string{"pkg:npm/left-pad@1.3.0"})
	if err == nil {
		t.Fatal("expected error for empty component name")
	}
}

func TestEqualIsCaseSensitiveAfterDecoding(t *testing.T) {
	if !Equal("pkg:npm/acme-app@1.0.0", "pkg:npm/acme-app@1.0.0") {
		t.Fatal("identical purls should be equal")
	}
	if Equal("pkg:npm/Acme-App@1.0.0", "pkg:npm/acme-app@1.0.0") {
		t.Fatal("purls differing only by case should not be equal")
	}
}

func TestSafePurlReplacesNonAlphanumeric(t *testing.T) {
	got := SafePurl("pkg:npm/acme-app@1.0.0")
	want := "pkg-npm-acme-app-1-0-0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
