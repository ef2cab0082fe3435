package models

// ProviderKind is the closed sum type of built-in SBOM/enrichment sources plus a
// Custom(name) escape hatch for third-party adapters.
type ProviderKind struct {
	Tag  string `json:"tag"`
	Name string `json:"name,omitempty"` // set for Vendor and Custom tags
}

const (
	ProviderHarborSyft = "harbor_syft"
	ProviderSnyk       = "snyk"
	ProviderGitHub     = "github"
	ProviderVendor     = "vendor"
	ProviderCustom     = "custom"
)

func NewProviderKind(tag string) ProviderKind { return ProviderKind{Tag: tag} }

func NewVendorProviderKind(name string) ProviderKind {
	return ProviderKind{Tag: ProviderVendor, Name: name}
}

func NewCustomProviderKind(name string) ProviderKind {
	return ProviderKind{Tag: ProviderCustom, Name: name}
}

func (p ProviderKind) String() string {
	if p.Name != "" {
		return p.Tag + ":" + p.Name
	}
	return p.Tag
}

// VulnProviderKind is the closed sum type of vulnerability-finding sources.
type VulnProviderKind struct {
	Tag  string `json:"tag"`
	Name string `json:"name,omitempty"` // set for Custom
}

const (
	VulnProviderSnyk       = "snyk"
	VulnProviderIonChannel = "ion_channel"
	VulnProviderEpss       = "epss"
	VulnProviderCustom     = "custom"
)

func NewVulnProviderKind(tag string) VulnProviderKind { return VulnProviderKind{Tag: tag} }

func NewCustomVulnProviderKind(name string) VulnProviderKind {
	return VulnProviderKind{Tag: VulnProviderCustom, Name: name}
}

func (p VulnProviderKind) String() string {
	if p.Name != "" {
		return p.Tag + ":" + p.Name
	}
	return p.Tag
}

// SbomFormat is the closed set of SBOM document encodings. Spdx variants are
// recognized but not parsed (see pkg/cyclonedx).
type SbomFormat string

const (
	FormatCycloneDxJSON SbomFormat = "cyclonedx_json"
	FormatCycloneDxXML  SbomFormat = "cyclonedx_xml"
	FormatSpdxJSON      SbomFormat = "spdx_json"
	FormatSpdxTagValue  SbomFormat = "spdx_tag_value"
)

// PackageKind distinguishes a top-level SBOM component from one of its dependencies.
type PackageKind string

const (
	PackagePrimary    PackageKind = "primary"
	PackageDependency PackageKind = "dependency"
)

// TaskKind is the closed sum type of batch-job kinds.
type TaskKind struct {
	Tag          string       `json:"tag"`
	ProviderKind ProviderKind `json:"providerKind,omitempty"`
	Name         string       `json:"name,omitempty"` // set for Extension
}

const (
	TaskSbom          = "sbom"
	TaskVulnerability = "vulnerabilities"
	TaskAnalytics     = "analytics"
	TaskExtension     = "extension"
)

func NewSbomTaskKind(p ProviderKind) TaskKind  { return TaskKind{Tag: TaskSbom, ProviderKind: p} }
func NewVulnTaskKind(p ProviderKind) TaskKind  { return TaskKind{Tag: TaskVulnerability, ProviderKind: p} }
func NewAnalyticsTaskKind(p ProviderKind) TaskKind {
	return TaskKind{Tag: TaskAnalytics, ProviderKind: p}
}
func NewExtensionTaskKind(name string) TaskKind { return TaskKind{Tag: TaskExtension, Name: name} }

func (k TaskKind) String() string {
	switch k.Tag {
	case TaskExtension:
		return TaskExtension + ":" + k.Name
	default:
		return k.Tag + ":" + k.ProviderKind.String()
	}
}
