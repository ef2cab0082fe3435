// Package vulnapi implements the Vulnerability-from-API task (spec §4.10):
// for each Package whose xrefs identify a vendor org/project (Snyk-shaped),
// fetch that vendor's issues, convert them to the canonical Vulnerability
// shape, and write them through the vulnerability service.
package vulnapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quantumlayerhq/sbom-enrich/internal/resilience"
	"github.com/quantumlayerhq/sbom-enrich/internal/vulnsvc"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
)

// Issue is one vendor-reported finding, already shaped into the fields the
// canonical Vulnerability model needs.
type Issue struct {
	CVE         string
	Severity    string
	Description string
	CvssScore   float64
	CvssVector  string
	Remediation string
	Raw         string
}

// Client fetches vendor issues for one org/project pair. Snyk is the
// production shape.
type Client interface {
	FetchIssues(ctx context.Context, orgID, projectID string) ([]Issue, error)
}

// Config configures the Snyk issues HTTP client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// SnykIssuesClient is the production Client, wrapping every outbound call in
// a circuit breaker.
type SnykIssuesClient struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.Breaker
}

// NewSnykIssuesClient builds a Snyk-backed Client.
func NewSnykIssuesClient(cfg Config, breakers *resilience.Registry) *SnykIssuesClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SnykIssuesClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		breaker: breakers.GetForProvider("vulnapi", models.NewVulnProviderKind(models.VulnProviderSnyk)),
	}
}

// FetchIssues fetches every open issue for one org/project.
func (c *SnykIssuesClient) FetchIssues(ctx context.Context, orgID, projectID string) ([]Issue, error) {
	result, err := c.breaker.Execute(ctx, func() (any, error) {
		url := fmt.Sprintf("%s/rest/orgs/%s/projects/%s/issues", c.cfg.BaseURL, orgID, projectID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "token "+c.cfg.Token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, models.NewError(models.KindRemote, "vulnapi.SnykIssuesClient",
				fmt.Sprintf("status %d: %.256s", resp.StatusCode, body), nil)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Issues []struct {
			CVE         string  `json:"cve"`
			Severity    string  `json:"severity"`
			Description string  `json:"description"`
			CvssScore   float64 `json:"cvssScore"`
			CvssVector  string  `json:"cvssVector"`
			Remediation string  `json:"remediation"`
		} `json:"issues"`
	}
	if err := json.Unmarshal(result.([]byte), &parsed); err != nil {
		return nil, models.NewError(models.KindInternal, "vulnapi.FetchIssues", "decode response", err)
	}

	out := make([]Issue, 0, len(parsed.Issues))
	for _, i := range parsed.Issues {
		raw, _ := json.Marshal(i)
		out = append(out, Issue{
			CVE: i.CVE, Severity: i.Severity, Description: i.Description,
			CvssScore: i.CvssScore, CvssVector: i.CvssVector, Remediation: i.Remediation,
			Raw: string(raw),
		})
	}
	return out, nil
}

// Task drives the vendor-issues enrichment crawl.
type Task struct {
	client   Client
	packages *store.Store[*models.Package]
	vulns    *vulnsvc.Service
	provider string
	log      *logger.Logger
}

// New builds a vulnerability-from-API Task. provider names the xref tag
// (e.g. "snyk") used both to find candidate packages and to tag the
// resulting Vulnerability.Provider.
func New(client Client, packages *store.Store[*models.Package], vulns *vulnsvc.Service, provider string, log *logger.Logger) *Task {
	return &Task{client: client, packages: packages, vulns: vulns, provider: provider, log: log.WithComponent("vulnapi-task")}
}

// Run implements task.Provider: walk every Package, find one whose xrefs
// name a vendor org/project, fetch+convert+upsert its issues.
func (t *Task) Run(ctx context.Context, task *models.Task) (map[string]string, error) {
	packages, err := t.packages.List(ctx)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "vulnapi.Run", "list packages", err)
	}

	refErrs := make(map[string]string)
	for _, pkg := range packages {
		orgID, projectID, ok := vendorXref(pkg.Xrefs, t.provider)
		if !ok {
			continue
		}

		if err := t.enrichOne(ctx, pkg, orgID, projectID, task); err != nil {
			refErrs[pkg.Purl] = err.Error()
		}
	}
	return refErrs, nil
}

func (t *Task) enrichOne(ctx context.Context, pkg *models.Package, orgID, projectID string, task *models.Task) error {
	issues, err := t.client.FetchIssues(ctx, orgID, projectID)
	if err != nil {
		return err
	}

	converted := make([]models.Vulnerability, 0, len(issues))
	for _, issue := range issues {
		v := &models.Vulnerability{
			Purl:        pkg.Purl,
			Provider:    models.NewVulnProviderKind(t.provider),
			Severity:    severityFromString(issue.Severity),
			CVE:         issue.CVE,
			Description: issue.Description,
			Cvss: models.Cvss{
				Mean: issue.CvssScore, Median: issue.CvssScore, Mode: issue.CvssScore,
				Scores: []models.CvssScore{{Score: issue.CvssScore, Version: "3.1", Vector: issue.CvssVector, Source: t.provider}},
			},
			Remediation: issue.Remediation,
			Raw:         issue.Raw,
			Xrefs:       pkg.Xrefs,
		}
		if task != nil {
			v.TaskRefs = []models.TaskRef{task.TaskRef(pkg.Purl)}
		}

		stored, err := t.vulns.UpsertByPurl(ctx, v)
		if err != nil {
			return err
		}
		converted = append(converted, *stored)
	}

	if len(converted) > 0 {
		transient := &models.Package{Purl: pkg.Purl, Xrefs: pkg.Xrefs, Vulnerabilities: converted}
		if _, err := t.vulns.StoreByPurl(ctx, transient); err != nil {
			return err
		}
	}

	t.log.InfoContext(ctx, "vendor issues enriched", "purl", pkg.Purl, "count", len(converted))
	return nil
}

// vendorXref finds the External(provider) xref on a package and returns its
// orgId/projectId pair, if present.
func vendorXref(xrefs []models.Xref, provider string) (orgID, projectID string, ok bool) {
	for _, x := range xrefs {
		if x.Kind.Tag != models.XrefExternal || x.Kind.Provider != provider {
			continue
		}
		orgID, hasOrg := x.Map["orgId"]
		projectID, hasProject := x.Map["projectId"]
		if hasOrg && hasProject {
			return orgID, projectID, true
		}
	}
	return "", "", false
}

func severityFromString(s string) models.Severity {
	switch s {
	case "low", "Low", "LOW":
		return models.SeverityLow
	case "medium", "Medium", "MEDIUM":
		return models.SeverityMedium
	case "high", "High", "HIGH":
		return models.SeverityHigh
	case "critical", "Critical", "CRITICAL":
		return models.SeverityCritical
	default:
		return models.SeverityNone
	}
}
