// Package vendorsbom implements the Vendor-SBOM-from-API task (spec §4.10):
// list orgs, list projects per org, fetch the CycloneDX-JSON SBOM for each
// project whose package manager is supported, and ingest it. Snyk is the
// shape modeled here, named via providerName so the same task drives any
// vendor API sharing the org→project→SBOM shape.
package vendorsbom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quantumlayerhq/sbom-enrich/internal/resilience"
	"github.com/quantumlayerhq/sbom-enrich/internal/sbomsvc"
	"github.com/quantumlayerhq/sbom-enrich/internal/telemetry"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

// Org is one organization the vendor API reports.
type Org struct {
	ID   string
	Name string
}

// Project is one project within an org.
type Project struct {
	ID             string
	Name           string
	PackageManager string
}

// Client is the vendor-API surface this task consumes. A fake implementation
// drives the task's tests; Snyk is the production implementation.
type Client interface {
	ListOrgs(ctx context.Context) ([]Org, error)
	ListProjects(ctx context.Context, orgID string) ([]Project, error)
	FetchSBOM(ctx context.Context, orgID, projectID string) ([]byte, error)
}

// Config configures the Snyk HTTP client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// SnykClient is the production Client implementation, calling the Snyk REST
// API with every outbound request wrapped by a circuit breaker.
type SnykClient struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.Breaker
}

// NewSnykClient builds a Snyk-backed Client.
func NewSnykClient(cfg Config, breakers *resilience.Registry) *SnykClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SnykClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		breaker: breakers.GetForProvider("vendorsbom", models.NewVendorProviderKind(models.ProviderSnyk)),
	}
}

func (c *SnykClient) do(ctx context.Context, method, path string) ([]byte, error) {
	result, err := c.breaker.Execute(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
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
			return nil, models.NewError(models.KindRemote, "vendorsbom.SnykClient",
				fmt.Sprintf("status %d: %.256s", resp.StatusCode, body), nil)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// ListOrgs lists every organization visible to the configured token.
func (c *SnykClient) ListOrgs(ctx context.Context) ([]Org, error) {
	body, err := c.do(ctx, http.MethodGet, "/rest/orgs")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Orgs []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"orgs"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.NewError(models.KindInternal, "vendorsbom.ListOrgs", "decode response", err)
	}
	out := make([]Org, 0, len(parsed.Orgs))
	for _, o := range parsed.Orgs {
		out = append(out, Org{ID: o.ID, Name: o.Name})
	}
	return out, nil
}

// ListProjects lists every project within an org.
func (c *SnykClient) ListProjects(ctx context.Context, orgID string) ([]Project, error) {
	body, err := c.do(ctx, http.MethodGet, "/rest/orgs/"+orgID+"/projects")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Projects []struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			PackageManager string `json:"packageManager"`
		} `json:"projects"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.NewError(models.KindInternal, "vendorsbom.ListProjects", "decode response", err)
	}
	out := make([]Project, 0, len(parsed.Projects))
	for _, p := range parsed.Projects {
		out = append(out, Project{ID: p.ID, Name: p.Name, PackageManager: p.PackageManager})
	}
	return out, nil
}

// FetchSBOM fetches the CycloneDX-JSON SBOM for one project.
func (c *SnykClient) FetchSBOM(ctx context.Context, orgID, projectID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet,
		"/rest/orgs/"+orgID+"/projects/"+projectID+"/sbom?format=cyclonedx1.4%2Bjson")
}

// Task drives the vendor-SBOM crawl under the task framework.
type Task struct {
	client                    Client
	ingest                    *sbomsvc.Service
	providerName              string
	supportedPackageManagers  map[string]bool
	log                       *logger.Logger
}

// New builds a vendor-SBOM Task. supportedPackageManagers is the filter
// applied to each org's project list; an empty set means "no filtering".
func New(client Client, ingest *sbomsvc.Service, providerName string, supportedPackageManagers []string, log *logger.Logger) *Task {
	supported := make(map[string]bool, len(supportedPackageManagers))
	for _, pm := range supportedPackageManagers {
		supported[pm] = true
	}
	return &Task{
		client:                   client,
		ingest:                   ingest,
		providerName:             providerName,
		supportedPackageManagers: supported,
		log:                      log.WithComponent("vendorsbom-task"),
	}
}

// Run implements task.Provider: list orgs → for each, list projects → for
// each supported project, fetch the CycloneDX SBOM and ingest it.
func (t *Task) Run(ctx context.Context, task *models.Task) (map[string]string, error) {
	orgs, err := t.client.ListOrgs(ctx)
	if err != nil {
		return nil, models.NewError(models.KindRemote, "vendorsbom.Run", "list orgs", err)
	}

	refErrs := make(map[string]string)
	for _, org := range orgs {
		projects, err := t.client.ListProjects(ctx, org.ID)
		if err != nil {
			refErrs[org.ID] = err.Error()
			continue
		}

		for _, project := range projects {
			if len(t.supportedPackageManagers) > 0 && !t.supportedPackageManagers[project.PackageManager] {
				continue
			}

			targetID := org.ID + "/" + project.ID
			ctx, span := telemetry.ProviderCallSpan(ctx, t.providerName, "fetch_sbom")

			raw, err := t.client.FetchSBOM(ctx, org.ID, project.ID)
			if err != nil {
				refErrs[targetID] = err.Error()
				span.SetError(err)
				span.End()
				continue
			}

			xref := models.NewXref(models.NewExternalXrefKind(t.providerName), map[string]string{
				"orgId": org.ID, "projectId": project.ID,
			})
			providerKind := models.NewVendorProviderKind(t.providerName)

			_, err = t.ingest.Ingest(ctx, raw, project.PackageManager, providerKind, xref, task)
			if err != nil {
				refErrs[targetID] = err.Error()
				span.SetError(err)
				span.End()
				continue
			}
			span.SetOK()
			span.End()

			t.log.InfoContext(ctx, "vendor sbom ingested", "org", org.ID, "project", project.ID)
		}
	}

	return refErrs, nil
}
