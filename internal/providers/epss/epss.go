// Package epss implements the EPSS score sync task (spec §4.10): for every
// Vulnerability carrying a CVE, fetch its current Exploit Prediction Scoring
// System probability from the public EPSS endpoint and attach it. One
// request per iteration, never parallelized — see spec §5.
package epss

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantumlayerhq/sbom-enrich/internal/resilience"
	"github.com/quantumlayerhq/sbom-enrich/internal/vulnsvc"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
)

// Client fetches the EPSS score for one CVE.
type Client interface {
	FetchScore(ctx context.Context, cve string) (float64, error)
}

// Config configures the EPSS HTTP client.
type Config struct {
	BaseURL string // e.g. https://api.first.org/data/v1/epss
	Timeout time.Duration
}

// HTTPClient is the production Client, calling the public FIRST.org EPSS API.
type HTTPClient struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.Breaker
}

// NewHTTPClient builds an EPSS Client.
func NewHTTPClient(cfg Config, breakers *resilience.Registry) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		breaker: breakers.GetForProvider("epss", models.NewVulnProviderKind(models.VulnProviderEpss)),
	}
}

// FetchScore calls the EPSS endpoint for one CVE and returns its score.
func (c *HTTPClient) FetchScore(ctx context.Context, cve string) (float64, error) {
	result, err := c.breaker.Execute(ctx, func() (any, error) {
		reqURL := c.cfg.BaseURL + "?cve=" + url.QueryEscape(cve)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
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
			return nil, models.NewError(models.KindRemote, "epss.HTTPClient",
				fmt.Sprintf("status %d: %.256s", resp.StatusCode, body), nil)
		}
		return body, nil
	})
	if err != nil {
		return 0, err
	}
	return parseScore(result.([]byte), cve)
}

// parseScore decodes a FIRST.org EPSS API response body and returns the
// first reported score. Split out from FetchScore so the decoding logic is
// unit-testable without a live HTTP round trip.
func parseScore(raw []byte, cve string) (float64, error) {
	var parsed struct {
		Data []struct {
			EPSS string `json:"epss"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, models.NewError(models.KindInternal, "epss.FetchScore", "decode response", err)
	}
	if len(parsed.Data) == 0 {
		return 0, models.NewError(models.KindRemote, "epss.FetchScore", "no data for "+cve, nil)
	}

	score, err := strconv.ParseFloat(parsed.Data[0].EPSS, 64)
	if err != nil {
		return 0, models.NewError(models.KindInternal, "epss.FetchScore", "parse score", err)
	}
	return score, nil
}

// Task drives the EPSS sync across every Vulnerability.
type Task struct {
	client Client
	vulns  *store.Store[*models.Vulnerability]
	svc    *vulnsvc.Service
	log    *logger.Logger
}

// New builds an EPSS sync Task.
func New(client Client, vulns *store.Store[*models.Vulnerability], svc *vulnsvc.Service, log *logger.Logger) *Task {
	return &Task{client: client, vulns: vulns, svc: svc, log: log.WithComponent("epss-task")}
}

// Run implements task.Provider: for each Vulnerability with a CVE, fetch and
// attach its EPSS score. A Vulnerability with no CVE cannot be scored and is
// recorded as a per-target "cve_none" error, not a fatal failure.
func (t *Task) Run(ctx context.Context, task *models.Task) (map[string]string, error) {
	vulns, err := t.vulns.List(ctx)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "epss.Run", "list vulnerabilities", err)
	}

	refErrs := make(map[string]string)
	for _, v := range vulns {
		if v.CVE == "" {
			refErrs[v.Purl] = "cve_none"
			continue
		}

		score, err := t.client.FetchScore(ctx, v.CVE)
		if err != nil {
			refErrs[v.Purl] = err.Error()
			continue
		}

		v.EpssScore = &score
		if task != nil {
			v.TaskRefs = models.MergeTaskRefs(v.TaskRefs, []models.TaskRef{task.TaskRef(v.Purl)})
		}
		if _, err := t.svc.UpsertByPurl(ctx, v); err != nil {
			refErrs[v.Purl] = err.Error()
			continue
		}

		t.log.InfoContext(ctx, "epss score synced", "purl", v.Purl, "cve", v.CVE, "score", score)
	}
	return refErrs, nil
}
