// Package reposcan implements the repo-scan task (spec §4.10): crawl a
// GitHub organization's repositories, clone each one, skip it if its HEAD
// commit matches the last scan recorded in a side collection, invoke an
// external SBOM generator on the clone, ingest the result, and clean up.
package reposcan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/go-git/go-git/v5"
	gitauth "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/quantumlayerhq/sbom-enrich/internal/resilience"
	"github.com/quantumlayerhq/sbom-enrich/internal/sbomsvc"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
)

// Repo is one repository the organization lister reports.
type Repo struct {
	Name     string
	CloneURL string
}

// OrgLister lists the repositories belonging to an organization. Production
// use calls the GitHub REST API; tests supply a fake.
type OrgLister interface {
	ListRepos(ctx context.Context, org string) ([]Repo, error)
}

// Generator invokes the external SBOM generator binary against a clone's
// working directory and returns the raw CycloneDX JSON it produced.
type Generator interface {
	Generate(ctx context.Context, workdir string) ([]byte, error)
}

// ScanState records the last commit hash scanned for one repository, so
// repeated runs skip unchanged repos. Stored in its own collection since it
// is not part of the canonical Sbom/Package model.
type ScanState struct {
	ID         string `json:"id"`
	Repo       string `json:"repo"`
	LastCommit string `json:"lastCommit"`
}

func (ScanState) CollectionName() string { return "RepoScanState" }
func (s *ScanState) DocID() string       { return s.ID }
func (s *ScanState) SetDocID(id string)  { s.ID = id }

// Task drives the repo-scan crawl.
type Task struct {
	lister    OrgLister
	generator Generator
	ingest    *sbomsvc.Service
	state     *store.Store[*ScanState]
	org       string
	pat       string
	cloneBase string
	log       *logger.Logger
}

// New builds a repo-scan Task. cloneBase is the parent directory under which
// each repo is cloned to a throwaway subdirectory.
func New(lister OrgLister, generator Generator, ingest *sbomsvc.Service, state *store.Store[*ScanState], org, pat, cloneBase string, log *logger.Logger) *Task {
	return &Task{
		lister: lister, generator: generator, ingest: ingest, state: state,
		org: org, pat: pat, cloneBase: cloneBase, log: log.WithComponent("reposcan-task"),
	}
}

// Run implements task.Provider: list repos → for each, clone, compare HEAD
// against the last-known commit, generate+ingest if changed, record the new
// commit, and remove the clone.
func (t *Task) Run(ctx context.Context, task *models.Task) (map[string]string, error) {
	repos, err := t.lister.ListRepos(ctx, t.org)
	if err != nil {
		return nil, models.NewError(models.KindRemote, "reposcan.Run", "list repos", err)
	}

	refErrs := make(map[string]string)
	for _, repo := range repos {
		if err := t.scanOne(ctx, repo, task); err != nil {
			refErrs[repo.Name] = err.Error()
		}
	}
	return refErrs, nil
}

func (t *Task) scanOne(ctx context.Context, repo Repo, task *models.Task) error {
	workdir, err := os.MkdirTemp(t.cloneBase, "reposcan-")
	if err != nil {
		return models.NewError(models.KindInternal, "reposcan.scanOne", "mkdir clone dir", err)
	}
	defer os.RemoveAll(workdir)

	auth := &gitauth.BasicAuth{Username: "x-access-token", Password: t.pat}
	repoHandle, err := git.PlainCloneContext(ctx, workdir, false, &git.CloneOptions{
		URL: repo.CloneURL, Auth: auth, Depth: 1,
	})
	if err != nil {
		return models.NewError(models.KindRemote, "reposcan.scanOne", "clone "+repo.Name, err)
	}

	head, err := repoHandle.Head()
	if err != nil {
		return models.NewError(models.KindInternal, "reposcan.scanOne", "read HEAD", err)
	}
	commit := head.Hash().String()

	existing, err := t.state.Query(ctx, map[string]string{"repo": repo.Name})
	if err != nil {
		return err
	}
	if len(existing) > 0 && existing[0].LastCommit == commit {
		t.log.InfoContext(ctx, "repo unchanged, skipping", "repo", repo.Name, "commit", commit)
		return nil
	}

	raw, err := t.generator.Generate(ctx, workdir)
	if err != nil {
		return models.NewError(models.KindRemote, "reposcan.scanOne", "generate sbom for "+repo.Name, err)
	}

	xref := models.NewXref(models.NewXrefKind(models.XrefCodebase), map[string]string{
		"org": t.org, "repo": repo.Name, "commit": commit,
	})
	if _, err := t.ingest.Ingest(ctx, raw, "", models.NewProviderKind(models.ProviderGitHub), xref, task); err != nil {
		return err
	}

	state := &ScanState{Repo: repo.Name, LastCommit: commit}
	if len(existing) > 0 {
		state.ID = existing[0].ID
		if err := t.state.Update(ctx, state); err != nil {
			return err
		}
	} else if err := t.state.Insert(ctx, state); err != nil {
		return err
	}

	t.log.InfoContext(ctx, "repo scanned", "repo", repo.Name, "commit", commit)
	return nil
}

// GitHubLister is the production OrgLister, calling the GitHub REST API with
// outbound requests wrapped by a circuit breaker.
type GitHubLister struct {
	pat     string
	http    *http.Client
	breaker *resilience.Breaker
}

// NewGitHubLister builds a GitHub-backed OrgLister.
func NewGitHubLister(pat string, breakers *resilience.Registry) *GitHubLister {
	return &GitHubLister{
		pat:     pat,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: breakers.GetForProvider("reposcan", models.NewProviderKind(models.ProviderGitHub)),
	}
}

// ListRepos lists every repository in the org, paginating until GitHub
// returns a short page.
func (g *GitHubLister) ListRepos(ctx context.Context, org string) ([]Repo, error) {
	var out []Repo
	page := 1
	for {
		result, err := g.breaker.Execute(ctx, func() (any, error) {
			url := fmt.Sprintf("https://api.github.com/orgs/%s/repos?per_page=100&page=%d", org, page)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+g.pat)
			req.Header.Set("Accept", "application/vnd.github+json")

			resp, err := g.http.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, models.NewError(models.KindRemote, "reposcan.GitHubLister",
					fmt.Sprintf("status %d: %.256s", resp.StatusCode, body), nil)
			}
			return body, nil
		})
		if err != nil {
			return nil, err
		}

		var parsed []struct {
			Name     string `json:"name"`
			CloneURL string `json:"clone_url"`
		}
		if err := json.Unmarshal(result.([]byte), &parsed); err != nil {
			return nil, models.NewError(models.KindInternal, "reposcan.GitHubLister", "decode response", err)
		}
		if len(parsed) == 0 {
			break
		}
		for _, r := range parsed {
			out = append(out, Repo{Name: r.Name, CloneURL: r.CloneURL})
		}
		if len(parsed) < 100 {
			break
		}
		page++
	}
	return out, nil
}

// ExternalGenerator invokes an external SBOM generator binary via exec.Command.
type ExternalGenerator struct {
	binary string
	args   []string
}

// NewExternalGenerator builds a Generator that shells out to binary, passing
// args followed by the clone's working directory.
func NewExternalGenerator(binary string, args ...string) *ExternalGenerator {
	return &ExternalGenerator{binary: binary, args: args}
}

// Generate runs the generator binary against workdir and returns its stdout,
// the raw CycloneDX JSON it is expected to produce.
func (g *ExternalGenerator) Generate(ctx context.Context, workdir string) ([]byte, error) {
	args := append(append([]string{}, g.args...), workdir)
	cmd := exec.CommandContext(ctx, g.binary, args...)

	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return nil, models.NewError(models.KindRemote, "reposcan.ExternalGenerator.Generate",
			fmt.Sprintf("%s: %s", g.binary, stderr), err)
	}
	return out, nil
}
