// Package main is the entry point for sbomctl, the SBOM ingestion and
// enrichment platform's command-line driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantumlayerhq/sbom-enrich/internal/analytics"
	"github.com/quantumlayerhq/sbom-enrich/internal/pkgsvc"
	"github.com/quantumlayerhq/sbom-enrich/internal/providers/cpesync"
	"github.com/quantumlayerhq/sbom-enrich/internal/providers/epss"
	"github.com/quantumlayerhq/sbom-enrich/internal/providers/purl2cpe"
	"github.com/quantumlayerhq/sbom-enrich/internal/providers/reposcan"
	"github.com/quantumlayerhq/sbom-enrich/internal/providers/vendorsbom"
	"github.com/quantumlayerhq/sbom-enrich/internal/providers/vulnapi"
	"github.com/quantumlayerhq/sbom-enrich/internal/resilience"
	"github.com/quantumlayerhq/sbom-enrich/internal/sbomsvc"
	"github.com/quantumlayerhq/sbom-enrich/internal/telemetry"
	"github.com/quantumlayerhq/sbom-enrich/internal/vulnsvc"
	"github.com/quantumlayerhq/sbom-enrich/pkg/blobstore"
	"github.com/quantumlayerhq/sbom-enrich/pkg/config"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
	"github.com/quantumlayerhq/sbom-enrich/pkg/task"
)

// Build information (set via ldflags).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sbomctl <ingest|enrich|analyze|construct> [--debug] [flags]")
	}
	subcommand, rest := args[0], args[1:]

	fs := flag.NewFlagSet(subcommand, flag.ContinueOnError)
	debug := fs.Bool("debug", false, "use the filesystem blobstore instead of object storage")
	providerFlag := fs.String("provider", "", "enrichment provider to run (vendorsbom|reposcan|vulnapi|epss|purl2cpe|cpesync)")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *debug {
		cfg.Blobstore.Debug = true
		cfg.Env = "development"
	}

	log := logger.New(cfg.LogLevel, "json").WithService("sbomctl")
	log.Info("starting sbomctl",
		"version", version, "build_time", buildTime, "git_commit", gitCommit,
		"subcommand", subcommand, "env", cfg.Env,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := wireApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to wire application: %w", err)
	}
	defer app.pool.Close()
	defer app.telemetry.Shutdown(ctx)

	switch subcommand {
	case "ingest":
		return app.runIngest(ctx, *providerFlag)
	case "enrich":
		return app.runEnrich(ctx, *providerFlag)
	case "analyze":
		return app.runAnalyze(ctx)
	case "construct":
		return app.runConstruct(ctx)
	default:
		return fmt.Errorf("unknown subcommand %q", subcommand)
	}
}

// app bundles every wired service and collection the subcommands dispatch to.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	pool      *store.Pool
	blobs     blobstore.Blobstore
	telemetry *telemetry.Provider
	breakers  *resilience.Registry
	executor  *task.Executor

	sboms       *store.Store[*models.Sbom]
	packages    *store.Store[*models.Package]
	unsupported *store.Store[*models.UnsupportedPackage]
	vulns       *store.Store[*models.Vulnerability]
	tasks       *store.Store[*models.Task]
	scanState   *store.Store[*reposcan.ScanState]
	purl2cpes   *store.Store[*models.Purl2Cpes]

	pkgs  *pkgsvc.Service
	sbom  *sbomsvc.Service
	vuln  *vulnsvc.Service
	stats *analytics.Service
}

func wireApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	blobs, err := blobstore.New(ctx, cfg.Blobstore)
	if err != nil {
		pool.Close()
		return nil, err
	}

	tp, err := telemetry.NewProvider(cfg.Telemetry)
	if err != nil {
		pool.Close()
		return nil, err
	}

	sboms, err := store.NewStore[*models.Sbom](ctx, pool, "Sbom")
	if err != nil {
		return nil, err
	}
	packages, err := store.NewStore[*models.Package](ctx, pool, "Package")
	if err != nil {
		return nil, err
	}
	unsupported, err := store.NewStore[*models.UnsupportedPackage](ctx, pool, "UnsupportedPackage")
	if err != nil {
		return nil, err
	}
	vulns, err := store.NewStore[*models.Vulnerability](ctx, pool, "Vulnerability")
	if err != nil {
		return nil, err
	}
	tasks, err := store.NewStore[*models.Task](ctx, pool, "Task")
	if err != nil {
		return nil, err
	}
	scanState, err := store.NewStore[*reposcan.ScanState](ctx, pool, "RepoScanState")
	if err != nil {
		return nil, err
	}
	purl2cpes, err := store.NewStore[*models.Purl2Cpes](ctx, pool, "Purl2Cpes")
	if err != nil {
		return nil, err
	}

	pkgs := pkgsvc.New(packages, unsupported, log)
	sbom := sbomsvc.New(sboms, pkgs, blobs, log)
	vuln := vulnsvc.New(vulns, blobs, log)
	stats := analytics.New(pool, blobs, log)

	return &app{
		cfg: cfg, log: log, pool: pool, blobs: blobs, telemetry: tp,
		breakers: resilience.NewRegistry(nil), executor: task.NewExecutor(tasks, log),
		sboms: sboms, packages: packages, unsupported: unsupported, vulns: vulns,
		tasks: tasks, scanState: scanState, purl2cpes: purl2cpes,
		pkgs: pkgs, sbom: sbom, vuln: vuln, stats: stats,
	}, nil
}

// runIngest drives a single vendor-SBOM or repo-scan crawl, selected by
// --provider.
func (a *app) runIngest(ctx context.Context, provider string) error {
	switch provider {
	case "vendorsbom", "":
		client := vendorsbom.NewSnykClient(vendorsbom.Config{
			BaseURL: "https://api.snyk.io", Token: a.cfg.Providers.SnykToken,
		}, a.breakers)
		t := vendorsbom.New(client, a.sbom, models.ProviderSnyk, nil, a.log)
		return a.execute(ctx, models.NewSbomTaskKind(models.NewVendorProviderKind(models.ProviderSnyk)), t)

	case "reposcan":
		lister := reposcan.NewGitHubLister(a.cfg.Providers.GitHubPAT, a.breakers)
		generator := reposcan.NewExternalGenerator("syft", "scan", "dir:")
		t := reposcan.New(lister, generator, a.sbom, a.scanState,
			a.cfg.Providers.GitHubOrg, a.cfg.Providers.GitHubPAT, os.TempDir(), a.log)
		return a.execute(ctx, models.NewSbomTaskKind(models.NewProviderKind(models.ProviderGitHub)), t)

	default:
		return fmt.Errorf("unknown ingest provider %q", provider)
	}
}

// runEnrich drives a single vulnerability or CPE enrichment pass, selected by
// --provider.
func (a *app) runEnrich(ctx context.Context, provider string) error {
	switch provider {
	case "vulnapi", "":
		client := vulnapi.NewSnykIssuesClient(vulnapi.Config{
			BaseURL: "https://api.snyk.io", Token: a.cfg.Providers.SnykToken,
		}, a.breakers)
		t := vulnapi.New(client, a.packages, a.vuln, models.VulnProviderSnyk, a.log)
		return a.execute(ctx, models.NewVulnTaskKind(models.NewVendorProviderKind(models.VulnProviderSnyk)), t)

	case "epss":
		client := epss.NewHTTPClient(epss.Config{BaseURL: a.cfg.Providers.EPSSBaseURL}, a.breakers)
		t := epss.New(client, a.vulns, a.vuln, a.log)
		return a.execute(ctx, models.NewVulnTaskKind(models.NewVulnProviderKind(models.VulnProviderEpss)), t)

	case "cpesync":
		t := cpesync.New(a.packages, a.purl2cpes, a.log)
		return a.execute(ctx, models.NewExtensionTaskKind("cpesync"), t)

	default:
		return fmt.Errorf("unknown enrich provider %q", provider)
	}
}

// runAnalyze runs the analytics export: builds the summary rows and writes
// them through the blobstore as CSV.
func (a *app) runAnalyze(ctx context.Context) error {
	rows, err := a.stats.ExportSummary(ctx)
	if err != nil {
		return err
	}
	key, err := a.stats.WriteCSV(ctx, rows, "sbomctl")
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "analytics export written", "key", key, "rows", len(rows))
	return nil
}

// runConstruct rebuilds the Purl2Cpes dataset from the curated dataset repo.
func (a *app) runConstruct(ctx context.Context) error {
	cloner := &purl2cpe.GitCloner{URL: a.cfg.Providers.CPEDatasetURL}
	t := purl2cpe.New(cloner, a.purl2cpes, os.TempDir(), a.log)
	return a.execute(ctx, models.NewExtensionTaskKind("purl2cpe"), t)
}

func (a *app) execute(ctx context.Context, kind models.TaskKind, p task.Provider) error {
	result, err := a.executor.Execute(ctx, kind, 0, p)
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "run complete", "status", result.Status, "err_total", result.ErrTotal)
	return nil
}
