// Package purl2cpe implements the Purl2Cpe dataset construction task (spec
// §4.10): clone a curated dataset repository and rebuild the Purl2Cpes
// collection wholesale from the purls.yaml/cpes.yaml pairs it contains.
package purl2cpe

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	gitauth "github.com/go-git/go-git/v5/plumbing/transport/http"
	"gopkg.in/yaml.v3"

	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
)

// purlDataset is one purls.yaml file: a flat list of purl strings belonging
// to the same package family as the sibling cpes.yaml.
type purlDataset struct {
	Purls []string `yaml:"purls"`
}

// cpeDataset is one cpes.yaml file: a flat list of CPE strings shared by
// every purl in the sibling purls.yaml.
type cpeDataset struct {
	CPEs []string `yaml:"cpes"`
}

// Cloner clones the curated dataset repository to a local directory.
// Production use hits the real git remote.
type Cloner interface {
	Clone(ctx context.Context, dest string) error
}

// GitCloner is the production Cloner, shallow-cloning over HTTPS.
type GitCloner struct {
	URL   string
	Token string
}

// Clone performs a depth-1 clone of the dataset repository into dest.
func (c *GitCloner) Clone(ctx context.Context, dest string) error {
	opts := &git.CloneOptions{URL: c.URL, Depth: 1}
	if c.Token != "" {
		opts.Auth = &gitauth.BasicAuth{Username: "x-access-token", Password: c.Token}
	}
	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		return models.NewError(models.KindRemote, "purl2cpe.GitCloner.Clone", "clone dataset repo", err)
	}
	return nil
}

// Task drives the dataset-construction crawl.
type Task struct {
	cloner    Cloner
	purl2cpes *store.Store[*models.Purl2Cpes]
	cloneBase string
	log       *logger.Logger
}

// New builds a Purl2Cpe dataset-construction Task. cloneBase is the parent
// directory under which the dataset repo is cloned to a throwaway subdirectory.
func New(cloner Cloner, purl2cpes *store.Store[*models.Purl2Cpes], cloneBase string, log *logger.Logger) *Task {
	return &Task{cloner: cloner, purl2cpes: purl2cpes, cloneBase: cloneBase, log: log.WithComponent("purl2cpe-task")}
}

// Run implements task.Provider: clone the dataset repo, walk it for
// purls.yaml/cpes.yaml pairs, drop the existing Purl2Cpes collection, and
// bulk-insert one row per purl found.
func (t *Task) Run(ctx context.Context, task *models.Task) (map[string]string, error) {
	workdir, err := os.MkdirTemp(t.cloneBase, "purl2cpe-")
	if err != nil {
		return nil, models.NewError(models.KindInternal, "purl2cpe.Run", "mkdir clone dir", err)
	}
	defer os.RemoveAll(workdir)

	if err := t.cloner.Clone(ctx, workdir); err != nil {
		return nil, err
	}

	rows, refErrs, err := collectRows(workdir)
	if err != nil {
		return nil, err
	}

	if err := t.purl2cpes.DropCollection(ctx); err != nil {
		return nil, err
	}

	for _, row := range rows {
		r := row
		if err := t.purl2cpes.Insert(ctx, &r); err != nil {
			refErrs[row.Purl] = err.Error()
		}
	}

	t.log.InfoContext(ctx, "purl2cpe dataset rebuilt", "rows", len(rows), "errors", len(refErrs))
	return refErrs, nil
}

// collectRows walks root for every purls.yaml file, loads its sibling
// cpes.yaml, and produces one Purl2Cpes row per purl. A pair that fails to
// parse is recorded as a per-pair error and skipped, not fatal.
func collectRows(root string) ([]models.Purl2Cpes, map[string]string, error) {
	refErrs := make(map[string]string)
	var rows []models.Purl2Cpes

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "purls.yaml" {
			return nil
		}

		dir := filepath.Dir(path)
		cpesPath := filepath.Join(dir, "cpes.yaml")

		purls, cpes, err := loadPair(path, cpesPath)
		if err != nil {
			refErrs[strings.TrimPrefix(dir, root)] = err.Error()
			return nil
		}

		for _, purl := range purls {
			rows = append(rows, models.Purl2Cpes{Purl: purl, CPEs: cpes})
		}
		return nil
	})
	if err != nil {
		return nil, nil, models.NewError(models.KindInternal, "purl2cpe.collectRows", "walk dataset repo", err)
	}
	return rows, refErrs, nil
}

func loadPair(purlsPath, cpesPath string) (purls, cpes []string, err error) {
	purlsRaw, err := os.ReadFile(purlsPath)
	if err != nil {
		return nil, nil, models.NewError(models.KindInvalidFormat, "purl2cpe.loadPair", "read purls.yaml", err)
	}
	var pd purlDataset
	if err := yaml.Unmarshal(purlsRaw, &pd); err != nil {
		return nil, nil, models.NewError(models.KindInvalidFormat, "purl2cpe.loadPair", "parse purls.yaml", err)
	}

	cpesRaw, err := os.ReadFile(cpesPath)
	if err != nil {
		return nil, nil, models.NewError(models.KindInvalidFormat, "purl2cpe.loadPair", "read cpes.yaml", err)
	}
	var cd cpeDataset
	if err := yaml.Unmarshal(cpesRaw, &cd); err != nil {
		return nil, nil, models.NewError(models.KindInvalidFormat, "purl2cpe.loadPair", "parse cpes.yaml", err)
	}

	return pd.Purls, cd.CPEs, nil
}
