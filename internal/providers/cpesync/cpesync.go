// Package cpesync implements the CPE sync task (spec §4.10): for every
// Dependency Package with a null CPE, look up its purl in the Purl2Cpes
// dataset and set the CPE, or mark it "unknown" when no match exists.
package cpesync

import (
	"context"

	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
)

// unknownCPE marks a Dependency Package whose purl has no entry in the
// Purl2Cpes dataset, so the sync task does not retry it every run.
const unknownCPE = "unknown"

// Task drives the CPE-sync pass over every Dependency Package.
type Task struct {
	packages  *store.Store[*models.Package]
	purl2cpes *store.Store[*models.Purl2Cpes]
	log       *logger.Logger
}

// New builds a CPE-sync Task.
func New(packages *store.Store[*models.Package], purl2cpes *store.Store[*models.Purl2Cpes], log *logger.Logger) *Task {
	return &Task{packages: packages, purl2cpes: purl2cpes, log: log.WithComponent("cpesync-task")}
}

// Run implements task.Provider: list every Package, skip anything that is
// not a Dependency or already has a CPE, and look up the remainder's purl in
// the dataset.
func (t *Task) Run(ctx context.Context, task *models.Task) (map[string]string, error) {
	packages, err := t.packages.List(ctx)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "cpesync.Run", "list packages", err)
	}

	refErrs := make(map[string]string)
	for _, pkg := range packages {
		if pkg.Kind != models.PackageDependency || pkg.CPE != "" {
			continue
		}

		if err := t.syncOne(ctx, pkg, task); err != nil {
			refErrs[pkg.Purl] = err.Error()
		}
	}
	return refErrs, nil
}

func (t *Task) syncOne(ctx context.Context, pkg *models.Package, task *models.Task) error {
	matches, err := t.purl2cpes.Query(ctx, map[string]string{"purl": pkg.Purl})
	if err != nil {
		return err
	}

	cpe := chooseCPE(matches)
	pkg.CPE = cpe
	if task != nil {
		pkg.TaskRefs = models.MergeTaskRefs(pkg.TaskRefs, []models.TaskRef{task.TaskRef(pkg.Purl)})
	}
	if err := t.packages.Update(ctx, pkg); err != nil {
		return err
	}

	t.log.InfoContext(ctx, "cpe synced", "purl", pkg.Purl, "cpe", cpe)
	return nil
}

// chooseCPE picks the CPE to attach given the dataset rows matching a purl.
// No match, or a match with an empty CPE list, both resolve to "unknown".
func chooseCPE(matches []*models.Purl2Cpes) string {
	if len(matches) == 0 || len(matches[0].CPEs) == 0 {
		return unknownCPE
	}
	return matches[0].CPEs[0]
}
