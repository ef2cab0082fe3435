// Package task implements the batch-job template method every enrichment
// provider runs under: persist a started record, invoke the provider's Run,
// and finalize the record with status, timing, and per-target errors.
package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quantumlayerhq/sbom-enrich/internal/telemetry"
	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
	"github.com/quantumlayerhq/sbom-enrich/pkg/store"
)

// Provider is implemented by every concrete adapter (vendor-SBOM crawl,
// repo-scan, EPSS sync, ...). Run performs the work and returns a map of
// target id to error message for every target that failed recoverably. A
// non-nil error return means the task could not even enumerate its targets
// and aborts the whole run.
type Provider interface {
	Run(ctx context.Context, t *models.Task) (map[string]string, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, t *models.Task) (map[string]string, error)

// Run calls f.
func (f ProviderFunc) Run(ctx context.Context, t *models.Task) (map[string]string, error) {
	return f(ctx, t)
}

// Executor runs providers under the template method described in spec §4.4.
type Executor struct {
	tasks *store.Store[*models.Task]
	log   *logger.Logger
}

// NewExecutor builds an Executor backed by the given Task collection.
func NewExecutor(tasks *store.Store[*models.Task], log *logger.Logger) *Executor {
	return &Executor{tasks: tasks, log: log.WithComponent("task-executor")}
}

// Execute runs one task to completion: init, invoke Run, complete. It never
// returns an error for a recoverable (per-target) failure — those are
// reported on the returned Task's RefErrs/ErrTotal/Status. It does return an
// error when the task framework itself could not persist the task record.
func (e *Executor) Execute(ctx context.Context, kind models.TaskKind, count int, p Provider) (*models.Task, error) {
	now := time.Now()
	t := &models.Task{
		Kind:      kind,
		Count:     count,
		Timestamp: now.Unix(),
		Start:     now.Unix(),
		Status:    models.TaskStarted,
	}

	ctx, span := telemetry.TaskSpan(ctx, kind.String())
	defer span.End()

	if err := e.init(ctx, t); err != nil {
		span.SetError(err)
		return nil, err
	}

	log := e.log.WithTask(t.ID)
	log.InfoContext(ctx, "task started", "kind", kind.String(), "count", count)

	refErrs, runErr := p.Run(ctx, t)
	if runErr != nil {
		t.Err = runErr.Error()
	} else {
		t.RefErrs = refErrs
	}

	if err := e.complete(ctx, t); err != nil {
		span.SetError(err)
		log.ErrorContext(ctx, "task finalization failed", "error", err)
		return t, err
	}

	span.SetAttribute("task.status", string(t.Status))
	span.SetAttribute("task.err_total", t.ErrTotal)
	if t.Status == models.TaskFailed {
		span.SetError(runErr)
	} else {
		span.SetOK()
	}

	log.InfoContext(ctx, "task finished",
		"status", t.Status, "err_total", t.ErrTotal, "duration_seconds", t.DurationSeconds)

	return t, nil
}

// init inserts the task record with Status = Started.
func (e *Executor) init(ctx context.Context, t *models.Task) error {
	if err := e.tasks.Insert(ctx, t); err != nil {
		return models.NewError(models.KindInternal, "task.init", "insert task record", err)
	}
	if t.ID == "" {
		return models.NewError(models.KindInternal, "task.init", "insert returned empty id", nil)
	}
	return nil
}

// complete computes ErrTotal, sets the terminal Status per the invariant in
// spec §3, stamps Finish/DurationSeconds, and persists the final record. If
// the final update itself fails, the task is serialized to JSON into the
// returned error so the loss is observable.
func (e *Executor) complete(ctx context.Context, t *models.Task) error {
	t.ErrTotal = len(t.RefErrs)

	finish := time.Now()
	t.Finish = finish.Unix()
	t.DurationSeconds = finish.Sub(time.Unix(t.Start, 0)).Seconds()

	switch {
	case t.Err != "":
		t.Status = models.TaskFailed
	case t.ErrTotal > 0:
		t.Status = models.TaskCompleteWithErrors
	default:
		t.Status = models.TaskComplete
	}

	if err := e.tasks.Update(ctx, t); err != nil {
		serialized, marshalErr := json.Marshal(t)
		if marshalErr != nil {
			serialized = []byte(marshalErr.Error())
		}
		return models.NewError(models.KindInternal, "task.complete", string(serialized), err)
	}
	return nil
}
