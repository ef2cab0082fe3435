package models

// TaskStatus is the closed set of terminal and in-flight task states.
type TaskStatus string

const (
	TaskStarted           TaskStatus = "started"
	TaskComplete           TaskStatus = "complete"
	TaskCompleteWithErrors TaskStatus = "complete_with_errors"
	TaskFailed             TaskStatus = "failed"
)

// Task is a running or completed batch job. Status invariant:
// Complete ⇔ Err == "" && ErrTotal == 0
// CompleteWithErrors ⇔ Err == "" && ErrTotal > 0
// Failed ⇔ Err != ""
type Task struct {
	ID              string            `json:"id"`
	Kind            TaskKind          `json:"kind"`
	Count           int               `json:"count"`
	Timestamp       int64             `json:"timestamp"`
	Start           int64             `json:"start"`
	Finish          int64             `json:"finish,omitempty"`
	DurationSeconds float64           `json:"durationSeconds,omitempty"`
	Status          TaskStatus        `json:"status"`
	Err             string            `json:"err,omitempty"`
	RefErrs         map[string]string `json:"refErrs,omitempty"`
	ErrTotal        int               `json:"errTotal"`
}

func (Task) CollectionName() string { return "Task" }

// TaskRef builds a TaskRef that points at this task for the given target.
func (t *Task) TaskRef(targetID string) TaskRef {
	return NewTaskRef(t.ID, targetID)
}

func (t *Task) DocID() string     { return t.ID }
func (t *Task) SetDocID(id string) { t.ID = id }
