package jobs

import (
	"fmt"
	"strings"
	"time"

	"shapelearner/internal/knn"
	"shapelearner/internal/services"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusCreated    Status = "Created"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

var allStatuses = []Status{StatusCreated, StatusInProgress, StatusCompleted, StatusFailed}

// legacyAliases maps status names written by older job servers.
var legacyAliases = map[string]Status{
	"not started": StatusCreated,
	"notstarted":  StatusCreated,
	"in progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"created":     StatusCreated,
	"completed":   StatusCompleted,
	"failed":      StatusFailed,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(value string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	if status, ok := legacyAliases[key]; ok {
		return status, nil
	}
	return "", services.Wrap(services.ErrValidation, "jobs", "parse status",
		fmt.Sprintf("unknown job status %q", value), nil)
}

// IsTerminal reports whether no further updates are accepted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether a job in status from may be rewritten with
// status to. Rewriting the same non-terminal status is allowed so workers can
// refresh messages.
func CanTransition(from, to Status) bool {
	if from.rank() < 0 || to.rank() < 0 {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	return to.rank() >= from.rank()
}

// Job is a tracked unit of part-recognition work.
type Job struct {
	ID         int64
	Status     Status
	PartID     int64
	PartName   string
	WorkerIP   string
	WorkerPort int
	Message    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpdateRequest overwrites every mutable job field. ExpectedStatus, when set,
// is an additional precondition on the stored status.
type UpdateRequest struct {
	ID             int64
	Status         Status
	PartID         int64
	PartName       string
	WorkerIP       string
	WorkerPort     int
	Message        string
	ExpectedStatus Status
}

// Result is the classification outcome attached to a job.
type Result struct {
	JobID        int64
	PartID       int64
	ModelVersion int64
	Classes      []knn.Candidate
	CreatedAt    time.Time
}
