package ledger

import (
	"strconv"
	"time"

	"github.com/Sternrassler/snapfetch/pkg/batch"
)

// Task statuses stored in the ledger.
const (
	TaskStatusSuccess = "success"
	TaskStatusFailed  = "failed"
)

// RunRecord is the stored form of a finished batch.
type RunRecord struct {
	Date       string    `json:"date"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempts   int       `json:"attempts"`
	Successes  int       `json:"successes"`
	Failures   int       `json:"failures"`
	Requests   int       `json:"requests"`
	Status     string    `json:"status"`
}

// Duration returns how long the run took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRunRecord converts a finished batch run.
func NewRunRecord(run batch.Run) RunRecord {
	return RunRecord{
		Date:       run.Date,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Attempts:   run.Summary.Attempts,
		Successes:  run.Summary.Successes,
		Failures:   run.Summary.Failures,
		Requests:   run.Summary.Requests,
		Status:     string(run.Summary.Status()),
	}
}

// TaskState is the stored state of one (identifier, suffix) pair.
type TaskState struct {
	Identifier      string
	Suffix          string
	LastStatus      string
	LastAttemptAt   time.Time
	LastSuccessDate string
	LastURL         string
	LastError       string
	Requests        int
}

// Hash field names.
const (
	fieldIdentifier      = "identifier"
	fieldSuffix          = "suffix"
	fieldLastStatus      = "last_status"
	fieldLastAttemptAt   = "last_attempt_at"
	fieldLastSuccessDate = "last_success_date"
	fieldLastURL         = "last_url"
	fieldLastError       = "last_error"
	fieldRequests        = "requests_total"
)

// parseTaskState decodes a task hash.
func parseTaskState(fields map[string]string) *TaskState {
	state := &TaskState{
		Identifier:      fields[fieldIdentifier],
		Suffix:          fields[fieldSuffix],
		LastStatus:      fields[fieldLastStatus],
		LastSuccessDate: fields[fieldLastSuccessDate],
		LastURL:         fields[fieldLastURL],
		LastError:       fields[fieldLastError],
	}
	if ts := fields[fieldLastAttemptAt]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			state.LastAttemptAt = t
		}
	}
	if n, err := strconv.Atoi(fields[fieldRequests]); err == nil {
		state.Requests = n
	}
	return state
}
