package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/snapfetch/pkg/batch"
)

func TestNewRunRecord(t *testing.T) {
	started := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	run := batch.Run{
		Date:       "2024-01-01",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Summary: batch.Summary{
			Attempts:  4,
			Successes: 3,
			Failures:  1,
			Requests:  6,
		},
	}

	rec := NewRunRecord(run)

	if rec.Date != "2024-01-01" {
		t.Errorf("Date = %q", rec.Date)
	}
	if rec.Attempts != 4 || rec.Successes != 3 || rec.Failures != 1 || rec.Requests != 6 {
		t.Errorf("Counts = %+v", rec)
	}
	if rec.Status != string(batch.StatusSuccess) {
		t.Errorf("Status = %q, want success", rec.Status)
	}
	if rec.Duration() != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", rec.Duration())
	}

	run.Summary = batch.Summary{Attempts: 2, Failures: 2, Outcomes: []batch.Outcome{{Err: errors.New("x")}}}
	if got := NewRunRecord(run).Status; got != string(batch.StatusNoSuccesses) {
		t.Errorf("Status = %q, want no_successes", got)
	}
}

func TestParseTaskState(t *testing.T) {
	at := time.Date(2024, 1, 1, 6, 0, 0, 123, time.UTC)

	state := parseTaskState(map[string]string{
		fieldIdentifier:      "E1",
		fieldSuffix:          "in",
		fieldLastStatus:      TaskStatusSuccess,
		fieldLastAttemptAt:   at.Format(time.RFC3339Nano),
		fieldLastSuccessDate: "2024-01-01",
		fieldLastURL:         "http://origin/E1_2024-01-01_in.png",
		fieldRequests:        "7",
	})

	if state.Identifier != "E1" || state.Suffix != "in" {
		t.Errorf("Task = %s/%s", state.Identifier, state.Suffix)
	}
	if !state.LastAttemptAt.Equal(at) {
		t.Errorf("LastAttemptAt = %v, want %v", state.LastAttemptAt, at)
	}
	if state.Requests != 7 {
		t.Errorf("Requests = %d, want 7", state.Requests)
	}

	empty := parseTaskState(map[string]string{fieldRequests: "garbage"})
	if empty.Requests != 0 || !empty.LastAttemptAt.IsZero() {
		t.Errorf("Malformed fields should decode to zero values: %+v", empty)
	}
}
