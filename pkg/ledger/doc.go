// Package ledger records batch outcomes in Redis.
//
// Every task leaves a hash with its latest status, the date of its latest
// successful download, its latest URL and error, and a running request count.
// Every run is stored as the latest run and pushed onto a trimmed history
// list, so an operator (or the CLI's --status flag) can see what the last
// scheduled run published.
//
// # Basic Usage
//
//	redisClient, err := ledger.Connect(ctx, "redis://localhost:6379/0")
//	if err != nil {
//		return err
//	}
//	l := ledger.New(redisClient)
//	fetcher.SetRecorder(l)
//
//	last, err := l.LastRun(ctx)
//	if errors.Is(err, ledger.ErrNoRuns) {
//		// nothing recorded yet
//	}
//
// # Keys
//
//   - snapfetch:task:{identifier}:{suffix} (hash)
//   - snapfetch:run:latest (JSON string)
//   - snapfetch:runs (list of JSON, newest first)
//
// # Metrics
//
//   - snapfetch_ledger_writes_total{kind} - task and run records written
//   - snapfetch_ledger_errors_total{operation} - failed Redis operations
package ledger
