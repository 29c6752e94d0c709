// Package batch fetches the Cartesian product of identifiers and suffixes
// from an HTTP origin and materializes every download twice: under a stable
// name that each run overwrites, and under a dated name that accumulates
// history.
//
// Example usage:
//
//	cfg := batch.Config{
//		Identifiers: []string{"E1", "E2"},
//		Suffixes:    []string{"in", "out"},
//		Date:        "2024-01-01",
//		BaseURL:     "https://cams.example.com/snapshots/",
//		Extension:   "jpg",
//		Timeout:     60 * time.Second,
//		Retry:       client.DefaultRetryPolicy(),
//	}
//	summary, err := batch.FetchAll(ctx, cfg, "out")
//
// For each task the fetcher:
//   - derives the URL {base}/{id}_{date}_{suffix}.{ext}
//   - GETs it with a bounded retry budget, each attempt under its own timeout
//   - writes the body to {id}_{suffix}-latest.{ext} and the same bytes to
//     {id}_{date}_{suffix}.{ext}
//   - writes nothing when the retry budget is spent
//
// Tasks run one at a time in identifier order, suffixes nested, unless
// Config.Concurrency allows more. The run succeeds when at least one task
// succeeded; otherwise the error wraps ErrNoSuccesses.
package batch
