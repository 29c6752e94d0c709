package batch

import "strings"

// Task is one (identifier, suffix) pairing for a given date and extension.
type Task struct {
	Identifier string
	Suffix     string
	Date       string
	Extension  string
}

// Tail returns "{identifier}_{date}_{suffix}.{extension}".
func (t Task) Tail() string {
	return t.Identifier + "_" + t.Date + "_" + t.Suffix + "." + t.Extension
}

// URL joins the normalized base URL and the tail.
func (t Task) URL(baseURL string) string {
	return NormalizeBaseURL(baseURL) + "/" + t.Tail()
}

// StableName is the artifact name that does not encode the date.
func (t Task) StableName() string {
	return t.Identifier + "_" + t.Suffix + "-latest." + t.Extension
}

// DatedName is the artifact name that encodes the date. It equals the tail.
func (t Task) DatedName() string {
	return t.Tail()
}

// NormalizeBaseURL strips trailing slashes.
func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}

// Tasks expands identifiers x suffixes, identifiers outer, in input order.
// Duplicate identifiers yield duplicate tasks.
func Tasks(identifiers, suffixes []string, date, extension string) []Task {
	tasks := make([]Task, 0, len(identifiers)*len(suffixes))
	for _, id := range identifiers {
		for _, suffix := range suffixes {
			tasks = append(tasks, Task{
				Identifier: id,
				Suffix:     suffix,
				Date:       date,
				Extension:  extension,
			})
		}
	}
	return tasks
}
