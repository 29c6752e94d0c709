package ledger

import "strings"

// KeyPrefix namespaces every ledger key.
const KeyPrefix = "snapfetch"

// Fixed keys for run records.
const (
	KeyRunLatest  = KeyPrefix + ":run:latest"
	KeyRunHistory = KeyPrefix + ":runs"
)

// TaskKey identifies the ledger hash of one (identifier, suffix) pair.
type TaskKey struct {
	Identifier string
	Suffix     string
}

// String generates the Redis key.
// Format: snapfetch:task:{identifier}:{suffix}
//
// Colons inside the parts are escaped so distinct pairs never collide.
func (k TaskKey) String() string {
	return strings.Join([]string{KeyPrefix, "task", escape(k.Identifier), escape(k.Suffix)}, ":")
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, ":", `\:`)
}
