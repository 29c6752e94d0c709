package batch

// Status is the overall result of a batch.
type Status string

const (
	// StatusSuccess means at least one task succeeded.
	StatusSuccess Status = "success"

	// StatusNoSuccesses means every task failed.
	StatusNoSuccesses Status = "no_successes"
)

// Outcome is the result of one task.
type Outcome struct {
	Task Task
	URL  string

	// Stable and Dated are the sink locations of the two artifacts.
	Stable string
	Dated  string

	// Requests is the number of HTTP attempts made, retries included.
	Requests int

	// Bytes is the artifact size on success.
	Bytes int

	// Err is nil on success.
	Err error
}

// OK reports whether the task succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Summary accumulates task outcomes in task order.
type Summary struct {
	Attempts  int
	Successes int
	Failures  int
	Requests  int
	Outcomes  []Outcome
}

// Status derives the overall status from the counts.
func (s Summary) Status() Status {
	if s.Successes > 0 {
		return StatusSuccess
	}
	return StatusNoSuccesses
}

func (s *Summary) add(o Outcome) {
	s.Attempts++
	s.Requests += o.Requests
	if o.OK() {
		s.Successes++
	} else {
		s.Failures++
	}
	s.Outcomes = append(s.Outcomes, o)
}
