package gitsync

// Outcome classifies a single sync attempt.
type Outcome int

const (
	NoChange Outcome = iota
	Updated
	FetchFailed
	PullFailed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case NoChange:
		return "no_change"
	case Updated:
		return "updated"
	case FetchFailed:
		return "fetch_failed"
	case PullFailed:
		return "pull_failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Failed is true for every outcome that is neither NoChange nor Updated.
func (o Outcome) Failed() bool {
	return o != NoChange && o != Updated
}

// Result is what Sync returns. Reason holds the captured diagnostic text
// for failures and is empty otherwise.
type Result struct {
	Outcome Outcome
	Reason  string
}

func (r Result) String() string {
	if r.Reason == "" {
		return r.Outcome.String()
	}
	return r.Outcome.String() + ": " + r.Reason
}
