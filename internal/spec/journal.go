package spec

import "time"

// Stage names used in the journal and metrics.
const (
	StageConnect = "connect"
	StageFund    = "fund"
)

// Attempt is the journal record of one remote operation.
type Attempt struct {
	RunID     string
	Stage     string
	Target    string // node or peer id
	Address   string // empty for fund attempts
	Outcome   string
	Error     string
	StartedAt time.Time
	Elapsed   time.Duration
}

// OutcomeCount is one row of a run summary.
type OutcomeCount struct {
	Stage   string `json:"stage" db:"stage"`
	Outcome string `json:"outcome" db:"outcome"`
	Count   int    `json:"count" db:"count"`
}

// Journal records attempt outcomes for the current run.
type Journal interface {
	RecordAttempt(a Attempt) error
	Summary(runID string) ([]OutcomeCount, error)
	Close() error
}
