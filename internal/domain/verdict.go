package domain

import "time"

// Status is the short verdict code attached to every published test case.
type Status string

const (
	StatusAccepted      Status = "AC"
	StatusWrongAnswer   Status = "WA"
	StatusTimeLimit     Status = "TLE"
	StatusRuntimeError  Status = "RE"
	StatusOutputLimit   Status = "OLE"
	StatusInternalError Status = "IE"
	StatusCompileError  Status = "CE"
)

// Verdict is the graded outcome of one test case. The test case fields are
// echoed back so consumers can render results without rereading the job.
// Timeout holds the budget that was actually applied.
type Verdict struct {
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	Timeout        Seconds   `json:"timeout"`
	SizeOut        Kilobytes `json:"sizeout"`
	Result         string    `json:"result"`
	Correct        bool      `json:"correct"`
	Status         Status    `json:"status"`
	TimeMs         int64     `json:"time_ms"`
}

// Job-level outcomes reported in events and the job ledger.
const (
	OutcomeGraded       = "graded"
	OutcomeCompileError = "compile_error"
	OutcomeMalformed    = "malformed"
	OutcomeUnsupported  = "unsupported_language"
	OutcomeInternal     = "internal_error"
)

// JobEvent is broadcast after a worker publishes its verdicts for a job.
type JobEvent struct {
	JobID   string `json:"job_id"`
	Worker  string `json:"worker"`
	Outcome string `json:"outcome"`
	Passed  int    `json:"passed"`
	Total   int    `json:"total"`
}

// JobRecord is one row of the local job ledger.
type JobRecord struct {
	JobID      string
	Worker     string
	Language   string
	Outcome    string
	Passed     int
	Total      int
	Duration   time.Duration
	FinishedAt time.Time
}

// CountPassed returns how many verdicts are correct.
func CountPassed(verdicts []Verdict) int {
	n := 0
	for _, v := range verdicts {
		if v.Correct {
			n++
		}
	}
	return n
}
