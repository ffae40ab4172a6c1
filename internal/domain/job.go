package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Hash fields of a job record in the coordination store.
const (
	FieldCode     = "code"
	FieldLanguage = "language"
)

// StatusCompleted is written to the per-worker status field once a partition is graded.
const StatusCompleted = "completed"

// ResultKey is the key holding one worker's verdict list for a job.
func ResultKey(jobID, worker string) string {
	return fmt.Sprintf("job:%s:worker:%s", jobID, worker)
}

// StatusKey is the hash holding per-worker completion flags for a job.
func StatusKey(jobID string) string {
	return fmt.Sprintf("job:%s:status", jobID)
}

// Job is one graded submission as seen by a single worker.
// TestCases only holds the partition assigned to Worker.
type Job struct {
	ID        string
	Code      string
	Language  string
	Worker    string
	TestCases []TestCase
}

// TestCase is one input/expected-output pair. Timeout and SizeOut keep the
// submitter's raw values; the pipeline clamps them before use.
type TestCase struct {
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	Timeout        Seconds   `json:"timeout"`
	SizeOut        Kilobytes `json:"sizeout"`
}

// Seconds is a duration in (possibly fractional) seconds.
// Submitters send it either as a JSON number or as a numeric string.
type Seconds float64

func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

func (s *Seconds) UnmarshalJSON(b []byte) error {
	v, err := parseLooseNumber(b)
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	*s = Seconds(v)
	return nil
}

// Kilobytes is an output size limit in KiB, accepted as a number or numeric string.
type Kilobytes float64

// Bytes saturates at math.MaxInt64.
func (k Kilobytes) Bytes() int64 {
	b := float64(k) * 1024
	if b >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(b)
}

func (k *Kilobytes) UnmarshalJSON(b []byte) error {
	v, err := parseLooseNumber(b)
	if err != nil {
		return fmt.Errorf("sizeout: %w", err)
	}
	*k = Kilobytes(v)
	return nil
}

func parseLooseNumber(b []byte) (float64, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return finite(f)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return 0, err
	}
	return finite(f)
}

func finite(f float64) (float64, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}
