package judge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dontdude/gograde/internal/domain"
)

// Materializer turns a dequeued job id into this worker's slice of the job.
type Materializer struct {
	source domain.JobSource
	worker string
}

func NewMaterializer(source domain.JobSource, worker string) *Materializer {
	return &Materializer{source: source, worker: worker}
}

// Load reads code, language and the worker's test-case partition.
// A missing or empty partition returns domain.ErrPartitionMissing; an
// unparseable one returns domain.ErrMalformedJob.
func (m *Materializer) Load(ctx context.Context, jobID string) (domain.Job, error) {
	fields, err := m.source.ReadFields(ctx, jobID, domain.FieldCode, domain.FieldLanguage, m.worker)
	if err != nil {
		return domain.Job{}, fmt.Errorf("read job %s: %w", jobID, err)
	}

	raw := fields[m.worker]
	if raw == "" {
		return domain.Job{}, domain.ErrPartitionMissing
	}

	job := domain.Job{
		ID:       jobID,
		Code:     fields[domain.FieldCode],
		Language: fields[domain.FieldLanguage],
		Worker:   m.worker,
	}
	if err := json.Unmarshal([]byte(raw), &job.TestCases); err != nil {
		return job, fmt.Errorf("%w: test cases for %s: %v", domain.ErrMalformedJob, m.worker, err)
	}
	if len(job.TestCases) == 0 {
		return job, domain.ErrPartitionMissing
	}
	if job.Code == "" {
		return job, fmt.Errorf("%w: empty source code", domain.ErrMalformedJob)
	}
	return job, nil
}
