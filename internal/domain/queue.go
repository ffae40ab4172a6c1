package domain

import (
	"context"
	"time"
)

// JobSource is the consumer side of the coordination store.
type JobSource interface {
	// Pop blocks up to block for a job identifier and removes it from the queue.
	// It returns ErrQueueEmpty when nothing arrived in time.
	Pop(ctx context.Context, block time.Duration) (string, error)

	// ReadFields reads hash fields of a job record. Absent fields are left out of the map.
	ReadFields(ctx context.Context, jobID string, fields ...string) (map[string]string, error)
}

// ResultSink is where a worker publishes verdicts and completion flags.
type ResultSink interface {
	PutResult(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	MarkStatus(ctx context.Context, key, field, value string, ttl time.Duration) error
	Broadcast(ctx context.Context, event JobEvent) error
}

// JobBoard is the submitter's view of the coordination store.
type JobBoard interface {
	// Submit writes the job record and pushes copies queue entries for it.
	Submit(ctx context.Context, jobID string, fields map[string]string, copies int, ttl time.Duration) error
	Partitions(ctx context.Context, jobID string) ([]string, error)
	Status(ctx context.Context, jobID string) (map[string]string, error)
	// Result returns nil when the key does not exist (not yet written or expired).
	Result(ctx context.Context, key string) ([]byte, error)
	SubscribeEvents(ctx context.Context) (<-chan JobEvent, error)
}

// Recorder keeps a durable trail of processed jobs.
type Recorder interface {
	Record(ctx context.Context, rec JobRecord) error
}
