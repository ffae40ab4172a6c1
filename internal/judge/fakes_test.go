package judge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dontdude/gograde/internal/domain"
	"github.com/dontdude/gograde/internal/toolchain"
)

// memStore is an in-memory JobSource and ResultSink.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]map[string]string
	results map[string][]byte
	ttls    map[string]time.Duration
	status  map[string]map[string]string
	events  []domain.JobEvent

	putErr  error
	readErr error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[string]map[string]string),
		results: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
		status:  make(map[string]map[string]string),
	}
}

func (s *memStore) addJob(t *testing.T, id, lang, code, worker string, cases []domain.TestCase) {
	t.Helper()
	raw, err := json.Marshal(cases)
	if err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = map[string]string{
		domain.FieldCode:     code,
		domain.FieldLanguage: lang,
		worker:               string(raw),
	}
}

func (s *memStore) Pop(ctx context.Context, block time.Duration) (string, error) {
	return "", domain.ErrQueueEmpty
}

func (s *memStore) ReadFields(_ context.Context, jobID string, fields ...string) (map[string]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for _, f := range fields {
		if v, ok := s.jobs[jobID][f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

func (s *memStore) PutResult(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = payload
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) MarkStatus(_ context.Context, key, field, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status[key] == nil {
		s.status[key] = make(map[string]string)
	}
	s.status[key][field] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) Broadcast(_ context.Context, event domain.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) verdicts(t *testing.T, jobID, worker string) []domain.Verdict {
	t.Helper()
	s.mu.Lock()
	raw, ok := s.results[domain.ResultKey(jobID, worker)]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no result published for %s/%s", jobID, worker)
	}
	var vs []domain.Verdict
	if err := json.Unmarshal(raw, &vs); err != nil {
		t.Fatalf("decode verdicts: %v", err)
	}
	return vs
}

// scriptedExecutor answers each RunSpec with a function and counts calls.
type scriptedExecutor struct {
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
	fn      func(spec domain.RunSpec) domain.ExecutionOutcome
}

func (e *scriptedExecutor) Execute(_ context.Context, spec domain.RunSpec) domain.ExecutionOutcome {
	e.calls.Add(1)
	n := e.running.Add(1)
	defer e.running.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return e.fn(spec)
}

// echoRun writes back the first line of stdin, the way `read x; echo $x` would.
func echoRun(spec domain.RunSpec) domain.ExecutionOutcome {
	line, _, _ := strings.Cut(spec.Stdin, "\n")
	return domain.ExecutionOutcome{Exit: domain.ExitSuccess, Stdout: line + "\n", Elapsed: time.Millisecond}
}

var errStoreDown = errors.New("store down")

const testWorker = "worker_0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimits() Limits {
	return Limits{
		DefaultTimeout: time.Second,
		MaxTimeout:     2500 * time.Millisecond,
		DefaultOutput:  1024 * 1024,
	}
}

func newTestPipeline(t *testing.T, store *memStore, exec domain.Executor, limits Limits) *Pipeline {
	t.Helper()
	reg, err := toolchain.NewRegistry(toolchain.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	logger := discardLogger()
	return NewPipeline(testWorker, t.TempDir(), limits, Deps{
		Materializer: NewMaterializer(store, testWorker),
		Registry:     reg,
		Compiler:     NewCompiler(exec, 10*time.Second),
		Executor:     exec,
		Publisher:    NewPublisher(store, testWorker, time.Minute, time.Minute, logger),
		Logger:       logger,
	})
}
