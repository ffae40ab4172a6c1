package submit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dontdude/gograde/internal/domain"
)

type fakeBoard struct {
	jobID   string
	fields  map[string]string
	copies  int
	ttl     time.Duration
	status  map[string]string
	results map[string][]byte

	submitErr error
}

func (b *fakeBoard) Submit(_ context.Context, jobID string, fields map[string]string, copies int, ttl time.Duration) error {
	if b.submitErr != nil {
		return b.submitErr
	}
	b.jobID, b.fields, b.copies, b.ttl = jobID, fields, copies, ttl
	return nil
}

func (b *fakeBoard) Partitions(_ context.Context, jobID string) ([]string, error) {
	if jobID != b.jobID {
		return nil, domain.ErrJobNotFound
	}
	var out []string
	for k := range b.fields {
		if k != domain.FieldCode && k != domain.FieldLanguage {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *fakeBoard) Status(context.Context, string) (map[string]string, error) {
	return b.status, nil
}

func (b *fakeBoard) Result(_ context.Context, key string) ([]byte, error) {
	return b.results[key], nil
}

func (b *fakeBoard) SubscribeEvents(context.Context) (<-chan domain.JobEvent, error) {
	return nil, nil
}

func newTestService(board *fakeBoard) *Service {
	s := NewService(board, []string{"worker_0", "worker_1", "worker_2"}, 10*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.newID = func() string { return "job-1" }
	return s
}

func cases(n int) []domain.TestCase {
	out := make([]domain.TestCase, n)
	for i := range out {
		out[i] = domain.TestCase{Input: string(rune('a' + i)), ExpectedOutput: string(rune('a' + i))}
	}
	return out
}

func TestPartitionRoundRobin(t *testing.T) {
	parts := Partition(cases(5), []string{"w0", "w1", "w2"})
	if len(parts["w0"]) != 2 || len(parts["w1"]) != 2 || len(parts["w2"]) != 1 {
		t.Fatalf("unexpected sizes: %v", parts)
	}
	if parts["w0"][0].Input != "a" || parts["w0"][1].Input != "d" {
		t.Errorf("order not preserved: %+v", parts["w0"])
	}

	parts = Partition(cases(1), []string{"w0", "w1"})
	if _, ok := parts["w1"]; ok {
		t.Errorf("empty partitions must be left out")
	}
}

func TestSubmitWritesFieldsAndCopies(t *testing.T) {
	board := &fakeBoard{}
	s := newTestService(board)

	rec, err := s.Submit(context.Background(), Submission{Code: "print(1)", Language: "python", TestCases: cases(2)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.JobID != "job-1" || rec.Status != "queued" {
		t.Errorf("unexpected receipt: %+v", rec)
	}
	if board.copies != 2 || board.ttl != 10*time.Minute {
		t.Errorf("copies=%d ttl=%s", board.copies, board.ttl)
	}
	if board.fields[domain.FieldCode] != "print(1)" || board.fields[domain.FieldLanguage] != "python" {
		t.Errorf("unexpected fields: %v", board.fields)
	}
	if _, ok := board.fields["worker_2"]; ok {
		t.Errorf("worker_2 has no test cases and should get no field")
	}
	var got []domain.TestCase
	if err := json.Unmarshal([]byte(board.fields["worker_1"]), &got); err != nil || len(got) != 1 || got[0].Input != "b" {
		t.Errorf("worker_1 partition = %v, %v", got, err)
	}
}

func TestSubmitValidates(t *testing.T) {
	s := newTestService(&fakeBoard{})
	for _, sub := range []Submission{
		{Code: "  ", TestCases: cases(1)},
		{Code: "x"},
	} {
		if _, err := s.Submit(context.Background(), sub); !errors.Is(err, ErrInvalidSubmission) {
			t.Errorf("Submit(%+v) = %v", sub, err)
		}
	}
}

func TestSubmitPropagatesStoreError(t *testing.T) {
	s := newTestService(&fakeBoard{submitErr: errors.New("redis down")})
	if _, err := s.Submit(context.Background(), Submission{Code: "x", TestCases: cases(1)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestReportAggregates(t *testing.T) {
	board := &fakeBoard{}
	s := newTestService(board)
	if _, err := s.Submit(context.Background(), Submission{Code: "x", Language: "cpp", TestCases: cases(3)}); err != nil {
		t.Fatal(err)
	}

	v0, _ := json.Marshal([]domain.Verdict{{Correct: true, Status: domain.StatusAccepted}})
	board.status = map[string]string{"worker_0": domain.StatusCompleted}
	board.results = map[string][]byte{domain.ResultKey("job-1", "worker_0"): v0}

	rep, err := s.Report(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Done || rep.Passed != 1 || rep.Total != 1 || len(rep.Workers) != 3 {
		t.Fatalf("unexpected partial report: %+v", rep)
	}
	if rep.Workers[0].Worker != "worker_0" || !rep.Workers[0].Completed {
		t.Errorf("workers not sorted or status missing: %+v", rep.Workers)
	}

	board.status["worker_1"] = domain.StatusCompleted
	board.status["worker_2"] = domain.StatusCompleted
	rep, err = s.Report(context.Background(), "job-1")
	if err != nil || !rep.Done {
		t.Fatalf("expected done report, got %+v, %v", rep, err)
	}
}

func TestReportUnknownJob(t *testing.T) {
	s := newTestService(&fakeBoard{})
	if _, err := s.Report(context.Background(), "missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
