package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// --- Test fixtures ---

// fakeResultStore — in-memory реализация ResultStore, записывающая
// все переходы статуса.
type fakeResultStore struct {
	mu          sync.Mutex
	current     map[string]*domain.TaskResult
	transitions map[string][]domain.TaskStatus
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{
		current:     make(map[string]*domain.TaskResult),
		transitions: make(map[string][]domain.TaskStatus),
	}
}

func (s *fakeResultStore) seed(id string, status domain.TaskStatus) {
	s.seedAttempt(id, status, 0)
}

func (s *fakeResultStore) seedAttempt(id string, status domain.TaskStatus, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[id] = &domain.TaskResult{ID: id, Status: status, Attempt: attempt}
}

func (s *fakeResultStore) record(id string, status domain.TaskStatus) {
	r, ok := s.current[id]
	if !ok {
		r = &domain.TaskResult{ID: id}
		s.current[id] = r
	}
	r.Status = status
	s.transitions[id] = append(s.transitions[id], status)
}

func (s *fakeResultStore) Get(ctx context.Context, id string) (*domain.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.current[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *fakeResultStore) MarkStarted(ctx context.Context, id, queue, name string, attempt int, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(id, domain.TaskStatusStarted)
	s.current[id].Attempt = attempt
	return nil
}

func (s *fakeResultStore) MarkRetry(ctx context.Context, id string, attempt int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(id, domain.TaskStatusRetry)
	return nil
}

func (s *fakeResultStore) MarkSuccess(ctx context.Context, id string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(id, domain.TaskStatusSuccess)
	s.current[id].Result = result
	return nil
}

func (s *fakeResultStore) MarkFailure(ctx context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(id, domain.TaskStatusFailure)
	s.current[id].Error = errMsg
	return nil
}

func (s *fakeResultStore) transitionsFor(id string) []domain.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TaskStatus(nil), s.transitions[id]...)
}

// fakeAcknowledger записывает ack/nack вместо отправки брокеру.
type fakeAcknowledger struct {
	mu    sync.Mutex
	acks  int
	nacks []bool // значения requeue
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWorker(results ResultStore, registry *Registry, maxRetries int) *Worker {
	return New(Config{
		Queue:       "test",
		Identity:    "conveyor@test",
		Registry:    registry,
		Results:     results,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		Logger:      testLogger(),
	})
}

func testDelivery(payload any) (*mq.Delivery, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	return &mq.Delivery{
		Message: mq.Message{
			ID:        uuid.New().String(),
			Type:      mq.MessageTypeTaskSubmit,
			Payload:   payload,
			Timestamp: time.Now(),
		},
		Raw: amqp.Delivery{Acknowledger: ack, DeliveryTag: 1},
	}, ack
}

func testTask(name string, args []any) *domain.Task {
	return &domain.Task{
		ID:        uuid.New(),
		Name:      name,
		Queue:     "test",
		Args:      args,
		CreatedAt: time.Now().UTC(),
	}
}

// --- Worker Tests ---

func TestWorker_Execute_Success(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()
	registry.Register("add", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return args[0].(float64) + args[1].(float64), nil
	})

	w := testWorker(results, registry, 3)
	task := testTask("add", []any{float64(2), float64(3)})
	delivery, _ := testDelivery(task)

	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := results.transitionsFor(task.ID.String())
	want := []domain.TaskStatus{domain.TaskStatusStarted, domain.TaskStatusSuccess}
	assertTransitions(t, got, want)

	final, _ := results.Get(context.Background(), task.ID.String())
	if string(final.Result) != "5" {
		t.Errorf("expected result 5, got %s", final.Result)
	}
	if final.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", final.Attempt)
	}
}

func TestWorker_Execute_RetryThenSuccess(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()

	calls := 0
	registry.Register("flaky", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient failure")
		}
		return "ok", nil
	})

	w := testWorker(results, registry, 5)
	task := testTask("flaky", nil)
	delivery, _ := testDelivery(task)

	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 3 {
		t.Errorf("expected 3 handler calls, got %d", calls)
	}

	got := results.transitionsFor(task.ID.String())
	want := []domain.TaskStatus{
		domain.TaskStatusStarted, domain.TaskStatusRetry,
		domain.TaskStatusStarted, domain.TaskStatusRetry,
		domain.TaskStatusStarted, domain.TaskStatusSuccess,
	}
	assertTransitions(t, got, want)
}

func TestWorker_Execute_RetriesExhausted(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()

	calls := 0
	registry.Register("broken", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		calls++
		return nil, errors.New("permanent failure")
	})

	// MaxRetries=2: первая попытка + 2 retry = 3 выполнения
	w := testWorker(results, registry, 2)
	task := testTask("broken", nil)
	delivery, _ := testDelivery(task)

	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 3 {
		t.Errorf("expected 3 handler calls, got %d", calls)
	}

	got := results.transitionsFor(task.ID.String())
	want := []domain.TaskStatus{
		domain.TaskStatusStarted, domain.TaskStatusRetry,
		domain.TaskStatusStarted, domain.TaskStatusRetry,
		domain.TaskStatusStarted, domain.TaskStatusFailure,
	}
	assertTransitions(t, got, want)

	final, _ := results.Get(context.Background(), task.ID.String())
	if final.Error != "permanent failure" {
		t.Errorf("expected error message preserved, got %q", final.Error)
	}
}

func TestWorker_Execute_ZeroRetries(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()

	calls := 0
	registry.Register("once", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		calls++
		return nil, errors.New("failure")
	})

	w := testWorker(results, registry, 0)
	task := testTask("once", nil)
	delivery, _ := testDelivery(task)

	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected single execution with zero retries, got %d", calls)
	}

	got := results.transitionsFor(task.ID.String())
	want := []domain.TaskStatus{domain.TaskStatusStarted, domain.TaskStatusFailure}
	assertTransitions(t, got, want)
}

func TestWorker_Execute_RetryBudgetSurvivesRedelivery(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()

	calls := 0
	registry.Register("broken", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		calls++
		return nil, errors.New("permanent failure")
	})

	w := testWorker(results, registry, 2)
	task := testTask("broken", nil)

	// Доставка вернулась в очередь после потери воркера посреди retry:
	// вторая попытка уже была, в store статус RETRY с attempt=2.
	// Остаётся ровно одна попытка из бюджета, не три заново.
	results.seedAttempt(task.ID.String(), domain.TaskStatusRetry, 2)

	delivery, _ := testDelivery(task)
	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Errorf("expected 1 remaining execution after redelivery, got %d", calls)
	}

	got := results.transitionsFor(task.ID.String())
	want := []domain.TaskStatus{domain.TaskStatusStarted, domain.TaskStatusFailure}
	assertTransitions(t, got, want)

	final, _ := results.Get(context.Background(), task.ID.String())
	if final.Attempt != 3 {
		t.Errorf("expected final attempt 3, got %d", final.Attempt)
	}
}

func TestWorker_Execute_InterruptedAttemptReplayed(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()
	registry.Register("ok", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return "done", nil
	})

	w := testWorker(results, registry, 3)
	task := testTask("ok", nil)

	// Воркер погиб между MarkStarted и завершением handler'а:
	// прерванная попытка переигрывается под тем же номером.
	results.seedAttempt(task.ID.String(), domain.TaskStatusStarted, 2)

	delivery, _ := testDelivery(task)
	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := results.transitionsFor(task.ID.String())
	want := []domain.TaskStatus{domain.TaskStatusStarted, domain.TaskStatusSuccess}
	assertTransitions(t, got, want)

	final, _ := results.Get(context.Background(), task.ID.String())
	if final.Attempt != 2 {
		t.Errorf("expected replayed attempt 2, got %d", final.Attempt)
	}
}

func TestWorker_Execute_UnknownTask(t *testing.T) {
	results := newFakeResultStore()

	w := testWorker(results, NewRegistry(), 3)
	task := testTask("nonexistent", nil)
	delivery, _ := testDelivery(task)

	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Неизвестный task — сразу FAILURE, без retry
	got := results.transitionsFor(task.ID.String())
	want := []domain.TaskStatus{domain.TaskStatusFailure}
	assertTransitions(t, got, want)

	final, _ := results.Get(context.Background(), task.ID.String())
	if !strings.Contains(final.Error, "nonexistent") {
		t.Errorf("expected error to name the task, got %q", final.Error)
	}
}

func TestWorker_Execute_PanicRecovered(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()
	registry.Register("panicky", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		panic("boom")
	})

	w := testWorker(results, registry, 0)
	task := testTask("panicky", nil)
	delivery, _ := testDelivery(task)

	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("panic should not escape handleTaskSubmit: %v", err)
	}

	final, _ := results.Get(context.Background(), task.ID.String())
	if final.Status != domain.TaskStatusFailure {
		t.Fatalf("expected FAILURE after panic, got %s", final.Status)
	}
	if !strings.Contains(final.Error, "boom") {
		t.Errorf("expected panic value in error, got %q", final.Error)
	}
}

func TestWorker_HandleTaskSubmit_SkipsRevoked(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()

	called := false
	registry.Register("noop", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		called = true
		return nil, nil
	})

	w := testWorker(results, registry, 3)
	task := testTask("noop", nil)
	results.seed(task.ID.String(), domain.TaskStatusRevoked)

	delivery, _ := testDelivery(task)
	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if called {
		t.Error("revoked task must not be executed")
	}
	if got := results.transitionsFor(task.ID.String()); len(got) != 0 {
		t.Errorf("revoked task must not produce transitions, got %v", got)
	}
}

func TestWorker_HandleTaskSubmit_SkipsFinishedRedelivery(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()

	called := false
	registry.Register("noop", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		called = true
		return nil, nil
	})

	w := testWorker(results, registry, 3)
	task := testTask("noop", nil)
	results.seed(task.ID.String(), domain.TaskStatusSuccess)

	// Повторная доставка после потерянного ack
	delivery, _ := testDelivery(task)
	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if called {
		t.Error("finished task must not be re-executed on redelivery")
	}
	if got := results.transitionsFor(task.ID.String()); len(got) != 0 {
		t.Errorf("redelivery must not produce visible transitions, got %v", got)
	}
}

func TestWorker_HandleTaskSubmit_MalformedPayload(t *testing.T) {
	results := newFakeResultStore()
	w := testWorker(results, NewRegistry(), 3)

	// Payload, который не парсится в Task
	delivery, ack := testDelivery("not a task")

	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("malformed payload must not be an infra error: %v", err)
	}

	// Nack без requeue — сообщение уходит в DLQ
	if len(ack.nacks) != 1 || ack.nacks[0] != false {
		t.Errorf("expected single nack with requeue=false, got %v", ack.nacks)
	}
	if !delivery.Settled() {
		t.Error("delivery must be settled after nack")
	}
}

func TestWorker_HandleTaskSubmit_ETAWaitCancelled(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()

	called := false
	registry.Register("later", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		called = true
		return nil, nil
	})

	w := testWorker(results, registry, 3)

	task := testTask("later", nil)
	eta := time.Now().Add(time.Hour)
	task.ETA = &eta

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivery, ack := testDelivery(task)
	if err := w.handleTaskSubmit(ctx, delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if called {
		t.Error("task must not run before its ETA")
	}
	// Остановка до ETA — сообщение возвращается в очередь
	if len(ack.nacks) != 1 || ack.nacks[0] != true {
		t.Errorf("expected single nack with requeue=true, got %v", ack.nacks)
	}
}

func TestWorker_HandleTaskSubmit_PastETARunsImmediately(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()
	registry.Register("due", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return "done", nil
	})

	w := testWorker(results, registry, 3)

	task := testTask("due", nil)
	eta := time.Now().Add(-time.Minute)
	task.ETA = &eta

	delivery, _ := testDelivery(task)
	if err := w.handleTaskSubmit(context.Background(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := results.transitionsFor(task.ID.String())
	want := []domain.TaskStatus{domain.TaskStatusStarted, domain.TaskStatusSuccess}
	assertTransitions(t, got, want)
}

func TestWorker_Stats_CountsOutcomes(t *testing.T) {
	results := newFakeResultStore()
	registry := NewRegistry()
	registry.Register("ok", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, nil
	})
	registry.Register("bad", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, errors.New("nope")
	})

	w := testWorker(results, registry, 1)

	for i := 0; i < 3; i++ {
		delivery, _ := testDelivery(testTask("ok", nil))
		w.handleTaskSubmit(context.Background(), delivery)
	}
	delivery, _ := testDelivery(testTask("bad", nil))
	w.handleTaskSubmit(context.Background(), delivery)

	snap := w.stats.snapshot()
	if snap["processed"] != int64(4) {
		t.Errorf("expected 4 processed, got %v", snap["processed"])
	}
	if snap["succeeded"] != int64(3) {
		t.Errorf("expected 3 succeeded, got %v", snap["succeeded"])
	}
	if snap["failed"] != int64(1) {
		t.Errorf("expected 1 failed, got %v", snap["failed"])
	}
	if snap["retried"] != int64(1) {
		t.Errorf("expected 1 retried, got %v", snap["retried"])
	}
}

func assertTransitions(t *testing.T, got, want []domain.TaskStatus) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d: expected %s, got %s (full: %v)", i, want[i], got[i], got)
		}
	}
}
