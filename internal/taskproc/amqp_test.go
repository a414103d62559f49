package taskproc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// --- Test fixtures ---

// stubResultStore — in-memory resultStore для enqueue-тестов.
type stubResultStore struct {
	mu   sync.Mutex
	rows map[string]*domain.TaskResult
}

func newStubResultStore() *stubResultStore {
	return &stubResultStore{rows: make(map[string]*domain.TaskResult)}
}

func (s *stubResultStore) seed(id string, status domain.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = &domain.TaskResult{ID: id, Status: status}
}

func (s *stubResultStore) Insert(ctx context.Context, id, queue, name string, createdAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; ok {
		return false, nil
	}
	s.rows[id] = &domain.TaskResult{ID: id, Status: domain.TaskStatusPending, CreatedAt: createdAt}
	return true, nil
}

func (s *stubResultStore) Get(ctx context.Context, id string) (*domain.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *stubResultStore) Revoke(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (s *stubResultStore) MarkStarted(ctx context.Context, id, queue, name string, attempt int, createdAt time.Time) error {
	return nil
}

func (s *stubResultStore) MarkRetry(ctx context.Context, id string, attempt int, errMsg string) error {
	return nil
}

func (s *stubResultStore) MarkSuccess(ctx context.Context, id string, result json.RawMessage) error {
	return nil
}

func (s *stubResultStore) MarkFailure(ctx context.Context, id string, errMsg string) error {
	return nil
}

// flakyPublisher падает на первых failures публикациях, остальные
// записывает.
type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	published []string
}

func (p *flakyPublisher) PublishTask(ctx context.Context, task *domain.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, task.ID.String())
	return nil
}

// enqueueTestAdapter — адаптер с подменёнными store и publisher,
// без подключений к брокеру и базе.
func enqueueTestAdapter(t *testing.T, store resultStore, pub taskPublisher) *AMQPAdapter {
	t.Helper()

	adapter, err := NewAMQPAdapter(validAMQPConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	adapter.results = store
	adapter.publisher = pub
	adapter.initialized = true
	return adapter
}

// --- AMQPAdapter Tests (без брокера и базы) ---

func TestNewAMQPAdapter_BackendMismatch(t *testing.T) {
	cfg := TaskConfig{
		QueueName:  "test",
		MaxRetries: 3,
		// Backend без AMQP-варианта
	}

	_, err := NewAMQPAdapter(cfg, testLogger())
	if !errors.Is(err, ErrConfigMismatch) {
		t.Fatalf("expected ErrConfigMismatch, got %v", err)
	}
}

func TestAMQPAdapter_AsyncVariantsUnsupported(t *testing.T) {
	adapter, err := NewAMQPAdapter(validAMQPConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Отказ немедленный, без сетевых вызовов и без деградации
	// в блокирующий путь
	ch, err := adapter.EnqueueTaskAsync(context.Background(), "add", nil, nil, nil)
	if !errors.Is(err, ErrAsyncUnsupported) {
		t.Fatalf("EnqueueTaskAsync: expected ErrAsyncUnsupported, got %v", err)
	}
	if ch != nil {
		t.Error("EnqueueTaskAsync: expected nil channel on refusal")
	}

	ch, err = adapter.GetTaskStatusAsync(context.Background(), "some-id")
	if !errors.Is(err, ErrAsyncUnsupported) {
		t.Fatalf("GetTaskStatusAsync: expected ErrAsyncUnsupported, got %v", err)
	}
	if ch != nil {
		t.Error("GetTaskStatusAsync: expected nil channel on refusal")
	}
}

func TestAMQPAdapter_OperationsBeforeInitialize(t *testing.T) {
	adapter, err := NewAMQPAdapter(validAMQPConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := adapter.EnqueueTask(context.Background(), "add", nil, nil, nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EnqueueTask: expected ErrNotInitialized, got %v", err)
	}
	if _, err := adapter.GetTaskStatus(context.Background(), "id"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("GetTaskStatus: expected ErrNotInitialized, got %v", err)
	}
	if _, err := adapter.CancelTask(context.Background(), "id"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CancelTask: expected ErrNotInitialized, got %v", err)
	}
	if err := adapter.StartConsumer(context.Background(), nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("StartConsumer: expected ErrNotInitialized, got %v", err)
	}
	if _, err := adapter.HealthCheck(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("HealthCheck: expected ErrNotInitialized, got %v", err)
	}
}

func TestAMQPAdapter_ShutdownBeforeInitialize(t *testing.T) {
	adapter, err := NewAMQPAdapter(validAMQPConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Shutdown неинициализированного адаптера — no-op, не паника
	if err := adapter.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// После Shutdown операции отклоняются
	if _, err := adapter.EnqueueTask(context.Background(), "add", nil, nil, nil); !errors.Is(err, ErrAdapterClosed) {
		t.Errorf("expected ErrAdapterClosed, got %v", err)
	}
	if err := adapter.Initialize(context.Background()); !errors.Is(err, ErrAdapterClosed) {
		t.Errorf("Initialize after Shutdown: expected ErrAdapterClosed, got %v", err)
	}

	// Повторный Shutdown идемпотентен
	if err := adapter.Shutdown(context.Background()); err != nil {
		t.Fatalf("repeated Shutdown must be a no-op: %v", err)
	}
}

func TestAMQPAdapter_EnqueueTask_PublishesOnce(t *testing.T) {
	store := newStubResultStore()
	pub := &flakyPublisher{}
	adapter := enqueueTestAdapter(t, store, pub)

	result, err := adapter.EnqueueTask(context.Background(), "add", []any{1, 2}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.TaskStatusPending {
		t.Errorf("expected PENDING, got %s", result.Status)
	}
	if len(pub.published) != 1 || pub.published[0] != result.ID {
		t.Errorf("expected single publish of %s, got %v", result.ID, pub.published)
	}
}

func TestAMQPAdapter_EnqueueTask_RepublishesPendingAfterFailedPublish(t *testing.T) {
	store := newStubResultStore()
	pub := &flakyPublisher{failures: 1}
	adapter := enqueueTestAdapter(t, store, pub)

	id := uuid.New().String()
	opts := &EnqueueOptions{TaskID: id}

	// Первая отправка: строка записана, публикация упала
	if _, err := adapter.EnqueueTask(context.Background(), "add", nil, nil, opts); err == nil {
		t.Fatal("expected publish error")
	}
	if len(pub.published) != 0 {
		t.Fatalf("nothing must be published on broker error, got %v", pub.published)
	}

	// Повторная отправка с тем же id (ровно так ретраит beat):
	// task всё ещё PENDING, сообщение обязано уйти в очередь
	result, err := adapter.EnqueueTask(context.Background(), "add", nil, nil, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.TaskStatusPending {
		t.Errorf("expected PENDING, got %s", result.Status)
	}
	if len(pub.published) != 1 || pub.published[0] != id {
		t.Errorf("expected retry to publish %s, got %v", id, pub.published)
	}
}

func TestAMQPAdapter_EnqueueTask_NoRepublishForFinishedTask(t *testing.T) {
	store := newStubResultStore()
	pub := &flakyPublisher{}
	adapter := enqueueTestAdapter(t, store, pub)

	id := uuid.New().String()
	store.seed(id, domain.TaskStatusSuccess)

	result, err := adapter.EnqueueTask(context.Background(), "add", nil, nil, &EnqueueOptions{TaskID: id})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.TaskStatusSuccess {
		t.Errorf("expected existing SUCCESS status, got %s", result.Status)
	}
	if len(pub.published) != 0 {
		t.Errorf("finished task must not be republished, got %v", pub.published)
	}
}

func TestAMQPAdapter_CloseBeforeInitialize(t *testing.T) {
	adapter, err := NewAMQPAdapter(validAMQPConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := adapter.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.Close(context.Background()); err != nil {
		t.Fatalf("repeated Close must be a no-op: %v", err)
	}
	if _, err := adapter.GetTaskStatus(context.Background(), "id"); !errors.Is(err, ErrAdapterClosed) {
		t.Errorf("expected ErrAdapterClosed after Close, got %v", err)
	}
}

func TestAMQPAdapter_RegisterTaskHandle(t *testing.T) {
	adapter, err := NewAMQPAdapter(validAMQPConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := adapter.RegisterTaskHandle("add", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := adapter.RegisterTaskHandle("", nil); err == nil {
		t.Error("expected error for empty task name")
	}
}
