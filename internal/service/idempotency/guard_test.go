package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/storage/memory"
)

func newTestGuard(name string) (*Guard, domain.IdempotencyRepository) {
	repo := memory.NewStore().Idempotency()
	guard := NewGuard(repo, time.Hour, log.New().WithField("test", name))
	return guard, repo
}

func countingOp(calls *int, status int, body string) Operation {
	return func(ctx context.Context) (int, []byte, error) {
		*calls++
		return status, []byte(body), nil
	}
}

func TestGuard_FirstExecutionRunsOperation(t *testing.T) {
	guard, _ := newTestGuard("first_run")

	calls := 0
	outcome, err := guard.Execute(context.Background(), "key-1", "POST", "/api/orders",
		[]byte(`{"store_id":1}`), countingOp(&calls, 201, `{"order_id":"o1"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected operation called once, got %d", calls)
	}
	if outcome.Replayed {
		t.Fatal("first execution must not be replayed")
	}
	if outcome.StatusCode != 201 {
		t.Fatalf("expected status 201, got %d", outcome.StatusCode)
	}
	if string(outcome.Body) != `{"order_id":"o1"}` {
		t.Fatalf("unexpected body: %s", outcome.Body)
	}
}

func TestGuard_DuplicateReplaysStoredResponse(t *testing.T) {
	guard, _ := newTestGuard("replay")

	body := []byte(`{"store_id":1}`)
	calls := 0
	if _, err := guard.Execute(context.Background(), "key-1", "POST", "/api/orders",
		body, countingOp(&calls, 201, `{"order_id":"o1"}`)); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	outcome, err := guard.Execute(context.Background(), "key-1", "POST", "/api/orders",
		body, countingOp(&calls, 500, "must not run"))
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}

	// Операция не выполняется повторно
	if calls != 1 {
		t.Fatalf("expected operation called once, got %d", calls)
	}
	if !outcome.Replayed {
		t.Fatal("expected replayed outcome")
	}
	if outcome.StatusCode != 201 {
		t.Fatalf("expected stored status 201, got %d", outcome.StatusCode)
	}
	if string(outcome.Body) != `{"order_id":"o1"}` {
		t.Fatalf("expected stored body, got %s", outcome.Body)
	}
}

func TestGuard_HashMismatchIsPermanentConflict(t *testing.T) {
	guard, _ := newTestGuard("hash_mismatch")

	calls := 0
	if _, err := guard.Execute(context.Background(), "key-1", "POST", "/api/orders",
		[]byte(`{"store_id":1}`), countingOp(&calls, 201, "ok")); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	_, err := guard.Execute(context.Background(), "key-1", "POST", "/api/orders",
		[]byte(`{"store_id":2}`), countingOp(&calls, 201, "other"))
	if !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected operation called once, got %d", calls)
	}
}

func TestGuard_InFlightDuplicateRejected(t *testing.T) {
	guard, repo := newTestGuard("in_flight")

	body := []byte(`{"store_id":1}`)
	// Первый запрос держит ключ в processing
	if _, err := repo.CreateProcessing(context.Background(), domain.IdempotencyRecord{
		Key:         "key-1",
		Method:      "POST",
		Path:        "/api/orders",
		RequestHash: RequestHash("POST", "/api/orders", body),
		TTLAt:       time.Now().UTC().Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed processing record: %v", err)
	}

	calls := 0
	_, err := guard.Execute(context.Background(), "key-1", "POST", "/api/orders",
		body, countingOp(&calls, 201, "dup"))
	if !errors.Is(err, domain.ErrIdempotencyInProgress) {
		t.Fatalf("expected ErrIdempotencyInProgress, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected operation not called, got %d", calls)
	}
}

func TestGuard_ConcurrentDuplicatesExecuteOnce(t *testing.T) {
	guard, _ := newTestGuard("concurrent")

	body := []byte(`{"store_id":1}`)
	var calls int32
	op := func(ctx context.Context) (int, []byte, error) {
		atomic.AddInt32(&calls, 1)
		// Держим ключ в processing, пока остальные горутины входят в Execute
		time.Sleep(20 * time.Millisecond)
		return 201, []byte(`{"order_id":"o1"}`), nil
	}

	const workers = 6
	outcomes := make([]Outcome, workers)
	errs := make([]error, workers)

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			outcomes[i], errs[i] = guard.Execute(context.Background(),
				"key-1", "POST", "/api/orders", body, op)
		}(i)
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 operation execution, got %d", got)
	}

	// Ровно один победитель; остальные либо получили replay сохранённого
	// ответа, либо были отклонены как in-flight дубликаты
	winners, replays, rejected := 0, 0, 0
	for i := 0; i < workers; i++ {
		switch {
		case errs[i] == nil && !outcomes[i].Replayed:
			winners++
			if outcomes[i].StatusCode != 201 {
				t.Fatalf("winner status = %d, want 201", outcomes[i].StatusCode)
			}
		case errs[i] == nil && outcomes[i].Replayed:
			replays++
			if string(outcomes[i].Body) != `{"order_id":"o1"}` {
				t.Fatalf("replay body = %s", outcomes[i].Body)
			}
		case errors.Is(errs[i], domain.ErrIdempotencyInProgress):
			rejected++
		default:
			t.Fatalf("worker %d: unexpected error %v", i, errs[i])
		}
	}
	if winners != 1 {
		t.Fatalf("expected 1 winner, got %d (replays=%d rejected=%d)", winners, replays, rejected)
	}
	if winners+replays+rejected != workers {
		t.Fatalf("unaccounted outcomes: winners=%d replays=%d rejected=%d", winners, replays, rejected)
	}
}

func TestGuard_RetryAfterFailureRerunsOperation(t *testing.T) {
	guard, _ := newTestGuard("retry_after_failure")

	body := []byte(`{"store_id":1}`)
	calls := 0
	failing := func(ctx context.Context) (int, []byte, error) {
		calls++
		return 409, []byte(`{"error":"conflict"}`), domain.ErrConcurrencyConflict
	}

	_, err := guard.Execute(context.Background(), "key-1", "POST", "/api/orders", body, failing)
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected operation error, got %v", err)
	}

	// Повтор с тем же ключом и телом переоткрывает запись и выполняет операцию
	outcome, err := guard.Execute(context.Background(), "key-1", "POST", "/api/orders",
		body, countingOp(&calls, 201, `{"order_id":"o1"}`))
	if err != nil {
		t.Fatalf("retry execute: %v", err)
	}

	if calls != 2 {
		t.Fatalf("expected 2 operation calls, got %d", calls)
	}
	if outcome.Replayed {
		t.Fatal("retry must run the operation, not replay")
	}
	if outcome.StatusCode != 201 {
		t.Fatalf("expected status 201, got %d", outcome.StatusCode)
	}
}

func TestGuard_EmptyKeyRejected(t *testing.T) {
	guard, _ := newTestGuard("empty_key")

	calls := 0
	_, err := guard.Execute(context.Background(), "", "POST", "/api/orders",
		nil, countingOp(&calls, 201, "ok"))
	if !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected operation not called, got %d", calls)
	}
}

func TestRequestHash_SensitiveToAllParts(t *testing.T) {
	base := RequestHash("POST", "/api/orders", []byte("a"))

	if RequestHash("PUT", "/api/orders", []byte("a")) == base {
		t.Fatal("hash must depend on method")
	}
	if RequestHash("POST", "/api/other", []byte("a")) == base {
		t.Fatal("hash must depend on path")
	}
	if RequestHash("POST", "/api/orders", []byte("b")) == base {
		t.Fatal("hash must depend on body")
	}
	if RequestHash("POST", "/api/orders", []byte("a")) != base {
		t.Fatal("hash must be deterministic")
	}
}

func TestCleanupWorker_DeleteExpired(t *testing.T) {
	store := memory.NewStore()
	repo := store.Idempotency()

	now := time.Now().UTC()
	seed := func(key string, ttl time.Time) {
		if _, err := repo.CreateProcessing(context.Background(), domain.IdempotencyRecord{
			Key:         key,
			Method:      "POST",
			Path:        "/api/orders",
			RequestHash: RequestHash("POST", "/api/orders", []byte(key)),
			TTLAt:       ttl,
		}); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	seed("expired-1", now.Add(-time.Hour))
	seed("expired-2", now.Add(-time.Minute))
	seed("fresh", now.Add(time.Hour))

	worker := NewCleanupWorker(repo,
		WithLogger(log.New().WithField("test", "cleanup")),
		WithBatchSize(1),
	)

	deleted, err := worker.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	if _, err := repo.Get(context.Background(), "fresh"); err != nil {
		t.Fatalf("fresh record must survive cleanup: %v", err)
	}
	if _, err := repo.Get(context.Background(), "expired-1"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected expired record deleted, got %v", err)
	}
}
