package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vokivo/backend/internal/models"
)

// flakySource fails the first failures calls, then delegates to an inner
// source.
type flakySource struct {
	mu       sync.Mutex
	failures int
	attempts int
	inner    RecordSource
}

func (f *flakySource) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (f *flakySource) ListCalls(ctx context.Context, q CallQuery) ([]models.CallRecord, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.inner.ListCalls(ctx, q)
}

func (f *flakySource) ListSMS(ctx context.Context, q SMSQuery) ([]models.SMSRecord, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.inner.ListSMS(ctx, q)
}

func (f *flakySource) CountCallsBefore(ctx context.Context, assistantIDs []string, phone string, before time.Time) (int, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.inner.CountCallsBefore(ctx, assistantIDs, phone, before)
}

func (f *flakySource) CountSMSBefore(ctx context.Context, userID, phone string, before time.Time) (int, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.inner.CountSMSBefore(ctx, userID, phone, before)
}

func TestRetryingSourceRecovers(t *testing.T) {
	mem := &memSource{}
	mem.addCall(call("CA1", "+15550001001", at(10, 0), 60, ""))

	flaky := &flakySource{failures: 1, inner: mem}
	src := NewRetryingSource(flaky, time.Second, 1, zerolog.Nop())

	calls, err := src.ListCalls(context.Background(), CallQuery{AssistantIDs: testScope.AssistantIDs})
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("got %d calls", len(calls))
	}
}

func TestRetryingSourceExhaustsBudget(t *testing.T) {
	flaky := &flakySource{failures: 10, inner: &memSource{}}
	src := NewRetryingSource(flaky, time.Second, 1, zerolog.Nop())

	_, err := src.ListCalls(context.Background(), CallQuery{})
	if !errors.Is(err, ErrConnectivity) {
		t.Fatalf("expected ErrConnectivity, got %v", err)
	}
	if !Retryable(err) {
		t.Fatalf("exhausted budget must surface as retryable")
	}
	flaky.mu.Lock()
	attempts := flaky.attempts
	flaky.mu.Unlock()
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryingSourceStopsOnCanceledContext(t *testing.T) {
	flaky := &flakySource{failures: 10, inner: &memSource{}}
	src := NewRetryingSource(flaky, time.Second, 5, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.ListCalls(ctx, CallQuery{}); !errors.Is(err, ErrConnectivity) {
		t.Fatalf("expected wrapped connectivity error, got %v", err)
	}
	flaky.mu.Lock()
	attempts := flaky.attempts
	flaky.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("canceled context must stop the retry loop, got %d attempts", attempts)
	}
}
