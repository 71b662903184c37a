package recordings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vokivo/backend/internal/models"
)

type countingLookup struct {
	mu    sync.Mutex
	calls int
	info  models.RecordingInfo
	err   error
}

func (c *countingLookup) FetchRecording(ctx context.Context, callSID string) (models.RecordingInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.info, c.err
}

func (c *countingLookup) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestMockLookupDeterministic(t *testing.T) {
	m := MockLookup{}
	a, err := m.FetchRecording(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("mock fetch: %v", err)
	}
	b, _ := m.FetchRecording(context.Background(), "CA123")
	if a != b {
		t.Fatalf("mock lookup not deterministic: %+v vs %+v", a, b)
	}
	other, _ := m.FetchRecording(context.Background(), "CA456")
	if a.SID == other.SID {
		t.Fatalf("distinct SIDs produced the same recording")
	}
	if _, err := m.FetchRecording(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty SID, got %v", err)
	}
}

func TestMockLookupDurationInRange(t *testing.T) {
	// CA456 hashes with the high bit set; the duration pick must stay in
	// range regardless of hash magnitude.
	m := MockLookup{}
	valid := map[int]bool{45: true, 90: true, 125: true, 210: true, 320: true}
	for _, sid := range []string{"CA123", "CA456", "CA4", "CA5550001001"} {
		info, err := m.FetchRecording(context.Background(), sid)
		if err != nil {
			t.Fatalf("fetch %s: %v", sid, err)
		}
		if !valid[info.DurationSecs] {
			t.Fatalf("sid %s produced duration %d outside the known set", sid, info.DurationSecs)
		}
	}
}

func TestCachedLookupWriteOnce(t *testing.T) {
	inner := &countingLookup{info: models.RecordingInfo{SID: "RE1", Status: "completed"}}
	c, err := NewCachedLookup(inner, 8, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCachedLookup: %v", err)
	}
	for i := 0; i < 5; i++ {
		info, err := c.FetchRecording(context.Background(), "CA1")
		if err != nil || info.SID != "RE1" {
			t.Fatalf("fetch %d: %+v %v", i, info, err)
		}
	}
	if inner.count() != 1 {
		t.Fatalf("inner called %d times, want 1", inner.count())
	}
	if c.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", c.Len())
	}
}

func TestCachedLookupCachesNotFound(t *testing.T) {
	inner := &countingLookup{err: ErrNotFound}
	c, err := NewCachedLookup(inner, 8, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCachedLookup: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.FetchRecording(context.Background(), "CA1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if inner.count() != 1 {
		t.Fatalf("negative result not cached: %d calls", inner.count())
	}
}

func TestCachedLookupSkipsCanceledContext(t *testing.T) {
	inner := &countingLookup{err: context.Canceled}
	c, err := NewCachedLookup(inner, 8, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCachedLookup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchRecording(ctx, "CA1"); err == nil {
		t.Fatalf("expected error from canceled fetch")
	}
	if c.Len() != 0 {
		t.Fatalf("cancellation was cached")
	}
}

func TestHTTPLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/call/CA1/recordings":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":true,"recordings":[{"sid":"RE1","status":"completed","duration":"125","channels":2,"startTime":"2025-07-15T10:05:00Z","url":"https://example.com/re1.mp3"}]}`))
		case "/api/v1/call/CA_missing/recordings":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v1/call/CA_empty/recordings":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":true,"recordings":[]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	lk := HTTPLookup{BaseURL: srv.URL}

	info, err := lk.FetchRecording(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.SID != "RE1" || info.DurationSecs != 125 || info.Channels != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, err := lk.FetchRecording(context.Background(), "CA_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for 404, got %v", err)
	}
	if _, err := lk.FetchRecording(context.Background(), "CA_empty"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty list, got %v", err)
	}
	if _, err := lk.FetchRecording(context.Background(), "CA_boom"); err == nil {
		t.Fatalf("expected error for proxy failure")
	}
}
