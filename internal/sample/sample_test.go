package sample

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vokivo/backend/internal/conversation"
	"github.com/vokivo/backend/internal/models"
)

var demoCallQuery = conversation.CallQuery{AssistantIDs: []string{"demo-assistant"}}

func TestListCallsDeterministic(t *testing.T) {
	s := Source{}
	a, err := s.ListCalls(context.Background(), demoCallQuery)
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(a) == 0 {
		t.Fatalf("expected demo calls")
	}
	b, _ := s.ListCalls(context.Background(), demoCallQuery)
	if len(a) != len(b) {
		t.Fatalf("run lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].StartTime.Equal(b[i].StartTime) {
			t.Fatalf("record %d differs between runs", i)
		}
	}
	for _, rec := range a {
		if rec.AssistantID != "demo-assistant" {
			t.Fatalf("generated call has assistant %q", rec.AssistantID)
		}
	}
}

func TestGeneratedRecordsUseKnownLabels(t *testing.T) {
	// Every demo phone hashes with the high bit set; indexing must stay in
	// range for those values on both channels.
	s := Source{}
	calls, err := s.ListCalls(context.Background(), demoCallQuery)
	if err != nil || len(calls) == 0 {
		t.Fatalf("ListCalls: %d (%v)", len(calls), err)
	}
	known := map[string]bool{}
	for _, o := range outcomes {
		known[o] = true
	}
	for _, rec := range calls {
		if !known[rec.Outcome] {
			t.Fatalf("call %s has outcome %q outside the label set", rec.ID, rec.Outcome)
		}
	}

	sms, err := s.ListSMS(context.Background(), conversation.SMSQuery{UserID: "demo-user"})
	if err != nil || len(sms) == 0 {
		t.Fatalf("ListSMS: %d (%v)", len(sms), err)
	}
	bodies := map[string]bool{}
	for _, b := range smsBodies {
		bodies[b] = true
	}
	for _, rec := range sms {
		if !bodies[rec.Body] {
			t.Fatalf("sms %s has body %q outside the body set", rec.MessageSID, rec.Body)
		}
	}
}

func TestListCallsEmptyScope(t *testing.T) {
	calls, err := Source{}.ListCalls(context.Background(), conversation.CallQuery{})
	if err != nil || len(calls) != 0 {
		t.Fatalf("expected no calls for empty scope, got %d (%v)", len(calls), err)
	}
}

func TestListCallsPhoneFilter(t *testing.T) {
	phone := "+15550001001"
	calls, err := Source{}.ListCalls(context.Background(), conversation.CallQuery{
		AssistantIDs: []string{"demo-assistant"},
		PhoneNumber:  phone,
	})
	if err != nil || len(calls) == 0 {
		t.Fatalf("expected calls for %s, got %d (%v)", phone, len(calls), err)
	}
	for _, rec := range calls {
		if rec.PhoneNumber != phone {
			t.Fatalf("leaked record for %s", rec.PhoneNumber)
		}
	}
}

func TestListCallsSinceFilter(t *testing.T) {
	s := Source{}
	all, _ := s.ListCalls(context.Background(), demoCallQuery)
	var newest time.Time
	for _, rec := range all {
		if rec.StartTime.After(newest) {
			newest = rec.StartTime
		}
	}
	q := demoCallQuery
	q.Since = &newest
	after, _ := s.ListCalls(context.Background(), q)
	if len(after) != 0 {
		t.Fatalf("since filter must be strict, got %d records", len(after))
	}
}

func TestListCallsPaging(t *testing.T) {
	s := Source{}
	q := demoCallQuery
	q.Descending = true
	q.Limit = 3
	first, _ := s.ListCalls(context.Background(), q)
	if len(first) != 3 {
		t.Fatalf("limit ignored: %d", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i].StartTime.After(first[i-1].StartTime) {
			t.Fatalf("descending order violated at %d", i)
		}
	}
	q.Offset = 3
	second, _ := s.ListCalls(context.Background(), q)
	if len(second) == 0 || second[0].ID == first[0].ID {
		t.Fatalf("offset paging broken")
	}
}

func TestListSMSAdoptsUser(t *testing.T) {
	sms, err := Source{}.ListSMS(context.Background(), conversation.SMSQuery{UserID: "demo-user"})
	if err != nil || len(sms) == 0 {
		t.Fatalf("expected demo SMS, got %d (%v)", len(sms), err)
	}
	for _, rec := range sms {
		if rec.UserID != "demo-user" {
			t.Fatalf("generated SMS has user %q", rec.UserID)
		}
		if rec.ContactNumber() == "" {
			t.Fatalf("SMS without a contact number: %+v", rec)
		}
	}
}

type errSource struct{ err error }

func (e errSource) ListCalls(ctx context.Context, q conversation.CallQuery) ([]models.CallRecord, error) {
	return nil, e.err
}
func (e errSource) ListSMS(ctx context.Context, q conversation.SMSQuery) ([]models.SMSRecord, error) {
	return nil, e.err
}
func (e errSource) CountCallsBefore(ctx context.Context, assistantIDs []string, phone string, before time.Time) (int, error) {
	return 0, e.err
}
func (e errSource) CountSMSBefore(ctx context.Context, userID, phone string, before time.Time) (int, error) {
	return 0, e.err
}

type emptySource struct{}

func (emptySource) ListCalls(ctx context.Context, q conversation.CallQuery) ([]models.CallRecord, error) {
	return nil, nil
}
func (emptySource) ListSMS(ctx context.Context, q conversation.SMSQuery) ([]models.SMSRecord, error) {
	return nil, nil
}
func (emptySource) CountCallsBefore(ctx context.Context, assistantIDs []string, phone string, before time.Time) (int, error) {
	return 0, nil
}
func (emptySource) CountSMSBefore(ctx context.Context, userID, phone string, before time.Time) (int, error) {
	return 0, nil
}

func TestFallbackOnEmptyPrimary(t *testing.T) {
	f := FallbackSource{Primary: emptySource{}, Fallback: Source{}}
	calls, err := f.ListCalls(context.Background(), demoCallQuery)
	if err != nil || len(calls) == 0 {
		t.Fatalf("expected fallback records, got %d (%v)", len(calls), err)
	}
}

func TestFallbackNeverMasksErrors(t *testing.T) {
	boom := errors.New("store down")
	f := FallbackSource{Primary: errSource{err: boom}, Fallback: Source{}}
	if _, err := f.ListCalls(context.Background(), demoCallQuery); !errors.Is(err, boom) {
		t.Fatalf("primary error masked: %v", err)
	}
	if _, err := f.ListSMS(context.Background(), conversation.SMSQuery{UserID: "demo-user"}); !errors.Is(err, boom) {
		t.Fatalf("primary SMS error masked: %v", err)
	}
}
