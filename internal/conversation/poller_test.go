package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestPollerWatchIdempotent(t *testing.T) {
	l := newTestLoader(&memSource{})
	p := NewPoller(l, time.Hour, zerolog.Nop())
	defer p.Stop()

	p.Watch("+15550001001")
	p.Watch("+15550001001")
	if !p.Watching("+15550001001") {
		t.Fatalf("expected watch to be active")
	}
	p.Unwatch("+15550001001")
	if p.Watching("+15550001001") {
		t.Fatalf("expected watch to be removed")
	}
	p.Unwatch("+15550001001")
}

func TestPollerMergesNewRecords(t *testing.T) {
	phone := "+15550001001"
	src := &memSource{}
	src.addCall(call("CA1", phone, at(10, 0), 60, ""))

	l := newTestLoader(src)
	if _, err := l.FetchConversationDetails(context.Background(), phone, nil); err != nil {
		t.Fatalf("detail: %v", err)
	}

	p := NewPoller(l, 10*time.Millisecond, zerolog.Nop())
	defer p.Stop()
	p.Watch(phone)

	src.addSMS(text("SM1", phone, at(10, 30)))
	waitFor(t, func() bool {
		conv, ok := l.Conversation(phone)
		return ok && conv.TotalSMS == 1
	})

	cursor, ok := l.LastSeen(phone)
	if !ok || !cursor.Equal(at(10, 30)) {
		t.Fatalf("cursor = %v (ok=%v)", cursor, ok)
	}
}

func TestPollerSkipsColdKey(t *testing.T) {
	phone := "+15550001001"
	src := &memSource{}
	src.addCall(call("CA1", phone, at(10, 0), 60, ""))

	l := newTestLoader(src)
	p := NewPoller(l, 10*time.Millisecond, zerolog.Nop())
	defer p.Stop()

	// Watched but never detail-loaded: the poller has no cursor, so nothing
	// is fetched and no state appears.
	p.Watch(phone)
	time.Sleep(50 * time.Millisecond)
	if _, ok := l.Conversation(phone); ok {
		t.Fatalf("cold key produced loader state")
	}
}

func TestPollerWake(t *testing.T) {
	phone := "+15550001001"
	src := &memSource{}
	src.addCall(call("CA1", phone, at(10, 0), 60, ""))

	l := newTestLoader(src)
	if _, err := l.FetchConversationDetails(context.Background(), phone, nil); err != nil {
		t.Fatalf("detail: %v", err)
	}

	// An hour-long interval: only Wake can trigger the poll.
	p := NewPoller(l, time.Hour, zerolog.Nop())
	defer p.Stop()
	p.Watch(phone)

	src.addSMS(text("SM1", phone, at(10, 30)))
	p.Wake()
	waitFor(t, func() bool {
		conv, ok := l.Conversation(phone)
		return ok && conv.TotalSMS == 1
	})
}

func TestPollerWakeGatesPerConversation(t *testing.T) {
	phoneA := "+15550001001"
	phoneB := "+15550001002"
	src := &memSource{}
	src.addCall(call("CA_A1", phoneA, at(10, 0), 60, ""))
	src.addCall(call("CA_B1", phoneB, at(10, 0), 60, ""))

	l := newTestLoader(src)
	if _, err := l.FetchConversationDetails(context.Background(), phoneA, nil); err != nil {
		t.Fatalf("detail A: %v", err)
	}

	p := NewPoller(l, time.Hour, zerolog.Nop())
	defer p.Stop()

	// Poll A so its task's gate is fresh.
	p.Watch(phoneA)
	src.addSMS(text("SM_A1", phoneA, at(10, 30)))
	p.Wake()
	waitFor(t, func() bool {
		conv, ok := l.Conversation(phoneA)
		return ok && conv.TotalSMS == 1
	})

	// A newly watched conversation must still catch up even though another
	// one was just polled.
	if _, err := l.FetchConversationDetails(context.Background(), phoneB, nil); err != nil {
		t.Fatalf("detail B: %v", err)
	}
	p.Watch(phoneB)
	src.addSMS(text("SM_B1", phoneB, at(10, 45)))
	p.Wake()
	waitFor(t, func() bool {
		conv, ok := l.Conversation(phoneB)
		return ok && conv.TotalSMS == 1
	})
}

func TestPollerStopPreventsNewWatches(t *testing.T) {
	l := newTestLoader(&memSource{})
	p := NewPoller(l, time.Hour, zerolog.Nop())
	p.Watch("+15550001001")
	p.Stop()
	if p.Watching("+15550001001") {
		t.Fatalf("stop must cancel existing watches")
	}
	p.Watch("+15550001002")
	if p.Watching("+15550001002") {
		t.Fatalf("stopped poller must not accept new watches")
	}
}
