package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rwsplit/internal/events"
)

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFormat(t *testing.T) {
	msg, err := format(events.Event{
		Type:      events.EventReplicaDegraded,
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:   map[string]int{"degradations": 1},
	})
	if err != nil {
		t.Fatalf("format() error = %v", err)
	}

	want := "event: replica_degraded\n" +
		`data: {"type":"replica_degraded","timestamp":"2024-01-02T03:04:05Z","payload":{"degradations":1}}` +
		"\n\n"
	if string(msg) != want {
		t.Errorf("expected %q, got %q", want, string(msg))
	}
}

func TestHubStreamsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New()
	go h.Run(ctx)

	bus := events.NewBus()
	ch := make(chan events.Event, 8)
	bus.Subscribe(ch)
	go h.Relay(ctx, ch)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	waitFor(t, func() bool { return h.ClientCount() == 1 })
	bus.Publish(events.Event{Type: events.EventReplicaDown})

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before event arrived")
			}
			if line == "event: replica_down" {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New()
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	waitFor(t, func() bool { return h.ClientCount() == 1 })
	cancel()
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	body := make(chan string, 1)
	go func() {
		var sb strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			sb.WriteString(scanner.Text())
		}
		body <- sb.String()
	}()

	select {
	case got := <-body:
		if !strings.Contains(got, ": connected") {
			t.Errorf("expected connected preamble, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after shutdown")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	h := New()
	done := make(chan struct{})
	go func() {
		for range cap(h.broadcast) + 10 {
			h.Publish(events.Event{Type: events.EventAccountCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no hub loop running")
	}
}
