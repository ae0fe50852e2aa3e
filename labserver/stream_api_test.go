package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/virtlab-edu/virtlab-go/internal/platform/auth"
	"github.com/virtlab-edu/virtlab-go/internal/platform/notify"
)

// streamEvents serves one event-stream request, broadcasting events once the
// handler has subscribed, and returns the raw SSE body.
func streamEvents(t *testing.T, identity auth.Identity, events ...notify.Event) string {
	t.Helper()
	registry := notify.NewRegistry()
	api := newStreamAPI(discardLogger(), registry)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/runs/events", nil)
	req = req.WithContext(auth.ContextWithIdentity(ctx, identity))
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		api.handleRunEvents(rec, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for registry.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, event := range events {
		registry.Broadcast(event)
	}
	// allow delivery before tearing the stream down
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	return rec.Body.String()
}

func TestRunEventStream_StudentSeesOwnEventsOnly(t *testing.T) {
	body := streamEvents(t, studentIdentity(studentID),
		notify.Event{Type: notify.EventRunStarted, RunID: "run-own", UserID: studentID},
		notify.Event{Type: notify.EventRunStarted, RunID: "run-other", UserID: otherStudentID},
	)

	if !strings.Contains(body, "event: ready") {
		t.Fatalf("missing ready event in %q", body)
	}
	if !strings.Contains(body, "run-own") {
		t.Fatalf("own event not delivered in %q", body)
	}
	if strings.Contains(body, "run-other") {
		t.Fatalf("foreign event leaked into %q", body)
	}
}

func TestRunEventStream_AdminSeesAllEvents(t *testing.T) {
	body := streamEvents(t, adminIdentity(adminID),
		notify.Event{Type: notify.EventRunStarted, RunID: "run-a", UserID: studentID},
		notify.Event{Type: notify.EventRunFinalized, RunID: "run-b", UserID: otherStudentID},
	)

	if !strings.Contains(body, "run-a") || !strings.Contains(body, "run-b") {
		t.Fatalf("admin missing events in %q", body)
	}
	if !strings.Contains(body, "event: "+notify.EventRunFinalized) {
		t.Fatalf("missing typed event line in %q", body)
	}
}
