package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestMirrorDeliversEntries(t *testing.T) {
	var mu sync.Mutex
	var received []Entry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Entry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	m := NewMirror(sink, 8)
	m.Emit(&Entry{Operation: OpValidate, PIICount: 3})
	m.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(received))
	}
	if received[0].Operation != OpValidate || received[0].PIICount != 3 {
		t.Fatalf("unexpected payload: %+v", received[0])
	}

	stats := m.Stats()
	if stats.Delivered != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMirrorCountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	m := NewMirror(sink, 8)
	m.Emit(&Entry{Operation: OpDetect})
	m.Close(context.Background())

	stats := m.Stats()
	if stats.Failed != 1 || stats.Delivered != 0 {
		t.Fatalf("expected one counted failure: %+v", stats)
	}
}

func TestMirrorDropsWhenClosed(t *testing.T) {
	sink, err := NewWebhookSink("http://127.0.0.1:0/", time.Second)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	m := NewMirror(sink, 1)
	m.Close(context.Background())

	m.Emit(&Entry{Operation: OpFilter})
	if stats := m.Stats(); stats.Dropped != 1 {
		t.Fatalf("emit after close must drop: %+v", stats)
	}
}
