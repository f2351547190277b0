package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veilguard-ai/veilguard/internal/redact"
)

// Mirror forwards ledger entries to a webhook off the request path. The
// queue is bounded; when it is full the entry is dropped and counted, the
// caller is never blocked. Mirror failures never fail the operation that
// produced the entry.
type Mirror struct {
	queue chan *Entry
	sink  *WebhookSink

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewMirror starts a single delivery worker.
func NewMirror(sink *WebhookSink, queueSize int) *Mirror {
	if queueSize <= 0 {
		queueSize = 1000
	}
	m := &Mirror{
		queue: make(chan *Entry, queueSize),
		sink:  sink,
	}
	m.wg.Add(1)
	go m.worker()
	return m
}

// Emit enqueues an entry without blocking.
func (m *Mirror) Emit(e *Entry) {
	if m == nil || e == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.dropped.Add(1)
		return
	}
	select {
	case m.queue <- e:
		m.enqueued.Add(1)
	default:
		m.dropped.Add(1)
	}
	m.mu.Unlock()
}

// MirrorStats is a counter snapshot for observation and tests.
type MirrorStats struct {
	Enqueued  uint64
	Dropped   uint64
	Delivered uint64
	Failed    uint64
}

func (m *Mirror) Stats() MirrorStats {
	if m == nil {
		return MirrorStats{}
	}
	return MirrorStats{
		Enqueued:  m.enqueued.Load(),
		Dropped:   m.dropped.Load(),
		Delivered: m.delivered.Load(),
		Failed:    m.failed.Load(),
	}
}

// Close stops intake and waits briefly for the queue to drain.
func (m *Mirror) Close(ctx context.Context) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
	}
}

func (m *Mirror) worker() {
	defer m.wg.Done()
	for e := range m.queue {
		if err := m.sink.Deliver(context.Background(), e); err != nil {
			m.failed.Add(1)
			redact.Logf("audit: mirror %s failed: %v", m.sink.Name(), err)
			continue
		}
		m.delivered.Add(1)
	}
}
