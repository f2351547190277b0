package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LedgerConfig controls persistence and mirroring. A zero value keeps the
// ledger purely in memory.
type LedgerConfig struct {
	// File is the JSONL path every entry is appended to.
	File string
	// MirrorURL optionally forwards entries to a webhook, best effort.
	MirrorURL       string
	MirrorTimeout   time.Duration
	MirrorQueueSize int
}

// Ledger is the append-only audit log. Entries are never mutated or
// removed, and timestamps never decrease in append order.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
	last    time.Time
	now     func() time.Time

	file   *FileSink
	mirror *Mirror
}

// Open builds a ledger from config. The file sink is opened eagerly so a
// bad path fails at startup rather than on the first audited operation.
func Open(cfg LedgerConfig) (*Ledger, error) {
	l := &Ledger{now: time.Now}

	if cfg.File != "" {
		sink, err := NewFileSink(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		l.file = sink
	}
	if cfg.MirrorURL != "" {
		sink, err := NewWebhookSink(cfg.MirrorURL, cfg.MirrorTimeout)
		if err != nil {
			return nil, fmt.Errorf("audit mirror: %w", err)
		}
		l.mirror = NewMirror(sink, cfg.MirrorQueueSize)
	}

	return l, nil
}

// Record appends one entry. The ledger owns the timestamp: it is assigned
// here and clamped so append order and timestamp order never disagree.
// The file append happens under the same lock, keeping the durable log in
// the in-memory append order. A failed file write still keeps the
// in-memory entry and returns an error wrapping ErrWrite.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if l == nil {
		return nil
	}
	e.normalize()

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC()
	if ts.Before(l.last) {
		ts = l.last
	}
	l.last = ts
	e.Timestamp = ts
	l.entries = append(l.entries, e)

	l.mirror.Emit(&e)

	if l.file != nil {
		if err := l.file.Append(ctx, &e); err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
	}
	return nil
}

// Query selects a slice of the ledger. Zero fields match everything.
type Query struct {
	Operation Operation
	Since     time.Time
	Until     time.Time
}

// Entries returns matching entries in append order. The result is a copy;
// the ledger itself stays immutable.
func (l *Ledger) Entries(q Query) []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if q.Operation != "" && e.Operation != q.Operation {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Summary aggregates the full ledger.
type Summary struct {
	TotalEntries      int               `json:"totalEntries"`
	CountsByOperation map[Operation]int `json:"countsByOperation"`
	ViolationCounts   map[string]int    `json:"violationCounts"`
}

// Summarize counts entries per operation and per violation category.
func (l *Ledger) Summarize() Summary {
	s := Summary{
		CountsByOperation: make(map[Operation]int),
		ViolationCounts:   make(map[string]int),
	}
	if l == nil {
		return s
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	s.TotalEntries = len(l.entries)
	for _, e := range l.entries {
		s.CountsByOperation[e.Operation]++
		for _, cat := range e.ViolationCategories {
			s.ViolationCounts[cat]++
		}
	}
	return s
}

// Close flushes the file sink and drains the mirror.
func (l *Ledger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mirror.Close(ctx)
	if l.file != nil {
		return l.file.Close(ctx)
	}
	return nil
}
