package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRecordAssignsMonotonicTimestamps(t *testing.T) {
	l := &Ledger{now: time.Now}

	clock := []time.Time{
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC),
		// Clock steps backwards; the ledger must not.
		time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC),
	}
	i := 0
	l.now = func() time.Time { t := clock[i]; i++; return t }

	for range clock {
		if err := l.Record(context.Background(), Entry{Operation: OpValidate}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got := l.Entries(Query{})
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("timestamps must not decrease: %v then %v", got[i-1].Timestamp, got[i].Timestamp)
		}
	}
}

func TestRecordWritesJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(LedgerConfig{File: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close(context.Background())

	passed := true
	contextID := "req-1"
	err = l.Record(context.Background(), Entry{
		Operation:           OpValidate,
		PIICount:            2,
		ViolationCategories: []string{"toxicity"},
		Passed:              &passed,
		ContextID:           &contextID,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record(context.Background(), Entry{Operation: OpDetect, PIICount: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	for _, key := range []string{"timestamp", "operation", "piiCount", "violationCategories", "passed", "contextId"} {
		if _, ok := first[key]; !ok {
			t.Fatalf("missing key %q in %s", key, lines[0])
		}
	}
	if first["operation"] != "validate" || first["piiCount"] != float64(2) {
		t.Fatalf("unexpected entry: %s", lines[0])
	}

	// Detect-only entries carry null passed/contextId and an empty array,
	// not a null, for violation categories.
	if !strings.Contains(lines[1], `"violationCategories":[]`) {
		t.Fatalf("expected empty array for violationCategories: %s", lines[1])
	}
	if !strings.Contains(lines[1], `"passed":null`) || !strings.Contains(lines[1], `"contextId":null`) {
		t.Fatalf("expected null passed and contextId: %s", lines[1])
	}
}

func TestFileIsAppendOnlyAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	for round := 0; round < 2; round++ {
		l, err := Open(LedgerConfig{File: path})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := l.Record(context.Background(), Entry{Operation: OpFilter}); err != nil {
			t.Fatalf("record: %v", err)
		}
		l.Close(context.Background())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Fatalf("reopen must append, not truncate: %d lines", got)
	}
}

func TestEntriesQueryFilters(t *testing.T) {
	l := &Ledger{now: time.Now}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := 0
	l.now = func() time.Time { t := base.Add(time.Duration(i) * time.Minute); i++; return t }

	ops := []Operation{OpDetect, OpValidate, OpValidate, OpFilter}
	for _, op := range ops {
		if err := l.Record(context.Background(), Entry{Operation: op}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if got := l.Entries(Query{Operation: OpValidate}); len(got) != 2 {
		t.Fatalf("operation filter: got %d entries", len(got))
	}
	if got := l.Entries(Query{Since: base.Add(90 * time.Second)}); len(got) != 2 {
		t.Fatalf("since filter: got %d entries", len(got))
	}
	if got := l.Entries(Query{Until: base.Add(90 * time.Second)}); len(got) != 2 {
		t.Fatalf("until filter: got %d entries", len(got))
	}
}

func TestSummarizeCountsEveryValidation(t *testing.T) {
	l := &Ledger{now: time.Now}
	const n = 7
	for i := 0; i < n; i++ {
		err := l.Record(context.Background(), Entry{
			Operation:           OpValidate,
			ViolationCategories: []string{"toxicity"},
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	s := l.Summarize()
	if s.TotalEntries != n {
		t.Fatalf("expected %d total entries, got %d", n, s.TotalEntries)
	}
	if s.CountsByOperation[OpValidate] != n {
		t.Fatalf("expected %d validate entries, got %d", n, s.CountsByOperation[OpValidate])
	}
	if s.ViolationCounts["toxicity"] != n {
		t.Fatalf("expected %d toxicity violations, got %d", n, s.ViolationCounts["toxicity"])
	}
}

func TestConcurrentRecordsKeepDurableOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(LedgerConfig{File: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := l.Record(context.Background(), Entry{Operation: OpValidate}); err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	l.Close(context.Background())

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer f.Close()

	var prev time.Time
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if e.Timestamp.Before(prev) {
			t.Fatalf("line %d timestamp went backwards: %v then %v", lines, prev, e.Timestamp)
		}
		prev = e.Timestamp
		lines++
	}
	if lines != writers*perWriter {
		t.Fatalf("expected %d lines, got %d", writers*perWriter, lines)
	}
}

func TestRecordKeepsEntryOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := Open(LedgerConfig{File: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Close the underlying file out from under the ledger to force a
	// write failure.
	l.file.file.Close()

	err = l.Record(context.Background(), Entry{Operation: OpValidate})
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if len(l.Entries(Query{})) != 1 {
		t.Fatal("in-memory entry must survive a failed file write")
	}
}

func TestParseOperation(t *testing.T) {
	if op, err := ParseOperation(" Validate "); err != nil || op != OpValidate {
		t.Fatalf("got %v, %v", op, err)
	}
	if _, err := ParseOperation("transmogrify"); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}
