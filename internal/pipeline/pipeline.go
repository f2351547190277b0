// Package pipeline runs the privacy stack over line-oriented datasets,
// the batch counterpart to the HTTP API. Each input line is anonymized,
// filtered, and validated; only lines that pass the configured level
// reach the output file.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/veilguard-ai/veilguard/internal/content"
	"github.com/veilguard-ai/veilguard/internal/pii"
	"github.com/veilguard-ai/veilguard/internal/redact"
	"github.com/veilguard-ai/veilguard/internal/validator"
)

// Report summarizes one pipeline run.
type Report struct {
	Processed  int            `json:"processed"`
	Kept       int            `json:"kept"`
	Dropped    int            `json:"dropped"`
	Anonymized int            `json:"anonymized"`
	Violations map[string]int `json:"violations"`
}

// Stage wires the three privacy passes over a dataset.
type Stage struct {
	anonymizer *pii.Anonymizer
	filter     *content.Filter
	validator  *validator.Validator
}

func New(anonymizer *pii.Anonymizer, filter *content.Filter, v *validator.Validator) *Stage {
	return &Stage{anonymizer: anonymizer, filter: filter, validator: v}
}

// Run streams inputPath line by line and writes surviving lines to
// outputPath. Blank lines are preserved as-is so dataset record counts
// stay meaningful. The first hard error aborts the run.
func (s *Stage) Run(ctx context.Context, inputPath, outputPath string) (Report, error) {
	report := Report{Violations: make(map[string]int)}

	in, err := os.Open(inputPath)
	if err != nil {
		return report, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil && !os.IsExist(err) {
		return report, fmt.Errorf("create output dirs: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return report, fmt.Errorf("create output: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		line := sc.Text()
		if line == "" {
			if _, err := w.WriteString("\n"); err != nil {
				return report, fmt.Errorf("write output: %w", err)
			}
			continue
		}
		report.Processed++

		kept, err := s.processLine(ctx, line, w, &report)
		if err != nil {
			return report, err
		}
		if kept {
			report.Kept++
		} else {
			report.Dropped++
		}
	}
	if err := sc.Err(); err != nil {
		return report, fmt.Errorf("read input: %w", err)
	}
	if err := w.Flush(); err != nil {
		return report, fmt.Errorf("flush output: %w", err)
	}

	redact.Logf("pipeline: processed=%d kept=%d dropped=%d anonymized=%d",
		report.Processed, report.Kept, report.Dropped, report.Anonymized)
	return report, nil
}

func (s *Stage) processLine(ctx context.Context, line string, w *bufio.Writer, report *Report) (bool, error) {
	anonymized, err := s.anonymizer.Anonymize(line)
	if err != nil {
		return false, fmt.Errorf("anonymize: %w", err)
	}
	if anonymized != line {
		report.Anonymized++
	}

	fres, err := s.filter.Filter(anonymized)
	if err != nil {
		return false, fmt.Errorf("filter: %w", err)
	}
	for _, v := range fres.Violations {
		report.Violations[string(v.Category)]++
	}
	if !fres.Passed {
		return false, nil
	}

	vres, err := s.validator.Validate(ctx, fres.Text)
	if err != nil {
		return false, fmt.Errorf("validate: %w", err)
	}
	if !vres.Passed {
		return false, nil
	}

	if _, err := w.WriteString(fres.Text + "\n"); err != nil {
		return false, fmt.Errorf("write output: %w", err)
	}
	return true, nil
}
