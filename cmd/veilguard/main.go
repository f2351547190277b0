package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/veilguard-ai/veilguard/internal/audit"
	"github.com/veilguard-ai/veilguard/internal/config"
	"github.com/veilguard-ai/veilguard/internal/content"
	"github.com/veilguard-ai/veilguard/internal/guard"
	"github.com/veilguard-ai/veilguard/internal/pii"
	"github.com/veilguard-ai/veilguard/internal/pipeline"
	"github.com/veilguard-ai/veilguard/internal/redact"
	"github.com/veilguard-ai/veilguard/internal/server"
	"github.com/veilguard-ai/veilguard/internal/telemetry"
	"github.com/veilguard-ai/veilguard/internal/validator"
)

const usage = `veilguard - privacy validation engine

Usage:
  veilguard serve      [-config path] [-addr host:port]
  veilguard detect     [-config path] [-text "..."]
  veilguard anonymize  [-config path] [-text "..."]
  veilguard filter     [-config path] [-text "..."]
  veilguard validate   [-config path] [-text "..."] [-context id]

Text subcommands read stdin when -text is not given.
  veilguard dataset    [-config path] -in input.txt -out output.txt
  veilguard audit-summary [-config path]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "veilguard.yaml", "path to config file")
	addrFlag := fs.String("addr", "", "HTTP listen address (overrides config, serve only)")
	text := fs.String("text", "", "input text")
	contextID := fs.String("context", "", "correlation id recorded in the audit ledger")
	inPath := fs.String("in", "", "dataset input path")
	outPath := fs.String("out", "", "dataset output path")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		redact.Fatalf("load config: %v", err)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if err := config.Validate(cfg); err != nil {
		redact.Fatalf("%v", err)
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		redact.Fatalf("%v", err)
	}
	defer eng.close()

	switch cmd {
	case "serve":
		runServe(cfg, eng)
	case "detect":
		input := requireText(fs, *text)
		entities, err := eng.detector.Detect(input)
		if err != nil {
			redact.Fatalf("detect: %v", err)
		}
		printJSON(map[string]any{"entities": entities, "count": len(entities)})
	case "anonymize":
		input := requireText(fs, *text)
		out, err := eng.anonymizer.Anonymize(input)
		if err != nil {
			redact.Fatalf("anonymize: %v", err)
		}
		fmt.Println(out)
	case "filter":
		input := requireText(fs, *text)
		res, err := eng.filter.Filter(input)
		if err != nil {
			redact.Fatalf("filter: %v", err)
		}
		printJSON(res)
	case "validate":
		input := requireText(fs, *text)
		res, err := eng.validator.ValidateWithContext(context.Background(), input, *contextID)
		if err != nil {
			if !isAuditWarning(err) {
				redact.Fatalf("%v", err)
			}
			redact.Logf("warning: %v", err)
		}
		printJSON(res)
		if !res.Passed {
			os.Exit(1)
		}
	case "dataset":
		if *inPath == "" || *outPath == "" {
			redact.Fatalf("dataset requires -in and -out")
		}
		stage := pipeline.New(eng.anonymizer, eng.filter, eng.validator)
		report, err := stage.Run(context.Background(), *inPath, *outPath)
		if err != nil {
			redact.Fatalf("dataset: %v", err)
		}
		printJSON(report)
	case "audit-summary":
		printJSON(eng.ledger.Summarize())
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// engine holds the wired components shared by every subcommand.
type engine struct {
	detector   pii.Detector
	anonymizer *pii.Anonymizer
	filter     *content.Filter
	validator  *validator.Validator
	ledger     *audit.Ledger
	caps       *guard.Capabilities
	telemetry  *telemetry.Provider
}

func (e *engine) close() {
	ctx := context.Background()
	if e.ledger != nil {
		if err := e.ledger.Close(ctx); err != nil {
			redact.Logf("close ledger: %v", err)
		}
	}
	e.telemetry.Shutdown(ctx)
}

func buildEngine(cfg *config.Config) (*engine, error) {
	caps, err := guard.Probe(cfg.Guard)
	if err != nil {
		return nil, err
	}

	level, err := validator.ParseLevel(cfg.Privacy.Level)
	if err != nil {
		return nil, err
	}

	kinds := make([]pii.Kind, 0, len(cfg.Anonymization.Entities))
	for _, name := range cfg.Anonymization.Entities {
		k, err := pii.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	opts := pii.Options{Kinds: kinds, ScoreThreshold: cfg.Anonymization.ScoreThreshold}

	var detector pii.Detector
	if backend, ok := caps.Recognizer(); ok {
		detector = pii.NewGuardDetector(backend, opts)
	} else {
		detector = pii.NewPatternDetector(opts)
	}

	method, err := pii.ParseMethod(cfg.Anonymization.Method)
	if err != nil {
		return nil, err
	}
	anonCfg := pii.AnonymizerConfig{Method: method}
	if cfg.Anonymization.MaskChar != "" {
		anonCfg.MaskChar = []rune(cfg.Anonymization.MaskChar)[0]
	}
	if method == pii.MethodEncrypt {
		key, err := config.ResolveEncryptionKey(cfg.Anonymization)
		if err != nil {
			return nil, err
		}
		anonCfg.Key = key
	}
	anonymizer, err := pii.NewAnonymizer(detector, anonCfg)
	if err != nil {
		return nil, err
	}

	var classifier content.Classifier
	if backend, ok := caps.Classifier(); ok {
		classifier = content.NewGuardClassifier(backend)
	} else {
		classifier = content.NewLexiconClassifier()
	}

	action, err := content.ParseAction(cfg.Filter.Action)
	if err != nil {
		return nil, err
	}
	categories := make([]content.Category, 0, len(cfg.Filter.Categories))
	for _, name := range cfg.Filter.Categories {
		c, err := content.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	thresholds := make(map[content.Category]float64, len(cfg.Filter.Thresholds))
	for name, th := range cfg.Filter.Thresholds {
		c, err := content.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		thresholds[c] = th
	}
	filter, err := content.NewFilter(classifier, content.FilterConfig{
		Categories: categories,
		Thresholds: thresholds,
		Action:     action,
		Blocklist:  cfg.Filter.Blocklist,
	})
	if err != nil {
		return nil, err
	}

	ledger, err := audit.Open(audit.LedgerConfig{
		File:            cfg.Audit.File,
		MirrorURL:       cfg.Audit.MirrorURL,
		MirrorTimeout:   time.Duration(cfg.Audit.MirrorTimeoutMS) * time.Millisecond,
		MirrorQueueSize: cfg.Audit.MirrorQueueSize,
	})
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewProvider(context.Background(), telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  cfg.Telemetry.Service,
		Version:  cfg.Telemetry.Version,
	})
	if err != nil {
		return nil, err
	}

	v := validator.New(level, detector, filter, ledger, cfg.Audit.Disabled)

	return &engine{
		detector:   detector,
		anonymizer: anonymizer,
		filter:     filter,
		validator:  v,
		ledger:     ledger,
		caps:       caps,
		telemetry:  tel,
	}, nil
}

func runServe(cfg *config.Config, eng *engine) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, server.Components{
		Detector:   eng.detector,
		Anonymizer: eng.anonymizer,
		Filter:     eng.filter,
		Validator:  eng.validator,
		Ledger:     eng.ledger,
		Guard:      eng.caps,
		Telemetry:  eng.telemetry,
	})
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		redact.Fatalf("server: %v", err)
	}
}

// isAuditWarning reports whether a validate error left the result intact.
// Only a failed audit write does; anything else means the text was never
// fully checked and must not be reported as passed.
func isAuditWarning(err error) bool {
	return errors.Is(err, audit.ErrWrite)
}

// readText prefers the -text flag and falls back to reading all of in.
func readText(in io.Reader, text string) (string, error) {
	if text != "" {
		return text, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func requireText(fs *flag.FlagSet, text string) string {
	input, err := readText(os.Stdin, text)
	if err != nil {
		redact.Fatalf("read stdin: %v", err)
	}
	if input == "" {
		fmt.Fprintf(os.Stderr, "missing input text\n")
		fs.Usage()
		os.Exit(2)
	}
	return input
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		redact.Fatalf("encode output: %v", err)
	}
}
