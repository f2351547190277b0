package guard

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/veilguard-ai/veilguard/internal/pii"
)

// TextModel wraps a sequence-classification ONNX session scoring a text
// against a fixed label set. It satisfies content.LabelScorer.
type TextModel struct {
	session   *ort.AdvancedSession
	tokenizer *WordPieceTokenizer
	labels    []string
	seqLen    int

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	mu sync.Mutex
}

// NERModel wraps a token-classification ONNX session producing BIO labels
// per token. It satisfies pii.Recognizer.
type NERModel struct {
	session   *ort.AdvancedSession
	tokenizer *WordPieceTokenizer
	labels    []string
	seqLen    int

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	mu sync.Mutex
}

var runtimeOnce sync.Once
var runtimeErr error

func ensureRuntime(bundleDir string) error {
	runtimeOnce.Do(func() {
		libPath := resolveSharedLibraryPath(bundleDir)
		if libPath == "" {
			runtimeErr = errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				runtimeErr = fmt.Errorf("initialize onnxruntime: %w", err)
			}
		}
	})
	return runtimeErr
}

// LoadTextModel initializes the classifier head from dir, which must hold
// model.onnx, label_map.json, and vocab.txt.
func LoadTextModel(dir string, seqLen int) (*TextModel, error) {
	if seqLen <= 0 {
		seqLen = 256
	}
	if err := ensureRuntime(dir); err != nil {
		return nil, err
	}

	modelPath := filepath.Join(dir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}
	labels, err := loadLabels(filepath.Join(dir, "label_map.json"))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	tokenizer, err := LoadWordPieceTokenizer(filepath.Join(dir, "vocab.txt"))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &TextModel{
		session:       session,
		tokenizer:     tokenizer,
		labels:        labels,
		seqLen:        seqLen,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
	}, nil
}

// ClassifyText scores text against every label. The head is multi-label,
// so each logit passes through a sigmoid independently.
func (m *TextModel) ClassifyText(text string) (map[string]float64, error) {
	if m == nil || m.session == nil || m.tokenizer == nil {
		return nil, errors.New("text model not initialized")
	}

	inputIDs, attn := m.tokenizer.Encode(text, m.seqLen)

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.inputIDs.GetData(), inputIDs)
	copy(m.attentionMask.GetData(), attn)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := m.output.GetData()
	scores := make(map[string]float64, len(m.labels))
	for i, logit := range raw {
		if i >= len(m.labels) {
			break
		}
		scores[m.labels[i]] = sigmoid(logit)
	}
	return scores, nil
}

// LoadNERModel initializes the recognizer head from dir, which must hold
// model.onnx, label_map.json (BIO labels), and vocab.txt.
func LoadNERModel(dir string, seqLen int) (*NERModel, error) {
	if seqLen <= 0 {
		seqLen = 256
	}
	if err := ensureRuntime(dir); err != nil {
		return nil, err
	}

	modelPath := filepath.Join(dir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}
	labels, err := loadLabels(filepath.Join(dir, "label_map.json"))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, errors.New("empty BIO label map")
	}
	tokenizer, err := LoadWordPieceTokenizer(filepath.Join(dir, "vocab.txt"))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(len(labels))))
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &NERModel{
		session:       session,
		tokenizer:     tokenizer,
		labels:        labels,
		seqLen:        seqLen,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
	}, nil
}

// Recognize runs token classification and decodes BIO labels into raw
// candidate spans.
func (m *NERModel) Recognize(text string) ([]pii.Candidate, error) {
	if m == nil || m.session == nil || m.tokenizer == nil {
		return nil, errors.New("ner model not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	inputIDs, attn, offsets := m.tokenizer.EncodeWithOffsets(text, m.seqLen)

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.inputIDs.GetData(), inputIDs)
	copy(m.attentionMask.GetData(), attn)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	logits := m.output.GetData()
	numLabels := len(m.labels)

	tokenLabels := make([]string, len(offsets))
	tokenProbs := make([]float64, len(offsets))
	for i := range offsets {
		base := i * numLabels
		if base >= len(logits) {
			break
		}
		row := logits[base:min(base+numLabels, len(logits))]
		probs := softmax(row)
		best := 0
		for j := 1; j < len(probs); j++ {
			if probs[j] > probs[best] {
				best = j
			}
		}
		if best < numLabels {
			tokenLabels[i] = m.labels[best]
			tokenProbs[i] = float64(probs[best])
		}
	}

	return candidatesFromTokenLabels(tokenLabels, tokenProbs, offsets), nil
}

// candidatesFromTokenLabels stitches per-token BIO labels into spans. A
// span's confidence is the mean probability of its tokens.
func candidatesFromTokenLabels(labels []string, probs []float64, offsets []tokenOffset) []pii.Candidate {
	var out []pii.Candidate
	var cur *pii.Candidate
	var probSum float64
	var probN int

	flush := func() {
		if cur == nil {
			return
		}
		if probN > 0 {
			cur.Confidence = probSum / float64(probN)
		}
		out = append(out, *cur)
		cur, probSum, probN = nil, 0, 0
	}

	for i, lbl := range labels {
		if i >= len(offsets) {
			break
		}
		off := offsets[i]
		if off.Start < 0 || off.End <= off.Start {
			continue
		}
		prefix, kind := splitBIOLabel(lbl)
		if kind == "" || strings.EqualFold(lbl, "O") {
			flush()
			continue
		}
		if prefix == "B" || cur == nil || !strings.EqualFold(cur.Kind, kind) {
			flush()
			cur = &pii.Candidate{Kind: kind, Start: off.Start, End: off.End}
			probSum, probN = probs[i], 1
			continue
		}
		if off.End > cur.End {
			cur.End = off.End
		}
		probSum += probs[i]
		probN++
	}
	flush()
	return out
}

func splitBIOLabel(lbl string) (string, string) {
	lbl = strings.TrimSpace(lbl)
	if lbl == "" {
		return "", ""
	}
	parts := strings.SplitN(lbl, "-", 2)
	if len(parts) == 1 {
		return "", lbl
	}
	return parts[0], parts[1]
}

func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	out := make([]string, len(m))
	for k, v := range m {
		idx, convErr := strconv.Atoi(k)
		if convErr != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, convErr)
		}
		if idx < 0 || idx >= len(m) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := 0.0
	out := make([]float32, len(logits))
	for i, v := range logits {
		exp := math.Exp(float64(v - maxVal))
		out[i] = float32(exp)
		sum += exp
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

func sigmoid(v float32) float64 {
	return 1.0 / (1.0 + math.Exp(-float64(v)))
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared
// library. ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common
// names/locations are probed.
func resolveSharedLibraryPath(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		bundleDir,
		filepath.Join(bundleDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
