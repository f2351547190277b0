package guard

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// tokenOffset maps one wordpiece back to its byte range in the original
// text. Special tokens carry a negative range.
type tokenOffset struct {
	Start int
	End   int
}

// WordPieceTokenizer implements a minimal BERT-compatible tokenizer with
// offset tracking, enough for both sequence and token classification heads.
type WordPieceTokenizer struct {
	vocab        map[string]int64
	lowerCase    bool
	continuation string
	clsID        int64
	sepID        int64
	padID        int64
	unkID        int64
}

// LoadWordPieceTokenizer builds the tokenizer from vocab.txt.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		vocab[token] = idx
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}

	return &WordPieceTokenizer{
		vocab:        vocab,
		lowerCase:    true,
		continuation: "##",
		clsID:        vocab["[CLS]"],
		sepID:        vocab["[SEP]"],
		padID:        vocab["[PAD]"],
		unkID:        vocab["[UNK]"],
	}, nil
}

// Encode produces input_ids and attention_mask padded/truncated to seqLen.
func (t *WordPieceTokenizer) Encode(text string, seqLen int) ([]int64, []int64) {
	ids, attn, _ := t.EncodeWithOffsets(text, seqLen)
	return ids, attn
}

// EncodeWithOffsets additionally returns per-token byte offsets into text,
// needed by the token-classification (NER) head.
func (t *WordPieceTokenizer) EncodeWithOffsets(text string, seqLen int) ([]int64, []int64, []tokenOffset) {
	ids := make([]int64, 0, seqLen)
	offsets := make([]tokenOffset, 0, seqLen)

	ids = append(ids, t.clsID)
	offsets = append(offsets, tokenOffset{-1, -1})

	for _, w := range basicTokenize(text) {
		pieceIDs, pieceOffsets := t.wordpiece(w)
		for i := range pieceIDs {
			if len(ids) >= seqLen-1 {
				break
			}
			ids = append(ids, pieceIDs[i])
			offsets = append(offsets, pieceOffsets[i])
		}
	}

	ids = append(ids, t.sepID)
	offsets = append(offsets, tokenOffset{-1, -1})

	attn := make([]int64, seqLen)
	outIDs := make([]int64, seqLen)
	outOffsets := make([]tokenOffset, seqLen)
	for i := 0; i < seqLen; i++ {
		if i < len(ids) {
			outIDs[i] = ids[i]
			outOffsets[i] = offsets[i]
			attn[i] = 1
			continue
		}
		outIDs[i] = t.padID
		outOffsets[i] = tokenOffset{-1, -1}
	}
	return outIDs, attn, outOffsets
}

type word struct {
	text  string
	start int
	end   int
}

// basicTokenize splits on whitespace and isolates punctuation, keeping
// byte offsets into the original text.
func basicTokenize(text string) []word {
	var words []word
	var cur strings.Builder
	curStart := -1

	flush := func(end int) {
		if cur.Len() == 0 {
			return
		}
		words = append(words, word{text: cur.String(), start: curStart, end: end})
		cur.Reset()
		curStart = -1
	}

	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(i)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush(i)
			words = append(words, word{text: string(r), start: i, end: i + len(string(r))})
		default:
			if curStart < 0 {
				curStart = i
			}
			cur.WriteRune(r)
		}
	}
	flush(len(text))
	return words
}

// wordpiece applies greedy longest-match-first subword splitting. All
// pieces of a word share the word's byte range; span reconstruction only
// needs word granularity.
func (t *WordPieceTokenizer) wordpiece(w word) ([]int64, []tokenOffset) {
	token := w.text
	if t.lowerCase {
		token = strings.ToLower(token)
	}

	off := tokenOffset{Start: w.start, End: w.end}
	runes := []rune(token)
	if len(runes) == 0 {
		return nil, nil
	}

	var ids []int64
	var offs []tokenOffset
	start := 0
	for start < len(runes) {
		end := len(runes)
		var matchID int64
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				matchID, found = id, true
				break
			}
			end--
		}
		if !found {
			return []int64{t.unkID}, []tokenOffset{off}
		}
		ids = append(ids, matchID)
		offs = append(offs, off)
		start = end
	}
	return ids, offs
}
