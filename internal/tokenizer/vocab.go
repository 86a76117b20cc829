package tokenizer

import (
	"fmt"

	"github.com/samcharles93/pocket/internal/fault"
)

// Reserved ids present in every vocabulary.
const (
	PadID = 0
	UnkID = 1
	BOSID = 2
	EOSID = 3
)

// maxTokenBytes bounds embedded token strings; longer entries get a placeholder.
const maxTokenBytes = 100

// fallbackTokens is used when the container carries no token list.
var fallbackTokens = []string{
	"<pad>", "<unk>", "<s>", "</s>",
	".", ",", "!", "?", ":", ";",
	"the", "a", "an", "and", "or", "is", "are", "was", "to", "of",
	"in", "on", "for", "with", "it", "this", "that", "i", "you", "we",
	"he", "she", "they", "hello", "world", "hi", "yes", "no", "not", "what",
	"how", "why", "can", "do", "will", "be", "have", "my", "your", "good",
	"time", "day", "help", "me", "please", "thank", "thanks", "model", "text", "token",
	"there", "here", "now", "so",
}

// Vocabulary is a total id->string map over [0, Size) plus the reverse map.
type Vocabulary struct {
	tokens   []string
	ids      map[string]int
	fallback bool
}

// NewVocabulary builds a vocabulary of exactly size ids. The first size
// entries of source are used when source is non-empty, otherwise the built-in
// list. Ids with no usable string get "<token_N>".
func NewVocabulary(source []string, size int) (*Vocabulary, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	source, fallback := pickSource(source)

	v := &Vocabulary{
		tokens:   make([]string, size),
		ids:      make(map[string]int, size),
		fallback: fallback,
	}
	for id := range size {
		s := ""
		if id < len(source) {
			s = source[id]
		}
		if s == "" || len(s) > maxTokenBytes {
			s = placeholder(id)
		}
		v.tokens[id] = s
		if _, dup := v.ids[s]; !dup {
			v.ids[s] = id
		}
	}
	return v, nil
}

func checkSize(size int) error {
	if size < 4 {
		return fault.New(fault.ErrFormat, "vocabulary", "size %d must cover the reserved ids", size)
	}
	return nil
}

func pickSource(source []string) ([]string, bool) {
	if len(source) == 0 {
		return fallbackTokens, true
	}
	return source, false
}

// EstimateBytes is what Bytes would report for NewVocabulary(source, size),
// computed without building anything.
func EstimateBytes(source []string, size int) (int64, error) {
	if err := checkSize(size); err != nil {
		return 0, err
	}
	source, _ = pickSource(source)
	var n int64
	named := min(len(source), size)
	for id, s := range source[:named] {
		l := len(s)
		if s == "" || l > maxTokenBytes {
			l = len(placeholder(id))
		}
		n += int64(l)*2 + 24
	}
	// placeholders for the rest: "<token_" + digits + ">"
	rest := int64(size - named)
	n += rest*(8*2+24) + 2*digitSum(int64(named), int64(size))
	return n, nil
}

// digitSum is the total count of decimal digits of every id in [lo, hi).
func digitSum(lo, hi int64) int64 {
	var n int64
	width := int64(1)
	for start, end := int64(0), int64(10); start < hi; start, end = end, end*10 {
		a, b := max(lo, start), min(hi, end)
		if a < b {
			n += (b - a) * width
		}
		width++
	}
	return n
}

func placeholder(id int) string { return fmt.Sprintf("<token_%d>", id) }

func (v *Vocabulary) Size() int { return len(v.tokens) }

// Fallback reports whether the built-in list was used.
func (v *Vocabulary) Fallback() bool { return v.fallback }

// Token returns the string for id.
func (v *Vocabulary) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// ID returns the first id whose string is s.
func (v *Vocabulary) ID(s string) (int, bool) {
	id, ok := v.ids[s]
	return id, ok
}

// Bytes estimates the resident size of the vocabulary.
func (v *Vocabulary) Bytes() int64 {
	var n int64
	for _, s := range v.tokens {
		// string header plus the map entry pointing back at it
		n += int64(len(s))*2 + 16 + 8
	}
	return n
}
