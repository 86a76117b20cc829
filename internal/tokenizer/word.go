package tokenizer

import (
	"strings"
	"unicode"
)

// maxPrefixRunes bounds the subword search for unknown words.
const maxPrefixRunes = 10

// Word splits text into lower-cased alphanumeric runs and single punctuation
// marks. Unknown runs are broken into the longest known prefixes.
type Word struct {
	vocab *Vocabulary
}

var _ Tokenizer = (*Word)(nil)

func NewWord(v *Vocabulary) *Word {
	return &Word{vocab: v}
}

func (w *Word) Vocabulary() *Vocabulary { return w.vocab }

func isPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';':
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Encode always starts with BOS. It never fails.
func (w *Word) Encode(text string) ([]int, error) {
	ids := []int{BOSID}
	var word []rune

	flush := func() {
		if len(word) > 0 {
			ids = w.appendWord(ids, word)
			word = word[:0]
		}
	}

	for _, r := range text {
		switch {
		case isWordRune(r):
			word = append(word, unicode.ToLower(r))
		case isPunct(r):
			flush()
			if id, ok := w.vocab.ID(string(r)); ok {
				ids = append(ids, id)
			} else {
				ids = append(ids, UnkID)
			}
		default:
			flush()
		}
	}
	flush()
	return ids, nil
}

func (w *Word) appendWord(ids []int, word []rune) []int {
	if id, ok := w.vocab.ID(string(word)); ok {
		return append(ids, id)
	}
	rest := word
	for len(rest) > 0 {
		matched := 0
		for n := min(maxPrefixRunes, len(rest)); n > 0; n-- {
			if id, ok := w.vocab.ID(string(rest[:n])); ok {
				ids = append(ids, id)
				matched = n
				break
			}
		}
		if matched == 0 {
			return append(ids, UnkID)
		}
		rest = rest[matched:]
	}
	return ids
}

// Decode joins token strings with single spaces. Ids outside the vocabulary
// are skipped.
func (w *Word) Decode(ids []int) (string, error) {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := w.vocab.Token(id); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}
