// Package tokenizer maps text to token ids and back using a model vocabulary.
package tokenizer

// Tokenizer defines the minimal interface used by the generation loop and the CLI.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}
