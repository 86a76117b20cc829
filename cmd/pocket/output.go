package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type StreamMode string

const (
	StreamInstant  StreamMode = "instant"
	StreamBuffered StreamMode = "buffered"
	StreamQuiet    StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case StreamInstant, StreamBuffered, StreamQuiet:
		return m, nil
	case "":
		return StreamInstant, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (instant, buffered, quiet)", s)
	}
}

// tokenWriter prints streamed tokens separated by spaces. Buffered mode
// flushes every batchSize tokens; quiet mode prints nothing until Finish.
type tokenWriter struct {
	mode      StreamMode
	out       *bufio.Writer
	batchSize int

	pending int
	text    strings.Builder
}

func newTokenWriter(w io.Writer, mode StreamMode) *tokenWriter {
	return &tokenWriter{
		mode:      mode,
		out:       bufio.NewWriterSize(w, 4096),
		batchSize: 8,
	}
}

func (w *tokenWriter) Write(token string) {
	if token == "" {
		return
	}
	sep := ""
	if w.text.Len() > 0 {
		sep = " "
	}
	w.text.WriteString(sep)
	w.text.WriteString(token)

	switch w.mode {
	case StreamQuiet:
		return
	case StreamBuffered:
		_, _ = w.out.WriteString(sep + token)
		w.pending++
		if w.pending >= w.batchSize {
			w.pending = 0
			_ = w.out.Flush()
		}
	default:
		_, _ = w.out.WriteString(sep + token)
		_ = w.out.Flush()
	}
}

// Finish writes whatever is still held back, ends the line and returns the
// whole text.
func (w *tokenWriter) Finish() string {
	if w.mode == StreamQuiet {
		_, _ = w.out.WriteString(w.text.String())
	}
	_ = w.out.WriteByte('\n')
	_ = w.out.Flush()
	s := w.text.String()
	w.text.Reset()
	w.pending = 0
	return s
}
