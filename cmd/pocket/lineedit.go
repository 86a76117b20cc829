package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// stdinLines buffers stdin for line reads that bypass the editor.
var stdinLines = bufio.NewReader(os.Stdin)

// lineEditor is the key handling behind the interactive prompt. It is fed
// raw terminal bytes and redraws the line on out.
type lineEditor struct {
	out     io.Writer
	prompt  string
	history *[]string

	line   []byte
	cursor int

	esc    int
	escBuf strings.Builder

	histPos   int
	browsing  bool
	histDraft string
}

type editResult int

const (
	editContinue editResult = iota
	editSubmit
	editEOF
)

func newLineEditor(out io.Writer, prompt string, history *[]string) *lineEditor {
	return &lineEditor{
		out:     out,
		prompt:  prompt,
		history: history,
		line:    make([]byte, 0, 256),
		histPos: len(*history),
	}
}

func (e *lineEditor) String() string { return string(e.line) }

func (e *lineEditor) redraw() {
	_, _ = fmt.Fprintf(e.out, "\r%s%s\x1b[K", e.prompt, e.line)
	if e.cursor < len(e.line) {
		_, _ = fmt.Fprintf(e.out, "\r%s%s", e.prompt, e.line[:e.cursor])
	}
}

// feed handles one input byte.
func (e *lineEditor) feed(b byte) editResult {
	switch e.esc {
	case 1:
		e.esc = 0
		if b == '[' {
			e.esc = 2
			e.escBuf.Reset()
		}
		return editContinue
	case 2:
		e.escBuf.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			e.csi(e.escBuf.String())
			e.esc = 0
		}
		return editContinue
	}

	switch b {
	case 27:
		e.esc = 1
	case '\r', '\n':
		_, _ = fmt.Fprint(e.out, "\r\n")
		if s := string(e.line); strings.TrimSpace(s) != "" {
			*e.history = append(*e.history, s)
		}
		return editSubmit
	case 3: // Ctrl+C
		_, _ = fmt.Fprint(e.out, "^C\r\n")
		return editEOF
	case 4: // Ctrl+D
		if len(e.line) == 0 {
			_, _ = fmt.Fprint(e.out, "\r\n")
			return editEOF
		}
	case 127, 8:
		if e.cursor > 0 {
			e.line = append(e.line[:e.cursor-1], e.line[e.cursor:]...)
			e.cursor--
			e.redraw()
		}
	case 1: // Ctrl+A
		e.cursor = 0
		e.redraw()
	case 5: // Ctrl+E
		e.cursor = len(e.line)
		e.redraw()
	case 23: // Ctrl+W
		e.deleteWord()
	default:
		if b >= 32 {
			e.line = append(e.line, 0)
			copy(e.line[e.cursor+1:], e.line[e.cursor:])
			e.line[e.cursor] = b
			e.cursor++
			e.redraw()
		}
	}
	return editContinue
}

func (e *lineEditor) csi(seq string) {
	h := *e.history
	switch seq {
	case "A":
		if len(h) == 0 {
			return
		}
		if !e.browsing {
			e.histDraft = string(e.line)
			e.browsing = true
			e.histPos = len(h)
		}
		if e.histPos > 0 {
			e.histPos--
			e.setLine(h[e.histPos])
		}
	case "B":
		if !e.browsing {
			return
		}
		if e.histPos < len(h)-1 {
			e.histPos++
			e.setLine(h[e.histPos])
			return
		}
		e.histPos = len(h)
		e.browsing = false
		e.setLine(e.histDraft)
	case "C":
		if e.cursor < len(e.line) {
			e.cursor++
			e.redraw()
		}
	case "D":
		if e.cursor > 0 {
			e.cursor--
			e.redraw()
		}
	case "H":
		e.cursor = 0
		e.redraw()
	case "F":
		e.cursor = len(e.line)
		e.redraw()
	case "3~":
		if e.cursor < len(e.line) {
			e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
			e.redraw()
		}
	}
}

func (e *lineEditor) setLine(s string) {
	e.line = append(e.line[:0], s...)
	e.cursor = len(e.line)
	e.redraw()
}

func (e *lineEditor) deleteWord() {
	start := e.cursor
	for start > 0 && e.line[start-1] == ' ' {
		start--
	}
	for start > 0 && e.line[start-1] != ' ' {
		start--
	}
	if start == e.cursor {
		return
	}
	e.line = append(e.line[:start], e.line[e.cursor:]...)
	e.cursor = start
	e.redraw()
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// readPlainLine reads up to the next newline. A final line without one is
// returned; only an empty read at EOF is an error.
func readPlainLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return trimTrailingNewline(s), nil
}
