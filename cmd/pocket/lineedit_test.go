package main

import (
	"bufio"
	"io"
	"strings"
	"testing"
)

func feedAll(ed *lineEditor, input string) editResult {
	res := editContinue
	for i := 0; i < len(input); i++ {
		if res = ed.feed(input[i]); res != editContinue {
			return res
		}
	}
	return res
}

func TestLineEditorEditing(t *testing.T) {
	t.Parallel()

	var history []string
	ed := newLineEditor(io.Discard, "> ", &history)
	// "helo", left, insert "l", end, " world", Ctrl+W, "there", enter.
	res := feedAll(ed, "helo\x1b[Dl\x05 world\x17there\r")
	if res != editSubmit {
		t.Fatalf("expected submit, got %v", res)
	}
	if got := ed.String(); got != "hello there" {
		t.Fatalf("unexpected line %q", got)
	}
	if len(history) != 1 || history[0] != "hello there" {
		t.Fatalf("unexpected history %q", history)
	}
}

func TestLineEditorBackspaceAndDelete(t *testing.T) {
	t.Parallel()

	var history []string
	ed := newLineEditor(io.Discard, "", &history)
	feedAll(ed, "abcd\x7f\x01\x1b[3~")
	if got := ed.String(); got != "bc" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestLineEditorHistory(t *testing.T) {
	t.Parallel()

	history := []string{"first", "second"}
	ed := newLineEditor(io.Discard, "", &history)
	feedAll(ed, "draft\x1b[A")
	if got := ed.String(); got != "second" {
		t.Fatalf("up once: got %q", got)
	}
	feedAll(ed, "\x1b[A\x1b[A")
	if got := ed.String(); got != "first" {
		t.Fatalf("up past the oldest entry: got %q", got)
	}
	feedAll(ed, "\x1b[B\x1b[B")
	if got := ed.String(); got != "draft" {
		t.Fatalf("down back to the draft: got %q", got)
	}
}

func TestLineEditorEOF(t *testing.T) {
	t.Parallel()

	var history []string
	if res := feedAll(newLineEditor(io.Discard, "", &history), "\x04"); res != editEOF {
		t.Fatalf("Ctrl+D on an empty line: got %v", res)
	}
	if res := feedAll(newLineEditor(io.Discard, "", &history), "ab\x04"); res != editContinue {
		t.Fatalf("Ctrl+D with text: got %v", res)
	}
	if res := feedAll(newLineEditor(io.Discard, "", &history), "ab\x03"); res != editEOF {
		t.Fatalf("Ctrl+C: got %v", res)
	}
	if len(history) != 0 {
		t.Fatalf("nothing should reach history, got %q", history)
	}
}

func TestReadPlainLine(t *testing.T) {
	t.Parallel()

	r := bufio.NewReader(strings.NewReader("one\r\ntwo"))
	for _, want := range []string{"one", "two"} {
		got, err := readPlainLine(r)
		if err != nil || got != want {
			t.Fatalf("got %q, %v want %q", got, err, want)
		}
	}
	if _, err := readPlainLine(r); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
