//go:build linux

package main

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var interactiveHistory []string

// readInteractiveLine reads one line from stdin, with editing and history
// when stdin is a terminal.
func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		return readPlainLine(stdinLines)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	raw := *oldState
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	ed := newLineEditor(os.Stdout, prompt, &interactiveHistory)
	ed.redraw()
	var buf [16]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			switch ed.feed(b) {
			case editSubmit:
				return ed.String(), nil
			case editEOF:
				return "", io.EOF
			}
		}
	}
}
