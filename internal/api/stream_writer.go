package api

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter emits generation.created, one token event per streamed
// token and a terminal generation.completed or generation.failed event.
type SSEStreamWriter struct {
	w             io.Writer
	flusher       func()
	startingAfter int
	seq           int
	resp          GenerateResponse
	begun         bool
}

func NewSSEStreamWriter(c *echo.Context, resp GenerateResponse) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	return &SSEStreamWriter{
		w:             res,
		flusher:       flusher.Flush,
		startingAfter: parseStartingAfter(c.QueryParam("starting_after")),
		seq:           1,
		resp:          resp,
	}, nil
}

func (s *SSEStreamWriter) Begin() error {
	s.begun = true
	resp := s.resp
	resp.Status = "in_progress"
	return s.emit(tokenEvent{Type: "generation.created", Response: &resp})
}

func (s *SSEStreamWriter) Started() bool {
	return s.begun
}

func (s *SSEStreamWriter) EmitToken(delta string) error {
	return s.emit(tokenEvent{Type: "generation.token", Delta: delta})
}

func (s *SSEStreamWriter) Complete(text string) error {
	resp := s.resp
	resp.Status = "completed"
	resp.OutputText = text
	return s.emit(tokenEvent{Type: "generation.completed", Text: text, Response: &resp})
}

func (s *SSEStreamWriter) Failed(err error) error {
	resp := s.resp
	resp.Status = "failed"
	_, errType := statusFor(err)
	return s.emit(tokenEvent{
		Type:     "generation.failed",
		Response: &resp,
		Error:    &ResponseError{Message: err.Error(), Type: errType, Code: faultCode(err)},
	})
}

func (s *SSEStreamWriter) Incomplete(text string) error {
	resp := s.resp
	resp.Status = "incomplete"
	resp.OutputText = text
	return s.emit(tokenEvent{Type: "generation.incomplete", Response: &resp})
}

func (s *SSEStreamWriter) emit(ev tokenEvent) error {
	ev.ID = s.resp.ID
	ev.SequenceNumber = s.seq
	s.seq++
	if s.startingAfter >= ev.SequenceNumber {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flusher()
	return nil
}

func parseStartingAfter(v string) int {
	if v == "" {
		return 0
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
