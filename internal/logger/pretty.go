package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
)

// componentKey is printed as a prefix instead of a key=value pair.
const componentKey = "component"

// PrettyHandler formats records as
//
//	15:04:05 INF engine: message key=value
type PrettyHandler struct {
	opts      slog.HandlerOptions
	mu        *sync.Mutex
	w         io.Writer
	prefix    string
	component string
	attrs     []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, colorGray...)
	buf = r.Time.AppendFormat(buf, time.TimeOnly)
	buf = append(buf, colorReset...)
	buf = append(buf, ' ')

	color, tag := levelStyle(r.Level)
	buf = append(buf, color...)
	buf = append(buf, tag...)
	buf = append(buf, colorReset...)
	buf = append(buf, ' ')

	component := h.component
	var attrs []slog.Attr
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == componentKey && h.prefix == "" {
			component = a.Value.String()
			return true
		}
		attrs = append(attrs, qualify(h.prefix, a))
		return true
	})
	if component != "" {
		buf = append(buf, colorGreen...)
		buf = append(buf, component...)
		buf = append(buf, ':')
		buf = append(buf, colorReset...)
		buf = append(buf, ' ')
	}
	buf = append(buf, r.Message...)

	if len(attrs) > 0 {
		buf = append(buf, colorCyan...)
		for _, a := range attrs {
			buf = appendAttr(buf, a)
		}
		buf = append(buf, colorReset...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == componentKey && h.prefix == "" {
			next.component = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, qualify(h.prefix, a))
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = qualifyKey(h.prefix, name)
	return &next
}

func qualify(prefix string, a slog.Attr) slog.Attr {
	a.Key = qualifyKey(prefix, a.Key)
	return a
}

func qualifyKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func levelStyle(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return colorRed, "ERR"
	case level >= slog.LevelWarn:
		return colorYellow, "WRN"
	case level >= slog.LevelInfo:
		return colorBlue, "INF"
	default:
		return colorGray, "DBG"
	}
}

func appendAttr(buf []byte, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		for _, g := range a.Value.Group() {
			buf = appendAttr(buf, qualify(a.Key, g))
		}
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, a.Key...)
	buf = append(buf, '=')

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if strings.ContainsAny(s, " \t\n\"=") || s == "" {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	case slog.KindTime:
		buf = a.Value.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		buf = append(buf, a.Value.Duration().String()...)
	default:
		if err, ok := a.Value.Any().(error); ok {
			buf = strconv.AppendQuote(buf, err.Error())
		} else {
			buf = append(buf, fmt.Sprint(a.Value.Any())...)
		}
	}
	return buf
}
