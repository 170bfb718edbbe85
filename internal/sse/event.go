// Package sse implements the streaming repair pipeline for
// chat-completions event streams.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one server-sent event: the raw lines between blank-line
// delimiters, without line terminators.
type Event struct {
	Lines []string
}

// Data joins the event's data lines into the payload, stripping the "data:"
// prefix and at most one leading space per line.
func (e *Event) Data() string {
	var b strings.Builder
	first := true
	for _, line := range e.Lines {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimPrefix(line, "data:")
		payload = strings.TrimPrefix(payload, " ")
		if !first {
			b.WriteByte('\n')
		}
		b.WriteString(payload)
		first = false
	}
	return b.String()
}

// HasData reports whether the event carries any data line.
func (e *Event) HasData() bool {
	for _, line := range e.Lines {
		if strings.HasPrefix(line, "data:") {
			return true
		}
	}
	return false
}

// Raw serializes the event verbatim, terminated by the blank line.
func (e *Event) Raw() []byte {
	var b strings.Builder
	for _, line := range e.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// WithData serializes the event with its data lines replaced by a single
// corrected payload line. Non-data lines (event:, id:, comments) keep their
// position relative to the payload.
func (e *Event) WithData(payload string) []byte {
	var b strings.Builder
	wrote := false
	for _, line := range e.Lines {
		if strings.HasPrefix(line, "data:") {
			if !wrote {
				b.WriteString("data: ")
				b.WriteString(payload)
				b.WriteByte('\n')
				wrote = true
			}
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if !wrote {
		b.WriteString("data: ")
		b.WriteString(payload)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// readEvent reads the next event off r, accumulating lines until the blank
// delimiter. At end of stream a trailing partial event is returned together
// with io.EOF so the caller can flush it through the same path.
func readEvent(r *bufio.Reader) (*Event, error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")

		if err != nil {
			if err == io.EOF {
				if trimmed != "" {
					lines = append(lines, trimmed)
				}
				if len(lines) > 0 {
					return &Event{Lines: lines}, io.EOF
				}
			}
			return nil, err
		}

		if trimmed == "" {
			if len(lines) == 0 {
				// Stray delimiter between events, keep scanning.
				continue
			}
			return &Event{Lines: lines}, nil
		}
		lines = append(lines, trimmed)
	}
}
