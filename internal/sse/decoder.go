// Package sse consumes text/event-stream endpoints the way a browser
// EventSource does: one long-lived connection, named event dispatch and
// automatic reconnection with Last-Event-ID resume.
package sse

import (
	"bufio"
	"io"
	"math"
	"strings"
	"time"
)

// DefaultEventType is the name given to events that carry no "event:" field.
const DefaultEventType = "message"

// maxRetryMillis is the largest retry value that still fits a time.Duration.
// Larger values are clamped to it.
const maxRetryMillis = int64(math.MaxInt64 / int64(time.Millisecond))

// Event is one dispatched frame of an event stream.
type Event struct {
	Type string
	Data string
	ID   string
}

// Decoder reads events from an event stream. It keeps the last event ID
// and the most recent reconnection delay sent by the server.
type Decoder struct {
	r       *bufio.Reader
	started bool
	skipLF  bool

	lastID   string
	retry    time.Duration
	hasRetry bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// LastEventID returns the id buffer, which survives events without an id field.
func (d *Decoder) LastEventID() string {
	return d.lastID
}

// Retry returns the reconnection delay from the last valid retry field.
func (d *Decoder) Retry() (time.Duration, bool) {
	return d.retry, d.hasRetry
}

// Decode blocks until the next event is dispatched. Blocks without data
// are consumed silently. A partial event at end of input is discarded and
// the reader's error (usually io.EOF) is returned.
func (d *Decoder) Decode() (Event, error) {
	var (
		name    string
		data    strings.Builder
		hasData bool
	)
	for {
		line, err := d.readLine()
		if err != nil {
			return Event{}, err
		}
		if !d.started {
			d.started = true
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if line == "" {
			if !hasData {
				name = ""
				continue
			}
			ev := Event{Type: name, Data: data.String(), ID: d.lastID}
			if ev.Type == "" {
				ev.Type = DefaultEventType
			}
			return ev, nil
		}
		if line[0] == ':' {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "event":
			name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if ms, ok := parseDigits(value, maxRetryMillis); ok {
				d.retry = time.Duration(ms) * time.Millisecond
				d.hasRetry = true
			}
		}
	}
}

// readLine accepts LF, CRLF and CR terminators. A CR is returned as soon as
// it is read so a CR-terminated stream never waits on the next byte.
func (d *Decoder) readLine() (string, error) {
	var buf []byte
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return "", err
		}
		if d.skipLF {
			d.skipLF = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			return string(buf), nil
		case '\r':
			d.skipLF = true
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

// parseDigits parses an ASCII decimal number, saturating at limit.
func parseDigits(s string, limit int64) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		if n > (limit-d)/10 {
			n = limit
			continue
		}
		n = n*10 + d
	}
	return n, true
}
