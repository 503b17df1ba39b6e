// Package sse decodes the text/event-stream wire format into discrete
// frames. A Decoder is bound to one connection: its state dies with the
// reader and a fresh Decoder over the same bytes yields the same frames.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineBuffer     = 512 * 1024
)

// Frame is one wire unit: optional id, optional event type, and a data
// payload joined from one or more data lines.
type Frame struct {
	ID    string
	Event string
	Data  []byte
}

// MalformedFrameError reports a single frame that violated the wire
// grammar. It is a per-frame diagnostic: callers skip the frame and keep
// reading.
type MalformedFrameError struct {
	Reason string
	Frame  Frame
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// Decoder reads frames from a single event-stream connection.
type Decoder struct {
	scanner   *bufio.Scanner
	retryHint time.Duration
}

// NewDecoder wraps a connection body. The line buffer tolerates payloads
// up to 512 KiB.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineBuffer)
	return &Decoder{scanner: scanner}
}

// RetryHint returns the most recent server-advised reconnect delay, or
// zero if the server never sent a retry directive. The hint is advisory:
// it never changes how frames are parsed.
func (d *Decoder) RetryHint() time.Duration {
	return d.retryHint
}

// Next returns the next frame. It returns a *MalformedFrameError for a
// frame with no data lines (the caller should skip and continue), io.EOF
// on a clean close, and the underlying read error otherwise. A partial
// frame at EOF is discarded, matching the event-stream grammar.
func (d *Decoder) Next() (Frame, error) {
	var frame Frame
	var data []string
	sawField := false

	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")

		if line == "" {
			if !sawField {
				continue
			}
			if data == nil {
				return Frame{}, &MalformedFrameError{Reason: "frame has no data field", Frame: frame}
			}
			frame.Data = []byte(strings.Join(data, "\n"))
			return frame, nil
		}

		if strings.HasPrefix(line, ":") {
			// Comment / heartbeat line.
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			frame.ID = value
			sawField = true
		case "event":
			frame.Event = value
			sawField = true
		case "data":
			data = append(data, value)
			sawField = true
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				d.retryHint = time.Duration(ms) * time.Millisecond
			}
		default:
			// Unknown fields are ignored per the wire grammar.
		}
	}

	if err := d.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
