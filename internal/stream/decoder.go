package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"folio/internal/logging"
)

// Decoder incrementally parses a server-sent event stream into events. It
// yields each event as soon as its frame is complete; nothing beyond the
// current frame is buffered. Malformed frames are logged and skipped, not
// treated as stream-fatal — only a transport error ends decoding early.
type Decoder struct {
	scanner *bufio.Scanner
	known   map[EventType]bool
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{
		scanner: scanner,
		known: map[EventType]bool{
			EventStart:          true,
			EventMessageCreated: true,
			EventToken:          true,
			EventToolCall:       true,
			EventToolResult:     true,
			EventInfo:           true,
			EventDone:           true,
			EventError:          true,
		},
	}
}

// Next blocks until the next complete event frame arrives. It returns io.EOF
// when the stream ends cleanly, or the transport error otherwise.
func (d *Decoder) Next() (Event, error) {
	for {
		data, err := d.readFrame()
		if err != nil {
			return Event{}, err
		}
		if data == "" {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			preview := data
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			logging.Warn("skipping malformed event frame", "error", err, "data", preview)
			continue
		}
		if !d.known[ev.Type] {
			// Forward compatibility: newer servers may emit event types this
			// client does not understand yet.
			logging.Warn("skipping unrecognized event type", "type", ev.Type, "run_id", ev.RunID)
			continue
		}
		return ev, nil
	}
}

// readFrame consumes lines until a blank frame separator and returns the
// concatenated data payload.
func (d *Decoder) readFrame() (string, error) {
	var data strings.Builder
	sawLine := false

	for d.scanner.Scan() {
		line := d.scanner.Text()
		if line == "" {
			if sawLine {
				return data.String(), nil
			}
			continue
		}
		sawLine = true

		switch {
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(line, "data:"))
		case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, ":"):
			// Event name is also inside the JSON payload; comments are ignored.
		default:
			logging.Debug("ignoring unexpected stream line", "line", line)
		}
	}

	if err := d.scanner.Err(); err != nil {
		return "", err
	}
	// A final frame without a trailing separator still counts.
	if sawLine && data.Len() > 0 {
		return data.String(), nil
	}
	return "", io.EOF
}
