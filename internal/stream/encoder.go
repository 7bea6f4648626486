package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Encoder serializes events as server-sent events, one event per frame:
//
//	event: token
//	data: {"run_id":...,"seq":3,"type":"token","data":{"delta":"Your"}}
//
// If the underlying writer implements http.Flusher, each frame is flushed so
// consumers see events as they are emitted.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		enc.flusher = f
	}
	return enc
}

// Encode writes one event frame.
func (enc *Encoder) Encode(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s seq %d: %w", ev.Type, ev.Seq, err)
	}
	if _, err := fmt.Fprintf(enc.w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return fmt.Errorf("failed to write event frame: %w", err)
	}
	if enc.flusher != nil {
		enc.flusher.Flush()
	}
	return nil
}
