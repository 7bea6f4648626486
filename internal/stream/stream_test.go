package stream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []Event{
		New("run-1", 0, EventStart, StartPayload{ConversationID: "conv-1", RunID: "run-1"}),
		New("run-1", 1, EventMessageCreated, MessageCreatedPayload{
			UserMessageID:      "msg-u",
			AssistantMessageID: "msg-a",
			ConversationID:     "conv-1",
			RunID:              "run-1",
		}),
		New("run-1", 2, EventToken, TokenPayload{Delta: "Your"}),
		New("run-1", 3, EventToken, TokenPayload{Delta: " largest position"}),
		New("run-1", 4, EventDone, DonePayload{
			FinalText:   "Your largest position",
			TokenCounts: TokenCounts{Initial: 2},
		}),
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, ev := range events {
		require.NoError(t, enc.Encode(ev))
	}

	dec := NewDecoder(&buf)
	for _, want := range events {
		got, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, want.RunID, got.RunID)
		assert.Equal(t, want.Seq, got.Seq)
		assert.Equal(t, want.Type, got.Type)
		assert.JSONEq(t, string(want.Data), string(got.Data))
	}

	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// The transport may deliver frames in arbitrarily small pieces; the decoder
// must still yield each event exactly once, in order.
func TestDecoderPartialFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(New("r", 0, EventToken, TokenPayload{Delta: "a"})))
	require.NoError(t, enc.Encode(New("r", 1, EventToken, TokenPayload{Delta: "b"})))

	dec := NewDecoder(iotest(buf.Bytes(), 3))

	first, err := dec.Next()
	require.NoError(t, err)
	p, err := first.Token()
	require.NoError(t, err)
	assert.Equal(t, "a", p.Delta)

	second, err := dec.Next()
	require.NoError(t, err)
	p, err = second.Token()
	require.NoError(t, err)
	assert.Equal(t, "b", p.Delta)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// iotest returns a reader that yields at most n bytes per Read call.
func iotest(data []byte, n int) io.Reader {
	return &chunkReader{data: data, n: n}
}

type chunkReader struct {
	data []byte
	n    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.n
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestDecoderSkipsMalformedFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("event: token\ndata: {not json\n\n")

	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(New("r", 0, EventToken, TokenPayload{Delta: "ok"})))

	dec := NewDecoder(&buf)
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, EventToken, ev.Type)

	p, err := ev.Token()
	require.NoError(t, err)
	assert.Equal(t, "ok", p.Delta)
}

func TestDecoderSkipsUnknownEventTypes(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`event: shiny_new_thing` + "\n")
	buf.WriteString(`data: {"run_id":"r","seq":0,"type":"shiny_new_thing"}` + "\n\n")

	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(New("r", 1, EventDone, DonePayload{FinalText: "done"})))

	dec := NewDecoder(&buf)
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, EventDone, ev.Type)
}

func TestDecodeWrongType(t *testing.T) {
	ev := New("r", 0, EventToken, TokenPayload{Delta: "x"})
	_, err := ev.Done()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not done")
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		typ      EventType
		terminal bool
	}{
		{EventStart, false},
		{EventMessageCreated, false},
		{EventToken, false},
		{EventToolCall, false},
		{EventToolResult, false},
		{EventInfo, false},
		{EventDone, true},
		{EventError, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.typ.Terminal(), string(tt.typ))
	}
}

func TestInfoPayloadRoundTrip(t *testing.T) {
	ev := New("r", 5, EventInfo, InfoPayload{
		InfoType:    InfoRetryScheduled,
		Attempt:     2,
		MaxAttempts: 3,
		RetryInMs:   750,
	})

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(ev))
	assert.True(t, strings.HasPrefix(buf.String(), "event: info\n"))

	got, err := NewDecoder(&buf).Next()
	require.NoError(t, err)
	p, err := got.Info()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Attempt)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, int64(750), p.RetryInMs)
}
