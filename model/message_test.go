package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGDMessageRow_TableName(t *testing.T) {
	row := GDMessageRow{}
	assert.Equal(t, "topichub_message", row.TableName())
}

func TestMessage_Less_Priority(t *testing.T) {
	higher := &Message{Priority: 9, PubTime: 200}
	lower := &Message{Priority: 1, PubTime: 100}

	// Priority dominates publish time.
	assert.True(t, higher.Less(lower))
	assert.False(t, lower.Less(higher))
}

func TestMessage_Less_PriorityDominatesExtPubTime(t *testing.T) {
	earlier := &Message{Priority: 1, ExtPubTime: 10, PubTime: 10}
	later := &Message{Priority: 9, ExtPubTime: 20, PubTime: 20}

	// A lower-priority message never wins on time alone.
	assert.True(t, later.Less(earlier))
	assert.False(t, earlier.Less(later))
}

func TestMessage_Less_ExtPubTime(t *testing.T) {
	a := &Message{Priority: 5, ExtPubTime: 10, PubTime: 999}
	b := &Message{Priority: 5, ExtPubTime: 20, PubTime: 1}

	// Both carry an external publish time, so it decides over PubTime.
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestMessage_Less_PubTimeFallback(t *testing.T) {
	a := &Message{Priority: 5, PubTime: 100}
	b := &Message{Priority: 5, PubTime: 200, ExtPubTime: 50}

	// Only one side has an external publish time, so PubTime decides.
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestMessage_AddISOTimes(t *testing.T) {
	m := &Message{
		PubTime:        1136214245.5,
		ExpirationTime: 1136214246,
	}

	m.AddISOTimes()

	assert.Equal(t, "2006-01-02T15:04:05.500000", m.PubTimeISO)
	assert.Equal(t, "2006-01-02T15:04:06.000000", m.ExpirationTimeISO)
	assert.Empty(t, m.ExtPubTimeISO)
	assert.Empty(t, m.RecvTimeISO)
}

func TestMessage_AddISOTimes_Idempotent(t *testing.T) {
	m := &Message{PubTime: 1136214245.5}

	m.AddISOTimes()
	first := m.PubTimeISO
	m.AddISOTimes()

	assert.Equal(t, first, m.PubTimeISO)
}

func TestPatternMatches_PopIsOneShot(t *testing.T) {
	pm := NewPatternMatches(map[string]string{"thk.rest.abc": "sub=orders.**"})

	pattern, ok := pm.Pop("thk.rest.abc")
	assert.True(t, ok)
	assert.Equal(t, "sub=orders.**", pattern)

	_, ok = pm.Pop("thk.rest.abc")
	assert.False(t, ok)
	assert.Equal(t, 0, pm.Len())
}

func TestNewGDMessage(t *testing.T) {
	row := &GDMessageRow{
		PubMsgID:          "thm123",
		PubTime:           1136214245.5,
		Data:              "hello",
		MimeType:          "text/plain",
		Priority:          5,
		ExpirationTime:    1136214999,
		PubPatternMatched: "pub=orders.**",
	}

	m, err := NewGDMessage("thk.rest.abc", "orders.new", row)
	require.NoError(t, err)

	assert.Equal(t, "thk.rest.abc", m.SubKey)
	assert.Equal(t, "orders.new", m.TopicName)
	assert.Equal(t, "hello", m.Data)
	assert.True(t, m.HasGD)
	assert.NotZero(t, m.RecvTime)
	assert.NotEmpty(t, m.PubTimeISO)
}

func TestNewGDMessage_DecodesInternalPayload(t *testing.T) {
	msgCtx, err := json.Marshal(map[string]any{"mime_type": MimeTypeInternal})
	require.NoError(t, err)

	row := &GDMessageRow{
		PubMsgID: "thm123",
		PubTime:  1136214245.5,
		Data:     `{"orderId": 123}`,
		MsgCtx:   string(msgCtx),
	}

	m, err := NewGDMessage("thk.rest.abc", "orders.new", row)
	require.NoError(t, err)

	data, ok := m.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(123), data["orderId"])
}

func TestNewGDMessage_MergesOpaqueAttributes(t *testing.T) {
	row := &GDMessageRow{
		PubMsgID: "thm123",
		PubTime:  1136214245.5,
		Data:     "hello",
		Opaque:   `{"trace_id": "abc"}`,
	}

	m, err := NewGDMessage("thk.rest.abc", "orders.new", row)
	require.NoError(t, err)
	assert.Equal(t, "abc", m.Extra["trace_id"])
}

func TestNewGDMessage_InvalidContext(t *testing.T) {
	row := &GDMessageRow{
		PubMsgID: "thm123",
		PubTime:  1136214245.5,
		MsgCtx:   "{not json",
	}

	_, err := NewGDMessage("thk.rest.abc", "orders.new", row)
	assert.Error(t, err)
}

func TestNewNonGDMessage(t *testing.T) {
	event := &NonGDEvent{
		PubMsgID:          "thm456",
		PubTime:           1136214245.5,
		Data:              "payload",
		TopicName:         "orders.new",
		SubPatternMatched: NewPatternMatches(map[string]string{"thk.rest.abc": "sub=orders.**"}),
	}

	m, err := NewNonGDMessage("thk.rest.abc", "server1", 42, event)
	require.NoError(t, err)

	assert.Equal(t, "thk.rest.abc", m.SubKey)
	assert.Equal(t, "server1", m.ServerName)
	assert.Equal(t, 42, m.ServerPID)
	assert.Equal(t, "sub=orders.**", m.SubPatternMatched)
	assert.False(t, m.HasGD)
	assert.Equal(t, DefaultMimeType, m.MimeType)
	assert.Equal(t, PriorityDefault, m.Priority)
}

func TestNewNonGDMessage_SecondConstructionFails(t *testing.T) {
	event := &NonGDEvent{
		PubMsgID:          "thm456",
		PubTime:           1136214245.5,
		SubPatternMatched: NewPatternMatches(map[string]string{"thk.rest.abc": "sub=orders.**"}),
	}

	_, err := NewNonGDMessage("thk.rest.abc", "server1", 1, event)
	require.NoError(t, err)

	_, err = NewNonGDMessage("thk.rest.abc", "server1", 1, event)
	assert.Error(t, err)
}
