package sse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/sse"
)

func TestSingleEventAllAtOnce(t *testing.T) {
	p := sse.New()
	events := p.Process([]byte("data: hello\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Data)
}

func TestSplitInvarianceByteAtATime(t *testing.T) {
	full := []byte("event: message\ndata: line1\ndata: line2\nid: 42\n\n")
	p1 := sse.New()
	whole := p1.Process(full)

	p2 := sse.New()
	var piecemeal []sse.Event
	for i := range full {
		piecemeal = append(piecemeal, p2.Process(full[i:i+1])...)
	}

	require.Equal(t, whole, piecemeal)
	require.Len(t, whole, 1)
	assert.Equal(t, "message", whole[0].Event)
	assert.Equal(t, "line1\nline2", whole[0].Data)
	assert.Equal(t, "42", whole[0].ID)
}

func TestLineEndingVariants(t *testing.T) {
	for _, sep := range []string{"\n", "\r\n", "\r"} {
		p := sse.New()
		events := p.Process([]byte("data: x" + sep + sep))
		require.Len(t, events, 1, "separator %q", sep)
		assert.Equal(t, "x", events[0].Data)
	}
}

func TestLoneCRSplitAcrossChunks(t *testing.T) {
	p := sse.New()
	events := p.Process([]byte("data: x\r"))
	assert.Empty(t, events)
	events = p.Process([]byte("\r"))
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Data)
}

func TestBOMStrippedFromFirstEvent(t *testing.T) {
	p := sse.New()
	bom := []byte{0xEF, 0xBB, 0xBF}
	events := p.Process(append(bom, []byte("data: hi\n\n")...))
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Data)
}

func TestBOMSplitAcrossChunks(t *testing.T) {
	p := sse.New()
	bom := []byte{0xEF, 0xBB, 0xBF}
	var events []sse.Event
	events = append(events, p.Process(bom[:1])...)
	events = append(events, p.Process(bom[1:])...)
	events = append(events, p.Process([]byte("data: hi\n\n"))...)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Data)
}

func TestCommentLinesIgnored(t *testing.T) {
	p := sse.New()
	events := p.Process([]byte(": keep-alive\ndata: x\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Data)
}

func TestNoColonTreatedAsFieldWithEmptyValue(t *testing.T) {
	p := sse.New()
	events := p.Process([]byte("data\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "", events[0].Data)
}

func TestEventWithNoFieldsIsDropped(t *testing.T) {
	p := sse.New()
	events := p.Process([]byte("\n"))
	assert.Empty(t, events)
}

func TestIDWithNulIsIgnored(t *testing.T) {
	p := sse.New()
	events := p.Process([]byte("data: x\nid: a\x00b\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "", events[0].ID)
}

func TestRetryMustBeUnsignedDecimal(t *testing.T) {
	p := sse.New()
	events := p.Process([]byte("data: x\nretry: -1\n\n"))
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Retry)

	p2 := sse.New()
	events = p2.Process([]byte("data: x\nretry: 3000\n\n"))
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Retry)
	assert.Equal(t, uint64(3000), *events[0].Retry)
}

func TestDataWithNoSpaceAfterColon(t *testing.T) {
	p := sse.New()
	events := p.Process([]byte("data:x\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Data)
}
