package openai_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/dialect/openai"
	"github.com/onehub/llmgate/internal/unified"
)

func TestToUnifiedPlainTextMessage(t *testing.T) {
	raw, _ := json.Marshal("hello")
	req := &openai.Request{Model: "gpt-4o", Messages: []openai.Message{{Role: "user", RawContent: raw}}}
	u, err := openai.ToUnified(req)
	require.NoError(t, err)
	require.Len(t, u.Messages, 1)
	assert.Equal(t, unified.RoleUser, u.Messages[0].Role)
	assert.Equal(t, "hello", u.Messages[0].Content[0].Text)
}

func TestStopAcceptsStringAndArrayForms(t *testing.T) {
	var req openai.Request
	require.NoError(t, json.Unmarshal([]byte(`{"model":"gpt-4","messages":[],"stop":"X"}`), &req))
	assert.Equal(t, openai.StopList{"X"}, req.Stop)

	require.NoError(t, json.Unmarshal([]byte(`{"model":"gpt-4","messages":[],"stop":["a","b"]}`), &req))
	assert.Equal(t, openai.StopList{"a", "b"}, req.Stop)

	u, err := openai.ToUnified(&openai.Request{Model: "gpt-4", Stop: openai.StopList{"X"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, u.Stop)
}

func TestToolCallRoundTrip(t *testing.T) {
	req := &unified.Request{
		Messages: []unified.Message{{
			Role: unified.RoleAssistant,
			Content: []unified.ContentPart{{
				Kind: unified.PartToolCall, ToolCallID: "call_1", ToolName: "get_weather",
				ToolArgsJSON: json.RawMessage(`{"city":"ny"}`),
			}},
		}},
	}
	wire := openai.FromUnified(req)
	require.Len(t, wire.Messages, 1)
	require.Len(t, wire.Messages[0].ToolCalls, 1)
	assert.Equal(t, "get_weather", wire.Messages[0].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"ny"}`, wire.Messages[0].ToolCalls[0].Function.Arguments)

	back, err := openai.ToUnified(wire)
	require.NoError(t, err)
	require.Len(t, back.Messages, 1)
	assert.Equal(t, "get_weather", back.Messages[0].Content[0].ToolName)
}

func TestResponseFromUnifiedMintsIDWhenRequested(t *testing.T) {
	resp := &unified.Response{Model: "gpt-4o", Choices: []unified.Choice{{Message: unified.Message{Role: unified.RoleAssistant}}}}
	out := openai.ResponseFromUnified(resp, true)
	assert.Contains(t, out.ID, "chatcmpl-")
	assert.Equal(t, "chat.completion", out.Object)
}
