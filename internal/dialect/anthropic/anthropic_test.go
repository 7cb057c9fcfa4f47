package anthropic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/dialect/anthropic"
	"github.com/onehub/llmgate/internal/unified"
)

func TestFromUnifiedSynthesizesDefaultMaxTokens(t *testing.T) {
	req := &unified.Request{Messages: []unified.Message{{Role: unified.RoleUser, Content: []unified.ContentPart{{Kind: unified.PartText, Text: "hi"}}}}}
	wire := anthropic.FromUnified(req)
	assert.Equal(t, unified.DefaultAnthropicMaxTokens, wire.MaxTokens)
}

func TestFromUnifiedPreservesExplicitMaxTokens(t *testing.T) {
	mt := 200
	req := &unified.Request{MaxTokens: &mt, Messages: []unified.Message{{Role: unified.RoleUser}}}
	wire := anthropic.FromUnified(req)
	assert.Equal(t, 200, wire.MaxTokens)
}

func TestSoleToolResultMessageBecomesToolRole(t *testing.T) {
	req := &anthropic.Request{
		Messages: []anthropic.Message{
			{Role: "assistant", Content: []anthropic.ContentBlock{{Type: "tool_use", ID: "1", Name: "lookup"}}},
			{Role: "user", Content: []anthropic.ContentBlock{{Type: "tool_result", ToolUseID: "1", Content: "42"}}},
		},
	}
	u := anthropic.ToUnified(req)
	require.Len(t, u.Messages, 2)
	assert.Equal(t, unified.RoleTool, u.Messages[1].Role)
	assert.Equal(t, "lookup", u.Messages[1].Content[0].ToolName)
}

func TestStopReasonMapping(t *testing.T) {
	resp := &anthropic.Response{StopReason: "tool_use", Content: []anthropic.ContentBlock{{Type: "text", Text: "x"}}}
	u := anthropic.ResponseToUnified(resp)
	assert.Equal(t, unified.FinishToolCalls, u.Choices[0].FinishReason)
}
