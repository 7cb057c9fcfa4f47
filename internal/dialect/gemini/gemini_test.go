package gemini_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onehub/llmgate/internal/dialect/gemini"
	"github.com/onehub/llmgate/internal/unified"
)

func TestToolCallWithStopYieldsToolCallsFinish(t *testing.T) {
	resp := &gemini.Response{
		Candidates: []gemini.Candidate{{
			Index: 0,
			Content: gemini.Content{
				Role:  "model",
				Parts: []gemini.Part{{FunctionCall: &gemini.FunctionCall{Name: "lookup"}}},
			},
			FinishReason: "STOP",
		}},
	}
	u := gemini.ResponseToUnified(resp)
	assert.Equal(t, unified.FinishToolCalls, u.Choices[0].FinishReason)
}

func TestSystemInstructionPromotedToSystemMessage(t *testing.T) {
	req := &gemini.Request{
		SystemInstruction: &gemini.Content{Parts: []gemini.Part{{Text: "be nice"}}},
		Contents:          []gemini.Content{{Role: "user", Parts: []gemini.Part{{Text: "hi"}}}},
	}
	u := gemini.ToUnified(req)
	assert.Equal(t, unified.RoleSystem, u.Messages[0].Role)
	assert.Equal(t, "be nice", u.Messages[0].Content[0].Text)
}

func TestFromUnifiedPromotesSystemMessagesOut(t *testing.T) {
	req := &unified.Request{Messages: []unified.Message{
		{Role: unified.RoleSystem, Content: []unified.ContentPart{{Kind: unified.PartText, Text: "a"}}},
		{Role: unified.RoleSystem, Content: []unified.ContentPart{{Kind: unified.PartText, Text: "b"}}},
		{Role: unified.RoleUser, Content: []unified.ContentPart{{Kind: unified.PartText, Text: "hi"}}},
	}}
	wire := gemini.FromUnified(req)
	if assert.NotNil(t, wire.SystemInstruction) {
		assert.Equal(t, "a\nb", wire.SystemInstruction.Parts[0].Text)
	}
	assert.Len(t, wire.Contents, 1)
}
