package ollama_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onehub/llmgate/internal/dialect/ollama"
	"github.com/onehub/llmgate/internal/unified"
)

func TestFromUnifiedDropsTools(t *testing.T) {
	req := &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Content: []unified.ContentPart{{Kind: unified.PartText, Text: "hi"}}}},
		Tools:    []unified.Tool{{Name: "lookup"}},
	}
	wire := ollama.FromUnified(req)
	assert.Equal(t, "hi", wire.Messages[0].Content)
}

func TestResponseToUnifiedDoneSetsUsageAndFinish(t *testing.T) {
	resp := &ollama.Response{Model: "llama3", Message: ollama.Message{Role: "assistant", Content: "hi"}, Done: true, PromptEvalCount: 3, EvalCount: 5}
	u := ollama.ResponseToUnified(resp)
	assert.Equal(t, unified.FinishStop, u.Choices[0].FinishReason)
	assert.Equal(t, int32(8), u.Usage.TotalTokens)
}
