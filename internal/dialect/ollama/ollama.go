// Package ollama translates between the Ollama chat wire format and the
// Unified IR. Ollama has no tool-calling support in this
// translator's scope; tools are dropped when targeting it (rule 9).
package ollama

import (
	"github.com/Laisky/zap"

	"github.com/onehub/llmgate/internal/logger"
	"github.com/onehub/llmgate/internal/unified"
)

// Message is one Ollama chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries Ollama's sampling parameters.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Request is the Ollama /api/chat request body.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// Response is the Ollama /api/chat response body (also the shape of each
// NDJSON-streamed line).
type Response struct {
	Model           string  `json:"model"`
	CreatedAt       string  `json:"created_at,omitempty"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

func roleToUnified(role string) unified.Role {
	switch role {
	case "assistant":
		return unified.RoleAssistant
	case "system":
		return unified.RoleSystem
	default:
		return unified.RoleUser
	}
}

// ToUnified converts an Ollama request into the Unified IR.
func ToUnified(req *Request) *unified.Request {
	out := &unified.Request{Model: req.Model, Stream: req.Stream}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, unified.Message{
			Role:    roleToUnified(m.Role),
			Content: []unified.ContentPart{{Kind: unified.PartText, Text: m.Content}},
		})
	}
	if req.Options != nil {
		out.Temperature = req.Options.Temperature
		out.TopP = req.Options.TopP
		out.TopK = req.Options.TopK
		out.Stop = req.Options.Stop
	}
	out.Messages = unified.FilterEmptyContent(out.Messages)
	return out
}

// FromUnified serializes the Unified IR as an Ollama request, dropping
// tools and top_k with a debug log; both are reserved for dialects that
// natively carry them.
func FromUnified(req *unified.Request) *Request {
	if len(req.Tools) > 0 {
		logger.L.Debug("dropping tools for ollama target, unsupported dialect", zap.Int("tool_count", len(req.Tools)))
	}
	if req.TopK != nil {
		logger.L.Debug("dropping top_k for ollama target", zap.Int("top_k", *req.TopK))
	}
	out := &Request{Model: req.Model, Stream: req.Stream}
	for _, m := range req.Messages {
		var text string
		for _, p := range m.Content {
			if p.Kind == unified.PartText {
				if text != "" {
					text += "\n"
				}
				text += p.Text
			}
		}
		role := "user"
		switch m.Role {
		case unified.RoleAssistant:
			role = "assistant"
		case unified.RoleSystem:
			role = "system"
		}
		out.Messages = append(out.Messages, Message{Role: role, Content: text})
	}
	if req.Temperature != nil || req.TopP != nil || len(req.Stop) > 0 {
		out.Options = &Options{Temperature: req.Temperature, TopP: req.TopP, Stop: req.Stop}
	}
	return out
}

// ChunkToUnified converts one streamed Ollama NDJSON line into a Unified
// chunk.
func ChunkToUnified(resp *Response) *unified.Chunk {
	out := &unified.Chunk{Model: resp.Model}
	finish := unified.FinishReason("")
	if resp.Done {
		finish = unified.FinishStop
		out.Usage = &unified.Usage{
			InputTokens:  int32(resp.PromptEvalCount),
			OutputTokens: int32(resp.EvalCount),
			TotalTokens:  int32(resp.PromptEvalCount + resp.EvalCount),
		}
	}
	d := unified.Delta{Role: unified.RoleAssistant}
	if resp.Message.Content != "" {
		d.Parts = []unified.DeltaPart{{Kind: unified.DeltaText, Text: resp.Message.Content}}
	}
	out.Choices = []unified.ChunkChoice{{Index: 0, Delta: d, FinishReason: finish}}
	return out
}

// ChunkFromUnified serializes a Unified chunk as one Ollama NDJSON line.
func ChunkFromUnified(c *unified.Chunk) *Response {
	out := &Response{Model: c.Model}
	if len(c.Choices) > 0 {
		ch := c.Choices[0]
		var text string
		for _, p := range ch.Delta.Parts {
			if p.Kind == unified.DeltaText {
				text += p.Text
			}
		}
		out.Message = Message{Role: "assistant", Content: text}
		out.Done = ch.FinishReason != ""
	}
	if c.Usage != nil {
		out.PromptEvalCount = int(c.Usage.InputTokens)
		out.EvalCount = int(c.Usage.OutputTokens)
	}
	return out
}

// ResponseToUnified converts an Ollama response into the Unified IR.
func ResponseToUnified(resp *Response) *unified.Response {
	finish := unified.FinishReason("")
	if resp.Done {
		finish = unified.FinishStop
	}
	out := &unified.Response{
		Model: resp.Model,
		Choices: []unified.Choice{{
			Index:        0,
			Message:      unified.Message{Role: unified.RoleAssistant, Content: []unified.ContentPart{{Kind: unified.PartText, Text: resp.Message.Content}}},
			FinishReason: finish,
		}},
	}
	if resp.Done {
		out.Usage = &unified.Usage{
			InputTokens:  int32(resp.PromptEvalCount),
			OutputTokens: int32(resp.EvalCount),
			TotalTokens:  int32(resp.PromptEvalCount + resp.EvalCount),
		}
	}
	return out
}

// ResponseFromUnified serializes the Unified IR as an Ollama response.
func ResponseFromUnified(resp *unified.Response) *Response {
	out := &Response{Model: resp.Model, Done: true}
	if len(resp.Choices) > 0 {
		var text string
		for _, p := range resp.Choices[0].Message.Content {
			if p.Kind == unified.PartText {
				text += p.Text
			}
		}
		out.Message = Message{Role: "assistant", Content: text}
	}
	if resp.Usage != nil {
		out.PromptEvalCount = int(resp.Usage.InputTokens)
		out.EvalCount = int(resp.Usage.OutputTokens)
	}
	return out
}
