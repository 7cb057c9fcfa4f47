// Package gemini translates between the Google Gemini generateContent wire
// format and the Unified IR.
package gemini

import (
	"encoding/json"

	"github.com/Laisky/zap"

	"github.com/onehub/llmgate/internal/logger"
	"github.com/onehub/llmgate/internal/unified"
)

// Part is one Gemini content part: exactly one of Text, FunctionCall or
// FunctionResponse is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FunctionCall is Gemini's functionCall part payload.
type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse is Gemini's functionResponse part payload.
type FunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Content is one Gemini conversation turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// FunctionDeclaration is one Gemini tool function.
type FunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Tool is a Gemini tool entry (a group of function declarations).
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// GenerationConfig carries Gemini's sampling parameters.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// Request is the Gemini generateContent request body.
type Request struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"system_instruction,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// UsageMetadata is Gemini's token accounting block.
type UsageMetadata struct {
	PromptTokenCount     int32 `json:"promptTokenCount"`
	CandidatesTokenCount int32 `json:"candidatesTokenCount"`
	TotalTokenCount      int32 `json:"totalTokenCount"`
}

// Candidate is one Gemini response candidate.
type Candidate struct {
	Index        int     `json:"index"`
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// Response is the Gemini generateContent response body, also used as the
// per-event payload of streamGenerateContent.
type Response struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

var finishToUnified = map[string]unified.FinishReason{
	"STOP":       unified.FinishStop,
	"MAX_TOKENS": unified.FinishLength,
	"SAFETY":     unified.FinishContentFilter,
	"RECITATION": unified.FinishContentFilter,
	"TOOL_USE":   unified.FinishToolCalls,
}

var finishFromUnified = map[unified.FinishReason]string{
	unified.FinishStop:          "STOP",
	unified.FinishLength:        "MAX_TOKENS",
	unified.FinishToolCalls:     "TOOL_USE",
	unified.FinishContentFilter: "SAFETY",
}

func roleToUnified(role string) unified.Role {
	if role == "model" {
		return unified.RoleAssistant
	}
	return unified.RoleUser
}

func roleFromUnified(role unified.Role) string {
	if role == unified.RoleAssistant {
		return "model"
	}
	return "user"
}

func partsToUnified(parts []Part) []unified.ContentPart {
	out := make([]unified.ContentPart, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.FunctionCall != nil:
			args := p.FunctionCall.Args
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out = append(out, unified.ContentPart{
				Kind:         unified.PartToolCall,
				ToolName:     p.FunctionCall.Name,
				ToolArgsJSON: args,
			})
		case p.FunctionResponse != nil:
			out = append(out, unified.ContentPart{
				Kind:              unified.PartToolResult,
				ToolName:          p.FunctionResponse.Name,
				ToolResultContent: string(p.FunctionResponse.Response),
			})
		default:
			out = append(out, unified.ContentPart{Kind: unified.PartText, Text: p.Text})
		}
	}
	return out
}

func partsFromUnified(parts []unified.ContentPart) []Part {
	out := make([]Part, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case unified.PartToolCall:
			args := p.ToolArgsJSON
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out = append(out, Part{FunctionCall: &FunctionCall{Name: p.ToolName, Args: args}})
		case unified.PartToolResult:
			resp := json.RawMessage(p.ToolResultContent)
			if len(resp) == 0 || !json.Valid(resp) {
				b, _ := json.Marshal(map[string]string{"result": p.ToolResultContent})
				resp = b
			}
			out = append(out, Part{FunctionResponse: &FunctionResponse{Name: p.ToolName, Response: resp}})
		default:
			out = append(out, Part{Text: p.Text})
		}
	}
	return out
}

// ToUnified converts a Gemini request into the Unified IR.
func ToUnified(req *Request) *unified.Request {
	out := &unified.Request{}

	if req.SystemInstruction != nil {
		var sb []string
		for _, p := range req.SystemInstruction.Parts {
			if p.Text != "" {
				sb = append(sb, p.Text)
			}
		}
		if len(sb) > 0 {
			out.Messages = append(out.Messages, unified.Message{
				Role:    unified.RoleSystem,
				Content: []unified.ContentPart{{Kind: unified.PartText, Text: joinLines(sb)}},
			})
		}
	}

	for _, c := range req.Contents {
		out.Messages = append(out.Messages, unified.Message{
			Role:    roleToUnified(c.Role),
			Content: partsToUnified(c.Parts),
		})
	}

	for _, t := range req.Tools {
		for _, fd := range t.FunctionDeclarations {
			out.Tools = append(out.Tools, unified.Tool{
				Name:        fd.Name,
				Description: fd.Description,
				Parameters:  fd.Parameters,
			})
		}
	}

	if req.GenerationConfig != nil {
		gc := req.GenerationConfig
		out.Temperature = gc.Temperature
		out.MaxTokens = gc.MaxOutputTokens
		out.TopP = gc.TopP
		out.Stop = gc.StopSequences
		out.TopK = gc.TopK
	}

	out.Messages = unified.FilterEmptyContent(out.Messages)
	return out
}

// FromUnified serializes the Unified IR as a Gemini request.
func FromUnified(req *unified.Request) *Request {
	out := &Request{}

	var systemText []string
	for _, m := range req.Messages {
		if m.Role != unified.RoleSystem {
			continue
		}
		for _, p := range m.Content {
			if p.Kind == unified.PartText && p.Text != "" {
				systemText = append(systemText, p.Text)
			}
		}
	}
	if len(systemText) > 0 {
		out.SystemInstruction = &Content{Parts: []Part{{Text: joinLines(systemText)}}}
	}

	for _, m := range req.Messages {
		if m.Role == unified.RoleSystem {
			continue
		}
		out.Contents = append(out.Contents, Content{
			Role:  roleFromUnified(m.Role),
			Parts: partsFromUnified(m.Content),
		})
	}

	if len(req.Tools) > 0 {
		var decls []FunctionDeclaration
		for _, t := range req.Tools {
			decls = append(decls, FunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		out.Tools = []Tool{{FunctionDeclarations: decls}}
	}

	if req.Temperature != nil || req.MaxTokens != nil || req.TopP != nil || len(req.Stop) > 0 {
		out.GenerationConfig = &GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
			TopP:            req.TopP,
			StopSequences:   req.Stop,
		}
	}
	if req.TopK != nil {
		logger.L.Debug("dropping top_k for gemini target, unsupported field", zap.Int("top_k", *req.TopK))
	}
	return out
}

// ChunkToUnified converts one streamed Gemini candidate envelope into a
// Unified chunk. Gemini streams whole-candidate content per event rather
// than incremental deltas, so each event's parts become the chunk's delta.
func ChunkToUnified(resp *Response) *unified.Chunk {
	out := &unified.Chunk{}
	if resp.UsageMetadata != nil {
		um := resp.UsageMetadata
		out.Usage = &unified.Usage{InputTokens: um.PromptTokenCount, OutputTokens: um.CandidatesTokenCount, TotalTokens: um.TotalTokenCount}
	}
	for _, c := range resp.Candidates {
		parts := partsToUnified(c.Content.Parts)
		hasToolCall := false
		var d unified.Delta
		d.Role = unified.RoleAssistant
		for i, p := range parts {
			switch p.Kind {
			case unified.PartText:
				d.Parts = append(d.Parts, unified.DeltaPart{Kind: unified.DeltaText, Index: i, Text: p.Text})
			case unified.PartToolCall:
				hasToolCall = true
				d.Parts = append(d.Parts, unified.DeltaPart{Kind: unified.DeltaToolCall, Index: i, ToolName: p.ToolName, ToolArgsJSON: string(p.ToolArgsJSON)})
			}
		}
		finish := finishToUnified[c.FinishReason]
		if hasToolCall && c.FinishReason == "STOP" {
			finish = unified.FinishToolCalls
		}
		out.Choices = append(out.Choices, unified.ChunkChoice{Index: c.Index, Delta: d, FinishReason: finish})
	}
	return out
}

// ChunkFromUnified serializes a Unified chunk as a Gemini candidate
// envelope.
func ChunkFromUnified(c *unified.Chunk) *Response {
	out := &Response{}
	if c.Usage != nil {
		out.UsageMetadata = &UsageMetadata{PromptTokenCount: c.Usage.InputTokens, CandidatesTokenCount: c.Usage.OutputTokens, TotalTokenCount: c.Usage.TotalTokens}
	}
	for _, ch := range c.Choices {
		var parts []Part
		for _, p := range ch.Delta.Parts {
			switch p.Kind {
			case unified.DeltaText:
				parts = append(parts, Part{Text: p.Text})
			case unified.DeltaToolCall:
				args := json.RawMessage(p.ToolArgsJSON)
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				parts = append(parts, Part{FunctionCall: &FunctionCall{Name: p.ToolName, Args: args}})
			}
		}
		out.Candidates = append(out.Candidates, Candidate{
			Index:        ch.Index,
			Content:      Content{Role: "model", Parts: parts},
			FinishReason: finishFromUnified[ch.FinishReason],
		})
	}
	return out
}

// ResponseToUnified converts a Gemini response into the Unified IR,
// applying the tool-call + STOP => tool_calls override.
func ResponseToUnified(resp *Response) *unified.Response {
	out := &unified.Response{}
	if resp.UsageMetadata != nil {
		um := resp.UsageMetadata
		out.Usage = &unified.Usage{
			InputTokens:  um.PromptTokenCount,
			OutputTokens: um.CandidatesTokenCount,
			TotalTokens:  um.TotalTokenCount,
		}
	}
	for _, c := range resp.Candidates {
		parts := partsToUnified(c.Content.Parts)
		hasToolCall := false
		for _, p := range parts {
			if p.Kind == unified.PartToolCall {
				hasToolCall = true
				break
			}
		}
		finish := finishToUnified[c.FinishReason]
		if hasToolCall && c.FinishReason == "STOP" {
			finish = unified.FinishToolCalls
		}
		out.Choices = append(out.Choices, unified.Choice{
			Index:        c.Index,
			Message:      unified.Message{Role: unified.RoleAssistant, Content: parts},
			FinishReason: finish,
		})
	}
	return out
}

// ResponseFromUnified serializes the Unified IR as a Gemini response.
func ResponseFromUnified(resp *unified.Response) *Response {
	out := &Response{}
	if resp.Usage != nil {
		out.UsageMetadata = &UsageMetadata{
			PromptTokenCount:     resp.Usage.InputTokens,
			CandidatesTokenCount: resp.Usage.OutputTokens,
			TotalTokenCount:      resp.Usage.TotalTokens,
		}
	}
	for _, c := range resp.Choices {
		out.Candidates = append(out.Candidates, Candidate{
			Index: c.Index,
			Content: Content{
				Role:  "model",
				Parts: partsFromUnified(c.Message.Content),
			},
			FinishReason: finishFromUnified[c.FinishReason],
		})
	}
	return out
}

func joinLines(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n" + p
	}
	return out
}
