// Package anthropic translates between the Anthropic Messages wire format
// and the Unified IR.
package anthropic

import (
	"encoding/json"

	"github.com/Laisky/zap"

	"github.com/onehub/llmgate/internal/logger"
	"github.com/onehub/llmgate/internal/unified"
)

// ContentBlock is one Anthropic content block; exactly one of the
// type-specific fields is populated depending on Type.
type ContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Message is one Anthropic conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// SystemBlock is one element of a structured `system` field.
type SystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Tool is an Anthropic tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Request is the Anthropic Messages request body. System may be a bare
// string or a list of SystemBlock; we keep it raw and decode lazily.
type Request struct {
	Model         string          `json:"model"`
	System        json.RawMessage `json:"system,omitempty"`
	Messages      []Message       `json:"messages"`
	Tools         []Tool          `json:"tools,omitempty"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

// StreamMessageStart is the `message_start` stream event payload.
type StreamMessageStart struct {
	Message struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Role  string `json:"role"`
	} `json:"message"`
}

// StreamContentBlockStart is the `content_block_start` stream event
// payload.
type StreamContentBlockStart struct {
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// StreamContentBlockDelta is the `content_block_delta` stream event
// payload.
type StreamContentBlockDelta struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
	} `json:"delta"`
}

// StreamMessageDelta is the `message_delta` stream event payload.
type StreamMessageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int32 `json:"output_tokens"`
	} `json:"usage"`
}

// Usage is Anthropic's token-usage block.
type Usage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
}

// Response is the Anthropic Messages response body.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      Usage          `json:"usage"`
}

var finishToUnified = map[string]unified.FinishReason{
	"end_turn":      unified.FinishStop,
	"max_tokens":    unified.FinishLength,
	"stop_sequence": unified.FinishStop,
	"tool_use":      unified.FinishToolCalls,
}

var finishFromUnified = map[unified.FinishReason]string{
	unified.FinishStop:          "end_turn",
	unified.FinishLength:        "max_tokens",
	unified.FinishToolCalls:     "tool_use",
	unified.FinishContentFilter: "end_turn",
}

func decodeSystem(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []SystemBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	out := ""
	for i, b := range blocks {
		if i > 0 {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

func blocksToUnified(blocks []ContentBlock) []unified.ContentPart {
	out := make([]unified.ContentPart, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, unified.ContentPart{Kind: unified.PartText, Text: b.Text})
		case "tool_use":
			args := b.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out = append(out, unified.ContentPart{
				Kind:         unified.PartToolCall,
				ToolCallID:   b.ID,
				ToolName:     b.Name,
				ToolArgsJSON: args,
			})
		case "tool_result":
			out = append(out, unified.ContentPart{
				Kind:              unified.PartToolResult,
				ToolCallID:        b.ToolUseID,
				ToolResultContent: b.Content,
			})
		}
	}
	return out
}

func blocksFromUnified(parts []unified.ContentPart) []ContentBlock {
	out := make([]ContentBlock, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case unified.PartToolCall:
			input := p.ToolArgsJSON
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			out = append(out, ContentBlock{Type: "tool_use", ID: p.ToolCallID, Name: p.ToolName, Input: input})
		case unified.PartToolResult:
			out = append(out, ContentBlock{Type: "tool_result", ToolUseID: p.ToolCallID, Content: p.ToolResultContent})
		default:
			out = append(out, ContentBlock{Type: "text", Text: p.Text})
		}
	}
	return out
}

// ToUnified converts an Anthropic request into the Unified IR.
func ToUnified(req *Request) *unified.Request {
	out := &unified.Request{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Stop:        req.StopSequences,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		out.MaxTokens = &mt
	}

	toolNameByCallID := map[string]string{}
	for _, m := range req.Messages {
		for _, b := range m.Content {
			if b.Type == "tool_use" {
				toolNameByCallID[b.ID] = b.Name
			}
		}
	}

	if sys := decodeSystem(req.System); sys != "" {
		out.Messages = append(out.Messages, unified.Message{
			Role:    unified.RoleSystem,
			Content: []unified.ContentPart{{Kind: unified.PartText, Text: sys}},
		})
	}

	for _, m := range req.Messages {
		role := unified.RoleUser
		if m.Role == "assistant" {
			role = unified.RoleAssistant
		} else if isSoleToolResult(m.Content) {
			role = unified.RoleTool
		}
		parts := blocksToUnified(m.Content)
		if role == unified.RoleTool {
			for i := range parts {
				parts[i].ToolName = toolNameByCallID[parts[i].ToolCallID]
			}
		}
		out.Messages = append(out.Messages, unified.Message{Role: role, Content: parts})
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, unified.Tool{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}

	out.Messages = unified.FilterEmptyContent(out.Messages)
	return out
}

func isSoleToolResult(blocks []ContentBlock) bool {
	return len(blocks) == 1 && blocks[0].Type == "tool_result"
}

// FromUnified serializes the Unified IR as an Anthropic request.
func FromUnified(req *unified.Request) *Request {
	out := &Request{
		Model:         req.Model,
		Stream:        req.Stream,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.Stop,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	} else {
		out.MaxTokens = unified.DefaultAnthropicMaxTokens
	}

	var systemText []string
	for _, m := range req.Messages {
		if m.Role == unified.RoleSystem {
			for _, p := range m.Content {
				if p.Kind == unified.PartText && p.Text != "" {
					systemText = append(systemText, p.Text)
				}
			}
		}
	}
	if len(systemText) > 0 {
		sys := systemText[0]
		for _, s := range systemText[1:] {
			sys += "\n" + s
		}
		b, _ := json.Marshal(sys)
		out.System = b
	}

	for _, m := range req.Messages {
		switch m.Role {
		case unified.RoleSystem:
			continue
		case unified.RoleTool:
			out.Messages = append(out.Messages, Message{Role: "user", Content: blocksFromUnified(m.Content)})
		case unified.RoleAssistant:
			out.Messages = append(out.Messages, Message{Role: "assistant", Content: blocksFromUnified(m.Content)})
		default:
			out.Messages = append(out.Messages, Message{Role: "user", Content: blocksFromUnified(m.Content)})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return out
}

// ResponseToUnified converts an Anthropic response into the Unified IR.
func ResponseToUnified(resp *Response) *unified.Response {
	out := &unified.Response{
		ID:    resp.ID,
		Model: resp.Model,
	}
	total := resp.Usage.InputTokens + resp.Usage.OutputTokens
	out.Usage = &unified.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  total,
	}
	finish, ok := finishToUnified[resp.StopReason]
	if !ok {
		logger.L.Debug("unrecognized anthropic stop_reason", zap.String("stop_reason", resp.StopReason))
		finish = unified.FinishStop
	}
	out.Choices = []unified.Choice{{
		Index:        0,
		Message:      unified.Message{Role: unified.RoleAssistant, Content: blocksToUnified(resp.Content)},
		FinishReason: finish,
	}}
	return out
}

// ResponseFromUnified serializes the Unified IR as an Anthropic response.
func ResponseFromUnified(resp *unified.Response) *Response {
	out := &Response{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}
	if len(resp.Choices) > 0 {
		c := resp.Choices[0]
		out.Content = blocksFromUnified(c.Message.Content)
		out.StopReason = finishFromUnified[c.FinishReason]
	}
	if resp.Usage != nil {
		out.Usage = Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	}
	return out
}
