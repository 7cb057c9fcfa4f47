// Package openai translates between the OpenAI Chat Completions wire
// format and the Unified IR.
package openai

import (
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/onehub/llmgate/internal/snowflake"
	"github.com/onehub/llmgate/internal/unified"
)

// ToolCall is the OpenAI wire shape for one function tool call.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// Message is one OpenAI chat message. Content may be a plain string or an
// array of content parts; we decode it lazily via RawContent.
type Message struct {
	Role       string          `json:"role"`
	RawContent json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// FunctionTool is the OpenAI wire shape for an offered tool.
type FunctionTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

// StopList is the `stop` field, which the wire format allows as either a
// bare string or an array of strings.
type StopList []string

func (s *StopList) UnmarshalJSON(raw []byte) error {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		*s = StopList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return err
	}
	*s = StopList(many)
	return nil
}

// Request is the OpenAI Chat Completions request body.
type Request struct {
	Model            string         `json:"model"`
	Messages         []Message      `json:"messages"`
	Tools            []FunctionTool `json:"tools,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	Stop             StopList       `json:"stop,omitempty"`
	Seed             *int64         `json:"seed,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
}

// Usage is the OpenAI token-usage block.
type Usage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

// Choice is one non-streaming response choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Response is the OpenAI Chat Completions response body.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// DeltaMessage is the partial message carried by a streamed chunk choice.
type DeltaMessage struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChunkChoice is one streamed choice delta.
type ChunkChoice struct {
	Index        int          `json:"index"`
	Delta        DeltaMessage `json:"delta"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// Chunk is one `chat.completion.chunk` SSE data payload.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

var finishToUnified = map[string]unified.FinishReason{
	"stop":           unified.FinishStop,
	"length":         unified.FinishLength,
	"tool_calls":     unified.FinishToolCalls,
	"content_filter": unified.FinishContentFilter,
}

var finishFromUnified = map[unified.FinishReason]string{
	unified.FinishStop:          "stop",
	unified.FinishLength:        "length",
	unified.FinishToolCalls:     "tool_calls",
	unified.FinishContentFilter: "content_filter",
}

func decodeContent(raw json.RawMessage) []unified.ContentPart {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []unified.ContentPart{{Kind: unified.PartText, Text: s}}
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil
	}
	out := make([]unified.ContentPart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case "text":
			out = append(out, unified.ContentPart{Kind: unified.PartText, Text: p.Text})
		case "image_url":
			out = append(out, unified.ContentPart{Kind: unified.PartImageURL, ImageURL: p.ImageURL.URL})
		}
	}
	return out
}

func encodeContent(parts []unified.ContentPart) json.RawMessage {
	if len(parts) == 1 && parts[0].Kind == unified.PartText {
		b, _ := json.Marshal(parts[0].Text)
		return b
	}
	type wire struct {
		Type     string `json:"type"`
		Text     string `json:"text,omitempty"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url,omitempty"`
	}
	var out []wire
	for _, p := range parts {
		switch p.Kind {
		case unified.PartText:
			out = append(out, wire{Type: "text", Text: p.Text})
		case unified.PartImageURL:
			w := wire{Type: "image_url"}
			w.ImageURL.URL = p.ImageURL
			out = append(out, w)
		}
	}
	if out == nil {
		b, _ := json.Marshal("")
		return b
	}
	b, _ := json.Marshal(out)
	return b
}

// ToUnified converts an OpenAI request into the Unified IR.
func ToUnified(req *Request) (*unified.Request, error) {
	out := &unified.Request{
		Model:            req.Model,
		Stream:           req.Stream,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		Stop:             []string(req.Stop),
		Seed:             req.Seed,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}

	toolNameByCallID := map[string]string{}
	for _, m := range req.Messages {
		for _, tc := range m.ToolCalls {
			toolNameByCallID[tc.ID] = tc.Function.Name
		}
	}

	for _, m := range req.Messages {
		um := unified.Message{Role: unified.Role(m.Role)}
		if m.Role == "tool" {
			um.Role = unified.RoleTool
			var content string
			_ = json.Unmarshal(m.RawContent, &content)
			um.Content = []unified.ContentPart{{
				Kind:              unified.PartToolResult,
				ToolCallID:        m.ToolCallID,
				ToolName:          toolNameByCallID[m.ToolCallID],
				ToolResultContent: content,
			}}
			out.Messages = append(out.Messages, um)
			continue
		}
		um.Content = decodeContent(m.RawContent)
		for _, tc := range m.ToolCalls {
			argsJSON, err := normalizeArgs(tc.Function.Arguments)
			if err != nil {
				return nil, errors.Wrapf(err, "decode tool call arguments for %q", tc.Function.Name)
			}
			um.Content = append(um.Content, unified.ContentPart{
				Kind:         unified.PartToolCall,
				ToolCallID:   tc.ID,
				ToolName:     tc.Function.Name,
				ToolArgsJSON: argsJSON,
			})
		}
		out.Messages = append(out.Messages, um)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, unified.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	out.Messages = unified.FilterEmptyContent(out.Messages)
	return out, nil
}

func normalizeArgs(raw string) (json.RawMessage, error) {
	if raw == "" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, errors.Errorf("tool call arguments are not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// FromUnified serializes the Unified IR as an OpenAI request.
func FromUnified(req *unified.Request) *Request {
	out := &Request{
		Model:            req.Model,
		Stream:           req.Stream,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		Stop:             StopList(req.Stop),
		Seed:             req.Seed,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}

	toolNameByCallID := map[string]string{}
	for _, m := range req.Messages {
		for _, p := range m.Content {
			if p.Kind == unified.PartToolCall {
				toolNameByCallID[p.ToolCallID] = p.ToolName
			}
		}
	}

	for _, m := range req.Messages {
		if m.Role == unified.RoleTool {
			for _, p := range m.Content {
				if p.Kind != unified.PartToolResult {
					continue
				}
				raw, _ := json.Marshal(p.ToolResultContent)
				out.Messages = append(out.Messages, Message{
					Role:       "tool",
					RawContent: raw,
					ToolCallID: p.ToolCallID,
					Name:       p.ToolName,
				})
			}
			continue
		}

		wm := Message{Role: string(m.Role)}
		var textParts []unified.ContentPart
		for _, p := range m.Content {
			switch p.Kind {
			case unified.PartToolCall:
				tc := ToolCall{ID: p.ToolCallID, Type: "function"}
				tc.Function.Name = p.ToolName
				if len(p.ToolArgsJSON) == 0 {
					tc.Function.Arguments = "{}"
				} else {
					tc.Function.Arguments = string(p.ToolArgsJSON)
				}
				wm.ToolCalls = append(wm.ToolCalls, tc)
			default:
				textParts = append(textParts, p)
			}
		}
		wm.RawContent = encodeContent(textParts)
		out.Messages = append(out.Messages, wm)
	}

	for _, t := range req.Tools {
		ft := FunctionTool{Type: "function"}
		ft.Function.Name = t.Name
		ft.Function.Description = t.Description
		ft.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, ft)
	}
	return out
}

// ChunkToUnified converts one streamed OpenAI chunk into a Unified chunk.
func ChunkToUnified(c *Chunk) *unified.Chunk {
	out := &unified.Chunk{ID: c.ID, Model: c.Model, Created: c.Created, Object: c.Object}
	if c.Usage != nil {
		out.Usage = &unified.Usage{InputTokens: c.Usage.PromptTokens, OutputTokens: c.Usage.CompletionTokens, TotalTokens: c.Usage.TotalTokens}
	}
	for _, ch := range c.Choices {
		d := unified.Delta{Role: unified.Role(ch.Delta.Role)}
		if ch.Delta.Content != "" {
			d.Parts = append(d.Parts, unified.DeltaPart{Kind: unified.DeltaText, Text: ch.Delta.Content})
		}
		for _, tc := range ch.Delta.ToolCalls {
			d.Parts = append(d.Parts, unified.DeltaPart{
				Kind: unified.DeltaToolCall, ToolCallID: tc.ID, ToolName: tc.Function.Name, ToolArgsJSON: tc.Function.Arguments,
			})
		}
		out.Choices = append(out.Choices, unified.ChunkChoice{Index: ch.Index, Delta: d, FinishReason: finishToUnified[ch.FinishReason]})
	}
	return out
}

// ChunkFromUnified serializes a Unified chunk as an OpenAI streamed chunk.
func ChunkFromUnified(c *unified.Chunk) *Chunk {
	out := &Chunk{ID: c.ID, Object: "chat.completion.chunk", Created: c.Created, Model: c.Model}
	if out.Created == 0 {
		out.Created = time.Now().Unix()
	}
	if c.Usage != nil {
		out.Usage = &Usage{PromptTokens: c.Usage.InputTokens, CompletionTokens: c.Usage.OutputTokens, TotalTokens: c.Usage.TotalTokens}
	}
	for _, ch := range c.Choices {
		d := DeltaMessage{Role: string(ch.Delta.Role)}
		for _, p := range ch.Delta.Parts {
			switch p.Kind {
			case unified.DeltaText:
				d.Content += p.Text
			case unified.DeltaToolCall:
				d.ToolCalls = append(d.ToolCalls, ToolCall{ID: p.ToolCallID, Type: "function", Function: struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				}{Name: p.ToolName, Arguments: p.ToolArgsJSON}})
			}
		}
		out.Choices = append(out.Choices, ChunkChoice{Index: ch.Index, Delta: d, FinishReason: finishFromUnified[ch.FinishReason]})
	}
	return out
}

// ResponseToUnified converts an OpenAI response into the Unified IR.
func ResponseToUnified(resp *Response) *unified.Response {
	out := &unified.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
		Object:  resp.Object,
	}
	if resp.Usage != nil {
		out.Usage = &unified.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	for _, c := range resp.Choices {
		um := unified.Message{Role: unified.Role(c.Message.Role), Content: decodeContent(c.Message.RawContent)}
		for _, tc := range c.Message.ToolCalls {
			um.Content = append(um.Content, unified.ContentPart{
				Kind:         unified.PartToolCall,
				ToolCallID:   tc.ID,
				ToolName:     tc.Function.Name,
				ToolArgsJSON: json.RawMessage(tc.Function.Arguments),
			})
		}
		out.Choices = append(out.Choices, unified.Choice{
			Index:        c.Index,
			Message:      um,
			FinishReason: finishToUnified[c.FinishReason],
		})
	}
	return out
}

// ResponseFromUnified serializes the Unified IR as an OpenAI response.
// A fresh chat-completion id is minted whenever the caller indicates the
// source dialect was not already OpenAI.
func ResponseFromUnified(resp *unified.Response, mintID bool) *Response {
	id := resp.ID
	if mintID || id == "" {
		id = "chatcmpl-" + snowflake.NextString()
	}
	out := &Response{
		ID:      id,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
	}
	if out.Created == 0 {
		out.Created = time.Now().Unix()
	}
	if resp.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	for _, c := range resp.Choices {
		wm := Message{Role: string(c.Message.Role)}
		var textParts []unified.ContentPart
		for _, p := range c.Message.Content {
			if p.Kind == unified.PartToolCall {
				tc := ToolCall{ID: p.ToolCallID, Type: "function"}
				tc.Function.Name = p.ToolName
				tc.Function.Arguments = string(p.ToolArgsJSON)
				wm.ToolCalls = append(wm.ToolCalls, tc)
				continue
			}
			textParts = append(textParts, p)
		}
		wm.RawContent = encodeContent(textParts)
		out.Choices = append(out.Choices, Choice{
			Index:        c.Index,
			Message:      wm,
			FinishReason: finishFromUnified[c.FinishReason],
		})
	}
	return out
}
