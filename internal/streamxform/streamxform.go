// Package streamxform implements the per-stream StreamTransformer: it
// wraps the Unified IR translators with the state a
// single streamed request/response needs (a stable chunk id, whether the
// role/content-block preamble has been emitted yet) and renders the
// result in the target dialect's wire shape.
package streamxform

import (
	"encoding/json"
	"strings"

	"github.com/onehub/llmgate/internal/dialect/anthropic"
	"github.com/onehub/llmgate/internal/dialect/gemini"
	"github.com/onehub/llmgate/internal/dialect/ollama"
	"github.com/onehub/llmgate/internal/dialect/openai"
	"github.com/onehub/llmgate/internal/snowflake"
	"github.com/onehub/llmgate/internal/sse"
	"github.com/onehub/llmgate/internal/unified"
)

// Dialect names a wire protocol a stream can be read from or rendered to.
type Dialect string

const (
	OpenAI    Dialect = "openai"
	Gemini    Dialect = "gemini"
	Anthropic Dialect = "anthropic"
	Ollama    Dialect = "ollama"
)

// OutEvent is one unit of output: either an SSE event (possibly with a
// named `event:` field) or, for an Ollama target, one NDJSON line.
type OutEvent struct {
	EventType string
	Data      string
}

// Render serializes the event in the wire shape target expects.
func (e OutEvent) Render(target Dialect) []byte {
	if target == Ollama {
		return []byte(e.Data + "\n")
	}
	var b strings.Builder
	if e.EventType != "" {
		b.WriteString("event: ")
		b.WriteString(e.EventType)
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.WriteString(e.Data)
	b.WriteString("\n\n")
	return []byte(b.String())
}

var malformedEvent = OutEvent{Data: "{}"}

var anthropicStopFromUnified = map[unified.FinishReason]string{
	unified.FinishStop:          "end_turn",
	unified.FinishLength:        "max_tokens",
	unified.FinishToolCalls:     "tool_use",
	unified.FinishContentFilter: "end_turn",
}

var anthropicStopToUnified = map[string]unified.FinishReason{
	"end_turn":      unified.FinishStop,
	"max_tokens":    unified.FinishLength,
	"stop_sequence": unified.FinishStop,
	"tool_use":      unified.FinishToolCalls,
}

// Transformer holds the per-stream translation state: source and
// target dialect, whether the id/preamble has been emitted, and the
// Anthropic target's open-content-block bookkeeping.
type Transformer struct {
	Source, Target Dialect

	id    string
	idSet bool
	model string

	messageStartSent bool
	blockOpen        bool

	pendingToolID   string
	pendingToolName string

	usage *unified.Usage
}

// Usage returns the last non-nil usage block observed across the stream,
// if any. OpenAI, Gemini and Ollama sources carry usage inline; Anthropic's
// usage arrives split across message_start (input tokens) and
// message_delta (output tokens) and is combined by summing the two.
func (t *Transformer) Usage() *unified.Usage {
	return t.usage
}

func (t *Transformer) observeUsage(u *unified.Usage) {
	if u == nil {
		return
	}
	t.usage = u
}

// New returns a fresh transformer for one stream.
func New(source, target Dialect) *Transformer {
	return &Transformer{Source: source, Target: target}
}

func (t *Transformer) ensureID(candidate string) string {
	if !t.idSet {
		if candidate != "" {
			t.id = candidate
		} else {
			t.id = "chatcmpl-" + snowflake.NextString()
		}
		t.idSet = true
	}
	return t.id
}

// TransformSSE consumes one parsed SSE event from an SSE-based source
// (OpenAI, Gemini, Anthropic) and returns the events to forward plus
// whether the stream has ended.
func (t *Transformer) TransformSSE(ev sse.Event) (out []OutEvent, finished bool, err error) {
	switch t.Source {
	case OpenAI:
		return t.fromOpenAI(ev.Data)
	case Gemini:
		return t.fromGemini(ev.Data)
	case Anthropic:
		return t.fromAnthropic(ev)
	default:
		return []OutEvent{malformedEvent}, false, nil
	}
}

// TransformLine consumes one NDJSON line from an Ollama source.
func (t *Transformer) TransformLine(line []byte) (out []OutEvent, finished bool, err error) {
	var resp ollama.Response
	if jsonErr := json.Unmarshal(line, &resp); jsonErr != nil {
		return []OutEvent{malformedEvent}, false, nil
	}
	uc := ollama.ChunkToUnified(&resp)
	uc.ID = t.ensureID("")
	t.observeUsage(uc.Usage)
	events := t.emit(uc)
	if resp.Done && t.Target == OpenAI {
		events = append(events, OutEvent{Data: "[DONE]"})
	}
	return events, resp.Done, nil
}

func (t *Transformer) fromOpenAI(data string) ([]OutEvent, bool, error) {
	if data == "[DONE]" {
		if t.Target == OpenAI {
			return []OutEvent{{Data: "[DONE]"}}, true, nil
		}
		return nil, true, nil
	}
	var chunk openai.Chunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return []OutEvent{malformedEvent}, false, nil
	}
	uc := openai.ChunkToUnified(&chunk)
	uc.ID = t.ensureID(chunk.ID)
	t.observeUsage(uc.Usage)
	return t.emit(uc), false, nil
}

func (t *Transformer) fromGemini(data string) ([]OutEvent, bool, error) {
	var resp gemini.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return []OutEvent{malformedEvent}, false, nil
	}
	uc := gemini.ChunkToUnified(&resp)
	uc.ID = t.ensureID("")
	t.observeUsage(uc.Usage)
	events := t.emit(uc)

	finished := false
	for _, c := range uc.Choices {
		if c.FinishReason != "" {
			finished = true
		}
	}
	// Gemini carries no end-of-stream sentinel; when the candidate's
	// finish_reason fires and the target is OpenAI, synthesize [DONE]
	// so downstream OpenAI-speaking clients see stream termination.
	if finished && t.Target == OpenAI {
		events = append(events, OutEvent{Data: "[DONE]"})
	}
	return events, finished, nil
}

func (t *Transformer) fromAnthropic(ev sse.Event) ([]OutEvent, bool, error) {
	switch ev.Event {
	case "message_start":
		var m anthropic.StreamMessageStart
		if err := json.Unmarshal([]byte(ev.Data), &m); err != nil {
			return []OutEvent{malformedEvent}, false, nil
		}
		t.ensureID(m.Message.ID)
		t.model = m.Message.Model
		var withUsage struct {
			Message struct {
				Usage anthropic.Usage `json:"usage"`
			} `json:"message"`
		}
		if json.Unmarshal([]byte(ev.Data), &withUsage) == nil && withUsage.Message.Usage.InputTokens > 0 {
			in := withUsage.Message.Usage.InputTokens
			t.observeUsage(&unified.Usage{InputTokens: in, TotalTokens: in})
		}
		return nil, false, nil
	case "content_block_start":
		var s anthropic.StreamContentBlockStart
		if err := json.Unmarshal([]byte(ev.Data), &s); err != nil {
			return []OutEvent{malformedEvent}, false, nil
		}
		if s.ContentBlock.Type == "tool_use" {
			t.pendingToolID = s.ContentBlock.ID
			t.pendingToolName = s.ContentBlock.Name
		}
		return nil, false, nil
	case "content_block_delta":
		var d anthropic.StreamContentBlockDelta
		if err := json.Unmarshal([]byte(ev.Data), &d); err != nil {
			return []OutEvent{malformedEvent}, false, nil
		}
		var part unified.DeltaPart
		switch {
		case d.Delta.Text != "":
			part = unified.DeltaPart{Kind: unified.DeltaText, Text: d.Delta.Text}
		case d.Delta.PartialJSON != "":
			part = unified.DeltaPart{
				Kind: unified.DeltaToolCall, ToolCallID: t.pendingToolID,
				ToolName: t.pendingToolName, ToolArgsJSON: d.Delta.PartialJSON,
			}
		default:
			return nil, false, nil
		}
		uc := &unified.Chunk{ID: t.ensureID(""), Model: t.model}
		uc.Choices = []unified.ChunkChoice{{Index: 0, Delta: unified.Delta{Parts: []unified.DeltaPart{part}}}}
		return t.emit(uc), false, nil
	case "content_block_stop":
		return nil, false, nil
	case "message_delta":
		var md anthropic.StreamMessageDelta
		if err := json.Unmarshal([]byte(ev.Data), &md); err != nil {
			return []OutEvent{malformedEvent}, false, nil
		}
		uc := &unified.Chunk{ID: t.ensureID(""), Model: t.model}
		uc.Choices = []unified.ChunkChoice{{Index: 0, FinishReason: anthropicStopToUnified[md.Delta.StopReason]}}
		if md.Usage.OutputTokens > 0 {
			u := &unified.Usage{OutputTokens: md.Usage.OutputTokens}
			if t.usage != nil {
				u.InputTokens = t.usage.InputTokens
			}
			u.TotalTokens = u.InputTokens + u.OutputTokens
			t.observeUsage(u)
		}
		return t.emit(uc), false, nil
	case "message_stop":
		if t.Target == OpenAI {
			return []OutEvent{{Data: "[DONE]"}}, true, nil
		}
		return nil, true, nil
	case "ping":
		return nil, false, nil
	default:
		return []OutEvent{malformedEvent}, false, nil
	}
}

// emit renders one Unified chunk in the target dialect's wire shape.
func (t *Transformer) emit(uc *unified.Chunk) []OutEvent {
	switch t.Target {
	case OpenAI:
		b, _ := json.Marshal(openai.ChunkFromUnified(uc))
		return []OutEvent{{Data: string(b)}}
	case Gemini:
		b, _ := json.Marshal(gemini.ChunkFromUnified(uc))
		return []OutEvent{{Data: string(b)}}
	case Ollama:
		b, _ := json.Marshal(ollama.ChunkFromUnified(uc))
		return []OutEvent{{Data: string(b)}}
	case Anthropic:
		return t.emitAnthropic(uc)
	default:
		return nil
	}
}

// emitAnthropic renders the multi-event Anthropic protocol in order:
// message_start (once), content_block_start (once, on first content),
// content_block_delta*, and on finish content_block_stop + message_delta
// + message_stop.
func (t *Transformer) emitAnthropic(uc *unified.Chunk) []OutEvent {
	var events []OutEvent

	if !t.messageStartSent {
		t.messageStartSent = true
		msg := map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id":      t.id,
				"type":    "message",
				"role":    "assistant",
				"model":   uc.Model,
				"content": []any{},
				"usage":   map[string]any{"input_tokens": 0, "output_tokens": 0},
			},
		}
		b, _ := json.Marshal(msg)
		events = append(events, OutEvent{EventType: "message_start", Data: string(b)})
	}

	var finish unified.FinishReason
	for _, ch := range uc.Choices {
		for _, p := range ch.Delta.Parts {
			if p.Kind != unified.DeltaText && p.Kind != unified.DeltaToolCall {
				continue
			}
			if !t.blockOpen {
				t.blockOpen = true
				cb := map[string]any{"type": "text", "text": ""}
				if p.Kind == unified.DeltaToolCall {
					cb = map[string]any{"type": "tool_use", "id": p.ToolCallID, "name": p.ToolName, "input": map[string]any{}}
				}
				start := map[string]any{"type": "content_block_start", "index": 0, "content_block": cb}
				b, _ := json.Marshal(start)
				events = append(events, OutEvent{EventType: "content_block_start", Data: string(b)})
			}
			var delta map[string]any
			if p.Kind == unified.DeltaText {
				delta = map[string]any{"type": "text_delta", "text": p.Text}
			} else {
				delta = map[string]any{"type": "input_json_delta", "partial_json": p.ToolArgsJSON}
			}
			d, _ := json.Marshal(map[string]any{"type": "content_block_delta", "index": 0, "delta": delta})
			events = append(events, OutEvent{EventType: "content_block_delta", Data: string(d)})
		}
		if ch.FinishReason != "" {
			finish = ch.FinishReason
		}
	}

	if finish != "" {
		if t.blockOpen {
			stop, _ := json.Marshal(map[string]any{"type": "content_block_stop", "index": 0})
			events = append(events, OutEvent{EventType: "content_block_stop", Data: string(stop)})
			t.blockOpen = false
		}
		md, _ := json.Marshal(map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": anthropicStopFromUnified[finish]},
			"usage": map[string]any{"output_tokens": 0},
		})
		events = append(events, OutEvent{EventType: "message_delta", Data: string(md)})
		ms, _ := json.Marshal(map[string]any{"type": "message_stop"})
		events = append(events, OutEvent{EventType: "message_stop", Data: string(ms)})
	}
	return events
}
