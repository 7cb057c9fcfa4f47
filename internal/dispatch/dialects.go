package dispatch

import (
	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/streamxform"
)

// clientDialect names the wire protocol a client-facing route speaks.
// Unlike streamxform.Dialect (source or target of one translation), this
// is always a dispatcher-level, client-facing concept.
type clientDialect string

const (
	dialectOpenAI    clientDialect = "openai"
	dialectGemini    clientDialect = "gemini"
	dialectAnthropic clientDialect = "anthropic"
)

func (d clientDialect) wire() streamxform.Dialect {
	switch d {
	case dialectGemini:
		return streamxform.Gemini
	case dialectAnthropic:
		return streamxform.Anthropic
	default:
		return streamxform.OpenAI
	}
}

// providerWireDialect maps a configured Provider's type to the wire
// protocol the translator pivots to/from when talking to it. Vertex uses
// Gemini's generateContent shape; VertexOpenAI uses the OpenAI-compatible
// shape Vertex also exposes.
func providerWireDialect(pt entity.ProviderType) streamxform.Dialect {
	switch pt {
	case entity.ProviderGemini, entity.ProviderVertex:
		return streamxform.Gemini
	case entity.ProviderAnthropic:
		return streamxform.Anthropic
	case entity.ProviderOllama:
		return streamxform.Ollama
	default: // ProviderOpenAI, ProviderVertexOpenAI
		return streamxform.OpenAI
	}
}
