package dispatch

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
	"github.com/tidwall/sjson"

	"github.com/onehub/llmgate/internal/dialect/anthropic"
	"github.com/onehub/llmgate/internal/dialect/gemini"
	"github.com/onehub/llmgate/internal/dialect/ollama"
	"github.com/onehub/llmgate/internal/dialect/openai"
	"github.com/onehub/llmgate/internal/streamxform"
	"github.com/onehub/llmgate/internal/unified"
)

// encodeUpstream serializes a Unified request in the wire shape a
// provider of wireDialect expects, writing wireModelName into whichever
// field that dialect carries a model name in.
func encodeUpstream(wireDialect streamxform.Dialect, req *unified.Request, wireModelName string) ([]byte, error) {
	switch wireDialect {
	case streamxform.Gemini:
		return json.Marshal(gemini.FromUnified(req))
	case streamxform.Anthropic:
		out := anthropic.FromUnified(req)
		out.Model = wireModelName
		return json.Marshal(out)
	case streamxform.Ollama:
		out := ollama.FromUnified(req)
		out.Model = wireModelName
		return json.Marshal(out)
	default:
		out := openai.FromUnified(req)
		out.Model = wireModelName
		return json.Marshal(out)
	}
}

// rewritePassthroughRequest reuses a client body verbatim when the
// provider speaks the client's dialect, rewriting only the fields the
// gateway owns: the wire-level model name and the authoritative stream
// flag. Gemini carries both in the URL, so its body passes untouched.
func rewritePassthroughRequest(raw []byte, wireDialect streamxform.Dialect, wireModelName string, stream bool) ([]byte, error) {
	if wireDialect == streamxform.Gemini {
		return raw, nil
	}
	out, err := sjson.SetBytes(raw, "model", wireModelName)
	if err != nil {
		return nil, errors.Wrap(err, "rewrite model field")
	}
	out, err = sjson.SetBytes(out, "stream", stream)
	if err != nil {
		return nil, errors.Wrap(err, "rewrite stream field")
	}
	return out, nil
}

// decodeUpstreamResponse parses a non-streaming upstream body in
// wireDialect's shape into the Unified IR.
func decodeUpstreamResponse(wireDialect streamxform.Dialect, body []byte) (*unified.Response, error) {
	switch wireDialect {
	case streamxform.Gemini:
		var resp gemini.Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrap(err, "decode gemini response")
		}
		return gemini.ResponseToUnified(&resp), nil
	case streamxform.Anthropic:
		var resp anthropic.Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrap(err, "decode anthropic response")
		}
		return anthropic.ResponseToUnified(&resp), nil
	case streamxform.Ollama:
		var resp ollama.Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrap(err, "decode ollama response")
		}
		return ollama.ResponseToUnified(&resp), nil
	default:
		var resp openai.Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrap(err, "decode openai response")
		}
		return openai.ResponseToUnified(&resp), nil
	}
}

// encodeClientResponse renders a Unified response in the client-facing
// dialect's wire shape. mintFreshID is true whenever the upstream
// dialect differs from OpenAI: translating Gemini/Anthropic -> OpenAI
// always mints a fresh id.
func encodeClientResponse(d clientDialect, resp *unified.Response, mintFreshID bool) ([]byte, error) {
	switch d {
	case dialectGemini:
		return json.Marshal(gemini.ResponseFromUnified(resp))
	case dialectAnthropic:
		return json.Marshal(anthropic.ResponseFromUnified(resp))
	default:
		return json.Marshal(openai.ResponseFromUnified(resp, mintFreshID))
	}
}
