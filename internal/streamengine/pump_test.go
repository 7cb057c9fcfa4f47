package streamengine_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/streamengine"
	"github.com/onehub/llmgate/internal/streamxform"
)

func TestPumpForwardsOpenAIChunksAndStopsAtDone(t *testing.T) {
	upstream := strings.NewReader(
		`data: {"id":"abc","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"hi"}}]}` + "\n\n" +
			"data: [DONE]\n\n",
	)
	var out bytes.Buffer
	tf := streamxform.New(streamxform.OpenAI, streamxform.OpenAI)

	result := streamengine.Pump(context.Background(), upstream, &out, nil, tf, streamxform.OpenAI)
	require.NoError(t, result.Err)
	assert.Contains(t, out.String(), `"hi"`)
	assert.Contains(t, out.String(), "[DONE]")
	assert.True(t, result.FirstChunkUnix > 0)
}

func TestPumpConsumesOllamaLinesAsNDJSON(t *testing.T) {
	upstream := strings.NewReader(
		`{"model":"llama3","message":{"role":"assistant","content":"hel"},"done":false}` + "\n" +
			`{"model":"llama3","message":{"role":"assistant","content":"lo"},"done":true,"prompt_eval_count":3,"eval_count":2}` + "\n",
	)
	var out bytes.Buffer
	tf := streamxform.New(streamxform.Ollama, streamxform.OpenAI)

	result := streamengine.Pump(context.Background(), upstream, &out, nil, tf, streamxform.OpenAI)
	require.NoError(t, result.Err)
	assert.Contains(t, out.String(), `"hel"`)
	assert.Contains(t, out.String(), `"lo"`)
	assert.True(t, strings.HasSuffix(out.String(), "data: [DONE]\n\n"))
}

func TestPumpStopsOnContextCancellation(t *testing.T) {
	upstream := &blockingReader{}
	var out bytes.Buffer
	tf := streamxform.New(streamxform.OpenAI, streamxform.OpenAI)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := streamengine.Pump(ctx, upstream, &out, nil, tf, streamxform.OpenAI)
	assert.Error(t, result.Err)
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}
