package dispatch

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the client-facing HTTP surface onto r. It is
// called once at process start by cmd/gatewayd after Deps is built.
func (d *Deps) RegisterRoutes(r gin.IRouter) {
	openaiGroup := r.Group("/openai")
	openaiGroup.POST("/chat/completions", d.handleOpenAIChat)
	openaiGroup.GET("/models", d.handleOpenAIModelList)
	openaiGroup.POST("/embeddings", d.handlePassthrough(passthroughEndpoint{
		dialect:    dialectOpenAI,
		modelField: "model",
		path:       "/v1/embeddings",
	}))
	openaiGroup.POST("/rerank", d.handlePassthrough(passthroughEndpoint{
		dialect:    dialectOpenAI,
		modelField: "model",
		path:       "/v1/rerank",
	}))

	geminiGroup := r.Group("/gemini/v1beta")
	geminiGroup.POST("/models/:modelAction", d.handleGeminiDispatch)
	geminiGroup.GET("/models", d.handleGeminiModelList)

	anthropicGroup := r.Group("/anthropic")
	anthropicGroup.POST("/v1/messages", d.handleAnthropicMessages)
	anthropicGroup.GET("/v1/models", d.handleAnthropicModelList)
}

// handleGeminiDispatch routes POST /gemini/v1beta/models/{model}:{action}
// to the generateContent pair or to the countTokens-family passthrough,
// since gin matches the whole "model:action" literal as a single
// :modelAction segment and only the action suffix tells them apart.
func (d *Deps) handleGeminiDispatch(c *gin.Context) {
	_, action, ok := strings.Cut(c.Param("modelAction"), ":")
	if !ok {
		writeAPIError(c, clientInputError("malformed gemini model:action path segment"))
		return
	}
	switch action {
	case "generateContent", "streamGenerateContent":
		d.handleGeminiGenerateContent(c)
	case "countTokens", "countMessageTokens", "countTextTokens":
		d.handleGeminiCountTokens(c)
	default:
		writeAPIError(c, clientInputError("unsupported gemini action: "+action))
	}
}
