package dispatch

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// extractCredential pulls the raw client-presented credential for dialect
// d out of the request:
//   - OpenAI: Authorization: Bearer <key>, or ?key=<key>
//   - Anthropic: x-api-key: <key>
//   - Gemini: ?key=<key>
func extractCredential(c *gin.Context, d clientDialect) string {
	switch d {
	case dialectAnthropic:
		return c.GetHeader("x-api-key")
	case dialectGemini:
		return c.Query("key")
	default: // dialectOpenAI
		if auth := c.GetHeader("Authorization"); auth != "" {
			return strings.TrimPrefix(auth, "Bearer ")
		}
		return c.Query("key")
	}
}
