package dispatch

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Laisky/zap"
	"github.com/onehub/llmgate/internal/access"
	"github.com/onehub/llmgate/internal/auth"
	"github.com/onehub/llmgate/internal/customfield"
	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/logger"
	"github.com/onehub/llmgate/internal/metrics"
	"github.com/onehub/llmgate/internal/resolve"
)

// passthroughEndpoint is a client route outside Unified IR scope: the
// body is forwarded to the upstream path unmodified, with the same
// credential/resolution/access-control/custom-field machinery as the
// chat path.
type passthroughEndpoint struct {
	dialect    clientDialect
	modelField string // gjson path to the request's model name
	path       string // upstream path suffix appended after the provider endpoint
}

func (d *Deps) handlePassthrough(ep passthroughEndpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		requestID := uuid.NewString()
		c.Header("x-request-id", requestID)

		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeAPIError(c, clientInputError("read request body: "+err.Error()))
			return
		}
		modelName := ""
		if v, ok := c.Get(modelNameContextKey); ok {
			modelName, _ = v.(string)
		}
		if modelName == "" {
			modelName = gjson.GetBytes(rawBody, ep.modelField).String()
		}
		if modelName == "" {
			writeAPIError(c, clientInputError("missing "+ep.modelField+" in request body"))
			return
		}

		credential := extractCredential(c, ep.dialect)
		if credential == "" {
			writeAPIError(c, unauthorizedError("missing credential"))
			return
		}
		identity, err := auth.Authenticate(ctx, d.Cache, d.DeploymentSecret, credential)
		if err != nil {
			writeAPIError(c, unauthorizedError(err.Error()))
			return
		}

		result, err := resolve.Resolve(ctx, d.Cache, modelName)
		if err != nil {
			writeAPIError(c, clientInputError(err.Error()))
			return
		}
		provider, model := result.Provider, result.Model

		policy, apiErr := d.loadPolicy(ctx, identity.Key.AccessControlPolicy)
		if apiErr != nil {
			writeAPIError(c, apiErr)
			return
		}
		if !access.Evaluate(policy, provider.ID, model.ID).Allowed {
			writeAPIError(c, forbiddenError("access denied"))
			return
		}

		providerKey, apiErr := d.selectProviderKey(ctx, provider.ID)
		if apiErr != nil {
			writeAPIError(c, apiErr)
			return
		}

		providerFields, err := d.Cache.GetCustomFieldsForEntity(ctx, provider.ID)
		if err != nil {
			writeAPIError(c, misconfigurationError("load provider custom fields: "+err.Error()))
			return
		}
		modelFields, err := d.Cache.GetCustomFieldsForEntity(ctx, model.ID)
		if err != nil {
			writeAPIError(c, misconfigurationError("load model custom fields: "+err.Error()))
			return
		}
		query := url.Values{}
		header := c.Request.Header.Clone()
		rawBody = customfield.Apply(customfield.Resolve(providerFields, modelFields), rawBody, query, header)

		if apiErr := d.applyUpstreamAuth(ctx, provider, providerKey, query, header); apiErr != nil {
			writeAPIError(c, apiErr)
			return
		}
		header.Set("Content-Type", "application/json")

		upstreamURL := strings.TrimRight(provider.Endpoint, "/") + ep.path
		if len(query) > 0 {
			upstreamURL += "?" + query.Encode()
		}

		upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(rawBody))
		if err != nil {
			writeAPIError(c, misconfigurationError("build upstream request: "+err.Error()))
			return
		}
		upstreamReq.Header = header

		base := entity.RequestLog{
			RequestID:      requestID,
			SystemAPIKeyID: identity.Key.ID,
			UserExternalID: identity.Subject,
			Channel:        identity.Channel,
			ProviderID:     provider.ID,
			ModelID:        model.ID,
			ModelName:      model.ModelName,
			CreatedTS:      time.Now().Unix(),
		}

		resp, err := d.httpClient(provider.UseProxy).Do(upstreamReq)
		if err != nil {
			entry := base
			entry.Status = entity.StatusError
			entry.CompletionTS = time.Now().Unix()
			d.Logs.Write(entry)
			metrics.RequestsTotal.WithLabelValues(string(ep.dialect), provider.ProviderKey, string(entity.StatusError)).Inc()
			writeAPIError(c, upstreamUnreachableError(err.Error()))
			return
		}
		defer resp.Body.Close()
		d.noteUpstreamOutcome(providerKey.ID, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			logger.L.Error("failed to read passthrough upstream body", zap.Error(err))
		}

		entry := base
		entry.CompletionTS = time.Now().Unix()
		entry.UpstreamStatus = resp.StatusCode
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			entry.Status = entity.StatusError
			entry.UpstreamBody = string(body)
		} else {
			entry.Status = entity.StatusSuccess
		}
		d.Logs.Write(entry)
		metrics.RequestsTotal.WithLabelValues(string(ep.dialect), provider.ProviderKey, string(entry.Status)).Inc()

		c.Status(resp.StatusCode)
		c.Header("Content-Type", "application/json")
		_, _ = c.Writer.Write(body)
	}
}

// handleGeminiCountTokens serves the three Gemini utility actions that
// share one path shape: countTokens, countMessageTokens, and
// countTextTokens. The action name only discriminates routing upstream;
// the body is
// forwarded unmodified.
func (d *Deps) handleGeminiCountTokens(c *gin.Context) {
	modelName, action, ok := strings.Cut(c.Param("modelAction"), ":")
	if !ok || modelName == "" {
		writeAPIError(c, clientInputError("malformed gemini model:action path segment"))
		return
	}
	d.handlePassthrough(passthroughEndpoint{
		dialect: dialectGemini,
		path:    "/v1beta/models/" + url.PathEscape(modelName) + ":" + action,
	})(withModelName(c, modelName))
}

// withModelName stashes a pre-resolved model name on the gin context so
// handlePassthrough's generic body-sniffing path can be bypassed for
// Gemini, whose model name lives in the URL, not the body.
func withModelName(c *gin.Context, modelName string) *gin.Context {
	c.Set(modelNameContextKey, modelName)
	return c
}

const modelNameContextKey = "llmgate.model_name"
