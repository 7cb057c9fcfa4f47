package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/onehub/llmgate/internal/access"
	"github.com/onehub/llmgate/internal/auth"
	"github.com/onehub/llmgate/internal/cost"
	"github.com/onehub/llmgate/internal/customfield"
	"github.com/onehub/llmgate/internal/dialect/anthropic"
	"github.com/onehub/llmgate/internal/dialect/gemini"
	"github.com/onehub/llmgate/internal/dialect/openai"
	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/logger"
	"github.com/onehub/llmgate/internal/metrics"
	"github.com/onehub/llmgate/internal/resolve"
	"github.com/onehub/llmgate/internal/streamengine"
	"github.com/onehub/llmgate/internal/streamxform"
	"github.com/onehub/llmgate/internal/unified"
)

// parsedClientRequest is the common shape the three dialect-specific
// handlers reduce their wire body to before handing off to the shared
// hot-path pipeline.
type parsedClientRequest struct {
	modelName string
	stream    bool
	unified   *unified.Request
	// raw is the verbatim client body, reused byte-for-byte (with only
	// the model/stream fields rewritten) when the provider speaks the
	// same dialect as the client.
	raw []byte
}

// handleOpenAIChat serves POST /openai/chat/completions.
func (d *Deps) handleOpenAIChat(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		writeAPIError(c, clientInputError("read request body: "+err.Error()))
		return
	}
	var body openai.Request
	if err := json.Unmarshal(raw, &body); err != nil {
		writeAPIError(c, clientInputError("invalid request body: "+err.Error()))
		return
	}
	ureq, err := openai.ToUnified(&body)
	if err != nil {
		writeAPIError(c, clientInputError(err.Error()))
		return
	}
	ureq.Stream = body.Stream
	d.proxy(c, dialectOpenAI, parsedClientRequest{modelName: body.Model, stream: body.Stream, unified: ureq, raw: raw})
}

// handleAnthropicMessages serves POST /anthropic/v1/messages.
func (d *Deps) handleAnthropicMessages(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		writeAPIError(c, clientInputError("read request body: "+err.Error()))
		return
	}
	var body anthropic.Request
	if err := json.Unmarshal(raw, &body); err != nil {
		writeAPIError(c, clientInputError("invalid request body: "+err.Error()))
		return
	}
	ureq := anthropic.ToUnified(&body)
	ureq.Stream = body.Stream
	d.proxy(c, dialectAnthropic, parsedClientRequest{modelName: body.Model, stream: body.Stream, unified: ureq, raw: raw})
}

// handleGeminiGenerateContent serves both
// POST /gemini/v1beta/models/{model}:generateContent and
// POST /gemini/v1beta/models/{model}:streamGenerateContent. gin routes a
// single literal path segment, so the model name and action both live in
// one :modelAction parameter that we split on ":".
func (d *Deps) handleGeminiGenerateContent(c *gin.Context) {
	modelName, action, ok := strings.Cut(c.Param("modelAction"), ":")
	if !ok || modelName == "" {
		writeAPIError(c, clientInputError("malformed gemini model:action path segment"))
		return
	}
	stream := action == "streamGenerateContent"

	raw, err := c.GetRawData()
	if err != nil {
		writeAPIError(c, clientInputError("read request body: "+err.Error()))
		return
	}
	var body gemini.Request
	if err := json.Unmarshal(raw, &body); err != nil {
		writeAPIError(c, clientInputError("invalid request body: "+err.Error()))
		return
	}
	ureq := gemini.ToUnified(&body)
	ureq.Stream = stream
	d.proxy(c, dialectGemini, parsedClientRequest{modelName: modelName, stream: stream, unified: ureq, raw: raw})
}

// proxy is the shared hot-path pipeline: it
// authenticates the caller, resolves the model, evaluates access control,
// translates/prepares the upstream request, drives it through the stream
// engine, and logs the terminal outcome.
func (d *Deps) proxy(c *gin.Context, dialect clientDialect, req parsedClientRequest) {
	ctx := c.Request.Context()
	requestID := uuid.NewString()
	c.Header("x-request-id", requestID)

	credential := extractCredential(c, dialect)
	if credential == "" {
		writeAPIError(c, unauthorizedError("missing credential"))
		return
	}
	identity, err := auth.Authenticate(ctx, d.Cache, d.DeploymentSecret, credential)
	if err != nil {
		writeAPIError(c, unauthorizedError(err.Error()))
		return
	}

	result, err := resolve.Resolve(ctx, d.Cache, req.modelName)
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
	decision := access.Evaluate(policy, provider.ID, model.ID)
	if !decision.Allowed {
		writeAPIError(c, forbiddenError(decision.Reason))
		return
	}

	wireDialect := providerWireDialect(provider.ProviderType)
	req.unified.Messages = unified.FilterEmptyContent(req.unified.Messages)
	logDebugDrops(wireDialect, req.unified)

	var passthroughBody []byte
	if wireDialect == dialect.wire() {
		passthroughBody = req.raw
	}
	body, query, header, apiErr := d.prepareUpstreamRequest(ctx, provider, model, wireDialect, req.unified, passthroughBody, c.Request.Header)
	if apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}

	providerKey, apiErr := d.selectProviderKey(ctx, provider.ID)
	if apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}
	if apiErr := d.applyUpstreamAuth(ctx, provider, providerKey, query, header); apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}

	upstreamURL := buildUpstreamURL(provider, model, wireDialect, req.stream)
	if len(query) > 0 {
		upstreamURL += "?" + query.Encode()
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		writeAPIError(c, misconfigurationError("build upstream request: "+err.Error()))
		return
	}
	upstreamReq.Header = header
	upstreamReq.Header.Set("Content-Type", "application/json")

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

	guard := streamengine.NewContextGuard(func(status entity.RequestStatus, completionTS int64) {
		entry := base
		entry.Status = status
		entry.CompletionTS = completionTS
		d.Logs.Write(entry)
		metrics.RequestsTotal.WithLabelValues(string(dialect), provider.ProviderKey, string(status)).Inc()
	})
	defer guard.Release()

	client := d.httpClient(provider.UseProxy)
	sendStart := time.Now()
	resp, err := client.Do(upstreamReq)
	if err != nil {
		now := time.Now().Unix()
		entry := base
		entry.Status = entity.StatusError
		entry.CompletionTS = now
		d.Logs.Write(entry)
		metrics.RequestsTotal.WithLabelValues(string(dialect), provider.ProviderKey, string(entity.StatusError)).Inc()
		guard.Disarm()
		writeAPIError(c, upstreamUnreachableError(err.Error()))
		return
	}
	defer resp.Body.Close()
	metrics.UpstreamLatencySeconds.WithLabelValues(string(dialect), provider.ProviderKey, "connect").Observe(time.Since(sendStart).Seconds())
	d.noteUpstreamOutcome(providerKey.ID, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.forwardUpstreamError(c, resp, base, dialect, provider.ProviderKey, guard)
		return
	}

	if req.stream {
		d.streamResponse(c, resp, dialect, wireDialect, provider.ProviderKey, base, guard)
		return
	}
	d.nonStreamResponse(c, resp, dialect, wireDialect, model, provider.ProviderKey, base, guard)
}

// loadPolicy resolves a SystemApiKey's optional ACP. A nil policyID is
// unconditionally allowed; a dangling reference is a 500-class
// fault.
func (d *Deps) loadPolicy(ctx context.Context, policyID *int64) (*entity.AccessControlPolicy, *apiError) {
	if policyID == nil {
		return nil, nil
	}
	policy, found, err := d.Cache.GetACP(ctx, *policyID)
	if err != nil {
		logger.L.Error("access control policy lookup failed", zap.Int64("policy_id", *policyID), zap.Error(err))
		return nil, misconfigurationError("access control policy lookup failed")
	}
	if !found {
		logger.L.Error("access control policy referenced by system api key not found", zap.Int64("policy_id", *policyID))
		return nil, misconfigurationError("access control policy not found")
	}
	return &policy, nil
}

// prepareUpstreamRequest translates the Unified request into the
// provider's wire shape, then applies the provider+model CustomField
// union. When the client already spoke the provider's dialect the raw
// bytes are reused with only the model/stream fields rewritten, skipping
// the decode/encode round trip. The client's request headers are carried
// over as the starting header set; applyUpstreamAuth strips the
// hop-by-hop ones and installs the upstream credential afterward.
func (d *Deps) prepareUpstreamRequest(ctx context.Context, provider entity.Provider, model entity.Model, wireDialect streamxform.Dialect, ureq *unified.Request, passthroughBody []byte, clientHeader http.Header) ([]byte, url.Values, http.Header, *apiError) {
	var body []byte
	var err error
	if passthroughBody != nil {
		body, err = rewritePassthroughRequest(passthroughBody, wireDialect, model.WireModelName(), ureq.Stream)
	} else {
		body, err = encodeUpstream(wireDialect, ureq, model.WireModelName())
	}
	if err != nil {
		return nil, nil, nil, misconfigurationError("encode upstream request: " + err.Error())
	}

	providerFields, err := d.Cache.GetCustomFieldsForEntity(ctx, provider.ID)
	if err != nil {
		return nil, nil, nil, misconfigurationError("load provider custom fields: " + err.Error())
	}
	modelFields, err := d.Cache.GetCustomFieldsForEntity(ctx, model.ID)
	if err != nil {
		return nil, nil, nil, misconfigurationError("load model custom fields: " + err.Error())
	}
	merged := customfield.Resolve(providerFields, modelFields)

	query := url.Values{}
	header := clientHeader.Clone()
	if header == nil {
		header = http.Header{}
	}
	body = customfield.Apply(merged, body, query, header)
	return body, query, header, nil
}

// selectProviderKey asks the Config Cache for the enabled ProviderApiKey
// group and picks one via the configured selection strategy.
func (d *Deps) selectProviderKey(ctx context.Context, providerID int64) (entity.ProviderApiKey, *apiError) {
	keys, err := d.Cache.GetProviderKeys(ctx, providerID)
	if err != nil {
		return entity.ProviderApiKey{}, misconfigurationError("load provider keys: " + err.Error())
	}
	enabled := make([]entity.ProviderApiKey, 0, len(keys))
	for _, k := range keys {
		if k.IsEnabled {
			enabled = append(enabled, k)
		}
	}
	if len(enabled) == 0 {
		return entity.ProviderApiKey{}, misconfigurationError("no enabled provider api key for this provider")
	}
	if d.Cooldowns != nil {
		enabled = d.Cooldowns.Filter(enabled)
	}
	return d.KeyStrategy.Select(providerID, enabled), nil
}

// providerKeyCooldown is how long a key that just 429'd or 5xx'd is
// deprioritized by selectProviderKey.
const providerKeyCooldown = 30 * time.Second

// noteUpstreamOutcome marks keyID for cooldown when the upstream status
// suggests it is temporarily unhealthy (rate-limited or erroring).
func (d *Deps) noteUpstreamOutcome(keyID int64, status int) {
	if d.Cooldowns == nil {
		return
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		d.Cooldowns.MarkCooldown(keyID, providerKeyCooldown)
	}
}

// applyUpstreamAuth strips the client's hop-by-hop request headers and
// sets the upstream credential per provider type.
func (d *Deps) applyUpstreamAuth(ctx context.Context, provider entity.Provider, key entity.ProviderApiKey, query url.Values, header http.Header) *apiError {
	switch provider.ProviderType {
	case entity.ProviderGemini:
		streamengine.PrepareUpstreamHeaders(header, "", true)
		query.Set("key", key.APIKey)
	case entity.ProviderVertex, entity.ProviderVertexOpenAI:
		streamengine.PrepareUpstreamHeaders(header, "", true)
		token, err := d.VertexTokens.AccessToken(ctx, key.ID, []byte(key.APIKey))
		if err != nil {
			return misconfigurationError("vertex oauth exchange failed: " + err.Error())
		}
		header.Set("Authorization", "Bearer "+token)
	case entity.ProviderAnthropic:
		streamengine.PrepareUpstreamHeaders(header, "", true)
		header.Set("x-api-key", key.APIKey)
	case entity.ProviderOllama:
		// Ollama deployments are typically unauthenticated.
		streamengine.PrepareUpstreamHeaders(header, "", true)
	default: // ProviderOpenAI
		streamengine.PrepareUpstreamHeaders(header, key.APIKey, false)
	}
	return nil
}

// forwardUpstreamError passes a non-2xx upstream response through
// verbatim and logs status=Error.
func (d *Deps) forwardUpstreamError(c *gin.Context, resp *http.Response, base entity.RequestLog, dialect clientDialect, providerKey string, guard *streamengine.ContextGuard) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.L.Error("failed to read non-2xx upstream body", zap.Error(err))
	}
	streamengine.CopyResponseHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	_, _ = c.Writer.Write(body)

	entry := base
	entry.Status = entity.StatusError
	entry.UpstreamStatus = resp.StatusCode
	entry.UpstreamBody = string(body)
	entry.CompletionTS = time.Now().Unix()
	d.Logs.Write(entry)
	metrics.RequestsTotal.WithLabelValues(string(dialect), providerKey, string(entity.StatusError)).Inc()
	guard.Disarm()
}

// streamResponse pumps the upstream SSE/NDJSON body through the Stream
// Engine, forwarding transformed bytes to the client as they arrive.
func (d *Deps) streamResponse(c *gin.Context, resp *http.Response, dialect clientDialect, wireDialect streamxform.Dialect, providerKey string, base entity.RequestLog, guard *streamengine.ContextGuard) {
	streamengine.CopyResponseHeaders(c.Writer.Header(), resp.Header)
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	tf := streamxform.New(wireDialect, dialect.wire())
	pumpResult := streamengine.Pump(c.Request.Context(), resp.Body, c.Writer, flush, tf, dialect.wire())

	now := time.Now().Unix()
	if pumpResult.Err != nil {
		if errors.Is(pumpResult.Err, context.Canceled) || c.Request.Context().Err() != nil {
			// Client disconnected; the deferred guard.Release() logs
			// Cancelled exactly once.
			return
		}
		entry := base
		entry.Status = entity.StatusError
		entry.CompletionTS = now
		entry.FirstChunkTS = pumpResult.FirstChunkUnix
		d.Logs.Write(entry)
		metrics.RequestsTotal.WithLabelValues(string(dialect), providerKey, string(entity.StatusError)).Inc()
		guard.Disarm()
		return
	}

	entry := base
	entry.Status = entity.StatusSuccess
	entry.CompletionTS = now
	entry.FirstChunkTS = pumpResult.FirstChunkUnix
	if u := tf.Usage(); u != nil {
		entry.InputTokens, entry.OutputTokens, entry.ReasoningTokens, entry.TotalTokens = u.InputTokens, u.OutputTokens, u.ReasoningTokens, u.TotalTokens
		d.attachCost(c.Request.Context(), &entry)
	}
	d.Logs.Write(entry)
	metrics.RequestsTotal.WithLabelValues(string(dialect), providerKey, string(entity.StatusSuccess)).Inc()
	guard.Disarm()
}

// nonStreamResponse reads the full upstream body, translates it once, and
// forwards the rendered client-dialect bytes.
func (d *Deps) nonStreamResponse(c *gin.Context, resp *http.Response, dialect clientDialect, wireDialect streamxform.Dialect, model entity.Model, providerKey string, base entity.RequestLog, guard *streamengine.ContextGuard) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		d.failNonStream(c, base, dialect, providerKey, guard, "read upstream body: "+err.Error())
		return
	}
	raw, err = streamengine.DecodeGzipIfNeeded(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		d.failNonStream(c, base, dialect, providerKey, guard, "decode gzip upstream body: "+err.Error())
		return
	}

	var outBody []byte
	var uresp *unified.Response
	if wireDialect == dialect.wire() {
		outBody = raw // identical dialects: passthrough verbatim
	} else {
		uresp, err = decodeUpstreamResponse(wireDialect, raw)
		if err != nil {
			c.Status(http.StatusOK)
			streamengine.CopyResponseHeaders(c.Writer.Header(), resp.Header)
			_, _ = c.Writer.Write(raw) // undecodable upstream body: return it untouched
			d.finishNonStream(base, dialect, providerKey, entity.StatusSuccess, nil, guard)
			return
		}
		if uresp.Model == "" {
			uresp.Model = model.ModelName
		}
		outBody, err = encodeClientResponse(dialect, uresp, wireDialect != streamxform.OpenAI)
		if err != nil {
			d.failNonStream(c, base, dialect, providerKey, guard, "encode client response: "+err.Error())
			return
		}
	}

	streamengine.CopyResponseHeaders(c.Writer.Header(), resp.Header)
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Status(http.StatusOK)
	_, _ = c.Writer.Write(outBody)

	if uresp == nil {
		// Passthrough path: still try to recover usage for billing when
		// dialects match, by decoding just the usage-bearing envelope.
		uresp, _ = decodeUpstreamResponse(wireDialect, raw)
	}
	d.finishNonStream(base, dialect, providerKey, entity.StatusSuccess, uresp, guard)
}

func (d *Deps) finishNonStream(base entity.RequestLog, dialect clientDialect, providerKey string, status entity.RequestStatus, uresp *unified.Response, guard *streamengine.ContextGuard) {
	entry := base
	entry.Status = status
	entry.CompletionTS = time.Now().Unix()
	if uresp != nil && uresp.Usage != nil {
		entry.InputTokens = uresp.Usage.InputTokens
		entry.OutputTokens = uresp.Usage.OutputTokens
		entry.ReasoningTokens = uresp.Usage.ReasoningTokens
		entry.TotalTokens = uresp.Usage.TotalTokens
		d.attachCost(context.Background(), &entry)
	}
	d.Logs.Write(entry)
	metrics.RequestsTotal.WithLabelValues(string(dialect), providerKey, string(status)).Inc()
	guard.Disarm()
}

func (d *Deps) failNonStream(c *gin.Context, base entity.RequestLog, dialect clientDialect, providerKey string, guard *streamengine.ContextGuard, reason string) {
	logger.L.Error("non-streaming response handling failed", zap.String("request_id", base.RequestID), zap.String("reason", reason))
	c.Status(http.StatusInternalServerError)
	entry := base
	entry.Status = entity.StatusError
	entry.CompletionTS = time.Now().Unix()
	d.Logs.Write(entry)
	metrics.RequestsTotal.WithLabelValues(string(dialect), providerKey, string(entity.StatusError)).Inc()
	guard.Disarm()
}

// attachCost computes and attaches calculated_cost/cost_currency,
// writing them only when the computed cost is positive.
func (d *Deps) attachCost(ctx context.Context, entry *entity.RequestLog) {
	model, found, err := d.Cache.GetModelByID(ctx, entry.ModelID)
	if err != nil || !found || model.BillingPlanID == nil {
		return
	}
	plan, found, err := d.Cache.GetBillingPlan(ctx, *model.BillingPlanID)
	if err != nil || !found {
		return
	}
	amount := cost.Compute(&plan, cost.Usage{
		InputTokens: entry.InputTokens, OutputTokens: entry.OutputTokens,
		ReasoningTokens: entry.ReasoningTokens, TotalTokens: entry.TotalTokens,
	}, time.Now().Unix())
	if amount > 0 {
		entry.CalculatedCost = amount
		entry.CostCurrency = plan.Currency
		metrics.CostTotalMicroUnits.WithLabelValues(plan.Currency).Add(float64(amount))
	}
}

// logDebugDrops debug-logs the silently-dropped fields before the request
// is serialized for wireDialect.
func logDebugDrops(wireDialect streamxform.Dialect, req *unified.Request) {
	if wireDialect != streamxform.Anthropic && req.TopK != nil {
		logger.L.Debug("dropping top_k, only preserved for anthropic targets")
	}
	if wireDialect == streamxform.Ollama && len(req.Tools) > 0 {
		logger.L.Debug("dropping tools, not supported by ollama targets")
	}
}

// buildUpstreamURL constructs the upstream request URL for provider's
// wire dialect. Endpoint is the Provider's configured base URL with any
// trailing slash trimmed.
func buildUpstreamURL(provider entity.Provider, model entity.Model, wireDialect streamxform.Dialect, stream bool) string {
	base := strings.TrimRight(provider.Endpoint, "/")
	switch wireDialect {
	case streamxform.Gemini:
		action := "generateContent"
		if stream {
			action = "streamGenerateContent"
		}
		return base + "/v1beta/models/" + url.PathEscape(model.WireModelName()) + ":" + action
	case streamxform.Anthropic:
		return base + "/v1/messages"
	case streamxform.Ollama:
		return base + "/api/chat"
	default:
		return base + "/chat/completions"
	}
}

func writeAPIError(c *gin.Context, err *apiError) {
	c.String(err.httpStatus(), err.reason)
}
