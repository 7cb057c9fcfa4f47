// Package ctxkey names the gin.Context keys the hot path threads values
// through, one documented constant per piece of request-scoped state.
package ctxkey

const (
	// RequestID is the per-request correlation id, minted once per
	// request and echoed in the RequestLog and response headers.
	RequestID = "llmgate.request_id"

	// SystemAPIKey holds the resolved *entity.SystemApiKey for the caller.
	SystemAPIKey = "llmgate.system_api_key"

	// AuthChannel and AuthSubject carry the JWT key-ref claims when the
	// caller authenticated via a jwt-<token>, for inclusion in the log.
	AuthChannel = "llmgate.auth_channel"
	AuthSubject = "llmgate.auth_subject"

	// Dialect is the client-facing wire dialect for this request.
	Dialect = "llmgate.dialect"

	// Provider and Model hold the resolved *entity.Provider/*entity.Model.
	Provider = "llmgate.provider"
	Model    = "llmgate.model"

	// IsStream records whether the dispatcher determined this request
	// wants a streaming response.
	IsStream = "llmgate.is_stream"
)
