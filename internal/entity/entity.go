// Package entity holds the runtime shapes the hot path reads through the
// Config Cache. Persistence, validation, and CRUD for these types belong to
// the administrative plane and are out of scope here — see configplane.
package entity

// FieldPlacement is where a CustomField gets applied.
type FieldPlacement string

const (
	PlacementBody   FieldPlacement = "BODY"
	PlacementQuery  FieldPlacement = "QUERY"
	PlacementHeader FieldPlacement = "HEADER"
)

// FieldType is the typed value kind carried by a CustomField.
type FieldType string

const (
	FieldTypeUnset      FieldType = "UNSET"
	FieldTypeString     FieldType = "STRING"
	FieldTypeInteger    FieldType = "INTEGER"
	FieldTypeNumber     FieldType = "NUMBER"
	FieldTypeBoolean    FieldType = "BOOLEAN"
	FieldTypeJSONString FieldType = "JSON_STRING"
)

// ProviderType identifies the upstream wire dialect a Provider speaks.
type ProviderType string

const (
	ProviderOpenAI       ProviderType = "OpenAI"
	ProviderGemini       ProviderType = "Gemini"
	ProviderVertex       ProviderType = "Vertex"
	ProviderVertexOpenAI ProviderType = "VertexOpenAI"
	ProviderAnthropic    ProviderType = "Anthropic"
	ProviderOllama       ProviderType = "Ollama"
)

// RuleType is the decision an AccessControlRule or AccessControlPolicy takes.
type RuleType string

const (
	RuleAllow RuleType = "ALLOW"
	RuleDeny  RuleType = "DENY"
)

// RuleScope is what an AccessControlRule matches against.
type RuleScope string

const (
	ScopeProvider RuleScope = "PROVIDER"
	ScopeModel    RuleScope = "MODEL"
)

// UsageType is the billing dimension a PriceRule applies to.
type UsageType string

const (
	UsagePrompt     UsageType = "PROMPT"
	UsageCompletion UsageType = "COMPLETION"
	UsageInvocation UsageType = "INVOCATION"
)

// SystemApiKey is the client-facing credential.
type SystemApiKey struct {
	ID                  int64
	APIKey              string
	Ref                 string
	AccessControlPolicy *int64
	IsEnabled           bool
}

// Provider is an upstream vendor configuration.
type Provider struct {
	ID           int64
	ProviderKey  string
	Endpoint     string
	ProviderType ProviderType
	UseProxy     bool
	IsEnabled    bool
}

// Model is a configured model under a Provider.
type Model struct {
	ID            int64
	ProviderID    int64
	ModelName     string
	RealModelName string
	BillingPlanID *int64
	IsEnabled     bool
}

// WireModelName returns the name actually sent upstream: RealModelName
// falls back to ModelName when unset.
func (m Model) WireModelName() string {
	if m.RealModelName != "" {
		return m.RealModelName
	}
	return m.ModelName
}

// ModelAlias is a client-visible short name that forwards to a Model.
type ModelAlias struct {
	ID            int64
	AliasName     string
	TargetModelID int64
	IsEnabled     bool
}

// ProviderApiKey is a credential used to call an upstream provider.
type ProviderApiKey struct {
	ID         int64
	ProviderID int64
	APIKey     string
	IsEnabled  bool
}

// CustomField is a request-modification directive assigned to a provider
// and/or model.
type CustomField struct {
	ID             int64
	FieldName      string
	FieldPlacement FieldPlacement
	FieldType      FieldType
	Value          string
}

// AccessControlRule is one decision step inside an AccessControlPolicy.
type AccessControlRule struct {
	RuleType   RuleType
	Priority   int
	Scope      RuleScope
	ProviderID *int64
	ModelID    *int64
	IsEnabled  bool
}

// AccessControlPolicy is an ordered set of AccessControlRule plus a default.
type AccessControlPolicy struct {
	ID            int64
	Name          string
	DefaultAction RuleType
	Rules         []AccessControlRule
}

// PriceRule is one pricing line inside a BillingPlan.
type PriceRule struct {
	UsageType         UsageType
	PriceInMicroUnits int64
	EffectiveFrom     int64 // unix seconds
	EffectiveUntil    *int64
	IsEnabled         bool
}

// BillingPlan is a currency plus an ordered set of PriceRule.
type BillingPlan struct {
	ID       int64
	Currency string
	Rules    []PriceRule
}

// RequestStatus is the terminal state of a proxied request.
type RequestStatus string

const (
	StatusSuccess   RequestStatus = "Success"
	StatusError     RequestStatus = "Error"
	StatusCancelled RequestStatus = "Cancelled"
)

// RequestLog is the audit record produced for every request that reached
// the upstream.
type RequestLog struct {
	ID              int64
	RequestID       string
	SystemAPIKeyID  int64
	UserExternalID  string
	Channel         string
	ProviderID      int64
	ModelID         int64
	ModelName       string
	Status          RequestStatus
	InputTokens     int32
	OutputTokens    int32
	ReasoningTokens int32
	TotalTokens     int32
	CalculatedCost  int64
	CostCurrency    string
	UpstreamStatus  int
	UpstreamBody    string
	CreatedTS       int64
	FirstChunkTS    int64
	CompletionTS    int64
}
