// Package configplane defines the contract the Config Cache loads through
// on a miss. The administrative CRUD surface and its database schema that
// implement this contract are external collaborators and are
// not specified here; only the shapes the hot path depends on are.
package configplane

import "context"

// Store is the read side of the administrative plane. Every single-row
// lookup returns (value, found, error); "found=false, error=nil" is a normal
// absence (the cache turns it into a negative entry), while a non-nil
// error is a retrieval fault.
type Store interface {
	GetSystemAPIKeyByHash(ctx context.Context, sha256Hex string) (SystemAPIKeyRow, bool, error)
	GetSystemAPIKeyByRefHash(ctx context.Context, sha256Hex string) (SystemAPIKeyRow, bool, error)

	GetProviderByID(ctx context.Context, id int64) (ProviderRow, bool, error)
	GetProviderByKey(ctx context.Context, key string) (ProviderRow, bool, error)

	GetModelByID(ctx context.Context, id int64) (ModelRow, bool, error)
	GetModelByName(ctx context.Context, providerKey, modelName string) (ModelRow, bool, error)

	GetAliasByName(ctx context.Context, name string) (AliasRow, bool, error)

	GetPolicyByID(ctx context.Context, id int64) (PolicyRow, bool, error)

	GetProviderKeysByProvider(ctx context.Context, providerID int64) ([]ProviderKeyRow, error)

	GetCustomFieldAssignments(ctx context.Context, entityID int64) ([]CustomFieldRow, error)
	GetCustomFieldByID(ctx context.Context, id int64) (CustomFieldRow, bool, error)

	GetBillingPlanByID(ctx context.Context, id int64) (BillingPlanRow, bool, error)

	// ListAll* power reload() warm-up: implementations should
	// return every row regardless of enabled state — reload() stores each
	// row as a positive entry and callers check the enabled flags.
	ListAllProviders(ctx context.Context) ([]ProviderRow, error)
	ListAllModels(ctx context.Context) ([]ModelRow, error)
	ListAllAliases(ctx context.Context) ([]AliasRow, error)
	ListAllPolicies(ctx context.Context) ([]PolicyRow, error)
	ListAllProviderKeys(ctx context.Context) ([]ProviderKeyRow, error)
	ListAllCustomFields(ctx context.Context) ([]CustomFieldRow, error)
	ListAllCustomFieldAssignments(ctx context.Context) ([]CustomFieldAssignmentRow, error)
	ListAllBillingPlans(ctx context.Context) ([]BillingPlanRow, error)
}

// The Row types below are plain DTOs decoupled from entity.* so the cache
// package can decode them without importing a persistence layer; the
// *FromRow functions in package cache convert Row -> entity.*.

type SystemAPIKeyRow struct {
	ID                  int64
	APIKey              string
	Ref                 string
	AccessControlPolicy *int64
	IsEnabled           bool
}

type ProviderRow struct {
	ID           int64
	ProviderKey  string
	Endpoint     string
	ProviderType string
	UseProxy     bool
	IsEnabled    bool
}

type ModelRow struct {
	ID            int64
	ProviderID    int64
	ModelName     string
	RealModelName string
	BillingPlanID *int64
	IsEnabled     bool
}

type AliasRow struct {
	ID            int64
	AliasName     string
	TargetModelID int64
	IsEnabled     bool
}

type ProviderKeyRow struct {
	ID         int64
	ProviderID int64
	APIKey     string
	IsEnabled  bool
}

type CustomFieldRow struct {
	ID             int64
	FieldName      string
	FieldPlacement string
	FieldType      string
	Value          string
}

// CustomFieldAssignmentRow pairs a CustomField with whichever entity
// (provider or model) it is bound to, for reload() warm-up.
type CustomFieldAssignmentRow struct {
	EntityID      int64
	CustomFieldID int64
}

type RuleRow struct {
	RuleType   string
	Priority   int
	Scope      string
	ProviderID *int64
	ModelID    *int64
	IsEnabled  bool
}

type PolicyRow struct {
	ID            int64
	Name          string
	DefaultAction string
	Rules         []RuleRow
}

type PriceRuleRow struct {
	UsageType         string
	PriceInMicroUnits int64
	EffectiveFrom     int64
	EffectiveUntil    *int64
	IsEnabled         bool
}

type BillingPlanRow struct {
	ID       int64
	Currency string
	Rules    []PriceRuleRow
}
