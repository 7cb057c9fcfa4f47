package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"golang.org/x/sync/singleflight"

	"github.com/onehub/llmgate/internal/cachekey"
	"github.com/onehub/llmgate/internal/configplane"
	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/logger"
	"github.com/onehub/llmgate/internal/metrics"
)

// Cache is the read-through Config Cache. It never holds its
// Backend's lock across a Store round trip: every getter below first asks
// the Backend (which is a fast, local or already-networked lookup with its
// own internal locking/atomicity), and only calls into Store on a genuine
// miss, after the Backend call has already returned.
type Cache struct {
	backend     Backend
	store       configplane.Store
	positiveTTL time.Duration
	negativeTTL time.Duration

	// loads coalesces concurrent misses against the same key into one
	// config-plane round trip.
	loads singleflight.Group
}

// New constructs a Cache. positiveTTL/negativeTTL are the defaults applied
// to loaded values; individual warm-up paths may choose not to expire
// entities filled by reload() as aggressively, but this implementation
// applies one TTL pair uniformly.
func New(backend Backend, store configplane.Store, positiveTTL, negativeTTL time.Duration) *Cache {
	return &Cache{backend: backend, store: store, positiveTTL: positiveTTL, negativeTTL: negativeTTL}
}

func encode[T any](v T) ([]byte, error) { return json.Marshal(v) }

// entityKind labels a cache key by its leading segment for metrics, e.g.
// "provider:id:7" -> "provider".
func entityKind(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}

func decode[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// loadEntry is the generic read-through shape shared by every getter: look
// up key in the Backend; on a positive hit decode and return; on a
// negative hit return not-found with no error; on an absent entry call
// fetch (the config-plane round trip) and populate the Backend with the
// outcome.
func loadEntry[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	var zero T
	entry, err := c.backend.GetEntry(ctx, key)
	if err != nil {
		return zero, false, errors.Wrap(err, "cache backend get_entry")
	}
	switch entry.Kind {
	case KindPositive:
		metrics.CacheLookupsTotal.WithLabelValues(entityKind(key), "positive").Inc()
		v, err := decode[T](entry.Value)
		if err != nil {
			return zero, false, errors.Wrap(err, "cache decode")
		}
		return v, true, nil
	case KindNegative:
		metrics.CacheLookupsTotal.WithLabelValues(entityKind(key), "negative").Inc()
		return zero, false, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues(entityKind(key), "miss").Inc()

	type result struct {
		v     T
		found bool
	}
	res, err, _ := c.loads.Do(key, func() (interface{}, error) {
		v, found, err := fetch(ctx)
		if err != nil {
			// A failed load populates a negative entry so a storm of
			// requests for a broken entity doesn't hammer the config plane.
			_ = c.backend.SetNegative(ctx, key, c.negativeTTL)
			return result{}, errors.Wrap(err, "load from config plane")
		}
		if !found {
			_ = c.backend.SetNegative(ctx, key, c.negativeTTL)
			return result{}, nil
		}
		raw, encErr := encode(v)
		if encErr == nil {
			_ = c.backend.SetPositive(ctx, key, raw, c.positiveTTL)
		}
		return result{v: v, found: true}, nil
	})
	if err != nil {
		return zero, false, err
	}
	r := res.(result)
	return r.v, r.found, nil
}

// --- SystemApiKey ---

func systemAPIKeyFromRow(r configplane.SystemAPIKeyRow) entity.SystemApiKey {
	return entity.SystemApiKey{
		ID: r.ID, APIKey: r.APIKey, Ref: r.Ref,
		AccessControlPolicy: r.AccessControlPolicy, IsEnabled: r.IsEnabled,
	}
}

func (c *Cache) GetSystemAPIKeyByAPIKey(ctx context.Context, apiKey string) (entity.SystemApiKey, bool, error) {
	key := cachekey.SystemAPIKeyByHash(cachekey.HashSecret(apiKey))
	return loadEntry(ctx, c, key, func(ctx context.Context) (entity.SystemApiKey, bool, error) {
		row, found, err := c.store.GetSystemAPIKeyByHash(ctx, cachekey.HashSecret(apiKey))
		if err != nil || !found {
			return entity.SystemApiKey{}, found, err
		}
		return systemAPIKeyFromRow(row), true, nil
	})
}

func (c *Cache) GetSystemAPIKeyByRef(ctx context.Context, ref string) (entity.SystemApiKey, bool, error) {
	key := cachekey.SystemAPIKeyByRefHash(cachekey.HashSecret(ref))
	return loadEntry(ctx, c, key, func(ctx context.Context) (entity.SystemApiKey, bool, error) {
		row, found, err := c.store.GetSystemAPIKeyByRefHash(ctx, cachekey.HashSecret(ref))
		if err != nil || !found {
			return entity.SystemApiKey{}, found, err
		}
		return systemAPIKeyFromRow(row), true, nil
	})
}

// --- Provider ---

func providerFromRow(r configplane.ProviderRow) entity.Provider {
	return entity.Provider{
		ID: r.ID, ProviderKey: r.ProviderKey, Endpoint: r.Endpoint,
		ProviderType: entity.ProviderType(r.ProviderType), UseProxy: r.UseProxy, IsEnabled: r.IsEnabled,
	}
}

func (c *Cache) GetProviderByID(ctx context.Context, id int64) (entity.Provider, bool, error) {
	return loadEntry(ctx, c, cachekey.ProviderByID(id), func(ctx context.Context) (entity.Provider, bool, error) {
		row, found, err := c.store.GetProviderByID(ctx, id)
		if err != nil || !found {
			return entity.Provider{}, found, err
		}
		p := providerFromRow(row)
		c.cacheProviderSecondary(ctx, p)
		return p, true, nil
	})
}

func (c *Cache) GetProviderByKey(ctx context.Context, key string) (entity.Provider, bool, error) {
	return loadEntry(ctx, c, cachekey.ProviderByKey(key), func(ctx context.Context) (entity.Provider, bool, error) {
		row, found, err := c.store.GetProviderByKey(ctx, key)
		if err != nil || !found {
			return entity.Provider{}, found, err
		}
		p := providerFromRow(row)
		c.cacheProviderSecondary(ctx, p)
		return p, true, nil
	})
}

// cacheProviderSecondary fills the by-id entry when a by-key lookup just
// loaded the provider, and vice versa.
func (c *Cache) cacheProviderSecondary(ctx context.Context, p entity.Provider) {
	raw, err := encode(p)
	if err != nil {
		return
	}
	_ = c.backend.SetPositive(ctx, cachekey.ProviderByID(p.ID), raw, c.positiveTTL)
	_ = c.backend.SetPositive(ctx, cachekey.ProviderByKey(p.ProviderKey), raw, c.positiveTTL)
}

// --- Model ---

func modelFromRow(r configplane.ModelRow) entity.Model {
	return entity.Model{
		ID: r.ID, ProviderID: r.ProviderID, ModelName: r.ModelName,
		RealModelName: r.RealModelName, BillingPlanID: r.BillingPlanID, IsEnabled: r.IsEnabled,
	}
}

func (c *Cache) GetModelByID(ctx context.Context, id int64) (entity.Model, bool, error) {
	return loadEntry(ctx, c, cachekey.ModelByID(id), func(ctx context.Context) (entity.Model, bool, error) {
		row, found, err := c.store.GetModelByID(ctx, id)
		if err != nil || !found {
			return entity.Model{}, found, err
		}
		return modelFromRow(row), true, nil
	})
}

// GetModelByName looks up a model by its composite (provider_key,
// model_name). On a miss it loads the row from the store by that composite
// name and also fills the model-by-id entry with the same value.
func (c *Cache) GetModelByName(ctx context.Context, providerKey, modelName string) (entity.Model, bool, error) {
	key := cachekey.ModelByName(providerKey, modelName)
	return loadEntry(ctx, c, key, func(ctx context.Context) (entity.Model, bool, error) {
		row, found, err := c.store.GetModelByName(ctx, providerKey, modelName)
		if err != nil || !found {
			return entity.Model{}, found, err
		}
		m := modelFromRow(row)
		raw, encErr := encode(m)
		if encErr == nil {
			_ = c.backend.SetPositive(ctx, cachekey.ModelByID(m.ID), raw, c.positiveTTL)
		}
		return m, true, nil
	})
}

// --- ModelAlias ---

func (c *Cache) GetAlias(ctx context.Context, name string) (entity.ModelAlias, bool, error) {
	return loadEntry(ctx, c, cachekey.Alias(name), func(ctx context.Context) (entity.ModelAlias, bool, error) {
		row, found, err := c.store.GetAliasByName(ctx, name)
		if err != nil || !found {
			return entity.ModelAlias{}, found, err
		}
		return entity.ModelAlias{ID: row.ID, AliasName: row.AliasName, TargetModelID: row.TargetModelID, IsEnabled: row.IsEnabled}, true, nil
	})
}

// --- AccessControlPolicy ---

func acpFromRow(r configplane.PolicyRow) entity.AccessControlPolicy {
	rules := make([]entity.AccessControlRule, 0, len(r.Rules))
	for _, rr := range r.Rules {
		rules = append(rules, entity.AccessControlRule{
			RuleType: entity.RuleType(rr.RuleType), Priority: rr.Priority, Scope: entity.RuleScope(rr.Scope),
			ProviderID: rr.ProviderID, ModelID: rr.ModelID, IsEnabled: rr.IsEnabled,
		})
	}
	return entity.AccessControlPolicy{ID: r.ID, Name: r.Name, DefaultAction: entity.RuleType(r.DefaultAction), Rules: rules}
}

func (c *Cache) GetACP(ctx context.Context, id int64) (entity.AccessControlPolicy, bool, error) {
	return loadEntry(ctx, c, cachekey.ACPByID(id), func(ctx context.Context) (entity.AccessControlPolicy, bool, error) {
		row, found, err := c.store.GetPolicyByID(ctx, id)
		if err != nil || !found {
			return entity.AccessControlPolicy{}, found, err
		}
		return acpFromRow(row), true, nil
	})
}

// --- ProviderApiKey group ---

func (c *Cache) GetProviderKeys(ctx context.Context, providerID int64) ([]entity.ProviderApiKey, error) {
	v, _, err := loadEntry(ctx, c, cachekey.ProviderKeys(providerID), func(ctx context.Context) ([]entity.ProviderApiKey, bool, error) {
		rows, err := c.store.GetProviderKeysByProvider(ctx, providerID)
		if err != nil {
			return nil, false, err
		}
		out := make([]entity.ProviderApiKey, 0, len(rows))
		for _, r := range rows {
			out = append(out, entity.ProviderApiKey{ID: r.ID, ProviderID: r.ProviderID, APIKey: r.APIKey, IsEnabled: r.IsEnabled})
		}
		return out, true, nil
	})
	return v, err
}

// --- CustomField ---

func (c *Cache) GetCustomFieldByID(ctx context.Context, id int64) (entity.CustomField, bool, error) {
	return loadEntry(ctx, c, cachekey.CustomFieldByID(id), func(ctx context.Context) (entity.CustomField, bool, error) {
		row, found, err := c.store.GetCustomFieldByID(ctx, id)
		if err != nil || !found {
			return entity.CustomField{}, found, err
		}
		return customFieldFromRow(row), true, nil
	})
}

func customFieldFromRow(r configplane.CustomFieldRow) entity.CustomField {
	return entity.CustomField{
		ID: r.ID, FieldName: r.FieldName,
		FieldPlacement: entity.FieldPlacement(r.FieldPlacement), FieldType: entity.FieldType(r.FieldType), Value: r.Value,
	}
}

// GetCustomFieldsForEntity resolves the assignment list for an entity id
// (a provider or model) into hydrated CustomField values.
func (c *Cache) GetCustomFieldsForEntity(ctx context.Context, entityID int64) ([]entity.CustomField, error) {
	ids, _, err := loadEntry(ctx, c, cachekey.CustomFieldAssignments(entityID), func(ctx context.Context) ([]int64, bool, error) {
		rows, err := c.store.GetCustomFieldAssignments(ctx, entityID)
		if err != nil {
			return nil, false, err
		}
		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		return ids, true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]entity.CustomField, 0, len(ids))
	for _, id := range ids {
		cf, found, err := c.GetCustomFieldByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, cf)
		}
	}
	return out, nil
}

// --- BillingPlan ---

func billingPlanFromRow(r configplane.BillingPlanRow) entity.BillingPlan {
	rules := make([]entity.PriceRule, 0, len(r.Rules))
	for _, pr := range r.Rules {
		rules = append(rules, entity.PriceRule{
			UsageType: entity.UsageType(pr.UsageType), PriceInMicroUnits: pr.PriceInMicroUnits,
			EffectiveFrom: pr.EffectiveFrom, EffectiveUntil: pr.EffectiveUntil, IsEnabled: pr.IsEnabled,
		})
	}
	return entity.BillingPlan{ID: r.ID, Currency: r.Currency, Rules: rules}
}

func (c *Cache) GetBillingPlan(ctx context.Context, id int64) (entity.BillingPlan, bool, error) {
	return loadEntry(ctx, c, cachekey.BillingPlanByID(id), func(ctx context.Context) (entity.BillingPlan, bool, error) {
		row, found, err := c.store.GetBillingPlanByID(ctx, id)
		if err != nil || !found {
			return entity.BillingPlan{}, found, err
		}
		return billingPlanFromRow(row), true, nil
	})
}

// --- Invalidation ---

// InvalidateProvider deletes all cached keys for a provider (primary and
// secondary); an invalidation of an entity deletes all of its cached
// keys.
func (c *Cache) InvalidateProvider(ctx context.Context, id int64, key string) {
	_ = c.backend.Delete(ctx, cachekey.ProviderByID(id))
	if key != "" {
		_ = c.backend.Delete(ctx, cachekey.ProviderByKey(key))
	}
	_ = c.backend.Delete(ctx, cachekey.ProviderKeys(id))
}

func (c *Cache) InvalidateModel(ctx context.Context, id int64, providerKey, modelName string) {
	_ = c.backend.Delete(ctx, cachekey.ModelByID(id))
	if providerKey != "" && modelName != "" {
		_ = c.backend.Delete(ctx, cachekey.ModelByName(providerKey, modelName))
	}
}

func (c *Cache) InvalidateAlias(ctx context.Context, name string) {
	_ = c.backend.Delete(ctx, cachekey.Alias(name))
}

func (c *Cache) InvalidateACP(ctx context.Context, id int64) {
	_ = c.backend.Delete(ctx, cachekey.ACPByID(id))
}

func (c *Cache) InvalidateSystemAPIKey(ctx context.Context, apiKey, ref string) {
	if apiKey != "" {
		_ = c.backend.Delete(ctx, cachekey.SystemAPIKeyByHash(cachekey.HashSecret(apiKey)))
	}
	if ref != "" {
		_ = c.backend.Delete(ctx, cachekey.SystemAPIKeyByRefHash(cachekey.HashSecret(ref)))
	}
}

func (c *Cache) InvalidateCustomField(ctx context.Context, id int64) {
	_ = c.backend.Delete(ctx, cachekey.CustomFieldByID(id))
}

func (c *Cache) InvalidateBillingPlan(ctx context.Context, id int64) {
	_ = c.backend.Delete(ctx, cachekey.BillingPlanByID(id))
}

// Reload performs a full warm-up from the config plane in dependency
// order: Providers, then Models (each model's by-name entry is keyed with
// the provider_key looked up by its ProviderID among the providers just
// loaded), then Aliases, ACPs, ProviderApiKeys grouped by provider,
// CustomField definitions, CustomField assignments, then BillingPlans.
func (c *Cache) Reload(ctx context.Context) error {
	providers, err := c.store.ListAllProviders(ctx)
	if err != nil {
		return errors.Wrap(err, "reload providers")
	}
	providerKeyByID := make(map[int64]string, len(providers))
	for _, row := range providers {
		p := providerFromRow(row)
		c.cacheProviderSecondary(ctx, p)
		providerKeyByID[p.ID] = p.ProviderKey
	}

	models, err := c.store.ListAllModels(ctx)
	if err != nil {
		return errors.Wrap(err, "reload models")
	}
	for _, row := range models {
		m := modelFromRow(row)
		raw, encErr := encode(m)
		if encErr != nil {
			continue
		}
		_ = c.backend.SetPositive(ctx, cachekey.ModelByID(m.ID), raw, c.positiveTTL)
		if pk, ok := providerKeyByID[m.ProviderID]; ok {
			_ = c.backend.SetPositive(ctx, cachekey.ModelByName(pk, m.ModelName), raw, c.positiveTTL)
		}
	}

	aliases, err := c.store.ListAllAliases(ctx)
	if err != nil {
		return errors.Wrap(err, "reload aliases")
	}
	for _, row := range aliases {
		a := entity.ModelAlias{ID: row.ID, AliasName: row.AliasName, TargetModelID: row.TargetModelID, IsEnabled: row.IsEnabled}
		raw, encErr := encode(a)
		if encErr == nil {
			_ = c.backend.SetPositive(ctx, cachekey.Alias(a.AliasName), raw, c.positiveTTL)
		}
	}

	policies, err := c.store.ListAllPolicies(ctx)
	if err != nil {
		return errors.Wrap(err, "reload policies")
	}
	for _, row := range policies {
		p := acpFromRow(row)
		raw, encErr := encode(p)
		if encErr == nil {
			_ = c.backend.SetPositive(ctx, cachekey.ACPByID(p.ID), raw, c.positiveTTL)
		}
	}

	providerKeys, err := c.store.ListAllProviderKeys(ctx)
	if err != nil {
		return errors.Wrap(err, "reload provider keys")
	}
	grouped := make(map[int64][]entity.ProviderApiKey)
	for _, row := range providerKeys {
		grouped[row.ProviderID] = append(grouped[row.ProviderID], entity.ProviderApiKey{
			ID: row.ID, ProviderID: row.ProviderID, APIKey: row.APIKey, IsEnabled: row.IsEnabled,
		})
	}
	for providerID, keys := range grouped {
		raw, encErr := encode(keys)
		if encErr == nil {
			_ = c.backend.SetPositive(ctx, cachekey.ProviderKeys(providerID), raw, c.positiveTTL)
		}
	}

	fields, err := c.store.ListAllCustomFields(ctx)
	if err != nil {
		return errors.Wrap(err, "reload custom fields")
	}
	for _, row := range fields {
		cf := customFieldFromRow(row)
		raw, encErr := encode(cf)
		if encErr == nil {
			_ = c.backend.SetPositive(ctx, cachekey.CustomFieldByID(cf.ID), raw, c.positiveTTL)
		}
	}

	assignments, err := c.store.ListAllCustomFieldAssignments(ctx)
	if err != nil {
		return errors.Wrap(err, "reload custom field assignments")
	}
	byEntity := make(map[int64][]int64)
	for _, a := range assignments {
		byEntity[a.EntityID] = append(byEntity[a.EntityID], a.CustomFieldID)
	}
	for entityID, ids := range byEntity {
		raw, encErr := encode(ids)
		if encErr == nil {
			_ = c.backend.SetPositive(ctx, cachekey.CustomFieldAssignments(entityID), raw, c.positiveTTL)
		}
	}

	plans, err := c.store.ListAllBillingPlans(ctx)
	if err != nil {
		return errors.Wrap(err, "reload billing plans")
	}
	for _, row := range plans {
		plan := billingPlanFromRow(row)
		raw, encErr := encode(plan)
		if encErr == nil {
			_ = c.backend.SetPositive(ctx, cachekey.BillingPlanByID(plan.ID), raw, c.positiveTTL)
		}
	}

	logger.L.Info("config cache reload complete",
		zap.Int("providers", len(providers)), zap.Int("models", len(models)),
		zap.Int("aliases", len(aliases)), zap.Int("policies", len(policies)),
		zap.Int("billing_plans", len(plans)))
	return nil
}
