// Package memstore is a minimal in-process configplane.Store, useful for
// local development and for embedding the gateway without a real
// administrative-plane database wired up.
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/onehub/llmgate/internal/configplane"
)

// Store holds every configured entity in plain maps guarded by one mutex.
// It is meant for demos, tests, and small single-process deployments, not
// as a replacement for a real administrative plane.
type Store struct {
	mu sync.RWMutex

	keysByHash    map[string]configplane.SystemAPIKeyRow
	keysByRefHash map[string]configplane.SystemAPIKeyRow
	providersByID map[int64]configplane.ProviderRow
	modelsByID    map[int64]configplane.ModelRow
	aliasesByName map[string]configplane.AliasRow
	policiesByID  map[int64]configplane.PolicyRow
	providerKeys  map[int64][]configplane.ProviderKeyRow
	customFields  map[int64]configplane.CustomFieldRow
	assignments   map[int64][]configplane.CustomFieldRow
	billingPlans  map[int64]configplane.BillingPlanRow
}

// New returns an empty Store; use the Put* methods to seed it.
func New() *Store {
	return &Store{
		keysByHash:    make(map[string]configplane.SystemAPIKeyRow),
		keysByRefHash: make(map[string]configplane.SystemAPIKeyRow),
		providersByID: make(map[int64]configplane.ProviderRow),
		modelsByID:    make(map[int64]configplane.ModelRow),
		aliasesByName: make(map[string]configplane.AliasRow),
		policiesByID:  make(map[int64]configplane.PolicyRow),
		providerKeys:  make(map[int64][]configplane.ProviderKeyRow),
		customFields:  make(map[int64]configplane.CustomFieldRow),
		assignments:   make(map[int64][]configplane.CustomFieldRow),
		billingPlans:  make(map[int64]configplane.BillingPlanRow),
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// PutSystemAPIKey seeds a SystemApiKey, indexed by the SHA-256 of its
// plaintext key and (if set) its ref, matching the cache's keying
// convention.
func (s *Store) PutSystemAPIKey(row configplane.SystemAPIKeyRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keysByHash[sha256Hex(row.APIKey)] = row
	if row.Ref != "" {
		s.keysByRefHash[sha256Hex(row.Ref)] = row
	}
}

// PutProvider seeds a Provider.
func (s *Store) PutProvider(row configplane.ProviderRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providersByID[row.ID] = row
}

// PutModel seeds a Model.
func (s *Store) PutModel(row configplane.ModelRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelsByID[row.ID] = row
}

// PutAlias seeds a ModelAlias.
func (s *Store) PutAlias(row configplane.AliasRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliasesByName[row.AliasName] = row
}

// PutPolicy seeds an AccessControlPolicy.
func (s *Store) PutPolicy(row configplane.PolicyRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policiesByID[row.ID] = row
}

// PutProviderKey seeds a ProviderApiKey under its provider's group.
func (s *Store) PutProviderKey(row configplane.ProviderKeyRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providerKeys[row.ProviderID] = append(s.providerKeys[row.ProviderID], row)
}

// PutCustomField seeds a CustomField definition and its assignment to an
// entity (provider or model id).
func (s *Store) PutCustomField(entityID int64, row configplane.CustomFieldRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customFields[row.ID] = row
	s.assignments[entityID] = append(s.assignments[entityID], row)
}

// PutBillingPlan seeds a BillingPlan.
func (s *Store) PutBillingPlan(row configplane.BillingPlanRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.billingPlans[row.ID] = row
}

func (s *Store) GetSystemAPIKeyByHash(_ context.Context, sha256Hex string) (configplane.SystemAPIKeyRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.keysByHash[sha256Hex]
	return row, ok, nil
}

func (s *Store) GetSystemAPIKeyByRefHash(_ context.Context, sha256Hex string) (configplane.SystemAPIKeyRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.keysByRefHash[sha256Hex]
	return row, ok, nil
}

func (s *Store) GetProviderByID(_ context.Context, id int64) (configplane.ProviderRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.providersByID[id]
	return row, ok, nil
}

func (s *Store) GetProviderByKey(_ context.Context, key string) (configplane.ProviderRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.providersByID {
		if row.ProviderKey == key {
			return row, true, nil
		}
	}
	return configplane.ProviderRow{}, false, nil
}

func (s *Store) GetModelByID(_ context.Context, id int64) (configplane.ModelRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.modelsByID[id]
	return row, ok, nil
}

func (s *Store) GetModelByName(_ context.Context, providerKey, modelName string) (configplane.ModelRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	provider, ok := s.lockedProviderByKey(providerKey)
	if !ok {
		return configplane.ModelRow{}, false, nil
	}
	for _, row := range s.modelsByID {
		if row.ProviderID == provider.ID && row.ModelName == modelName {
			return row, true, nil
		}
	}
	return configplane.ModelRow{}, false, nil
}

func (s *Store) lockedProviderByKey(key string) (configplane.ProviderRow, bool) {
	for _, row := range s.providersByID {
		if row.ProviderKey == key {
			return row, true
		}
	}
	return configplane.ProviderRow{}, false
}

func (s *Store) GetAliasByName(_ context.Context, name string) (configplane.AliasRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.aliasesByName[name]
	return row, ok, nil
}

func (s *Store) GetPolicyByID(_ context.Context, id int64) (configplane.PolicyRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.policiesByID[id]
	return row, ok, nil
}

func (s *Store) GetProviderKeysByProvider(_ context.Context, providerID int64) ([]configplane.ProviderKeyRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]configplane.ProviderKeyRow(nil), s.providerKeys[providerID]...), nil
}

func (s *Store) GetCustomFieldAssignments(_ context.Context, entityID int64) ([]configplane.CustomFieldRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]configplane.CustomFieldRow(nil), s.assignments[entityID]...), nil
}

func (s *Store) GetCustomFieldByID(_ context.Context, id int64) (configplane.CustomFieldRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.customFields[id]
	return row, ok, nil
}

func (s *Store) GetBillingPlanByID(_ context.Context, id int64) (configplane.BillingPlanRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.billingPlans[id]
	return row, ok, nil
}

func (s *Store) ListAllProviders(context.Context) ([]configplane.ProviderRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]configplane.ProviderRow, 0, len(s.providersByID))
	for _, row := range s.providersByID {
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) ListAllModels(context.Context) ([]configplane.ModelRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]configplane.ModelRow, 0, len(s.modelsByID))
	for _, row := range s.modelsByID {
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) ListAllAliases(context.Context) ([]configplane.AliasRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]configplane.AliasRow, 0, len(s.aliasesByName))
	for _, row := range s.aliasesByName {
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) ListAllPolicies(context.Context) ([]configplane.PolicyRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]configplane.PolicyRow, 0, len(s.policiesByID))
	for _, row := range s.policiesByID {
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) ListAllProviderKeys(context.Context) ([]configplane.ProviderKeyRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []configplane.ProviderKeyRow
	for _, rows := range s.providerKeys {
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Store) ListAllCustomFields(context.Context) ([]configplane.CustomFieldRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]configplane.CustomFieldRow, 0, len(s.customFields))
	for _, row := range s.customFields {
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) ListAllCustomFieldAssignments(context.Context) ([]configplane.CustomFieldAssignmentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []configplane.CustomFieldAssignmentRow
	for entityID, rows := range s.assignments {
		for _, row := range rows {
			out = append(out, configplane.CustomFieldAssignmentRow{EntityID: entityID, CustomFieldID: row.ID})
		}
	}
	return out, nil
}

func (s *Store) ListAllBillingPlans(context.Context) ([]configplane.BillingPlanRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]configplane.BillingPlanRow, 0, len(s.billingPlans))
	for _, row := range s.billingPlans {
		out = append(out, row)
	}
	return out, nil
}

var _ configplane.Store = (*Store)(nil)
