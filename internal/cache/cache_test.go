package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/cache"
	"github.com/onehub/llmgate/internal/configplane"
)

// fakeStore is a minimal in-memory configplane.Store for tests.
type fakeStore struct {
	providers map[int64]configplane.ProviderRow
	loadCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{providers: map[int64]configplane.ProviderRow{
		1: {ID: 1, ProviderKey: "openai-main", Endpoint: "https://api.openai.com", ProviderType: "OpenAI", IsEnabled: true},
	}}
}

func (f *fakeStore) GetSystemAPIKeyByHash(context.Context, string) (configplane.SystemAPIKeyRow, bool, error) {
	return configplane.SystemAPIKeyRow{}, false, nil
}
func (f *fakeStore) GetSystemAPIKeyByRefHash(context.Context, string) (configplane.SystemAPIKeyRow, bool, error) {
	return configplane.SystemAPIKeyRow{}, false, nil
}
func (f *fakeStore) GetProviderByID(_ context.Context, id int64) (configplane.ProviderRow, bool, error) {
	f.loadCalls++
	row, ok := f.providers[id]
	return row, ok, nil
}
func (f *fakeStore) GetProviderByKey(_ context.Context, key string) (configplane.ProviderRow, bool, error) {
	f.loadCalls++
	for _, row := range f.providers {
		if row.ProviderKey == key {
			return row, true, nil
		}
	}
	return configplane.ProviderRow{}, false, nil
}
func (f *fakeStore) GetModelByID(context.Context, int64) (configplane.ModelRow, bool, error) {
	return configplane.ModelRow{}, false, nil
}
func (f *fakeStore) GetModelByName(context.Context, string, string) (configplane.ModelRow, bool, error) {
	return configplane.ModelRow{}, false, nil
}
func (f *fakeStore) GetAliasByName(context.Context, string) (configplane.AliasRow, bool, error) {
	return configplane.AliasRow{}, false, nil
}
func (f *fakeStore) GetPolicyByID(context.Context, int64) (configplane.PolicyRow, bool, error) {
	return configplane.PolicyRow{}, false, nil
}
func (f *fakeStore) GetProviderKeysByProvider(context.Context, int64) ([]configplane.ProviderKeyRow, error) {
	return nil, nil
}
func (f *fakeStore) GetCustomFieldAssignments(context.Context, int64) ([]configplane.CustomFieldRow, error) {
	return nil, nil
}
func (f *fakeStore) GetCustomFieldByID(context.Context, int64) (configplane.CustomFieldRow, bool, error) {
	return configplane.CustomFieldRow{}, false, nil
}
func (f *fakeStore) GetBillingPlanByID(context.Context, int64) (configplane.BillingPlanRow, bool, error) {
	return configplane.BillingPlanRow{}, false, nil
}
func (f *fakeStore) ListAllProviders(context.Context) ([]configplane.ProviderRow, error) {
	out := make([]configplane.ProviderRow, 0, len(f.providers))
	for _, p := range f.providers {
		out = append(out, p)
	}
	return out, nil
}
func (f *fakeStore) ListAllModels(context.Context) ([]configplane.ModelRow, error)  { return nil, nil }
func (f *fakeStore) ListAllAliases(context.Context) ([]configplane.AliasRow, error) { return nil, nil }
func (f *fakeStore) ListAllPolicies(context.Context) ([]configplane.PolicyRow, error) {
	return nil, nil
}
func (f *fakeStore) ListAllProviderKeys(context.Context) ([]configplane.ProviderKeyRow, error) {
	return nil, nil
}
func (f *fakeStore) ListAllCustomFields(context.Context) ([]configplane.CustomFieldRow, error) {
	return nil, nil
}
func (f *fakeStore) ListAllCustomFieldAssignments(context.Context) ([]configplane.CustomFieldAssignmentRow, error) {
	return nil, nil
}
func (f *fakeStore) ListAllBillingPlans(context.Context) ([]configplane.BillingPlanRow, error) {
	return nil, nil
}

func TestMapBackendSetGetRoundTrip(t *testing.T) {
	b := cache.NewMapBackend()
	ctx := context.Background()
	require.NoError(t, b.SetPositive(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestMapBackendExpiryBehavesAsMiss(t *testing.T) {
	b := cache.NewMapBackend()
	ctx := context.Background()
	require.NoError(t, b.SetPositive(ctx, "k", []byte("v"), time.Nanosecond))
	time.Sleep(2 * time.Millisecond)
	entry, err := b.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, cache.KindAbsent, entry.Kind)
}

func TestMapBackendNegativeDoesNotOverwritePositive(t *testing.T) {
	b := cache.NewMapBackend()
	ctx := context.Background()
	require.NoError(t, b.SetPositive(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, b.SetNegative(ctx, "k", time.Minute))
	entry, err := b.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, cache.KindPositive, entry.Kind)
}

func TestMapBackendSetNegativeThenGetIsNegativeHit(t *testing.T) {
	b := cache.NewMapBackend()
	ctx := context.Background()
	require.NoError(t, b.SetNegative(ctx, "k", time.Minute))
	entry, err := b.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, cache.KindNegative, entry.Kind)
	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMapBackendDeleteThenGetIsPlainMiss(t *testing.T) {
	b := cache.NewMapBackend()
	ctx := context.Background()
	require.NoError(t, b.SetPositive(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, b.Delete(ctx, "k"))
	entry, err := b.GetEntry(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, cache.KindAbsent, entry.Kind)
}

func TestCacheReadThroughPopulatesBothKeys(t *testing.T) {
	store := newFakeStore()
	c := cache.New(cache.NewMapBackend(), store, time.Minute, time.Second)
	ctx := context.Background()

	p, found, err := c.GetProviderByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "openai-main", p.ProviderKey)
	assert.Equal(t, 1, store.loadCalls)

	// Second lookup by the secondary key must be a cache hit, not another
	// store round trip.
	p2, found, err := c.GetProviderByKey(ctx, "openai-main")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, 1, store.loadCalls)
}

func TestCacheMissingEntityIsNegativelyCached(t *testing.T) {
	store := newFakeStore()
	c := cache.New(cache.NewMapBackend(), store, time.Minute, time.Hour)
	ctx := context.Background()

	_, found, err := c.GetProviderByID(ctx, 999)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, store.loadCalls)

	// Repeated lookup must not call the store again (negative hit).
	_, found, err = c.GetProviderByID(ctx, 999)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, store.loadCalls)
}

func TestKVBackendRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := cache.NewKVBackendFromClient(client, "llmgate-test")
	ctx := context.Background()

	require.NoError(t, b.SetPositive(ctx, "provider:id:1", []byte(`{"id":1}`), time.Minute))
	v, ok, err := b.Get(ctx, "provider:id:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":1}`, string(v))

	require.NoError(t, b.SetNegative(ctx, "provider:id:2", time.Minute))
	entry, err := b.GetEntry(ctx, "provider:id:2")
	require.NoError(t, err)
	assert.Equal(t, cache.KindNegative, entry.Kind)

	// Negative must not clobber an existing positive.
	require.NoError(t, b.SetNegative(ctx, "provider:id:1", time.Minute))
	entry, err = b.GetEntry(ctx, "provider:id:1")
	require.NoError(t, err)
	assert.Equal(t, cache.KindPositive, entry.Kind)
}
