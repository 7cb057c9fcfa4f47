package cost_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onehub/llmgate/internal/cost"
	"github.com/onehub/llmgate/internal/entity"
)

func until(ts int64) *int64 { return &ts }

func TestComputeSumsPromptCompletionInvocation(t *testing.T) {
	plan := &entity.BillingPlan{Rules: []entity.PriceRule{
		{UsageType: entity.UsagePrompt, PriceInMicroUnits: 10, EffectiveFrom: 0, IsEnabled: true},
		{UsageType: entity.UsageCompletion, PriceInMicroUnits: 20, EffectiveFrom: 0, IsEnabled: true},
		{UsageType: entity.UsageInvocation, PriceInMicroUnits: 100, EffectiveFrom: 0, IsEnabled: true},
	}}
	got := cost.Compute(plan, cost.Usage{InputTokens: 2, OutputTokens: 3}, 1000)
	assert.Equal(t, int64(2*10+3*20+100), got)
}

func TestComputePicksGreatestEffectiveFromAmongCurrentRules(t *testing.T) {
	plan := &entity.BillingPlan{Rules: []entity.PriceRule{
		{UsageType: entity.UsagePrompt, PriceInMicroUnits: 1, EffectiveFrom: 0, IsEnabled: true},
		{UsageType: entity.UsagePrompt, PriceInMicroUnits: 5, EffectiveFrom: 500, IsEnabled: true},
		{UsageType: entity.UsagePrompt, PriceInMicroUnits: 9, EffectiveFrom: 900, IsEnabled: true},
	}}
	got := cost.Compute(plan, cost.Usage{InputTokens: 1}, 800)
	assert.Equal(t, int64(5), got)
}

func TestComputeSkipsDisabledAndExpiredRules(t *testing.T) {
	plan := &entity.BillingPlan{Rules: []entity.PriceRule{
		{UsageType: entity.UsagePrompt, PriceInMicroUnits: 1, EffectiveFrom: 0, IsEnabled: false},
		{UsageType: entity.UsagePrompt, PriceInMicroUnits: 2, EffectiveFrom: 0, EffectiveUntil: until(100), IsEnabled: true},
	}}
	got := cost.Compute(plan, cost.Usage{InputTokens: 1}, 200)
	assert.Equal(t, int64(0), got)
}

func TestComputeMissingRulesContributeZero(t *testing.T) {
	plan := &entity.BillingPlan{}
	got := cost.Compute(plan, cost.Usage{InputTokens: 5, OutputTokens: 5}, 0)
	assert.Equal(t, int64(0), got)
}

func TestComputeNilPlanIsZero(t *testing.T) {
	assert.Equal(t, int64(0), cost.Compute(nil, cost.Usage{InputTokens: 1}, 0))
}
