// Package cost implements the Usage & Cost Accountant:
// integer micro-unit costs derived from a BillingPlan's PriceRules.
package cost

import (
	"github.com/onehub/llmgate/internal/entity"
)

// Usage mirrors the token counts relevant to billing.
type Usage struct {
	InputTokens     int32
	OutputTokens    int32
	ReasoningTokens int32
	TotalTokens     int32
}

// Compute returns the total cost in plan-micro-units for usage under plan,
// evaluated at the unix-seconds instant now.
func Compute(plan *entity.BillingPlan, usage Usage, now int64) int64 {
	if plan == nil {
		return 0
	}

	var total int64
	if rule, ok := bestRule(plan.Rules, entity.UsagePrompt, now); ok {
		total += int64(usage.InputTokens) * rule.PriceInMicroUnits
	}
	if rule, ok := bestRule(plan.Rules, entity.UsageCompletion, now); ok {
		total += int64(usage.OutputTokens) * rule.PriceInMicroUnits
	}
	if rule, ok := bestRule(plan.Rules, entity.UsageInvocation, now); ok {
		total += rule.PriceInMicroUnits
	}
	return total
}

// bestRule picks the enabled, currently-effective rule of usageType with
// the greatest effective_from.
func bestRule(rules []entity.PriceRule, usageType entity.UsageType, now int64) (entity.PriceRule, bool) {
	var best entity.PriceRule
	found := false
	for _, r := range rules {
		if r.UsageType != usageType || !r.IsEnabled {
			continue
		}
		if r.EffectiveFrom > now {
			continue
		}
		if r.EffectiveUntil != nil && *r.EffectiveUntil <= now {
			continue
		}
		if !found || r.EffectiveFrom > best.EffectiveFrom {
			best = r
			found = true
		}
	}
	return best, found
}
