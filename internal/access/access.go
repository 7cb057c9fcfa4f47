// Package access implements the priority-ordered access-control evaluator.
package access

import (
	"sort"

	"github.com/onehub/llmgate/internal/entity"
)

// Decision is the evaluator's output.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Evaluate decides whether providerID/modelID is reachable under policy.
// A nil policy (SystemApiKey has no ACP attached) is unconditionally
// allowed.
func Evaluate(policy *entity.AccessControlPolicy, providerID, modelID int64) Decision {
	if policy == nil {
		return allow()
	}

	rules := make([]entity.AccessControlRule, len(policy.Rules))
	copy(rules, policy.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	for _, r := range rules {
		if !r.IsEnabled {
			continue
		}
		if !matches(r, providerID, modelID) {
			continue
		}
		switch r.RuleType {
		case entity.RuleAllow:
			return allow()
		case entity.RuleDeny:
			return deny("denied by rule in policy " + policy.Name)
		default:
			return deny("misconfigured rule_type in policy " + policy.Name)
		}
	}

	switch policy.DefaultAction {
	case entity.RuleAllow:
		return allow()
	case entity.RuleDeny:
		return deny("denied by default_action of policy " + policy.Name)
	default:
		return deny("misconfigured default_action in policy " + policy.Name)
	}
}

func matches(r entity.AccessControlRule, providerID, modelID int64) bool {
	switch r.Scope {
	case entity.ScopeModel:
		return r.ModelID != nil && *r.ModelID == modelID
	case entity.ScopeProvider:
		return r.ProviderID != nil && *r.ProviderID == providerID
	default:
		return false
	}
}
