// Package resolve implements the client-facing model name resolution
// order: alias first, then `<provider_key>/<model_name>`.
package resolve

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/onehub/llmgate/internal/cache"
	"github.com/onehub/llmgate/internal/entity"
)

// Result is the resolved (provider, model) pair a request targets.
type Result struct {
	Provider entity.Provider
	Model    entity.Model
}

// Resolve implements the two-step resolution order, treating disabled
// providers/models/aliases as absent.
func Resolve(ctx context.Context, c *cache.Cache, name string) (Result, error) {
	if name == "" {
		return Result{}, errors.Errorf("model name is empty")
	}

	if alias, found, err := c.GetAlias(ctx, name); err != nil {
		return Result{}, errors.Wrap(err, "lookup alias")
	} else if found && alias.IsEnabled {
		model, found, err := c.GetModelByID(ctx, alias.TargetModelID)
		if err != nil {
			return Result{}, errors.Wrap(err, "load alias target model")
		}
		if found && model.IsEnabled {
			provider, found, err := c.GetProviderByID(ctx, model.ProviderID)
			if err != nil {
				return Result{}, errors.Wrap(err, "load alias target provider")
			}
			if found && provider.IsEnabled {
				return Result{Provider: provider, Model: model}, nil
			}
		}
		return Result{}, errors.Errorf("alias %q targets a disabled or missing model", name)
	}

	providerKey, modelName, ok := strings.Cut(name, "/")
	if !ok || providerKey == "" || modelName == "" {
		return Result{}, errors.Errorf("model %q is neither a known alias nor a <provider_key>/<model_name> pair", name)
	}

	provider, found, err := c.GetProviderByKey(ctx, providerKey)
	if err != nil {
		return Result{}, errors.Wrap(err, "lookup provider")
	}
	if !found || !provider.IsEnabled {
		return Result{}, errors.Errorf("provider %q is disabled or unknown", providerKey)
	}

	model, found, err := c.GetModelByName(ctx, providerKey, modelName)
	if err != nil {
		return Result{}, errors.Wrap(err, "lookup model")
	}
	if !found || !model.IsEnabled {
		return Result{}, errors.Errorf("model %q is disabled or unknown on provider %q", modelName, providerKey)
	}

	return Result{Provider: provider, Model: model}, nil
}
